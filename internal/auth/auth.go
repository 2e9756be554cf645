// Package auth guards the status API with a static bearer token.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing Authorization header")
	ErrMalformed    = errors.New("invalid Authorization header format")
	ErrInvalidToken = errors.New("invalid token")
)

func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMalformed
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Check verifies the request carries want as its bearer token. An empty want
// disables the check.
func Check(r *http.Request, want string) error {
	if want == "" {
		return nil
	}
	presented, err := ExtractBearerToken(r)
	if err != nil {
		return err
	}
	if !constantTimeEqual(presented, want) {
		return ErrInvalidToken
	}
	return nil
}

// Require wraps next so requests without the token get 401.
func Require(want string, onFail func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Check(r, want); err != nil {
				onFail(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
