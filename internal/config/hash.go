package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// hashPrefix is optional on hashes given to VerifyFileHash.
const hashPrefix = "blake3:"

func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileHash returns the hex BLAKE3 digest of the file at path.
func FileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return digest(data), nil
}

// VerifyFileHash fails unless the file at path hashes to want. want may
// carry a "blake3:" prefix and any letter case.
func VerifyFileHash(path, want string) error {
	got, err := FileHash(path)
	if err != nil {
		return err
	}
	want = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(want), hashPrefix))
	if got != want {
		return fmt.Errorf("config hash mismatch: %s has %s, expected %s", path, got, want)
	}
	return nil
}

// Fingerprint hashes the effective configuration, after file, environment
// and defaults are combined. Two hosts with the same fingerprint behave the
// same regardless of where each setting came from.
func Fingerprint(cfg *Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return digest(data), nil
}
