package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure seen by either side of the transport.
type Kind string

const (
	KindUnknownCommand   Kind = "unknown_command"
	KindValidation       Kind = "validation"
	KindBridgeTimeout    Kind = "bridge_timeout"
	KindTransportTimeout Kind = "transport_timeout"
	KindConnectionLost   Kind = "connection_lost"
	KindProtocol         Kind = "protocol"
	// KindCommandFailed is any other error reported by the host in an envelope.
	KindCommandFailed Kind = "command_failed"
)

// Host messages that clients recognise when classifying an error envelope.
const (
	UnknownCommandPrefix = "Unknown command: "
	BridgeTimeoutMessage = "Timeout waiting for operation to complete"
	UnknownErrorMessage  = "Unknown error"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrValidation       = errors.New("validation failed")
	ErrBridgeTimeout    = errors.New("bridge timeout")
	ErrTransportTimeout = errors.New("transport timeout")
	ErrConnectionLost   = errors.New("connection lost")
	ErrProtocol         = errors.New("protocol error")
	ErrCommandFailed    = errors.New("command failed")
)

var kindSentinels = map[Kind]error{
	KindUnknownCommand:   ErrUnknownCommand,
	KindValidation:       ErrValidation,
	KindBridgeTimeout:    ErrBridgeTimeout,
	KindTransportTimeout: ErrTransportTimeout,
	KindConnectionLost:   ErrConnectionLost,
	KindProtocol:         ErrProtocol,
	KindCommandFailed:    ErrCommandFailed,
}

// Error is a classified failure. Message is the human-readable text that
// travels in an error envelope; Err is the underlying cause, if any.
type Error struct {
	Kind    Kind
	Command string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Command != "" {
		b.WriteString(" (")
		b.WriteString(e.Command)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Validation builds a validation error whose message reaches the client verbatim.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// MessageOf returns the text to place in an error envelope for err. A
// classified error contributes its Message; anything else its Error().
func MessageOf(err error) string {
	if err == nil {
		return UnknownErrorMessage
	}
	var perr *Error
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return UnknownErrorMessage
}

// ClassifyRemote maps the message of an error envelope onto a Kind.
func ClassifyRemote(message string) Kind {
	switch {
	case strings.HasPrefix(message, UnknownCommandPrefix):
		return KindUnknownCommand
	case message == BridgeTimeoutMessage:
		return KindBridgeTimeout
	default:
		return KindCommandFailed
	}
}
