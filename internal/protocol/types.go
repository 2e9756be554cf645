package protocol

import "encoding/json"

// Envelope status values.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusConnected = "connected"
)

// Request is the command envelope sent by a client: {"type": ..., "params": {...}}.
type Request struct {
	Type   string `json:"type"`
	Params Params `json:"params"`
}

// Response is the reply envelope. Exactly one of Result or Message is set:
// success carries a result (possibly JSON null), error carries a message.
type Response struct {
	Status  string          `json:"status"` // success | error
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Greeting is sent once by the host right after accepting a connection.
type Greeting struct {
	Status  string `json:"status"` // connected
	Message string `json:"message"`
}

// OK reports whether the response carries a result.
func (r *Response) OK() bool {
	return r.Status == StatusSuccess
}
