package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// EncodeRequest serializes req as one JSON object and writes it to w in a
// single call. No trailing newline is written: frames are brace-delimited.
func EncodeRequest(w io.Writer, req *Request) error {
	if req == nil || req.Type == "" {
		return protocolErr("request missing required field: type", nil)
	}

	out := *req
	if out.Params == nil {
		out.Params = Params{}
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return protocolErr("failed to encode request", err)
	}
	return writeAll(w, data)
}

// DecodeRequest parses one request frame. Numbers in params are kept as
// json.Number so integer parameters survive without float rounding.
func DecodeRequest(data []byte) (*Request, error) {
	var raw struct {
		Type   *string         `json:"type"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, protocolErr("failed to decode request", err)
	}
	if raw.Type == nil {
		return nil, protocolErr("request missing required field: type", nil)
	}

	req := &Request{Type: *raw.Type, Params: Params{}}
	if len(raw.Params) > 0 && !bytes.Equal(raw.Params, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw.Params))
		dec.UseNumber()
		if err := dec.Decode(&req.Params); err != nil {
			return nil, protocolErr("request params must be a JSON object", err)
		}
	}
	return req, nil
}

// Success builds a success envelope around result.
func Success(result any) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Response{Status: StatusSuccess, Result: data}, nil
}

// Failure builds an error envelope. An empty message becomes "Unknown error".
func Failure(message string) *Response {
	if message == "" {
		message = UnknownErrorMessage
	}
	return &Response{Status: StatusError, Message: message}
}

// EncodeResponse validates resp and writes it to w as one JSON object.
func EncodeResponse(w io.Writer, resp *Response) error {
	if err := validateResponse(resp); err != nil {
		return err
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return protocolErr("failed to encode response", err)
	}
	return writeAll(w, data)
}

// DecodeResponse parses and validates one response frame.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, protocolErr("failed to decode response", err)
	}
	if err := validateResponse(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EncodeGreeting writes the connection greeting.
func EncodeGreeting(w io.Writer, message string) error {
	data, err := json.Marshal(Greeting{Status: StatusConnected, Message: message})
	if err != nil {
		return protocolErr("failed to encode greeting", err)
	}
	return writeAll(w, data)
}

// DecodeGreeting parses a greeting frame.
func DecodeGreeting(data []byte) (*Greeting, error) {
	var g Greeting
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, protocolErr("failed to decode greeting", err)
	}
	if g.Status != StatusConnected {
		return nil, protocolErr(fmt.Sprintf("unexpected greeting status %q", g.Status), nil)
	}
	return &g, nil
}

func validateResponse(resp *Response) error {
	if resp == nil {
		return protocolErr("nil response", nil)
	}
	switch resp.Status {
	case StatusSuccess:
		if len(resp.Result) == 0 {
			return protocolErr("response has status=success but no result", nil)
		}
		if resp.Message != "" {
			return protocolErr("response has status=success and a message", nil)
		}
	case StatusError:
		if resp.Message == "" {
			return protocolErr("response has status=error but no message", nil)
		}
		if len(resp.Result) != 0 {
			return protocolErr("response has status=error and a result", nil)
		}
	case "":
		return protocolErr("response missing required field: status", nil)
	default:
		return protocolErr(fmt.Sprintf("invalid status value: %q (must be 'success' or 'error')", resp.Status), nil)
	}
	return nil
}

func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func protocolErr(msg string, cause error) *Error {
	return &Error{Kind: KindProtocol, Message: msg, Err: cause}
}
