package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEncodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     *Request
		wantErr bool
		checkFn func(t *testing.T, output string)
	}{
		{
			name: "command with params",
			req:  &Request{Type: "set_tempo", Params: Params{"tempo": 128.0}},
			checkFn: func(t *testing.T, output string) {
				if output != `{"type":"set_tempo","params":{"tempo":128}}` {
					t.Errorf("unexpected encoding: %s", output)
				}
			},
		},
		{
			name: "nil params encode as empty object",
			req:  &Request{Type: "noop_read"},
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"params":{}`) {
					t.Errorf("missing empty params: %s", output)
				}
				if strings.HasSuffix(output, "\n") {
					t.Error("frames must not carry a trailing newline")
				}
			},
		},
		{
			name:    "missing type",
			req:     &Request{Params: Params{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := EncodeRequest(&buf, tt.req)

			if (err != nil) != tt.wantErr {
				t.Errorf("EncodeRequest() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, buf.String())
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		checkFn func(t *testing.T, req *Request)
	}{
		{
			name:  "integers stay exact",
			input: `{"type":"get_track_info","params":{"track_index":9007199254740993}}`,
			checkFn: func(t *testing.T, req *Request) {
				n, ok := req.Params["track_index"].(json.Number)
				if !ok || n.String() != "9007199254740993" {
					t.Errorf("want exact json.Number, got %#v", req.Params["track_index"])
				}
			},
		},
		{
			name:  "missing params",
			input: `{"type":"get_session_info"}`,
			checkFn: func(t *testing.T, req *Request) {
				if req.Params == nil || len(req.Params) != 0 {
					t.Errorf("want empty params, got %#v", req.Params)
				}
			},
		},
		{
			name:  "null params",
			input: `{"type":"get_session_info","params":null}`,
			checkFn: func(t *testing.T, req *Request) {
				if len(req.Params) != 0 {
					t.Errorf("want empty params, got %#v", req.Params)
				}
			},
		},
		{
			name:  "empty type is still a request",
			input: `{"type":"","params":{}}`,
			checkFn: func(t *testing.T, req *Request) {
				if req.Type != "" {
					t.Errorf("want empty type, got %q", req.Type)
				}
			},
		},
		{name: "missing type", input: `{"params":{}}`, wantErr: true},
		{name: "params not an object", input: `{"type":"x","params":[1,2]}`, wantErr: true},
		{name: "invalid JSON", input: `{not json}`, wantErr: true},
		{name: "empty input", input: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeRequest() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if !errors.Is(err, ErrProtocol) {
					t.Errorf("want protocol error, got %v", err)
				}
				return
			}
			if tt.checkFn != nil {
				tt.checkFn(t, req)
			}
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		checkFn func(t *testing.T, resp *Response)
	}{
		{
			name:  "valid success response",
			input: `{"status":"success","result":{"ok":true}}`,
			checkFn: func(t *testing.T, resp *Response) {
				if !resp.OK() || string(resp.Result) != `{"ok":true}` {
					t.Errorf("unexpected response: %+v", resp)
				}
			},
		},
		{
			name:  "null result is still a result",
			input: `{"status":"success","result":null}`,
			checkFn: func(t *testing.T, resp *Response) {
				if string(resp.Result) != "null" {
					t.Errorf("want null result, got %s", resp.Result)
				}
			},
		},
		{
			name:  "valid error response",
			input: `{"status":"error","message":"out of range"}`,
			checkFn: func(t *testing.T, resp *Response) {
				if resp.OK() || resp.Message != "out of range" {
					t.Errorf("unexpected response: %+v", resp)
				}
			},
		},
		{name: "missing status field", input: `{"result":{}}`, wantErr: true},
		{name: "invalid status value", input: `{"status":"ok","result":{}}`, wantErr: true},
		{name: "error status without message", input: `{"status":"error"}`, wantErr: true},
		{name: "success without result", input: `{"status":"success"}`, wantErr: true},
		{name: "both result and message", input: `{"status":"success","result":1,"message":"x"}`, wantErr: true},
		{name: "error with result", input: `{"status":"error","message":"x","result":1}`, wantErr: true},
		{name: "invalid JSON", input: `{not json}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeResponse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, resp)
			}
		})
	}
}

func TestEncodeResponse(t *testing.T) {
	ok, err := Success(map[string]bool{"ok": true})
	if err != nil {
		t.Fatalf("Success: %v", err)
	}

	var buf bytes.Buffer
	if err := EncodeResponse(&buf, ok); err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if buf.String() != `{"status":"success","result":{"ok":true}}` {
		t.Errorf("unexpected encoding: %s", buf.String())
	}

	buf.Reset()
	if err := EncodeResponse(&buf, Failure("out of range")); err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if buf.String() != `{"status":"error","message":"out of range"}` {
		t.Errorf("unexpected encoding: %s", buf.String())
	}

	if err := EncodeResponse(&buf, &Response{Status: StatusError}); err == nil {
		t.Error("want error for envelope with no message")
	}
}

func TestSuccessNilResult(t *testing.T) {
	resp, err := Success(nil)
	if err != nil {
		t.Fatalf("Success: %v", err)
	}
	if string(resp.Result) != "null" {
		t.Errorf("want null result, got %s", resp.Result)
	}
}

func TestSuccessUnencodableResult(t *testing.T) {
	if _, err := Success(make(chan int)); err == nil {
		t.Error("want error for unencodable result")
	}
}

func TestFailureDefaultsMessage(t *testing.T) {
	if got := Failure("").Message; got != UnknownErrorMessage {
		t.Errorf("want %q, got %q", UnknownErrorMessage, got)
	}
}

func TestGreetingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeGreeting(&buf, "livebridge ready"); err != nil {
		t.Fatalf("EncodeGreeting: %v", err)
	}
	g, err := DecodeGreeting(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeGreeting: %v", err)
	}
	if g.Message != "livebridge ready" {
		t.Errorf("unexpected greeting: %+v", g)
	}

	if _, err := DecodeGreeting([]byte(`{"status":"success","result":1}`)); err == nil {
		t.Error("want error for non-greeting frame")
	}
}
