package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestDecodeClassifiesMessages(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  MessageType
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, MessageTypeRequest},
		{"request with params", `{"jsonrpc":"2.0","id":"a","method":"tools/call","params":{"name":"x"}}`, MessageTypeRequest},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, MessageTypeNotification},
		{"result response", `{"jsonrpc":"2.0","id":1,"result":{}}`, MessageTypeResponse},
		{"error response", `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"nope"}}`, MessageTypeResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.frame))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got := msg.Type(); got != tc.want {
				t.Fatalf("Type() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeRejectsInvalidMessages(t *testing.T) {
	cases := []struct {
		name  string
		frame string
	}{
		{"not json", `{"jsonrpc":"2.0",`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"missing version", `{"id":1,"method":"ping"}`},
		{"request with result", `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`},
		{"response with result and error", `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`},
		{"response with neither", `{"jsonrpc":"2.0","id":1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode([]byte(tc.frame)); err == nil {
				t.Fatalf("Decode accepted invalid frame %s", tc.frame)
			}
		})
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		wire string
	}{
		{"string", `"abc-123"`},
		{"integer", `42`},
		{"fraction", `1.5`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var id RequestID
			if err := json.Unmarshal([]byte(tc.wire), &id); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			out, err := json.Marshal(&id)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(out) != tc.wire {
				t.Fatalf("round trip = %s, want %s", out, tc.wire)
			}
		})
	}
}

func TestRequestIDRejectsNonScalar(t *testing.T) {
	var id RequestID
	if err := json.Unmarshal([]byte(`{"nested":true}`), &id); err == nil {
		t.Fatal("expected error for object id")
	}
}

func TestNilRequestIDMarshalsAsNull(t *testing.T) {
	var id *RequestID
	out, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "null" {
		t.Fatalf("marshal = %s, want null", out)
	}
}

func TestRecoverRequestID(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  string
	}{
		{"id present in malformed request", `{"id":7,"method":42}`, "7"},
		{"string id", `{"id":"abc","jsonrpc":"1.0"}`, "abc"},
		{"no id", `{"method":"ping"}`, ""},
		{"unparseable", `{{{`, ""},
		{"object id", `{"id":{"a":1}}`, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := RecoverRequestID([]byte(tc.frame))
			if tc.want == "" {
				if id != nil {
					t.Fatalf("RecoverRequestID = %v, want nil", id)
				}
				return
			}
			if id == nil || id.String() != tc.want {
				t.Fatalf("RecoverRequestID = %v, want %s", id, tc.want)
			}
		})
	}
}

func TestNewRequestMarshalsParams(t *testing.T) {
	req, err := NewRequest(NewRequestID(1), "tools/call", map[string]any{"name": "echo"})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	msg, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Type() != MessageTypeRequest {
		t.Fatalf("Type() = %q, want request", msg.Type())
	}
	if msg.Method != "tools/call" {
		t.Fatalf("Method = %q", msg.Method)
	}
}
