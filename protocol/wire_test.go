package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/wippyai/wasm-offload/errors"
)

func TestEncodeEvent_WireShape(t *testing.T) {
	tests := []struct {
		event Event
		name  string
		want  string
	}{
		{Initialized{}, "initialized has no payload", `{"kind":"INITIALIZED"}`},
		{InitFailed{Reason: "resource exhausted"}, "init failed", `{"kind":"INIT_FAILED","payload":"resource exhausted"}`},
		{Result{ID: "r1", Payload: "Proof verified"}, "result", `{"kind":"RESULT","id":"r1","payload":"Proof verified"}`},
		{Result{ID: "r1"}, "empty result keeps payload", `{"kind":"RESULT","id":"r1","payload":""}`},
		{RunFailed{ID: "r2", Reason: "trap"}, "run failed", `{"kind":"RUN_FAILED","id":"r2","payload":"trap"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("wire = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestEncodeCommand_WireShape(t *testing.T) {
	data, err := EncodeCommand(Init{})
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	if string(data) != `{"kind":"INIT"}` {
		t.Errorf("INIT wire = %s", data)
	}

	data, err = EncodeCommand(Run{ID: "abc"})
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	if string(data) != `{"kind":"RUN","id":"abc"}` {
		t.Errorf("RUN wire = %s", data)
	}
}

func TestDecodeEvent_PreservesFields(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"kind":"RUN_FAILED","id":"x","payload":"boom\nStack: main.go:1"}`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	rf, ok := ev.(RunFailed)
	if !ok {
		t.Fatalf("got %T, want RunFailed", ev)
	}
	if rf.ID != "x" || rf.Reason != "boom\nStack: main.go:1" {
		t.Errorf("decoded %+v", rf)
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		command bool
	}{
		{"unknown kind", `{"kind":"EXPLODE"}`, true},
		{"event as command", `{"kind":"RESULT","payload":"x"}`, true},
		{"command as event", `{"kind":"RUN"}`, false},
		{"init with payload", `{"kind":"INIT","payload":"x"}`, true},
		{"init with id", `{"kind":"INIT","id":"x"}`, true},
		{"init failed without payload", `{"kind":"INIT_FAILED"}`, false},
		{"result without payload", `{"kind":"RESULT","id":"x"}`, false},
		{"initialized with payload", `{"kind":"INITIALIZED","payload":""}`, false},
		{"malformed json", `{"kind":`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.command {
				_, err = DecodeCommand([]byte(tt.data))
			} else {
				_, err = DecodeEvent([]byte(tt.data))
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.KindOf(err) != errors.KindInvalidData {
				t.Errorf("kind = %q, want invalid_data", errors.KindOf(err))
			}
		})
	}
}

func TestMessage_OmitsAbsentFields(t *testing.T) {
	msg, err := CommandMessage(Init{})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(msg)
	if strings.Contains(string(data), "payload") || strings.Contains(string(data), "id") {
		t.Errorf("INIT frame carries optional fields: %s", data)
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(Result{}) || !IsTerminal(RunFailed{}) {
		t.Error("RESULT and RUN_FAILED must be terminal")
	}
	if IsTerminal(Initialized{}) || IsTerminal(InitFailed{}) {
		t.Error("init events must not be terminal")
	}
}

func TestRequestID(t *testing.T) {
	if got := RequestID(Result{ID: "a"}); got != "a" {
		t.Errorf("RequestID(Result) = %q", got)
	}
	if got := RequestID(RunFailed{ID: "b"}); got != "b" {
		t.Errorf("RequestID(RunFailed) = %q", got)
	}
	if got := RequestID(Initialized{}); got != "" {
		t.Errorf("RequestID(Initialized) = %q", got)
	}
}
