package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/wippyai/wasm-offload/errors"
)

// Message is the wire frame for both directions.
type Message struct {
	Kind    Kind    `json:"kind"`
	ID      string  `json:"id,omitempty"`
	Payload *string `json:"payload,omitempty"`
}

func payload(s string) *string { return &s }

// CommandMessage converts a command to its wire frame.
func CommandMessage(c Command) (Message, error) {
	switch v := c.(type) {
	case Init:
		return Message{Kind: KindInit}, nil
	case Run:
		return Message{Kind: KindRun, ID: v.ID}, nil
	default:
		return Message{}, errors.InvalidInput(errors.PhaseProtocol, fmt.Sprintf("unknown command %T", c))
	}
}

// EventMessage converts an event to its wire frame.
func EventMessage(e Event) (Message, error) {
	switch v := e.(type) {
	case Initialized:
		return Message{Kind: KindInitialized}, nil
	case InitFailed:
		return Message{Kind: KindInitFailed, Payload: payload(v.Reason)}, nil
	case Result:
		return Message{Kind: KindResult, ID: v.ID, Payload: payload(v.Payload)}, nil
	case RunFailed:
		return Message{Kind: KindRunFailed, ID: v.ID, Payload: payload(v.Reason)}, nil
	default:
		return Message{}, errors.InvalidInput(errors.PhaseProtocol, fmt.Sprintf("unknown event %T", e))
	}
}

// Command converts a wire frame back to a command.
func (m Message) Command() (Command, error) {
	switch m.Kind {
	case KindInit:
		if err := m.expect(false, false); err != nil {
			return nil, err
		}
		return Init{}, nil
	case KindRun:
		if err := m.expect(false, true); err != nil {
			return nil, err
		}
		return Run{ID: m.ID}, nil
	case KindInitialized, KindInitFailed, KindResult, KindRunFailed:
		return nil, errors.InvalidData(errors.PhaseProtocol, fmt.Sprintf("%s is an event, not a command", m.Kind))
	default:
		return nil, errors.InvalidData(errors.PhaseProtocol, fmt.Sprintf("unknown message kind %q", m.Kind))
	}
}

// Event converts a wire frame back to an event.
func (m Message) Event() (Event, error) {
	switch m.Kind {
	case KindInitialized:
		if err := m.expect(false, false); err != nil {
			return nil, err
		}
		return Initialized{}, nil
	case KindInitFailed:
		if err := m.expect(true, false); err != nil {
			return nil, err
		}
		return InitFailed{Reason: *m.Payload}, nil
	case KindResult:
		if err := m.expect(true, true); err != nil {
			return nil, err
		}
		return Result{ID: m.ID, Payload: *m.Payload}, nil
	case KindRunFailed:
		if err := m.expect(true, true); err != nil {
			return nil, err
		}
		return RunFailed{ID: m.ID, Reason: *m.Payload}, nil
	case KindInit, KindRun:
		return nil, errors.InvalidData(errors.PhaseProtocol, fmt.Sprintf("%s is a command, not an event", m.Kind))
	default:
		return nil, errors.InvalidData(errors.PhaseProtocol, fmt.Sprintf("unknown message kind %q", m.Kind))
	}
}

// expect validates the presence of payload and id for the frame's kind.
// An id is optional on kinds that carry one.
func (m Message) expect(wantPayload, allowID bool) error {
	if wantPayload && m.Payload == nil {
		return errors.InvalidData(errors.PhaseProtocol, fmt.Sprintf("%s requires a payload", m.Kind))
	}
	if !wantPayload && m.Payload != nil {
		return errors.InvalidData(errors.PhaseProtocol, fmt.Sprintf("%s carries no payload", m.Kind))
	}
	if !allowID && m.ID != "" {
		return errors.InvalidData(errors.PhaseProtocol, fmt.Sprintf("%s carries no id", m.Kind))
	}
	return nil
}

// EncodeCommand serializes a command into a wire frame.
func EncodeCommand(c Command) ([]byte, error) {
	msg, err := CommandMessage(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// DecodeCommand parses a wire frame into a command.
func DecodeCommand(data []byte) (Command, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(errors.PhaseProtocol, errors.KindInvalidData, err, "decode command")
	}
	return msg.Command()
}

// EncodeEvent serializes an event into a wire frame.
func EncodeEvent(e Event) ([]byte, error) {
	msg, err := EventMessage(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// DecodeEvent parses a wire frame into an event.
func DecodeEvent(data []byte) (Event, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(errors.PhaseProtocol, errors.KindInvalidData, err, "decode event")
	}
	return msg.Event()
}
