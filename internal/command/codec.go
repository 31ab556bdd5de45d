package command

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/pacer/internal/domain"
)

// Decode parses one wire message into its typed command and validates it.
// Unknown types and unknown fields are rejected.
func Decode(data []byte) (Command, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, domain.NewInvalidInput("command", fmt.Sprintf("malformed command: %v", err))
	}

	cmd, err := newCommand(head.Type)
	if err != nil {
		return nil, err
	}
	if err := decodeStrict(data, cmd); err != nil {
		return nil, domain.NewInvalidInput(string(head.Type), err.Error())
	}

	// newCommand returns a pointer; commands are passed by value.
	out := deref(cmd)
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode renders a command in wire form.
func Encode(cmd Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(cmd.Type())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func newCommand(t Type) (any, error) {
	switch t {
	case TypeStartSession:
		return &StartSession{}, nil
	case TypeEndSession:
		return &EndSession{}, nil
	case TypeAppendEvent:
		return &AppendEvent{}, nil
	case TypeAppendPreset:
		return &AppendPreset{}, nil
	case TypeDeleteEvent:
		return &DeleteEvent{}, nil
	case TypeReplaceEvent:
		return &ReplaceEvent{}, nil
	case TypeCurrentState:
		return &CurrentState{}, nil
	case TypeSyncStatus:
		return &SyncStatus{}, nil
	case TypeTriggerSync:
		return &TriggerSync{}, nil
	case "":
		return nil, domain.NewInvalidInput("type", "command type is required")
	default:
		return nil, domain.NewInvalidInput("type", fmt.Sprintf("unknown command type %q", t))
	}
}

func deref(v any) Command {
	switch c := v.(type) {
	case *StartSession:
		return *c
	case *EndSession:
		return *c
	case *AppendEvent:
		return *c
	case *AppendPreset:
		return *c
	case *DeleteEvent:
		return *c
	case *ReplaceEvent:
		return *c
	case *CurrentState:
		return *c
	case *SyncStatus:
		return *c
	case *TriggerSync:
		return *c
	default:
		panic(fmt.Sprintf("command: unhandled %T", v))
	}
}

// decodeStrict decodes data into v, ignoring the discriminator but
// rejecting any other field v does not declare.
func decodeStrict(data []byte, v any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	delete(fields, "type")
	rest, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(rest))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
