package signaling

import (
	"encoding/json"
	"errors"
)

// errFieldAbsent distinguishes "the field was not sent" from "the field was
// sent but failed to unmarshal" so callers can reply with a precise
// missing-field vs. invalid-field message.
var errFieldAbsent = errors.New("field absent")

// envelope is the generic wire shape every inbound frame is decoded into.
// The protocol's only hard requirement is a `type` field (spec.md §6); every
// other field is message-specific, so raw is kept around for handlers that
// need to read an optional field or re-forward the frame verbatim (offer/
// answer/candidate relay, ice relay).
type envelope struct {
	Type string
	raw  map[string]json.RawMessage
}

func decodeEnvelope(data []byte) (envelope, error) {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return envelope{}, err
	}
	var typ string
	if t, ok := raw["type"]; ok {
		_ = json.Unmarshal(t, &typ)
	}
	return envelope{Type: typ, raw: raw}, nil
}

func (e envelope) str(field string) string {
	raw, ok := e.raw[field]
	if !ok {
		return ""
	}
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

func (e envelope) has(field string) bool {
	_, ok := e.raw[field]
	return ok
}

func (e envelope) decode(field string, out any) error {
	raw, ok := e.raw[field]
	if !ok {
		return errFieldAbsent
	}
	return json.Unmarshal(raw, out)
}

// withFrom returns a copy of the original frame's fields plus a "from"
// field, used by the legacy offer/answer/candidate relay which forwards the
// message as-is with the sender annotated (spec.md §4.4).
func (e envelope) withFrom(from string) map[string]any {
	out := map[string]any{}
	for k, v := range e.raw {
		var decoded any
		_ = json.Unmarshal(v, &decoded)
		out[k] = decoded
	}
	out["from"] = from
	delete(out, "to")
	return out
}

func errMsg(message string) map[string]any {
	return map[string]any{"type": "error", "message": message}
}
