package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is an opaque structured value whose encoding is JSON. Tool inputs
// and results travel as Payloads so that only the emission and rendering
// boundaries ever touch the encoded form.
type Payload struct {
	raw string
}

// EncodePayload marshals v. A json.RawMessage or Payload is taken as already encoded.
func EncodePayload(v any) (Payload, error) {
	switch tv := v.(type) {
	case Payload:
		return tv, nil
	case json.RawMessage:
		if !json.Valid(tv) {
			return Payload{}, fmt.Errorf("domain.EncodePayload: raw message is not valid JSON")
		}
		return Payload{raw: string(tv)}, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("domain.EncodePayload: %w", err)
	}
	return Payload{raw: string(b)}, nil
}

// RawPayload wraps an encoded value read back from a store. It is not validated.
func RawPayload(s string) Payload {
	return Payload{raw: s}
}

// String returns the encoded form.
func (p Payload) String() string { return p.raw }

// IsZero reports whether the payload holds nothing at all.
func (p Payload) IsZero() bool { return p.raw == "" }

// Valid reports whether the payload is well-formed JSON.
func (p Payload) Valid() bool { return json.Valid([]byte(p.raw)) }

// Decode unmarshals the payload into v.
func (p Payload) Decode(v any) error {
	if err := json.Unmarshal([]byte(p.raw), v); err != nil {
		return fmt.Errorf("domain.Payload.Decode: %w", err)
	}
	return nil
}

// Pretty returns the payload indented by two spaces. ok is false when the
// payload is not valid JSON, in which case callers should show String().
func (p Payload) Pretty() (string, bool) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(p.raw), "", "  "); err != nil {
		return "", false
	}
	return buf.String(), true
}
