package domain

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Text is user-supplied byte content (titles, proposals, comments). It is
// stored as raw bytes. See EncodeTextJSON for the wire form.
type Text []byte

// MarshalJSON implements json.Marshaler.
func (t Text) MarshalJSON() ([]byte, error) {
	return EncodeTextJSON(t)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	v, err := DecodeTextJSON(b)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// textEnvelope carries content that is not valid UTF-8.
type textEnvelope struct {
	Base64 string `json:"base64"`
}

// EncodeTextJSON renders b as a JSON string when it is valid UTF-8, and as
// {"base64": "..."} otherwise. Both forms decode back to the exact bytes.
func EncodeTextJSON(b []byte) ([]byte, error) {
	if utf8.Valid(b) {
		return json.Marshal(string(b))
	}
	return json.Marshal(textEnvelope{Base64: base64.StdEncoding.EncodeToString(b)})
}

// DecodeTextJSON accepts either form written by EncodeTextJSON.
func DecodeTextJSON(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var env textEnvelope
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&env); err != nil {
			return nil, fmt.Errorf("text: %w", err)
		}
		b, err := base64.StdEncoding.DecodeString(env.Base64)
		if err != nil {
			return nil, fmt.Errorf("text: %w", err)
		}
		return b, nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return []byte(s), nil
}
