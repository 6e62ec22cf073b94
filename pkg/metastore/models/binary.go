package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Binary is a byte slice stored inside JSON columns. Databases written by the
// Node.js emulator hold binary values either as a serialized Buffer
// ({"type":"Buffer","data":[...]}) or as a plain object with numeric keys;
// this type restores both forms as well as base64 strings and byte arrays.
type Binary []byte

// MarshalJSON writes the serialized-Buffer form for compatibility with
// existing databases.
func (b Binary) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	data := make([]int, len(b))
	for i, v := range b {
		data[i] = int(v)
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Data []int  `json:"data"`
	}{Type: "Buffer", Data: data})
}

// UnmarshalJSON restores any of the accepted binary encodings.
func (b *Binary) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*b = nil
		return nil

	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("invalid base64 binary value: %w", err)
		}
		*b = decoded
		return nil

	case []any:
		return b.fromNumbers(v)

	case map[string]any:
		// Serialized Buffer: {"type":"Buffer","data":[...]}
		if t, ok := v["type"].(string); ok && t == "Buffer" {
			data, ok := v["data"].([]any)
			if !ok {
				return fmt.Errorf("serialized Buffer is missing its data array")
			}
			return b.fromNumbers(data)
		}
		// Plain object with numeric keys: {"0":104,"1":105,...}
		return b.fromNumericKeys(v)

	default:
		return fmt.Errorf("unsupported binary encoding %T", raw)
	}
}

func (b *Binary) fromNumbers(values []any) error {
	out := make(Binary, len(values))
	for i, v := range values {
		n, ok := v.(float64)
		if !ok || n < 0 || n > 255 {
			return fmt.Errorf("invalid byte value %v at index %d", v, i)
		}
		out[i] = byte(n)
	}
	*b = out
	return nil
}

func (b *Binary) fromNumericKeys(values map[string]any) error {
	out := make(Binary, len(values))
	for key, v := range values {
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(values) {
			return fmt.Errorf("invalid numeric key %q in binary value", key)
		}
		n, ok := v.(float64)
		if !ok || n < 0 || n > 255 {
			return fmt.Errorf("invalid byte value %v at key %q", v, key)
		}
		out[i] = byte(n)
	}
	*b = out
	return nil
}
