package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Extensions is an open mapping of feed fields in document order.
// Values are loosely typed: string, json.Number, bool, nil, []any, or
// a nested *Extensions for object values. Unknown future fields pass
// through it without loss.
type Extensions struct {
	keys   []string
	values map[string]any
}

func newExtensions() *Extensions {
	return &Extensions{values: make(map[string]any)}
}

func (e *Extensions) set(key string, value any) {
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

// Get returns the raw value for key.
func (e *Extensions) Get(key string) (any, bool) {
	v, ok := e.values[key]
	return v, ok
}

// GetString returns the value for key if it is a string.
func (e *Extensions) GetString(key string) (string, bool) {
	v, ok := e.values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Has reports whether key is present.
func (e *Extensions) Has(key string) bool {
	_, ok := e.values[key]
	return ok
}

// Keys returns all keys in document order.
func (e *Extensions) Keys() []string {
	out := make([]string, len(e.keys))
	copy(out, e.keys)
	return out
}

// Len returns the number of fields.
func (e *Extensions) Len() int {
	return len(e.keys)
}

// MarshalJSON renders the mapping preserving document order.
func (e *Extensions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(e.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// parseExtensions walks the raw payload token by token so every field
// is captured regardless of what the typed schema understands.
func parseExtensions(raw []byte) (*Extensions, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, fmt.Errorf("feed document is not an object")
	}

	ext, err := decodeObject(dec)
	if err != nil {
		return nil, err
	}

	// Anything after the closing brace is garbage.
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after feed document")
	}

	return ext, nil
}

// decodeObject consumes object members up to and including the closing
// brace. The opening brace has already been read.
func decodeObject(dec *json.Decoder) (*Extensions, error) {
	ext := newExtensions()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is not a string: %v", keyTok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		ext.set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return ext, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		// string, json.Number, bool or nil
		return tok, nil
	}
	switch delim {
	case '{':
		return decodeObject(dec)
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}
