package codec

import (
	"bytes"
	"encoding/json"
)

// JSON is the default codec. encoding/json sorts map keys, so header maps
// encode deterministically; []byte bodies travel as base64. Keys and header
// values are written without HTML escaping.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
