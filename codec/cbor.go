package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR serializes values with fxamacker/cbor using core deterministic
// encoding (RFC 8949 4.2.1) and RFC3339Nano timestamps. Decoding rejects
// duplicate map keys, so a header map cannot be smuggled in twice.
// Construct with NewCBOR; the zero value panics on use.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

// NewCBOR builds the encode and decode modes. maxNested bounds the nesting
// depth accepted on decode; 0 keeps the library default.
func NewCBOR[V any](maxNested int) (CBOR[V], error) {
	eo := cbor.CoreDetEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	do := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}
	if maxNested > 0 {
		do.MaxNestedLevels = maxNested
	}
	dm, err := do.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
