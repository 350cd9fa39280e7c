package codec

import "google.golang.org/protobuf/proto"

var (
	pbMarshal   = proto.MarshalOptions{Deterministic: true}
	pbUnmarshal = proto.UnmarshalOptions{DiscardUnknown: true}
)

// Protobuf serializes a proto.Message. Fields added by newer writers are
// dropped on decode. ctor must return a fresh, non-nil message per call.
type Protobuf[T proto.Message] struct {
	new func() T
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) { return pbMarshal.Marshal(v) }

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := pbUnmarshal.Unmarshal(b, m)
	return m, err
}
