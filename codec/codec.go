// Package codec turns cached entries into bytes for a provider and back.
//
// Every codec here encodes deterministically: the same entry always yields
// the same bytes, so replicas sharing a Redis provider write identical
// payloads for identical responses.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
