package swcache

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	c "github.com/ranksewa/swcache/codec"
)

// Entry codec names accepted by NewEntryCodec.
const (
	CodecJSON     = "json"
	CodecCBOR     = "cbor"
	CodecMsgpack  = "msgpack"
	CodecProtobuf = "protobuf"
)

// NewEntryCodec returns the named codec for entries. maxDecode > 0 refuses
// to decode payloads above that size (see codec.LimitCodec); such entries
// self-heal as "too_large".
func NewEntryCodec(name string, maxDecode int) (c.Codec[Entry], error) {
	var inner c.Codec[Entry]
	switch name {
	case "", CodecJSON:
		inner = c.JSON[Entry]{}
	case CodecCBOR:
		cb, err := c.NewCBOR[Entry](0)
		if err != nil {
			return nil, err
		}
		inner = cb
	case CodecMsgpack:
		inner = c.Msgpack[Entry]{}
	case CodecProtobuf:
		inner = protoEntryCodec{pb: c.NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })}
	default:
		return nil, fmt.Errorf("swcache: unknown entry codec %q", name)
	}
	if maxDecode > 0 {
		return c.LimitCodec[Entry]{Inner: inner, MaxDecode: maxDecode}, nil
	}
	return inner, nil
}

// protoEntryCodec stores an Entry as a google.protobuf.Struct, which keeps
// entries readable by any protobuf consumer without generated types.
type protoEntryCodec struct {
	pb c.Protobuf[*structpb.Struct]
}

func (p protoEntryCodec) Encode(e Entry) ([]byte, error) {
	hdr := make(map[string]any, len(e.Header))
	for k, vs := range e.Header {
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		hdr[k] = list
	}
	s, err := structpb.NewStruct(map[string]any{
		"key":       e.Key,
		"status":    e.Status,
		"header":    hdr,
		"body":      base64.StdEncoding.EncodeToString(e.Body),
		"stored_at": e.StoredAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	return p.pb.Encode(s)
}

func (p protoEntryCodec) Decode(b []byte) (Entry, error) {
	s, err := p.pb.Decode(b)
	if err != nil {
		return Entry{}, err
	}
	f := s.GetFields()
	e := Entry{
		Key:    f["key"].GetStringValue(),
		Status: int(f["status"].GetNumberValue()),
	}
	if hv := f["header"].GetStructValue(); hv != nil {
		e.Header = make(http.Header, len(hv.GetFields()))
		for k, v := range hv.GetFields() {
			for _, item := range v.GetListValue().GetValues() {
				e.Header[k] = append(e.Header[k], item.GetStringValue())
			}
		}
	}
	if e.Body, err = base64.StdEncoding.DecodeString(f["body"].GetStringValue()); err != nil {
		return Entry{}, fmt.Errorf("swcache: protobuf entry body: %w", err)
	}
	if ts := f["stored_at"].GetStringValue(); ts != "" {
		if e.StoredAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return Entry{}, fmt.Errorf("swcache: protobuf entry time: %w", err)
		}
	}
	return e, nil
}
