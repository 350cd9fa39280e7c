package swcache

import (
	"context"
	"net/http"
	"testing"
	"time"
)

// TestEntryCodecsThroughStore stores and matches one entry with every codec.
func TestEntryCodecsThroughStore(t *testing.T) {
	ctx := context.Background()
	stored := time.Date(2026, 3, 1, 10, 30, 0, 123, time.UTC)
	in := Entry{
		Status:   200,
		Header:   http.Header{"Content-Type": {"text/html"}, "Vary": {"Accept", "Accept-Encoding"}},
		Body:     []byte("<h1>\x00binary-safe</h1>"),
		StoredAt: stored,
	}
	const k = "GET https://ranksewa.com/"

	for _, name := range []string{CodecJSON, CodecCBOR, CodecMsgpack, CodecProtobuf} {
		cd, err := NewEntryCodec(name, 0)
		if err != nil {
			t.Fatalf("%s: NewEntryCodec: %v", name, err)
		}
		s := newTestStorage(t, newMemProvider(), func(o *StorageOptions) { o.Codec = cd })
		st := mustOpen(t, s, "v")
		if err := st.Put(ctx, k, in); err != nil {
			t.Fatalf("%s: Put: %v", name, err)
		}
		got, ok, err := st.Match(ctx, k)
		if err != nil || !ok {
			t.Fatalf("%s: Match: ok=%v err=%v", name, ok, err)
		}
		if got.Key != k || got.Status != 200 || string(got.Body) != string(in.Body) {
			t.Fatalf("%s: got %+v", name, got)
		}
		if v := got.Header.Values("Vary"); len(v) != 2 || v[1] != "Accept-Encoding" {
			t.Fatalf("%s: Vary = %v", name, v)
		}
		if !got.StoredAt.Equal(stored) {
			t.Fatalf("%s: StoredAt = %v", name, got.StoredAt)
		}
	}
}

func TestEntryCodecUnknown(t *testing.T) {
	if _, err := NewEntryCodec("yaml", 0); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}

// TestEntryCodecDecodeLimit: an entry larger than the decode limit reads
// as a miss and is removed.
func TestEntryCodecDecodeLimit(t *testing.T) {
	ctx := context.Background()
	cd, err := NewEntryCodec(CodecJSON, 64)
	if err != nil {
		t.Fatalf("NewEntryCodec: %v", err)
	}
	h := &recHooks{}
	s := newTestStorage(t, newMemProvider(), func(o *StorageOptions) {
		o.Codec = cd
		o.Hooks = h
	})
	st := mustOpen(t, s, "v")
	big := Entry{Status: 200, Body: make([]byte, 256)}
	if err := st.Put(ctx, "GET https://x/big", big); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, _ := st.Match(ctx, "GET https://x/big"); ok {
		t.Fatalf("oversize payload should not decode")
	}
	if h.count("selfheal", "too_large") != 1 {
		t.Fatalf("too_large self-heal not reported")
	}
}
