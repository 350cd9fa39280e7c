package sloghooks

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newBuf() (*bytes.Buffer, *slog.Logger) {
	var buf bytes.Buffer
	return &buf, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestRedactsKeys(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{})
	h.PutSkipped("ranksewa-v1", "GET https://ranksewa.com/profile?token=secret", "too_large")

	out := buf.String()
	if strings.Contains(out, "secret") {
		t.Fatalf("request key leaked: %s", out)
	}
	if !strings.Contains(out, "swcache.put_skipped") || !strings.Contains(out, "reason=too_large") {
		t.Fatalf("unexpected line: %s", out)
	}
}

func TestCustomRedact(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{Redact: func(string) string { return "X" }})
	h.SelfHealEntry("entry:site:v:abc", "corrupt")
	if !strings.Contains(buf.String(), "key=X") {
		t.Fatalf("custom redactor not used: %s", buf.String())
	}
}

func TestSampling(t *testing.T) {
	buf, l := newBuf()
	h := New(l, Options{FallbackEvery: 3})
	for i := 0; i < 9; i++ {
		h.NetworkFallback("network-first", "/", "cache")
	}
	if n := strings.Count(buf.String(), "swcache.network_fallback"); n != 3 {
		t.Fatalf("logged %d of 9 with 1-in-3 sampling", n)
	}
}

func TestNilLogger(t *testing.T) {
	h := New(nil, Options{})
	h.StoreDeleted("x")
	h.PushDropped("parse")
}
