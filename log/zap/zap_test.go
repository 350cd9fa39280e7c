package zap

import (
	"errors"
	"testing"

	"github.com/ranksewa/swcache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Warn("cache write failed", swcache.Fields{"store": "ranksewa-v1", "err": errors.New("quota")})
	l.Debug("no fields", nil)

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	e := entries[0]
	if e.LoggerName != "swcache" || e.Level != zapcore.WarnLevel {
		t.Fatalf("entry = %+v", e.Entry)
	}
	m := e.ContextMap()
	if m["store"] != "ranksewa-v1" || m["err"] != "quota" {
		t.Fatalf("context = %v", m)
	}
}
