package logrus

import (
	"errors"
	"testing"

	"github.com/ranksewa/swcache"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestLoggerFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	boom := errors.New("boom")
	l.Error("install failed", swcache.Fields{"store": "ranksewa-v2", "err": boom})

	e := hook.LastEntry()
	if e == nil || e.Level != logrus.ErrorLevel || e.Message != "install failed" {
		t.Fatalf("entry = %+v", e)
	}
	if e.Data["component"] != "swcache" || e.Data["store"] != "ranksewa-v2" {
		t.Fatalf("data = %v", e.Data)
	}
	if e.Data[logrus.ErrorKey] != boom {
		t.Fatalf("error not under %q: %v", logrus.ErrorKey, e.Data)
	}
}
