// Package zap adapts a *zap.Logger to swcache.Logger.
package zap

import (
	"sort"

	"github.com/ranksewa/swcache"
	"go.uber.org/zap"
)

var _ swcache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names l "swcache" so worker lines can be filtered from the host's.
func New(l *zap.Logger) Logger { return Logger{L: l.Named("swcache")} }

func (z Logger) Debug(msg string, f swcache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f swcache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f swcache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f swcache.Fields) { z.L.Error(msg, fields(f)...) }

// fields emits keys in sorted order; errors become zap.NamedError.
func fields(f swcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
