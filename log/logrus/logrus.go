// Package logrus adapts a *logrus.Entry to swcache.Logger.
package logrus

import (
	"github.com/ranksewa/swcache"
	"github.com/sirupsen/logrus"
)

var _ swcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every line with component=swcache.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "swcache")}
}

func (l Logger) Debug(msg string, f swcache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f swcache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f swcache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f swcache.Fields) { l.with(f).Error(msg) }

// with files an "err" field under logrus.ErrorKey so formatters render it
// like any other WithError call.
func (l Logger) with(f swcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
