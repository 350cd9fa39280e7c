package swcache

import "time"

const (
	defaultPrefix        = "ranksewa-static"
	defaultOfflinePath   = "/"
	defaultMaxEntryBytes = 8 << 20
	defaultGenRetention  = 30 * 24 * time.Hour
	defaultSweep         = time.Hour

	// offlineBody is the synthesized response when network and cache both miss.
	offlineBody = "Offline"
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
