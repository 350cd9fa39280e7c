// Package promhooks counts swcache hook events with Prometheus counters.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ranksewa/swcache"
)

type Hooks struct {
	selfHeal      *prometheus.CounterVec
	putFailed     *prometheus.CounterVec
	putSkipped    *prometheus.CounterVec
	storeDeleted  prometheus.Counter
	installFailed prometheus.Counter
	fallback      *prometheus.CounterVec
	pushDropped   *prometheus.CounterVec
}

var _ swcache.Hooks = (*Hooks)(nil)

// New registers the counters with reg. Labels stay low-cardinality: store
// names and reasons, never request keys or paths.
func New(reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swcache",
			Name:      "self_heal_total",
			Help:      "Entries dropped on read, by reason.",
		}, []string{"reason"}),
		putFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swcache",
			Name:      "put_failed_total",
			Help:      "Best-effort cache writes that failed.",
		}, []string{"store"}),
		putSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swcache",
			Name:      "put_skipped_total",
			Help:      "Cache writes not attempted or not admitted, by reason.",
		}, []string{"store", "reason"}),
		storeDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swcache",
			Name:      "store_deleted_total",
			Help:      "Cache stores removed.",
		}),
		installFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swcache",
			Name:      "install_failed_total",
			Help:      "Worker versions discarded during install.",
		}),
		fallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swcache",
			Name:      "network_fallback_total",
			Help:      "Responses served without the network, by strategy and source.",
		}, []string{"strategy", "source"}),
		pushDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swcache",
			Name:      "push_dropped_total",
			Help:      "Push events ignored, by reason.",
		}, []string{"reason"}),
	}
	for _, c := range []prometheus.Collector{
		h.selfHeal, h.putFailed, h.putSkipped, h.storeDeleted,
		h.installFailed, h.fallback, h.pushDropped,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) SelfHealEntry(_, reason string) { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) PutFailed(store, _ string, _ error) {
	h.putFailed.WithLabelValues(store).Inc()
}
func (h *Hooks) PutSkipped(store, _, reason string) {
	h.putSkipped.WithLabelValues(store, reason).Inc()
}
func (h *Hooks) StoreDeleted(string)         { h.storeDeleted.Inc() }
func (h *Hooks) InstallFailed(string, error) { h.installFailed.Inc() }
func (h *Hooks) PushDropped(reason string)   { h.pushDropped.WithLabelValues(reason).Inc() }
func (h *Hooks) NetworkFallback(st swcache.Strategy, _, source string) {
	h.fallback.WithLabelValues(string(st), source).Inc()
}
