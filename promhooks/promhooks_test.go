package promhooks

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ranksewa/swcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg)
	require.NoError(t, err)

	h.NetworkFallback(swcache.StrategyNetworkFirst, "/a", "cache")
	h.NetworkFallback(swcache.StrategyNetworkFirst, "/b", "cache")
	h.NetworkFallback(swcache.StrategyNavigate, "/", "offline")
	h.PutSkipped("ranksewa-v1", "GET https://x/", "too_large")
	h.PutFailed("ranksewa-v1", "GET https://x/", errors.New("quota"))
	h.StoreDeleted("ranksewa-v0")
	h.InstallFailed("ranksewa-v2", errors.New("404"))
	h.SelfHealEntry("entry:x", "corrupt")
	h.PushDropped("parse")

	assert.Equal(t, 2.0, testutil.ToFloat64(h.fallback.WithLabelValues("network-first", "cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.fallback.WithLabelValues("navigate", "offline")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.putSkipped.WithLabelValues("ranksewa-v1", "too_large")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.putFailed.WithLabelValues("ranksewa-v1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.storeDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.installFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.selfHeal.WithLabelValues("corrupt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.pushDropped.WithLabelValues("parse")))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
