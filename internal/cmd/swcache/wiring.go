package swcache

import (
	"context"
	"fmt"
	stdslog "log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ranksewa/swcache"
	gen "github.com/ranksewa/swcache/genstore"
	asynchook "github.com/ranksewa/swcache/hooks/async"
	"github.com/ranksewa/swcache/internal/conf"
	logruslog "github.com/ranksewa/swcache/log/logrus"
	slogadapter "github.com/ranksewa/swcache/log/slog"
	zaplog "github.com/ranksewa/swcache/log/zap"
	pr "github.com/ranksewa/swcache/provider"
	"github.com/ranksewa/swcache/provider/bigcache"
	"github.com/ranksewa/swcache/provider/memory"
	"github.com/ranksewa/swcache/provider/redis"
	"github.com/ranksewa/swcache/provider/ristretto"
	"github.com/ranksewa/swcache/promhooks"
	"github.com/ranksewa/swcache/sloghooks"
)

// newSlog builds the slog logger used by the slog backend and by the hook
// reporter, whatever the backend.
func newSlog(s conf.LogSettings) (*stdslog.Logger, error) {
	var level stdslog.Level
	if err := level.UnmarshalText([]byte(s.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &stdslog.HandlerOptions{Level: level}
	if s.Format == "json" {
		return stdslog.New(stdslog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return stdslog.New(stdslog.NewTextHandler(os.Stderr, opts)), nil
}

// newLogger returns the configured backend and a flush func.
func newLogger(s conf.LogSettings) (swcache.Logger, func(), error) {
	switch s.Backend {
	case "zap":
		level, err := zapcore.ParseLevel(s.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("log.level: %w", err)
		}
		zc := zap.NewProductionConfig()
		if s.Format != "json" {
			zc = zap.NewDevelopmentConfig()
		}
		zc.Level = zap.NewAtomicLevelAt(level)
		zl, err := zc.Build()
		if err != nil {
			return nil, nil, err
		}
		return zaplog.New(zl), func() { _ = zl.Sync() }, nil
	case "logrus":
		level, err := logrus.ParseLevel(s.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("log.level: %w", err)
		}
		ll := logrus.New()
		ll.SetLevel(level)
		if s.Format == "json" {
			ll.SetFormatter(&logrus.JSONFormatter{})
		}
		return logruslog.New(ll), func() {}, nil
	default:
		sl, err := newSlog(s)
		if err != nil {
			return nil, nil, err
		}
		return slogadapter.New(sl), func() {}, nil
	}
}

// newProvider returns the byte store and, for redis with shared_gen, a
// generation store on the same client.
func newProvider(ctx context.Context, s conf.StorageSettings) (pr.Provider, gen.GenStore, error) {
	switch s.Provider {
	case "bigcache":
		p, err := bigcache.New(ctx, bigcache.Config{
			LifeWindow:         s.Bigcache.LifeWindow.Std(),
			Shards:             s.Bigcache.Shards,
			HardMaxCacheSizeMB: s.Bigcache.HardMaxCacheSizeMB,
		})
		return p, nil, err
	case "ristretto":
		p, err := ristretto.New(ristretto.Config{
			NumCounters: s.Ristretto.NumCounters,
			MaxCost:     s.Ristretto.MaxCost,
			BufferItems: 64,
			SyncWrites:  true,
		})
		return p, nil, err
	case "redis":
		p, err := redis.Dial(ctx, &goredis.Options{
			Addr:     s.Redis.Addr,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		if !s.Redis.SharedGen {
			return p, nil, nil
		}
		return p, gen.NewRedisGenStoreWithTTL(p.Client(), s.Namespace, s.Redis.GenTTL.Std()), nil
	default:
		return memory.New(memory.Config{
			DefaultExpiration: s.EntryTTL.Std(),
			CleanupInterval:   time.Minute,
		}), nil, nil
	}
}

// hookSet is the hooks chain plus what must be closed with it.
type hookSet struct {
	swcache.Hooks
	async *asynchook.Hooks
}

func (h hookSet) Close() {
	if h.async != nil {
		h.async.Close()
	}
}

func newHooks(s *conf.Settings, sl *stdslog.Logger, reg *prometheus.Registry) (hookSet, error) {
	hs := []swcache.Hooks{sloghooks.New(sl, sloghooks.Options{
		SelfHealEvery: s.Hooks.SampleEvery,
		FallbackEvery: s.Hooks.SampleEvery,
	})}
	if s.Hooks.Metrics && reg != nil {
		ph, err := promhooks.New(reg)
		if err != nil {
			return hookSet{}, err
		}
		hs = append(hs, ph)
	}
	chain := swcache.MultiHooks(hs...)
	if !s.Hooks.Async {
		return hookSet{Hooks: chain}, nil
	}
	a := asynchook.New(chain, 1, s.Hooks.QueueLen)
	return hookSet{Hooks: a, async: a}, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// env is everything a subcommand needs, built from settings.
type env struct {
	settings *conf.Settings
	log      swcache.Logger
	flush    func()
	hooks    hookSet
	metrics  *prometheus.Registry
	storage  *swcache.Storage
}

func newEnv(ctx context.Context, s *conf.Settings) (*env, error) {
	log, flush, err := newLogger(s.Log)
	if err != nil {
		return nil, err
	}
	sl, err := newSlog(s.Log)
	if err != nil {
		return nil, err
	}
	metrics := newRegistry()
	hooks, err := newHooks(s, sl, metrics)
	if err != nil {
		return nil, err
	}
	codec, err := swcache.NewEntryCodec(s.Storage.Codec, s.Storage.MaxDecode)
	if err != nil {
		hooks.Close()
		return nil, err
	}
	provider, genStore, err := newProvider(ctx, s.Storage)
	if err != nil {
		hooks.Close()
		return nil, err
	}
	storage, err := swcache.NewStorage(swcache.StorageOptions{
		Namespace: s.Storage.Namespace,
		Provider:  provider,
		Codec:     codec,
		GenStore:  genStore,
		Logger:    log,
		Hooks:     hooks,
		EntryTTL:  s.Storage.EntryTTL.Std(),
	})
	if err != nil {
		_ = provider.Close(ctx)
		hooks.Close()
		return nil, err
	}
	return &env{settings: s, log: log, flush: flush, hooks: hooks, metrics: metrics, storage: storage}, nil
}

func (e *env) Close(ctx context.Context) {
	if err := e.storage.Close(ctx); err != nil {
		e.log.Warn("storage close", swcache.Fields{"err": err})
	}
	e.hooks.Close()
	e.flush()
}
