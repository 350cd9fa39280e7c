// Package conf loads the settings of the swcache binary from an optional
// YAML file and SWCACHE_* environment variables.
package conf

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ranksewa/swcache"
)

const (
	ProfileCacheFirst   = "cache-first"
	ProfileNetworkFirst = "network-first"
)

type Settings struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	// Origin is the public origin the worker controls.
	Origin string `mapstructure:"origin" yaml:"origin"`

	// Upstream is where misses and network-first requests are sent.
	Upstream        string   `mapstructure:"upstream" yaml:"upstream"`
	UpstreamTimeout Duration `mapstructure:"upstream_timeout" yaml:"upstream_timeout"`

	Worker  WorkerSettings  `mapstructure:"worker" yaml:"worker"`
	Storage StorageSettings `mapstructure:"storage" yaml:"storage"`
	Log     LogSettings     `mapstructure:"log" yaml:"log"`
	Hooks   HookSettings    `mapstructure:"hooks" yaml:"hooks"`
	Push    PushSettings    `mapstructure:"push" yaml:"push"`
}

// WorkerSettings override the chosen profile; empty values keep the
// profile's.
type WorkerSettings struct {
	Profile            string   `mapstructure:"profile" yaml:"profile"`
	Prefix             string   `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Version            string   `mapstructure:"version" yaml:"version,omitempty"`
	Precache           []string `mapstructure:"precache" yaml:"precache,omitempty"`
	AlwaysFresh        []string `mapstructure:"always_fresh" yaml:"always_fresh,omitempty"`
	AlwaysNetwork      []string `mapstructure:"always_network" yaml:"always_network,omitempty"`
	DefaultStrategy    string   `mapstructure:"default_strategy" yaml:"default_strategy,omitempty"`
	NavigateFallback   string   `mapstructure:"navigate_fallback" yaml:"navigate_fallback,omitempty"` // empty keeps the profile's
	OfflinePath        string   `mapstructure:"offline_path" yaml:"offline_path,omitempty"`
	StaticPrefixes     []string `mapstructure:"static_prefixes" yaml:"static_prefixes,omitempty"`
	MaxEntryBytes      int64    `mapstructure:"max_entry_bytes" yaml:"max_entry_bytes"`
	InstallConcurrency int      `mapstructure:"install_concurrency" yaml:"install_concurrency"`
}

type StorageSettings struct {
	Provider  string   `mapstructure:"provider" yaml:"provider"` // memory | bigcache | ristretto | redis
	Namespace string   `mapstructure:"namespace" yaml:"namespace"`
	Codec     string   `mapstructure:"codec" yaml:"codec"` // json | cbor | msgpack | protobuf
	MaxDecode int      `mapstructure:"max_decode" yaml:"max_decode"`
	EntryTTL  Duration `mapstructure:"entry_ttl" yaml:"entry_ttl"`

	Bigcache  BigcacheSettings  `mapstructure:"bigcache" yaml:"bigcache"`
	Ristretto RistrettoSettings `mapstructure:"ristretto" yaml:"ristretto"`
	Redis     RedisSettings     `mapstructure:"redis" yaml:"redis"`
}

type BigcacheSettings struct {
	LifeWindow         Duration `mapstructure:"life_window" yaml:"life_window"`
	Shards             int      `mapstructure:"shards" yaml:"shards"`
	HardMaxCacheSizeMB int      `mapstructure:"hard_max_cache_size_mb" yaml:"hard_max_cache_size_mb"`
}

type RistrettoSettings struct {
	NumCounters int64 `mapstructure:"num_counters" yaml:"num_counters"`
	MaxCost     int64 `mapstructure:"max_cost" yaml:"max_cost"`
}

type RedisSettings struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"-"`
	DB       int    `mapstructure:"db" yaml:"db"`

	// SharedGen keeps store generations in Redis too, for several replicas.
	SharedGen bool     `mapstructure:"shared_gen" yaml:"shared_gen"`
	GenTTL    Duration `mapstructure:"gen_ttl" yaml:"gen_ttl"`
}

type LogSettings struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // zap | logrus | slog
	Level   string `mapstructure:"level" yaml:"level"`
	Format  string `mapstructure:"format" yaml:"format"` // json | text
}

type HookSettings struct {
	Async       bool   `mapstructure:"async" yaml:"async"`
	QueueLen    int    `mapstructure:"queue_len" yaml:"queue_len"`
	SampleEvery uint64 `mapstructure:"sample_every" yaml:"sample_every"`
	Metrics     bool   `mapstructure:"metrics" yaml:"metrics"`
}

type PushSettings struct {
	NotificationTTL Duration `mapstructure:"notification_ttl" yaml:"notification_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("origin", "http://localhost:8080")
	v.SetDefault("upstream", "http://localhost:5000")
	v.SetDefault("upstream_timeout", "30s")

	v.SetDefault("worker.profile", ProfileCacheFirst)
	v.SetDefault("worker.prefix", "")
	v.SetDefault("worker.version", "")
	v.SetDefault("worker.precache", []string{})
	v.SetDefault("worker.always_fresh", []string{})
	v.SetDefault("worker.always_network", []string{})
	v.SetDefault("worker.default_strategy", "")
	v.SetDefault("worker.navigate_fallback", "")
	v.SetDefault("worker.offline_path", "")
	v.SetDefault("worker.static_prefixes", []string{})
	v.SetDefault("worker.max_entry_bytes", 8<<20)
	v.SetDefault("worker.install_concurrency", 4)

	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.namespace", "ranksewa")
	v.SetDefault("storage.codec", swcache.CodecJSON)
	v.SetDefault("storage.max_decode", 0)
	v.SetDefault("storage.entry_ttl", "0s")
	v.SetDefault("storage.bigcache.life_window", "24h")
	v.SetDefault("storage.bigcache.shards", 256)
	v.SetDefault("storage.bigcache.hard_max_cache_size_mb", 256)
	v.SetDefault("storage.ristretto.num_counters", 100_000)
	v.SetDefault("storage.ristretto.max_cost", 256<<20)
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.shared_gen", false)
	v.SetDefault("storage.redis.gen_ttl", "720h")

	v.SetDefault("log.backend", "slog")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("hooks.async", true)
	v.SetDefault("hooks.queue_len", 1024)
	v.SetDefault("hooks.sample_every", 10)
	v.SetDefault("hooks.metrics", true)

	v.SetDefault("push.notification_ttl", "24h")
}

// Load reads path (optional) over the defaults, then SWCACHE_* variables
// over both: SWCACHE_STORAGE_PROVIDER=redis sets storage.provider.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SWCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("conf: read %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("conf: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) Validate() error {
	for name, raw := range map[string]string{"origin": s.Origin, "upstream": s.Upstream} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("conf: %s must be an absolute URL, got %q", name, raw)
		}
	}
	switch s.Worker.Profile {
	case ProfileCacheFirst, ProfileNetworkFirst:
	default:
		return fmt.Errorf("conf: unknown worker.profile %q", s.Worker.Profile)
	}
	if s.Worker.DefaultStrategy != "" {
		if _, ok := swcache.ParseStrategy(s.Worker.DefaultStrategy); !ok {
			return fmt.Errorf("conf: invalid worker.default_strategy %q", s.Worker.DefaultStrategy)
		}
	}
	if s.Worker.NavigateFallback != "" {
		if _, err := strconv.ParseBool(s.Worker.NavigateFallback); err != nil {
			return fmt.Errorf("conf: worker.navigate_fallback must be true or false, got %q", s.Worker.NavigateFallback)
		}
	}
	switch s.Storage.Provider {
	case "memory", "bigcache", "ristretto", "redis":
	default:
		return fmt.Errorf("conf: unknown storage.provider %q", s.Storage.Provider)
	}
	switch s.Log.Backend {
	case "zap", "logrus", "slog":
	default:
		return fmt.Errorf("conf: unknown log.backend %q", s.Log.Backend)
	}
	if s.Storage.Namespace == "" {
		return fmt.Errorf("conf: storage.namespace is required")
	}
	return nil
}

// WorkerConfig builds the worker policy: the profile, with every non-empty
// worker setting applied on top.
func (s *Settings) WorkerConfig() (swcache.Config, error) {
	origin, err := url.Parse(s.Origin)
	if err != nil {
		return swcache.Config{}, fmt.Errorf("conf: origin: %w", err)
	}
	var cfg swcache.Config
	if s.Worker.Profile == ProfileNetworkFirst {
		cfg = swcache.ProfileNetworkFirst(origin)
	} else {
		cfg = swcache.ProfileCacheFirst(origin)
	}

	w := s.Worker
	if w.Prefix != "" {
		cfg.Prefix = w.Prefix
	}
	if w.Version != "" {
		cfg.Version = w.Version
	}
	if len(w.Precache) > 0 {
		cfg.Precache = append([]string(nil), w.Precache...)
	}
	if len(w.AlwaysFresh) > 0 {
		cfg.Routes.AlwaysFresh = rules(w.AlwaysFresh)
	}
	if len(w.AlwaysNetwork) > 0 {
		cfg.Routes.AlwaysNetwork = rules(w.AlwaysNetwork)
	}
	if w.DefaultStrategy != "" {
		cfg.DefaultStrategy, _ = swcache.ParseStrategy(w.DefaultStrategy)
	}
	if w.NavigateFallback != "" {
		cfg.NavigateFallback, _ = strconv.ParseBool(w.NavigateFallback)
	}
	if w.OfflinePath != "" {
		cfg.OfflinePath = w.OfflinePath
	}
	if len(w.StaticPrefixes) > 0 {
		cfg.StaticPrefixes = append([]string(nil), w.StaticPrefixes...)
	}
	cfg.MaxEntryBytes = w.MaxEntryBytes
	cfg.InstallConcurrency = w.InstallConcurrency
	return cfg, nil
}

func rules(specs []string) []swcache.Rule {
	out := make([]swcache.Rule, 0, len(specs))
	for _, s := range specs {
		out = append(out, swcache.ParseRule(s))
	}
	return out
}

// YAML renders the effective settings; secrets are omitted.
func (s *Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// UpstreamTimeoutOr returns the upstream timeout, or def when unset.
func (s *Settings) UpstreamTimeoutOr(def time.Duration) time.Duration {
	if s.UpstreamTimeout <= 0 {
		return def
	}
	return s.UpstreamTimeout.Std()
}
