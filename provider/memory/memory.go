// Package memory is the default in-process provider, backed by
// patrickmn/go-cache.
package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	pr "github.com/ranksewa/swcache/provider"
)

type Provider struct {
	c *gocache.Cache
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	DefaultExpiration time.Duration // applied when Set gets ttl <= 0; 0 = never expire
	CleanupInterval   time.Duration // 0 = no janitor; expired entries are still missed on Get
}

func New(cfg Config) *Provider {
	exp := cfg.DefaultExpiration
	if exp <= 0 {
		exp = gocache.NoExpiration
	}
	return &Provider{c: gocache.New(exp, cfg.CleanupInterval)}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		p.c.Delete(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	p.c.Set(key, value, ttl)
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Delete(key)
	return nil
}

// Len reports stored items, expired-but-unswept ones included.
func (p *Provider) Len() int { return p.c.ItemCount() }

func (p *Provider) Close(_ context.Context) error {
	p.c.Flush()
	return nil
}
