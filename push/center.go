package push

import (
	"context"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
)

// Center is an in-memory Displayer: shown notifications are listed until
// closed or until they expire.
type Center struct {
	c *cache.Cache
}

var _ Displayer = (*Center)(nil)

// NewCenter keeps notifications for ttl; ttl <= 0 keeps them until closed.
func NewCenter(ttl time.Duration) *Center {
	cleanup := 10 * time.Minute
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	return &Center{c: cache.New(ttl, cleanup)}
}

func (c *Center) Show(_ context.Context, n Notification) error {
	c.c.SetDefault(n.Tag, n)
	return nil
}

func (c *Center) Close(_ context.Context, tag string) error {
	if _, ok := c.c.Get(tag); !ok {
		return ErrNotFound
	}
	c.c.Delete(tag)
	return nil
}

// Get returns the live notification with tag.
func (c *Center) Get(tag string) (Notification, error) {
	v, ok := c.c.Get(tag)
	if !ok {
		return Notification{}, ErrNotFound
	}
	return v.(Notification), nil
}

// List returns live notifications, oldest first.
func (c *Center) List() []Notification {
	items := c.c.Items()
	out := make([]Notification, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.(Notification))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShownAt.Equal(out[j].ShownAt) {
			return out[i].Tag < out[j].Tag
		}
		return out[i].ShownAt.Before(out[j].ShownAt)
	})
	return out
}
