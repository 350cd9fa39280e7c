// Package push turns inbound push messages into displayed notifications
// and notification clicks into window navigations.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ranksewa/swcache"
)

// Payload is the JSON body of a push message. Every field is optional.
type Payload struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Data travels with a notification and comes back on click.
type Data struct {
	URL string `json:"url"`
}

// Notification is what the Displayer shows.
type Notification struct {
	Tag     string    `json:"tag"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Icon    string    `json:"icon"`
	Badge   string    `json:"badge"`
	Vibrate []int     `json:"vibrate"`
	Data    Data      `json:"data"`
	ShownAt time.Time `json:"shown_at"`
}

// Displayer shows and dismisses notifications.
type Displayer interface {
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, tag string) error
}

// Clients opens (or focuses) a window at url.
type Clients interface {
	OpenWindow(ctx context.Context, url string) error
}

// Defaults fill what a payload leaves out. Vibrate is always taken from
// here.
type Defaults struct {
	Title   string
	Body    string
	Icon    string
	Badge   string
	URL     string
	Vibrate []int
}

func DefaultDefaults() Defaults {
	return Defaults{
		Title:   "RankSewa",
		Body:    "New notification from RankSewa",
		Icon:    "/static/img/icons/icon-192x192.png",
		Badge:   "/static/img/icons/icon-72x72.png",
		URL:     "/",
		Vibrate: []int{100, 50, 100},
	}
}

type Options struct {
	Defaults *Defaults      // nil => DefaultDefaults()
	Logger   swcache.Logger // nil => NopLogger
	Hooks    swcache.Hooks  // nil => NopHooks
}

// Bridge handles push and notification-click events.
type Bridge struct {
	display Displayer
	def     Defaults
	log     swcache.Logger
	hooks   swcache.Hooks
}

func NewBridge(d Displayer, opts Options) *Bridge {
	b := &Bridge{display: d, def: DefaultDefaults(), log: swcache.NopLogger{}, hooks: swcache.NopHooks{}}
	if opts.Defaults != nil {
		b.def = *opts.Defaults
	}
	if opts.Logger != nil {
		b.log = opts.Logger
	}
	if opts.Hooks != nil {
		b.hooks = opts.Hooks
	}
	return b
}

// Build parses data and applies defaults. An absent payload or one that is
// not a JSON object is an error.
func (b *Bridge) Build(data []byte) (Notification, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Notification{}, ErrEmpty
	}
	if data[0] != '{' {
		return Notification{}, fmt.Errorf("push: payload is not a JSON object")
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Notification{}, fmt.Errorf("push: parse payload: %w", err)
	}
	return Notification{
		Tag:     uuid.NewString(),
		Title:   or(p.Title, b.def.Title),
		Body:    or(p.Body, b.def.Body),
		Icon:    or(p.Icon, b.def.Icon),
		Badge:   or(p.Badge, b.def.Badge),
		Vibrate: append([]int(nil), b.def.Vibrate...),
		Data:    Data{URL: b.localPath(p.URL)},
	}, nil
}

// OnPush displays the notification carried by data. An absent or
// unparsable payload is ignored. The display runs as extended work on ev.
func (b *Bridge) OnPush(ev *swcache.ExtendableEvent, data []byte) {
	n, err := b.Build(data)
	if err != nil {
		reason := "parse"
		if errors.Is(err, ErrEmpty) {
			reason = "empty"
		}
		b.hooks.PushDropped(reason)
		b.log.Debug("push ignored", swcache.Fields{"reason": reason, "err": err})
		return
	}
	ev.WaitUntil(func(ctx context.Context) error {
		n.ShownAt = time.Now().UTC()
		if err := b.display.Show(ctx, n); err != nil {
			b.log.Warn("notification display failed", swcache.Fields{"tag": n.Tag, "err": err})
			return err
		}
		return nil
	})
}

// OnNotificationClick closes n and opens a window at its URL through
// clients, as extended work on ev. Only same-origin paths are opened; any
// other target falls back to the default URL.
func (b *Bridge) OnNotificationClick(ev *swcache.ExtendableEvent, n Notification, clients Clients) {
	target := b.localPath(n.Data.URL)
	ev.WaitUntil(func(ctx context.Context) error {
		if err := b.display.Close(ctx, n.Tag); err != nil {
			b.log.Debug("notification close failed", swcache.Fields{"tag": n.Tag, "err": err})
		}
		return clients.OpenWindow(ctx, target)
	})
}

// localPath returns raw when it is an absolute path on the same origin
// ("/x", not "//host/x" or "https://host/x"), otherwise the default URL.
func (b *Bridge) localPath(raw string) string {
	if isLocalPath(raw) {
		return raw
	}
	if raw != "" {
		b.log.Debug("notification url rejected", swcache.Fields{"url": raw})
	}
	return b.def.URL
}

func isLocalPath(raw string) bool {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
