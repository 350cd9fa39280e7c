package swcache

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Strategy names a fetch strategy.
type Strategy string

const (
	StrategyBypass       Strategy = "bypass"
	StrategyNetworkOnly  Strategy = "network-only"
	StrategyNetworkFirst Strategy = "network-first"
	StrategyCacheFirst   Strategy = "cache-first"
	StrategyNavigate     Strategy = "navigate"
)

// ParseStrategy accepts the names usable as a default strategy.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case StrategyNetworkFirst, StrategyCacheFirst:
		return Strategy(s), true
	}
	return "", false
}

// Rule matches requests by path. Rules are configuration constants; build
// them with PathPrefix, PathContains or QueryOn.
type Rule struct {
	Name  string
	Match func(r *http.Request) bool
}

// PathPrefix matches paths starting with prefix.
func PathPrefix(prefix string) Rule {
	return Rule{
		Name:  "prefix:" + prefix,
		Match: func(r *http.Request) bool { return strings.HasPrefix(r.URL.Path, prefix) },
	}
}

// PathContains matches paths containing s anywhere.
func PathContains(s string) Rule {
	return Rule{
		Name:  "contains:" + s,
		Match: func(r *http.Request) bool { return strings.Contains(r.URL.Path, s) },
	}
}

// URLContains matches when s occurs anywhere in the absolute request URL
// (scheme, host, path and query; no fragment).
func URLContains(s string) Rule {
	return Rule{
		Name: "url:" + s,
		Match: func(r *http.Request) bool {
			u := absoluteURL(r)
			u.Fragment, u.RawFragment = "", ""
			return strings.Contains(u.String(), s)
		},
	}
}

// QueryOn matches a parameterized listing: the exact path with a non-empty
// query string.
func QueryOn(path string) Rule {
	return Rule{
		Name:  "query:" + path,
		Match: func(r *http.Request) bool { return r.URL.Path == path && r.URL.RawQuery != "" },
	}
}

// ParseRule reads the textual rule forms used in configuration:
// "/api/" (prefix), "contains:/api/", "url:/doctors?", "query:/doctors".
func ParseRule(s string) Rule {
	switch {
	case strings.HasPrefix(s, "contains:"):
		return PathContains(strings.TrimPrefix(s, "contains:"))
	case strings.HasPrefix(s, "url:"):
		return URLContains(strings.TrimPrefix(s, "url:"))
	case strings.HasPrefix(s, "query:"):
		return QueryOn(strings.TrimPrefix(s, "query:"))
	default:
		return PathPrefix(strings.TrimPrefix(s, "prefix:"))
	}
}

// Routes are the two configured namespaces consulted before the default.
type Routes struct {
	// AlwaysFresh requests are bypassed entirely (API calls, listings).
	AlwaysFresh []Rule
	// AlwaysNetwork requests go to the network with no cache fallback.
	AlwaysNetwork []Rule
}

// Decision is the outcome of routing one request.
type Decision struct {
	Strategy Strategy
	Reason   string // "method", "cross-origin", rule name, "navigate" or "default"
}

// Mode mirrors the fetch mode of a request.
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeCORS       Mode = "cors"
	ModeNoCORS     Mode = "no-cors"
	ModeSameOrigin Mode = "same-origin"
)

type modeKey struct{}

// RequestMode reads the mode set by WithMode, falling back to the
// Sec-Fetch-Mode request header that browsers send.
func RequestMode(r *http.Request) Mode {
	if m, ok := r.Context().Value(modeKey{}).(Mode); ok {
		return m
	}
	return Mode(r.Header.Get("Sec-Fetch-Mode"))
}

// WithMode returns a shallow copy of r carrying an explicit fetch mode.
func WithMode(r *http.Request, m Mode) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), modeKey{}, m))
}

// route applies the fixed precedence: method, origin, always-fresh,
// always-network, navigate, default.
func route(cfg *Config, r *http.Request) Decision {
	if r.Method != http.MethodGet {
		return Decision{Strategy: StrategyBypass, Reason: "method"}
	}
	if !sameOrigin(cfg.Origin, absoluteURL(r)) {
		return Decision{Strategy: StrategyBypass, Reason: "cross-origin"}
	}
	for _, rule := range cfg.Routes.AlwaysFresh {
		if rule.Match(r) {
			return Decision{Strategy: StrategyBypass, Reason: rule.Name}
		}
	}
	for _, rule := range cfg.Routes.AlwaysNetwork {
		if rule.Match(r) {
			return Decision{Strategy: StrategyNetworkOnly, Reason: rule.Name}
		}
	}
	if RequestMode(r) == ModeNavigate {
		return Decision{Strategy: StrategyNavigate, Reason: "navigate"}
	}
	return Decision{Strategy: cfg.DefaultStrategy, Reason: "default"}
}

func sameOrigin(origin, u *url.URL) bool {
	return strings.EqualFold(origin.Scheme, u.Scheme) && strings.EqualFold(origin.Host, u.Host)
}
