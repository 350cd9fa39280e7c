package server

import (
	"net/http"
	"net/url"
	"time"
)

// Upstream is the worker's network: requests addressed to the public origin
// are sent to the application server behind the proxy. Redirects are
// returned to the worker as they are, like a browser fetch in manual
// redirect mode.
type Upstream struct {
	client *http.Client
	target *url.URL
}

func NewUpstream(target *url.URL, timeout time.Duration) *Upstream {
	return NewUpstreamWithTransport(target, timeout, http.DefaultTransport)
}

func NewUpstreamWithTransport(target *url.URL, timeout time.Duration, rt http.RoundTripper) *Upstream {
	return &Upstream{
		client: &http.Client{
			Transport: rt,
			Timeout:   timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		target: target,
	}
}

func (u *Upstream) Do(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = u.target.Scheme
	out.URL.Host = u.target.Host
	out.Host = ""
	if req.URL.Host != "" {
		out.Header.Set("X-Forwarded-Host", req.URL.Host)
		out.Header.Set("X-Forwarded-Proto", req.URL.Scheme)
	}
	return u.client.Do(out)
}
