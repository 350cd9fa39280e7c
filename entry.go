package swcache

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Entry is a captured response. Body is owned by the entry; Response hands
// out a fresh reader per call so one entry can answer any number of requests.
type Entry struct {
	Key      string      `json:"key" msgpack:"key" cbor:"key"`
	Status   int         `json:"status" msgpack:"status" cbor:"status"`
	Header   http.Header `json:"header,omitempty" msgpack:"header,omitempty" cbor:"header,omitempty"`
	Body     []byte      `json:"body,omitempty" msgpack:"body,omitempty" cbor:"body,omitempty"`
	StoredAt time.Time   `json:"stored_at" msgpack:"stored_at" cbor:"stored_at"`
}

// RequestKey is the request identity used to address entries:
// "<METHOD> <absolute URL without fragment>".
func RequestKey(method string, u *url.URL) string {
	cp := *u
	cp.Fragment = ""
	cp.RawFragment = ""
	return method + " " + cp.String()
}

// KeyFor is RequestKey for an incoming request. Server-side requests carry
// no scheme/host in URL, so they are filled in from the Host header.
func KeyFor(r *http.Request) string {
	return RequestKey(r.Method, absoluteURL(r))
}

func absoluteURL(r *http.Request) *url.URL {
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		switch {
		case r.TLS != nil:
			u.Scheme = "https"
		case r.Header.Get("X-Forwarded-Proto") != "":
			u.Scheme = strings.ToLower(r.Header.Get("X-Forwarded-Proto"))
		default:
			u.Scheme = "http"
		}
	}
	return &u
}

// Response builds an independent *http.Response for req.
func (e Entry) Response(req *http.Request) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	return &http.Response{
		Status:        strconv.Itoa(e.Status) + " " + http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// duplicate reads up to limit bytes of resp.Body and returns the copy to
// persist. resp.Body is replaced so the caller still receives the whole
// stream. complete is false when the body exceeded limit; the partial copy
// must not be stored in that case.
func duplicate(resp *http.Response, limit int64) (body []byte, complete bool, err error) {
	orig := resp.Body
	buf, err := io.ReadAll(io.LimitReader(orig, limit+1))
	if err != nil {
		// the caller sees the bytes read so far, then the same error
		resp.Body = readCloser{io.MultiReader(bytes.NewReader(buf), errReader{err}), orig}
		return nil, false, err
	}
	if int64(len(buf)) > limit {
		resp.Body = readCloser{io.MultiReader(bytes.NewReader(buf), orig), orig}
		return nil, false, nil
	}
	_ = orig.Close()
	resp.Body = io.NopCloser(bytes.NewReader(buf))

	stored := make([]byte, len(buf))
	copy(stored, buf)
	return stored, true, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func entryFrom(key string, resp *http.Response, body []byte) Entry {
	return Entry{
		Key:      key,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UTC(),
	}
}

// offlineResponse is the synthesized 503 answer of last resort.
func offlineResponse(req *http.Request) *http.Response {
	return Entry{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte(offlineBody),
	}.Response(req)
}
