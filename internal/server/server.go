// Package server exposes a Registration over HTTP with echo, together with
// the push and notification endpoints and the metrics page.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ranksewa/swcache"
	"github.com/ranksewa/swcache/push"
)

const maxPushBody = 4 << 10

type Options struct {
	Registration *swcache.Registration
	Storage      *swcache.Storage
	Bridge       *push.Bridge
	Center       *push.Center
	Gatherer     prometheus.Gatherer // nil => no /metrics
	Logger       swcache.Logger      // nil => NopLogger
}

type Server struct {
	echo    *echo.Echo
	reg     *swcache.Registration
	storage *swcache.Storage
	bridge  *push.Bridge
	center  *push.Center
	log     swcache.Logger
}

func New(opts Options) *Server {
	s := &Server{
		echo:    echo.New(),
		reg:     opts.Registration,
		storage: opts.Storage,
		bridge:  opts.Bridge,
		center:  opts.Center,
		log:     opts.Logger,
	}
	if s.log == nil {
		s.log = swcache.NopLogger{}
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.accessLog)

	sw := s.echo.Group("/__sw")
	sw.POST("/push", s.handlePush, middleware.BodyLimit("4K"))
	sw.GET("/notifications", s.listNotifications)
	sw.POST("/notifications/:tag/click", s.clickNotification)
	sw.GET("/stores", s.listStores)
	if opts.Gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	s.echo.Any("/*", echo.WrapHandler(s.reg))
	return s
}

func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.log.Debug("request", swcache.Fields{
			"method":   c.Request().Method,
			"path":     c.Request().URL.Path,
			"status":   c.Response().Status,
			"duration": time.Since(start).String(),
		})
		return nil
	}
}

func (s *Server) handlePush(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPushBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	ev := swcache.NewExtendableEvent(c.Request().Context())
	s.bridge.OnPush(ev, body)
	if err := ev.Wait(); err != nil {
		s.log.Warn("push display failed", swcache.Fields{"err": err})
		return echo.NewHTTPError(http.StatusInternalServerError, "display failed")
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) listNotifications(c echo.Context) error {
	return c.JSON(http.StatusOK, s.center.List())
}

// redirectClient opens a window by redirecting the clicking browser.
type redirectClient struct{ url string }

func (r *redirectClient) OpenWindow(_ context.Context, url string) error {
	r.url = url
	return nil
}

func (s *Server) clickNotification(c echo.Context) error {
	n, err := s.center.Get(c.Param("tag"))
	if errors.Is(err, push.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	if err != nil {
		return err
	}
	rc := &redirectClient{}
	ev := swcache.NewExtendableEvent(c.Request().Context())
	s.bridge.OnNotificationClick(ev, n, rc)
	if err := ev.Wait(); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, rc.url)
}

type storeInfo struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Active  bool   `json:"active"`
}

func (s *Server) listStores(c echo.Context) error {
	ctx := c.Request().Context()
	names, err := s.storage.Keys(ctx)
	if err != nil {
		return err
	}
	active := ""
	if w := s.reg.Active(); w != nil {
		active = w.CacheName()
	}
	out := make([]storeInfo, 0, len(names))
	for _, n := range names {
		st, ok, err := s.storage.Lookup(ctx, n)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		keys, err := st.Keys(ctx)
		if err != nil {
			return err
		}
		out = append(out, storeInfo{Name: n, Entries: len(keys), Active: n == active})
	}
	return c.JSON(http.StatusOK, out)
}
