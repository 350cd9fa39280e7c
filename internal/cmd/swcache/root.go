// Package swcache holds the swcache command tree.
package swcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ranksewa/swcache"
	"github.com/ranksewa/swcache/internal/conf"
	"github.com/ranksewa/swcache/internal/server"
	"github.com/ranksewa/swcache/push"
)

const shutdownTimeout = 10 * time.Second

// NewRootCommand returns the swcache command with its subcommands attached.
func NewRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "swcache",
		Short:         "Offline cache manager for ranksewa",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml, json or toml)")

	load := func() (*conf.Settings, error) { return conf.Load(configPath) }
	root.AddCommand(
		newServeCommand(load),
		newInstallCommand(load),
		newStoresCommand(load),
		newConfigCommand(load),
	)
	return root
}

type loader func() (*conf.Settings, error)

func newServeCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the caching reverse proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			return Serve(cmd.Context(), s)
		},
	}
}

func newInstallCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install and activate the configured version, then exit",
		Long:  "Precaches the manifest into the configured version's store and deletes " +
			"every other store. Useful against a shared redis provider before rolling out.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := newEnv(ctx, s)
			if err != nil {
				return err
			}
			defer e.Close(context.WithoutCancel(ctx))

			w, err := e.worker()
			if err != nil {
				return err
			}
			if err := swcache.NewRegistration(e.log).Register(ctx, w); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", w.CacheName(), w.State())
			return nil
		},
	}
}

func newStoresCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "stores",
		Short: "List cache stores and their entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			e, err := newEnv(ctx, s)
			if err != nil {
				return err
			}
			defer e.Close(context.WithoutCancel(ctx))
			return listStores(ctx, cmd.OutOrStdout(), e.storage)
		},
	}
}

func newConfigCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load()
			if err != nil {
				return err
			}
			b, err := s.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func listStores(ctx context.Context, out io.Writer, storage *swcache.Storage) error {
	names, err := storage.Keys(ctx)
	if err != nil {
		return err
	}
	sort.Strings(names)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STORE\tENTRIES")
	for _, n := range names {
		st, ok, err := storage.Lookup(ctx, n)
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
		fmt.Fprintf(tw, "%s\t%d\n", n, len(keys))
	}
	return tw.Flush()
}

func (e *env) worker() (*swcache.Worker, error) {
	cfg, err := e.settings.WorkerConfig()
	if err != nil {
		return nil, err
	}
	target, err := url.Parse(e.settings.Upstream)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}
	return swcache.NewWorker(cfg, swcache.WorkerOptions{
		Storage: e.storage,
		Network: server.NewUpstream(target, e.settings.UpstreamTimeoutOr(30*time.Second)),
		Logger:  e.log,
		Hooks:   e.hooks,
	})
}

// Serve registers the configured worker and serves until ctx is done.
func Serve(ctx context.Context, s *conf.Settings) error {
	e, err := newEnv(ctx, s)
	if err != nil {
		return err
	}
	defer e.Close(context.WithoutCancel(ctx))

	w, err := e.worker()
	if err != nil {
		return err
	}
	reg := swcache.NewRegistration(e.log)
	if err := reg.Register(ctx, w); err != nil {
		var ie *swcache.InstallError
		if errors.As(err, &ie) {
			return err
		}
		// activation leftovers are retried by the next version
		e.log.Warn("serving with incomplete activation", swcache.Fields{"err": err})
	}

	center := push.NewCenter(s.Push.NotificationTTL.Std())
	srv := server.New(server.Options{
		Registration: reg,
		Storage:      e.storage,
		Bridge:       push.NewBridge(center, push.Options{Logger: e.log, Hooks: e.hooks}),
		Center:       center,
		Gatherer:     e.metrics,
		Logger:       e.log,
	})

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(s.Listen) }()
	e.log.Info("listening", swcache.Fields{"addr": s.Listen, "upstream": s.Upstream, "store": w.CacheName()})

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}
