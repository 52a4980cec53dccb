package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/glennswest/vlanfabric/pkg/network"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the fabric API, metrics endpoint and periodic sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	a.log.Infow("starting vlanfabric", "version", version)

	g, ctx := errgroup.WithContext(ctx)

	// The watchdog must be attached before the API starts reading its status.
	if a.cfg.Watchdog.IsEnabled() {
		wd := a.manager.NewWatchdog(network.WatchdogOpts{
			Interval:  a.cfg.Watchdog.Interval,
			Threshold: a.cfg.Watchdog.Threshold,
		})
		g.Go(func() error { return wd.Run(ctx) })
	}

	api := &http.Server{Addr: a.cfg.ListenAddr, Handler: a.manager.Routes(), ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error { return listen(ctx, api) })
	a.log.Infow("fabric API listening", "addr", a.cfg.ListenAddr)

	if a.cfg.MetricsAddr != "" {
		metrics := &http.Server{Addr: a.cfg.MetricsAddr, Handler: a.manager.Metrics().Handler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error { return listen(ctx, metrics) })
		a.log.Infow("metrics listening", "addr", a.cfg.MetricsAddr)
	}

	if a.cfg.Sync.IsEnabled() {
		g.Go(func() error {
			return a.manager.RunReconciler(ctx, network.ReconcilerOpts{
				Interval: a.cfg.Sync.Interval,
				Schedule: a.cfg.Sync.Schedule,
			})
		})
	} else {
		a.log.Info("periodic sync disabled")
	}

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if cerr := a.Close(closeCtx); cerr != nil {
		a.log.Warnw("closing devices and store", "error", cerr)
	}

	a.log.Info("vlanfabric stopped")
	return err
}

// listen serves srv until ctx is done, then shuts it down.
func listen(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
