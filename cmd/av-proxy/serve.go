package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/alphavantage-client/internal/scheduler"
	"github.com/Sternrassler/alphavantage-client/internal/server"
	"github.com/Sternrassler/alphavantage-client/pkg/batch"
	"github.com/Sternrassler/alphavantage-client/pkg/client"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP proxy",
		Example: `  # Serve on PORT (default 8080)
  ALPHAVANTAGE_API_KEY=demo av-proxy serve

  # With TTL overrides and warm requests
  av-proxy serve --config av-proxy.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	sched := scheduler.New(a.log)
	if err := sched.AddJob(a.cfg.PruneSchedule, scheduler.NewPruneJob(a.cache, a.log)); err != nil {
		return err
	}
	if len(a.cfg.Warm) > 0 {
		requests := make([]client.ResourceRequest, len(a.cfg.Warm))
		for i, w := range a.cfg.Warm {
			requests[i] = w.Request()
		}
		warm := scheduler.NewWarmJob(a.fetcher, requests, 0, a.log)
		if err := sched.AddJob(a.cfg.WarmSchedule, warm); err != nil {
			return err
		}
		go func() {
			if err := sched.RunNow(warm); err != nil {
				a.log.Warn().Err(err).Msg("Initial cache warm incomplete")
			}
		}()
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Addr:       a.cfg.Addr(),
		Client:     a.client,
		Fetcher:    a.fetcher,
		Advisories: a.tracker,
		Batch:      batch.Config{Timeout: a.cfg.UpstreamTimeout},
		Log:        a.log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
