package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rusty-ci/rusty-tui/internal/api"
	"github.com/rusty-ci/rusty-tui/internal/cache"
	"github.com/rusty-ci/rusty-tui/internal/config"
	"github.com/rusty-ci/rusty-tui/internal/logging"
	"github.com/rusty-ci/rusty-tui/internal/metrics"
	"github.com/rusty-ci/rusty-tui/internal/model"
	"github.com/rusty-ci/rusty-tui/internal/subscription"
)

const shutdownTimeout = 5 * time.Second

// services holds the services shared by the TUI and the headless commands.
type services struct {
	cfg      config.Config
	cred     model.Credential
	client   *api.Client
	subs     *subscription.Manager
	logCache *cache.LogCache
	log      zerolog.Logger

	closeLog    func() error
	stopMetrics context.CancelFunc
	metricsDone chan struct{}
}

// setup loads the configuration and builds the services. Headless commands
// log to stderr when no log file is configured; the TUI never logs to the
// terminal it draws on.
func setup(cmd *cobra.Command, configPath string, headless bool) (*services, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	var out io.Writer = io.Discard
	if headless {
		out = cmd.ErrOrStderr()
	}
	closeLog := logging.Configure(logging.Config{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Output:  out,
		Version: version,
	})
	log := logging.WithComponent("main")

	logCache, err := cache.NewLogCache(cfg.Cache.Dir, cfg.Cache.SizeMB, cfg.Cache.TTL)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("open log cache: %w", err)
	}

	rt := &services{
		cfg:  cfg,
		cred: model.Credential(cfg.Token),
		client: api.NewClient(api.Options{
			Endpoint: cfg.Endpoint,
			Timeout:  cfg.RequestTimeout,
			Logger:   logging.WithComponent("api"),
		}),
		subs: subscription.NewManager(subscription.Config{
			Dialer:     subscription.WebsocketDialer{URL: cfg.WebsocketURL},
			Reconnect:  cfg.ReconnectPolicy(),
			AckTimeout: cfg.AckTimeout,
			Logger:     logging.WithComponent("subscription"),
		}),
		logCache: logCache,
		log:      log,
		closeLog: closeLog,
	}

	if cfg.Metrics.Addr != "" {
		ctx, cancel := context.WithCancel(cmd.Context())
		rt.stopMetrics = cancel
		rt.metricsDone = make(chan struct{})
		go func() {
			defer close(rt.metricsDone)
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, logging.WithComponent("metrics")); err != nil {
				log.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics server stopped")
			}
		}()
	}

	log.Info().
		Str("endpoint", cfg.Endpoint).
		Str("ws_url", cfg.WebsocketURL).
		Str("reconnect", cfg.Reconnect.Strategy).
		Bool("authenticated", cfg.Token != "").
		Msg("starting")
	return rt, nil
}

// Close stops every open subscription, the metrics server and the HTTP
// client, then flushes the log file.
func (rt *services) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.subs.Shutdown(ctx); err != nil {
		rt.log.Warn().Err(err).Msg("subscriptions did not stop in time")
	}
	if rt.stopMetrics != nil {
		rt.stopMetrics()
		<-rt.metricsDone
	}
	rt.client.Close()
	rt.log.Info().Msg("stopped")
	if err := rt.closeLog(); err != nil {
		fmt.Fprintln(os.Stderr, "close log:", err)
	}
}
