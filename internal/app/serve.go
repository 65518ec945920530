package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/HarrisAD/ai-marketing-news/internal/cli"
	"github.com/HarrisAD/ai-marketing-news/internal/globaltime"
	"github.com/HarrisAD/ai-marketing-news/internal/httpapi"
	"github.com/HarrisAD/ai-marketing-news/internal/pipeline"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "", "Host interface to bind (overrides HOST)")
	port := fs.Int("port", 0, "HTTP port (overrides PORT)")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	rt, err := initRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	bindHost := rt.cfg.Host
	if *host != "" {
		bindHost = *host
	}
	bindPort := rt.cfg.Port
	if *port != 0 {
		bindPort = *port
	}
	if bindPort <= 0 || bindPort > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	if rt.cfg.RefreshAt != "" {
		go scheduleDailyRefresh(ctx, rt.runner, rt.cfg.RefreshAt, rt.cfg.RunSourceList(), rt.logger)
	}

	srv := httpapi.NewServer(rt.store, rt.runner, rt.logger, httpapi.Options{
		Host:            bindHost,
		Port:            bindPort,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		RunDomains:      rt.cfg.RunSourceList(),
	})

	if err := srv.Start(ctx); err != nil {
		rt.logger.Error().Err(err).Str("host", bindHost).Int("port", bindPort).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}

// scheduleDailyRefresh kicks off a pipeline run every day at the configured
// local wall-clock time. A run already in flight makes the tick a no-op.
func scheduleDailyRefresh(ctx context.Context, runner *pipeline.Runner, at string, domains []string, logger zerolog.Logger) {
	target, err := time.Parse("15:04", at)
	if err != nil {
		logger.Error().Err(err).Str("refresh_at", at).Msg("invalid refresh schedule, scheduler disabled")
		return
	}

	for {
		now := globaltime.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), target.Hour(), target.Minute(), 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

		logger.Info().Time("next_run", next).Msg("scheduled refresh armed")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := runner.Start(ctx, domains); err != nil {
			if errors.Is(err, pipeline.ErrAlreadyRunning) {
				logger.Warn().Msg("scheduled refresh skipped, a run is already in progress")
				continue
			}
			logger.Error().Err(err).Msg("scheduled refresh failed to start")
		}
	}
}
