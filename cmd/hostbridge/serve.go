package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggoodman/hostbridge"
	"github.com/ggoodman/hostbridge/config"
	"github.com/ggoodman/hostbridge/dispatch"
	"github.com/ggoodman/hostbridge/examples/echo"
	"github.com/ggoodman/hostbridge/stdio"
	"github.com/ggoodman/hostbridge/tools"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the bridge protocol on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().Int("max-line-bytes", 0, "Maximum size of one request line in bytes (default from config, 1 MiB)")
	cmd.Flags().Duration("call-timeout", 0, "Timeout for tools/call (default from config, 30s)")
	cmd.Flags().Duration("metadata-timeout", 0, "Timeout for tools/list and tools/describe (default from config, 10s)")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")

	return cmd
}

// loadConfig reads the config file and environment, then applies any flag
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, "", &exitError{Code: 2, Err: err}
	}

	flags := cmd.Flags()
	if flags.Changed("max-line-bytes") {
		cfg.MaxLineBytes, _ = flags.GetInt("max-line-bytes")
	}
	if flags.Changed("call-timeout") {
		cfg.CallTimeout, _ = flags.GetDuration("call-timeout")
	}
	if flags.Changed("metadata-timeout") {
		cfg.MetadataTimeout, _ = flags.GetDuration("metadata-timeout")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", &exitError{Code: 2, Err: err}
	}
	return cfg, path, nil
}

func collaboratorTools(cmd *cobra.Command) []tools.Tool {
	var ts []tools.Tool
	if demo, _ := cmd.Flags().GetBool("demo-tools"); demo {
		ts = append(ts, echo.Tool())
	}
	return ts
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	lvl, _ := cfg.SlogLevel()
	level := zap.NewAtomicLevelAt(zapLevel(lvl))
	log := newLogger(cfg, level, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loop := dispatch.NewLoop(log)
	b, err := hostbridge.New(loop,
		hostbridge.WithLogger(log),
		hostbridge.WithServerInfo(cfg.Name, version),
		hostbridge.WithCallTimeout(cfg.CallTimeout),
		hostbridge.WithMetadataTimeout(cfg.MetadataTimeout),
		hostbridge.WithStdioOptions(
			stdio.WithMaxLineBytes(cfg.MaxLineBytes),
			stdio.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		),
		hostbridge.WithTools(collaboratorTools(cmd)...),
	)
	if err != nil {
		return fmt.Errorf("build bridge: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// EOF on stdin ends the process.
		defer cancel()
		if err := b.Serve(gctx, cmd.InOrStdin(), cmd.OutOrStdout()); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if path != "" {
		g.Go(func() error {
			return config.Watch(gctx, path, log, func(next config.Config) {
				if l, err := next.SlogLevel(); err == nil {
					level.SetLevel(zapLevel(l))
				}
			})
		})
	}

	start := time.Now()
	err = g.Wait()
	b.Shutdown()
	log.Info("hostbridge.serve.exit", slog.Int64("uptime_ms", time.Since(start).Milliseconds()))
	return err
}
