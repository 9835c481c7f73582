package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aixgo-dev/visionguide/pkg/config"
	"github.com/aixgo-dev/visionguide/pkg/observability"
)

// Version information (set via ldflags)
var Version = "dev"

const shutdownGrace = 30 * time.Second

type rootFlags struct {
	configFile string
	envFiles   []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "visionguide",
		Short:        "Voice and vision assistant relay for blind users",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", os.Getenv("CONFIG_FILE"), "YAML configuration file")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env when present)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), flags)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "visionguide %s\n", Version)
			},
		},
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration with secrets masked",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(flags)
				if err != nil {
					return err
				}
				data, err := cfg.Redacted().Marshal()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
	)
	return root
}

// loadConfig loads dotenv files, then the YAML file and environment.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	if len(flags.envFiles) > 0 {
		if err := godotenv.Load(flags.envFiles...); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	level, err := observability.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := observability.NewLogger(os.Stderr, level, cfg.Log.Format)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting visionguide", "version", Version, "addr", cfg.Server.Addr())

	observability.InitMetrics()
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:  observability.DefaultServiceName,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPHeaders:  cfg.Tracing.OTLPHeaders,
	}, logger)
	if err != nil {
		return err
	}

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Start(cfg.Server.Addr())
	})
	if app.sweeper != nil {
		g.Go(func() error {
			return app.sweeper.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return app.server.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if cerr := app.store.Close(); cerr != nil {
		logger.Warn("session store close failed", "error", cerr)
	}
	if terr := shutdownTracing(closeCtx); terr != nil {
		logger.Warn("tracing shutdown failed", "error", terr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("visionguide stopped with error", "error", err)
		return err
	}
	logger.Info("visionguide stopped")
	return nil
}
