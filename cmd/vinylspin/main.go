// Package main runs the spinning-vinyl pipeline once and prints the
// animation URL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/maauso/vinyl-spinner/internal/bootstrap"
	"github.com/maauso/vinyl-spinner/internal/config"
	"github.com/maauso/vinyl-spinner/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting vinyl spinner",
		slog.String("image", cfg.ImageName),
		slog.String("assets_dir", cfg.AssetsDir),
		slog.String("animation_mode", cfg.AnimationMode),
		slog.Int("frame_count", cfg.FrameCount),
		slog.Int("animation_length_sec", cfg.AnimationLengthSec),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	result, runErr := deps.Orchestrator.Run(ctx)
	// The report must survive a cancelled run.
	if err := reportRun(context.WithoutCancel(ctx), logger, deps.Runs, result.ID); err != nil {
		logger.Warn("run report unavailable",
			slog.String("run_id", result.ID),
			slog.String("error", err.Error()),
		)
	}
	if runErr != nil {
		return fmt.Errorf("run %s: %w", result.ID, runErr)
	}

	fmt.Println(result.ResultURL)
	if result.PublishedURL != "" {
		fmt.Println(result.PublishedURL)
	}
	return nil
}

// reportRun loads the saved record of run id and logs one line per stage.
func reportRun(ctx context.Context, logger *slog.Logger, runs pipeline.Repository, id string) error {
	rec, err := runs.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load run %s: %w", id, err)
	}

	for _, st := range rec.Stages {
		attrs := []any{
			slog.String("run_id", rec.ID),
			slog.String("stage", string(st.Name)),
			slog.String("status", string(st.Status)),
			slog.Duration("duration", st.Duration()),
		}
		if st.URL != "" {
			attrs = append(attrs, slog.String("url", st.URL))
		}
		if st.Path != "" {
			attrs = append(attrs, slog.String("path", st.Path))
		}
		if st.Error != "" {
			attrs = append(attrs, slog.String("error", st.Error))
		}
		logger.Info("stage", attrs...)
	}

	logger.Info("run finished",
		slog.String("run_id", rec.ID),
		slog.String("status", string(rec.Status)),
		slog.Int("stages", len(rec.Stages)),
		slog.Duration("elapsed", rec.CompletedAt.Sub(rec.StartedAt)),
	)
	return nil
}
