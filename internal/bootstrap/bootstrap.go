// Package bootstrap wires the pipeline's dependencies from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/vinyl-spinner/internal/config"
	"github.com/maauso/vinyl-spinner/internal/fetch"
	"github.com/maauso/vinyl-spinner/internal/frames"
	"github.com/maauso/vinyl-spinner/internal/mask"
	"github.com/maauso/vinyl-spinner/internal/pipeline"
	"github.com/maauso/vinyl-spinner/internal/storage"
	"github.com/maauso/vinyl-spinner/internal/submitter"
	"github.com/maauso/vinyl-spinner/internal/transloadit"
)

// Dependencies holds everything the entry point needs for one run.
type Dependencies struct {
	Orchestrator *pipeline.Orchestrator
	Runs         pipeline.Repository
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	client, err := transloadit.NewClient(
		transloadit.WithAuth(cfg.TransloaditKey, cfg.TransloaditSecret),
		transloadit.WithBaseURL(cfg.TransloaditBaseURL),
		transloadit.WithMaxAttempts(cfg.MaxAttempts),
		transloadit.WithPollInterval(cfg.PollInterval),
		transloadit.WithMaxPolls(cfg.MaxPolls),
		transloadit.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create Transloadit client: %w", err)
	}

	geometry := mask.Geometry{
		CenterX:     cfg.MaskCenterX,
		CenterY:     cfg.MaskCenterY,
		OuterRadius: cfg.MaskOuterRadius,
		InnerRadius: cfg.MaskInnerRadius,
	}
	maskOpts := []mask.Option{mask.WithLogger(logger)}
	if cfg.MaskPreviewPath != "" {
		maskOpts = append(maskOpts, mask.WithPreview(cfg.MaskPreviewPath))
	}
	masker, err := mask.NewMasker(geometry, store, maskOpts...)
	if err != nil {
		return nil, fmt.Errorf("create masker: %w", err)
	}

	settings := pipeline.Settings{
		Templates: pipeline.Templates{
			Resize:           cfg.TemplateResize,
			RemoveBackground: cfg.TemplateRemoveBG,
			Watermark:        cfg.TemplateWatermark,
			Animate:          cfg.TemplateAnimate,
		},
		Layout:          storage.NewLayout(store.Root(), cfg.ImageName),
		FrameCount:      cfg.FrameCount,
		AnimationLength: cfg.AnimationLength(),
		Mode:            pipeline.AnimationMode(cfg.AnimationMode),
	}

	runs := pipeline.NewMemoryRepository()
	opts := []pipeline.Option{
		pipeline.WithRenderer(frames.NewRenderer(store, logger)),
		pipeline.WithCleaner(store),
		pipeline.WithRepository(runs),
		pipeline.WithLogger(logger),
	}
	if cfg.S3Enabled() {
		opts = append(opts, pipeline.WithPublisher(store))
	}

	orch, err := pipeline.New(settings,
		submitter.New(client, logger),
		fetch.New(store, fetch.WithMaxBytes(cfg.MaxDownloadBytes), fetch.WithLogger(logger)),
		masker,
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	return &Dependencies{
		Orchestrator: orch,
		Runs:         runs,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.AssetsDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.AssetsDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("assets_dir", cfg.AssetsDir),
	)
	return localStore, nil
}
