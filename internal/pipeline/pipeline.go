// Package pipeline turns a sleeve photo into a spinning-record animation.
//
// A run is strictly sequential: resize, mask, remove background, composite
// onto the record, animate, download. Each stage's output URL is the next
// stage's input. A failure at any stage aborts the run; nothing is resumed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/maauso/vinyl-spinner/internal/storage"
	"github.com/maauso/vinyl-spinner/internal/submitter"
)

// Result labels exposed by the remote templates.
const (
	LabelResize    = "resize"
	LabelTrimmed   = "trimmed"
	LabelWatermark = "watermark"
	LabelAnimated  = "animated"
)

// AnimationMode selects how the animation job gets its input.
type AnimationMode string

const (
	// ModeRemote imports the composited image by URL and lets the remote
	// merge step spin it.
	ModeRemote AnimationMode = "remote"
	// ModeFrames renders rotated frames locally and uploads them all.
	ModeFrames AnimationMode = "frames"
)

// Static errors for orchestrator construction.
var (
	ErrInvalidSettings  = errors.New("pipeline: invalid settings")
	ErrRendererRequired = errors.New("pipeline: frames mode requires a frame renderer")
)

// JobRunner runs one remote template job and returns a result URL.
type JobRunner interface {
	RunJob(ctx context.Context, job submitter.Job) (string, error)
}

// Downloader saves a URL to a local path.
type Downloader interface {
	Download(ctx context.Context, url, dest string) error
}

// Masker writes an annulus-masked copy of src to dst.
type Masker interface {
	MaskFile(ctx context.Context, src, dst string) error
}

// FrameRenderer writes n rotated frames of src at path(0)..path(n-1).
type FrameRenderer interface {
	Render(ctx context.Context, src string, n int, path func(i int) string) ([]string, error)
}

// Cleaner removes workspace paths.
type Cleaner interface {
	Cleanup(ctx context.Context, paths []string) error
}

// Publisher uploads the finished animation.
type Publisher interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Publish(ctx context.Context, key string, data io.Reader) (string, error)
}

// Templates holds the remote template identifiers for each stage.
type Templates struct {
	Resize           string
	RemoveBackground string
	Watermark        string
	Animate          string
}

// Settings configures a pipeline.
type Settings struct {
	Templates       Templates
	Layout          storage.Layout
	FrameCount      int
	AnimationLength time.Duration
	Mode            AnimationMode
}

// Framerate returns FrameCount divided by the animation length in seconds.
func (s Settings) Framerate() float64 {
	return float64(s.FrameCount) / s.AnimationLength.Seconds()
}

func (s Settings) validate() error {
	if s.FrameCount <= 0 {
		return fmt.Errorf("%w: frame count must be positive", ErrInvalidSettings)
	}
	if s.AnimationLength <= 0 {
		return fmt.Errorf("%w: animation length must be positive", ErrInvalidSettings)
	}
	if s.Mode != ModeRemote && s.Mode != ModeFrames {
		return fmt.Errorf("%w: unknown animation mode %q", ErrInvalidSettings, s.Mode)
	}
	t := s.Templates
	if t.Resize == "" || t.RemoveBackground == "" || t.Watermark == "" || t.Animate == "" {
		return fmt.Errorf("%w: every template ID is required", ErrInvalidSettings)
	}
	return nil
}

// Orchestrator sequences the pipeline stages.
type Orchestrator struct {
	settings   Settings
	jobs       JobRunner
	downloader Downloader
	masker     Masker
	renderer   FrameRenderer
	cleaner    Cleaner
	publisher  Publisher
	repo       Repository
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRenderer sets the frame renderer used in frames mode.
func WithRenderer(r FrameRenderer) Option {
	return func(o *Orchestrator) {
		o.renderer = r
	}
}

// WithCleaner clears the frame directory before frames are rendered, so a
// run with fewer frames leaves none behind from an earlier one.
func WithCleaner(c Cleaner) Option {
	return func(o *Orchestrator) {
		o.cleaner = c
	}
}

// WithPublisher publishes the finished animation after download.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithRepository sets where run records are kept.
func WithRepository(r Repository) Option {
	return func(o *Orchestrator) {
		o.repo = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New creates an Orchestrator.
func New(settings Settings, jobs JobRunner, downloader Downloader, masker Masker, opts ...Option) (*Orchestrator, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		settings:   settings,
		jobs:       jobs,
		downloader: downloader,
		masker:     masker,
		repo:       NewMemoryRepository(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if settings.Mode == ModeFrames && o.renderer == nil {
		return nil, ErrRendererRequired
	}
	return o, nil
}

// Run executes every stage once. The returned Run is never nil and records
// how far the pipeline got.
func (o *Orchestrator) Run(ctx context.Context) (*Run, error) {
	run := NewRun()
	if err := run.Start(); err != nil {
		return run, err
	}
	o.save(ctx, run)

	o.logger.Info("pipeline started",
		slog.String("run_id", run.ID),
		slog.String("source", o.settings.Layout.Source),
		slog.String("mode", string(o.settings.Mode)),
		slog.Int("frame_count", o.settings.FrameCount),
		slog.Duration("length", o.settings.AnimationLength),
	)

	if err := o.execute(ctx, run); err != nil {
		_ = run.Fail(err.Error())
		o.save(ctx, run)
		o.logger.Error("pipeline failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
		return run, err
	}

	if err := run.Complete(); err != nil {
		return run, err
	}
	o.save(ctx, run)

	o.logger.Info("pipeline completed",
		slog.String("run_id", run.ID),
		slog.String("url", run.ResultURL),
		slog.String("path", run.OutputPath),
		slog.Duration("duration", run.CompletedAt.Sub(run.StartedAt)),
	)
	return run, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *Run) error {
	l := o.settings.Layout

	_, err := o.step(ctx, run, StageResize, func() (string, string, error) {
		url, err := o.jobs.RunJob(ctx, submitter.Job{
			TemplateID:  o.settings.Templates.Resize,
			InputPaths:  []string{l.Source},
			ResultLabel: LabelResize,
		})
		if err != nil {
			return "", "", err
		}
		return url, l.Resized, o.downloader.Download(ctx, url, l.Resized)
	})
	if err != nil {
		return err
	}

	trimmedURL, err := o.maskCircular(ctx, run, l.Resized)
	if err != nil {
		return err
	}

	vinylURL, err := o.step(ctx, run, StageWatermark, func() (string, string, error) {
		url, err := o.jobs.RunJob(ctx, submitter.Job{
			TemplateID:  o.settings.Templates.Watermark,
			InputPaths:  []string{l.Vinyl},
			ResultLabel: LabelWatermark,
			Overrides: []submitter.Step{{
				Name:   "watermark",
				Robot:  "/image/resize",
				Params: map[string]any{"watermark_url": trimmedURL},
			}},
		})
		if err != nil {
			return "", "", err
		}
		return url, l.Finished, o.downloader.Download(ctx, url, l.Finished)
	})
	if err != nil {
		return err
	}

	animatedURL, err := o.animate(ctx, run, vinylURL)
	if err != nil {
		return err
	}

	_, err = o.step(ctx, run, StageDownload, func() (string, string, error) {
		return animatedURL, l.Animation, o.downloader.Download(ctx, animatedURL, l.Animation)
	})
	if err != nil {
		return err
	}

	var publishedURL string
	if o.publisher != nil {
		publishedURL, err = o.step(ctx, run, StagePublish, func() (string, string, error) {
			return o.publish(ctx, run.ID)
		})
		if err != nil {
			return err
		}
	}

	run.SetOutput(animatedURL, l.Animation, publishedURL)
	return nil
}

// MaskCircular masks input locally, has the remote service turn the
// zeroed pixels transparent, downloads the result and returns its URL.
func (o *Orchestrator) MaskCircular(ctx context.Context, input string) (string, error) {
	return o.maskCircular(ctx, nil, input)
}

func (o *Orchestrator) maskCircular(ctx context.Context, run *Run, input string) (string, error) {
	l := o.settings.Layout

	_, err := o.step(ctx, run, StageMask, func() (string, string, error) {
		return "", l.Masked, o.masker.MaskFile(ctx, input, l.Masked)
	})
	if err != nil {
		return "", err
	}

	return o.step(ctx, run, StageRemoveBackground, func() (string, string, error) {
		url, err := o.jobs.RunJob(ctx, submitter.Job{
			TemplateID:  o.settings.Templates.RemoveBackground,
			InputPaths:  []string{l.Masked},
			ResultLabel: LabelTrimmed,
		})
		if err != nil {
			return "", "", err
		}
		return url, l.Trimmed, o.downloader.Download(ctx, url, l.Trimmed)
	})
}

func (o *Orchestrator) animate(ctx context.Context, run *Run, vinylURL string) (string, error) {
	merge := submitter.Step{
		Name:  LabelAnimated,
		Robot: "/video/merge",
		Params: map[string]any{
			"duration":  o.settings.AnimationLength.Seconds(),
			"framerate": o.settings.Framerate(),
		},
	}

	job := submitter.Job{
		TemplateID:  o.settings.Templates.Animate,
		ResultLabel: LabelAnimated,
	}

	switch o.settings.Mode {
	case ModeFrames:
		l := o.settings.Layout
		var frames []string
		_, err := o.step(ctx, run, StageRenderFrames, func() (string, string, error) {
			if o.cleaner != nil {
				if err := o.cleaner.Cleanup(ctx, []string{l.FramesDir}); err != nil {
					return "", "", err
				}
			}
			var err error
			frames, err = o.renderer.Render(ctx, l.Finished, o.settings.FrameCount, l.FramePath)
			return "", l.FramesDir, err
		})
		if err != nil {
			return "", err
		}
		job.InputPaths = frames
		job.Overrides = []submitter.Step{merge}
	default:
		job.Overrides = []submitter.Step{
			{Name: "import", Robot: "/http/import", Params: map[string]any{"url": vinylURL}},
			merge,
		}
	}

	return o.step(ctx, run, StageAnimate, func() (string, string, error) {
		url, err := o.jobs.RunJob(ctx, job)
		return url, "", err
	})
}

func (o *Orchestrator) publish(ctx context.Context, runID string) (string, string, error) {
	path := o.settings.Layout.Animation
	r, err := o.publisher.Open(ctx, path)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = r.Close() }()

	url, err := o.publisher.Publish(ctx, "animations/"+runID+".gif", r)
	return url, path, err
}

// step runs fn as stage name, recording it on run when run is not nil.
// fn returns the stage's remote URL and local path.
func (o *Orchestrator) step(ctx context.Context, run *Run, name StageName, fn func() (string, string, error)) (string, error) {
	idx := -1
	runID := ""
	if run != nil {
		idx = run.BeginStage(name)
		runID = run.ID
	}

	start := time.Now()
	o.logger.Info("stage started",
		slog.String("run_id", runID),
		slog.String("stage", string(name)),
	)

	url, path, err := fn()
	if err != nil {
		if run != nil {
			run.FailStage(idx, err)
		}
		o.logger.Error("stage failed",
			slog.String("run_id", runID),
			slog.String("stage", string(name)),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", name, err)
	}

	if run != nil {
		run.FinishStage(idx, url, path)
		o.save(ctx, run)
	}
	o.logger.Info("stage completed",
		slog.String("run_id", runID),
		slog.String("stage", string(name)),
		slog.String("url", url),
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)),
	)
	return url, nil
}

func (o *Orchestrator) save(ctx context.Context, run *Run) {
	if o.repo == nil {
		return
	}
	if err := o.repo.Save(ctx, run); err != nil {
		o.logger.Warn("failed to save run",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}
}
