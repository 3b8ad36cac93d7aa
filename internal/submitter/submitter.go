// Package submitter runs a single remote template job and extracts one named result.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maauso/vinyl-spinner/internal/transloadit"
)

// Static errors for job submission.
var (
	// ErrJobSubmission is returned when an input file cannot be opened.
	ErrJobSubmission = errors.New("submitter: cannot submit job")
	// ErrMissingResult is returned when the expected result label is absent.
	ErrMissingResult = errors.New("submitter: result missing from response")
	// ErrTemplateIDRequired is returned when no template is given.
	ErrTemplateIDRequired = errors.New("submitter: template ID is required")
)

// Step is a per-job addition or replacement of one named template step.
type Step struct {
	Name   string
	Robot  string
	Params map[string]any
}

// Job describes one remote processing request.
type Job struct {
	// TemplateID identifies the server-side template.
	TemplateID string
	// InputPaths are uploaded in order. May be empty for URL-import jobs.
	InputPaths []string
	// ResultLabel is the step whose first result URL is returned.
	ResultLabel string
	// Overrides are layered on top of the template's steps.
	Overrides []Step
}

// Submitter creates assemblies through a transloadit.Client.
type Submitter struct {
	client transloadit.Client
	logger *slog.Logger
}

// New creates a new Submitter.
func New(client transloadit.Client, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{client: client, logger: logger}
}

// RunJob submits job, blocks until it finishes and returns the SSL URL of the
// first result under job.ResultLabel.
func (s *Submitter) RunJob(ctx context.Context, job Job) (string, error) {
	if job.TemplateID == "" {
		return "", ErrTemplateIDRequired
	}

	assembly := transloadit.NewAssembly(job.TemplateID)
	for _, step := range job.Overrides {
		assembly.AddStep(step.Name, step.Robot, step.Params)
	}

	for _, path := range job.InputPaths {
		f, err := os.Open(path) // #nosec G304 - paths come from the asset layout
		if err != nil {
			return "", fmt.Errorf("%w: open %s: %w", ErrJobSubmission, path, err)
		}
		defer func() { _ = f.Close() }()
		assembly.AddFile(filepath.Base(path), f)
	}

	start := time.Now()
	exec, err := s.client.Create(ctx, assembly)
	if exec == nil {
		exec = &transloadit.Execution{}
	}
	if err != nil {
		s.logger.Error("remote job failed",
			slog.String("template_id", job.TemplateID),
			slog.String("state", string(exec.State)),
			slog.Int("attempts", exec.Attempts),
			slog.Int("polls", exec.Polls),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("run template %s: %w", job.TemplateID, err)
	}

	s.logger.Info("remote job completed",
		slog.String("template_id", job.TemplateID),
		slog.Int("files", assembly.FileCount()),
		slog.Int("transitions", exec.Transitions),
		slog.Duration("duration", time.Since(start)),
	)

	return resultURL(exec.Response, job.ResultLabel)
}

// resultURL extracts the first result's SSL URL under label.
func resultURL(resp *transloadit.Response, label string) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: no response for %q", ErrMissingResult, label)
	}
	results, ok := resp.Results[label]
	if !ok || len(results) == 0 {
		return "", fmt.Errorf("%w: %q", ErrMissingResult, label)
	}
	if results[0].SSLURL == "" {
		return "", fmt.Errorf("%w: %q has no ssl_url", ErrMissingResult, label)
	}
	return results[0].SSLURL, nil
}
