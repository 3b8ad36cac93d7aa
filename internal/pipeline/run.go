package pipeline

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a Run.
type Status string

const (
	// StatusPending indicates the run has been created but not started.
	StatusPending Status = "PENDING"
	// StatusRunning indicates stages are executing.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates every stage succeeded.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates a stage failed and the run was aborted.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// StageName identifies one step of the pipeline.
type StageName string

const (
	// StageResize resizes the source photo remotely and downloads it.
	StageResize StageName = "resize"
	// StageMask cuts the resized photo to the record annulus locally.
	StageMask StageName = "mask"
	// StageRemoveBackground makes the masked-out pixels transparent remotely.
	StageRemoveBackground StageName = "remove_background"
	// StageWatermark composites the cut-out onto the record template.
	StageWatermark StageName = "watermark"
	// StageRenderFrames renders rotated frames locally (frames mode only).
	StageRenderFrames StageName = "render_frames"
	// StageAnimate merges the record into an animation remotely.
	StageAnimate StageName = "animate"
	// StageDownload saves the finished animation locally.
	StageDownload StageName = "download"
	// StagePublish uploads the animation to object storage.
	StagePublish StageName = "publish"
)

// StageStatus represents the status of a single stage.
type StageStatus string

const (
	// StageStatusRunning indicates the stage has started.
	StageStatusRunning StageStatus = "RUNNING"
	// StageStatusCompleted indicates the stage produced its artifacts.
	StageStatusCompleted StageStatus = "COMPLETED"
	// StageStatusFailed indicates the stage failed and aborted the run.
	StageStatusFailed StageStatus = "FAILED"
)

// Stage records the outcome of one pipeline step.
type Stage struct {
	Name   StageName
	Status StageStatus
	// URL is the remote artifact produced by the stage, if any.
	URL string
	// Path is the local artifact produced by the stage, if any.
	Path        string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns how long the stage ran.
func (s Stage) Duration() time.Duration {
	if s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// Run is the record of one pipeline execution.
type Run struct {
	mu sync.RWMutex

	ID     string
	Status Status
	Stages []Stage
	Error  string
	// ResultURL is the remote URL of the finished animation.
	ResultURL string
	// OutputPath is the local copy of the finished animation.
	OutputPath string
	// PublishedURL is set when the animation was published to S3.
	PublishedURL string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewRun creates a PENDING run with a random ID.
func NewRun() *Run {
	return NewRunWithID(uuid.NewString())
}

// NewRunWithID creates a PENDING run with the given ID.
func NewRunWithID(id string) *Run {
	now := time.Now()
	return &Run{
		ID:        id,
		Status:    StatusPending,
		Stages:    make([]Stage, 0, 8),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo changes the run status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (r *Run) TransitionTo(status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(status)
}

func (r *Run) transitionLocked(status Status) error {
	if !canTransition(r.Status, status) {
		return ErrInvalidTransition
	}

	r.Status = status
	r.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		r.StartedAt = r.UpdatedAt
	case StatusCompleted, StatusFailed:
		r.CompletedAt = r.UpdatedAt
	}
	return nil
}

// Start transitions the run from PENDING to RUNNING.
func (r *Run) Start() error {
	return r.TransitionTo(StatusRunning)
}

// Complete transitions the run to COMPLETED.
func (r *Run) Complete() error {
	return r.TransitionTo(StatusCompleted)
}

// Fail records errMsg and transitions the run to FAILED.
func (r *Run) Fail(errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Error = errMsg
	return r.transitionLocked(StatusFailed)
}

// GetStatus returns the current run status (thread-safe).
func (r *Run) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// IsTerminal returns true if the run is COMPLETED or FAILED.
func (r *Run) IsTerminal() bool {
	s := r.GetStatus()
	return s == StatusCompleted || s == StatusFailed
}

// BeginStage appends a RUNNING stage and returns its index.
func (r *Run) BeginStage(name StageName) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.Stages = append(r.Stages, Stage{
		Name:      name,
		Status:    StageStatusRunning,
		StartedAt: now,
	})
	r.UpdatedAt = now
	return len(r.Stages) - 1
}

// FinishStage marks stage i completed with its artifacts.
func (r *Run) FinishStage(i int, url, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.Stages) {
		return
	}
	now := time.Now()
	r.Stages[i].Status = StageStatusCompleted
	r.Stages[i].URL = url
	r.Stages[i].Path = path
	r.Stages[i].CompletedAt = now
	r.UpdatedAt = now
}

// FailStage marks stage i failed.
func (r *Run) FailStage(i int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.Stages) {
		return
	}
	now := time.Now()
	r.Stages[i].Status = StageStatusFailed
	if err != nil {
		r.Stages[i].Error = err.Error()
	}
	r.Stages[i].CompletedAt = now
	r.UpdatedAt = now
}

// SetOutput records the finished animation.
func (r *Run) SetOutput(resultURL, outputPath, publishedURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResultURL = resultURL
	r.OutputPath = outputPath
	r.PublishedURL = publishedURL
	r.UpdatedAt = time.Now()
}

// Stage returns the last recorded stage with the given name.
func (r *Run) Stage(name StageName) (Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if r.Stages[i].Name == name {
			return r.Stages[i], true
		}
	}
	return Stage{}, false
}

// Clone creates a deep copy of the run for safe reads.
func (r *Run) Clone() *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return &Run{
		ID:           r.ID,
		Status:       r.Status,
		Stages:       slices.Clone(r.Stages),
		Error:        r.Error,
		ResultURL:    r.ResultURL,
		OutputPath:   r.OutputPath,
		PublishedURL: r.PublishedURL,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
	}
}
