// Package frames renders the rotation frames of a spinning record.
package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"
)

// ErrInvalidFrameCount is returned when fewer than one frame is requested.
var ErrInvalidFrameCount = errors.New("frames: frame count must be positive")

// Store is the asset workspace frames are read from and written to.
type Store interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	WriteFile(ctx context.Context, path string, data io.Reader) error
}

// Renderer writes one PNG per rotation step.
type Renderer struct {
	store  Store
	logger *slog.Logger
}

// NewRenderer creates a Renderer backed by store.
func NewRenderer(store Store, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{store: store, logger: logger}
}

// Render writes n PNG frames at path(0)..path(n-1). Frame i is src turned
// clockwise by 360·i/n degrees about its centre, with transparent corners,
// cropped back to the source size. Paths are returned in frame order.
func (r *Renderer) Render(ctx context.Context, src string, n int, path func(i int) string) ([]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameCount, n)
	}

	rc, err := r.store.Open(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("frames: %w", err)
	}
	img, err := imaging.Decode(rc)
	_ = rc.Close()
	if err != nil {
		return nil, fmt.Errorf("frames: decode %s: %w", src, err)
	}

	paths := make([]string, 0, n)
	for i := range n {
		if err := ctx.Err(); err != nil {
			return paths, err
		}

		p := path(i)
		frame := Rotate(img, 360*float64(i)/float64(n))

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, frame, imaging.PNG); err != nil {
			return paths, fmt.Errorf("frames: encode frame %d: %w", i, err)
		}
		if err := r.store.WriteFile(ctx, p, &buf); err != nil {
			return paths, fmt.Errorf("frames: %w", err)
		}
		paths = append(paths, p)
	}

	r.logger.Info("frames rendered",
		slog.String("src", src),
		slog.Int("count", n),
	)
	return paths, nil
}

// Rotate turns img clockwise by deg degrees and crops the result back to
// img's size.
func Rotate(img image.Image, deg float64) *image.NRGBA {
	b := img.Bounds()
	rotated := imaging.Rotate(img, -deg, color.Transparent)
	return imaging.CropCenter(rotated, b.Dx(), b.Dy())
}
