package mask

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"
)

// Apply returns a copy of img in which every pixel outside the annulus is
// zero in all channels, alpha included. Kept pixels carry the source colour.
func (g Geometry) Apply(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for x := 0; x < w; x++ {
			if !g.Contains(x, y) {
				i := x * 4
				row[i], row[i+1], row[i+2], row[i+3] = 0, 0, 0, 0
			}
		}
	}
	return dst
}

// Store is the asset workspace the masker reads from and writes to.
type Store interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	WriteFile(ctx context.Context, path string, data io.Reader) error
}

// Masker applies a Geometry to image files.
type Masker struct {
	geometry    Geometry
	store       Store
	previewPath string
	logger      *slog.Logger
}

// Option configures a Masker.
type Option func(*Masker)

// WithPreview also writes the rendered mask to path on every call.
func WithPreview(path string) Option {
	return func(m *Masker) {
		m.previewPath = path
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Masker) {
		m.logger = l
	}
}

// NewMasker validates g and returns a Masker backed by store.
func NewMasker(g Geometry, store Store, opts ...Option) (*Masker, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	m := &Masker{
		geometry: g,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// MaskFile loads src, masks it and writes a PNG to dst.
func (m *Masker) MaskFile(ctx context.Context, src, dst string) error {
	r, err := m.store.Open(ctx, src)
	if err != nil {
		return fmt.Errorf("mask: %w", err)
	}
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	_ = r.Close()
	if err != nil {
		return fmt.Errorf("mask: decode %s: %w", src, err)
	}

	b := img.Bounds()
	if b.Dx() < 2*m.geometry.OuterRadius || b.Dy() < 2*m.geometry.OuterRadius {
		m.logger.Warn("image smaller than mask diameter, ring will be clipped",
			slog.String("path", src),
			slog.Int("width", b.Dx()),
			slog.Int("height", b.Dy()),
			slog.Int("outer_radius", m.geometry.OuterRadius),
		)
	}

	if err := m.writePNG(ctx, dst, m.geometry.Apply(img)); err != nil {
		return err
	}

	if m.previewPath != "" {
		if err := m.writePNG(ctx, m.previewPath, m.geometry.Mask(image.Rect(0, 0, b.Dx(), b.Dy()))); err != nil {
			return err
		}
	}

	m.logger.Info("image masked",
		slog.String("src", src),
		slog.String("dst", dst),
		slog.Int("outer_radius", m.geometry.OuterRadius),
		slog.Int("inner_radius", m.geometry.InnerRadius),
	)
	return nil
}

func (m *Masker) writePNG(ctx context.Context, path string, img image.Image) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return fmt.Errorf("mask: encode %s: %w", path, err)
	}
	if err := m.store.WriteFile(ctx, path, &buf); err != nil {
		return fmt.Errorf("mask: %w", err)
	}
	return nil
}
