// Package mask cuts an image down to a vinyl-record annulus.
//
// The keep region is every pixel whose squared distance d² from the centre
// satisfies r² < d² ≤ R², where R is the outer radius and r the spindle hole.
// Geometry is static configuration and never derived from image content, so
// inputs of an unexpected size are clipped at the same fixed coordinates.
package mask

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrInvalidGeometry is returned when radii or centre are unusable.
var ErrInvalidGeometry = errors.New("mask: invalid geometry")

// Geometry describes an annulus in pixel coordinates.
type Geometry struct {
	CenterX     int
	CenterY     int
	OuterRadius int
	InnerRadius int
}

// DefaultGeometry returns the annulus used for 350×350 record sleeves.
func DefaultGeometry() Geometry {
	return Geometry{
		CenterX:     175,
		CenterY:     175,
		OuterRadius: 175,
		InnerRadius: 20,
	}
}

// Validate checks that the geometry describes a non-empty ring.
func (g Geometry) Validate() error {
	if g.OuterRadius <= 0 {
		return fmt.Errorf("%w: outer radius must be positive, got %d", ErrInvalidGeometry, g.OuterRadius)
	}
	if g.InnerRadius < 0 || g.InnerRadius >= g.OuterRadius {
		return fmt.Errorf("%w: inner radius %d must be in [0, %d)", ErrInvalidGeometry, g.InnerRadius, g.OuterRadius)
	}
	if g.CenterX < 0 || g.CenterY < 0 {
		return fmt.Errorf("%w: centre (%d,%d) is negative", ErrInvalidGeometry, g.CenterX, g.CenterY)
	}
	return nil
}

// Contains reports whether pixel (x, y) is kept.
func (g Geometry) Contains(x, y int) bool {
	dx := x - g.CenterX
	dy := y - g.CenterY
	d2 := dx*dx + dy*dy
	return d2 <= g.OuterRadius*g.OuterRadius && d2 > g.InnerRadius*g.InnerRadius
}

// Mask renders the geometry over bounds: 255 where kept, 0 elsewhere.
func (g Geometry) Mask(bounds image.Rectangle) *image.Gray {
	m := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if g.Contains(x-bounds.Min.X, y-bounds.Min.Y) {
				m.SetGray(x, y, color.Gray{Y: 0xff})
			}
		}
	}
	return m
}
