package storage

import (
	"path/filepath"
	"strconv"
)

// Layout holds the fixed file locations used between pipeline stages.
type Layout struct {
	// Source is the original photo, <root>/<name>.jpg.
	Source string
	// Vinyl is the record template overlay.
	Vinyl string
	// Resized is the remotely resized photo.
	Resized string
	// Masked is the locally masked annulus with a black background.
	Masked string
	// Trimmed is the masked photo with a transparent background.
	Trimmed string
	// Finished is the vinyl template with the photo composited on it.
	Finished string
	// FramesDir holds per-frame renders for the frames animation mode.
	FramesDir string
	// Animation is the final animated GIF.
	Animation string
}

// NewLayout returns the asset layout under root for the named source image.
func NewLayout(root, name string) Layout {
	return Layout{
		Source:    filepath.Join(root, name+".jpg"),
		Vinyl:     filepath.Join(root, "vinyl.png"),
		Resized:   filepath.Join(root, "resized_image.png"),
		Masked:    filepath.Join(root, "mask.png"),
		Trimmed:   filepath.Join(root, "trimmed_image.png"),
		Finished:  filepath.Join(root, "vinyl_finished.png"),
		FramesDir: filepath.Join(root, "Frames", name),
		Animation: filepath.Join(root, "finished_gif.gif"),
	}
}

// FramePath returns the path of frame index inside FramesDir.
func (l Layout) FramePath(index int) string {
	return filepath.Join(l.FramesDir, strconv.Itoa(index)+".png")
}
