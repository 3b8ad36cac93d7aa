// Package storage provides the local asset workspace the pipeline hands files
// through, and optional publication of finished artifacts to S3.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrFilesystem is returned when a local directory or file cannot be written.
var ErrFilesystem = errors.New("storage: filesystem error")

// Storage defines the interface for the asset workspace.
// Implementations must make writes atomic so a failed write never leaves a
// truncated file at the destination path.
type Storage interface {
	// Root returns the workspace root directory.
	Root() string

	// WriteFile writes data to path, replacing any existing file.
	// Parent directories are created as needed.
	WriteFile(ctx context.Context, path string, data io.Reader) error

	// Open opens a workspace file for reading.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Cleanup removes the given files or directories.
	// It continues even if some paths fail to delete.
	Cleanup(ctx context.Context, paths []string) error

	// Publish uploads data to object storage and returns its public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Publish(ctx context.Context, key string, data io.Reader) (url string, err error)
}
