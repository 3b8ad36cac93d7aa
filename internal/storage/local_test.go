package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates directory if not exists", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "Assets")

		storage, err := NewLocalStorage(root)
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		if storage.Root() != root {
			t.Errorf("Root() = %v, want %v", storage.Root(), root)
		}

		info, err := os.Stat(root)
		if err != nil {
			t.Fatalf("directory not created: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected directory, got file")
		}
	})

	t.Run("fails when root is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "blocker")
		if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}

		_, err := NewLocalStorage(filepath.Join(file, "Assets"))
		if !errors.Is(err, ErrFilesystem) {
			t.Errorf("expected ErrFilesystem, got %v", err)
		}
	})
}

func TestLocalStorage_WriteFile(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("writes and overwrites", func(t *testing.T) {
		path := filepath.Join(storage.Root(), "resized_image.png")

		if err := storage.WriteFile(ctx, path, strings.NewReader("first version")); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if err := storage.WriteFile(ctx, path, strings.NewReader("second")); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read written file: %v", err)
		}
		if string(content) != "second" {
			t.Errorf("got %q, want %q", string(content), "second")
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(storage.Root(), "Frames", "okcomputer", "0.png")

		if err := storage.WriteFile(ctx, path, strings.NewReader("frame")); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("frame not written: %v", err)
		}
	})

	t.Run("failed copy leaves existing file untouched", func(t *testing.T) {
		path := filepath.Join(storage.Root(), "trimmed_image.png")
		if err := storage.WriteFile(ctx, path, strings.NewReader("good")); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		broken := io.MultiReader(strings.NewReader("partial"), errReader{})
		if err := storage.WriteFile(ctx, path, broken); err == nil {
			t.Fatal("expected error from failing reader")
		}

		content, _ := os.ReadFile(path)
		if string(content) != "good" {
			t.Errorf("got %q, want %q", string(content), "good")
		}

		entries, _ := os.ReadDir(storage.Root())
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".trimmed_image.png_") {
				t.Errorf("temp file %s left behind", e.Name())
			}
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := storage.WriteFile(ctx, filepath.Join(storage.Root(), "x"), bytes.NewReader([]byte("data")))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_Open(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("opens written file", func(t *testing.T) {
		path := filepath.Join(storage.Root(), "mask.png")
		if err := storage.WriteFile(ctx, path, strings.NewReader("mask data")); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		reader, err := storage.Open(ctx, path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer func() { _ = reader.Close() }()

		content, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("failed to read: %v", err)
		}
		if string(content) != "mask data" {
			t.Errorf("got %q, want %q", string(content), "mask data")
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		_, err := storage.Open(ctx, "/non/existent/file")
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected os.ErrNotExist, got %v", err)
		}
	})
}

func TestLocalStorage_Cleanup(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("removes files and directories", func(t *testing.T) {
		dir := filepath.Join(storage.Root(), "Frames", "okcomputer")
		var paths []string
		for _, name := range []string{"0.png", "1.png"} {
			p := filepath.Join(dir, name)
			if err := storage.WriteFile(ctx, p, strings.NewReader("data")); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			paths = append(paths, p)
		}

		if err := storage.Cleanup(ctx, []string{dir}); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}

		for _, p := range paths {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Errorf("file %s still exists", p)
			}
		}
	})

	t.Run("ignores non-existent paths", func(t *testing.T) {
		if err := storage.Cleanup(ctx, []string{"/non/existent/file"}); err != nil {
			t.Errorf("Cleanup() should ignore non-existent paths, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := storage.Cleanup(ctx, []string{"/some/path"})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_Publish(t *testing.T) {
	storage := setupTestStorage(t)

	_, err := storage.Publish(context.Background(), "key", bytes.NewReader([]byte("data")))
	if !errors.Is(err, ErrS3NotConfigured) {
		t.Errorf("expected ErrS3NotConfigured, got %v", err)
	}
}

func TestNewLayout(t *testing.T) {
	l := NewLayout("Assets", "okcomputer")

	want := map[string]string{
		"source":    filepath.Join("Assets", "okcomputer.jpg"),
		"vinyl":     filepath.Join("Assets", "vinyl.png"),
		"resized":   filepath.Join("Assets", "resized_image.png"),
		"masked":    filepath.Join("Assets", "mask.png"),
		"trimmed":   filepath.Join("Assets", "trimmed_image.png"),
		"finished":  filepath.Join("Assets", "vinyl_finished.png"),
		"frame 7":   filepath.Join("Assets", "Frames", "okcomputer", "7.png"),
		"animation": filepath.Join("Assets", "finished_gif.gif"),
	}
	got := map[string]string{
		"source":    l.Source,
		"vinyl":     l.Vinyl,
		"resized":   l.Resized,
		"masked":    l.Masked,
		"trimmed":   l.Trimmed,
		"finished":  l.Finished,
		"frame 7":   l.FramePath(7),
		"animation": l.Animation,
	}

	for k, w := range want {
		if got[k] != w {
			t.Errorf("%s = %q, want %q", k, got[k], w)
		}
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	storage, err := NewLocalStorage(filepath.Join(t.TempDir(), "Assets"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return storage
}
