package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	root := t.TempDir()
	s, err := NewLocalStorage(filepath.Join(root, "audio"), filepath.Join(root, "temp"))
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	return s
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates directories if not exist", func(t *testing.T) {
		root := t.TempDir()
		audio := filepath.Join(root, "a", "audio")
		temp := filepath.Join(root, "b", "temp")

		s, err := NewLocalStorage(audio, temp)
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}
		for _, dir := range []string{s.AudioDir(), s.TempDir()} {
			info, err := os.Stat(dir)
			if err != nil {
				t.Fatalf("directory not created: %v", err)
			}
			if !info.IsDir() {
				t.Errorf("%s: expected directory, got file", dir)
			}
		}
	})

	t.Run("requires audio directory", func(t *testing.T) {
		if _, err := NewLocalStorage("", t.TempDir()); err == nil {
			t.Error("expected error for empty audio directory")
		}
	})

	t.Run("uses default temp directory when empty", func(t *testing.T) {
		s, err := NewLocalStorage(t.TempDir(), "")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}
		expected := filepath.Join(os.TempDir(), "radio-curator")
		if s.TempDir() != expected {
			t.Errorf("TempDir() = %v, want %v", s.TempDir(), expected)
		}
	})
}

func TestLocalStorage_FindCached(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	writeFile(t, s.PermanentPath("Song [dQw4w9WgXcQ].webm"), "x")
	writeFile(t, s.PermanentPath("dQw4w9WgXcQ-partial.webm.part"), "x")

	t.Run("finds file containing id", func(t *testing.T) {
		path, ok := s.FindCached(ctx, "dQw4w9WgXcQ")
		if !ok {
			t.Fatal("expected cache hit")
		}
		if filepath.Base(path) != "Song [dQw4w9WgXcQ].webm" {
			t.Errorf("path = %v", path)
		}
	})

	t.Run("misses unknown id", func(t *testing.T) {
		if _, ok := s.FindCached(ctx, "aaaaaaaaaaa"); ok {
			t.Error("expected cache miss")
		}
	})

	t.Run("empty id never matches", func(t *testing.T) {
		if _, ok := s.FindCached(ctx, ""); ok {
			t.Error("expected cache miss for empty id")
		}
	})
}

func TestLocalStorage_Promote(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	t.Run("moves temp file into permanent area", func(t *testing.T) {
		tmp := s.TempPath("track.webm")
		writeFile(t, tmp, "audio")

		dst, err := s.Promote(ctx, tmp)
		if err != nil {
			t.Fatalf("Promote() error = %v", err)
		}
		if dst != s.PermanentPath("track.webm") {
			t.Errorf("dst = %v", dst)
		}
		if _, err := os.Stat(tmp); !os.IsNotExist(err) {
			t.Error("temp file should be gone after promotion")
		}
		if !s.ExistsPermanent("track.webm") {
			t.Error("promoted file should exist in permanent area")
		}
	})

	t.Run("rejects files outside temp area", func(t *testing.T) {
		outside := filepath.Join(t.TempDir(), "x.webm")
		writeFile(t, outside, "audio")

		_, err := s.Promote(ctx, outside)
		if !errors.Is(err, ErrNotInTempArea) {
			t.Errorf("expected ErrNotInTempArea, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := s.Promote(cctx, s.TempPath("y.webm")); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}

func TestLocalStorage_CopyIntoPlace(t *testing.T) {
	s := setupTestStorage(t)
	src := filepath.Join(t.TempDir(), "src.webm")
	writeFile(t, src, "payload")
	dst := s.PermanentPath("src.webm")

	if err := s.copyIntoPlace(src, dst); err != nil {
		t.Fatalf("copyIntoPlace() error = %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("content = %q", got)
	}

	names, err := s.ListPermanent(context.Background())
	if err != nil {
		t.Fatalf("ListPermanent() error = %v", err)
	}
	if len(names) != 1 {
		t.Errorf("staging file leaked: %v", names)
	}
}

func TestLocalStorage_Discard(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	t.Run("removes temp file", func(t *testing.T) {
		tmp := s.TempPath("bad.webm")
		writeFile(t, tmp, "x")
		if err := s.Discard(ctx, tmp); err != nil {
			t.Fatalf("Discard() error = %v", err)
		}
		if _, err := os.Stat(tmp); !os.IsNotExist(err) {
			t.Error("file should be removed")
		}
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		if err := s.Discard(ctx, s.TempPath("missing.webm")); err != nil {
			t.Errorf("Discard() error = %v", err)
		}
	})

	t.Run("refuses permanent files", func(t *testing.T) {
		perm := s.PermanentPath("keep.webm")
		writeFile(t, perm, "x")
		err := s.Discard(ctx, perm)
		if !errors.Is(err, ErrProtectedPath) {
			t.Errorf("expected ErrProtectedPath, got %v", err)
		}
		if !s.ExistsPermanent("keep.webm") {
			t.Error("permanent file must survive")
		}
	})
}

func TestLocalStorage_ClearTemp(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	writeFile(t, s.TempPath("a.webm"), "x")
	writeFile(t, s.TempPath("b.mp3"), "x")
	writeFile(t, s.PermanentPath("c.webm"), "x")

	if err := s.ClearTemp(ctx); err != nil {
		t.Fatalf("ClearTemp() error = %v", err)
	}
	entries, err := os.ReadDir(s.TempDir())
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp area not empty: %d entries", len(entries))
	}
	if !s.ExistsPermanent("c.webm") {
		t.Error("permanent area must be untouched")
	}
}

func TestLocalStorage_ListPermanent(t *testing.T) {
	s := setupTestStorage(t)
	writeFile(t, s.PermanentPath("b.webm"), "x")
	writeFile(t, s.PermanentPath("a.mp3"), "x")
	writeFile(t, s.PermanentPath(".hidden"), "x")
	writeFile(t, s.PermanentPath("c.webm.part"), "x")
	if err := os.Mkdir(s.PermanentPath("subdir"), 0o750); err != nil {
		t.Fatal(err)
	}

	names, err := s.ListPermanent(context.Background())
	if err != nil {
		t.Fatalf("ListPermanent() error = %v", err)
	}
	if len(names) != 2 || names[0] != "a.mp3" || names[1] != "b.webm" {
		t.Errorf("names = %v", names)
	}
}

func TestLocalStorage_Archive(t *testing.T) {
	s := setupTestStorage(t)
	_, err := s.Archive(context.Background(), "any")
	if !errors.Is(err, ErrArchiveNotConfigured) {
		t.Errorf("expected ErrArchiveNotConfigured, got %v", err)
	}
}
