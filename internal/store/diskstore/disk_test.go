package diskstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/discochess/cachesim/internal/codec"
	"github.com/discochess/cachesim/internal/store"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestStore_ReadTrace(t *testing.T) {
	dir := t.TempDir()
	raw := []byte("1,2,3\n")
	zst, err := codec.Encode(codec.NewZstd(), raw)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "plain.csv"), raw)
	writeFile(t, filepath.Join(dir, "cdn", "day1.csv.zst"), zst)

	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	for _, name := range []string{"plain.csv", "cdn/day1.csv.zst"} {
		got, err := s.ReadTrace(context.Background(), name)
		if err != nil {
			t.Fatalf("ReadTrace(%q) error = %v", name, err)
		}
		if string(got) != string(raw) {
			t.Errorf("ReadTrace(%q) = %q, want %q", name, got, raw)
		}
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if want := []string{"cdn/day1.csv.zst", "plain.csv"}; !slices.Equal(names, want) {
		t.Errorf("List() = %v, want %v", names, want)
	}
}

func TestStore_ReadTraceNotFound(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s.ReadTrace(context.Background(), "missing.csv"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReadTrace() error = %v, want ErrNotFound", err)
	}
}

func TestStore_ReadTraceStaysUnderRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	writeFile(t, filepath.Join(parent, "secret.csv"), []byte("x"))
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	s, _ := New(root)
	if _, err := s.ReadTrace(context.Background(), "../secret.csv"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReadTrace(../secret.csv) error = %v, want ErrNotFound", err)
	}
}

func TestStore_ReadTraceCancelled(t *testing.T) {
	s, _ := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ReadTrace(ctx, "x.csv"); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadTrace() error = %v, want context.Canceled", err)
	}
}

func TestNew_InvalidPath(t *testing.T) {
	if _, err := New("/nonexistent/path"); err == nil {
		t.Error("New() with invalid path should return error")
	}
}

func TestNew_NotDirectory(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	writeFile(t, f, nil)
	if _, err := New(f); err == nil {
		t.Error("New() with file (not directory) should return error")
	}
}
