package feeder

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ids.txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLineFeederRoundRobin(t *testing.T) {
	path := writeTempFile(t, "alpha\nbeta\ngamma\n")
	f, err := NewLineFeeder(path)
	if err != nil {
		t.Fatalf("NewLineFeeder: %v", err)
	}
	defer f.Close()

	if f.Len() != 3 {
		t.Fatalf("expected 3 ids, got %d", f.Len())
	}

	ctx := context.Background()
	want := []string{"alpha", "beta", "gamma", "alpha", "beta"}
	for i, expected := range want {
		got, err := f.Next(ctx)
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if got != expected {
			t.Fatalf("Next #%d: got %q, want %q", i, got, expected)
		}
	}
}

func TestLineFeederSkipsBlankLines(t *testing.T) {
	path := writeTempFile(t, "\n  one  \n\n\ntwo\n   \n")
	f, err := NewLineFeeder(path)
	if err != nil {
		t.Fatalf("NewLineFeeder: %v", err)
	}
	defer f.Close()

	if f.Len() != 2 {
		t.Fatalf("expected 2 ids, got %d", f.Len())
	}
	got, _ := f.Next(context.Background())
	if got != "one" {
		t.Fatalf("expected trimmed id, got %q", got)
	}
}

func TestLineFeederEmptyFile(t *testing.T) {
	path := writeTempFile(t, "\n\n  \n")
	if _, err := NewLineFeeder(path); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestLineFeederMissingFile(t *testing.T) {
	if _, err := NewLineFeeder(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLineFeederConcurrentAccess(t *testing.T) {
	path := writeTempFile(t, "a\nb\nc\nd\n")
	f, err := NewLineFeeder(path)
	if err != nil {
		t.Fatalf("NewLineFeeder: %v", err)
	}
	defer f.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := f.Next(ctx); err != nil {
					t.Errorf("Next: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestLineFeederCancelledContext(t *testing.T) {
	path := writeTempFile(t, "x\n")
	f, err := NewLineFeeder(path)
	if err != nil {
		t.Fatalf("NewLineFeeder: %v", err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Next(ctx); err == nil {
		t.Fatal("expected context error")
	}
}
