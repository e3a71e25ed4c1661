package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"apkharvest/internal/logging"
)

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	oldDir := filepath.Join(tmpDir, "old-app")
	if err := os.Mkdir(oldDir, 0o755); err != nil {
		t.Fatalf("create old dir: %v", err)
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldDir, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	recentDir := filepath.Join(tmpDir, "recent-app")
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatalf("create recent dir: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Removed) != 1 {
		t.Fatalf("expected 1 removed, got %d", len(result.Removed))
	}
	if result.Removed[0] != oldDir {
		t.Errorf("expected %s to be removed, got %s", oldDir, result.Removed[0])
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Error("old directory should have been removed")
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Error("recent directory should still exist")
	}
}

func TestCleanStaleZeroAgeRemovesEverything(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"a", "b"} {
		if err := os.MkdirAll(filepath.Join(tmpDir, name, "res"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	keep := filepath.Join(tmpDir, "note.txt")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := CleanStale(context.Background(), tmpDir, 0, logging.NewNop())
	if len(result.Removed) != 2 {
		t.Fatalf("expected 2 removed, got %v", result.Removed)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("plain files should be left alone")
	}
}

func TestPrepareAndRemove(t *testing.T) {
	root := filepath.Join(t.TempDir(), "origin", "_apk_extracted")
	if err := Prepare(root); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "app", "res"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := Remove(root); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("root still exists: %v", err)
	}
	if err := Remove(root); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if err := Prepare("  "); err == nil {
		t.Fatal("expected error for empty root")
	}
}
