package scanner_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"apkharvest/internal/scanner"
	"apkharvest/internal/testsupport"
)

type collector struct {
	mu    sync.Mutex
	files []scanner.File
}

func (c *collector) visit(_ context.Context, f scanner.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = append(c.files, f)
}

func (c *collector) rels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.files))
	for _, f := range c.files {
		out = append(out, filepath.ToSlash(f.RelPath))
	}
	sort.Strings(out)
	return out
}

func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "a.png"), 10)
	testsupport.WriteFile(t, filepath.Join(root, "sub", "b.mp3"), 10)
	testsupport.WriteFile(t, filepath.Join(root, "sub", "deep", "c.txt"), 10)
	testsupport.WriteFile(t, filepath.Join(root, "_apk_extracted", "app", "d.png"), 10)
	if err := os.Symlink(filepath.Join(root, "a.png"), filepath.Join(root, "link.png")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	return root
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScanVisitsEveryRegularFileOnce(t *testing.T) {
	root := buildTree(t)
	for _, parallel := range []bool{false, true} {
		c := &collector{}
		res, err := scanner.Scan(context.Background(), root, "loose", c.visit, scanner.Options{Parallel: parallel, Workers: 4})
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		want := []string{"_apk_extracted/app/d.png", "a.png", "link.png", "sub/b.mp3", "sub/deep/c.txt"}
		if got := c.rels(); !equal(got, want) {
			t.Fatalf("parallel=%v: got %v want %v", parallel, got, want)
		}
		if res.Files != int64(len(want)) {
			t.Fatalf("parallel=%v: files=%d", parallel, res.Files)
		}
		for _, f := range c.files {
			if f.Label != "loose" {
				t.Fatalf("unexpected label %q", f.Label)
			}
		}
	}
}

func TestScanLoosePredicateExcludesTempRootAndSymlinks(t *testing.T) {
	root := buildTree(t)
	exclude := scanner.AnyOf(scanner.ExcludeSymlinks, scanner.ExcludeUnder(filepath.Join(root, "_apk_extracted")))

	c := &collector{}
	res, err := scanner.Scan(context.Background(), root, "loose", c.visit, scanner.Options{Parallel: true, Workers: 2, Exclude: exclude})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{"a.png", "sub/b.mp3", "sub/deep/c.txt"}
	if got := c.rels(); !equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if res.Excluded != 2 {
		t.Fatalf("excluded: got %d want 2", res.Excluded)
	}
}

func TestScanExtractedTreeIncludesFilesUnderTempRoot(t *testing.T) {
	root := buildTree(t)
	tree := filepath.Join(root, "_apk_extracted", "app")

	c := &collector{}
	if _, err := scanner.Scan(context.Background(), tree, "app", c.visit, scanner.Options{}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := c.rels(); !equal(got, []string{"d.png"}) {
		t.Fatalf("got %v", got)
	}
	if c.files[0].Label != "app" {
		t.Fatalf("label: got %q", c.files[0].Label)
	}
}

func TestScanMissingRoot(t *testing.T) {
	c := &collector{}
	if _, err := scanner.Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), "x", c.visit, scanner.Options{}); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestScanCancelled(t *testing.T) {
	root := buildTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &collector{}
	if _, err := scanner.Scan(ctx, root, "x", c.visit, scanner.Options{}); err == nil {
		t.Fatal("expected context error")
	}
	if len(c.files) != 0 {
		t.Fatalf("expected no visits after cancellation, got %d", len(c.files))
	}
}

func TestIsWithin(t *testing.T) {
	sep := string(filepath.Separator)
	tests := []struct {
		path, dir string
		want      bool
	}{
		{sep + "a" + sep + "b", sep + "a", true},
		{sep + "a", sep + "a", true},
		{sep + "ab", sep + "a", false},
		{sep + "a", sep + "a" + sep + "b", false},
	}
	for _, tt := range tests {
		if got := scanner.IsWithin(tt.path, tt.dir); got != tt.want {
			t.Errorf("IsWithin(%q, %q) = %v, want %v", tt.path, tt.dir, got, tt.want)
		}
	}
}
