package harvest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"apkharvest/internal/classify"
	"apkharvest/internal/config"
	"apkharvest/internal/dedup"
	"apkharvest/internal/fingerprint"
	"apkharvest/internal/logging"
	"apkharvest/internal/scanner"
	"apkharvest/internal/testsupport"
)

type handlerFixture struct {
	handler  *Handler
	registry *dedup.Registry
	cfg      *config.Config
	origin   string
}

func newHandlerFixture(t *testing.T, opts ...testsupport.ConfigOption) handlerFixture {
	t.Helper()

	opts = append([]testsupport.ConfigOption{testsupport.WithOutputDir(t.TempDir())}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	registry := dedup.NewRegistry()
	handler := NewHandler(HandlerConfig{
		Classifier: classify.New(classify.Rules{
			ImageExtensions: cfg.Harvest.ImageExtensions,
			MediaExtensions: cfg.Harvest.MediaExtensions,
			Keywords:        cfg.Harvest.BugdroidKeywords,
			Scope:           classify.Scope(cfg.Harvest.KeywordScope),
		}),
		Registry:     registry,
		Fingerprint:  fingerprint.DefaultOptions(),
		ImageDir:     cfg.ImageOutputDir(),
		BugdroidDir:  cfg.BugdroidOutputDir(),
		MediaDir:     cfg.MediaOutputDir(),
		UseHardlinks: cfg.Harvest.UseHardlinks,
		Logger:       logging.NewNop(),
	})
	if err := handler.EnsureOutputDirs(); err != nil {
		t.Fatalf("EnsureOutputDirs: %v", err)
	}
	return handlerFixture{handler: handler, registry: registry, cfg: cfg, origin: cfg.Paths.OriginDir}
}

func (f handlerFixture) handle(t *testing.T, rel string) Outcome {
	t.Helper()
	return f.handler.Handle(context.Background(), scanner.File{
		Path:    filepath.Join(f.origin, rel),
		RelPath: rel,
		Label:   LooseLabel,
	})
}

func TestDestinationName(t *testing.T) {
	tests := []struct {
		category classify.Category
		tag      string
		want     string
	}{
		{classify.Image, "64x32", "app_64x32_icon.png"},
		{classify.BugdroidImage, "16x16", "app_16x16_icon.png"},
		{classify.Image, "", "app_unknown_icon.png"},
		{classify.Media, "ignored", "app_icon.png"},
	}
	for _, tt := range tests {
		if got := DestinationName(tt.category, "app", "icon.png", tt.tag); got != tt.want {
			t.Errorf("DestinationName(%s, %q) = %q, want %q", tt.category, tt.tag, got, tt.want)
		}
	}
}

func TestHandleRoutesByCategory(t *testing.T) {
	f := newHandlerFixture(t)
	testsupport.WritePNG(t, filepath.Join(f.origin, "robot_icon.png"), 8, 8)
	testsupport.WriteBytes(t, filepath.Join(f.origin, "icon.png"), testsupport.PNGBytes(t, 64, 32, 7))
	testsupport.WriteBytes(t, filepath.Join(f.origin, "clip.mp3"), []byte("not really audio"))
	testsupport.WriteBytes(t, filepath.Join(f.origin, "readme.txt"), []byte("hello"))

	want := map[string]Outcome{
		"robot_icon.png": OutcomeMaterialized,
		"icon.png":       OutcomeMaterialized,
		"clip.mp3":       OutcomeMaterialized,
		"readme.txt":     OutcomeIgnored,
	}
	for rel, outcome := range want {
		if got := f.handle(t, rel); got != outcome {
			t.Errorf("Handle(%s) = %s, want %s", rel, got, outcome)
		}
	}

	if got := testsupport.ListFiles(t, f.cfg.BugdroidOutputDir()); !reflect.DeepEqual(got, []string{"loose_8x8_robot_icon.png"}) {
		t.Errorf("bugdroid dir = %v", got)
	}
	if got := testsupport.ListFiles(t, f.cfg.ImageOutputDir()); !reflect.DeepEqual(got, []string{"loose_64x32_icon.png"}) {
		t.Errorf("image dir = %v", got)
	}
	if got := testsupport.ListFiles(t, f.cfg.MediaOutputDir()); !reflect.DeepEqual(got, []string{"loose_clip.mp3"}) {
		t.Errorf("media dir = %v", got)
	}

	stats := f.handler.Stats()
	if stats.Ignored != 1 {
		t.Errorf("Ignored = %d, want 1", stats.Ignored)
	}
	if got := stats.Categories[classify.Media].Bytes; got != int64(len("not really audio")) {
		t.Errorf("media bytes = %d", got)
	}
}

func TestHandleUndecodableImageGetsUnknownTag(t *testing.T) {
	f := newHandlerFixture(t)
	testsupport.WriteBytes(t, filepath.Join(f.origin, "broken.png"), []byte("\x89PNG truncated"))

	if got := f.handle(t, "broken.png"); got != OutcomeMaterialized {
		t.Fatalf("Handle = %s", got)
	}
	if got := testsupport.ListFiles(t, f.cfg.ImageOutputDir()); !reflect.DeepEqual(got, []string{"loose_unknown_broken.png"}) {
		t.Fatalf("image dir = %v", got)
	}
}

func TestHandleIdenticalContentMaterializedOnce(t *testing.T) {
	f := newHandlerFixture(t)
	data := testsupport.PNGBytes(t, 10, 10, 1)
	testsupport.WriteBytes(t, filepath.Join(f.origin, "a.png"), data)
	testsupport.WriteBytes(t, filepath.Join(f.origin, "nested", "b.png"), data)

	if got := f.handle(t, "a.png"); got != OutcomeMaterialized {
		t.Fatalf("first = %s", got)
	}
	if got := f.handle(t, filepath.Join("nested", "b.png")); got != OutcomeDuplicate {
		t.Fatalf("second = %s", got)
	}
	if got := testsupport.ListFiles(t, f.cfg.ImageOutputDir()); len(got) != 1 {
		t.Fatalf("image dir = %v", got)
	}
	if got := f.handler.Stats().Categories[classify.Image].Duplicates; got != 1 {
		t.Fatalf("duplicates = %d", got)
	}
}

func TestHandleQuickCollisionKeepsDistinctContent(t *testing.T) {
	f := newHandlerFixture(t)
	size := 4 * fingerprint.DefaultPartialSize
	first := bytes.Repeat([]byte{0x11}, int(size))
	second := bytes.Repeat([]byte{0x11}, int(size))
	// Differ only outside the head window so the quick keys collide.
	second[2*fingerprint.DefaultPartialSize] = 0x22
	testsupport.WriteBytes(t, filepath.Join(f.origin, "one.mp3"), first)
	testsupport.WriteBytes(t, filepath.Join(f.origin, "two.mp3"), second)

	if got := f.handle(t, "one.mp3"); got != OutcomeMaterialized {
		t.Fatalf("first = %s", got)
	}
	if got := f.handle(t, "two.mp3"); got != OutcomeMaterialized {
		t.Fatalf("second = %s", got)
	}
	if got := testsupport.ListFiles(t, f.cfg.MediaOutputDir()); !reflect.DeepEqual(got, []string{"loose_one.mp3", "loose_two.mp3"}) {
		t.Fatalf("media dir = %v", got)
	}
	stats := f.registry.Stats()
	if stats.QuickKeys != 1 || stats.FullChecks != 2 {
		t.Fatalf("registry stats = %+v, want 1 quick key and 2 full checks", stats)
	}
}

func TestHandleDistinctContentSameNameGetsSuffix(t *testing.T) {
	f := newHandlerFixture(t)
	testsupport.WriteBytes(t, filepath.Join(f.origin, "a", "clip.mp3"), []byte("first"))
	testsupport.WriteBytes(t, filepath.Join(f.origin, "b", "clip.mp3"), []byte("second"))

	f.handle(t, filepath.Join("a", "clip.mp3"))
	f.handle(t, filepath.Join("b", "clip.mp3"))

	if got := testsupport.ListFiles(t, f.cfg.MediaOutputDir()); !reflect.DeepEqual(got, []string{"loose_clip-2.mp3", "loose_clip.mp3"}) {
		t.Fatalf("media dir = %v", got)
	}
}

func TestHandleCopiesWhenHardlinksDisabled(t *testing.T) {
	f := newHandlerFixture(t, testsupport.WithHardlinks(false))
	src := filepath.Join(f.origin, "clip.mp3")
	testsupport.WriteBytes(t, src, []byte("audio"))

	if got := f.handle(t, "clip.mp3"); got != OutcomeMaterialized {
		t.Fatalf("Handle = %s", got)
	}
	stats := f.handler.Stats().Categories[classify.Media]
	if stats.Copied != 1 || stats.Linked != 0 {
		t.Fatalf("media stats = %+v", stats)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		t.Fatal(err)
	}
	dstInfo, err := os.Stat(filepath.Join(f.cfg.MediaOutputDir(), "loose_clip.mp3"))
	if err != nil {
		t.Fatal(err)
	}
	if os.SameFile(srcInfo, dstInfo) {
		t.Fatal("expected an independent copy")
	}
}

func TestHandleMissingFileIsUnreadable(t *testing.T) {
	f := newHandlerFixture(t)
	if got := f.handle(t, "gone.png"); got != OutcomeUnreadable {
		t.Fatalf("Handle = %s, want unreadable", got)
	}
	if got := f.handler.Stats().Unreadable; got != 1 {
		t.Fatalf("Unreadable = %d", got)
	}
}

func TestHandleCancelled(t *testing.T) {
	f := newHandlerFixture(t)
	testsupport.WriteBytes(t, filepath.Join(f.origin, "clip.mp3"), []byte("audio"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := f.handler.Handle(ctx, scanner.File{Path: filepath.Join(f.origin, "clip.mp3"), RelPath: "clip.mp3", Label: LooseLabel})
	if got != OutcomeCancelled {
		t.Fatalf("Handle = %s, want cancelled", got)
	}
}

func TestHandleConcurrentIdenticalContent(t *testing.T) {
	f := newHandlerFixture(t)
	data := []byte("the same bytes everywhere")
	const copies = 16
	for i := range copies {
		testsupport.WriteBytes(t, filepath.Join(f.origin, fmt.Sprintf("clip%02d.ogg", i)), data)
	}

	var wg sync.WaitGroup
	for i := range copies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.handle(t, fmt.Sprintf("clip%02d.ogg", i))
		}()
	}
	wg.Wait()

	if got := testsupport.ListFiles(t, f.cfg.MediaOutputDir()); len(got) != 1 {
		t.Fatalf("media dir = %v, want exactly one file", got)
	}
	if got := f.handler.Stats().Categories[classify.Media].Duplicates; got != copies-1 {
		t.Fatalf("duplicates = %d, want %d", got, copies-1)
	}
}
