package dedup

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestTryAdmitFirstSeenSkipsFullHash(t *testing.T) {
	r := NewRegistry()
	calls := 0
	verdict, err := r.TryAdmit("10:abc", func() (string, error) {
		calls++
		return "full", nil
	})
	if err != nil {
		t.Fatalf("TryAdmit: %v", err)
	}
	if verdict != Admitted {
		t.Fatalf("got %v want admitted", verdict)
	}
	if calls != 0 {
		t.Fatalf("expected full hash to be skipped for first-seen content, got %d calls", calls)
	}
}

func TestTryAdmitDetectsDuplicateAfterLazyResolve(t *testing.T) {
	r := NewRegistry()
	firstCalls := 0
	if _, err := r.TryAdmit("q", func() (string, error) {
		firstCalls++
		return "same", nil
	}); err != nil {
		t.Fatal(err)
	}

	verdict, err := r.TryAdmit("q", Known("same"))
	if err != nil {
		t.Fatal(err)
	}
	if verdict != Duplicate {
		t.Fatalf("got %v want duplicate", verdict)
	}
	if firstCalls != 1 {
		t.Fatalf("expected first file's full hash to be resolved once, got %d", firstCalls)
	}

	// Later collisions reuse the resolved set.
	if v, _ := r.TryAdmit("q", Known("same")); v != Duplicate {
		t.Fatalf("got %v want duplicate", v)
	}
	if firstCalls != 1 {
		t.Fatalf("first file's full hash resolved again: %d", firstCalls)
	}
}

func TestTryAdmitQuickCollisionWithDifferentContent(t *testing.T) {
	r := NewRegistry()
	r.TryAdmit("q", Known("full-a"))

	verdict, err := r.TryAdmit("q", Known("full-b"))
	if err != nil {
		t.Fatal(err)
	}
	if verdict != Admitted {
		t.Fatalf("quick collision with different content must be admitted, got %v", verdict)
	}
	if v, _ := r.TryAdmit("q", Known("full-b")); v != Duplicate {
		t.Fatalf("expected second full-b to be duplicate, got %v", v)
	}
	if v, _ := r.TryAdmit("q", Known("full-a")); v != Duplicate {
		t.Fatalf("expected second full-a to be duplicate, got %v", v)
	}
}

func TestTryAdmitFullErrorLeavesRegistryUnchanged(t *testing.T) {
	r := NewRegistry()
	r.TryAdmit("q", Known("full-a"))

	boom := errors.New("unreadable")
	if _, err := r.TryAdmit("q", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if v, _ := r.TryAdmit("q", Known("full-c")); v != Admitted {
		t.Fatalf("got %v want admitted", v)
	}
}

func TestTryAdmitVanishedFirstFile(t *testing.T) {
	r := NewRegistry()
	r.TryAdmit("q", func() (string, error) { return "", errors.New("gone") })
	if v, err := r.TryAdmit("q", Known("x")); err != nil || v != Admitted {
		t.Fatalf("got %v, %v want admitted", v, err)
	}
}

func TestTryAdmitConcurrentIdenticalContent(t *testing.T) {
	r := NewRegistry()
	const workers = 32
	var admitted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, err := r.TryAdmit("shared", Known("content"))
			if err != nil {
				t.Error(err)
				return
			}
			if v == Admitted {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := admitted.Load(); got != 1 {
		t.Fatalf("expected exactly one admission, got %d", got)
	}
	stats := r.Stats()
	if stats.Admitted != 1 || stats.Duplicates != workers-1 || stats.QuickKeys != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestTryAdmitConcurrentDistinctContent(t *testing.T) {
	r := NewRegistry()
	const workers = 16
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Half the workers share a quick key with distinct full keys.
			quick := fmt.Sprintf("q%d", i%2)
			if v, err := r.TryAdmit(quick, Known(fmt.Sprintf("f%d", i))); err != nil || v != Admitted {
				t.Errorf("worker %d: got %v, %v", i, v, err)
			}
		}()
	}
	wg.Wait()
	if stats := r.Stats(); stats.Admitted != workers || stats.Duplicates != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestVerdictString(t *testing.T) {
	if Admitted.String() != "admitted" || Duplicate.String() != "duplicate" {
		t.Fatal("unexpected verdict names")
	}
}
