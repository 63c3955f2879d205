package control

import (
	"sync"
	"testing"
	"time"

	"github.com/smazurov/asciinode/internal/settings"
)

type patchRecorder struct {
	mu      sync.Mutex
	patches []settings.Patch
}

func (r *patchRecorder) apply(p settings.Patch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, p)
}

func (r *patchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patches)
}

func (r *patchRecorder) last() settings.Patch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.patches[len(r.patches)-1]
}

func waitCount(t *testing.T, r *patchRecorder, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for r.count() < n {
		select {
		case <-deadline:
			t.Fatalf("applied %d patches, want %d", r.count(), n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	rec := &patchRecorder{}
	d := NewDebouncer(30*time.Millisecond, rec.apply)
	defer d.Stop()

	// A burst of single-field patches becomes one merged patch.
	d.Submit(settings.Patch{Definition: intPtr(3)})
	d.Submit(settings.Patch{Definition: intPtr(7)})
	d.Submit(settings.Patch{Theme: strPtr("amber")})

	waitCount(t, rec, 1)
	time.Sleep(60 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("applied %d times, want 1", rec.count())
	}

	p := rec.last()
	if p.Definition == nil || *p.Definition != 7 {
		t.Errorf("definition = %v, want last write 7", p.Definition)
	}
	if p.Theme == nil || *p.Theme != "amber" {
		t.Errorf("theme = %v", p.Theme)
	}
}

func TestDebouncerSeparateWindows(t *testing.T) {
	rec := &patchRecorder{}
	d := NewDebouncer(20*time.Millisecond, rec.apply)
	defer d.Stop()

	d.Submit(settings.Patch{Definition: intPtr(3)})
	waitCount(t, rec, 1)

	d.Submit(settings.Patch{Definition: intPtr(8)})
	waitCount(t, rec, 2)

	if p := rec.last(); p.Definition == nil || *p.Definition != 8 {
		t.Errorf("second window patch = %+v", p)
	}
}

func TestDebouncerFlush(t *testing.T) {
	rec := &patchRecorder{}
	d := NewDebouncer(time.Hour, rec.apply)
	defer d.Stop()

	d.Submit(settings.Patch{Invert: boolPtr(true)})
	d.Flush()
	if rec.count() != 1 {
		t.Fatalf("flush applied %d patches", rec.count())
	}

	// Nothing pending after a flush.
	d.Flush()
	if rec.count() != 1 {
		t.Error("second flush re-applied the patch")
	}
}

func TestDebouncerIgnoresEmptyPatch(t *testing.T) {
	rec := &patchRecorder{}
	d := NewDebouncer(10*time.Millisecond, rec.apply)
	defer d.Stop()

	d.Submit(settings.Patch{})
	time.Sleep(40 * time.Millisecond)
	if rec.count() != 0 {
		t.Error("empty patch was applied")
	}
}

func TestDebouncerStopDiscards(t *testing.T) {
	rec := &patchRecorder{}
	d := NewDebouncer(20*time.Millisecond, rec.apply)

	d.Submit(settings.Patch{Invert: boolPtr(true)})
	d.Stop()
	time.Sleep(60 * time.Millisecond)
	if rec.count() != 0 {
		t.Error("stopped debouncer still applied")
	}
}
