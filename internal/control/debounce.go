package control

import (
	"sync"
	"time"

	"github.com/smazurov/asciinode/internal/settings"
)

// DefaultDebounceWindow coalesces rapid-fire patches (config file saves,
// slider drags relayed by a UI) into one Set.
const DefaultDebounceWindow = 150 * time.Millisecond

// Debouncer merges submitted patches field-by-field, last write winning,
// and applies the merged patch once the window goes quiet.
type Debouncer struct {
	apply  func(settings.Patch)
	window time.Duration

	mu      sync.Mutex
	pending settings.Patch
	dirty   bool
	timer   *time.Timer
}

// NewDebouncer calls apply with the merged patch after each quiet window.
func NewDebouncer(window time.Duration, apply func(settings.Patch)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{apply: apply, window: window}
}

// Submit merges p into the pending patch and restarts the window.
func (d *Debouncer) Submit(p settings.Patch) {
	if p.IsZero() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = d.pending.Merge(p)
	d.dirty = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.dirty {
		d.mu.Unlock()
		return
	}
	patch := d.pending
	d.pending = settings.Patch{}
	d.dirty = false
	d.mu.Unlock()

	d.apply(patch)
}

// Flush applies any pending patch immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fire()
}

// Stop discards any pending patch.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = settings.Patch{}
	d.dirty = false
}
