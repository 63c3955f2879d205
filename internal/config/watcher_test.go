package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/asciinode/internal/logging"
	"github.com/smazurov/asciinode/internal/settings"
)

func TestWatcherReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[settings]\ndefinition = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(path, LoadSettingsPatch, logging.GetLogger("test"),
		WithDebounce[settings.Patch](20*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	got := make(chan settings.Patch, 1)
	w.OnReload(func(p settings.Patch) { got <- p })

	if err := os.WriteFile(path, []byte("[settings]\ndefinition = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		if p.Definition == nil || *p.Definition != 9 {
			t.Errorf("reloaded patch = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s")
	}
}

func TestWatcherDebounceCoalesces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[settings]\nfps = 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(path, LoadSettingsPatch, logging.GetLogger("test"),
		WithDebounce[settings.Patch](100*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	got := make(chan settings.Patch, 8)
	w.OnReload(func(p settings.Patch) { got <- p })

	// Burst of writes inside one debounce window.
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("[settings]\nfps = 25\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case p := <-got:
		if p.FPS == nil || *p.FPS != 25 {
			t.Errorf("patch = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s")
	}

	// The burst should have produced a single notification.
	select {
	case <-got:
		t.Error("debounce delivered more than once for one burst")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherErrorHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[settings]\nfps = 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	errs := make(chan error, 1)
	w := NewWatcher(path, LoadSettingsPatch, logging.GetLogger("test"),
		WithDebounce[settings.Patch](20*time.Millisecond),
		WithErrorHandler[settings.Patch](func(err error) { errs <- err }))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("not [valid toml\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Error("nil error delivered")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler not called within 2s")
	}
}

func TestWatcherMissingFile(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "absent.toml"), LoadSettingsPatch, logging.GetLogger("test"))
	if err := w.Start(); err == nil {
		w.Stop()
		t.Error("expected error watching a missing file")
	}
}
