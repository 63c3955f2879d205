package render

import (
	"context"
	"testing"
	"time"

	"github.com/smazurov/asciinode/internal/capture"
	"github.com/smazurov/asciinode/internal/events"
	"github.com/smazurov/asciinode/internal/settings"
)

func startRenderStage(t *testing.T, s settings.Settings) (*Stage, chan capture.Frame, chan capture.Frame, context.CancelFunc, chan error) {
	t.Helper()
	in := make(chan capture.Frame, 2)
	out := make(chan capture.Frame, 2)
	st, err := NewStage(s, in, out, events.New())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- st.Run(ctx) }()
	return st, in, out, cancel, done
}

func TestStageRendersFrames(t *testing.T) {
	st, in, out, cancel, done := startRenderStage(t, testSettings("green"))
	defer cancel()

	w, h := st.OutputSize()
	in <- capture.Frame{RGB: uniformFrame(64, 48, 200, 200, 200), Width: 64, Height: 48, Seq: 5}

	select {
	case fr := <-out:
		if int(fr.Width) != w || int(fr.Height) != h {
			t.Errorf("frame %dx%d, want %dx%d", fr.Width, fr.Height, w, h)
		}
		if len(fr.RGB) != w*h*3 {
			t.Errorf("buffer len = %d", len(fr.RGB))
		}
		if fr.Seq != 5 {
			t.Errorf("seq = %d, want 5", fr.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no rendered frame")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run = %v", err)
	}
}

func TestStageStyleOnlyRebuild(t *testing.T) {
	st, _, _, cancel, done := startRenderStage(t, testSettings("green"))
	defer cancel()

	before := st.renderer

	s := testSettings("green")
	s.Invert = true
	s.Curve = settings.CurveExponential
	reply := make(chan error, 1)
	st.Commands() <- Rebuild{Settings: s, Reply: reply}
	select {
	case err := <-reply:
		if err != nil {
			t.Fatalf("rebuild = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}

	cancel()
	<-done
	if st.renderer != before {
		t.Error("style-only change replaced the renderer")
	}
	if !st.renderer.invert || st.renderer.curve != settings.CurveExponential {
		t.Error("style not applied")
	}
}

func TestStageFullRebuildOnThemeChange(t *testing.T) {
	st, _, _, cancel, done := startRenderStage(t, testSettings("green"))
	defer cancel()

	before := st.renderer

	s := testSettings("amber")
	s.Definition = 5
	reply := make(chan error, 1)
	st.Commands() <- Rebuild{Settings: s, Reply: reply}
	select {
	case err := <-reply:
		if err != nil {
			t.Fatalf("rebuild = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
	}

	cancel()
	<-done
	if st.renderer == before {
		t.Error("theme change did not rebuild the renderer")
	}
	if st.current.Theme != "amber" || st.current.Definition != 5 {
		t.Errorf("current = %+v", st.current)
	}
}

func TestStagePublishesCacheRebuilt(t *testing.T) {
	bus := events.New()
	got := make(chan events.CacheRebuiltEvent, 2)
	unsub := bus.Subscribe(func(e events.CacheRebuiltEvent) { got <- e })
	defer unsub()

	in := make(chan capture.Frame)
	out := make(chan capture.Frame)
	st, err := NewStage(testSettings("green"), in, out, bus)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-got:
		cols, rows := st.renderer.Grid()
		if e.Columns != cols || e.Rows != rows {
			t.Errorf("event grid %dx%d, want %dx%d", e.Columns, e.Rows, cols, rows)
		}
		if e.Theme != "green" {
			t.Errorf("event theme = %q", e.Theme)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no cache-rebuilt event on startup")
	}
}
