package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smazurov/asciinode/internal/events"
	"github.com/smazurov/asciinode/internal/settings"
)

type fakeSource struct {
	frames chan Frame
	err    error
	path   string
	closed bool
}

func newFakeSource(path string) *fakeSource {
	return &fakeSource{frames: make(chan Frame, 16), path: path}
}

func (f *fakeSource) NextFrame(ctx context.Context) (Frame, error) {
	if f.err != nil {
		return Frame{}, f.err
	}
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case fr := <-f.frames:
		return fr, nil
	}
}

func (f *fakeSource) Resolution() settings.Resolution {
	return settings.Resolution{Width: 640, Height: 480}
}

func (f *fakeSource) Path() string { return f.path }

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func startStage(t *testing.T, src Source, open Opener, out chan Frame) (*Stage, context.CancelFunc, chan error) {
	t.Helper()
	s := NewStage(src, open, 0, nil, 1000, out, events.New())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return s, cancel, done
}

func TestStageDeliversFrames(t *testing.T) {
	src := newFakeSource("/dev/video0")
	out := make(chan Frame, 4)
	_, cancel, done := startStage(t, src, nil, out)
	defer cancel()

	src.frames <- Frame{Seq: 1, Width: 640, Height: 480}
	select {
	case fr := <-out:
		if fr.Seq != 1 {
			t.Errorf("seq = %d", fr.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run = %v", err)
	}
	if !src.closed {
		t.Error("source not closed on shutdown")
	}
}

func TestStageDropsWhenDownstreamFull(t *testing.T) {
	src := newFakeSource("/dev/video0")
	out := make(chan Frame, 1)
	s, cancel, done := startStage(t, src, nil, out)
	defer cancel()

	for i := 0; i < 10; i++ {
		src.frames <- Frame{Seq: uint64(i)}
	}

	deadline := time.After(2 * time.Second)
	for len(src.frames) > 0 {
		select {
		case <-deadline:
			t.Fatal("stage stopped consuming")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// One frame in the channel, the rest dropped; no reordering.
	fr := <-out
	if fr.Seq != 0 {
		t.Errorf("first delivered seq = %d, want 0", fr.Seq)
	}
	cancel()
	<-done
	if s.counter == nil {
		t.Fatal("stage missing counter")
	}
}

func TestStageFatalAfterConsecutiveErrors(t *testing.T) {
	src := newFakeSource("/dev/video0")
	src.err = errors.New("select timeout")
	out := make(chan Frame, 4)
	_, cancel, done := startStage(t, src, nil, out)
	defer cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run returned nil after persistent errors")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stage did not give up")
	}
	if !src.closed {
		t.Error("source not closed on fatal exit")
	}
}

func TestStageSetFrameRate(t *testing.T) {
	src := newFakeSource("/dev/video0")
	out := make(chan Frame, 4)
	s, cancel, done := startStage(t, src, nil, out)
	defer cancel()

	reply := make(chan error, 1)
	s.Commands() <- SetFrameRate{FPS: 15, Reply: reply}
	select {
	case err := <-reply:
		if err != nil {
			t.Errorf("SetFrameRate = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}

	cancel()
	<-done
	if s.fps != 15 {
		t.Errorf("fps = %d", s.fps)
	}
}

func TestStageReopenSwapsSource(t *testing.T) {
	first := newFakeSource("/dev/video0")
	second := newFakeSource("/dev/video2")
	open := func(index int, res *settings.Resolution, fps int) (Source, error) {
		if index == 2 {
			return second, nil
		}
		t.Errorf("unexpected open index %d", index)
		return nil, errors.New("no such camera")
	}

	out := make(chan Frame, 4)
	s, cancel, done := startStage(t, first, open, out)
	defer cancel()

	reply := make(chan error, 1)
	s.Commands() <- ReopenCamera{Index: 2, Reply: reply}
	select {
	case err := <-reply:
		if err != nil {
			t.Fatalf("reopen = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}
	if !first.closed {
		t.Error("old source not closed")
	}

	// Frames now come from the new source.
	second.frames <- Frame{Seq: 7}
	select {
	case fr := <-out:
		if fr.Seq != 7 {
			t.Errorf("seq = %d", fr.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from new source")
	}
	cancel()
	<-done
}

func TestStageReopenRollsBack(t *testing.T) {
	first := newFakeSource("/dev/video0")
	rollback := newFakeSource("/dev/video0")
	open := func(index int, res *settings.Resolution, fps int) (Source, error) {
		if index == 9 {
			return nil, errors.New("no such camera")
		}
		return rollback, nil
	}

	out := make(chan Frame, 4)
	s, cancel, done := startStage(t, first, open, out)
	defer cancel()

	reply := make(chan error, 1)
	s.Commands() <- ReopenCamera{Index: 9, Reply: reply}
	select {
	case err := <-reply:
		if err == nil {
			t.Fatal("reopen of missing camera succeeded")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}

	// Rolled back: frames from the replacement source still flow.
	rollback.frames <- Frame{Seq: 3}
	select {
	case fr := <-out:
		if fr.Seq != 3 {
			t.Errorf("seq = %d", fr.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stage dead after rollback")
	}
	cancel()
	<-done
}

func TestPaceInterval(t *testing.T) {
	if paceInterval(30) != time.Second/30 {
		t.Error("30fps interval wrong")
	}
	if paceInterval(0) != time.Second {
		t.Error("zero fps not clamped")
	}
}
