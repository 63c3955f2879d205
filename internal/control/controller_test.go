package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smazurov/asciinode/internal/capture"
	"github.com/smazurov/asciinode/internal/events"
	"github.com/smazurov/asciinode/internal/output"
	"github.com/smazurov/asciinode/internal/pipeline"
	"github.com/smazurov/asciinode/internal/settings"
)

type stubSource struct {
	frames chan capture.Frame
	path   string
}

func (s *stubSource) NextFrame(ctx context.Context) (capture.Frame, error) {
	select {
	case <-ctx.Done():
		return capture.Frame{}, ctx.Err()
	case fr := <-s.frames:
		return fr, nil
	}
}

func (s *stubSource) Resolution() settings.Resolution {
	return settings.Resolution{Width: 640, Height: 480}
}

func (s *stubSource) Path() string { return s.path }
func (s *stubSource) Close() error { return nil }

type stubDriver struct{ path string }

func (d *stubDriver) Negotiate(w, h uint32) (output.Format, error) {
	return output.Format{Width: w, Height: h, FrameSize: int(w) * int(h) * 3}, nil
}
func (d *stubDriver) Write(frame []byte) error { return nil }
func (d *stubDriver) Path() string             { return d.path }
func (d *stubDriver) Close() error             { return nil }

type testRig struct {
	controller *Controller
	bus        *events.Bus
	opened     *[]int
	cancel     context.CancelFunc
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	s := settings.Defaults()
	s.Theme = "green"
	s.Definition = 2
	s.CameraIndex = 0

	var opened []int
	captureOpen := func(index int, res *settings.Resolution, fps int) (capture.Source, error) {
		opened = append(opened, index)
		if index >= 32 {
			return nil, errors.New("no such camera")
		}
		return &stubSource{frames: make(chan capture.Frame), path: "/dev/video0"}, nil
	}
	outputOpen := func(path string) (output.Driver, error) {
		return &stubDriver{path: path}, nil
	}

	bus := events.New()
	src := &stubSource{frames: make(chan capture.Frame), path: "/dev/video0"}
	p, err := pipeline.New(src, captureOpen, &stubDriver{path: s.OutputDevice}, outputOpen, s, bus)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	t.Cleanup(cancel)

	c := NewController(s, p, bus)
	c.detect = func(outputDevice string) (int, bool) { return 1, true }
	c.maxFPS = func(index int, res settings.Resolution) (int, bool) { return 60, true }
	return &testRig{controller: c, bus: bus, opened: &opened, cancel: cancel}
}

func intPtr(v int) *int                         { return &v }
func strPtr(v string) *string                   { return &v }
func boolPtr(v bool) *bool                      { return &v }
func curvePtr(v settings.Curve) *settings.Curve { return &v }

func TestSetRejectsInvalidPatchAtomically(t *testing.T) {
	rig := newTestRig(t)

	before := rig.controller.Status()
	_, err := rig.controller.Set(settings.Patch{
		Theme:      strPtr("amber"),
		Definition: intPtr(99),
	}, "test")
	if !errors.Is(err, settings.ErrInvalid) {
		t.Fatalf("Set = %v, want ErrInvalid", err)
	}

	// Valid theme field must not have leaked through.
	after := rig.controller.Status()
	if after != before {
		t.Errorf("snapshot changed on rejected patch: %+v", after)
	}
	if len(*rig.opened) != 0 {
		t.Error("rejected patch touched the camera")
	}
}

func TestSetEmptyPatchIsNoop(t *testing.T) {
	rig := newTestRig(t)
	before := rig.controller.Status()
	got, err := rig.controller.Set(settings.Patch{}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if got != before {
		t.Error("empty patch changed the snapshot")
	}
}

func TestSetRenderFieldsUpdateSnapshot(t *testing.T) {
	rig := newTestRig(t)

	got, err := rig.controller.Set(settings.Patch{
		Theme:  strPtr("amber"),
		Curve:  curvePtr(settings.CurveSigmoid),
		Invert: boolPtr(true),
	}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if got.Theme != "amber" || got.Curve != settings.CurveSigmoid || !got.Invert {
		t.Errorf("snapshot = %+v", got)
	}
	if rig.controller.Status() != got {
		t.Error("Status disagrees with Set result")
	}
	if len(*rig.opened) != 0 {
		t.Error("render-only patch reopened the camera")
	}
}

func TestSetCameraChangeReopensOnce(t *testing.T) {
	rig := newTestRig(t)

	res := settings.Resolution{Width: 1280, Height: 720}
	got, err := rig.controller.Set(settings.Patch{
		CameraIndex: intPtr(2),
		Resolution:  &res,
	}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if got.CameraIndex != 2 || got.Resolution == nil || *got.Resolution != res {
		t.Errorf("snapshot = %+v", got)
	}
	if len(*rig.opened) != 1 || (*rig.opened)[0] != 2 {
		t.Errorf("camera opens = %v, want exactly one open of index 2", *rig.opened)
	}
}

func TestSetSamePatchTwiceReopensOnce(t *testing.T) {
	rig := newTestRig(t)

	patch := settings.Patch{CameraIndex: intPtr(2)}
	first, err := rig.controller.Set(patch, "test")
	if err != nil {
		t.Fatal(err)
	}
	second, err := rig.controller.Set(patch, "test")
	if err != nil {
		t.Fatal(err)
	}

	if second != first {
		t.Errorf("second apply changed the snapshot: %+v -> %+v", first, second)
	}
	if len(*rig.opened) != 1 {
		t.Errorf("camera opens = %v, want one open across both applies", *rig.opened)
	}
}

func TestSetThemeAndDefinitionRebuildsOnce(t *testing.T) {
	rig := newTestRig(t)

	rebuilds := make(chan events.CacheRebuiltEvent, 4)
	unsub := rig.bus.Subscribe(func(e events.CacheRebuiltEvent) { rebuilds <- e })
	defer unsub()

	_, err := rig.controller.Set(settings.Patch{
		Theme:      strPtr("amber"),
		Definition: intPtr(4),
	}, "test")
	if err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-rebuilds:
		if e.Theme != "amber" || e.Definition != 4 {
			t.Errorf("rebuild event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no cache-rebuilt event")
	}

	// Two changed render fields must still cost a single rebuild.
	select {
	case e := <-rebuilds:
		t.Errorf("extra rebuild: %+v", e)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSetAutoDetectResolvesIndex(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.controller.Set(settings.Patch{CameraIndex: intPtr(-1)}, "test")
	if err != nil {
		t.Fatal(err)
	}
	// detect() returns 1; the reopen must target that index.
	if len(*rig.opened) != 1 || (*rig.opened)[0] != 1 {
		t.Errorf("camera opens = %v, want detected index 1", *rig.opened)
	}
}

func TestSetClampsFPS(t *testing.T) {
	rig := newTestRig(t)

	got, err := rig.controller.Set(settings.Patch{FPS: intPtr(240)}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if got.FPS != 60 {
		t.Errorf("fps = %d, want clamped 60", got.FPS)
	}
}

func TestSetFailedCameraKeepsSnapshot(t *testing.T) {
	rig := newTestRig(t)

	before := rig.controller.Status()
	_, err := rig.controller.Set(settings.Patch{CameraIndex: intPtr(40)}, "test")
	if err == nil {
		t.Fatal("Set succeeded for a missing camera")
	}
	if rig.controller.Status() != before {
		t.Error("snapshot advanced after failed reopen")
	}
}

func TestSetOutputDeviceChange(t *testing.T) {
	rig := newTestRig(t)

	got, err := rig.controller.Set(settings.Patch{OutputDevice: strPtr("/dev/video21")}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if got.OutputDevice != "/dev/video21" {
		t.Errorf("output device = %q", got.OutputDevice)
	}
}

func TestSetPublishesApplied(t *testing.T) {
	rig := newTestRig(t)
	bus := events.New()
	rig.controller.bus = bus

	applied := make(chan events.SettingsAppliedEvent, 1)
	unsub := bus.Subscribe(func(e events.SettingsAppliedEvent) { applied <- e })
	defer unsub()

	if _, err := rig.controller.Set(settings.Patch{Invert: boolPtr(true)}, "config"); err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-applied:
		if e.Source != "config" || !e.Settings.Invert {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no settings-applied event")
	}
}
