package events

import (
	"sync"
	"testing"
	"time"

	"github.com/smazurov/asciinode/internal/settings"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StageFPSEvent, 1)

	unsub := bus.Subscribe(func(e StageFPSEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(StageFPSEvent{Stage: "capture", FPS: 29.7, Frames: 148})

	got := <-received
	if got.Stage != "capture" || got.FPS != 29.7 {
		t.Errorf("got %+v", got)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureErrorEvent, 1)

	unsub := bus.Subscribe(func(e CaptureErrorEvent) {
		received <- e
	})

	bus.Publish(CaptureErrorEvent{Device: "/dev/video0"})
	<-received

	unsub()

	bus.Publish(CaptureErrorEvent{Device: "/dev/video1"})
	select {
	case <-received:
		t.Fatal("received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	fpsReceived := make(chan bool, 1)
	openReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ StageFPSEvent) { fpsReceived <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(_ DeviceOpenedEvent) { openReceived <- true })
	defer unsub2()

	bus.Publish(StageFPSEvent{Stage: "render"})
	<-fpsReceived

	select {
	case <-openReceived:
		t.Fatal("DeviceOpened subscriber received StageFPSEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(DeviceOpenedEvent{Role: "camera", Path: "/dev/video0"})
	<-openReceived
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan SettingsAppliedEvent, 1)
	received2 := make(chan SettingsAppliedEvent, 1)

	unsub1 := bus.Subscribe(func(e SettingsAppliedEvent) { received1 <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e SettingsAppliedEvent) { received2 <- e })
	defer unsub2()

	bus.Publish(SettingsAppliedEvent{Settings: settings.Defaults(), Source: "api"})
	<-received1
	<-received2
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	const goroutines = 10
	const perGoroutine = 100

	receivedCh := make(chan bool, goroutines*perGoroutine)
	unsub := bus.Subscribe(func(_ CacheRebuiltEvent) { receivedCh <- true })
	defer unsub()

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				bus.Publish(CacheRebuiltEvent{Definition: 5, Theme: "matrix"})
			}
		}()
	}
	wg.Wait()

	for range goroutines * perGoroutine {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"StageFPS", StageFPSEvent{Stage: "output"}},
		{"CaptureError", CaptureErrorEvent{Device: "/dev/video0"}},
		{"SettingsApplied", SettingsAppliedEvent{Source: "cli"}},
		{"DeviceOpened", DeviceOpenedEvent{Role: "output"}},
		{"CacheRebuilt", CacheRebuiltEvent{Definition: 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case StageFPSEvent:
				unsub = bus.Subscribe(func(e StageFPSEvent) { received <- e })
			case CaptureErrorEvent:
				unsub = bus.Subscribe(func(e CaptureErrorEvent) { received <- e })
			case SettingsAppliedEvent:
				unsub = bus.Subscribe(func(e SettingsAppliedEvent) { received <- e })
			case DeviceOpenedEvent:
				unsub = bus.Subscribe(func(e DeviceOpenedEvent) { received <- e })
			case CacheRebuiltEvent:
				unsub = bus.Subscribe(func(e CacheRebuiltEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}
