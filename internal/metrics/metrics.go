// Package metrics exposes Prometheus metrics for the pipeline. Stages don't
// touch metrics directly; a bus subscriber keeps them current from the
// events the stages already publish.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/asciinode/internal/events"
)

var (
	stageFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "asciinode",
		Subsystem: "pipeline",
		Name:      "stage_fps",
		Help:      "Measured frames per second per pipeline stage",
	}, []string{"stage"})

	stageFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "asciinode",
		Subsystem: "pipeline",
		Name:      "stage_frames_total",
		Help:      "Frames processed per pipeline stage",
	}, []string{"stage"})

	stageDropped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "asciinode",
		Subsystem: "pipeline",
		Name:      "stage_dropped_total",
		Help:      "Frames dropped at the stage's downstream channel",
	}, []string{"stage"})

	captureErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "asciinode",
		Subsystem: "capture",
		Name:      "errors_total",
		Help:      "Failed frame acquisitions",
	})

	cacheRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "asciinode",
		Subsystem: "render",
		Name:      "glyph_cache_rebuilds_total",
		Help:      "Glyph cache rebuilds triggered by settings changes",
	})

	settingsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "asciinode",
		Subsystem: "control",
		Name:      "settings_applied_total",
		Help:      "Successfully applied settings patches",
	})

	gridColumns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "asciinode",
		Subsystem: "render",
		Name:      "grid_columns",
		Help:      "Current character grid width",
	})

	gridRows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "asciinode",
		Subsystem: "render",
		Name:      "grid_rows",
		Help:      "Current character grid height",
	})
)

// Observe wires the metrics to the event bus. Returns an unsubscribe
// function releasing all subscriptions.
func Observe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.StageFPSEvent) {
			stageFPS.WithLabelValues(e.Stage).Set(e.FPS)
			stageFrames.WithLabelValues(e.Stage).Set(float64(e.Frames))
			stageDropped.WithLabelValues(e.Stage).Set(float64(e.Dropped))
		}),
		bus.Subscribe(func(events.CaptureErrorEvent) {
			captureErrors.Inc()
		}),
		bus.Subscribe(func(e events.CacheRebuiltEvent) {
			cacheRebuilds.Inc()
			gridColumns.Set(float64(e.Columns))
			gridRows.Set(float64(e.Rows))
		}),
		bus.Subscribe(func(events.SettingsAppliedEvent) {
			settingsApplied.Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
