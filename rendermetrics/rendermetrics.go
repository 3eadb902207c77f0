// Package rendermetrics exports render statistics as OpenCensus views.
package rendermetrics

import (
	"context"
	"fmt"
	"time"

	"whitted/scene"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var kindKey = tag.MustNewKey("kind")

type Recorder struct {
	rays     *stats.Int64Measure
	raysView *view.View

	pixels     *stats.Int64Measure
	pixelsView *view.View

	renderLatency     *stats.Float64Measure
	renderLatencyView *view.View
}

func New() *Recorder {
	r := &Recorder{}

	r.rays = stats.Int64("whitted/rays", "Rays cast", stats.UnitDimensionless)
	r.raysView = &view.View{
		Name:        "whitted/rays",
		Description: "Sum of rays cast, by kind",

		TagKeys: []tag.Key{kindKey},

		Measure:     r.rays,
		Aggregation: view.Sum(),
	}

	r.pixels = stats.Int64("whitted/pixel_samples", "Pixel samples recorded", stats.UnitDimensionless)
	r.pixelsView = &view.View{
		Name:        "whitted/pixel_samples",
		Description: "Sum of pixel samples recorded",

		Measure:     r.pixels,
		Aggregation: view.Sum(),
	}

	r.renderLatency = stats.Float64("whitted/render_latency", "Wall time of one render", stats.UnitMilliseconds)
	r.renderLatencyView = &view.View{
		Name:        "whitted/render_latency",
		Description: "Distribution of render wall times",

		Measure:     r.renderLatency,
		Aggregation: view.Distribution(10, 100, 1000, 10000, 60000, 600000),
	}

	return r
}

func (r *Recorder) views() []*view.View {
	return []*view.View{r.raysView, r.pixelsView, r.renderLatencyView}
}

func (r *Recorder) RegisterMetrics() error {
	if err := view.Register(r.views()...); err != nil {
		return fmt.Errorf("while registering views: %w", err)
	}
	return nil
}

func (r *Recorder) UnregisterMetrics() {
	view.Unregister(r.views()...)
}

// RecordRender records the outcome of one call to scene.RenderScene.
func (r *Recorder) RecordRender(ctx context.Context, rs scene.RayStats, pixelSamples int, elapsed time.Duration) error {
	byKind := []struct {
		kind  string
		count int64
	}{
		{"primary", rs.Primary},
		{"shadow", rs.Shadow},
		{"reflected", rs.Reflected},
		{"refracted", rs.Refracted},
	}
	for _, k := range byKind {
		err := stats.RecordWithOptions(
			ctx,
			stats.WithTags(tag.Insert(kindKey, k.kind)),
			stats.WithMeasurements(r.rays.M(k.count)))
		if err != nil {
			return fmt.Errorf("while recording %s rays: %w", k.kind, err)
		}
	}

	stats.Record(ctx,
		r.pixels.M(int64(pixelSamples)),
		r.renderLatency.M(float64(elapsed)/float64(time.Millisecond)))
	return nil
}
