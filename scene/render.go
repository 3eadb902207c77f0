package scene

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"whitted/camera"
	"whitted/framebuffer"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultDOFScale is the standard deviation of the depth of field eye jitter,
// in units of the image plane distance.
const DefaultDOFScale = 0.009

type RenderOptions struct {
	// Workers is the number of row chunks rendered concurrently.  Zero means
	// one per CPU.
	Workers int

	Seed int64

	// DOFSamples is the number of extra passes rendered from jittered eyes.
	DOFSamples int
	DOFScale   float64

	ShadowSamples int
	MaxDepth      int
}

// DefaultRenderOptions renders one pass with hard shadows.
func DefaultRenderOptions() *RenderOptions {
	return &RenderOptions{
		Seed:          1,
		DOFScale:      DefaultDOFScale,
		ShadowSamples: 1,
		MaxDepth:      DefaultMaxDepth,
	}
}

type ProgressFunction func(int, int)

type chunkWorker struct {
	shader  *Shader
	windows []*camera.ViewWindow

	// fb is this chunk's cut of the full framebuffer.
	fb *framebuffer.Image

	progressFunction func(int)

	rowSrc int
	rowLim int
}

func (w *chunkWorker) render(ctx context.Context) error {
	for cr := w.rowSrc; cr < w.rowLim; cr++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, win := range w.windows {
			for cc := 0; cc < w.fb.ColSize; cc++ {
				color, _ := w.shader.Trace(win.PixelRay(cr, cc))
				w.fb.RecordSample(cr-w.rowSrc, cc, color)
			}
		}

		w.progressFunction(1)
	}
	return nil
}

// passWindows builds the view windows of passes [startPass, startPass+count).
// Pass 0 looks from the scene's eye; later passes jitter it.  The jitter of
// pass k is the k-th draw from a generator seeded with seed, so resumed
// renders continue the sequence instead of repeating it.
func passWindows(params camera.Params, seed int64, scale float64, startPass, count int) ([]*camera.ViewWindow, error) {
	rng := rand.New(rand.NewSource(seed))

	var windows []*camera.ViewWindow
	for pass := 0; pass < startPass+count; pass++ {
		p := params
		if pass > 0 {
			p = params.Jittered(rng, scale)
		}
		if pass < startPass {
			continue
		}

		w, err := camera.Build(p)
		if err != nil {
			return nil, fmt.Errorf("while building view window for pass %d: %w", pass, err)
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// RenderScene adds 1+DOFSamples samples to every pixel of fb.  fb may already
// hold samples from an earlier render of the same scene, in which case the new
// passes continue where it left off.  Rendering stops early if ctx is
// cancelled.  The returned statistics count the rays cast.
func RenderScene(ctx context.Context, scene *Scene, options *RenderOptions, fb *framebuffer.Image, progressFunction ProgressFunction) (RayStats, error) {
	tracer := otel.Tracer("whitted/scene")
	ctx, span := tracer.Start(ctx, "RenderScene")
	defer span.End()

	var stats RayStats

	if options.DOFSamples < 0 {
		return stats, fmt.Errorf("negative DOF sample count %d", options.DOFSamples)
	}
	if options.MaxDepth < 0 {
		return stats, fmt.Errorf("negative max depth %d", options.MaxDepth)
	}

	rows, cols := scene.Camera.Height, scene.Camera.Width
	if fb.RowSize != rows || fb.ColSize != cols {
		return stats, fmt.Errorf("framebuffer is %dx%d, but the scene renders %dx%d", fb.RowSize, fb.ColSize, rows, cols)
	}

	if scene.CrushedElements == nil && len(scene.Elements) != 0 {
		if err := scene.Crush(); err != nil {
			return stats, fmt.Errorf("while crushing scene: %w", err)
		}
	}

	// Count the passes already in fb.  When we resume a render, we don't want
	// to just repeat our same RNG choices again!
	startPass := fb.TotalSamples() / (rows * cols)
	passCount := 1 + options.DOFSamples

	windows, err := passWindows(scene.Camera, options.Seed, options.DOFScale, startPass, passCount)
	if err != nil {
		return stats, err
	}

	workers := options.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > rows {
		workers = rows
	}
	workUnit := (rows + workers - 1) / workers

	span.SetAttributes(
		attribute.Int("rows", rows),
		attribute.Int("cols", cols),
		attribute.Int("start_pass", startPass),
		attribute.Int("pass_count", passCount),
		attribute.Int("workers", workers),
	)
	glog.V(1).Infof("Rendering passes [%d, %d) with %d workers of %d rows", startPass, startPass+passCount, workers, workUnit)

	curProgress := 0

	// mu locks curProgress, stats and fb.
	mu := sync.Mutex{}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		rowSrc := i * workUnit
		rowLim := rowSrc + workUnit
		if rowLim > rows {
			rowLim = rows
		}
		if rowSrc >= rowLim {
			break
		}

		chunkSeed := options.Seed + int64(i) + int64(startPass)*int64(workers)
		worker := &chunkWorker{
			shader:  NewShader(scene, rand.New(rand.NewSource(chunkSeed)), options.ShadowSamples, options.MaxDepth),
			windows: windows,
			fb:      fb.Cut(rowSrc, rowLim, 0, cols),
			progressFunction: func(subProgress int) {
				if progressFunction == nil {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				curProgress += subProgress
				progressFunction(curProgress, rows)
			},
			rowSrc: rowSrc,
			rowLim: rowLim,
		}

		g.Go(func() error {
			if err := worker.render(gctx); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()

			fb.Paste(worker.fb, worker.rowSrc, 0)
			stats.Add(worker.shader.Stats)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("while rendering: %w", err)
	}

	return stats, nil
}
