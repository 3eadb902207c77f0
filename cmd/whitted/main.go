// whitted renders a scene description to a plain PPM image by recursive ray
// tracing.
//
// Usage:
//
//	whitted [flags] scene.txt
//
// The image is written next to the scene file, with the extension replaced by
// ".ppm", unless --output names another file or a gs://bucket/object.
package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"whitted/framebuffer"
	"whitted/ppm"
	"whitted/rendercache"
	"whitted/rendermetrics"
	"whitted/scene"
	"whitted/scenefile"
	"whitted/sink"

	"cloud.google.com/go/profiler"
	"contrib.go.opencensus.io/exporter/stackdriver"
	cloudmetrics "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	cloudtrace "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/term"
	"golang.org/x/time/rate"
	googleopt "google.golang.org/api/option"
)

var (
	output = flag.String("output", "", "Output image.  Either a local path or gs://bucket/object.  Defaults to the scene file with its extension replaced by .ppm")

	workers       = flag.Int("workers", runtime.NumCPU(), "Number of row chunks to render concurrently")
	seed          = flag.Int64("seed", 1, "Base seed for all random sampling")
	dofSamples    = flag.Int("dof-samples", 0, "Number of extra passes rendered from jittered eye positions, for depth of field")
	dofScale      = flag.Float64("dof-scale", scene.DefaultDOFScale, "Standard deviation of the eye jitter, relative to the image plane distance")
	shadowSamples = flag.Int("shadow-samples", 1, "Shadow rays per point or spot light.  More than one gives soft shadows")
	maxDepth      = flag.Int("max-depth", scene.DefaultMaxDepth, "Maximum depth of reflection and refraction")

	accumFile = flag.String("accum-file", "", "If set, save the sample accumulator here so the render can be resumed")
	resume    = flag.Bool("resume", false, "Should we re-open --accum-file to add more samples?")
	cacheDir  = flag.String("cache-dir", "", "If set, a directory for the render cache database")

	enableProfiling      = flag.Bool("enable-profiling", false, "Enable Cloud Profiler?")
	enableMetrics        = flag.Bool("enable-metrics", false, "Export render metrics to Stackdriver?")
	monitoring           = flag.Bool("monitoring", false, "Enable monitoring?")
	monitoringProject    = flag.String("monitoring-project", "", "Override project used for monitoring integration.  If not specified, the project associated with Application Default Credentials is used.")
	monitoringTraceRatio = flag.Float64("monitoring-trace-ratio", 1, "What ratio of traces should be exported?")

	cpuprofile = flag.String("cpu-profile", "", "write cpu profile to `file`")
	memprofile = flag.String("mem-profile", "", "write memory profile to `file`")
)

const ppmContentType = "image/x-portable-pixmap"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] scene.txt\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	glog.CopyStandardLogTo("INFO")
	defer glog.Flush()

	glog.Infof("flags:")
	flag.VisitAll(func(f *flag.Flag) {
		glog.Infof("%s: %q", f.Name, f.Value.String())
	})

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			glog.Exitf("Could not create CPU profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			glog.Exitf("Could not start CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cloud Profiler initialization, best done as early as possible.
	if *enableProfiling {
		if err := profiler.Start(profiler.Config{
			Service:        "whitted",
			ServiceVersion: "0.0.1",
		}); err != nil {
			glog.Exitf("Error initializing profiler: %v", err)
		}
	}

	if *monitoring {
		metricsOpts := []cloudmetrics.Option{}
		traceOpts := []cloudtrace.Option{}
		if *monitoringProject != "" {
			metricsOpts = append(metricsOpts, cloudmetrics.WithProjectID(*monitoringProject))
			traceOpts = append(traceOpts, cloudtrace.WithProjectID(*monitoringProject))
		}

		_, traceShutdown, err := cloudtrace.InstallNewPipeline(traceOpts, sdktrace.WithSampler(sdktrace.TraceIDRatioBased(*monitoringTraceRatio)))
		if err != nil {
			glog.Exitf("Failed to install Cloud Trace OpenTelemetry trace pipeline: %v", err)
		}
		defer traceShutdown()

		pusher, err := cloudmetrics.InstallNewPipeline(metricsOpts)
		if err != nil {
			glog.Exitf("Failed to install Cloud Metrics OpenTelemetry meter pipeline: %v", err)
		}
		defer pusher.Stop(ctx)
	}

	recorder := rendermetrics.New()
	if *enableMetrics {
		if err := recorder.RegisterMetrics(); err != nil {
			glog.Exitf("Error registering metrics: %v", err)
		}

		exporter, err := stackdriver.NewExporter(stackdriver.Options{
			MetricPrefix:      "whitted",
			ReportingInterval: 60 * time.Second,
		})
		if err != nil {
			glog.Exitf("Error initializing metrics exporter: %v", err)
		}
		if err := exporter.StartMetricsExporter(); err != nil {
			glog.Exitf("Error starting metrics exporter: %v", err)
		}
		defer exporter.Flush()
		defer exporter.StopMetricsExporter()
	}

	if err := do(ctx, recorder); err != nil {
		glog.Exitf("Error: %v", err)
	}

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			glog.Exitf("Could not create memory profile: %v", err)
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			glog.Exitf("Could not write memory profile: %v", err)
		}
	}
}

func do(ctx context.Context, recorder *rendermetrics.Recorder) error {
	if flag.NArg() != 1 {
		flag.Usage()
		return fmt.Errorf("want exactly one scene file, got %d arguments", flag.NArg())
	}
	scenePath := flag.Arg(0)

	tracer := otel.Tracer("whitted/cmd")
	ctx, span := tracer.Start(ctx, "Render")
	defer span.End()

	options := &scene.RenderOptions{
		Workers:       *workers,
		Seed:          *seed,
		DOFSamples:    *dofSamples,
		DOFScale:      *dofScale,
		ShadowSamples: *shadowSamples,
		MaxDepth:      *maxDepth,
	}

	digest := sha256.New()
	s, err := scenefile.Load(ctx, scenePath, scenefile.WithDigest(digest))
	if err != nil {
		return fmt.Errorf("while loading scene: %w", err)
	}

	outputPath := *output
	if outputPath == "" {
		outputPath = OutputName(scenePath)
	}

	fb, err := openAccumulator(s)
	if err != nil {
		return err
	}

	var cache *rendercache.Cache
	var cacheKey rendercache.Key
	cacheHit := false
	if *cacheDir != "" && !*resume {
		cache, err = rendercache.Open(*cacheDir)
		if err != nil {
			return fmt.Errorf("while opening render cache: %w", err)
		}
		defer cache.Close()

		cacheKey, err = rendercache.NewKey(digest.Sum(nil), options)
		if err != nil {
			return fmt.Errorf("while computing render cache key: %w", err)
		}

		var cached *framebuffer.Image
		cached, cacheHit, err = cache.Get(ctx, cacheKey)
		if err != nil {
			glog.Errorf("Ignoring render cache: %v", err)
		} else if cacheHit {
			glog.Infof("Render cache hit for %v", cacheKey)
			fb = cached
		}
	}

	if !cacheHit {
		start := time.Now()
		stats, err := scene.RenderScene(ctx, s, options, fb, newProgressFunction())
		if err != nil {
			return fmt.Errorf("while rendering: %w", err)
		}
		elapsed := time.Since(start)
		glog.Infof("Rendered in %v: %+v", elapsed, stats)

		if err := recorder.RecordRender(ctx, stats, s.Camera.Width*s.Camera.Height*(1+options.DOFSamples), elapsed); err != nil {
			glog.Errorf("Failed to record render metrics: %v", err)
		}

		if cache != nil {
			if err := cache.Put(ctx, cacheKey, fb); err != nil {
				glog.Errorf("Failed to store render in cache: %v", err)
			}
		}
	}

	if *accumFile != "" {
		if err := framebuffer.WriteFile(fb, *accumFile); err != nil {
			return fmt.Errorf("while saving accumulator: %w", err)
		}
	}

	return writeImage(ctx, outputPath, s, fb)
}

// openAccumulator returns the framebuffer to render into: either the one saved
// in --accum-file, when resuming, or a new empty one.
func openAccumulator(s *scene.Scene) (*framebuffer.Image, error) {
	rows, cols := s.Camera.Height, s.Camera.Width

	if !*resume {
		return framebuffer.New(rows, cols), nil
	}

	if *accumFile == "" {
		return nil, fmt.Errorf("resumption requested, but --accum-file is not set")
	}

	fb, err := framebuffer.ReadFile(*accumFile)
	if err != nil {
		return nil, fmt.Errorf("resumption requested, but encountered error loading existing file: %w", err)
	}

	if fb.RowSize != rows {
		return nil, fmt.Errorf("resumption requested, but the existing accumulator doesn't have the right number of rows (got %d, want %d)", fb.RowSize, rows)
	}

	if fb.ColSize != cols {
		return nil, fmt.Errorf("resumption requested, but the existing accumulator doesn't have the right number of columns (got %d, want %d)", fb.ColSize, cols)
	}

	glog.Infof("Resuming from %q with %d samples", *accumFile, fb.TotalSamples())
	return fb, nil
}

func writeImage(ctx context.Context, outputPath string, s *scene.Scene, fb *framebuffer.Image) error {
	w, err := sink.Create(ctx, outputPath, ppmContentType, googleopt.WithGRPCConnectionPool(1))
	if err != nil {
		return fmt.Errorf("while opening output: %w", err)
	}

	if err := ppm.Write(w, s.Camera.Width, s.Camera.Height, fb.Resolve(s.Background)); err != nil {
		w.Close()
		return fmt.Errorf("while writing output: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("while closing output: %w", err)
	}

	glog.Infof("Wrote %q", outputPath)
	return nil
}

// OutputName replaces the extension of the scene file name with ".ppm".  Runs
// of dots before the extension go too.  Dots inside directory names are left
// alone.
func OutputName(scenePath string) string {
	dot := strings.LastIndex(scenePath, ".")
	if dot == -1 || strings.ContainsAny(scenePath[dot:], `/\`) {
		return scenePath + ".ppm"
	}
	for dot > 0 && scenePath[dot-1] == '.' {
		dot--
	}
	return scenePath[:dot] + ".ppm"
}

func newProgressFunction() scene.ProgressFunction {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return func(cur, tot int) {
			fmt.Fprintf(os.Stderr, "\r%d/%d %d%%", cur, tot, 100*cur/tot)
			if cur == tot {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	limiter := rate.NewLimiter(rate.Every(10*time.Second), 1)
	return func(cur, tot int) {
		if cur == tot || limiter.Allow() {
			glog.Infof("Rendered %d/%d rows", cur, tot)
		}
	}
}
