// Package parallel runs a fixed gang of workers over a shared body.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gc-rootscan/pkg/parallel"

// ============================================================================
// Gang Configuration
// ============================================================================

// GangConfig configures a worker gang.
type GangConfig struct {
	// Name labels the gang in spans and logs.
	Name string

	// Workers is the gang size.
	// Default: min(runtime.NumCPU(), 8), at least 2
	Workers int
}

// DefaultGangConfig returns a default gang configuration.
func DefaultGangConfig() GangConfig {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	if workers < 2 {
		workers = 2
	}
	return GangConfig{
		Name:    "gc-workers",
		Workers: workers,
	}
}

// WithWorkers returns a new config with the specified number of workers.
func (c GangConfig) WithWorkers(n int) GangConfig {
	c.Workers = n
	return c
}

// ============================================================================
// Execution Metrics
// ============================================================================

// GangMetrics describes the last Run.
type GangMetrics struct {
	Workers       int
	TotalDuration time.Duration
	MinWorkerTime time.Duration
	MaxWorkerTime time.Duration
	WorkerTimes   []time.Duration
}

// ============================================================================
// Gang
// ============================================================================

// Gang starts exactly Workers goroutines per Run, numbered 0..Workers-1,
// and returns when all of them have. Workers never wait on one another.
type Gang struct {
	config GangConfig
	tracer trace.Tracer

	mu      sync.Mutex
	metrics GangMetrics
}

// NewGang creates a gang. A nil tracer means the global provider's tracer.
func NewGang(config GangConfig, tracer trace.Tracer) *Gang {
	if config.Workers <= 0 {
		config.Workers = DefaultGangConfig().Workers
	}
	if config.Name == "" {
		config.Name = DefaultGangConfig().Name
	}
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Gang{config: config, tracer: tracer}
}

// Workers returns the gang size.
func (g *Gang) Workers() int {
	return g.config.Workers
}

// Run calls body once per worker, concurrently, and waits for all of them.
// There is no timeout: a phase either completes or stalls. A panic in any
// worker is re-raised in the caller after the others have finished. Run
// fails without starting anybody if ctx is already done.
func (g *Gang) Run(ctx context.Context, body func(ctx context.Context, workerID int)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := g.tracer.Start(ctx, "gang.run", trace.WithAttributes(
		attribute.String("gang.name", g.config.Name),
		attribute.Int("gang.workers", g.config.Workers),
	))
	defer span.End()

	start := time.Now()
	times := make([]time.Duration, g.config.Workers)

	var wg conc.WaitGroup
	for w := 0; w < g.config.Workers; w++ {
		wg.Go(func() {
			wctx, wspan := g.tracer.Start(ctx, "gang.worker", trace.WithAttributes(
				attribute.Int("worker.id", w),
			))
			defer wspan.End()

			t0 := time.Now()
			defer func() { times[w] = time.Since(t0) }()
			body(wctx, w)
		})
	}

	recovered := wg.WaitAndRecover()
	g.recordMetrics(time.Since(start), times)
	if recovered != nil {
		span.RecordError(recovered.AsError())
		span.SetStatus(codes.Error, "worker panicked")
		panic(recovered.Value)
	}
	return nil
}

func (g *Gang) recordMetrics(total time.Duration, times []time.Duration) {
	m := GangMetrics{
		Workers:       len(times),
		TotalDuration: total,
		WorkerTimes:   times,
	}
	for i, d := range times {
		if i == 0 || d < m.MinWorkerTime {
			m.MinWorkerTime = d
		}
		m.MaxWorkerTime = max(m.MaxWorkerTime, d)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.metrics = m
}

// Metrics returns statistics for the last Run.
func (g *Gang) Metrics() GangMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.metrics
	m.WorkerTimes = append([]time.Duration(nil), m.WorkerTimes...)
	return m
}
