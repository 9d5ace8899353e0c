package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gc-rootscan/internal/heap"
	"github.com/gc-rootscan/internal/report"
	"github.com/gc-rootscan/internal/repository"
	"github.com/gc-rootscan/internal/rootproc"
	"github.com/gc-rootscan/internal/roots"
	"github.com/gc-rootscan/internal/storage"
	"github.com/gc-rootscan/internal/timing"
	"github.com/gc-rootscan/pkg/config"
	apperrors "github.com/gc-rootscan/pkg/errors"
	"github.com/gc-rootscan/pkg/parallel"
	"github.com/gc-rootscan/pkg/telemetry"
	"github.com/gc-rootscan/pkg/utils"
)

// PhaseRunner runs root phases over a heap with a gang of workers and
// reports what each phase did.
type PhaseRunner struct {
	gc     config.GCConfig
	logger utils.Logger
	clock  utils.Clock
	tracer trace.Tracer
	repo   repository.ReportRepository
	store  storage.Storage
	prefix string
	codec  report.Compression
	mode   report.Mode
}

// RunnerOption configures a PhaseRunner.
type RunnerOption func(*PhaseRunner)

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger utils.Logger) RunnerOption {
	return func(r *PhaseRunner) { r.logger = logger }
}

// WithClock sets the clock used for phase and worker timings.
func WithClock(clock utils.Clock) RunnerOption {
	return func(r *PhaseRunner) { r.clock = clock }
}

// WithTracer sets the tracer for phase spans.
func WithTracer(tracer trace.Tracer) RunnerOption {
	return func(r *PhaseRunner) { r.tracer = tracer }
}

// WithRepository saves every report to repo.
func WithRepository(repo repository.ReportRepository) RunnerOption {
	return func(r *PhaseRunner) { r.repo = repo }
}

// WithStorage uploads every report to store under prefix.
func WithStorage(store storage.Storage, prefix string, codec report.Compression) RunnerOption {
	return func(r *PhaseRunner) {
		r.store = store
		r.prefix = prefix
		r.codec = codec
	}
}

// NewPhaseRunner creates a runner for gc settings.
func NewPhaseRunner(gc config.GCConfig, opts ...RunnerOption) (*PhaseRunner, error) {
	if gc.Workers < 1 {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "gc workers must be at least 1, got %d", gc.Workers)
	}
	mode, err := report.ParseMode(gc.Mode)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid gc mode", err)
	}

	r := &PhaseRunner{
		gc:     gc,
		logger: &utils.NullLogger{},
		clock:  utils.NewRealClock(),
		codec:  report.CompressionNone,
		mode:   mode,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = telemetry.Tracer("service")
	}
	return r, nil
}

// Run executes one root phase over h and returns its report. An incomplete
// phase still yields a report, marked incomplete, alongside an
// INCOMPLETE_PHASE error. A panicking visitor propagates after every worker
// has returned.
func (r *PhaseRunner) Run(ctx context.Context, h *heap.Heap) (*report.PhaseReport, error) {
	newIsAlive, ok := h.Liveness(r.gc.Liveness)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "unsupported liveness filter: %s", r.gc.Liveness)
	}
	h.DedupEnabled = r.gc.StringDedup

	n := r.gc.Workers
	timings := timing.NewWorkerTimings(n, r.clock)
	rp, err := rootproc.New(h.Sources(), n, rootproc.WithTimings(timings), rootproc.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}

	rep := report.New(r.mode, n, r.clock.Now())
	rep.Liveness = r.gc.Liveness
	rep.DedupEnabled = h.DedupEnabled

	ctx, span := r.tracer.Start(ctx, "rootscan.phase", trace.WithAttributes(
		attribute.String("phase.id", rep.ID),
		attribute.String("phase.mode", string(r.mode)),
		attribute.Int("phase.workers", n),
	))
	defer span.End()

	var counters report.Counters
	body := r.workerBody(rp, h, &counters, newIsAlive)

	gang := parallel.NewGang(parallel.DefaultGangConfig().WithWorkers(n), r.tracer)
	if err := gang.Run(ctx, body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	rep.Duration = r.clock.Since(rep.StartedAt)

	phaseErr := rp.Complete()
	rep.Complete = phaseErr == nil
	if phaseErr != nil {
		rep.Error = phaseErr.Error()
		span.SetStatus(codes.Error, rep.Error)
	}

	for _, task := range roots.AllTasks() {
		if w, ok := rp.ClaimedBy(task); ok {
			rep.Claims = append(rep.Claims, report.TaskClaim{Task: task.String(), Worker: w})
		}
	}
	rep.Visits = counters.Snapshot()
	rep.Heap = report.HeapStats{
		Objects:       h.Len(),
		Marked:        h.MarkedCount(),
		WeakCleared:   h.Weak.Cleared(),
		DedupEntries:  h.Dedup.Len(),
		DedupUnlinked: h.Dedup.Unlinked(),
	}
	rep.Timings = timings.Snapshot()

	r.logger.Info("root phase %s finished in %v: complete=%t oops=%d", rep.ID, rep.Duration, rep.Complete, rep.Visits.Oops)
	r.logger.Debug("worker timings:\n%s", timings.Summary())

	if err := r.persist(ctx, rep); err != nil {
		span.RecordError(err)
		return rep, err
	}
	return rep, phaseErr
}

// workerBody returns the per-worker entry for the runner's mode. Update
// phases rewrite roots to forwardees; the others mark what they reach.
func (r *PhaseRunner) workerBody(rp *rootproc.RootProcessor, h *heap.Heap, counters *report.Counters,
	newIsAlive roots.LivenessFactory) func(context.Context, int) {
	var inner roots.ObjectRefVisitor
	if r.mode == report.ModeUpdate {
		inner = heap.NewUpdateRefs(h)
	} else {
		inner = markRefs(h)
	}
	oops := counters.Oops(inner)
	clds := counters.CLDs(oops)
	blobs := counters.CodeBlobs(oops)
	threads := counters.Threads()

	return func(_ context.Context, workerID int) {
		switch r.mode {
		case report.ModeUpdate:
			rp.UpdateAllRoots(newIsAlive, oops, clds, blobs, threads, workerID)
		case report.ModeAll:
			rp.ProcessAllRoots(oops, clds, blobs, threads, workerID)
		default:
			rp.ProcessStrongRoots(oops, clds, blobs, threads, workerID)
		}
	}
}

func markRefs(h *heap.Heap) roots.ObjectRefVisitor {
	return roots.OopFunc(func(slot *roots.Ref) {
		h.Mark(*slot)
	})
}

func (r *PhaseRunner) persist(ctx context.Context, rep *report.PhaseReport) error {
	if r.repo != nil {
		if err := r.repo.SaveReport(ctx, rep); err != nil {
			return fmt.Errorf("failed to save report %s: %w", rep.ID, err)
		}
	}
	if r.store != nil {
		key, err := storage.UploadReport(ctx, r.store, r.prefix, rep, r.codec)
		if err != nil {
			return err
		}
		r.logger.Info("uploaded report to %s", r.store.URL(key))
	}
	return nil
}
