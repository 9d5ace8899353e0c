// Package rootproc coordinates root scanning across a gang of collector
// workers. Every worker calls one of the entry points once per phase with
// its own id; each root category is claimed and scanned by exactly one of
// them, and nobody ever waits for anybody else.
package rootproc

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gc-rootscan/internal/roots"
	"github.com/gc-rootscan/internal/timing"
	"github.com/gc-rootscan/pkg/claim"
	apperrors "github.com/gc-rootscan/pkg/errors"
	"github.com/gc-rootscan/pkg/utils"
)

// RootProcessor is the per-phase root scanning apparatus. Create one before
// releasing the workers and drop it once they have all returned.
type RootProcessor struct {
	src      roots.Sources
	nWorkers int
	tasks    *claim.TaskSet
	timings  *timing.WorkerTimings
	logger   utils.Logger

	// claimedBy holds workerID+1 of the claimant per task.
	claimedBy [roots.NumTasks]atomic.Int32
	entered   atomic.Int32
	weakPhase atomic.Bool
}

// Option configures a RootProcessor.
type Option func(*RootProcessor)

// WithTimings records per-worker subtask time into wt.
func WithTimings(wt *timing.WorkerTimings) Option {
	return func(rp *RootProcessor) {
		rp.timings = wt
	}
}

// WithLogger sets the logger for claim diagnostics.
func WithLogger(logger utils.Logger) Option {
	return func(rp *RootProcessor) {
		if logger != nil {
			rp.logger = logger
		}
	}
}

// New creates the root processor for one phase run by nWorkers workers.
func New(src roots.Sources, nWorkers int, opts ...Option) (*RootProcessor, error) {
	if nWorkers < 1 {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "worker count must be at least 1, got %d", nWorkers)
	}
	if missing := src.Missing(); len(missing) > 0 {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "missing root sources: %s", strings.Join(missing, ", "))
	}

	rp := &RootProcessor{
		src:      src,
		nWorkers: nWorkers,
		tasks:    claim.NewTaskSet(roots.NumTasks),
		logger:   &utils.NullLogger{},
	}
	for _, opt := range opts {
		opt(rp)
	}
	if wt := rp.timings; wt != nil && wt.Workers() < nWorkers {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput,
			"timing table has %d worker columns, need %d", wt.Workers(), nWorkers)
	}
	return rp, nil
}

// Workers returns the gang size the processor was built for.
func (rp *RootProcessor) Workers() int {
	return rp.nWorkers
}

// ProcessAllRoots scans every strong root category this worker manages to
// claim. Class loader data is visited with clds whether the loader is
// strong or weak. clds, blobs and threads may be nil; oops may not.
func (rp *RootProcessor) ProcessAllRoots(oops roots.ObjectRefVisitor, clds roots.ClassLoaderDataVisitor,
	blobs roots.CodeBlobVisitor, threads roots.ThreadVisitor, workerID int) {
	rp.enter(workerID)
	defer rp.exit(workerID)

	rp.processStrong(oops, clds, clds, blobs, threads, workerID)
}

// ProcessStrongRoots is ProcessAllRoots for phases that must not keep
// unloadable classes alive: only strong class loaders reach clds.
func (rp *RootProcessor) ProcessStrongRoots(oops roots.ObjectRefVisitor, clds roots.ClassLoaderDataVisitor,
	blobs roots.CodeBlobVisitor, threads roots.ThreadVisitor, workerID int) {
	rp.enter(workerID)
	defer rp.exit(workerID)

	rp.processStrong(oops, clds, nil, blobs, threads, workerID)
}

// UpdateAllRoots scans weak handles under a fresh liveness filter if this
// worker claims them, then the strong roots as ProcessAllRoots does, then
// this worker's share of the string dedup table when dedup is enabled.
func (rp *RootProcessor) UpdateAllRoots(newIsAlive roots.LivenessFactory, oops roots.ObjectRefVisitor,
	clds roots.ClassLoaderDataVisitor, blobs roots.CodeBlobVisitor, threads roots.ThreadVisitor, workerID int) {
	rp.enter(workerID)
	defer rp.exit(workerID)
	rp.weakPhase.Store(true)

	isAlive := newIsAlive()

	if rp.claim(roots.TaskWeakHandles, workerID) {
		rp.processWeak(isAlive, oops, workerID)
	}

	rp.processStrong(oops, clds, clds, blobs, threads, workerID)

	if rp.src.DedupEnabled {
		rp.processDedup(isAlive, oops, workerID)
	}
}

func (rp *RootProcessor) processWeak(isAlive roots.LivenessFilter, oops roots.ObjectRefVisitor, workerID int) {
	defer rp.timings.Track(timing.WeakHandleRoots, workerID).Stop()
	rp.src.WeakHandles.WeakOopsDo(isAlive, oops)
}

// processDedup records a timing only if the worker claimed a partition.
func (rp *RootProcessor) processDedup(isAlive roots.LivenessFilter, oops roots.ObjectRefVisitor, workerID int) {
	tracker := rp.timings.Track(timing.StringDedupRoots, workerID)
	if rp.src.Dedup.ParallelOopsDo(isAlive, oops, workerID) > 0 {
		tracker.Stop()
	}
}

func (rp *RootProcessor) processStrong(oops roots.ObjectRefVisitor, strongCLDs, weakCLDs roots.ClassLoaderDataVisitor,
	blobs roots.CodeBlobVisitor, threads roots.ThreadVisitor, workerID int) {
	for _, task := range roots.StrongTasks() {
		if !rp.claim(task, workerID) {
			continue
		}
		rp.runStrong(task, oops, strongCLDs, weakCLDs, blobs, threads, workerID)
	}
}

func (rp *RootProcessor) runStrong(task roots.Task, oops roots.ObjectRefVisitor, strongCLDs, weakCLDs roots.ClassLoaderDataVisitor,
	blobs roots.CodeBlobVisitor, threads roots.ThreadVisitor, workerID int) {
	defer rp.timings.Track(timing.ForTask(task), workerID).Stop()

	switch task {
	case roots.TaskClassLoaderData:
		rp.src.ClassLoaders.RootsCLDDo(strongCLDs, weakCLDs)
	case roots.TaskCodeCache:
		rp.src.CodeCache.BlobsDo(blobs)
	case roots.TaskThreads:
		rp.src.Threads.ThreadsDo(oops, blobs, threads)
	case roots.TaskGlobalHandles:
		rp.src.GlobalHandles.OopsDo(oops)
	default:
		panic(fmt.Sprintf("rootproc: %s is not a strong root task", task))
	}
}

// claim is the only gate to running a task.
func (rp *RootProcessor) claim(task roots.Task, workerID int) bool {
	if !rp.tasks.TryClaim(int(task)) {
		return false
	}
	rp.claimedBy[task].Store(int32(workerID + 1))
	rp.logger.Debug("worker %d claimed %s", workerID, task)
	return true
}

func (rp *RootProcessor) enter(workerID int) {
	if workerID < 0 || workerID >= rp.nWorkers {
		panic(fmt.Sprintf("rootproc: worker id %d out of range [0,%d)", workerID, rp.nWorkers))
	}
	rp.entered.Add(1)
}

func (rp *RootProcessor) exit(workerID int) {
	if rp.tasks.AllTasksCompleted(rp.nWorkers) {
		rp.logger.Debug("worker %d was last out, %d/%d root tasks claimed",
			workerID, rp.tasks.ClaimedCount(), rp.tasks.Len())
	}
}

// Claimed reports whether task has been claimed. Diagnostics only.
func (rp *RootProcessor) Claimed(task roots.Task) bool {
	return rp.tasks.IsClaimed(int(task))
}

// ClaimedBy returns the worker that claimed task.
func (rp *RootProcessor) ClaimedBy(task roots.Task) (int, bool) {
	v := rp.claimedBy[task].Load()
	return int(v) - 1, v != 0
}

// Complete verifies, after every worker has returned, that each task the
// phase's entry points cover was claimed. Strong tasks are expected once any
// worker entered; the weak task only when UpdateAllRoots was used.
func (rp *RootProcessor) Complete() error {
	entered := int(rp.entered.Load())
	if entered == 0 {
		return apperrors.New(apperrors.CodeIncompletePhase, "no worker entered the root phase")
	}
	if entered != rp.nWorkers {
		rp.logger.Warn("%d of %d workers entered the root phase", entered, rp.nWorkers)
	}

	expected := roots.StrongTasks()
	if rp.weakPhase.Load() {
		expected = roots.AllTasks()
	}
	var unclaimed []string
	for _, task := range expected {
		if !rp.tasks.IsClaimed(int(task)) {
			unclaimed = append(unclaimed, task.String())
		}
	}
	if len(unclaimed) > 0 {
		rp.logger.Warn("root phase left tasks unclaimed: %s", strings.Join(unclaimed, ", "))
		return apperrors.Newf(apperrors.CodeIncompletePhase, "unclaimed root tasks: %s", strings.Join(unclaimed, ", "))
	}
	return nil
}
