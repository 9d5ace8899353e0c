package timing

import (
	"fmt"
	"strings"
	"time"

	"github.com/gc-rootscan/pkg/utils"
)

// WorkerTimings is a table of elapsed time indexed by (phase, worker).
// Each cell is written only by the worker that owns it, so recording needs
// no locking. Read the table only after every worker has returned.
//
// A nil *WorkerTimings is valid and records nothing.
type WorkerTimings struct {
	nWorkers int
	clock    utils.Clock
	cells    [numPhases][]cell
}

type cell struct {
	elapsed time.Duration
	samples int
}

// NewWorkerTimings creates a timing table for nWorkers workers.
// A nil clock means the real clock.
func NewWorkerTimings(nWorkers int, clock utils.Clock) *WorkerTimings {
	if nWorkers < 1 {
		nWorkers = 1
	}
	if clock == nil {
		clock = utils.NewRealClock()
	}
	wt := &WorkerTimings{nWorkers: nWorkers, clock: clock}
	for p := range wt.cells {
		wt.cells[p] = make([]cell, nWorkers)
	}
	return wt
}

// Workers returns the number of worker columns.
func (wt *WorkerTimings) Workers() int {
	if wt == nil {
		return 0
	}
	return wt.nWorkers
}

// Tracker is a scoped timing record. Stop records the elapsed time into the
// owning cell; it is safe to call more than once and only the first call
// has effect. A tracker that is never stopped records nothing.
type Tracker struct {
	wt       *WorkerTimings
	phase    Phase
	workerID int
	start    time.Time
	stopped  bool
}

// Track starts timing phase for workerID. Use it with defer:
//
//	defer wt.Track(timing.ThreadRoots, workerID).Stop()
func (wt *WorkerTimings) Track(phase Phase, workerID int) *Tracker {
	if wt == nil {
		return &Tracker{stopped: true}
	}
	if phase < 0 || int(phase) >= numPhases {
		panic(fmt.Sprintf("timing: unknown phase %d", phase))
	}
	if workerID < 0 || workerID >= wt.nWorkers {
		panic(fmt.Sprintf("timing: worker id %d out of range [0,%d)", workerID, wt.nWorkers))
	}
	return &Tracker{wt: wt, phase: phase, workerID: workerID, start: wt.clock.Now()}
}

// Stop records the elapsed time and returns it.
func (t *Tracker) Stop() time.Duration {
	if t.stopped {
		return 0
	}
	t.stopped = true
	elapsed := t.wt.clock.Since(t.start)
	c := &t.wt.cells[t.phase][t.workerID]
	c.elapsed += elapsed
	c.samples++
	return elapsed
}

// Get returns the time workerID spent in phase and whether it recorded anything.
func (wt *WorkerTimings) Get(phase Phase, workerID int) (time.Duration, bool) {
	if wt == nil {
		return 0, false
	}
	c := wt.cells[phase][workerID]
	return c.elapsed, c.samples > 0
}

// Samples returns the number of records across all workers for phase.
func (wt *WorkerTimings) Samples(phase Phase) int {
	if wt == nil {
		return 0
	}
	n := 0
	for _, c := range wt.cells[phase] {
		n += c.samples
	}
	return n
}

// Total returns the time all workers spent in phase.
func (wt *WorkerTimings) Total(phase Phase) time.Duration {
	if wt == nil {
		return 0
	}
	var sum time.Duration
	for _, c := range wt.cells[phase] {
		sum += c.elapsed
	}
	return sum
}

// PhaseStat summarizes one phase across the workers that recorded it.
type PhaseStat struct {
	Phase   string        `json:"phase"`
	Workers int           `json:"workers"`
	Min     time.Duration `json:"min_ns"`
	Avg     time.Duration `json:"avg_ns"`
	Max     time.Duration `json:"max_ns"`
	Sum     time.Duration `json:"sum_ns"`
}

// Snapshot returns statistics for every phase somebody recorded, in report order.
func (wt *WorkerTimings) Snapshot() []PhaseStat {
	if wt == nil {
		return nil
	}
	var stats []PhaseStat
	for _, p := range Phases() {
		st := PhaseStat{Phase: p.String()}
		for _, c := range wt.cells[p] {
			if c.samples == 0 {
				continue
			}
			if st.Workers == 0 || c.elapsed < st.Min {
				st.Min = c.elapsed
			}
			if c.elapsed > st.Max {
				st.Max = c.elapsed
			}
			st.Sum += c.elapsed
			st.Workers++
		}
		if st.Workers == 0 {
			continue
		}
		st.Avg = st.Sum / time.Duration(st.Workers)
		stats = append(stats, st)
	}
	return stats
}

// Summary renders the snapshot as a fixed-width table.
func (wt *WorkerTimings) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-22s %7s %12s %12s %12s %12s\n", "Phase", "Workers", "Min", "Avg", "Max", "Sum")
	for _, st := range wt.Snapshot() {
		fmt.Fprintf(&sb, "%-22s %7d %12v %12v %12v %12v\n", st.Phase, st.Workers, st.Min, st.Avg, st.Max, st.Sum)
	}
	return sb.String()
}
