package timing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gc-rootscan/internal/roots"
	"github.com/gc-rootscan/pkg/utils"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTracker_RecordsElapsed(t *testing.T) {
	clock := utils.NewMockClock(epoch)
	wt := NewWorkerTimings(2, clock)

	tr := wt.Track(ThreadRoots, 1)
	clock.Advance(5 * time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, tr.Stop())

	elapsed, ok := wt.Get(ThreadRoots, 1)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Millisecond, elapsed)

	_, ok = wt.Get(ThreadRoots, 0)
	assert.False(t, ok)
}

func TestTracker_StopIsIdempotent(t *testing.T) {
	clock := utils.NewMockClock(epoch)
	wt := NewWorkerTimings(1, clock)

	tr := wt.Track(CodeCacheRoots, 0)
	clock.Advance(time.Millisecond)
	tr.Stop()
	clock.Advance(time.Hour)
	assert.Equal(t, time.Duration(0), tr.Stop())

	assert.Equal(t, time.Millisecond, wt.Total(CodeCacheRoots))
	assert.Equal(t, 1, wt.Samples(CodeCacheRoots))
}

func TestTracker_DeferReleasesOnEveryPath(t *testing.T) {
	clock := utils.NewSteppingMockClock(epoch, time.Millisecond)
	wt := NewWorkerTimings(1, clock)

	run := func(early bool) {
		defer wt.Track(CLDGRoots, 0).Stop()
		if early {
			return
		}
	}
	run(true)
	run(false)

	assert.Equal(t, 2, wt.Samples(CLDGRoots))
	assert.Equal(t, 2*time.Millisecond, wt.Total(CLDGRoots))
}

func TestWorkerTimings_NilTableIsNoop(t *testing.T) {
	var wt *WorkerTimings

	assert.NotPanics(t, func() {
		defer wt.Track(ThreadRoots, 7).Stop()
	})
	assert.Nil(t, wt.Snapshot())
	assert.Equal(t, 0, wt.Workers())
	assert.Equal(t, time.Duration(0), wt.Total(ThreadRoots))
}

func TestWorkerTimings_RejectsBadWorker(t *testing.T) {
	wt := NewWorkerTimings(2, nil)

	require.Panics(t, func() { wt.Track(ThreadRoots, 2) })
	require.Panics(t, func() { wt.Track(Phase(99), 0) })
}

func TestWorkerTimings_ConcurrentDistinctCells(t *testing.T) {
	const workers = 8
	clock := utils.NewSteppingMockClock(epoch, time.Microsecond)
	wt := NewWorkerTimings(workers, clock)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for _, p := range Phases() {
				wt.Track(p, id).Stop()
			}
		}(w)
	}
	wg.Wait()

	for _, p := range Phases() {
		assert.Equal(t, workers, wt.Samples(p), p.String())
	}
}

func TestWorkerTimings_Snapshot(t *testing.T) {
	clock := utils.NewMockClock(epoch)
	wt := NewWorkerTimings(3, clock)

	for w, d := range []time.Duration{2 * time.Millisecond, 4 * time.Millisecond} {
		tr := wt.Track(ThreadRoots, w)
		clock.Advance(d)
		tr.Stop()
	}

	stats := wt.Snapshot()
	require.Len(t, stats, 1)
	st := stats[0]
	assert.Equal(t, "Thread Roots", st.Phase)
	assert.Equal(t, 2, st.Workers)
	assert.Equal(t, 2*time.Millisecond, st.Min)
	assert.Equal(t, 3*time.Millisecond, st.Avg)
	assert.Equal(t, 4*time.Millisecond, st.Max)
	assert.Equal(t, 6*time.Millisecond, st.Sum)

	assert.Contains(t, wt.Summary(), "Thread Roots")
}

func TestForTask(t *testing.T) {
	seen := make(map[Phase]bool)
	for _, task := range roots.AllTasks() {
		p := ForTask(task)
		assert.False(t, seen[p])
		seen[p] = true
	}
	assert.Equal(t, WeakHandleRoots, ForTask(roots.TaskWeakHandles))
	assert.Equal(t, "Unknown", Phase(-1).String())
	assert.Panics(t, func() { ForTask(roots.Task(99)) })
}
