package rootproc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gc-rootscan/internal/heap"
	"github.com/gc-rootscan/internal/roots"
	"github.com/gc-rootscan/internal/timing"
	apperrors "github.com/gc-rootscan/pkg/errors"
	"github.com/gc-rootscan/pkg/utils"
)

// slotCounter records how often each root slot was visited.
type slotCounter struct {
	mu    sync.Mutex
	slots map[*roots.Ref]int
	refs  []roots.Ref
}

func newSlotCounter() *slotCounter {
	return &slotCounter{slots: make(map[*roots.Ref]int)}
}

func (c *slotCounter) DoOop(slot *roots.Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[slot]++
	c.refs = append(c.refs, *slot)
}

func (c *slotCounter) maxVisits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := 0
	for _, n := range c.slots {
		m = max(m, n)
	}
	return m
}

func (c *slotCounter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.refs)
}

func smallHeap(t *testing.T) *heap.Heap {
	t.Helper()
	shape := heap.DefaultShape()
	shape.Objects = 2000
	shape.Threads = 8
	shape.DedupStrings = 300
	h, err := heap.Build(shape)
	require.NoError(t, err)
	return h
}

// runGang starts n workers on body and waits for all of them.
func runGang(n int, body func(workerID int)) {
	var wg sync.WaitGroup
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			body(id)
		}(w)
	}
	wg.Wait()
}

func TestNew_Validation(t *testing.T) {
	h := smallHeap(t)

	_, err := New(h.Sources(), 0)
	assert.True(t, apperrors.IsInvalidInput(err))

	_, err = New(roots.Sources{}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threads")

	_, err = New(h.Sources(), 4, WithTimings(timing.NewWorkerTimings(2, nil)))
	assert.True(t, apperrors.IsInvalidInput(err))

	rp, err := New(h.Sources(), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, rp.Workers())
}

func TestUpdateAllRoots_TwoWorkers(t *testing.T) {
	h := smallHeap(t)
	h.DedupEnabled = true
	wt := timing.NewWorkerTimings(2, nil)
	rp, err := New(h.Sources(), 2, WithTimings(wt))
	require.NoError(t, err)

	oops := newSlotCounter()
	var cldVisits, blobVisits, threadVisits atomic.Int32
	clds := roots.CLDFunc(func(cld *roots.ClassLoaderData) {
		cldVisits.Add(1)
		cld.OopsDo(oops)
	})
	blobs := roots.CodeBlobFunc(func(*roots.CodeBlob) { blobVisits.Add(1) })
	threads := roots.ThreadFunc(func(*roots.Thread) { threadVisits.Add(1) })

	alive, ok := h.Liveness("forwarded")
	require.True(t, ok)

	runGang(2, func(id int) {
		rp.UpdateAllRoots(alive, oops, clds, blobs, threads, id)
	})

	require.NoError(t, rp.Complete())
	for _, task := range roots.AllTasks() {
		assert.True(t, rp.Claimed(task), task.String())
		worker, ok := rp.ClaimedBy(task)
		assert.True(t, ok)
		assert.Contains(t, []int{0, 1}, worker)
	}

	assert.Equal(t, 1, oops.maxVisits(), "a slot was visited more than once")
	assert.Equal(t, int32(h.ClassLoaders.Len()), cldVisits.Load())
	assert.Equal(t, int32(h.Threads.Len()), threadVisits.Load())
	// Code blobs are reached once from the code cache and once per thread activation.
	assert.Equal(t, int32(h.Code.Len()+h.Threads.Len()), blobVisits.Load())

	for _, phase := range []timing.Phase{
		timing.ThreadRoots, timing.CodeCacheRoots, timing.GlobalHandleRoots,
		timing.CLDGRoots, timing.WeakHandleRoots,
	} {
		assert.Equal(t, 1, wt.Samples(phase), phase.String())
	}
	// Only workers that claimed a dedup partition record a sample.
	assert.GreaterOrEqual(t, wt.Samples(timing.StringDedupRoots), 1)
	assert.LessOrEqual(t, wt.Samples(timing.StringDedupRoots), 2)
}

func TestUpdateAllRoots_DedupDisabled(t *testing.T) {
	h := smallHeap(t)
	h.DedupEnabled = false
	before := h.Dedup.Len()
	wt := timing.NewWorkerTimings(3, nil)
	rp, err := New(h.Sources(), 3, WithTimings(wt))
	require.NoError(t, err)

	oops := newSlotCounter()
	runGang(3, func(id int) {
		rp.UpdateAllRoots(func() roots.LivenessFilter { return heap.AlwaysAlive{} },
			oops, nil, nil, nil, id)
	})

	require.NoError(t, rp.Complete())
	assert.Equal(t, 0, wt.Samples(timing.StringDedupRoots))
	assert.Equal(t, before, h.Dedup.Len())
	assert.Equal(t, 0, h.Dedup.Unlinked())
	assert.Equal(t, 1, oops.maxVisits())
	assert.Greater(t, before, 0)
}

func TestUpdateAllRoots_DeadWeakReferentNeverVisited(t *testing.T) {
	h := heap.New(8)
	live := h.MustAllocate("A", 16)
	dead := h.MustAllocate("B", 16)
	h.Mark(live)
	h.Weak.Add(live)
	h.Weak.Add(dead)

	rp, err := New(h.Sources(), 2)
	require.NoError(t, err)

	oops := newSlotCounter()
	runGang(2, func(id int) {
		rp.UpdateAllRoots(func() roots.LivenessFilter { return heap.NewMarkedFilter(h) },
			oops, nil, nil, nil, id)
	})

	require.NoError(t, rp.Complete())
	assert.NotContains(t, oops.refs, dead)
	assert.Contains(t, oops.refs, live)
	assert.Equal(t, roots.Null, h.Weak.Get(1))
}

func TestUpdateAllRoots_FreshFilterPerWorker(t *testing.T) {
	h := smallHeap(t)
	rp, err := New(h.Sources(), 4)
	require.NoError(t, err)

	var made atomic.Int32
	factory := func() roots.LivenessFilter {
		made.Add(1)
		return heap.NewForwardedFilter(h)
	}

	runGang(4, func(id int) {
		rp.UpdateAllRoots(factory, roots.OopFunc(func(*roots.Ref) {}), nil, nil, nil, id)
	})
	assert.Equal(t, int32(4), made.Load())
}

func TestUpdateAllRoots_RewritesForwardedRoots(t *testing.T) {
	h := smallHeap(t)
	h.DedupEnabled = true
	rp, err := New(h.Sources(), 4)
	require.NoError(t, err)

	alive, _ := h.Liveness("forwarded")
	update := heap.NewUpdateRefs(h)
	runGang(4, func(id int) {
		rp.UpdateAllRoots(alive, update, nil, nil, nil, id)
	})
	require.NoError(t, rp.Complete())

	for i := 0; i < h.Globals.Len(); i++ {
		ref := h.Globals.Get(i)
		assert.Equal(t, ref, h.Resolve(ref), "global %d still points at a forwarded object", i)
	}
	for _, ref := range h.Dedup.Refs() {
		assert.Equal(t, ref, h.Resolve(ref))
		assert.True(t, h.IsMarked(ref))
	}
}

func TestProcessAllRoots_ExactlyOnceUnderContention(t *testing.T) {
	for _, n := range []int{1, 2, 7, 32} {
		h := smallHeap(t)
		rp, err := New(h.Sources(), n)
		require.NoError(t, err)

		oops := newSlotCounter()
		runGang(n, func(id int) {
			rp.ProcessAllRoots(oops, roots.CLDFunc(func(c *roots.ClassLoaderData) { c.OopsDo(oops) }), nil, nil, id)
		})

		require.NoError(t, rp.Complete(), "workers=%d", n)
		assert.Equal(t, 1, oops.maxVisits(), "workers=%d", n)
		assert.False(t, rp.Claimed(roots.TaskWeakHandles))
	}
}

func TestProcessAllRoots_LateWorkerDoesNothing(t *testing.T) {
	h := smallHeap(t)
	wt := timing.NewWorkerTimings(2, nil)
	rp, err := New(h.Sources(), 2, WithTimings(wt))
	require.NoError(t, err)

	first := newSlotCounter()
	rp.ProcessAllRoots(first, nil, nil, nil, 0)

	late := newSlotCounter()
	rp.ProcessAllRoots(late, nil, nil, nil, 1)

	assert.Greater(t, first.total(), 0)
	assert.Equal(t, 0, late.total())
	for _, phase := range timing.Phases() {
		_, recorded := wt.Get(phase, 1)
		assert.False(t, recorded, phase.String())
	}
	require.NoError(t, rp.Complete())
}

func TestUpdateAllRoots_LateWorkerDoesNothingWithDedup(t *testing.T) {
	h := smallHeap(t)
	h.DedupEnabled = true
	require.Greater(t, h.Dedup.Len(), 0)
	wt := timing.NewWorkerTimings(2, nil)
	rp, err := New(h.Sources(), 2, WithTimings(wt))
	require.NoError(t, err)
	alive := func() roots.LivenessFilter { return heap.AlwaysAlive{} }

	first := newSlotCounter()
	rp.UpdateAllRoots(alive, first, nil, nil, nil, 0)

	late := newSlotCounter()
	rp.UpdateAllRoots(alive, late, nil, nil, nil, 1)

	assert.Greater(t, first.total(), 0)
	assert.Equal(t, 0, late.total())
	for _, phase := range timing.Phases() {
		_, recorded := wt.Get(phase, 1)
		assert.False(t, recorded, phase.String())
	}
	_, recorded := wt.Get(timing.StringDedupRoots, 0)
	assert.True(t, recorded)
	require.NoError(t, rp.Complete())
}

func TestProcessStrongRoots_SkipsWeakClassLoaders(t *testing.T) {
	h := heap.New(4)
	h.ClassLoaders.Add(&roots.ClassLoaderData{Name: "boot"}, true)
	h.ClassLoaders.Add(&roots.ClassLoaderData{Name: "app"}, false)

	rp, err := New(h.Sources(), 1)
	require.NoError(t, err)

	var names []string
	rp.ProcessStrongRoots(roots.OopFunc(func(*roots.Ref) {}),
		roots.CLDFunc(func(c *roots.ClassLoaderData) { names = append(names, c.Name) }), nil, nil, 0)

	assert.Equal(t, []string{"boot"}, names)
	require.NoError(t, rp.Complete())
}

func TestProcessAllRoots_VisitsWeakClassLoaders(t *testing.T) {
	h := heap.New(4)
	h.ClassLoaders.Add(&roots.ClassLoaderData{Name: "boot"}, true)
	h.ClassLoaders.Add(&roots.ClassLoaderData{Name: "app"}, false)

	rp, err := New(h.Sources(), 1)
	require.NoError(t, err)

	var names []string
	rp.ProcessAllRoots(roots.OopFunc(func(*roots.Ref) {}),
		roots.CLDFunc(func(c *roots.ClassLoaderData) { names = append(names, c.Name) }), nil, nil, 0)

	assert.ElementsMatch(t, []string{"boot", "app"}, names)
}

func TestWorkerIDOutOfRange(t *testing.T) {
	h := smallHeap(t)
	rp, err := New(h.Sources(), 2)
	require.NoError(t, err)

	noop := roots.OopFunc(func(*roots.Ref) {})
	assert.Panics(t, func() { rp.ProcessAllRoots(noop, nil, nil, nil, 2) })
	assert.Panics(t, func() { rp.ProcessAllRoots(noop, nil, nil, nil, -1) })
	assert.False(t, rp.Claimed(roots.TaskGlobalHandles))
}

func TestVisitorPanicPropagates(t *testing.T) {
	h := smallHeap(t)
	wt := timing.NewWorkerTimings(1, utils.NewSteppingMockClock(time.Unix(0, 0), time.Millisecond))
	rp, err := New(h.Sources(), 1, WithTimings(wt))
	require.NoError(t, err)

	boom := roots.OopFunc(func(*roots.Ref) { panic("bad slot") })
	assert.PanicsWithValue(t, "bad slot", func() {
		rp.ProcessAllRoots(boom, nil, nil, nil, 0)
	})
	// Thread roots are the first to reach oops; that task keeps its claim
	// and its timing, later tasks are never claimed.
	assert.True(t, rp.Claimed(roots.TaskThreads))
	assert.False(t, rp.Claimed(roots.TaskGlobalHandles))
	assert.Equal(t, 1, wt.Samples(timing.ThreadRoots))
	assert.Equal(t, 0, wt.Samples(timing.GlobalHandleRoots))
}

func TestComplete(t *testing.T) {
	h := smallHeap(t)

	t.Run("nobody entered", func(t *testing.T) {
		rp, err := New(h.Sources(), 2)
		require.NoError(t, err)
		err = rp.Complete()
		assert.True(t, apperrors.IsIncompletePhase(err))
	})

	t.Run("strong phase does not expect weak handles", func(t *testing.T) {
		rp, err := New(h.Sources(), 2)
		require.NoError(t, err)
		rp.ProcessAllRoots(roots.OopFunc(func(*roots.Ref) {}), nil, nil, nil, 0)
		assert.NoError(t, rp.Complete())
	})

	t.Run("aborted worker leaves tasks unclaimed", func(t *testing.T) {
		rp, err := New(h.Sources(), 1)
		require.NoError(t, err)
		assert.Panics(t, func() {
			rp.ProcessAllRoots(roots.OopFunc(func(*roots.Ref) { panic("abort") }), nil, nil, nil, 0)
		})
		err = rp.Complete()
		require.Error(t, err)
		assert.True(t, apperrors.IsIncompletePhase(err))
		assert.Contains(t, err.Error(), "global-handle-roots")
	})
}

func TestTimings_ArePerWorker(t *testing.T) {
	h := smallHeap(t)
	clock := utils.NewSteppingMockClock(time.Unix(0, 0), time.Microsecond)
	wt := timing.NewWorkerTimings(4, clock)
	rp, err := New(h.Sources(), 4, WithTimings(wt), WithLogger(&utils.NullLogger{}))
	require.NoError(t, err)

	alive, _ := h.Liveness("marked")
	runGang(4, func(id int) {
		rp.UpdateAllRoots(alive, roots.OopFunc(func(*roots.Ref) {}), nil, nil, nil, id)
	})

	for _, task := range roots.AllTasks() {
		worker, ok := rp.ClaimedBy(task)
		require.True(t, ok)
		d, recorded := wt.Get(timing.ForTask(task), worker)
		assert.True(t, recorded)
		assert.Greater(t, d, time.Duration(0))
	}
}
