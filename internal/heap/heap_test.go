package heap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gc-rootscan/internal/roots"
)

func TestBitmap_ConcurrentSet(t *testing.T) {
	b := NewBitmap(1000)

	var wg sync.WaitGroup
	wins := make([]int, 4)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if b.Set(i) {
					wins[id]++
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 1000, wins[0]+wins[1]+wins[2]+wins[3])
	assert.Equal(t, 1000, b.Count())
	assert.False(t, b.Test(1000))
	assert.False(t, b.Set(-1))

	b.ClearAll()
	assert.Equal(t, 0, b.Count())
}

func TestHeap_AllocateAndMark(t *testing.T) {
	h := New(2)

	a := h.MustAllocate("A", 16)
	b := h.MustAllocate("B", 32)
	_, err := h.Allocate("C", 8)
	assert.Error(t, err)

	assert.True(t, h.Mark(a))
	assert.False(t, h.Mark(a))
	assert.True(t, h.IsMarked(a))
	assert.False(t, h.IsMarked(b))
	assert.False(t, h.IsMarked(roots.Null))
	assert.Equal(t, 1, h.MarkedCount())

	obj, ok := h.Object(b)
	require.True(t, ok)
	assert.Equal(t, "B", obj.Class)
	_, ok = h.Object(99)
	assert.False(t, ok)
}

func TestHeap_Forwarding(t *testing.T) {
	h := New(4)
	from := h.MustAllocate("A", 16)
	to := h.MustAllocate("A", 16)

	assert.Equal(t, from, h.Resolve(from))
	require.NoError(t, h.Forward(from, to))
	assert.Equal(t, to, h.Resolve(from))
	assert.Error(t, h.Forward(from, 77))
	assert.Error(t, h.Forward(77, to))

	h.AddToCollectionSet(from)
	assert.True(t, h.InCollectionSet(from))
	assert.False(t, h.InCollectionSet(to))
}

func TestFilters(t *testing.T) {
	h := New(5)
	dead := h.MustAllocate("A", 16)
	from := h.MustAllocate("A", 16)
	to := h.MustAllocate("A", 16)
	require.NoError(t, h.Forward(from, to))
	h.Mark(to)

	marked := NewMarkedFilter(h)
	assert.False(t, marked.IsAlive(dead))
	assert.False(t, marked.IsAlive(from))
	assert.True(t, marked.IsAlive(to))

	fwd := NewForwardedFilter(h)
	assert.True(t, fwd.IsAlive(from))
	assert.False(t, fwd.IsAlive(dead))
	assert.False(t, fwd.IsAlive(roots.Null))

	assert.True(t, AlwaysAlive{}.IsAlive(dead))

	// A marked from-space object without a forwardee was not evacuated.
	stranded := h.MustAllocate("A", 16)
	h.Mark(stranded)
	h.AddToCollectionSet(stranded)
	h.Mark(from)
	h.AddToCollectionSet(from)

	evac := NewEvacuatedFilter(h)
	assert.False(t, evac.IsAlive(stranded))
	assert.True(t, marked.IsAlive(stranded))
	assert.True(t, evac.IsAlive(from))
	assert.True(t, evac.IsAlive(to))
	assert.False(t, evac.IsAlive(dead))
	assert.False(t, evac.IsAlive(roots.Null))
	assert.False(t, AlwaysAlive{}.IsAlive(roots.Null))

	for _, kind := range []string{"marked", "forwarded", "evacuated", "always"} {
		factory, ok := h.Liveness(kind)
		require.True(t, ok, kind)
		assert.NotNil(t, factory())
	}
	_, ok := h.Liveness("psychic")
	assert.False(t, ok)
}

func TestWeakHandles_ClearsDeadReferents(t *testing.T) {
	h := New(4)
	live := h.MustAllocate("A", 16)
	dead := h.MustAllocate("B", 16)
	h.Mark(live)

	h.Weak.Add(live)
	h.Weak.Add(dead)
	h.Weak.Add(roots.Null)

	var seen []roots.Ref
	h.Weak.WeakOopsDo(NewMarkedFilter(h), roots.OopFunc(func(slot *roots.Ref) {
		seen = append(seen, *slot)
	}))

	assert.Equal(t, []roots.Ref{live}, seen)
	assert.Equal(t, roots.Null, h.Weak.Get(1))
	assert.Equal(t, 1, h.Weak.Cleared())
}

func TestClassLoaderGraph_StrongAndWeak(t *testing.T) {
	g := &ClassLoaderGraph{}
	boot := &roots.ClassLoaderData{Name: "boot"}
	app := &roots.ClassLoaderData{Name: "app"}
	g.Add(boot, true)
	g.Add(app, false)

	var strong, weak []string
	g.RootsCLDDo(
		roots.CLDFunc(func(c *roots.ClassLoaderData) { strong = append(strong, c.Name) }),
		roots.CLDFunc(func(c *roots.ClassLoaderData) { weak = append(weak, c.Name) }),
	)
	assert.Equal(t, []string{"boot"}, strong)
	assert.Equal(t, []string{"app"}, weak)

	strong = nil
	g.RootsCLDDo(roots.CLDFunc(func(c *roots.ClassLoaderData) { strong = append(strong, c.Name) }), nil)
	assert.Equal(t, []string{"boot"}, strong)
	assert.Equal(t, 2, g.Len())
}

func TestUpdateRefs(t *testing.T) {
	h := New(4)
	from := h.MustAllocate("A", 16)
	to := h.MustAllocate("A", 16)
	other := h.MustAllocate("B", 16)
	require.NoError(t, h.Forward(from, to))

	h.Globals.Add(from)
	h.Globals.Add(other)
	h.Globals.OopsDo(NewUpdateRefs(h))

	assert.Equal(t, to, h.Globals.Get(0))
	assert.Equal(t, other, h.Globals.Get(1))
}

func TestBuild(t *testing.T) {
	shape := DefaultShape()
	shape.Objects = 500
	h, err := Build(shape)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, h.Len(), 500)
	assert.Equal(t, shape.GlobalHandles, h.Globals.Len())
	assert.Equal(t, shape.WeakHandles, h.Weak.Len())
	assert.Equal(t, shape.ClassLoaders, h.ClassLoaders.Len())
	assert.Equal(t, shape.CodeBlobs, h.Code.Len())
	assert.Equal(t, shape.Threads, h.Threads.Len())
	assert.Greater(t, h.Dedup.Len(), 0)

	for i := 0; i < h.Globals.Len(); i++ {
		assert.True(t, NewForwardedFilter(h).IsAlive(h.Globals.Get(i)))
	}
}

func TestBuild_Deterministic(t *testing.T) {
	shape := DefaultShape()
	shape.Objects = 200

	a, err := Build(shape)
	require.NoError(t, err)
	b, err := Build(shape)
	require.NoError(t, err)

	assert.Equal(t, a.Len(), b.Len())
	assert.Equal(t, a.MarkedCount(), b.MarkedCount())
}

func TestShape_Validate(t *testing.T) {
	shape := DefaultShape()
	assert.NoError(t, shape.Validate())

	shape.LiveRatio = 2
	assert.Error(t, shape.Validate())

	shape = DefaultShape()
	shape.Threads = -1
	assert.Error(t, shape.Validate())

	shape = DefaultShape()
	shape.Objects = 0
	_, err := Build(shape)
	assert.Error(t, err)
}
