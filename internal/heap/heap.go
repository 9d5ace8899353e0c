// Package heap is an in-memory model of the runtime state root scanning
// reads: an object table with mark and collection-set bitmaps, forwarding
// pointers, and the root tables (global and weak handles, class loader
// data, code cache, threads, string dedup table).
//
// It does not allocate real memory, trace or move objects. Marking and
// forwarding are set up by callers to describe the state a phase starts in.
package heap

import (
	"fmt"

	"github.com/gc-rootscan/internal/dedup"
	"github.com/gc-rootscan/internal/roots"
)

// Object is one heap object record.
type Object struct {
	Ref   roots.Ref
	Class string
	Size  int64
}

// Heap holds objects and root tables for one collection cycle.
type Heap struct {
	objects   []Object
	marks     *Bitmap
	cset      *Bitmap
	forwardee []roots.Ref

	Globals      *GlobalHandles
	Weak         *WeakHandles
	ClassLoaders *ClassLoaderGraph
	Code         *CodeCache
	Threads      *ThreadList
	Dedup        *dedup.Table

	// DedupEnabled gates the dedup pass for this collection.
	DedupEnabled bool
}

// New creates an empty heap with capacity for capacity objects.
func New(capacity int) *Heap {
	return &Heap{
		objects:      make([]Object, 0, capacity),
		marks:        NewBitmap(capacity),
		cset:         NewBitmap(capacity),
		forwardee:    make([]roots.Ref, 0, capacity),
		Globals:      &GlobalHandles{},
		Weak:         &WeakHandles{},
		ClassLoaders: &ClassLoaderGraph{},
		Code:         &CodeCache{},
		Threads:      &ThreadList{},
		Dedup:        dedup.NewTable(dedup.DefaultPartitionSize),
	}
}

// Allocate records a new object and returns its reference.
func (h *Heap) Allocate(class string, size int64) (roots.Ref, error) {
	if len(h.objects) >= h.marks.Size() {
		return roots.Null, fmt.Errorf("heap full: capacity %d", h.marks.Size())
	}
	ref := roots.Ref(len(h.objects) + 1)
	h.objects = append(h.objects, Object{Ref: ref, Class: class, Size: size})
	h.forwardee = append(h.forwardee, roots.Null)
	return ref, nil
}

// MustAllocate is Allocate for setup code that sized the heap itself.
func (h *Heap) MustAllocate(class string, size int64) roots.Ref {
	ref, err := h.Allocate(class, size)
	if err != nil {
		panic(err)
	}
	return ref
}

// Len returns the number of objects.
func (h *Heap) Len() int {
	return len(h.objects)
}

// Object returns the record for ref.
func (h *Heap) Object(ref roots.Ref) (Object, bool) {
	i, ok := h.index(ref)
	if !ok {
		return Object{}, false
	}
	return h.objects[i], true
}

// Mark marks ref and reports whether it was newly marked.
func (h *Heap) Mark(ref roots.Ref) bool {
	i, ok := h.index(ref)
	return ok && h.marks.Set(i)
}

// IsMarked reports whether ref is marked.
func (h *Heap) IsMarked(ref roots.Ref) bool {
	i, ok := h.index(ref)
	return ok && h.marks.Test(i)
}

// MarkedCount returns the number of marked objects.
func (h *Heap) MarkedCount() int {
	return h.marks.Count()
}

// AddToCollectionSet puts ref in the collection set.
func (h *Heap) AddToCollectionSet(ref roots.Ref) {
	if i, ok := h.index(ref); ok {
		h.cset.Set(i)
	}
}

// InCollectionSet reports whether ref is in the collection set.
func (h *Heap) InCollectionSet(ref roots.Ref) bool {
	i, ok := h.index(ref)
	return ok && h.cset.Test(i)
}

// Forward records that from has been copied to to. Setup only.
func (h *Heap) Forward(from, to roots.Ref) error {
	i, ok := h.index(from)
	if !ok {
		return fmt.Errorf("forward: unknown object %s", from)
	}
	if _, ok := h.index(to); !ok {
		return fmt.Errorf("forward: unknown target %s", to)
	}
	h.forwardee[i] = to
	return nil
}

// Resolve returns the forwardee of ref, or ref itself when it has not moved.
func (h *Heap) Resolve(ref roots.Ref) roots.Ref {
	i, ok := h.index(ref)
	if !ok || h.forwardee[i] == roots.Null {
		return ref
	}
	return h.forwardee[i]
}

// Sources exposes the heap's root tables to a root processor. Each call
// starts a fresh dedup pass, so call it once per phase.
func (h *Heap) Sources() roots.Sources {
	return roots.Sources{
		WeakHandles:   h.Weak,
		GlobalHandles: h.Globals,
		ClassLoaders:  h.ClassLoaders,
		CodeCache:     h.Code,
		Threads:       h.Threads,
		Dedup:         h.Dedup.NewPass(),
		DedupEnabled:  h.DedupEnabled,
	}
}

func (h *Heap) index(ref roots.Ref) (int, bool) {
	if ref == roots.Null || int(ref) > len(h.objects) {
		return 0, false
	}
	return int(ref) - 1, true
}
