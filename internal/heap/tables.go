package heap

import "github.com/gc-rootscan/internal/roots"

// GlobalHandles is the strong global handle table plus other VM-global
// roots (well-known objects, monitor owners).
type GlobalHandles struct {
	slots []roots.Ref
}

// Add appends a handle and returns its index.
func (g *GlobalHandles) Add(ref roots.Ref) int {
	g.slots = append(g.slots, ref)
	return len(g.slots) - 1
}

// Get returns the handle at i.
func (g *GlobalHandles) Get(i int) roots.Ref {
	return g.slots[i]
}

// Len returns the number of handles.
func (g *GlobalHandles) Len() int {
	return len(g.slots)
}

// OopsDo implements roots.GlobalHandleTable.
func (g *GlobalHandles) OopsDo(oops roots.ObjectRefVisitor) {
	for i := range g.slots {
		if g.slots[i] != roots.Null {
			oops.DoOop(&g.slots[i])
		}
	}
}

// WeakHandles is the weak global handle table. Slots whose referent is
// found dead are cleared to null during processing.
type WeakHandles struct {
	slots   []roots.Ref
	cleared int
}

// Add appends a weak handle and returns its index.
func (w *WeakHandles) Add(ref roots.Ref) int {
	w.slots = append(w.slots, ref)
	return len(w.slots) - 1
}

// Get returns the handle at i; null once cleared.
func (w *WeakHandles) Get(i int) roots.Ref {
	return w.slots[i]
}

// Len returns the number of handle slots, cleared ones included.
func (w *WeakHandles) Len() int {
	return len(w.slots)
}

// Cleared returns how many slots processing has cleared.
func (w *WeakHandles) Cleared() int {
	return w.cleared
}

// WeakOopsDo implements roots.WeakHandleTable.
func (w *WeakHandles) WeakOopsDo(isAlive roots.LivenessFilter, oops roots.ObjectRefVisitor) {
	for i := range w.slots {
		ref := w.slots[i]
		if ref == roots.Null {
			continue
		}
		if isAlive.IsAlive(ref) {
			oops.DoOop(&w.slots[i])
		} else {
			w.slots[i] = roots.Null
			w.cleared++
		}
	}
}

// ClassLoaderGraph is the class loader data graph. Strong loaders (the boot
// and platform loaders and anything pinned) always keep their classes
// alive; the rest may be unloaded.
type ClassLoaderGraph struct {
	strong []*roots.ClassLoaderData
	weak   []*roots.ClassLoaderData
}

// Add registers a loader record.
func (g *ClassLoaderGraph) Add(cld *roots.ClassLoaderData, strong bool) {
	if strong {
		g.strong = append(g.strong, cld)
	} else {
		g.weak = append(g.weak, cld)
	}
}

// Len returns the number of loader records.
func (g *ClassLoaderGraph) Len() int {
	return len(g.strong) + len(g.weak)
}

// RootsCLDDo implements roots.ClassLoaderDataGraph.
func (g *ClassLoaderGraph) RootsCLDDo(strong, weak roots.ClassLoaderDataVisitor) {
	if strong != nil {
		for _, cld := range g.strong {
			strong.DoCLD(cld)
		}
	}
	if weak != nil {
		for _, cld := range g.weak {
			weak.DoCLD(cld)
		}
	}
}

// CodeCache holds compiled code blobs.
type CodeCache struct {
	blobs []*roots.CodeBlob
}

// Add registers a code blob.
func (c *CodeCache) Add(blob *roots.CodeBlob) {
	c.blobs = append(c.blobs, blob)
}

// Len returns the number of blobs.
func (c *CodeCache) Len() int {
	return len(c.blobs)
}

// BlobsDo implements roots.CodeCache.
func (c *CodeCache) BlobsDo(blobs roots.CodeBlobVisitor) {
	if blobs == nil {
		return
	}
	for _, b := range c.blobs {
		blobs.DoCodeBlob(b)
	}
}

// ThreadList holds the mutator threads.
type ThreadList struct {
	threads []*roots.Thread
}

// Add registers a thread.
func (l *ThreadList) Add(t *roots.Thread) {
	l.threads = append(l.threads, t)
}

// Len returns the number of threads.
func (l *ThreadList) Len() int {
	return len(l.threads)
}

// ThreadsDo implements roots.ThreadList.
func (l *ThreadList) ThreadsDo(oops roots.ObjectRefVisitor, blobs roots.CodeBlobVisitor, threads roots.ThreadVisitor) {
	for _, t := range l.threads {
		if threads != nil {
			threads.DoThread(t)
		}
		t.OopsDo(oops, blobs)
	}
}
