package heap

import "github.com/gc-rootscan/internal/roots"

// MarkedFilter treats an object as alive when it is marked.
type MarkedFilter struct {
	heap *Heap
}

// NewMarkedFilter returns a filter over h's mark bitmap.
func NewMarkedFilter(h *Heap) *MarkedFilter {
	return &MarkedFilter{heap: h}
}

// IsAlive implements roots.LivenessFilter.
func (f *MarkedFilter) IsAlive(ref roots.Ref) bool {
	return f.heap.IsMarked(ref)
}

// ForwardedFilter resolves forwarding first and then checks the mark of the
// current copy. It is the filter for phases that run after evacuation has
// started.
type ForwardedFilter struct {
	heap *Heap
}

// NewForwardedFilter returns a forwarding-aware filter over h.
func NewForwardedFilter(h *Heap) *ForwardedFilter {
	return &ForwardedFilter{heap: h}
}

// IsAlive implements roots.LivenessFilter.
func (f *ForwardedFilter) IsAlive(ref roots.Ref) bool {
	if ref == roots.Null {
		return false
	}
	return f.heap.IsMarked(f.heap.Resolve(ref))
}

// EvacuatedFilter treats a marked object as alive unless it sits in the
// collection set without a forwardee, i.e. it was left behind in from-space.
type EvacuatedFilter struct {
	heap *Heap
}

// NewEvacuatedFilter returns a from-space aware filter over h.
func NewEvacuatedFilter(h *Heap) *EvacuatedFilter {
	return &EvacuatedFilter{heap: h}
}

// IsAlive implements roots.LivenessFilter.
func (f *EvacuatedFilter) IsAlive(ref roots.Ref) bool {
	if !f.heap.IsMarked(ref) {
		return false
	}
	return !f.heap.InCollectionSet(ref) || f.heap.Resolve(ref) != ref
}

// AlwaysAlive treats every non-null reference as alive.
type AlwaysAlive struct{}

// IsAlive implements roots.LivenessFilter.
func (AlwaysAlive) IsAlive(ref roots.Ref) bool {
	return ref != roots.Null
}

// Liveness returns a factory building filter kind over h: "marked",
// "forwarded", "evacuated" or "always". Unknown kinds report false.
func (h *Heap) Liveness(kind string) (roots.LivenessFactory, bool) {
	switch kind {
	case "marked":
		return func() roots.LivenessFilter { return NewMarkedFilter(h) }, true
	case "forwarded":
		return func() roots.LivenessFilter { return NewForwardedFilter(h) }, true
	case "evacuated":
		return func() roots.LivenessFilter { return NewEvacuatedFilter(h) }, true
	case "always":
		return func() roots.LivenessFilter { return AlwaysAlive{} }, true
	default:
		return nil, false
	}
}

// UpdateRefs rewrites each visited slot to the forwardee of its referent.
// It is the object visitor root updating passes use.
type UpdateRefs struct {
	heap *Heap
}

// NewUpdateRefs returns an updating visitor over h.
func NewUpdateRefs(h *Heap) *UpdateRefs {
	return &UpdateRefs{heap: h}
}

// DoOop implements roots.ObjectRefVisitor.
func (u *UpdateRefs) DoOop(slot *roots.Ref) {
	if fwd := u.heap.Resolve(*slot); fwd != *slot {
		*slot = fwd
	}
}
