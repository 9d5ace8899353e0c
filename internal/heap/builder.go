package heap

import (
	"fmt"
	"math/rand/v2"

	"github.com/gc-rootscan/internal/roots"
)

// Shape describes a synthetic heap for simulation runs.
type Shape struct {
	Objects       int     `mapstructure:"objects"`
	GlobalHandles int     `mapstructure:"global_handles"`
	WeakHandles   int     `mapstructure:"weak_handles"`
	ClassLoaders  int     `mapstructure:"class_loaders"`
	CodeBlobs     int     `mapstructure:"code_blobs"`
	Threads       int     `mapstructure:"threads"`
	StackDepth    int     `mapstructure:"stack_depth"`
	DedupStrings  int     `mapstructure:"dedup_strings"`
	LiveRatio     float64 `mapstructure:"live_ratio"`
	EvacRatio     float64 `mapstructure:"evac_ratio"`
	Seed          uint64  `mapstructure:"seed"`
}

// DefaultShape returns a small heap suitable for quick runs.
func DefaultShape() Shape {
	return Shape{
		Objects:       10000,
		GlobalHandles: 256,
		WeakHandles:   512,
		ClassLoaders:  16,
		CodeBlobs:     128,
		Threads:       32,
		StackDepth:    24,
		DedupStrings:  1024,
		LiveRatio:     0.7,
		EvacRatio:     0.1,
		Seed:          1,
	}
}

// Validate checks that the shape can be built.
func (s Shape) Validate() error {
	if s.Objects < 1 {
		return fmt.Errorf("heap shape: objects must be at least 1")
	}
	if s.LiveRatio < 0 || s.LiveRatio > 1 {
		return fmt.Errorf("heap shape: live_ratio %v out of [0,1]", s.LiveRatio)
	}
	if s.EvacRatio < 0 || s.EvacRatio > 1 {
		return fmt.Errorf("heap shape: evac_ratio %v out of [0,1]", s.EvacRatio)
	}
	for name, v := range map[string]int{
		"global_handles": s.GlobalHandles,
		"weak_handles":   s.WeakHandles,
		"class_loaders":  s.ClassLoaders,
		"code_blobs":     s.CodeBlobs,
		"threads":        s.Threads,
		"stack_depth":    s.StackDepth,
		"dedup_strings":  s.DedupStrings,
	} {
		if v < 0 {
			return fmt.Errorf("heap shape: %s must not be negative", name)
		}
	}
	return nil
}

// Build creates a heap of the given shape. Objects are marked with
// probability LiveRatio; a EvacRatio share of live objects is placed in the
// collection set and forwarded to a fresh copy, so update passes have
// something to rewrite. Strong roots always point at live objects; weak
// handles and dedup entries point anywhere.
func Build(s Shape) (*Heap, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15))

	// Room for a forwarded copy of every object.
	h := New(2 * s.Objects)
	all := make([]roots.Ref, 0, s.Objects)
	var live []roots.Ref
	for i := 0; i < s.Objects; i++ {
		ref := h.MustAllocate(fmt.Sprintf("Class%d", i%64), int64(16+rng.IntN(240)))
		all = append(all, ref)
		if rng.Float64() < s.LiveRatio {
			h.Mark(ref)
			live = append(live, ref)
		}
	}
	if len(live) == 0 {
		h.Mark(all[0])
		live = append(live, all[0])
	}

	for _, ref := range live {
		if rng.Float64() >= s.EvacRatio {
			continue
		}
		obj, _ := h.Object(ref)
		to := h.MustAllocate(obj.Class, obj.Size)
		h.Mark(to)
		h.AddToCollectionSet(ref)
		if err := h.Forward(ref, to); err != nil {
			return nil, err
		}
	}

	pickLive := func() roots.Ref { return live[rng.IntN(len(live))] }
	pickAny := func() roots.Ref { return all[rng.IntN(len(all))] }

	for i := 0; i < s.GlobalHandles; i++ {
		h.Globals.Add(pickLive())
	}
	for i := 0; i < s.WeakHandles; i++ {
		h.Weak.Add(pickAny())
	}
	for i := 0; i < s.ClassLoaders; i++ {
		cld := &roots.ClassLoaderData{Name: fmt.Sprintf("loader-%d", i), Holder: pickLive()}
		for j := 0; j < 8; j++ {
			cld.Handles = append(cld.Handles, pickLive())
		}
		// The first two loaders play the boot and platform loaders.
		h.ClassLoaders.Add(cld, i < 2)
	}
	blobs := make([]*roots.CodeBlob, 0, s.CodeBlobs)
	for i := 0; i < s.CodeBlobs; i++ {
		b := &roots.CodeBlob{Name: fmt.Sprintf("nmethod-%d", i)}
		for j := 0; j < 4; j++ {
			b.Oops = append(b.Oops, pickLive())
		}
		h.Code.Add(b)
		blobs = append(blobs, b)
	}
	for i := 0; i < s.Threads; i++ {
		t := &roots.Thread{ID: int64(i + 1), Name: fmt.Sprintf("worker-%d", i), ThreadObj: pickLive()}
		for j := 0; j < s.StackDepth; j++ {
			t.Stack = append(t.Stack, pickLive())
		}
		if len(blobs) > 0 {
			t.Active = append(t.Active, blobs[rng.IntN(len(blobs))])
		}
		h.Threads.Add(t)
	}
	for i := 0; i < s.DedupStrings; i++ {
		h.Dedup.Intern(fmt.Sprintf("str-%d", rng.IntN(s.DedupStrings)), pickAny())
	}
	return h, nil
}
