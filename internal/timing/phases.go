// Package timing records per-worker, per-phase elapsed time for root processing.
package timing

import "github.com/gc-rootscan/internal/roots"

// Phase tags one timed root-processing subtask.
type Phase int

const (
	// ThreadRoots times thread stack and register scanning.
	ThreadRoots Phase = iota
	// CodeCacheRoots times compiled code scanning.
	CodeCacheRoots
	// GlobalHandleRoots times strong global handle scanning.
	GlobalHandleRoots
	// CLDGRoots times class loader data graph scanning.
	CLDGRoots
	// WeakHandleRoots times weak global handle processing.
	WeakHandleRoots
	// StringDedupRoots times a worker's share of the dedup table pass.
	StringDedupRoots

	numPhases int = iota
)

var phaseNames = [...]string{
	ThreadRoots:       "Thread Roots",
	CodeCacheRoots:    "Code Cache Roots",
	GlobalHandleRoots: "Global Handle Roots",
	CLDGRoots:         "CLDG Roots",
	WeakHandleRoots:   "Weak Handle Roots",
	StringDedupRoots:  "String Dedup Roots",
}

// String returns the display name of the phase.
func (p Phase) String() string {
	if p < 0 || int(p) >= numPhases {
		return "Unknown"
	}
	return phaseNames[p]
}

// Phases returns every phase in report order.
func Phases() []Phase {
	out := make([]Phase, numPhases)
	for i := range out {
		out[i] = Phase(i)
	}
	return out
}

// ForTask returns the timing phase of a root-scanning subtask.
func ForTask(task roots.Task) Phase {
	switch task {
	case roots.TaskWeakHandles:
		return WeakHandleRoots
	case roots.TaskClassLoaderData:
		return CLDGRoots
	case roots.TaskCodeCache:
		return CodeCacheRoots
	case roots.TaskThreads:
		return ThreadRoots
	case roots.TaskGlobalHandles:
		return GlobalHandleRoots
	default:
		panic("timing: no phase for task " + task.String())
	}
}
