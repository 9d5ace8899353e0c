package roots

// Task identifies one root-scanning subtask. The catalog is closed and its
// indices are stable; they double as claim indices in a phase's task set.
type Task int

const (
	// TaskWeakHandles scans the weak global handle table under a liveness filter.
	TaskWeakHandles Task = iota
	// TaskClassLoaderData scans class loader metadata.
	TaskClassLoaderData
	// TaskCodeCache scans references embedded in compiled code.
	TaskCodeCache
	// TaskThreads scans thread objects, stacks and registers.
	TaskThreads
	// TaskGlobalHandles scans strong global handles and other VM-global roots.
	TaskGlobalHandles

	// NumTasks is the size of the catalog.
	NumTasks int = iota
)

var taskNames = [...]string{
	TaskWeakHandles:     "weak-handle-roots",
	TaskClassLoaderData: "class-metadata-roots",
	TaskCodeCache:       "code-roots",
	TaskThreads:         "thread-roots",
	TaskGlobalHandles:   "global-handle-roots",
}

// String returns the category name.
func (t Task) String() string {
	if t < 0 || int(t) >= NumTasks {
		return "unknown"
	}
	return taskNames[t]
}

// IsWeak reports whether the task's roots are subject to liveness filtering.
func (t Task) IsWeak() bool {
	return t == TaskWeakHandles
}

// strongTasks is the canonical attempt order for strong roots. Every worker
// walks the catalog in the same order.
var strongTasks = [...]Task{
	TaskClassLoaderData,
	TaskCodeCache,
	TaskThreads,
	TaskGlobalHandles,
}

// StrongTasks returns the strong-root subtasks in canonical attempt order.
func StrongTasks() []Task {
	out := make([]Task, len(strongTasks))
	copy(out, strongTasks[:])
	return out
}

// AllTasks returns every subtask, weak first, in canonical attempt order.
func AllTasks() []Task {
	return append([]Task{TaskWeakHandles}, strongTasks[:]...)
}

// ParseTask maps a category name back to its Task.
func ParseTask(name string) (Task, bool) {
	for i, n := range taskNames {
		if n == name {
			return Task(i), true
		}
	}
	return 0, false
}
