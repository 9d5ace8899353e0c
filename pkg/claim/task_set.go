// Package claim provides lock-free exactly-once claiming of a fixed set of subtasks.
package claim

import (
	"fmt"
	"sync/atomic"
)

// ============================================================================
// TaskSet - exactly-once claim flags
// ============================================================================

// TaskSet is a fixed catalog of independent subtasks identified by index.
// Each index can be claimed exactly once for the lifetime of the set.
//
// A TaskSet is created fresh for every phase and is never reset. Claiming
// never blocks: a caller that loses the race for an index gets false and
// moves on.
type TaskSet struct {
	flags []atomic.Bool

	// completed counts workers that have reported completion.
	completed atomic.Int32
}

// NewTaskSet creates a task set with n unclaimed subtasks.
func NewTaskSet(n int) *TaskSet {
	if n < 0 {
		panic(fmt.Sprintf("claim: negative task count %d", n))
	}
	return &TaskSet{flags: make([]atomic.Bool, n)}
}

// Len returns the number of subtasks in the set.
func (s *TaskSet) Len() int {
	return len(s.flags)
}

// TryClaim attempts to claim subtask i.
// It returns true to exactly one caller per index; every other caller,
// concurrent or later, gets false. The return value is the only valid
// signal to run the subtask.
func (s *TaskSet) TryClaim(i int) bool {
	return s.flags[s.check(i)].CompareAndSwap(false, true)
}

// IsClaimed reports whether subtask i has been claimed.
// The result is a snapshot for diagnostics; never follow it with TryClaim
// to decide whether to run a subtask.
func (s *TaskSet) IsClaimed(i int) bool {
	return s.flags[s.check(i)].Load()
}

// ClaimedCount returns the number of claimed subtasks.
func (s *TaskSet) ClaimedCount() int {
	count := 0
	for i := range s.flags {
		if s.flags[i].Load() {
			count++
		}
	}
	return count
}

// Unclaimed returns the indices of subtasks nobody has claimed yet.
func (s *TaskSet) Unclaimed() []int {
	var result []int
	for i := range s.flags {
		if !s.flags[i].Load() {
			result = append(result, i)
		}
	}
	return result
}

// AllTasksCompleted records that one of nWorkers workers finished its pass
// over the set. It returns true only to the nWorkers-th reporter, at which
// point every worker has attempted every subtask.
//
// Each worker must report exactly once per set, and a set serves a single
// phase: the counter is never reset, so an extra report or a set reused for
// another phase never sees true again.
func (s *TaskSet) AllTasksCompleted(nWorkers int) bool {
	if nWorkers < 1 {
		nWorkers = 1
	}
	return int(s.completed.Add(1)) == nWorkers
}

func (s *TaskSet) check(i int) int {
	if i < 0 || i >= len(s.flags) {
		panic(fmt.Sprintf("claim: task index %d out of range [0,%d)", i, len(s.flags)))
	}
	return i
}
