// Package report defines the outcome record of one root phase.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gc-rootscan/internal/timing"
)

// Mode selects the processor entry point a phase runs.
type Mode string

const (
	// ModeUpdate runs UpdateAllRoots: weak handles, strong roots, dedup.
	ModeUpdate Mode = "update"
	// ModeAll runs ProcessAllRoots.
	ModeAll Mode = "all"
	// ModeStrong runs ProcessStrongRoots.
	ModeStrong Mode = "strong"
)

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeUpdate, ModeAll, ModeStrong:
		return m, nil
	default:
		return "", fmt.Errorf("unknown phase mode %q (want update, all or strong)", s)
	}
}

// TaskClaim records which worker ran a root task.
type TaskClaim struct {
	Task   string `json:"task"`
	Worker int    `json:"worker"`
}

// HeapStats describes the heap before and after the phase.
type HeapStats struct {
	Objects       int `json:"objects"`
	Marked        int `json:"marked"`
	WeakCleared   int `json:"weak_cleared"`
	DedupEntries  int `json:"dedup_entries"`
	DedupUnlinked int `json:"dedup_unlinked"`
}

// PhaseReport is the persisted summary of a root phase.
type PhaseReport struct {
	ID           string             `json:"id"`
	Mode         Mode               `json:"mode"`
	Liveness     string             `json:"liveness,omitempty"`
	Workers      int                `json:"workers"`
	DedupEnabled bool               `json:"dedup_enabled"`
	StartedAt    time.Time          `json:"started_at"`
	Duration     time.Duration      `json:"duration_ns"`
	Complete     bool               `json:"complete"`
	Error        string             `json:"error,omitempty"`
	Claims       []TaskClaim        `json:"claims"`
	Visits       Visits             `json:"visits"`
	Heap         HeapStats          `json:"heap"`
	Timings      []timing.PhaseStat `json:"timings"`
}

// New creates an empty report with a fresh id.
func New(mode Mode, workers int, startedAt time.Time) *PhaseReport {
	return &PhaseReport{
		ID:        uuid.NewString(),
		Mode:      mode,
		Workers:   workers,
		StartedAt: startedAt,
	}
}

// ClaimedBy returns the worker that ran task, or -1.
func (r *PhaseReport) ClaimedBy(task string) int {
	for _, c := range r.Claims {
		if c.Task == task {
			return c.Worker
		}
	}
	return -1
}

// Summary renders a short human-readable report.
func (r *PhaseReport) Summary() string {
	var sb strings.Builder
	status := "complete"
	if !r.Complete {
		status = "INCOMPLETE"
	}
	fmt.Fprintf(&sb, "Root phase %s (%s, %d workers): %s in %v\n", r.ID, r.Mode, r.Workers, status, r.Duration)
	if r.Error != "" {
		fmt.Fprintf(&sb, "  error: %s\n", r.Error)
	}
	for _, c := range r.Claims {
		fmt.Fprintf(&sb, "  %-22s worker %d\n", c.Task, c.Worker)
	}
	fmt.Fprintf(&sb, "  visits: oops=%d clds=%d blobs=%d threads=%d\n",
		r.Visits.Oops, r.Visits.CLDs, r.Visits.CodeBlobs, r.Visits.Threads)
	fmt.Fprintf(&sb, "  heap: objects=%d marked=%d weak_cleared=%d dedup=%d (unlinked %d)\n",
		r.Heap.Objects, r.Heap.Marked, r.Heap.WeakCleared, r.Heap.DedupEntries, r.Heap.DedupUnlinked)
	return sb.String()
}
