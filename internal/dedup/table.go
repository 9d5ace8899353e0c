// Package dedup implements the string deduplication table and its
// worker-partitioned parallel root pass.
package dedup

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/gc-rootscan/internal/roots"
)

const (
	// DefaultBuckets is the bucket count of a new table.
	DefaultBuckets = 1024
	// DefaultPartitionSize is the number of buckets a worker claims at a time.
	DefaultPartitionSize = 64
)

type entry struct {
	hash  uint64
	value string
	ref   roots.Ref
}

// Table maps string contents to the canonical object holding them.
// Interning happens between phases; during a pass the table belongs to the
// pass.
type Table struct {
	mu            sync.Mutex
	buckets       [][]entry
	partitionSize int
	size          int
	unlinked      atomic.Int64
}

// NewTable creates an empty table whose passes hand out partitionSize
// buckets per claim.
func NewTable(partitionSize int) *Table {
	if partitionSize <= 0 {
		partitionSize = DefaultPartitionSize
	}
	return &Table{
		buckets:       make([][]entry, DefaultBuckets),
		partitionSize: partitionSize,
	}
}

// Intern records ref as the holder of value. When an equal value is already
// present, the existing canonical ref is returned with deduped set.
func (t *Table) Intern(value string, ref roots.Ref) (canonical roots.Ref, deduped bool) {
	h := xxhash.Sum64String(value)
	t.mu.Lock()
	defer t.mu.Unlock()

	b := &t.buckets[h&uint64(len(t.buckets)-1)]
	for _, e := range *b {
		if e.hash == h && e.value == value {
			return e.ref, true
		}
	}
	*b = append(*b, entry{hash: h, value: value, ref: ref})
	t.size++
	return ref, false
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size - int(t.unlinked.Load())
}

// Unlinked returns how many entries passes have removed as dead.
func (t *Table) Unlinked() int {
	return int(t.unlinked.Load())
}

// Partitions returns how many partitions a pass splits the table into.
func (t *Table) Partitions() int {
	return (len(t.buckets) + t.partitionSize - 1) / t.partitionSize
}

// Refs returns every live canonical reference. Not for use during a pass.
func (t *Table) Refs() []roots.Ref {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []roots.Ref
	for _, b := range t.buckets {
		for _, e := range b {
			out = append(out, e.ref)
		}
	}
	return out
}

// NewPass starts a parallel pass over the table. Each phase needs its own
// pass; at most one pass may run at a time.
func (t *Table) NewPass() *Pass {
	return &Pass{table: t}
}

// Pass is one parallel iteration over the table. Workers claim partitions
// by bumping a shared cursor, so partitions are disjoint across workers and
// the pass is complete once every worker has returned.
type Pass struct {
	table  *Table
	cursor atomic.Int64
}

// ParallelOopsDo implements roots.DedupTable. The calling worker claims
// partitions until none remain; dead entries are unlinked and live ones
// are handed to oops. It returns the number of partitions claimed.
func (p *Pass) ParallelOopsDo(isAlive roots.LivenessFilter, oops roots.ObjectRefVisitor, workerID int) int {
	t := p.table
	nParts := int64(t.Partitions())
	claimed := 0
	for {
		part := p.cursor.Add(1) - 1
		if part >= nParts {
			return claimed
		}
		claimed++
		start := int(part) * t.partitionSize
		end := min(start+t.partitionSize, len(t.buckets))
		for i := start; i < end; i++ {
			t.buckets[i] = p.processBucket(t.buckets[i], isAlive, oops)
		}
	}
}

// processBucket filters a bucket in place.
func (p *Pass) processBucket(b []entry, isAlive roots.LivenessFilter, oops roots.ObjectRefVisitor) []entry {
	kept := b[:0]
	for _, e := range b {
		if !isAlive.IsAlive(e.ref) {
			p.table.unlinked.Add(1)
			continue
		}
		oops.DoOop(&e.ref)
		kept = append(kept, e)
	}
	return kept
}
