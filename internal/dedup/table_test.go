package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gc-rootscan/internal/roots"
)

func fillTable(t *testing.T, n int) *Table {
	t.Helper()
	table := NewTable(8)
	for i := 1; i <= n; i++ {
		_, deduped := table.Intern(fmt.Sprintf("value-%d", i), roots.Ref(i))
		require.False(t, deduped)
	}
	return table
}

func TestTable_Intern(t *testing.T) {
	table := NewTable(0)

	ref, deduped := table.Intern("hello", 10)
	assert.False(t, deduped)
	assert.Equal(t, roots.Ref(10), ref)

	ref, deduped = table.Intern("hello", 11)
	assert.True(t, deduped)
	assert.Equal(t, roots.Ref(10), ref)

	assert.Equal(t, 1, table.Len())
	assert.Equal(t, DefaultBuckets/DefaultPartitionSize, table.Partitions())
}

func TestPass_EveryEntryVisitedExactlyOnce(t *testing.T) {
	const (
		entries = 2000
		workers = 6
	)
	table := fillTable(t, entries)
	pass := table.NewPass()

	visits := make([]atomic.Int32, entries+1)
	perWorker := make([]int, workers)
	alive := roots.AliveFunc(func(roots.Ref) bool { return true })

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			pass.ParallelOopsDo(alive, roots.OopFunc(func(slot *roots.Ref) {
				visits[*slot].Add(1)
				perWorker[id]++
			}), id)
		}(w)
	}
	wg.Wait()

	for i := 1; i <= entries; i++ {
		assert.Equal(t, int32(1), visits[i].Load(), "entry %d", i)
	}
	total := 0
	for _, n := range perWorker {
		total += n
	}
	assert.Equal(t, entries, total)
}

func TestPass_UnlinksDeadEntries(t *testing.T) {
	table := fillTable(t, 100)
	isAlive := roots.AliveFunc(func(r roots.Ref) bool { return r%2 == 0 })

	var seen []roots.Ref
	table.NewPass().ParallelOopsDo(isAlive, roots.OopFunc(func(slot *roots.Ref) {
		seen = append(seen, *slot)
	}), 0)

	assert.Len(t, seen, 50)
	for _, r := range seen {
		assert.Equal(t, roots.Ref(0), r%2, "dead entry %s reached the visitor", r)
	}
	assert.Equal(t, 50, table.Unlinked())
	assert.Equal(t, 50, table.Len())
	assert.Len(t, table.Refs(), 50)
}

func TestPass_VisitorCanUpdateEntries(t *testing.T) {
	table := fillTable(t, 3)
	alive := roots.AliveFunc(func(roots.Ref) bool { return true })

	table.NewPass().ParallelOopsDo(alive, roots.OopFunc(func(slot *roots.Ref) {
		*slot += 100
	}), 0)

	assert.ElementsMatch(t, []roots.Ref{101, 102, 103}, table.Refs())
}

func TestPass_SecondCallerAfterDrainDoesNothing(t *testing.T) {
	table := fillTable(t, 10)
	pass := table.NewPass()
	alive := roots.AliveFunc(func(roots.Ref) bool { return true })

	count := 0
	visitor := roots.OopFunc(func(*roots.Ref) { count++ })
	assert.Equal(t, table.Partitions(), pass.ParallelOopsDo(alive, visitor, 0))
	assert.Zero(t, pass.ParallelOopsDo(alive, visitor, 1))

	assert.Equal(t, 10, count)
}
