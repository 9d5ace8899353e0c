package report

import (
	"sync"
	"sync/atomic"

	"github.com/gc-rootscan/internal/roots"
)

// Visits is a snapshot of Counters.
type Visits struct {
	Oops      int64 `json:"oops"`
	CLDs      int64 `json:"clds"`
	CodeBlobs int64 `json:"code_blobs"`
	Threads   int64 `json:"threads"`
}

// Counters tallies visits per root category. Its visitors are safe to share
// across workers and forward to the wrapped visitor, if any.
type Counters struct {
	oops    atomic.Int64
	clds    atomic.Int64
	blobs   atomic.Int64
	threads atomic.Int64

	// walked claims blobs so each is walked by one worker per phase.
	walked sync.Map
}

// Oops counts slots and forwards them to next.
func (c *Counters) Oops(next roots.ObjectRefVisitor) roots.ObjectRefVisitor {
	return roots.OopFunc(func(slot *roots.Ref) {
		c.oops.Add(1)
		if next != nil {
			next.DoOop(slot)
		}
	})
}

// CLDs counts class loader data and walks each one's handles with oops.
func (c *Counters) CLDs(oops roots.ObjectRefVisitor) roots.ClassLoaderDataVisitor {
	return roots.CLDFunc(func(cld *roots.ClassLoaderData) {
		c.clds.Add(1)
		cld.OopsDo(oops)
	})
}

// CodeBlobs counts blobs and walks each one's embedded references with oops.
// A blob is reached from the code cache and from every thread it is active
// on, possibly by different workers at once; only the first visit walks it.
func (c *Counters) CodeBlobs(oops roots.ObjectRefVisitor) roots.CodeBlobVisitor {
	return roots.CodeBlobFunc(func(blob *roots.CodeBlob) {
		c.blobs.Add(1)
		if _, seen := c.walked.LoadOrStore(blob, struct{}{}); !seen {
			blob.OopsDo(oops)
		}
	})
}

// Threads counts threads.
func (c *Counters) Threads() roots.ThreadVisitor {
	return roots.ThreadFunc(func(*roots.Thread) {
		c.threads.Add(1)
	})
}

// Snapshot returns the current counts.
func (c *Counters) Snapshot() Visits {
	return Visits{
		Oops:      c.oops.Load(),
		CLDs:      c.clds.Load(),
		CodeBlobs: c.blobs.Load(),
		Threads:   c.threads.Load(),
	}
}
