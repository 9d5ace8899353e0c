package roots

// WeakHandleTable holds weak global handles. WeakOopsDo applies oops to
// every slot whose referent isAlive accepts and clears the others. It is
// called by at most one worker per phase.
type WeakHandleTable interface {
	WeakOopsDo(isAlive LivenessFilter, oops ObjectRefVisitor)
}

// GlobalHandleTable holds strong global handles and VM-global roots.
type GlobalHandleTable interface {
	OopsDo(oops ObjectRefVisitor)
}

// ClassLoaderDataGraph enumerates class loader metadata. Loaders that are
// unconditionally reachable go to strong; loaders that may be unloaded go
// to weak. Either visitor may be nil, in which case those records are skipped.
type ClassLoaderDataGraph interface {
	RootsCLDDo(strong, weak ClassLoaderDataVisitor)
}

// CodeCache enumerates compiled code blobs.
type CodeCache interface {
	BlobsDo(blobs CodeBlobVisitor)
}

// ThreadList enumerates mutator threads. For each thread, threads (when
// non-nil) sees the thread, oops sees its reference slots, and blobs (when
// non-nil) sees the compiled code active on its stack.
type ThreadList interface {
	ThreadsDo(oops ObjectRefVisitor, blobs CodeBlobVisitor, threads ThreadVisitor)
}

// DedupTable is the string deduplication table. ParallelOopsDo is called by
// every worker with its own id; the table partitions its entries so that no
// two workers see the same entry within one pass. It returns how many
// partitions the calling worker claimed.
type DedupTable interface {
	ParallelOopsDo(isAlive LivenessFilter, oops ObjectRefVisitor, workerID int) int
}

// Sources bundles the root tables one phase scans.
type Sources struct {
	WeakHandles   WeakHandleTable
	GlobalHandles GlobalHandleTable
	ClassLoaders  ClassLoaderDataGraph
	CodeCache     CodeCache
	Threads       ThreadList

	// Dedup is consulted only when DedupEnabled is set.
	Dedup        DedupTable
	DedupEnabled bool
}

// Missing returns the names of required sources that are nil.
func (s Sources) Missing() []string {
	var missing []string
	if s.WeakHandles == nil {
		missing = append(missing, "weak handles")
	}
	if s.GlobalHandles == nil {
		missing = append(missing, "global handles")
	}
	if s.ClassLoaders == nil {
		missing = append(missing, "class loader data graph")
	}
	if s.CodeCache == nil {
		missing = append(missing, "code cache")
	}
	if s.Threads == nil {
		missing = append(missing, "threads")
	}
	if s.DedupEnabled && s.Dedup == nil {
		missing = append(missing, "dedup table")
	}
	return missing
}
