package roots

// ObjectRefVisitor visits one reference slot. Implementations may rewrite
// the slot, which is how roots are updated after objects move.
type ObjectRefVisitor interface {
	DoOop(slot *Ref)
}

// ClassLoaderDataVisitor visits one class loader metadata record.
type ClassLoaderDataVisitor interface {
	DoCLD(cld *ClassLoaderData)
}

// CodeBlobVisitor visits one compiled code blob.
type CodeBlobVisitor interface {
	DoCodeBlob(blob *CodeBlob)
}

// ThreadVisitor visits one mutator thread.
type ThreadVisitor interface {
	DoThread(t *Thread)
}

// LivenessFilter reports whether an object is considered alive in the
// current phase. Implementations must be safe for concurrent queries.
type LivenessFilter interface {
	IsAlive(ref Ref) bool
}

// LivenessFactory builds a fresh LivenessFilter for one root-processing call.
type LivenessFactory func() LivenessFilter

// OopFunc adapts a function to ObjectRefVisitor.
type OopFunc func(slot *Ref)

// DoOop implements ObjectRefVisitor.
func (f OopFunc) DoOop(slot *Ref) { f(slot) }

// CLDFunc adapts a function to ClassLoaderDataVisitor.
type CLDFunc func(cld *ClassLoaderData)

// DoCLD implements ClassLoaderDataVisitor.
func (f CLDFunc) DoCLD(cld *ClassLoaderData) { f(cld) }

// CodeBlobFunc adapts a function to CodeBlobVisitor.
type CodeBlobFunc func(blob *CodeBlob)

// DoCodeBlob implements CodeBlobVisitor.
func (f CodeBlobFunc) DoCodeBlob(blob *CodeBlob) { f(blob) }

// ThreadFunc adapts a function to ThreadVisitor.
type ThreadFunc func(t *Thread)

// DoThread implements ThreadVisitor.
func (f ThreadFunc) DoThread(t *Thread) { f(t) }

// AliveFunc adapts a function to LivenessFilter.
type AliveFunc func(ref Ref) bool

// IsAlive implements LivenessFilter.
func (f AliveFunc) IsAlive(ref Ref) bool { return f(ref) }
