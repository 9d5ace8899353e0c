// Package roots defines the vocabulary shared by root scanning: object
// references, the root records each category yields, the per-category
// visitor interfaces, and the closed catalog of root-scanning subtasks.
package roots

import "fmt"

// Ref is a reference to a heap object. The zero value is the null reference.
type Ref uint64

// Null is the null reference.
const Null Ref = 0

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool {
	return r == Null
}

// String returns the reference in hex form.
func (r Ref) String() string {
	if r == Null {
		return "null"
	}
	return fmt.Sprintf("0x%x", uint64(r))
}

// ClassLoaderData is the metadata record of one class loader: the loader
// object itself plus the handles it keeps alive (mirrors, constant pool
// resolved references and the like).
type ClassLoaderData struct {
	Name    string
	Holder  Ref
	Handles []Ref
}

// OopsDo applies oops to the holder and every handle slot.
func (c *ClassLoaderData) OopsDo(oops ObjectRefVisitor) {
	visitSlot(&c.Holder, oops)
	for i := range c.Handles {
		visitSlot(&c.Handles[i], oops)
	}
}

// CodeBlob is a unit of compiled code with references embedded in its
// instruction stream.
type CodeBlob struct {
	Name string
	Oops []Ref
}

// OopsDo applies oops to every embedded reference.
func (b *CodeBlob) OopsDo(oops ObjectRefVisitor) {
	for i := range b.Oops {
		visitSlot(&b.Oops[i], oops)
	}
}

// Thread is a mutator thread: its thread object, the reference slots of
// its stack frames and registers, and the compiled code active on its stack.
type Thread struct {
	ID        int64
	Name      string
	ThreadObj Ref
	Stack     []Ref
	Active    []*CodeBlob
}

// OopsDo applies oops to the thread object and every stack slot, and blobs
// (when non-nil) to every compiled method active on the stack.
func (t *Thread) OopsDo(oops ObjectRefVisitor, blobs CodeBlobVisitor) {
	visitSlot(&t.ThreadObj, oops)
	for i := range t.Stack {
		visitSlot(&t.Stack[i], oops)
	}
	if blobs == nil {
		return
	}
	for _, b := range t.Active {
		blobs.DoCodeBlob(b)
	}
}

// visitSlot hands a non-null slot to oops. Null slots are not roots.
func visitSlot(slot *Ref, oops ObjectRefVisitor) {
	if *slot != Null {
		oops.DoOop(slot)
	}
}
