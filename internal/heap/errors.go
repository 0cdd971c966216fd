package heap

import "errors"

// Sentinel errors for the fatal conditions the heap can raise: allocation
// exhaustion and type-tag mismatch (the latter surfaces as
// *TagMismatchError, checked with errors.As, not one of these sentinels).
var (
	// ErrOutOfMemory is returned when collect() freed nothing and growing
	// the backing buffer would cross MaxWords (when the heap was built with
	// a cap). A zero MaxWords means uncapped: the heap doubles forever
	// rather than ever returning this error.
	ErrOutOfMemory = errors.New("heap: out of memory")

	// ErrHeapTooSmall is returned by New when asked for an initial buffer
	// smaller than one node.
	ErrHeapTooSmall = errors.New("heap: initial size must hold at least one node")

	// ErrIndexOutOfRange is returned by indexed child access when the
	// requested index is not less than the object's recorded length.
	ErrIndexOutOfRange = errors.New("heap: index out of range")

	// ErrUseBeforeAssign is returned when a binding holding the UNALLOCATED
	// sentinel is read: the compiler never emits a read of a slot before
	// its defining assignment, so this can only mean unreachable bytecode.
	ErrUseBeforeAssign = errors.New("heap: read of unassigned binding")
)
