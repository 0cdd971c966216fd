// Package builtin is the host-function and constant library that occupies
// frame 0 of every program's global environment. It is deliberately
// narrow: the only thing it needs from the interpreter is a small
// operand-stack contract, so it never imports internal/task and cannot
// form an import cycle with it.
package builtin

import (
	"fmt"
	"io"
	"math"
	"os"

	"govm/internal/heap"
)

// Stack is the operand-stack contract a built-in function needs: pop its
// arguments (right-to-left, i.e. first Pop returns the rightmost argument)
// and push its single result. *task.Task satisfies this structurally.
type Stack interface {
	Pop() (heap.Addr, error)
	Push(heap.Addr)
}

// Func is a host function body. It is responsible for popping exactly its
// registered arity off the stack and pushing exactly one result.
type Func func(s Stack, h *heap.Heap) (heap.Addr, error)

// Kind distinguishes a callable entry from a bound constant; both occupy a
// frame-0 slot, but only FuncKind entries are invoked through CALL/TCALL.
type Kind uint8

const (
	FuncKind Kind = iota
	ConstKind
)

// Entry is one declarative row of the global library: a name, its kind, and
// either a function body (with its fixed arity) or a constant value.
// Building both the runtime's global frame and the compiler-facing
// name-to-slot table from this single ordered table is what keeps them
// from drifting apart.
type Entry struct {
	Name  string
	Kind  Kind
	Arity int
	Func  Func
	Const float64
}

// Registry is the ordered, addressable table of Entry rows. Entries are
// addressed by position (their id), matching BUILTIN's metadata word.
type Registry struct {
	entries []Entry
	byName  map[string]int
	out     io.Writer
}

// NewRegistry builds the registry with the language's standard library:
// display, channel/array constructors, math_sqrt, the is_* type
// predicates, and the standard math constants.
func NewRegistry() *Registry {
	r := &Registry{out: os.Stdout, byName: map[string]int{}}
	r.define(Entry{Name: "display", Kind: FuncKind, Arity: 1, Func: r.newDisplay()})
	r.define(Entry{Name: "make_channel", Kind: FuncKind, Arity: 0, Func: builtinMakeChannel})
	r.define(Entry{Name: "make_array", Kind: FuncKind, Arity: 1, Func: builtinMakeArray})
	r.define(Entry{Name: "math_sqrt", Kind: FuncKind, Arity: 1, Func: builtinMathSqrt})
	r.define(Entry{Name: "is_number", Kind: FuncKind, Arity: 1, Func: isKindFunc(heap.NUMBER)})
	r.define(Entry{Name: "is_boolean", Kind: FuncKind, Arity: 1, Func: isBooleanFunc})
	r.define(Entry{Name: "is_string", Kind: FuncKind, Arity: 1, Func: isKindFunc(heap.STRING)})
	r.define(Entry{Name: "is_undefined", Kind: FuncKind, Arity: 1, Func: isUndefinedFunc})
	r.define(Entry{Name: "is_function", Kind: FuncKind, Arity: 1, Func: isFunctionFunc})
	r.define(Entry{Name: "E", Kind: ConstKind, Const: math.E})
	r.define(Entry{Name: "LN2", Kind: ConstKind, Const: math.Ln2})
	r.define(Entry{Name: "LN10", Kind: ConstKind, Const: math.Ln10})
	r.define(Entry{Name: "LOG2E", Kind: ConstKind, Const: math.Log2E})
	r.define(Entry{Name: "LOG10E", Kind: ConstKind, Const: math.Log10E})
	r.define(Entry{Name: "PI", Kind: ConstKind, Const: math.Pi})
	r.define(Entry{Name: "SQRT1_2", Kind: ConstKind, Const: math.Sqrt2 / 2})
	r.define(Entry{Name: "SQRT2", Kind: ConstKind, Const: math.Sqrt2})
	return r
}

func (r *Registry) define(e Entry) {
	r.byName[e.Name] = len(r.entries)
	r.entries = append(r.entries, e)
}

// SetOutput redirects display()'s output, used by tests that capture it.
func (r *Registry) SetOutput(w io.Writer) { r.out = w }

// Entries returns the ordered entry table, the contract a compiler
// collaborator uses to resolve a global name to its frame-0 slot.
func (r *Registry) Entries() []Entry { return r.entries }

// Names returns the ordered names, matching bytecode.Program.Globals.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// IndexOf resolves a global name to its frame-0 slot, or false if undefined.
func (r *Registry) IndexOf(name string) (int, bool) {
	i, ok := r.byName[name]
	return i, ok
}

// Call invokes the function registered at id.
func (r *Registry) Call(id uint32, s Stack, h *heap.Heap) (heap.Addr, error) {
	if int(id) >= len(r.entries) || r.entries[id].Kind != FuncKind {
		return 0, fmt.Errorf("builtin: id %d is not a callable entry", id)
	}
	return r.entries[id].Func(s, h)
}

// BuildGlobalFrame allocates the frame-0 FRAME populated with a BUILTIN
// object per FuncKind entry and a boxed NUMBER per ConstKind entry, in
// table order.
func (r *Registry) BuildGlobalFrame(h *heap.Heap) (heap.Addr, error) {
	frame, err := h.AllocateFrame(len(r.entries))
	if err != nil {
		return 0, err
	}
	for i, e := range r.entries {
		var addr heap.Addr
		var err error
		switch e.Kind {
		case FuncKind:
			addr, err = h.AllocateBuiltin(uint32(i))
		case ConstKind:
			addr, err = h.AllocateNumber(e.Const)
		}
		if err != nil {
			return 0, err
		}
		if err := h.SetChildAt(frame, i, addr); err != nil {
			return 0, err
		}
	}
	return frame, nil
}
