// Package task implements the execution context the scheduler multiplexes:
// program counter, operand stack, runtime (frame) stack, current
// environment, and the waiting-set/working-set bookkeeping a cooperative,
// GC-aware interpreter needs.
package task

import (
	"errors"
	"fmt"

	"govm/internal/bytecode"
	"govm/internal/heap"
)

// Status is the task's scheduling state, read and transitioned by the
// scheduler's rotation.
type Status uint8

const (
	Runnable Status = iota
	Blocked
	Done
)

func (s Status) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Blocked:
		return "blocked"
	case Done:
		return "done"
	default:
		return "?unknown-status?"
	}
}

// Task is one cooperative execution context. Working is the per-task
// mid-instruction GC-safety set (distinct from the heap's own working set,
// which protects multi-node allocations rather than multi-instruction
// sequences).
type Task struct {
	ID      int
	PC      int
	Operand []heap.Addr
	Runtime []heap.Addr
	Env     heap.Addr
	Waiting []heap.Addr
	Working []heap.Addr

	status Status
}

// New creates a runnable task starting at pc with the given environment.
func New(id, pc int, env heap.Addr) *Task {
	return &Task{ID: id, PC: pc, Env: env, status: Runnable}
}

func (t *Task) Status() Status    { return t.status }
func (t *Task) SetStatus(s Status) { t.status = s }
func (t *Task) Done() bool        { return t.status == Done }
func (t *Task) Blocked() bool     { return t.status == Blocked }

// --- operand stack, implementing builtin.Stack --------------------------

var ErrOperandStackUnderflow = errors.New("task: operand stack underflow")

func (t *Task) Push(a heap.Addr) { t.Operand = append(t.Operand, a) }

func (t *Task) Pop() (heap.Addr, error) {
	n := len(t.Operand)
	if n == 0 {
		return 0, ErrOperandStackUnderflow
	}
	v := t.Operand[n-1]
	t.Operand = t.Operand[:n-1]
	return v, nil
}

func (t *Task) peek() (heap.Addr, error) {
	n := len(t.Operand)
	if n == 0 {
		return 0, ErrOperandStackUnderflow
	}
	return t.Operand[n-1], nil
}

// --- runtime (frame) stack ------------------------------------------------

var ErrRuntimeStackUnderflow = errors.New("task: runtime stack underflow")

func (t *Task) pushFrame(a heap.Addr) { t.Runtime = append(t.Runtime, a) }

func (t *Task) popFrame() (heap.Addr, error) {
	n := len(t.Runtime)
	if n == 0 {
		return 0, ErrRuntimeStackUnderflow
	}
	v := t.Runtime[n-1]
	t.Runtime = t.Runtime[:n-1]
	return v, nil
}

// --- GC roots --------------------------------------------------------------

// MarkRoots marks every address this task keeps alive: its environment,
// every operand/runtime-stack entry, every wait token, and its working
// set.
func (t *Task) MarkRoots(mark func(heap.Addr)) {
	mark(t.Env)
	for _, a := range t.Operand {
		mark(a)
	}
	for _, a := range t.Runtime {
		mark(a)
	}
	for _, a := range t.Waiting {
		mark(a)
	}
	for _, a := range t.Working {
		mark(a)
	}
}

// fatalf builds an error tagging the task ID and PC onto a fatal condition,
// so a VM-level failure report can point at exactly which task and
// instruction hit it.
func (t *Task) fatalf(format string, args ...any) error {
	return fmt.Errorf("task %d at pc %d: %w", t.ID, t.PC, fmt.Errorf(format, args...))
}

var (
	// ErrNotCallable is returned when CALL/TCALL's callee is neither a
	// CLOSURE nor a BUILTIN.
	ErrNotCallable = errors.New("task: value is not callable")

	// ErrResetWithoutCallFrame is returned when RESET unwinds the entire
	// runtime stack without finding a CALLFRAME — a well-formed compiler
	// output never does this; the VM still reports it rather than
	// panicking.
	ErrResetWithoutCallFrame = errors.New("task: RESET found no matching call frame")

	// ErrBadOperandType is returned by UNOP/BINOP/indexed access on
	// operand kinds the operator does not support.
	ErrBadOperandType = errors.New("task: operand type error")

	// ErrInvalidOpcode is returned when Step is asked to execute an opcode
	// value outside the known range.
	ErrInvalidOpcode = errors.New("task: invalid opcode")
)

// instructionAt fetches the instruction at pc, or an error if pc runs off
// the end of the program (the compiler guarantees a terminating DONE, so
// this indicates a malformed stream rather than a language-level
// condition).
func instructionAt(prog *bytecode.Program, pc int) (bytecode.Instruction, error) {
	if pc < 0 || pc >= len(prog.Code) {
		return bytecode.Instruction{}, fmt.Errorf("task: pc %d out of range (program has %d instructions)", pc, len(prog.Code))
	}
	return prog.Code[pc], nil
}
