// Package asm is a hand-assembly helper for building bytecode.Program
// values directly, used by tests and demo programs in this repository.
// It is not a compiler: it has no notion of source syntax, scoping, or
// lexical-address resolution, and a caller is responsible for computing
// jump targets and frame addresses itself.
package asm

import "govm/internal/bytecode"

// Builder accumulates a flat instruction stream with a fluent,
// chainable API: asm.New().LDC(asm.Num(1)).BINOP(bytecode.AddOp).Done().
type Builder struct {
	code    []bytecode.Instruction
	globals []string
}

func New() *Builder { return &Builder{} }

// Len returns the current instruction count, useful for computing forward
// jump targets before they are known (label-free assembly: the caller
// reads Len() to learn the address a later instruction will land at).
func (b *Builder) Len() int { return len(b.code) }

func (b *Builder) emit(in bytecode.Instruction) *Builder {
	b.code = append(b.code, in)
	return b
}

func (b *Builder) LDC(lit bytecode.Literal) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.LDC, Literal: lit})
}

func (b *Builder) UNOP(op bytecode.UnaryOp) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.UNOP, Unary: op})
}

func (b *Builder) BINOP(op bytecode.BinaryOp) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.BINOP, Binary: op})
}

func (b *Builder) POP() *Builder { return b.emit(bytecode.Instruction{Op: bytecode.POP}) }

func (b *Builder) JOF(target int) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.JOF, Target: target})
}

func (b *Builder) GOTO(target int) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.GOTO, Target: target})
}

func (b *Builder) EnterScope(n int) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.ENTER_SCOPE, N: n})
}

func (b *Builder) ExitScope() *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.EXIT_SCOPE})
}

func (b *Builder) LD(frame, slot int) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.LD, Addr: bytecode.Address{Frame: frame, Slot: slot}})
}

func (b *Builder) Assign(frame, slot int) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.ASSIGN, Addr: bytecode.Address{Frame: frame, Slot: slot}})
}

func (b *Builder) LDF(arity, entry int) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.LDF, Arity: arity, Entry: entry})
}

func (b *Builder) Call(k int) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.CALL, N: k})
}

func (b *Builder) TailCall(k int) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.TCALL, N: k})
}

func (b *Builder) Reset() *Builder { return b.emit(bytecode.Instruction{Op: bytecode.RESET}) }

func (b *Builder) LaunchThread(target int) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.LAUNCH_THREAD, Target: target})
}

func (b *Builder) Send() *Builder    { return b.emit(bytecode.Instruction{Op: bytecode.SEND}) }
func (b *Builder) Receive() *Builder { return b.emit(bytecode.Instruction{Op: bytecode.RECEIVE}) }

func (b *Builder) SOF(target int) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.SOF, Target: target})
}

func (b *Builder) ROF(target int) *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.ROF, Target: target})
}

func (b *Builder) Block() *Builder      { return b.emit(bytecode.Instruction{Op: bytecode.BLOCK}) }
func (b *Builder) ClearWait() *Builder  { return b.emit(bytecode.Instruction{Op: bytecode.CLEAR_WAIT}) }
func (b *Builder) Done() *Builder       { return b.emit(bytecode.Instruction{Op: bytecode.DONE}) }
func (b *Builder) AccessAddress() *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.ACCESS_ADDRESS})
}
func (b *Builder) AssignAddress() *Builder {
	return b.emit(bytecode.Instruction{Op: bytecode.ASSIGN_ADDRESS})
}

// Globals records the frame-0 name table that accompanies the assembled
// program.
func (b *Builder) Globals(names ...string) *Builder {
	b.globals = names
	return b
}

// Program finalizes the builder into an immutable bytecode.Program.
func (b *Builder) Program() *bytecode.Program {
	code := make([]bytecode.Instruction, len(b.code))
	copy(code, b.code)
	return &bytecode.Program{Code: code, Globals: b.globals}
}

// Convenience literal constructors, re-exported so callers only need to
// import this package for a whole hand-assembled program.
func Num(n float64) bytecode.Literal { return bytecode.Num(n) }
func Bool(b bool) bytecode.Literal   { return bytecode.Bool_(b) }
func Str(s string) bytecode.Literal  { return bytecode.Str(s) }
func Null() bytecode.Literal         { return bytecode.Null() }
func Undefined() bytecode.Literal    { return bytecode.Undefined() }
