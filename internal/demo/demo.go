// Package demo bundles a handful of hand-assembled programs for cmd/govm
// to run, standing in for the compiler collaborator this repository does
// not implement.
package demo

import (
	"fmt"
	"sort"
	"strings"

	"govm/internal/asm"
	"govm/internal/bytecode"
)

type builder func() (*bytecode.Program, int)

var registry = map[string]builder{
	"arithmetic":      buildArithmetic,
	"fibonacci":       buildFibonacci,
	"rendezvous":      buildRendezvous,
	"deadlock":        buildDeadlock,
	"select":          buildSelect,
	"fib-over-chan":   buildFibOverChan,
	"closure-capture": buildClosureCapture,
	"gc-pressure":     buildGCPressure,
}

// Names returns the comma-separated demo program names, for -help text.
func Names() string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Lookup builds the named demo program and its entry PC.
func Lookup(name string) (*bytecode.Program, int, error) {
	b, ok := registry[name]
	if !ok {
		return nil, 0, fmt.Errorf("demo: unknown program %q (available: %s)", name, Names())
	}
	prog, entry := b()
	return prog, entry, nil
}

// buildArithmetic computes 1 + 2 and prints it, the simplest
// possible exercise of LDC/BINOP and a built-in call.
func buildArithmetic() (*bytecode.Program, int) {
	b := asm.New()
	b.EnterScope(1)
	b.LDC(asm.Num(1)).LDC(asm.Num(2)).BINOP(bytecode.AddOp)
	b.Assign(0, 0)
	b.POP()
	b.LD(1, builtinSlot("display"))
	b.LD(0, 0)
	b.Call(1)
	b.POP()
	b.ExitScope()
	b.Done()
	return b.Program(), 0
}

// buildFibonacci computes fib(10) recursively through the CALL/RESET
// protocol, exercising LDF, lexical addressing across call frames, and
// recursive CALLFRAME stacking.
//
// Layout: frame 0 of the program-level global environment holds the
// binding "fib"; the entry point assigns a closure into it and calls it.
// Inside the closure's own body, frame 1 reaches back to that same global
// binding for the two recursive calls.
func buildFibonacci() (*bytecode.Program, int) {
	b := asm.New()
	b.LDF(1, 0) // entry patched below once known
	b.Assign(0, 0)
	b.POP()
	b.LD(1, builtinSlot("display"))
	b.LD(0, 0)
	b.LDC(asm.Num(10))
	b.Call(1)
	b.Call(1)
	b.Done()

	fibEntry := b.Len()
	b.LD(0, 0)            // n
	b.LDC(asm.Num(2))     // 2
	b.BINOP(bytecode.LtOp)
	jof := b.Len()
	b.JOF(0) // patched below
	b.LD(0, 0)
	b.Reset()

	elseStart := b.Len()
	b.LD(1, 0) // fib
	b.LD(0, 0) // n
	b.LDC(asm.Num(1))
	b.BINOP(bytecode.SubOp)
	b.Call(1)
	b.LD(1, 0) // fib
	b.LD(0, 0) // n
	b.LDC(asm.Num(2))
	b.BINOP(bytecode.SubOp)
	b.Call(1)
	b.BINOP(bytecode.AddOp)
	b.Reset()

	prog := b.Program()
	prog.Code[0].Entry = fibEntry
	prog.Code[jof].Target = elseStart
	prog.Globals = []string{"fib"}
	return prog, 0
}

// buildRendezvous spawns a task that sends 42 over a freshly made channel,
// and has the parent receive and print it, exercising
// LAUNCH_THREAD/SEND/RECEIVE together.
func buildRendezvous() (*bytecode.Program, int) {
	b := asm.New()
	b.EnterScope(2)
	b.LD(1, builtinSlot("make_channel"))
	b.Call(0)
	b.Assign(0, 0)
	b.POP()
	launch := b.Len()
	b.LaunchThread(0) // patched below

	// child: send 42, done
	b.LD(0, 0)
	b.LDC(asm.Num(42))
	b.Send()
	b.Done()

	parentStart := b.Len()
	b.LD(0, 0)
	b.Receive()
	b.Assign(0, 1)
	b.POP()
	b.LD(1, builtinSlot("display"))
	b.LD(0, 1)
	b.Call(1)
	b.POP()
	b.ExitScope()
	b.Done()

	prog := b.Program()
	prog.Code[launch].Target = parentStart
	return prog, 0
}

// buildDeadlock receives on a freshly made channel nobody ever sends to,
// exercising the scheduler's deadlock detection.
func buildDeadlock() (*bytecode.Program, int) {
	b := asm.New()
	b.LD(0, builtinSlot("make_channel"))
	b.Call(0)
	b.Receive()
	b.Done()
	return b.Program(), 0
}

// buildSelect creates an empty channel nobody ever sends to and performs a
// select with a receive case and a default case, exercising ROF and
// CLEAR_WAIT together. Since the channel is always empty, only the
// default branch ever runs.
func buildSelect() (*bytecode.Program, int) {
	b := asm.New()
	b.EnterScope(1)
	b.LD(1, builtinSlot("make_channel"))
	b.Call(0)
	rof := b.Len()
	b.ROF(0) // patched below: jump here on empty, i.e. the failure case

	// receive case (never taken on an always-empty channel): store the
	// received item, then call display(item).
	b.Assign(0, 0)
	b.POP()
	b.LD(1, builtinSlot("display"))
	b.LD(0, 0)
	b.Call(1)
	b.POP()
	goDone := b.Len()
	b.GOTO(0) // patched below

	failLabel := b.Len()
	b.POP() // discard the channel ROF pushed back on failure
	b.LD(1, builtinSlot("display"))
	b.LDC(asm.Str("none"))
	b.Call(1)
	b.POP()

	doneLabel := b.Len()
	b.ClearWait()
	b.ExitScope()
	b.Done()

	prog := b.Program()
	prog.Code[rof].Target = failLabel
	prog.Code[goDone].Target = doneLabel
	return prog, 0
}

// buildFibOverChan is the classic producer/consumer: a producer task sends
// successive Fibonacci numbers on a channel, checking a quit channel with a
// non-blocking ROF on every iteration, while the consumer receives ten
// values then prints and sends on quit.
//
// Shared frame (ENTER_SCOPE 6): slot 0 = fib channel, slot 1 = quit
// channel, slot 2/3 = the producer's running pair (a, b), slot 4 = the
// producer's scratch temp, slot 5 = the consumer's scratch temp — kept
// separate from the producer's so a rotation between the two tasks can
// never corrupt either one's in-flight arithmetic.
func buildFibOverChan() (*bytecode.Program, int) {
	b := asm.New()
	b.EnterScope(6)
	b.LD(1, builtinSlot("make_channel"))
	b.Call(0)
	b.Assign(0, 0) // c
	b.POP()
	b.LD(1, builtinSlot("make_channel"))
	b.Call(0)
	b.Assign(0, 1) // q
	b.POP()
	b.LDC(asm.Num(0))
	b.Assign(0, 2) // a = 0
	b.POP()
	b.LDC(asm.Num(1))
	b.Assign(0, 3) // b = 1
	b.POP()

	launch := b.Len()
	b.LaunchThread(0) // patched below: producer body starts right after this

	// producer (child): loop sending the running fib value on c, checking
	// quit with a non-blocking ROF each time around.
	loopStart := b.Len()
	b.LD(0, 1) // q
	rof := b.Len()
	b.ROF(0) // patched below: empty (no quit yet) -> keep producing
	// success: quit was signaled, discard the received value and stop.
	b.POP()
	gotoStop := b.Len()
	b.GOTO(0) // patched below

	keepProducing := b.Len()
	b.LD(0, 0) // c
	b.LD(0, 2) // a
	b.Send()
	b.LD(0, 2)
	b.LD(0, 3)
	b.BINOP(bytecode.AddOp)
	b.Assign(0, 4) // ptmp = a + b
	b.POP()
	b.LD(0, 3)
	b.Assign(0, 2) // a = b
	b.POP()
	b.LD(0, 4)
	b.Assign(0, 3) // b = ptmp
	b.POP()
	b.GOTO(loopStart)

	stop := b.Len()
	b.Done()

	// consumer (parent): receive and print ten values, then print and
	// signal "quit".
	consumerStart := b.Len()
	for i := 0; i < 10; i++ {
		b.LD(0, 0) // c
		b.Receive()
		b.Assign(0, 5) // ccur = received value
		b.POP()
		b.LD(1, builtinSlot("display"))
		b.LD(0, 5)
		b.Call(1)
		b.POP()
	}
	b.LD(1, builtinSlot("display"))
	b.LDC(asm.Str("quit"))
	b.Call(1)
	b.POP()
	b.LD(0, 1) // q
	b.LDC(asm.Num(1))
	b.Send()
	b.Done()

	prog := b.Program()
	prog.Code[launch].Target = consumerStart
	prog.Code[rof].Target = keepProducing
	prog.Code[gotoStop].Target = stop
	return prog, 0
}

// buildClosureCapture builds a closure over two captured bindings, a and
// b, that picks one or the other by a boolean parameter — the classic
// cons/selector shape for exercising LDF's environment capture and lexical
// addressing one frame back from a call's own frame. Prints 1, then 2.
//
// Layout: the outer ENTER_SCOPE(3) frame holds a=1, b=2, and the selector
// closure itself at slots 0/1/2. The closure's own call frame (frame 0)
// holds its single boolean parameter; frame 1 is the captured outer frame.
func buildClosureCapture() (*bytecode.Program, int) {
	b := asm.New()
	b.EnterScope(3)
	b.LDC(asm.Num(1))
	b.Assign(0, 0) // a = 1
	b.POP()
	b.LDC(asm.Num(2))
	b.Assign(0, 1) // b = 2
	b.POP()
	ldf := b.Len()
	b.LDF(1, 0) // entry patched below
	b.Assign(0, 2)
	b.POP()

	b.LD(1, builtinSlot("display"))
	b.LD(0, 2)
	b.LDC(asm.Bool(true))
	b.Call(1)
	b.Call(1) // display(select(true)) -> a
	b.POP()

	b.LD(1, builtinSlot("display"))
	b.LD(0, 2)
	b.LDC(asm.Bool(false))
	b.Call(1)
	b.Call(1) // display(select(false)) -> b
	b.POP()
	b.ExitScope()
	b.Done()

	closureEntry := b.Len()
	b.LD(0, 0) // flag
	jof := b.Len()
	b.JOF(0) // patched below: false -> elseBranch
	b.LD(1, 0) // a
	b.Reset()
	elseBranch := b.Len()
	b.LD(1, 1) // b
	b.Reset()

	prog := b.Program()
	prog.Code[ldf].Entry = closureEntry
	prog.Code[jof].Target = elseBranch
	return prog, 0
}

// buildGCPressure drives a tight loop allocating a fresh NUMBER node every
// iteration and immediately discarding it, forcing repeated mark-and-sweep
// cycles. The loop's live data stays constant, so the collector reclaims
// what each iteration drops and the loop itself never needs the heap to
// grow. Prints the final count once the loop exits.
func buildGCPressure() (*bytecode.Program, int) {
	const iterations = 200000

	b := asm.New()
	b.EnterScope(2)
	b.LDC(asm.Num(0))
	b.Assign(0, 0) // i = 0
	b.POP()

	loopStart := b.Len()
	b.LD(0, 0)
	b.LDC(asm.Num(iterations))
	b.BINOP(bytecode.LtOp)
	jof := b.Len()
	b.JOF(0) // patched below: exit once i == iterations

	b.LD(0, 0)
	b.LDC(asm.Num(1))
	b.BINOP(bytecode.AddOp)
	b.Assign(0, 1) // scratch = i + 1, garbage the instant the next iteration starts
	b.POP()
	b.LD(0, 0)
	b.LDC(asm.Num(1))
	b.BINOP(bytecode.AddOp)
	b.Assign(0, 0) // i = i + 1
	b.POP()
	b.GOTO(loopStart)

	exitLabel := b.Len()
	b.LD(1, builtinSlot("display"))
	b.LD(0, 0)
	b.Call(1)
	b.POP()
	b.ExitScope()
	b.Done()

	prog := b.Program()
	prog.Code[jof].Target = exitLabel
	return prog, 0
}

// builtinSlot hardcodes the frame-0 slot index of a built-in by name,
// matching the declaration order in internal/builtin.NewRegistry. A real
// compiler collaborator would resolve this from the registry directly;
// these demos have no compiler, so the order is pinned here and must track
// registry.go if that order ever changes.
func builtinSlot(name string) int {
	order := []string{
		"display", "make_channel", "make_array", "math_sqrt",
		"is_number", "is_boolean", "is_string", "is_undefined", "is_function",
		"E", "LN2", "LN10", "LOG2E", "LOG10E", "PI", "SQRT1_2", "SQRT2",
	}
	for i, n := range order {
		if n == name {
			return i
		}
	}
	panic("demo: unknown builtin " + name)
}
