// Package vm wires the heap, built-in registry, and scheduler into a
// single runnable unit, and carries the external configuration surface:
// heap size, scheduling quantum, and a debug flag.
package vm

import (
	"fmt"
	"log"
	"os"

	"github.com/davecgh/go-spew/spew"

	"govm/internal/builtin"
	"govm/internal/bytecode"
	"govm/internal/heap"
	"govm/internal/sched"
)

// Config is the external configuration surface: the fields cmd/govm
// assembles from defaults, an optional YAML file, and command-line flags,
// in that increasing order of priority.
type Config struct {
	HeapWords int
	// MaxHeapWords caps how far the heap may grow before allocation fails
	// with heap.ErrOutOfMemory instead of doubling again. Zero means
	// uncapped.
	MaxHeapWords int
	Quantum      int
	Debug        bool
}

// DefaultConfig mirrors the floor the heap package itself enforces (one
// node) scaled up to something a real program can run in, plus a quantum
// that gives tasks multiple instructions per turn without starving siblings.
// MaxHeapWords is left uncapped; callers running untrusted or adversarial
// programs should set one explicitly.
func DefaultConfig() Config {
	return Config{HeapWords: 1 << 16, MaxHeapWords: 0, Quantum: 16, Debug: false}
}

// VM is the assembled runtime: heap, built-in registry, and scheduler,
// ready to run a single compiled Program.
type VM struct {
	Heap  *heap.Heap
	Reg   *builtin.Registry
	Sched *sched.Scheduler

	cfg    Config
	logger *log.Logger
}

// New builds a VM for prog, with the root task starting at entryPC. The
// initial environment is a single frame holding the built-in registry,
// extended with a frame of len(prog.Globals) program-level globals if
// prog.Globals is non-empty. Lexical frame numbers count back from the
// innermost frame, so at the program's top level those globals are frame
// 0 and the built-ins frame 1.
func New(cfg Config, prog *bytecode.Program, entryPC int) (*VM, error) {
	h, err := heap.New(cfg.HeapWords, cfg.Debug)
	if err != nil {
		return nil, err
	}
	h.MaxWords = cfg.MaxHeapWords
	reg := builtin.NewRegistry()
	builtinFrame, err := reg.BuildGlobalFrame(h)
	if err != nil {
		return nil, err
	}
	empty, err := h.AllocateEnvironment(0)
	if err != nil {
		return nil, err
	}
	env, err := h.ExtendEnvironment(empty, builtinFrame)
	if err != nil {
		return nil, err
	}
	if len(prog.Globals) > 0 {
		programFrame, err := h.AllocateFrame(len(prog.Globals))
		if err != nil {
			return nil, err
		}
		env, err = h.ExtendEnvironment(env, programFrame)
		if err != nil {
			return nil, err
		}
	}

	var logger *log.Logger
	if cfg.Debug {
		logger = log.New(os.Stderr, "vm: ", log.Lshortfile)
	}

	s := sched.New(h, prog, reg, cfg.Quantum, entryPC, env)
	return &VM{Heap: h, Reg: reg, Sched: s, cfg: cfg, logger: logger}, nil
}

// Run drives the scheduler to completion (every task Done) or a fatal
// condition (a task error, or ErrDeadlock).
func (v *VM) Run() error {
	v.logf("starting run: %d task(s), quantum=%d", v.Sched.NumTasks(), v.cfg.Quantum)
	err := v.Sched.Run()
	if err != nil {
		v.logf("run ended with error: %v", err)
		return err
	}
	v.logf("run completed: all tasks done")
	return nil
}

// Dump renders a cycle-safe snapshot of the VM's heap
// statistics and scheduler state for debugging; it is a no-op unless the
// debug flag is set.
func (v *VM) Dump() string {
	if !v.cfg.Debug {
		return ""
	}
	return spew.Sdump(struct {
		Stats    heap.Stats
		NumTasks int
	}{Stats: v.Heap.Stats(), NumTasks: v.Sched.NumTasks()})
}

func (v *VM) logf(format string, args ...any) {
	if v.logger != nil {
		v.logger.Output(2, fmt.Sprintf(format, args...))
	}
}
