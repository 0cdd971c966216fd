// Package sched implements the cooperative, single-threaded, time-sliced
// round-robin scheduler that multiplexes tasks over one interpreter. It is
// the only package that imports both internal/task and internal/heap's
// MarkRoots callback, which is why the callback lives on *heap.Heap rather
// than the other way around: task and heap never need to know a scheduler
// exists.
package sched

import (
	"errors"
	"fmt"

	"govm/internal/builtin"
	"govm/internal/bytecode"
	"govm/internal/heap"
	"govm/internal/task"
)

// ErrDeadlock is returned by Run when a full revolution of the task ring
// completes with no task runnable and none unblockable — every remaining
// task is waiting on a channel operation that nothing can ever satisfy.
var ErrDeadlock = errors.New("sched: deadlock: no task is runnable")

// Scheduler owns the ring of tasks and the shared heap/program/builtin
// registry every task executes against.
type Scheduler struct {
	Heap *heap.Heap
	Prog *bytecode.Program
	Reg  *builtin.Registry

	quantum int
	tasks   []*task.Task
	nextID  int
	cur     int
}

// New creates a scheduler with a single root task starting at entryPC in
// globalEnv. quantum is the number of instructions a task runs per turn
// before voluntarily yielding to the next task in the ring.
func New(h *heap.Heap, prog *bytecode.Program, reg *builtin.Registry, quantum, entryPC int, globalEnv heap.Addr) *Scheduler {
	s := &Scheduler{Heap: h, Prog: prog, Reg: reg, quantum: quantum}
	s.spawn(entryPC, globalEnv)
	h.MarkRoots = s.MarkRoots
	return s
}

// MarkRoots marks every task's roots, wired onto Heap.MarkRoots so the
// collector can reach live data without the heap package depending on
// this one.
func (s *Scheduler) MarkRoots(mark func(heap.Addr)) {
	for _, t := range s.tasks {
		t.MarkRoots(mark)
	}
}

func (s *Scheduler) spawn(pc int, env heap.Addr) *task.Task {
	t := task.New(s.nextID, pc, env)
	s.nextID++
	s.tasks = append(s.tasks, t)
	return t
}

// NumTasks reports the current ring size, for debug output.
func (s *Scheduler) NumTasks() int { return len(s.tasks) }

func (s *Scheduler) reapDone() {
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.Done() {
			live = append(live, t)
		}
	}
	s.tasks = live
	if s.cur >= len(s.tasks) {
		s.cur = 0
	}
}

// tryUnblock re-examines a blocked task's wait tokens and, if any channel
// operation it registered has since become possible, clears the wait set
// and marks it runnable so the next Step retries the send/receive that
// blocked it.
func (s *Scheduler) tryUnblock(t *task.Task) {
	for _, w := range t.Waiting {
		ch, err := s.Heap.WaitChannel(w)
		if err != nil {
			continue
		}
		switch s.Heap.Tag(w) {
		case heap.WAIT_SEND:
			full, err := s.Heap.ChannelIsFull(ch)
			if err == nil && !full {
				t.Waiting = nil
				t.SetStatus(task.Runnable)
				return
			}
		case heap.WAIT_RECEIVE:
			empty, err := s.Heap.ChannelIsEmpty(ch)
			if err == nil && !empty {
				t.Waiting = nil
				t.SetStatus(task.Runnable)
				return
			}
		}
	}
}

// Run drives every task to completion, rotating the ring one quantum at a
// time, until no tasks remain or a full revolution produces no progress
// (ErrDeadlock) or a task hits a fatal condition.
func (s *Scheduler) Run() error {
	for {
		s.reapDone()
		if len(s.tasks) == 0 {
			return nil
		}

		progressed := false
		revolution := len(s.tasks)
		for i := 0; i < revolution; i++ {
			if len(s.tasks) == 0 {
				return nil
			}
			if s.cur >= len(s.tasks) {
				s.cur = 0
			}
			t := s.tasks[s.cur]

			if t.Status() == task.Blocked {
				s.tryUnblock(t)
			}
			if t.Status() == task.Runnable {
				progressed = true
				for q := 0; q < s.quantum && t.Status() == task.Runnable; q++ {
					sig, err := t.Step(s.Heap, s.Prog, s.Reg)
					if err != nil {
						return fmt.Errorf("task %d: %w", t.ID, err)
					}
					if sig.Spawn != nil {
						s.spawn(sig.Spawn.PC, sig.Spawn.Env)
					}
				}
			}
			s.cur++
		}

		s.reapDone()
		if len(s.tasks) > 0 && !progressed {
			return ErrDeadlock
		}
	}
}
