package sched

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"govm/internal/builtin"
	"govm/internal/bytecode"
	"govm/internal/heap"
)

func newHeapAndReg(t *testing.T) (*heap.Heap, *builtin.Registry, heap.Addr) {
	t.Helper()
	h, err := heap.New(4096, false)
	require.NoError(t, err)
	reg := builtin.NewRegistry()
	globalFrame, err := reg.BuildGlobalFrame(h)
	require.NoError(t, err)
	emptyEnv, err := h.AllocateEnvironment(0)
	require.NoError(t, err)
	globalEnv, err := h.ExtendEnvironment(emptyEnv, globalFrame)
	require.NoError(t, err)
	return h, reg, globalEnv
}

// TestSingleTaskRunsToDone exercises LDC/BINOP/DONE end to end through the
// scheduler with exactly one task.
func TestSingleTaskRunsToDone(t *testing.T) {
	h, reg, env := newHeapAndReg(t)
	prog := &bytecode.Program{Code: []bytecode.Instruction{
		{Op: bytecode.LDC, Literal: bytecode.Num(2)},
		{Op: bytecode.LDC, Literal: bytecode.Num(3)},
		{Op: bytecode.BINOP, Binary: bytecode.AddOp},
		{Op: bytecode.DONE},
	}}
	s := New(h, prog, reg, 4, 0, env)
	require.NoError(t, s.Run())
	require.Equal(t, 0, s.NumTasks())
}

// TestChannelRendezvousAcrossTasks spawns a child task that sends a value
// over a freshly made channel and lets the parent receive it, exercising
// LAUNCH_THREAD, ENTER_SCOPE-bound shared state, SEND, and RECEIVE together.
func TestChannelRendezvousAcrossTasks(t *testing.T) {
	h, reg, env := newHeapAndReg(t)
	makeChan, ok := reg.IndexOf("make_channel")
	require.True(t, ok)
	display, ok := reg.IndexOf("display")
	require.True(t, ok)
	var out bytes.Buffer
	reg.SetOutput(&out)

	prog := &bytecode.Program{Code: []bytecode.Instruction{
		/*0*/ {Op: bytecode.ENTER_SCOPE, N: 1},
		/*1*/ {Op: bytecode.LD, Addr: bytecode.Address{Frame: 1, Slot: makeChan}},
		/*2*/ {Op: bytecode.CALL, N: 0},
		/*3*/ {Op: bytecode.ASSIGN, Addr: bytecode.Address{Frame: 0, Slot: 0}},
		/*4*/ {Op: bytecode.POP},
		/*5*/ {Op: bytecode.LAUNCH_THREAD, Target: 10},
		// child: push channel, push 99, send, done
		/*6*/ {Op: bytecode.LD, Addr: bytecode.Address{Frame: 0, Slot: 0}},
		/*7*/ {Op: bytecode.LDC, Literal: bytecode.Num(99)},
		/*8*/ {Op: bytecode.SEND},
		/*9*/ {Op: bytecode.DONE},
		// parent: receive, display the received value, done
		/*10*/ {Op: bytecode.LD, Addr: bytecode.Address{Frame: 1, Slot: display}},
		/*11*/ {Op: bytecode.LD, Addr: bytecode.Address{Frame: 0, Slot: 0}},
		/*12*/ {Op: bytecode.RECEIVE},
		/*13*/ {Op: bytecode.CALL, N: 1},
		/*14*/ {Op: bytecode.DONE},
	}}

	s := New(h, prog, reg, 4, 0, env)
	require.NoError(t, s.Run())
	require.Equal(t, 0, s.NumTasks())
	require.Equal(t, "99\n", out.String())
}

func TestDeadlockDetected(t *testing.T) {
	h, reg, env := newHeapAndReg(t)
	idx, ok := reg.IndexOf("make_channel")
	require.True(t, ok)

	prog := &bytecode.Program{Code: []bytecode.Instruction{
		{Op: bytecode.LD, Addr: bytecode.Address{Frame: 0, Slot: idx}},
		{Op: bytecode.CALL, N: 0},
		{Op: bytecode.RECEIVE},
		{Op: bytecode.DONE},
	}}
	s := New(h, prog, reg, 4, 0, env)
	err := s.Run()
	require.ErrorIs(t, err, ErrDeadlock)
}
