package demo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"govm/internal/vm"
)

func runDemo(t *testing.T, name string) (*vm.VM, *bytes.Buffer) {
	t.Helper()
	prog, entry, err := Lookup(name)
	require.NoError(t, err)
	cfg := vm.DefaultConfig()
	cfg.HeapWords = 1 << 14
	machine, err := vm.New(cfg, prog, entry)
	require.NoError(t, err)
	var out bytes.Buffer
	machine.Reg.SetOutput(&out)
	return machine, &out
}

func TestArithmeticDemo(t *testing.T) {
	machine, out := runDemo(t, "arithmetic")
	require.NoError(t, machine.Run())
	require.Equal(t, "3\n", out.String())
}

func TestFibonacciDemo(t *testing.T) {
	machine, out := runDemo(t, "fibonacci")
	require.NoError(t, machine.Run())
	require.Equal(t, "55\n", out.String())
}

func TestRendezvousDemo(t *testing.T) {
	machine, out := runDemo(t, "rendezvous")
	require.NoError(t, machine.Run())
	require.Equal(t, "42\n", out.String())
}

func TestDeadlockDemo(t *testing.T) {
	machine, _ := runDemo(t, "deadlock")
	err := machine.Run()
	require.Error(t, err)
}

func TestSelectDemo(t *testing.T) {
	machine, out := runDemo(t, "select")
	require.NoError(t, machine.Run())
	require.Equal(t, "none\n", out.String())
}

func TestFibOverChanDemo(t *testing.T) {
	machine, out := runDemo(t, "fib-over-chan")
	require.NoError(t, machine.Run())
	require.Equal(t, "0\n1\n1\n2\n3\n5\n8\n13\n21\n34\nquit\n", out.String())
}

func TestClosureCaptureDemo(t *testing.T) {
	machine, out := runDemo(t, "closure-capture")
	require.NoError(t, machine.Run())
	require.Equal(t, "1\n2\n", out.String())
}

func TestGCPressureDemo(t *testing.T) {
	machine, out := runDemo(t, "gc-pressure")
	require.NoError(t, machine.Run())
	require.Equal(t, "200000\n", out.String())
	require.Greater(t, machine.Heap.Stats().GCs, 0)
}

func TestLookupUnknownProgram(t *testing.T) {
	_, _, err := Lookup("nonexistent")
	require.Error(t, err)
}
