package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpcodeStringCoversEveryValue(t *testing.T) {
	for op := Opcode(0); op < opcodeCount; op++ {
		require.NotEqual(t, "?unknown-opcode?", op.String(), "opcode %d has no name", op)
	}
	require.Equal(t, "?unknown-opcode?", opcodeCount.String())
}

func TestOpcodePredicates(t *testing.T) {
	require.True(t, JOF.IsJump())
	require.True(t, GOTO.IsJump())
	require.False(t, CALL.IsJump())

	require.True(t, CALL.IsCall())
	require.True(t, TCALL.IsCall())

	require.True(t, SEND.IsChannelOp())
	require.True(t, SOF.IsChannelOp())
	require.True(t, SEND.IsBlockingChannelOp())
	require.False(t, SOF.IsBlockingChannelOp())

	require.True(t, ENTER_SCOPE.IsScopeOp())
	require.True(t, EXIT_SCOPE.IsScopeOp())
	require.False(t, CALL.IsScopeOp())
}

func TestBinaryOpIsComparison(t *testing.T) {
	require.True(t, EqOp.IsComparison())
	require.True(t, NeOp.IsComparison())
	require.False(t, AddOp.IsComparison())
	require.False(t, LtOp.IsComparison())
}

func TestInstructionStringDisassembly(t *testing.T) {
	cases := []struct {
		in   Instruction
		want string
	}{
		{Instruction{Op: LDC, Literal: Num(3)}, "LDC 3"},
		{Instruction{Op: LDC, Literal: Bool_(true)}, "LDC true"},
		{Instruction{Op: LDC, Literal: Str("hi")}, `LDC "hi"`},
		{Instruction{Op: UNOP, Unary: NegOp}, "UNOP -"},
		{Instruction{Op: BINOP, Binary: AddOp}, "BINOP +"},
		{Instruction{Op: GOTO, Target: 7}, "GOTO 7"},
		{Instruction{Op: ENTER_SCOPE, N: 2}, "ENTER_SCOPE 2"},
		{Instruction{Op: LD, Name: "x", Addr: Address{Frame: 1, Slot: 2}}, "LD x,(1,2)"},
		{Instruction{Op: LDF, Arity: 1, Entry: 9}, "LDF 1,9"},
		{Instruction{Op: CALL, N: 3}, "CALL 3"},
		{Instruction{Op: DONE}, "DONE"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.in.String())
	}
}
