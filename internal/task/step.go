package task

import (
	"govm/internal/builtin"
	"govm/internal/bytecode"
	"govm/internal/heap"
)

// Signal reports what the scheduler needs to do after a Step beyond
// ordinary continuation: spawn a child task (LAUNCH_THREAD) or nothing.
// Blocked/Done are visible directly on the task's Status, so they are not
// part of Signal.
type Signal struct {
	Spawn *SpawnRequest
}

// SpawnRequest is what LAUNCH_THREAD asks the scheduler to do: create a new
// task at PC sharing Env with the spawning task.
type SpawnRequest struct {
	PC  int
	Env heap.Addr
}

// Step executes exactly one instruction. It returns a Signal when the
// scheduler must act (spawn), and an error for any fatal condition:
// operand type errors, use-before-assign, division by zero, index out of
// range, calling a non-callable, or a malformed call-frame unwind.
func (t *Task) Step(h *heap.Heap, prog *bytecode.Program, reg *builtin.Registry) (Signal, error) {
	in, err := instructionAt(prog, t.PC)
	if err != nil {
		return Signal{}, err
	}
	t.PC++

	switch in.Op {
	case bytecode.LDC:
		return Signal{}, t.execLDC(h, in)
	case bytecode.UNOP:
		return Signal{}, t.execUnop(h, in)
	case bytecode.BINOP:
		return Signal{}, t.execBinop(h, in)
	case bytecode.POP:
		_, err := t.Pop()
		return Signal{}, err
	case bytecode.JOF:
		return Signal{}, t.execJOF(h, in)
	case bytecode.GOTO:
		t.PC = in.Target
		return Signal{}, nil
	case bytecode.ENTER_SCOPE:
		return Signal{}, t.execEnterScope(h, in)
	case bytecode.EXIT_SCOPE:
		return Signal{}, t.execExitScope(h)
	case bytecode.LD:
		return Signal{}, t.execLD(h, in)
	case bytecode.ASSIGN:
		return Signal{}, t.execAssign(h, in)
	case bytecode.LDF:
		return Signal{}, t.execLDF(h, in)
	case bytecode.CALL:
		return Signal{}, t.execCall(h, reg, in.N, true)
	case bytecode.TCALL:
		return Signal{}, t.execCall(h, reg, in.N, false)
	case bytecode.RESET:
		return Signal{}, t.execReset(h)
	case bytecode.LAUNCH_THREAD:
		return t.execLaunchThread(in)
	case bytecode.SEND:
		return Signal{}, t.execSend(h, nil)
	case bytecode.RECEIVE:
		return Signal{}, t.execReceive(h, nil)
	case bytecode.SOF:
		return Signal{}, t.execSend(h, &in.Target)
	case bytecode.ROF:
		return Signal{}, t.execReceive(h, &in.Target)
	case bytecode.BLOCK:
		t.status = Blocked
		return Signal{}, nil
	case bytecode.CLEAR_WAIT:
		t.Waiting = nil
		return Signal{}, nil
	case bytecode.DONE:
		t.status = Done
		return Signal{}, nil
	case bytecode.ACCESS_ADDRESS:
		return Signal{}, t.execAccessAddress(h)
	case bytecode.ASSIGN_ADDRESS:
		return Signal{}, t.execAssignAddress(h)
	default:
		return Signal{}, t.fatalf("%w: %v", ErrInvalidOpcode, in.Op)
	}
}

func (t *Task) execLDC(h *heap.Heap, in bytecode.Instruction) error {
	var v heap.Value
	switch in.Literal.Kind {
	case bytecode.KindNumber:
		v = heap.NumberValue(in.Literal.Number)
	case bytecode.KindBool:
		v = heap.BoolValue(in.Literal.Bool)
	case bytecode.KindString:
		v = heap.StringValue(in.Literal.Str)
	case bytecode.KindNull:
		v = heap.NullValue()
	default:
		v = heap.UndefinedValue()
	}
	addr, err := h.ValueToAddress(v)
	if err != nil {
		return err
	}
	t.Push(addr)
	return nil
}

func (t *Task) execUnop(h *heap.Heap, in bytecode.Instruction) error {
	arg, err := t.Pop()
	if err != nil {
		return err
	}
	switch in.Unary {
	case bytecode.NegOp:
		n, err := h.Number(arg)
		if err != nil {
			return t.fatalf("%w: negate operand must be a number: %v", ErrBadOperandType, err)
		}
		result, err := h.AllocateNumber(-n)
		if err != nil {
			return err
		}
		t.Push(result)
	case bytecode.NotOp:
		if arg != h.True() && arg != h.False() {
			return t.fatalf("%w: not operand must be boolean", ErrBadOperandType)
		}
		t.Push(h.BoolAddr(arg == h.False()))
	default:
		return t.fatalf("%w: unary op %v", ErrInvalidOpcode, in.Unary)
	}
	return nil
}

func (t *Task) execBinop(h *heap.Heap, in bytecode.Instruction) error {
	b, err := t.Pop()
	if err != nil {
		return err
	}
	a, err := t.Pop()
	if err != nil {
		return err
	}

	if in.Binary.IsComparison() {
		eq, err := h.Equal(a, b)
		if err != nil {
			return err
		}
		if in.Binary == bytecode.NeOp {
			eq = !eq
		}
		t.Push(h.BoolAddr(eq))
		return nil
	}

	if in.Binary == bytecode.AddOp && h.Tag(a) == heap.STRING && h.Tag(b) == heap.STRING {
		sa, err := h.Text(a)
		if err != nil {
			return err
		}
		sb, err := h.Text(b)
		if err != nil {
			return err
		}
		result, err := h.AllocateString(sa + sb)
		if err != nil {
			return err
		}
		t.Push(result)
		return nil
	}

	if in.Binary == bytecode.AndOp || in.Binary == bytecode.OrOp {
		if (a != h.True() && a != h.False()) || (b != h.True() && b != h.False()) {
			return t.fatalf("%w: logical operand must be boolean", ErrBadOperandType)
		}
		ba, bb := a == h.True(), b == h.True()
		var r bool
		if in.Binary == bytecode.AndOp {
			r = ba && bb
		} else {
			r = ba || bb
		}
		t.Push(h.BoolAddr(r))
		return nil
	}

	na, err := h.Number(a)
	if err != nil {
		return t.fatalf("%w: left operand of %v must be a number: %v", ErrBadOperandType, in.Binary, err)
	}
	nb, err := h.Number(b)
	if err != nil {
		return t.fatalf("%w: right operand of %v must be a number: %v", ErrBadOperandType, in.Binary, err)
	}

	var result float64
	switch in.Binary {
	case bytecode.AddOp:
		result = na + nb
	case bytecode.SubOp:
		result = na - nb
	case bytecode.MulOp:
		result = na * nb
	case bytecode.DivOp:
		if nb == 0 {
			return t.fatalf("division by zero")
		}
		result = na / nb
	case bytecode.ModOp:
		if nb == 0 {
			return t.fatalf("division by zero")
		}
		result = float64(int64(na) % int64(nb))
	case bytecode.LtOp:
		t.Push(h.BoolAddr(na < nb))
		return nil
	case bytecode.LeOp:
		t.Push(h.BoolAddr(na <= nb))
		return nil
	case bytecode.GtOp:
		t.Push(h.BoolAddr(na > nb))
		return nil
	case bytecode.GeOp:
		t.Push(h.BoolAddr(na >= nb))
		return nil
	default:
		return t.fatalf("%w: binary op %v", ErrInvalidOpcode, in.Binary)
	}
	addr, err := h.AllocateNumber(result)
	if err != nil {
		return err
	}
	t.Push(addr)
	return nil
}

func (t *Task) execJOF(h *heap.Heap, in bytecode.Instruction) error {
	cond, err := t.Pop()
	if err != nil {
		return err
	}
	if h.IsFalse(cond) {
		t.PC = in.Target
	}
	return nil
}

func (t *Task) execEnterScope(h *heap.Heap, in bytecode.Instruction) error {
	block, err := h.AllocateBlockFrame(t.Env)
	if err != nil {
		return err
	}
	t.pushFrame(block)
	return h.WithRoot(block, func() error {
		frame, err := h.AllocateFrame(in.N)
		if err != nil {
			return err
		}
		return h.WithRoot(frame, func() error {
			newEnv, err := h.ExtendEnvironment(t.Env, frame)
			if err != nil {
				return err
			}
			t.Env = newEnv
			return nil
		})
	})
}

func (t *Task) execExitScope(h *heap.Heap) error {
	block, err := t.popFrame()
	if err != nil {
		return err
	}
	if h.Tag(block) != heap.BLOCKFRAME {
		return t.fatalf("EXIT_SCOPE found %v, want BLOCKFRAME", h.Tag(block))
	}
	env, err := h.BlockFrameEnv(block)
	if err != nil {
		return err
	}
	t.Env = env
	return nil
}

func (t *Task) execLD(h *heap.Heap, in bytecode.Instruction) error {
	frame, err := h.FrameAt(t.Env, in.Addr.Frame)
	if err != nil {
		return err
	}
	v, err := h.ChildAt(frame, in.Addr.Slot)
	if err != nil {
		return err
	}
	if v == h.Unallocated() {
		return heap.ErrUseBeforeAssign
	}
	t.Push(v)
	return nil
}

// execAssign stores the top of the operand stack into the named binding
// without popping it: assignment is an expression whose value is the
// assigned value, so a subsequent POP (emitted by the compiler when the
// assignment is used as a bare statement) discards it explicitly instead of
// ASSIGN consuming it implicitly.
func (t *Task) execAssign(h *heap.Heap, in bytecode.Instruction) error {
	v, err := t.peek()
	if err != nil {
		return err
	}
	frame, err := h.FrameAt(t.Env, in.Addr.Frame)
	if err != nil {
		return err
	}
	return h.SetChildAt(frame, in.Addr.Slot, v)
}

func (t *Task) execLDF(h *heap.Heap, in bytecode.Instruction) error {
	closure, err := h.AllocateClosure(in.Arity, in.Entry, t.Env)
	if err != nil {
		return err
	}
	t.Push(closure)
	return nil
}

// execCall implements both CALL and TCALL: pop k args then the callee; for
// a CLOSURE, push a CALLFRAME unless this is a tail call; for a BUILTIN,
// re-push the args in their original order and let the registered host
// function pop them itself.
func (t *Task) execCall(h *heap.Heap, reg *builtin.Registry, k int, pushCallFrame bool) error {
	args := make([]heap.Addr, k)
	for i := k - 1; i >= 0; i-- {
		a, err := t.Pop()
		if err != nil {
			return err
		}
		args[i] = a
	}
	callee, err := t.Pop()
	if err != nil {
		return err
	}

	switch h.Tag(callee) {
	case heap.CLOSURE:
		env, err := h.ClosureEnv(callee)
		if err != nil {
			return err
		}
		entry, err := h.ClosureEntry(callee)
		if err != nil {
			return err
		}
		if pushCallFrame {
			callFrame, err := h.AllocateCallFrame(t.Env, t.PC)
			if err != nil {
				return err
			}
			t.pushFrame(callFrame)
		}
		frame, err := h.AllocateFrame(k)
		if err != nil {
			return err
		}
		for i, a := range args {
			if err := h.SetChildAt(frame, i, a); err != nil {
				return err
			}
		}
		newEnv, err := h.ExtendEnvironment(env, frame)
		if err != nil {
			return err
		}
		t.Env = newEnv
		t.PC = entry
		return nil
	case heap.BUILTIN:
		for _, a := range args {
			t.Push(a)
		}
		id, err := h.BuiltinID(callee)
		if err != nil {
			return err
		}
		result, err := reg.Call(id, t, h)
		if err != nil {
			return err
		}
		t.Push(result)
		return nil
	default:
		return t.fatalf("%w: tag %v", ErrNotCallable, h.Tag(callee))
	}
}

// execReset unwinds the runtime stack until it finds a CALLFRAME, discarding
// any BLOCKFRAMEs along the way, and restores env/PC from it.
func (t *Task) execReset(h *heap.Heap) error {
	for {
		fr, err := t.popFrame()
		if err != nil {
			return ErrResetWithoutCallFrame
		}
		if h.Tag(fr) != heap.CALLFRAME {
			continue
		}
		env, err := h.CallFrameEnv(fr)
		if err != nil {
			return err
		}
		pc, err := h.CallFrameReturnPC(fr)
		if err != nil {
			return err
		}
		t.Env = env
		t.PC = pc
		return nil
	}
}

// execLaunchThread returns the request for the scheduler to spawn a new
// task at PC+1 of this one (the instruction immediately following
// LAUNCH_THREAD), sharing this task's environment, while this task itself
// jumps to the instruction's target.
func (t *Task) execLaunchThread(in bytecode.Instruction) (Signal, error) {
	childPC := t.PC
	t.PC = in.Target
	return Signal{Spawn: &SpawnRequest{PC: childPC, Env: t.Env}}, nil
}

// execSend implements SEND (target == nil) and SOF (target != nil). On
// success it consumes value and channel and falls through (or, for SOF,
// simply continues — the target is only taken on failure). On failure: for
// SEND it restores the stack, registers a WAIT_SEND token, rewinds PC back
// onto this instruction so the scheduler's retry of a resumed task
// re-attempts the same send, and blocks; for SOF it registers the token and
// jumps to target without blocking.
func (t *Task) execSend(h *heap.Heap, target *int) error {
	value, err := t.Pop()
	if err != nil {
		return err
	}
	ch, err := t.Pop()
	if err != nil {
		return err
	}
	full, err := h.ChannelIsFull(ch)
	if err != nil {
		return err
	}
	if !full {
		return h.ChannelPushItem(ch, value)
	}

	t.Push(ch)
	t.Push(value)
	wait, err := h.AllocateWaitSend(ch)
	if err != nil {
		return err
	}
	t.Waiting = append(t.Waiting, wait)
	if target != nil {
		t.PC = *target
		return nil
	}
	t.PC--
	t.status = Blocked
	return nil
}

// execReceive implements RECEIVE (target == nil) and ROF (target != nil),
// mirroring execSend.
func (t *Task) execReceive(h *heap.Heap, target *int) error {
	ch, err := t.Pop()
	if err != nil {
		return err
	}
	empty, err := h.ChannelIsEmpty(ch)
	if err != nil {
		return err
	}
	if !empty {
		item, err := h.ChannelPopItem(ch)
		if err != nil {
			return err
		}
		t.Push(item)
		return nil
	}

	t.Push(ch)
	wait, err := h.AllocateWaitReceive(ch)
	if err != nil {
		return err
	}
	t.Waiting = append(t.Waiting, wait)
	if target != nil {
		t.PC = *target
		return nil
	}
	t.PC--
	t.status = Blocked
	return nil
}

func (t *Task) execAccessAddress(h *heap.Heap) error {
	idxAddr, err := t.Pop()
	if err != nil {
		return err
	}
	arr, err := t.Pop()
	if err != nil {
		return err
	}
	idx, err := h.Number(idxAddr)
	if err != nil {
		return t.fatalf("%w: array index must be a number: %v", ErrBadOperandType, err)
	}
	v, err := h.ChildAt(arr, int(idx))
	if err != nil {
		return err
	}
	t.Push(v)
	return nil
}

// execAssignAddress pops value, then index, then array (in that order: the
// compiler pushes array, index, and value left to right for "arr[idx] =
// value", so value ends up on top) and leaves value on the stack, matching
// ASSIGN's expression-value convention.
func (t *Task) execAssignAddress(h *heap.Heap) error {
	value, err := t.Pop()
	if err != nil {
		return err
	}
	idxAddr, err := t.Pop()
	if err != nil {
		return err
	}
	arr, err := t.Pop()
	if err != nil {
		return err
	}
	idx, err := h.Number(idxAddr)
	if err != nil {
		return t.fatalf("%w: array index must be a number: %v", ErrBadOperandType, err)
	}
	if err := h.SetChildAt(arr, int(idx), value); err != nil {
		return err
	}
	t.Push(value)
	return nil
}
