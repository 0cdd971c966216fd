package builtin

import (
	"fmt"
	"math"

	"govm/internal/heap"
)

// newDisplay returns a display() body bound to r's current output writer,
// so Registry.SetOutput (used by tests to capture output) takes effect
// without a global.
func (r *Registry) newDisplay() Func {
	return func(s Stack, h *heap.Heap) (heap.Addr, error) {
		arg, err := s.Pop()
		if err != nil {
			return 0, err
		}
		v, err := h.AddressToValue(arg)
		if err != nil {
			return 0, err
		}
		fmt.Fprintln(r.out, formatValue(v))
		return arg, nil
	}
}

func formatValue(v heap.Value) string {
	switch v.Kind {
	case heap.KindNumber:
		return fmt.Sprintf("%g", v.Number)
	case heap.KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case heap.KindString:
		return v.Str
	case heap.KindNull:
		return "null"
	case heap.KindUndefined:
		return "undefined"
	default:
		return "?unknown-value?"
	}
}

func builtinMakeChannel(s Stack, h *heap.Heap) (heap.Addr, error) {
	return h.AllocateChannel()
}

func builtinMakeArray(s Stack, h *heap.Heap) (heap.Addr, error) {
	nAddr, err := s.Pop()
	if err != nil {
		return 0, err
	}
	n, err := h.Number(nAddr)
	if err != nil {
		return 0, err
	}
	return h.AllocateArray(int(n))
}

func builtinMathSqrt(s Stack, h *heap.Heap) (heap.Addr, error) {
	nAddr, err := s.Pop()
	if err != nil {
		return 0, err
	}
	n, err := h.Number(nAddr)
	if err != nil {
		return 0, err
	}
	return h.AllocateNumber(math.Sqrt(n))
}

func isKindFunc(want heap.Tag) Func {
	return func(s Stack, h *heap.Heap) (heap.Addr, error) {
		addr, err := s.Pop()
		if err != nil {
			return 0, err
		}
		return h.BoolAddr(h.Tag(addr) == want), nil
	}
}

func isBooleanFunc(s Stack, h *heap.Heap) (heap.Addr, error) {
	addr, err := s.Pop()
	if err != nil {
		return 0, err
	}
	return h.BoolAddr(addr == h.True() || addr == h.False()), nil
}

func isUndefinedFunc(s Stack, h *heap.Heap) (heap.Addr, error) {
	addr, err := s.Pop()
	if err != nil {
		return 0, err
	}
	return h.BoolAddr(addr == h.Undefined()), nil
}

func isFunctionFunc(s Stack, h *heap.Heap) (heap.Addr, error) {
	addr, err := s.Pop()
	if err != nil {
		return 0, err
	}
	t := h.Tag(addr)
	return h.BoolAddr(t == heap.CLOSURE || t == heap.BUILTIN), nil
}
