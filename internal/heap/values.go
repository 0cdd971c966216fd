package heap

// ValueKind is the kind of an unboxed primitive, the Go-level shape that
// crosses the heap boundary at BINOP/UNOP and at built-in call sites.
type ValueKind uint8

const (
	KindNumber ValueKind = iota
	KindBool
	KindString
	KindNull
	KindUndefined
)

// Value is an unboxed primitive: the result of AddressToValue, and the
// input to ValueToAddress. It is the Go-side mirror of every primitive kind
// the heap can box: number, bool, string, null, undefined.
type Value struct {
	Kind   ValueKind
	Number float64
	Bool   bool
	Str    string
}

func NumberValue(n float64) Value { return Value{Kind: KindNumber, Number: n} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func NullValue() Value            { return Value{Kind: KindNull} }
func UndefinedValue() Value       { return Value{Kind: KindUndefined} }

// ValueToAddress boxes an unboxed Value onto the heap, interning strings
// and reusing the relevant literal singleton for bool/null/undefined.
func (h *Heap) ValueToAddress(v Value) (Addr, error) {
	switch v.Kind {
	case KindNumber:
		return h.AllocateNumber(v.Number)
	case KindBool:
		return h.BoolAddr(v.Bool), nil
	case KindString:
		return h.AllocateString(v.Str)
	case KindNull:
		return h.nullAddr, nil
	case KindUndefined:
		return h.undefinedAddr, nil
	default:
		return 0, ErrUseBeforeAssign
	}
}

// AddressToValue unboxes a heap address into a primitive Value. It is
// defined for every tag a BINOP/UNOP operand or a display() argument can
// legally carry; any other tag is a programmer error in the compiler or
// built-in and is reported as a TagMismatchError.
func (h *Heap) AddressToValue(addr Addr) (Value, error) {
	switch addr {
	case h.falseAddr:
		return BoolValue(false), nil
	case h.trueAddr:
		return BoolValue(true), nil
	case h.nullAddr:
		return NullValue(), nil
	case h.undefinedAddr:
		return UndefinedValue(), nil
	}
	switch h.Tag(addr) {
	case NUMBER:
		n, err := h.Number(addr)
		return NumberValue(n), err
	case STRING:
		s, err := h.Text(addr)
		return StringValue(s), err
	default:
		return Value{}, &TagMismatchError{Addr: addr, Want: NUMBER, Got: h.Tag(addr)}
	}
}

// Equal compares two addresses for == / !=: identity for boxed singletons
// and strings (interning makes identity sufficient), numeric equality for
// two NUMBERs.
func (h *Heap) Equal(a, b Addr) (bool, error) {
	if a == b {
		return true, nil
	}
	ta, tb := h.Tag(a), h.Tag(b)
	if ta != tb {
		return false, nil
	}
	if ta == NUMBER {
		na, err := h.Number(a)
		if err != nil {
			return false, err
		}
		nb, err := h.Number(b)
		if err != nil {
			return false, err
		}
		return na == nb, nil
	}
	return false, nil
}
