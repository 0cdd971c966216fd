package heap

// stringPool is the side-table "hash -> (node-address, text)" backing
// string interning. Keyed by hash with a slice per bucket so that a
// 32-bit DJB2 collision between two distinct strings cannot corrupt
// interning — only equal strings should collide to the same address, not
// unequal strings sharing a hash.
type stringPool struct {
	buckets map[uint32][]internedString
}

type internedString struct {
	addr Addr
	text string
}

func newStringPool() *stringPool {
	return &stringPool{buckets: make(map[uint32][]internedString)}
}

// djb2 hashes s with Bernstein's classic djb2 variant: hash = ((hash<<5) +
// hash) + ch per character, folded to 32-bit unsigned.
func djb2(s string) uint32 {
	var hash uint32 = 5381
	for i := 0; i < len(s); i++ {
		hash = ((hash << 5) + hash) + uint32(s[i])
	}
	return hash
}

func (p *stringPool) lookup(s string) (Addr, bool) {
	h := djb2(s)
	for _, e := range p.buckets[h] {
		if e.text == s {
			return e.addr, true
		}
	}
	return 0, false
}

func (p *stringPool) insert(s string, addr Addr) {
	h := djb2(s)
	p.buckets[h] = append(p.buckets[h], internedString{addr: addr, text: s})
}

// remove deletes the pool entry for addr, called during sweep when a
// STRING node is freed so a future intern of the same text can't resolve
// to a stale, now-recycled address.
func (p *stringPool) remove(addr Addr) {
	for h, entries := range p.buckets {
		for i, e := range entries {
			if e.addr == addr {
				p.buckets[h] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Text returns the text stored for a STRING node, for use by BINOP string
// concatenation and the display built-in.
func (h *Heap) Text(addr Addr) (string, error) {
	if err := h.expectTag(addr, STRING); err != nil {
		return "", err
	}
	hash := uint32(h.rawChild(addr, 0))
	for _, e := range h.strings.buckets[hash] {
		if e.addr == addr {
			return e.text, nil
		}
	}
	return "", &TagMismatchError{Addr: addr, Want: STRING, Got: h.Tag(addr)}
}
