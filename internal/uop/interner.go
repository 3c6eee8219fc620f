package uop

import (
	"fmt"
	"strings"
)

// interner hash-conses UOp nodes. The scheduler is single-threaded and
// synchronous (spec.md §5), so no locking is required; a fresh interner
// can be created per top-level schedule call if isolation across calls is
// ever needed, but the package exposes one default instance mirroring the
// original's single global UOp cache.
type interner struct {
	table map[string]*UOp
}

func newInterner() *interner {
	return &interner{table: make(map[string]*UOp, 1024)}
}

var defaultInterner = newInterner()

// ResetInterner clears the hash-consing table. Exposed for test isolation
// between independent schedule() calls that should not share identity.
func ResetInterner() {
	defaultInterner = newInterner()
}

func (in *interner) intern(op Op, dtype DType, src []*UOp, arg any) *UOp {
	key := buildKey(op, dtype, src, arg)
	if existing, ok := in.table[key]; ok {
		return existing
	}
	u := &UOp{Op: op, DType: dtype, Src: src, Arg: arg, key: key}
	in.table[key] = u
	return u
}

func buildKey(op Op, dtype DType, src []*UOp, arg any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|", op, dtype.Key())
	for _, s := range src {
		// src nodes are themselves already interned, so their own key is a
		// stable structural fingerprint -- using it (rather than pointer
		// address) keeps interning correct even if a caller constructs an
		// equal-but-not-yet-deduped source slice.
		b.WriteString(s.key)
		b.WriteByte(',')
	}
	b.WriteByte('|')
	fmt.Fprintf(&b, "%#v", arg)
	return b.String()
}
