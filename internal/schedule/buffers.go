package schedule

import (
	"tensorsched/internal/shapetracker"
	"tensorsched/internal/uop"
)

// AddBuffers is component C: every base UOp marked for realization in
// ctx.Realizes is rewritten into a VIEW over a freshly allocated Buffer,
// and the STORE that produces that buffer's contents is recorded for the
// lowering pass to emit as its own kernel. Grounded on add_buffers in the
// original.
//
// This walks sink's toposort once, bottom-up, building each node's
// replacement from its already-rewritten sources -- the same explicit
// worklist shape as UOp.Toposort and rewrite.GraphRewrite, kept as its own
// loop (rather than reusing rewrite.Matcher) because the realize lookup
// must key off each node's pre-rewrite identity, the one GroupRealizes
// recorded it under.
func AddBuffers(ctx *Context, sink *uop.UOp, device string) (*uop.UOp, []*uop.UOp) {
	var stores []*uop.UOp
	order := sink.Toposort()
	cache := make(map[*uop.UOp]*uop.UOp, len(order))
	for _, n := range order {
		newSrc := make([]*uop.UOp, len(n.Src))
		changed := false
		for i, s := range n.Src {
			rs := cache[s]
			newSrc[i] = rs
			if rs != s {
				changed = true
			}
		}
		cur := n
		if changed {
			cur = n.Replace(uop.WithSrc(newSrc))
		}
		if ctx.Realizes[n] && !isStructural(n.Op) && !cur.IsRealized() {
			shape := cur.Shape()
			buf := uop.NewBuffer(device, sizeOf(shape), cur.DType)
			identity := shapetracker.FromShape(shape)
			stores = append(stores, uop.NewStore(buf, uop.ToUOp(identity), cur))
			cur = buf.View(identity)
			ctx.AllBufs[n] = cur
			ctx.Becomes[n] = cur
		}
		cache[n] = cur
	}
	return cache[sink], stores
}

func isStructural(op uop.Op) bool {
	switch op {
	case uop.View, uop.Buffer, uop.Device:
		return true
	default:
		return false
	}
}

func sizeOf(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
