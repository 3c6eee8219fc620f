package schedule

import (
	"tensorsched/internal/rewrite"
	"tensorsched/internal/uop"
)

// lowerKernel is the rest of component H (to_si): given one kernel root
// (a top-level STORE or ASSIGN), it view-hoists the value subtree,
// converts every implicit realized-buffer reference into an explicit
// LOAD, replaces each distinct buffer leaf with a DEFINE_GLOBAL addressed
// by kernel-local index (output first, then inputs in first-encountered
// order), and unbinds any remaining symbolic ShapeTracker dimensions into
// ctx.VarVals.
func lowerKernel(ctx *Context, root *uop.UOp) ScheduleItem {
	var bufNode, targetView, value *uop.UOp
	switch root.Op {
	case uop.Assign:
		target := root.Src[0]
		bufNode = target.BufUOp()
		st, _ := target.ST()
		targetView = uop.ToUOp(st)
		value = root.Src[1]
	default: // Store
		bufNode, targetView, value = root.Src[0], root.Src[1], root.Src[2]
	}

	value = rewrite.GraphRewrite(value, HoistRules(ctx), ctx)
	var preloads []*uop.UOp
	value, preloads = insertLoads(ctx, bufNode, value)

	bufs := []*uop.UOp{bufNode}
	bufIndex := map[*uop.UOp]int{bufNode: 0}

	order := value.Toposort()
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
		switch {
		case n.Op == uop.Buffer:
			idx, ok := bufIndex[n]
			if !ok {
				idx = len(bufs)
				bufIndex[n] = idx
				bufs = append(bufs, n)
			}
			cur = uop.NewDefineGlobal(n.DType, idx)
		case changed:
			cur = n.Replace(uop.WithSrc(newSrc))
		}
		cache[n] = cur
	}
	loweredValue := cache[value]

	outGlobal := uop.NewDefineGlobal(bufNode.DType, 0)
	ast := uop.NewSink(uop.NewStore(outGlobal, targetView, loweredValue))
	ast = unbindViews(ctx, ast)

	return ScheduleItem{AST: ast, Bufs: bufs, AssignPreloads: preloads}
}

// insertLoads rewrites every bare VIEW(Buffer,...) occurrence inside value
// (an implicit read of an already-realized buffer) into an explicit
// LOAD(buf, view) node. A read of a buffer that is itself an ASSIGN
// target other than selfBuf (this kernel's own store target) must see the
// pre-assign value, so it is emitted as PRELOAD instead and the buffer is
// collected into the returned assign-preload list (spec.md §3/§4.H).
func insertLoads(ctx *Context, selfBuf, value *uop.UOp) (*uop.UOp, []*uop.UOp) {
	order := value.Toposort()
	cache := make(map[*uop.UOp]*uop.UOp, len(order))
	var preloads []*uop.UOp
	seen := make(map[*uop.UOp]bool)
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
		if cur.Op == uop.View && len(cur.Src) == 1 && cur.Src[0].Op == uop.Buffer {
			buf := cur.Src[0]
			st, _ := cur.ST()
			if _, isAssign := ctx.Assigns[buf]; isAssign && buf != selfBuf {
				cur = uop.NewPreload(buf, uop.ToUOp(st))
				if !seen[buf] {
					seen[buf] = true
					preloads = append(preloads, buf)
				}
			} else {
				cur = uop.NewLoad(buf, uop.ToUOp(st))
			}
		}
		cache[n] = cur
	}
	return cache[value], preloads
}

// unbindViews strips any remaining symbolic dimensions out of every VIEW
// in root, recording their bindings into ctx.VarVals (spec.md §4.H pass
// 3, _append_st_vars).
func unbindViews(ctx *Context, root *uop.UOp) *uop.UOp {
	order := root.Toposort()
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
		if st, ok := cur.ST(); ok {
			unbound, vals := st.Unbind()
			for k, v := range vals {
				ctx.VarVals[k] = v
			}
			if !unbound.Equal(st) {
				cur = cur.Replace(uop.WithArg(unbound))
			}
		}
		cache[n] = cur
	}
	return cache[root]
}
