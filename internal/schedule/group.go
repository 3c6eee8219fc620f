package schedule

import "tensorsched/internal/uop"

// GroupRealizes is component G (group_realizes/recursive_group,
// schedule.py:247-339): it decides, for every base op reachable from sink,
// whether it must be materialized into its own buffer (a "realize")
// rather than inlined into whichever kernel consumes it.
//
// Three kinds of rule feed ctx.Realizes, applied in this order:
//
//   - do_realize's always-realize rules (schedule.py:435-462): a
//     CONTIGUOUS/COPY/BUFFER_VIEW's operand always realizes, an ASSIGN's
//     new value always realizes, and a VIEW that strictly grows its
//     operand's element count (an expand) forces the operand to realize
//     first unless DONT_REALIZE_EXPAND is set (realize_before_view,
//     schedule.py:435-443).
//   - the fan-out rule: a base with more than one distinct non-VIEW reader
//     can't be duplicated into every reader's kernel body, so it realizes
//     too.
//   - recursive_group, run once per REDUCE_AXIS (schedule.py:247-339):
//     accumulates the reduce's fusable descendant group by DFS, forcing a
//     realize boundary when fusion isn't safe (an escaping ASSIGN
//     ancestor, a second REDUCE_AXIS reachable at any depth, a fan-out
//     inside the group) rather than only checking the reduce's immediate
//     children, and otherwise chasing the realize point downward through
//     single-child elementwise chains (schedule.py:307-320) when one is
//     forced. The one exception is a directly adjacent same-op reduce
//     under FUSE_CONV_BW, left ungrouped so HoistRules' merge_double_reduce
//     fuses it later instead.
//
// Finally, with FUSE_ARANGE set, a REDUCE_AXIS(Add) over a Const with
// downstream consumers is un-realized so each consumer regenerates it
// inline instead of sharing one materialized buffer (reduce_of_const,
// schedule.py:324,330-335) -- arange fusion, the inverse of the fan-out
// rule above.
func GroupRealizes(ctx *Context, sink *uop.UOp) {
	order := sink.Toposort()

	for _, n := range order {
		base := n.Base()
		switch n.Op {
		case uop.Contiguous, uop.Copy, uop.BufferView:
			ctx.Realizes[n.Src[0].Base()] = true
		case uop.Assign:
			ctx.Realizes[n.Src[1].Base()] = true
		case uop.View:
			if realizeBeforeView(ctx, n) {
				ctx.Realizes[n.Src[0].Base()] = true
			}
		}
		// A VIEW wrapping base is not a reader of its own: the ops that read
		// through it are recorded under base as well.
		readers := make(map[*uop.UOp]bool)
		for _, p := range ctx.Children[base] {
			if p.Op != uop.View {
				readers[p] = true
			}
		}
		if len(readers) > 1 {
			ctx.Realizes[base] = true
		}
	}

	for _, n := range order {
		if n.Op == uop.ReduceAxis {
			recursiveGroup(ctx, n)
		}
	}

	applyArangeFusion(ctx, order)
}

// realizeBeforeView is realize_before_view (schedule.py:435-443): a VIEW
// whose logical size exceeds its operand's is a broadcast/expand, and an
// expand's operand must already be a whole materialized buffer rather than
// a value recomputed once per broadcast copy -- unless DONT_REALIZE_EXPAND
// opts out. A Const operand is exempt: broadcasting a constant is already
// free (stride-0), so there is nothing to gain from realizing it first.
func realizeBeforeView(ctx *Context, n *uop.UOp) bool {
	if ctx.Flags.DontRealizeExpand {
		return false
	}
	st, ok := n.ST()
	if !ok || len(n.Src) != 1 {
		return false
	}
	src := n.Src[0]
	if src.Op == uop.Const || src.IsRealized() {
		return false
	}
	srcShape := src.Shape()
	if srcShape == nil {
		return false
	}
	return st.Size() > sizeOf(srcShape)
}

// recursiveGroup is recursive_group for the REDUCE_AXIS node r
// (schedule.py:247-339): it builds r's fuse group and, when that group
// isn't safely fusable, realizes a boundary for it -- at r itself, or
// chased downward through a safe elementwise chain when one exists.
func recursiveGroup(ctx *Context, r *uop.UOp) {
	if ctx.Flags.FuseConvBW && adjacentDoubleReduce(ctx, r) {
		// Left unrealized and ungrouped: merge_double_reduce (hoist.go)
		// fuses this reduce directly into its parent reduce later, so no
		// group-realize boundary is needed here.
		return
	}

	group, forced := buildGroup(ctx, r)
	if !forced && groupHasAssignAncestor(group) {
		forced = true
	}

	if forced || ctx.Realizes[r] {
		target := r
		if !ctx.Realizes[r] {
			target = chaseRealize(ctx, r)
		}
		ctx.Realizes[target] = true
		ctx.ReduceForOp[target] = r
	}
	for b := range group {
		ctx.ReduceForOp[b] = r
	}
}

// adjacentDoubleReduce reports whether r's sole reader is itself a
// REDUCE_AXIS with the same reduce op -- the one case recursive_group
// leaves ungrouped so merge_double_reduce can fuse the pair under
// FUSE_CONV_BW instead of realizing the inner reduce separately.
func adjacentDoubleReduce(ctx *Context, r *uop.UOp) bool {
	if ctx.numChildren(r) != 1 {
		return false
	}
	parent := ctx.Children[r][0]
	return parent.Op == uop.ReduceAxis && sameReduceOp(parent, r)
}

func sameReduceOp(a, b *uop.UOp) bool {
	aa, ok1 := a.Arg.(uop.ReduceArg)
	ba, ok2 := b.Arg.(uop.ReduceArg)
	return ok1 && ok2 && aa.Op == ba.Op
}

// buildGroup walks r's consumers outward by explicit stack (spec.md §9),
// accumulating every op reachable that could still fuse into the same
// kernel as r. forced reports true the moment that's no longer safe: a
// second REDUCE_AXIS reachable at any depth (not just a direct child --
// the one-reduce-per-kernel invariant needs the transitive check), an
// ASSIGN in the chain, or a fan-out to more than one reader anywhere in
// the group.
func buildGroup(ctx *Context, r *uop.UOp) (group map[*uop.UOp]bool, forced bool) {
	group = make(map[*uop.UOp]bool)
	visited := make(map[*uop.UOp]bool)
	stack := []*uop.UOp{r}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true

		if n != r && n.Op == uop.ReduceAxis {
			forced = true
			continue
		}
		if n.Op == uop.Assign {
			forced = true
			continue
		}
		if n.Op == uop.Store || n.Op == uop.Sink {
			// A STORE/SINK is always its own kernel boundary -- it never
			// joins r's fuse group, and walking past it contributes nothing.
			continue
		}

		group[n] = true
		if ctx.numChildren(n) > 1 {
			forced = true
		}
		for _, p := range ctx.Children[n] {
			if !visited[p] {
				stack = append(stack, p)
			}
		}
	}
	return group, forced
}

// groupHasAssignAncestor walks upward from every member of group (the
// assign-parent walk, schedule.py:298-304): an ASSIGN feeding into the
// group from above means the group can't be fused past that write-ordering
// boundary, so it must realize even though nothing inside the group itself
// forced it.
func groupHasAssignAncestor(group map[*uop.UOp]bool) bool {
	visited := make(map[*uop.UOp]bool, len(group))
	stack := make([]*uop.UOp, 0, len(group))
	for n := range group {
		stack = append(stack, n)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		if n.Op == uop.Assign {
			return true
		}
		for _, s := range n.Src {
			if !visited[s] {
				stack = append(stack, s)
			}
		}
	}
	return false
}

// chaseRealize walks r's single-child consumer chain downstream as long as
// each hop stays elementwise-safe (schedule.py:307-320): exactly one
// reader, no upcast (a wider dtype needs its own buffer), and any VIEW hop
// is a same-size contiguous reshape rather than a further movement. It
// stops before crossing into STORE/SINK/ASSIGN/CONTIGUOUS/COPY/
// BUFFER_VIEW/another REDUCE_AXIS, returning the furthest safe node, or r
// itself if no hop is possible.
func chaseRealize(ctx *Context, r *uop.UOp) *uop.UOp {
	cur := r
	for {
		if ctx.numChildren(cur) != 1 {
			return cur
		}
		next := ctx.Children[cur][0]
		switch next.Op {
		case uop.ReduceAxis, uop.Assign, uop.Contiguous, uop.Copy, uop.BufferView, uop.Store, uop.Sink:
			return cur
		}
		if next.DType.ItemSize > cur.DType.ItemSize {
			return cur
		}
		if next.Op == uop.View {
			st, ok := next.ST()
			if !ok || !st.Contiguous() || st.Size() != cur.Size() {
				return cur
			}
		}
		cur = next
	}
}

// applyArangeFusion is reduce_of_const (schedule.py:324,330-335), spec.md
// §8 scenario 6: with FUSE_ARANGE set, a REDUCE_AXIS(Add) whose source is a
// Const (masked or not) and that has at least one reader is un-realized so
// each reader
// regenerates the (typically tiny) constant reduction inline instead of
// sharing one materialized buffer -- the opposite effect of the fan-out
// rule above, which this pass deliberately runs after and can override.
func applyArangeFusion(ctx *Context, order []*uop.UOp) {
	if !ctx.Flags.FuseArange {
		return
	}
	for _, n := range order {
		if n.Op != uop.ReduceAxis {
			continue
		}
		arg, ok := n.Arg.(uop.ReduceArg)
		if !ok || arg.Op != uop.Add {
			continue
		}
		if ctx.numChildren(n) == 0 {
			continue
		}
		if n.Src[0].Op != uop.Const {
			continue
		}
		if forcedContiguousChild(ctx, n) {
			continue
		}
		delete(ctx.Realizes, n)
	}
}

// forcedContiguousChild reports whether any direct reader of n is a
// CONTIGUOUS or ASSIGN, which still requires n to realize regardless of
// arange fusion (found_contiguous and the assign rule take priority).
func forcedContiguousChild(ctx *Context, n *uop.UOp) bool {
	for _, p := range ctx.Children[n] {
		if p.Op == uop.Contiguous || p.Op == uop.Assign {
			return true
		}
	}
	return false
}
