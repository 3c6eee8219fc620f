package schedule

import (
	"tensorsched/internal/rewrite"
	"tensorsched/internal/shapetracker"
	"tensorsched/internal/uop"
)

// HoistRules is component H's view-hoisting half: a rewrite pass run over
// each kernel's value subtree before lowering, so the kernel body ends up
// expressed uniformly relative to the kernel's own iteration space instead
// of leaving stray VIEW nodes wrapping whole ALU/REDUCE_AXIS subtrees.
//
//   - elementwise_view_right: a VIEW wrapping an elementwise-eligible op
//     (uop.ElementwiseViewRightSet) is pushed down onto each of that op's
//     sources individually.
//   - swizzle_r: a VIEW wrapping a REDUCE_AXIS is pushed through in both
//     of its original forms (schedule.py:122-137): a contiguous (no-op)
//     view simply drops, and a genuine permutation is pushed onto the
//     reduce's source (with its axes remapped through the same
//     permutation) rather than left stranded on top of the reduce. A view
//     that isn't a pure permutation of the reduce's output (a reshape,
//     pad, or anything this package's simplified ShapeTracker can't
//     invert) is left un-hoisted, same as before.
//   - merge_double_reduce: two nested REDUCE_AXIS ops with the same
//     reduce operator collapse into one, axes unioned, when FUSE_CONV_BW
//     is set.
func HoistRules(ctx *Context) *rewrite.Matcher[*Context] {
	return rewrite.New(
		rewrite.Rule[*Context]{Name: "elementwise_view_right", Ops: []uop.Op{uop.View}, Fn: elementwiseViewRight},
		rewrite.Rule[*Context]{Name: "swizzle_r", Ops: []uop.Op{uop.View}, Fn: swizzleReduce},
		rewrite.Rule[*Context]{Name: "merge_double_reduce", Ops: []uop.Op{uop.ReduceAxis}, Fn: mergeDoubleReduce(ctx)},
	)
}

func elementwiseViewRight(_ *Context, n *uop.UOp) *uop.UOp {
	st, ok := n.ST()
	if !ok || len(n.Src) != 1 {
		return nil
	}
	inner := n.Src[0]
	if !uop.ElementwiseViewRightSet(inner.Op) || len(inner.Src) == 0 {
		return nil
	}
	newSrc := make([]*uop.UOp, len(inner.Src))
	for i, s := range inner.Src {
		newSrc[i] = s.View(st)
	}
	return inner.Replace(uop.WithSrc(newSrc))
}

func swizzleReduce(_ *Context, n *uop.UOp) *uop.UOp {
	st, ok := n.ST()
	if !ok || len(n.Src) != 1 || n.Src[0].Op != uop.ReduceAxis {
		return nil
	}
	reduce := n.Src[0]
	if st.Contiguous() {
		return reduce
	}
	arg, ok := reduce.Arg.(uop.ReduceArg)
	if !ok || len(reduce.Src) != 1 {
		return nil
	}
	srcST, ok := reduce.Src[0].ST()
	if !ok {
		return nil
	}
	// reduceShape is the reduce's own output shape (axes collapsed to 1),
	// the base that st's permutation is expressed relative to.
	reduceShape := srcST.Reduce(arg.Axes)
	order, ok := axisPermutation(reduceShape, st)
	if !ok {
		return nil
	}
	inv := make([]int, len(order))
	for i, o := range order {
		inv[o] = i
	}
	newAxes := make([]int, len(arg.Axes))
	for i, a := range arg.Axes {
		newAxes[i] = inv[a]
	}
	pushView := shapetracker.FromShape(srcST.Shape()).Permute(order)
	permutedSrc := reduce.Src[0].View(pushView)
	return permutedSrc.Reduce(arg.Op, newAxes)
}

// axisPermutation recovers the axis order such that st's outermost view is
// exactly baseShape permuted by that order -- the same check
// ShapeTracker.Invert makes internally, reimplemented here since this
// package only reaches ShapeTracker through its exported surface and
// swizzle_r needs the forward order (to remap the reduce's axes), not just
// an invert/ok result.
func axisPermutation(baseShape []int, st shapetracker.ShapeTracker) ([]int, bool) {
	if len(st.Views) != 1 {
		return nil, false
	}
	v := st.Views[0]
	if v.Mask != nil || v.Offset != 0 {
		return nil, false
	}
	shape := v.IntShape()
	if len(shape) != len(baseShape) {
		return nil, false
	}
	baseStrides := shapetracker.StridesForShape(baseShape)
	used := make([]bool, len(baseShape))
	order := make([]int, len(shape))
	for i := range shape {
		found := -1
		for j := range baseShape {
			if used[j] {
				continue
			}
			if baseShape[j] == shape[i] && baseStrides[j] == v.Strides[i] {
				found = j
				break
			}
		}
		if found == -1 {
			return nil, false
		}
		used[found] = true
		order[i] = found
	}
	return order, true
}

func mergeDoubleReduce(ctx *Context) func(*Context, *uop.UOp) *uop.UOp {
	return func(_ *Context, n *uop.UOp) *uop.UOp {
		if !ctx.Flags.FuseConvBW {
			return nil
		}
		outer, ok := n.Arg.(uop.ReduceArg)
		if !ok || len(n.Src) != 1 {
			return nil
		}
		inner := n.Src[0]
		if inner.Op != uop.ReduceAxis {
			return nil
		}
		innerArg, ok := inner.Arg.(uop.ReduceArg)
		if !ok || innerArg.Op != outer.Op {
			return nil
		}
		axes := append(append([]int{}, outer.Axes...), innerArg.Axes...)
		return inner.Src[0].Reduce(outer.Op, axes)
	}
}
