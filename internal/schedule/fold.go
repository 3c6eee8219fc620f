package schedule

import (
	"math"

	"tensorsched/internal/rewrite"
	"tensorsched/internal/uop"
)

// FoldRules is component D: a fixed-point rewrite pass over the
// buffer-injected graph that (1) collapses nested VIEW-of-VIEW chains left
// behind by AddBuffers back into one composed ShapeTracker
// (remove_movement_ops' job once movement is expressed purely as VIEW
// composition), (2) constant-folds a REDUCE_AXIS over a zero-size input to
// its reduce identity and, more generally, any op whose own view has gone
// to zero size down to a Const 0, (3) drops a redundant CONTIGUOUS wrapper
// once its operand's own view is already contiguous, registers a
// genuinely-permuted one so a later sibling over the same base can adopt
// it instead of re-registering, and collapses two nested CONTIGUOUS
// wrappers into one (found_contiguous / replace_contiguous), (4) drops a
// DETACH (a scheduling no-op; gradient semantics live above this package)
// and folds a COPY of a constant or a same-device COPY away, and (5)
// demotes an image dtype that a CAST can't keep tiled back to its base
// dtype (fold_img_cast). Grounded on ops_folding, schedule.py:371-401.
func FoldRules(ctx *Context) *rewrite.Matcher[*Context] {
	return rewrite.New(
		rewrite.Rule[*Context]{Name: "flatten_nested_view", Ops: []uop.Op{uop.View}, Fn: flattenNestedView},
		rewrite.Rule[*Context]{Name: "fold_zero_reduce", Ops: []uop.Op{uop.ReduceAxis}, Fn: foldZeroReduce},
		rewrite.Rule[*Context]{Name: "fold_const_reduce", Ops: []uop.Op{uop.ReduceAxis}, Fn: foldConstReduce},
		rewrite.Rule[*Context]{Name: "fold_zero_size", Ops: []uop.Op{uop.View}, Fn: foldZeroSize},
		rewrite.Rule[*Context]{Name: "fold_double_contiguous", Ops: []uop.Op{uop.Contiguous}, Fn: foldDoubleContiguous},
		rewrite.Rule[*Context]{Name: "replace_contiguous", Ops: []uop.Op{uop.Contiguous}, Fn: replaceContiguous},
		rewrite.Rule[*Context]{Name: "fold_detach", Ops: []uop.Op{uop.Detach}, Fn: foldDetach},
		rewrite.Rule[*Context]{Name: "fold_copy", Ops: []uop.Op{uop.Copy}, Fn: foldCopy},
		rewrite.Rule[*Context]{Name: "fold_img_cast", Ops: []uop.Op{uop.Cast}, Fn: foldImgCast},
		rewrite.Rule[*Context]{Name: "disk_subbuffer", Ops: []uop.Op{uop.Bitcast}, Fn: diskSubBuffer},
	)
}

func flattenNestedView(_ *Context, n *uop.UOp) *uop.UOp {
	outer, ok := n.ST()
	if !ok || len(n.Src) != 1 || n.Src[0].Op != uop.View {
		return nil
	}
	inner := n.Src[0]
	innerST, ok := inner.ST()
	if !ok || len(inner.Src) != 1 {
		return nil
	}
	composed := innerST.Compose(outer).Simplify()
	return inner.Src[0].View(composed)
}

func foldZeroReduce(_ *Context, n *uop.UOp) *uop.UOp {
	arg, ok := n.Arg.(uop.ReduceArg)
	if !ok {
		return nil
	}
	x := n.Src[0]
	if x.Size() != 0 {
		return nil
	}
	st, ok := x.ST()
	if !ok {
		return nil
	}
	outShape := st.Reduce(arg.Axes)
	ident := uop.IdentityElement(arg.Op)
	return uop.NewConst(n.DType, ident, "", outShape)
}

// foldConstReduce is spec.md §4.D's "ReduceAxis over an unmasked
// constant" rule: reducing a constant over Add multiplies it by the
// reduced-axis product, Mul raises it to that product's power, and
// Max/Min leave it unchanged -- any other reduce op is left alone since
// it has no closed-form identity to fold through.
func foldConstReduce(_ *Context, n *uop.UOp) *uop.UOp {
	arg, ok := n.Arg.(uop.ReduceArg)
	if !ok {
		return nil
	}
	x := n.Src[0]
	if x.Op != uop.Const || len(x.Src) != 1 {
		return nil
	}
	cv, ok := x.Arg.(float64)
	if !ok {
		return nil
	}
	st, ok := x.Src[0].ST()
	if !ok || st.Mask() != nil {
		return nil
	}
	shape := st.Shape()
	prod := 1
	for _, a := range arg.Axes {
		prod *= shape[a]
	}
	var folded float64
	switch arg.Op {
	case uop.Add:
		folded = cv * float64(prod)
	case uop.Mul:
		folded = math.Pow(cv, float64(prod))
	case uop.Max, uop.Min:
		folded = cv
	default:
		return nil
	}
	return uop.NewConst(n.DType, folded, "", st.Reduce(arg.Axes))
}

// foldZeroSize is the generalized half of ops_folding's zero-size rule
// (schedule.py:371-401): any op wrapped in a VIEW whose own size has gone
// to zero (not just a REDUCE_AXIS's input, which foldZeroReduce already
// covers from the other side) folds to a Const 0 of that shape.
func foldZeroSize(_ *Context, n *uop.UOp) *uop.UOp {
	st, ok := n.ST()
	if !ok || len(n.Src) != 1 {
		return nil
	}
	if st.Size() != 0 || n.Src[0].Op == uop.Const {
		return nil
	}
	return uop.NewConst(n.DType, 0, "", st.Shape())
}

// foldDoubleContiguous collapses CONTIGUOUS(CONTIGUOUS(x)) to the inner
// CONTIGUOUS(x): the outer wrapper adds nothing once its operand is
// already forced contiguous.
func foldDoubleContiguous(_ *Context, n *uop.UOp) *uop.UOp {
	if len(n.Src) != 1 || n.Src[0].Op != uop.Contiguous {
		return nil
	}
	return n.Src[0]
}

// replaceContiguous is found_contiguous/replace_contiguous
// (schedule.py:371-401, the `contiguous` map in spec.md §3's data model,
// Context.Contiguous here): a CONTIGUOUS whose operand's own view is
// already contiguous is redundant and drops straight to that operand.
// Otherwise, if the operand is a pure permutation of some base (checked
// via ShapeTracker.Invert), the first such CONTIGUOUS seen for that base
// is registered; a later sibling CONTIGUOUS wrapping the identical
// base+permutation adopts the registered node instead of standing up its
// own, so hash-consing downstream sees one shared forced-contiguous
// operand rather than two independently-realized copies.
func replaceContiguous(ctx *Context, n *uop.UOp) *uop.UOp {
	x := n.Src[0]
	st, ok := x.ST()
	if !ok {
		return nil
	}
	if st.Contiguous() {
		return x
	}
	if len(x.Src) != 1 {
		return nil
	}
	base := x.Src[0]
	baseShape := base.Shape()
	if baseShape == nil {
		return nil
	}
	if _, invertible := st.Invert(baseShape); !invertible {
		return nil
	}
	if reg, already := ctx.Contiguous[base]; already {
		if reg == x {
			return nil
		}
		if regST, ok := reg.ST(); ok && regST.Equal(st) {
			return n.Replace(uop.WithSrc([]*uop.UOp{reg}))
		}
		return nil
	}
	ctx.Contiguous[base] = x
	return nil
}

// foldDetach drops a DETACH node: it exists to stop gradient propagation
// above this package and carries no scheduling meaning of its own.
func foldDetach(_ *Context, n *uop.UOp) *uop.UOp {
	if len(n.Src) != 1 {
		return nil
	}
	return n.Src[0]
}

// foldCopy implements the two COPY folds from ops_folding: COPY of a
// CONST re-materializes the constant directly on the destination device
// instead of copying it, and a same-device COPY (when CopyArg.Clone isn't
// set) is a no-op.
func foldCopy(_ *Context, n *uop.UOp) *uop.UOp {
	arg, ok := n.Arg.(uop.CopyArg)
	if !ok || len(n.Src) != 1 {
		return nil
	}
	src := n.Src[0]
	if src.Op == uop.Const {
		if v, ok := src.Arg.(float64); ok {
			return uop.NewConst(n.DType, v, arg.Device, src.Shape())
		}
	}
	if !arg.Clone && sameDevice(src, arg.Device) {
		return src
	}
	return nil
}

func sameDevice(src *uop.UOp, device string) bool {
	base := src.Base()
	if base.Op != uop.Buffer || len(base.Src) != 1 {
		return false
	}
	dev, ok := base.Src[0].Arg.(string)
	return ok && dev == device
}

// diskSubBuffer implements create_subbuffer (schedule.py:450-453): a
// BITCAST whose operand is already realized on a disk device doesn't need
// its own copy -- it can alias the source buffer directly via
// BUFFER_VIEW instead. The BUFFER_VIEW covers the sub-range given by the
// operand's outermost view: its element count and its offset, counted in
// elements rather than bytes. Only BITCAST is rewritten this way; a
// CONTIGUOUS on a disk device is left as it is.
func diskSubBuffer(_ *Context, n *uop.UOp) *uop.UOp {
	if len(n.Src) != 1 {
		return nil
	}
	src := n.Src[0]
	if !src.IsRealized() {
		return nil
	}
	buf := src.BufUOp()
	dev, ok := buf.Src[0].Arg.(string)
	if !ok || !isDiskDevice(dev) {
		return nil
	}
	st, ok := src.ST()
	if !ok {
		return nil
	}
	view := st.Views[len(st.Views)-1]
	return uop.NewBufferView(n.DType, buf, st.Size(), view.Offset)
}

func isDiskDevice(device string) bool {
	return len(device) >= 4 && device[:4] == "DISK"
}

func foldImgCast(ctx *Context, n *uop.UOp) *uop.UOp {
	x := n.Src[0]
	if x.Op != uop.View || !x.DType.IsImage() {
		return nil
	}
	if n.DType.IsImage() {
		return nil
	}
	base := x.DType.BaseType()
	st, _ := x.ST()
	ctx.Logger.ImageDemotion(x.DType.String(), st.Shape(), base.String())
	demoted := x.Src[0].Replace(uop.WithDType(base)).View(st)
	return n.Replace(uop.WithSrc([]*uop.UOp{demoted}))
}
