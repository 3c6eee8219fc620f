package uop

// Movement-op Arg payloads. No scheduler pass folds or rewrites these
// nodes: inside the scheduler, movement is carried by View nodes and their
// ShapeTrackers (composed by schedule.FoldRules' flatten_nested_view).
type (
	ReshapeArg struct{ Shape []int }
	PermuteArg struct{ Order []int }
	ExpandArg  struct{ Shape []int }
	PadArg     struct{ Mask [][2]int }
	ShrinkArg  struct{ Mask [][2]int }
	StrideArg  struct{ Strides []int }
)

func (u *UOp) ReshapeTo(shape []int) *UOp { return New(Reshape, u.DType, []*UOp{u}, ReshapeArg{Shape: shape}) }
func (u *UOp) PermuteBy(order []int) *UOp { return New(Permute, u.DType, []*UOp{u}, PermuteArg{Order: order}) }
func (u *UOp) ExpandTo(shape []int) *UOp  { return New(Expand, u.DType, []*UOp{u}, ExpandArg{Shape: shape}) }
func (u *UOp) PadTo(mask [][2]int) *UOp   { return New(Pad, u.DType, []*UOp{u}, PadArg{Mask: mask}) }
func (u *UOp) ShrinkTo(mask [][2]int) *UOp { return New(Shrink, u.DType, []*UOp{u}, ShrinkArg{Mask: mask}) }
func (u *UOp) StrideBy(strides []int) *UOp { return New(Stride, u.DType, []*UOp{u}, StrideArg{Strides: strides}) }
