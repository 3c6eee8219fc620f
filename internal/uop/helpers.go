package uop

import "tensorsched/internal/shapetracker"

// BufferArg is the (buffer_num, size) payload carried by a Buffer node's
// Arg, per spec.md §3.
type BufferArg struct {
	Num  int
	Size int
}

// ReduceArg is the (reduce_op, axes) payload carried by a ReduceAxis
// node's Arg.
type ReduceArg struct {
	Op   Op
	Axes []int
}

// CopyArg is the payload carried by a Copy node's Arg: the destination
// device, and whether the copy must duplicate the buffer even when the
// source is already on that device (Clone=false lets a same-device copy
// fold away to a no-op, spec.md §4.D).
type CopyArg struct {
	Device string
	Clone  bool
}

// BufferViewArg is the payload carried by a BufferView node's Arg: the
// element count and element offset of the sub-range it aliases within its
// source buffer (create_subbuffer, schedule.py:450-453).
type BufferViewArg struct {
	Size   int
	Offset int
}

var bufferCounter int

// NewDevice builds a Device node.
func NewDevice(device string) *UOp {
	return New(Device, Void, nil, device)
}

// NewBuffer allocates a fresh Buffer node on the given device.
func NewBuffer(device string, size int, dtype DType) *UOp {
	bufferCounter++
	return New(Buffer, dtype, []*UOp{NewDevice(device)}, BufferArg{Num: bufferCounter, Size: size})
}

// View wraps u with a ShapeTracker-carrying View node.
func (u *UOp) View(st shapetracker.ShapeTracker) *UOp {
	return New(View, u.DType, []*UOp{u}, st)
}

// ST returns u's ShapeTracker argument if u is a View node, and ok=false
// otherwise.
func (u *UOp) ST() (shapetracker.ShapeTracker, bool) {
	if u.Op != View {
		return shapetracker.ShapeTracker{}, false
	}
	st, ok := u.Arg.(shapetracker.ShapeTracker)
	return st, ok
}

// Shape returns u's logical shape. If u is not itself a VIEW, this
// follows Src[0] down to the nearest VIEW, mirroring the invariant that an
// elementwise op's shape is its first source's shape (broadcasting is
// always made explicit via EXPAND upstream, never implicit here).
func (u *UOp) Shape() []int {
	n := u
	for n.Op != View {
		if len(n.Src) == 0 {
			return nil
		}
		n = n.Src[0]
	}
	st, _ := n.ST()
	return st.Shape()
}

// Size returns u's logical element count.
func (u *UOp) Size() int {
	n := 1
	for _, s := range u.Shape() {
		n *= s
	}
	return n
}

// NewConst builds a Const node. Per spec.md §4.B a tensor Const carries a
// stride-0 unmasked View of its logical shape over a Device.
func NewConst(dtype DType, value float64, device string, shape []int) *UOp {
	st := shapetracker.FromShape(shape)
	v := st.Views[len(st.Views)-1]
	zeroStrides := make([]int, len(v.Strides))
	view := shapetracker.Create(st.Shape(), zeroStrides, 0, nil)
	viewNode := New(View, Void, []*UOp{NewDevice(device)}, shapetracker.ShapeTracker{Views: []shapetracker.View{view}})
	return New(Const, dtype, []*UOp{viewNode}, value)
}

// ConstLike builds a new Const with the same dtype/shape context as u but
// a different value, mirroring UOp.const_like.
func (u *UOp) ConstLike(value float64) *UOp {
	if st, ok := u.ST(); ok {
		return New(Const, u.DType, nil, value).View(st)
	}
	return New(Const, u.DType, nil, value)
}

// NewSink builds the schedule's root Sink node over the given store ops.
func NewSink(stores ...*UOp) *UOp {
	return New(Sink, Void, stores, nil)
}

// NewStore builds a Store(buf, view, value) node.
func NewStore(buf, view, value *UOp) *UOp {
	return New(Store, Void, []*UOp{buf, view, value}, nil)
}

// NewLoad builds a Load(buf, view) node.
func NewLoad(buf, view *UOp) *UOp {
	return New(Load, buf.DType.BaseType(), []*UOp{buf, view}, nil)
}

// NewPreload builds a Preload(buf, view) node -- a load tagged to order
// before any same-kernel assign to the same buffer.
func NewPreload(buf, view *UOp) *UOp {
	return New(Preload, buf.DType.BaseType(), []*UOp{buf, view}, nil)
}

// NewAssign builds an Assign(target, newVal) node.
func NewAssign(target, newVal *UOp) *UOp {
	return New(Assign, target.DType, []*UOp{target, newVal}, nil)
}

// NewCopy builds a Copy(src) node moving src's data onto device.
func NewCopy(dtype DType, device string, src *UOp) *UOp {
	return New(Copy, dtype, []*UOp{src}, CopyArg{Device: device})
}

// NewBufferView builds a BufferView(src) node aliasing a size-element
// sub-range of src starting at element offset, without copying.
func NewBufferView(dtype DType, src *UOp, size, offset int) *UOp {
	return New(BufferView, dtype, []*UOp{src}, BufferViewArg{Size: size, Offset: offset})
}

// Reduce builds a ReduceAxis node over u with the given reduce op/axes.
func (u *UOp) Reduce(op Op, axes []int) *UOp {
	return New(ReduceAxis, u.DType, []*UOp{u}, ReduceArg{Op: op, Axes: axes})
}

// Alu builds a binary ALU node (op must be IsALU) over u and other,
// taking u's dtype as the result dtype.
func (u *UOp) Alu(op Op, other *UOp) *UOp {
	return New(op, u.DType, []*UOp{u, other}, nil)
}

// NewDefineGlobal builds a DEFINE_GLOBAL node for kernel-local buffer index
// idx, replacing an erased Buffer during lowering (spec.md §4.H pass 3).
func NewDefineGlobal(dtype DType, idx int) *UOp {
	return New(DefineGlobal, dtype, nil, idx)
}

// ToUOp embeds a standalone ShapeTracker as a View node with no sources,
// used e.g. for DefineVar's bound-shape argument and for re-embedding a
// simplified ShapeTracker during lowering.
func ToUOp(st shapetracker.ShapeTracker) *UOp {
	return New(View, Void, nil, st)
}
