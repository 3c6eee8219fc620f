package schedule

import (
	"testing"

	"tensorsched/internal/schedconf"
	"tensorsched/internal/shapetracker"
	"tensorsched/internal/uop"
)

// TestConstFoldOfReduce is spec.md §8 end-to-end scenario 1: a SINK whose
// sole STORE reduces a constant all the way down emits zero kernels.
func TestConstFoldOfReduce(t *testing.T) {
	uop.ResetInterner()

	c := uop.NewConst(uop.Float32, 2, "CPU", []int{4, 4})
	reduced := c.Reduce(uop.Add, []int{0, 1})
	out := uop.NewBuffer("CPU", 1, uop.Float32)
	outSt := shapetracker.FromShape([]int{1})
	store := uop.NewStore(out, uop.ToUOp(outSt), reduced)
	sink := uop.NewSink(store)

	result, err := Create(sink, Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(result.Schedule) != 0 {
		t.Fatalf("expected zero kernels, got %d", len(result.Schedule))
	}
	folded, ok := result.Becomes[out]
	if !ok {
		t.Fatalf("expected becomes_map entry for %v", out)
	}
	if folded.Op != uop.Const {
		t.Fatalf("expected becomes_map target to fold to CONST, got %s", folded.Op)
	}
	if got, want := folded.Arg.(float64), 32.0; got != want {
		t.Errorf("folded const = %v, want %v (2 * 4*4)", got, want)
	}
}

// TestFusedElementwiseReduce is spec.md §8 scenario 3: Store(B_out,
// Sum(Mul(Load(B_a), Load(B_b)), axis=1)) over two realized inputs
// schedules to exactly one kernel with both inputs and no intermediate
// buffer.
func TestFusedElementwiseReduce(t *testing.T) {
	uop.ResetInterner()

	shape := []int{4, 4}
	st := shapetracker.FromShape(shape)
	a := uop.NewBuffer("CPU", 16, uop.Float32)
	b := uop.NewBuffer("CPU", 16, uop.Float32)
	loadA := uop.NewLoad(a, uop.ToUOp(st))
	loadB := uop.NewLoad(b, uop.ToUOp(st))
	reduced := loadA.Alu(uop.Mul, loadB).Reduce(uop.Add, []int{1})

	out := uop.NewBuffer("CPU", 4, uop.Float32)
	outSt := shapetracker.FromShape([]int{4})
	store := uop.NewStore(out, uop.ToUOp(outSt), reduced)
	sink := uop.NewSink(store)

	result, err := Create(sink, Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(result.Schedule) != 1 {
		t.Fatalf("expected exactly one kernel, got %d", len(result.Schedule))
	}
	item := result.Schedule[0]
	inputs := item.Inputs()
	if len(inputs) != 2 {
		t.Fatalf("expected 2 input buffers, got %d (%v)", len(inputs), inputs)
	}
	outputs := item.Outputs()
	if len(outputs) != 1 || outputs[0] != out {
		t.Fatalf("expected output buffer %v, got %v", out, outputs)
	}
}

// TestAssignCycleRejection is spec.md §8 scenario 2: an ASSIGN that reads
// its own target via a plain LOAD in the same kernel is rejected.
func TestAssignCycleRejection(t *testing.T) {
	uop.ResetInterner()

	st := shapetracker.FromShape([]int{4})
	buf := uop.NewBuffer("CPU", 4, uop.Float32)
	view := buf.View(st)

	selfRead := uop.NewLoad(buf, uop.ToUOp(st))
	newVal := selfRead.Alu(uop.Add, selfRead)
	assign := uop.NewAssign(view, newVal)
	sink := uop.NewSink(assign)

	_, err := Create(sink, Options{})
	if err == nil {
		t.Fatalf("expected an assign-cycle error")
	}
}

// TestDoubleReduceMergesUnderFlag is spec.md §8 scenario 5: with
// FUSE_CONV_BW set, two nested same-op reduces merge into one kernel with
// a single REDUCE_AXIS over the union of axes and no intermediate
// realize.
func TestDoubleReduceMergesUnderFlag(t *testing.T) {
	uop.ResetInterner()

	shape := []int{2, 3, 4}
	st := shapetracker.FromShape(shape)
	x := uop.NewBuffer("CPU", 24, uop.Float32)
	loadX := uop.NewLoad(x, uop.ToUOp(st))
	inner := loadX.Reduce(uop.Add, []int{1})
	outer := inner.Reduce(uop.Add, []int{0})

	out := uop.NewBuffer("CPU", 4, uop.Float32)
	outSt := shapetracker.FromShape([]int{4})
	store := uop.NewStore(out, uop.ToUOp(outSt), outer)
	sink := uop.NewSink(store)

	result, err := Create(sink, Options{Flags: schedconf.Flags{FuseConvBW: true}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(result.Schedule) != 1 {
		t.Fatalf("expected one kernel, got %d", len(result.Schedule))
	}
}

// TestRealizeBeforeExpand is spec.md §8 scenario 4: a VIEW that broadcasts
// an elementwise result to a larger shape forces that result to realize
// into its own buffer first (realize_before_view), splitting what would
// otherwise be one fused kernel into two: one that produces the
// pre-broadcast value, one that reads it back broadcast.
func TestRealizeBeforeExpand(t *testing.T) {
	uop.ResetInterner()

	st := shapetracker.FromShape([]int{4})
	x := uop.NewBuffer("CPU", 4, uop.Float32)
	loadX := uop.NewLoad(x, uop.ToUOp(st))
	// An explicit identity VIEW over the load lets Shape() resolve the
	// squared value's shape below (Shape() only follows Src[0] down to the
	// nearest VIEW, per uop.UOp.Shape's doc comment).
	viewedLoad := loadX.View(st)
	squared := viewedLoad.Alu(uop.Mul, viewedLoad)

	expandSt := shapetracker.ShapeTracker{
		Views: []shapetracker.View{shapetracker.Create([]int{4, 3}, []int{1, 0}, 0, nil)},
	}
	expanded := squared.View(expandSt)

	out := uop.NewBuffer("CPU", 12, uop.Float32)
	outSt := shapetracker.FromShape([]int{4, 3})
	store := uop.NewStore(out, uop.ToUOp(outSt), expanded)
	sink := uop.NewSink(store)

	result, err := Create(sink, Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(result.Schedule) != 2 {
		t.Fatalf("expected two kernels (realize before expand), got %d", len(result.Schedule))
	}
}

// TestRealizeBeforeExpandDisabled is the DONT_REALIZE_EXPAND counterpart
// of TestRealizeBeforeExpand: with the flag set, the same graph fuses back
// down to one kernel since realize_before_view never fires.
func TestRealizeBeforeExpandDisabled(t *testing.T) {
	uop.ResetInterner()

	st := shapetracker.FromShape([]int{4})
	x := uop.NewBuffer("CPU", 4, uop.Float32)
	loadX := uop.NewLoad(x, uop.ToUOp(st))
	viewedLoad := loadX.View(st)
	squared := viewedLoad.Alu(uop.Mul, viewedLoad)

	expandSt := shapetracker.ShapeTracker{
		Views: []shapetracker.View{shapetracker.Create([]int{4, 3}, []int{1, 0}, 0, nil)},
	}
	expanded := squared.View(expandSt)

	out := uop.NewBuffer("CPU", 12, uop.Float32)
	outSt := shapetracker.FromShape([]int{4, 3})
	store := uop.NewStore(out, uop.ToUOp(outSt), expanded)
	sink := uop.NewSink(store)

	result, err := Create(sink, Options{Flags: schedconf.Flags{DontRealizeExpand: true}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(result.Schedule) != 1 {
		t.Fatalf("expected one kernel with DONT_REALIZE_EXPAND set, got %d", len(result.Schedule))
	}
}

// TestArangeFusion is spec.md §8 scenario 6: a REDUCE_AXIS(Add) over a
// Const feeding two separate stores would normally realize once (the
// fan-out rule) and be shared between them; with FUSE_ARANGE set it's
// un-realized instead; since it's an unmasked Const reduction,
// fold_const_reduce then folds it away entirely in each consumer, leaving
// exactly one kernel per store and none for the reduce itself.
func TestArangeFusion(t *testing.T) {
	uop.ResetInterner()

	c := uop.NewConst(uop.Float32, 3, "CPU", []int{8})
	reduced := c.Reduce(uop.Add, []int{0})

	one := uop.NewConst(uop.Float32, 1, "CPU", []int{1})
	val1 := reduced.Alu(uop.Add, one)
	out1 := uop.NewBuffer("CPU", 1, uop.Float32)
	store1 := uop.NewStore(out1, uop.ToUOp(shapetracker.FromShape([]int{1})), val1)

	two := uop.NewConst(uop.Float32, 2, "CPU", []int{1})
	val2 := reduced.Alu(uop.Mul, two)
	out2 := uop.NewBuffer("CPU", 1, uop.Float32)
	store2 := uop.NewStore(out2, uop.ToUOp(shapetracker.FromShape([]int{1})), val2)

	sink := uop.NewSink(store1, store2)

	result, err := Create(sink, Options{Flags: schedconf.Flags{FuseArange: true}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(result.Schedule) != 2 {
		t.Fatalf("expected two kernels (reduce fused away), got %d", len(result.Schedule))
	}
}
