package schedule

import (
	"testing"

	"tensorsched/internal/shapetracker"
	"tensorsched/internal/uop"
)

// item builds a minimal ScheduleItem writing `out` and reading `inputs`,
// for exercising AssembleSchedule's edge construction in isolation from
// the rest of the pipeline.
func item(out *uop.UOp, inputs []*uop.UOp, preloads []*uop.UOp) ScheduleItem {
	st := shapetracker.FromShape([]int{1})
	bufs := []*uop.UOp{out}
	bufs = append(bufs, inputs...)
	ast := uop.NewSink(uop.NewStore(uop.NewDefineGlobal(out.DType, 0), uop.ToUOp(st), uop.NewDefineGlobal(out.DType, 0)))
	return ScheduleItem{AST: ast, Bufs: bufs, AssignPreloads: preloads}
}

func TestAssembleScheduleOrdersWriterBeforeReader(t *testing.T) {
	uop.ResetInterner()
	a := uop.NewBuffer("CPU", 4, uop.Float32)
	b := uop.NewBuffer("CPU", 4, uop.Float32)

	writer := item(a, nil, nil)
	reader := item(b, []*uop.UOp{a}, nil)

	ordered, err := AssembleSchedule([]ScheduleItem{reader, writer})
	if err != nil {
		t.Fatalf("AssembleSchedule: %v", err)
	}
	if len(ordered) != 2 {
		t.Fatalf("expected 2 items, got %d", len(ordered))
	}
	if ordered[0].Outputs()[0] != a {
		t.Fatalf("expected the writer of %v to be scheduled first", a)
	}
}

func TestAssembleScheduleReversesEdgeForAssignPreload(t *testing.T) {
	uop.ResetInterner()
	b := uop.NewBuffer("CPU", 4, uop.Float32)
	c := uop.NewBuffer("CPU", 4, uop.Float32)

	// assigner writes b; preReader must see b's pre-assign value, so it
	// must run BEFORE assigner despite assigner "writing" the buffer it
	// reads.
	assigner := item(b, nil, nil)
	preReader := item(c, []*uop.UOp{b}, []*uop.UOp{b})

	ordered, err := AssembleSchedule([]ScheduleItem{assigner, preReader})
	if err != nil {
		t.Fatalf("AssembleSchedule: %v", err)
	}
	if ordered[0].Outputs()[0] != c {
		t.Fatalf("expected the assign-preload reader of %v to run first, got schedule writing %v first", b, ordered[0].Outputs()[0])
	}
}

func TestAssembleScheduleDetectsCycle(t *testing.T) {
	uop.ResetInterner()
	a := uop.NewBuffer("CPU", 4, uop.Float32)
	b := uop.NewBuffer("CPU", 4, uop.Float32)

	itemA := item(a, []*uop.UOp{b}, nil)
	itemB := item(b, []*uop.UOp{a}, nil)

	if _, err := AssembleSchedule([]ScheduleItem{itemA, itemB}); err == nil {
		t.Fatalf("expected a schedule-cycle error")
	}
}
