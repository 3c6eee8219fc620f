package uop

import (
	"testing"

	"tensorsched/internal/shapetracker"
)

func TestInterningDedupesEqualNodes(t *testing.T) {
	ResetInterner()
	a := New(Add, Float32, nil, nil)
	b := New(Add, Float32, nil, nil)
	if a != b {
		t.Fatalf("expected structurally equal nodes to be the same pointer, got %p != %p", a, b)
	}
}

func TestInterningDistinguishesArg(t *testing.T) {
	ResetInterner()
	a := New(Const, Float32, nil, 1.0)
	b := New(Const, Float32, nil, 2.0)
	if a == b {
		t.Fatalf("expected nodes with different Arg to be distinct")
	}
}

func TestToposortOrdersDependenciesFirst(t *testing.T) {
	ResetInterner()
	leaf := New(Const, Float32, nil, 1.0)
	mid := New(Neg, Float32, []*UOp{leaf}, nil)
	root := New(Add, Float32, []*UOp{leaf, mid}, nil)

	order := root.Toposort()
	pos := make(map[*UOp]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	if pos[leaf] >= pos[mid] {
		t.Errorf("leaf must come before mid: leaf@%d mid@%d", pos[leaf], pos[mid])
	}
	if pos[mid] >= pos[root] {
		t.Errorf("mid must come before root: mid@%d root@%d", pos[mid], pos[root])
	}
	if order[len(order)-1] != root {
		t.Errorf("root must be last in post-order, got %v", order[len(order)-1])
	}
}

func TestToposortVisitsSharedNodeOnce(t *testing.T) {
	ResetInterner()
	shared := New(Const, Float32, nil, 1.0)
	root := New(Add, Float32, []*UOp{shared, shared}, nil)

	count := 0
	for _, n := range root.Toposort() {
		if n == shared {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected shared node to appear once, got %d", count)
	}
}

func TestIsRealizedAndBufUOp(t *testing.T) {
	ResetInterner()
	buf := NewBuffer("CPU", 16, Float32)
	view := buf.View(shapetracker.FromShape([]int{16}))

	if !view.IsRealized() {
		t.Fatalf("expected VIEW(BUFFER) to be realized")
	}
	if got := view.BufUOp(); got != buf {
		t.Fatalf("BufUOp() = %v, want %v", got, buf)
	}

	raw := New(Neg, Float32, []*UOp{buf}, nil)
	if raw.IsRealized() {
		t.Fatalf("expected bare compute node not to be realized")
	}
}
