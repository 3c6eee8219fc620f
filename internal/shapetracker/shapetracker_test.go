package shapetracker

import (
	"reflect"
	"testing"
)

func TestFromShapeIsContiguous(t *testing.T) {
	st := FromShape([]int{2, 3, 4})
	if !st.Contiguous() {
		t.Fatalf("freshly built ShapeTracker should be contiguous")
	}
	if got, want := st.Shape(), []int{2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("Shape() = %v, want %v", got, want)
	}
	if got, want := st.Size(), 24; got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}

func TestSimplifyCollapsesContiguousReshape(t *testing.T) {
	st := FromShape([]int{2, 3})
	reshaped := st.Add(Create([]int{6}, StridesForShape([]int{6}), 0, nil))
	simplified := reshaped.Simplify()
	if len(simplified.Views) != 1 {
		t.Fatalf("expected a single collapsed view, got %d", len(simplified.Views))
	}
	if got, want := simplified.Shape(), []int{6}; !reflect.DeepEqual(got, want) {
		t.Errorf("Shape() = %v, want %v", got, want)
	}
}

func TestUnbindExtractsVarValues(t *testing.T) {
	v := &Var{Name: "i", Min: 0, Max: 10}
	view := View{Shape: []Dim{V(v, 4), C(3)}, Strides: []int{3, 1}}
	st := ShapeTracker{Views: []View{view}}

	unbound, vals := st.Unbind()
	if vals["i"] != 4 {
		t.Errorf("expected i=4, got %v", vals)
	}
	if unbound.Shape()[0] != 4 {
		t.Errorf("unbound shape[0] = %d, want 4", unbound.Shape()[0])
	}
	if unbound.Views[0].Shape[0].IsSymbolic() {
		t.Errorf("unbound ShapeTracker should carry no symbolic dims")
	}
}

func TestInvertRecoversPermutation(t *testing.T) {
	base := []int{2, 3}
	baseStrides := StridesForShape(base)
	permuted := ShapeTracker{Views: []View{Create([]int{3, 2}, []int{baseStrides[1], baseStrides[0]}, 0, nil)}}

	inv, ok := permuted.Invert(base)
	if !ok {
		t.Fatalf("Invert should succeed for a pure permutation")
	}
	if got, want := inv.Shape(), []int{2, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("Invert().Shape() = %v, want %v", got, want)
	}
}

func TestInvertRejectsMasked(t *testing.T) {
	st := ShapeTracker{Views: []View{{
		Shape:   dims([]int{2, 2}),
		Strides: []int{2, 1},
		Mask:    [][2]int{{0, 1}, {0, 2}},
	}}}
	if _, ok := st.Invert([]int{2, 2}); ok {
		t.Errorf("Invert should refuse a masked view rather than guess")
	}
}
