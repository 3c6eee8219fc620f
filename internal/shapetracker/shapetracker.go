package shapetracker

import "fmt"

// ShapeTracker is an immutable stack of Views; composition appends a view
// and algebraic simplification collapses the stack where possible.
type ShapeTracker struct {
	Views []View
}

// FromShape builds a contiguous single-view ShapeTracker over shape.
func FromShape(shape []int) ShapeTracker {
	return ShapeTracker{Views: []View{Create(shape, StridesForShape(shape), 0, nil)}}
}

func (st ShapeTracker) last() View { return st.Views[len(st.Views)-1] }

// Shape returns the logical (outermost) shape.
func (st ShapeTracker) Shape() []int { return st.last().IntShape() }

// Size returns the logical element count.
func (st ShapeTracker) Size() int { return st.last().size() }

// Mask returns the outermost view's mask, or nil.
func (st ShapeTracker) Mask() [][2]int { return st.last().Mask }

// Contiguous reports whether the whole stack reduces to a single
// contiguous, unmasked, zero-offset view over its shape.
func (st ShapeTracker) Contiguous() bool {
	return len(st.Views) == 1 && st.last().contiguous()
}

// Add composes st with a following view (the "outer" transform), matching
// the original's ShapeTracker.__add__ / View addition. This implementation
// keeps the stack rather than eagerly folding views, relying on Simplify
// to collapse it -- acceptable since every caller in this scheduler
// eventually calls Simplify before depending on a single-view shape.
func (st ShapeTracker) Add(outer View) ShapeTracker {
	views := make([]View, len(st.Views), len(st.Views)+1)
	copy(views, st.Views)
	views = append(views, outer)
	return ShapeTracker{Views: views}
}

// Compose appends another ShapeTracker's views on top of st.
func (st ShapeTracker) Compose(other ShapeTracker) ShapeTracker {
	views := make([]View, 0, len(st.Views)+len(other.Views))
	views = append(views, st.Views...)
	views = append(views, other.Views...)
	return ShapeTracker{Views: views}
}

// Simplify collapses adjacent views where the outer view is a pure,
// unmasked reshape/passthrough of the inner one (same element count,
// both contiguous), leaving the chain at its shortest equivalent form.
// This mirrors (a simplified form of) ShapeTracker.simplify.
func (st ShapeTracker) Simplify() ShapeTracker {
	if len(st.Views) <= 1 {
		return st
	}
	views := make([]View, 0, len(st.Views))
	views = append(views, st.Views[0])
	for _, v := range st.Views[1:] {
		prev := views[len(views)-1]
		if prev.contiguous() && v.contiguous() && prev.size() == v.size() {
			// Pure reshape of a contiguous buffer: keep only the outer
			// (final) shape, since strides are standard either way.
			views[len(views)-1] = v
			continue
		}
		views = append(views, v)
	}
	return ShapeTracker{Views: views}
}

// Unbind strips the Var from every symbolic dimension in st, returning the
// fully-concrete ShapeTracker plus the variable bindings it carried. This
// is what populates ScheduleContext.var_vals during kernel lowering
// (spec.md §4.H, pass 3).
func (st ShapeTracker) Unbind() (ShapeTracker, map[string]int) {
	varVals := make(map[string]int)
	views := make([]View, len(st.Views))
	for i, v := range st.Views {
		shape := make([]Dim, len(v.Shape))
		for j, d := range v.Shape {
			if d.IsSymbolic() {
				varVals[d.Var.Name] = d.Value
				shape[j] = C(d.Value)
			} else {
				shape[j] = d
			}
		}
		views[i] = View{Shape: shape, Strides: v.Strides, Offset: v.Offset, Mask: v.Mask}
	}
	return ShapeTracker{Views: views}, varVals
}

// Invert attempts to compute the inverse of st's outermost view given the
// shape it was applied over, supporting only pure permutations (the case
// exercised by the scheduler's found_contiguous rewrite, spec.md §4.D).
// It returns ok=false for anything else rather than guessing.
func (st ShapeTracker) Invert(baseShape []int) (ShapeTracker, bool) {
	if len(st.Views) != 1 {
		return ShapeTracker{}, false
	}
	v := st.last()
	if v.Mask != nil || v.Offset != 0 {
		return ShapeTracker{}, false
	}
	perm, ok := permutationOf(baseShape, v.IntShape(), v.Strides)
	if !ok {
		return ShapeTracker{}, false
	}
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	// invShape recovers baseShape by reading back through v's own shape,
	// not baseShape again: baseShape[j] == v.Shape[inv[j]] for every j.
	vShape := v.IntShape()
	invShape := make([]int, len(baseShape))
	for i, p := range inv {
		invShape[i] = vShape[p]
	}
	return ShapeTracker{Views: []View{Create(invShape, StridesForShape(invShape), 0, nil)}}, true
}

// permutationOf recovers the axis permutation that turns baseShape's
// standard strides into the given (shape,strides), if one exists.
func permutationOf(baseShape, shape, strides []int) ([]int, bool) {
	if len(baseShape) != len(shape) {
		return nil, false
	}
	baseStrides := StridesForShape(baseShape)
	perm := make([]int, len(shape))
	used := make([]bool, len(baseShape))
	for i := range shape {
		found := -1
		for j := range baseShape {
			if used[j] {
				continue
			}
			if baseShape[j] == shape[i] && baseStrides[j] == strides[i] {
				found = j
				break
			}
		}
		if found == -1 {
			return nil, false
		}
		used[found] = true
		perm[i] = found
	}
	return perm, true
}

// Permute returns st with an additional permutation view applied.
func (st ShapeTracker) Permute(order []int) ShapeTracker {
	shape := st.Shape()
	strides := st.last().Strides
	newShape := make([]int, len(order))
	newStrides := make([]int, len(order))
	for i, o := range order {
		newShape[i] = shape[o]
		newStrides[i] = strides[o]
	}
	return st.Add(Create(newShape, newStrides, st.last().Offset, nil))
}

// Reduce returns the shape obtained by collapsing the given axes to 1,
// used by the scheduler's swizzle_r and reduce-folding rules to compute a
// reduce's output shape.
func (st ShapeTracker) Reduce(axes []int) []int {
	shape := st.Shape()
	out := make([]int, len(shape))
	copy(out, shape)
	for _, a := range axes {
		out[a] = 1
	}
	return out
}

// Shrink applies a [lo,hi) mask to st's outermost dimensions.
func (st ShapeTracker) Shrink(mask [][2]int) ShapeTracker {
	shape := st.Shape()
	newShape := make([]int, len(shape))
	offsetDelta := 0
	strides := st.last().Strides
	for i, m := range mask {
		newShape[i] = m[1] - m[0]
		offsetDelta += m[0] * strides[i]
	}
	return st.Add(Create(newShape, strides, st.last().Offset+offsetDelta, nil))
}

func (st ShapeTracker) Equal(other ShapeTracker) bool {
	if len(st.Views) != len(other.Views) {
		return false
	}
	for i := range st.Views {
		if fmt.Sprintf("%v", st.Views[i]) != fmt.Sprintf("%v", other.Views[i]) {
			return false
		}
	}
	return true
}

func (st ShapeTracker) String() string {
	return fmt.Sprintf("ShapeTracker%v", st.Views)
}
