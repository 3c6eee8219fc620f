package schedule

import (
	"tensorsched/internal/scherr"
	"tensorsched/internal/shapetracker"
	"tensorsched/internal/uop"
)

// ValidateAssignCycles is component J: for every ASSIGN in the program,
// its target buffer may only be read back inside its own new-value
// subtree through a PRELOAD (an explicitly pre-ordered read), a contiguous
// view of the target, or a masked view whose shrink matches the assign's
// own target region exactly (the legal `a += a` pattern, spec.md §4.H,
// §7 kind 3; schedule_uop, schedule.py:220-227). A plain LOAD, or any other
// non-contiguous/non-matching view, has no defined read-before-write
// ordering relative to the ASSIGN's own write, so it is rejected as an
// assign cycle rather than silently scheduled wrong.
func ValidateAssignCycles(sink *uop.UOp) error {
	for _, n := range sink.Toposort() {
		if n.Op != uop.Assign {
			continue
		}
		target := n.Src[0].BufUOp()
		if target == nil {
			continue
		}
		targetST, _ := n.Src[0].ST()
		if err := checkSelfRead(n.Src[1], target, targetST); err != nil {
			return err
		}
	}
	return nil
}

func checkSelfRead(value *uop.UOp, target *uop.UOp, targetST shapetracker.ShapeTracker) error {
	for _, n := range value.Toposort() {
		switch n.Op {
		case uop.Preload:
			continue
		case uop.Load:
			if n.Src[0] == target {
				return scherr.New(scherr.AssignCycle, n, "", "assign target read via LOAD instead of PRELOAD")
			}
		case uop.View:
			if len(n.Src) != 1 || n.Src[0] != target {
				continue
			}
			st, ok := n.ST()
			if !ok {
				continue
			}
			if st.Contiguous() || selfReadMatchesTarget(st, targetST) {
				continue
			}
			return scherr.New(scherr.NonContiguousSelfAssign, n, "", "assign target referenced directly inside its own new value")
		}
	}
	return nil
}

// selfReadMatchesTarget reports whether st is a masked view whose shrink
// spans exactly the assign's own target region (targetST): reading
// through the identical crop that's being written is safe even though the
// view itself isn't contiguous, since the read and write regions coincide
// rather than alias.
func selfReadMatchesTarget(st, targetST shapetracker.ShapeTracker) bool {
	mask := st.Mask()
	if mask == nil {
		return false
	}
	targetShape := targetST.Shape()
	if len(mask) != len(targetShape) {
		return false
	}
	for i, m := range mask {
		if m[1]-m[0] != targetShape[i] {
			return false
		}
	}
	return true
}
