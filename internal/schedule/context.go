// Package schedule implements the scheduling pipeline (spec.md §4): from a
// validated Tensor-IR Sink to an ordered list of ScheduleItem kernels.
package schedule

import (
	"tensorsched/internal/metadata"
	"tensorsched/internal/schedconf"
	"tensorsched/internal/uop"
)

// Context carries the mutable state threaded through components C-J: the
// children/assigns/allbufs maps the grouper and lowering passes consult,
// plus the variable bindings and metadata accumulated along the way.
// Grounded on schedule.py's ScheduleContext dataclass; kept as one struct
// passed by pointer (rather than several free-floating maps) to match the
// teacher's habit of bundling pass state into one *Context receiver
// (internal/compiler/compiler.go's Compiler struct).
type Context struct {
	Flags  schedconf.Flags
	Logger *schedconf.Logger

	// Children maps a realized base UOp to the ops that read it.
	Children map[*uop.UOp][]*uop.UOp
	// Realizes is the set of base UOps chosen for realization by
	// component D/G (do_realize, group_realizes).
	Realizes map[*uop.UOp]bool
	// Assigns maps an ASSIGN's target buffer to the ASSIGN node.
	Assigns map[*uop.UOp]*uop.UOp
	// AllBufs maps a realized base UOp to the View(Buffer,...) node it is
	// first seen wrapped in, used to dedup multiple views of one buffer.
	AllBufs map[*uop.UOp]*uop.UOp
	// Metadata maps a base UOp to the provenance tags attached to it.
	Metadata map[*uop.UOp][]metadata.Metadata
	// VarVals accumulates the concrete bindings unbound from symbolic
	// ShapeTrackers during lowering (component H, pass 3).
	VarVals map[string]int
	// Becomes records UOps rewritten by do_realize/group_realizes that
	// downstream tensor-level code should substitute in (spec.md's
	// became_map output).
	Becomes map[*uop.UOp]*uop.UOp
	// ReduceForOp maps a base UOp inside a fusion group back to the
	// REDUCE_AXIS node that group fuses into, populated by
	// recursiveGroup/buildGroup (component G's reduce_for_op).
	ReduceForOp map[*uop.UOp]*uop.UOp
	// Contiguous maps a base UOp to the permuted CONTIGUOUS-forced VIEW
	// already registered for it, so a later sibling CONTIGUOUS over the
	// same base and permutation can adopt it instead of registering its
	// own (found_contiguous/replace_contiguous).
	Contiguous map[*uop.UOp]*uop.UOp
}

// NewContext builds an empty scheduling context for one create_schedule
// invocation.
func NewContext(flags schedconf.Flags) *Context {
	return &Context{
		Flags:       flags,
		Logger:      schedconf.NewLogger(flags),
		Children:    make(map[*uop.UOp][]*uop.UOp),
		Realizes:    make(map[*uop.UOp]bool),
		Assigns:     make(map[*uop.UOp]*uop.UOp),
		AllBufs:     make(map[*uop.UOp]*uop.UOp),
		Metadata:    make(map[*uop.UOp][]metadata.Metadata),
		VarVals:     make(map[string]int),
		Becomes:     make(map[*uop.UOp]*uop.UOp),
		ReduceForOp: make(map[*uop.UOp]*uop.UOp),
		Contiguous:  make(map[*uop.UOp]*uop.UOp),
	}
}

func (c *Context) addMetadata(base *uop.UOp, m metadata.Metadata) {
	c.Metadata[base] = metadata.Dedup(append(c.Metadata[base], m))
}
