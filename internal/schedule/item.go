package schedule

import (
	"sort"

	"tensorsched/internal/metadata"
	"tensorsched/internal/uop"
)

// ScheduleItem is one kernel: a lowered AST (a SINK of STOREs, addressing
// buffers only through DEFINE_GLOBAL) plus the concrete buffers it
// touches, indexed by DEFINE_GLOBAL index, and the provenance metadata
// carried forward from the tensors that produced it.
type ScheduleItem struct {
	AST      *uop.UOp
	Bufs     []*uop.UOp
	Metadata []metadata.Metadata
	// AssignPreloads lists buffers this kernel reads in pre-assign mode:
	// cross-kernel dependencies that must be realized by whichever kernel
	// reads them *before* any kernel that assigns into them runs (spec.md
	// §3's ScheduleContext.assigns / §4.H's PRELOAD semantics).
	AssignPreloads []*uop.UOp
}

// OutputIdxs returns, in ascending order, the Bufs indices this item
// writes to (every buffer addressed by a top-level STORE in AST).
func (si ScheduleItem) OutputIdxs() []int {
	seen := make(map[int]bool)
	var idxs []int
	for _, s := range si.AST.Src {
		if s.Op != uop.Store {
			continue
		}
		idx, ok := s.Src[0].Arg.(int)
		if !ok || seen[idx] {
			continue
		}
		seen[idx] = true
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	return idxs
}

// Outputs returns the buffers this item writes to.
func (si ScheduleItem) Outputs() []*uop.UOp {
	idxs := si.OutputIdxs()
	out := make([]*uop.UOp, len(idxs))
	for i, idx := range idxs {
		out[i] = si.Bufs[idx]
	}
	return out
}

// Inputs returns the buffers this item only reads.
func (si ScheduleItem) Inputs() []*uop.UOp {
	outSet := make(map[int]bool)
	for _, idx := range si.OutputIdxs() {
		outSet[idx] = true
	}
	var in []*uop.UOp
	for i, b := range si.Bufs {
		if !outSet[i] {
			in = append(in, b)
		}
	}
	return in
}
