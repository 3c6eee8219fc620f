package schedule

import (
	"tensorsched/internal/scherr"
	"tensorsched/internal/uop"
)

// ValidateTensorIR is component B: it walks the whole Tensor-IR DAG once
// and rejects any node that already violates the scheduler's structural
// invariants (spec.md §3 invariants 1-3) before any rewriting begins, so
// later passes can assume a well-formed graph instead of re-checking
// arities themselves. Grounded on tensor_uop_spec in the original and on
// the teacher's up-front AST validation in internal/compiler/compiler.go.
func ValidateTensorIR(sink *uop.UOp) error {
	if sink.Op != uop.Sink {
		return scherr.New(scherr.IRSpecViolation, sink, "", "create_schedule requires a SINK root, got %s", sink.Op)
	}
	for _, n := range sink.Toposort() {
		if err := validateNode(n); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(n *uop.UOp) error {
	switch n.Op {
	case uop.Assign:
		if len(n.Src) != 2 {
			return scherr.New(scherr.IRSpecViolation, n, "", "ASSIGN requires exactly 2 sources, got %d", len(n.Src))
		}
		if !n.Src[0].IsRealized() {
			return scherr.New(scherr.IRSpecViolation, n, "", "ASSIGN target must already be realized")
		}
	case uop.Store:
		if len(n.Src) != 3 {
			return scherr.New(scherr.IRSpecViolation, n, "", "STORE requires exactly 3 sources, got %d", len(n.Src))
		}
	case uop.Load, uop.Preload:
		if len(n.Src) != 2 {
			return scherr.New(scherr.IRSpecViolation, n, "", "%s requires exactly 2 sources, got %d", n.Op, len(n.Src))
		}
	case uop.Copy:
		if len(n.Src) != 1 {
			return scherr.New(scherr.IRSpecViolation, n, "", "COPY requires exactly 1 source, got %d", len(n.Src))
		}
		if _, ok := n.Arg.(uop.CopyArg); !ok {
			return scherr.New(scherr.IRSpecViolation, n, "", "COPY requires a CopyArg")
		}
	case uop.BufferView:
		if len(n.Src) != 1 {
			return scherr.New(scherr.IRSpecViolation, n, "", "BUFFER_VIEW requires exactly 1 source, got %d", len(n.Src))
		}
		if _, ok := n.Arg.(uop.BufferViewArg); !ok {
			return scherr.New(scherr.IRSpecViolation, n, "", "BUFFER_VIEW requires a BufferViewArg")
		}
	case uop.View:
		if len(n.Src) > 1 {
			return scherr.New(scherr.IRSpecViolation, n, "", "VIEW requires at most 1 source, got %d", len(n.Src))
		}
	case uop.Buffer:
		if len(n.Src) != 1 || n.Src[0].Op != uop.Device {
			return scherr.New(scherr.IRSpecViolation, n, "", "BUFFER requires exactly 1 DEVICE source")
		}
	case uop.Sink:
		for _, s := range n.Src {
			if s.Op != uop.Store && s.Op != uop.Assign {
				return scherr.New(scherr.IRSpecViolation, n, "", "SINK source must be STORE or ASSIGN, got %s", s.Op)
			}
		}
	}
	return nil
}
