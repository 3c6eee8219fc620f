// Package uop implements the scheduler's universal IR node: a hash-consed,
// value-equal tagged union over a closed opcode enumeration.
package uop

import "math"

// Op is the closed opcode enumeration for the tensor IR. It mirrors the
// shape of bytecode.OpCode in the compiler this scheduler was adapted
// from: a single flat iota block, grouped by feature with blank-line
// separators, rather than one Go type per opcode family.
type Op int

const (
	Device Op = iota
	Buffer
	View
	Const
	Bind
	DefineVar
	DefineGlobal
	Load
	Preload
	Store
	Sink
	Assign
	Contiguous
	Detach
	Copy
	BufferView
	ReduceAxis
	Cast
	Bitcast

	// ALU group: binary and unary arithmetic/logic ops that participate in
	// elementwise fusion. Kept together so GroupOp.ALU-style membership
	// checks are a single contiguous range test.
	aluStart
	Add
	Sub
	Mul
	Div
	Mod
	Neg
	Recip
	Max
	Min
	CmpLt
	CmpNe
	CmpEq
	Where
	And
	Or
	Xor
	Shl
	Shr
	Sqrt
	Exp2
	Log2
	Sin
	aluEnd

	// Movement ops: pure shape/layout transforms, never elementwise
	// computation. Always rewritten to apply directly to a node's base.
	movementStart
	Reshape
	Permute
	Expand
	Pad
	Shrink
	Stride
	movementEnd
)

var opNames = map[Op]string{
	Device: "DEVICE", Buffer: "BUFFER", View: "VIEW", Const: "CONST",
	Bind: "BIND", DefineVar: "DEFINE_VAR", DefineGlobal: "DEFINE_GLOBAL",
	Load: "LOAD", Preload: "PRELOAD", Store: "STORE", Sink: "SINK",
	Assign: "ASSIGN", Contiguous: "CONTIGUOUS", Detach: "DETACH", Copy: "COPY",
	BufferView: "BUFFER_VIEW", ReduceAxis: "REDUCE_AXIS", Cast: "CAST", Bitcast: "BITCAST",
	Add: "ADD", Sub: "SUB", Mul: "MUL", Div: "DIV", Mod: "MOD", Neg: "NEG",
	Recip: "RECIP", Max: "MAX", Min: "MIN", CmpLt: "CMPLT", CmpNe: "CMPNE",
	CmpEq: "CMPEQ", Where: "WHERE", And: "AND", Or: "OR", Xor: "XOR",
	Shl: "SHL", Shr: "SHR", Sqrt: "SQRT", Exp2: "EXP2", Log2: "LOG2", Sin: "SIN",
	Reshape: "RESHAPE", Permute: "PERMUTE", Expand: "EXPAND", Pad: "PAD",
	Shrink: "SHRINK", Stride: "STRIDE",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "UNKNOWN"
}

// IsALU reports whether op is a member of the elementwise ALU group.
func (o Op) IsALU() bool { return o > aluStart && o < aluEnd }

// IsMovement reports whether op is a pure layout transform.
func (o Op) IsMovement() bool { return o > movementStart && o < movementEnd }

// ElementwiseViewRightSet is the exact opcode set eligible for
// elementwise_view_right, matched verbatim from the original per spec.md's
// Open Question: ALU ∪ {Cast, Bitcast, Assign, Contiguous, Store}.
func ElementwiseViewRightSet(o Op) bool {
	if o.IsALU() {
		return true
	}
	switch o {
	case Cast, Bitcast, Assign, Contiguous, Store:
		return true
	}
	return false
}

// IdentityElement returns the reduce identity element for op, used when
// folding a ReduceAxis over a size-0 input (spec.md §4.D).
func IdentityElement(op Op) float64 {
	switch op {
	case Add:
		return 0
	case Mul:
		return 1
	case Max:
		return math.Inf(-1)
	default:
		return 0
	}
}
