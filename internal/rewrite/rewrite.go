// Package rewrite implements the graph-rewrite engine: an ordered rule
// set (Matcher) applied to a UOp DAG to a fixed point (GraphRewrite).
//
// spec.md §9 describes this as a decision trie keyed on opcode; this
// implementation keeps that dispatch-by-opcode idea (a map[Op][]Rule) but
// expresses each rule as a plain Go closure rather than a separate pattern
// tree type, matching the teacher's style of opcode-keyed switches
// (internal/compiler/compiler.go's VisitXExpr methods, bytecode.OpCode
// dispatch) over a bespoke matcher DSL. Rules return nil for "no change",
// exactly like tinygrad's PatternMatcher entries returning None.
package rewrite

import "tensorsched/internal/uop"

// Rule is one rewrite rule. Ops restricts which opcodes the rule is even
// tried against (nil/empty means it is tried for every opcode, a
// "wildcard" rule). Fn returns nil to signal
// "no match", or the node's replacement.
type Rule[C any] struct {
	Name string
	Ops  []uop.Op
	Fn   func(ctx C, n *uop.UOp) *uop.UOp
}

// Matcher is an ordered rule set, dispatched by opcode for efficiency
// (mirrors PatternMatcher in the original).
type Matcher[C any] struct {
	byOp map[uop.Op][]Rule[C]
	wild []Rule[C]
}

// New builds a Matcher from rules, preserving relative order within each
// opcode bucket and within the wildcard bucket.
func New[C any](rules ...Rule[C]) *Matcher[C] {
	m := &Matcher[C]{byOp: make(map[uop.Op][]Rule[C])}
	for _, r := range rules {
		if len(r.Ops) == 0 {
			m.wild = append(m.wild, r)
			continue
		}
		for _, op := range r.Ops {
			m.byOp[op] = append(m.byOp[op], r)
		}
	}
	return m
}

// Combine concatenates m with others, in order -- matching the original's
// `PatternMatcher + PatternMatcher` ruleset-union operator.
func Combine[C any](ms ...*Matcher[C]) *Matcher[C] {
	out := &Matcher[C]{byOp: make(map[uop.Op][]Rule[C])}
	for _, m := range ms {
		for op, rs := range m.byOp {
			out.byOp[op] = append(out.byOp[op], rs...)
		}
		out.wild = append(out.wild, m.wild...)
	}
	return out
}

// apply tries every rule applicable to n.Op (opcode-specific rules first,
// then wildcard rules, each in registration order) and returns the first
// non-nil replacement, or nil if none matched.
func (m *Matcher[C]) apply(ctx C, n *uop.UOp) *uop.UOp {
	for _, r := range m.byOp[n.Op] {
		if out := r.Fn(ctx, n); out != nil {
			return out
		}
	}
	for _, r := range m.wild {
		if out := r.Fn(ctx, n); out != nil {
			return out
		}
	}
	return nil
}

// GraphRewrite applies m to root's whole DAG to a fixed point: children
// are rewritten before parents (post-order), and each node is repeatedly
// matched against m until no rule fires, mirroring tinygrad's
// graph_rewrite. The traversal is iterative (an explicit worklist via
// UOp.Toposort) rather than recursive, per spec.md §9's recursion-depth
// guidance.
func GraphRewrite[C any](root *uop.UOp, m *Matcher[C], ctx C) *uop.UOp {
	order := root.Toposort()
	cache := make(map[*uop.UOp]*uop.UOp, len(order))
	for _, n := range order {
		newSrc := make([]*uop.UOp, len(n.Src))
		changed := false
		for i, s := range n.Src {
			rs := cache[s]
			newSrc[i] = rs
			if rs != s {
				changed = true
			}
		}
		cur := n
		if changed {
			cur = n.Replace(uop.WithSrc(newSrc))
		}
		for {
			out := m.apply(ctx, cur)
			if out == nil {
				break
			}
			cur = out
		}
		cache[n] = cur
	}
	return cache[root]
}
