package schedule

import "tensorsched/internal/uop"

// BuildContext is component F (create_ctx/append_uop): a single toposort
// walk of sink that populates ctx.Children (who reads whom) and
// ctx.Assigns (assign target -> ASSIGN node), the two maps every later
// pass consults instead of re-walking the graph itself.
func BuildContext(ctx *Context, sink *uop.UOp) {
	for _, n := range sink.Toposort() {
		for _, s := range n.Src {
			base := s.Base()
			ctx.Children[base] = append(ctx.Children[base], n)
		}
		if n.Op == uop.Assign {
			target := n.Src[0].Base()
			ctx.Assigns[target] = n
		}
	}
}

// numChildren returns how many distinct parent nodes read base, per the
// children map built by BuildContext.
func (c *Context) numChildren(base *uop.UOp) int {
	seen := make(map[*uop.UOp]bool)
	for _, p := range c.Children[base] {
		seen[p] = true
	}
	return len(seen)
}
