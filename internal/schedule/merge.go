package schedule

import "tensorsched/internal/uop"

// MergeBuffers is component E: when two separately realized values turn
// out to be byte-for-byte the same computation, keep only the first
// buffer and rewrite every reference to the duplicate's buffer onto it,
// dropping the duplicate STORE entirely. Grounded on merge_bufs /
// merge_realized in the original; a cheap post-pass here specifically
// because every UOp is already hash-consed by (Op,DType,Src,Arg), so
// "same computation" reduces to comparing two nodes' interning Key().
//
// combined is a SINK whose first numOutputs sources are the program's
// final STORE/ASSIGN targets (never dropped) and whose remaining sources
// are the intermediate realize STOREs AddBuffers produced (candidates for
// deduplication). MergeBuffers returns the (possibly) rewritten combined
// SINK plus the surviving intermediate STORE nodes, re-read back out of
// that rewritten SINK so they reflect any substitution applied to their
// own subtrees too.
func MergeBuffers(combined *uop.UOp, numOutputs int) (*uop.UOp, []*uop.UOp) {
	intermediates := combined.Src[numOutputs:]
	firstByValue := make(map[string]*uop.UOp)
	remap := make(map[*uop.UOp]*uop.UOp)
	var keepIdx []int
	for i, s := range intermediates {
		buf, _, value := s.Src[0], s.Src[1], s.Src[2]
		if canon, ok := firstByValue[value.Key()]; ok {
			remap[buf] = canon
			continue
		}
		firstByValue[value.Key()] = buf
		keepIdx = append(keepIdx, i)
	}
	rewritten := combined
	if len(remap) > 0 {
		rewritten = substituteBuffers(combined, remap)
	}
	kept := make([]*uop.UOp, len(keepIdx))
	for i, idx := range keepIdx {
		kept[i] = rewritten.Src[numOutputs+idx]
	}
	return rewritten, kept
}

func substituteBuffers(sink *uop.UOp, remap map[*uop.UOp]*uop.UOp) *uop.UOp {
	order := sink.Toposort()
	cache := make(map[*uop.UOp]*uop.UOp, len(order))
	for _, n := range order {
		if n.Op == uop.Buffer {
			if canon, ok := remap[n]; ok {
				cache[n] = canon
				continue
			}
		}
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
		cache[n] = cur
	}
	return cache[sink]
}
