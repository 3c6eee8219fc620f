// Package metadata carries front-end provenance information (which
// high-level tensor op produced a fused instruction) through scheduling,
// for attaching to emitted ScheduleItems.
package metadata

import "golang.org/x/exp/slices"

// Metadata is a value-equal provenance tuple attached to UOps as they
// enter the scheduler, and later deduplicated onto each ScheduleItem.
type Metadata struct {
	Name string
	Caller string
	Backward bool
}

// Dedup returns ms with duplicate (by value) entries removed, preserving
// first-occurrence order -- mirroring tinygrad's dedup() helper, used here
// via golang.org/x/exp/slices rather than a hand-rolled set since the
// package is already part of this module's dependency graph.
func Dedup(ms []Metadata) []Metadata {
	out := make([]Metadata, 0, len(ms))
	for _, m := range ms {
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}
