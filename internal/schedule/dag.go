package schedule

import (
	"tensorsched/internal/scherr"
	"tensorsched/internal/uop"
)

// AssembleSchedule is component I: builds the dependency DAG between
// ScheduleItems and returns them in one valid, deterministic execution
// order via FIFO breadth-first topological sort -- the same order every
// time for the same input graph, which is what makes two schedules of
// the same program diffable.
//
// Two edge kinds feed the DAG (spec.md §4.I): for a normal read, whichever
// item writes the buffer must precede the reader; for an assign-preload
// read (the reader needs the buffer's *pre-assign* value), the reader
// must instead precede whichever item writes (assigns) that buffer, so
// the edge direction is reversed relative to a plain read of the same
// buffer.
func AssembleSchedule(items []ScheduleItem) ([]ScheduleItem, error) {
	writer := make(map[*uop.UOp]int, len(items))
	for i, it := range items {
		for _, b := range it.Outputs() {
			writer[b] = i
		}
	}

	indegree := make([]int, len(items))
	dependents := make([][]int, len(items))
	addEdge := func(before, after int) {
		if before == after {
			return
		}
		indegree[after]++
		dependents[before] = append(dependents[before], after)
	}

	for i, it := range items {
		preload := make(map[*uop.UOp]bool, len(it.AssignPreloads))
		seen := make(map[int]bool)
		for _, b := range it.AssignPreloads {
			preload[b] = true
			if j, ok := writer[b]; ok && !seen[j] {
				seen[j] = true
				addEdge(i, j)
			}
		}
		seenRAW := make(map[int]bool)
		for _, b := range it.Inputs() {
			if preload[b] {
				continue
			}
			j, ok := writer[b]
			if !ok || seenRAW[j] {
				continue
			}
			seenRAW[j] = true
			addEdge(j, i)
		}
	}

	queue := make([]int, 0, len(items))
	for i := range items {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]ScheduleItem, 0, len(items))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, items[i])
		for _, j := range dependents[i] {
			indegree[j]--
			if indegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}

	if len(order) != len(items) {
		return nil, scherr.New(scherr.ScheduleCycle, nil, "", "dependency cycle across %d unscheduled kernel(s)", len(items)-len(order))
	}
	return order, nil
}
