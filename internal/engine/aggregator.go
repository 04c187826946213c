package engine

import (
	"runtime"
	"sort"
	"sync"
)

// GroupStat aggregates the rows sharing one value of a column.
type GroupStat struct {
	Key       string
	Value     any
	Count     int
	TargetSum float64
	First     int // row of first appearance
}

// Mean is the average target over the group.
func (g GroupStat) Mean() float64 {
	if g.Count == 0 {
		return 0
	}
	return g.TargetSum / float64(g.Count)
}

// minRowsPerWorker keeps small tables on a single goroutine.
const minRowsPerWorker = 1 << 14

// Group splits col into value groups, summing target per group. target may be
// nil for plain counting; use, when non-nil, excludes rows marked false. Null
// values form no group. Groups come back in first-appearance order.
func Group(col *Column, target []float64, use []bool) []GroupStat {
	n := col.Len()

	// 1. Setup Workers
	numWorkers := runtime.NumCPU()
	if limit := n / minRowsPerWorker; limit < numWorkers {
		numWorkers = limit
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	chunkSize := n / numWorkers

	type partialAgg struct {
		pos    map[string]int
		groups []GroupStat
	}
	partials := make([]*partialAgg, numWorkers)
	var wg sync.WaitGroup

	// 2. Parallel Loop
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if w == numWorkers-1 {
			end = n
		}

		wg.Add(1)
		go func(w, s, e int) {
			defer wg.Done()
			p := &partialAgg{pos: make(map[string]int)}
			for i := s; i < e; i++ {
				if use != nil && !use[i] {
					continue
				}
				key, ok := col.Key(i)
				if !ok {
					continue
				}
				gi, seen := p.pos[key]
				if !seen {
					gi = len(p.groups)
					p.pos[key] = gi
					p.groups = append(p.groups, GroupStat{Key: key, Value: col.Value(i), First: i})
				}
				p.groups[gi].Count++
				if target != nil {
					p.groups[gi].TargetSum += target[i]
				}
			}
			partials[w] = p
		}(w, start, end)
	}
	wg.Wait()

	// 3. Merge Phase. Chunks are contiguous, so merging in worker order keeps
	// first-appearance order.
	pos := make(map[string]int)
	var out []GroupStat
	for _, p := range partials {
		for _, g := range p.groups {
			if gi, ok := pos[g.Key]; ok {
				out[gi].Count += g.Count
				out[gi].TargetSum += g.TargetSum
				continue
			}
			pos[g.Key] = len(out)
			out = append(out, g)
		}
	}
	return out
}

// ValueCounts returns the non-null values of col by descending count, ties in
// first-appearance order.
func ValueCounts(col *Column) []GroupStat {
	groups := Group(col, nil, nil)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Count > groups[j].Count })
	return groups
}
