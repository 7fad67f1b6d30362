// Package channel implements the declarative channel routing model used at
// every boundary of the module graph: module output to mix bus, mix bus to
// physical output, physical input to module input. A mapping routes one
// source channel to one or more destination channels; sources absent from
// the mapping route nowhere and produce silence.
package channel

import (
	"errors"
	"fmt"
	"sort"
)

var ErrDestinationRange = errors.New("destination channel out of range")

// Mapping maps a source channel index to its destination channel indices.
// Keys are unique by construction; duplicate destinations collapse.
type Mapping map[int][]int

// Identity returns the mapping {0:0, 1:1, ... n-1:n-1}.
func Identity(n int) Mapping {
	m := make(Mapping, n)
	for i := 0; i < n; i++ {
		m[i] = []int{i}
	}
	return m
}

// Table is a resolved routing table: Table[src] lists the destinations of
// source channel src, deduplicated and sorted. An empty entry means the
// source channel is dropped.
type Table [][]int

// Resolve turns a declared mapping into a dense routing table covering every
// source channel in [0, sourceCount). Source indices outside the range and
// negative indices are rejected, as are destinations outside
// [0, destCount). An unmapped source yields an empty destination list.
func (m Mapping) Resolve(sourceCount, destCount int) (Table, error) {
	table := make(Table, sourceCount)
	for src, dsts := range m {
		if src < 0 || src >= sourceCount {
			return nil, fmt.Errorf("source channel %d outside [0, %d)", src, sourceCount)
		}
		seen := make(map[int]bool, len(dsts))
		var out []int
		for _, d := range dsts {
			if d < 0 || d >= destCount {
				return nil, fmt.Errorf("source channel %d: destination %d outside [0, %d): %w",
					src, d, destCount, ErrDestinationRange)
			}
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
		sort.Ints(out)
		table[src] = out
	}
	return table, nil
}

// Compose chains two resolved tables: the result routes src through a, then
// each intermediate destination through b. A destination reachable through
// several intermediates appears once per path, so applying the composed
// table sums exactly like applying the two stages in sequence.
func Compose(a, b Table) Table {
	out := make(Table, len(a))
	for src, mids := range a {
		var dsts []int
		for _, mid := range mids {
			if mid >= len(b) {
				continue
			}
			dsts = append(dsts, b[mid]...)
		}
		sort.Ints(dsts)
		out[src] = dsts
	}
	return out
}

// Apply mixes src into dst following the table. Destinations sum; dst is not
// cleared first, so fan-in from several sources accumulates.
func (t Table) Apply(src, dst [][]float32) {
	for s, dsts := range t {
		if s >= len(src) {
			break
		}
		in := src[s]
		for _, d := range dsts {
			if d >= len(dst) {
				continue
			}
			out := dst[d]
			n := len(in)
			if len(out) < n {
				n = len(out)
			}
			for i := 0; i < n; i++ {
				out[i] += in[i]
			}
		}
	}
}
