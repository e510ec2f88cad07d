package seq

import (
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterleaveRoundRobin(t *testing.T) {
	got := slices.Collect(Interleave(
		FromSlice([]int{1, 2, 3}),
		FromSlice([]int{10}),
		FromSlice([]int{100, 200}),
	))
	assert.Equal(t, []int{1, 10, 100, 2, 200, 3}, got)
}

func TestInterleaveEmpty(t *testing.T) {
	assert.Empty(t, slices.Collect(Interleave[int]()))
	assert.Empty(t, slices.Collect(Interleave(FromSlice([]int{}), FromSlice([]int(nil)))))
}

func TestInterleaveFairness(t *testing.T) {
	lengths := []int{7, 2, 5, 1}
	var sources []iter.Seq[int]
	for src, n := range lengths {
		xs := make([]int, n)
		for i := range xs {
			xs[i] = src
		}
		sources = append(sources, FromSlice(xs))
	}
	var all []int
	for v := range Interleave(sources...) {
		all = append(all, v)
	}
	assert.Len(t, all, 15)

	n := len(lengths)
	for k := 1; k*n <= len(all); k++ {
		counts := make([]int, n)
		for _, v := range all[:n*k] {
			counts[v]++
		}
		for src, l := range lengths {
			assert.GreaterOrEqual(t, counts[src], min(k, l), "k=%d source=%d", k, src)
		}
	}
}

func TestInterleaveEarlyStop(t *testing.T) {
	got := slices.Collect(Take(Interleave(FromSlice([]int{1, 2}), FromSlice([]int{3, 4})), 3))
	assert.Equal(t, []int{1, 3, 2}, got)
}

func TestDedupKeepsFirstOccurrenceOrder(t *testing.T) {
	in := []string{"b", "a", "b", "c", "a", "d", "c"}
	got := slices.Collect(Dedup(FromSlice(in)))
	assert.Equal(t, []string{"b", "a", "c", "d"}, got)

	seen := map[string]bool{}
	for _, v := range got {
		assert.False(t, seen[v], "repeated %q", v)
		seen[v] = true
	}
}

func TestFilterAndTake(t *testing.T) {
	even := func(v int) bool { return v%2 == 0 }
	got := slices.Collect(Take(Filter(FromSlice([]int{1, 2, 3, 4, 5, 6, 8}), even), 3))
	assert.Equal(t, []int{2, 4, 6}, got)
	assert.Empty(t, slices.Collect(Take(FromSlice([]int{1}), 0)))
}
