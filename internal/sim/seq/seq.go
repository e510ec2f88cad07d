// Package seq holds small combinators over iter.Seq used to merge and
// deduplicate per-observer demand streams.
package seq

import "iter"

// Interleave yields one element from each non-exhausted source in turn.
// A source that runs dry is dropped from the rotation, so no source is
// starved while others still have elements.
func Interleave[T any](sources ...iter.Seq[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		type puller struct {
			next func() (T, bool)
			stop func()
		}
		live := make([]puller, 0, len(sources))
		for _, s := range sources {
			next, stop := iter.Pull(s)
			live = append(live, puller{next: next, stop: stop})
		}
		defer func() {
			for _, p := range live {
				p.stop()
			}
		}()

		for len(live) > 0 {
			for i := 0; i < len(live); {
				v, ok := live[i].next()
				if !ok {
					live[i].stop()
					live = append(live[:i], live[i+1:]...)
					continue
				}
				if !yield(v) {
					return
				}
				i++
			}
		}
	}
}

// Dedup suppresses repeats of elements already yielded, keeping the order of
// first occurrences.
func Dedup[T comparable](s iter.Seq[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		seen := make(map[T]struct{})
		for v := range s {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			if !yield(v) {
				return
			}
		}
	}
}

func Filter[T any](s iter.Seq[T], keep func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		for v := range s {
			if keep(v) && !yield(v) {
				return
			}
		}
	}
}

// Take stops after n elements; n <= 0 yields nothing.
func Take[T any](s iter.Seq[T], n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		if n <= 0 {
			return
		}
		i := 0
		for v := range s {
			if !yield(v) {
				return
			}
			i++
			if i >= n {
				return
			}
		}
	}
}

func FromSlice[T any](xs []T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, v := range xs {
			if !yield(v) {
				return
			}
		}
	}
}
