// Package geometry maps observer positions and view radii to chunk
// coordinates. It has no state; every function is a pure function of its
// inputs.
package geometry

import (
	"iter"
	"math"

	"voxelstream.ai/internal/sim/world/terrain/store"
)

// Vec3d is a continuous world position.
type Vec3d struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ChunkAt returns the chunk column containing pos.
func ChunkAt(pos Vec3d) store.ChunkCoord {
	return store.ChunkOf(int(math.Floor(pos.X)), int(math.Floor(pos.Z)))
}

func DistSq(a, b store.ChunkCoord) int {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return dx*dx + dz*dz
}

// Contains reports whether c lies within radius chunks of center
// (squared Euclidean distance).
func Contains(center, c store.ChunkCoord, radius int) bool {
	if radius < 0 {
		return false
	}
	return DistSq(center, c) <= radius*radius
}

// Viewable yields every chunk within radius of center, ring by ring
// (Chebyshev distance 0, 1, 2, ...), so a consumer that stops early holds the
// closest chunks. Each ring is emitted as its two x-lines and then its two
// z-lines; corners outside the Euclidean radius are skipped.
func Viewable(center store.ChunkCoord, radius int) iter.Seq[store.ChunkCoord] {
	return func(yield func(store.ChunkCoord) bool) {
		if radius < 0 {
			return
		}
		emit := func(x, z int) bool {
			c := store.ChunkCoord{X: x, Z: z}
			if !Contains(center, c, radius) {
				return true
			}
			return yield(c)
		}
		if !emit(center.X, center.Z) {
			return
		}
		for d := 1; d <= radius; d++ {
			for x := center.X - d; x <= center.X+d; x++ {
				if !emit(x, center.Z+d) || !emit(x, center.Z-d) {
					return
				}
			}
			for z := center.Z - d + 1; z < center.Z+d; z++ {
				if !emit(center.X+d, z) || !emit(center.X-d, z) {
					return
				}
			}
		}
	}
}

// ViewableFrom is Viewable around the chunk containing pos.
func ViewableFrom(pos Vec3d, radius int) iter.Seq[store.ChunkCoord] {
	return Viewable(ChunkAt(pos), radius)
}
