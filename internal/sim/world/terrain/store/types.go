package store

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

const (
	ChunkSizeX = 16
	ChunkSizeZ = 16
)

// ChunkCoord addresses one 16x16 column of the world.
type ChunkCoord struct {
	X int
	Z int
}

func (c ChunkCoord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Z) }

// ChunkOf returns the column containing block (bx, bz).
func ChunkOf(bx, bz int) ChunkCoord {
	return ChunkCoord{X: FloorDiv(bx, ChunkSizeX), Z: FloorDiv(bz, ChunkSizeZ)}
}

// LocalOf returns the in-chunk offset of block (bx, bz).
func LocalOf(bx, bz int) (lx, lz int) {
	return Mod(bx, ChunkSizeX), Mod(bz, ChunkSizeZ)
}

type Chunk struct {
	Coord  ChunkCoord
	Height int
	Blocks []uint16 // len = 16*16*Height, index x + z*16 + y*256

	// Viewed is set while some observer has the chunk inside its declared radius.
	Viewed bool

	dirty bool
	hash  [32]byte
}

func NewChunk(coord ChunkCoord, height int) *Chunk {
	if height <= 0 {
		height = 1
	}
	return &Chunk{
		Coord:  coord,
		Height: height,
		Blocks: make([]uint16, ChunkSizeX*ChunkSizeZ*height),
		dirty:  true,
	}
}

func (c *Chunk) InBounds(x, y, z int) bool {
	return x >= 0 && x < ChunkSizeX && z >= 0 && z < ChunkSizeZ && y >= 0 && y < c.Height
}

func (c *Chunk) index(x, y, z int) int {
	return x + z*ChunkSizeX + y*ChunkSizeX*ChunkSizeZ
}

// Get returns 0 (air) outside the chunk.
func (c *Chunk) Get(x, y, z int) uint16 {
	if !c.InBounds(x, y, z) {
		return 0
	}
	return c.Blocks[c.index(x, y, z)]
}

// Set reports false when (x, y, z) is outside the chunk.
func (c *Chunk) Set(x, y, z int, b uint16) bool {
	if !c.InBounds(x, y, z) {
		return false
	}
	i := c.index(x, y, z)
	if c.Blocks[i] != b {
		c.Blocks[i] = b
		c.dirty = true
	}
	return true
}

// Clone returns a detached copy safe to hand to another goroutine.
func (c *Chunk) Clone() *Chunk {
	blocks := make([]uint16, len(c.Blocks))
	copy(blocks, c.Blocks)
	return &Chunk{
		Coord:  c.Coord,
		Height: c.Height,
		Blocks: blocks,
		Viewed: c.Viewed,
		dirty:  c.dirty,
		hash:   c.hash,
	}
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// FloorDiv rounds the quotient toward negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if r := a % b; r != 0 && (r < 0) != (b < 0) {
		q--
	}
	return q
}

// Mod returns a non-negative remainder for positive b.
func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
