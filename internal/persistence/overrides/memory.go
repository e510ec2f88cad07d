package overrides

import (
	"context"
	"sync"

	"voxelstream.ai/internal/sim/world/terrain/store"
)

// Memory is an in-process Store. It backs tests and the -db=memory mode.
type Memory struct {
	layout Layout

	mu     sync.Mutex
	rows   map[store.ChunkCoord]map[cellKey]uint16
	closed bool

	// FailRead, if set, is consulted before every read.
	FailRead func(c store.ChunkCoord) error
}

func NewMemory(layout Layout) *Memory {
	return &Memory{layout: layout, rows: map[store.ChunkCoord]map[cellKey]uint16{}}
}

func (m *Memory) ReadOverrides(ctx context.Context, c store.ChunkCoord) ([]Override, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	fail := m.FailRead
	m.mu.Unlock()
	if fail != nil {
		if err := fail(c); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cells := m.rows[c]
	out := make([]Override, 0, len(cells))
	for k, b := range cells {
		out = append(out, Override{X: k.x, Y: k.y, Z: k.z, Block: b})
	}
	sortOverrides(out)
	return out, nil
}

func (m *Memory) WriteOverride(ctx context.Context, wx, wy, wz int, block uint16) error {
	return m.WriteOverrides(ctx, []Write{m.layout.Locate(wx, wy, wz, block)})
}

func (m *Memory) WriteOverrides(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, w := range writes {
		cells := m.rows[w.Coord]
		if cells == nil {
			cells = map[cellKey]uint16{}
			m.rows[w.Coord] = cells
		}
		cells[cellKey{w.X, w.Y, w.Z}] = w.Block
	}
	return nil
}

// SetFailRead swaps the read failure hook while workers may be reading.
func (m *Memory) SetFailRead(fn func(c store.ChunkCoord) error) {
	m.mu.Lock()
	m.FailRead = fn
	m.mu.Unlock()
}

func (m *Memory) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, cells := range m.rows {
		n += int64(len(cells))
	}
	return n, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
