// Package encoding packs chunk block arrays for transport.
package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCorrupt is returned for input that does not decode to a block array.
var ErrCorrupt = errors.New("corrupt block runs")

// Runs encodes ids as base64 over (block, run length) uvarint pairs, in the
// order given. Chunk arrays are mostly long horizontal layers, so a flat
// chunk collapses to one pair per layer.
func Runs(ids []uint16) string {
	buf := make([]byte, 0, 64)
	for i := 0; i < len(ids); {
		j := i + 1
		for j < len(ids) && ids[j] == ids[i] {
			j++
		}
		buf = binary.AppendUvarint(buf, uint64(ids[i]))
		buf = binary.AppendUvarint(buf, uint64(j-i))
		i = j
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeRuns expands s. When n >= 0 the result must hold exactly n ids.
func DecodeRuns(s string, n int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var out []uint16
	if n > 0 {
		out = make([]uint16, 0, n)
	}
	for off := 0; off < len(raw); {
		b, k := binary.Uvarint(raw[off:])
		if k <= 0 {
			return nil, fmt.Errorf("%w: block at byte %d", ErrCorrupt, off)
		}
		off += k
		run, k := binary.Uvarint(raw[off:])
		if k <= 0 {
			return nil, fmt.Errorf("%w: run at byte %d", ErrCorrupt, off)
		}
		off += k
		switch {
		case b > 0xFFFF:
			return nil, fmt.Errorf("%w: block id %d", ErrCorrupt, b)
		case run == 0:
			return nil, fmt.Errorf("%w: empty run at byte %d", ErrCorrupt, off)
		case n >= 0 && uint64(len(out))+run > uint64(n):
			return nil, fmt.Errorf("%w: more than %d ids", ErrCorrupt, n)
		}
		for ; run > 0; run-- {
			out = append(out, uint16(b))
		}
	}
	if n >= 0 && len(out) != n {
		return nil, fmt.Errorf("%w: got %d ids, want %d", ErrCorrupt, len(out), n)
	}
	return out, nil
}
