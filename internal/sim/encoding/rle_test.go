package encoding

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsRoundTrip(t *testing.T) {
	in := []uint16{1, 1, 1, 2, 2, 3}
	for i := 0; i < 300; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 0xFFFF, 0xFFFF)

	out, err := DecodeRuns(Runs(in), len(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out, err = DecodeRuns(Runs(in), -1)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRunsCollapsesLayers(t *testing.T) {
	layer := make([]uint16, 256)
	for i := range layer {
		layer[i] = 4
	}
	// (4, 256): one byte for the block, two for the run.
	raw, err := base64.StdEncoding.DecodeString(Runs(layer))
	require.NoError(t, err)
	assert.Len(t, raw, 3)
	assert.Equal(t, "", Runs(nil))
}

func TestDecodeRunsRejectsCorruptInput(t *testing.T) {
	enc := func(b ...byte) string { return base64.StdEncoding.EncodeToString(b) }
	tests := []struct {
		name string
		in   string
		n    int
	}{
		{"not base64", "!!", -1},
		{"truncated pair", enc(0x01), -1},
		{"zero run", enc(0x01, 0x00), -1},
		{"block id overflow", enc(0x80, 0x80, 0x04, 0x01), -1},
		{"too many ids", enc(0x01, 0x05), 4},
		{"too few ids", enc(0x01, 0x03), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRuns(tt.in, tt.n)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}
