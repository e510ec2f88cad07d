package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKnownCode(t *testing.T) {
	for _, c := range []string{
		"",
		ErrProtoBadRequest,
		ErrWorldBusy,
		ErrWorldStopped,
		ErrBadRequest,
		ErrInvalidTarget,
		ErrNotFound,
		ErrInternal,
	} {
		assert.True(t, IsKnownCode(c), "code %q", c)
	}
	assert.False(t, IsKnownCode("E_NOT_DEFINED"))
	assert.False(t, IsKnownCode("E_RATE_LIMIT"))
}
