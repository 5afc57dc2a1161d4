package cronerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesKind(t *testing.T) {
	err := New(KindInvalidPattern, "bad token")
	assert.Contains(t, err.Error(), "invalid_pattern")
	assert.Contains(t, err.Error(), "bad token")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindIO, "open file", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestIsClassifiesThroughWrapping(t *testing.T) {
	inner := New(KindUnknownTimezone, "Not/AZone")
	outer := fmt.Errorf("task setup: %w", inner)

	require.True(t, Is(outer, KindUnknownTimezone))
	assert.False(t, Is(outer, KindInvalidPattern))
	assert.False(t, Is(nil, KindUnknownTimezone))
	assert.False(t, Is(errors.New("plain"), KindUnknownTimezone))
}
