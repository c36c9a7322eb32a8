package uuid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsVersion7(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	raw, err := g.NewID()
	require.NoError(t, err)

	parsed, err := uuid.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewIDUnique(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	seen := map[string]bool{}
	for range 100 {
		id, err := g.NewID()
		require.NoError(t, err)
		require.False(t, seen[id])
		seen[id] = true
	}
}
