package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainStopsAtFirstMatch(t *testing.T) {
	t.Parallel()

	var calls []string
	step := func(name string, ok bool) Strategy[string] {
		return func(Input) (string, bool) {
			calls = append(calls, name)
			return name, ok
		}
	}
	chain := Chain[string]{
		Strategies: []Strategy[string]{step("a", false), step("b", true), step("c", true)},
		Fallback:   "none",
	}

	require.Equal(t, "b", chain.Resolve(Input{}))
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestChainFallback(t *testing.T) {
	t.Parallel()

	chain := Chain[int]{
		Strategies: []Strategy[int]{func(Input) (int, bool) { return 0, false }},
		Fallback:   7,
	}
	require.Equal(t, 7, chain.Resolve(Input{}))
}

func TestInputTextSkipsEmptyParts(t *testing.T) {
	t.Parallel()

	in := Input{Title: " Judul ", Excerpt: "", Detail: "Isi"}
	require.Equal(t, "Judul\nIsi", in.Text())
}

func TestFixed(t *testing.T) {
	t.Parallel()

	v, ok := Fixed("Indbeasiswa.com")(Input{})
	assert.True(t, ok)
	assert.Equal(t, "Indbeasiswa.com", v)

	_, ok = Fixed("  ")(Input{})
	assert.False(t, ok)
}
