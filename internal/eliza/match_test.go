package eliza

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/doctor/internal/script"
)

type sets map[string][]string

func (s sets) InSet(set, word string) bool {
	for _, w := range s[set] {
		if w == word {
			return true
		}
	}
	return false
}

func pattern(t *testing.T, src string) script.Pattern {
	t.Helper()
	p, err := script.ParsePattern(src)
	require.NoError(t, err)
	return p
}

func TestMatch_SynonymSlot(t *testing.T) {
	s := sets{"desire": {"want", "need"}}

	caps, ok := Match(s, pattern(t, "* i @desire *"), []string{"well", "i", "need", "a", "break"})
	require.True(t, ok)
	assert.Equal(t, [][]string{{"well"}, {"need"}, {"a", "break"}}, caps)

	_, ok = Match(s, pattern(t, "* i @desire *"), []string{"i", "have", "a", "break"})
	assert.False(t, ok)
}

func TestMatch_FirstFit(t *testing.T) {
	caps, ok := Match(sets{}, pattern(t, "* a *"), []string{"a", "b", "a", "c"})
	require.True(t, ok)
	require.Len(t, caps, 2)
	assert.Empty(t, caps[0])
	assert.Equal(t, []string{"b", "a", "c"}, caps[1])
}

func TestMatch_Backtracks(t *testing.T) {
	caps, ok := Match(sets{}, pattern(t, "* you * me"), []string{"you", "said", "you", "love", "me"})
	require.True(t, ok)
	require.Len(t, caps, 2)
	assert.Empty(t, caps[0])
	assert.Equal(t, []string{"said", "you", "love"}, caps[1])
}

func TestMatch_Literals(t *testing.T) {
	_, ok := Match(sets{}, pattern(t, "i need *"), []string{"you", "need", "help"})
	assert.False(t, ok)

	_, ok = Match(sets{}, pattern(t, "i need"), []string{"i", "need", "help"})
	assert.False(t, ok)

	caps, ok := Match(sets{}, pattern(t, "i need *"), []string{"i", "need", "help"})
	require.True(t, ok)
	assert.Equal(t, [][]string{{"help"}}, caps)
}

func TestMatch_CatchAllEmptyInput(t *testing.T) {
	caps, ok := Match(sets{}, pattern(t, "*"), nil)
	require.True(t, ok)
	require.Len(t, caps, 1)
	assert.Empty(t, caps[0])
}

func TestDecompose_DeclaredOrder(t *testing.T) {
	decomps := []script.Decomposition{
		{Pattern: pattern(t, "* you are *")},
		{Pattern: pattern(t, "* you *")},
	}

	idx, caps, ok := Decompose(sets{}, decomps, []string{"you", "are", "kind"})
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, []string{"kind"}, caps[1])

	idx, _, ok = Decompose(sets{}, decomps, []string{"you", "see"})
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, _, ok = Decompose(sets{}, decomps, []string{"nothing", "here"})
	assert.False(t, ok)
}
