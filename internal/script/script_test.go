package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doctor(t *testing.T) *Script {
	t.Helper()
	s, err := Doctor()
	require.NoError(t, err)
	return s
}

func keywords(rules []*Rule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Keyword)
	}
	return out
}

func TestCandidates_RankOrder(t *testing.T) {
	s := doctor(t)

	got := s.Candidates([]string{"i", "remember", "my", "computer"})
	assert.Equal(t, []string{"computer", "remember", "my", "i"}, keywords(got))
}

func TestCandidates_EqualRankKeepsInputOrder(t *testing.T) {
	s := doctor(t)

	got := s.Candidates([]string{"you", "your", "i", "you"})
	assert.Equal(t, []string{"you", "your", "i"}, keywords(got))
}

func TestCandidates_SkipsFallback(t *testing.T) {
	s := doctor(t)

	assert.Empty(t, s.Candidates([]string{"none", "of", "these"}))
}

func TestRule_Lookup(t *testing.T) {
	s := doctor(t)

	r, ok := s.Rule("MY")
	require.True(t, ok)
	assert.Equal(t, 2, r.Rank)
	assert.True(t, r.Remembers())

	_, ok = s.Rule("xyzzy")
	assert.False(t, ok)
}

func TestIsQuit(t *testing.T) {
	s := doctor(t)

	assert.True(t, s.IsQuit([]string{"ok", "bye"}))
	assert.True(t, s.IsQuit([]string{"goodbye"}))
	assert.False(t, s.IsQuit([]string{"by", "the", "way"}))
}

func TestExpand(t *testing.T) {
	s := doctor(t)

	words, ok := s.Expand("don't")
	require.True(t, ok)
	assert.Equal(t, []string{"do", "not"}, words)

	_, ok = s.Expand("do")
	assert.False(t, ok)
}

func TestInSet(t *testing.T) {
	s := doctor(t)

	assert.True(t, s.InSet("desire", "need"))
	assert.False(t, s.InSet("desire", "have"))
	assert.False(t, s.InSet("unknown", "need"))
}

func TestReflect(t *testing.T) {
	s := doctor(t)

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"first person", []string{"my", "dog", "hates", "me"}, []string{"your", "dog", "hates", "you"}},
		{"second person", []string{"your", "cat"}, []string{"my", "cat"}},
		{"multi word wins", []string{"you", "are", "mean"}, []string{"I", "am", "mean"}},
		{"i am", []string{"i", "am", "happy"}, []string{"you", "are", "happy"}},
		{"untouched", []string{"the", "weather"}, []string{"the", "weather"}},
		{"empty", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Reflect(tt.in))
		})
	}
}

func TestReflect_DoesNotMutateInput(t *testing.T) {
	s := doctor(t)

	in := []string{"i", "need", "my", "space"}
	_ = s.Reflect(in)
	assert.Equal(t, []string{"i", "need", "my", "space"}, in)
}
