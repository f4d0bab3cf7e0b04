package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePattern_Rejects(t *testing.T) {
	cases := []string{"", "a..b", "a.#.b", "a.foo#"}
	for _, c := range cases {
		_, err := compilePattern(c)
		assert.Errorf(t, err, "pattern %q should be rejected", c)
	}
}

func TestCompilePattern_Accepts(t *testing.T) {
	for _, c := range []string{"a", "a.b", "a.*", "a.#", "*.b", "#"} {
		_, err := compilePattern(c)
		require.NoErrorf(t, err, "pattern %q should compile", c)
	}
}

func TestMatchSegments_ExactSpecExamples(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"a.b", "a.b", true},
		{"a.b", "a.c", false},
		{"a.*", "a.x", true},
		{"a.*", "a.x.y", false},
		{"a.#", "a", true},
		{"a.#", "a.x", true},
		{"a.#", "a.x.y", true},
		{"*.b", "x.b", true},
		{"*.b", "x.y.b", false},
	}
	for _, tt := range tests {
		p, err := compilePattern(tt.pattern)
		require.NoError(t, err)
		got := p.matches(splitTopic(tt.topic))
		assert.Equalf(t, tt.want, got, "pattern %q vs topic %q", tt.pattern, tt.topic)
	}
}

func TestTrie_InsertMatchRemove(t *testing.T) {
	root := newTrieNode()
	p1, err := compilePattern("a.*")
	require.NoError(t, err)
	p2, err := compilePattern("a.#")
	require.NoError(t, err)

	sub1 := &Subscription{id: 1, pattern: p1}
	sub2 := &Subscription{id: 2, pattern: p2}
	root.insert(p1.segments, sub1)
	root.insert(p2.segments, sub2)

	matches := root.collectMatches(splitTopic("a.x"), nil)
	require.Len(t, matches, 2)

	matches = root.collectMatches(splitTopic("a.x.y"), nil)
	require.Len(t, matches, 1)
	assert.Equal(t, uint64(2), matches[0].id)

	root.remove(p2.segments, sub2)
	matches = root.collectMatches(splitTopic("a.x.y"), nil)
	assert.Empty(t, matches)
}
