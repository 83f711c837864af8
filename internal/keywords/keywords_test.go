package keywords

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_WordsAndPrefixes(t *testing.T) {
	got := Index("Plan Premium", "")

	want := []string{"pla", "plan", "pre", "prem", "premi", "premiu", "premium"}
	assert.Equal(t, want, got)
}

func TestIndex_DropsShortWords(t *testing.T) {
	got := Index("de la TV", "internet de alta velocidad")

	for _, short := range []string{"de", "la", "tv"} {
		assert.NotContains(t, got, short)
	}
	assert.Contains(t, got, "internet")
	assert.Contains(t, got, "int")
	assert.Contains(t, got, "alta")
	assert.Contains(t, got, "alt")
}

func TestIndex_ThreeLetterWordHasNoExtraPrefixes(t *testing.T) {
	got := Index("red", "")
	assert.Equal(t, []string{"red"}, got)
}

func TestIndex_Idempotent(t *testing.T) {
	a := Index("Plan Basico", "internet economico")
	b := Index("Plan Basico", "internet economico")
	assert.Equal(t, a, b)
}

func TestIndex_OrderIndependentSet(t *testing.T) {
	a := Index("alpha beta", "gamma")
	b := Index("gamma", "beta alpha")
	assert.Equal(t, a, b)
}

func TestIndex_NoDuplicates(t *testing.T) {
	got := Index("plan plan planes", "plan")
	sorted := slices.Clone(got)
	slices.Sort(sorted)
	assert.Equal(t, slices.Compact(sorted), got)
}

func TestIndex_Lowercases(t *testing.T) {
	got := Index("INTERNET", "")
	assert.Contains(t, got, "internet")
	assert.NotContains(t, got, "INTERNET")
}

func TestIndex_MultibyteRunes(t *testing.T) {
	got := Index("económico", "")
	assert.Contains(t, got, "eco")
	assert.Contains(t, got, "econ")
	assert.Contains(t, got, "económico")
	for _, tok := range got {
		assert.True(t, len([]rune(tok)) >= MinPrefixLen, "token %q too short", tok)
	}
}

func TestIndex_Empty(t *testing.T) {
	assert.Empty(t, Index("", ""))
	assert.Empty(t, Index("   ", "\t\n"))
}

func TestQuery_SubsetOfWordPrefixes(t *testing.T) {
	indexed := Index("Plan Premium", "internet de alta velocidad")

	for _, q := range []string{"premium", "prem", "internet", "inter", "velo"} {
		tokens := Query(q)
		require.NotEmpty(t, tokens, "query %q", q)
		for _, tok := range tokens {
			assert.Contains(t, indexed, tok, "query %q token %q", q, tok)
		}
		assert.True(t, Intersects(tokens, indexed), "query %q", q)
	}
}

func TestQuery_ShortQueryHasNoTokens(t *testing.T) {
	// Queries under three runes never reach the store; the local substring
	// pass is the only way they match.
	assert.Empty(t, Query("tv"))
}

func TestQuery_InfixDoesNotIntersect(t *testing.T) {
	// "net" is a substring of "internet" but not a prefix, so the token
	// pass misses it.
	indexed := Index("Plan Basico", "internet economico")
	assert.False(t, Intersects(Query("net"), indexed))
}

func TestIntersects(t *testing.T) {
	assert.True(t, Intersects([]string{"a", "b"}, []string{"c", "b"}))
	assert.False(t, Intersects([]string{"a"}, []string{"c"}))
	assert.False(t, Intersects(nil, []string{"c"}))
}
