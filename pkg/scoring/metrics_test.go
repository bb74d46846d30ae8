package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExactMatch(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.ExactMatch("acme.com", "acme.com"))
	assert.Equal(t, 0.0, s.ExactMatch("acme.com", "acme.io"))
	assert.Equal(t, 0.0, s.ExactMatch("", ""), "empty strings never count as a match")
}

func TestJaroWinkler(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.JaroWinkler("martha", "martha"))
	assert.InDelta(t, 0.9611, s.JaroWinkler("martha", "marhta"), 0.001)
	assert.Equal(t, 0.0, s.JaroWinkler("abc", "xyz"))

	// symmetric
	assert.Equal(t, s.JaroWinkler("dwayne", "duane"), s.JaroWinkler("duane", "dwayne"))
}

func TestLevenshteinDistance(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "", 3},
		{"same", "same", 0},
		{"flaw", "lawn", 2},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, s.LevenshteinDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestLevenshtein(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.Levenshtein("", ""))
	assert.Equal(t, 1.0, s.Levenshtein("acme", "acme"))
	// distance 3 over max length 7
	assert.InDelta(t, 1.0-3.0/7.0, s.Levenshtein("kitten", "sitting"), 0.0001)
}

func TestFuzzyTakesTheBetterMetric(t *testing.T) {
	s := NewScorer()

	pairs := [][2]string{
		{"martha", "marhta"},
		{"kitten", "sitting"},
		{"acme corp", "acme corporation"},
	}

	for _, p := range pairs {
		got := s.Fuzzy(p[0], p[1])
		jw := s.JaroWinkler(p[0], p[1])
		lev := s.Levenshtein(p[0], p[1])
		assert.Equal(t, max(jw, lev), got, "%q vs %q", p[0], p[1])
	}
}

func TestWeightedScore(t *testing.T) {
	s := NewScorer()

	t.Run("weighted average over present fields", func(t *testing.T) {
		scores := map[string]float64{"domain": 100, "name": 80}
		weights := map[string]float64{"domain": 0.50, "name": 0.35, "city": 0.15}

		want := (100*0.50 + 80*0.35) / 0.85
		assert.InDelta(t, want, s.WeightedScore(scores, weights), 0.0001)
	})

	t.Run("unknown fields default to weight one", func(t *testing.T) {
		scores := map[string]float64{"other": 60}
		assert.Equal(t, 60.0, s.WeightedScore(scores, map[string]float64{}))
	})

	t.Run("no fields scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, s.WeightedScore(nil, nil))
	})
}
