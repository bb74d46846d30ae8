package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborcrm/aster/pkg/models"
)

func strPtr(s string) *string {
	return &s
}

func TestScoreAccounts_Identical(t *testing.T) {
	s := NewSimilarityScorer()

	a := &models.Account{Name: "Acme Corp", Domain: strPtr("acme.com"), City: strPtr("Austin")}
	b := &models.Account{Name: "Acme Corp", Domain: strPtr("acme.com"), City: strPtr("Austin")}

	result, err := s.ScoreAccounts(a, b)
	require.NoError(t, err)

	assert.Equal(t, 100.0, result.Score)
	assert.Equal(t, models.DetectionMethodComposite, result.DetectionMethod)
	assert.Equal(t, []string{"city", "domain", "name"}, result.MatchingFields)
}

func TestScoreAccounts_DomainNormalizationAndFuzzyName(t *testing.T) {
	s := NewSimilarityScorer()

	a := &models.Account{Name: "Acme Corp", Domain: strPtr("acme.com")}
	b := &models.Account{Name: "ACME Corporation", Domain: strPtr("https://www.acme.com/about")}

	result, err := s.ScoreAccounts(a, b)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.Score, 90.0)
	assert.Equal(t, 100.0, result.FieldScores["domain"])
	assert.Equal(t, models.DetectionMethodComposite, result.DetectionMethod)
	assert.Contains(t, result.MatchingFields, "domain")
	assert.Contains(t, result.MatchingFields, "name")
}

func TestScoreAccounts_DomainMatchWithUnrelatedNames(t *testing.T) {
	s := NewSimilarityScorer()

	a := &models.Account{Name: "Alpha Industries", Domain: strPtr("shared.example.com")}
	b := &models.Account{Name: "Zeta Logistics", Domain: strPtr("shared.example.com")}

	result, err := s.ScoreAccounts(a, b)
	require.NoError(t, err)

	assert.Equal(t, models.DetectionMethodDomainMatch, result.DetectionMethod)
	assert.Contains(t, result.MatchingFields, "domain")
	assert.NotContains(t, result.MatchingFields, "name")
}

func TestScoreAccounts_MissingFieldsAreNeutral(t *testing.T) {
	s := NewSimilarityScorer()

	// No domain on either side: the aggregate is driven by name alone
	// instead of being dragged down by the absent field.
	a := &models.Account{Name: "Northwind Traders"}
	b := &models.Account{Name: "Northwind Traders"}

	result, err := s.ScoreAccounts(a, b)
	require.NoError(t, err)

	assert.Equal(t, 100.0, result.Score)
	assert.NotContains(t, result.FieldScores, "domain")
	assert.NotContains(t, result.FieldScores, "city")

	// Domain on one side only still contributes nothing
	c := &models.Account{Name: "Northwind Traders", Domain: strPtr("northwind.com")}
	result, err = s.ScoreAccounts(a, c)
	require.NoError(t, err)

	assert.Equal(t, 100.0, result.Score)
	assert.NotContains(t, result.FieldScores, "domain")
}

func TestScoreAccounts_Symmetric(t *testing.T) {
	s := NewSimilarityScorer()

	a := &models.Account{Name: "Globex Corp", Domain: strPtr("globex.com"), City: strPtr("Springfield")}
	b := &models.Account{Name: "Globex Incorporated", Domain: strPtr("globex.io"), City: strPtr("Shelbyville")}

	ab, err := s.ScoreAccounts(a, b)
	require.NoError(t, err)
	ba, err := s.ScoreAccounts(b, a)
	require.NoError(t, err)

	assert.Equal(t, ab.Score, ba.Score)
	assert.Equal(t, ab.FieldScores, ba.FieldScores)
	assert.Equal(t, ab.MatchingFields, ba.MatchingFields)
}

func TestScoreAccounts_NilInput(t *testing.T) {
	s := NewSimilarityScorer()

	_, err := s.ScoreAccounts(nil, &models.Account{Name: "Acme"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestScoreContacts_EmailAndName(t *testing.T) {
	s := NewSimilarityScorer()

	a := &models.Contact{FirstName: "Jane", LastName: "Dole", Email: strPtr("Jane.Dole@Example.com ")}
	b := &models.Contact{FirstName: "Jane", LastName: "Dole", Email: strPtr("jane.dole@example.com")}

	result, err := s.ScoreContacts(a, b)
	require.NoError(t, err)

	assert.Equal(t, 100.0, result.Score)
	assert.Equal(t, models.DetectionMethodComposite, result.DetectionMethod)
}

func TestScoreContacts_FuzzyNameOnly(t *testing.T) {
	s := NewSimilarityScorer()

	a := &models.Contact{FirstName: "Jon", LastName: "Smith"}
	b := &models.Contact{FirstName: "John", LastName: "Smith"}

	result, err := s.ScoreContacts(a, b)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.Score, 85.0)
	assert.Equal(t, models.DetectionMethodFuzzyName, result.DetectionMethod)
	assert.Equal(t, []string{"name"}, result.MatchingFields)
}

func TestScoreContacts_SharedAccountSignal(t *testing.T) {
	s := NewSimilarityScorer()
	accountID := "7b0bb82d-4716-4f1e-9aff-c0b507d455f7"

	a := &models.Contact{FirstName: "Maria", LastName: "Garcia", AccountID: &accountID}
	b := &models.Contact{FirstName: "Maria", LastName: "Garcia", AccountID: &accountID}

	result, err := s.ScoreContacts(a, b)
	require.NoError(t, err)

	assert.Equal(t, 100.0, result.FieldScores["account"])
	assert.Contains(t, result.MatchingFields, "account")
}

func TestScore_TypeDispatch(t *testing.T) {
	s := NewSimilarityScorer()

	t.Run("mismatched types", func(t *testing.T) {
		_, err := s.Score(models.EntityTypeAccount, &models.Account{Name: "Acme"}, &models.Contact{FirstName: "Jane"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("unknown entity type", func(t *testing.T) {
		_, err := s.Score(models.EntityType("lead"), &models.Account{}, &models.Account{})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("accounts", func(t *testing.T) {
		result, err := s.Score(models.EntityTypeAccount, &models.Account{Name: "Acme"}, &models.Account{Name: "Acme"})
		require.NoError(t, err)
		assert.Equal(t, 100.0, result.Score)
	})
}

func TestScore_NeverExceedsBounds(t *testing.T) {
	s := NewSimilarityScorer()

	pairs := []struct {
		a, b *models.Account
	}{
		{&models.Account{Name: "A"}, &models.Account{Name: "Z"}},
		{&models.Account{Name: ""}, &models.Account{Name: ""}},
		{&models.Account{Name: "Acme", Domain: strPtr("acme.com")}, &models.Account{Name: "Acme", Domain: strPtr("acme.com")}},
	}

	for _, pair := range pairs {
		result, err := s.ScoreAccounts(pair.a, pair.b)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.Score, 0.0)
		assert.LessOrEqual(t, result.Score, 100.0)
	}
}
