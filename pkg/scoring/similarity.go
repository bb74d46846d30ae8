package scoring

import (
	"errors"
	"fmt"
	"sort"

	"github.com/harborcrm/aster/pkg/models"
	"github.com/harborcrm/aster/pkg/normalizers"
)

// ErrInvalidInput is returned when the two entities are nil or not of the
// same declared type
var ErrInvalidInput = errors.New("invalid scoring input")

// DefaultThreshold is the score at or above which a pair is worth flagging
const DefaultThreshold = 80.0

// Field weights per entity type. Exact identifiers dominate; fuzzy names
// carry medium weight; location is a weak corroborating signal.
var (
	accountWeights = map[string]float64{
		"domain": 0.50,
		"name":   0.35,
		"city":   0.15,
	}
	contactWeights = map[string]float64{
		"email":   0.55,
		"name":    0.35,
		"account": 0.10,
	}
)

// matchFloor is the sub-score at or above which a field counts as matching
const matchFloor = 70.0

// SimilarityScorer scores entity pairs on a 0-100 scale with a field-level
// breakdown. It is pure: no I/O, no side effects, symmetric in its arguments.
type SimilarityScorer struct {
	scorer *Scorer
}

// NewSimilarityScorer creates a new SimilarityScorer
func NewSimilarityScorer() *SimilarityScorer {
	return &SimilarityScorer{scorer: NewScorer()}
}

// Score compares two entities of the declared type. Both must be non-nil
// pointers to the model matching entityType; anything else is ErrInvalidInput.
func (s *SimilarityScorer) Score(entityType models.EntityType, a, b any) (*models.SimilarityResult, error) {
	switch entityType {
	case models.EntityTypeAccount:
		accA, okA := a.(*models.Account)
		accB, okB := b.(*models.Account)
		if !okA || !okB {
			return nil, fmt.Errorf("%w: expected two accounts", ErrInvalidInput)
		}
		return s.ScoreAccounts(accA, accB)
	case models.EntityTypeContact:
		conA, okA := a.(*models.Contact)
		conB, okB := b.(*models.Contact)
		if !okA || !okB {
			return nil, fmt.Errorf("%w: expected two contacts", ErrInvalidInput)
		}
		return s.ScoreContacts(conA, conB)
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, entityType)
	}
}

// ScoreAccounts compares two accounts on normalized domain (exact), fuzzy
// name and city. Fields missing on either side contribute nothing.
func (s *SimilarityScorer) ScoreAccounts(a, b *models.Account) (*models.SimilarityResult, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: account is nil", ErrInvalidInput)
	}

	fieldScores := make(map[string]float64)

	domainA := normalizeOptional(a.Domain, normalizers.NormalizeDomain)
	domainB := normalizeOptional(b.Domain, normalizers.NormalizeDomain)
	if domainA != "" && domainB != "" {
		fieldScores["domain"] = s.scorer.ExactMatch(domainA, domainB) * 100
	}

	nameA := normalizers.NormalizeName(a.Name)
	nameB := normalizers.NormalizeName(b.Name)
	if nameA != "" && nameB != "" {
		fieldScores["name"] = s.scorer.Fuzzy(nameA, nameB) * 100
	}

	cityA := normalizeOptional(a.City, normalizers.NormalizeCity)
	cityB := normalizeOptional(b.City, normalizers.NormalizeCity)
	if cityA != "" && cityB != "" {
		fieldScores["city"] = s.scorer.Fuzzy(cityA, cityB) * 100
	}

	return s.buildResult(fieldScores, accountWeights, models.EntityTypeAccount), nil
}

// ScoreContacts compares two contacts on normalized email (exact), fuzzy full
// name and shared account linkage.
func (s *SimilarityScorer) ScoreContacts(a, b *models.Contact) (*models.SimilarityResult, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: contact is nil", ErrInvalidInput)
	}

	fieldScores := make(map[string]float64)

	emailA := normalizeOptional(a.Email, normalizers.NormalizeEmail)
	emailB := normalizeOptional(b.Email, normalizers.NormalizeEmail)
	if emailA != "" && emailB != "" {
		fieldScores["email"] = s.scorer.ExactMatch(emailA, emailB) * 100
	}

	nameA := normalizers.NormalizeName(a.FullName())
	nameB := normalizers.NormalizeName(b.FullName())
	if nameA != "" && nameB != "" {
		fieldScores["name"] = s.scorer.Fuzzy(nameA, nameB) * 100
	}

	if a.AccountID != nil && b.AccountID != nil {
		fieldScores["account"] = s.scorer.ExactMatch(*a.AccountID, *b.AccountID) * 100
	}

	return s.buildResult(fieldScores, contactWeights, models.EntityTypeContact), nil
}

// buildResult combines field sub-scores into a single 0-100 score. The
// combination is a weighted average over the fields present on both sides,
// so no single field can push the aggregate outside [0, 100].
func (s *SimilarityScorer) buildResult(fieldScores, weights map[string]float64, entityType models.EntityType) *models.SimilarityResult {
	score := s.scorer.WeightedScore(fieldScores, weights)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	matching := make([]string, 0, len(fieldScores))
	for field, sub := range fieldScores {
		if sub >= matchFloor {
			matching = append(matching, field)
		}
	}
	sort.Strings(matching)

	return &models.SimilarityResult{
		Score:           score,
		FieldScores:     fieldScores,
		MatchingFields:  matching,
		DetectionMethod: detectionMethod(entityType, fieldScores),
	}
}

// detectionMethod tags the strongest signal that identified the pair
func detectionMethod(entityType models.EntityType, fieldScores map[string]float64) models.DetectionMethod {
	nameMatched := fieldScores["name"] >= matchFloor

	switch entityType {
	case models.EntityTypeAccount:
		domainMatched := fieldScores["domain"] >= 100
		switch {
		case domainMatched && nameMatched:
			return models.DetectionMethodComposite
		case domainMatched:
			return models.DetectionMethodDomainMatch
		default:
			return models.DetectionMethodFuzzyName
		}
	default:
		emailMatched := fieldScores["email"] >= 100
		switch {
		case emailMatched && nameMatched:
			return models.DetectionMethodComposite
		case emailMatched:
			return models.DetectionMethodEmailMatch
		default:
			return models.DetectionMethodFuzzyName
		}
	}
}

func normalizeOptional(v *string, fn normalizers.Normalizer) string {
	if v == nil {
		return ""
	}
	return fn(*v)
}
