package models

import (
	"encoding/json"
	"time"
)

// DuplicateCandidateStatus constants. Candidates are created pending and move
// to exactly one terminal state; they never return to pending.
const (
	CandidateStatusPending      = "pending"
	CandidateStatusMerged       = "merged"
	CandidateStatusNotDuplicate = "not_duplicate"
	CandidateStatusIgnored      = "ignored"
)

// DetectionMethod tags how a candidate pair was identified
type DetectionMethod string

const (
	DetectionMethodDomainMatch DetectionMethod = "domain_match"
	DetectionMethodFuzzyName   DetectionMethod = "fuzzy_name"
	DetectionMethodEmailMatch  DetectionMethod = "email_match"
	DetectionMethodComposite   DetectionMethod = "composite"
)

// DuplicateCandidate represents a detected, not-yet-resolved suspicion that
// two entities of the same type are the same real-world record. EntityID1 and
// EntityID2 are stored in canonical (lexical) order so the unordered pair is
// unique per workspace while pending.
type DuplicateCandidate struct {
	ID                string          `json:"id" db:"id"`
	WorkspaceID       string          `json:"workspace_id" db:"workspace_id"`
	EntityType        EntityType      `json:"entity_type" db:"entity_type"`
	EntityID1         string          `json:"entity_id_1" db:"entity_id_1"`
	EntityID2         string          `json:"entity_id_2" db:"entity_id_2"`
	SimilarityScore   float64         `json:"similarity_score" db:"similarity_score"`
	MatchingFields    json.RawMessage `json:"matching_fields" db:"matching_fields"`
	FieldSimilarities json.RawMessage `json:"field_similarities" db:"field_similarities"`
	DetectionMethod   DetectionMethod `json:"detection_method" db:"detection_method"`
	Status            string          `json:"status" db:"status"`
	MergedInto        *string         `json:"merged_into,omitempty" db:"merged_into"`
	ResolvedBy        *string         `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// IsPending reports whether the candidate can still be resolved or merged
func (c *DuplicateCandidate) IsPending() bool {
	return c.Status == CandidateStatusPending
}

// MatchesPair reports whether {a, b} equals the candidate's unordered pair
func (c *DuplicateCandidate) MatchesPair(a, b string) bool {
	lo, hi := CanonicalPair(a, b)
	return c.EntityID1 == lo && c.EntityID2 == hi
}

// CanonicalPair returns the unordered pair (a, b) in a fixed lexical order.
// Upsert and lookup both go through this so the pending-uniqueness constraint
// holds regardless of argument order.
func CanonicalPair(a, b string) (lo, hi string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// SimilarityResult is the outcome of scoring one entity pair
type SimilarityResult struct {
	Score           float64            `json:"score"`
	FieldScores     map[string]float64 `json:"field_scores"`
	MatchingFields  []string           `json:"matching_fields"`
	DetectionMethod DetectionMethod    `json:"detection_method"`
}

// MatchingFieldsJSON returns the matching field names as a JSON array
func (r *SimilarityResult) MatchingFieldsJSON() json.RawMessage {
	fields := r.MatchingFields
	if fields == nil {
		fields = []string{}
	}
	data, _ := json.Marshal(fields)
	return data
}

// FieldSimilaritiesJSON returns the per-field score breakdown as a JSON object
func (r *SimilarityResult) FieldSimilaritiesJSON() json.RawMessage {
	scores := r.FieldScores
	if scores == nil {
		scores = map[string]float64{}
	}
	data, _ := json.Marshal(scores)
	return data
}

// CandidateListFilter narrows a candidate listing
type CandidateListFilter struct {
	EntityType EntityType
	Status     string
	MinScore   float64
	Limit      int
	Offset     int
}

// CandidateStats aggregates candidate counts for a workspace
type CandidateStats struct {
	Pending      int      `json:"pending" db:"pending"`
	Merged       int      `json:"merged" db:"merged"`
	NotDuplicate int      `json:"not_duplicate" db:"not_duplicate"`
	Ignored      int      `json:"ignored" db:"ignored"`
	Total        int      `json:"total" db:"total"`
	AvgScore     *float64 `json:"avg_score,omitempty" db:"avg_score"`
	MaxScore     *float64 `json:"max_score,omitempty" db:"max_score"`
}

// DetectRequest triggers a detection scan
type DetectRequest struct {
	WorkspaceID string     `json:"workspace_id" validate:"required"`
	EntityType  EntityType `json:"entity_type,omitempty"`
	Threshold   *float64   `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// ResolveRequest dismisses a pending candidate
type ResolveRequest struct {
	WorkspaceID string `json:"workspace_id" validate:"required"`
	Status      string `json:"status" validate:"required,oneof=not_duplicate ignored"`
}

// MergeRequest merges the candidate's pair, keeping keep_id
type MergeRequest struct {
	WorkspaceID string         `json:"workspace_id" validate:"required"`
	KeepID      string         `json:"keep_id" validate:"required"`
	MergeID     string         `json:"merge_id" validate:"required"`
	MergedData  map[string]any `json:"merged_data,omitempty"`
}

// MergeResult reports a completed merge
type MergeResult struct {
	CandidateID         string     `json:"candidate_id"`
	WorkspaceID         string     `json:"workspace_id"`
	EntityType          EntityType `json:"entity_type"`
	KeptID              string     `json:"kept_id"`
	MergedID            string     `json:"merged_id"`
	MergedBy            string     `json:"merged_by"`
	ContactsRepointed   int64      `json:"contacts_repointed"`
	ActivitiesRepointed int64      `json:"activities_repointed"`
}

// DetectionSummary reports what a detection scan did
type DetectionSummary struct {
	WorkspaceID        string  `json:"workspace_id"`
	Threshold          float64 `json:"threshold"`
	AccountsScanned    int     `json:"accounts_scanned"`
	ContactsScanned    int     `json:"contacts_scanned"`
	PairsCompared      int     `json:"pairs_compared"`
	CandidatesUpserted int     `json:"candidates_upserted"`
}
