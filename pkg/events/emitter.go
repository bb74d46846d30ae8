// Package events handles event emission for duplicate candidate lifecycle
// changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/harborcrm/aster/internal/tracing"
	"github.com/harborcrm/aster/pkg/kafka"
	"github.com/harborcrm/aster/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const (
	EventTypeDuplicateDetected = "duplicate.detected"
	EventTypeDuplicateResolved = "duplicate.resolved"
	EventTypeEntityMerged      = "entity.merged"
)

// Emitter publishes duplicate lifecycle events
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitDuplicateDetected emits an event for a newly flagged candidate pair
func (e *Emitter) EmitDuplicateDetected(ctx context.Context, candidate *models.DuplicateCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDuplicateDetected")
	defer span.End()

	data := map[string]any{
		"schema_version":   SchemaVersion,
		"similarity_score": candidate.SimilarityScore,
		"detection_method": candidate.DetectionMethod,
		"matching_fields":  json.RawMessage(candidate.MatchingFields),
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.DuplicateEvent{
		EventType:   EventTypeDuplicateDetected,
		WorkspaceID: candidate.WorkspaceID,
		CandidateID: candidate.ID,
		EntityType:  string(candidate.EntityType),
		EntityIDs:   []string{candidate.EntityID1, candidate.EntityID2},
		Data:        dataJSON,
	}

	if err := e.producer.PublishDuplicateEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit duplicate.detected event")
		return err
	}

	return nil
}

// EmitDuplicateResolved emits an event when a candidate is dismissed
func (e *Emitter) EmitDuplicateResolved(ctx context.Context, candidate *models.DuplicateCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDuplicateResolved")
	defer span.End()

	data := map[string]any{
		"schema_version": SchemaVersion,
		"status":         candidate.Status,
		"resolved_by":    candidate.ResolvedBy,
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.DuplicateEvent{
		EventType:   EventTypeDuplicateResolved,
		WorkspaceID: candidate.WorkspaceID,
		CandidateID: candidate.ID,
		EntityType:  string(candidate.EntityType),
		EntityIDs:   []string{candidate.EntityID1, candidate.EntityID2},
		Data:        dataJSON,
	}

	if err := e.producer.PublishDuplicateEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit duplicate.resolved event")
		return err
	}

	return nil
}

// EmitEntityMerged emits an event describing a completed merge
func (e *Emitter) EmitEntityMerged(ctx context.Context, result *models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityMerged")
	defer span.End()

	data := map[string]any{
		"schema_version":       SchemaVersion,
		"kept_entity_id":       result.KeptID,
		"merged_entity_id":     result.MergedID,
		"contacts_repointed":   result.ContactsRepointed,
		"activities_repointed": result.ActivitiesRepointed,
		"merged_by":            result.MergedBy,
	}
	dataJSON, _ := json.Marshal(data)

	event := &kafka.DuplicateEvent{
		EventType:   EventTypeEntityMerged,
		WorkspaceID: result.WorkspaceID,
		CandidateID: result.CandidateID,
		EntityType:  string(result.EntityType),
		EntityIDs:   []string{result.KeptID, result.MergedID},
		Data:        dataJSON,
	}

	if err := e.producer.PublishDuplicateEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.merged event")
		return err
	}

	return nil
}
