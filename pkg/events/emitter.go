// Package events emits merge lifecycle events to downstream systems.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/harborcrm/clover/internal/tracing"
	"github.com/harborcrm/clover/pkg/kafka"
	"github.com/harborcrm/clover/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes merge results after they commit. Emission failures are
// logged and surfaced but must never fail the merge; the data change is
// already durable.
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

// EmitContactsMerged emits one contact.merged event for a committed merge.
func (e *Emitter) EmitContactsMerged(ctx context.Context, result *models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitContactsMerged")
	defer span.End()

	event := &kafka.MergeEvent{
		EventType:            "contact.merged",
		SchemaVersion:        SchemaVersion,
		GroupID:              result.GroupID,
		PrimaryContactID:     result.PrimaryContactID,
		MergedContactIDs:     result.ContactsSoftDeleted,
		EmailsMigrated:       len(result.EmailsMigrated),
		TransactionsMigrated: result.TransactionsMigrated,
	}

	if err := e.producer.PublishMergeEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": result.GroupID}).Error("Failed to emit contact.merged event")
		return err
	}

	return nil
}
