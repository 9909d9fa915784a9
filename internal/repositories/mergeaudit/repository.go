package mergeaudit

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/harborcrm/clover/internal/database"
	"github.com/harborcrm/clover/internal/tracing"
	"github.com/harborcrm/clover/pkg/models"
)

var auditColumns = []string{
	"id", "group_id", "primary_contact_id", "primary_email", "confidence", "reason",
	"duplicate_ids", "emails_migrated", "transactions_migrated", "created_at",
}

// Repository handles merge audit log persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge audit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert writes one audit row for an executed group. The executor calls this
// inside the merge transaction, before commit.
func (r *Repository) Insert(ctx context.Context, entry *models.MergeAuditEntry) error {
	ctx, span := tracing.StartSpan(ctx, "mergeaudit.Repository.Insert")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("merge_audit_log")
	ib.Cols(auditColumns...)
	ib.Values(
		entry.ID, entry.GroupID, entry.PrimaryContactID, entry.PrimaryEmail,
		entry.Confidence, entry.Reason, entry.DuplicateIDs, entry.EmailsMigrated,
		entry.TransactionsMigrated, entry.CreatedAt,
	)

	query, args := ib.Build()
	if _, err := database.Runner(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": entry.GroupID}).Error("Failed to insert merge audit entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert merge audit entry")
	}
	return nil
}

// List returns audit entries, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]models.MergeAuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeaudit.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(auditColumns...)
	sb.From("merge_audit_log")
	sb.OrderBy("created_at DESC")
	sb.Limit(limit).Offset(offset)

	query, args := sb.Build()
	var entries []models.MergeAuditEntry
	if err := database.Runner(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge audit entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge audit entries")
	}
	return entries, nil
}

// ListByGroup returns the audit entries written for one group id.
func (r *Repository) ListByGroup(ctx context.Context, groupID string) ([]models.MergeAuditEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeaudit.Repository.ListByGroup")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(auditColumns...)
	sb.From("merge_audit_log")
	sb.Where(sb.Equal("group_id", groupID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var entries []models.MergeAuditEntry
	if err := database.Runner(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID}).Error("Failed to list merge audit entries for group")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge audit entries")
	}
	return entries, nil
}
