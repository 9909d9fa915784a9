package contact

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/harborcrm/clover/internal/database"
	"github.com/harborcrm/clover/internal/tracing"
	"github.com/harborcrm/clover/pkg/models"
)

var contactColumns = []string{
	"id", "email", "first_name", "last_name", "alt_name", "phone", "alt_phone",
	"billing_line1", "billing_line2", "billing_city", "billing_state", "billing_postal", "billing_country",
	"shipping_line1", "shipping_line2", "shipping_city", "shipping_state", "shipping_postal", "shipping_country",
	"source_system", "subscription_amount_cents", "total_spent_cents", "transaction_count",
	"dup_group_id", "dup_reason", "dup_flagged_at",
	"created_at", "updated_at", "deleted_at",
}

// Repository handles contact persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new contact repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListActive returns every non-deleted contact. Detection is a single
// read-only pass over this result; no transaction is held open.
func (r *Repository) ListActive(ctx context.Context) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns...)
	sb.From("contacts")
	sb.Where(sb.IsNull("deleted_at"))
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	var contacts []models.Contact
	if err := database.Runner(ctx, r.db).SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active contacts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list contacts")
	}
	return contacts, nil
}

// Get retrieves a non-deleted contact by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns...)
	sb.From("contacts")
	sb.Where(
		sb.Equal("id", id),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var contact models.Contact
	if err := database.Runner(ctx, r.db).GetContext(ctx, &contact, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "contact %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get contact")
	}
	return &contact, nil
}

// GetByIDs retrieves non-deleted contacts by ID set
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns...)
	sb.From("contacts")
	sb.Where(
		sb.In("id", sqlbuilder.Flatten(ids)...),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var contacts []models.Contact
	if err := database.Runner(ctx, r.db).SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ids": ids}).Error("Failed to get contacts by IDs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get contacts")
	}
	return contacts, nil
}

// Insert creates a contact row. Importers own contact creation; the dedupe
// engine only consumes this for test fixtures and tooling.
func (r *Repository) Insert(ctx context.Context, c *models.Contact) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Insert")
	defer span.End()

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("contacts")
	ib.Cols(
		"id", "email", "first_name", "last_name", "alt_name", "phone", "alt_phone",
		"billing_line1", "billing_line2", "billing_city", "billing_state", "billing_postal", "billing_country",
		"shipping_line1", "shipping_line2", "shipping_city", "shipping_state", "shipping_postal", "shipping_country",
		"source_system", "subscription_amount_cents", "total_spent_cents", "transaction_count",
		"created_at", "updated_at",
	)
	ib.Values(
		c.ID, c.Email, c.FirstName, c.LastName, c.AltName, c.Phone, c.AltPhone,
		c.BillingLine1, c.BillingLine2, c.BillingCity, c.BillingState, c.BillingPostal, c.BillingCountry,
		c.ShippingLine1, c.ShippingLine2, c.ShippingCity, c.ShippingState, c.ShippingPostal, c.ShippingCountry,
		c.SourceSystem, c.SubscriptionAmountCents, c.TotalSpentCents, c.TransactionCount,
		c.CreatedAt, c.UpdatedAt,
	)

	query, args := ib.Build()
	if _, err := database.Runner(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": c.ID}).Error("Failed to insert contact")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert contact")
	}
	return nil
}

// SoftDelete marks a contact as deleted. The row stays physically present for
// audit and undo but is excluded from all normal queries.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.SoftDelete")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("contacts")
	ub.Set(ub.Assign("deleted_at", now), ub.Assign("updated_at", now))
	ub.Where(
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := database.Runner(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to soft delete contact")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete contact")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("contact %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Soft deleted contact")
	return nil
}

// SetFlags writes the advisory duplicate flag onto every member of a group.
// No other field is mutated.
func (r *Repository) SetFlags(ctx context.Context, ids []string, groupID, reason string, flaggedAt time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.SetFlags")
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("contacts")
	ub.Set(
		ub.Assign("dup_group_id", groupID),
		ub.Assign("dup_reason", reason),
		ub.Assign("dup_flagged_at", flaggedAt),
	)
	ub.Where(
		ub.In("id", sqlbuilder.Flatten(ids)...),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := database.Runner(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": groupID, "ids": ids}).Error("Failed to flag contacts")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to flag contacts")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// ClearFlags resets the advisory flag fields on every flagged contact.
func (r *Repository) ClearFlags(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.ClearFlags")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("contacts")
	ub.Set(
		"dup_group_id = NULL",
		"dup_reason = NULL",
		"dup_flagged_at = NULL",
	)
	ub.Where(ub.IsNotNull("dup_group_id"))

	query, args := ub.Build()
	result, err := database.Runner(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear duplicate flags")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear flags")
	}

	rows, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{"count": rows}).Info("Cleared duplicate flags")
	return rows, nil
}

// ListFlagged returns non-deleted contacts carrying an advisory duplicate flag.
func (r *Repository) ListFlagged(ctx context.Context) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.ListFlagged")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(contactColumns...)
	sb.From("contacts")
	sb.Where(
		sb.IsNotNull("dup_group_id"),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("dup_group_id", "created_at ASC")

	query, args := sb.Build()
	var contacts []models.Contact
	if err := database.Runner(ctx, r.db).SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list flagged contacts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list flagged contacts")
	}
	return contacts, nil
}

// UpdateAggregates rewrites the denormalized financial fields on a contact.
// Called inside the merge transaction after transactions change ownership.
func (r *Repository) UpdateAggregates(ctx context.Context, id string, totalSpentCents int64, transactionCount int) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.UpdateAggregates")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("contacts")
	ub.Set(
		ub.Assign("total_spent_cents", totalSpentCents),
		ub.Assign("transaction_count", transactionCount),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	if _, err := database.Runner(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to update contact aggregates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update contact aggregates")
	}
	return nil
}

// DB exposes the underlying connection for transaction control.
func (r *Repository) DB() database.DB {
	return r.db
}
