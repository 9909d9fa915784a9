package transaction

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

var transactionColumns = []string{
	"id", "contact_id", "amount_cents", "currency", "type", "external_ref",
	"occurred_at", "created_at", "deleted_at",
}

// Repository handles transaction ledger persistence. Transactions are
// immutable; the only permitted mutation is the ownership transfer performed
// during a merge.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new transaction repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByContact returns every non-deleted transaction owned by a contact.
func (r *Repository) ListByContact(ctx context.Context, contactID string) ([]models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.ListByContact")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(transactionColumns...)
	sb.From("transactions")
	sb.Where(
		sb.Equal("contact_id", contactID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("occurred_at ASC")

	query, args := sb.Build()
	var transactions []models.Transaction
	if err := database.Runner(ctx, r.db).SelectContext(ctx, &transactions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": contactID}).Error("Failed to list transactions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list transactions")
	}
	return transactions, nil
}

// ReassignOwner transfers ownership of every non-deleted transaction from one
// contact to another. This is a transfer, never a copy; no row is duplicated.
func (r *Repository) ReassignOwner(ctx context.Context, fromContactID, toContactID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.ReassignOwner")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("transactions")
	ub.Set(ub.Assign("contact_id", toContactID))
	ub.Where(
		ub.Equal("contact_id", fromContactID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := database.Runner(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from": fromContactID, "to": toContactID}).Error("Failed to reassign transactions")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign transactions")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// SumAndCountByContact returns the denormalized aggregates for a contact,
// computed from the ledger.
func (r *Repository) SumAndCountByContact(ctx context.Context, contactID string) (int64, int, error) {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.SumAndCountByContact")
	defer span.End()

	query := `
		SELECT COALESCE(SUM(amount_cents), 0) AS total_cents, COUNT(*) AS tx_count
		FROM transactions
		WHERE contact_id = $1
		  AND deleted_at IS NULL
	`

	var row struct {
		TotalCents int64 `db:"total_cents"`
		TxCount    int   `db:"tx_count"`
	}
	if err := database.Runner(ctx, r.db).GetContext(ctx, &row, query, contactID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": contactID}).Error("Failed to aggregate transactions")
		return 0, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate transactions")
	}
	return row.TotalCents, row.TxCount, nil
}

// Insert creates a transaction row. Importers own ledger writes; the engine
// uses this for fixtures and tooling only.
func (r *Repository) Insert(ctx context.Context, t *models.Transaction) error {
	ctx, span := tracing.StartSpan(ctx, "transaction.Repository.Insert")
	defer span.End()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("transactions")
	ib.Cols("id", "contact_id", "amount_cents", "currency", "type", "external_ref", "occurred_at", "created_at")
	ib.Values(t.ID, t.ContactID, t.AmountCents, t.Currency, t.Type, t.ExternalRef, t.OccurredAt, t.CreatedAt)

	query, args := ib.Build()
	if _, err := database.Runner(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": t.ID, "contact_id": t.ContactID}).Error("Failed to insert transaction")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert transaction")
	}
	return nil
}
