package contactemail

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

var emailColumns = []string{
	"id", "contact_id", "email", "source", "is_primary", "is_outreach", "created_at", "deleted_at",
}

// Repository handles secondary email persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new contact email repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByContactIDs returns every non-deleted secondary email owned by the
// given contacts.
func (r *Repository) ListByContactIDs(ctx context.Context, contactIDs []string) ([]models.ContactEmail, error) {
	ctx, span := tracing.StartSpan(ctx, "contactemail.Repository.ListByContactIDs")
	defer span.End()

	if len(contactIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(emailColumns...)
	sb.From("contact_emails")
	sb.Where(
		sb.In("contact_id", sqlbuilder.Flatten(contactIDs)...),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var emails []models.ContactEmail
	if err := database.Runner(ctx, r.db).SelectContext(ctx, &emails, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_ids": contactIDs}).Error("Failed to list contact emails")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list contact emails")
	}
	return emails, nil
}

// Insert adds a secondary email row. Migrated emails are always written with
// is_outreach=false; outreach eligibility is uniquely constrained per contact
// and promoting a migrated email is a policy decision left to humans.
func (r *Repository) Insert(ctx context.Context, contactID, email, source string) (*models.ContactEmail, error) {
	ctx, span := tracing.StartSpan(ctx, "contactemail.Repository.Insert")
	defer span.End()

	row := models.ContactEmail{
		ID:         uuid.New().String(),
		ContactID:  contactID,
		Email:      email,
		Source:     source,
		IsPrimary:  false,
		IsOutreach: false,
		CreatedAt:  time.Now().UTC(),
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("contact_emails")
	ib.Cols("id", "contact_id", "email", "source", "is_primary", "is_outreach", "created_at")
	ib.Values(row.ID, row.ContactID, row.Email, row.Source, row.IsPrimary, row.IsOutreach, row.CreatedAt)

	query, args := ib.Build()
	if _, err := database.Runner(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"contact_id": contactID, "email": email}).Error("Failed to insert contact email")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert contact email")
	}
	return &row, nil
}
