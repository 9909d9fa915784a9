// Package executor applies a merge plan as one atomic unit of work.
package executor

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/harborcrm/clover/internal/database"
	"github.com/harborcrm/clover/internal/repositories/contact"
	"github.com/harborcrm/clover/internal/repositories/contactemail"
	"github.com/harborcrm/clover/internal/repositories/mergeaudit"
	"github.com/harborcrm/clover/internal/repositories/transaction"
	"github.com/harborcrm/clover/internal/tracing"
	"github.com/harborcrm/clover/pkg/models"
)

// Executor runs merge plans. Every write for one plan happens inside a single
// database transaction; failure at any step rolls the whole group back and the
// contact store is left exactly as it was before the attempt.
type Executor struct {
	db           database.DB
	contacts     *contact.Repository
	emails       *contactemail.Repository
	transactions *transaction.Repository
	audits       *mergeaudit.Repository
	logger       ectologger.Logger
}

func New(
	db database.DB,
	contacts *contact.Repository,
	emails *contactemail.Repository,
	transactions *transaction.Repository,
	audits *mergeaudit.Repository,
	logger ectologger.Logger,
) *Executor {
	return &Executor{
		db:           db,
		contacts:     contacts,
		emails:       emails,
		transactions: transactions,
		audits:       audits,
		logger:       logger,
	}
}

// Execute applies one plan. Steps, all-or-nothing: migrate emails onto the
// primary, reassign transaction ownership, soft-delete the duplicates, refresh
// the primary's ledger aggregates, write the audit row, commit. Failures come
// back as *models.GroupError so one group never aborts the rest of a run.
func (e *Executor) Execute(ctx context.Context, plan *models.MergePlan) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "executor.Executor.Execute")
	defer span.End()

	ctxTx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return nil, &models.GroupError{GroupID: plan.GroupID, Stage: "begin transaction", Err: err}
	}
	defer tx.Rollback(ctxTx)

	result := &models.MergeResult{
		GroupID:          plan.GroupID,
		PrimaryContactID: plan.Primary.ID,
	}

	// Step 1: migrate emails. Always is_outreach=false; outreach eligibility
	// is uniquely constrained per contact and never auto-promoted.
	for _, m := range plan.Emails {
		if _, err := e.emails.Insert(ctxTx, plan.Primary.ID, m.Email, m.Source); err != nil {
			return nil, e.fail(ctxTx, plan, "migrate emails", err)
		}
		result.EmailsMigrated = append(result.EmailsMigrated, m.Email)
	}

	// Step 2: transfer transaction ownership. Never a copy.
	for _, dup := range plan.Duplicates {
		moved, err := e.transactions.ReassignOwner(ctxTx, dup.ID, plan.Primary.ID)
		if err != nil {
			return nil, e.fail(ctxTx, plan, "reassign transactions", err)
		}
		result.TransactionsMigrated += int(moved)
	}

	// Step 3: soft-delete duplicates. They stay physically present for audit
	// and undo.
	for _, dup := range plan.Duplicates {
		if err := e.contacts.SoftDelete(ctxTx, dup.ID); err != nil {
			return nil, e.fail(ctxTx, plan, "soft delete duplicates", err)
		}
		result.ContactsSoftDeleted = append(result.ContactsSoftDeleted, dup.ID)
	}

	// Keep the primary's denormalized financial fields consistent with the
	// ledger it just absorbed.
	totalCents, txCount, err := e.transactions.SumAndCountByContact(ctxTx, plan.Primary.ID)
	if err != nil {
		return nil, e.fail(ctxTx, plan, "aggregate transactions", err)
	}
	if err := e.contacts.UpdateAggregates(ctxTx, plan.Primary.ID, totalCents, txCount); err != nil {
		return nil, e.fail(ctxTx, plan, "update aggregates", err)
	}

	// Step 4: one audit row per executed group, written before commit.
	entry := &models.MergeAuditEntry{
		GroupID:              plan.GroupID,
		PrimaryContactID:     plan.Primary.ID,
		PrimaryEmail:         plan.Primary.PrimaryEmail(),
		Confidence:           string(plan.Confidence),
		Reason:               plan.Reason,
		DuplicateIDs:         plan.DuplicateIDs(),
		EmailsMigrated:       result.EmailsMigrated,
		TransactionsMigrated: result.TransactionsMigrated,
	}
	if err := e.audits.Insert(ctxTx, entry); err != nil {
		return nil, e.fail(ctxTx, plan, "write audit record", err)
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, &models.GroupError{GroupID: plan.GroupID, Stage: "commit", Err: err}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"group_id":              plan.GroupID,
		"primary_contact_id":    plan.Primary.ID,
		"emails_migrated":       len(result.EmailsMigrated),
		"transactions_migrated": result.TransactionsMigrated,
		"contacts_soft_deleted": len(result.ContactsSoftDeleted),
	}).Info("Merged duplicate group")

	return result, nil
}

func (e *Executor) fail(ctx context.Context, plan *models.MergePlan, stage string, err error) error {
	e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
		"group_id": plan.GroupID,
		"stage":    stage,
	}).Error("Merge failed, rolling back group")
	return &models.GroupError{GroupID: plan.GroupID, Stage: stage, Err: err}
}
