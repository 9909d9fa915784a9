// Package engine orchestrates the dedupe pipeline: detect, score, plan,
// execute, flag. It is a single-threaded batch process; safety comes from
// database transaction isolation, not in-process locking.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/harborcrm/clover/internal/appcontext"
	"github.com/harborcrm/clover/internal/repositories/contact"
	"github.com/harborcrm/clover/internal/repositories/contactemail"
	"github.com/harborcrm/clover/internal/tracing"
	"github.com/harborcrm/clover/pkg/detector"
	"github.com/harborcrm/clover/pkg/executor"
	"github.com/harborcrm/clover/pkg/models"
	"github.com/harborcrm/clover/pkg/planner"
	"github.com/harborcrm/clover/pkg/scoring"
)

// AutoMergeTierHigh merges HIGH groups automatically; AutoMergeTierNever
// routes everything to review.
const (
	AutoMergeTierHigh  = "high"
	AutoMergeTierNever = "never"
)

// MergeEventEmitter notifies downstream systems after a merge commits.
type MergeEventEmitter interface {
	EmitContactsMerged(ctx context.Context, result *models.MergeResult) error
}

// Config holds engine policy.
type Config struct {
	AutoMergeTier string
}

// Scope limits a run to one named group or the first N groups, for staged
// rollout.
type Scope struct {
	GroupID string
	Limit   int
}

type Engine struct {
	cfg      Config
	detector *detector.Detector
	scorer   *scoring.Scorer
	planner  *planner.Planner
	executor *executor.Executor
	contacts *contact.Repository
	emails   *contactemail.Repository
	emitter  MergeEventEmitter
	logger   ectologger.Logger
}

// New wires the engine. emitter may be nil when event emission is disabled.
func New(
	cfg Config,
	det *detector.Detector,
	scorer *scoring.Scorer,
	pln *planner.Planner,
	exec *executor.Executor,
	contacts *contact.Repository,
	emails *contactemail.Repository,
	emitter MergeEventEmitter,
	logger ectologger.Logger,
) *Engine {
	if cfg.AutoMergeTier == "" {
		cfg.AutoMergeTier = AutoMergeTierHigh
	}
	return &Engine{
		cfg:      cfg,
		detector: det,
		scorer:   scorer,
		planner:  pln,
		executor: exec,
		contacts: contacts,
		emails:   emails,
		emitter:  emitter,
		logger:   logger,
	}
}

// Detect runs detection and scoring over a snapshot of the active contacts.
// Read-only; no transaction is held open across the pass.
func (e *Engine) Detect(ctx context.Context, scope Scope) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.Detect")
	defer span.End()

	contacts, err := e.contacts.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	groups := e.detector.Detect(ctx, contacts)
	for i := range groups {
		tier, reason := e.scorer.Score(&groups[i])
		groups[i].Confidence = tier
		groups[i].Reason = reason
	}

	return applyScope(groups, scope), nil
}

// Flag writes the advisory (group_id, reason, flagged_at) triple onto every
// member contact. Flags are review metadata; the executor never reads them.
func (e *Engine) Flag(ctx context.Context, groups []models.DuplicateGroup) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.Flag")
	defer span.End()

	flaggedAt := time.Now().UTC()
	var total int64
	for _, g := range groups {
		reason := fmt.Sprintf("%s: %s", g.Confidence, g.Reason)
		n, err := e.contacts.SetFlags(ctx, g.MemberIDs(), g.GroupID, reason, flaggedAt)
		if err != nil {
			return total, err
		}
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"group_id": g.GroupID,
			"reason":   reason,
			"count":    n,
		}).Info("Flagged duplicate group for review")
		total += n
	}
	return total, nil
}

// ClearFlags resets the advisory flag fields everywhere. Destructive only to
// the three flag columns.
func (e *Engine) ClearFlags(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.ClearFlags")
	defer span.End()

	return e.contacts.ClearFlags(ctx)
}

// Merge runs the full pipeline. In dry-run mode it plans every eligible group
// and reports what would change without opening a write transaction. Groups
// are independent: a failed group is recorded and the run continues.
func (e *Engine) Merge(ctx context.Context, scope Scope, dryRun bool) (*models.RunReport, []models.MergePlan, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.Engine.Merge")
	defer span.End()

	groups, err := e.Detect(ctx, scope)
	if err != nil {
		return nil, nil, err
	}

	report := &models.RunReport{}
	var plans []models.MergePlan

	for _, group := range groups {
		report.GroupsProcessed++

		if e.cfg.AutoMergeTier == AutoMergeTierNever || group.Confidence != models.TierHigh {
			skip := models.SkipReason{
				GroupID: group.GroupID,
				Reason:  fmt.Sprintf("confidence %s requires manual review (%s)", group.Confidence, group.Reason),
			}
			report.Skipped = append(report.Skipped, skip)
			e.logger.WithContext(ctx).WithFields(map[string]any{
				"group_id":   group.GroupID,
				"confidence": group.Confidence,
				"reason":     group.Reason,
			}).Info("Skipping group below auto-merge tier")
			continue
		}

		emailsByContact, err := e.loadEmails(ctx, group.MemberIDs())
		if err != nil {
			report.Errors = append(report.Errors, (&models.GroupError{GroupID: group.GroupID, Stage: "load emails", Err: err}).Error())
			continue
		}

		plan, skip := e.planner.Plan(group, emailsByContact)
		if skip != nil {
			report.Skipped = append(report.Skipped, *skip)
			e.logger.WithContext(ctx).WithFields(map[string]any{
				"group_id": skip.GroupID,
				"reason":   skip.Reason,
			}).Warn("Group failed safety precondition, routed to review")
			continue
		}

		plans = append(plans, *plan)

		if dryRun {
			report.ContactsMerged += len(plan.Duplicates)
			report.EmailsMigrated += len(plan.Emails)
			for _, dup := range plan.Duplicates {
				report.TransactionsMigrated += dup.TransactionCount
			}
			report.ContactsSoftDeleted += len(plan.Duplicates)
			continue
		}

		result, err := e.executor.Execute(ctx, plan)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}

		report.ContactsMerged += len(result.ContactsSoftDeleted)
		report.EmailsMigrated += len(result.EmailsMigrated)
		report.TransactionsMigrated += result.TransactionsMigrated
		report.ContactsSoftDeleted += len(result.ContactsSoftDeleted)

		if e.emitter != nil {
			// The merge is already durable; a failed emit is logged, not fatal.
			if err := e.emitter.EmitContactsMerged(ctx, result); err != nil {
				e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"group_id": result.GroupID}).Warn("Merge event emission failed")
			}
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":                appcontext.GetRunID(ctx),
		"dry_run":               dryRun,
		"groups_processed":      report.GroupsProcessed,
		"contacts_merged":       report.ContactsMerged,
		"emails_migrated":       report.EmailsMigrated,
		"transactions_migrated": report.TransactionsMigrated,
		"skipped":               len(report.Skipped),
		"errors":                len(report.Errors),
	}).Info("Merge run complete")

	return report, plans, nil
}

func (e *Engine) loadEmails(ctx context.Context, contactIDs []string) (map[string][]models.ContactEmail, error) {
	emails, err := e.emails.ListByContactIDs(ctx, contactIDs)
	if err != nil {
		return nil, err
	}
	byContact := make(map[string][]models.ContactEmail, len(contactIDs))
	for _, em := range emails {
		byContact[em.ContactID] = append(byContact[em.ContactID], em)
	}
	return byContact, nil
}

func applyScope(groups []models.DuplicateGroup, scope Scope) []models.DuplicateGroup {
	if scope.GroupID != "" {
		for _, g := range groups {
			if g.GroupID == scope.GroupID {
				return []models.DuplicateGroup{g}
			}
		}
		return nil
	}
	if scope.Limit > 0 && len(groups) > scope.Limit {
		return groups[:scope.Limit]
	}
	return groups
}
