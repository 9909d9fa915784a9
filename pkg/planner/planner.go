// Package planner turns a confidence-tiered duplicate group into an executable
// merge plan, or a skip reason when the group fails a safety precondition.
package planner

import (
	"fmt"
	"sort"

	"github.com/harborcrm/clover/pkg/models"
	"github.com/harborcrm/clover/pkg/normalizers"
)

// Config holds planning policy.
type Config struct {
	// AmountToleranceCents is the largest allowed spread between members'
	// confirmed subscription amounts before the group is routed to review.
	AmountToleranceCents int64

	// MinPhoneDigits mirrors detection policy for internal key comparison.
	MinPhoneDigits int
}

// Planner selects the canonical record and computes what must move.
type Planner struct {
	cfg Config
}

func New(cfg Config) *Planner {
	if cfg.MinPhoneDigits <= 0 {
		cfg.MinPhoneDigits = 10
	}
	return &Planner{cfg: cfg}
}

// Plan computes the merge plan for a group, or a skip reason routing it to
// manual review. emailsByContact carries each member's secondary emails so the
// planner stays pure. Exactly one of the return values is non-nil.
func (p *Planner) Plan(group models.DuplicateGroup, emailsByContact map[string][]models.ContactEmail) (*models.MergePlan, *models.SkipReason) {
	if len(group.Members) < 2 {
		return nil, &models.SkipReason{GroupID: group.GroupID, Reason: "group has fewer than 2 members"}
	}

	if reason := p.checkPreconditions(group); reason != "" {
		return nil, &models.SkipReason{GroupID: group.GroupID, Reason: reason}
	}

	primary := p.selectPrimary(group.Members)
	duplicates := make([]models.Contact, 0, len(group.Members)-1)
	for _, m := range group.Members {
		if m.ID != primary.ID {
			duplicates = append(duplicates, m)
		}
	}

	return &models.MergePlan{
		GroupID:    group.GroupID,
		Confidence: group.Confidence,
		Reason:     group.Reason,
		Primary:    primary,
		Duplicates: duplicates,
		Emails:     p.emailMigrations(primary, duplicates, emailsByContact),
	}, nil
}

// selectPrimary applies the deterministic total order: transaction count,
// then record age, then phone presence, then address presence, then ID. The
// record with financial history and historical precedence wins over the one
// with the nicer mailing address.
func (p *Planner) selectPrimary(members []models.Contact) models.Contact {
	candidates := make([]models.Contact, len(members))
	copy(candidates, members)

	sort.Slice(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if a.TransactionCount != b.TransactionCount {
			return a.TransactionCount > b.TransactionCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.HasPhone() != b.HasPhone() {
			return a.HasPhone()
		}
		if a.HasAddress() != b.HasAddress() {
			return a.HasAddress()
		}
		return a.ID < b.ID
	})

	return candidates[0]
}

// checkPreconditions returns a non-empty reason when the group must be routed
// to manual review instead of automatic planning.
func (p *Planner) checkPreconditions(group models.DuplicateGroup) string {
	primaryGrade := 0
	for i := range group.Members {
		if p.isPrimaryGrade(&group.Members[i]) {
			primaryGrade++
		}
	}
	if primaryGrade > 1 {
		return fmt.Sprintf("%d members independently qualify as primary-grade records", primaryGrade)
	}

	if spread, ok := p.subscriptionSpread(group.Members); ok && spread > p.cfg.AmountToleranceCents {
		return fmt.Sprintf("confirmed subscription amounts disagree by %d cents (tolerance %d)", spread, p.cfg.AmountToleranceCents)
	}

	return ""
}

// isPrimaryGrade reports whether a member carries two or more distinct phone
// values or two or more distinct address values internally. Two such members
// in one group signals a noisier merge than the simple two-source collision
// the engine is designed for.
func (p *Planner) isPrimaryGrade(c *models.Contact) bool {
	phones := make(map[string]bool)
	for _, raw := range c.Phones() {
		if key, ok := normalizers.PhoneKey(raw, p.cfg.MinPhoneDigits); ok {
			phones[key] = true
		}
	}
	if len(phones) >= 2 {
		return true
	}

	addresses := make(map[string]bool)
	for _, a := range c.Addresses() {
		if key, ok := normalizers.AddressKey(a.Line1, a.City, a.State, a.Postal); ok {
			addresses[key] = true
		}
	}
	return len(addresses) >= 2
}

// subscriptionSpread returns the max-min spread of confirmed subscription
// amounts, when at least two members carry one.
func (p *Planner) subscriptionSpread(members []models.Contact) (int64, bool) {
	var amounts []int64
	for i := range members {
		if members[i].SubscriptionAmountCents != nil {
			amounts = append(amounts, *members[i].SubscriptionAmountCents)
		}
	}
	if len(amounts) < 2 {
		return 0, false
	}

	min, max := amounts[0], amounts[0]
	for _, a := range amounts[1:] {
		if a < min {
			min = a
		}
		if a > max {
			max = a
		}
	}
	return max - min, true
}

// emailMigrations computes the set of genuinely new emails to copy onto the
// primary: the union of every member's primary and secondary emails minus the
// primary's own. Comparison is case-insensitive; no email is migrated twice.
func (p *Planner) emailMigrations(primary models.Contact, duplicates []models.Contact, emailsByContact map[string][]models.ContactEmail) []models.EmailMigration {
	owned := make(map[string]bool)
	if e := primary.PrimaryEmail(); e != "" {
		owned[normalizers.NormalizeEmail(e)] = true
	}
	for _, se := range emailsByContact[primary.ID] {
		owned[normalizers.NormalizeEmail(se.Email)] = true
	}

	var migrations []models.EmailMigration
	add := func(email, fromContactID string) {
		key := normalizers.NormalizeEmail(email)
		if key == "" || owned[key] {
			return
		}
		owned[key] = true
		migrations = append(migrations, models.EmailMigration{
			Email:         email,
			FromContactID: fromContactID,
			Source:        "merge:" + fromContactID,
		})
	}

	for _, dup := range duplicates {
		if e := dup.PrimaryEmail(); e != "" {
			add(e, dup.ID)
		}
		for _, se := range emailsByContact[dup.ID] {
			add(se.Email, dup.ID)
		}
	}

	return migrations
}
