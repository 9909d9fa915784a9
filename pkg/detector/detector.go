// Package detector finds candidate duplicate groups in the contact store.
package detector

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/harborcrm/clover/internal/tracing"
	"github.com/harborcrm/clover/pkg/fingerprint"
	"github.com/harborcrm/clover/pkg/models"
	"github.com/harborcrm/clover/pkg/normalizers"
)

// Config holds detection policy.
type Config struct {
	// MinPhoneDigits is the minimum digit count for a usable phone key.
	MinPhoneDigits int

	// DetectAddress enables the household address strategy.
	DetectAddress bool

	// MaxGroupSize drops groups larger than this. A key shared by dozens of
	// contacts signals corrupt upstream data, not a duplicate person.
	MaxGroupSize int
}

// Detector runs the matching strategies over an in-memory snapshot of
// contacts. Detection is read-only and holds no transaction open.
type Detector struct {
	cfg    Config
	logger ectologger.Logger
}

func New(cfg Config, logger ectologger.Logger) *Detector {
	if cfg.MinPhoneDigits <= 0 {
		cfg.MinPhoneDigits = 10
	}
	if cfg.MaxGroupSize <= 0 {
		cfg.MaxGroupSize = 25
	}
	return &Detector{
		cfg:    cfg,
		logger: logger,
	}
}

// Detect runs every enabled strategy and merges results by group id. A later
// strategy that rediscovers an already-found membership confirms the existing
// group rather than emitting a new one. Groups come back without a confidence
// tier; scoring is a separate concern.
func (d *Detector) Detect(ctx context.Context, contacts []models.Contact) []models.DuplicateGroup {
	ctx, span := tracing.StartSpan(ctx, "detector.Detector.Detect")
	defer span.End()

	type strategy struct {
		matchType models.MatchType
		keys      func(c *models.Contact) []string
	}

	strategies := []strategy{
		{models.MatchTypeName, d.nameKeys},
		{models.MatchTypePhone, d.phoneKeys},
	}
	if d.cfg.DetectAddress {
		strategies = append(strategies, strategy{models.MatchTypeAddress, d.addressKeys})
	}

	byGroupID := make(map[string]*models.DuplicateGroup)
	var order []string

	for _, strat := range strategies {
		for _, members := range d.groupByKey(ctx, contacts, strat.matchType, strat.keys) {
			if len(members) < 2 {
				continue
			}
			if len(members) > d.cfg.MaxGroupSize {
				d.logger.WithContext(ctx).WithFields(map[string]any{
					"strategy": strat.matchType,
					"size":     len(members),
					"max":      d.cfg.MaxGroupSize,
				}).Warn("Dropping oversized candidate group")
				continue
			}

			ids := make([]string, 0, len(members))
			for _, m := range members {
				ids = append(ids, m.ID)
			}
			groupID := fingerprint.GroupID(ids)

			if existing, ok := byGroupID[groupID]; ok {
				existing.ConfirmedBy = append(existing.ConfirmedBy, strat.matchType)
				continue
			}

			sortMembers(members)
			byGroupID[groupID] = &models.DuplicateGroup{
				GroupID: groupID,
				Type:    strat.matchType,
				Members: members,
			}
			order = append(order, groupID)
		}
	}

	groups := make([]models.DuplicateGroup, 0, len(byGroupID))
	sort.Strings(order)
	for _, id := range order {
		groups = append(groups, *byGroupID[id])
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"contacts": len(contacts),
		"groups":   len(groups),
	}).Info("Detection pass complete")

	return groups
}

// groupByKey buckets contacts by each normalized key a strategy yields for
// them. Contacts whose key cannot be computed are excluded from that strategy,
// never failed.
func (d *Detector) groupByKey(ctx context.Context, contacts []models.Contact, matchType models.MatchType, keys func(c *models.Contact) []string) map[string][]models.Contact {
	buckets := make(map[string][]models.Contact)
	for i := range contacts {
		c := &contacts[i]
		ks := keys(c)
		if len(ks) == 0 {
			d.logger.WithContext(ctx).WithFields(map[string]any{
				"contact_id": c.ID,
				"strategy":   matchType,
			}).Debug("Contact has no usable key for strategy")
			continue
		}
		seen := make(map[string]bool, len(ks))
		for _, k := range ks {
			if seen[k] {
				continue
			}
			seen[k] = true
			buckets[k] = append(buckets[k], *c)
		}
	}
	return buckets
}

func (d *Detector) nameKeys(c *models.Contact) []string {
	if key, ok := normalizers.NameKey(c.FirstName, c.LastName); ok {
		return []string{key}
	}
	if key, ok := normalizers.NameKey(c.AltName, ""); ok {
		return []string{key}
	}
	return nil
}

func (d *Detector) phoneKeys(c *models.Contact) []string {
	var keys []string
	for _, phone := range c.Phones() {
		if key, ok := normalizers.PhoneKey(phone, d.cfg.MinPhoneDigits); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func (d *Detector) addressKeys(c *models.Contact) []string {
	var keys []string
	for _, a := range c.Addresses() {
		if key, ok := normalizers.AddressKey(a.Line1, a.City, a.State, a.Postal); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func sortMembers(members []models.Contact) {
	sort.Slice(members, func(i, j int) bool {
		if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		}
		return members[i].ID < members[j].ID
	})
}
