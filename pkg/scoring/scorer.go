// Package scoring assigns a confidence tier and human-readable reason to a
// candidate duplicate group.
package scoring

import (
	"strings"

	"github.com/harborcrm/clover/pkg/models"
	"github.com/harborcrm/clover/pkg/normalizers"
)

// Reason strings are part of the external contract: they land on flag columns,
// audit rows and exports, and reviewers grep for them.
const (
	ReasonSameNamePhone     = "same name + phone"
	ReasonSameNameAddress   = "same name + address"
	ReasonSameNameOnly      = "same name only"
	ReasonSamePhoneSameName = "same phone + same name"
	ReasonSharedLine        = "same phone, different names (possible shared line)"
	ReasonSameAddressName   = "same address + same name"
	ReasonSharedHousehold   = "same address, different names (shared household)"
)

// Config holds scoring policy.
type Config struct {
	MinPhoneDigits int
}

// Scorer is a pure rule table: strategy type plus member field values in,
// tier plus reason out. No I/O.
type Scorer struct {
	cfg Config
}

func New(cfg Config) *Scorer {
	if cfg.MinPhoneDigits <= 0 {
		cfg.MinPhoneDigits = 10
	}
	return &Scorer{cfg: cfg}
}

// Score evaluates the rule table for one group. Rules are checked in
// precedence order; the first satisfied rule decides the tier and every
// satisfied reason is concatenated into the explanation. A group is never
// escalated above HIGH.
func (s *Scorer) Score(group *models.DuplicateGroup) (models.ConfidenceTier, string) {
	switch group.Type {
	case models.MatchTypeName:
		return s.scoreNameGroup(group)
	case models.MatchTypePhone:
		return s.scorePhoneGroup(group)
	case models.MatchTypeAddress:
		return s.scoreAddressGroup(group)
	default:
		return models.TierLow, "unknown strategy"
	}
}

func (s *Scorer) scoreNameGroup(group *models.DuplicateGroup) (models.ConfidenceTier, string) {
	var reasons []string
	tier := models.TierMedium

	if s.allShareKey(group.Members, s.phoneKeys) {
		tier = models.TierHigh
		reasons = append(reasons, ReasonSameNamePhone)
	}
	if s.allShareKey(group.Members, s.addressKeys) {
		if tier != models.TierHigh {
			tier = models.TierHigh
		}
		reasons = append(reasons, ReasonSameNameAddress)
	}
	if len(reasons) == 0 {
		// Name agreement alone is resolvable only with further evidence.
		reasons = append(reasons, ReasonSameNameOnly)
	}

	return tier, strings.Join(reasons, "; ")
}

func (s *Scorer) scorePhoneGroup(group *models.DuplicateGroup) (models.ConfidenceTier, string) {
	if s.distinctNameCount(group.Members) == 1 {
		return models.TierHigh, ReasonSamePhoneSameName
	}
	// Cardinality-risk guard: many people can legitimately share one landline.
	return models.TierMedium, ReasonSharedLine
}

func (s *Scorer) scoreAddressGroup(group *models.DuplicateGroup) (models.ConfidenceTier, string) {
	// An address match is household evidence, not identity evidence, so it
	// never reaches HIGH on its own.
	if s.distinctNameCount(group.Members) == 1 {
		return models.TierMedium, ReasonSameAddressName
	}
	return models.TierLow, ReasonSharedHousehold
}

// allShareKey reports whether one key value is present on every member.
func (s *Scorer) allShareKey(members []models.Contact, keys func(c *models.Contact) []string) bool {
	if len(members) == 0 {
		return false
	}

	counts := make(map[string]int)
	for i := range members {
		ks := keys(&members[i])
		if len(ks) == 0 {
			return false
		}
		seen := make(map[string]bool, len(ks))
		for _, k := range ks {
			if seen[k] {
				continue
			}
			seen[k] = true
			counts[k]++
		}
	}

	for _, n := range counts {
		if n == len(members) {
			return true
		}
	}
	return false
}

// distinctNameCount counts distinct normalized names across members. A member
// whose name cannot be normalized counts as its own distinct identity; absence
// of a name is not evidence of sameness.
func (s *Scorer) distinctNameCount(members []models.Contact) int {
	names := make(map[string]bool)
	unknown := 0
	for i := range members {
		m := &members[i]
		key, ok := normalizers.NameKey(m.FirstName, m.LastName)
		if !ok {
			key, ok = normalizers.NameKey(m.AltName, "")
		}
		if !ok {
			unknown++
			continue
		}
		names[key] = true
	}
	return len(names) + unknown
}

func (s *Scorer) phoneKeys(c *models.Contact) []string {
	var keys []string
	for _, phone := range c.Phones() {
		if key, ok := normalizers.PhoneKey(phone, s.cfg.MinPhoneDigits); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func (s *Scorer) addressKeys(c *models.Contact) []string {
	var keys []string
	for _, a := range c.Addresses() {
		if key, ok := normalizers.AddressKey(a.Line1, a.City, a.State, a.Postal); ok {
			keys = append(keys, key)
		}
	}
	return keys
}
