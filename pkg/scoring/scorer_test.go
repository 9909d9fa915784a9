package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harborcrm/clover/pkg/models"
)

func newScorer() *Scorer {
	return New(Config{MinPhoneDigits: 10})
}

func member(first, last, phone string) models.Contact {
	return models.Contact{
		ID:        first + last,
		FirstName: first,
		LastName:  last,
		Phone:     phone,
		CreatedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestScoreNamePlusPhoneIsHigh(t *testing.T) {
	group := &models.DuplicateGroup{
		Type: models.MatchTypeName,
		Members: []models.Contact{
			member("Lynn", "Ryan", "555-010-0100"),
			member("Lynn", "Ryan", "+1 555 010 0100"),
		},
	}

	tier, reason := newScorer().Score(group)
	assert.Equal(t, models.TierHigh, tier)
	assert.Contains(t, reason, ReasonSameNamePhone)
}

func TestScoreNamePlusAddressIsHigh(t *testing.T) {
	a := member("Lynn", "Ryan", "")
	a.BillingLine1, a.BillingCity, a.BillingState, a.BillingPostal = "12 Oak St", "Dover", "DE", "19901"
	b := member("Lynn", "Ryan", "")
	b.BillingLine1, b.BillingCity, b.BillingState, b.BillingPostal = "12 Oak Street", "Dover", "DE", "19901"

	group := &models.DuplicateGroup{Type: models.MatchTypeName, Members: []models.Contact{a, b}}
	tier, reason := newScorer().Score(group)
	assert.Equal(t, models.TierHigh, tier)
	assert.Contains(t, reason, ReasonSameNameAddress)
}

func TestScoreNamePhoneAndAddressConcatenatesReasons(t *testing.T) {
	a := member("Lynn", "Ryan", "555-010-0100")
	a.BillingLine1, a.BillingCity = "12 Oak St", "Dover"
	b := member("Lynn", "Ryan", "555-010-0100")
	b.BillingLine1, b.BillingCity = "12 Oak Street", "Dover"

	group := &models.DuplicateGroup{Type: models.MatchTypeName, Members: []models.Contact{a, b}}
	tier, reason := newScorer().Score(group)
	assert.Equal(t, models.TierHigh, tier)
	assert.Contains(t, reason, ReasonSameNamePhone)
	assert.Contains(t, reason, ReasonSameNameAddress)
}

func TestScoreNameOnlyIsMedium(t *testing.T) {
	group := &models.DuplicateGroup{
		Type: models.MatchTypeName,
		Members: []models.Contact{
			member("Lynn", "Ryan", "555-010-0100"),
			member("Lynn", "Ryan", "555-010-9999"),
		},
	}

	tier, reason := newScorer().Score(group)
	assert.Equal(t, models.TierMedium, tier)
	assert.Equal(t, ReasonSameNameOnly, reason)
}

func TestScorePhoneSameNameIsHigh(t *testing.T) {
	group := &models.DuplicateGroup{
		Type: models.MatchTypePhone,
		Members: []models.Contact{
			member("Lynn", "Ryan", "555-010-0100"),
			member("lynn", "RYAN", "555-010-0100"),
		},
	}

	tier, reason := newScorer().Score(group)
	assert.Equal(t, models.TierHigh, tier)
	assert.Equal(t, ReasonSamePhoneSameName, reason)
}

func TestScoreSharedLineIsMedium(t *testing.T) {
	group := &models.DuplicateGroup{
		Type: models.MatchTypePhone,
		Members: []models.Contact{
			member("Lynn", "Ryan", "555-010-0100"),
			member("Pat", "Ryan", "555-010-0100"),
		},
	}

	tier, reason := newScorer().Score(group)
	assert.Equal(t, models.TierMedium, tier)
	assert.Equal(t, ReasonSharedLine, reason)
}

func TestScoreMissingNameIsNotSameness(t *testing.T) {
	group := &models.DuplicateGroup{
		Type: models.MatchTypePhone,
		Members: []models.Contact{
			member("Lynn", "Ryan", "555-010-0100"),
			member("", "", "555-010-0100"),
		},
	}

	tier, _ := newScorer().Score(group)
	assert.Equal(t, models.TierMedium, tier)
}

func TestScoreSharedHouseholdNeverHigh(t *testing.T) {
	// Three people at one address with the same last name but different first
	// names: household, not identity.
	var members []models.Contact
	for _, first := range []string{"Ana", "Ben", "Cal"} {
		c := member(first, "Reyes", "")
		c.BillingLine1, c.BillingCity, c.BillingState, c.BillingPostal = "12 Oak St", "Dover", "DE", "19901"
		members = append(members, c)
	}

	group := &models.DuplicateGroup{Type: models.MatchTypeAddress, Members: members}
	tier, reason := newScorer().Score(group)
	assert.NotEqual(t, models.TierHigh, tier)
	assert.Equal(t, models.TierLow, tier)
	assert.Equal(t, ReasonSharedHousehold, reason)
}

func TestScoreAddressSameNameIsMediumAtMost(t *testing.T) {
	a := member("Lynn", "Ryan", "")
	a.BillingLine1, a.BillingCity = "12 Oak St", "Dover"
	b := member("Lynn", "Ryan", "")
	b.BillingLine1, b.BillingCity = "12 Oak St", "Dover"

	group := &models.DuplicateGroup{Type: models.MatchTypeAddress, Members: []models.Contact{a, b}}
	tier, reason := newScorer().Score(group)
	assert.Equal(t, models.TierMedium, tier)
	assert.Equal(t, ReasonSameAddressName, reason)
}
