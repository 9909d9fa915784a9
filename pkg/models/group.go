package models

import "time"

// ConfidenceTier classifies how certain a duplicate detection is. HIGH is the
// only tier eligible for automatic merging; a group is never escalated above it.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "HIGH"
	TierMedium ConfidenceTier = "MEDIUM"
	TierLow    ConfidenceTier = "LOW"
)

// MatchType names the detection strategy that produced a group.
type MatchType string

const (
	MatchTypeName    MatchType = "name"
	MatchTypePhone   MatchType = "phone"
	MatchTypeAddress MatchType = "address"
)

// DuplicateGroup is an ephemeral, derived entity: a set of contacts that
// plausibly represent one real-world person. It is recreated fresh on every
// detection run; GroupID is deterministic over the sorted member IDs so
// repeated runs name the same membership identically.
type DuplicateGroup struct {
	GroupID    string         `json:"group_id"`
	Type       MatchType      `json:"type"`
	Confidence ConfidenceTier `json:"confidence"`
	Reason     string         `json:"reason"`
	Members    []Contact      `json:"members"`

	// ConfirmedBy lists additional strategies that rediscovered the same
	// membership. A rediscovery is a confirmation, not a new group.
	ConfirmedBy []MatchType `json:"confirmed_by,omitempty"`
}

func (g *DuplicateGroup) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

// GroupReport is the row shape consumed by reporting exports and the review
// surface: one entry per group, one contact row per member.
type GroupReport struct {
	GroupID      string               `json:"group_id"`
	Confidence   ConfidenceTier       `json:"confidence"`
	Type         string               `json:"type"`
	Reason       string               `json:"reason"`
	ContactCount int                  `json:"contact_count"`
	Contacts     []GroupReportContact `json:"contacts"`
}

type GroupReportContact struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// NewGroupReport projects a group into the external report shape.
func NewGroupReport(g DuplicateGroup) GroupReport {
	report := GroupReport{
		GroupID:      g.GroupID,
		Confidence:   g.Confidence,
		Type:         string(g.Type),
		Reason:       g.Reason,
		ContactCount: len(g.Members),
		Contacts:     make([]GroupReportContact, 0, len(g.Members)),
	}
	for _, m := range g.Members {
		address := ""
		if addrs := m.Addresses(); len(addrs) > 0 {
			address = addrs[0].Line1
			if addrs[0].City != "" {
				address += ", " + addrs[0].City
			}
		}
		report.Contacts = append(report.Contacts, GroupReportContact{
			ID:        m.ID,
			Email:     m.PrimaryEmail(),
			Phone:     m.Phone,
			Address:   address,
			Source:    m.SourceSystem,
			CreatedAt: m.CreatedAt,
		})
	}
	return report
}
