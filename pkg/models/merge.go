package models

import "fmt"

// MergePlan designates exactly one group member as the surviving primary and
// records what must move for audit purposes. Plans are computed on demand and
// never persisted separately from their resulting audit record.
type MergePlan struct {
	GroupID    string           `json:"group_id"`
	Confidence ConfidenceTier   `json:"confidence"`
	Reason     string           `json:"reason"`
	Primary    Contact          `json:"primary"`
	Duplicates []Contact        `json:"duplicates"`
	Emails     []EmailMigration `json:"emails"`
}

// EmailMigration is one email that must be copied onto the primary contact.
type EmailMigration struct {
	Email         string `json:"email"`
	FromContactID string `json:"from_contact_id"`
	Source        string `json:"source"`
}

func (p *MergePlan) DuplicateIDs() []string {
	ids := make([]string, 0, len(p.Duplicates))
	for _, d := range p.Duplicates {
		ids = append(ids, d.ID)
	}
	return ids
}

// SkipReason routes a group to manual review instead of automatic planning.
type SkipReason struct {
	GroupID string `json:"group_id"`
	Reason  string `json:"reason"`
}

// MergeResult records what one committed merge actually changed.
type MergeResult struct {
	GroupID              string   `json:"group_id"`
	PrimaryContactID     string   `json:"primary_contact_id"`
	EmailsMigrated       []string `json:"emails_migrated"`
	TransactionsMigrated int      `json:"transactions_migrated"`
	ContactsSoftDeleted  []string `json:"contacts_soft_deleted"`
}

// GroupError is a typed per-group failure. One group's failure never aborts
// the rest of the run.
type GroupError struct {
	GroupID string
	Stage   string
	Err     error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("group %s failed at %s: %v", e.GroupID, e.Stage, e.Err)
}

func (e *GroupError) Unwrap() error {
	return e.Err
}

// RunReport summarizes one engine run.
type RunReport struct {
	GroupsProcessed      int          `json:"groups_processed"`
	ContactsMerged       int          `json:"contacts_merged"`
	EmailsMigrated       int          `json:"emails_migrated"`
	TransactionsMigrated int          `json:"transactions_migrated"`
	ContactsSoftDeleted  int          `json:"contacts_soft_deleted"`
	Skipped              []SkipReason `json:"skipped,omitempty"`
	Errors               []string     `json:"errors,omitempty"`
}
