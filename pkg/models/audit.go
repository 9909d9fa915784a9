package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringSlice maps a JSONB array column to a []string.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(src any) error {
	if src == nil {
		*s = nil
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringSlice", src)
	}
	return json.Unmarshal(b, s)
}

// MergeAuditEntry is the per-group audit record written inside the merge
// transaction, before commit.
type MergeAuditEntry struct {
	ID                   string      `db:"id" json:"id"`
	GroupID              string      `db:"group_id" json:"group_id"`
	PrimaryContactID     string      `db:"primary_contact_id" json:"primary_contact_id"`
	PrimaryEmail         string      `db:"primary_email" json:"primary_email"`
	Confidence           string      `db:"confidence" json:"confidence"`
	Reason               string      `db:"reason" json:"reason"`
	DuplicateIDs         StringSlice `db:"duplicate_ids" json:"duplicates_merged"`
	EmailsMigrated       StringSlice `db:"emails_migrated" json:"emails_migrated"`
	TransactionsMigrated int         `db:"transactions_migrated" json:"transactions_migrated"`
	CreatedAt            time.Time   `db:"created_at" json:"timestamp"`
}
