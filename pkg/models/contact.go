package models

import (
	"strings"
	"time"
)

// Contact is a person or organization in the contact store. Rows are soft
// deleted: a non-nil DeletedAt excludes the row from all normal queries.
type Contact struct {
	ID        string  `db:"id" json:"id"`
	Email     *string `db:"email" json:"email,omitempty"`
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	AltName   string  `db:"alt_name" json:"alt_name,omitempty"`
	Phone     string  `db:"phone" json:"phone,omitempty"`
	AltPhone  string  `db:"alt_phone" json:"alt_phone,omitempty"`

	BillingLine1   string `db:"billing_line1" json:"billing_line1,omitempty"`
	BillingLine2   string `db:"billing_line2" json:"billing_line2,omitempty"`
	BillingCity    string `db:"billing_city" json:"billing_city,omitempty"`
	BillingState   string `db:"billing_state" json:"billing_state,omitempty"`
	BillingPostal  string `db:"billing_postal" json:"billing_postal,omitempty"`
	BillingCountry string `db:"billing_country" json:"billing_country,omitempty"`

	ShippingLine1   string `db:"shipping_line1" json:"shipping_line1,omitempty"`
	ShippingLine2   string `db:"shipping_line2" json:"shipping_line2,omitempty"`
	ShippingCity    string `db:"shipping_city" json:"shipping_city,omitempty"`
	ShippingState   string `db:"shipping_state" json:"shipping_state,omitempty"`
	ShippingPostal  string `db:"shipping_postal" json:"shipping_postal,omitempty"`
	ShippingCountry string `db:"shipping_country" json:"shipping_country,omitempty"`

	SourceSystem            string `db:"source_system" json:"source_system,omitempty"`
	SubscriptionAmountCents *int64 `db:"subscription_amount_cents" json:"subscription_amount_cents,omitempty"`
	TotalSpentCents         int64  `db:"total_spent_cents" json:"total_spent_cents"`
	TransactionCount        int    `db:"transaction_count" json:"transaction_count"`

	DupGroupID   *string    `db:"dup_group_id" json:"dup_group_id,omitempty"`
	DupReason    *string    `db:"dup_reason" json:"dup_reason,omitempty"`
	DupFlaggedAt *time.Time `db:"dup_flagged_at" json:"dup_flagged_at,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Address is one postal address on a contact.
type Address struct {
	Line1   string
	Line2   string
	City    string
	State   string
	Postal  string
	Country string
}

func (a Address) IsEmpty() bool {
	return strings.TrimSpace(a.Line1) == "" && strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.State) == "" && strings.TrimSpace(a.Postal) == ""
}

func (c *Contact) BillingAddress() Address {
	return Address{
		Line1:   c.BillingLine1,
		Line2:   c.BillingLine2,
		City:    c.BillingCity,
		State:   c.BillingState,
		Postal:  c.BillingPostal,
		Country: c.BillingCountry,
	}
}

func (c *Contact) ShippingAddress() Address {
	return Address{
		Line1:   c.ShippingLine1,
		Line2:   c.ShippingLine2,
		City:    c.ShippingCity,
		State:   c.ShippingState,
		Postal:  c.ShippingPostal,
		Country: c.ShippingCountry,
	}
}

// Addresses returns the contact's non-empty addresses, billing first.
func (c *Contact) Addresses() []Address {
	var out []Address
	if a := c.BillingAddress(); !a.IsEmpty() {
		out = append(out, a)
	}
	if a := c.ShippingAddress(); !a.IsEmpty() {
		out = append(out, a)
	}
	return out
}

// Phones returns the contact's non-empty phone values.
func (c *Contact) Phones() []string {
	var out []string
	if strings.TrimSpace(c.Phone) != "" {
		out = append(out, c.Phone)
	}
	if strings.TrimSpace(c.AltPhone) != "" {
		out = append(out, c.AltPhone)
	}
	return out
}

func (c *Contact) HasPhone() bool {
	return len(c.Phones()) > 0
}

func (c *Contact) HasAddress() bool {
	return len(c.Addresses()) > 0
}

func (c *Contact) PrimaryEmail() string {
	if c.Email == nil {
		return ""
	}
	return *c.Email
}

func (c *Contact) DisplayName() string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		name = strings.TrimSpace(c.AltName)
	}
	return name
}

// ContactEmail is a secondary email owned by exactly one contact. At most one
// non-deleted email per contact may be outreach-eligible.
type ContactEmail struct {
	ID         string     `db:"id" json:"id"`
	ContactID  string     `db:"contact_id" json:"contact_id"`
	Email      string     `db:"email" json:"email"`
	Source     string     `db:"source" json:"source,omitempty"`
	IsPrimary  bool       `db:"is_primary" json:"is_primary"`
	IsOutreach bool       `db:"is_outreach" json:"is_outreach"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Transaction is an immutable financial event. Ownership is reassignable only
// through a merge; no other field is ever edited in place.
type Transaction struct {
	ID          string     `db:"id" json:"id"`
	ContactID   string     `db:"contact_id" json:"contact_id"`
	AmountCents int64      `db:"amount_cents" json:"amount_cents"`
	Currency    string     `db:"currency" json:"currency"`
	Type        string     `db:"type" json:"type,omitempty"`
	ExternalRef string     `db:"external_ref" json:"external_ref,omitempty"`
	OccurredAt  time.Time  `db:"occurred_at" json:"occurred_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}
