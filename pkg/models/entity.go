package models

import "time"

// EntityType identifies which CRM entity pool a record belongs to
type EntityType string

const (
	EntityTypeAccount EntityType = "account"
	EntityTypeContact EntityType = "contact"
)

// Valid reports whether the entity type is one of the known pools
func (t EntityType) Valid() bool {
	return t == EntityTypeAccount || t == EntityTypeContact
}

// Account is a CRM company record. Contacts and activities reference it.
type Account struct {
	ID          string     `json:"id" db:"id"`
	WorkspaceID string     `json:"workspace_id" db:"workspace_id"`
	Name        string     `json:"name" db:"name"`
	Domain      *string    `json:"domain,omitempty" db:"domain"`
	Website     *string    `json:"website,omitempty" db:"website"`
	Industry    *string    `json:"industry,omitempty" db:"industry"`
	City        *string    `json:"city,omitempty" db:"city"`
	State       *string    `json:"state,omitempty" db:"state"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Contact is a CRM person record, optionally linked to an account
type Contact struct {
	ID          string     `json:"id" db:"id"`
	WorkspaceID string     `json:"workspace_id" db:"workspace_id"`
	AccountID   *string    `json:"account_id,omitempty" db:"account_id"`
	FirstName   string     `json:"first_name" db:"first_name"`
	LastName    string     `json:"last_name" db:"last_name"`
	Email       *string    `json:"email,omitempty" db:"email"`
	Phone       *string    `json:"phone,omitempty" db:"phone"`
	Title       *string    `json:"title,omitempty" db:"title"`
	City        *string    `json:"city,omitempty" db:"city"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// FullName returns the contact's display name
func (c *Contact) FullName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Activity is a CRM touchpoint (call, email, meeting, note) referencing an
// account and/or a contact
type Activity struct {
	ID          string     `json:"id" db:"id"`
	WorkspaceID string     `json:"workspace_id" db:"workspace_id"`
	AccountID   *string    `json:"account_id,omitempty" db:"account_id"`
	ContactID   *string    `json:"contact_id,omitempty" db:"contact_id"`
	Type        string     `json:"type" db:"type"`
	Subject     string     `json:"subject" db:"subject"`
	Body        *string    `json:"body,omitempty" db:"body"`
	OccurredAt  time.Time  `json:"occurred_at" db:"occurred_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
