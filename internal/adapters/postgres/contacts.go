package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"croaudit/internal/domain"
)

// Contacts implements ports.ContactRepository.
type Contacts struct{ db *DB }

func NewContacts(db *DB) *Contacts { return &Contacts{db: db} }

// Save inserts the contact unless (audit_id, email) is already stored.
func (c *Contacts) Save(ctx context.Context, contact domain.Contact) (bool, error) {
	var id string
	err := c.db.Pool.QueryRow(ctx, `
        INSERT INTO audit_contacts (audit_id, name, email, phone, submitted_at)
        VALUES ($1, $2, lower($3), $4, $5)
        ON CONFLICT (audit_id, email) DO NOTHING
        RETURNING id::text
    `, contact.AuditID, contact.Name, contact.Email, contact.Phone, contact.SubmittedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, translate(err)
	}
	return true, nil
}
