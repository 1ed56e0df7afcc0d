package notifications

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/payouts-backend/pkg/errors"
)

// Recipient addresses exactly one inbox: a seller organization or a customer.
type Recipient struct {
	OrganizationID *uuid.UUID
	UserID         *uuid.UUID
}

func OrganizationRecipient(id uuid.UUID) Recipient {
	return Recipient{OrganizationID: &id}
}

func UserRecipient(id uuid.UUID) Recipient {
	return Recipient{UserID: &id}
}

func (r Recipient) validate() error {
	var id *uuid.UUID
	switch {
	case r.OrganizationID != nil && r.UserID != nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "notification inbox must be an organization or a user, not both")
	case r.OrganizationID != nil:
		id = r.OrganizationID
	case r.UserID != nil:
		id = r.UserID
	}
	if id == nil || *id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "organization or user scope required")
	}
	return nil
}

func (r Recipient) scope(q *gorm.DB) *gorm.DB {
	if r.OrganizationID != nil {
		return q.Where("organization_id = ?", *r.OrganizationID)
	}
	return q.Where("user_id = ?", *r.UserID)
}
