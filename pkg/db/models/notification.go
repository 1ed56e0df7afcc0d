package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payouts-backend/pkg/enums"
)

// Notification stores in-app notifications addressed to a seller organization or a customer.
type Notification struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	EventID        uuid.UUID              `gorm:"column:event_id;type:uuid;not null;index" json:"event_id"`
	OrganizationID *uuid.UUID             `gorm:"column:organization_id;type:uuid;index" json:"organization_id"`
	UserID         *uuid.UUID             `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	Type           enums.NotificationType `gorm:"column:type;type:text;not null" json:"type"`
	EntityID       uuid.UUID              `gorm:"column:entity_id;type:uuid;not null" json:"entity_id"`
	Title          string                 `gorm:"column:title;type:text;not null" json:"title"`
	Message        string                 `gorm:"column:message;type:text;not null" json:"message"`
	Link           *string                `gorm:"column:link;type:text" json:"link"`
	ReadAt         *time.Time             `gorm:"column:read_at" json:"read_at"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
