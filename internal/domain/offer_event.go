package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OfferType string

const (
	OfferTypeSell OfferType = "sell"
	OfferTypeBuy  OfferType = "buy"
)

// Offer lifecycle event types.
const (
	EventCreated       = "CREATED"
	EventCartReserved  = "CART_RESERVED"
	EventCartReleased  = "CART_RELEASED"
	EventCartExpired   = "CART_EXPIRED"
	EventAccepted      = "ACCEPTED"
	EventDeclined      = "DECLINED"
	EventCancelledHold = "CANCELLED_HOLD"
	EventExpired       = "EXPIRED"
	EventRemoved       = "REMOVED"
)

// OfferEvent is an append-only audit entry for a sell or buy offer transition.
// ActorID is nil for transitions made by background jobs.
type OfferEvent struct {
	EventID   uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	OfferID   uuid.UUID      `gorm:"column:offer_id;type:uuid;not null;index" json:"offer_id"`
	OfferType OfferType      `gorm:"column:offer_type;type:varchar(10);not null" json:"offer_type"`
	EventType string         `gorm:"column:event_type;type:varchar(30);not null" json:"event_type"`
	ActorID   *uuid.UUID     `gorm:"column:actor_id;type:uuid" json:"actor_id"`
	EventData datatypes.JSON `gorm:"column:event_data;type:jsonb;not null" json:"event_data"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (OfferEvent) TableName() string {
	return "offer_events"
}

func (e *OfferEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}
