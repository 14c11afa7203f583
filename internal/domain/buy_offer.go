package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BuyOfferStatus string

const (
	BuyOfferCreated       BuyOfferStatus = "created"
	BuyOfferAccepted      BuyOfferStatus = "accepted"
	BuyOfferDeclined      BuyOfferStatus = "declined"
	BuyOfferCancelledHold BuyOfferStatus = "cancelled_hold"
)

type BuyOfferKind string

const (
	// BuyOfferAlternative is a counter-offer against a sell offer.
	BuyOfferAlternative BuyOfferKind = "alternative"
	// BuyOfferDirect is an unsolicited offer to a specific holder.
	BuyOfferDirect BuyOfferKind = "direct"
)

// BuyOffer is a proposal by BuyerID to buy Amount shards at UnitPrice.
// SellOfferID is set for alternative offers, TargetHolderID for direct offers.
type BuyOffer struct {
	BuyOfferID     uuid.UUID       `gorm:"column:buy_offer_id;type:uuid;primaryKey" json:"buy_offer_id"`
	Kind           BuyOfferKind    `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	IssuerID       uuid.UUID       `gorm:"column:issuer_id;type:uuid;not null;index" json:"issuer_id"`
	BuyerID        uuid.UUID       `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyer_id"`
	SellOfferID    *uuid.UUID      `gorm:"column:sell_offer_id;type:uuid;index" json:"sell_offer_id"`
	TargetHolderID *uuid.UUID      `gorm:"column:target_holder_id;type:uuid;index" json:"target_holder_id"`
	Amount         int64           `gorm:"column:amount;not null" json:"amount"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(20,8);not null" json:"unit_price"`
	Status         BuyOfferStatus  `gorm:"column:status;type:varchar(20);not null;default:'created';index" json:"status"`
	ExpiresAt      *time.Time      `gorm:"column:expires_at" json:"expires_at"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (BuyOffer) TableName() string {
	return "buy_offers"
}

func (o *BuyOffer) BeforeCreate(tx *gorm.DB) error {
	if o.BuyOfferID == uuid.Nil {
		o.BuyOfferID = uuid.New()
	}
	if o.Status == "" {
		o.Status = BuyOfferCreated
	}
	return nil
}

// Expired reports whether an offer with an expiry is past it at now.
func (o BuyOffer) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && o.ExpiresAt.Before(now)
}
