package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SellOfferStatus string

const (
	SellOfferCreated  SellOfferStatus = "created"
	SellOfferReserved SellOfferStatus = "reserved"
	SellOfferAccepted SellOfferStatus = "accepted"
	SellOfferDeclined SellOfferStatus = "declined"
	SellOfferRemoved  SellOfferStatus = "removed"
)

// SellOffer is a standing offer by SellerID to sell Amount shards of IssuerID.
// ReservedByBuyerID and ReservedUntil are set only while Status is reserved (a buyer's cart hold).
type SellOffer struct {
	SellOfferID                  uuid.UUID       `gorm:"column:sell_offer_id;type:uuid;primaryKey" json:"sell_offer_id"`
	IssuerID                     uuid.UUID       `gorm:"column:issuer_id;type:uuid;not null;index" json:"issuer_id"`
	SellerID                     uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	Amount                       int64           `gorm:"column:amount;not null" json:"amount"`
	UnitPrice                    decimal.Decimal `gorm:"column:unit_price;type:numeric(20,8);not null" json:"unit_price"`
	AllowAlternativeOffers       bool            `gorm:"column:allow_alternative_offers;not null;default:false" json:"allow_alternative_offers"`
	Status                       SellOfferStatus `gorm:"column:status;type:varchar(20);not null;default:'created';index" json:"status"`
	ReservedByBuyerID            *uuid.UUID      `gorm:"column:reserved_by_buyer_id;type:uuid;index" json:"reserved_by_buyer_id"`
	ReservedUntil                *time.Time      `gorm:"column:reserved_until" json:"reserved_until"`
	ActiveAlternativeOffersCount int             `gorm:"column:active_alternative_offers_count;not null;default:0" json:"active_alternative_offers_count"`
	CreatedAt                    time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt                    time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (SellOffer) TableName() string {
	return "sell_offers"
}

// BeforeCreate sets sell_offer_id if not already set (DBs without default uuid).
func (o *SellOffer) BeforeCreate(tx *gorm.DB) error {
	if o.SellOfferID == uuid.Nil {
		o.SellOfferID = uuid.New()
	}
	if o.Status == "" {
		o.Status = SellOfferCreated
	}
	return nil
}
