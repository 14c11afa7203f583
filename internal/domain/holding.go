package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Holding is one holder's balance of one issuer's shards.
// ReservedShares is the part pledged to open sell offers and never exceeds TotalShares.
type Holding struct {
	HoldingID       uuid.UUID       `gorm:"column:holding_id;type:uuid;primaryKey" json:"holding_id"`
	IssuerID        uuid.UUID       `gorm:"column:issuer_id;type:uuid;not null;uniqueIndex:idx_holdings_issuer_holder,priority:1" json:"issuer_id"`
	HolderID        uuid.UUID       `gorm:"column:holder_id;type:uuid;not null;uniqueIndex:idx_holdings_issuer_holder,priority:2;index" json:"holder_id"`
	TotalShares     int64           `gorm:"column:total_shares;not null;default:0" json:"total_shares"`
	ReservedShares  int64           `gorm:"column:reserved_shares;not null;default:0" json:"reserved_shares"`
	LastUnitPrice   decimal.Decimal `gorm:"column:last_unit_price;type:numeric(20,8);not null" json:"last_unit_price"`
	PurchaseRequest bool            `gorm:"column:purchase_request;not null;default:false" json:"purchase_request"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Holding) TableName() string {
	return "holdings"
}

// BeforeCreate: never insert zero UUID for primary key; generate random when not set.
func (h *Holding) BeforeCreate(tx *gorm.DB) error {
	if h.HoldingID == uuid.Nil {
		h.HoldingID = uuid.New()
	}
	return nil
}

// Available is the part of the holding that can still be pledged or transferred.
func (h Holding) Available() int64 {
	return h.TotalShares - h.ReservedShares
}

// Balance is the read-only view of a holding. The zero value means "no holding".
type Balance struct {
	IssuerID  uuid.UUID `json:"issuer_id"`
	HolderID  uuid.UUID `json:"holder_id"`
	Total     int64     `json:"total"`
	Reserved  int64     `json:"reserved"`
	Available int64     `json:"available"`
}
