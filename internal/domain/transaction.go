package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransferRecord is an immutable ledger entry: Shards moved FromHolderID -> ToHolderID.
type TransferRecord struct {
	TransferID    uuid.UUID       `gorm:"column:transfer_id;type:uuid;primaryKey" json:"transfer_id"`
	IssuerID      uuid.UUID       `gorm:"column:issuer_id;type:uuid;not null;index" json:"issuer_id"`
	FromHolderID  uuid.UUID       `gorm:"column:from_holder_id;type:uuid;not null;index" json:"from_holder_id"`
	ToHolderID    uuid.UUID       `gorm:"column:to_holder_id;type:uuid;not null;index" json:"to_holder_id"`
	Shards        int64           `gorm:"column:shards;not null" json:"shards"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(20,8);not null" json:"unit_price"`
	TotalValue    decimal.Decimal `gorm:"column:total_value;type:numeric(28,8);not null" json:"total_value"`
	Fee           decimal.Decimal `gorm:"column:fee;type:numeric(20,8);not null" json:"fee"`
	SequenceToken string          `gorm:"column:sequence_token;type:varchar(36);not null;uniqueIndex" json:"sequence_token"`
	SellOfferID   *uuid.UUID      `gorm:"column:sell_offer_id;type:uuid" json:"sell_offer_id,omitempty"`
	BuyOfferID    *uuid.UUID      `gorm:"column:buy_offer_id;type:uuid" json:"buy_offer_id,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (TransferRecord) TableName() string {
	return "transfer_records"
}

func (t *TransferRecord) BeforeCreate(tx *gorm.DB) error {
	if t.TransferID == uuid.Nil {
		t.TransferID = uuid.New()
	}
	return nil
}
