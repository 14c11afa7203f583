package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Issuer is the tradable entity whose fixed supply is split into shards.
// HolderID is the issuer's own holder account; TotalAmount is fixed once InitializedAt is set.
type Issuer struct {
	IssuerID      uuid.UUID       `gorm:"column:issuer_id;type:uuid;primaryKey" json:"issuer_id"`
	HolderID      uuid.UUID       `gorm:"column:holder_id;type:uuid;not null;uniqueIndex" json:"holder_id"`
	Name          string          `gorm:"column:name;not null" json:"name"`
	Rating        string          `gorm:"column:rating;type:varchar(10)" json:"rating"`
	InitSalePrice decimal.Decimal `gorm:"column:init_sale_price;type:numeric(20,8);not null" json:"init_sale_price"`
	TotalAmount   int64           `gorm:"column:total_amount;not null;default:0" json:"total_amount"`
	StartOfSales  *time.Time      `gorm:"column:start_of_sales" json:"start_of_sales"`
	InitializedAt *time.Time      `gorm:"column:initialized_at" json:"initialized_at"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Issuer) TableName() string {
	return "issuers"
}

func (i *Issuer) BeforeCreate(tx *gorm.DB) error {
	if i.IssuerID == uuid.Nil {
		i.IssuerID = uuid.New()
	}
	return nil
}

// SalesStarted reports whether the issuer's own offers may be priced freely.
func (i Issuer) SalesStarted(now time.Time) bool {
	return i.StartOfSales != nil && !now.Before(*i.StartOfSales)
}
