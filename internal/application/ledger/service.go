package ledger

import (
	"context"
	"time"

	"shard-exchange/internal/clock"
	"shard-exchange/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransferPublisher is notified of transfers after their transaction commits.
type TransferPublisher interface {
	PublishTransfer(ctx context.Context, rec domain.TransferRecord) error
}

// Service owns the holdings table: balance reads and conservation-preserving transfers.
type Service struct {
	DB        *gorm.DB
	Clock     clock.Clock
	Publisher TransferPublisher
}

// TransferInput describes one movement of shards between two holders of an issuer.
type TransferInput struct {
	IssuerID     uuid.UUID
	FromHolderID uuid.UUID
	ToHolderID   uuid.UUID
	Shards       int64
	UnitPrice    decimal.Decimal
	SellOfferID  *uuid.UUID
	BuyOfferID   *uuid.UUID
}

// GetBalance returns total/reserved/available shares from a single row read.
// A holder without a holding gets an all-zero balance; no row is created.
func (s *Service) GetBalance(ctx context.Context, issuerID, holderID uuid.UUID) (domain.Balance, error) {
	bal := domain.Balance{IssuerID: issuerID, HolderID: holderID}

	var holding domain.Holding
	err := s.DB.WithContext(ctx).
		Where("issuer_id = ? AND holder_id = ?", issuerID, holderID).
		Take(&holding).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bal, nil
	}
	if err != nil {
		return bal, errors.Wrap(err, "get balance")
	}

	bal.Total = holding.TotalShares
	bal.Reserved = holding.ReservedShares
	bal.Available = holding.Available()
	return bal, nil
}

// Execute records a transfer and moves the shards in its own transaction, then publishes it.
func (s *Service) Execute(ctx context.Context, in TransferInput) (*domain.TransferRecord, error) {
	var rec *domain.TransferRecord
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = s.ExecuteTx(tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Publish(ctx, rec)
	return rec, nil
}

// ExecuteTx performs the transfer inside the caller's transaction: it writes the record,
// debits the sender and credits the receiver. The debit only applies when the sender keeps
// at least its reserved shares, so a failed transfer leaves every row untouched once the
// caller rolls back.
func (s *Service) ExecuteTx(tx *gorm.DB, in TransferInput) (*domain.TransferRecord, error) {
	if in.Shards <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if in.UnitPrice.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}
	if in.FromHolderID == in.ToHolderID {
		return nil, domain.ErrSameHolder
	}

	rec := &domain.TransferRecord{
		IssuerID:      in.IssuerID,
		FromHolderID:  in.FromHolderID,
		ToHolderID:    in.ToHolderID,
		Shards:        in.Shards,
		UnitPrice:     in.UnitPrice,
		TotalValue:    in.UnitPrice.Mul(decimal.NewFromInt(in.Shards)),
		Fee:           Fee(in.UnitPrice, in.Shards),
		SequenceToken: uuid.NewString(),
		SellOfferID:   in.SellOfferID,
		BuyOfferID:    in.BuyOfferID,
		CreatedAt:     s.now(),
	}
	if err := LockHoldings(tx, in.IssuerID, in.FromHolderID, in.ToHolderID); err != nil {
		return nil, err
	}
	if err := tx.Create(rec).Error; err != nil {
		return nil, errors.Wrap(err, "create transfer record")
	}

	res := tx.Model(&domain.Holding{}).
		Where("issuer_id = ? AND holder_id = ? AND total_shares - ? >= reserved_shares", in.IssuerID, in.FromHolderID, in.Shards).
		Updates(map[string]interface{}{
			"total_shares":    gorm.Expr("total_shares - ?", in.Shards),
			"last_unit_price": in.UnitPrice,
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "debit sender holding")
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrInsufficientBalance
	}

	if err := Credit(tx, in.IssuerID, in.ToHolderID, in.Shards, in.UnitPrice); err != nil {
		return nil, err
	}
	return rec, nil
}

// LockHoldings row-locks the existing holdings of holderIDs for one issuer in holder_id order,
// so two transfers between the same pair of holders in opposite directions queue instead of
// deadlocking. Holdings that do not exist yet are left to the credit upsert.
func LockHoldings(tx *gorm.DB, issuerID uuid.UUID, holderIDs ...uuid.UUID) error {
	var locked []domain.Holding
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("holding_id").
		Where("issuer_id = ? AND holder_id IN ?", issuerID, holderIDs).
		Order("holder_id").
		Find(&locked).Error
	return errors.Wrap(err, "lock holdings")
}

// Credit adds shards to a holding, creating the row on first touch.
func Credit(tx *gorm.DB, issuerID, holderID uuid.UUID, shards int64, price decimal.Decimal) error {
	holding := domain.Holding{
		IssuerID:      issuerID,
		HolderID:      holderID,
		TotalShares:   shards,
		LastUnitPrice: price,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "issuer_id"}, {Name: "holder_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_shares":    gorm.Expr("holdings.total_shares + ?", shards),
			"last_unit_price": price,
		}),
	}).Create(&holding).Error
	return errors.Wrap(err, "credit receiver holding")
}

// Fee is charged on every transfer. It is zero until a fee schedule is agreed.
func Fee(unitPrice decimal.Decimal, shards int64) decimal.Decimal {
	return decimal.Zero
}

// Publish hands committed transfers to the publisher. Failures are only logged.
func (s *Service) Publish(ctx context.Context, recs ...*domain.TransferRecord) {
	if s.Publisher == nil {
		return
	}
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		if err := s.Publisher.PublishTransfer(ctx, *rec); err != nil {
			log.Warn().Err(err).
				Str("transfer_id", rec.TransferID.String()).
				Str("issuer_id", rec.IssuerID.String()).
				Msg("transfer publish failed")
		}
	}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return clock.NewSystem().Now()
	}
	return s.Clock.Now()
}
