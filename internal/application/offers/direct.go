package offers

import (
	"context"

	"shard-exchange/internal/application/ledger"
	"shard-exchange/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MakeDirectOffer proposes to buy amount shards straight from a current holder of the issuer.
func (s *Service) MakeDirectOffer(ctx context.Context, buyerID, issuerID, targetHolderID uuid.UUID, amount int64, price decimal.Decimal) (*domain.BuyOffer, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !price.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	if buyerID == targetHolderID {
		return nil, domain.ErrSameHolder
	}

	var offer domain.BuyOffer
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Holding{}).
			Where("issuer_id = ? AND holder_id = ?", issuerID, targetHolderID).
			Count(&count).Error; err != nil {
			return errors.Wrap(err, "check target holding")
		}
		if count == 0 {
			return domain.ErrNotFound
		}

		offer = domain.BuyOffer{
			Kind:           domain.BuyOfferDirect,
			IssuerID:       issuerID,
			BuyerID:        buyerID,
			TargetHolderID: &targetHolderID,
			Amount:         amount,
			UnitPrice:      price,
			Status:         domain.BuyOfferCreated,
		}
		if err := tx.Create(&offer).Error; err != nil {
			return errors.Wrap(err, "create direct offer")
		}
		return s.recordEvent(tx, offer.BuyOfferID, domain.OfferTypeBuy, domain.EventCreated, actor(buyerID), map[string]interface{}{
			"target_holder_id": targetHolderID,
			"amount":           amount,
			"unit_price":       price,
		})
	})
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// AcceptDirectOffer is called by the targeted holder and transfers the shards to the buyer.
// Only unpledged shares can be sold this way.
func (s *Service) AcceptDirectOffer(ctx context.Context, holderID, buyOfferID uuid.UUID) (*domain.TransferRecord, error) {
	var rec *domain.TransferRecord
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		buy, err := loadBuyOffer(tx, buyOfferID, domain.BuyOfferDirect)
		if err != nil {
			return err
		}
		if buy.TargetHolderID == nil || *buy.TargetHolderID != holderID {
			return domain.ErrNotAuthorized
		}

		res := tx.Model(&domain.BuyOffer{}).
			Where("buy_offer_id = ? AND status = ?", buyOfferID, domain.BuyOfferCreated).
			Update("status", domain.BuyOfferAccepted)
		if res.Error != nil {
			return errors.Wrap(res.Error, "accept direct offer")
		}
		if res.RowsAffected == 0 {
			return domain.ErrOfferAlreadyResolved
		}

		rec, err = s.Ledger.ExecuteTx(tx, ledger.TransferInput{
			IssuerID:     buy.IssuerID,
			FromHolderID: holderID,
			ToHolderID:   buy.BuyerID,
			Shards:       buy.Amount,
			UnitPrice:    buy.UnitPrice,
			BuyOfferID:   &buy.BuyOfferID,
		})
		if err != nil {
			return err
		}
		return s.recordEvent(tx, buyOfferID, domain.OfferTypeBuy, domain.EventAccepted, actor(holderID), map[string]interface{}{
			"transfer_id": rec.TransferID,
			"shards":      rec.Shards,
			"unit_price":  rec.UnitPrice,
		})
	})
	if err != nil {
		return nil, err
	}
	s.Ledger.Publish(ctx, rec)
	return rec, nil
}

// DeclineDirectOffer is called by the targeted holder.
func (s *Service) DeclineDirectOffer(ctx context.Context, holderID, buyOfferID uuid.UUID) (*domain.BuyOffer, error) {
	var buy *domain.BuyOffer
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		buy, err = loadBuyOffer(tx, buyOfferID, domain.BuyOfferDirect)
		if err != nil {
			return err
		}
		if buy.TargetHolderID == nil || *buy.TargetHolderID != holderID {
			return domain.ErrNotAuthorized
		}

		res := tx.Model(&domain.BuyOffer{}).
			Where("buy_offer_id = ? AND status = ?", buyOfferID, domain.BuyOfferCreated).
			Update("status", domain.BuyOfferDeclined)
		if res.Error != nil {
			return errors.Wrap(res.Error, "decline direct offer")
		}
		if res.RowsAffected == 0 {
			return domain.ErrOfferAlreadyResolved
		}
		if err := s.recordEvent(tx, buyOfferID, domain.OfferTypeBuy, domain.EventDeclined, actor(holderID), nil); err != nil {
			return err
		}

		buy, err = loadBuyOffer(tx, buyOfferID, domain.BuyOfferDirect)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buy, nil
}

// TogglePurchaseRequest flips the holder's standing interest flag for the issuer.
func (s *Service) TogglePurchaseRequest(ctx context.Context, issuerID, holderID uuid.UUID) (*domain.Holding, error) {
	var holding domain.Holding
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Holding{}).
			Where("issuer_id = ? AND holder_id = ?", issuerID, holderID).
			Update("purchase_request", gorm.Expr("NOT purchase_request"))
		if res.Error != nil {
			return errors.Wrap(res.Error, "toggle purchase request")
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return errors.Wrap(tx.Where("issuer_id = ? AND holder_id = ?", issuerID, holderID).Take(&holding).Error, "reload holding")
	})
	if err != nil {
		return nil, err
	}
	return &holding, nil
}
