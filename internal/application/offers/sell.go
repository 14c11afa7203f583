package offers

import (
	"context"

	"shard-exchange/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SellOfferInput is one offer in a ListerMakeSellOffers batch.
type SellOfferInput struct {
	Amount                 int64           `json:"amount"`
	UnitPrice              decimal.Decimal `json:"unit_price"`
	AllowAlternativeOffers bool            `json:"allow_alternative_offers"`
}

func (in SellOfferInput) validate() error {
	if in.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if !in.UnitPrice.IsPositive() {
		return domain.ErrInvalidPrice
	}
	return nil
}

// ListerMakeSellOffer opens a sell offer and pledges its amount from the seller's available shares.
func (s *Service) ListerMakeSellOffer(ctx context.Context, sellerID, issuerID uuid.UUID, in SellOfferInput) (*domain.SellOffer, error) {
	created, err := s.ListerMakeSellOffers(ctx, sellerID, issuerID, []SellOfferInput{in})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// ListerMakeSellOffers opens several sell offers at once. Either all of them are created or none.
func (s *Service) ListerMakeSellOffers(ctx context.Context, sellerID, issuerID uuid.UUID, inputs []SellOfferInput) ([]domain.SellOffer, error) {
	if len(inputs) == 0 {
		return nil, domain.ErrInvalidAmount
	}
	for _, in := range inputs {
		if err := in.validate(); err != nil {
			return nil, err
		}
	}

	created := make([]domain.SellOffer, 0, len(inputs))
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, in := range inputs {
			res := tx.Model(&domain.Holding{}).
				Where("issuer_id = ? AND holder_id = ? AND total_shares - reserved_shares >= ?", issuerID, sellerID, in.Amount).
				Update("reserved_shares", gorm.Expr("reserved_shares + ?", in.Amount))
			if res.Error != nil {
				return errors.Wrap(res.Error, "pledge shares")
			}
			if res.RowsAffected == 0 {
				return domain.ErrInsufficientAvailableShares
			}

			offer := domain.SellOffer{
				IssuerID:               issuerID,
				SellerID:               sellerID,
				Amount:                 in.Amount,
				UnitPrice:              in.UnitPrice,
				AllowAlternativeOffers: in.AllowAlternativeOffers,
				Status:                 domain.SellOfferCreated,
			}
			if err := tx.Create(&offer).Error; err != nil {
				return errors.Wrap(err, "create sell offer")
			}
			if err := s.recordEvent(tx, offer.SellOfferID, domain.OfferTypeSell, domain.EventCreated, actor(sellerID), map[string]interface{}{
				"amount":                   offer.Amount,
				"unit_price":               offer.UnitPrice,
				"allow_alternative_offers": offer.AllowAlternativeOffers,
			}); err != nil {
				return err
			}
			created = append(created, offer)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateSellOffer changes the price and alternative-offer setting of an open sell offer.
// Turning alternative offers off declines the ones still open.
func (s *Service) UpdateSellOffer(ctx context.Context, sellerID, sellOfferID uuid.UUID, price decimal.Decimal, allowAlternative bool) (*domain.SellOffer, error) {
	if !price.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}

	var offer *domain.SellOffer
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		offer, err = lockSellOffer(tx, sellOfferID)
		if err != nil {
			return err
		}
		if offer.SellerID != sellerID {
			return domain.ErrNotAuthorized
		}

		values := map[string]interface{}{
			"unit_price":               price,
			"allow_alternative_offers": allowAlternative,
		}
		if !allowAlternative {
			values["active_alternative_offers_count"] = 0
		}
		res := tx.Model(&domain.SellOffer{}).
			Where("sell_offer_id = ? AND status = ?", sellOfferID, domain.SellOfferCreated).
			Updates(values)
		if res.Error != nil {
			return errors.Wrap(res.Error, "update sell offer")
		}
		if res.RowsAffected == 0 {
			return domain.ErrOfferAlreadyResolved
		}

		if !allowAlternative {
			if _, err := s.closeLiveAlternatives(tx, sellOfferID, nil, domain.BuyOfferDeclined, domain.EventDeclined, actor(sellerID)); err != nil {
				return err
			}
		}
		offer, err = loadSellOffer(tx, sellOfferID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// RemoveSellOffer withdraws an open sell offer: live alternative offers are declined and the
// pledged shares are returned to the seller's available balance.
func (s *Service) RemoveSellOffer(ctx context.Context, sellerID, sellOfferID uuid.UUID) (*domain.SellOffer, error) {
	var offer *domain.SellOffer
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		offer, err = lockSellOffer(tx, sellOfferID)
		if err != nil {
			return err
		}
		if offer.SellerID != sellerID {
			return domain.ErrNotAuthorized
		}

		res := tx.Model(&domain.SellOffer{}).
			Where("sell_offer_id = ? AND status = ?", sellOfferID, domain.SellOfferCreated).
			Updates(map[string]interface{}{
				"status":                          domain.SellOfferRemoved,
				"active_alternative_offers_count": 0,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "remove sell offer")
		}
		if res.RowsAffected == 0 {
			return domain.ErrOfferAlreadyResolved
		}

		if _, err := s.closeLiveAlternatives(tx, sellOfferID, nil, domain.BuyOfferDeclined, domain.EventDeclined, actor(sellerID)); err != nil {
			return err
		}
		if err := releasePledge(tx, offer.IssuerID, offer.SellerID, offer.Amount); err != nil {
			return err
		}
		if err := s.recordEvent(tx, sellOfferID, domain.OfferTypeSell, domain.EventRemoved, actor(sellerID), map[string]interface{}{
			"released_shares": offer.Amount,
		}); err != nil {
			return err
		}

		offer, err = loadSellOffer(tx, sellOfferID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}
