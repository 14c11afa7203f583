package offers

import (
	"bytes"
	"context"
	"sort"

	"shard-exchange/internal/application/ledger"
	"shard-exchange/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AlternativeOfferInput is one counter-offer in a MakeAlternativeOffers batch.
type AlternativeOfferInput struct {
	SellOfferID uuid.UUID       `json:"sell_offer_id"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// MakeAlternativeOffer counters an open sell offer at price. The counter-offer is for the whole
// sell offer amount and expires after the alternative-offer TTL.
func (s *Service) MakeAlternativeOffer(ctx context.Context, buyerID, sellOfferID uuid.UUID, price decimal.Decimal) (*domain.BuyOffer, error) {
	offers, err := s.MakeAlternativeOffers(ctx, buyerID, []AlternativeOfferInput{{SellOfferID: sellOfferID, UnitPrice: price}})
	if err != nil {
		return nil, err
	}
	return &offers[0], nil
}

// MakeAlternativeOffers counters several sell offers at once. Either every counter-offer is
// created or none is. Results follow the order of inputs.
func (s *Service) MakeAlternativeOffers(ctx context.Context, buyerID uuid.UUID, inputs []AlternativeOfferInput) ([]domain.BuyOffer, error) {
	if len(inputs) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "at least one alternative offer is required")
	}
	for _, in := range inputs {
		if !in.UnitPrice.IsPositive() {
			return nil, domain.ErrInvalidPrice
		}
	}

	order := make([]int, len(inputs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return bytes.Compare(inputs[order[a]].SellOfferID[:], inputs[order[b]].SellOfferID[:]) < 0
	})

	offers := make([]domain.BuyOffer, len(inputs))
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, i := range order {
			offer, err := s.makeAlternativeOffer(tx, buyerID, inputs[i].SellOfferID, inputs[i].UnitPrice)
			if err != nil {
				return err
			}
			offers[i] = *offer
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offers, nil
}

func (s *Service) makeAlternativeOffer(tx *gorm.DB, buyerID, sellOfferID uuid.UUID, price decimal.Decimal) (*domain.BuyOffer, error) {
	sell, err := lockSellOffer(tx, sellOfferID)
	if err != nil {
		return nil, err
	}
	if sell.SellerID == buyerID {
		return nil, domain.ErrNotAuthorized
	}
	if sell.Status != domain.SellOfferCreated || !sell.AllowAlternativeOffers {
		return nil, domain.ErrOfferNotEligibleForAlternative
	}

	res := tx.Model(&domain.SellOffer{}).
		Where("sell_offer_id = ? AND status = ? AND allow_alternative_offers = ?", sellOfferID, domain.SellOfferCreated, true).
		Update("active_alternative_offers_count", gorm.Expr("active_alternative_offers_count + 1"))
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "count alternative offer")
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrOfferNotEligibleForAlternative
	}

	expiresAt := s.now().Add(s.altOfferTTL)
	offer := domain.BuyOffer{
		Kind:        domain.BuyOfferAlternative,
		IssuerID:    sell.IssuerID,
		BuyerID:     buyerID,
		SellOfferID: &sell.SellOfferID,
		Amount:      sell.Amount,
		UnitPrice:   price,
		Status:      domain.BuyOfferCreated,
		ExpiresAt:   &expiresAt,
	}
	if err := tx.Create(&offer).Error; err != nil {
		return nil, errors.Wrap(err, "create alternative offer")
	}
	err = s.recordEvent(tx, offer.BuyOfferID, domain.OfferTypeBuy, domain.EventCreated, actor(buyerID), map[string]interface{}{
		"sell_offer_id": sellOfferID,
		"amount":        offer.Amount,
		"unit_price":    offer.UnitPrice,
		"expires_at":    expiresAt,
	})
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// AcceptAlternativeOffer is called by the seller. In one transaction it accepts the counter-offer,
// cancels its siblings, closes the sell offer, returns the pledge and transfers the shards to the buyer.
// Of several concurrent accepts on the same sell offer exactly one succeeds; the rest get
// ErrOfferAlreadyResolved.
func (s *Service) AcceptAlternativeOffer(ctx context.Context, sellerID, buyOfferID uuid.UUID) (*domain.TransferRecord, error) {
	var rec *domain.TransferRecord
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sell, buy, err := s.lockAlternative(tx, sellerID, buyOfferID)
		if err != nil {
			return err
		}
		if buy.Expired(s.now()) {
			return domain.ErrOfferExpired
		}

		res := tx.Model(&domain.SellOffer{}).
			Where("sell_offer_id = ? AND status IN ?", sell.SellOfferID, []domain.SellOfferStatus{domain.SellOfferCreated, domain.SellOfferReserved}).
			Updates(map[string]interface{}{
				"status":                          domain.SellOfferAccepted,
				"reserved_by_buyer_id":            nil,
				"reserved_until":                  nil,
				"active_alternative_offers_count": 0,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "accept sell offer")
		}
		if res.RowsAffected == 0 {
			return domain.ErrOfferAlreadyResolved
		}

		res = tx.Model(&domain.BuyOffer{}).
			Where("buy_offer_id = ? AND status = ?", buyOfferID, domain.BuyOfferCreated).
			Update("status", domain.BuyOfferAccepted)
		if res.Error != nil {
			return errors.Wrap(res.Error, "accept alternative offer")
		}
		if res.RowsAffected == 0 {
			return domain.ErrOfferAlreadyResolved
		}
		if _, err := s.closeLiveAlternatives(tx, sell.SellOfferID, &buyOfferID, domain.BuyOfferCancelledHold, domain.EventCancelledHold, nil); err != nil {
			return err
		}

		if err := ledger.LockHoldings(tx, sell.IssuerID, sell.SellerID, buy.BuyerID); err != nil {
			return err
		}
		if err := releasePledge(tx, sell.IssuerID, sell.SellerID, sell.Amount); err != nil {
			return err
		}
		rec, err = s.Ledger.ExecuteTx(tx, ledger.TransferInput{
			IssuerID:     sell.IssuerID,
			FromHolderID: sell.SellerID,
			ToHolderID:   buy.BuyerID,
			Shards:       buy.Amount,
			UnitPrice:    buy.UnitPrice,
			SellOfferID:  &sell.SellOfferID,
			BuyOfferID:   &buy.BuyOfferID,
		})
		if err != nil {
			return err
		}

		data := map[string]interface{}{"transfer_id": rec.TransferID, "shards": rec.Shards, "unit_price": rec.UnitPrice}
		if err := s.recordEvent(tx, buyOfferID, domain.OfferTypeBuy, domain.EventAccepted, actor(sellerID), data); err != nil {
			return err
		}
		return s.recordEvent(tx, sell.SellOfferID, domain.OfferTypeSell, domain.EventAccepted, actor(sellerID), data)
	})
	if err != nil {
		return nil, err
	}
	s.Ledger.Publish(ctx, rec)
	return rec, nil
}

// DeclineAlternativeOffer is called by the seller to refuse one counter-offer.
func (s *Service) DeclineAlternativeOffer(ctx context.Context, sellerID, buyOfferID uuid.UUID) (*domain.BuyOffer, error) {
	var buy *domain.BuyOffer
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sell, _, err := s.lockAlternative(tx, sellerID, buyOfferID)
		if err != nil {
			return err
		}

		res := tx.Model(&domain.BuyOffer{}).
			Where("buy_offer_id = ? AND status = ?", buyOfferID, domain.BuyOfferCreated).
			Update("status", domain.BuyOfferDeclined)
		if res.Error != nil {
			return errors.Wrap(res.Error, "decline alternative offer")
		}
		if res.RowsAffected == 0 {
			return domain.ErrOfferAlreadyResolved
		}
		if err := decrementAltCount(tx, sell.SellOfferID); err != nil {
			return err
		}
		if err := s.recordEvent(tx, buyOfferID, domain.OfferTypeBuy, domain.EventDeclined, actor(sellerID), nil); err != nil {
			return err
		}

		buy, err = loadBuyOffer(tx, buyOfferID, domain.BuyOfferAlternative)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buy, nil
}

// SweepExpiredAlternativeOffers cancels open alternative offers past their expiry. Safe to run
// repeatedly and concurrently with accepts: only offers still open and expired are touched.
func (s *Service) SweepExpiredAlternativeOffers(ctx context.Context) (int, error) {
	now := s.now()
	swept := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var expired []domain.BuyOffer
		if err := tx.Where("kind = ? AND status = ? AND expires_at < ?", domain.BuyOfferAlternative, domain.BuyOfferCreated, now).
			Order("sell_offer_id").
			Find(&expired).Error; err != nil {
			return errors.Wrap(err, "list expired alternative offers")
		}

		for _, offer := range expired {
			if offer.SellOfferID != nil {
				if _, err := lockSellOffer(tx, *offer.SellOfferID); err != nil && !errors.Is(err, domain.ErrNotFound) {
					return err
				}
			}
			res := tx.Model(&domain.BuyOffer{}).
				Where("buy_offer_id = ? AND status = ? AND expires_at < ?", offer.BuyOfferID, domain.BuyOfferCreated, now).
				Update("status", domain.BuyOfferCancelledHold)
			if res.Error != nil {
				return errors.Wrap(res.Error, "expire alternative offer")
			}
			if res.RowsAffected == 0 {
				continue
			}
			swept++
			if offer.SellOfferID != nil {
				if err := decrementAltCount(tx, *offer.SellOfferID); err != nil {
					return err
				}
			}
			if err := s.recordEvent(tx, offer.BuyOfferID, domain.OfferTypeBuy, domain.EventExpired, nil, map[string]interface{}{
				"expires_at": offer.ExpiresAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}

// lockAlternative resolves an alternative offer to its sell offer and locks the sell offer row
// before anything touches the buy offers. Once the lock is held the buy offer is read again, so a
// caller that queued behind a concurrent accept sees the resolved state.
func (s *Service) lockAlternative(tx *gorm.DB, sellerID, buyOfferID uuid.UUID) (*domain.SellOffer, *domain.BuyOffer, error) {
	buy, err := loadBuyOffer(tx, buyOfferID, domain.BuyOfferAlternative)
	if err != nil {
		return nil, nil, err
	}
	if buy.SellOfferID == nil {
		return nil, nil, domain.ErrNotFound
	}
	sell, err := lockSellOffer(tx, *buy.SellOfferID)
	if err != nil {
		return nil, nil, err
	}
	if sell.SellerID != sellerID {
		return nil, nil, domain.ErrNotAuthorized
	}

	buy, err = loadBuyOffer(tx, buyOfferID, domain.BuyOfferAlternative)
	if err != nil {
		return nil, nil, err
	}
	if buy.Status != domain.BuyOfferCreated {
		return nil, nil, domain.ErrOfferAlreadyResolved
	}
	return sell, buy, nil
}
