package offers

import (
	"context"

	"shard-exchange/internal/application/ledger"
	"shard-exchange/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// AddOfferToCart reserves open sell offers for buyerID until the cart hold expires.
// Offers that are not open, or that belong to the buyer, are skipped. Returns how many were reserved.
func (s *Service) AddOfferToCart(ctx context.Context, buyerID uuid.UUID, sellOfferIDs []uuid.UUID) (int, error) {
	ids := uniqueIDs(sellOfferIDs)
	if len(ids) == 0 {
		return 0, nil
	}

	until := s.now().Add(s.cartHoldTTL)
	reserved := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			res := tx.Model(&domain.SellOffer{}).
				Where("sell_offer_id = ? AND status = ? AND seller_id <> ?", id, domain.SellOfferCreated, buyerID).
				Updates(map[string]interface{}{
					"status":               domain.SellOfferReserved,
					"reserved_by_buyer_id": buyerID,
					"reserved_until":       until,
				})
			if res.Error != nil {
				return errors.Wrap(res.Error, "reserve sell offer")
			}
			if res.RowsAffected == 0 {
				continue
			}
			reserved++
			if err := s.recordEvent(tx, id, domain.OfferTypeSell, domain.EventCartReserved, actor(buyerID), map[string]interface{}{
				"reserved_until": until,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reserved, nil
}

// RemoveOfferFromCart releases the buyer's own reservations among sellOfferIDs back to open.
func (s *Service) RemoveOfferFromCart(ctx context.Context, buyerID uuid.UUID, sellOfferIDs []uuid.UUID) (int, error) {
	ids := uniqueIDs(sellOfferIDs)
	if len(ids) == 0 {
		return 0, nil
	}

	released := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			res := tx.Model(&domain.SellOffer{}).
				Where("sell_offer_id = ? AND status = ? AND reserved_by_buyer_id = ?", id, domain.SellOfferReserved, buyerID).
				Updates(clearReservation())
			if res.Error != nil {
				return errors.Wrap(res.Error, "release sell offer")
			}
			if res.RowsAffected == 0 {
				continue
			}
			released++
			if err := s.recordEvent(tx, id, domain.OfferTypeSell, domain.EventCartReleased, actor(buyerID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// SweepExpiredCartReservations reopens sell offers whose cart hold has lapsed. The selection
// predicate is re-applied on every write, so an offer accepted meanwhile is never reverted and a
// second run with nothing new expired returns 0.
func (s *Service) SweepExpiredCartReservations(ctx context.Context) (int, error) {
	now := s.now()
	swept := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		if err := tx.Model(&domain.SellOffer{}).
			Where("status = ? AND reserved_until < ?", domain.SellOfferReserved, now).
			Order("sell_offer_id").
			Pluck("sell_offer_id", &ids).Error; err != nil {
			return errors.Wrap(err, "list expired reservations")
		}

		for _, id := range ids {
			res := tx.Model(&domain.SellOffer{}).
				Where("sell_offer_id = ? AND status = ? AND reserved_until < ?", id, domain.SellOfferReserved, now).
				Updates(clearReservation())
			if res.Error != nil {
				return errors.Wrap(res.Error, "expire reservation")
			}
			if res.RowsAffected == 0 {
				continue
			}
			swept++
			if err := s.recordEvent(tx, id, domain.OfferTypeSell, domain.EventCartExpired, nil, nil); err != nil {
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

// CheckoutCart buys the listed offers from the buyer's cart at their asking price. All offers must
// still be held by the buyer; otherwise nothing is bought and ErrOfferAlreadyResolved is returned.
func (s *Service) CheckoutCart(ctx context.Context, buyerID uuid.UUID, sellOfferIDs []uuid.UUID) ([]*domain.TransferRecord, error) {
	ids := uniqueIDs(sellOfferIDs)
	if len(ids) == 0 {
		return nil, domain.ErrInvalidAmount
	}

	now := s.now()
	recs := make([]*domain.TransferRecord, 0, len(ids))
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			sell, err := lockSellOffer(tx, id)
			if err != nil {
				return err
			}

			res := tx.Model(&domain.SellOffer{}).
				Where("sell_offer_id = ? AND status = ? AND reserved_by_buyer_id = ? AND reserved_until >= ?", id, domain.SellOfferReserved, buyerID, now).
				Updates(map[string]interface{}{
					"status":                          domain.SellOfferAccepted,
					"reserved_by_buyer_id":            nil,
					"reserved_until":                  nil,
					"active_alternative_offers_count": 0,
				})
			if res.Error != nil {
				return errors.Wrap(res.Error, "check out sell offer")
			}
			if res.RowsAffected == 0 {
				return domain.ErrOfferAlreadyResolved
			}

			if _, err := s.closeLiveAlternatives(tx, id, nil, domain.BuyOfferCancelledHold, domain.EventCancelledHold, nil); err != nil {
				return err
			}
			if err := ledger.LockHoldings(tx, sell.IssuerID, sell.SellerID, buyerID); err != nil {
				return err
			}
			if err := releasePledge(tx, sell.IssuerID, sell.SellerID, sell.Amount); err != nil {
				return err
			}
			rec, err := s.Ledger.ExecuteTx(tx, ledger.TransferInput{
				IssuerID:     sell.IssuerID,
				FromHolderID: sell.SellerID,
				ToHolderID:   buyerID,
				Shards:       sell.Amount,
				UnitPrice:    sell.UnitPrice,
				SellOfferID:  &sell.SellOfferID,
			})
			if err != nil {
				return err
			}
			if err := s.recordEvent(tx, id, domain.OfferTypeSell, domain.EventAccepted, actor(buyerID), map[string]interface{}{
				"transfer_id": rec.TransferID,
				"shards":      rec.Shards,
				"unit_price":  rec.UnitPrice,
			}); err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Ledger.Publish(ctx, recs...)
	return recs, nil
}

func clearReservation() map[string]interface{} {
	return map[string]interface{}{
		"status":               domain.SellOfferCreated,
		"reserved_by_buyer_id": nil,
		"reserved_until":       nil,
	}
}
