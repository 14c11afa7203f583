package offers

import (
	"context"

	"shard-exchange/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// OpenSellOffers lists an issuer's sell offers that can still be reserved, cheapest first.
func (s *Service) OpenSellOffers(ctx context.Context, issuerID uuid.UUID) ([]domain.SellOffer, error) {
	offers := []domain.SellOffer{}
	err := s.DB.WithContext(ctx).
		Where("issuer_id = ? AND status = ?", issuerID, domain.SellOfferCreated).
		Order("unit_price ASC").
		Order("created_at ASC").
		Find(&offers).Error
	return offers, errors.Wrap(err, "list open sell offers")
}

// CartOffers lists the sell offers currently held in the buyer's cart.
func (s *Service) CartOffers(ctx context.Context, buyerID uuid.UUID) ([]domain.SellOffer, error) {
	offers := []domain.SellOffer{}
	err := s.DB.WithContext(ctx).
		Where("status = ? AND reserved_by_buyer_id = ? AND reserved_until > ?", domain.SellOfferReserved, buyerID, s.now()).
		Order("reserved_until ASC").
		Find(&offers).Error
	return offers, errors.Wrap(err, "list cart offers")
}

// PurchaseRequests lists open direct offers addressed to the holder, newest first.
func (s *Service) PurchaseRequests(ctx context.Context, holderID uuid.UUID) ([]domain.BuyOffer, error) {
	offers := []domain.BuyOffer{}
	err := s.DB.WithContext(ctx).
		Where("kind = ? AND target_holder_id = ? AND status = ?", domain.BuyOfferDirect, holderID, domain.BuyOfferCreated).
		Order("created_at DESC").
		Find(&offers).Error
	return offers, errors.Wrap(err, "list purchase requests")
}

// AlternativeOffersForSeller lists open counter-offers against the seller's open sell offers
// for one issuer, optionally narrowed to a single sell offer.
func (s *Service) AlternativeOffersForSeller(ctx context.Context, sellerID, issuerID uuid.UUID, sellOfferID *uuid.UUID) ([]domain.BuyOffer, error) {
	q := s.DB.WithContext(ctx).
		Model(&domain.BuyOffer{}).
		Select("buy_offers.*").
		Joins("JOIN sell_offers ON sell_offers.sell_offer_id = buy_offers.sell_offer_id").
		Where("buy_offers.kind = ? AND buy_offers.status = ? AND buy_offers.issuer_id = ?", domain.BuyOfferAlternative, domain.BuyOfferCreated, issuerID).
		Where("sell_offers.seller_id = ? AND sell_offers.status = ? AND sell_offers.allow_alternative_offers = ?", sellerID, domain.SellOfferCreated, true)
	if sellOfferID != nil {
		q = q.Where("buy_offers.sell_offer_id = ?", *sellOfferID)
	}

	offers := []domain.BuyOffer{}
	err := q.Order("buy_offers.created_at DESC").Find(&offers).Error
	return offers, errors.Wrap(err, "list alternative offers")
}

// Events returns the audit trail of one offer, oldest first.
func (s *Service) Events(ctx context.Context, offerID uuid.UUID) ([]domain.OfferEvent, error) {
	events := []domain.OfferEvent{}
	err := s.DB.WithContext(ctx).
		Where("offer_id = ?", offerID).
		Order("created_at ASC").
		Find(&events).Error
	return events, errors.Wrap(err, "list offer events")
}
