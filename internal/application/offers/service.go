package offers

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"

	"shard-exchange/internal/application/ledger"
	"shard-exchange/internal/clock"
	"shard-exchange/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultCartHoldTTL = 60 * time.Minute
	DefaultAltOfferTTL = 48 * time.Hour
)

// Service runs the sell/buy offer lifecycle. Every mutation happens inside one gorm transaction
// and guards each state change with a conditional UPDATE, so a lost race surfaces as a typed error
// instead of a double transition.
//
// Rows are locked in one order on every path: the sell offer first, then its buy offers, then
// holdings (see ledger.LockHoldings). Two transactions racing on the same sell offer therefore
// queue on that row and never wait on each other's buy offers.
type Service struct {
	DB     *gorm.DB
	Ledger *ledger.Service
	Clock  clock.Clock

	cartHoldTTL time.Duration
	altOfferTTL time.Duration
}

type Option func(*Service)

// WithCartHoldTTL sets how long a cart reservation holds a sell offer.
func WithCartHoldTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cartHoldTTL = ttl
		}
	}
}

// WithAltOfferTTL sets how long an alternative offer stays open.
func WithAltOfferTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.altOfferTTL = ttl
		}
	}
}

func NewService(db *gorm.DB, ledgerSvc *ledger.Service, clk clock.Clock, opts ...Option) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	s := &Service{
		DB:          db,
		Ledger:      ledgerSvc,
		Clock:       clk,
		cartHoldTTL: DefaultCartHoldTTL,
		altOfferTTL: DefaultAltOfferTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.Clock.Now()
}

func (s *Service) recordEvent(tx *gorm.DB, offerID uuid.UUID, offerType domain.OfferType, eventType string, actorID *uuid.UUID, data map[string]interface{}) error {
	eventDataBytes := []byte("{}")
	if data != nil {
		var err error
		if eventDataBytes, err = json.Marshal(data); err != nil {
			return errors.Wrapf(err, "encode %s event", eventType)
		}
	}
	err := tx.Create(&domain.OfferEvent{
		OfferID:   offerID,
		OfferType: offerType,
		EventType: eventType,
		ActorID:   actorID,
		EventData: datatypes.JSON(eventDataBytes),
		CreatedAt: s.now(),
	}).Error
	return errors.Wrapf(err, "record %s event", eventType)
}

func actor(id uuid.UUID) *uuid.UUID {
	return &id
}

func loadSellOffer(tx *gorm.DB, sellOfferID uuid.UUID) (*domain.SellOffer, error) {
	var offer domain.SellOffer
	if err := tx.Where("sell_offer_id = ?", sellOfferID).Take(&offer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(err, "load sell offer")
	}
	return &offer, nil
}

// lockSellOffer loads a sell offer under a row lock held until the transaction ends.
// SQLite has no row locks and drops the clause; its single writer gives the same ordering.
func lockSellOffer(tx *gorm.DB, sellOfferID uuid.UUID) (*domain.SellOffer, error) {
	return loadSellOffer(tx.Clauses(clause.Locking{Strength: "UPDATE"}), sellOfferID)
}

func loadBuyOffer(tx *gorm.DB, buyOfferID uuid.UUID, kind domain.BuyOfferKind) (*domain.BuyOffer, error) {
	var offer domain.BuyOffer
	if err := tx.Where("buy_offer_id = ? AND kind = ?", buyOfferID, kind).Take(&offer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(err, "load buy offer")
	}
	return &offer, nil
}

// releasePledge gives back shares pledged to a sell offer, never going below zero.
func releasePledge(tx *gorm.DB, issuerID, sellerID uuid.UUID, amount int64) error {
	err := tx.Model(&domain.Holding{}).
		Where("issuer_id = ? AND holder_id = ?", issuerID, sellerID).
		Update("reserved_shares", gorm.Expr("CASE WHEN reserved_shares > ? THEN reserved_shares - ? ELSE 0 END", amount, amount)).
		Error
	return errors.Wrap(err, "release pledged shares")
}

func decrementAltCount(tx *gorm.DB, sellOfferID uuid.UUID) error {
	err := tx.Model(&domain.SellOffer{}).
		Where("sell_offer_id = ?", sellOfferID).
		Update("active_alternative_offers_count", gorm.Expr("CASE WHEN active_alternative_offers_count > 0 THEN active_alternative_offers_count - 1 ELSE 0 END")).
		Error
	return errors.Wrap(err, "decrement alternative offer count")
}

// closeLiveAlternatives moves every still-open alternative offer on a sell offer to status,
// recording one event per offer actually moved.
func (s *Service) closeLiveAlternatives(tx *gorm.DB, sellOfferID uuid.UUID, except *uuid.UUID, status domain.BuyOfferStatus, eventType string, actorID *uuid.UUID) (int, error) {
	q := tx.Model(&domain.BuyOffer{}).
		Where("sell_offer_id = ? AND kind = ? AND status = ?", sellOfferID, domain.BuyOfferAlternative, domain.BuyOfferCreated)
	if except != nil {
		q = q.Where("buy_offer_id <> ?", *except)
	}
	var ids []uuid.UUID
	if err := q.Pluck("buy_offer_id", &ids).Error; err != nil {
		return 0, errors.Wrap(err, "list alternative offers")
	}

	closed := 0
	for _, id := range ids {
		res := tx.Model(&domain.BuyOffer{}).
			Where("buy_offer_id = ? AND status = ?", id, domain.BuyOfferCreated).
			Update("status", status)
		if res.Error != nil {
			return closed, errors.Wrap(res.Error, "close alternative offer")
		}
		if res.RowsAffected == 0 {
			continue
		}
		closed++
		if err := s.recordEvent(tx, id, domain.OfferTypeBuy, eventType, actorID, map[string]interface{}{
			"sell_offer_id": sellOfferID,
		}); err != nil {
			return closed, err
		}
	}
	return closed, nil
}

// uniqueIDs drops nil and repeated ids and sorts the rest, which is the order batch
// operations lock sell offers in.
func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return out
}
