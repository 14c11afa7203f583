package issuance

import (
	"context"
	"strings"
	"time"

	"shard-exchange/internal/application/ledger"
	"shard-exchange/internal/clock"
	"shard-exchange/internal/domain"
	"shard-exchange/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrPlatformHolderUnset = errors.New("platform holder id is not configured")

// Service seeds an issuer's supply and answers issuer-level pricing questions.
type Service struct {
	DB     *gorm.DB
	Ledger *ledger.Service
	Clock  clock.Clock

	PlatformHolderID uuid.UUID
	FeePercent       int64
	SalesStartDelay  time.Duration
}

// RegisterIssuer creates the issuer metadata row for a holder. Supply is added later by InitIssuerSupply.
func (s *Service) RegisterIssuer(ctx context.Context, holderID uuid.UUID, name string) (*domain.Issuer, error) {
	name = strings.TrimSpace(name)
	if holderID == uuid.Nil || !validation.IsValidIssuerName(name) {
		return nil, errors.Wrap(domain.ErrInvalidInput, "holder_id and a valid name are required")
	}

	issuer := &domain.Issuer{
		HolderID:      holderID,
		Name:          name,
		InitSalePrice: decimal.Zero,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Issuer{}).Where("holder_id = ?", holderID).Count(&count).Error; err != nil {
			return errors.Wrap(err, "check issuer")
		}
		if count > 0 {
			return domain.ErrIssuerExists
		}
		return errors.Wrap(tx.Create(issuer).Error, "create issuer")
	})
	if err != nil {
		return nil, err
	}
	return issuer, nil
}

// InitIssuerSupply runs once per issuer. The platform holder is credited the whole supply,
// then everything but the issuance fee is transferred to the issuer's own holder at price.
func (s *Service) InitIssuerSupply(ctx context.Context, issuerID uuid.UUID, totalAmount int64, price decimal.Decimal, rating string) (*domain.Issuer, error) {
	if totalAmount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !price.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	rating = strings.TrimSpace(rating)
	if rating != "" && !validation.IsValidRating(rating) {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "rating must be 1-%d letters, digits or +/-", validation.MaxRatingLen)
	}
	if s.PlatformHolderID == uuid.Nil {
		return nil, ErrPlatformHolderUnset
	}

	now := s.now()
	startOfSales := now.Add(s.SalesStartDelay)
	issuerAmount := totalAmount - IssuanceFee(totalAmount, s.FeePercent)

	var (
		issuer domain.Issuer
		rec    *domain.TransferRecord
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("issuer_id = ?", issuerID).Take(&issuer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return errors.Wrap(err, "load issuer")
		}

		var existing int64
		if err := tx.Model(&domain.Holding{}).Where("issuer_id = ?", issuerID).Count(&existing).Error; err != nil {
			return errors.Wrap(err, "check holdings")
		}
		if existing > 0 {
			return domain.ErrAlreadyInitialized
		}

		res := tx.Model(&domain.Issuer{}).
			Where("issuer_id = ? AND initialized_at IS NULL", issuerID).
			Updates(map[string]interface{}{
				"rating":          rating,
				"init_sale_price": price,
				"total_amount":    totalAmount,
				"start_of_sales":  startOfSales,
				"initialized_at":  now,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "stamp issuer")
		}
		if res.RowsAffected == 0 {
			return domain.ErrAlreadyInitialized
		}

		platform := domain.Holding{
			IssuerID:      issuerID,
			HolderID:      s.PlatformHolderID,
			TotalShares:   totalAmount,
			LastUnitPrice: price,
		}
		if err := tx.Create(&platform).Error; err != nil {
			return errors.Wrap(err, "create platform holding")
		}

		if issuerAmount > 0 {
			var err error
			rec, err = s.Ledger.ExecuteTx(tx, ledger.TransferInput{
				IssuerID:     issuerID,
				FromHolderID: s.PlatformHolderID,
				ToHolderID:   issuer.HolderID,
				Shards:       issuerAmount,
				UnitPrice:    price,
			})
			if err != nil {
				return err
			}
		}

		return errors.Wrap(tx.Where("issuer_id = ?", issuerID).Take(&issuer).Error, "reload issuer")
	})
	if err != nil {
		return nil, err
	}

	s.Ledger.Publish(ctx, rec)
	return &issuer, nil
}

// AssignRating replaces the issuer's rating.
func (s *Service) AssignRating(ctx context.Context, issuerID uuid.UUID, rating string) (*domain.Issuer, error) {
	rating = strings.TrimSpace(rating)
	if !validation.IsValidRating(rating) {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "rating must be 1-%d letters, digits or +/-", validation.MaxRatingLen)
	}
	return s.update(ctx, issuerID, map[string]interface{}{"rating": rating})
}

// AssignInitialPrice changes the price used for the issuer's own offers before sales open.
func (s *Service) AssignInitialPrice(ctx context.Context, issuerID uuid.UUID, price decimal.Decimal) (*domain.Issuer, error) {
	if !price.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	return s.update(ctx, issuerID, map[string]interface{}{"init_sale_price": price})
}

func (s *Service) update(ctx context.Context, issuerID uuid.UUID, values map[string]interface{}) (*domain.Issuer, error) {
	var issuer domain.Issuer
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Issuer{}).Where("issuer_id = ?", issuerID).Updates(values)
		if res.Error != nil {
			return errors.Wrap(res.Error, "update issuer")
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return errors.Wrap(tx.Where("issuer_id = ?", issuerID).Take(&issuer).Error, "reload issuer")
	})
	if err != nil {
		return nil, err
	}
	return &issuer, nil
}

// FixedPrice is the price the issuer's own sell offers must use. Zero means free pricing:
// sales have opened, or the platform holder no longer owns any of the issuer's shards.
func (s *Service) FixedPrice(ctx context.Context, issuerID uuid.UUID) (decimal.Decimal, error) {
	issuer, err := s.Get(ctx, issuerID)
	if err != nil {
		return decimal.Zero, err
	}
	if issuer.SalesStarted(s.now()) {
		return decimal.Zero, nil
	}
	bal, err := s.Ledger.GetBalance(ctx, issuerID, s.PlatformHolderID)
	if err != nil {
		return decimal.Zero, err
	}
	if bal.Total == 0 {
		return decimal.Zero, nil
	}
	return issuer.InitSalePrice, nil
}

// Get returns one issuer.
func (s *Service) Get(ctx context.Context, issuerID uuid.UUID) (*domain.Issuer, error) {
	var issuer domain.Issuer
	if err := s.DB.WithContext(ctx).Where("issuer_id = ?", issuerID).Take(&issuer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(err, "load issuer")
	}
	return &issuer, nil
}

// Holders lists every non-empty holding of the issuer, largest first.
func (s *Service) Holders(ctx context.Context, issuerID uuid.UUID) ([]domain.Holding, error) {
	holdings := []domain.Holding{}
	err := s.DB.WithContext(ctx).
		Where("issuer_id = ? AND total_shares > 0", issuerID).
		Order("total_shares DESC").
		Find(&holdings).Error
	if err != nil {
		return nil, errors.Wrap(err, "list holders")
	}
	return holdings, nil
}

// IssuanceFee is the part of totalAmount kept by the platform, rounded down.
func IssuanceFee(totalAmount, percent int64) int64 {
	if percent <= 0 {
		return 0
	}
	return decimal.NewFromInt(totalAmount).
		Mul(decimal.NewFromInt(percent)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return clock.NewSystem().Now()
	}
	return s.Clock.Now()
}
