package holdings

import (
	"context"
	"time"

	"shard-exchange/internal/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service is the read side of a holder's portfolio.
type Service struct {
	DB *gorm.DB
}

type HoldingView struct {
	HoldingID       uuid.UUID       `json:"holding_id"`
	IssuerID        uuid.UUID       `json:"issuer_id"`
	IssuerName      *string         `json:"issuer_name"`
	TotalShares     int64           `json:"total_shares"`
	ReservedShares  int64           `json:"reserved_shares"`
	AvailableShares int64           `json:"available_shares"`
	LastUnitPrice   decimal.Decimal `json:"last_unit_price"`
	PurchaseRequest bool            `json:"purchase_request"`
}

type TransferView struct {
	TransferID   uuid.UUID       `json:"transfer_id"`
	Direction    string          `json:"direction"`
	IssuerID     uuid.UUID       `json:"issuer_id"`
	IssuerName   *string         `json:"issuer_name"`
	Counterparty uuid.UUID       `json:"counterparty_id"`
	Shards       int64           `json:"shards"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalValue   decimal.Decimal `json:"total_value"`
	Fee          decimal.Decimal `json:"fee"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ViewHoldings returns the holder's non-empty holdings with issuer names, largest first.
func (s *Service) ViewHoldings(ctx context.Context, holderID uuid.UUID) ([]HoldingView, error) {
	if holderID == uuid.Nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "holder_id is required")
	}

	var holdings []domain.Holding
	if err := s.DB.WithContext(ctx).
		Where("holder_id = ? AND total_shares > 0", holderID).
		Order("total_shares DESC").
		Find(&holdings).Error; err != nil {
		return nil, errors.Wrap(err, "list holdings")
	}

	issuerIDs := make([]uuid.UUID, 0, len(holdings))
	for _, h := range holdings {
		issuerIDs = append(issuerIDs, h.IssuerID)
	}
	names, err := s.issuerNames(ctx, issuerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]HoldingView, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, HoldingView{
			HoldingID:       h.HoldingID,
			IssuerID:        h.IssuerID,
			IssuerName:      names[h.IssuerID],
			TotalShares:     h.TotalShares,
			ReservedShares:  h.ReservedShares,
			AvailableShares: h.Available(),
			LastUnitPrice:   h.LastUnitPrice,
			PurchaseRequest: h.PurchaseRequest,
		})
	}
	return out, nil
}

// ViewTransfers returns every transfer the holder took part in, newest first.
func (s *Service) ViewTransfers(ctx context.Context, holderID uuid.UUID) ([]TransferView, error) {
	if holderID == uuid.Nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "holder_id is required")
	}

	var recs []domain.TransferRecord
	if err := s.DB.WithContext(ctx).
		Where("from_holder_id = ? OR to_holder_id = ?", holderID, holderID).
		Order("created_at DESC").
		Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "list transfers")
	}
	if len(recs) == 0 {
		return []TransferView{}, nil
	}

	seen := map[uuid.UUID]bool{}
	issuerIDs := []uuid.UUID{}
	for _, r := range recs {
		if !seen[r.IssuerID] {
			seen[r.IssuerID] = true
			issuerIDs = append(issuerIDs, r.IssuerID)
		}
	}
	names, err := s.issuerNames(ctx, issuerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]TransferView, 0, len(recs))
	for _, r := range recs {
		view := TransferView{
			TransferID:   r.TransferID,
			Direction:    "in",
			IssuerID:     r.IssuerID,
			IssuerName:   names[r.IssuerID],
			Counterparty: r.FromHolderID,
			Shards:       r.Shards,
			UnitPrice:    r.UnitPrice,
			TotalValue:   r.TotalValue,
			Fee:          r.Fee,
			CreatedAt:    r.CreatedAt,
		}
		if r.FromHolderID == holderID {
			view.Direction = "out"
			view.Counterparty = r.ToHolderID
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *Service) issuerNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*string, error) {
	names := map[uuid.UUID]*string{}
	if len(ids) == 0 {
		return names, nil
	}
	var issuers []domain.Issuer
	if err := s.DB.WithContext(ctx).
		Where("issuer_id IN ?", ids).
		Select("issuer_id, name").
		Find(&issuers).Error; err != nil {
		return nil, errors.Wrap(err, "load issuer names")
	}
	for _, i := range issuers {
		name := i.Name
		names[i.IssuerID] = &name
	}
	return names, nil
}
