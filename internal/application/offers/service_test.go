package offers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shard-exchange/internal/application/ledger"
	"shard-exchange/internal/clock"
	"shard-exchange/internal/domain"
	"shard-exchange/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var start = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	db     *gorm.DB
	clk    *clock.Manual
	issuer uuid.UUID
	seller uuid.UUID
	buyer  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	db := testutil.OpenDB(t)
	clk := clock.NewManual(start)
	f := &fixture{
		svc:    NewService(db, &ledger.Service{DB: db, Clock: clk}, clk),
		db:     db,
		clk:    clk,
		issuer: uuid.New(),
		seller: uuid.New(),
		buyer:  uuid.New(),
	}
	testutil.SeedHolding(t, db, f.issuer, f.seller, 200, 0)
	return f
}

func (f *fixture) sellOffer(t *testing.T, amount int64, price string, allowAlt bool) *domain.SellOffer {
	t.Helper()
	offer, err := f.svc.ListerMakeSellOffer(context.Background(), f.seller, f.issuer, SellOfferInput{
		Amount:                 amount,
		UnitPrice:              decimal.RequireFromString(price),
		AllowAlternativeOffers: allowAlt,
	})
	require.NoError(t, err)
	return offer
}

func (f *fixture) reloadSell(t *testing.T, id uuid.UUID) domain.SellOffer {
	t.Helper()
	var offer domain.SellOffer
	require.NoError(t, f.db.Where("sell_offer_id = ?", id).Take(&offer).Error)
	return offer
}

func (f *fixture) reloadBuy(t *testing.T, id uuid.UUID) domain.BuyOffer {
	t.Helper()
	var offer domain.BuyOffer
	require.NoError(t, f.db.Where("buy_offer_id = ?", id).Take(&offer).Error)
	return offer
}

func (f *fixture) countTransfers(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&domain.TransferRecord{}).Count(&n).Error)
	return n
}

func eventTypes(t *testing.T, svc *Service, offerID uuid.UUID) []string {
	t.Helper()
	events, err := svc.Events(context.Background(), offerID)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	return types
}

func TestListerMakeSellOffer_PledgesShares(t *testing.T) {
	f := newFixture(t)

	offer := f.sellOffer(t, 50, "10", true)
	assert.Equal(t, domain.SellOfferCreated, offer.Status)
	assert.Equal(t, int64(50), offer.Amount)

	h := testutil.LoadHolding(t, f.db, f.issuer, f.seller)
	assert.Equal(t, int64(200), h.TotalShares)
	assert.Equal(t, int64(50), h.ReservedShares)
	assert.Equal(t, int64(150), h.Available())
	assert.Equal(t, []string{domain.EventCreated}, eventTypes(t, f.svc, offer.SellOfferID))
}

func TestListerMakeSellOffer_InsufficientAvailableShares(t *testing.T) {
	f := newFixture(t)
	f.sellOffer(t, 50, "10", false)

	_, err := f.svc.ListerMakeSellOffer(context.Background(), f.seller, f.issuer, SellOfferInput{
		Amount:    300,
		UnitPrice: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientAvailableShares)

	h := testutil.LoadHolding(t, f.db, f.issuer, f.seller)
	assert.Equal(t, int64(200), h.TotalShares)
	assert.Equal(t, int64(50), h.ReservedShares)
	var offers int64
	require.NoError(t, f.db.Model(&domain.SellOffer{}).Count(&offers).Error)
	assert.Equal(t, int64(1), offers)
}

func TestListerMakeSellOffer_NoHolding(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListerMakeSellOffer(context.Background(), uuid.New(), f.issuer, SellOfferInput{
		Amount:    1,
		UnitPrice: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientAvailableShares)
}

func TestListerMakeSellOffers_AllOrNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListerMakeSellOffers(context.Background(), f.seller, f.issuer, []SellOfferInput{
		{Amount: 100, UnitPrice: decimal.NewFromInt(10)},
		{Amount: 150, UnitPrice: decimal.NewFromInt(11)},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientAvailableShares)
	assert.Equal(t, int64(0), testutil.LoadHolding(t, f.db, f.issuer, f.seller).ReservedShares)
	var offers int64
	require.NoError(t, f.db.Model(&domain.SellOffer{}).Count(&offers).Error)
	assert.Zero(t, offers)

	created, err := f.svc.ListerMakeSellOffers(context.Background(), f.seller, f.issuer, []SellOfferInput{
		{Amount: 100, UnitPrice: decimal.NewFromInt(10)},
		{Amount: 100, UnitPrice: decimal.NewFromInt(11)},
	})
	require.NoError(t, err)
	assert.Len(t, created, 2)
	assert.Equal(t, int64(200), testutil.LoadHolding(t, f.db, f.issuer, f.seller).ReservedShares)
}

func TestListerMakeSellOffer_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListerMakeSellOffer(ctx, f.seller, f.issuer, SellOfferInput{Amount: 0, UnitPrice: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.svc.ListerMakeSellOffer(ctx, f.seller, f.issuer, SellOfferInput{Amount: 1, UnitPrice: decimal.Zero})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
	_, err = f.svc.ListerMakeSellOffers(ctx, f.seller, f.issuer, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestMakeAlternativeOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell := f.sellOffer(t, 50, "10", true)

	alt, err := f.svc.MakeAlternativeOffer(ctx, f.buyer, sell.SellOfferID, decimal.NewFromInt(9))
	require.NoError(t, err)
	assert.Equal(t, domain.BuyOfferAlternative, alt.Kind)
	assert.Equal(t, domain.BuyOfferCreated, alt.Status)
	assert.Equal(t, int64(50), alt.Amount)
	require.NotNil(t, alt.SellOfferID)
	assert.Equal(t, sell.SellOfferID, *alt.SellOfferID)
	require.NotNil(t, alt.ExpiresAt)
	assert.True(t, alt.ExpiresAt.Equal(start.Add(DefaultAltOfferTTL)))

	assert.Equal(t, 1, f.reloadSell(t, sell.SellOfferID).ActiveAlternativeOffersCount)
}

func TestMakeAlternativeOffer_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	noAlt := f.sellOffer(t, 10, "10", false)
	withAlt := f.sellOffer(t, 10, "10", true)

	_, err := f.svc.MakeAlternativeOffer(ctx, f.buyer, noAlt.SellOfferID, decimal.NewFromInt(9))
	assert.ErrorIs(t, err, domain.ErrOfferNotEligibleForAlternative)

	_, err = f.svc.MakeAlternativeOffer(ctx, f.seller, withAlt.SellOfferID, decimal.NewFromInt(9))
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.svc.MakeAlternativeOffer(ctx, f.buyer, uuid.New(), decimal.NewFromInt(9))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.MakeAlternativeOffer(ctx, f.buyer, withAlt.SellOfferID, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	n, err := f.svc.AddOfferToCart(ctx, uuid.New(), []uuid.UUID{withAlt.SellOfferID})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = f.svc.MakeAlternativeOffer(ctx, f.buyer, withAlt.SellOfferID, decimal.NewFromInt(9))
	assert.ErrorIs(t, err, domain.ErrOfferNotEligibleForAlternative)
}

func TestAcceptAlternativeOffer_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell := f.sellOffer(t, 50, "10", true)
	alt, err := f.svc.MakeAlternativeOffer(ctx, f.buyer, sell.SellOfferID, decimal.NewFromInt(9))
	require.NoError(t, err)
	other, err := f.svc.MakeAlternativeOffer(ctx, uuid.New(), sell.SellOfferID, decimal.NewFromInt(8))
	require.NoError(t, err)

	rec, err := f.svc.AcceptAlternativeOffer(ctx, f.seller, alt.BuyOfferID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), rec.Shards)
	assert.True(t, rec.UnitPrice.Equal(decimal.NewFromInt(9)))
	assert.True(t, rec.TotalValue.Equal(decimal.NewFromInt(450)))
	require.NotNil(t, rec.BuyOfferID)
	assert.Equal(t, alt.BuyOfferID, *rec.BuyOfferID)

	seller := testutil.LoadHolding(t, f.db, f.issuer, f.seller)
	assert.Equal(t, int64(150), seller.TotalShares)
	assert.Equal(t, int64(0), seller.ReservedShares)
	assert.Equal(t, int64(50), testutil.LoadHolding(t, f.db, f.issuer, f.buyer).TotalShares)
	assert.Equal(t, int64(200), testutil.SumShares(t, f.db, f.issuer))

	closed := f.reloadSell(t, sell.SellOfferID)
	assert.Equal(t, domain.SellOfferAccepted, closed.Status)
	assert.Equal(t, 0, closed.ActiveAlternativeOffersCount)
	assert.Equal(t, domain.BuyOfferAccepted, f.reloadBuy(t, alt.BuyOfferID).Status)
	assert.Equal(t, domain.BuyOfferCancelledHold, f.reloadBuy(t, other.BuyOfferID).Status)

	assert.ElementsMatch(t, []string{domain.EventCreated, domain.EventAccepted}, eventTypes(t, f.svc, sell.SellOfferID))
	assert.ElementsMatch(t, []string{domain.EventCreated, domain.EventCancelledHold}, eventTypes(t, f.svc, other.BuyOfferID))
	testutil.AssertReservationInvariant(t, f.db)
}

func TestAcceptAlternativeOffer_ExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell := f.sellOffer(t, 50, "10", true)

	const n = 8
	alts := make([]*domain.BuyOffer, 0, n)
	for i := 0; i < n; i++ {
		alt, err := f.svc.MakeAlternativeOffer(ctx, uuid.New(), sell.SellOfferID, decimal.NewFromInt(int64(5+i)))
		require.NoError(t, err)
		alts = append(alts, alt)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		resolved int
	)
	for _, alt := range alts {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.AcceptAlternativeOffer(ctx, f.seller, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrOfferAlreadyResolved):
				resolved++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(alt.BuyOfferID)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, resolved)
	assert.Equal(t, int64(1), f.countTransfers(t))

	var accepted int64
	require.NoError(t, f.db.Model(&domain.BuyOffer{}).Where("status = ?", domain.BuyOfferAccepted).Count(&accepted).Error)
	assert.Equal(t, int64(1), accepted)

	seller := testutil.LoadHolding(t, f.db, f.issuer, f.seller)
	assert.Equal(t, int64(150), seller.TotalShares)
	assert.Equal(t, int64(0), seller.ReservedShares)
	assert.Equal(t, int64(200), testutil.SumShares(t, f.db, f.issuer))
	testutil.AssertReservationInvariant(t, f.db)
}

func TestAcceptAlternativeOffer_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell := f.sellOffer(t, 50, "10", true)
	alt, err := f.svc.MakeAlternativeOffer(ctx, f.buyer, sell.SellOfferID, decimal.NewFromInt(9))
	require.NoError(t, err)

	_, err = f.svc.AcceptAlternativeOffer(ctx, f.buyer, alt.BuyOfferID)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.svc.AcceptAlternativeOffer(ctx, f.seller, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.clk.Advance(DefaultAltOfferTTL + time.Minute)
	_, err = f.svc.AcceptAlternativeOffer(ctx, f.seller, alt.BuyOfferID)
	assert.ErrorIs(t, err, domain.ErrOfferExpired)

	assert.Equal(t, domain.BuyOfferCreated, f.reloadBuy(t, alt.BuyOfferID).Status)
	assert.Equal(t, domain.SellOfferCreated, f.reloadSell(t, sell.SellOfferID).Status)
	assert.Zero(t, f.countTransfers(t))
}

func TestAcceptAlternativeOffer_ReservedSellOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell := f.sellOffer(t, 50, "10", true)
	alt, err := f.svc.MakeAlternativeOffer(ctx, f.buyer, sell.SellOfferID, decimal.NewFromInt(9))
	require.NoError(t, err)

	n, err := f.svc.AddOfferToCart(ctx, uuid.New(), []uuid.UUID{sell.SellOfferID})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = f.svc.AcceptAlternativeOffer(ctx, f.seller, alt.BuyOfferID)
	require.NoError(t, err)

	accepted := f.reloadSell(t, sell.SellOfferID)
	assert.Equal(t, domain.SellOfferAccepted, accepted.Status)
	assert.Nil(t, accepted.ReservedByBuyerID)
	assert.Nil(t, accepted.ReservedUntil)

	f.clk.Advance(2 * DefaultCartHoldTTL)
	swept, err := f.svc.SweepExpiredCartReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)
	assert.Equal(t, domain.SellOfferAccepted, f.reloadSell(t, sell.SellOfferID).Status)
}

func TestDeclineAlternativeOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell := f.sellOffer(t, 50, "10", true)
	alt, err := f.svc.MakeAlternativeOffer(ctx, f.buyer, sell.SellOfferID, decimal.NewFromInt(9))
	require.NoError(t, err)

	_, err = f.svc.DeclineAlternativeOffer(ctx, f.buyer, alt.BuyOfferID)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	declined, err := f.svc.DeclineAlternativeOffer(ctx, f.seller, alt.BuyOfferID)
	require.NoError(t, err)
	assert.Equal(t, domain.BuyOfferDeclined, declined.Status)
	assert.Equal(t, 0, f.reloadSell(t, sell.SellOfferID).ActiveAlternativeOffersCount)

	_, err = f.svc.DeclineAlternativeOffer(ctx, f.seller, alt.BuyOfferID)
	assert.ErrorIs(t, err, domain.ErrOfferAlreadyResolved)
	assert.Equal(t, 0, f.reloadSell(t, sell.SellOfferID).ActiveAlternativeOffersCount)

	_, err = f.svc.AcceptAlternativeOffer(ctx, f.seller, alt.BuyOfferID)
	assert.ErrorIs(t, err, domain.ErrOfferAlreadyResolved)
}

func TestRemoveSellOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell := f.sellOffer(t, 50, "10", true)
	alt, err := f.svc.MakeAlternativeOffer(ctx, f.buyer, sell.SellOfferID, decimal.NewFromInt(9))
	require.NoError(t, err)

	_, err = f.svc.RemoveSellOffer(ctx, f.buyer, sell.SellOfferID)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	removed, err := f.svc.RemoveSellOffer(ctx, f.seller, sell.SellOfferID)
	require.NoError(t, err)
	assert.Equal(t, domain.SellOfferRemoved, removed.Status)
	assert.Equal(t, 0, removed.ActiveAlternativeOffersCount)
	assert.Equal(t, domain.BuyOfferDeclined, f.reloadBuy(t, alt.BuyOfferID).Status)

	h := testutil.LoadHolding(t, f.db, f.issuer, f.seller)
	assert.Equal(t, int64(200), h.TotalShares)
	assert.Equal(t, int64(0), h.ReservedShares)

	_, err = f.svc.RemoveSellOffer(ctx, f.seller, sell.SellOfferID)
	assert.ErrorIs(t, err, domain.ErrOfferAlreadyResolved)
	assert.Equal(t, int64(0), testutil.LoadHolding(t, f.db, f.issuer, f.seller).ReservedShares)

	_, err = f.svc.RemoveSellOffer(ctx, f.seller, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveSellOffer_ReservedInCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell := f.sellOffer(t, 50, "10", false)
	_, err := f.svc.AddOfferToCart(ctx, f.buyer, []uuid.UUID{sell.SellOfferID})
	require.NoError(t, err)

	_, err = f.svc.RemoveSellOffer(ctx, f.seller, sell.SellOfferID)
	assert.ErrorIs(t, err, domain.ErrOfferAlreadyResolved)
	assert.Equal(t, int64(50), testutil.LoadHolding(t, f.db, f.issuer, f.seller).ReservedShares)
}

func TestRemoveSellOffer_PledgeFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell := f.sellOffer(t, 50, "10", false)
	require.NoError(t, f.db.Model(&domain.Holding{}).
		Where("issuer_id = ? AND holder_id = ?", f.issuer, f.seller).
		Update("reserved_shares", 20).Error)

	_, err := f.svc.RemoveSellOffer(ctx, f.seller, sell.SellOfferID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), testutil.LoadHolding(t, f.db, f.issuer, f.seller).ReservedShares)
}

func TestCart_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell := f.sellOffer(t, 50, "10", false)

	n, err := f.svc.AddOfferToCart(ctx, f.buyer, []uuid.UUID{sell.SellOfferID, sell.SellOfferID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	held := f.reloadSell(t, sell.SellOfferID)
	assert.Equal(t, domain.SellOfferReserved, held.Status)
	require.NotNil(t, held.ReservedByBuyerID)
	assert.Equal(t, f.buyer, *held.ReservedByBuyerID)
	require.NotNil(t, held.ReservedUntil)
	assert.True(t, held.ReservedUntil.Equal(start.Add(DefaultCartHoldTTL)))

	cart, err := f.svc.CartOffers(ctx, f.buyer)
	require.NoError(t, err)
	require.Len(t, cart, 1)
	assert.Equal(t, sell.SellOfferID, cart[0].SellOfferID)

	n, err = f.svc.RemoveOfferFromCart(ctx, f.buyer, []uuid.UUID{sell.SellOfferID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	back := f.reloadSell(t, sell.SellOfferID)
	assert.Equal(t, domain.SellOfferCreated, back.Status)
	assert.Nil(t, back.ReservedByBuyerID)
	assert.Nil(t, back.ReservedUntil)
	assert.ElementsMatch(t, []string{domain.EventCreated, domain.EventCartReserved, domain.EventCartReleased}, eventTypes(t, f.svc, sell.SellOfferID))
}

func TestCart_SkipsUnavailableOffers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	open := f.sellOffer(t, 10, "10", false)
	taken := f.sellOffer(t, 10, "10", false)

	n, err := f.svc.AddOfferToCart(ctx, uuid.New(), []uuid.UUID{taken.SellOfferID})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = f.svc.AddOfferToCart(ctx, f.buyer, []uuid.UUID{open.SellOfferID, taken.SellOfferID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.AddOfferToCart(ctx, f.seller, []uuid.UUID{open.SellOfferID})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.RemoveOfferFromCart(ctx, f.buyer, []uuid.UUID{taken.SellOfferID})
	require.NoError(t, err)
	assert.Zero(t, n, "another buyer's reservation is left alone")
	assert.Equal(t, domain.SellOfferReserved, f.reloadSell(t, taken.SellOfferID).Status)

	n, err = f.svc.AddOfferToCart(ctx, f.buyer, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepExpiredCartReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.sellOffer(t, 10, "10", false)
	second := f.sellOffer(t, 10, "10", false)

	_, err := f.svc.AddOfferToCart(ctx, f.buyer, []uuid.UUID{first.SellOfferID})
	require.NoError(t, err)

	swept, err := f.svc.SweepExpiredCartReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept, "hold has not lapsed yet")

	f.clk.Advance(30 * time.Minute)
	_, err = f.svc.AddOfferToCart(ctx, f.buyer, []uuid.UUID{second.SellOfferID})
	require.NoError(t, err)
	f.clk.Advance(31 * time.Minute)

	swept, err = f.svc.SweepExpiredCartReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	reopened := f.reloadSell(t, first.SellOfferID)
	assert.Equal(t, domain.SellOfferCreated, reopened.Status)
	assert.Nil(t, reopened.ReservedByBuyerID)
	assert.Nil(t, reopened.ReservedUntil)
	assert.Equal(t, domain.SellOfferReserved, f.reloadSell(t, second.SellOfferID).Status)

	swept, err = f.svc.SweepExpiredCartReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)
	assert.ElementsMatch(t, []string{domain.EventCreated, domain.EventCartReserved, domain.EventCartExpired}, eventTypes(t, f.svc, first.SellOfferID))

	cart, err := f.svc.CartOffers(ctx, f.buyer)
	require.NoError(t, err)
	require.Len(t, cart, 1)
	assert.Equal(t, second.SellOfferID, cart[0].SellOfferID)
}

func TestCheckoutCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell := f.sellOffer(t, 50, "10", true)
	alt, err := f.svc.MakeAlternativeOffer(ctx, uuid.New(), sell.SellOfferID, decimal.NewFromInt(9))
	require.NoError(t, err)
	_, err = f.svc.AddOfferToCart(ctx, f.buyer, []uuid.UUID{sell.SellOfferID})
	require.NoError(t, err)

	recs, err := f.svc.CheckoutCart(ctx, f.buyer, []uuid.UUID{sell.SellOfferID})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(50), recs[0].Shards)
	assert.True(t, recs[0].UnitPrice.Equal(decimal.NewFromInt(10)))

	seller := testutil.LoadHolding(t, f.db, f.issuer, f.seller)
	assert.Equal(t, int64(150), seller.TotalShares)
	assert.Equal(t, int64(0), seller.ReservedShares)
	assert.Equal(t, int64(50), testutil.LoadHolding(t, f.db, f.issuer, f.buyer).TotalShares)
	assert.Equal(t, domain.SellOfferAccepted, f.reloadSell(t, sell.SellOfferID).Status)
	assert.Equal(t, domain.BuyOfferCancelledHold, f.reloadBuy(t, alt.BuyOfferID).Status)

	_, err = f.svc.CheckoutCart(ctx, f.buyer, []uuid.UUID{sell.SellOfferID})
	assert.ErrorIs(t, err, domain.ErrOfferAlreadyResolved)
	assert.Equal(t, int64(1), f.countTransfers(t))
}

func TestCheckoutCart_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	held := f.sellOffer(t, 20, "10", false)
	notHeld := f.sellOffer(t, 20, "10", false)
	_, err := f.svc.AddOfferToCart(ctx, f.buyer, []uuid.UUID{held.SellOfferID})
	require.NoError(t, err)

	_, err = f.svc.CheckoutCart(ctx, f.buyer, []uuid.UUID{held.SellOfferID, notHeld.SellOfferID})
	assert.ErrorIs(t, err, domain.ErrOfferAlreadyResolved)
	assert.Zero(t, f.countTransfers(t))
	assert.Equal(t, domain.SellOfferReserved, f.reloadSell(t, held.SellOfferID).Status)
	assert.Equal(t, int64(40), testutil.LoadHolding(t, f.db, f.issuer, f.seller).ReservedShares)

	f.clk.Advance(DefaultCartHoldTTL + time.Second)
	_, err = f.svc.CheckoutCart(ctx, f.buyer, []uuid.UUID{held.SellOfferID})
	assert.ErrorIs(t, err, domain.ErrOfferAlreadyResolved)

	_, err = f.svc.CheckoutCart(ctx, f.buyer, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestSweepExpiredAlternativeOffers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewService(f.db, f.svc.Ledger, f.clk, WithAltOfferTTL(time.Hour))
	sell := f.sellOffer(t, 50, "10", true)

	alt, err := svc.MakeAlternativeOffer(ctx, f.buyer, sell.SellOfferID, decimal.NewFromInt(9))
	require.NoError(t, err)
	f.clk.Advance(30 * time.Minute)
	fresh, err := svc.MakeAlternativeOffer(ctx, uuid.New(), sell.SellOfferID, decimal.NewFromInt(8))
	require.NoError(t, err)
	f.clk.Advance(31 * time.Minute)

	swept, err := svc.SweepExpiredAlternativeOffers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Equal(t, domain.BuyOfferCancelledHold, f.reloadBuy(t, alt.BuyOfferID).Status)
	assert.Equal(t, domain.BuyOfferCreated, f.reloadBuy(t, fresh.BuyOfferID).Status)
	assert.Equal(t, 1, f.reloadSell(t, sell.SellOfferID).ActiveAlternativeOffersCount)

	swept, err = svc.SweepExpiredAlternativeOffers(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)
	assert.Equal(t, []string{domain.EventCreated, domain.EventExpired}, eventTypes(t, svc, alt.BuyOfferID))
}

func TestTogglePurchaseRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.svc.TogglePurchaseRequest(ctx, f.issuer, f.seller)
	require.NoError(t, err)
	assert.True(t, h.PurchaseRequest)
	assert.Equal(t, int64(200), h.TotalShares)

	h, err = f.svc.TogglePurchaseRequest(ctx, f.issuer, f.seller)
	require.NoError(t, err)
	assert.False(t, h.PurchaseRequest)

	_, err = f.svc.TogglePurchaseRequest(ctx, f.issuer, f.buyer)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDirectOffer_Accept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	offer, err := f.svc.MakeDirectOffer(ctx, f.buyer, f.issuer, f.seller, 30, decimal.NewFromInt(12))
	require.NoError(t, err)
	assert.Equal(t, domain.BuyOfferDirect, offer.Kind)
	assert.Nil(t, offer.SellOfferID)

	requests, err := f.svc.PurchaseRequests(ctx, f.seller)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, offer.BuyOfferID, requests[0].BuyOfferID)

	_, err = f.svc.AcceptDirectOffer(ctx, f.buyer, offer.BuyOfferID)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	rec, err := f.svc.AcceptDirectOffer(ctx, f.seller, offer.BuyOfferID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), rec.Shards)
	assert.Equal(t, int64(170), testutil.LoadHolding(t, f.db, f.issuer, f.seller).TotalShares)
	assert.Equal(t, int64(30), testutil.LoadHolding(t, f.db, f.issuer, f.buyer).TotalShares)

	_, err = f.svc.AcceptDirectOffer(ctx, f.seller, offer.BuyOfferID)
	assert.ErrorIs(t, err, domain.ErrOfferAlreadyResolved)

	requests, err = f.svc.PurchaseRequests(ctx, f.seller)
	require.NoError(t, err)
	assert.Empty(t, requests)
}

func TestDirectOffer_PledgedSharesNotSpendable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sellOffer(t, 180, "10", false)

	offer, err := f.svc.MakeDirectOffer(ctx, f.buyer, f.issuer, f.seller, 30, decimal.NewFromInt(12))
	require.NoError(t, err)

	_, err = f.svc.AcceptDirectOffer(ctx, f.seller, offer.BuyOfferID)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, domain.BuyOfferCreated, f.reloadBuy(t, offer.BuyOfferID).Status)
	assert.Zero(t, f.countTransfers(t))
	testutil.AssertReservationInvariant(t, f.db)
}

func TestDirectOffer_DeclineAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.MakeDirectOffer(ctx, f.buyer, f.issuer, uuid.New(), 1, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.MakeDirectOffer(ctx, f.seller, f.issuer, f.seller, 1, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrSameHolder)
	_, err = f.svc.MakeDirectOffer(ctx, f.buyer, f.issuer, f.seller, 0, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	offer, err := f.svc.MakeDirectOffer(ctx, f.buyer, f.issuer, f.seller, 5, decimal.NewFromInt(1))
	require.NoError(t, err)
	declined, err := f.svc.DeclineDirectOffer(ctx, f.seller, offer.BuyOfferID)
	require.NoError(t, err)
	assert.Equal(t, domain.BuyOfferDeclined, declined.Status)

	_, err = f.svc.DeclineDirectOffer(ctx, f.seller, offer.BuyOfferID)
	assert.ErrorIs(t, err, domain.ErrOfferAlreadyResolved)

	_, err = f.svc.AcceptAlternativeOffer(ctx, f.seller, offer.BuyOfferID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "a direct offer is not an alternative offer")
}

func TestUpdateSellOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sell := f.sellOffer(t, 50, "10", true)
	alt, err := f.svc.MakeAlternativeOffer(ctx, f.buyer, sell.SellOfferID, decimal.NewFromInt(9))
	require.NoError(t, err)

	_, err = f.svc.UpdateSellOffer(ctx, f.buyer, sell.SellOfferID, decimal.NewFromInt(11), true)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	updated, err := f.svc.UpdateSellOffer(ctx, f.seller, sell.SellOfferID, decimal.NewFromInt(11), false)
	require.NoError(t, err)
	assert.True(t, updated.UnitPrice.Equal(decimal.NewFromInt(11)))
	assert.False(t, updated.AllowAlternativeOffers)
	assert.Equal(t, 0, updated.ActiveAlternativeOffersCount)
	assert.Equal(t, domain.BuyOfferDeclined, f.reloadBuy(t, alt.BuyOfferID).Status)
}

func TestAlternativeOffersForSellerAndOpenOffers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cheap := f.sellOffer(t, 10, "5", true)
	dear := f.sellOffer(t, 10, "20", true)

	_, err := f.svc.MakeAlternativeOffer(ctx, f.buyer, cheap.SellOfferID, decimal.NewFromInt(4))
	require.NoError(t, err)
	_, err = f.svc.MakeAlternativeOffer(ctx, f.buyer, dear.SellOfferID, decimal.NewFromInt(18))
	require.NoError(t, err)

	all, err := f.svc.AlternativeOffersForSeller(ctx, f.seller, f.issuer, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := f.svc.AlternativeOffersForSeller(ctx, f.seller, f.issuer, &dear.SellOfferID)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, dear.SellOfferID, *one[0].SellOfferID)

	none, err := f.svc.AlternativeOffersForSeller(ctx, f.buyer, f.issuer, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	open, err := f.svc.OpenSellOffers(ctx, f.issuer)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, cheap.SellOfferID, open[0].SellOfferID)
	assert.Equal(t, dear.SellOfferID, open[1].SellOfferID)
}

func TestConservationAcrossOfferFlows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyers := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	for i, b := range buyers {
		sell := f.sellOffer(t, int64(10+i), "10", true)
		alt, err := f.svc.MakeAlternativeOffer(ctx, b, sell.SellOfferID, decimal.NewFromInt(9))
		require.NoError(t, err)
		_, err = f.svc.AcceptAlternativeOffer(ctx, f.seller, alt.BuyOfferID)
		require.NoError(t, err)
		assert.Equal(t, int64(200), testutil.SumShares(t, f.db, f.issuer))
	}

	direct, err := f.svc.MakeDirectOffer(ctx, f.seller, f.issuer, buyers[0], 5, decimal.NewFromInt(9))
	require.NoError(t, err)
	_, err = f.svc.AcceptDirectOffer(ctx, buyers[0], direct.BuyOfferID)
	require.NoError(t, err)

	assert.Equal(t, int64(200), testutil.SumShares(t, f.db, f.issuer))
	assert.Equal(t, int64(4), f.countTransfers(t))
	testutil.AssertReservationInvariant(t, f.db)
}

func TestMakeAlternativeOffers_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.sellOffer(t, 10, "10", true)
	second := f.sellOffer(t, 20, "10", true)
	closed := f.sellOffer(t, 30, "10", false)

	_, err := f.svc.MakeAlternativeOffers(ctx, f.buyer, []AlternativeOfferInput{
		{SellOfferID: first.SellOfferID, UnitPrice: decimal.NewFromInt(9)},
		{SellOfferID: closed.SellOfferID, UnitPrice: decimal.NewFromInt(9)},
	})
	assert.ErrorIs(t, err, domain.ErrOfferNotEligibleForAlternative)
	assert.Equal(t, 0, f.reloadSell(t, first.SellOfferID).ActiveAlternativeOffersCount)

	offers, err := f.svc.MakeAlternativeOffers(ctx, f.buyer, []AlternativeOfferInput{
		{SellOfferID: second.SellOfferID, UnitPrice: decimal.NewFromInt(8)},
		{SellOfferID: first.SellOfferID, UnitPrice: decimal.NewFromInt(9)},
	})
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, second.SellOfferID, *offers[0].SellOfferID)
	assert.Equal(t, int64(20), offers[0].Amount)
	assert.Equal(t, first.SellOfferID, *offers[1].SellOfferID)
	assert.Equal(t, int64(10), offers[1].Amount)
	assert.Equal(t, 1, f.reloadSell(t, first.SellOfferID).ActiveAlternativeOffersCount)
	assert.Equal(t, 1, f.reloadSell(t, second.SellOfferID).ActiveAlternativeOffersCount)

	_, err = f.svc.MakeAlternativeOffers(ctx, f.buyer, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.MakeAlternativeOffers(ctx, f.buyer, []AlternativeOfferInput{{SellOfferID: first.SellOfferID}})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestRecordEvent_EncodeFailure(t *testing.T) {
	f := newFixture(t)
	offerID := uuid.New()

	err := f.svc.recordEvent(f.db, offerID, domain.OfferTypeSell, domain.EventCreated, nil, map[string]interface{}{
		"bad": make(chan int),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode "+domain.EventCreated+" event")

	require.NoError(t, f.svc.recordEvent(f.db, offerID, domain.OfferTypeSell, domain.EventRemoved, nil, nil))
	events, err := f.svc.Events(context.Background(), offerID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, "{}", string(events[0].EventData))
}
