package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeps are the idempotent expiry passes run on every tick.
type Sweeps interface {
	SweepExpiredCartReservations(ctx context.Context) (int, error)
	SweepExpiredAlternativeOffers(ctx context.Context) (int, error)
}

// Lease keeps concurrent replicas from sweeping at the same time. Optional.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Result struct {
	CartReservations  int  `json:"cart_reservations"`
	AlternativeOffers int  `json:"alternative_offers"`
	Skipped           bool `json:"skipped"`
}

type Sweeper struct {
	Offers   Sweeps
	Lease    Lease
	Interval time.Duration
}

// RunOnce runs both sweeps. A failure in one sweep does not stop the other; the first error is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	if s.Lease != nil {
		ok, err := s.Lease.Acquire(ctx)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Skipped = true
			return res, nil
		}
		defer func() {
			if err := s.Lease.Release(ctx); err != nil {
				log.Warn().Err(err).Msg("sweeper: release lease")
			}
		}()
	}

	var firstErr error
	n, err := s.Offers.SweepExpiredCartReservations(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sweeper: cart reservations")
		firstErr = err
	}
	res.CartReservations = n

	n, err = s.Offers.SweepExpiredAlternativeOffers(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sweeper: alternative offers")
		if firstErr == nil {
			firstErr = err
		}
	}
	res.AlternativeOffers = n

	if res.CartReservations > 0 || res.AlternativeOffers > 0 {
		log.Info().
			Int("cart_reservations", res.CartReservations).
			Int("alternative_offers", res.AlternativeOffers).
			Msg("sweeper: expired offers released")
	}
	return res, firstErr
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		}
	}
}
