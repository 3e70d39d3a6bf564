// Package marketplace manages the singleton registry record.
package marketplace

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/parallax-protocol/service-marketplace/internal/app/domain/market"
	"github.com/parallax-protocol/service-marketplace/internal/app/keys"
	"github.com/parallax-protocol/service-marketplace/internal/app/storage"
	"github.com/parallax-protocol/service-marketplace/pkg/logger"
)

// Service exposes registry operations.
type Service struct {
	ledger storage.Ledger
	log    *logger.Logger
}

// New constructs the registry service.
func New(ledger storage.Ledger, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("marketplace")
	}
	return &Service{ledger: ledger, log: log}
}

// Initialize creates the singleton registry. Callable at most once per
// deployment; a second call fails with ErrAlreadyInitialized.
func (s *Service) Initialize(ctx context.Context, authority solana.PublicKey) (market.Marketplace, error) {
	if authority.IsZero() {
		return market.Marketplace{}, fmt.Errorf("authority is required")
	}

	derived, err := keys.Marketplace()
	if err != nil {
		return market.Marketplace{}, err
	}

	var created market.Marketplace
	err = s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.GetMarketplace(ctx); err == nil {
			return market.ErrAlreadyInitialized
		}
		created, err = tx.CreateMarketplace(ctx, market.Marketplace{
			Address:           derived.Address,
			Authority:         authority,
			TotalServices:     0,
			RoyaltyPercentage: market.DefaultRoyaltyPercentage,
			Bump:              derived.Bump,
		})
		return err
	})
	if err != nil {
		return market.Marketplace{}, err
	}

	s.log.WithField("address", created.Address.String()).
		WithField("authority", authority.String()).
		Info("marketplace initialized")
	return created, nil
}

// Get returns the registry state.
func (s *Service) Get(ctx context.Context) (market.Marketplace, error) {
	return s.ledger.GetMarketplace(ctx)
}

// SetRoyalty updates the resale royalty rate. Only the registry authority
// may call it.
func (s *Service) SetRoyalty(ctx context.Context, authority solana.PublicKey, rate uint8) (market.Marketplace, error) {
	if rate > 100 {
		return market.Marketplace{}, market.ErrInvalidRoyalty
	}

	var updated market.Marketplace
	err := s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		m, err := tx.GetMarketplace(ctx)
		if err != nil {
			return err
		}
		if !m.Authority.Equals(authority) {
			return market.ErrNotAuthority
		}
		m.RoyaltyPercentage = rate
		updated, err = tx.UpdateMarketplace(ctx, m)
		return err
	})
	if err != nil {
		return market.Marketplace{}, err
	}

	s.log.WithField("royalty_percentage", rate).Info("royalty rate updated")
	return updated, nil
}
