// Package listings creates service listings and places their tokens in
// escrow custody.
package listings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/parallax-protocol/service-marketplace/internal/app/domain/listing"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/market"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/token"
	"github.com/parallax-protocol/service-marketplace/internal/app/keys"
	"github.com/parallax-protocol/service-marketplace/internal/app/metrics"
	"github.com/parallax-protocol/service-marketplace/internal/app/storage"
	"github.com/parallax-protocol/service-marketplace/pkg/logger"
)

// Service manages listing creation and lookups.
type Service struct {
	ledger storage.Ledger
	log    *logger.Logger
}

// New constructs the listings service.
func New(ledger storage.Ledger, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("listings")
	}
	return &Service{ledger: ledger, log: log}
}

// List creates a Service record for a previously minted token and moves the
// single token unit from the vendor's holding account into escrow. The
// record creation, custody transfer and registry counter increment commit as
// one transition.
func (s *Service) List(ctx context.Context, vendor solana.PublicKey, name, description string, price uint64, paymentMint solana.PublicKey, soulbound bool) (listing.Service, error) {
	if vendor.IsZero() {
		return listing.Service{}, fmt.Errorf("vendor is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return listing.Service{}, fmt.Errorf("name is required")
	}
	if paymentMint.IsZero() {
		return listing.Service{}, fmt.Errorf("payment mint is required")
	}
	if price == 0 {
		return listing.Service{}, market.ErrInvalidPrice
	}

	svcD, err := keys.Service(name)
	if err != nil {
		return listing.Service{}, err
	}
	mintD, err := keys.ServiceMint(name)
	if err != nil {
		return listing.Service{}, err
	}
	escrowD, err := keys.Escrow(mintD.Address)
	if err != nil {
		return listing.Service{}, err
	}
	holdD, err := keys.Holding(vendor, mintD.Address)
	if err != nil {
		return listing.Service{}, err
	}

	var created listing.Service
	err = s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		m, err := tx.GetMarketplace(ctx)
		if err != nil {
			return err
		}

		if _, err := tx.GetServiceByName(ctx, name); err == nil {
			return fmt.Errorf("service %q: %w", name, market.ErrDuplicateListing)
		}

		if _, err := tx.GetMint(ctx, mintD.Address); err != nil {
			return err
		}

		hold, err := tx.GetTokenAccount(ctx, holdD.Address)
		if err != nil || hold.Balance < 1 {
			return fmt.Errorf("service %q: %w", name, market.ErrNotOwner)
		}

		hold.Balance--
		if _, err := tx.UpdateTokenAccount(ctx, hold); err != nil {
			return err
		}

		escrow, err := tx.GetTokenAccount(ctx, escrowD.Address)
		switch {
		case err == nil:
			escrow.Balance++
			if _, err := tx.UpdateTokenAccount(ctx, escrow); err != nil {
				return err
			}
		case errors.Is(err, market.ErrAccountNotFound):
			if _, err := tx.CreateTokenAccount(ctx, token.Account{
				Address:       escrowD.Address,
				Mint:          mintD.Address,
				Owner:         m.Address,
				Balance:       1,
				ProtocolOwned: true,
				Bump:          escrowD.Bump,
			}); err != nil {
				return err
			}
		default:
			return err
		}

		created, err = tx.CreateService(ctx, listing.Service{
			Address:     svcD.Address,
			Vendor:      vendor,
			Holder:      vendor,
			Name:        name,
			Description: description,
			Price:       price,
			PaymentMint: paymentMint,
			NFTMint:     mintD.Address,
			IsSoulbound: soulbound,
			Listed:      true,
			Bump:        svcD.Bump,
			EscrowBump:  escrowD.Bump,
		})
		if err != nil {
			return err
		}

		m.CountListing()
		_, err = tx.UpdateMarketplace(ctx, m)
		return err
	})
	if err != nil {
		return listing.Service{}, err
	}

	metrics.RecordListing(soulbound)
	s.log.WithField("name", name).
		WithField("vendor", vendor.String()).
		WithField("price", price).
		WithField("soulbound", soulbound).
		Info("service listed")
	return created, nil
}

// Get returns the listing record for a name.
func (s *Service) Get(ctx context.Context, name string) (listing.Service, error) {
	return s.ledger.GetServiceByName(ctx, name)
}

// ListAll returns every listing record, sold and unsold, as the permanent
// provenance ledger.
func (s *Service) ListAll(ctx context.Context) ([]listing.Service, error) {
	return s.ledger.ListServices(ctx)
}

// EscrowBalance reports how many units the custody account holds for a
// listed service: 1 while listed, 0 after a sale.
func (s *Service) EscrowBalance(ctx context.Context, name string) (uint64, error) {
	svc, err := s.ledger.GetServiceByName(ctx, name)
	if err != nil {
		return 0, err
	}
	escrowD, err := keys.Escrow(svc.NFTMint)
	if err != nil {
		return 0, err
	}
	acct, err := s.ledger.GetTokenAccount(ctx, escrowD.Address)
	if err != nil {
		if errors.Is(err, market.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return acct.Balance, nil
}
