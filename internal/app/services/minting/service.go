// Package minting creates the one-of-a-kind token backing a service.
package minting

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/parallax-protocol/service-marketplace/internal/app/domain/market"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/token"
	"github.com/parallax-protocol/service-marketplace/internal/app/keys"
	"github.com/parallax-protocol/service-marketplace/internal/app/storage"
	"github.com/parallax-protocol/service-marketplace/pkg/logger"
)

// defaultSellerFeeBasisPoints is recorded on the metadata for downstream
// display tooling; settlement uses the registry's royalty rate, not this.
const defaultSellerFeeBasisPoints = 500

// Service mints service tokens.
type Service struct {
	ledger storage.Ledger
	log    *logger.Logger
}

// New constructs the minting service.
func New(ledger storage.Ledger, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("minting")
	}
	return &Service{ledger: ledger, log: log}
}

// Mint creates a supply-1 indivisible token at the address derived from the
// service name, attaches descriptive metadata, and delivers the single unit
// into the vendor's holding account. Minting the same name twice fails with
// ErrDuplicateName and leaves the first mint untouched.
func (s *Service) Mint(ctx context.Context, vendor solana.PublicKey, name, uri string) (token.Mint, error) {
	if vendor.IsZero() {
		return token.Mint{}, fmt.Errorf("vendor is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return token.Mint{}, fmt.Errorf("name is required")
	}
	if len(name) > keys.MaxNameLength {
		return token.Mint{}, fmt.Errorf("name exceeds %d bytes", keys.MaxNameLength)
	}
	if strings.TrimSpace(uri) == "" {
		return token.Mint{}, fmt.Errorf("metadata uri is required")
	}

	mintD, err := keys.ServiceMint(name)
	if err != nil {
		return token.Mint{}, err
	}
	holdD, err := keys.Holding(vendor, mintD.Address)
	if err != nil {
		return token.Mint{}, err
	}

	var minted token.Mint
	err = s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.GetMint(ctx, mintD.Address); err == nil {
			return fmt.Errorf("mint %q: %w", name, market.ErrDuplicateName)
		}

		minted, err = tx.CreateMint(ctx, token.Mint{
			Address:   mintD.Address,
			Name:      name,
			Authority: vendor,
			Supply:    1,
			Decimals:  0,
			Bump:      mintD.Bump,
		})
		if err != nil {
			return err
		}

		if _, err := tx.CreateMetadata(ctx, token.Metadata{
			Mint:                 mintD.Address,
			Name:                 name,
			Symbol:               "",
			URI:                  uri,
			SellerFeeBasisPoints: defaultSellerFeeBasisPoints,
			Mutable:              true,
		}); err != nil {
			return err
		}

		_, err = tx.CreateTokenAccount(ctx, token.Account{
			Address: holdD.Address,
			Mint:    mintD.Address,
			Owner:   vendor,
			Balance: 1,
			Bump:    holdD.Bump,
		})
		return err
	})
	if err != nil {
		return token.Mint{}, err
	}

	s.log.WithField("name", name).
		WithField("mint", minted.Address.String()).
		WithField("vendor", vendor.String()).
		Info("service token minted")
	return minted, nil
}

// Get returns the mint for a service name.
func (s *Service) Get(ctx context.Context, name string) (token.Mint, error) {
	return s.ledger.GetMintByName(ctx, name)
}

// Metadata returns the descriptive record for a service name.
func (s *Service) Metadata(ctx context.Context, name string) (token.Metadata, error) {
	m, err := s.ledger.GetMintByName(ctx, name)
	if err != nil {
		return token.Metadata{}, err
	}
	return s.ledger.GetMetadata(ctx, m.Address)
}
