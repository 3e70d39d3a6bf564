// Package storage defines the persistence contracts for the marketplace
// ledger.
package storage

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/parallax-protocol/service-marketplace/internal/app/domain/listing"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/market"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/token"
)

// MarketplaceStore persists the singleton registry record.
type MarketplaceStore interface {
	CreateMarketplace(ctx context.Context, m market.Marketplace) (market.Marketplace, error)
	GetMarketplace(ctx context.Context) (market.Marketplace, error)
	UpdateMarketplace(ctx context.Context, m market.Marketplace) (market.Marketplace, error)
}

// ServiceStore persists listing records, keyed by derived address with a
// unique name index.
type ServiceStore interface {
	CreateService(ctx context.Context, svc listing.Service) (listing.Service, error)
	GetService(ctx context.Context, address solana.PublicKey) (listing.Service, error)
	GetServiceByName(ctx context.Context, name string) (listing.Service, error)
	UpdateService(ctx context.Context, svc listing.Service) (listing.Service, error)
	ListServices(ctx context.Context) ([]listing.Service, error)
}

// MintStore persists mints and their metadata.
type MintStore interface {
	CreateMint(ctx context.Context, m token.Mint) (token.Mint, error)
	GetMint(ctx context.Context, address solana.PublicKey) (token.Mint, error)
	GetMintByName(ctx context.Context, name string) (token.Mint, error)
	CreateMetadata(ctx context.Context, md token.Metadata) (token.Metadata, error)
	GetMetadata(ctx context.Context, mint solana.PublicKey) (token.Metadata, error)
}

// TokenAccountStore persists holding accounts and their balances.
type TokenAccountStore interface {
	CreateTokenAccount(ctx context.Context, acct token.Account) (token.Account, error)
	GetTokenAccount(ctx context.Context, address solana.PublicKey) (token.Account, error)
	UpdateTokenAccount(ctx context.Context, acct token.Account) (token.Account, error)
}

// Tx is the view of the ledger inside a unit of work.
type Tx interface {
	MarketplaceStore
	ServiceStore
	MintStore
	TokenAccountStore
}

// Ledger is the full persistence surface. Atomic runs fn as a single
// all-or-nothing transition: every write made through the Tx commits
// together, or none do. Conflicting transitions on the same records are
// serialized by the implementation.
type Ledger interface {
	Tx

	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
