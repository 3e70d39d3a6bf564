// Package keys derives every account address the protocol touches. All
// relationships between records are expressed as reproducible derivations
// from fixed domain tags rather than stored pointers, so any external caller
// can recompute an address before an operation executes.
package keys

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ProgramID anchors every derivation. Two deployments with different program
// IDs produce entirely disjoint address spaces.
var ProgramID = solana.MustPublicKeyFromBase58("92q1D3m2dHrmBWfpn5YZHaoG5pxkk5CTJH3e9SazdNC7")

// Domain tags. These match the on-chain seed literals and must never change:
// every persisted address depends on them.
const (
	DomainMarketplace  = "marketplace"
	DomainServiceMint  = "nft_mint"
	DomainService      = "service"
	DomainEscrow       = "escrow"
	DomainRoyaltyVault = "marketplace_vault"
	DomainHolding      = "token_account"
)

// MaxNameLength bounds listing names so they fit in a single derivation seed.
const MaxNameLength = 32

// Derived is an address plus the bump proving no colliding keypair exists
// for its seed tuple.
type Derived struct {
	Address solana.PublicKey
	Bump    uint8
}

// Derive computes the program-derived address for a domain tag and component
// tuple. Identical inputs always produce identical output.
func Derive(domain string, components ...[]byte) (Derived, error) {
	seeds := make([][]byte, 0, len(components)+1)
	seeds = append(seeds, []byte(domain))
	seeds = append(seeds, components...)

	addr, bump, err := solana.FindProgramAddress(seeds, ProgramID)
	if err != nil {
		return Derived{}, fmt.Errorf("derive %s address: %w", domain, err)
	}
	return Derived{Address: addr, Bump: bump}, nil
}

// Verify recomputes the address for the given bump and reports whether it
// matches. Used to validate caller-supplied addresses against derivation.
func Verify(addr solana.PublicKey, bump uint8, domain string, components ...[]byte) bool {
	seeds := make([][]byte, 0, len(components)+2)
	seeds = append(seeds, []byte(domain))
	seeds = append(seeds, components...)
	seeds = append(seeds, []byte{bump})

	derived, err := solana.CreateProgramAddress(seeds, ProgramID)
	if err != nil {
		return false
	}
	return derived.Equals(addr)
}

// Marketplace derives the singleton registry address.
func Marketplace() (Derived, error) {
	return Derive(DomainMarketplace)
}

// ServiceMint derives the unique token mint backing the named service.
func ServiceMint(name string) (Derived, error) {
	return Derive(DomainServiceMint, []byte(name))
}

// Service derives the listing record address for a service name.
func Service(name string) (Derived, error) {
	return Derive(DomainService, []byte(name))
}

// Escrow derives the custody account holding a listed token.
func Escrow(nftMint solana.PublicKey) (Derived, error) {
	return Derive(DomainEscrow, nftMint.Bytes())
}

// RoyaltyVault derives the per-currency vault accumulating resale royalties.
func RoyaltyVault(paymentMint solana.PublicKey) (Derived, error) {
	return Derive(DomainRoyaltyVault, paymentMint.Bytes())
}

// Holding derives the account through which an owner holds units of a mint.
func Holding(owner, mint solana.PublicKey) (Derived, error) {
	return Derive(DomainHolding, owner.Bytes(), mint.Bytes())
}
