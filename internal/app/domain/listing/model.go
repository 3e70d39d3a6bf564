// Package listing defines the per-service listing record.
package listing

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Service is the record created when a vendor lists a service. It is never
// deleted; together with its holder field it forms the permanent provenance
// ledger for the backing token.
type Service struct {
	Address solana.PublicKey

	// Vendor is the original creator. Immutable.
	Vendor solana.PublicKey

	// Holder is the identity currently entitled to the token. It starts
	// as the vendor and moves to each buyer in turn.
	Holder solana.PublicKey

	// Name keys every derivation for this listing. Immutable.
	Name        string
	Description string

	// Price is the current asking price denominated in PaymentMint.
	Price       uint64
	PaymentMint solana.PublicKey

	// NFTMint is the unique token backing this service. Immutable.
	NFTMint solana.PublicKey

	// IsSoulbound permanently forbids resale once set. Immutable.
	IsSoulbound bool

	// Listed reports whether the escrow currently custodies the token.
	Listed bool

	Bump       uint8
	EscrowBump uint8

	CreatedAt time.Time
	UpdatedAt time.Time
}
