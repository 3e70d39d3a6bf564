// Package market holds the marketplace registry record and the protocol
// error taxonomy shared by every operation.
package market

import (
	"math/bits"
	"time"

	"github.com/gagliardetto/solana-go"
)

// DefaultRoyaltyPercentage is applied when the registry is initialized.
const DefaultRoyaltyPercentage = 5

// Marketplace is the singleton registry record. Exactly one exists per
// deployment; it is created once and only its counter and royalty rate ever
// change afterwards.
type Marketplace struct {
	Address solana.PublicKey

	// Authority may administer the registry (royalty rate changes,
	// vault withdrawals handled outside the core).
	Authority solana.PublicKey

	// TotalServices counts listings ever created. Monotonic.
	TotalServices uint64

	// RoyaltyPercentage is the resale fee, 0-100.
	RoyaltyPercentage uint8

	Bump      uint8
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoyaltyOn computes the royalty owed on a resale price, truncating toward
// zero. The 128-bit intermediate keeps price*rate from overflowing.
func (m Marketplace) RoyaltyOn(price uint64) uint64 {
	hi, lo := bits.Mul64(price, uint64(m.RoyaltyPercentage))
	q, _ := bits.Div64(hi, lo, 100)
	return q
}

// CountListing increments the listing counter, saturating at the maximum.
func (m *Marketplace) CountListing() {
	if m.TotalServices < ^uint64(0) {
		m.TotalServices++
	}
}
