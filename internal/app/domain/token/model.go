// Package token models mints, descriptive metadata and holding accounts.
package token

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Mint is a token type. Service tokens are minted with supply 1 and zero
// decimals: indivisible and one of a kind.
type Mint struct {
	Address   solana.PublicKey
	Name      string
	Authority solana.PublicKey
	Supply    uint64
	Decimals  uint8
	Bump      uint8
	CreatedAt time.Time
}

// Metadata is the descriptive record attached to a service mint.
type Metadata struct {
	Mint                 solana.PublicKey
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Mutable              bool
}

// Account holds a balance of one mint for one owner. Escrow and vault
// accounts are protocol-owned: no user signing key can move their funds.
type Account struct {
	Address solana.PublicKey
	Mint    solana.PublicKey
	Owner   solana.PublicKey
	Balance uint64

	// ProtocolOwned marks escrow and vault accounts, whose funds only
	// the protocol's derived authority can move.
	ProtocolOwned bool

	Bump      uint8
	CreatedAt time.Time
	UpdatedAt time.Time
}
