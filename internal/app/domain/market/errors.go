package market

import "errors"

// Protocol failures. Every one is detected before any mutation is applied;
// a failed operation leaves the ledger exactly as it was.
var (
	// Precondition violations.
	ErrAlreadyInitialized = errors.New("marketplace already initialized")
	ErrNotInitialized     = errors.New("marketplace not initialized")
	ErrDuplicateName      = errors.New("a service token with this name already exists")
	ErrDuplicateListing   = errors.New("service name is already listed")
	ErrNotOwner           = errors.New("vendor does not hold the service token")
	ErrNotHolder          = errors.New("caller is not the holder of record")
	ErrServiceNotFound    = errors.New("service not found")
	ErrServiceNotListed   = errors.New("service is not listed for sale")
	ErrMintNotFound       = errors.New("mint not found")
	ErrAccountNotFound    = errors.New("token account not found")

	// Economic guards.
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCurrencyMismatch  = errors.New("payment account currency does not match the listing")
	ErrInvalidPrice      = errors.New("price must be greater than zero")
	ErrInvalidRoyalty    = errors.New("royalty percentage must be between 0 and 100")

	// Policy guards.
	ErrSoulboundNotResellable = errors.New("soulbound services cannot be resold")
	ErrNotAuthority           = errors.New("caller is not the marketplace authority")
	ErrAddressMismatch        = errors.New("supplied address does not match derivation")
)
