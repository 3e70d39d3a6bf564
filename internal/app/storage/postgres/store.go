// Package postgres implements the ledger backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/parallax-protocol/service-marketplace/internal/app/domain/listing"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/market"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/token"
	"github.com/parallax-protocol/service-marketplace/internal/app/storage"
)

// Store implements storage.Ledger on a PostgreSQL database.
type Store struct {
	db *sqlx.DB
}

var _ storage.Ledger = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db), nil
}

// DB exposes the underlying handle for migrations and shutdown.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// Atomic runs fn inside a serializable transaction. Serializable isolation
// makes conflicting transitions on the same accounts abort rather than
// interleave, which preserves the escrow balance-of-one invariant under
// concurrent purchases.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	txx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(ctx, &tx{q: txx}); err != nil {
		_ = txx.Rollback()
		return err
	}
	if err := txx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Direct calls run against the pool; each statement is its own transition.

func (s *Store) CreateMarketplace(ctx context.Context, m market.Marketplace) (market.Marketplace, error) {
	return (&tx{q: s.db}).CreateMarketplace(ctx, m)
}

func (s *Store) GetMarketplace(ctx context.Context) (market.Marketplace, error) {
	return (&tx{q: s.db}).GetMarketplace(ctx)
}

func (s *Store) UpdateMarketplace(ctx context.Context, m market.Marketplace) (market.Marketplace, error) {
	return (&tx{q: s.db}).UpdateMarketplace(ctx, m)
}

func (s *Store) CreateService(ctx context.Context, svc listing.Service) (listing.Service, error) {
	return (&tx{q: s.db}).CreateService(ctx, svc)
}

func (s *Store) GetService(ctx context.Context, address solana.PublicKey) (listing.Service, error) {
	return (&tx{q: s.db}).GetService(ctx, address)
}

func (s *Store) GetServiceByName(ctx context.Context, name string) (listing.Service, error) {
	return (&tx{q: s.db}).GetServiceByName(ctx, name)
}

func (s *Store) UpdateService(ctx context.Context, svc listing.Service) (listing.Service, error) {
	return (&tx{q: s.db}).UpdateService(ctx, svc)
}

func (s *Store) ListServices(ctx context.Context) ([]listing.Service, error) {
	return (&tx{q: s.db}).ListServices(ctx)
}

func (s *Store) CreateMint(ctx context.Context, m token.Mint) (token.Mint, error) {
	return (&tx{q: s.db}).CreateMint(ctx, m)
}

func (s *Store) GetMint(ctx context.Context, address solana.PublicKey) (token.Mint, error) {
	return (&tx{q: s.db}).GetMint(ctx, address)
}

func (s *Store) GetMintByName(ctx context.Context, name string) (token.Mint, error) {
	return (&tx{q: s.db}).GetMintByName(ctx, name)
}

func (s *Store) CreateMetadata(ctx context.Context, md token.Metadata) (token.Metadata, error) {
	return (&tx{q: s.db}).CreateMetadata(ctx, md)
}

func (s *Store) GetMetadata(ctx context.Context, mint solana.PublicKey) (token.Metadata, error) {
	return (&tx{q: s.db}).GetMetadata(ctx, mint)
}

func (s *Store) CreateTokenAccount(ctx context.Context, acct token.Account) (token.Account, error) {
	return (&tx{q: s.db}).CreateTokenAccount(ctx, acct)
}

func (s *Store) GetTokenAccount(ctx context.Context, address solana.PublicKey) (token.Account, error) {
	return (&tx{q: s.db}).GetTokenAccount(ctx, address)
}

func (s *Store) UpdateTokenAccount(ctx context.Context, acct token.Account) (token.Account, error) {
	return (&tx{q: s.db}).UpdateTokenAccount(ctx, acct)
}

// tx runs queries against either the pool or an open transaction.
type tx struct {
	q sqlx.ExtContext
}

var _ storage.Tx = (*tx)(nil)

// --- MarketplaceStore ----------------------------------------------------

type marketplaceRow struct {
	Address           string    `db:"address"`
	Authority         string    `db:"authority"`
	TotalServices     int64     `db:"total_services"`
	RoyaltyPercentage int16     `db:"royalty_percentage"`
	Bump              int16     `db:"bump"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r marketplaceRow) toDomain() (market.Marketplace, error) {
	address, err := solana.PublicKeyFromBase58(r.Address)
	if err != nil {
		return market.Marketplace{}, fmt.Errorf("decode marketplace address: %w", err)
	}
	authority, err := solana.PublicKeyFromBase58(r.Authority)
	if err != nil {
		return market.Marketplace{}, fmt.Errorf("decode marketplace authority: %w", err)
	}
	return market.Marketplace{
		Address:           address,
		Authority:         authority,
		TotalServices:     uint64(r.TotalServices),
		RoyaltyPercentage: uint8(r.RoyaltyPercentage),
		Bump:              uint8(r.Bump),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}

func (t *tx) CreateMarketplace(ctx context.Context, m market.Marketplace) (market.Marketplace, error) {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO marketplace (address, authority, total_services, royalty_percentage, bump, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.Address.String(), m.Authority.String(), int64(m.TotalServices), int16(m.RoyaltyPercentage), int16(m.Bump), m.CreatedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return market.Marketplace{}, market.ErrAlreadyInitialized
	}
	if err != nil {
		return market.Marketplace{}, err
	}
	return m, nil
}

func (t *tx) GetMarketplace(ctx context.Context) (market.Marketplace, error) {
	var row marketplaceRow
	err := sqlx.GetContext(ctx, t.q, &row, `
		SELECT address, authority, total_services, royalty_percentage, bump, created_at, updated_at
		FROM marketplace
		LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return market.Marketplace{}, market.ErrNotInitialized
	}
	if err != nil {
		return market.Marketplace{}, err
	}
	return row.toDomain()
}

func (t *tx) UpdateMarketplace(ctx context.Context, m market.Marketplace) (market.Marketplace, error) {
	m.UpdatedAt = time.Now().UTC()
	result, err := t.q.ExecContext(ctx, `
		UPDATE marketplace
		SET authority = $2, total_services = $3, royalty_percentage = $4, updated_at = $5
		WHERE address = $1
	`, m.Address.String(), m.Authority.String(), int64(m.TotalServices), int16(m.RoyaltyPercentage), m.UpdatedAt)
	if err != nil {
		return market.Marketplace{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return market.Marketplace{}, market.ErrNotInitialized
	}
	return m, nil
}

// --- ServiceStore --------------------------------------------------------

type serviceRow struct {
	Address     string    `db:"address"`
	Vendor      string    `db:"vendor"`
	Holder      string    `db:"holder"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Price       int64     `db:"price"`
	PaymentMint string    `db:"payment_mint"`
	NFTMint     string    `db:"nft_mint"`
	IsSoulbound bool      `db:"is_soulbound"`
	Listed      bool      `db:"listed"`
	Bump        int16     `db:"bump"`
	EscrowBump  int16     `db:"escrow_bump"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r serviceRow) toDomain() (listing.Service, error) {
	fields := map[string]string{
		"address":      r.Address,
		"vendor":       r.Vendor,
		"holder":       r.Holder,
		"payment_mint": r.PaymentMint,
		"nft_mint":     r.NFTMint,
	}
	decoded := make(map[string]solana.PublicKey, len(fields))
	for name, raw := range fields {
		key, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return listing.Service{}, fmt.Errorf("decode service %s: %w", name, err)
		}
		decoded[name] = key
	}
	return listing.Service{
		Address:     decoded["address"],
		Vendor:      decoded["vendor"],
		Holder:      decoded["holder"],
		Name:        r.Name,
		Description: r.Description,
		Price:       uint64(r.Price),
		PaymentMint: decoded["payment_mint"],
		NFTMint:     decoded["nft_mint"],
		IsSoulbound: r.IsSoulbound,
		Listed:      r.Listed,
		Bump:        uint8(r.Bump),
		EscrowBump:  uint8(r.EscrowBump),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

const serviceColumns = `address, vendor, holder, name, description, price, payment_mint, nft_mint, is_soulbound, listed, bump, escrow_bump, created_at, updated_at`

func (t *tx) CreateService(ctx context.Context, svc listing.Service) (listing.Service, error) {
	now := time.Now().UTC()
	svc.CreatedAt = now
	svc.UpdatedAt = now

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO services (`+serviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, svc.Address.String(), svc.Vendor.String(), svc.Holder.String(), svc.Name, svc.Description,
		int64(svc.Price), svc.PaymentMint.String(), svc.NFTMint.String(), svc.IsSoulbound, svc.Listed,
		int16(svc.Bump), int16(svc.EscrowBump), svc.CreatedAt, svc.UpdatedAt)
	if isUniqueViolation(err) {
		return listing.Service{}, fmt.Errorf("service %q: %w", svc.Name, market.ErrDuplicateListing)
	}
	if err != nil {
		return listing.Service{}, err
	}
	return svc, nil
}

func (t *tx) GetService(ctx context.Context, address solana.PublicKey) (listing.Service, error) {
	var row serviceRow
	err := sqlx.GetContext(ctx, t.q, &row, `
		SELECT `+serviceColumns+` FROM services WHERE address = $1
	`, address.String())
	if errors.Is(err, sql.ErrNoRows) {
		return listing.Service{}, fmt.Errorf("service at %s: %w", address, market.ErrServiceNotFound)
	}
	if err != nil {
		return listing.Service{}, err
	}
	return row.toDomain()
}

func (t *tx) GetServiceByName(ctx context.Context, name string) (listing.Service, error) {
	var row serviceRow
	err := sqlx.GetContext(ctx, t.q, &row, `
		SELECT `+serviceColumns+` FROM services WHERE name = $1
	`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return listing.Service{}, fmt.Errorf("service %q: %w", name, market.ErrServiceNotFound)
	}
	if err != nil {
		return listing.Service{}, err
	}
	return row.toDomain()
}

func (t *tx) UpdateService(ctx context.Context, svc listing.Service) (listing.Service, error) {
	svc.UpdatedAt = time.Now().UTC()
	result, err := t.q.ExecContext(ctx, `
		UPDATE services
		SET holder = $2, description = $3, price = $4, listed = $5, updated_at = $6
		WHERE address = $1
	`, svc.Address.String(), svc.Holder.String(), svc.Description, int64(svc.Price), svc.Listed, svc.UpdatedAt)
	if err != nil {
		return listing.Service{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return listing.Service{}, fmt.Errorf("service %q: %w", svc.Name, market.ErrServiceNotFound)
	}
	return svc, nil
}

func (t *tx) ListServices(ctx context.Context) ([]listing.Service, error) {
	var rows []serviceRow
	err := sqlx.SelectContext(ctx, t.q, &rows, `
		SELECT `+serviceColumns+` FROM services ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	out := make([]listing.Service, 0, len(rows))
	for _, row := range rows {
		svc, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

// --- MintStore -----------------------------------------------------------

type mintRow struct {
	Address   string    `db:"address"`
	Name      string    `db:"name"`
	Authority string    `db:"authority"`
	Supply    int64     `db:"supply"`
	Decimals  int16     `db:"decimals"`
	Bump      int16     `db:"bump"`
	CreatedAt time.Time `db:"created_at"`
}

func (r mintRow) toDomain() (token.Mint, error) {
	address, err := solana.PublicKeyFromBase58(r.Address)
	if err != nil {
		return token.Mint{}, fmt.Errorf("decode mint address: %w", err)
	}
	authority, err := solana.PublicKeyFromBase58(r.Authority)
	if err != nil {
		return token.Mint{}, fmt.Errorf("decode mint authority: %w", err)
	}
	return token.Mint{
		Address:   address,
		Name:      r.Name,
		Authority: authority,
		Supply:    uint64(r.Supply),
		Decimals:  uint8(r.Decimals),
		Bump:      uint8(r.Bump),
		CreatedAt: r.CreatedAt,
	}, nil
}

func (t *tx) CreateMint(ctx context.Context, m token.Mint) (token.Mint, error) {
	m.CreatedAt = time.Now().UTC()
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO mints (address, name, authority, supply, decimals, bump, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.Address.String(), m.Name, m.Authority.String(), int64(m.Supply), int16(m.Decimals), int16(m.Bump), m.CreatedAt)
	if isUniqueViolation(err) {
		return token.Mint{}, fmt.Errorf("mint %q: %w", m.Name, market.ErrDuplicateName)
	}
	if err != nil {
		return token.Mint{}, err
	}
	return m, nil
}

func (t *tx) GetMint(ctx context.Context, address solana.PublicKey) (token.Mint, error) {
	var row mintRow
	err := sqlx.GetContext(ctx, t.q, &row, `
		SELECT address, name, authority, supply, decimals, bump, created_at
		FROM mints WHERE address = $1
	`, address.String())
	if errors.Is(err, sql.ErrNoRows) {
		return token.Mint{}, fmt.Errorf("mint at %s: %w", address, market.ErrMintNotFound)
	}
	if err != nil {
		return token.Mint{}, err
	}
	return row.toDomain()
}

func (t *tx) GetMintByName(ctx context.Context, name string) (token.Mint, error) {
	var row mintRow
	err := sqlx.GetContext(ctx, t.q, &row, `
		SELECT address, name, authority, supply, decimals, bump, created_at
		FROM mints WHERE name = $1
	`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return token.Mint{}, fmt.Errorf("mint %q: %w", name, market.ErrMintNotFound)
	}
	if err != nil {
		return token.Mint{}, err
	}
	return row.toDomain()
}

func (t *tx) CreateMetadata(ctx context.Context, md token.Metadata) (token.Metadata, error) {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO mint_metadata (mint, name, symbol, uri, seller_fee_basis_points, mutable)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, md.Mint.String(), md.Name, md.Symbol, md.URI, int32(md.SellerFeeBasisPoints), md.Mutable)
	if isUniqueViolation(err) {
		return token.Metadata{}, fmt.Errorf("metadata for mint %s already exists", md.Mint)
	}
	if err != nil {
		return token.Metadata{}, err
	}
	return md, nil
}

func (t *tx) GetMetadata(ctx context.Context, mint solana.PublicKey) (token.Metadata, error) {
	var row struct {
		Mint                 string `db:"mint"`
		Name                 string `db:"name"`
		Symbol               string `db:"symbol"`
		URI                  string `db:"uri"`
		SellerFeeBasisPoints int32  `db:"seller_fee_basis_points"`
		Mutable              bool   `db:"mutable"`
	}
	err := sqlx.GetContext(ctx, t.q, &row, `
		SELECT mint, name, symbol, uri, seller_fee_basis_points, mutable
		FROM mint_metadata WHERE mint = $1
	`, mint.String())
	if errors.Is(err, sql.ErrNoRows) {
		return token.Metadata{}, fmt.Errorf("metadata for mint %s: %w", mint, market.ErrMintNotFound)
	}
	if err != nil {
		return token.Metadata{}, err
	}
	return token.Metadata{
		Mint:                 mint,
		Name:                 row.Name,
		Symbol:               row.Symbol,
		URI:                  row.URI,
		SellerFeeBasisPoints: uint16(row.SellerFeeBasisPoints),
		Mutable:              row.Mutable,
	}, nil
}

// --- TokenAccountStore ---------------------------------------------------

type accountRow struct {
	Address       string    `db:"address"`
	Mint          string    `db:"mint"`
	Owner         string    `db:"owner"`
	Balance       int64     `db:"balance"`
	ProtocolOwned bool      `db:"protocol_owned"`
	Bump          int16     `db:"bump"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r accountRow) toDomain() (token.Account, error) {
	address, err := solana.PublicKeyFromBase58(r.Address)
	if err != nil {
		return token.Account{}, fmt.Errorf("decode account address: %w", err)
	}
	mint, err := solana.PublicKeyFromBase58(r.Mint)
	if err != nil {
		return token.Account{}, fmt.Errorf("decode account mint: %w", err)
	}
	owner, err := solana.PublicKeyFromBase58(r.Owner)
	if err != nil {
		return token.Account{}, fmt.Errorf("decode account owner: %w", err)
	}
	return token.Account{
		Address:       address,
		Mint:          mint,
		Owner:         owner,
		Balance:       uint64(r.Balance),
		ProtocolOwned: r.ProtocolOwned,
		Bump:          uint8(r.Bump),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func (t *tx) CreateTokenAccount(ctx context.Context, acct token.Account) (token.Account, error) {
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO token_accounts (address, mint, owner, balance, protocol_owned, bump, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, acct.Address.String(), acct.Mint.String(), acct.Owner.String(), int64(acct.Balance), acct.ProtocolOwned, int16(acct.Bump), acct.CreatedAt, acct.UpdatedAt)
	if isUniqueViolation(err) {
		return token.Account{}, fmt.Errorf("token account %s already exists", acct.Address)
	}
	if err != nil {
		return token.Account{}, err
	}
	return acct, nil
}

func (t *tx) GetTokenAccount(ctx context.Context, address solana.PublicKey) (token.Account, error) {
	// FOR UPDATE pins the row for the rest of the transition, so a racing
	// purchase observes a committed balance, never an interleaved one.
	var row accountRow
	err := sqlx.GetContext(ctx, t.q, &row, `
		SELECT address, mint, owner, balance, protocol_owned, bump, created_at, updated_at
		FROM token_accounts WHERE address = $1
		FOR UPDATE
	`, address.String())
	if errors.Is(err, sql.ErrNoRows) {
		return token.Account{}, fmt.Errorf("token account %s: %w", address, market.ErrAccountNotFound)
	}
	if err != nil {
		return token.Account{}, err
	}
	return row.toDomain()
}

func (t *tx) UpdateTokenAccount(ctx context.Context, acct token.Account) (token.Account, error) {
	acct.UpdatedAt = time.Now().UTC()
	result, err := t.q.ExecContext(ctx, `
		UPDATE token_accounts
		SET balance = $2, updated_at = $3
		WHERE address = $1
	`, acct.Address.String(), int64(acct.Balance), acct.UpdatedAt)
	if err != nil {
		return token.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return token.Account{}, fmt.Errorf("token account %s: %w", acct.Address, market.ErrAccountNotFound)
	}
	return acct, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
