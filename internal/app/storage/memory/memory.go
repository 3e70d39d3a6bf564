// Package memory implements the ledger in process memory. It is safe for
// concurrent use and is the default backend for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/parallax-protocol/service-marketplace/internal/app/domain/listing"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/market"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/token"
	"github.com/parallax-protocol/service-marketplace/internal/app/storage"
)

// state is the complete ledger content. Atomic transitions work on a clone
// and swap it in on success, so a failed transition leaves no trace.
type state struct {
	marketplace  *market.Marketplace
	services     map[string]listing.Service // by address
	serviceNames map[string]string          // name -> address
	mints        map[string]token.Mint      // by address
	mintNames    map[string]string          // name -> address
	metadata     map[string]token.Metadata  // by mint address
	accounts     map[string]token.Account   // by address
}

func newState() *state {
	return &state{
		services:     make(map[string]listing.Service),
		serviceNames: make(map[string]string),
		mints:        make(map[string]token.Mint),
		mintNames:    make(map[string]string),
		metadata:     make(map[string]token.Metadata),
		accounts:     make(map[string]token.Account),
	}
}

func (st *state) clone() *state {
	out := newState()
	if st.marketplace != nil {
		m := *st.marketplace
		out.marketplace = &m
	}
	for k, v := range st.services {
		out.services[k] = v
	}
	for k, v := range st.serviceNames {
		out.serviceNames[k] = v
	}
	for k, v := range st.mints {
		out.mints[k] = v
	}
	for k, v := range st.mintNames {
		out.mintNames[k] = v
	}
	for k, v := range st.metadata {
		out.metadata[k] = v
	}
	for k, v := range st.accounts {
		out.accounts[k] = v
	}
	return out
}

// Store is the in-memory ledger.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ storage.Ledger = (*Store)(nil)

// New creates an empty ledger.
func New() *Store {
	return &Store{st: newState()}
}

// Atomic runs fn against a staged copy of the ledger. The copy replaces the
// live state only when fn returns nil; the mutex serializes conflicting
// transitions.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Single reads and writes outside Atomic form their own one-shot transition.

func (s *Store) CreateMarketplace(ctx context.Context, m market.Marketplace) (market.Marketplace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).CreateMarketplace(ctx, m)
}

func (s *Store) GetMarketplace(ctx context.Context) (market.Marketplace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).GetMarketplace(ctx)
}

func (s *Store) UpdateMarketplace(ctx context.Context, m market.Marketplace) (market.Marketplace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).UpdateMarketplace(ctx, m)
}

func (s *Store) CreateService(ctx context.Context, svc listing.Service) (listing.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).CreateService(ctx, svc)
}

func (s *Store) GetService(ctx context.Context, address solana.PublicKey) (listing.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).GetService(ctx, address)
}

func (s *Store) GetServiceByName(ctx context.Context, name string) (listing.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).GetServiceByName(ctx, name)
}

func (s *Store) UpdateService(ctx context.Context, svc listing.Service) (listing.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).UpdateService(ctx, svc)
}

func (s *Store) ListServices(ctx context.Context) ([]listing.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).ListServices(ctx)
}

func (s *Store) CreateMint(ctx context.Context, m token.Mint) (token.Mint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).CreateMint(ctx, m)
}

func (s *Store) GetMint(ctx context.Context, address solana.PublicKey) (token.Mint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).GetMint(ctx, address)
}

func (s *Store) GetMintByName(ctx context.Context, name string) (token.Mint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).GetMintByName(ctx, name)
}

func (s *Store) CreateMetadata(ctx context.Context, md token.Metadata) (token.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).CreateMetadata(ctx, md)
}

func (s *Store) GetMetadata(ctx context.Context, mint solana.PublicKey) (token.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).GetMetadata(ctx, mint)
}

func (s *Store) CreateTokenAccount(ctx context.Context, acct token.Account) (token.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).CreateTokenAccount(ctx, acct)
}

func (s *Store) GetTokenAccount(ctx context.Context, address solana.PublicKey) (token.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).GetTokenAccount(ctx, address)
}

func (s *Store) UpdateTokenAccount(ctx context.Context, acct token.Account) (token.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).UpdateTokenAccount(ctx, acct)
}

// tx applies reads and writes directly to one state instance.
type tx struct {
	st *state
}

var _ storage.Tx = (*tx)(nil)

// MarketplaceStore --------------------------------------------------------

func (t *tx) CreateMarketplace(_ context.Context, m market.Marketplace) (market.Marketplace, error) {
	if t.st.marketplace != nil {
		return market.Marketplace{}, market.ErrAlreadyInitialized
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	t.st.marketplace = &m
	return m, nil
}

func (t *tx) GetMarketplace(_ context.Context) (market.Marketplace, error) {
	if t.st.marketplace == nil {
		return market.Marketplace{}, market.ErrNotInitialized
	}
	return *t.st.marketplace, nil
}

func (t *tx) UpdateMarketplace(_ context.Context, m market.Marketplace) (market.Marketplace, error) {
	if t.st.marketplace == nil {
		return market.Marketplace{}, market.ErrNotInitialized
	}
	m.CreatedAt = t.st.marketplace.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	t.st.marketplace = &m
	return m, nil
}

// ServiceStore ------------------------------------------------------------

func (t *tx) CreateService(_ context.Context, svc listing.Service) (listing.Service, error) {
	key := svc.Address.String()
	if _, exists := t.st.services[key]; exists {
		return listing.Service{}, fmt.Errorf("service %s: %w", svc.Name, market.ErrDuplicateListing)
	}
	if _, exists := t.st.serviceNames[svc.Name]; exists {
		return listing.Service{}, fmt.Errorf("service %s: %w", svc.Name, market.ErrDuplicateListing)
	}
	now := time.Now().UTC()
	svc.CreatedAt = now
	svc.UpdatedAt = now
	t.st.services[key] = svc
	t.st.serviceNames[svc.Name] = key
	return svc, nil
}

func (t *tx) GetService(_ context.Context, address solana.PublicKey) (listing.Service, error) {
	svc, ok := t.st.services[address.String()]
	if !ok {
		return listing.Service{}, fmt.Errorf("service at %s: %w", address, market.ErrServiceNotFound)
	}
	return svc, nil
}

func (t *tx) GetServiceByName(_ context.Context, name string) (listing.Service, error) {
	key, ok := t.st.serviceNames[name]
	if !ok {
		return listing.Service{}, fmt.Errorf("service %q: %w", name, market.ErrServiceNotFound)
	}
	return t.st.services[key], nil
}

func (t *tx) UpdateService(_ context.Context, svc listing.Service) (listing.Service, error) {
	key := svc.Address.String()
	existing, ok := t.st.services[key]
	if !ok {
		return listing.Service{}, fmt.Errorf("service %q: %w", svc.Name, market.ErrServiceNotFound)
	}
	svc.CreatedAt = existing.CreatedAt
	svc.UpdatedAt = time.Now().UTC()
	t.st.services[key] = svc
	return svc, nil
}

func (t *tx) ListServices(_ context.Context) ([]listing.Service, error) {
	out := make([]listing.Service, 0, len(t.st.services))
	for _, svc := range t.st.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// MintStore ---------------------------------------------------------------

func (t *tx) CreateMint(_ context.Context, m token.Mint) (token.Mint, error) {
	key := m.Address.String()
	if _, exists := t.st.mints[key]; exists {
		return token.Mint{}, fmt.Errorf("mint %q: %w", m.Name, market.ErrDuplicateName)
	}
	if _, exists := t.st.mintNames[m.Name]; exists {
		return token.Mint{}, fmt.Errorf("mint %q: %w", m.Name, market.ErrDuplicateName)
	}
	m.CreatedAt = time.Now().UTC()
	t.st.mints[key] = m
	t.st.mintNames[m.Name] = key
	return m, nil
}

func (t *tx) GetMint(_ context.Context, address solana.PublicKey) (token.Mint, error) {
	m, ok := t.st.mints[address.String()]
	if !ok {
		return token.Mint{}, fmt.Errorf("mint at %s: %w", address, market.ErrMintNotFound)
	}
	return m, nil
}

func (t *tx) GetMintByName(_ context.Context, name string) (token.Mint, error) {
	key, ok := t.st.mintNames[name]
	if !ok {
		return token.Mint{}, fmt.Errorf("mint %q: %w", name, market.ErrMintNotFound)
	}
	return t.st.mints[key], nil
}

func (t *tx) CreateMetadata(_ context.Context, md token.Metadata) (token.Metadata, error) {
	key := md.Mint.String()
	if _, exists := t.st.metadata[key]; exists {
		return token.Metadata{}, fmt.Errorf("metadata for mint %s already exists", md.Mint)
	}
	t.st.metadata[key] = md
	return md, nil
}

func (t *tx) GetMetadata(_ context.Context, mint solana.PublicKey) (token.Metadata, error) {
	md, ok := t.st.metadata[mint.String()]
	if !ok {
		return token.Metadata{}, fmt.Errorf("metadata for mint %s: %w", mint, market.ErrMintNotFound)
	}
	return md, nil
}

// TokenAccountStore -------------------------------------------------------

func (t *tx) CreateTokenAccount(_ context.Context, acct token.Account) (token.Account, error) {
	key := acct.Address.String()
	if _, exists := t.st.accounts[key]; exists {
		return token.Account{}, fmt.Errorf("token account %s already exists", acct.Address)
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	t.st.accounts[key] = acct
	return acct, nil
}

func (t *tx) GetTokenAccount(_ context.Context, address solana.PublicKey) (token.Account, error) {
	acct, ok := t.st.accounts[address.String()]
	if !ok {
		return token.Account{}, fmt.Errorf("token account %s: %w", address, market.ErrAccountNotFound)
	}
	return acct, nil
}

func (t *tx) UpdateTokenAccount(_ context.Context, acct token.Account) (token.Account, error) {
	key := acct.Address.String()
	existing, ok := t.st.accounts[key]
	if !ok {
		return token.Account{}, fmt.Errorf("token account %s: %w", acct.Address, market.ErrAccountNotFound)
	}
	acct.CreatedAt = existing.CreatedAt
	acct.UpdatedAt = time.Now().UTC()
	t.st.accounts[key] = acct
	return acct, nil
}
