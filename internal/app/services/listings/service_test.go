package listings

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/parallax-protocol/service-marketplace/internal/app/domain/market"
	"github.com/parallax-protocol/service-marketplace/internal/app/keys"
	"github.com/parallax-protocol/service-marketplace/internal/app/services/marketplace"
	"github.com/parallax-protocol/service-marketplace/internal/app/services/minting"
	"github.com/parallax-protocol/service-marketplace/internal/app/storage/memory"
	"github.com/parallax-protocol/service-marketplace/pkg/logger"
)

type fixture struct {
	store    *memory.Store
	listings *Service
	minting  *minting.Service
	registry *marketplace.Service

	authority   solana.PublicKey
	vendor      solana.PublicKey
	paymentMint solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	log := logger.NewDefault("listings-test")

	f := &fixture{
		store:       store,
		listings:    New(store, log),
		minting:     minting.New(store, log),
		registry:    marketplace.New(store, log),
		authority:   solana.NewWallet().PublicKey(),
		vendor:      solana.NewWallet().PublicKey(),
		paymentMint: solana.NewWallet().PublicKey(),
	}
	if _, err := f.registry.Initialize(context.Background(), f.authority); err != nil {
		t.Fatalf("initialize marketplace: %v", err)
	}
	return f
}

func (f *fixture) mint(t *testing.T, name string) {
	t.Helper()
	if _, err := f.minting.Mint(context.Background(), f.vendor, name, "https://example.com/"+name+".json"); err != nil {
		t.Fatalf("mint %s: %v", name, err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mint(t, "pen-test")

	svc, err := f.listings.List(ctx, f.vendor, "pen-test", "A thorough penetration test", 1_000_000, f.paymentMint, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if !svc.Listed {
		t.Error("service not marked listed")
	}
	if !svc.Vendor.Equals(f.vendor) || !svc.Holder.Equals(f.vendor) {
		t.Error("vendor and holder should both be the lister")
	}
	if svc.Price != 1_000_000 {
		t.Errorf("price mismatch: %d", svc.Price)
	}

	// Custody moved: escrow holds the unit, the vendor's holding is empty.
	balance, err := f.listings.EscrowBalance(ctx, "pen-test")
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if balance != 1 {
		t.Errorf("expected escrow balance 1, got %d", balance)
	}

	holdD, err := keys.Holding(f.vendor, svc.NFTMint)
	if err != nil {
		t.Fatalf("derive holding: %v", err)
	}
	hold, err := f.store.GetTokenAccount(ctx, holdD.Address)
	if err != nil {
		t.Fatalf("get holding: %v", err)
	}
	if hold.Balance != 0 {
		t.Errorf("expected empty vendor holding, got %d", hold.Balance)
	}

	// The registry counter advanced.
	m, err := f.registry.Get(ctx)
	if err != nil {
		t.Fatalf("get marketplace: %v", err)
	}
	if m.TotalServices != 1 {
		t.Errorf("expected total_services 1, got %d", m.TotalServices)
	}
}

func TestListRequiresInitializedMarketplace(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	log := logger.NewDefault("listings-test")
	vendor := solana.NewWallet().PublicKey()

	if _, err := minting.New(store, log).Mint(ctx, vendor, "early-bird", "https://example.com/e.json"); err != nil {
		t.Fatalf("mint: %v", err)
	}

	_, err := New(store, log).List(ctx, vendor, "early-bird", "", 100, solana.NewWallet().PublicKey(), false)
	if !errors.Is(err, market.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestListRejectsNonOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mint(t, "owned-service")

	stranger := solana.NewWallet().PublicKey()
	_, err := f.listings.List(ctx, stranger, "owned-service", "", 500, f.paymentMint, false)
	if !errors.Is(err, market.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	// Nothing changed: no service record, counter still zero.
	if _, err := f.listings.Get(ctx, "owned-service"); !errors.Is(err, market.ErrServiceNotFound) {
		t.Errorf("expected no service record, got %v", err)
	}
	m, err := f.registry.Get(ctx)
	if err != nil {
		t.Fatalf("get marketplace: %v", err)
	}
	if m.TotalServices != 0 {
		t.Errorf("counter advanced on a failed listing: %d", m.TotalServices)
	}
}

func TestListDuplicateFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mint(t, "once-only")

	if _, err := f.listings.List(ctx, f.vendor, "once-only", "", 250, f.paymentMint, false); err != nil {
		t.Fatalf("first list: %v", err)
	}
	_, err := f.listings.List(ctx, f.vendor, "once-only", "", 300, f.paymentMint, false)
	if !errors.Is(err, market.ErrDuplicateListing) {
		t.Fatalf("expected ErrDuplicateListing, got %v", err)
	}

	svc, err := f.listings.Get(ctx, "once-only")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if svc.Price != 250 {
		t.Errorf("duplicate attempt altered the price: %d", svc.Price)
	}
}

func TestListRejectsZeroPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mint(t, "free-lunch")

	_, err := f.listings.List(ctx, f.vendor, "free-lunch", "", 0, f.paymentMint, false)
	if !errors.Is(err, market.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestListWithoutMintFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.listings.List(ctx, f.vendor, "never-minted", "", 100, f.paymentMint, false)
	if !errors.Is(err, market.ErrMintNotFound) {
		t.Fatalf("expected ErrMintNotFound, got %v", err)
	}
}

func TestListAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, name := range []string{"svc-a", "svc-b"} {
		f.mint(t, name)
		if _, err := f.listings.List(ctx, f.vendor, name, "", 100, f.paymentMint, false); err != nil {
			t.Fatalf("list %s: %v", name, err)
		}
	}

	all, err := f.listings.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(all))
	}
}

func TestSoulboundFlagPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mint(t, "bound-service")

	svc, err := f.listings.List(ctx, f.vendor, "bound-service", "", 100, f.paymentMint, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !svc.IsSoulbound {
		t.Error("soulbound flag lost")
	}
}
