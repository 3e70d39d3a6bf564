package minting

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/parallax-protocol/service-marketplace/internal/app/domain/market"
	"github.com/parallax-protocol/service-marketplace/internal/app/keys"
	"github.com/parallax-protocol/service-marketplace/internal/app/storage/memory"
	"github.com/parallax-protocol/service-marketplace/pkg/logger"
)

func TestMint(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, logger.NewDefault("minting-test"))
	vendor := solana.NewWallet().PublicKey()

	minted, err := svc.Mint(ctx, vendor, "code-review", "https://example.com/code-review.json")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if minted.Supply != 1 {
		t.Errorf("expected supply 1, got %d", minted.Supply)
	}
	if minted.Decimals != 0 {
		t.Errorf("expected 0 decimals, got %d", minted.Decimals)
	}
	if !minted.Authority.Equals(vendor) {
		t.Errorf("authority mismatch: %s", minted.Authority)
	}

	d, err := keys.ServiceMint("code-review")
	if err != nil {
		t.Fatalf("derive mint address: %v", err)
	}
	if !minted.Address.Equals(d.Address) {
		t.Errorf("mint address %s does not match derivation %s", minted.Address, d.Address)
	}

	// The single unit lands in the vendor's holding account.
	holdD, err := keys.Holding(vendor, minted.Address)
	if err != nil {
		t.Fatalf("derive holding: %v", err)
	}
	hold, err := store.GetTokenAccount(ctx, holdD.Address)
	if err != nil {
		t.Fatalf("get holding account: %v", err)
	}
	if hold.Balance != 1 {
		t.Errorf("expected holding balance 1, got %d", hold.Balance)
	}
	if !hold.Owner.Equals(vendor) {
		t.Errorf("holding owner mismatch: %s", hold.Owner)
	}
}

func TestMintRecordsMetadata(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), logger.NewDefault("minting-test"))
	vendor := solana.NewWallet().PublicKey()

	if _, err := svc.Mint(ctx, vendor, "design-audit", "https://example.com/design-audit.json"); err != nil {
		t.Fatalf("mint: %v", err)
	}

	md, err := svc.Metadata(ctx, "design-audit")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if md.Name != "design-audit" {
		t.Errorf("metadata name mismatch: %s", md.Name)
	}
	if md.URI != "https://example.com/design-audit.json" {
		t.Errorf("metadata uri mismatch: %s", md.URI)
	}
	if md.SellerFeeBasisPoints != defaultSellerFeeBasisPoints {
		t.Errorf("expected %d basis points, got %d", defaultSellerFeeBasisPoints, md.SellerFeeBasisPoints)
	}
}

func TestMintDuplicateNameFails(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, logger.NewDefault("minting-test"))
	vendor := solana.NewWallet().PublicKey()

	first, err := svc.Mint(ctx, vendor, "unique-name", "https://example.com/a.json")
	if err != nil {
		t.Fatalf("first mint: %v", err)
	}

	other := solana.NewWallet().PublicKey()
	_, err = svc.Mint(ctx, other, "unique-name", "https://example.com/b.json")
	if !errors.Is(err, market.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	// The original mint and its metadata survive untouched.
	got, err := svc.Get(ctx, "unique-name")
	if err != nil {
		t.Fatalf("get after duplicate: %v", err)
	}
	if !got.Authority.Equals(first.Authority) {
		t.Error("duplicate attempt altered the original mint")
	}

	// No holding account appears for the failed minter.
	holdD, err := keys.Holding(other, first.Address)
	if err != nil {
		t.Fatalf("derive holding: %v", err)
	}
	if _, err := store.GetTokenAccount(ctx, holdD.Address); !errors.Is(err, market.ErrAccountNotFound) {
		t.Errorf("expected no holding account for the failed mint, got %v", err)
	}
}

func TestMintValidation(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), logger.NewDefault("minting-test"))
	vendor := solana.NewWallet().PublicKey()

	cases := []struct {
		label  string
		vendor solana.PublicKey
		name   string
		uri    string
	}{
		{"zero vendor", solana.PublicKey{}, "ok-name", "https://example.com/x.json"},
		{"empty name", vendor, "  ", "https://example.com/x.json"},
		{"long name", vendor, strings.Repeat("x", keys.MaxNameLength+1), "https://example.com/x.json"},
		{"empty uri", vendor, "ok-name", ""},
	}
	for _, tc := range cases {
		if _, err := svc.Mint(ctx, tc.vendor, tc.name, tc.uri); err == nil {
			t.Errorf("%s: expected an error", tc.label)
		}
	}
}
