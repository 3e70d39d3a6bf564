// Package settlement executes purchases and resales: atomic swap-and-pay on
// purchase, royalty-weighted splitting on resale, and the soulbound guard.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/parallax-protocol/service-marketplace/internal/app/domain/market"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/token"
	"github.com/parallax-protocol/service-marketplace/internal/app/keys"
	"github.com/parallax-protocol/service-marketplace/internal/app/metrics"
	"github.com/parallax-protocol/service-marketplace/internal/app/storage"
	"github.com/parallax-protocol/service-marketplace/pkg/logger"
)

// Receipt kinds.
const (
	KindPurchase = "purchase"
	KindResale   = "resale"
)

// Receipt describes a committed settlement for callers and audit trails.
type Receipt struct {
	ID             string
	Kind           string
	Service        string
	ServiceAddress solana.PublicKey
	NFTMint        solana.PublicKey
	PaymentMint    solana.PublicKey
	Payer          solana.PublicKey
	Payee          solana.PublicKey
	Price          uint64
	Royalty        uint64
	SellerProceeds uint64
	CreatedAt      time.Time
}

// Service is the settlement engine.
type Service struct {
	ledger storage.Ledger
	log    *logger.Logger
}

// New constructs the settlement engine.
func New(ledger storage.Ledger, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("settlement")
	}
	return &Service{ledger: ledger, log: log}
}

// Buy purchases a listed service: the full price moves from the buyer to the
// current holder of record and the token leaves escrow for the buyer's
// holding account, in one transition. The marketplace takes no fee here;
// resale royalties are collected by Resell.
func (s *Service) Buy(ctx context.Context, buyer solana.PublicKey, name string) (Receipt, error) {
	if buyer.IsZero() {
		return Receipt{}, fmt.Errorf("buyer is required")
	}

	var receipt Receipt
	start := time.Now()
	err := s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		svc, err := tx.GetServiceByName(ctx, name)
		if err != nil {
			return err
		}

		escrowD, err := keys.Escrow(svc.NFTMint)
		if err != nil {
			return err
		}
		escrow, err := tx.GetTokenAccount(ctx, escrowD.Address)
		if err != nil || escrow.Balance != 1 {
			return fmt.Errorf("service %q: %w", name, market.ErrServiceNotListed)
		}

		payment, err := s.debit(ctx, tx, buyer, svc.PaymentMint, svc.Price)
		if err != nil {
			return fmt.Errorf("service %q: %w", name, err)
		}
		if _, err := s.credit(ctx, tx, svc.Holder, svc.PaymentMint, svc.Price); err != nil {
			return err
		}

		escrow.Balance = 0
		if _, err := tx.UpdateTokenAccount(ctx, escrow); err != nil {
			return err
		}
		if _, err := s.credit(ctx, tx, buyer, svc.NFTMint, 1); err != nil {
			return err
		}

		payee := svc.Holder
		svc.Holder = buyer
		svc.Listed = false
		if _, err := tx.UpdateService(ctx, svc); err != nil {
			return err
		}

		receipt = Receipt{
			ID:             uuid.NewString(),
			Kind:           KindPurchase,
			Service:        name,
			ServiceAddress: svc.Address,
			NFTMint:        svc.NFTMint,
			PaymentMint:    payment.Mint,
			Payer:          buyer,
			Payee:          payee,
			Price:          svc.Price,
			Royalty:        0,
			SellerProceeds: svc.Price,
			CreatedAt:      time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	metrics.RecordSettlement(KindPurchase, time.Since(start))
	s.log.WithField("service", name).
		WithField("buyer", buyer.String()).
		WithField("price", receipt.Price).
		Info("service purchased")
	return receipt, nil
}

// Resell relists a previously sold service at a new price. The soulbound
// guard runs before anything else touches the ledger. The seller fronts the
// royalty into the per-currency vault and recoups it from the next buyer,
// who pays the full new price; the seller's realized net over the cycle is
// exactly newPrice minus royalty.
func (s *Service) Resell(ctx context.Context, seller solana.PublicKey, name string, newPrice uint64) (Receipt, error) {
	if seller.IsZero() {
		return Receipt{}, fmt.Errorf("seller is required")
	}
	if newPrice == 0 {
		return Receipt{}, market.ErrInvalidPrice
	}

	var receipt Receipt
	start := time.Now()
	err := s.ledger.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		svc, err := tx.GetServiceByName(ctx, name)
		if err != nil {
			return err
		}

		if svc.IsSoulbound {
			return fmt.Errorf("service %q: %w", name, market.ErrSoulboundNotResellable)
		}

		if !svc.Holder.Equals(seller) {
			return fmt.Errorf("service %q: %w", name, market.ErrNotHolder)
		}

		holdD, err := keys.Holding(seller, svc.NFTMint)
		if err != nil {
			return err
		}
		hold, err := tx.GetTokenAccount(ctx, holdD.Address)
		if err != nil || hold.Balance < 1 {
			return fmt.Errorf("service %q: %w", name, market.ErrNotHolder)
		}

		m, err := tx.GetMarketplace(ctx)
		if err != nil {
			return err
		}
		royalty := m.RoyaltyOn(newPrice)
		proceeds := newPrice - royalty

		if royalty > 0 {
			if _, err := s.debit(ctx, tx, seller, svc.PaymentMint, royalty); err != nil {
				return fmt.Errorf("service %q royalty: %w", name, err)
			}
			if err := s.depositVault(ctx, tx, m.Address, svc.PaymentMint, royalty); err != nil {
				return err
			}
		}

		hold.Balance--
		if _, err := tx.UpdateTokenAccount(ctx, hold); err != nil {
			return err
		}
		escrowD, err := keys.Escrow(svc.NFTMint)
		if err != nil {
			return err
		}
		escrow, err := tx.GetTokenAccount(ctx, escrowD.Address)
		if err != nil {
			return err
		}
		escrow.Balance++
		if _, err := tx.UpdateTokenAccount(ctx, escrow); err != nil {
			return err
		}

		svc.Price = newPrice
		svc.Listed = true
		if _, err := tx.UpdateService(ctx, svc); err != nil {
			return err
		}

		receipt = Receipt{
			ID:             uuid.NewString(),
			Kind:           KindResale,
			Service:        name,
			ServiceAddress: svc.Address,
			NFTMint:        svc.NFTMint,
			PaymentMint:    svc.PaymentMint,
			Payer:          seller,
			Payee:          seller,
			Price:          newPrice,
			Royalty:        royalty,
			SellerProceeds: proceeds,
			CreatedAt:      time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	metrics.RecordSettlement(KindResale, time.Since(start))
	metrics.AddRoyalty(receipt.PaymentMint.String(), receipt.Royalty)
	s.log.WithField("service", name).
		WithField("seller", seller.String()).
		WithField("new_price", newPrice).
		WithField("royalty", receipt.Royalty).
		Info("service relisted")
	return receipt, nil
}

// VaultBalance reports the accumulated royalties for a payment currency.
func (s *Service) VaultBalance(ctx context.Context, paymentMint solana.PublicKey) (uint64, error) {
	vaultD, err := keys.RoyaltyVault(paymentMint)
	if err != nil {
		return 0, err
	}
	acct, err := s.ledger.GetTokenAccount(ctx, vaultD.Address)
	if err != nil {
		if errors.Is(err, market.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return acct.Balance, nil
}

// debit removes amount from the owner's holding account for mint, guarding
// currency and balance before mutating.
func (s *Service) debit(ctx context.Context, tx storage.Tx, owner, mint solana.PublicKey, amount uint64) (token.Account, error) {
	d, err := keys.Holding(owner, mint)
	if err != nil {
		return token.Account{}, err
	}
	acct, err := tx.GetTokenAccount(ctx, d.Address)
	if err != nil {
		return token.Account{}, market.ErrInsufficientFunds
	}
	if !acct.Mint.Equals(mint) {
		return token.Account{}, market.ErrCurrencyMismatch
	}
	if acct.Balance < amount {
		return token.Account{}, market.ErrInsufficientFunds
	}
	acct.Balance -= amount
	return tx.UpdateTokenAccount(ctx, acct)
}

// credit adds amount to the owner's holding account for mint, creating the
// account when absent.
func (s *Service) credit(ctx context.Context, tx storage.Tx, owner, mint solana.PublicKey, amount uint64) (token.Account, error) {
	d, err := keys.Holding(owner, mint)
	if err != nil {
		return token.Account{}, err
	}
	acct, err := tx.GetTokenAccount(ctx, d.Address)
	if err != nil {
		if !errors.Is(err, market.ErrAccountNotFound) {
			return token.Account{}, err
		}
		return tx.CreateTokenAccount(ctx, token.Account{
			Address: d.Address,
			Mint:    mint,
			Owner:   owner,
			Balance: amount,
			Bump:    d.Bump,
		})
	}
	if !acct.Mint.Equals(mint) {
		return token.Account{}, market.ErrCurrencyMismatch
	}
	acct.Balance += amount
	return tx.UpdateTokenAccount(ctx, acct)
}

// depositVault adds a royalty to the protocol-owned vault for the currency,
// creating the vault on first use. Deposits are append-only and additive.
func (s *Service) depositVault(ctx context.Context, tx storage.Tx, marketplaceAddr, paymentMint solana.PublicKey, amount uint64) error {
	d, err := keys.RoyaltyVault(paymentMint)
	if err != nil {
		return err
	}
	vault, err := tx.GetTokenAccount(ctx, d.Address)
	if err != nil {
		if !errors.Is(err, market.ErrAccountNotFound) {
			return err
		}
		_, err = tx.CreateTokenAccount(ctx, token.Account{
			Address:       d.Address,
			Mint:          paymentMint,
			Owner:         marketplaceAddr,
			Balance:       amount,
			ProtocolOwned: true,
			Bump:          d.Bump,
		})
		return err
	}
	vault.Balance += amount
	_, err = tx.UpdateTokenAccount(ctx, vault)
	return err
}
