// Package httpapi exposes the protocol operation surface over REST. It is
// the boundary external collaborators use to submit instructions and read
// back resulting state; all addresses it reports are re-derivable by the
// caller.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	app "github.com/parallax-protocol/service-marketplace/internal/app"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/listing"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/market"
	"github.com/parallax-protocol/service-marketplace/internal/app/domain/token"
	"github.com/parallax-protocol/service-marketplace/internal/app/keys"
	"github.com/parallax-protocol/service-marketplace/internal/app/services/settlement"
)

// handler bundles HTTP endpoints for the protocol services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/marketplace", h.marketplace)
	mux.HandleFunc("/marketplace/royalty", h.royalty)
	mux.HandleFunc("/mints", h.mints)
	mux.HandleFunc("/mints/", h.mintResource)
	mux.HandleFunc("/services", h.services)
	mux.HandleFunc("/services/", h.serviceResources)
	mux.HandleFunc("/vaults/", h.vault)
	return mux
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) marketplace(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Authority string `json:"authority"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		authority, err := parseKey(payload.Authority, "authority")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		m, err := h.app.Marketplace.Initialize(r.Context(), authority)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, marketplaceView(m))

	case http.MethodGet:
		m, err := h.app.Marketplace.Get(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, marketplaceView(m))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) royalty(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Authority         string `json:"authority"`
		RoyaltyPercentage uint8  `json:"royalty_percentage"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	authority, err := parseKey(payload.Authority, "authority")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := h.app.Marketplace.SetRoyalty(r.Context(), authority, payload.RoyaltyPercentage)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, marketplaceView(m))
}

func (h *handler) mints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Vendor string `json:"vendor"`
		Name   string `json:"name"`
		URI    string `json:"uri"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	vendor, err := parseKey(payload.Vendor, "vendor")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	minted, err := h.app.Minting.Mint(r.Context(), vendor, payload.Name, payload.URI)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, mintView(minted))
}

func (h *handler) mintResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/mints/"), "/")
	if name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("mint name is required"))
		return
	}
	minted, err := h.app.Minting.Get(r.Context(), name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	md, err := h.app.Minting.Metadata(r.Context(), name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	view := mintView(minted)
	view.Metadata = &metadataView{
		Name:                 md.Name,
		Symbol:               md.Symbol,
		URI:                  md.URI,
		SellerFeeBasisPoints: md.SellerFeeBasisPoints,
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) services(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Vendor      string `json:"vendor"`
			Name        string `json:"name"`
			Description string `json:"description"`
			Price       uint64 `json:"price"`
			PaymentMint string `json:"payment_mint"`
			IsSoulbound bool   `json:"is_soulbound"`
			NFTMint     string `json:"nft_mint,omitempty"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		vendor, err := parseKey(payload.Vendor, "vendor")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		paymentMint, err := parseKey(payload.PaymentMint, "payment_mint")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := verifyMintAddress(payload.NFTMint, payload.Name); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		svc, err := h.app.Listings.List(r.Context(), vendor, payload.Name, payload.Description, payload.Price, paymentMint, payload.IsSoulbound)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, serviceView(svc))

	case http.MethodGet:
		all, err := h.app.Listings.ListAll(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		views := make([]serviceViewT, 0, len(all))
		for _, svc := range all {
			views = append(views, serviceView(svc))
		}
		writeJSON(w, http.StatusOK, views)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) serviceResources(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/services/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("service name is required"))
		return
	}
	name := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		svc, err := h.app.Listings.Get(r.Context(), name)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, serviceView(svc))
		return
	}

	switch parts[1] {
	case "buy":
		h.buy(w, r, name)
	case "resell":
		h.resell(w, r, name)
	case "addresses":
		h.addresses(w, r, name)
	case "escrow":
		h.escrow(w, r, name)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) buy(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Buyer          string `json:"buyer"`
		ServiceAddress string `json:"service_address,omitempty"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	buyer, err := parseKey(payload.Buyer, "buyer")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := verifyServiceAddress(payload.ServiceAddress, name); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	receipt, err := h.app.Settlement.Buy(r.Context(), buyer, name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, receiptView(receipt))
}

func (h *handler) resell(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Seller         string `json:"seller"`
		NewPrice       uint64 `json:"new_price"`
		ServiceAddress string `json:"service_address,omitempty"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	seller, err := parseKey(payload.Seller, "seller")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := verifyServiceAddress(payload.ServiceAddress, name); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	receipt, err := h.app.Settlement.Resell(r.Context(), seller, name, payload.NewPrice)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, receiptView(receipt))
}

func (h *handler) addresses(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	view := addressesView{Name: name}

	if d, err := keys.Marketplace(); err == nil {
		view.Marketplace = d.Address.String()
	}
	mintD, err := keys.ServiceMint(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view.NFTMint = derivedView{Address: mintD.Address.String(), Bump: mintD.Bump}

	svcD, err := keys.Service(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view.Service = derivedView{Address: svcD.Address.String(), Bump: svcD.Bump}

	escrowD, err := keys.Escrow(mintD.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view.Escrow = derivedView{Address: escrowD.Address.String(), Bump: escrowD.Bump}

	// The vault is addressed per payment currency, known once listed.
	if svc, err := h.app.Listings.Get(r.Context(), name); err == nil {
		if vaultD, err := keys.RoyaltyVault(svc.PaymentMint); err == nil {
			view.RoyaltyVault = &derivedView{Address: vaultD.Address.String(), Bump: vaultD.Bump}
		}
	}

	if owner := strings.TrimSpace(r.URL.Query().Get("owner")); owner != "" {
		ownerKey, err := parseKey(owner, "owner")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		holdD, err := keys.Holding(ownerKey, mintD.Address)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view.Holding = &derivedView{Address: holdD.Address.String(), Bump: holdD.Bump}
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *handler) escrow(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	balance, err := h.app.Listings.EscrowBalance(r.Context(), name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (h *handler) vault(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/vaults/"), "/")
	mint, err := parseKey(raw, "payment mint")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	balance, err := h.app.Settlement.VaultBalance(r.Context(), mint)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	vaultD, err := keys.RoyaltyVault(mint)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":      vaultD.Address.String(),
		"payment_mint": mint.String(),
		"balance":      balance,
	})
}

// verifyMintAddress rejects caller-supplied mint addresses that diverge from
// derivation.
func verifyMintAddress(supplied, name string) error {
	if strings.TrimSpace(supplied) == "" {
		return nil
	}
	given, err := solana.PublicKeyFromBase58(supplied)
	if err != nil {
		return fmt.Errorf("nft_mint: %w", market.ErrAddressMismatch)
	}
	d, err := keys.ServiceMint(name)
	if err != nil {
		return err
	}
	if !d.Address.Equals(given) {
		return fmt.Errorf("nft_mint: %w", market.ErrAddressMismatch)
	}
	return nil
}

// verifyServiceAddress rejects caller-supplied service addresses that
// diverge from derivation.
func verifyServiceAddress(supplied, name string) error {
	if strings.TrimSpace(supplied) == "" {
		return nil
	}
	given, err := solana.PublicKeyFromBase58(supplied)
	if err != nil {
		return fmt.Errorf("service_address: %w", market.ErrAddressMismatch)
	}
	d, err := keys.Service(name)
	if err != nil {
		return err
	}
	if !d.Address.Equals(given) {
		return fmt.Errorf("service_address: %w", market.ErrAddressMismatch)
	}
	return nil
}

func parseKey(raw, field string) (solana.PublicKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", field)
	}
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s is not a valid address: %w", field, err)
	}
	return key, nil
}

// statusFor maps protocol errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrNotInitialized),
		errors.Is(err, market.ErrServiceNotFound),
		errors.Is(err, market.ErrMintNotFound),
		errors.Is(err, market.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrAlreadyInitialized),
		errors.Is(err, market.ErrDuplicateName),
		errors.Is(err, market.ErrDuplicateListing),
		errors.Is(err, market.ErrServiceNotListed):
		return http.StatusConflict
	case errors.Is(err, market.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, market.ErrNotOwner),
		errors.Is(err, market.ErrNotHolder),
		errors.Is(err, market.ErrNotAuthority):
		return http.StatusForbidden
	case errors.Is(err, market.ErrSoulboundNotResellable),
		errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrInvalidRoyalty),
		errors.Is(err, market.ErrCurrencyMismatch),
		errors.Is(err, market.ErrAddressMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// Views ------------------------------------------------------------------

type marketplaceViewT struct {
	Address           string    `json:"address"`
	Authority         string    `json:"authority"`
	TotalServices     uint64    `json:"total_services"`
	RoyaltyPercentage uint8     `json:"royalty_percentage"`
	Bump              uint8     `json:"bump"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func marketplaceView(m market.Marketplace) marketplaceViewT {
	return marketplaceViewT{
		Address:           m.Address.String(),
		Authority:         m.Authority.String(),
		TotalServices:     m.TotalServices,
		RoyaltyPercentage: m.RoyaltyPercentage,
		Bump:              m.Bump,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

type serviceViewT struct {
	Address     string    `json:"address"`
	Vendor      string    `json:"vendor"`
	Holder      string    `json:"holder"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       uint64    `json:"price"`
	PaymentMint string    `json:"payment_mint"`
	NFTMint     string    `json:"nft_mint"`
	IsSoulbound bool      `json:"is_soulbound"`
	Listed      bool      `json:"listed"`
	Bump        uint8     `json:"bump"`
	EscrowBump  uint8     `json:"escrow_bump"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func serviceView(svc listing.Service) serviceViewT {
	return serviceViewT{
		Address:     svc.Address.String(),
		Vendor:      svc.Vendor.String(),
		Holder:      svc.Holder.String(),
		Name:        svc.Name,
		Description: svc.Description,
		Price:       svc.Price,
		PaymentMint: svc.PaymentMint.String(),
		NFTMint:     svc.NFTMint.String(),
		IsSoulbound: svc.IsSoulbound,
		Listed:      svc.Listed,
		Bump:        svc.Bump,
		EscrowBump:  svc.EscrowBump,
		CreatedAt:   svc.CreatedAt,
		UpdatedAt:   svc.UpdatedAt,
	}
}

type metadataView struct {
	Name                 string `json:"name"`
	Symbol               string `json:"symbol"`
	URI                  string `json:"uri"`
	SellerFeeBasisPoints uint16 `json:"seller_fee_basis_points"`
}

type mintViewT struct {
	Address   string        `json:"address"`
	Name      string        `json:"name"`
	Authority string        `json:"authority"`
	Supply    uint64        `json:"supply"`
	Decimals  uint8         `json:"decimals"`
	Bump      uint8         `json:"bump"`
	Metadata  *metadataView `json:"metadata,omitempty"`
}

func mintView(m token.Mint) mintViewT {
	return mintViewT{
		Address:   m.Address.String(),
		Name:      m.Name,
		Authority: m.Authority.String(),
		Supply:    m.Supply,
		Decimals:  m.Decimals,
		Bump:      m.Bump,
	}
}

type receiptViewT struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Service        string    `json:"service"`
	ServiceAddress string    `json:"service_address"`
	NFTMint        string    `json:"nft_mint"`
	PaymentMint    string    `json:"payment_mint"`
	Payer          string    `json:"payer"`
	Payee          string    `json:"payee"`
	Price          uint64    `json:"price"`
	Royalty        uint64    `json:"royalty"`
	SellerProceeds uint64    `json:"seller_proceeds"`
	CreatedAt      time.Time `json:"created_at"`
}

func receiptView(r settlement.Receipt) receiptViewT {
	return receiptViewT{
		ID:             r.ID,
		Kind:           r.Kind,
		Service:        r.Service,
		ServiceAddress: r.ServiceAddress.String(),
		NFTMint:        r.NFTMint.String(),
		PaymentMint:    r.PaymentMint.String(),
		Payer:          r.Payer.String(),
		Payee:          r.Payee.String(),
		Price:          r.Price,
		Royalty:        r.Royalty,
		SellerProceeds: r.SellerProceeds,
		CreatedAt:      r.CreatedAt,
	}
}

type derivedView struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

type addressesView struct {
	Name         string       `json:"name"`
	Marketplace  string       `json:"marketplace"`
	NFTMint      derivedView  `json:"nft_mint"`
	Service      derivedView  `json:"service"`
	Escrow       derivedView  `json:"escrow"`
	RoyaltyVault *derivedView `json:"royalty_vault,omitempty"`
	Holding      *derivedView `json:"holding,omitempty"`
}
