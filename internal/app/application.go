package app

import (
	"context"

	"github.com/parallax-protocol/service-marketplace/internal/app/services/listings"
	marketplacesvc "github.com/parallax-protocol/service-marketplace/internal/app/services/marketplace"
	"github.com/parallax-protocol/service-marketplace/internal/app/services/minting"
	"github.com/parallax-protocol/service-marketplace/internal/app/services/settlement"
	"github.com/parallax-protocol/service-marketplace/internal/app/storage"
	"github.com/parallax-protocol/service-marketplace/internal/app/storage/memory"
	"github.com/parallax-protocol/service-marketplace/internal/app/system"
	"github.com/parallax-protocol/service-marketplace/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil ledger defaults to the
// in-memory implementation.
type Stores struct {
	Ledger storage.Ledger
}

// Application ties the protocol services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Ledger      storage.Ledger
	Marketplace *marketplacesvc.Service
	Minting     *minting.Service
	Listings    *listings.Service
	Settlement  *settlement.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if stores.Ledger == nil {
		stores.Ledger = memory.New()
	}

	manager := system.NewManager()
	for _, name := range []string{"marketplace", "minting", "listings", "settlement"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, err
		}
	}

	return &Application{
		manager:     manager,
		log:         log,
		Ledger:      stores.Ledger,
		Marketplace: marketplacesvc.New(stores.Ledger, log),
		Minting:     minting.New(stores.Ledger, log),
		Listings:    listings.New(stores.Ledger, log),
		Settlement:  settlement.New(stores.Ledger, log),
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
