package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/certeq/equipment-certification-backend/interfaces"
	"github.com/certeq/equipment-certification-backend/store"
)

// Config carries the fixed role principals and shared dependencies for an
// engine instance. Exactly one principal is registrar and exactly one is
// certifier; the two authorities are disjoint.
type Config struct {
	Registrar interfaces.Principal
	Certifier interfaces.Principal
	Store     store.Store
	Log       *slog.Logger
}

// Engine aggregates the five workflow components over one shared state.
// Control flow is strictly pipelined: identity, equipment, auction,
// accreditation, certification, correlated by the equipment id. Downstream
// components read upstream state but never mutate it.
type Engine struct {
	Identity      *IdentityRegistry
	Catalog       *EquipmentCatalog
	Settlement    *SettlementLedger
	Market        *AuctionMarket
	Accreditation *AccreditationLedger
	Certification *CertificationLedger
}

// New wires an engine from the given configuration and restores any state
// the store has persisted.
func New(cfg Config) (*Engine, error) {
	if cfg.Registrar.IsZero() {
		return nil, errors.New("registrar principal is required")
	}
	if cfg.Certifier.IsZero() {
		return nil, errors.New("certifier principal is required")
	}
	if cfg.Registrar == cfg.Certifier {
		return nil, errors.New("registrar and certifier must be distinct principals")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Store == nil {
		cfg.Store = store.NewNopStore()
	}

	identity := NewIdentityRegistry(cfg.Registrar, cfg.Store, cfg.Log)
	catalog := NewEquipmentCatalog(identity, cfg.Store, cfg.Log)
	settlement := NewSettlementLedger(cfg.Store, cfg.Log)
	market := NewAuctionMarket(identity, catalog, settlement, cfg.Store, cfg.Log)
	accreditation := NewAccreditationLedger(cfg.Registrar, catalog, market, cfg.Store, cfg.Log)
	certification := NewCertificationLedger(cfg.Certifier, catalog, accreditation, cfg.Store, cfg.Log)

	eng := &Engine{
		Identity:      identity,
		Catalog:       catalog,
		Settlement:    settlement,
		Market:        market,
		Accreditation: accreditation,
		Certification: certification,
	}

	snapshot, err := cfg.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load persisted state: %w", err)
	}
	if snapshot != nil {
		identity.restore(snapshot.Manufacturers, snapshot.CABs)
		catalog.restore(snapshot.Equipment)
		market.restore(snapshot.Auctions)
		accreditation.restore(snapshot.TestResults)
		certification.restore(snapshot.Certifications)
		settlement.restore(snapshot.Balances)
		cfg.Log.Info("Engine state restored",
			"equipment", len(snapshot.Equipment),
			"auctions", len(snapshot.Auctions))
	}

	return eng, nil
}
