package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/certeq/equipment-certification-backend/interfaces"
	"github.com/certeq/equipment-certification-backend/store"
)

// AuctionMarket runs one reverse auction per equipment item to select the
// testing CAB. The lowest bid wins; ties break by earliest submission.
// Auction ids are global and sequential from 1, bid ids are per-auction
// sequential from 1. It implements interfaces.AuctionMarket.
type AuctionMarket struct {
	mu       sync.RWMutex
	identity *IdentityRegistry
	catalog  *EquipmentCatalog
	bank     *SettlementLedger

	nextID      uint64
	auctions    map[uint64]*interfaces.Auction
	byEquipment map[uint64]uint64 // equipment id -> auction id

	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewAuctionMarket creates a market over the given catalog, identity
// registry and settlement ledger.
func NewAuctionMarket(identity *IdentityRegistry, catalog *EquipmentCatalog, bank *SettlementLedger, st store.Store, log *slog.Logger) *AuctionMarket {
	return &AuctionMarket{
		identity:    identity,
		catalog:     catalog,
		bank:        bank,
		nextID:      1,
		auctions:    make(map[uint64]*interfaces.Auction),
		byEquipment: make(map[uint64]uint64),
		store:       st,
		log:         log,
		now:         time.Now,
	}
}

// CreateAuction opens an auction for the caller's equipment and returns the
// new auction id. Only the manufacturer that owns the equipment record may
// open its auction, and at most one auction may ever exist per equipment id.
func (m *AuctionMarket) CreateAuction(caller interfaces.Principal, equipmentID uint64) (uint64, error) {
	eq, err := m.catalog.EquipmentDetails(equipmentID)
	if err != nil {
		return 0, err
	}
	if eq.Manufacturer != caller {
		return 0, interfaces.ErrUnauthorized
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEquipment[equipmentID]; exists {
		return 0, interfaces.ErrAlreadyExists
	}

	auction := &interfaces.Auction{
		ID:           m.nextID,
		EquipmentID:  equipmentID,
		Manufacturer: caller,
		Active:       true,
	}
	if err := m.store.PutAuction(*auction); err != nil {
		return 0, err
	}
	m.auctions[auction.ID] = auction
	m.byEquipment[equipmentID] = auction.ID
	m.nextID++

	m.log.Info("Auction created",
		"auction", auction.ID,
		"equipment", equipmentID,
		"manufacturer", caller.String())
	return auction.ID, nil
}

// SubmitBid appends a bid from an accredited CAB to an open auction and
// returns the per-auction bid id. The bid does not move money; settlement
// happens in SelectBestBid.
func (m *AuctionMarket) SubmitBid(caller interfaces.Principal, auctionID uint64, amount interfaces.Currency) (uint64, error) {
	if !m.identity.IsAccreditedCAB(caller) {
		return 0, interfaces.ErrUnauthorized
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	auction, exists := m.auctions[auctionID]
	if !exists {
		return 0, interfaces.ErrNotFound
	}
	if !auction.Active {
		return 0, interfaces.ErrAuctionClosed
	}

	bid := interfaces.Bid{
		ID:          uint64(len(auction.Bids)) + 1,
		CAB:         caller,
		Amount:      amount,
		SubmittedAt: m.now().UTC(),
	}
	if err := m.store.PutBid(auctionID, bid); err != nil {
		return 0, err
	}
	auction.Bids = append(auction.Bids, bid)

	m.log.Info("Bid submitted",
		"auction", auctionID,
		"bid", bid.ID,
		"cab", caller.String(),
		"amount", uint64(amount))
	return bid.ID, nil
}

// SelectBestBid closes the auction, records the best bid and credits the
// attached payment to the winning CAB. Only the manufacturer that created
// the auction may settle it, and the payment must equal the best bid's
// amount exactly. The credit and the auction-closing transition commit
// together; on any failure the auction remains open.
func (m *AuctionMarket) SelectBestBid(caller interfaces.Principal, auctionID uint64, payment interfaces.Currency) (interfaces.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	auction, exists := m.auctions[auctionID]
	if !exists {
		return interfaces.Bid{}, interfaces.ErrNotFound
	}
	if auction.Manufacturer != caller {
		return interfaces.Bid{}, interfaces.ErrUnauthorized
	}
	if !auction.Active {
		return interfaces.Bid{}, interfaces.ErrAuctionClosed
	}
	if len(auction.Bids) == 0 {
		return interfaces.Bid{}, interfaces.ErrNoBids
	}

	best := bestBid(auction.Bids)
	if payment != best.Amount {
		return interfaces.Bid{}, interfaces.ErrPaymentMismatch
	}

	closed := *auction
	closed.Active = false
	closed.BestBidID = best.ID
	if err := m.store.PutAuction(closed); err != nil {
		return interfaces.Bid{}, err
	}
	if err := m.bank.Credit(best.CAB, best.Amount); err != nil {
		// Reopen the persisted record so stored and in-memory state agree
		// and a retry can settle again.
		if rbErr := m.store.PutAuction(*auction); rbErr != nil {
			m.log.Error("Failed to reopen auction after credit failure",
				"auction", auctionID, "err", rbErr)
		}
		return interfaces.Bid{}, err
	}
	auction.Active = false
	auction.BestBidID = best.ID

	m.log.Info("Auction settled",
		"auction", auctionID,
		"equipment", auction.EquipmentID,
		"winner", best.CAB.String(),
		"amount", uint64(best.Amount))
	return best, nil
}

// bestBid returns the lowest bid; ties break by earliest submission, which
// is slice order since bids are append-only.
func bestBid(bids []interfaces.Bid) interfaces.Bid {
	best := bids[0]
	for _, b := range bids[1:] {
		if b.Amount < best.Amount {
			best = b
		}
	}
	return best
}

// AuctionDetails returns a copy of the auction record.
func (m *AuctionMarket) AuctionDetails(auctionID uint64) (interfaces.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	auction, exists := m.auctions[auctionID]
	if !exists {
		return interfaces.Auction{}, interfaces.ErrNotFound
	}
	return copyAuction(auction), nil
}

// BidDetails returns one bid of an auction.
func (m *AuctionMarket) BidDetails(auctionID, bidID uint64) (interfaces.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	auction, exists := m.auctions[auctionID]
	if !exists {
		return interfaces.Bid{}, interfaces.ErrNotFound
	}
	if bidID == 0 || bidID > uint64(len(auction.Bids)) {
		return interfaces.Bid{}, interfaces.ErrNotFound
	}
	return auction.Bids[bidID-1], nil
}

// WinningCAB returns the CAB selected for an equipment item. Fails with
// ErrNoWinner while the auction is still open and ErrNotFound if no auction
// was ever created for the equipment.
func (m *AuctionMarket) WinningCAB(equipmentID uint64) (interfaces.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	auctionID, exists := m.byEquipment[equipmentID]
	if !exists {
		return interfaces.Principal{}, interfaces.ErrNotFound
	}
	auction := m.auctions[auctionID]
	if auction.Active || auction.BestBidID == 0 {
		return interfaces.Principal{}, interfaces.ErrNoWinner
	}
	return auction.Bids[auction.BestBidID-1].CAB, nil
}

// ListOpenAuctions returns all auctions still accepting bids, in creation
// order.
func (m *AuctionMarket) ListOpenAuctions() []interfaces.Auction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []interfaces.Auction
	for id := uint64(1); id < m.nextID; id++ {
		if auction, ok := m.auctions[id]; ok && auction.Active {
			out = append(out, copyAuction(auction))
		}
	}
	return out
}

// AuctionCount returns the highest allocated auction id.
func (m *AuctionMarket) AuctionCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextID - 1
}

func copyAuction(a *interfaces.Auction) interfaces.Auction {
	out := *a
	out.Bids = make([]interfaces.Bid, len(a.Bids))
	copy(out.Bids, a.Bids)
	return out
}

func (m *AuctionMarket) restore(auctions []interfaces.Auction) {
	for i := range auctions {
		a := auctions[i]
		m.auctions[a.ID] = &a
		m.byEquipment[a.EquipmentID] = a.ID
		if a.ID >= m.nextID {
			m.nextID = a.ID + 1
		}
	}
}
