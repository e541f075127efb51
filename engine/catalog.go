package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/certeq/equipment-certification-backend/interfaces"
	"github.com/certeq/equipment-certification-backend/store"
)

// EquipmentCatalog owns equipment records keyed by a dense, strictly
// increasing identifier starting at 1. It implements
// interfaces.EquipmentCatalog.
type EquipmentCatalog struct {
	mu       sync.RWMutex
	identity *IdentityRegistry

	nextID    uint64
	equipment map[uint64]interfaces.Equipment

	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewEquipmentCatalog creates a catalog backed by the given identity
// registry.
func NewEquipmentCatalog(identity *IdentityRegistry, st store.Store, log *slog.Logger) *EquipmentCatalog {
	return &EquipmentCatalog{
		identity:  identity,
		nextID:    1,
		equipment: make(map[uint64]interfaces.Equipment),
		store:     st,
		log:       log,
		now:       time.Now,
	}
}

// RegisterEquipment allocates the next sequential id, stores the record and
// returns the id. The caller must be a registered manufacturer.
func (c *EquipmentCatalog) RegisterEquipment(caller interfaces.Principal, kind interfaces.EquipmentKind, docHash interfaces.ContentHash) (uint64, error) {
	if !c.identity.IsManufacturer(caller) {
		return 0, interfaces.ErrUnauthorized
	}
	if err := docHash.Validate(); err != nil {
		return 0, err
	}
	if _, err := interfaces.ParseEquipmentKind(uint8(kind)); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	eq := interfaces.Equipment{
		ID:           c.nextID,
		Kind:         kind,
		Manufacturer: caller,
		DocHash:      docHash,
		RegisteredAt: c.now().UTC(),
	}
	if err := c.store.PutEquipment(eq); err != nil {
		return 0, err
	}
	c.equipment[eq.ID] = eq
	c.nextID++

	c.log.Info("Equipment registered",
		"id", eq.ID,
		"kind", kind.String(),
		"manufacturer", caller.String())
	return eq.ID, nil
}

// EquipmentDetails returns the record for an allocated id.
func (c *EquipmentCatalog) EquipmentDetails(id uint64) (interfaces.Equipment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	eq, exists := c.equipment[id]
	if !exists {
		return interfaces.Equipment{}, interfaces.ErrNotFound
	}
	return eq, nil
}

// ListEquipmentByManufacturer returns all equipment owned by addr in
// registration order.
func (c *EquipmentCatalog) ListEquipmentByManufacturer(addr interfaces.Principal) []interfaces.Equipment {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []interfaces.Equipment
	for id := uint64(1); id < c.nextID; id++ {
		if eq, ok := c.equipment[id]; ok && eq.Manufacturer == addr {
			out = append(out, eq)
		}
	}
	return out
}

// EquipmentCount returns the highest allocated equipment id.
func (c *EquipmentCatalog) EquipmentCount() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextID - 1
}

func (c *EquipmentCatalog) restore(equipment []interfaces.Equipment) {
	for _, eq := range equipment {
		c.equipment[eq.ID] = eq
		if eq.ID >= c.nextID {
			c.nextID = eq.ID + 1
		}
	}
}
