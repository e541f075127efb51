package engine

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/certeq/equipment-certification-backend/interfaces"
	"github.com/certeq/equipment-certification-backend/store"
)

// IdentityRegistry owns the set of recognized manufacturers and CABs, and the
// privileged registrar principal fixed at construction. It implements
// interfaces.IdentityRegistry.
type IdentityRegistry struct {
	mu        sync.RWMutex
	registrar interfaces.Principal

	manufacturers map[interfaces.Principal]bool
	cabs          map[interfaces.Principal]*interfaces.CABInfo
	cabOrder      []interfaces.Principal

	store store.Store
	log   *slog.Logger
}

// NewIdentityRegistry creates a registry with the given fixed registrar.
func NewIdentityRegistry(registrar interfaces.Principal, st store.Store, log *slog.Logger) *IdentityRegistry {
	return &IdentityRegistry{
		registrar:     registrar,
		manufacturers: make(map[interfaces.Principal]bool),
		cabs:          make(map[interfaces.Principal]*interfaces.CABInfo),
		store:         st,
		log:           log,
	}
}

// Registrar returns the fixed registrar principal.
func (r *IdentityRegistry) Registrar() interfaces.Principal {
	return r.registrar
}

// RegisterManufacturer admits addr as a manufacturer. Registrar only.
// Re-registering an existing manufacturer is a no-op success, matching the
// original deployment's set semantics. An address already registered as a
// CAB is rejected to keep the role sets disjoint.
func (r *IdentityRegistry) RegisterManufacturer(caller, addr interfaces.Principal) error {
	if caller != r.registrar {
		return interfaces.ErrUnauthorized
	}
	if addr.IsZero() {
		return errors.New("zero manufacturer address")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.manufacturers[addr] {
		return nil
	}
	if _, isCAB := r.cabs[addr]; isCAB {
		return interfaces.ErrDuplicateIdentity
	}
	if err := r.store.PutManufacturer(addr); err != nil {
		return err
	}
	r.manufacturers[addr] = true

	r.log.Info("Manufacturer registered", "addr", addr.String())
	return nil
}

// RegisterCAB admits addr as a CAB with accredited = false. Registrar only.
func (r *IdentityRegistry) RegisterCAB(caller interfaces.Principal, name string, addr interfaces.Principal) error {
	if caller != r.registrar {
		return interfaces.ErrUnauthorized
	}
	if name == "" {
		return errors.New("empty CAB name")
	}
	if addr.IsZero() {
		return errors.New("zero CAB address")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.cabs[addr]; exists {
		return interfaces.ErrDuplicateIdentity
	}
	if r.manufacturers[addr] {
		return interfaces.ErrDuplicateIdentity
	}

	info := &interfaces.CABInfo{Name: name, Addr: addr}
	if err := r.store.PutCAB(*info); err != nil {
		return err
	}
	r.cabs[addr] = info
	r.cabOrder = append(r.cabOrder, addr)

	r.log.Info("CAB registered", "addr", addr.String(), "name", name)
	return nil
}

// UpdateCABDetails sets the caller's own details pointer. Only the CAB
// itself may update its record.
func (r *IdentityRegistry) UpdateCABDetails(caller interfaces.Principal, details interfaces.ContentHash) error {
	if err := details.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	info, exists := r.cabs[caller]
	if !exists {
		return interfaces.ErrNotRegistered
	}

	updated := *info
	updated.Details = details
	if err := r.store.PutCAB(updated); err != nil {
		return err
	}
	*info = updated

	r.log.Info("CAB details updated", "addr", caller.String())
	return nil
}

// AccreditCAB sets the accredited flag of a known CAB. Registrar only.
func (r *IdentityRegistry) AccreditCAB(caller, addr interfaces.Principal, accredited bool) error {
	if caller != r.registrar {
		return interfaces.ErrUnauthorized
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	info, exists := r.cabs[addr]
	if !exists {
		return interfaces.ErrNotRegistered
	}

	updated := *info
	updated.Accredited = accredited
	if err := r.store.PutCAB(updated); err != nil {
		return err
	}
	*info = updated

	r.log.Info("CAB accreditation updated", "addr", addr.String(), "accredited", accredited)
	return nil
}

// CABDetails returns the record of a known CAB.
func (r *IdentityRegistry) CABDetails(addr interfaces.Principal) (interfaces.CABInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.cabs[addr]
	if !exists {
		return interfaces.CABInfo{}, interfaces.ErrNotFound
	}
	return *info, nil
}

// ListCABs returns all registered CABs in registration order.
func (r *IdentityRegistry) ListCABs() []interfaces.CABInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]interfaces.CABInfo, 0, len(r.cabOrder))
	for _, addr := range r.cabOrder {
		out = append(out, *r.cabs[addr])
	}
	return out
}

// IsManufacturer reports whether addr is a registered manufacturer.
func (r *IdentityRegistry) IsManufacturer(addr interfaces.Principal) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manufacturers[addr]
}

// IsCAB reports whether addr is a registered CAB, accredited or not.
func (r *IdentityRegistry) IsCAB(addr interfaces.Principal) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.cabs[addr]
	return exists
}

// IsAccreditedCAB reports whether addr is a CAB with accredited = true.
func (r *IdentityRegistry) IsAccreditedCAB(addr interfaces.Principal) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.cabs[addr]
	return exists && info.Accredited
}

// restore loads persisted identities without authorization checks. Called
// only during engine construction, before the registry is shared.
func (r *IdentityRegistry) restore(manufacturers []interfaces.Principal, cabs []interfaces.CABInfo) {
	for _, m := range manufacturers {
		r.manufacturers[m] = true
	}
	for i := range cabs {
		info := cabs[i]
		r.cabs[info.Addr] = &info
		r.cabOrder = append(r.cabOrder, info.Addr)
	}
}
