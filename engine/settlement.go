package engine

import (
	"log/slog"
	"sync"

	"github.com/certeq/equipment-certification-backend/interfaces"
	"github.com/certeq/equipment-certification-backend/store"
)

// SettlementLedger tracks balances credited by auction settlement. It
// implements interfaces.SettlementLedger.
type SettlementLedger struct {
	mu       sync.RWMutex
	balances map[interfaces.Principal]interfaces.Currency

	store store.Store
	log   *slog.Logger
}

// NewSettlementLedger creates an empty settlement ledger.
func NewSettlementLedger(st store.Store, log *slog.Logger) *SettlementLedger {
	return &SettlementLedger{
		balances: make(map[interfaces.Principal]interfaces.Currency),
		store:    st,
		log:      log,
	}
}

// Credit adds amount to the principal's balance. The new balance persists
// before it commits; on error the in-memory balance is unchanged and the
// caller's operation aborts.
func (l *SettlementLedger) Credit(addr interfaces.Principal, amount interfaces.Currency) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.balances[addr] + amount
	if err := l.store.PutBalance(addr, next); err != nil {
		return err
	}
	l.balances[addr] = next

	l.log.Info("Balance credited", "addr", addr.String(), "amount", uint64(amount))
	return nil
}

// BalanceOf returns the principal's current balance.
func (l *SettlementLedger) BalanceOf(addr interfaces.Principal) interfaces.Currency {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr]
}

func (l *SettlementLedger) restore(balances map[interfaces.Principal]interfaces.Currency) {
	for addr, amount := range balances {
		l.balances[addr] = amount
	}
}
