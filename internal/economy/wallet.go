// Package economy moves bolts in and out of the save and sells upgrades and
// cosmetics.
package economy

import (
	"errors"
	"fmt"

	"github.com/metal-pod/backend/internal/event"
	"github.com/metal-pod/backend/internal/save"
)

var (
	// ErrNoSave is returned when no save document is loaded.
	ErrNoSave = errors.New("no save loaded")
	// ErrInsufficientFunds is returned when a purchase costs more than the balance.
	ErrInsufficientFunds = errors.New("insufficient bolts")
	// ErrUnknownItem is returned for ids missing from the catalog.
	ErrUnknownItem = errors.New("unknown item")
	// ErrMaxLevel is returned when an upgrade is already at its max level.
	ErrMaxLevel = errors.New("upgrade already at max level")
	// ErrAlreadyOwned is returned when buying a cosmetic twice.
	ErrAlreadyOwned = errors.New("cosmetic already owned")
	// ErrNotOwned is returned when equipping a cosmetic that was not bought.
	ErrNotOwned = errors.New("cosmetic not owned")
)

// Store is the part of the save manager the economy needs.
type Store interface {
	Data() *save.Data
	MarkDirty()
}

// Wallet is the currency service. It satisfies achievement.CurrencyService.
type Wallet struct {
	store Store
	bus   *event.Bus
}

// NewWallet creates a Wallet over store. bus may be nil.
func NewWallet(store Store, bus *event.Bus) *Wallet {
	return &Wallet{store: store, bus: bus}
}

// Balance returns the current bolt balance, or 0 without a save.
func (w *Wallet) Balance() int {
	d := w.store.Data()
	if d == nil {
		return 0
	}
	return d.Currency
}

// AddCurrency credits amount bolts and announces currency-earned followed by
// currency-changed. Non-positive amounts and a missing save are ignored.
func (w *Wallet) AddCurrency(amount int) {
	d := w.store.Data()
	if d == nil || amount <= 0 {
		return
	}
	d.Currency += amount
	w.store.MarkDirty()
	w.bus.Publish(event.Event{Type: event.CurrencyEarned, Amount: amount})
	w.bus.Publish(event.Event{Type: event.CurrencyChanged, Total: d.Currency})
}

// Spend debits amount bolts.
func (w *Wallet) Spend(amount int) error {
	d := w.store.Data()
	if d == nil {
		return ErrNoSave
	}
	if amount < 0 {
		return fmt.Errorf("negative spend %d", amount)
	}
	if d.Currency < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, d.Currency, amount)
	}
	d.Currency -= amount
	w.store.MarkDirty()
	w.bus.Publish(event.Event{Type: event.CurrencyChanged, Total: d.Currency})
	return nil
}
