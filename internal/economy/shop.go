package economy

import (
	"fmt"

	"github.com/metal-pod/backend/internal/achievement"
	"github.com/metal-pod/backend/internal/catalog"
	"github.com/metal-pod/backend/internal/event"
)

// Shop sells catalog items through a Wallet.
type Shop struct {
	store   Store
	wallet  *Wallet
	catalog *catalog.Catalog
	bus     *event.Bus
}

// NewShop creates a Shop.
func NewShop(store Store, wallet *Wallet, cat *catalog.Catalog, bus *event.Bus) *Shop {
	return &Shop{store: store, wallet: wallet, catalog: cat, bus: bus}
}

// BuyUpgrade purchases the next level of an upgrade and returns the new
// level. The level is written under the canonical id.
func (s *Shop) BuyUpgrade(id string) (int, error) {
	d := s.store.Data()
	if d == nil {
		return 0, ErrNoSave
	}
	u, ok := s.catalog.Upgrade(id)
	if !ok {
		return 0, fmt.Errorf("%w: upgrade %s", ErrUnknownItem, id)
	}
	next := achievement.UpgradeLevelOf(d, u.ID) + 1
	if next > u.MaxLevel() {
		return 0, fmt.Errorf("%w: %s", ErrMaxLevel, u.ID)
	}
	cost, _ := s.catalog.LevelCost(u.ID, next)
	if err := s.wallet.Spend(cost); err != nil {
		return 0, err
	}
	d.UpgradeLevels[u.ID] = next
	s.store.MarkDirty()
	s.bus.Publish(event.Event{Type: event.UpgradePurchased, ItemID: u.ID, Level: next})
	return next, nil
}

// BuyCosmetic purchases a cosmetic. The purchase is published once the
// cosmetic is in the save, so ownership-based achievements see it.
func (s *Shop) BuyCosmetic(id string) error {
	d := s.store.Data()
	if d == nil {
		return ErrNoSave
	}
	cm, ok := s.catalog.Cosmetic(id)
	if !ok {
		return fmt.Errorf("%w: cosmetic %s", ErrUnknownItem, id)
	}
	if d.OwnsCosmetic(cm.ID) {
		return fmt.Errorf("%w: %s", ErrAlreadyOwned, cm.ID)
	}
	if err := s.wallet.Spend(cm.Price); err != nil {
		return err
	}
	d.OwnedCosmetics = append(d.OwnedCosmetics, cm.ID)
	s.store.MarkDirty()
	s.bus.Publish(event.Event{Type: event.CosmeticPurchased, ItemID: cm.ID})
	return nil
}

// Equip makes an owned cosmetic the active one.
func (s *Shop) Equip(id string) error {
	d := s.store.Data()
	if d == nil {
		return ErrNoSave
	}
	if !d.OwnsCosmetic(id) {
		return fmt.Errorf("%w: %s", ErrNotOwned, id)
	}
	d.EquippedCosmetic = id
	s.store.MarkDirty()
	s.bus.Publish(event.Event{Type: event.CosmeticEquipped, ItemID: id})
	return nil
}
