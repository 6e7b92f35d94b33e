// Package event carries gameplay and achievement notifications between the
// components that produce them and the ones that react to them. A Bus is
// created at composition time and passed by reference; there is no global
// instance.
package event

import (
	"sync"
	"time"
)

// Type classifies a notification.
type Type int

const (
	CourseCompleted     Type = iota + 1 // CourseID, Time, Medal
	CurrencyEarned                      // Amount
	CurrencyChanged                     // Total
	UpgradePurchased                    // ItemID, Level
	CosmeticEquipped                    // ItemID
	CosmeticPurchased                   // ItemID
	CourseUnlocked                      // CourseID
	PlayerDestroyed                     // no payload
	AchievementUnlocked                 // AchievementID, Title, Reward
)

var typeNames = map[Type]string{
	CourseCompleted:     "course_completed",
	CurrencyEarned:      "currency_earned",
	CurrencyChanged:     "currency_changed",
	UpgradePurchased:    "upgrade_purchased",
	CosmeticEquipped:    "cosmetic_equipped",
	CosmeticPurchased:   "cosmetic_purchased",
	CourseUnlocked:      "course_unlocked",
	PlayerDestroyed:     "player_destroyed",
	AchievementUnlocked: "achievement_unlocked",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// Event is a single notification. Only the fields relevant to Type are set.
type Event struct {
	Type Type

	CourseID string
	Time     float64 // course time in seconds
	Medal    int     // 0-3

	Amount int // currency earned
	Total  int // currency balance after the change

	ItemID string // upgrade or cosmetic id
	Level  int

	AchievementID string
	Title         string
	Reward        int

	At time.Time
}

// Handler receives published events.
type Handler func(Event)

// Bus is a synchronous publisher. Publish calls every handler subscribed to
// the event's type, in subscription order, on the caller's goroutine.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Type][]subscription
}

type subscription struct {
	id int
	fn Handler
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]subscription)}
}

// Subscribe registers fn for the given types and returns a function that
// removes the registration.
func (b *Bus) Subscribe(fn Handler, types ...Type) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], subscription{id: id, fn: fn})
	}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, t := range types {
			subs := b.handlers[t]
			for i, s := range subs {
				if s.id == id {
					b.handlers[t] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		}
	}
}

// Publish delivers ev to every handler subscribed to ev.Type. A zero At is
// stamped with the current time.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	subs := b.handlers[ev.Type]
	snapshot := make([]subscription, len(subs))
	copy(snapshot, subs)
	b.mu.RUnlock()

	for _, s := range snapshot {
		s.fn(ev)
	}
}
