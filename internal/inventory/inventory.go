// Package inventory manages the player's backpack on top of the live store.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/talgya/farmstead/internal/config"
	"github.com/talgya/farmstead/internal/gameerr"
	"github.com/talgya/farmstead/internal/persistence"
)

// Stack is a quantity of one item type.
type Stack struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// ParseStacks parses "Wheat_Seed:5,Hoe:1". A bare name means a count of 1.
func ParseStacks(s string) ([]Stack, error) {
	var out []Stack
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, num, found := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		count := 1
		if found {
			n, err := strconv.Atoi(strings.TrimSpace(num))
			if err != nil || n <= 0 {
				return nil, gameerr.New(gameerr.Invalid, "bad item count in %q", part)
			}
			count = n
		}
		if name == "" {
			return nil, gameerr.New(gameerr.Invalid, "empty item name in %q", s)
		}
		out = append(out, Stack{Type: name, Count: count})
	}
	return out, nil
}

// FormatStacks is the inverse of ParseStacks.
func FormatStacks(stacks []Stack) string {
	parts := make([]string, len(stacks))
	for i, st := range stacks {
		parts[i] = fmt.Sprintf("%s:%d", st.Type, st.Count)
	}
	return strings.Join(parts, ",")
}

// Deposit adds every stack to the live backpack. Callers pass the live view
// of an open transaction when the deposit must commit with other changes.
func Deposit(ctx context.Context, live *persistence.Live, stacks []Stack) error {
	for _, st := range stacks {
		if _, err := live.AddItem(ctx, st.Type, st.Count); err != nil {
			return err
		}
	}
	return nil
}

// Backpack is the player's inventory plus the currently selected item.
type Backpack struct {
	db  *persistence.DB
	log *slog.Logger

	mu       sync.Mutex
	selected string
}

// New returns a Backpack backed by db's live generation.
func New(db *persistence.DB, logger *slog.Logger) *Backpack {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backpack{db: db, log: logger.With("component", "backpack")}
}

// Items lists the live stacks.
func (b *Backpack) Items(ctx context.Context) ([]persistence.BackpackItem, error) {
	return b.db.Live().Backpack(ctx)
}

// Count returns how many of itemType are held.
func (b *Backpack) Count(ctx context.Context, itemType string) (int, error) {
	it, err := b.db.Live().Item(ctx, itemType)
	if err != nil || it == nil {
		return 0, err
	}
	return it.ItemCount, nil
}

// Add deposits n of itemType and returns the new total.
func (b *Backpack) Add(ctx context.Context, itemType string, n int) (int, error) {
	total, err := b.db.Live().AddItem(ctx, itemType, n)
	if err != nil {
		b.log.Warn("add item failed", "item", itemType, "count", n, "error", err)
		return 0, err
	}
	b.log.Debug("item added", "item", itemType, "count", n, "total", total)
	return total, nil
}

// Consume withdraws n of itemType and returns what is left. When the stack
// empties and it was selected, the selection is cleared.
func (b *Backpack) Consume(ctx context.Context, itemType string, n int) (int, error) {
	left, err := b.db.Live().ConsumeItem(ctx, itemType, n)
	if err != nil {
		b.log.Warn("consume item rejected", "item", itemType, "count", n, "error", err)
		return left, err
	}
	if left == 0 {
		b.clearIf(itemType)
	}
	return left, nil
}

// Select makes itemType the active item. It must be held.
func (b *Backpack) Select(ctx context.Context, itemType string) error {
	if itemType == "" {
		b.mu.Lock()
		b.selected = ""
		b.mu.Unlock()
		return nil
	}
	n, err := b.Count(ctx, itemType)
	if err != nil {
		return err
	}
	if n == 0 {
		return gameerr.New(gameerr.InsufficientInventory, "cannot select %s: none held", itemType)
	}
	b.mu.Lock()
	b.selected = itemType
	b.mu.Unlock()
	return nil
}

// Selected returns the active item, or "".
func (b *Backpack) Selected() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected
}

// Refresh drops the selection if the item is no longer held, e.g. after a
// restore replaced the backpack.
func (b *Backpack) Refresh(ctx context.Context) error {
	sel := b.Selected()
	if sel == "" {
		return nil
	}
	n, err := b.Count(ctx, sel)
	if err != nil {
		return err
	}
	if n == 0 {
		b.clearIf(sel)
	}
	return nil
}

func (b *Backpack) clearIf(itemType string) {
	b.mu.Lock()
	if b.selected == itemType {
		b.selected = ""
	}
	b.mu.Unlock()
}

// EnsureStartingItems fills an empty backpack with the configured items.
// It reports whether anything was added.
func (b *Backpack) EnsureStartingItems(ctx context.Context, items []config.ItemStack) (bool, error) {
	var added bool
	err := b.db.InTx(ctx, func(tx *persistence.Tx) error {
		live := tx.Live()
		n, err := persistence.Count[persistence.BackpackItem](ctx, live)
		if err != nil || n > 0 {
			return err
		}
		stacks := make([]Stack, len(items))
		for i, it := range items {
			stacks[i] = Stack{Type: it.Type, Count: it.Count}
		}
		added = len(stacks) > 0
		return Deposit(ctx, live, stacks)
	})
	if err != nil {
		return false, err
	}
	if added {
		b.log.Info("starting items granted", "stacks", len(items))
	}
	return added, nil
}
