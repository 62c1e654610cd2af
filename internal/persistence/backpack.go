package persistence

import (
	"context"

	"github.com/talgya/farmstead/internal/gameerr"
)

// Backpack returns every item stack in the view's generation.
func (r *reader) Backpack(ctx context.Context) ([]BackpackItem, error) {
	return Select[BackpackItem](ctx, r, "")
}

// Item returns the stack of itemType, or nil.
func (r *reader) Item(ctx context.Context, itemType string) (*BackpackItem, error) {
	return First[BackpackItem](ctx, r, "item_type = ?", itemType)
}

func (r *reader) insertItem(ctx context.Context, it *BackpackItem) error {
	id, err := r.insert(ctx, "insert item",
		"INSERT INTO backpack_items (item_type, item_count, generation) VALUES (?, ?, ?)",
		it.ItemType, it.ItemCount, r.gen)
	if err != nil {
		return err
	}
	it.ID = id
	it.Generation = r.gen
	return nil
}

// AddItem merges n of itemType into the live backpack and returns the new
// count.
func (l *Live) AddItem(ctx context.Context, itemType string, n int) (int, error) {
	if itemType == "" || n <= 0 {
		return 0, gameerr.New(gameerr.Invalid, "add %d of %q", n, itemType)
	}
	cur, err := l.Item(ctx, itemType)
	if err != nil {
		return 0, err
	}
	if cur == nil {
		it := &BackpackItem{ItemType: itemType, ItemCount: n}
		if err := l.insertItem(ctx, it); err != nil {
			return 0, err
		}
		return n, nil
	}
	total := cur.ItemCount + n
	if _, err := l.exec(ctx, "add item",
		"UPDATE backpack_items SET item_count = ? WHERE id = ?", total, cur.ID); err != nil {
		return 0, err
	}
	return total, nil
}

// ConsumeItem removes n of itemType and returns what is left. Asking for more
// than is held is InsufficientInventory and changes nothing. A stack that
// reaches zero is deleted.
func (l *Live) ConsumeItem(ctx context.Context, itemType string, n int) (int, error) {
	if itemType == "" || n <= 0 {
		return 0, gameerr.New(gameerr.Invalid, "consume %d of %q", n, itemType)
	}
	cur, err := l.Item(ctx, itemType)
	if err != nil {
		return 0, err
	}
	if cur == nil {
		return 0, gameerr.New(gameerr.InsufficientInventory, "no %s in backpack", itemType)
	}
	if cur.ItemCount < n {
		return cur.ItemCount, gameerr.New(gameerr.InsufficientInventory, "need %d %s, have %d", n, itemType, cur.ItemCount)
	}

	left := cur.ItemCount - n
	if left == 0 {
		if _, err := Delete[BackpackItem](ctx, l, cur.ID); err != nil {
			return 0, err
		}
		return 0, nil
	}
	if _, err := l.exec(ctx, "consume item",
		"UPDATE backpack_items SET item_count = ? WHERE id = ?", left, cur.ID); err != nil {
		return 0, err
	}
	return left, nil
}
