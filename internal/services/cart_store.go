package services

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ecoshop/storefront/internal/domain"
)

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 99

// CartStore holds one session's line items and the cart drawer visibility. Every operation
// is atomic; none of them fail.
type CartStore struct {
	mu     sync.Mutex
	items  []domain.CartLineItem
	isOpen bool
}

// NewCartStore returns an empty, closed cart.
func NewCartStore() *CartStore {
	return &CartStore{}
}

// AddItem merges item into the line with the same (id, size, color) or appends a new
// line. A non-positive quantity counts as one; a line never exceeds MaxLineQuantity.
func (c *CartStore) AddItem(item domain.CartLineItem) {
	item.ID = normalizeLineID(item.ID)
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	item.Quantity = clampQuantity(item.Quantity)

	c.mu.Lock()
	defer c.mu.Unlock()
	key := item.Key()
	for i := range c.items {
		if c.items[i].Key() == key {
			// Both operands are within [1, MaxLineQuantity], so the sum cannot overflow.
			c.items[i].Quantity = clampQuantity(c.items[i].Quantity + item.Quantity)
			return
		}
	}
	c.items = append(c.items, item)
}

// RemoveItem removes every line of the product, whatever its size or color.
func (c *CartStore) RemoveItem(id string) {
	id = normalizeLineID(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = filterLines(c.items, func(line domain.CartLineItem) bool { return line.ID != id })
}

// RemoveLine removes only the line matching key exactly.
func (c *CartStore) RemoveLine(key domain.LineKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = filterLines(c.items, func(line domain.CartLineItem) bool { return line.Key() != key })
}

// UpdateQuantity sets quantity on every line of the product; quantity <= 0 removes them.
// Quantities above MaxLineQuantity are capped.
func (c *CartStore) UpdateQuantity(id string, quantity int) {
	id = normalizeLineID(id)
	if quantity <= 0 {
		c.RemoveItem(id)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Quantity = clampQuantity(quantity)
		}
	}
}

// UpdateLineQuantity sets quantity on the exact line; quantity <= 0 removes it.
func (c *CartStore) UpdateLineQuantity(key domain.LineKey, quantity int) {
	if quantity <= 0 {
		c.RemoveLine(key)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].Key() == key {
			c.items[i].Quantity = clampQuantity(quantity)
		}
	}
}

// TotalItems is the sum of line quantities.
func (c *CartStore) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, line := range c.items {
		total += line.Quantity
	}
	return total
}

// TotalPrice is the sum of unit price times quantity using the prices frozen at add time.
func (c *CartStore) TotalPrice() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return linesTotal(c.items)
}

// Items returns a copy of the lines in insertion order.
func (c *CartStore) Items() []domain.CartLineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CartLineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Clear empties the cart.
func (c *CartStore) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

func (c *CartStore) OpenCart() {
	c.mu.Lock()
	c.isOpen = true
	c.mu.Unlock()
}

func (c *CartStore) CloseCart() {
	c.mu.Lock()
	c.isOpen = false
	c.mu.Unlock()
}

func (c *CartStore) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpen
}

// CartSnapshot is a consistent view of the cart taken under one lock.
type CartSnapshot struct {
	Items      []domain.CartLineItem
	TotalItems int
	TotalPrice decimal.Decimal
	IsOpen     bool
}

// Snapshot reads items, totals and visibility atomically.
func (c *CartStore) Snapshot() CartSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]domain.CartLineItem, len(c.items))
	copy(items, c.items)
	count := 0
	for _, line := range items {
		count += line.Quantity
	}
	return CartSnapshot{
		Items:      items,
		TotalItems: count,
		TotalPrice: linesTotal(items),
		IsOpen:     c.isOpen,
	}
}

// Drain takes a snapshot and empties the cart in one step.
func (c *CartStore) Drain() CartSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.items
	c.items = nil
	count := 0
	for _, line := range items {
		count += line.Quantity
	}
	return CartSnapshot{
		Items:      items,
		TotalItems: count,
		TotalPrice: linesTotal(items),
		IsOpen:     c.isOpen,
	}
}

// LineTotal is the frozen unit price times the quantity of one line.
func LineTotal(line domain.CartLineItem) decimal.Decimal {
	return decimal.NewFromFloat(line.Price).Mul(decimal.NewFromInt(int64(line.Quantity)))
}

func linesTotal(lines []domain.CartLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(LineTotal(line))
	}
	return total
}

func filterLines(lines []domain.CartLineItem, keep func(domain.CartLineItem) bool) []domain.CartLineItem {
	out := lines[:0]
	for _, line := range lines {
		if keep(line) {
			out = append(out, line)
		}
	}
	return out
}

func normalizeLineID(id string) string {
	return strings.TrimSpace(id)
}

func clampQuantity(quantity int) int {
	if quantity > MaxLineQuantity {
		return MaxLineQuantity
	}
	return quantity
}
