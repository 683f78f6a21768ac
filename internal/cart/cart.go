// Package cart owns the cart-line invariants: one line per product and size, quantity of at
// least one, and a total that is always derived from the lines.
package cart

import (
	"slices"

	"github.com/fjod/corc-store/internal/domain"
	"github.com/shopspring/decimal"
)

// Cart is not safe for concurrent use; the state service serializes access.
type Cart struct {
	lines []domain.CartLine
}

// New builds a cart from stored lines, merging duplicate keys and clamping quantities.
func New(lines []domain.CartLine) *Cart {
	c := &Cart{}
	c.Replace(lines)
	return c
}

// Add puts one unit of p in the given size into the cart and returns the resulting line.
func (c *Cart) Add(p domain.Product, size string) domain.CartLine {
	if size == "" {
		size = domain.DefaultSize
	}
	key := domain.LineKey(p.ID, size)
	if i := c.index(key); i >= 0 {
		c.lines[i].Quantity++
		return c.lines[i]
	}
	line := domain.CartLine{
		Key:       key,
		ProductID: p.ID,
		Name:      p.Name,
		Category:  p.Category,
		Price:     p.Price,
		ImageURL:  p.Image(),
		Size:      size,
		Quantity:  1,
	}
	c.lines = append(c.lines, line)
	return line
}

// Remove deletes the line. Removing an absent key is a no-op.
func (c *Cart) Remove(key string) (domain.CartLine, bool) {
	i := c.index(key)
	if i < 0 {
		return domain.CartLine{}, false
	}
	line := c.lines[i]
	c.lines = slices.Delete(c.lines, i, i+1)
	return line, true
}

// UpdateQuantity adds delta to the line's quantity, never going below one.
func (c *Cart) UpdateQuantity(key string, delta int) (domain.CartLine, bool) {
	i := c.index(key)
	if i < 0 {
		return domain.CartLine{}, false
	}
	c.lines[i].Quantity = max(1, c.lines[i].Quantity+delta)
	return c.lines[i], true
}

func (c *Cart) Find(key string) (domain.CartLine, bool) {
	i := c.index(key)
	if i < 0 {
		return domain.CartLine{}, false
	}
	return c.lines[i], true
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Count is the number of units across all lines.
func (c *Cart) Count() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) Len() int {
	return len(c.lines)
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Lines returns a copy of the lines in insertion order.
func (c *Cart) Lines() []domain.CartLine {
	return slices.Clone(c.lines)
}

// Quantities sums units per product across sizes.
func (c *Cart) Quantities() map[int64]int {
	q := make(map[int64]int)
	for _, l := range c.lines {
		q[l.ProductID] += l.Quantity
	}
	return q
}

func (c *Cart) Clear() {
	c.lines = nil
}

// Replace swaps in a new set of lines, keeping the invariants.
func (c *Cart) Replace(lines []domain.CartLine) {
	c.lines = make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.Size == "" {
			l.Size = domain.DefaultSize
		}
		if l.Key == "" {
			l.Key = domain.LineKey(l.ProductID, l.Size)
		}
		l.Quantity = max(1, l.Quantity)
		if i := c.index(l.Key); i >= 0 {
			c.lines[i].Quantity += l.Quantity
			continue
		}
		c.lines = append(c.lines, l)
	}
}

func (c *Cart) index(key string) int {
	return slices.IndexFunc(c.lines, func(l domain.CartLine) bool { return l.Key == key })
}
