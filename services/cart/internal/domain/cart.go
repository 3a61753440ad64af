package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LineItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

func (i LineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is one user's snapshot as it is stored. Items never holds a
// non-positive quantity and UpdatedAt never moves backwards.
type Cart struct {
	UserID    string              `json:"userId"`
	Items     map[string]LineItem `json:"items"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

type Summary struct {
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	ItemCount  int             `json:"itemCount"`
}

func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		UserID:    userID,
		Items:     make(map[string]LineItem),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MaxQuantity caps a single line. Merges saturate at this value.
const MaxQuantity = 1000000

// AddItem merges by product id: an existing line keeps its name and price
// and only accumulates quantity, saturating at MaxQuantity.
func (c *Cart) AddItem(item LineItem, now time.Time) {
	c.ensureItems()

	if existing, ok := c.Items[item.ProductID]; ok {
		existing.Quantity = addQuantity(existing.Quantity, item.Quantity)
		c.Items[item.ProductID] = existing
	} else {
		item.Quantity = clampQuantity(item.Quantity)
		c.Items[item.ProductID] = item
	}

	c.touch(now)
}

func (c *Cart) RemoveItem(productID string, now time.Time) {
	delete(c.Items, productID)
	c.touch(now)
}

// UpdateItemQuantity sets an absolute quantity. Zero or less removes the line.
// It returns false and leaves the cart untouched when the product is absent.
func (c *Cart) UpdateItemQuantity(productID string, quantity int, now time.Time) bool {
	item, ok := c.Items[productID]
	if !ok {
		return false
	}

	if quantity <= 0 {
		delete(c.Items, productID)
	} else {
		item.Quantity = clampQuantity(quantity)
		c.Items[productID] = item
	}

	c.touch(now)
	return true
}

func (c *Cart) Clear(now time.Time) {
	c.Items = make(map[string]LineItem)
	c.touch(now)
}

func (c *Cart) Has(productID string) bool {
	_, ok := c.Items[productID]
	return ok
}

func (c *Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (c *Cart) Summary() Summary {
	return Summary{
		TotalItems: c.TotalItems(),
		TotalPrice: c.TotalPrice(),
		ItemCount:  len(c.Items),
	}
}

// Normalize repairs a snapshot decoded from storage: a null items map becomes
// empty and lines with non-positive quantity are dropped.
func (c *Cart) Normalize() {
	c.ensureItems()
	for id, item := range c.Items {
		if item.Quantity <= 0 {
			delete(c.Items, id)
		}
	}
	if c.UpdatedAt.Before(c.CreatedAt) {
		c.UpdatedAt = c.CreatedAt
	}
}

func (c *Cart) ensureItems() {
	if c.Items == nil {
		c.Items = make(map[string]LineItem)
	}
}

func (c *Cart) touch(now time.Time) {
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
}

func clampQuantity(q int) int {
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}

// addQuantity never overflows: both operands are clamped first, so the
// sum fits comfortably in an int before the final clamp.
func addQuantity(a, b int) int {
	return clampQuantity(clampQuantity(a) + clampQuantity(b))
}
