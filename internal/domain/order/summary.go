package order

import "math"

type Summary struct {
	Subtotal    float64
	Shipping    float64
	Tax         float64
	Discount    float64
	TotalAmount float64
	TotalItems  int64
	ItemCount   int
}

// Charges are the order-level amounts added on top of the item subtotal.
type Charges struct {
	Shipping float64
	Tax      float64
	Discount float64
}

type PricingPolicy interface {
	Charges(items []Item, subtotal float64) Charges
}

// NoCharges leaves shipping, tax and discount at zero.
type NoCharges struct{}

func (NoCharges) Charges([]Item, float64) Charges { return Charges{} }

// FlatPolicy charges a fixed shipping fee and a proportional tax, and
// subtracts a fixed discount.
type FlatPolicy struct {
	Shipping float64
	TaxRate  float64
	Discount float64
}

func (p FlatPolicy) Charges(_ []Item, subtotal float64) Charges {
	return Charges{
		Shipping: p.Shipping,
		Tax:      roundCents(subtotal * p.TaxRate),
		Discount: p.Discount,
	}
}

// Summarize totals the items and charges. Amounts are rounded to cents.
func Summarize(items []Item, c Charges) Summary {
	var s Summary
	for _, it := range items {
		s.Subtotal += it.ItemTotal
		s.TotalItems += it.Quantity
	}
	s.Subtotal = roundCents(s.Subtotal)
	s.ItemCount = len(items)
	s.Shipping = c.Shipping
	s.Tax = c.Tax
	s.Discount = c.Discount
	s.TotalAmount = roundCents(s.Subtotal + s.Shipping + s.Tax - s.Discount)
	return s
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
