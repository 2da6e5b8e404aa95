package product

import "sort"

type Product struct {
	ID            string
	Name          string
	Description   string
	Price         float64
	DiscountPrice *float64
	Stock         int64
	Images        []string
	Category      string
	Brand         string
	SKU           string
	IsActive      bool
}

// EffectivePrice is the unit price charged at checkout.
func (p *Product) EffectivePrice() float64 {
	if p.DiscountPrice != nil && *p.DiscountPrice > 0 {
		return *p.DiscountPrice
	}
	return p.Price
}

func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// MaxLineQuantity caps the units of one product in a single cart line or order.
const MaxLineQuantity int64 = 10000

// ValidQuantity reports whether q is an acceptable line quantity.
func ValidQuantity(q int64) bool {
	return q >= 1 && q <= MaxLineQuantity
}

// StockLine is a signed stock movement request for one product.
type StockLine struct {
	ProductID string
	Quantity  int64
}

// MergeLines sums quantities of repeated product ids and returns the lines
// ordered by product id, which is the lock order every store uses. Callers
// bound each input with ValidQuantity first, so sums cannot overflow.
func MergeLines(lines []StockLine) []StockLine {
	byID := make(map[string]int64, len(lines))
	for _, l := range lines {
		byID[l.ProductID] += l.Quantity
	}
	merged := make([]StockLine, 0, len(byID))
	for id, qty := range byID {
		merged = append(merged, StockLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged
}

// CheckReservable reports why p cannot supply qty units, or nil.
func CheckReservable(p *Product, id string, qty int64) error {
	if !ValidQuantity(qty) {
		return ErrInvalidQuantity
	}
	if p == nil {
		return ErrProductNotFound
	}
	if !p.IsActive {
		return ErrProductUnavailable
	}
	if p.Stock < qty {
		return &ShortageError{ProductID: id, Available: p.Stock, Requested: qty}
	}
	return nil
}

type ListFilter struct {
	OnlyActive bool
	Limit      int
}
