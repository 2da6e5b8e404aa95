package cart

type Item struct {
	ProductID string
	Quantity  int64
}

type DetailedItem struct {
	Item
	ProductName  string
	ProductImage string
	UnitPrice    float64
	LineTotal    float64
	Stock        int64
}

type Cart struct {
	UserID     string
	Items      []DetailedItem
	TotalItems int64
	Subtotal   float64
}

// Find returns the line for productID.
func Find(items []Item, productID string) (Item, bool) {
	for _, it := range items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return Item{}, false
}
