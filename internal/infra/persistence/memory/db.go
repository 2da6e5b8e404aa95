package memory

import (
	"sync"

	domcart "example.com/shopcore/internal/domain/cart"
	domorder "example.com/shopcore/internal/domain/order"
	domproduct "example.com/shopcore/internal/domain/product"
)

// DB holds every collection behind one mutex, so each repository call is a
// serializable transaction.
type DB struct {
	mu       sync.Mutex
	products map[string]*domproduct.Product
	carts    map[string][]domcart.Item
	orders   map[string]*domorder.Order
	numbers  map[string]string
}

func NewDB() *DB {
	return &DB{
		products: make(map[string]*domproduct.Product),
		carts:    make(map[string][]domcart.Item),
		orders:   make(map[string]*domorder.Order),
		numbers:  make(map[string]string),
	}
}

// PutProduct inserts or replaces a product.
func (db *DB) PutProduct(p *domproduct.Product) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.products[p.ID] = cloneProduct(p)
}

func cloneProduct(p *domproduct.Product) *domproduct.Product {
	c := *p
	if p.DiscountPrice != nil {
		d := *p.DiscountPrice
		c.DiscountPrice = &d
	}
	c.Images = append([]string(nil), p.Images...)
	return &c
}

func (db *DB) DeleteProduct(id string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.products, id)
}
