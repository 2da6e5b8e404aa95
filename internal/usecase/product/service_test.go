package product

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	dom "example.com/shopcore/internal/domain/product"
)

type mockProductRepository struct {
	products map[string]*dom.Product
	setErr   error
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{
		products: map[string]*dom.Product{
			"p1": {ID: "p1", Name: "Lamp", Price: 100, Stock: 3, IsActive: true},
			"p2": {ID: "p2", Name: "Desk", Price: 250, Stock: 0, IsActive: false},
		},
	}
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*dom.Product, error) {
	if p, ok := m.products[id]; ok {
		cloned := *p
		return &cloned, nil
	}
	return nil, dom.ErrProductNotFound
}

func (m *mockProductRepository) GetByIDs(ctx context.Context, ids []string) ([]*dom.Product, error) {
	var out []*dom.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			cloned := *p
			out = append(out, &cloned)
		}
	}
	return out, nil
}

func (m *mockProductRepository) List(ctx context.Context, filter dom.ListFilter) ([]*dom.Product, error) {
	var out []*dom.Product
	for _, id := range []string{"p1", "p2"} {
		p := m.products[id]
		if filter.OnlyActive && !p.IsActive {
			continue
		}
		cloned := *p
		out = append(out, &cloned)
	}
	return out, nil
}

func (m *mockProductRepository) SetStock(ctx context.Context, id string, stock int64) error {
	if m.setErr != nil {
		return m.setErr
	}
	p, ok := m.products[id]
	if !ok {
		return dom.ErrProductNotFound
	}
	p.Stock = stock
	return nil
}

func TestSetStock(t *testing.T) {
	repo := newMockProductRepository()
	svc := NewService(repo, nil)

	p, err := svc.SetStock(context.Background(), "p1", 12)
	require.NoError(t, err)
	require.Equal(t, int64(12), p.Stock)

	_, err = svc.SetStock(context.Background(), "p1", -1)
	require.ErrorIs(t, err, dom.ErrInvalidStock)
	require.Equal(t, int64(12), repo.products["p1"].Stock)

	_, err = svc.SetStock(context.Background(), "missing", 1)
	require.ErrorIs(t, err, dom.ErrProductNotFound)
}

func TestList_OnlyActive(t *testing.T) {
	svc := NewService(newMockProductRepository(), nil)

	all, err := svc.List(context.Background(), dom.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	active, err := svc.List(context.Background(), dom.ListFilter{OnlyActive: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "p1", active[0].ID)
}

func TestGetByID(t *testing.T) {
	svc := NewService(newMockProductRepository(), nil)

	p, err := svc.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "Lamp", p.Name)

	_, err = svc.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, dom.ErrProductNotFound)
}
