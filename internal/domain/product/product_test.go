package product

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestEffectivePrice(t *testing.T) {
	require.Equal(t, 100.0, (&Product{Price: 100}).EffectivePrice())
	require.Equal(t, 80.0, (&Product{Price: 100, DiscountPrice: ptr(80)}).EffectivePrice())
	require.Equal(t, 100.0, (&Product{Price: 100, DiscountPrice: ptr(0)}).EffectivePrice())
}

func TestMergeLines_SumsAndSorts(t *testing.T) {
	got := MergeLines([]StockLine{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 3},
	})
	require.Equal(t, []StockLine{
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 4},
	}, got)
}

func TestCheckReservable(t *testing.T) {
	require.ErrorIs(t, CheckReservable(&Product{IsActive: true, Stock: 5}, "x", 0), ErrInvalidQuantity)
	require.ErrorIs(t, CheckReservable(&Product{IsActive: true, Stock: 5}, "x", -2), ErrInvalidQuantity)
	require.ErrorIs(t, CheckReservable(&Product{IsActive: true, Stock: 1 << 40}, "x", MaxLineQuantity+1), ErrInvalidQuantity)
	require.ErrorIs(t, CheckReservable(nil, "x", 1), ErrProductNotFound)
	require.ErrorIs(t, CheckReservable(&Product{IsActive: false, Stock: 5}, "x", 1), ErrProductUnavailable)
	require.NoError(t, CheckReservable(&Product{IsActive: true, Stock: 5}, "x", 5))

	err := CheckReservable(&Product{IsActive: true, Stock: 2}, "x", 3)
	require.ErrorIs(t, err, ErrInsufficientStock)

	var shortage *ShortageError
	require.True(t, errors.As(err, &shortage))
	require.Equal(t, int64(2), shortage.Available)
	require.Equal(t, int64(3), shortage.Requested)
	require.Equal(t, "x", shortage.ProductID)
}
