package order

import (
	"fmt"
	"math/rand"
	"time"
)

// NewOrderNumber formats "ORD" + the last six digits of the unix millisecond
// clock + three random digits. Uniqueness is enforced by the store.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD%06d%03d", now.UnixMilli()%1_000_000, rand.Intn(1000))
}
