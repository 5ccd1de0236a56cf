package cart

import (
	"context"

	"github.com/angelmondragon/storefront/internal/backend"
)

// Storage is the durable key-value slot surface a cart persists into.
// Get reports ok=false when the key has never been written.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// OrderPlacer submits a cart as a backend order.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, items []backend.OrderItemInput) (*backend.Order, error)
}

// CheckoutStarter places the order and opens a payment session for it.
type CheckoutStarter interface {
	OrderPlacer
	CreateCheckoutSession(ctx context.Context, orderID int64) (*backend.CheckoutSession, error)
}

// OrderMemo remembers the order a checkout attempt placed so a retried checkout
// opens a session for it instead of placing another. Recall returns nil when
// nothing was remembered.
type OrderMemo interface {
	Recall(ctx context.Context) (*backend.Order, error)
	Remember(ctx context.Context, order *backend.Order) error
}
