package backend

// Product is a catalog entry owned by the backend. Prices are integer minor units.
type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	SKU         string  `json:"sku"`
	PriceCents  int64   `json:"price_cents"`
	Currency    string  `json:"currency"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	Stock       int64   `json:"stock"`
}

// ProductInput is the payload for creating a product: a Product without its id.
type ProductInput struct {
	Name        string  `json:"name" validate:"required,max=200"`
	SKU         string  `json:"sku" validate:"required,max=64"`
	PriceCents  int64   `json:"price_cents" validate:"min=0"`
	Currency    string  `json:"currency" validate:"required,len=3,alpha"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	ImageURL    *string `json:"image_url,omitempty" validate:"omitempty,url"`
	Stock       int64   `json:"stock" validate:"min=0"`
}

// DefaultCurrency is what the admin form pre-fills for new products.
const DefaultCurrency = "USD"

// Normalize applies the admin form defaults.
func (in *ProductInput) Normalize() {
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}
}

// ProductPatch is a partial update; nil fields are left untouched by the backend.
type ProductPatch struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	SKU         *string `json:"sku,omitempty" validate:"omitempty,min=1,max=64"`
	PriceCents  *int64  `json:"price_cents,omitempty" validate:"omitempty,min=0"`
	Currency    *string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	ImageURL    *string `json:"image_url,omitempty" validate:"omitempty,url"`
	Stock       *int64  `json:"stock,omitempty" validate:"omitempty,min=0"`
}

// DeleteResult is the backend acknowledgement of a product deletion.
type DeleteResult struct {
	Success bool `json:"success"`
}

// OrderItemInput is one (product, quantity) pair submitted when creating an order.
type OrderItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type createOrderRequest struct {
	Items []OrderItemInput `json:"items"`
}

// Order is the backend record created from a cart snapshot. Line prices are the
// prices at order time and do not follow later catalog changes.
type Order struct {
	ID             int64       `json:"id"`
	Status         string      `json:"status"`
	Currency       string      `json:"currency"`
	SubtotalCents  int64       `json:"subtotal_cents"`
	TotalCents     int64       `json:"total_cents"`
	Items          []OrderLine `json:"items"`
	TrackingNumber *string     `json:"tracking_number,omitempty"`
}

type OrderLine struct {
	ID         int64  `json:"id"`
	ProductID  int64  `json:"product_id"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

// CheckoutSession is the order-scoped payment redirect issued by the backend.
type CheckoutSession struct {
	CheckoutURL string `json:"checkout_url"`
}

// Health is whatever liveness payload the backend reports.
type Health map[string]any
