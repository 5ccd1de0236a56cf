package cart

type addItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	// Quantity defaults to 1 when omitted.
	Quantity *int `json:"quantity,omitempty" validate:"omitempty,min=1,max=10000"`
}

func (r addItemRequest) quantity() int {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

// A quantity of zero or less removes the line.
type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,max=10000"`
}
