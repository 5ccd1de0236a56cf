package cart

import (
	"github.com/angelmondragon/storefront/internal/backend"
	cartsvc "github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/pkg/money"
	"github.com/angelmondragon/storefront/pkg/types"
)

type cartLine struct {
	Product   backend.Product `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice types.Money     `json:"unit_price"`
	LineTotal types.Money     `json:"line_total"`
}

type cartView struct {
	Lines         []cartLine  `json:"lines"`
	ItemCount     int         `json:"item_count"`
	SubtotalCents int64       `json:"subtotal_cents"`
	Subtotal      types.Money `json:"subtotal"`
	LoadState     string      `json:"load_state,omitempty"`
}

type checkoutView struct {
	Order       *backend.Order `json:"order"`
	CheckoutURL string         `json:"checkout_url"`
}

func newCartView(store *cartsvc.Store, res cartsvc.LoadResult) cartView {
	lines := store.Lines()
	out := make([]cartLine, 0, len(lines))
	currency := ""
	for _, line := range lines {
		if currency == "" {
			currency = line.Product.Currency
		}
		total := line.Product.PriceCents * int64(line.Quantity)
		out = append(out, cartLine{
			Product:   line.Product,
			Quantity:  line.Quantity,
			UnitPrice: moneyOf(line.Product.PriceCents, line.Product.Currency),
			LineTotal: moneyOf(total, line.Product.Currency),
		})
	}
	subtotal := store.Subtotal()
	return cartView{
		Lines:         out,
		ItemCount:     store.ItemCount(),
		SubtotalCents: subtotal,
		Subtotal:      moneyOf(subtotal, currency),
		LoadState:     string(res.State),
	}
}

func moneyOf(cents int64, currency string) types.Money {
	return types.Money{Cents: cents, Display: money.Format(cents, currency)}
}
