package cart

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/backend"
	cartsvc "github.com/angelmondragon/storefront/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// ProductLookup resolves catalog entries so the cart snapshots current product data.
type ProductLookup interface {
	ListProducts(ctx context.Context) ([]backend.Product, error)
}

// CartFetch returns the caller's cart with derived totals.
func CartFetch(svc *cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, err := profileIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, res := svc.Open(r.Context(), profileID)
		responses.WriteSuccess(w, newCartView(store, res))
	}
}

// CartAddItem resolves the product from the catalog and adds it to the cart.
func CartAddItem(svc *cartsvc.Service, catalog ProductLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, err := profileIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := findProduct(r.Context(), catalog, payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		mutate(w, r, svc, logg, profileID, func(s *cartsvc.Store) error {
			return s.AddItem(r.Context(), *product, payload.quantity())
		})
	}
}

func CartUpdateItem(svc *cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, err := profileIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		mutate(w, r, svc, logg, profileID, func(s *cartsvc.Store) error {
			return s.UpdateQty(r.Context(), productID, *payload.Quantity)
		})
	}
}

func CartRemoveItem(svc *cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, err := profileIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		mutate(w, r, svc, logg, profileID, func(s *cartsvc.Store) error {
			return s.RemoveItem(r.Context(), productID)
		})
	}
}

func CartClear(svc *cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, err := profileIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		mutate(w, r, svc, logg, profileID, func(s *cartsvc.Store) error {
			return s.Clear(r.Context())
		})
	}
}

// CartPlaceOrder submits the cart as an order. The cart is kept; clients clear it explicitly.
func CartPlaceOrder(svc *cartsvc.Service, orders cartsvc.OrderPlacer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, err := profileIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		store, _ := svc.Open(r.Context(), profileID)
		order, err := store.PlaceOrder(r.Context(), orders)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// CartCheckout places the order and hands off to the backend payment session.
// With ?redirect=true the response is a 303 to the checkout url.
func CartCheckout(svc *cartsvc.Service, checkout cartsvc.CheckoutStarter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profileID, err := profileIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		redirect, err := validators.ParseQueryBool(r, "redirect", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		store, _ := svc.Open(r.Context(), profileID)
		res, err := store.Checkout(r.Context(), checkout, orderMemoFor(r))
		if err != nil {
			ctx := r.Context()
			if logg != nil && res != nil && res.Order != nil {
				ctx = logg.WithOrderID(ctx, res.Order.ID)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if redirect {
			http.Redirect(w, r, res.CheckoutURL, http.StatusSeeOther)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutView{Order: res.Order, CheckoutURL: res.CheckoutURL})
	}
}

// checkpointMemo keeps the order placed by a checkout under the request's
// Idempotency-Key.
type checkpointMemo struct {
	cp *middleware.Checkpoint
}

func (m checkpointMemo) Recall(ctx context.Context) (*backend.Order, error) {
	var order backend.Order
	ok, err := m.cp.Load(ctx, &order)
	if err != nil || !ok {
		return nil, err
	}
	return &order, nil
}

func (m checkpointMemo) Remember(ctx context.Context, order *backend.Order) error {
	return m.cp.Save(ctx, order)
}

func orderMemoFor(r *http.Request) cartsvc.OrderMemo {
	cp := middleware.CheckpointFromContext(r.Context())
	if cp == nil {
		return nil
	}
	return checkpointMemo{cp: cp}
}

func mutate(w http.ResponseWriter, r *http.Request, svc *cartsvc.Service, logg *logger.Logger, profileID string, fn func(*cartsvc.Store) error) {
	var view cartView
	_, err := svc.Do(r.Context(), profileID, func(s *cartsvc.Store) error {
		if err := fn(s); err != nil {
			return err
		}
		view = newCartView(s, cartsvc.LoadResult{})
		return nil
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, view)
}

func findProduct(ctx context.Context, catalog ProductLookup, id int64) (*backend.Product, error) {
	products, err := catalog.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].ID == id {
			return &products[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithDetails(map[string]any{"product_id": id})
}

func profileIDFromContext(r *http.Request) (string, error) {
	profileID := middleware.ProfileIDFromContext(r.Context())
	if profileID == "" {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "profile context missing")
	}
	return profileID, nil
}
