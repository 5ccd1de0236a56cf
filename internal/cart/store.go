package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront/internal/backend"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

// DefaultSlot is the slot name carts persist under when none is configured.
const DefaultSlot = "cart.v1"

// Line is one product in the cart. The product is the snapshot taken when it was first added.
type Line struct {
	Product  backend.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// LoadState describes how Open recovered the persisted cart.
type LoadState string

const (
	LoadFresh       LoadState = "fresh"
	LoadRestored    LoadState = "restored"
	LoadCorrupt     LoadState = "corrupt"
	LoadUnavailable LoadState = "unavailable"
)

// LoadResult is returned by Open. Every state except LoadRestored yields an empty cart.
type LoadResult struct {
	State LoadState
	Err   error
}

// CheckoutResult pairs the placed order with the payment redirect for it.
type CheckoutResult struct {
	Order       *backend.Order `json:"order"`
	CheckoutURL string         `json:"checkout_url"`
}

type Options struct {
	Logger  *logger.Logger
	Metrics *metrics.CartMetrics
}

// Store holds the ordered cart lines for one slot and writes every mutation through to storage.
type Store struct {
	mu      sync.Mutex
	storage Storage
	key     string
	lines   []Line
	logg    *logger.Logger
}

// SlotKey builds the storage key for a profile's cart slot.
func SlotKey(profileID, slot string) string {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		slot = DefaultSlot
	}
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return slot
	}
	return profileID + ":" + slot
}

// Open hydrates a store from the slot at key. It never fails: missing, unreadable or
// invalid data produce an empty cart and the reason is reported in the LoadResult.
func Open(ctx context.Context, storage Storage, key string, opts Options) (*Store, LoadResult) {
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	s := &Store{
		storage: storage,
		key:     key,
		lines:   []Line{},
		logg:    logg,
	}

	res := s.load(ctx)
	opts.Metrics.IncLoad(string(res.State))

	switch res.State {
	case LoadCorrupt, LoadUnavailable:
		fields := map[string]any{"cart_slot": key, "load_state": string(res.State)}
		for k, v := range pkgerrors.Dump(res.Err).Fields() {
			fields[k] = v
		}
		logg.Warn(logg.WithFields(ctx, fields), "cart.load_discarded")
	case LoadRestored:
		logg.Debug(logg.WithFields(ctx, map[string]any{"cart_slot": key, "lines": len(s.lines)}), "cart.load_restored")
	}
	return s, res
}

func (s *Store) load(ctx context.Context) LoadResult {
	raw, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return LoadResult{State: LoadUnavailable, Err: pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read cart slot")}
	}
	if !ok {
		return LoadResult{State: LoadFresh}
	}

	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return LoadResult{State: LoadCorrupt, Err: pkgerrors.Wrap(pkgerrors.CodeStorageCorrupt, err, "decode cart slot")}
	}
	if err := validateLines(lines); err != nil {
		return LoadResult{State: LoadCorrupt, Err: pkgerrors.Wrap(pkgerrors.CodeStorageCorrupt, err, "invalid cart slot")}
	}
	if lines != nil {
		s.lines = lines
	}
	return LoadResult{State: LoadRestored}
}

func validateLines(lines []Line) error {
	seen := make(map[int64]struct{}, len(lines))
	for i, line := range lines {
		if line.Quantity < 1 {
			return fmt.Errorf("line %d: quantity %d below 1", i, line.Quantity)
		}
		if line.Product.PriceCents < 0 {
			return fmt.Errorf("line %d: negative price", i)
		}
		if _, dup := seen[line.Product.ID]; dup {
			return fmt.Errorf("line %d: duplicate product %d", i, line.Product.ID)
		}
		seen[line.Product.ID] = struct{}{}
	}
	return nil
}

// Key returns the storage key this store writes to.
func (s *Store) Key() string {
	return s.key
}

// AddItem increments the line for product, appending a new line when none exists.
func (s *Store) AddItem(ctx context.Context, product backend.Product, quantity int) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(product.ID); i >= 0 {
		s.lines[i].Quantity += quantity
	} else {
		s.lines = append(s.lines, Line{Product: product, Quantity: quantity})
	}
	return s.persist(ctx)
}

// RemoveItem drops the line for productID. An absent product is a no-op.
func (s *Store) RemoveItem(ctx context.Context, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		return nil
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	return s.persist(ctx)
}

// UpdateQty sets the quantity of an existing line; quantity <= 0 removes it.
// An absent product is a no-op.
func (s *Store) UpdateQty(ctx context.Context, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		return nil
	}
	if quantity <= 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
	} else {
		s.lines[i].Quantity = quantity
	}
	return s.persist(ctx)
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = []Line{}
	return s.persist(ctx)
}

// Lines returns a copy of the cart lines in insertion order.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// Subtotal is the sum of price_cents * quantity across all lines.
func (s *Store) Subtotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, line := range s.lines {
		total += line.Product.PriceCents * int64(line.Quantity)
	}
	return total
}

// ItemCount is the total number of units in the cart.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, line := range s.lines {
		count += line.Quantity
	}
	return count
}

// PlaceOrder submits the current lines as one backend order. The cart is left untouched
// whether or not the order succeeds. An empty cart is rejected with VALIDATION_ERROR
// without calling the backend.
func (s *Store) PlaceOrder(ctx context.Context, orders OrderPlacer) (*backend.Order, error) {
	items := s.orderItems()
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	order, err := orders.CreateOrder(ctx, items)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID), map[string]any{
		"cart_slot": s.key,
		"lines":     len(items),
	}), "cart.order_placed")
	return order, nil
}

// Checkout places the order and opens a payment session for it. With a memo, an
// order remembered by an earlier attempt is reused and a newly placed order is
// remembered before the session is requested. When only the session fails the
// result still carries the order.
func (s *Store) Checkout(ctx context.Context, checkout CheckoutStarter, memo OrderMemo) (*CheckoutResult, error) {
	order, err := s.checkoutOrder(ctx, checkout, memo)
	if err != nil {
		return nil, err
	}
	session, err := checkout.CreateCheckoutSession(ctx, order.ID)
	if err != nil {
		return &CheckoutResult{Order: order}, err
	}
	return &CheckoutResult{Order: order, CheckoutURL: session.CheckoutURL}, nil
}

func (s *Store) checkoutOrder(ctx context.Context, checkout CheckoutStarter, memo OrderMemo) (*backend.Order, error) {
	if memo != nil {
		order, err := memo.Recall(ctx)
		if err != nil {
			return nil, err
		}
		if order != nil {
			s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, order.ID), "cart_slot", s.key), "cart.checkout_resumed")
			return order, nil
		}
	}

	order, err := s.PlaceOrder(ctx, checkout)
	if err != nil {
		return nil, err
	}
	if memo != nil {
		if err := memo.Remember(ctx, order); err != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID), "cart.checkout_memo_failed", err)
		}
	}
	return order, nil
}

func (s *Store) orderItems() []backend.OrderItemInput {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]backend.OrderItemInput, 0, len(s.lines))
	for _, line := range s.lines {
		items = append(items, backend.OrderItemInput{ProductID: line.Product.ID, Quantity: line.Quantity})
	}
	return items
}

func (s *Store) indexOf(productID int64) int {
	for i, line := range s.lines {
		if line.Product.ID == productID {
			return i
		}
	}
	return -1
}

// persist writes the full line list; callers hold s.mu. A failed write leaves the
// in-memory mutation applied.
func (s *Store) persist(ctx context.Context) error {
	payload, err := json.Marshal(s.lines)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart")
	}
	if err := s.storage.Set(ctx, s.key, string(payload)); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "cart_slot", s.key), "cart.persist_failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart")
	}
	return nil
}
