package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
	"github.com/adamdasovich/goldventure-sub001/internal/catalog"
	"github.com/adamdasovich/goldventure-sub001/internal/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxSaveAttempts = 5

// Service applies cart mutations. Availability is read from the ledger as a
// soft check only; it is re-validated by checkout.
type Service struct {
	Store   Store
	Catalog catalog.Catalog
	Ledger  inventory.Ledger
	Log     *zap.Logger
	Now     func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// mutate loads the cart, applies fn and saves, retrying when another writer
// got there first.
func (s *Service) mutate(ctx context.Context, cartID string, fn func(c *Cart) error) (*Cart, error) {
	if cartID == "" {
		return nil, apperr.Invalid("cart id is required")
	}
	for attempt := 1; ; attempt++ {
		c, err := s.Store.Load(ctx, cartID)
		if err != nil {
			return nil, fmt.Errorf("load cart %s: %w", cartID, err)
		}
		if err := fn(c); err != nil {
			return nil, err
		}
		c.UpdatedAt = s.now()
		err = s.Store.Save(ctx, c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrStale) || attempt == maxSaveAttempts {
			return nil, fmt.Errorf("save cart %s: %w", cartID, err)
		}
		s.log().Debug("cart save raced, retrying", zap.String("cart_id", cartID), zap.Int("attempt", attempt))
	}
}

// AddItem adds quantity units of a product (or variant). An existing line
// for the same product and variant is merged.
func (s *Service) AddItem(ctx context.Context, cartID, productID, variantID string, quantity int) (Item, error) {
	if quantity < 1 {
		return Item{}, apperr.Invalid(fmt.Sprintf("quantity must be at least 1, got %d", quantity))
	}
	if _, _, err := catalog.Price(ctx, s.Catalog, productID, variantID); err != nil {
		return Item{}, err
	}
	key := inventory.Key{ProductID: productID, VariantID: variantID}

	var added Item
	_, err := s.mutate(ctx, cartID, func(c *Cart) error {
		want := quantity
		idx := c.indexOfKey(key)
		if idx >= 0 {
			want += c.Items[idx].Quantity
		}
		if err := s.checkAvailable(ctx, key, want); err != nil {
			return err
		}
		if idx >= 0 {
			c.Items[idx].Quantity = want
			added = c.Items[idx]
			return nil
		}
		added = Item{ID: uuid.NewString(), ProductID: productID, VariantID: variantID, Quantity: want}
		c.Items = append(c.Items, added)
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.log().Info("cart item added",
		zap.String("cart_id", cartID), zap.String("key", key.String()), zap.Int("quantity", added.Quantity))
	return added, nil
}

// UpdateQuantity sets the quantity of a line. Zero or less removes it; a
// quantity above what is currently available is rejected, never clamped.
func (s *Service) UpdateQuantity(ctx context.Context, cartID, itemID string, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, cartID, itemID)
	}
	_, err := s.mutate(ctx, cartID, func(c *Cart) error {
		idx := c.indexOf(itemID)
		if idx < 0 {
			return apperr.NotFound(fmt.Sprintf("cart item %s not found", itemID))
		}
		if err := s.checkAvailable(ctx, c.Items[idx].Key(), quantity); err != nil {
			return err
		}
		c.Items[idx].Quantity = quantity
		return nil
	})
	return err
}

// RemoveItem drops a line. Removing a line that is not there is a no-op.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) error {
	_, err := s.mutate(ctx, cartID, func(c *Cart) error {
		if idx := c.indexOf(itemID); idx >= 0 {
			c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		}
		return nil
	})
	return err
}

func (s *Service) Clear(ctx context.Context, cartID string) error {
	return s.Store.Delete(ctx, cartID)
}

// Get returns the cart priced from the catalog as it is now.
func (s *Service) Get(ctx context.Context, cartID string) (View, error) {
	c, err := s.Store.Load(ctx, cartID)
	if err != nil {
		return View{}, fmt.Errorf("load cart %s: %w", cartID, err)
	}
	return s.Price(ctx, c)
}

// Subtotal is the sum of quantity times effective unit price, read fresh.
func (s *Service) Subtotal(ctx context.Context, cartID string) (decimal.Decimal, error) {
	v, err := s.Get(ctx, cartID)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Subtotal, nil
}

// Price prices every line of c against the current catalog.
func (s *Service) Price(ctx context.Context, c *Cart) (View, error) {
	v := View{ID: c.ID, Version: c.Version, Items: make([]PricedItem, 0, len(c.Items)), Subtotal: decimal.Zero}
	for _, it := range c.Items {
		p, price, err := catalog.Price(ctx, s.Catalog, it.ProductID, it.VariantID)
		if err != nil {
			return View{}, err
		}
		line := price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		v.Items = append(v.Items, PricedItem{
			Item:      it,
			Name:      p.DisplayName(it.VariantID),
			UnitPrice: price,
			LineTotal: line,
		})
		v.Subtotal = v.Subtotal.Add(line)
	}
	return v, nil
}

func (s *Service) checkAvailable(ctx context.Context, key inventory.Key, want int) error {
	available, err := s.Ledger.Available(ctx, key)
	if err != nil {
		return fmt.Errorf("read availability of %s: %w", key, err)
	}
	if want > available {
		return inventory.NewInsufficientError(key, want, available)
	}
	return nil
}
