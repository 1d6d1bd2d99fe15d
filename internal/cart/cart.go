package cart

import (
	"context"
	"errors"
	"time"
)

var (
	ErrValidation = errors.New("invalid cart input")
	ErrNotFound   = errors.New("cart not found")
)

// Line is one (product, variant) entry. VariantID is empty for products
// without variants; a cart holds at most one line per pair.
type Line struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Qty       int    `json:"qty"`
}

// Cart belongs to a resolved identity: an authenticated user id or the
// opaque guest session token handed in by the identity collaborator. The
// core never inspects the token.
type Cart struct {
	Identity  string    `json:"identity"`
	Lines     []Line    `json:"lines"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Cart) Empty() bool { return len(c.Lines) == 0 }

func (c Cart) Find(productID, variantID string) (Line, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID && l.VariantID == variantID {
			return l, true
		}
	}
	return Line{}, false
}

// Availability is the read-only stock view used to clamp merged quantities.
// Merging never reserves anything.
type Availability func(ctx context.Context, productID string) (int, error)

type Store interface {
	// Get returns the identity's cart; a missing cart reads as empty.
	Get(ctx context.Context, identity string) (Cart, error)

	AddItem(ctx context.Context, identity, productID, variantID string, qty int) (Cart, error)
	UpdateItem(ctx context.Context, identity, productID, variantID string, qty int) (Cart, error)
	RemoveItem(ctx context.Context, identity, productID, variantID string) (Cart, error)

	// Clear drops every line; called after successful checkout.
	Clear(ctx context.Context, identity string) error

	// MergeGuestCart folds the guest cart into the user's, summing
	// quantities per line and clamping each to current availability,
	// then deletes the guest cart.
	MergeGuestCart(ctx context.Context, guestToken, userIdentity string) (Cart, error)
}
