package checkout

import "fmt"

type Kind string

const (
	KindValidation            Kind = "VALIDATION"
	KindEmptyCart             Kind = "EMPTY_CART"
	KindProductUnavailable    Kind = "PRODUCT_UNAVAILABLE"
	KindInsufficientInventory Kind = "INSUFFICIENT_INVENTORY"
	KindPaymentProcessing     Kind = "PAYMENT_PROCESSING"
)

// Error is surfaced synchronously to the checkout caller with the kind and,
// where it applies, the offending product.
type Error struct {
	Kind      Kind
	ProductID string
	Err       error
}

func (e *Error) Error() string {
	if e.ProductID != "" {
		return fmt.Sprintf("checkout failed (%s, product %s): %v", e.Kind, e.ProductID, e.Err)
	}
	return fmt.Sprintf("checkout failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func failf(kind Kind, productID, format string, args ...any) *Error {
	return &Error{Kind: kind, ProductID: productID, Err: fmt.Errorf(format, args...)}
}
