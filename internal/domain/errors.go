package domain

import "errors"

var (
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrDuplicateIdentity      = errors.New("identity already exists")
	ErrWeakCredential         = errors.New("password must be at least 6 characters")
	ErrUnauthorized           = errors.New("not authorized for this action")
	ErrNotFound               = errors.New("not found")
	ErrOrderTransactionFailed = errors.New("order transaction failed")

	ErrEmptyCart         = errors.New("cart is empty, nothing to checkout")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidPromoCode  = errors.New("invalid promo code")
	ErrInvalidInput      = errors.New("invalid input")
)

// Describe returns the user-facing text for the failure class of err.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrDuplicateIdentity):
		return "An account with this email already exists"
	case errors.Is(err, ErrWeakCredential):
		return "Password must be at least 6 characters"
	case errors.Is(err, ErrUnauthorized):
		return "You are not allowed to do that"
	case errors.Is(err, ErrNotFound):
		return "Item not found"
	case errors.Is(err, ErrEmptyCart):
		return "Your cart is empty"
	case errors.Is(err, ErrInsufficientStock):
		return "Not enough stock for this order"
	case errors.Is(err, ErrOrderTransactionFailed):
		return "Order could not be placed, nothing was charged"
	case errors.Is(err, ErrInvalidPromoCode):
		return "Invalid Code"
	case errors.Is(err, ErrInvalidInput):
		return "Please check the form and try again"
	default:
		return "Something went wrong, please try again"
	}
}
