// settlement/errors.go
package settlement

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation covers requests that can never succeed as sent
	ErrValidation = errors.New("invalid settlement request")

	// ErrInvoiceNotFound means the invoice to settle does not exist
	ErrInvoiceNotFound = errors.New("invoice not found")
)

// IncompleteError means the credit memo was created but the payment was not.
// The credit memo is left in place and must be reconciled by hand.
type IncompleteError struct {
	CreditMemoID string
	Err          error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf(
		"settlement incomplete: credit memo %s was created but the payment failed (%v); credit memo %s must be reconciled manually",
		e.CreditMemoID, e.Err, e.CreditMemoID)
}

func (e *IncompleteError) Unwrap() error {
	return e.Err
}
