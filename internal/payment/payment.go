// Package payment is the boundary to the external payment provider.
package payment

import (
	"context"
	"fmt"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
	"github.com/shopspring/decimal"
)

type Charge struct {
	// IdempotencyKey makes retried captures of the same checkout return the
	// first result.
	IdempotencyKey string
	Amount         decimal.Decimal
	Method         string
}

type Receipt struct {
	Ref    string          `json:"ref"`
	Amount decimal.Decimal `json:"amount"`
}

type Gateway interface {
	Capture(ctx context.Context, c Charge) (Receipt, error)
	// Refund is idempotent per ref.
	Refund(ctx context.Context, ref string, amount decimal.Decimal) error
}

// Declined reports a capture refused by the provider.
func Declined(reason string) error {
	return apperr.New(apperr.ErrPaymentDeclined.Code, fmt.Sprintf("payment declined: %s", reason))
}
