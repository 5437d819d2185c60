package orders

import (
	"fmt"

	"github.com/adamdasovich/goldventure-sub001/internal/apperr"
)

// TransitionError is returned for a move the state table does not allow.
// Current lets the caller resynchronize.
type TransitionError struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Reason  string `json:"reason,omitempty"`
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("order %s: %s (status %s)", e.OrderID, e.Reason, e.From)
	}
	return fmt.Sprintf("order %s: illegal transition %s -> %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return apperr.ErrIllegalTransition }

// ConflictError is returned when the order moved past the version the
// caller read.
type ConflictError struct {
	OrderID  string `json:"order_id"`
	Expected int64  `json:"expected_version"`
	Current  int64  `json:"current_version"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order %s: version conflict (expected %d, current %d)", e.OrderID, e.Expected, e.Current)
}

func (e *ConflictError) Unwrap() error { return apperr.ErrVersionConflict }

func notFound(id string) error {
	return apperr.NotFound(fmt.Sprintf("order %s not found", id))
}
