package watchlist

import (
	"fmt"

	"stockwatch/internal/models"
)

// InvalidStateError reports a client-side precondition violation, such as a
// second mutation for a symbol that already has one in flight. No request is
// sent when it is returned.
type InvalidStateError struct {
	Symbol  string
	Pending models.Operation
	Reason  string
}

// Error implements the error interface
func (e *InvalidStateError) Error() string {
	if e.Pending != "" {
		return fmt.Sprintf("%s: another operation is in progress (%s)", e.Symbol, e.Pending)
	}
	if e.Symbol == "" {
		return fmt.Sprintf("invalid state: %s", e.Reason)
	}
	return fmt.Sprintf("%s: invalid state: %s", e.Symbol, e.Reason)
}
