package service

import (
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/seating"
)

var (
	// ErrInvalidTicketCount is returned when an order asks for fewer than one ticket.
	ErrInvalidTicketCount = errors.New("ticket count must be a positive integer")
	// ErrInvalidStatus is returned when CancelOrder is given a non-cancellation status.
	ErrInvalidStatus = errors.New("status is not a cancellation status")
	// ErrStoreFailure marks failures of the underlying store that are not
	// business-rule violations. The store's own error stays in the chain.
	ErrStoreFailure = errors.New("order store failure")
)

// classify adds op context and tags anything that is not a business-rule
// error, a conflict or an argument error as ErrStoreFailure.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, seating.ErrCapacity),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, ErrInvalidTicketCount),
		errors.Is(err, ErrInvalidStatus):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
	}
}
