// This file implements the order status lifecycle as a transition table:
// Pending -> Confirmed -> Delivered, Delivered being terminal.

package services

import (
	"fmt"

	"warung/internal/core"
)

// TransitionError describes a rejected status move.
type TransitionError struct {
	From core.OrderStatus
	To   core.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return core.ErrInvalidTransition
}

// transitions maps each status to its only successor. Statuses without an
// entry are terminal.
var transitions = map[core.OrderStatus]core.OrderStatus{
	core.StatusPending:   core.StatusConfirmed,
	core.StatusConfirmed: core.StatusDelivered,
}

// NextStatus returns the successor of s, if any.
func NextStatus(s core.OrderStatus) (core.OrderStatus, bool) {
	next, ok := transitions[s]
	return next, ok
}

// CanTransition reports whether to is the immediate successor of from.
func CanTransition(from, to core.OrderStatus) bool {
	next, ok := transitions[from]
	return ok && next == to
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s core.OrderStatus) bool {
	_, ok := transitions[s]
	return s.Valid() && !ok
}

// ApplyTransition returns a copy of order moved to target. The input is never
// modified; the caller replaces its own entry with the result.
//
// It fails with core.ErrInvalidArgument for an invalid order or an unknown
// target, and with core.ErrInvalidTransition (as *TransitionError) when target
// is not the immediate successor of the current status.
func ApplyTransition(order core.Order, target core.OrderStatus) (core.Order, error) {
	if !target.Valid() {
		return core.Order{}, core.ErrInvalidStatus
	}
	if err := order.Validate(); err != nil {
		return core.Order{}, fmt.Errorf("order %q: %w", order.ID, err)
	}
	if !CanTransition(order.Status, target) {
		return core.Order{}, &TransitionError{From: order.Status, To: target}
	}
	updated := order.Clone()
	updated.Status = target
	return updated, nil
}
