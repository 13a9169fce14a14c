package state

import (
	"fmt"

	"github.com/uhyunpark/decefi/pkg/program/instruction"
	"github.com/uhyunpark/decefi/pkg/program/programerr"
)

// OrderState is the lifecycle state of an order
type OrderState uint8

const (
	Waiting OrderState = iota
	Processing
	Finished
	Dispute
)

func (s OrderState) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Processing:
		return "processing"
	case Finished:
		return "finished"
	case Dispute:
		return "dispute"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

func (s OrderState) valid() bool { return s <= Dispute }

// IsTerminal returns true once the order can no longer change
func (s OrderState) IsTerminal() bool {
	return s == Finished || s == Dispute
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph:
//
//	Waiting -> Processing -> Finished
//	                      -> Dispute
func CanTransition(from, to OrderState) bool {
	switch from {
	case Waiting:
		return to == Processing
	case Processing:
		return to == Finished || to == Dispute
	default:
		return false
	}
}

// Hash is the 32-byte order identifier
type Hash = [instruction.HashLen]byte

// Order is one trade intent tracked inside an account
type Order struct {
	State    OrderState
	Hash     Hash
	PaidBack uint64 // settled so far, never decreases
	Reserved uint64 // earmarked, not yet settled
}

// NewOrder returns a Waiting order for hash
func NewOrder(hash Hash) Order {
	return Order{State: Waiting, Hash: hash}
}

// ID returns the external correlation key used by CancelOrder
func (o *Order) ID() instruction.Uint128 {
	return instruction.OrderIDFromHash(o.Hash)
}

// Transition moves the order along the lifecycle graph
func (o *Order) Transition(to OrderState) error {
	if !CanTransition(o.State, to) {
		return programerr.Wrapf(programerr.InvalidTransition, "order %x: %s -> %s", o.Hash[:4], o.State, to)
	}
	o.State = to
	return nil
}

// Settle moves amount from Reserved to PaidBack. committed is the amount the
// order was created for; PaidBack+Reserved never exceeds it.
func (o *Order) Settle(amount, committed uint64) error {
	if o.State != Processing {
		return programerr.Wrapf(programerr.InvalidTransition, "settle order in state %s", o.State)
	}
	if amount == 0 || amount > o.Reserved {
		return programerr.Wrapf(programerr.InvalidAmount, "settle %d with %d reserved", amount, o.Reserved)
	}
	paid := o.PaidBack + amount
	if paid < o.PaidBack {
		return programerr.Wrapf(programerr.InvalidAmount, "paid back overflow")
	}
	reserved := o.Reserved - amount
	if paid+reserved < paid || paid+reserved > committed {
		return programerr.Wrapf(programerr.InvalidAmount, "settled %d exceeds committed %d", paid+reserved, committed)
	}
	o.PaidBack = paid
	o.Reserved = reserved
	return nil
}
