// Package state defines the order lifecycle and the per-account order
// collection stored in a ledger account's data buffer.
package state

import (
	"github.com/uhyunpark/decefi/pkg/program/instruction"
	"github.com/uhyunpark/decefi/pkg/program/programerr"
)

// MaxOrders is the number of order slots in one account
const MaxOrders = 32

// AccountOrders is an insertion-ordered, fixed-capacity set of orders keyed
// by hash. Slots [0, n) are in use, oldest first.
type AccountOrders struct {
	slots [MaxOrders]Order
	n     int
}

// Len returns the number of orders
func (ao *AccountOrders) Len() int { return ao.n }

// All returns the orders oldest first. The slice aliases the collection.
func (ao *AccountOrders) All() []Order { return ao.slots[:ao.n] }

// At returns the i-th oldest order
func (ao *AccountOrders) At(i int) *Order { return &ao.slots[i] }

// Find returns the index of the order with hash, or -1
func (ao *AccountOrders) Find(hash Hash) int {
	for i := 0; i < ao.n; i++ {
		if ao.slots[i].Hash == hash {
			return i
		}
	}
	return -1
}

// FindByID returns the index of the oldest order whose correlation id is id, or -1
func (ao *AccountOrders) FindByID(id instruction.Uint128) int {
	for i := 0; i < ao.n; i++ {
		if ao.slots[i].ID() == id {
			return i
		}
	}
	return -1
}

func (ao *AccountOrders) push(o Order) {
	ao.slots[ao.n] = o
	ao.n++
}

// Remove deletes slot i, shifting younger orders down so arrival order holds
func (ao *AccountOrders) Remove(i int) Order {
	removed := ao.slots[i]
	copy(ao.slots[i:ao.n], ao.slots[i+1:ao.n])
	ao.n--
	ao.slots[ao.n] = Order{}
	return removed
}

// Account is the aggregate encoded in one ledger account
type Account struct {
	Orders   AccountOrders
	Reserved uint64 // protocol bookkeeping counter moved by Deposit/Withdraw
}

// CreateOrder appends order when its hash is new and non-zero, it is Waiting,
// and a slot is free. The account is unchanged on failure.
func (a *Account) CreateOrder(order Order) error {
	if order.Hash == (Hash{}) {
		return programerr.Wrapf(programerr.InvalidHash, "zero order hash")
	}
	if order.State != Waiting {
		return programerr.Wrapf(programerr.InvalidTransition, "new order in state %s", order.State)
	}
	if a.Orders.Find(order.Hash) >= 0 {
		return programerr.Wrapf(programerr.InvalidHash, "duplicate order %x", order.Hash[:8])
	}
	if a.Orders.Len() == MaxOrders {
		return programerr.Wrapf(programerr.WrongInput, "account holds %d orders", MaxOrders)
	}
	a.Orders.push(order)
	return nil
}

// CancelOrder removes the oldest order with correlation id. A missing order is
// NoTrade; an order already taken up by matching is InvalidTransition.
func (a *Account) CancelOrder(id instruction.Uint128) (Order, error) {
	i := a.Orders.FindByID(id)
	if i < 0 {
		return Order{}, programerr.Wrapf(programerr.NoTrade, "order %s not found", id)
	}
	if st := a.Orders.At(i).State; st != Waiting {
		return Order{}, programerr.Wrapf(programerr.InvalidTransition, "cancel order %s in state %s", id, st)
	}
	return a.Orders.Remove(i), nil
}

// UpdateOrderState applies a lifecycle transition to the order with hash
func (a *Account) UpdateOrderState(hash Hash, to OrderState) error {
	i := a.Orders.Find(hash)
	if i < 0 {
		return programerr.Wrapf(programerr.NoTrade, "order %x not found", hash[:8])
	}
	return a.Orders.At(i).Transition(to)
}

// Deposit credits the reserved counter
func (a *Account) Deposit(amount uint64) error {
	if amount == 0 {
		return programerr.Wrapf(programerr.InvalidAmount, "zero deposit")
	}
	sum := a.Reserved + amount
	if sum < a.Reserved {
		return programerr.Wrapf(programerr.InvalidAmount, "deposit %d overflows %d", amount, a.Reserved)
	}
	a.Reserved = sum
	return nil
}

// Withdraw debits the reserved counter
func (a *Account) Withdraw(amount uint64) error {
	if amount == 0 {
		return programerr.Wrapf(programerr.InvalidAmount, "zero withdraw")
	}
	if amount > a.Reserved {
		return programerr.Wrapf(programerr.InvalidAmount, "withdraw %d with %d reserved", amount, a.Reserved)
	}
	a.Reserved -= amount
	return nil
}
