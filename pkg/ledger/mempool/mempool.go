package mempool

import (
	"sync"

	"github.com/uhyunpark/decefi/pkg/program/instruction"
)

// TxType classifies pending transactions into drain buckets
type TxType int

const (
	TxNonOrder TxType = iota // deposit, withdraw
	TxCancel
	TxNewOrder
)

func (t TxType) String() string {
	switch t {
	case TxNonOrder:
		return "non_order"
	case TxCancel:
		return "cancel"
	default:
		return "new_order"
	}
}

// ClassifyRaw classifies by instruction discriminant. Bytes that are not a
// recognisable instruction go to the new-order bucket; the program rejects
// them when the slot executes.
func ClassifyRaw(data []byte) TxType {
	tag, ok := instruction.Kind(data)
	if !ok {
		return TxNewOrder
	}
	switch tag {
	case instruction.TagDeposit, instruction.TagWithdraw:
		return TxNonOrder
	case instruction.TagCancelOrder:
		return TxCancel
	default:
		return TxNewOrder
	}
}

type entry[T any] struct {
	tx   T
	size int64
}

// Mempool maintains three FIFO queues drained in a fixed order:
// (1) non-order, (2) cancel, (3) new orders.
// Cancels therefore run before orders admitted in the same slot.
type Mempool[T any] struct {
	mu       sync.Mutex
	nonOrder []entry[T]
	cancel   []entry[T]
	orders   []entry[T]
}

func New[T any]() *Mempool[T] {
	return &Mempool[T]{}
}

// Push classifies tx by its instruction data and enqueues it. size is the
// weight charged against the slot byte budget.
func (m *Mempool[T]) Push(data []byte, size int, tx T) TxType {
	typ := ClassifyRaw(data)
	e := entry[T]{tx: tx, size: int64(size)}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch typ {
	case TxNonOrder:
		m.nonOrder = append(m.nonOrder, e)
	case TxCancel:
		m.cancel = append(m.cancel, e)
	default:
		m.orders = append(m.orders, e)
	}
	return typ
}

// PushFront enqueues tx at the head of its bucket. It is used to return
// selected transactions that were not executed.
func (m *Mempool[T]) PushFront(data []byte, size int, tx T) TxType {
	typ := ClassifyRaw(data)
	e := entry[T]{tx: tx, size: int64(size)}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch typ {
	case TxNonOrder:
		m.nonOrder = append([]entry[T]{e}, m.nonOrder...)
	case TxCancel:
		m.cancel = append([]entry[T]{e}, m.cancel...)
	default:
		m.orders = append([]entry[T]{e}, m.orders...)
	}
	return typ
}

// SelectForSlot removes and returns up to maxBytes worth of transactions in
// drain order. maxBytes <= 0 drains everything. A queue stops at the first
// entry that does not fit so FIFO order within a bucket holds.
func (m *Mempool[T]) SelectForSlot(maxBytes int64) []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []T
	var used int64

	pull := func(q *[]entry[T]) {
		for len(*q) > 0 {
			e := (*q)[0]
			if maxBytes > 0 && used+e.size > maxBytes {
				return
			}
			out = append(out, e.tx)
			used += e.size
			*q = (*q)[1:]
		}
	}

	pull(&m.nonOrder)
	pull(&m.cancel)
	pull(&m.orders)

	return out
}

// Len returns total pending txs
func (m *Mempool[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nonOrder) + len(m.cancel) + len(m.orders)
}
