// Package instruction implements the versioned instruction wire format.
//
//	byte 0      version (always 0)
//	bytes 1..5  u32 discriminant, little-endian
//	bytes 5..   payload, fixed length per discriminant
//
// Decoding never allocates account state and never panics: anything that is
// not exactly one of the known shapes is rejected before the processor touches
// an account.
package instruction

import (
	"encoding/binary"
	"fmt"
)

const (
	Version = 0

	// MaxLen caps the raw instruction size.
	MaxLen    = 512
	headerLen = 5

	amountLen      = 8
	newOrderLen    = 256
	cancelOrderLen = 25

	// HashLen is the meaningful prefix of a NewOrder payload.
	HashLen = 32
)

// Tag is the discriminant selecting a variant.
type Tag uint32

const (
	TagDeposit Tag = iota
	TagWithdraw
	TagNewOrder
	TagCancelOrder
)

func (t Tag) String() string {
	switch t {
	case TagDeposit:
		return "deposit"
	case TagWithdraw:
		return "withdraw"
	case TagNewOrder:
		return "new_order"
	case TagCancelOrder:
		return "cancel_order"
	default:
		return fmt.Sprintf("tag(%d)", uint32(t))
	}
}

// payloadLen returns the exact payload size for t, or -1 if t is unknown.
func (t Tag) payloadLen() int {
	switch t {
	case TagDeposit, TagWithdraw:
		return amountLen
	case TagNewOrder:
		return newOrderLen
	case TagCancelOrder:
		return cancelOrderLen
	default:
		return -1
	}
}

// Instruction is one of Deposit, Withdraw, NewOrder or CancelOrder.
type Instruction interface {
	Tag() Tag
	putPayload(dst []byte)
}

// Uint128 is a little-endian 128-bit integer split in two words.
type Uint128 struct {
	Lo, Hi uint64
}

func (u Uint128) IsZero() bool { return u.Lo == 0 && u.Hi == 0 }

func (u Uint128) String() string {
	if u.Hi == 0 {
		return fmt.Sprintf("%#x", u.Lo)
	}
	return fmt.Sprintf("%#x%016x", u.Hi, u.Lo)
}

// Uint128FromBytes reads 16 little-endian bytes.
func Uint128FromBytes(b []byte) Uint128 {
	return Uint128{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}
}

// PutBytes writes u as 16 little-endian bytes.
func (u Uint128) PutBytes(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], u.Lo)
	binary.LittleEndian.PutUint64(b[8:16], u.Hi)
}

// OrderIDFromHash derives the external correlation key of an order: the first
// 16 bytes of its hash read as a little-endian u128.
func OrderIDFromHash(hash [HashLen]byte) Uint128 {
	return Uint128FromBytes(hash[:16])
}

type Deposit struct {
	Amount uint64
}

func (Deposit) Tag() Tag { return TagDeposit }
func (d Deposit) putPayload(dst []byte) {
	binary.LittleEndian.PutUint64(dst, d.Amount)
}

type Withdraw struct {
	Amount uint64
}

func (Withdraw) Tag() Tag { return TagWithdraw }
func (w Withdraw) putPayload(dst []byte) {
	binary.LittleEndian.PutUint64(dst, w.Amount)
}

// NewOrder carries a 256-byte payload. Only the first HashLen bytes are the
// order hash; the tail is reserved and travels verbatim.
type NewOrder struct {
	Payload [newOrderLen]byte
}

// NewOrderWithHash builds a NewOrder whose reserved tail is zero.
func NewOrderWithHash(hash [HashLen]byte) NewOrder {
	var n NewOrder
	copy(n.Payload[:], hash[:])
	return n
}

func (NewOrder) Tag() Tag { return TagNewOrder }
func (n NewOrder) putPayload(dst []byte) {
	copy(dst, n.Payload[:])
}

// Hash returns the order hash carried by the instruction.
func (n NewOrder) Hash() [HashLen]byte {
	var h [HashLen]byte
	copy(h[:], n.Payload[:HashLen])
	return h
}

// CancelOrder identifies an order by its correlation id. Owner must match the
// account found at OwnerSlot in the instruction's account list.
type CancelOrder struct {
	OrderID   Uint128
	Owner     uint64
	OwnerSlot uint8
}

func (CancelOrder) Tag() Tag { return TagCancelOrder }
func (c CancelOrder) putPayload(dst []byte) {
	c.OrderID.PutBytes(dst[0:16])
	binary.LittleEndian.PutUint64(dst[16:24], c.Owner)
	dst[24] = c.OwnerSlot
}

// Encode packs ix into its versioned wire form.
func Encode(ix Instruction) []byte {
	n := ix.Tag().payloadLen()
	out := make([]byte, headerLen+n)
	out[0] = Version
	binary.LittleEndian.PutUint32(out[1:headerLen], uint32(ix.Tag()))
	ix.putPayload(out[headerLen:])
	return out
}

// Kind reads the discriminant of a well-framed instruction without decoding
// the payload.
func Kind(raw []byte) (Tag, bool) {
	if len(raw) < headerLen || len(raw) > MaxLen || raw[0] != Version {
		return 0, false
	}
	t := Tag(binary.LittleEndian.Uint32(raw[1:headerLen]))
	if t.payloadLen() < 0 {
		return 0, false
	}
	return t, true
}

// Decode unpacks raw. The second result is false when raw is not exactly one
// valid instruction.
func Decode(raw []byte) (Instruction, bool) {
	tag, ok := Kind(raw)
	if !ok {
		return nil, false
	}
	data := raw[headerLen:]
	if len(data) != tag.payloadLen() {
		return nil, false
	}

	switch tag {
	case TagDeposit:
		amount := binary.LittleEndian.Uint64(data)
		if amount == 0 {
			return nil, false
		}
		return Deposit{Amount: amount}, true
	case TagWithdraw:
		amount := binary.LittleEndian.Uint64(data)
		if amount == 0 {
			return nil, false
		}
		return Withdraw{Amount: amount}, true
	case TagNewOrder:
		var n NewOrder
		copy(n.Payload[:], data)
		return n, true
	case TagCancelOrder:
		return CancelOrder{
			OrderID:   Uint128FromBytes(data[0:16]),
			Owner:     binary.LittleEndian.Uint64(data[16:24]),
			OwnerSlot: data[24],
		}, true
	}
	return nil, false
}
