package state

import (
	"encoding/binary"

	"github.com/uhyunpark/decefi/pkg/program/programerr"
)

// Account layout, little-endian:
//
//	reserved  u64
//	count     u32
//	orders    MaxOrders x (state u8 | hash [32] | paid_back u64 | reserved u64)
//
// Unused order slots are all zero, so a zeroed buffer is an empty account.
const (
	OrderSize   = 1 + 32 + 8 + 8
	headerSize  = 8 + 4
	AccountSize = headerSize + MaxOrders*OrderSize
)

// Unpack decodes an account buffer. Any layout mismatch is DeserializationFailed.
func Unpack(buf []byte) (*Account, error) {
	if len(buf) != AccountSize {
		return nil, programerr.Wrapf(programerr.DeserializationFailed, "account size %d, want %d", len(buf), AccountSize)
	}
	acc := &Account{Reserved: binary.LittleEndian.Uint64(buf[0:8])}
	count := binary.LittleEndian.Uint32(buf[8:12])
	if count > MaxOrders {
		return nil, programerr.Wrapf(programerr.DeserializationFailed, "order count %d exceeds %d", count, MaxOrders)
	}

	for i := 0; i < MaxOrders; i++ {
		rec := buf[headerSize+i*OrderSize : headerSize+(i+1)*OrderSize]
		if i >= int(count) {
			if !allZero(rec) {
				return nil, programerr.Wrapf(programerr.DeserializationFailed, "unused order slot %d not empty", i)
			}
			continue
		}
		o := Order{State: OrderState(rec[0])}
		if !o.State.valid() {
			return nil, programerr.Wrapf(programerr.DeserializationFailed, "slot %d: bad state %d", i, rec[0])
		}
		copy(o.Hash[:], rec[1:33])
		o.PaidBack = binary.LittleEndian.Uint64(rec[33:41])
		o.Reserved = binary.LittleEndian.Uint64(rec[41:49])
		if o.Hash == (Hash{}) {
			return nil, programerr.Wrapf(programerr.DeserializationFailed, "slot %d: zero hash", i)
		}
		if acc.Orders.Find(o.Hash) >= 0 {
			return nil, programerr.Wrapf(programerr.DeserializationFailed, "slot %d: duplicate hash", i)
		}
		acc.Orders.push(o)
	}
	return acc, nil
}

// PackInto writes the account into buf, which must be exactly AccountSize bytes
func (a *Account) PackInto(buf []byte) error {
	if len(buf) != AccountSize {
		return programerr.Wrapf(programerr.DeserializationFailed, "account size %d, want %d", len(buf), AccountSize)
	}
	binary.LittleEndian.PutUint64(buf[0:8], a.Reserved)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(a.Orders.Len()))
	for i := 0; i < MaxOrders; i++ {
		rec := buf[headerSize+i*OrderSize : headerSize+(i+1)*OrderSize]
		if i >= a.Orders.Len() {
			clear(rec)
			continue
		}
		o := a.Orders.At(i)
		rec[0] = byte(o.State)
		copy(rec[1:33], o.Hash[:])
		binary.LittleEndian.PutUint64(rec[33:41], o.PaidBack)
		binary.LittleEndian.PutUint64(rec[41:49], o.Reserved)
	}
	return nil
}

// Pack returns a fresh AccountSize buffer holding a
func (a *Account) Pack() []byte {
	buf := make([]byte, AccountSize)
	if err := a.PackInto(buf); err != nil {
		// only a wrong buffer size fails, and buf is sized here
		panic(err)
	}
	return buf
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
