package state

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cockroachdb/errors"
	"pgregory.net/rapid"

	"github.com/uhyunpark/decefi/pkg/program/programerr"
)

func hashOf(b byte) Hash {
	var h Hash
	h[0] = b
	h[31] = 0xEE
	return h
}

func TestCreateOrderUniqueness(t *testing.T) {
	var acc Account

	if err := acc.CreateOrder(NewOrder(hashOf(1))); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := acc.CreateOrder(NewOrder(hashOf(1)))
	if !errors.Is(err, programerr.InvalidHash) {
		t.Fatalf("duplicate create = %v, want InvalidHash", err)
	}
	if acc.Orders.Len() != 1 {
		t.Errorf("orders = %d, want 1", acc.Orders.Len())
	}
}

func TestCreateOrderRejects(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		want  programerr.Code
	}{
		{"zero hash", Order{State: Waiting}, programerr.InvalidHash},
		{"not waiting", Order{State: Processing, Hash: hashOf(2)}, programerr.InvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var acc Account
			err := acc.CreateOrder(tt.order)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateOrder = %v, want %s", err, tt.want)
			}
			if acc.Orders.Len() != 0 {
				t.Errorf("orders = %d, want 0", acc.Orders.Len())
			}
		})
	}
}

func TestCreateOrderCapacity(t *testing.T) {
	var acc Account
	for i := 0; i < MaxOrders; i++ {
		if err := acc.CreateOrder(NewOrder(hashOf(byte(i + 1)))); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	err := acc.CreateOrder(NewOrder(hashOf(0xF0)))
	if !errors.Is(err, programerr.WrongInput) {
		t.Errorf("create past capacity = %v, want WrongInput", err)
	}
}

func TestCancelOrderKeepsArrivalOrder(t *testing.T) {
	var acc Account
	for _, b := range []byte{1, 2, 3, 4} {
		if err := acc.CreateOrder(NewOrder(hashOf(b))); err != nil {
			t.Fatal(err)
		}
	}

	wantHash := hashOf(2)
	target := NewOrder(wantHash)
	removed, err := acc.CancelOrder(target.ID())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if removed.Hash != wantHash {
		t.Errorf("removed %x, want %x", removed.Hash[:1], wantHash[:1])
	}

	want := []byte{1, 3, 4}
	got := acc.Orders.All()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, b := range want {
		if got[i].Hash != hashOf(b) {
			t.Errorf("order[%d] = %x, want %x", i, got[i].Hash[:1], b)
		}
	}
}

func TestCancelOrderNotFound(t *testing.T) {
	var acc Account
	o := NewOrder(hashOf(9))
	_, err := acc.CancelOrder(o.ID())
	if !errors.Is(err, programerr.NoTrade) {
		t.Errorf("cancel missing = %v, want NoTrade", err)
	}
}

func TestCancelOrderInProcessing(t *testing.T) {
	var acc Account
	h := hashOf(5)
	if err := acc.CreateOrder(NewOrder(h)); err != nil {
		t.Fatal(err)
	}
	if err := acc.UpdateOrderState(h, Processing); err != nil {
		t.Fatal(err)
	}
	o := NewOrder(h)
	if _, err := acc.CancelOrder(o.ID()); !errors.Is(err, programerr.InvalidTransition) {
		t.Errorf("cancel processing = %v, want InvalidTransition", err)
	}
	if acc.Orders.Len() != 1 {
		t.Errorf("orders = %d, want 1", acc.Orders.Len())
	}
}

func TestTransitions(t *testing.T) {
	states := []OrderState{Waiting, Processing, Finished, Dispute}
	legal := map[[2]OrderState]bool{
		{Waiting, Processing}:  true,
		{Processing, Finished}: true,
		{Processing, Dispute}:  true,
	}
	for _, from := range states {
		for _, to := range states {
			o := Order{State: from, Hash: hashOf(1)}
			err := o.Transition(to)
			if legal[[2]OrderState{from, to}] {
				if err != nil {
					t.Errorf("%s -> %s: %v", from, to, err)
				}
				continue
			}
			if !errors.Is(err, programerr.InvalidTransition) {
				t.Errorf("%s -> %s = %v, want InvalidTransition", from, to, err)
			}
			if o.State != from {
				t.Errorf("%s -> %s changed state to %s", from, to, o.State)
			}
		}
	}
}

func TestWaitingToFinishedRejected(t *testing.T) {
	var acc Account
	h := hashOf(3)
	if err := acc.CreateOrder(NewOrder(h)); err != nil {
		t.Fatal(err)
	}
	if err := acc.UpdateOrderState(h, Finished); !errors.Is(err, programerr.InvalidTransition) {
		t.Errorf("Waiting -> Finished = %v, want InvalidTransition", err)
	}
}

func TestSettle(t *testing.T) {
	o := Order{State: Processing, Hash: hashOf(1), Reserved: 100}
	if err := o.Settle(40, 100); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if o.PaidBack != 40 || o.Reserved != 60 {
		t.Errorf("paid=%d reserved=%d, want 40/60", o.PaidBack, o.Reserved)
	}
	if err := o.Settle(61, 100); !errors.Is(err, programerr.InvalidAmount) {
		t.Errorf("over-settle = %v, want InvalidAmount", err)
	}
	if err := o.Settle(10, 90); !errors.Is(err, programerr.InvalidAmount) {
		t.Errorf("settle past committed = %v, want InvalidAmount", err)
	}

	w := Order{State: Waiting, Hash: hashOf(1), Reserved: 10}
	if err := w.Settle(1, 10); !errors.Is(err, programerr.InvalidTransition) {
		t.Errorf("settle waiting = %v, want InvalidTransition", err)
	}
}

func TestDepositWithdraw(t *testing.T) {
	var acc Account
	if err := acc.Deposit(100); err != nil {
		t.Fatal(err)
	}
	if err := acc.Withdraw(30); err != nil {
		t.Fatal(err)
	}
	if acc.Reserved != 70 {
		t.Errorf("reserved = %d, want 70", acc.Reserved)
	}
	if err := acc.Withdraw(71); !errors.Is(err, programerr.InvalidAmount) {
		t.Errorf("overdraw = %v, want InvalidAmount", err)
	}
	acc.Reserved = ^uint64(0)
	if err := acc.Deposit(1); !errors.Is(err, programerr.InvalidAmount) {
		t.Errorf("overflow = %v, want InvalidAmount", err)
	}
}

func TestZeroBufferIsEmptyAccount(t *testing.T) {
	acc, err := Unpack(make([]byte, AccountSize))
	if err != nil {
		t.Fatalf("Unpack(zero): %v", err)
	}
	if acc.Orders.Len() != 0 || acc.Reserved != 0 {
		t.Errorf("zero account = %+v", acc)
	}
}

func TestPackIntoSize(t *testing.T) {
	var acc Account
	if err := acc.CreateOrder(NewOrder(hashOf(1))); err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, AccountSize - 1, AccountSize + 1} {
		buf := bytes.Repeat([]byte{0xAA}, n)
		if err := acc.PackInto(buf); !errors.Is(err, programerr.DeserializationFailed) {
			t.Errorf("PackInto(%d bytes) = %v, want DeserializationFailed", n, err)
		}
		if !bytes.Equal(buf, bytes.Repeat([]byte{0xAA}, n)) {
			t.Errorf("PackInto(%d bytes) wrote into a rejected buffer", n)
		}
	}
	if got := len(acc.Pack()); got != AccountSize {
		t.Errorf("len(Pack()) = %d, want %d", got, AccountSize)
	}
}

func TestUnpackRejects(t *testing.T) {
	valid := func() []byte {
		var acc Account
		_ = acc.CreateOrder(NewOrder(hashOf(1)))
		_ = acc.CreateOrder(NewOrder(hashOf(2)))
		return acc.Pack()
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"short", func(b []byte) []byte { return b[:len(b)-1] }},
		{"long", func(b []byte) []byte { return append(b, 0) }},
		{"count too big", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[8:12], MaxOrders+1)
			return b
		}},
		{"bad state", func(b []byte) []byte { b[headerSize] = 7; return b }},
		{"zero hash", func(b []byte) []byte {
			clear(b[headerSize+1 : headerSize+33])
			return b
		}},
		{"duplicate hash", func(b []byte) []byte {
			copy(b[headerSize+OrderSize+1:headerSize+OrderSize+33], b[headerSize+1:headerSize+33])
			return b
		}},
		{"dirty unused slot", func(b []byte) []byte { b[len(b)-1] = 1; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unpack(tt.mutate(valid()))
			if !errors.Is(err, programerr.DeserializationFailed) {
				t.Errorf("Unpack = %v, want DeserializationFailed", err)
			}
		})
	}
}

func TestPackUnpackProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var acc Account
		acc.Reserved = rapid.Uint64().Draw(t, "reserved")
		n := rapid.IntRange(0, MaxOrders).Draw(t, "n")
		for i := 0; i < n; i++ {
			h := hashOf(byte(i + 1))
			h[1] = rapid.Byte().Draw(t, "salt")
			o := Order{
				Hash:     h,
				PaidBack: rapid.Uint64().Draw(t, "paid"),
				Reserved: rapid.Uint64().Draw(t, "res"),
			}
			if err := acc.CreateOrder(o); err != nil {
				t.Fatalf("create: %v", err)
			}
			acc.Orders.At(i).State = OrderState(rapid.IntRange(0, 3).Draw(t, "state"))
		}

		buf := acc.Pack()
		if len(buf) != AccountSize {
			t.Fatalf("packed %d bytes, want %d", len(buf), AccountSize)
		}
		got, err := Unpack(buf)
		if err != nil {
			t.Fatalf("Unpack: %v", err)
		}
		if *got != acc {
			t.Fatalf("round trip mismatch")
		}
		if !bytes.Equal(got.Pack(), buf) {
			t.Fatalf("repack differs")
		}
	})
}
