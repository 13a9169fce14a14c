package programerr

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestCodeOrdinals(t *testing.T) {
	tests := []struct {
		code Code
		want uint32
	}{
		{InvalidHash, 0},
		{InvalidAmount, 1},
		{CanceledByOracle, 2},
		{DeserializationFailed, 3},
		{NoPermission, 4},
		{NoTrade, 5},
		{WrongInput, 6},
		{BorrowError, 7},
		{AssertionError, 8},
		{InvalidTransition, 9},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			if got := Encode(tt.code); got != tt.want {
				t.Errorf("Encode(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestWrapfKeepsCode(t *testing.T) {
	err := Wrapf(NoTrade, "order %d not found", 7)
	if !errors.Is(err, NoTrade) {
		t.Fatalf("errors.Is(%v, NoTrade) = false", err)
	}
	if errors.Is(err, NoPermission) {
		t.Errorf("errors.Is(%v, NoPermission) = true", err)
	}

	wrapped := fmt.Errorf("cancel: %w", err)
	if got := Encode(wrapped); got != uint32(NoTrade) {
		t.Errorf("Encode(wrapped) = %d, want %d", got, NoTrade)
	}
}

func TestAssertionPacking(t *testing.T) {
	a := &Assertion{Unit: UnitProcessor, Line: 123}
	if got, want := a.Pack(), uint32(0x0200007B); got != want {
		t.Errorf("Pack() = %#x, want %#x", got, want)
	}

	// Lines wider than 24 bits are truncated, never spill into the unit byte.
	a = &Assertion{Unit: UnitState, Line: 0x01ABCDEF}
	if got, want := a.Pack(), uint32(0x01ABCDEF); got != want {
		t.Errorf("Pack() = %#x, want %#x", got, want)
	}
}

func TestAssert(t *testing.T) {
	if err := Assert(true, UnitState); err != nil {
		t.Fatalf("Assert(true) = %v, want nil", err)
	}

	err := Assert(false, UnitState)
	if err == nil {
		t.Fatal("Assert(false) = nil")
	}
	code := Encode(err)
	if unit := code >> 24; unit != uint32(UnitState) {
		t.Errorf("unit = %d, want %d", unit, UnitState)
	}
	if line := code & lineMask; line == 0 {
		t.Error("line = 0, want caller line")
	}
}

func TestEncodeUnknownError(t *testing.T) {
	if got := Encode(errors.New("boom")); got != uint32(AssertionError) {
		t.Errorf("Encode(plain) = %d, want %d", got, AssertionError)
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(uint32(NoPermission)); got != "NoPermission" {
		t.Errorf("Describe(4) = %q", got)
	}
	if got := Describe(0x02000010); got != "AssertionError(processor:16)" {
		t.Errorf("Describe(0x02000010) = %q", got)
	}
	if got := Describe(42); got != "Code(42)" {
		t.Errorf("Describe(42) = %q", got)
	}
}
