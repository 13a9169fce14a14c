// Package programerr folds program failures into the single u32 code the host
// runtime understands.
//
// Two shapes exist. Categorised errors carry a Code whose ordinal is the wire
// value. Assertion errors carry the logical source unit and line that raised
// them and are packed as unit<<24 | line.
package programerr

import (
	"fmt"
	"runtime"

	"github.com/cockroachdb/errors"
)

// CodeTableVersion identifies the Code ordinal table below. Ordinals are only
// ever appended.
const CodeTableVersion = 1

// Code is a categorised program error. The zero value is InvalidHash, so a
// Code is never used to signal success.
type Code uint32

const (
	InvalidHash Code = iota
	InvalidAmount
	CanceledByOracle
	DeserializationFailed
	NoPermission
	NoTrade
	WrongInput
	BorrowError
	AssertionError
	InvalidTransition
)

var codeNames = [...]string{
	InvalidHash:           "InvalidHash",
	InvalidAmount:         "InvalidAmount",
	CanceledByOracle:      "CanceledByOracle",
	DeserializationFailed: "DeserializationFailed",
	NoPermission:          "NoPermission",
	NoTrade:               "NoTrade",
	WrongInput:            "WrongInput",
	BorrowError:           "BorrowError",
	AssertionError:        "AssertionError",
	InvalidTransition:     "InvalidTransition",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", uint32(c))
}

// Error makes a Code usable as a sentinel: errors.Is(err, programerr.NoTrade).
func (c Code) Error() string { return c.String() }

// Wrapf attaches context to a categorised error while keeping the Code
// reachable through errors.As and errors.Is.
func Wrapf(code Code, format string, args ...interface{}) error {
	return errors.Wrapf(code, format, args...)
}

// SourceUnit names the logical part of the program an assertion came from.
type SourceUnit uint8

const (
	UnitState     SourceUnit = 1
	UnitProcessor SourceUnit = 2
)

func (u SourceUnit) String() string {
	switch u {
	case UnitState:
		return "state"
	case UnitProcessor:
		return "processor"
	default:
		return fmt.Sprintf("unit(%d)", uint8(u))
	}
}

const lineMask = 0x00FFFFFF

// Assertion is an internal invariant violation.
type Assertion struct {
	Unit SourceUnit
	Line uint32
}

func (a *Assertion) Error() string {
	return fmt.Sprintf("assertion failed in %s at line %d", a.Unit, a.Line)
}

// Pack returns the bit-packed code: bits 24..31 unit, bits 0..23 line.
func (a *Assertion) Pack() uint32 {
	return uint32(a.Unit)<<24 | a.Line&lineMask
}

// Assert returns nil when cond holds and an Assertion pointing at the caller's
// line otherwise.
func Assert(cond bool, unit SourceUnit) error {
	if cond {
		return nil
	}
	_, _, line, _ := runtime.Caller(1)
	return errors.WithStack(&Assertion{Unit: unit, Line: uint32(line)})
}

// Encode folds err into the host-visible code. Errors that carry neither an
// Assertion nor a Code report AssertionError.
func Encode(err error) uint32 {
	if err == nil {
		return 0
	}
	var a *Assertion
	if errors.As(err, &a) {
		return a.Pack()
	}
	var c Code
	if errors.As(err, &c) {
		return uint32(c)
	}
	return uint32(AssertionError)
}

// Describe renders a host code for humans. It is the reverse of Encode only
// as far as the categorised table is concerned.
func Describe(code uint32) string {
	if unit := code >> 24; unit != 0 {
		return fmt.Sprintf("AssertionError(%s:%d)", SourceUnit(unit), code&lineMask)
	}
	return Code(code).String()
}
