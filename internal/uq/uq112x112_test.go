package uq

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestEncodeShiftsIntoIntegerBits(t *testing.T) {
	got, err := Encode(uint256.NewInt(3))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := new(uint256.Int).Mul(uint256.NewInt(3), Q112)
	if !got.Eq(want) {
		t.Fatalf("encode mismatch: %s != %s", got.Dec(), want.Dec())
	}
}

func TestRatioKeepsFraction(t *testing.T) {
	got, err := Ratio(uint256.NewInt(2), uint256.NewInt(3))
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	if got.IsZero() {
		t.Fatalf("2/3 truncated to zero")
	}
	if s := FloatString(got, 6); s != "0.666667" {
		t.Fatalf("unexpected 2/3 value: %s", s)
	}
}

func TestEncodeRejectsWideValues(t *testing.T) {
	if _, err := Encode(Q112); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := Encode(MaxUint112); err != nil {
		t.Fatalf("max uint112 should encode: %v", err)
	}
}

func TestDivByZero(t *testing.T) {
	if _, err := Div(Q112, new(uint256.Int)); err != ErrDivideByZero {
		t.Fatalf("expected ErrDivideByZero, got %v", err)
	}
}
