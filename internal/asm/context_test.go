package asm

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
)

func TestContextSlots(t *testing.T) {
	seen := make(map[int32]string)
	for c := Const(0); c < numConsts; c++ {
		for _, e := range operand.Elems {
			off := ConstOffset(c, e)
			if prev, ok := seen[off]; ok {
				t.Errorf("%s.%s shares offset %d with %s", c, e, off, prev)
			}
			seen[off] = c.String() + "." + e.String()
			if off+SlotBytes > MXCSROffset {
				t.Errorf("%s.%s overlaps the MXCSR images", c, e)
			}
		}
	}
}

func TestNewContext(t *testing.T) {
	x86 := NewContext(profile(t, "x86_64/256/v2"))
	if len(x86) != ContextSize {
		t.Fatalf("context is %d bytes, want %d", len(x86), ContextSize)
	}
	// every lane of a slot holds the constant
	off := int(ConstOffset(ConstTwo, operand.Elem32))
	for i := 0; i < SlotBytes; i += 4 {
		if got := math.Float32frombits(binary.LittleEndian.Uint32(x86[off+i:])); got != 2 {
			t.Fatalf("TWO.f32 lane %d = %v", i/4, got)
		}
	}
	off = int(ConstOffset(ConstSign, operand.Elem64))
	if got := binary.LittleEndian.Uint64(x86[off+SlotBytes-8:]); got != 1<<63 {
		t.Errorf("SIGN.f64 last lane = %#x", got)
	}

	for _, r := range op.Roundings {
		got := binary.LittleEndian.Uint32(x86[int(MXCSROffset)+4*int(r):])
		if got != MXCSR(r) {
			t.Errorf("MXCSR image for %s = %#x, want %#x", r, got, MXCSR(r))
		}
	}
	if MXCSR(op.RoundDown) != 0x3F80 || MXCSR(op.RoundZero) != 0x7F80 {
		t.Errorf("MXCSR images %#x %#x", MXCSR(op.RoundDown), MXCSR(op.RoundZero))
	}

	arm := NewContext(profile(t, "aarch64/128/v1"))
	if binary.LittleEndian.Uint32(arm[MXCSROffset:]) != 0 {
		t.Error("MXCSR images written for a non-x86 target")
	}
}

func TestCbrtBias(t *testing.T) {
	// bits(x)/3 + bias is within a few percent of cbrt(x)
	for _, x := range []float64{1, 8, 1000, 0.125} {
		est := math.Float32frombits(math.Float32bits(float32(x))/3 + uint32(ConstBits(ConstCbrtBias, operand.Elem32)))
		if rel := math.Abs(float64(est)-math.Cbrt(x)) / math.Cbrt(x); rel > 0.05 {
			t.Errorf("f32 estimate of cbrt(%v) = %v", x, est)
		}
		est64 := math.Float64frombits(math.Float64bits(x)/3 + ConstBits(ConstCbrtBias, operand.Elem64))
		if rel := math.Abs(est64-math.Cbrt(x)) / math.Cbrt(x); rel > 0.05 {
			t.Errorf("f64 estimate of cbrt(%v) = %v", x, est64)
		}
	}
}
