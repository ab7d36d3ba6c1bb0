package asm

import (
	"encoding/binary"
	"math"

	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

// Const names a slot of the constant pool in the context block
type Const uint8

const (
	ConstOne Const = iota
	ConstTwo
	ConstHalf
	ConstOneHalf
	ConstThird
	ConstZero
	ConstOnes     // every bit set
	ConstSign     // sign bit only
	ConstAbsMask  // every bit but the sign
	ConstCbrtBias // added to bits/3 for the cube root estimate
	numConsts
)

var constNames = [numConsts]string{
	"ONE", "TWO", "HALF", "ONEHALF", "THIRD", "ZERO", "ONES", "SIGN", "ABSMASK", "CBRT_BIAS",
}

func (c Const) String() string {
	if c < numConsts {
		return constNames[c]
	}
	return "CONST?"
}

// SlotBytes is the size of one constant slot. Every constant is
// replicated across the widest logical vector, so tuple position i of
// an expanded load reads the same value as position 0.
const SlotBytes = target.MaxLogical / 8

// MXCSROffset is where the four MXCSR images live, one per rounding mode
// in op.Rounding order
const MXCSROffset = int32(numConsts) * 2 * SlotBytes

// ContextSize is the size of the context block
const ContextSize = int(MXCSROffset) + 4*4

// ConstOffset returns the displacement of a constant from the context
// base register. Each constant has a 32-bit and a 64-bit slot.
func ConstOffset(c Const, e operand.Elem) int32 {
	slot := int32(c) * 2
	if e == operand.Elem64 {
		slot++
	}
	return slot * SlotBytes
}

// ConstMem returns the memory operand of a constant
func ConstMem(c Const, e operand.Elem) operand.Mem {
	return operand.At(operand.Ctx, ConstOffset(c, e))
}

// ConstBits returns the lane bit pattern of a constant
func ConstBits(c Const, e operand.Elem) uint64 {
	f := func(v float64) uint64 {
		if e == operand.Elem64 {
			return math.Float64bits(v)
		}
		return uint64(math.Float32bits(float32(v)))
	}
	sign := uint64(1) << 31
	ones := uint64(math.MaxUint32)
	if e == operand.Elem64 {
		sign = 1 << 63
		ones = math.MaxUint64
	}
	switch c {
	case ConstOne:
		return f(1)
	case ConstTwo:
		return f(2)
	case ConstHalf:
		return f(0.5)
	case ConstOneHalf:
		return f(1.5)
	case ConstThird:
		return f(1.0 / 3)
	case ConstOnes:
		return ones
	case ConstSign:
		return sign
	case ConstAbsMask:
		return ones &^ sign
	case ConstCbrtBias:
		// (bias - bias/3 - 0.0331) scaled to the exponent field
		if e == operand.Elem64 {
			return 715094163 << 32
		}
		return 709958130
	}
	return 0
}

// MXCSR returns the MXCSR image that selects mode with every exception masked
func MXCSR(mode op.Rounding) uint32 {
	return 0x1F80 | uint32(mode)<<13
}

// NewContext builds the context block the generated code expects its
// context register to point at
func NewContext(p *target.Profile) []byte {
	b := make([]byte, ContextSize)
	for c := Const(0); c < numConsts; c++ {
		for _, e := range operand.Elems {
			off := int(ConstOffset(c, e))
			bits := ConstBits(c, e)
			for i := 0; i < SlotBytes; i += e.Bytes() {
				if e == operand.Elem64 {
					binary.LittleEndian.PutUint64(b[off+i:], bits)
				} else {
					binary.LittleEndian.PutUint32(b[off+i:], uint32(bits))
				}
			}
		}
	}
	if p.Arch == engine.ArchX86_64 {
		for _, r := range op.Roundings {
			binary.LittleEndian.PutUint32(b[int(MXCSROffset)+4*int(r):], MXCSR(r))
		}
	}
	return b
}
