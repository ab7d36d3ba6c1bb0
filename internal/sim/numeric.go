package sim

import (
	"math"
	"math/big"

	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
)

func arith(o op.Op, e operand.Elem, x, y uint64) uint64 {
	if e == operand.Elem64 {
		a, b := math.Float64frombits(x), math.Float64frombits(y)
		return math.Float64bits(arith64(o, a, b))
	}
	a, b := math.Float32frombits(uint32(x)), math.Float32frombits(uint32(y))
	return uint64(math.Float32bits(arith32(o, a, b)))
}

func arith64(o op.Op, a, b float64) float64 {
	switch o {
	case op.Add:
		return a + b
	case op.Sub:
		return a - b
	case op.Mul:
		return a * b
	}
	return a / b
}

func arith32(o op.Op, a, b float32) float32 {
	switch o {
	case op.Add:
		return a + b
	case op.Sub:
		return a - b
	case op.Mul:
		return a * b
	}
	return a / b
}

// fused computes d + a*b, or d - a*b when neg is set, with one rounding
// for f64. f32 lanes round the f64 result once more.
func fused(neg bool, e operand.Elem, d, a, b uint64) uint64 {
	x, y, z := toFloat(a, e), toFloat(b, e), toFloat(d, e)
	if neg {
		x = -x
	}
	return fromFloat(math.FMA(x, y, z), e)
}

// estimate truncates v to bits of mantissa
func estimate(v float64, bits int) float64 {
	if v == 0 || math.IsInf(v, 0) || math.IsNaN(v) || bits >= 52 {
		return v
	}
	b := math.Float64bits(v)
	b &^= 1<<uint(52-bits) - 1
	return math.Float64frombits(b)
}

func signExtend(x uint64, e operand.Elem) int64 {
	if e == operand.Elem64 {
		return int64(x)
	}
	return int64(int32(uint32(x)))
}

func shift(o op.Op, e operand.Elem, x, n uint64) uint64 {
	w := uint64(e)
	switch o {
	case op.Shl, op.ShlV:
		if n >= w {
			return 0
		}
		return x << n & ones(e)
	case op.Shr, op.ShrV:
		if n >= w {
			return 0
		}
		return x >> n
	}
	if n >= w {
		n = w - 1
	}
	return uint64(signExtend(x, e)>>n) & ones(e)
}

// signedShift shifts left by a non-negative count and right by the
// magnitude of a negative one
func signedShift(arithmetic bool, e operand.Elem, x uint64, s int8) uint64 {
	n := int(s)
	if n >= 0 {
		return shift(op.Shl, e, x, uint64(n))
	}
	if arithmetic {
		return shift(op.Sar, e, x, uint64(-n))
	}
	return shift(op.Shr, e, x, uint64(-n))
}

func roundTo(f float64, mode op.Rounding) float64 {
	switch mode {
	case op.RoundDown:
		return math.Floor(f)
	case op.RoundUp:
		return math.Ceil(f)
	case op.RoundZero:
		return math.Trunc(f)
	}
	return math.RoundToEven(f)
}

// toInt converts an integral value to a signed lane. x86 returns the
// "integer indefinite" value for NaN and out of range inputs; the other
// architectures saturate and map NaN to zero.
func toInt(f float64, e operand.Elem, x86 bool) uint64 {
	lo, hi := -math.Ldexp(1, 31), math.Ldexp(1, 31)
	minInt := uint64(1) << 31
	if e == operand.Elem64 {
		lo, hi = -math.Ldexp(1, 63), math.Ldexp(1, 63)
		minInt = uint64(1) << 63
	}
	switch {
	case math.IsNaN(f):
		if x86 {
			return minInt
		}
		return 0
	case f < lo || f >= hi:
		if x86 || f < 0 {
			return minInt
		}
		return ones(e) >> 1
	}
	return uint64(int64(f)) & ones(e)
}

var bigModes = map[op.Rounding]big.RoundingMode{
	op.RoundNearest: big.ToNearestEven,
	op.RoundDown:    big.ToNegativeInf,
	op.RoundUp:      big.ToPositiveInf,
	op.RoundZero:    big.ToZero,
}

// intToFloat converts a signed lane to a float lane of the same width,
// rounding in mode
func intToFloat(x uint64, e operand.Elem, mode op.Rounding) uint64 {
	prec := uint(24)
	if e == operand.Elem64 {
		prec = 53
	}
	z := new(big.Float).SetPrec(prec).SetMode(bigModes[mode])
	z.SetInt64(signExtend(x, e))
	f, _ := z.Float64()
	return fromFloat(f, e)
}
