package asm

import (
	"math"
	"testing"

	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/sim"
	"github.com/xyproto/rtasm/internal/target"
)

func TestRcpShimSequence(t *testing.T) {
	a := New(profile(t, "x86_64/128/v1"))
	mustEmit(t, a, op.Rcp, operand.Elem32, operand.Vec(0), operand.Vec(1))
	if a.Route() != "shim rcp newton" {
		t.Fatalf("route %q, want shim rcp newton", a.Route())
	}
	want := []op.Op{op.RcpEst, op.Mul, op.Mov, op.Sub, op.Mul}
	prog, _ := a.Program()
	if len(prog) != len(want) {
		t.Fatalf("program %v, want %v", prog, want)
	}
	for i, in := range prog {
		if in.Op != want[i] {
			t.Errorf("step %d is %s, want %s", i, in.Op, want[i])
		}
	}

	m := sim.New(a.Profile(), memSize)
	m.SetFloats(1, operand.Elem32, 4)
	execute(t, a, m)
	bound := a.Profile().RefinedBound(operand.Elem32)
	for i, got := range m.Floats(0, operand.Elem32) {
		if math.Abs(got-0.25)/0.25 > bound {
			t.Errorf("lane %d: rcp(4) = %v, outside %g of 0.25", i, got, bound)
		}
	}
}

func TestReciprocalPrecision(t *testing.T) {
	inputs := []float64{1e-3, 0.37, 1, 4, 123.5, 6.02e5, 3e9}
	for _, spec := range simTargets {
		p := profile(t, spec)
		for _, e := range p.Elems() {
			a := New(p)
			mustEmit(t, a, op.Rcp, e, operand.Vec(0), operand.Vec(1))
			mustEmit(t, a, op.Rsqrt, e, operand.Vec(2), operand.Vec(1))
			m := sim.New(p, memSize)
			m.SetFloats(1, e, inputs...)
			execute(t, a, m)

			bound := p.RefinedBound(e)
			xs := m.Floats(1, e)
			rcp, rsqrt := m.Floats(0, e), m.Floats(2, e)
			for i, x := range xs {
				if rel := math.Abs(rcp[i]*x - 1); rel > bound {
					t.Errorf("%s %s: rcp(%g) = %g, relative error %g > %g", spec, e, x, rcp[i], rel, bound)
				}
				want := 1 / math.Sqrt(x)
				if rel := math.Abs(rsqrt[i]-want) / want; rel > bound {
					t.Errorf("%s %s: rsqrt(%g) = %g, relative error %g > %g", spec, e, x, rsqrt[i], rel, bound)
				}
			}
		}
	}
}

var specials = []float64{
	math.NaN(), 0, math.Copysign(0, -1), math.Inf(1), math.Inf(-1), 1, -1, 2.5,
}

func holds(o op.Op, x, y float64) bool {
	switch o {
	case op.Ceq:
		return x == y
	case op.Cne:
		return x != y
	case op.Clt:
		return x < y
	case op.Cle:
		return x <= y
	case op.Cgt:
		return x > y
	}
	return x >= y
}

// Compare then select gives the same bits on every target, whether the
// target has mask registers or emulates them with vectors
func TestMaskingEquivalence(t *testing.T) {
	compares := []op.Op{op.Ceq, op.Cne, op.Clt, op.Cle, op.Cgt, op.Cge}
	for _, spec := range simTargets {
		p := profile(t, spec)
		for _, e := range p.Elems() {
			for _, o := range compares {
				a := New(p)
				mustEmit(t, a, o, e, operand.Vec(2), operand.Vec(0), operand.Vec(1))
				mustEmit(t, a, op.Select, e, operand.Vec(3), operand.Vec(2), operand.Vec(0), operand.Vec(1))
				if _, err := a.Finalize(); err != nil {
					t.Fatal(err)
				}
				prog, labels := a.Program()

				for _, x := range specials {
					for _, y := range specials {
						m := sim.New(p, memSize)
						m.Place(0, NewContext(p))
						m.SetFloats(0, e, x)
						m.SetFloats(1, e, y)
						if err := m.Run(prog, labels); err != nil {
							t.Fatalf("%s: %v", spec, err)
						}
						xb, yb := m.Logical(0, e)[0], m.Logical(1, e)[0]
						wantMask, want := uint64(0), yb
						if holds(o, x, y) {
							wantMask, want = math.MaxUint64>>(64-uint(e)), xb
						}
						for i, got := range m.Logical(2, e) {
							if got != wantMask {
								t.Fatalf("%s %s.%s(%v, %v): mask lane %d = %#x, want %#x", spec, o, e, x, y, i, got, wantMask)
							}
						}
						for i, got := range m.Logical(3, e) {
							if got != want {
								t.Fatalf("%s %s.%s(%v, %v): select lane %d = %#x, want %#x", spec, o, e, x, y, i, got, want)
							}
						}
					}
				}
			}
		}
	}
}

func TestCompareSelectScenario(t *testing.T) {
	for _, spec := range []string{"x86_64/128/v1", "x86_64/512/v4"} {
		p := profile(t, spec)
		a := New(p)
		e := operand.Elem32
		mustEmit(t, a, op.Clt, e, operand.Vec(2), operand.Vec(0), operand.Vec(1))
		mustEmit(t, a, op.Select, e, operand.Vec(5), operand.Vec(2), operand.Vec(3), operand.Vec(4))
		m := sim.New(p, memSize)
		m.SetFloats(0, e, 1, 2)
		m.SetFloats(1, e, 2, 1)
		m.SetFloats(3, e, 10)
		m.SetFloats(4, e, 20)
		execute(t, a, m)
		mask, sel := m.Logical(2, e), m.Floats(5, e)
		for i := range mask {
			wantMask, wantSel := uint64(math.MaxUint32), 10.0
			if i%2 == 1 {
				wantMask, wantSel = 0, 20
			}
			if mask[i] != wantMask || sel[i] != wantSel {
				t.Errorf("%s lane %d: mask %#x select %v, want %#x %v", spec, i, mask[i], sel[i], wantMask, wantSel)
			}
		}
	}
}

func TestBitwise(t *testing.T) {
	x, y := uint64(0xF0F0_1234_5678_9ABC), uint64(0xFF00_FF00_0F0F_3C3C)
	tests := []struct {
		o    op.Op
		want func(x, y uint64) uint64
	}{
		{op.And, func(x, y uint64) uint64 { return x & y }},
		{op.Andn, func(x, y uint64) uint64 { return ^x & y }},
		{op.Or, func(x, y uint64) uint64 { return x | y }},
		{op.Orn, func(x, y uint64) uint64 { return x | ^y }},
		{op.Xor, func(x, y uint64) uint64 { return x ^ y }},
		{op.Not, func(x, _ uint64) uint64 { return ^x }},
	}
	for _, spec := range simTargets {
		p := profile(t, spec)
		for _, e := range p.Elems() {
			mask := uint64(math.MaxUint64) >> (64 - uint(e))
			for _, tt := range tests {
				a := New(p)
				args := []operand.Operand{operand.Vec(2), operand.Vec(0), operand.Vec(1)}
				if tt.o == op.Not {
					args = args[:2]
				}
				mustEmit(t, a, tt.o, e, args...)
				m := sim.New(p, memSize)
				m.SetLogical(0, e, x&mask)
				m.SetLogical(1, e, y&mask)
				execute(t, a, m)
				want := tt.want(x, y) & mask
				if got := m.Logical(2, e)[0]; got != want {
					t.Errorf("%s %s.%s = %#x, want %#x", spec, tt.o, e, got, want)
				}
			}
		}
	}
}

func TestFusedMultiply(t *testing.T) {
	for _, spec := range simTargets {
		p := profile(t, spec)
		for _, e := range p.Elems() {
			a := New(p)
			mustEmit(t, a, op.Fma, e, operand.Vec(0), operand.Vec(1), operand.Vec(2))
			mustEmit(t, a, op.Fms, e, operand.Vec(3), operand.Vec(1), operand.Vec(2))
			m := sim.New(p, memSize)
			m.SetFloats(0, e, 1)
			m.SetFloats(1, e, 3)
			m.SetFloats(2, e, 0.5)
			m.SetFloats(3, e, 10)
			execute(t, a, m)
			if got := m.Floats(0, e)[0]; got != 2.5 {
				t.Errorf("%s %s: 1 + 3*0.5 = %v", spec, e, got)
			}
			if got := m.Floats(3, e)[0]; got != 8.5 {
				t.Errorf("%s %s: 10 - 3*0.5 = %v", spec, e, got)
			}
		}
	}
}

func TestCbrt(t *testing.T) {
	inputs := []float64{27, -8, 0.001, 1e6, 2, -0.5}
	for _, spec := range simTargets {
		p := profile(t, spec)
		for _, e := range p.Elems() {
			if err := Check(p, op.Cbrt, e, operand.KindVec, operand.KindVec); err != nil {
				continue
			}
			a := New(p)
			mustEmit(t, a, op.Cbrt, e, operand.Vec(0), operand.Vec(1))
			m := sim.New(p, memSize)
			m.SetFloats(1, e, inputs...)
			execute(t, a, m)
			tol := 1e-6
			if e == operand.Elem64 {
				tol = 1e-14
			}
			xs, got := m.Floats(1, e), m.Floats(0, e)
			for i, x := range xs {
				want := math.Cbrt(x)
				if rel := math.Abs(got[i]-want) / math.Abs(want); rel > tol {
					t.Errorf("%s %s: cbrt(%g) = %g, want %g", spec, e, x, got[i], want)
				}
			}
		}
	}
	// the 32-bit shim is available wherever 32-bit converts are
	for _, spec := range simTargets {
		if err := Check(profile(t, spec), op.Cbrt, operand.Elem32, operand.KindVec, operand.KindVec); err != nil {
			t.Errorf("%s: cbrt.f32: %v", spec, err)
		}
	}
}

func TestShifts(t *testing.T) {
	for _, spec := range simTargets {
		p := profile(t, spec)
		for _, e := range p.Elems() {
			mask := uint64(math.MaxUint64) >> (64 - uint(e))
			lane := uint64(0x8000_1F00)
			if e == operand.Elem64 {
				lane = 0x8000_0000_0000_1F00
			}
			signed := signExtendLane(lane, e)
			tests := []struct {
				o    op.Op
				n    uint64
				want uint64
			}{
				{op.Shl, 4, lane << 4 & mask},
				{op.Shr, 4, lane >> 4},
				{op.Sar, 4, uint64(signed>>4) & mask},
				{op.ShlV, 3, lane << 3 & mask},
				{op.ShrV, 3, lane >> 3},
				{op.SarV, 3, uint64(signed>>3) & mask},
			}
			for _, tt := range tests {
				a := New(p)
				var err error
				if tt.o == op.Shl || tt.o == op.Shr || tt.o == op.Sar {
					err = a.Emit(tt.o, e, operand.Vec(2), operand.Vec(0), operand.Imm(tt.n))
				} else {
					err = a.Emit(tt.o, e, operand.Vec(2), operand.Vec(0), operand.Vec(1))
				}
				if err != nil {
					// some targets lack variable shifts altogether
					if kindOf(t, err) != engine.KindUnsupportedOperation {
						t.Errorf("%s %s.%s: %v", spec, tt.o, e, err)
					}
					continue
				}
				m := sim.New(p, memSize)
				m.SetLogical(0, e, lane)
				m.SetLogical(1, e, tt.n)
				execute(t, a, m)
				if got := m.Logical(2, e)[0]; got != tt.want {
					t.Errorf("%s %s.%s %#x by %d = %#x, want %#x (%s)", spec, tt.o, e, lane, tt.n, got, tt.want, a.Route())
				}
			}
		}
	}
}

func TestConversions(t *testing.T) {
	inputs := []float64{2.5, -2.5, 3.5, 1.25, -1.75, 7}
	tests := []struct {
		o    op.Op
		want func(float64) float64
	}{
		{op.CvzF2I, math.Trunc},
		{op.CvnF2I, math.RoundToEven},
		{op.CvpF2I, math.Ceil},
		{op.CvmF2I, math.Floor},
		{op.CvtF2I, math.RoundToEven},
		{op.Rnz, math.Trunc},
		{op.Rnn, math.RoundToEven},
		{op.Rnp, math.Ceil},
		{op.Rnm, math.Floor},
		{op.Rnd, math.RoundToEven},
	}
	for _, spec := range simTargets {
		p := profile(t, spec)
		for _, e := range p.Elems() {
			for _, tt := range tests {
				a := New(p)
				if err := a.Emit(tt.o, e, operand.Vec(1), operand.Vec(0)); err != nil {
					continue
				}
				if a.Rounding() != op.RoundNearest {
					t.Errorf("%s %s.%s left the rounding mode at %s", spec, tt.o, e, a.Rounding())
				}
				m := sim.New(p, memSize)
				m.SetFloats(0, e, inputs...)
				execute(t, a, m)
				for i, x := range m.Floats(0, e) {
					want := tt.want(x)
					var got float64
					if tt.o.Category() == op.CatConvert {
						got = float64(signExtendLane(m.Logical(1, e)[i], e))
					} else {
						got = m.Floats(1, e)[i]
					}
					if got != want {
						t.Errorf("%s %s.%s(%v) = %v, want %v (%s)", spec, tt.o, e, x, got, want, a.Route())
					}
				}
				if m.Mode != op.RoundNearest {
					t.Errorf("%s %s.%s: machine left in mode %s", spec, tt.o, e, m.Mode)
				}
			}
		}
	}
}

func signExtendLane(v uint64, e operand.Elem) int64 {
	if e == operand.Elem64 {
		return int64(v)
	}
	return int64(int32(uint32(v)))
}

func TestIntToFloat(t *testing.T) {
	for _, spec := range simTargets {
		p := profile(t, spec)
		for _, e := range p.Elems() {
			for _, o := range []op.Op{op.CvnI2F, op.CvtI2F} {
				a := New(p)
				if err := a.Emit(o, e, operand.Vec(1), operand.Vec(0)); err != nil {
					continue
				}
				m := sim.New(p, memSize)
				neg := uint64(math.MaxUint64 >> (64 - uint(e))) // -1
				m.SetLogical(0, e, 7, neg)
				execute(t, a, m)
				got := m.Floats(1, e)
				if got[0] != 7 || got[1] != -1 {
					t.Errorf("%s %s.%s = %v, want [7 -1 ...]", spec, o, e, got[:2])
				}
			}
		}
	}
}

func TestShimFor(t *testing.T) {
	vec, mem := operand.KindVec, operand.KindMem
	tests := []struct {
		target string
		o      op.Op
		e      operand.Elem
		kinds  []operand.Kind
		name   string // "" when no shim applies
	}{
		{"x86_64/128/v1", op.Add, operand.Elem32, []operand.Kind{vec, vec, vec}, ""},
		{"aarch64/128/v1", op.Add, operand.Elem32, []operand.Kind{vec, vec, mem}, ""},
		{"x86_64/128/v1", op.Rcp, operand.Elem32, []operand.Kind{vec, vec}, "rcp newton"},
		{"x86_64/128/v1", op.Rcp, operand.Elem64, []operand.Kind{vec, vec}, "rcp div"},
		{"x86_64/128/v1", op.Rsqrt, operand.Elem32, []operand.Kind{vec, vec}, "rsqrt newton"},
		{"x86_64/128/v1", op.Fma, operand.Elem32, []operand.Kind{vec, vec, vec}, "mul add"},
		{"x86_64/128/v1", op.Select, operand.Elem32, []operand.Kind{vec, vec, vec, vec}, "bitwise select"},
		{"x86_64/512/v4", op.Select, operand.Elem32, []operand.Kind{vec, vec, vec, vec}, "predicated select"},
		{"x86_64/512/v4", op.Clt, operand.Elem32, []operand.Kind{vec, vec, vec}, "predicate compare"},
		{"aarch64/128/v1", op.ShrV, operand.Elem32, []operand.Kind{vec, vec, vec}, "negated count"},
		{"x86_64/128/v1", op.Sar, operand.Elem64, []operand.Kind{vec, vec, operand.KindImm}, "sign extend"},
		{"x86_64/128/v1", op.Cbrt, operand.Elem32, []operand.Kind{vec, vec}, "cbrt newton"},
	}
	for _, tt := range tests {
		p := profile(t, tt.target)
		s, ok := ShimFor(tt.o, tt.e, tt.kinds, p)
		if tt.name == "" {
			if ok {
				t.Errorf("%s %s.%s: unexpected shim %s", tt.target, tt.o, tt.e, s)
			}
			continue
		}
		if !ok || s.Name != tt.name {
			t.Errorf("%s %s.%s: got %v, want %q", tt.target, tt.o, tt.e, s, tt.name)
		}
	}
}

// Every shim leaves one scratch register free for folding a memory
// operand in any of its steps
func TestShimScratchBound(t *testing.T) {
	for _, p := range target.All() {
		for _, o := range op.PublicOps() {
			for _, e := range p.Elems() {
				for _, kinds := range Forms(o) {
					s, ok := ShimFor(o, e, kinds, p)
					if !ok {
						continue
					}
					if s.Scratch > operand.Scratch-1 {
						t.Errorf("%s: %s uses %d scratch registers", p.Name, s, s.Scratch)
					}
					if len(s.Steps) == 0 {
						t.Errorf("%s: %s.%s shim %q has no steps", p.Name, o, e, s.Name)
					}
				}
			}
		}
	}
}
