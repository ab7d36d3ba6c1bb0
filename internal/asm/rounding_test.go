package asm

import (
	"math/rand"
	"testing"

	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/sim"
)

func countOp(a *Assembler, o op.Op) int {
	prog, _ := a.Program()
	n := 0
	for _, in := range prog {
		if in.Op == o {
			n++
		}
	}
	return n
}

func TestRoundingScopesNest(t *testing.T) {
	a := New(profile(t, "x86_64/128/v1"))
	if a.Rounding() != op.RoundNearest {
		t.Fatalf("initial mode %s", a.Rounding())
	}
	outer, err := a.EnterRounding(op.RoundDown)
	if err != nil {
		t.Fatal(err)
	}
	same, err := a.EnterRounding(op.RoundDown)
	if err != nil {
		t.Fatal(err)
	}
	inner, err := a.EnterRounding(op.RoundUp)
	if err != nil {
		t.Fatal(err)
	}
	if a.Rounding() != op.RoundUp {
		t.Errorf("mode %s inside the inner scope", a.Rounding())
	}
	for _, s := range []*RoundingScope{inner, same, outer} {
		if err := s.Close(); err != nil {
			t.Fatalf("Close %s: %v", s.Mode(), err)
		}
	}
	if a.Rounding() != op.RoundNearest {
		t.Errorf("mode %s after the outermost scope closed", a.Rounding())
	}
	// down, up, back to down, back to nearest; the repeated down is free
	if n := countOp(a, op.SetRounding); n != 4 {
		t.Errorf("%d mode switches, want 4", n)
	}
	if _, err := a.Finalize(); err != nil {
		t.Error(err)
	}
}

func TestRoundingScopeOrder(t *testing.T) {
	a := New(profile(t, "aarch64/128/v1"))
	outer, _ := a.EnterRounding(op.RoundZero)
	inner, _ := a.EnterRounding(op.RoundUp)

	if err := outer.Close(); kindOf(t, err) != engine.KindUnsupportedOperation {
		t.Errorf("closing the outer scope first: %v", err)
	}
	if a.Rounding() != op.RoundUp {
		t.Errorf("a rejected Close changed the mode to %s", a.Rounding())
	}
	if _, err := a.Finalize(); kindOf(t, err) != engine.KindUnsupportedOperation {
		t.Errorf("Finalize with open scopes: %v", err)
	}
	if err := inner.Close(); err != nil {
		t.Fatal(err)
	}
	if err := outer.Close(); err != nil {
		t.Fatal(err)
	}
	if err := outer.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := a.Finalize(); err != nil {
		t.Error(err)
	}
}

func TestInvalidRoundingMode(t *testing.T) {
	a := New(profile(t, "x86_64/128/v1"))
	if _, err := a.EnterRounding(op.Rounding(9)); kindOf(t, err) != engine.KindImmediateOutOfRange {
		t.Errorf("got %v, want ImmediateOutOfRange", err)
	}
	if a.Len() != 0 {
		t.Errorf("%d bytes appended", a.Len())
	}
}

// For random LIFO nestings the mode after the outermost exit is the mode
// before the outermost entry, both as tracked and as executed
func TestRoundingRestoration(t *testing.T) {
	rng := rand.New(rand.NewSource(67))
	for _, spec := range simTargets {
		p := profile(t, spec)
		e := p.Elems()[0]
		for trial := 0; trial < 20; trial++ {
			a := New(p)
			var stack []*RoundingScope
			modes := []op.Rounding{op.RoundNearest}
			for i := 0; i < 12; i++ {
				if len(stack) > 0 && rng.Intn(3) == 0 {
					if err := stack[len(stack)-1].Close(); err != nil {
						t.Fatal(err)
					}
					stack = stack[:len(stack)-1]
					modes = modes[:len(modes)-1]
				} else {
					mode := op.Roundings[rng.Intn(len(op.Roundings))]
					s, err := a.EnterRounding(mode)
					if err != nil {
						t.Fatal(err)
					}
					stack = append(stack, s)
					modes = append(modes, mode)
				}
				if a.Rounding() != modes[len(modes)-1] {
					t.Fatalf("%s: tracked mode %s, want %s", spec, a.Rounding(), modes[len(modes)-1])
				}
				mustEmit(t, a, op.Add, e, operand.Vec(0), operand.Vec(0), operand.Vec(1))
			}
			for len(stack) > 0 {
				if err := stack[len(stack)-1].Close(); err != nil {
					t.Fatal(err)
				}
				stack = stack[:len(stack)-1]
			}
			if a.Rounding() != op.RoundNearest {
				t.Fatalf("%s: mode %s after every scope closed", spec, a.Rounding())
			}
			m := sim.New(p, memSize)
			execute(t, a, m)
			if m.Mode != op.RoundNearest {
				t.Fatalf("%s: executed mode %s after every scope closed", spec, m.Mode)
			}
		}
	}
}

func TestRoundingScopeAffectsConversion(t *testing.T) {
	for _, spec := range simTargets {
		p := profile(t, spec)
		for _, e := range p.Elems() {
			if Check(p, op.CvtF2I, e, operand.KindVec, operand.KindVec) != nil {
				continue
			}
			a := New(p)
			s, err := a.EnterRounding(op.RoundDown)
			if err != nil {
				t.Fatal(err)
			}
			mustEmit(t, a, op.CvtF2I, e, operand.Vec(1), operand.Vec(0))
			if err := s.Close(); err != nil {
				t.Fatal(err)
			}
			mustEmit(t, a, op.CvtF2I, e, operand.Vec(2), operand.Vec(0))

			m := sim.New(p, memSize)
			m.SetFloats(0, e, 2.7, -2.7)
			execute(t, a, m)
			down, near := m.Logical(1, e), m.Logical(2, e)
			if signExtendLane(down[0], e) != 2 || signExtendLane(down[1], e) != -3 {
				t.Errorf("%s %s: rounding down gave %d, %d", spec, e, signExtendLane(down[0], e), signExtendLane(down[1], e))
			}
			if signExtendLane(near[0], e) != 3 || signExtendLane(near[1], e) != -3 {
				t.Errorf("%s %s: rounding to nearest gave %d, %d", spec, e, signExtendLane(near[0], e), signExtendLane(near[1], e))
			}
		}
	}
}
