package asm

import (
	"slices"
	"testing"

	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

func TestForms(t *testing.T) {
	vec, mem := operand.KindVec, operand.KindMem
	tests := []struct {
		o    op.Op
		want [][]operand.Kind
	}{
		{op.Add, [][]operand.Kind{{vec, vec, vec}, {vec, vec, mem}}},
		{op.Mov, [][]operand.Kind{{vec, vec}, {vec, mem}, {mem, vec}}},
		{op.Jump, [][]operand.Kind{{operand.KindLabel}}},
	}
	for _, tt := range tests {
		got := Forms(tt.o)
		if !slices.EqualFunc(got, tt.want, slices.Equal[[]operand.Kind]) {
			t.Errorf("Forms(%s) = %v, want %v", tt.o, got, tt.want)
		}
	}
}

func TestCheck(t *testing.T) {
	vec := operand.KindVec
	p := profile(t, "ppc64/128/v1")
	if err := Check(p, op.Add, operand.Elem32, vec, vec, vec); err != nil {
		t.Errorf("add.f32: %v", err)
	}
	err := Check(p, op.Add, operand.Elem64, vec, vec, vec)
	if kindOf(t, err) != engine.KindUnsupportedOperation {
		t.Errorf("add.f64 on a 32-bit only target: %v", err)
	}
	if err := Check(p, op.Add, operand.Elem32, vec, operand.KindImm, vec); kindOf(t, err) != engine.KindInvalidOperandKind {
		t.Errorf("add with an immediate: %v", err)
	}
}

// Every operation, width and operand combination on every profile either
// encodes or fails with exactly one error kind, and always the same one
func TestMatrixIsTotal(t *testing.T) {
	for _, p := range target.All() {
		rows, c := Matrix(p)
		want := 0
		for _, o := range op.PublicOps() {
			want += len(operand.Elems) * len(Forms(o))
		}
		if len(rows) != want {
			t.Fatalf("%s: %d rows, want %d", p.Name, len(rows), want)
		}
		failed := 0
		for _, r := range rows {
			if r.Err == nil {
				if r.Insts == 0 && r.Op != op.SaveAll && r.Op != op.LoadAll {
					t.Errorf("%s: %s.%s %v succeeded without code", p.Name, r.Op, r.Elem, r.Kinds)
				}
				continue
			}
			failed++
			k, ok := engine.KindOf(r.Err)
			if !ok {
				t.Errorf("%s: %s.%s %v: error without a kind: %v", p.Name, r.Op, r.Elem, r.Kinds, r.Err)
				continue
			}
			if r.Insts != 0 || r.Bytes != 0 {
				t.Errorf("%s: %s.%s %v failed after emitting %d bytes", p.Name, r.Op, r.Elem, r.Kinds, r.Bytes)
			}
			if again := Check(p, r.Op, r.Elem, r.Kinds...); again == nil {
				t.Errorf("%s: %s.%s %v: %s, then success", p.Name, r.Op, r.Elem, r.Kinds, k)
			} else if k2, _ := engine.KindOf(again); k2 != k {
				t.Errorf("%s: %s.%s %v: %s, then %s", p.Name, r.Op, r.Elem, r.Kinds, k, k2)
			}
		}
		total := 0
		for _, k := range engine.Kinds {
			total += c.Count(k)
		}
		if total != failed || c.ErrorCount() != failed {
			t.Errorf("%s: collector holds %d errors (%d by kind), rows show %d", p.Name, c.ErrorCount(), total, failed)
		}
	}
}

// The core operations exist everywhere, natively or through a shim
func TestCoreOperationsEverywhere(t *testing.T) {
	vec := operand.KindVec
	core := []struct {
		o     op.Op
		kinds []operand.Kind
	}{
		{op.Mov, []operand.Kind{vec, vec}},
		{op.Add, []operand.Kind{vec, vec, vec}},
		{op.Mul, []operand.Kind{vec, vec, vec}},
		{op.Div, []operand.Kind{vec, vec, vec}},
		{op.Rcp, []operand.Kind{vec, vec}},
		{op.Rsqrt, []operand.Kind{vec, vec}},
		{op.Fma, []operand.Kind{vec, vec, vec}},
		{op.Andn, []operand.Kind{vec, vec, vec}},
		{op.Not, []operand.Kind{vec, vec}},
		{op.Clt, []operand.Kind{vec, vec, vec}},
		{op.Cne, []operand.Kind{vec, vec, vec}},
		{op.Select, []operand.Kind{vec, vec, vec, vec}},
		{op.CvnF2I, []operand.Kind{vec, vec}},
		{op.SaveAll, []operand.Kind{operand.KindMem}},
	}
	for _, p := range target.All() {
		for _, c := range core {
			if err := Check(p, c.o, operand.Elem32, c.kinds...); err != nil {
				t.Errorf("%s: %v", p.Name, err)
			}
		}
	}
}
