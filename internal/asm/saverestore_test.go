package asm

import (
	"bytes"
	"testing"

	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/sim"
)

// pattern fills a register with a signalling NaN in its first lane and
// distinct bytes elsewhere
func pattern(n, r, i int) []byte {
	b := make([]byte, n)
	for j := range b {
		b[j] = byte(r*31 + i*7 + j)
	}
	copy(b, []byte{0x01, 0x00, 0x80, 0x7F})
	return b
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, spec := range simTargets {
		p := profile(t, spec)
		e := p.Elems()[0]
		area := operand.At(operand.R0, 0)

		a := New(p)
		mustEmit(t, a, op.SaveAll, e, area)
		for r := 0; r < p.Regs; r++ {
			v := operand.Vec(r)
			mustEmit(t, a, op.Xor, e, v, v, v)
		}
		mustEmit(t, a, op.LoadAll, e, area)

		m := sim.New(p, memSize)
		for r := 0; r < p.Regs; r++ {
			g := p.Group(operand.Vec(r))
			for i := 0; i < g.Len(); i++ {
				m.SetVec(g.At(i), pattern(p.NativeBytes(), r, i))
			}
		}
		execute(t, a, m)

		for r := 0; r < p.Regs; r++ {
			v := operand.Vec(r)
			g := p.Group(v)
			for i := 0; i < g.Len(); i++ {
				want := pattern(p.NativeBytes(), r, i)
				if got := m.Vec(g.At(i)); !bytes.Equal(got, want) {
					t.Fatalf("%s: v%d position %d = % x, want % x", spec, r, i, got, want)
				}
				at := dataBase + SlotOffset(p, v, i)
				if got := m.Mem[at : at+p.NativeBytes()]; !bytes.Equal(got, want) {
					t.Fatalf("%s: slot of v%d position %d = % x, want % x", spec, r, i, got, want)
				}
			}
		}
	}
}

func TestSaveLoadAcrossWidths(t *testing.T) {
	for _, spec := range simTargets {
		p := profile(t, spec)
		elems := p.Elems()
		first, last := elems[0], elems[len(elems)-1]
		area := operand.At(operand.R0, 0)

		narrow, wide := New(p), New(p)
		mustEmit(t, narrow, op.SaveAll, first, area)
		mustEmit(t, wide, op.SaveAll, last, area)
		if !bytes.Equal(narrow.buf.Bytes(), wide.buf.Bytes()) {
			t.Errorf("%s: SaveAll at %s and %s emit different code", spec, first, last)
		}

		a := New(p)
		mustEmit(t, a, op.SaveAll, last, area)
		for r := 0; r < p.Regs; r++ {
			v := operand.Vec(r)
			mustEmit(t, a, op.Xor, first, v, v, v)
		}
		mustEmit(t, a, op.LoadAll, first, area)

		m := sim.New(p, memSize)
		for r := 0; r < p.Regs; r++ {
			g := p.Group(operand.Vec(r))
			for i := 0; i < g.Len(); i++ {
				m.SetVec(g.At(i), pattern(p.NativeBytes(), r, i))
			}
		}
		execute(t, a, m)
		for r := 0; r < p.Regs; r++ {
			g := p.Group(operand.Vec(r))
			for i := 0; i < g.Len(); i++ {
				if got, want := m.Vec(g.At(i)), pattern(p.NativeBytes(), r, i); !bytes.Equal(got, want) {
					t.Fatalf("%s: v%d position %d = % x, want % x", spec, r, i, got, want)
				}
			}
		}
	}
}

func TestSaveAreaLayout(t *testing.T) {
	for _, spec := range simTargets {
		p := profile(t, spec)
		if got, want := SaveAreaSize(p), p.Regs*p.N*p.NativeBytes(); got != want {
			t.Errorf("%s: save area %d bytes, want %d", spec, got, want)
		}
		last := SlotOffset(p, operand.Vec(p.Regs-1), p.N-1)
		if last+p.NativeBytes() != SaveAreaSize(p) {
			t.Errorf("%s: last slot ends at %d, area is %d", spec, last+p.NativeBytes(), SaveAreaSize(p))
		}
		for r := 0; r < p.Regs; r++ {
			for i := 0; i < p.N; i++ {
				if off := SlotOffset(p, operand.Vec(r), i); off%p.NativeBytes() != 0 {
					t.Errorf("%s: slot v%d/%d at %d is misaligned", spec, r, i, off)
				}
			}
		}

		a := New(p)
		start := len(a.insts)
		mustEmit(t, a, op.SaveAll, p.Elems()[0], operand.At(operand.R0, 0))
		if n := len(a.insts) - start; n != p.Regs*p.N {
			t.Errorf("%s: SaveAll emitted %d instructions, want %d", spec, n, p.Regs*p.N)
		}
	}
}
