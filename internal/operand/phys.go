// Completion: 100% - Physical register model complete
package operand

import (
	"fmt"
	"strings"
)

// PhysVec is a hardware vector register number. It is a distinct type
// so a logical index can never be passed where a hardware number is
// expected, and each encoder checks it against its own field width.
type PhysVec uint8

// PhysPred is a hardware predicate (or mask) register number
type PhysPred uint8

// PhysGPR is a hardware general purpose register number
type PhysGPR uint8

// MaxGroup is the largest supported expansion factor (2048 / 128)
const MaxGroup = 16

// Group is the ordered tuple of physical registers realizing one
// logical register. Position i of every operand pairs with position i
// of every other operand.
type Group[R PhysVec | PhysPred] struct {
	n    uint8
	regs [MaxGroup]R
}

// NewGroup builds a group from up to MaxGroup registers
func NewGroup[R PhysVec | PhysPred](regs ...R) Group[R] {
	if len(regs) == 0 || len(regs) > MaxGroup {
		panic(fmt.Sprintf("register group of size %d", len(regs)))
	}
	var g Group[R]
	g.n = uint8(len(regs))
	copy(g.regs[:], regs)
	return g
}

// Len returns the number of registers in the group
func (g Group[R]) Len() int {
	return int(g.n)
}

// At returns the register at tuple position i
func (g Group[R]) At(i int) R {
	if i < 0 || i >= int(g.n) {
		panic(fmt.Sprintf("tuple position %d out of range for group of %d", i, g.n))
	}
	return g.regs[i]
}

// Regs returns a copy of the registers
func (g Group[R]) Regs() []R {
	out := make([]R, g.n)
	copy(out, g.regs[:g.n])
	return out
}

// VecGroup realizes a logical vector register
type VecGroup = Group[PhysVec]

// PredGroup realizes a logical predicate
type PredGroup = Group[PhysPred]

// PhysMem is a memory operand with hardware registers
type PhysMem struct {
	Base     PhysGPR
	Index    PhysGPR
	HasIndex bool
	Scale    uint8
	Disp     int32
}

// Phys is one operand of a physical instruction
type Phys struct {
	Kind  Kind
	reg   uint8
	Mem   PhysMem
	Imm   int64
	Label Label
}

// PV wraps a vector register
func PV(r PhysVec) Phys { return Phys{Kind: KindVec, reg: uint8(r)} }

// PP wraps a predicate register
func PP(r PhysPred) Phys { return Phys{Kind: KindPred, reg: uint8(r)} }

// PG wraps a general purpose register
func PG(r PhysGPR) Phys { return Phys{Kind: KindGPR, reg: uint8(r)} }

// PM wraps a memory operand
func PM(m PhysMem) Phys { return Phys{Kind: KindMem, Mem: m} }

// PI wraps an immediate
func PI(v int64) Phys { return Phys{Kind: KindImm, Imm: v} }

// PL wraps a label
func PL(l Label) Phys { return Phys{Kind: KindLabel, Label: l} }

// Vec returns the vector register; it panics on any other kind
func (p Phys) Vec() PhysVec {
	p.must(KindVec)
	return PhysVec(p.reg)
}

// Pred returns the predicate register; it panics on any other kind
func (p Phys) Pred() PhysPred {
	p.must(KindPred)
	return PhysPred(p.reg)
}

// GPR returns the general purpose register; it panics on any other kind
func (p Phys) GPR() PhysGPR {
	p.must(KindGPR)
	return PhysGPR(p.reg)
}

func (p Phys) must(k Kind) {
	if p.Kind != k {
		panic(fmt.Sprintf("operand is %s, not %s", p.Kind, k))
	}
}

func (p Phys) String() string {
	switch p.Kind {
	case KindVec:
		return fmt.Sprintf("V%d", p.reg)
	case KindPred:
		return fmt.Sprintf("P%d", p.reg)
	case KindGPR:
		return fmt.Sprintf("G%d", p.reg)
	case KindMem:
		var sb strings.Builder
		fmt.Fprintf(&sb, "[G%d", p.Mem.Base)
		if p.Mem.HasIndex {
			fmt.Fprintf(&sb, "+G%d*%d", p.Mem.Index, p.Mem.Scale)
		}
		if p.Mem.Disp != 0 {
			fmt.Fprintf(&sb, "%+d", p.Mem.Disp)
		}
		sb.WriteString("]")
		return sb.String()
	case KindImm:
		return fmt.Sprintf("#%d", p.Imm)
	case KindLabel:
		return p.Label.String()
	}
	return "?"
}
