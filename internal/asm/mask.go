package asm

import (
	"github.com/xyproto/rtasm/internal/encode"
	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
)

// branchMask branches to l when every lane of mask is all-ones (ALL) or
// all-zero (NONE). A wide mask is first reduced across its tuple into a
// scratch register, with AND for ALL and OR for NONE, so the branch
// itself is a single physical instruction.
func (a *Assembler) branchMask(e operand.Elem, mask operand.Vec, cond operand.Imm, l operand.Label) error {
	if cond != op.CondAll && cond != op.CondNone {
		return engine.NewError(engine.KindImmediateOutOfRange,
			"branch condition %d is neither NONE (%d) nor ALL (%d)", cond, op.CondNone, op.CondAll)
	}
	t, err := a.acquire(2)
	if err != nil {
		return err
	}
	defer a.release(2)

	g := a.p.Group(mask)
	src := g.At(0)
	if g.Len() > 1 {
		reduce := op.And
		if cond == op.CondNone {
			reduce = op.Or
		}
		acc := a.p.Group(t).At(0)
		for i := 1; i < g.Len(); i++ {
			in := encode.Inst{Op: reduce, Elem: e, Args: []operand.Phys{
				operand.PV(acc), operand.PV(src), operand.PV(g.At(i)),
			}}
			if err := a.phys(in); err != nil {
				return err
			}
			src = acc
		}
	}
	tmp := a.p.Group(t + 1).At(0)
	return a.phys(encode.Inst{Op: op.BranchMask, Elem: e, Args: []operand.Phys{
		operand.PV(src), operand.PV(tmp), operand.PI(int64(cond)), operand.PL(l),
	}})
}
