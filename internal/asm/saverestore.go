package asm

import (
	"github.com/xyproto/rtasm/internal/encode"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

// SaveAreaSize returns the number of bytes SaveAll writes
func SaveAreaSize(p *target.Profile) int {
	return p.Regs * p.LogicalBytes()
}

// SlotOffset returns where SaveAll stores tuple position i of logical
// register v, relative to the save area
func SlotOffset(p *target.Profile, v operand.Vec, i int) int {
	return (int(v)*p.N + i) * p.NativeBytes()
}

// saveRestore stores (SaveAll) or loads (LoadAll) every visible logical
// register, position by position, in register order. The moves are
// plain copies, so any bit pattern survives, signalling NaNs included.
// Slots are naturally aligned when the area is aligned to the native
// vector width. The copies always use the profile's first element width,
// so the image does not depend on e: VSX lays out lxvw4x and lxvd2x lanes
// differently in memory.
func (a *Assembler) saveRestore(o op.Op, e operand.Elem, area operand.Mem) error {
	e = a.p.Elems()[0]
	for r := 0; r < a.p.Regs; r++ {
		v := operand.Vec(r)
		g := a.p.Group(v)
		for i := 0; i < g.Len(); i++ {
			slot, err := a.physMem(area, int64(SlotOffset(a.p, v, i)))
			if err != nil {
				return err
			}
			reg := operand.PV(g.At(i))
			args := []operand.Phys{slot, reg}
			if o == op.LoadAll {
				args = []operand.Phys{reg, slot}
			}
			if err := a.phys(encode.Inst{Op: op.Mov, Elem: e, Args: args}); err != nil {
				return err
			}
		}
	}
	return nil
}
