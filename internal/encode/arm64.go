package encode

import (
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

// log2 of an index scale
func scaleShift(s uint8) uint32 {
	switch s {
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	}
	return 0
}

// armMovImm materializes a 64-bit constant with movz or movn and movk
func armMovImm(b *builder, rd uint8, v int64) {
	u := uint64(v)
	neg := v < 0
	fill := uint64(0)
	if neg {
		fill = 0xFFFF
	}
	first := true
	for hw := uint32(0); hw < 4; hw++ {
		part := (u >> (16 * hw)) & 0xFFFF
		if part == fill {
			continue
		}
		switch {
		case first && neg:
			b.word(0x92800000 | hw<<21 | uint32(^part&0xFFFF)<<5 | uint32(rd)) // movn
		case first:
			b.word(0xD2800000 | hw<<21 | uint32(part)<<5 | uint32(rd)) // movz
		default:
			b.word(0xF2800000 | hw<<21 | uint32(part)<<5 | uint32(rd)) // movk
		}
		first = false
	}
	if first {
		// every halfword equals the fill pattern: 0 or -1
		if neg {
			b.word(0x92800000 | uint32(rd))
		} else {
			b.word(0xD2800000 | uint32(rd))
		}
	}
}

// armAdd emits add xd, xn, xm, lsl #sh
func armAdd(b *builder, d, n, m uint8, sh uint32) {
	b.word(0x8B000000 | uint32(m)<<16 | sh<<10 | uint32(n)<<5 | uint32(d))
}

// armAddr reduces a memory operand to a base register and a
// displacement the caller can encode. When the displacement does not
// fit, or there is an index, the address is built in the scratch register.
func armAddr(b *builder, p *target.Profile, m operand.PhysMem, fits func(int64) bool) (uint8, int64) {
	s := uint8(p.Scratch)
	base := uint8(m.Base)
	disp := int64(m.Disp)
	if !fits(disp) {
		armMovImm(b, s, disp)
		armAdd(b, s, s, base, 0)
		base, disp = s, 0
	}
	if m.HasIndex {
		armAdd(b, s, base, uint8(m.Index), scaleShift(m.Scale))
		base = s
	}
	return base, disp
}

// armLS is a load or store with a scaled unsigned offset form and an
// unscaled signed form
type armLS struct {
	scaled, unscaled uint32
	unit             int64
}

func (ls armLS) scaledFits(d int64) bool {
	return d >= 0 && d%ls.unit == 0 && d/ls.unit < 4096
}

func armLoadStore(b *builder, p *target.Profile, ls armLS, rt uint8, m operand.PhysMem) error {
	var pk packer
	t := pk.reg(rt, 5)
	if pk.err != nil {
		return pk.err
	}
	rn, d := armAddr(b, p, m, func(d int64) bool {
		return ls.scaledFits(d) || fitsSigned(d, 9)
	})
	if ls.scaledFits(d) {
		b.word(ls.scaled | uint32(d/ls.unit)<<10 | uint32(rn)<<5 | t)
	} else {
		b.word(ls.unscaled | (uint32(d)&0x1FF)<<12 | uint32(rn)<<5 | t)
	}
	return nil
}

// arm64 condition codes
const (
	condEQ = 0x0
)

// armBranch emits a branch word whose displacement is patched later
func armBranch(b *builder, w uint32, kind FixupKind, l operand.Label) {
	b.fixupHere(kind, l)
	b.word(w)
}

func armJump(b *builder, in Inst) error {
	if in.sig() != "l" {
		return noForm(in)
	}
	armBranch(b, 0x14000000, FixArmImm26, in.Args[0].Label)
	return nil
}

// FPCR.RMode values
func armRMode(r op.Rounding) uint32 {
	switch r {
	case op.RoundUp:
		return 1
	case op.RoundDown:
		return 2
	case op.RoundZero:
		return 3
	}
	return 0
}

// armSetRounding writes FPCR with RMode in bits 23:22 and every other
// control bit clear, which is the state the AAPCS64 guarantees on entry
func armSetRounding(b *builder, p *target.Profile, in Inst) error {
	if in.sig() != "im" {
		return noForm(in)
	}
	if err := checkRounding(in.Args[0].Imm); err != nil {
		return err
	}
	s := uint32(p.Scratch)
	mode := armRMode(op.Rounding(in.Args[0].Imm))
	b.word(0x52A00000 | (mode<<6)<<5 | s) // movz w16, #rmode<<6, lsl #16
	b.word(0xD51B4400 | s)                // msr fpcr, x16
	return nil
}
