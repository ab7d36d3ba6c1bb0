package encode

import (
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

// Vector register k is VSR 32+k: the low five bits are k and the
// extension bit (TX, AX, BX) is set. VR31 is an encoder temporary.
const (
	vsxTmp      = 31
	ppcScratch2 = 11
)

func xx3(xo, t, a, b uint32) uint32 {
	return 60<<26 | t<<21 | a<<16 | b<<11 | xo<<3 | 1<<2 | 1<<1 | 1
}

func xx2(xo, t, b uint32) uint32 {
	return 60<<26 | t<<21 | b<<11 | xo<<2 | 1<<1 | 1
}

func vx(xo, t, a, b uint32) uint32 {
	return 4<<26 | t<<21 | a<<16 | b<<11 | xo
}

type vsxOp struct {
	xo   [2]uint32 // per lane width, zero when absent
	swap bool
	feat target.Feature
}

func vsxSame(xo uint32) vsxOp { return vsxOp{xo: [2]uint32{xo, xo}} }

// XX3: xt = xa op xb
var vsx3 = map[op.Op]vsxOp{
	op.Add: {xo: [2]uint32{64, 96}},
	op.Sub: {xo: [2]uint32{72, 104}},
	op.Mul: {xo: [2]uint32{80, 112}},
	op.Div: {xo: [2]uint32{88, 120}},
	op.Fma: {xo: [2]uint32{65, 97}},   // xvmadda: xt += xa * xb
	op.Fms: {xo: [2]uint32{209, 241}}, // xvnmsuba: xt -= xa * xb

	op.Ceq: {xo: [2]uint32{67, 99}},
	op.Cgt: {xo: [2]uint32{75, 107}},
	op.Cge: {xo: [2]uint32{83, 115}},
	op.Clt: {xo: [2]uint32{75, 107}, swap: true},
	op.Cle: {xo: [2]uint32{83, 115}, swap: true},

	op.And:  vsxSame(130),
	op.Andn: {xo: [2]uint32{138, 138}, swap: true}, // xxlandc xt, b, a
	op.Or:   vsxSame(146),
	op.Xor:  vsxSame(154),
	op.Orn:  {xo: [2]uint32{170, 170}, feat: target.FeatISA207}, // xxlorc
}

const (
	xxlor  = 146
	xxlnor = 162
)

// XX2: xt = op xb
var vsx2 = map[op.Op][2]uint32{
	op.Sqrt:     {139, 203},
	op.RcpEst:   {154, 218},
	op.RsqrtEst: {138, 202},
	op.CvzF2I:   {152, 472}, // xvcvspsxws, xvcvdpsxds
	op.CvtI2F:   {184, 504}, // xvcvsxwsp, xvcvsxddp
	op.Rnz:      {153, 217},
	op.Rnp:      {169, 233},
	op.Rnm:      {185, 249},
	op.Rnd:      {171, 235},
}

// VMX integer ops: vt = va op vb
var vmx = map[op.Op][2]uint32{
	op.IAdd: {128, 192},
	op.ISub: {1152, 1216},
	op.ShlV: {388, 1476},
	op.ShrV: {644, 1732},
	op.SarV: {900, 964},
}

var vmxShift = map[op.Op]op.Op{
	op.Shl: op.ShlV,
	op.Shr: op.ShrV,
	op.Sar: op.SarV,
}

const (
	vspltisw = 908
	vspltw   = 652
	vxor     = 1220
)

func encodeVSX(p *target.Profile, in Inst, b *builder) error {
	sig := in.sig()
	i := ei(in.Elem)
	var pk packer
	reg := func(k int) uint32 {
		r, _ := regOf(in.Args[k])
		return pk.reg(r, 5)
	}
	emit := func(w uint32) error {
		if pk.err != nil {
			return pk.err
		}
		b.word(w)
		return nil
	}

	switch in.Op {
	case op.Mov:
		switch sig {
		case "vv":
			return emit(xx3(xxlor, reg(0), reg(1), reg(1)))
		case "vm":
			xo := [2]uint32{780, 844}[i] // lxvw4x, lxvd2x
			t := reg(0)
			if pk.err != nil {
				return pk.err
			}
			ra, rb := ppcAddr(b, p, in.Args[1].Mem)
			return emit(31<<26 | t<<21 | uint32(ra)<<16 | uint32(rb)<<11 | xo<<1 | 1)
		case "mv":
			xo := [2]uint32{908, 972}[i] // stxvw4x, stxvd2x
			s := reg(1)
			if pk.err != nil {
				return pk.err
			}
			ra, rb := ppcAddr(b, p, in.Args[0].Mem)
			return emit(31<<26 | s<<21 | uint32(ra)<<16 | uint32(rb)<<11 | xo<<1 | 1)
		}
		return noForm(in)
	case op.StoreFirst:
		if sig != "mv" {
			return noForm(in)
		}
		s := reg(1)
		if pk.err != nil {
			return pk.err
		}
		if in.Elem == operand.Elem64 {
			ra, rb := ppcAddr(b, p, in.Args[0].Mem)
			return emit(31<<26 | s<<21 | uint32(ra)<<16 | uint32(rb)<<11 | 716<<1 | 1) // stxsdx
		}
		// splat word 0 so stvewx stores it whatever the address alignment
		b.word(vx(vspltw, vsxTmp, 0, s))
		ra, rb := ppcAddr(b, p, in.Args[0].Mem)
		return emit(31<<26 | vsxTmp<<21 | uint32(ra)<<16 | uint32(rb)<<11 | 199<<1) // stvewx
	case op.Not:
		if sig != "vv" {
			return noForm(in)
		}
		return emit(xx3(xxlnor, reg(0), reg(1), reg(1)))
	case op.Shl, op.Shr, op.Sar:
		return vsxShift(b, in)
	case op.BranchMask:
		return vsxBranch(b, in)
	case op.Jump:
		if sig != "l" {
			return noForm(in)
		}
		b.fixupHere(FixPPCLI, in.Args[0].Label)
		b.word(18 << 26)
		return nil
	case op.SetRounding:
		if sig != "im" {
			return noForm(in)
		}
		if err := checkRounding(in.Args[0].Imm); err != nil {
			return err
		}
		b.word(0xFC00010C | 7<<23 | ieeeRN(op.Rounding(in.Args[0].Imm))<<12) // mtfsfi 7, rn
		return nil
	}
	if o, ok := vsx3[in.Op]; ok {
		if sig != "vvv" {
			return noForm(in)
		}
		if o.feat != 0 && !p.Has(o.feat) {
			return noOp(in, "requires POWER8")
		}
		a, c := reg(1), reg(2)
		if o.swap {
			a, c = c, a
		}
		return emit(xx3(o.xo[i], reg(0), a, c))
	}
	if o, ok := vsx2[in.Op]; ok {
		if sig != "vv" {
			return noForm(in)
		}
		return emit(xx2(o[i], reg(0), reg(1)))
	}
	if o, ok := vmx[in.Op]; ok {
		if sig != "vvv" {
			return noForm(in)
		}
		return emit(vx(o[i], reg(0), reg(1), reg(2)))
	}
	return noOp(in, "")
}

// ppcAddr returns RA and RB for an indexed (X-form) access, building
// the displacement and scaled index in r12 and r11. RA = 0 reads as zero.
func ppcAddr(b *builder, p *target.Profile, m operand.PhysMem) (uint8, uint8) {
	base := uint8(m.Base)
	disp := int64(m.Disp)
	switch {
	case !m.HasIndex && disp == 0:
		return 0, base
	case m.HasIndex && disp == 0 && m.Scale <= 1:
		return base, uint8(m.Index)
	}
	s := uint32(p.Scratch)
	add := func(rt, ra, rb uint32) {
		b.word(31<<26 | rt<<21 | ra<<16 | rb<<11 | 266<<1)
	}
	if fitsSigned(disp, 16) {
		b.word(14<<26 | s<<21 | uint32(disp)&0xFFFF) // li
	} else {
		b.word(15<<26 | s<<21 | uint32(disp>>16)&0xFFFF)     // lis
		b.word(24<<26 | s<<21 | s<<16 | uint32(disp)&0xFFFF) // ori
	}
	if m.HasIndex {
		idx := uint32(m.Index)
		if m.Scale <= 1 {
			add(s, s, idx)
		} else {
			add(ppcScratch2, idx, idx)
			for sc := m.Scale; sc > 2; sc >>= 1 {
				add(ppcScratch2, ppcScratch2, ppcScratch2)
			}
			add(s, s, ppcScratch2)
		}
	}
	return base, uint8(s)
}

// vsxShift shifts by an immediate splatted into VR31. vspltisw takes
// -16..15 and the shifts use the low 5 (words) or 6 (doublewords) bits
// of each element, so 64-bit counts 16..47 are done in steps.
func vsxShift(b *builder, in Inst) error {
	if in.sig() != "vvi" {
		return noForm(in)
	}
	if err := checkShift(in); err != nil {
		return err
	}
	var pk packer
	d := pk.reg(uint8(in.Args[0].Vec()), 5)
	src := pk.reg(uint8(in.Args[1].Vec()), 5)
	if pk.err != nil {
		return pk.err
	}
	xo := vmx[vmxShift[in.Op]][ei(in.Elem)]
	n := int(in.Args[2].Imm)
	bits := int(in.Elem)
	step := func(k int) {
		simm := k
		if k >= 16 {
			simm = k - bits
		}
		b.word(vx(vspltisw, vsxTmp, uint32(simm)&31, 0))
		b.word(vx(xo, d, src, vsxTmp))
		src = d
	}
	if bits == 32 || n < 16 || n >= 48 {
		step(n)
		return nil
	}
	for n > 0 {
		k := min(n, 15)
		step(k)
		n -= k
	}
	return nil
}

// vsxBranch compares the mask with zero into CR6: bit 24 means every
// word was zero (NONE), bit 26 means none was (ALL)
func vsxBranch(b *builder, in Inst) error {
	if in.sig() != "vvil" {
		return noForm(in)
	}
	if err := checkCond(in); err != nil {
		return err
	}
	var pk packer
	mask := pk.reg(uint8(in.Args[0].Vec()), 5)
	if pk.err != nil {
		return pk.err
	}
	bi := uint32(24)
	if in.Args[2].Imm == int64(op.CondAll) {
		bi = 26
	}
	b.word(vx(vxor, vsxTmp, vsxTmp, vsxTmp))
	b.word(vx(134|1<<10, vsxTmp, mask, vsxTmp)) // vcmpequw.
	b.fixupHere(FixPPCBD, in.Args[3].Label)
	b.word(16<<26 | 12<<21 | bi<<16) // bc 12, bi
	return nil
}
