package encode

import (
	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/target"
)

// packed float op with W selecting pd, as EVEX requires
func efp(opc byte, f form) x86op {
	return x86op{pp: psPD, mm: map0F, opc: [2]byte{opc, opc}, w: w01, form: f, imm: -1}
}

// packed integer op in map 0F, W selecting the quadword form
func eint(opc byte) x86op {
	return x86op{pp: all, mm: map0F, opc: [2]byte{opc, opc}, w: w01, form: fRVM, imm: -1}
}

func ecmp(pred int16) x86op {
	t := efp(0xC2, fRVMI)
	t.imm = pred
	return t
}

var (
	evexLoad       = efp(0x10, fRM)
	evexStore      = efp(0x11, fMR)
	evexStoreFirst = x86op{pp: [2]byte{ppF3, ppF2}, mm: map0F, opc: [2]byte{0x11, 0x11}, w: w01, form: fMR, imm: -1, lz: true}
	evexMaskToVec  = x86op{pp: [2]byte{ppF3, ppF3}, mm: map0F38, opc: [2]byte{0x38, 0x38}, w: w01, form: fRM, imm: -1}
	evexVecToMask  = x86op{pp: [2]byte{ppF3, ppF3}, mm: map0F38, opc: [2]byte{0x39, 0x39}, w: w01, form: fRM, imm: -1, feat: target.FeatDQ}
	evexTernlog    = x86op{pp: all, mm: map0F3A, opc: [2]byte{0x25, 0x25}, w: w01, form: fRVMI, imm: 0x55}
	evexBlend      = x86op{pp: all, mm: map0F38, opc: [2]byte{0x65, 0x65}, w: w01, form: fRVM, imm: -1}

	evexCvtF2I = x86op{pp: all, mm: map0F, opc: [2]byte{0x5B, 0x7B}, w: w01, form: fRM, imm: -1}
	evexCvtI2F = x86op{pp: [2]byte{ppNone, ppF3}, mm: map0F, opc: [2]byte{0x5B, 0xE6}, w: w01, form: fRM, imm: -1}
)

var evexOps = map[op.Op]x86op{
	op.And:  eint(0xDB),
	op.Andn: eint(0xDF),
	op.Or:   eint(0xEB),
	op.Xor:  eint(0xEF),

	op.Add:  efp(0x58, fRVM),
	op.Mul:  efp(0x59, fRVM),
	op.Sub:  efp(0x5C, fRVM),
	op.Div:  efp(0x5E, fRVM),
	op.Sqrt: efp(0x51, fRM),

	op.RcpEst:   {pp: all, mm: map0F38, opc: [2]byte{0x4C, 0x4C}, w: w01, form: fRM, imm: -1},
	op.RsqrtEst: {pp: all, mm: map0F38, opc: [2]byte{0x4E, 0x4E}, w: w01, form: fRM, imm: -1},

	op.Fma: {pp: all, mm: map0F38, opc: [2]byte{0xB8, 0xB8}, w: w01, form: fRVM, imm: -1},
	op.Fms: {pp: all, mm: map0F38, opc: [2]byte{0xBC, 0xBC}, w: w01, form: fRVM, imm: -1},

	op.IAdd: {pp: all, mm: map0F, opc: [2]byte{0xFE, 0xD4}, w: w01, form: fRVM, imm: -1},
	op.ISub: {pp: all, mm: map0F, opc: [2]byte{0xFA, 0xFB}, w: w01, form: fRVM, imm: -1},

	op.Shl: {pp: all, mm: map0F, opc: [2]byte{0x72, 0x73}, w: w01, form: fVMI, ext: 6},
	op.Shr: {pp: all, mm: map0F, opc: [2]byte{0x72, 0x73}, w: w01, form: fVMI, ext: 2},
	op.Sar: {pp: all, mm: map0F, opc: [2]byte{0x72, 0x72}, w: w01, form: fVMI, ext: 4},

	op.ShlV: {pp: all, mm: map0F38, opc: [2]byte{0x47, 0x47}, w: w01, form: fRVM, imm: -1},
	op.ShrV: {pp: all, mm: map0F38, opc: [2]byte{0x45, 0x45}, w: w01, form: fRVM, imm: -1},
	op.SarV: {pp: all, mm: map0F38, opc: [2]byte{0x46, 0x46}, w: w01, form: fRVM, imm: -1},

	op.CvzF2I: {pp: [2]byte{ppF3, pp66}, mm: map0F, opc: [2]byte{0x5B, 0x7A}, w: w01, form: fRM, imm: -1},
	op.CvtF2I: evexCvtF2I,
	op.CvtI2F: evexCvtI2F,
}

var evexCompares = map[op.Op]x86op{
	op.Ceq: ecmp(cmpEQ),
	op.Cne: ecmp(cmpNEQ),
	op.Clt: ecmp(cmpLT),
	op.Cle: ecmp(cmpLE),
	op.Cgt: ecmp(cmpGT),
	op.Cge: ecmp(cmpGE),
}

func encodeEVEX(p *target.Profile, in Inst, b *builder) error {
	switch in.Op {
	case op.Mov:
		return evexMov(b, p, in)
	case op.StoreFirst:
		a, err := evexStoreFirst.operands(in)
		if err != nil {
			return err
		}
		a.n = in.Elem.Bytes()
		return emitX86(b, p, in, evexStoreFirst, a)
	case op.Jump:
		return x86Jump(b, in)
	case op.SetRounding:
		return x86SetRounding(b, p, in)
	case op.BranchMask:
		return evexBranch(b, p, in)
	case op.Not:
		if in.sig() != "vv" && in.sig() != "vm" {
			return noForm(in)
		}
		d, _ := regOf(in.Args[0])
		return emitX86(b, p, in, evexTernlog, x86args{reg: d, vvvv: d, rm: in.Args[1], imm: 0x55, rc: -1})
	case op.Select:
		return evexSelect(b, p, in)
	case op.Shl, op.Shr, op.Sar:
		if err := checkShift(in); err != nil {
			return err
		}
	case op.Rnn, op.Rnm, op.Rnp, op.Rnz, op.Rnd:
		t := round(roundImm(in.Op))
		a, err := t.operands(in)
		if err != nil {
			return err
		}
		return emitX86(b, p, in, t, a)
	case op.CvnF2I, op.CvpF2I, op.CvmF2I, op.CvnI2F:
		return evexRounded(b, p, in)
	}
	if t, ok := evexCompares[in.Op]; ok {
		if in.sig() != "pvv" && in.sig() != "pvm" {
			return noForm(in)
		}
		a, err := t.operands(in)
		if err != nil {
			return err
		}
		return emitX86(b, p, in, t, a)
	}
	t, ok := evexOps[in.Op]
	if !ok {
		return noOp(in, "")
	}
	a, err := t.operands(in)
	if err != nil {
		return err
	}
	return emitX86(b, p, in, t, a)
}

func evexMov(b *builder, p *target.Profile, in Inst) error {
	var t x86op
	switch in.sig() {
	case "vp":
		t = evexMaskToVec
	case "pv":
		t = evexVecToMask
	default:
		return x86Mov(b, p, in, evexLoad, evexStore)
	}
	a, err := t.operands(in)
	if err != nil {
		return err
	}
	return emitX86(b, p, in, t, a)
}

// evexSelect is vblendmps dst{k}, b, a: lanes with k set take a
func evexSelect(b *builder, p *target.Profile, in Inst) error {
	if in.sig() != "vpvv" {
		return noForm(in)
	}
	k := in.Args[1].Pred()
	if k == 0 || k > 7 {
		return errf(engine.KindInvalidOperandKind, "k%d cannot be a write mask", k)
	}
	d, _ := regOf(in.Args[0])
	bv, _ := regOf(in.Args[3])
	return emitX86(b, p, in, evexBlend, x86args{reg: d, vvvv: bv, rm: in.Args[2], imm: -1, rc: -1, aaa: uint8(k)})
}

// evexRounded encodes a conversion with a static rounding mode through
// embedded rounding control, which needs a register source
func evexRounded(b *builder, p *target.Profile, in Inst) error {
	if in.sig() != "vv" {
		return noForm(in)
	}
	t := evexCvtF2I
	if in.Op == op.CvnI2F {
		t = evexCvtI2F
	}
	r, _ := op.RoundingOf(in.Op)
	a, err := t.operands(in)
	if err != nil {
		return err
	}
	a.rc = int(r)
	return emitX86(b, p, in, t, a)
}

// evexBranch moves the lane sign bits into k7 and tests it: kortest
// sets CF when every bit is one and ZF when every bit is zero
func evexBranch(b *builder, p *target.Profile, in Inst) error {
	if in.sig() != "vvil" {
		return noForm(in)
	}
	if err := checkCond(in); err != nil {
		return err
	}
	if err := emitX86(b, p, in, evexVecToMask, x86args{reg: 7, rm: in.Args[0], imm: -1, rc: -1}); err != nil {
		return err
	}
	if p.Lanes(in.Elem) == 16 {
		b.inst(0xC5, 0xF8, 0x98, 0xFF) // kortestw k7, k7
	} else {
		b.inst(0xC5, 0xF9, 0x98, 0xFF) // kortestb k7, k7
	}
	if in.Args[2].Imm == int64(op.CondAll) {
		x86Branch(b, in.Args[3].Label, 0x0F, 0x82)
	} else {
		x86Branch(b, in.Args[3].Label, 0x0F, 0x84)
	}
	return nil
}
