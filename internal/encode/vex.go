package encode

import (
	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

var (
	psPD = [2]byte{ppNone, pp66}
	all  = [2]byte{pp66, pp66}
	w01  = [2]bool{false, true}
)

// packed float op in map 0F with the same opcode for ps and pd
func fp(opc byte, f form) x86op {
	return x86op{pp: psPD, mm: map0F, opc: [2]byte{opc, opc}, form: f, imm: -1}
}

// vcmpps/pd predicates
const (
	cmpEQ  = 0x00
	cmpLT  = 0x01
	cmpLE  = 0x02
	cmpNEQ = 0x04
	cmpGE  = 0x0D
	cmpGT  = 0x0E
)

func cmp(pred int16) x86op {
	t := fp(0xC2, fRVMI)
	t.imm = pred
	return t
}

// vroundps/pd and vrndscaleps/pd immediates: bits 1:0 are the mode,
// bit 2 selects the MXCSR mode instead
func round(imm int16) x86op {
	return x86op{pp: all, mm: map0F3A, opc: [2]byte{0x08, 0x09}, w: w01, form: fRMI, imm: imm}
}

func roundImm(o op.Op) int16 {
	if o == op.Rnd {
		return 4
	}
	r, _ := op.RoundingOf(o)
	switch r {
	case op.RoundDown:
		return 1
	case op.RoundUp:
		return 2
	case op.RoundZero:
		return 3
	}
	return 0
}

var (
	vexLoad       = fp(0x10, fRM)
	vexStore      = fp(0x11, fMR)
	vexStoreFirst = x86op{pp: [2]byte{ppF3, ppF2}, mm: map0F, opc: [2]byte{0x11, 0x11}, form: fMR, imm: -1, lz: true}
	vexMovmsk     = fp(0x50, fRM)
)

var vexOps = map[op.Op]x86op{
	op.And:  fp(0x54, fRVM),
	op.Andn: fp(0x55, fRVM),
	op.Or:   fp(0x56, fRVM),
	op.Xor:  fp(0x57, fRVM),

	op.Add:  fp(0x58, fRVM),
	op.Mul:  fp(0x59, fRVM),
	op.Sub:  fp(0x5C, fRVM),
	op.Div:  fp(0x5E, fRVM),
	op.Sqrt: fp(0x51, fRM),

	op.RcpEst:   {pp: psPD, mm: map0F, opc: [2]byte{0x53, 0}, form: fRM, imm: -1},
	op.RsqrtEst: {pp: psPD, mm: map0F, opc: [2]byte{0x52, 0}, form: fRM, imm: -1},

	op.Fma: {pp: all, mm: map0F38, opc: [2]byte{0xB8, 0xB8}, w: w01, form: fRVM, imm: -1, feat: target.FeatFMA},
	op.Fms: {pp: all, mm: map0F38, opc: [2]byte{0xBC, 0xBC}, w: w01, form: fRVM, imm: -1, feat: target.FeatFMA},

	op.IAdd: {pp: all, mm: map0F, opc: [2]byte{0xFE, 0xD4}, form: fRVM, imm: -1, wide: true},
	op.ISub: {pp: all, mm: map0F, opc: [2]byte{0xFA, 0xFB}, form: fRVM, imm: -1, wide: true},

	op.Shl: {pp: all, mm: map0F, opc: [2]byte{0x72, 0x73}, form: fVMI, ext: 6, wide: true},
	op.Shr: {pp: all, mm: map0F, opc: [2]byte{0x72, 0x73}, form: fVMI, ext: 2, wide: true},
	op.Sar: {pp: all, mm: map0F, opc: [2]byte{0x72, 0}, form: fVMI, ext: 4, wide: true},

	op.ShlV: {pp: all, mm: map0F38, opc: [2]byte{0x47, 0x47}, w: w01, form: fRVM, imm: -1, feat: target.FeatVarShift},
	op.ShrV: {pp: all, mm: map0F38, opc: [2]byte{0x45, 0x45}, w: w01, form: fRVM, imm: -1, feat: target.FeatVarShift},
	op.SarV: {pp: all, mm: map0F38, opc: [2]byte{0x46, 0}, form: fRVM, imm: -1, feat: target.FeatVarShift},

	op.Ceq: cmp(cmpEQ),
	op.Cne: cmp(cmpNEQ),
	op.Clt: cmp(cmpLT),
	op.Cle: cmp(cmpLE),
	op.Cgt: cmp(cmpGT),
	op.Cge: cmp(cmpGE),

	op.CvzF2I: {pp: [2]byte{ppF3, ppF3}, mm: map0F, opc: [2]byte{0x5B, 0}, form: fRM, imm: -1},
	op.CvtF2I: {pp: all, mm: map0F, opc: [2]byte{0x5B, 0}, form: fRM, imm: -1},
	op.CvtI2F: {pp: [2]byte{ppNone, ppNone}, mm: map0F, opc: [2]byte{0x5B, 0}, form: fRM, imm: -1},

	op.Rnn: round(0),
	op.Rnm: round(1),
	op.Rnp: round(2),
	op.Rnz: round(3),
	op.Rnd: round(4),
}

// checkShift rejects shift counts outside 0 .. lane width - 1
func checkShift(in Inst) error {
	if len(in.Args) == 3 && in.Args[2].Kind == operand.KindImm {
		if n := in.Args[2].Imm; n < 0 || n >= int64(in.Elem) {
			return errf(engine.KindImmediateOutOfRange, "shift count %d outside 0..%d", n, int(in.Elem)-1)
		}
	}
	return nil
}

func checkCond(in Inst) error {
	if c := in.Args[2].Imm; c != int64(op.CondNone) && c != int64(op.CondAll) {
		return errf(engine.KindImmediateOutOfRange, "branch condition %d is neither NONE (0) nor ALL (1)", c)
	}
	return nil
}

// x86Mov picks the load or store template by operand kinds
func x86Mov(b *builder, p *target.Profile, in Inst, load, store x86op) error {
	t := load
	switch in.sig() {
	case "vv", "vm":
	case "mv":
		t = store
	default:
		return noForm(in)
	}
	a, err := t.operands(in)
	if err != nil {
		return err
	}
	return emitX86(b, p, in, t, a)
}

func encodeVEX(p *target.Profile, in Inst, b *builder) error {
	switch in.Op {
	case op.Mov:
		return x86Mov(b, p, in, vexLoad, vexStore)
	case op.StoreFirst:
		a, err := vexStoreFirst.operands(in)
		if err != nil {
			return err
		}
		return emitX86(b, p, in, vexStoreFirst, a)
	case op.Jump:
		return x86Jump(b, in)
	case op.SetRounding:
		return x86SetRounding(b, p, in)
	case op.BranchMask:
		return vexBranch(b, p, in)
	case op.Shl, op.Shr, op.Sar:
		if err := checkShift(in); err != nil {
			return err
		}
	}
	t, ok := vexOps[in.Op]
	if !ok {
		return noOp(in, "")
	}
	a, err := t.operands(in)
	if err != nil {
		return err
	}
	return emitX86(b, p, in, t, a)
}

// vexBranch moves the lane sign bits into the scratch GPR and compares
// them against all-ones (ALL) or zero (NONE)
func vexBranch(b *builder, p *target.Profile, in Inst) error {
	if in.sig() != "vvil" {
		return noForm(in)
	}
	if err := checkCond(in); err != nil {
		return err
	}
	s := uint8(p.Scratch)
	if err := emitX86(b, p, in, vexMovmsk, x86args{reg: s, rm: in.Args[0], imm: -1, rc: -1}); err != nil {
		return err
	}
	if in.Args[2].Imm == int64(op.CondAll) {
		full := uint32(1)<<p.Lanes(in.Elem) - 1
		// cmp r32, imm32
		b.inst(0x40|bit(s&8 != 0), 0x81, 0xF8|s&7, byte(full), byte(full>>8), byte(full>>16), byte(full>>24))
	} else {
		// test r32, r32
		b.inst(0x40|bit(s&8 != 0)<<2|bit(s&8 != 0), 0x85, 0xC0|(s&7)<<3|s&7)
	}
	x86Branch(b, in.Args[3].Label, 0x0F, 0x84)
	return nil
}
