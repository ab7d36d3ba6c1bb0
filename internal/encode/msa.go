package encode

import (
	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

const msaMajor = 0x78000000

// MSA 3RF: wd = ws op wt, df in bit 21 (0 = w, 1 = d)
type msa3RF struct {
	op, minor uint32
	swap      bool
}

var msaFloat = map[op.Op]msa3RF{
	op.Add: {0, 0x1B, false},
	op.Sub: {1, 0x1B, false},
	op.Mul: {2, 0x1B, false},
	op.Div: {3, 0x1B, false},
	op.Fma: {4, 0x1B, false}, // fmadd: wd += ws * wt
	op.Fms: {5, 0x1B, false}, // fmsub: wd -= ws * wt

	op.Ceq: {2, 0x1A, false}, // fceq
	op.Clt: {4, 0x1A, false}, // fclt
	op.Cle: {6, 0x1A, false}, // fcle
	op.Cgt: {4, 0x1A, true},
	op.Cge: {6, 0x1A, true},
	op.Cne: {2, 0x1C, false}, // fcune
}

// MSA 3R: op in bits 25:23, df in bits 22:21 (2 = w, 3 = d)
var msaInt = map[op.Op][2]uint32{
	op.IAdd: {0, 0x0E}, // addv
	op.ISub: {1, 0x0E}, // subv
	op.ShlV: {0, 0x0D}, // sll
	op.SarV: {1, 0x0D}, // sra
	op.ShrV: {2, 0x0D}, // srl
}

// MSA VEC: whole-register bitwise ops
var msaVec = map[op.Op]uint32{
	op.And: 0x7800001E,
	op.Or:  0x7820001E,
	op.Xor: 0x7860001E,
}

const msaNor = 0x7840001E

// MSA 2RF: 9-bit op in bits 25:17, df in bit 16
var msaUnary = map[op.Op]uint32{
	op.CvzF2I:   0x191, // ftrunc_s
	op.Sqrt:     0x193,
	op.RsqrtEst: 0x194, // frsqrt
	op.RcpEst:   0x195, // frcp
	op.Rnd:      0x196, // frint
	op.CvtF2I:   0x19C, // ftint_s
	op.CvtI2F:   0x19E, // ffint_s
}

// MSA BIT shifts by immediate
var msaShift = map[op.Op]uint32{
	op.Shl: 0, // slli
	op.Sar: 1, // srai
	op.Shr: 2, // srli
}

func msaDF(e operand.Elem) uint32 {
	if e == operand.Elem64 {
		return 1
	}
	return 0
}

// IEEE rounding-mode field shared by MSACSR and the Power FPSCR
func ieeeRN(r op.Rounding) uint32 {
	switch r {
	case op.RoundZero:
		return 1
	case op.RoundUp:
		return 2
	case op.RoundDown:
		return 3
	}
	return 0
}

func encodeMSA(p *target.Profile, in Inst, b *builder) error {
	sig := in.sig()
	df := msaDF(in.Elem)
	var pk packer
	reg := func(i int) uint32 {
		r, _ := regOf(in.Args[i])
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
			return emit(0x78BE0019 | reg(1)<<11 | reg(0)<<6)
		case "vm":
			return msaLoadStore(b, p, 0x78000020, in.Elem, uint8(in.Args[0].Vec()), in.Args[1].Mem)
		case "mv":
			return msaLoadStore(b, p, 0x78000024, in.Elem, uint8(in.Args[1].Vec()), in.Args[0].Mem)
		}
		return noForm(in)
	case op.StoreFirst:
		// the FPU registers alias the low 64 bits of the MSA registers
		if sig != "mv" {
			return noForm(in)
		}
		w := uint32(0xE4000000) // swc1
		if in.Elem == operand.Elem64 {
			w = 0xF4000000 // sdc1
		}
		base, disp, err := mipsAddr(b, p, in.Args[0].Mem, func(d int64) bool { return fitsSigned(d, 16) })
		if err != nil {
			return err
		}
		return emit(w | uint32(base)<<21 | reg(1)<<16 | uint32(disp)&0xFFFF)
	case op.Not:
		if sig != "vv" {
			return noForm(in)
		}
		return emit(msaNor | reg(1)<<16 | reg(1)<<11 | reg(0)<<6)
	case op.Shl, op.Shr, op.Sar:
		if sig != "vvi" {
			return noForm(in)
		}
		if err := checkShift(in); err != nil {
			return err
		}
		m := uint32(in.Args[2].Imm)
		dfm := 0x40 | m
		if in.Elem == operand.Elem64 {
			dfm = m
		}
		return emit(msaMajor | msaShift[in.Op]<<23 | dfm<<16 | reg(1)<<11 | reg(0)<<6 | 0x09)
	case op.BranchMask:
		return msaBranch(b, in)
	case op.Jump:
		if sig != "l" {
			return noForm(in)
		}
		b.fixupHere(FixMipsOff16, in.Args[0].Label)
		b.word(0x10000000) // beq $0, $0
		b.word(0)          // delay slot
		return nil
	case op.SetRounding:
		if sig != "im" {
			return noForm(in)
		}
		if err := checkRounding(in.Args[0].Imm); err != nil {
			return err
		}
		s := uint32(p.Scratch)
		b.word(0x34000000 | s<<16 | ieeeRN(op.Rounding(in.Args[0].Imm))) // ori $at, $zero, rm
		b.word(0x783E0019 | s<<11 | 1<<6)                                // ctcmsa MSACSR, $at
		return nil
	}
	if o, ok := msaFloat[in.Op]; ok {
		if sig != "vvv" {
			return noForm(in)
		}
		s, t := reg(1), reg(2)
		if o.swap {
			s, t = t, s
		}
		return emit(msaMajor | o.op<<22 | df<<21 | t<<16 | s<<11 | reg(0)<<6 | o.minor)
	}
	if o, ok := msaInt[in.Op]; ok {
		if sig != "vvv" {
			return noForm(in)
		}
		return emit(msaMajor | o[0]<<23 | (2+df)<<21 | reg(2)<<16 | reg(1)<<11 | reg(0)<<6 | o[1])
	}
	if w, ok := msaVec[in.Op]; ok {
		if sig != "vvv" {
			return noForm(in)
		}
		return emit(w | reg(2)<<16 | reg(1)<<11 | reg(0)<<6)
	}
	if o, ok := msaUnary[in.Op]; ok {
		if sig != "vv" {
			return noForm(in)
		}
		return emit(msaMajor | o<<17 | df<<16 | reg(1)<<11 | reg(0)<<6 | 0x1E)
	}
	return noOp(in, "")
}

// mipsAddr reduces a memory operand to base + disp where fits(disp),
// computing the rest into $at. An index is scaled by repeated doubling.
func mipsAddr(b *builder, p *target.Profile, m operand.PhysMem, fits func(int64) bool) (uint8, int64, error) {
	base := uint8(m.Base)
	disp := int64(m.Disp)
	if !m.HasIndex && fits(disp) {
		return base, disp, nil
	}
	s := uint32(p.Scratch)
	daddu := func(rd, rs, rt uint32) {
		b.word(0x0000002D | rs<<21 | rt<<16 | rd<<11)
	}
	if m.HasIndex {
		idx := uint32(m.Index)
		daddu(s, idx, 0)
		for sc := m.Scale; sc > 1; sc >>= 1 {
			daddu(s, s, s)
		}
		daddu(s, s, uint32(base))
		if fits(disp) {
			return uint8(s), disp, nil
		}
		if !fitsSigned(disp, 16) {
			return 0, 0, errf(engine.KindImmediateOutOfRange, "displacement %d with an index register exceeds 16 bits", disp)
		}
		b.word(0x64000000 | s<<21 | s<<16 | uint32(disp)&0xFFFF) // daddiu
		return uint8(s), 0, nil
	}
	if fitsSigned(disp, 16) {
		b.word(0x64000000 | uint32(base)<<21 | s<<16 | uint32(disp)&0xFFFF) // daddiu
		return uint8(s), 0, nil
	}
	b.word(0x3C000000 | s<<16 | uint32(disp>>16)&0xFFFF)     // lui
	b.word(0x34000000 | s<<21 | s<<16 | uint32(disp)&0xFFFF) // ori
	daddu(s, s, uint32(base))
	return uint8(s), 0, nil
}

// msaLoadStore encodes ld.df / st.df, whose 10-bit offset is scaled by
// the element size
func msaLoadStore(b *builder, p *target.Profile, w uint32, e operand.Elem, wd uint8, m operand.PhysMem) error {
	var pk packer
	d := pk.reg(wd, 5)
	if pk.err != nil {
		return pk.err
	}
	eb := int64(e.Bytes())
	base, disp, err := mipsAddr(b, p, m, func(d int64) bool {
		return d%eb == 0 && fitsSigned(d/eb, 10)
	})
	if err != nil {
		return err
	}
	b.word(w | (uint32(disp/eb)&0x3FF)<<16 | uint32(base)<<11 | d<<6 | (2 + msaDF(e)))
	return nil
}

// msaBranch: bnz.df branches when every element is nonzero, bz.v when
// the whole register is zero. Each is followed by a delay slot.
func msaBranch(b *builder, in Inst) error {
	if in.sig() != "vvil" {
		return noForm(in)
	}
	if err := checkCond(in); err != nil {
		return err
	}
	var pk packer
	t := pk.reg(uint8(in.Args[0].Vec()), 5)
	if pk.err != nil {
		return pk.err
	}
	w := uint32(0x45600000) // bz.v
	if in.Args[2].Imm == int64(op.CondAll) {
		w = 0x47C00000 // bnz.w
		if in.Elem == operand.Elem64 {
			w = 0x47E00000 // bnz.d
		}
	}
	b.fixupHere(FixMipsOff16, in.Args[3].Label)
	b.word(w | t<<16)
	b.word(0)
	return nil
}
