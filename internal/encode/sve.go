package encode

import (
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

// p0 is all-true for the whole program, p15 is a temporary
const (
	svePg  = 0
	sveTmp = 15
)

// element size field, bits 23:22
func sveSize(e operand.Elem) uint32 {
	if e == operand.Elem64 {
		return 3 << 22
	}
	return 2 << 22
}

// unpredicated d = n op m
var sve3 = map[op.Op]struct {
	w     uint32
	sized bool
	swap  bool
}{
	op.And:  {w: 0x04203000},
	op.Or:   {w: 0x04603000},
	op.Xor:  {w: 0x04A03000},
	op.Andn: {w: 0x04E03000, swap: true}, // bic d, b, a
	op.Add:  {w: 0x65000000, sized: true},
	op.Sub:  {w: 0x65000400, sized: true},
	op.Mul:  {w: 0x65000800, sized: true},
	op.IAdd: {w: 0x04200000, sized: true},
	op.ISub: {w: 0x04200400, sized: true},
}

// predicated destructive Zdn = Zdn op Zm, with the reversed form
var sveDestructive = map[op.Op][2]uint32{
	op.Div:  {0x650D8000, 0x650C8000}, // fdiv, fdivr
	op.ShlV: {0x04138000, 0x04178000}, // lsl, lslr
	op.ShrV: {0x04118000, 0x04158000}, // lsr, lsrr
	op.SarV: {0x04108000, 0x04148000}, // asr, asrr
}

// unary d = op n; per lane width, zero when absent
var sve2 = map[op.Op][2]uint32{
	op.Sqrt:     {0x650DA000 | 2<<22, 0x650DA000 | 3<<22},
	op.RcpEst:   {0x650E3000 | 2<<22, 0x650E3000 | 3<<22},
	op.RsqrtEst: {0x650F3000 | 2<<22, 0x650F3000 | 3<<22},
	op.Not:      {0x041EA000 | 2<<22, 0x041EA000 | 3<<22},
	op.CvzF2I:   {0x659CA000, 0x65DEA000},
	op.CvtI2F:   {0x6594A000, 0x65D6A000},
	op.Rnn:      {0x6500A000 | 2<<22, 0x6500A000 | 3<<22},
	op.Rnp:      {0x6501A000 | 2<<22, 0x6501A000 | 3<<22},
	op.Rnm:      {0x6502A000 | 2<<22, 0x6502A000 | 3<<22},
	op.Rnz:      {0x6503A000 | 2<<22, 0x6503A000 | 3<<22},
	op.Rnd:      {0x6507A000 | 2<<22, 0x6507A000 | 3<<22},
}

// compares into a predicate: pd = n op m
var sveCompares = map[op.Op]struct {
	w    uint32
	swap bool
}{
	op.Ceq: {w: 0x65006000},
	op.Cne: {w: 0x65006010},
	op.Cge: {w: 0x65004000},
	op.Cgt: {w: 0x65004010},
	op.Cle: {w: 0x65004000, swap: true},
	op.Clt: {w: 0x65004010, swap: true},
}

const (
	sveOrr     = 0x04603000
	sveMovprfx = 0x0420BC00
)

func encodeSVE(p *target.Profile, in Inst, b *builder) error {
	sig := in.sig()
	sz := sveSize(in.Elem)
	var pk packer
	reg := func(i int) uint32 {
		r, _ := regOf(in.Args[i])
		return pk.reg(r, 5)
	}
	pred := func(i int, bits uint) uint32 {
		r, _ := regOf(in.Args[i])
		return pk.reg(r, bits)
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
			return emit(sveOrr | reg(1)<<16 | reg(1)<<5 | reg(0))
		case "vm":
			return sveLoadStore(b, p, 0x85804000, uint8(in.Args[0].Vec()), in.Args[1].Mem)
		case "mv":
			return sveLoadStore(b, p, 0xE5804000, uint8(in.Args[1].Vec()), in.Args[0].Mem)
		case "vp":
			// cpy zd, pg/z, #-1
			return emit(0x05100000 | sz | pred(1, 4)<<16 | 0xFF<<5 | reg(0))
		case "pv":
			// cmpne pd, p0/z, zn, #0
			return emit(0x25008010 | sz | svePg<<10 | reg(1)<<5 | pred(0, 4))
		}
		return noForm(in)
	case op.StoreFirst:
		// the low 128 bits of z<n> are v<n>
		if sig != "mv" {
			return noForm(in)
		}
		return armLoadStore(b, p, neonFirst[ei(in.Elem)], uint8(in.Args[1].Vec()), in.Args[0].Mem)
	case op.Select:
		if sig != "vpvv" {
			return noForm(in)
		}
		return emit(0x0520C000 | sz | reg(3)<<16 | pred(1, 4)<<10 | reg(2)<<5 | reg(0))
	case op.PredInit:
		if sig != "p" {
			return noForm(in)
		}
		return emit(0x2518E3E0 | pred(0, 4)) // ptrue pd.b
	case op.Fma, op.Fms:
		if sig != "vvv" {
			return noForm(in)
		}
		w := uint32(0x65200000)
		if in.Op == op.Fms {
			w = 0x65202000
		}
		return emit(w | sz | reg(2)<<16 | svePg<<10 | reg(1)<<5 | reg(0))
	case op.Shl, op.Shr, op.Sar:
		return sveShift(b, in)
	case op.BranchMask:
		return sveBranch(b, in)
	case op.Jump:
		return armJump(b, in)
	case op.SetRounding:
		return armSetRounding(b, p, in)
	}
	if o, ok := sve3[in.Op]; ok {
		if sig != "vvv" {
			return noForm(in)
		}
		n, m := reg(1), reg(2)
		if o.swap {
			n, m = m, n
		}
		w := o.w
		if o.sized {
			w |= sz
		}
		return emit(w | m<<16 | n<<5 | reg(0))
	}
	if o, ok := sveDestructive[in.Op]; ok {
		if sig != "vvv" {
			return noForm(in)
		}
		d, a, m := reg(0), reg(1), reg(2)
		if pk.err != nil {
			return pk.err
		}
		fwd, rev := o[0]|sz|svePg<<10, o[1]|sz|svePg<<10
		switch {
		case d == a:
			b.word(fwd | m<<5 | d)
		case d == m:
			b.word(rev | a<<5 | d)
		default:
			b.word(sveMovprfx | a<<5 | d)
			b.word(fwd | m<<5 | d)
		}
		return nil
	}
	if o, ok := sve2[in.Op]; ok {
		if sig != "vv" {
			return noForm(in)
		}
		w := o[ei(in.Elem)]
		if in.Op != op.RcpEst && in.Op != op.RsqrtEst {
			w |= svePg << 10
		}
		return emit(w | reg(1)<<5 | reg(0))
	}
	if o, ok := sveCompares[in.Op]; ok {
		if sig != "pvv" {
			return noForm(in)
		}
		n, m := reg(1), reg(2)
		if o.swap {
			n, m = m, n
		}
		return emit(o.w | sz | m<<16 | svePg<<10 | n<<5 | pred(0, 4))
	}
	return noOp(in, "")
}

// sveLoadStore uses ldr/str z with a signed 9-bit offset in multiples
// of the vector length, building other addresses in the scratch register
func sveLoadStore(b *builder, p *target.Profile, w uint32, rt uint8, m operand.PhysMem) error {
	var pk packer
	t := pk.reg(rt, 5)
	if pk.err != nil {
		return pk.err
	}
	vl := int64(p.NativeBytes())
	rn, d := armAddr(b, p, m, func(d int64) bool {
		return d%vl == 0 && fitsSigned(d/vl, 9)
	})
	imm := uint32(d/vl) & 0x1FF
	b.word(w | (imm>>3)<<16 | (imm&7)<<10 | uint32(rn)<<5 | t)
	return nil
}

// sveShift encodes lsl, lsr and asr by immediate. tsz:imm3 holds
// esize+n for left shifts and 2*esize-n for right shifts.
func sveShift(b *builder, in Inst) error {
	if in.sig() != "vvi" {
		return noForm(in)
	}
	if err := checkShift(in); err != nil {
		return err
	}
	esize := uint32(in.Elem)
	sh := uint32(in.Args[2].Imm)
	var pk packer
	d := pk.reg(uint8(in.Args[0].Vec()), 5)
	n := pk.reg(uint8(in.Args[1].Vec()), 5)
	if pk.err != nil {
		return pk.err
	}
	var w, v uint32
	switch {
	case in.Op == op.Shl:
		w, v = 0x04209C00, esize+sh
	case sh == 0:
		b.word(sveOrr | n<<16 | n<<5 | d)
		return nil
	case in.Op == op.Shr:
		w, v = 0x04209400, 2*esize-sh
	default:
		w, v = 0x04209000, 2*esize-sh
	}
	b.word(w | (v>>5)<<22 | (v&31)<<16 | n<<5 | d)
	return nil
}

// sveBranch compares the mask against zero into p15 and branches when
// no lane matched: for ALL no lane may be zero, for NONE no lane may be
// nonzero. b.none is b.eq after a flag-setting predicate compare.
func sveBranch(b *builder, in Inst) error {
	if in.sig() != "vvil" {
		return noForm(in)
	}
	if err := checkCond(in); err != nil {
		return err
	}
	var pk packer
	n := pk.reg(uint8(in.Args[0].Vec()), 5)
	if pk.err != nil {
		return pk.err
	}
	w := uint32(0x25008010) // cmpne
	if in.Args[2].Imm == int64(op.CondAll) {
		w = 0x25008000 // cmpeq
	}
	b.word(w | sveSize(in.Elem) | svePg<<10 | n<<5 | sveTmp)
	armBranch(b, 0x54000000|condEQ, FixArmImm19, in.Args[3].Label)
	return nil
}
