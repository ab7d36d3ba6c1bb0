package encode

import (
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/target"
)

// neonOp is a vector instruction word for .4s and .2d lanes; zero
// means the lane width has no encoding. Three-register words take
// d, n, m; swap exchanges n and m.
type neonOp struct {
	w    [2]uint32
	swap bool
}

func same(w uint32) neonOp { return neonOp{w: [2]uint32{w, w}} }

// floating point word: sz (bit 22) selects .2d
func fsz(w uint32) neonOp { return neonOp{w: [2]uint32{w, w | 1<<22}} }

// integer word: size (bits 23:22) is 2 for .4s, 3 for .2d
func isz(w uint32) neonOp { return neonOp{w: [2]uint32{w | 2<<22, w | 3<<22}} }

func swapped(o neonOp) neonOp {
	o.swap = true
	return o
}

var neon3 = map[op.Op]neonOp{
	op.And:  same(0x4E201C00),
	op.Andn: swapped(same(0x4E601C00)), // bic d, b, a
	op.Or:   same(0x4EA01C00),
	op.Orn:  same(0x4EE01C00),
	op.Xor:  same(0x6E201C00),

	op.Add: fsz(0x4E20D400),
	op.Sub: fsz(0x4EA0D400),
	op.Mul: fsz(0x6E20DC00),
	op.Div: fsz(0x6E20FC00),
	op.Fma: fsz(0x4E20CC00),
	op.Fms: fsz(0x4EA0CC00),

	op.IAdd: isz(0x4E208400),
	op.ISub: isz(0x6E208400),
	op.ShlV: isz(0x6E204400), // ushl
	op.Sshl: isz(0x4E204400),

	op.Ceq: fsz(0x4E20E400),
	op.Cge: fsz(0x6E20E400),
	op.Cgt: fsz(0x6EA0E400),
	op.Cle: swapped(fsz(0x6E20E400)),
	op.Clt: swapped(fsz(0x6EA0E400)),
}

var neon2 = map[op.Op]neonOp{
	op.Not:      same(0x6E205800),
	op.Sqrt:     fsz(0x6EA1F800),
	op.RcpEst:   fsz(0x4EA1D800),
	op.RsqrtEst: fsz(0x6EA1D800),

	op.CvzF2I: fsz(0x4EA1B800),
	op.CvnF2I: fsz(0x4E21A800),
	op.CvpF2I: fsz(0x4EA1A800),
	op.CvmF2I: fsz(0x4E21B800),
	op.CvtI2F: fsz(0x4E21D800),

	op.Rnn: fsz(0x4E218800),
	op.Rnp: fsz(0x4EA18800),
	op.Rnm: fsz(0x4E219800),
	op.Rnz: fsz(0x4EA19800),
	op.Rnd: fsz(0x6EA19800),
}

const neonOrr = 0x4EA01C00

var (
	neonQ     = armLS{scaled: 0x3DC00000, unscaled: 0x3CC00000, unit: 16}
	neonQSt   = armLS{scaled: 0x3D800000, unscaled: 0x3C800000, unit: 16}
	neonFirst = [2]armLS{
		{scaled: 0xBD000000, unscaled: 0xBC000000, unit: 4},
		{scaled: 0xFD000000, unscaled: 0xFC000000, unit: 8},
	}
)

func encodeNEON(p *target.Profile, in Inst, b *builder) error {
	sig := in.sig()
	switch in.Op {
	case op.Mov:
		switch sig {
		case "vv":
			return neonWord(b, neonOrr, in.Args[0].Vec(), in.Args[1].Vec(), in.Args[1].Vec())
		case "vm":
			return armLoadStore(b, p, neonQ, uint8(in.Args[0].Vec()), in.Args[1].Mem)
		case "mv":
			return armLoadStore(b, p, neonQSt, uint8(in.Args[1].Vec()), in.Args[0].Mem)
		}
		return noForm(in)
	case op.StoreFirst:
		if sig != "mv" {
			return noForm(in)
		}
		return armLoadStore(b, p, neonFirst[ei(in.Elem)], uint8(in.Args[1].Vec()), in.Args[0].Mem)
	case op.Shl, op.Shr, op.Sar:
		return neonShift(b, in)
	case op.BranchMask:
		return neonBranch(b, p, in)
	case op.Jump:
		return armJump(b, in)
	case op.SetRounding:
		return armSetRounding(b, p, in)
	}
	if o, ok := neon3[in.Op]; ok {
		if sig != "vvv" {
			return noForm(in)
		}
		n, m := in.Args[1].Vec(), in.Args[2].Vec()
		if o.swap {
			n, m = m, n
		}
		return neonWord(b, o.w[ei(in.Elem)], in.Args[0].Vec(), n, m)
	}
	if o, ok := neon2[in.Op]; ok {
		if sig != "vv" {
			return noForm(in)
		}
		return neonWord(b, o.w[ei(in.Elem)], in.Args[0].Vec(), in.Args[1].Vec(), 0)
	}
	return noOp(in, "")
}

func neonWord[R ~uint8](b *builder, w uint32, d, n, m R) error {
	var pk packer
	w |= pk.reg(uint8(d), 5) | pk.reg(uint8(n), 5)<<5 | pk.reg(uint8(m), 5)<<16
	if pk.err != nil {
		return pk.err
	}
	b.word(w)
	return nil
}

// neonShift encodes shl, ushr and sshr; immh:immb holds esize+n for
// left shifts and 2*esize-n for right shifts, so a right shift by zero
// is a plain move
func neonShift(b *builder, in Inst) error {
	if in.sig() != "vvi" {
		return noForm(in)
	}
	if err := checkShift(in); err != nil {
		return err
	}
	esize := uint32(in.Elem)
	sh := uint32(in.Args[2].Imm)
	d, n := in.Args[0].Vec(), in.Args[1].Vec()
	switch {
	case in.Op == op.Shl:
		return neonWord(b, 0x4F005400|(esize+sh)<<16, d, n, 0)
	case sh == 0:
		return neonWord(b, neonOrr, d, n, n)
	case in.Op == op.Shr:
		return neonWord(b, 0x6F000400|(2*esize-sh)<<16, d, n, 0)
	default:
		return neonWord(b, 0x4F000400|(2*esize-sh)<<16, d, n, 0)
	}
}

// neonBranch reduces the mask across lanes into the temporary: the
// unsigned minimum is all-ones only if every lane is, the maximum is
// zero only if every lane is. Masks are all-ones or all-zero per lane,
// so the .4s reduction also serves 64-bit lanes.
func neonBranch(b *builder, p *target.Profile, in Inst) error {
	if in.sig() != "vvil" {
		return noForm(in)
	}
	if err := checkCond(in); err != nil {
		return err
	}
	mask, tmp := in.Args[0].Vec(), in.Args[1].Vec()
	s := uint32(p.Scratch)
	all := in.Args[2].Imm == int64(op.CondAll)
	reduce := uint32(0x6EB0A800) // umaxv
	if all {
		reduce = 0x6EB1A800 // uminv
	}
	if err := neonWord(b, reduce, tmp, mask, 0); err != nil {
		return err
	}
	b.word(0x1E260000 | uint32(tmp)<<5 | s) // fmov w16, s_tmp
	l := in.Args[3].Label
	if all {
		b.word(0x3100041F | s<<5) // cmn w16, #1
		armBranch(b, 0x54000000|condEQ, FixArmImm19, l)
	} else {
		armBranch(b, 0x34000000|s, FixArmImm19, l) // cbz w16
	}
	return nil
}
