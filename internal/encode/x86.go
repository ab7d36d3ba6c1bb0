package encode

import (
	"strings"

	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

// x86 opcode maps
const (
	map0F   = 1
	map0F38 = 2
	map0F3A = 3
)

// x86 mandatory prefixes, as encoded in the pp field
const (
	ppNone = 0
	pp66   = 1
	ppF3   = 2
	ppF2   = 3
)

// form says which operands go in ModRM.reg, VEX.vvvv and ModRM.rm
type form uint8

const (
	fRVM  form = iota // reg = dst, vvvv = a, rm = b
	fRM               // reg = dst, rm = src
	fMR               // rm = dst (memory), reg = src
	fVMI              // vvvv = dst, reg = /ext, rm = src, imm8
	fRMI              // reg = dst, rm = src, fixed imm8
	fRVMI             // reg = dst, vvvv = a, rm = b, fixed imm8
)

// x86op is one VEX or EVEX template. The two-element arrays are indexed
// by lane width: 0 for 32-bit lanes, 1 for 64-bit lanes. An opcode of
// zero means the width has no encoding.
type x86op struct {
	pp   [2]byte
	mm   byte
	opc  [2]byte
	w    [2]bool
	form form
	ext  byte  // ModRM.reg for fVMI and memory-only forms
	imm  int16 // fixed imm8, -1 for none
	feat target.Feature
	lz   bool // scalar form: VEX.L and EVEX.L'L are zero
	wide bool // integer op that needs FeatWideInt above 128 bits
}

func ei(e operand.Elem) int {
	if e == operand.Elem64 {
		return 1
	}
	return 0
}

func bit(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func inv(v bool) byte {
	return 1 - bit(v)
}

// regOf returns the number of a register operand
func regOf(a operand.Phys) (uint8, bool) {
	switch a.Kind {
	case operand.KindVec:
		return uint8(a.Vec()), true
	case operand.KindPred:
		return uint8(a.Pred()), true
	case operand.KindGPR:
		return uint8(a.GPR()), true
	}
	return 0, false
}

type modrm struct {
	bytes []byte // ModRM, SIB and displacement
	x, b  bool   // REX.X and REX.B
}

func scaleBits(s uint8) (byte, bool) {
	switch s {
	case 0, 1:
		return 0, true
	case 2:
		return 1, true
	case 4:
		return 2, true
	case 8:
		return 3, true
	}
	return 0, false
}

// encodeRM builds the ModRM byte and whatever follows it. n is the
// EVEX compressed displacement unit (1 for VEX), limit the number of
// addressable registers on the rm side.
func encodeRM(reg uint8, rm operand.Phys, n int, limit uint8) (modrm, error) {
	if rm.Kind != operand.KindMem {
		r, ok := regOf(rm)
		if !ok {
			return modrm{}, errf(engine.KindInvalidOperandKind, "%s operand in a register position", rm.Kind)
		}
		if r >= limit {
			return modrm{}, errf(engine.KindInvalidOperandKind, "register %d is not encodable", r)
		}
		return modrm{bytes: []byte{0xC0 | (reg&7)<<3 | r&7}, x: r&16 != 0, b: r&8 != 0}, nil
	}
	m := rm.Mem
	if m.Base > 15 || (m.HasIndex && m.Index > 15) {
		return modrm{}, errf(engine.KindInvalidOperandKind, "address register out of range")
	}
	if m.HasIndex && m.Index == 4 {
		return modrm{}, errf(engine.KindInvalidOperandKind, "rsp cannot be an index register")
	}
	ss, ok := scaleBits(m.Scale)
	if !ok {
		return modrm{}, errf(engine.KindInvalidOperandKind, "scale %d is not 1, 2, 4 or 8", m.Scale)
	}
	disp := int64(m.Disp)
	var mod byte
	var tail []byte
	switch {
	case disp == 0 && m.Base&7 != 5:
		mod = 0
	case disp%int64(n) == 0 && fitsSigned(disp/int64(n), 8):
		mod = 1
		tail = []byte{byte(int8(disp / int64(n)))}
	default:
		mod = 2
		tail = []byte{byte(disp), byte(disp >> 8), byte(disp >> 16), byte(disp >> 24)}
	}
	var out []byte
	base := byte(m.Base & 7)
	if m.HasIndex || base == 4 {
		idx := byte(4)
		if m.HasIndex {
			idx = byte(m.Index & 7)
		}
		out = append(out, mod<<6|(reg&7)<<3|4, ss<<6|idx<<3|base)
	} else {
		out = append(out, mod<<6|(reg&7)<<3|base)
	}
	out = append(out, tail...)
	return modrm{bytes: out, x: m.HasIndex && m.Index&8 != 0, b: m.Base&8 != 0}, nil
}

// vexPrefix uses the two-byte C5 form whenever X, B, W and the map allow it
func vexPrefix(r, x, b bool, mm byte, w bool, vvvv uint8, l bool, pp byte) []byte {
	if !x && !b && !w && mm == map0F {
		return []byte{0xC5, inv(r)<<7 | (^vvvv&15)<<3 | bit(l)<<2 | pp}
	}
	return []byte{
		0xC4,
		inv(r)<<7 | inv(x)<<6 | inv(b)<<5 | mm,
		bit(w)<<7 | (^vvvv&15)<<3 | bit(l)<<2 | pp,
	}
}

func evexPrefix(reg, vvvv uint8, x, b bool, mm byte, w bool, pp, ll byte, bc bool, aaa uint8) []byte {
	p0 := inv(reg&8 != 0)<<7 | inv(x)<<6 | inv(b)<<5 | inv(reg&16 != 0)<<4 | mm
	p1 := bit(w)<<7 | (^vvvv&15)<<3 | 1<<2 | pp
	p2 := (ll&3)<<5 | bit(bc)<<4 | inv(vvvv&16 != 0)<<3 | aaa&7
	return []byte{0x62, p0, p1, p2}
}

// x86args are the register fields of one template instance
type x86args struct {
	reg, vvvv uint8
	rm        operand.Phys
	imm       int   // -1 for none, overrides the template imm
	aaa       uint8 // EVEX opmask
	rc        int   // EVEX embedded rounding control, -1 for none
	n         int   // EVEX disp8 unit, 0 for the full vector
}

// operands maps an instruction onto the fields of a template form
func (t x86op) operands(in Inst) (x86args, error) {
	a := x86args{imm: int(t.imm), rc: -1}
	args := in.Args
	reg := func(i int) (uint8, bool) {
		if i >= len(args) {
			return 0, false
		}
		return regOf(args[i])
	}
	var ok1, ok2 bool
	switch t.form {
	case fRVM, fRVMI:
		if len(args) != 3 || args[2].Kind == operand.KindImm || args[2].Kind == operand.KindLabel {
			return a, noForm(in)
		}
		a.reg, ok1 = reg(0)
		a.vvvv, ok2 = reg(1)
		a.rm = args[2]
	case fRM, fRMI:
		if len(args) != 2 || args[1].Kind == operand.KindImm || args[1].Kind == operand.KindLabel {
			return a, noForm(in)
		}
		a.reg, ok1 = reg(0)
		ok2 = true
		a.rm = args[1]
	case fMR:
		if len(args) != 2 || args[0].Kind != operand.KindMem {
			return a, noForm(in)
		}
		a.reg, ok1 = reg(1)
		ok2 = true
		a.rm = args[0]
	case fVMI:
		if len(args) != 3 || args[2].Kind != operand.KindImm || args[1].Kind == operand.KindMem {
			return a, noForm(in)
		}
		a.vvvv, ok1 = reg(0)
		a.reg, ok2 = t.ext, true
		a.rm = args[1]
		a.imm = int(args[2].Imm)
	}
	if !ok1 || !ok2 {
		return a, noForm(in)
	}
	return a, nil
}

// emitX86 encodes one VEX or EVEX instruction from a template
func emitX86(b *builder, p *target.Profile, in Inst, t x86op, a x86args) error {
	i := ei(in.Elem)
	if t.opc[i] == 0 {
		return noOp(in, "")
	}
	if t.feat != 0 && !p.Has(t.feat) {
		return noOp(in, "requires "+strings.Join(t.feat.Names(), ", "))
	}
	if t.wide && p.Native > 128 && !p.Has(target.FeatWideInt) {
		return noOp(in, "integer operations are 128 bits wide")
	}
	evex := p.Family == target.FamilyEVEX
	limit := uint8(16)
	if evex {
		limit = 32
	}
	if a.reg >= limit || a.vvvv >= limit {
		return errf(engine.KindInvalidOperandKind, "register %d is not encodable", max(a.reg, a.vvvv))
	}
	n := 1
	if evex {
		n = a.n
		if n == 0 {
			n = p.NativeBytes()
		}
	}
	m, err := encodeRM(a.reg, a.rm, n, limit)
	if err != nil {
		return err
	}
	var out []byte
	if evex {
		ll := byte(0)
		switch p.Native {
		case 256:
			ll = 1
		case 512:
			ll = 2
		}
		if t.lz {
			ll = 0
		}
		bc := false
		if a.rc >= 0 {
			if a.rm.Kind == operand.KindMem {
				return errf(engine.KindInvalidOperandKind, "embedded rounding needs a register source")
			}
			ll, bc = byte(a.rc), true
		}
		out = evexPrefix(a.reg, a.vvvv, m.x, m.b, t.mm, t.w[i], t.pp[i], ll, bc, a.aaa)
	} else {
		out = vexPrefix(a.reg&8 != 0, m.x, m.b, t.mm, t.w[i], a.vvvv, p.Native == 256 && !t.lz, t.pp[i])
	}
	out = append(out, t.opc[i])
	out = append(out, m.bytes...)
	if a.imm >= 0 {
		out = append(out, byte(a.imm))
	}
	b.inst(out...)
	return nil
}

// x86Branch emits a branch with a rel32 displacement to l
func x86Branch(b *builder, l operand.Label, opcode ...byte) {
	b.fixups = append(b.fixups, Fixup{At: len(b.buf) + len(opcode), Kind: FixRel32, Label: l})
	code := append(append([]byte(nil), opcode...), 0, 0, 0, 0)
	b.inst(code...)
}

// x86SetRounding emits vldmxcsr from the context block, which holds
// one MXCSR image per mode, 4 bytes apart
func x86SetRounding(b *builder, p *target.Profile, in Inst) error {
	if in.sig() != "im" {
		return noForm(in)
	}
	if err := checkRounding(in.Args[0].Imm); err != nil {
		return err
	}
	mem, ok := offsetMem(in.Args[1].Mem, in.Args[0].Imm*4)
	if !ok {
		return errf(engine.KindImmediateOutOfRange, "context displacement overflows")
	}
	rm, err := encodeRM(2, operand.PM(mem), 1, 16)
	if err != nil {
		return err
	}
	out := vexPrefix(false, rm.x, rm.b, map0F, false, 0, false, ppNone)
	out = append(out, 0xAE)
	out = append(out, rm.bytes...)
	b.inst(out...)
	return nil
}

func checkRounding(v int64) error {
	if v < 0 || v > int64(op.RoundZero) {
		return errf(engine.KindImmediateOutOfRange, "rounding mode %d", v)
	}
	return nil
}

func offsetMem(m operand.PhysMem, delta int64) (operand.PhysMem, bool) {
	d := int64(m.Disp) + delta
	if !fitsSigned(d, 32) {
		return m, false
	}
	m.Disp = int32(d)
	return m, true
}

// x86Jump emits jmp rel32
func x86Jump(b *builder, in Inst) error {
	if in.sig() != "l" {
		return noForm(in)
	}
	x86Branch(b, in.Args[0].Label, 0xE9)
	return nil
}
