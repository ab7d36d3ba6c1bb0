// Completion: 100% - Encoder dispatch complete
package encode

import (
	"fmt"
	"strings"

	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

// Inst is one physical instruction: an operation on hardware registers.
// A single Inst may encode to several machine instructions (an address
// computation before a load, a compare before a branch), but it is
// always emitted or rejected as a whole.
type Inst struct {
	Op   op.Op
	Elem operand.Elem
	Args []operand.Phys
}

func (in Inst) String() string {
	args := make([]string, len(in.Args))
	for i, a := range in.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s.%s %s", in.Op, in.Elem, strings.Join(args, ", "))
}

// Kinds returns the operand kinds of in
func (in Inst) Kinds() []operand.Kind {
	kinds := make([]operand.Kind, len(in.Args))
	for i, a := range in.Args {
		kinds[i] = a.Kind
	}
	return kinds
}

// sig returns a compact signature like "vvm", used by the encoders to
// select an operand-kind form
func (in Inst) sig() string {
	var sb strings.Builder
	for _, a := range in.Args {
		switch a.Kind {
		case operand.KindVec:
			sb.WriteByte('v')
		case operand.KindPred:
			sb.WriteByte('p')
		case operand.KindGPR:
			sb.WriteByte('g')
		case operand.KindMem:
			sb.WriteByte('m')
		case operand.KindImm:
			sb.WriteByte('i')
		case operand.KindLabel:
			sb.WriteByte('l')
		default:
			sb.WriteByte('?')
		}
	}
	return sb.String()
}

// FixupKind says how a branch displacement is stored
type FixupKind uint8

const (
	FixRel32     FixupKind = iota + 1 // x86: 32-bit, relative to the end of the field
	FixArmImm26                       // arm64 b: word offset in bits 25:0
	FixArmImm19                       // arm64 b.cond / cbz: word offset in bits 23:5
	FixMipsOff16                      // mips: word offset from the delay slot in bits 15:0
	FixPPCLI                          // power b: word offset in bits 25:2
	FixPPCBD                          // power bc: word offset in bits 15:2
)

func (k FixupKind) String() string {
	switch k {
	case FixRel32:
		return "rel32"
	case FixArmImm26:
		return "imm26"
	case FixArmImm19:
		return "imm19"
	case FixMipsOff16:
		return "off16"
	case FixPPCLI:
		return "li24"
	case FixPPCBD:
		return "bd14"
	}
	return "unknown"
}

// Fixup is a branch whose target is a label. At is the offset of the
// displacement field (x86) or the branch word (fixed-width targets),
// relative to the start of the encoding.
type Fixup struct {
	At    int
	Kind  FixupKind
	Label operand.Label
}

// Encoding is the machine code of one Inst
type Encoding struct {
	Bytes  []byte
	Count  int // machine instructions
	Fixups []Fixup
}

// builder accumulates machine code for one Inst
type builder struct {
	buf    []byte
	count  int
	fixups []Fixup
}

// word appends a 32-bit instruction word, little-endian
func (b *builder) word(w uint32) {
	b.buf = append(b.buf, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	b.count++
}

// inst appends one variable-length instruction
func (b *builder) inst(bs ...byte) {
	b.buf = append(b.buf, bs...)
	b.count++
}

// fixupHere records a fixup at the current end of the buffer
func (b *builder) fixupHere(kind FixupKind, l operand.Label) {
	b.fixups = append(b.fixups, Fixup{At: len(b.buf), Kind: kind, Label: l})
}

func (b *builder) encoding() Encoding {
	return Encoding{Bytes: b.buf, Count: b.count, Fixups: b.fixups}
}

// Encode encodes one physical instruction for a profile. It is pure:
// the same Inst and profile always give the same bytes.
func Encode(p *target.Profile, in Inst) (Encoding, error) {
	var b builder
	err := encodeInto(p, in, &b)
	if err != nil {
		return Encoding{}, annotate(err, p, in)
	}
	return b.encoding(), nil
}

func encodeInto(p *target.Profile, in Inst, b *builder) error {
	if !in.Op.Valid() {
		return errf(engine.KindUnsupportedOperation, "invalid operation")
	}
	if !p.HasElem(in.Elem) {
		return errf(engine.KindUnsupportedOperation, "%d-bit lanes are not supported", in.Elem)
	}
	switch p.Family {
	case target.FamilyVEX:
		return encodeVEX(p, in, b)
	case target.FamilyEVEX:
		return encodeEVEX(p, in, b)
	case target.FamilyNEON:
		return encodeNEON(p, in, b)
	case target.FamilySVE:
		return encodeSVE(p, in, b)
	case target.FamilyMSA:
		return encodeMSA(p, in, b)
	case target.FamilyVSX:
		return encodeVSX(p, in, b)
	}
	return errf(engine.KindUnsupportedTarget, "no encoder for family %s", p.Family)
}

func annotate(err error, p *target.Profile, in Inst) error {
	if e, ok := err.(*engine.Error); ok {
		return e.At(in.Op.String(), operand.KindNames(in.Kinds()), p.Name)
	}
	return err
}

func errf(kind engine.ErrorKind, format string, args ...any) *engine.Error {
	return engine.NewError(kind, format, args...)
}

// noForm reports an operand-kind combination the operation has no
// template for
func noForm(in Inst) error {
	return errf(engine.KindInvalidOperandKind, "no %s template for operands (%s)",
		in.Op, strings.Join(operand.KindNames(in.Kinds()), ", "))
}

// noOp reports an operation the target cannot perform in one instruction
func noOp(in Inst, why string) error {
	if why == "" {
		return errf(engine.KindUnsupportedOperation, "no native %s.%s", in.Op, in.Elem)
	}
	return errf(engine.KindUnsupportedOperation, "no native %s.%s: %s", in.Op, in.Elem, why)
}

// Probe builds a representative instruction for an operand-kind
// combination, using registers the profile actually allocates.
func Probe(p *target.Profile, o op.Op, e operand.Elem, kinds ...operand.Kind) Inst {
	args := make([]operand.Phys, len(kinds))
	g0 := p.Group(0)
	preds, _ := p.PredGroup(0)
	for i, k := range kinds {
		switch k {
		case operand.KindVec:
			args[i] = operand.PV(p.Group(operand.Vec(i % p.Regs)).At(0))
		case operand.KindPred:
			if preds.Len() > 0 {
				args[i] = operand.PP(preds.At(0))
			} else {
				args[i] = operand.PP(0)
			}
		case operand.KindGPR:
			args[i] = operand.PG(p.GPR(operand.R0))
		case operand.KindMem:
			args[i] = operand.PM(operand.PhysMem{Base: p.GPR(operand.R0), Scale: 1})
		case operand.KindImm:
			args[i] = operand.PI(probeImm(o))
		case operand.KindLabel:
			args[i] = operand.PL(0)
		default:
			args[i] = operand.PV(g0.At(0))
		}
	}
	return Inst{Op: o, Elem: e, Args: args}
}

func probeImm(o op.Op) int64 {
	switch o {
	case op.SetRounding:
		return int64(op.RoundNearest)
	case op.BranchMask:
		return int64(op.CondAll)
	}
	return 1
}

// Supports reports whether the profile has a native template for the
// operation, element width and operand kinds
func Supports(p *target.Profile, o op.Op, e operand.Elem, kinds ...operand.Kind) bool {
	var b builder
	return encodeInto(p, Probe(p, o, e, kinds...), &b) == nil
}
