// Completion: 100% - Operation vocabulary complete
package op

import (
	"fmt"
	"strings"

	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/operand"
)

// Op is an operation of the portable vocabulary. The same values name
// physical instructions once the assembler has lowered them.
type Op uint8

const (
	Invalid Op = iota

	// move
	Mov        // dst = src; load (vec, mem) or store (mem, vec)
	StoreFirst // store lane 0 only

	// bitwise
	And
	Andn // dst = ^a & b
	Or
	Orn // dst = a | ^b
	Xor
	Not

	// float arithmetic
	Add
	Sub
	Mul
	Div
	Sqrt
	Cbrt
	Rcp
	RcpEst
	Rsqrt
	RsqrtEst
	Fma // dst += a * b
	Fms // dst -= a * b

	// integer
	IAdd
	ISub

	// shifts
	Shl
	Shr
	Sar
	ShlV
	ShrV
	SarV

	// compare, producing masks
	Ceq
	Cne
	Clt
	Cle
	Cgt
	Cge

	// convert
	CvzF2I // toward zero
	CvpF2I // toward +inf
	CvmF2I // toward -inf
	CvnF2I // to nearest even
	CvtF2I // by the active rounding mode
	CvnI2F
	CvtI2F

	// round to integral
	Rnz
	Rnp
	Rnm
	Rnn
	Rnd

	// masks and control flow
	Select     // dst = mask ? a : b
	BranchMask // branch to label if ALL or NONE lanes of mask are set
	Jump

	// register file
	SaveAll
	LoadAll

	// internal
	SetRounding // install a rounding mode
	PredInit    // set the governing predicate to all-true
	Sshl        // per-lane shift by signed count, arithmetic when negative

	numOps
)

// Category groups operations for reporting
type Category uint8

const (
	CatMove Category = iota
	CatBitwise
	CatArith
	CatInteger
	CatShift
	CatCompare
	CatConvert
	CatRound
	CatMask
	CatControl
	CatRegisterFile
	CatInternal
)

func (c Category) String() string {
	switch c {
	case CatMove:
		return "move"
	case CatBitwise:
		return "bitwise"
	case CatArith:
		return "arithmetic"
	case CatInteger:
		return "integer"
	case CatShift:
		return "shift"
	case CatCompare:
		return "compare"
	case CatConvert:
		return "convert"
	case CatRound:
		return "round"
	case CatMask:
		return "mask"
	case CatControl:
		return "control"
	case CatRegisterFile:
		return "register file"
	case CatInternal:
		return "internal"
	default:
		return "unknown"
	}
}

type flags uint8

const (
	internal    flags = 1 << iota
	lane0             // touches lane 0 only, never replicated
	noVec             // carries no vector operand, emitted once
	destructive       // destination is also an input
)

type info struct {
	name  string
	cat   Category
	forms [][]operand.KindSet
	flags flags
}

var (
	kV   = operand.Of(operand.KindVec)
	kVM  = operand.Of(operand.KindVec, operand.KindMem)
	kMem = operand.Of(operand.KindMem)
	kImm = operand.Of(operand.KindImm)
	kLab = operand.Of(operand.KindLabel)
	kPrd = operand.Of(operand.KindPred)
)

func forms(f ...[]operand.KindSet) [][]operand.KindSet { return f }

var (
	binary  = forms([]operand.KindSet{kV, kV, kVM})
	unary   = forms([]operand.KindSet{kV, kVM})
	shiftBy = forms([]operand.KindSet{kV, kV, kImm})
)

var table = [numOps]info{
	Invalid: {name: "invalid"},

	Mov:        {"mov", CatMove, forms([]operand.KindSet{kV, kVM}, []operand.KindSet{kMem, kV}), 0},
	StoreFirst: {"storefirst", CatMove, forms([]operand.KindSet{kMem, kV}), lane0},

	And:  {"and", CatBitwise, binary, 0},
	Andn: {"andn", CatBitwise, binary, 0},
	Or:   {"or", CatBitwise, binary, 0},
	Orn:  {"orn", CatBitwise, binary, 0},
	Xor:  {"xor", CatBitwise, binary, 0},
	Not:  {"not", CatBitwise, unary, 0},

	Add:      {"add", CatArith, binary, 0},
	Sub:      {"sub", CatArith, binary, 0},
	Mul:      {"mul", CatArith, binary, 0},
	Div:      {"div", CatArith, binary, 0},
	Sqrt:     {"sqrt", CatArith, unary, 0},
	Cbrt:     {"cbrt", CatArith, forms([]operand.KindSet{kV, kV}), 0},
	Rcp:      {"rcp", CatArith, unary, 0},
	RcpEst:   {"rcpest", CatArith, unary, 0},
	Rsqrt:    {"rsqrt", CatArith, unary, 0},
	RsqrtEst: {"rsqrtest", CatArith, unary, 0},
	Fma:      {"fma", CatArith, binary, destructive},
	Fms:      {"fms", CatArith, binary, destructive},

	IAdd: {"iadd", CatInteger, binary, 0},
	ISub: {"isub", CatInteger, binary, 0},

	Shl:  {"shl", CatShift, shiftBy, 0},
	Shr:  {"shr", CatShift, shiftBy, 0},
	Sar:  {"sar", CatShift, shiftBy, 0},
	ShlV: {"shlv", CatShift, binary, 0},
	ShrV: {"shrv", CatShift, binary, 0},
	SarV: {"sarv", CatShift, binary, 0},

	Ceq: {"ceq", CatCompare, binary, 0},
	Cne: {"cne", CatCompare, binary, 0},
	Clt: {"clt", CatCompare, binary, 0},
	Cle: {"cle", CatCompare, binary, 0},
	Cgt: {"cgt", CatCompare, binary, 0},
	Cge: {"cge", CatCompare, binary, 0},

	CvzF2I: {"cvzf2i", CatConvert, unary, 0},
	CvpF2I: {"cvpf2i", CatConvert, unary, 0},
	CvmF2I: {"cvmf2i", CatConvert, unary, 0},
	CvnF2I: {"cvnf2i", CatConvert, unary, 0},
	CvtF2I: {"cvtf2i", CatConvert, unary, 0},
	CvnI2F: {"cvni2f", CatConvert, unary, 0},
	CvtI2F: {"cvti2f", CatConvert, unary, 0},

	Rnz: {"rnz", CatRound, unary, 0},
	Rnp: {"rnp", CatRound, unary, 0},
	Rnm: {"rnm", CatRound, unary, 0},
	Rnn: {"rnn", CatRound, unary, 0},
	Rnd: {"rnd", CatRound, unary, 0},

	Select:     {"select", CatMask, forms([]operand.KindSet{kV, kV, kV, kV}), 0},
	BranchMask: {"branchmask", CatMask, forms([]operand.KindSet{kV, kImm, kLab}), 0},
	Jump:       {"jump", CatControl, forms([]operand.KindSet{kLab}), noVec},

	SaveAll: {"saveall", CatRegisterFile, forms([]operand.KindSet{kMem}), noVec},
	LoadAll: {"loadall", CatRegisterFile, forms([]operand.KindSet{kMem}), noVec},

	SetRounding: {"setrounding", CatInternal, forms([]operand.KindSet{kImm, kMem}), internal | noVec},
	PredInit:    {"predinit", CatInternal, forms([]operand.KindSet{kPrd}), internal | noVec},
	Sshl:        {"sshl", CatInternal, forms([]operand.KindSet{kV, kV, kV}), internal},
}

func (o Op) String() string {
	if o < numOps {
		return table[o].name
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Valid reports whether o is a known operation
func (o Op) Valid() bool {
	return o > Invalid && o < numOps
}

// Category returns the group o belongs to
func (o Op) Category() Category {
	if !o.Valid() {
		return CatInternal
	}
	return table[o].cat
}

// Public reports whether callers may issue o
func (o Op) Public() bool {
	return o.Valid() && table[o].flags&internal == 0
}

// Lane0 reports whether o touches only lane 0 and is never replicated
// across a register group
func (o Op) Lane0() bool {
	return table[o].flags&lane0 != 0
}

// Replicated reports whether width expansion applies to o
func (o Op) Replicated() bool {
	return table[o].flags&(lane0|noVec) == 0
}

// Destructive reports whether the destination is also an input
func (o Op) Destructive() bool {
	return table[o].flags&destructive != 0
}

// IsCompare reports whether o produces a mask
func (o Op) IsCompare() bool {
	return o.Category() == CatCompare
}

// Signatures returns the accepted operand kinds, one set per position,
// for each accepted form
func (o Op) Signatures() [][]operand.KindSet {
	if !o.Valid() {
		return nil
	}
	return table[o].forms
}

// Arity returns the operand count of o
func (o Op) Arity() int {
	if f := o.Signatures(); len(f) > 0 {
		return len(f[0])
	}
	return 0
}

// Accepts reports whether the operand kinds match one of the forms of o
func (o Op) Accepts(kinds []operand.Kind) bool {
	for _, form := range o.Signatures() {
		if len(form) != len(kinds) {
			continue
		}
		ok := true
		for j, k := range kinds {
			if !form[j].Has(k) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// SignatureString describes the accepted forms, for error messages
func (o Op) SignatureString() string {
	var parts []string
	for _, form := range o.Signatures() {
		args := make([]string, len(form))
		for j, s := range form {
			args[j] = s.String()
		}
		parts = append(parts, "("+strings.Join(args, ", ")+")")
	}
	return strings.Join(parts, " or ")
}

// All returns every valid operation
func All() []Op {
	ops := make([]Op, 0, numOps)
	for o := Invalid + 1; o < numOps; o++ {
		ops = append(ops, o)
	}
	return ops
}

// PublicOps returns the caller-visible vocabulary
func PublicOps() []Op {
	var ops []Op
	for _, o := range All() {
		if o.Public() {
			ops = append(ops, o)
		}
	}
	return ops
}

// Parse parses an operation name
func Parse(s string) (Op, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	var names []string
	for _, o := range All() {
		if o.Public() && o.String() == name {
			return o, nil
		}
		if o.Public() {
			names = append(names, o.String())
		}
	}
	err := engine.NewError(engine.KindUnsupportedOperation, "unknown operation %q", s)
	if hint := engine.Suggest(name, names); hint != "" {
		err.Hint = fmt.Sprintf("did you mean %q?", hint)
	}
	return Invalid, err
}

// Branch conditions for BranchMask
const (
	CondNone operand.Imm = 0 // every lane all-zero
	CondAll  operand.Imm = 1 // every lane all-ones
)
