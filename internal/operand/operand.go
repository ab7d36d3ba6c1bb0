// Completion: 100% - Operand model complete
package operand

import (
	"fmt"
	"strings"
)

// Kind is the kind of an operand
type Kind uint8

const (
	KindNone Kind = iota
	KindVec
	KindPred
	KindGPR
	KindMem
	KindImm
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindVec:
		return "vec"
	case KindPred:
		return "pred"
	case KindGPR:
		return "gpr"
	case KindMem:
		return "mem"
	case KindImm:
		return "imm"
	case KindLabel:
		return "label"
	default:
		return "none"
	}
}

// KindSet is a set of operand kinds, used in operation signatures
type KindSet uint8

// Of builds a KindSet
func Of(kinds ...Kind) KindSet {
	var s KindSet
	for _, k := range kinds {
		s |= 1 << k
	}
	return s
}

// Has reports whether k is in the set
func (s KindSet) Has(k Kind) bool {
	return s&(1<<k) != 0
}

func (s KindSet) String() string {
	var parts []string
	for k := KindVec; k <= KindLabel; k++ {
		if s.Has(k) {
			parts = append(parts, k.String())
		}
	}
	return strings.Join(parts, "|")
}

// Elem is the lane width of an operation, in bits
type Elem uint8

const (
	Elem32 Elem = 32
	Elem64 Elem = 64
)

// Elems lists the supported element widths
var Elems = []Elem{Elem32, Elem64}

// Bytes returns the lane width in bytes
func (e Elem) Bytes() int {
	return int(e) / 8
}

// Valid reports whether e is a supported element width
func (e Elem) Valid() bool {
	return e == Elem32 || e == Elem64
}

func (e Elem) String() string {
	switch e {
	case Elem32:
		return "f32"
	case Elem64:
		return "f64"
	default:
		return fmt.Sprintf("e%d", uint8(e))
	}
}

// Operand is one argument of a logical operation
type Operand interface {
	Kind() Kind
	String() string
}

// Vec is a logical vector register: a slot in the caller-visible
// register file. It owns no storage.
type Vec uint8

const (
	V0 Vec = iota
	V1
	V2
	V3
	V4
	V5
	V6
	V7
	V8
	V9
	V10
	V11
	V12
	V13
	V14
	V15
)

// MaxVecs is the upper bound on visible logical vector registers
const MaxVecs = 16

// Scratch is the number of logical vector registers reserved for shims
const Scratch = 4

func (Vec) Kind() Kind       { return KindVec }
func (v Vec) String() string { return fmt.Sprintf("v%d", uint8(v)) }

// Pred is a logical predicate group. Only the assembler uses it;
// masks visible to callers are vectors.
type Pred uint8

func (Pred) Kind() Kind       { return KindPred }
func (p Pred) String() string { return fmt.Sprintf("p%d", uint8(p)) }

// GPR is a logical general purpose register, used as a memory base
type GPR uint8

const (
	R0 GPR = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	// Ctx points at the context block (constants and control images)
	Ctx
)

// NumGPR is the number of caller-visible general purpose registers
const NumGPR = 8

func (GPR) Kind() Kind { return KindGPR }
func (r GPR) String() string {
	if r == Ctx {
		return "ctx"
	}
	return fmt.Sprintf("r%d", uint8(r))
}

// Valid reports whether r names a mapped register
func (r GPR) Valid() bool {
	return r <= Ctx
}

// Mem is base + index*scale + displacement
type Mem struct {
	Base     GPR
	Index    GPR
	HasIndex bool
	Scale    uint8
	Disp     int32
}

// At returns the memory operand [base + disp]
func At(base GPR, disp int32) Mem {
	return Mem{Base: base, Scale: 1, Disp: disp}
}

// Indexed returns m with an index register added
func (m Mem) Indexed(index GPR, scale uint8) Mem {
	m.Index = index
	m.HasIndex = true
	m.Scale = scale
	return m
}

// Offset returns m displaced by delta bytes, or false if the result overflows
func (m Mem) Offset(delta int64) (Mem, bool) {
	d := int64(m.Disp) + delta
	if d < -1<<31 || d > 1<<31-1 {
		return m, false
	}
	m.Disp = int32(d)
	return m, true
}

// ValidScale reports whether the scale is one of 1, 2, 4, 8
func (m Mem) ValidScale() bool {
	if !m.HasIndex {
		return true
	}
	switch m.Scale {
	case 1, 2, 4, 8:
		return true
	}
	return false
}

func (Mem) Kind() Kind { return KindMem }
func (m Mem) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(m.Base.String())
	if m.HasIndex {
		fmt.Fprintf(&sb, "+%s*%d", m.Index, m.Scale)
	}
	if m.Disp != 0 {
		fmt.Fprintf(&sb, "%+d", m.Disp)
	}
	sb.WriteString("]")
	return sb.String()
}

// Imm is an immediate constant. Its legal range depends on the
// operation and the target.
type Imm int64

func (Imm) Kind() Kind       { return KindImm }
func (i Imm) String() string { return fmt.Sprintf("#%d", int64(i)) }

// Label names a code position that branches can refer to before it is bound
type Label uint32

func (Label) Kind() Kind       { return KindLabel }
func (l Label) String() string { return fmt.Sprintf("L%d", uint32(l)) }

// Kinds returns the kind of every operand, for error messages and lookups
func Kinds(args []Operand) []Kind {
	kinds := make([]Kind, len(args))
	for i, a := range args {
		kinds[i] = a.Kind()
	}
	return kinds
}

// KindNames returns the kind names of every operand
func KindNames(kinds []Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}
