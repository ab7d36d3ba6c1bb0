// Completion: 100% - Target profiles complete
package target

import (
	"fmt"
	"math"

	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/operand"
)

// Family is the encoding family of a profile. It is a closed set:
// every encoder dispatches on it exhaustively.
type Family uint8

const (
	FamilyVEX  Family = iota + 1 // x86 AVX / AVX2
	FamilyEVEX                   // x86 AVX-512
	FamilyNEON                   // arm64 Advanced SIMD
	FamilySVE                    // arm64 SVE, fixed vector length
	FamilyMSA                    // MIPS SIMD Architecture
	FamilyVSX                    // Power VSX / VMX
)

func (f Family) String() string {
	switch f {
	case FamilyVEX:
		return "vex"
	case FamilyEVEX:
		return "evex"
	case FamilyNEON:
		return "neon"
	case FamilySVE:
		return "sve"
	case FamilyMSA:
		return "msa"
	case FamilyVSX:
		return "vsx"
	default:
		return "unknown"
	}
}

// Masking is how a profile represents lane masks
type Masking uint8

const (
	MaskEmulated  Masking = iota // masks live in vector registers, select is bitwise
	MaskPredicate                // dedicated predicate/mask registers
)

func (m Masking) String() string {
	if m == MaskPredicate {
		return "predicate"
	}
	return "emulated"
}

// Feature is a capability flag. Encoders consult these instead of
// checking versions.
type Feature uint16

const (
	FeatFMA         Feature = 1 << iota // fused multiply-add
	FeatVarShift                        // per-lane variable shifts
	FeatWideInt                         // integer ops at the widest native width (AVX2)
	FeatDQ                              // AVX-512DQ mask moves and 64-bit conversions
	FeatISA207                          // POWER8: 64-bit lane integer ops, xxlorc
	FeatF64Estimate                     // reciprocal estimates for 64-bit lanes
	FeatSar64                           // arithmetic right shift of 64-bit lanes
	FeatCvt64                           // float <-> int conversions on 64-bit lanes
)

var featureNames = []struct {
	f    Feature
	name string
}{
	{FeatFMA, "fma"},
	{FeatVarShift, "varshift"},
	{FeatWideInt, "wideint"},
	{FeatDQ, "dq"},
	{FeatISA207, "isa207"},
	{FeatF64Estimate, "f64est"},
	{FeatSar64, "sar64"},
	{FeatCvt64, "cvt64"},
}

// Names returns the names of the set flags
func (f Feature) Names() []string {
	var names []string
	for _, fn := range featureNames {
		if f&fn.f != 0 {
			names = append(names, fn.name)
		}
	}
	return names
}

// Profile describes one (architecture, logical width, version)
// combination. Profiles are built once and shared read-only; nothing
// may modify one after Resolve returns it.
type Profile struct {
	Name     string
	Arch     engine.Arch
	Family   Family
	Version  int
	Native   int // physical vector width in bits
	Logical  int // logical vector width in bits
	N        int // expansion factor, Logical / Native
	Regs     int // visible logical vector registers
	Masking  Masking
	Features Feature

	// EstimateBits is the guaranteed precision of the reciprocal and
	// reciprocal square root estimate instructions
	EstimateBits int

	Ctx     operand.PhysGPR // holds the context block address
	Scratch operand.PhysGPR // clobbered by multi-word sequences

	vecs  []operand.PhysVec
	preds []operand.PhysPred
	gprs  [operand.NumGPR]operand.PhysGPR
	elems []operand.Elem
}

func (p *Profile) String() string {
	return p.Name
}

// NativeBytes returns the physical vector width in bytes
func (p *Profile) NativeBytes() int {
	return p.Native / 8
}

// LogicalBytes returns the logical vector width in bytes
func (p *Profile) LogicalBytes() int {
	return p.Logical / 8
}

// Lanes returns the lanes per physical register
func (p *Profile) Lanes(e operand.Elem) int {
	return p.Native / int(e)
}

// HasElem reports whether lanes of width e are supported
func (p *Profile) HasElem(e operand.Elem) bool {
	for _, x := range p.elems {
		if x == e {
			return true
		}
	}
	return false
}

// Elems returns the supported element widths
func (p *Profile) Elems() []operand.Elem {
	return append([]operand.Elem(nil), p.elems...)
}

// Has reports whether every flag in f is set
func (p *Profile) Has(f Feature) bool {
	return p.Features&f == f
}

// Total returns the number of logical vector registers including the
// reserved scratch registers
func (p *Profile) Total() int {
	return p.Regs + operand.Scratch
}

// ScratchVec returns the k-th reserved scratch register
func (p *Profile) ScratchVec(k int) operand.Vec {
	if k < 0 || k >= operand.Scratch {
		panic(fmt.Sprintf("scratch register %d out of range", k))
	}
	return operand.Vec(p.Regs + k)
}

// Group returns the physical registers realizing logical register v.
// Register v occupies positions v*N .. v*N+N-1 of the allocatable list.
func (p *Profile) Group(v operand.Vec) operand.VecGroup {
	if int(v) >= p.Total() {
		panic(fmt.Sprintf("%s: logical register %s out of range", p.Name, v))
	}
	base := int(v) * p.N
	return operand.NewGroup(p.vecs[base : base+p.N]...)
}

// PredGroup returns the physical predicate registers of the reserved
// predicate group. Only predicate-masking profiles have one.
func (p *Profile) PredGroup(q operand.Pred) (operand.PredGroup, bool) {
	if p.Masking != MaskPredicate || q != 0 {
		return operand.PredGroup{}, false
	}
	return operand.NewGroup(p.preds[:p.N]...), true
}

// GPR returns the hardware register of a logical general purpose register
func (p *Profile) GPR(r operand.GPR) operand.PhysGPR {
	if r == operand.Ctx {
		return p.Ctx
	}
	return p.gprs[r]
}

// PhysVecs returns every physical vector register the assembler may
// allocate, in allocation order
func (p *Profile) PhysVecs() []operand.PhysVec {
	return append([]operand.PhysVec(nil), p.vecs[:p.Total()*p.N]...)
}

// RefinedBound is the relative error bound of the reciprocal and
// reciprocal square root shims: one Newton-Raphson step squares the
// estimate error, plus a few ulp of rounding in the step itself.
func (p *Profile) RefinedBound(e operand.Elem) float64 {
	ulp := math.Ldexp(1, -23)
	if e == operand.Elem64 {
		ulp = math.Ldexp(1, -52)
	}
	return 2*math.Ldexp(1, -2*p.EstimateBits) + 8*ulp
}
