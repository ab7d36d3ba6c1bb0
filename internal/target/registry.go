package target

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/operand"
)

// Logical widths callers may request. The context block replicates
// every constant across MaxLogical bits.
const (
	MinLogical = 128
	MaxLogical = 2048
)

// spec is the static description of one (architecture, version) pair
type spec struct {
	arch     engine.Arch
	family   Family
	version  int
	natives  []int // supported physical widths, ascending
	vecs     []operand.PhysVec
	preds    []operand.PhysPred
	gprs     [operand.NumGPR]operand.PhysGPR
	ctx      operand.PhysGPR
	scratch  operand.PhysGPR
	elems    []operand.Elem
	masking  Masking
	features Feature
	estimate int
}

func vecRange(from, to int) []operand.PhysVec {
	regs := make([]operand.PhysVec, 0, to-from+1)
	for r := from; r <= to; r++ {
		regs = append(regs, operand.PhysVec(r))
	}
	return regs
}

func predRange(from, to int) []operand.PhysPred {
	regs := make([]operand.PhysPred, 0, to-from+1)
	for r := from; r <= to; r++ {
		regs = append(regs, operand.PhysPred(r))
	}
	return regs
}

var both = []operand.Elem{operand.Elem32, operand.Elem64}

// x86: rax rcx rdx rbx rsi rdi r8 r9, context in rbp, scratch r11
var x86GPRs = [operand.NumGPR]operand.PhysGPR{0, 1, 2, 3, 6, 7, 8, 9}

// arm64: x0-x7, context in x28, scratch x16 (IP0)
var arm64GPRs = [operand.NumGPR]operand.PhysGPR{0, 1, 2, 3, 4, 5, 6, 7}

// mips64 n64: $a0-$a7, context in $s7, scratch $at
var mipsGPRs = [operand.NumGPR]operand.PhysGPR{4, 5, 6, 7, 8, 9, 10, 11}

// ppc64: r3-r10, context in r30, scratch r12
var ppcGPRs = [operand.NumGPR]operand.PhysGPR{3, 4, 5, 6, 7, 8, 9, 10}

const armCommon = FeatFMA | FeatVarShift | FeatF64Estimate | FeatSar64 | FeatCvt64

var specs = []spec{
	{
		arch: engine.ArchX86_64, family: FamilyVEX, version: 1,
		natives: []int{128}, vecs: vecRange(0, 15),
		gprs: x86GPRs, ctx: 5, scratch: 11,
		elems: both, masking: MaskEmulated, estimate: 12,
	},
	{
		arch: engine.ArchX86_64, family: FamilyVEX, version: 2,
		natives: []int{128, 256}, vecs: vecRange(0, 15),
		gprs: x86GPRs, ctx: 5, scratch: 11,
		elems: both, masking: MaskEmulated, estimate: 12,
		features: FeatFMA | FeatVarShift | FeatWideInt,
	},
	{
		arch: engine.ArchX86_64, family: FamilyEVEX, version: 4,
		natives: []int{512}, vecs: vecRange(0, 31), preds: predRange(1, 4),
		gprs: x86GPRs, ctx: 5, scratch: 11,
		elems: both, masking: MaskPredicate, estimate: 14,
		features: FeatFMA | FeatVarShift | FeatWideInt | FeatDQ | FeatF64Estimate | FeatSar64 | FeatCvt64,
	},
	{
		arch: engine.ArchARM64, family: FamilyNEON, version: 1,
		natives: []int{128}, vecs: vecRange(0, 31),
		gprs: arm64GPRs, ctx: 28, scratch: 16,
		elems: both, masking: MaskEmulated, estimate: 8,
		features: armCommon,
	},
	{
		// p0 is the all-true governing predicate, p15 an encoder temporary
		arch: engine.ArchARM64, family: FamilySVE, version: 2,
		natives: []int{256, 512, 1024, 2048}, vecs: vecRange(0, 31), preds: predRange(1, 8),
		gprs: arm64GPRs, ctx: 28, scratch: 16,
		elems: both, masking: MaskPredicate, estimate: 8,
		features: armCommon,
	},
	{
		arch: engine.ArchMIPS64, family: FamilyMSA, version: 1,
		natives: []int{128}, vecs: vecRange(0, 31),
		gprs: mipsGPRs, ctx: 23, scratch: 1,
		elems: both, masking: MaskEmulated, estimate: 12,
		features: FeatFMA | FeatVarShift | FeatF64Estimate | FeatSar64 | FeatCvt64,
	},
	{
		// VR31 is an encoder temporary
		arch: engine.ArchPPC64, family: FamilyVSX, version: 1,
		natives: []int{128}, vecs: vecRange(0, 30),
		gprs: ppcGPRs, ctx: 30, scratch: 12,
		elems: []operand.Elem{operand.Elem32}, masking: MaskEmulated, estimate: 14,
		features: FeatFMA | FeatVarShift,
	},
	{
		arch: engine.ArchPPC64, family: FamilyVSX, version: 2,
		natives: []int{128}, vecs: vecRange(0, 30),
		gprs: ppcGPRs, ctx: 30, scratch: 12,
		elems: both, masking: MaskEmulated, estimate: 14,
		features: FeatFMA | FeatVarShift | FeatISA207 | FeatF64Estimate | FeatSar64 | FeatCvt64,
	},
}

func validLogical(width int) bool {
	if width < MinLogical || width > MaxLogical {
		return false
	}
	return width&(width-1) == 0
}

func unsupported(arch engine.Arch, width, version int, format string, args ...any) *engine.Error {
	err := engine.NewError(engine.KindUnsupportedTarget, format, args...)
	err.Target = name(arch, width, version)
	return err
}

func name(arch engine.Arch, width, version int) string {
	if version == 0 {
		return fmt.Sprintf("%s/%d", arch, width)
	}
	return fmt.Sprintf("%s/%d/v%d", arch, width, version)
}

// build realizes a spec at a logical width, or explains why it can't
func build(s spec, width int) (*Profile, error) {
	native := 0
	for _, n := range s.natives {
		if n <= width && width%n == 0 {
			native = n
		}
	}
	if native == 0 {
		return nil, unsupported(s.arch, width, s.version,
			"%d bits is not a multiple of any native width %v", width, s.natives)
	}
	n := width / native
	if n > operand.MaxGroup {
		return nil, unsupported(s.arch, width, s.version, "expansion factor %d exceeds %d", n, operand.MaxGroup)
	}
	regs := len(s.vecs)/n - operand.Scratch
	if regs < 4 {
		return nil, unsupported(s.arch, width, s.version,
			"%d physical registers leave %d logical registers at expansion factor %d (need 4)",
			len(s.vecs), max(regs, 0), n)
	}
	if s.masking == MaskPredicate && len(s.preds) < n {
		return nil, unsupported(s.arch, width, s.version,
			"%d predicate registers cannot hold a group of %d", len(s.preds), n)
	}
	regs = min(regs, operand.MaxVecs)
	return &Profile{
		Name:         name(s.arch, width, s.version),
		Arch:         s.arch,
		Family:       s.family,
		Version:      s.version,
		Native:       native,
		Logical:      width,
		N:            n,
		Regs:         regs,
		Masking:      s.masking,
		Features:     s.features,
		EstimateBits: s.estimate,
		Ctx:          s.ctx,
		Scratch:      s.scratch,
		vecs:         s.vecs,
		preds:        s.preds,
		gprs:         s.gprs,
		elems:        s.elems,
	}, nil
}

type key struct {
	arch    engine.Arch
	width   int
	version int
}

// registry holds every resolvable profile, built once
var registry = sync.OnceValue(func() map[key]*Profile {
	m := make(map[key]*Profile)
	for _, s := range specs {
		for w := MinLogical; w <= MaxLogical; w *= 2 {
			if p, err := build(s, w); err == nil {
				m[key{s.arch, w, s.version}] = p
			}
		}
	}
	return m
})

// Resolve returns the profile for an architecture, logical width and
// version. Version 0 picks the highest version that supports the width.
func Resolve(arch engine.Arch, width, version int) (*Profile, error) {
	if !validLogical(width) {
		return nil, unsupported(arch, width, version,
			"logical width must be a power of two between %d and %d", MinLogical, MaxLogical)
	}
	var candidates []spec
	for _, s := range specs {
		if s.arch == arch && (version == 0 || s.version == version) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		if version != 0 {
			return nil, unsupported(arch, width, version, "no version %d for %s", version, arch)
		}
		return nil, unsupported(arch, width, version, "no profiles for %s", arch)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].version > candidates[j].version
	})
	var firstErr error
	for _, s := range candidates {
		if p, ok := registry()[key{arch, width, s.version}]; ok {
			return p, nil
		}
		if _, err := build(s, width); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// Parse resolves a target string of the form arch/width[/vN], for
// example "x86_64/256/v2" or "arm64/512".
func Parse(s string) (*Profile, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) < 2 || len(parts) > 3 {
		err := engine.NewError(engine.KindUnsupportedTarget, "expected ARCH/WIDTH[/vN], got %q", s)
		err.Target = s
		return nil, err
	}
	arch, err := engine.ParseArch(parts[0])
	if err != nil {
		return nil, err
	}
	width, err := strconv.Atoi(parts[1])
	if err != nil {
		e := engine.NewError(engine.KindUnsupportedTarget, "invalid width %q", parts[1])
		e.Target = s
		return nil, e
	}
	version := 0
	if len(parts) == 3 {
		version, err = strconv.Atoi(strings.TrimPrefix(strings.ToLower(parts[2]), "v"))
		if err != nil || version <= 0 {
			e := engine.NewError(engine.KindUnsupportedTarget, "invalid version %q", parts[2])
			e.Target = s
			return nil, e
		}
	}
	return Resolve(arch, width, version)
}

// All returns every resolvable profile, ordered by architecture,
// version and width
func All() []*Profile {
	m := registry()
	out := make([]*Profile, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Arch != b.Arch {
			return a.Arch < b.Arch
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.Logical < b.Logical
	})
	return out
}
