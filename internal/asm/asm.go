// Completion: 100% - Assembler complete
package asm

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/xyproto/rtasm/internal/encode"
	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

// VerboseMode traces every physical instruction to stderr
var VerboseMode = false

// maxDepth bounds shim nesting
const maxDepth = 8

// Entry is one physical instruction of the listing
type Entry struct {
	Offset int
	Bytes  []byte
	Inst   encode.Inst
	Origin string // the logical operation it was emitted for
}

func (e Entry) String() string {
	return fmt.Sprintf("%06x  %-30s %-40s ; %s", e.Offset, fmt.Sprintf("% x", e.Bytes), e.Inst, e.Origin)
}

type label struct {
	bound  bool
	offset int // byte offset
	inst   int // index of the next physical instruction
}

type fixup struct {
	at    int // absolute offset in the buffer
	kind  encode.FixupKind
	label operand.Label
}

// Assembler turns logical operations into machine code for one target
// profile. It owns its buffer, label table and rounding state and must
// only be used from one goroutine; profiles may be shared freely.
type Assembler struct {
	p       *target.Profile
	buf     *Buffer
	insts   []encode.Inst
	listing []Entry
	labels  []label
	pending []fixup

	mode   op.Rounding
	scopes []*RoundingScope

	scratch int // scratch registers held by running shims and folds
	depth   int // shim nesting
	origin  string
	route   string
}

// New creates an assembler for p
func New(p *target.Profile) *Assembler {
	a := &Assembler{
		p:    p,
		buf:  NewBuffer(p.Name),
		mode: op.DefaultRounding,
	}
	if p.Family == target.FamilySVE {
		// p0 governs every predicated instruction
		a.origin = "prologue"
		in := encode.Inst{Op: op.PredInit, Elem: a.anyElem(), Args: []operand.Phys{operand.PP(0)}}
		if err := a.phys(in); err != nil {
			panic(err)
		}
	}
	return a
}

// Profile returns the target profile
func (a *Assembler) Profile() *target.Profile {
	return a.p
}

// Len returns the number of bytes emitted so far
func (a *Assembler) Len() int {
	return a.buf.Len()
}

func (a *Assembler) anyElem() operand.Elem {
	return a.p.Elems()[0]
}

type snapshot struct {
	size, insts, listing, pending, scopes int
	mode                                  op.Rounding
	scratch, depth                        int
}

func (a *Assembler) snapshot() snapshot {
	return snapshot{
		size:    a.buf.Len(),
		insts:   len(a.insts),
		listing: len(a.listing),
		pending: len(a.pending),
		scopes:  len(a.scopes),
		mode:    a.mode,
		scratch: a.scratch,
		depth:   a.depth,
	}
}

func (a *Assembler) restore(s snapshot) {
	a.buf.Truncate(s.size)
	a.insts = a.insts[:s.insts]
	a.listing = a.listing[:s.listing]
	a.pending = a.pending[:s.pending]
	a.scopes = a.scopes[:s.scopes]
	a.mode = s.mode
	a.scratch = s.scratch
	a.depth = s.depth
}

// Emit appends one logical operation. It either emits every physical
// instruction the operation needs or, on error, nothing at all.
func (a *Assembler) Emit(o op.Op, e operand.Elem, args ...operand.Operand) error {
	kinds := operand.Kinds(args)
	fail := func(err *engine.Error) error {
		return err.At(o.String(), operand.KindNames(kinds), a.p.Name)
	}
	if err := a.finalized(); err != nil {
		return fail(err)
	}
	if !o.Public() {
		return fail(engine.NewError(engine.KindUnsupportedOperation, "not a public operation"))
	}
	if !o.Accepts(kinds) {
		return fail(engine.NewError(engine.KindInvalidOperandKind, "expects %s", o.SignatureString()))
	}
	if err := a.validate(args); err != nil {
		return fail(err)
	}
	if !e.Valid() || !a.p.HasElem(e) {
		return fail(engine.NewError(engine.KindUnsupportedOperation, "%d-bit lanes are not supported", uint8(e)))
	}

	s := a.snapshot()
	a.origin = fmt.Sprintf("%s.%s", o, e)
	a.route = ""
	if err := a.lower(o, e, args); err != nil {
		a.restore(s)
		return annotate(err, o, kinds, a.p)
	}
	return nil
}

// finalized rejects changes to code that Finalize already handed out
func (a *Assembler) finalized() *engine.Error {
	if a.buf.IsCommitted() {
		return engine.NewError(engine.KindUnsupportedOperation, "the program is already finalized")
	}
	return nil
}

func (a *Assembler) validate(args []operand.Operand) *engine.Error {
	for _, arg := range args {
		switch v := arg.(type) {
		case operand.Vec:
			if int(v) >= a.p.Regs {
				return engine.NewError(engine.KindInvalidOperandKind,
					"%s is outside the %d visible registers", v, a.p.Regs)
			}
		case operand.Mem:
			if !v.Base.Valid() || v.HasIndex && !v.Index.Valid() {
				return engine.NewError(engine.KindInvalidOperandKind, "%s uses an unmapped register", v)
			}
			if !v.ValidScale() {
				return engine.NewError(engine.KindImmediateOutOfRange, "scale %d is not 1, 2, 4 or 8", v.Scale)
			}
		case operand.Label:
			if int(v) >= len(a.labels) {
				return engine.NewError(engine.KindLabelPatch, "%s was not created by this assembler", v)
			}
		}
	}
	return nil
}

// annotate reports err against the operation the caller issued, keeping
// the failing step in the message
func annotate(err error, o op.Op, kinds []operand.Kind, p *target.Profile) error {
	var e *engine.Error
	if !errors.As(err, &e) {
		return err
	}
	if e.Op != "" && e.Op != o.String() {
		e.Message = fmt.Sprintf("%s(%s): %s", e.Op, strings.Join(e.Kinds, ", "), e.Message)
	}
	e.Op = o.String()
	e.Kinds = operand.KindNames(kinds)
	e.Target = p.Name
	return e
}

// lower routes one logical operation: native template, then shim, then
// folding a memory operand into a scratch register
func (a *Assembler) lower(o op.Op, e operand.Elem, args []operand.Operand) error {
	switch o {
	case op.SaveAll, op.LoadAll:
		a.note("native")
		return a.saveRestore(o, e, args[0].(operand.Mem))
	case op.BranchMask:
		a.note("native")
		return a.branchMask(e, args[0].(operand.Vec), args[1].(operand.Imm), args[2].(operand.Label))
	}
	kinds := operand.Kinds(args)
	if encode.Supports(a.p, o, e, kinds...) {
		a.note("native")
		return a.expand(o, e, args)
	}
	if s, ok := ShimFor(o, e, kinds, a.p); ok {
		a.note("shim " + s.Name)
		return a.runShim(s, e, args)
	}
	if i := memSource(args); i >= 0 {
		a.note("fold")
		return a.fold(o, e, args, i)
	}
	return engine.NewError(engine.KindUnsupportedOperation, "no %s.%s template and no shim for (%s)",
		o, e, strings.Join(operand.KindNames(kinds), ", "))
}

// note records how the outermost operation was lowered
func (a *Assembler) note(route string) {
	if a.depth == 0 && a.route == "" {
		a.route = route
	}
}

// memSource returns the first memory operand read as a source, or -1.
// Position 0 is always the destination.
func memSource(args []operand.Operand) int {
	for i := 1; i < len(args); i++ {
		if args[i].Kind() == operand.KindMem {
			return i
		}
	}
	return -1
}

// fold loads args[i] into a scratch register and lowers again
func (a *Assembler) fold(o op.Op, e operand.Elem, args []operand.Operand, i int) error {
	t, err := a.acquire(1)
	if err != nil {
		return err
	}
	defer a.release(1)
	if err := a.lower(op.Mov, e, []operand.Operand{t, args[i]}); err != nil {
		return err
	}
	folded := slices.Clone(args)
	folded[i] = t
	return a.lower(o, e, folded)
}

// acquire reserves n consecutive scratch registers and returns the first
func (a *Assembler) acquire(n int) (operand.Vec, error) {
	if a.scratch+n > operand.Scratch {
		return 0, engine.NewError(engine.KindUnsupportedOperation,
			"needs %d scratch registers, %d free", n, operand.Scratch-a.scratch)
	}
	v := operand.Vec(a.p.Regs + a.scratch)
	a.scratch += n
	return v, nil
}

func (a *Assembler) release(n int) {
	a.scratch -= n
}

// expand emits one physical instruction per tuple position. Position i
// of every operand pairs with position i of every other operand.
func (a *Assembler) expand(o op.Op, e operand.Elem, args []operand.Operand) error {
	n := a.p.N
	if !o.Replicated() {
		n = 1
	}
	for i := 0; i < n; i++ {
		phys := make([]operand.Phys, len(args))
		for j, arg := range args {
			pa, err := a.physArg(arg, i)
			if err != nil {
				return err
			}
			phys[j] = pa
		}
		if err := a.phys(encode.Inst{Op: o, Elem: e, Args: phys}); err != nil {
			return err
		}
	}
	return nil
}

// physArg realizes a logical operand at tuple position i
func (a *Assembler) physArg(arg operand.Operand, i int) (operand.Phys, error) {
	switch v := arg.(type) {
	case operand.Vec:
		return operand.PV(a.p.Group(v).At(i)), nil
	case operand.Pred:
		g, ok := a.p.PredGroup(v)
		if !ok {
			return operand.Phys{}, engine.NewError(engine.KindInvalidOperandKind, "%s has no predicate group %s", a.p.Name, v)
		}
		return operand.PP(g.At(i)), nil
	case operand.GPR:
		return operand.PG(a.p.GPR(v)), nil
	case operand.Mem:
		return a.physMem(v, int64(i)*int64(a.p.NativeBytes()))
	case operand.Imm:
		return operand.PI(int64(v)), nil
	case operand.Label:
		return operand.PL(v), nil
	}
	return operand.Phys{}, engine.NewError(engine.KindInvalidOperandKind, "unknown operand %v", arg)
}

// physMem realizes a memory operand displaced by delta bytes
func (a *Assembler) physMem(m operand.Mem, delta int64) (operand.Phys, error) {
	d, ok := m.Offset(delta)
	if !ok {
		return operand.Phys{}, engine.NewError(engine.KindImmediateOutOfRange,
			"displacement %d%+d does not fit in 32 bits", m.Disp, delta)
	}
	pm := operand.PhysMem{Base: a.p.GPR(d.Base), Scale: max(d.Scale, 1), Disp: d.Disp}
	if d.HasIndex {
		pm.Index = a.p.GPR(d.Index)
		pm.HasIndex = true
	}
	return operand.PM(pm), nil
}

// phys encodes and appends one physical instruction
func (a *Assembler) phys(in encode.Inst) error {
	enc, err := encode.Encode(a.p, in)
	if err != nil {
		return err
	}
	at := a.buf.Len()
	a.buf.Write(enc.Bytes)
	a.insts = append(a.insts, in)
	a.listing = append(a.listing, Entry{Offset: at, Inst: in, Origin: a.origin})
	for _, f := range enc.Fixups {
		fx := fixup{at: at + f.At, kind: f.Kind, label: f.Label}
		if l := a.labels[f.Label]; l.bound {
			if err := a.patch(fx, l.offset); err != nil {
				return err
			}
			continue
		}
		a.pending = append(a.pending, fx)
	}
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "%s: %06x  % x  %s ; %s\n", a.p.Name, at, enc.Bytes, in, a.origin)
	}
	return nil
}

// Program returns the physical instructions emitted so far and, for
// every bound label, the index of the instruction it precedes
func (a *Assembler) Program() ([]encode.Inst, map[operand.Label]int) {
	labels := make(map[operand.Label]int)
	for i, l := range a.labels {
		if l.bound {
			labels[operand.Label(i)] = l.inst
		}
	}
	return slices.Clone(a.insts), labels
}

// Listing returns every physical instruction with its final bytes
func (a *Assembler) Listing() []Entry {
	code := a.buf.Bytes()
	out := make([]Entry, len(a.listing))
	for i, e := range a.listing {
		end := len(code)
		if i+1 < len(a.listing) {
			end = a.listing[i+1].Offset
		}
		e.Bytes = slices.Clone(code[e.Offset:end])
		out[i] = e
	}
	return out
}

// Route reports how the last successful Emit was lowered: "native",
// "fold" or "shim <name>"
func (a *Assembler) Route() string {
	return a.route
}

// Finalize checks that every label reference was resolved and every
// rounding scope closed, and returns the code. The buffer is read-only
// afterwards.
func (a *Assembler) Finalize() ([]byte, error) {
	if n := len(a.scopes); n > 0 {
		return nil, engine.NewError(engine.KindUnsupportedOperation,
			"%d rounding scope(s) still open, innermost %s", n, a.scopes[n-1].mode)
	}
	if len(a.pending) > 0 {
		refs := make(map[operand.Label]int)
		var order []operand.Label
		for _, f := range a.pending {
			if refs[f.label] == 0 {
				order = append(order, f.label)
			}
			refs[f.label]++
		}
		parts := make([]string, len(order))
		for i, l := range order {
			parts[i] = fmt.Sprintf("%s (%d reference(s))", l, refs[l])
		}
		return nil, engine.NewError(engine.KindLabelPatch, "unbound labels: %s", strings.Join(parts, ", "))
	}
	a.buf.Commit()
	return slices.Clone(a.buf.Bytes()), nil
}
