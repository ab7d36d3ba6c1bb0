// Completion: 100% - Compatibility shims complete
package asm

import (
	"fmt"
	"strings"

	"github.com/xyproto/rtasm/internal/encode"
	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

// RefKind says where a shim step operand comes from
type RefKind uint8

const (
	RefArg     RefKind = iota // caller operand N
	RefScratch                // scratch register N of the shim
	RefPred                   // the predicate group
	RefConst                  // constant pool slot N
	RefImm                    // immediate N
)

// Ref is one operand of a shim step, renamed when the shim runs
type Ref struct {
	Kind RefKind
	N    int64
}

func (r Ref) String() string {
	switch r.Kind {
	case RefArg:
		return fmt.Sprintf("a%d", r.N)
	case RefScratch:
		return fmt.Sprintf("t%d", r.N)
	case RefPred:
		return "P"
	case RefConst:
		return "[" + Const(r.N).String() + "]"
	}
	return fmt.Sprintf("#%d", r.N)
}

var (
	a0, a1, a2, a3 = Ref{RefArg, 0}, Ref{RefArg, 1}, Ref{RefArg, 2}, Ref{RefArg, 3}
	t0, t1, t2     = Ref{RefScratch, 0}, Ref{RefScratch, 1}, Ref{RefScratch, 2}
	pr             = Ref{Kind: RefPred}
)

func k(c Const) Ref { return Ref{RefConst, int64(c)} }

// Step is one operation of a shim
type Step struct {
	Op   op.Op
	Args []Ref
}

func step(o op.Op, args ...Ref) Step { return Step{Op: o, Args: args} }

func (s Step) String() string {
	args := make([]string, len(s.Args))
	for i, r := range s.Args {
		args[i] = r.String()
	}
	return s.Op.String() + " " + strings.Join(args, ", ")
}

// Shim is a fixed sequence of operations standing in for one the
// target lacks. Each step goes through the normal emit path, so it may
// be expanded, folded or shimmed in turn. Steps write the caller's
// destination (a0) only once every input has been read.
type Shim struct {
	Name    string
	Steps   []Step
	Scratch int         // scratch registers the steps use
	Scoped  bool        // steps run inside a rounding scope
	Mode    op.Rounding // the scope's mode
}

func newShim(name string, steps ...Step) *Shim {
	s := &Shim{Name: name, Steps: steps}
	for _, st := range steps {
		for _, r := range st.Args {
			if r.Kind == RefScratch {
				s.Scratch = max(s.Scratch, int(r.N)+1)
			}
		}
	}
	return s
}

func (s *Shim) scoped(mode op.Rounding) *Shim {
	s.Scoped = true
	s.Mode = mode
	return s
}

func (s *Shim) String() string {
	var sb strings.Builder
	sb.WriteString(s.Name)
	if s.Scoped {
		fmt.Fprintf(&sb, " (rounding %s)", s.Mode)
	}
	sb.WriteString(":")
	for i, st := range s.Steps {
		if i > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(" ")
		sb.WriteString(st.String())
	}
	return sb.String()
}

// cbrtIterations is the number of Newton steps after the bit-trick
// estimate, which is good to about 5 bits
func cbrtIterations(e operand.Elem) int {
	if e == operand.Elem64 {
		return 4
	}
	return 3
}

// roundOp returns the round-to-integral operation for a fixed mode
func roundOp(r op.Rounding) op.Op {
	switch r {
	case op.RoundDown:
		return op.Rnm
	case op.RoundUp:
		return op.Rnp
	case op.RoundZero:
		return op.Rnz
	}
	return op.Rnn
}

// ShimFor returns the compatibility sequence for an operation the
// profile cannot encode directly. It returns false when the operation
// is native, when only a memory operand stands in the way (the
// assembler folds it instead), or when nothing can stand in for it.
func ShimFor(o op.Op, e operand.Elem, kinds []operand.Kind, p *target.Profile) (*Shim, bool) {
	if !o.Valid() || !p.HasElem(e) {
		return nil, false
	}
	nat := func(o op.Op, kinds ...operand.Kind) bool {
		return encode.Supports(p, o, e, kinds...)
	}
	if nat(o, kinds...) || nat(o, regKinds(kinds)...) {
		return nil, false
	}
	v := operand.KindVec
	predicated := p.Masking == target.MaskPredicate

	if o.IsCompare() {
		if predicated {
			return newShim("predicate compare",
				step(o, pr, a1, a2),
				step(op.Mov, a0, pr)), true
		}
		if o == op.Cne && nat(op.Ceq, v, v, v) {
			return newShim("not equal",
				step(op.Ceq, a0, a1, a2),
				step(op.Not, a0, a0)), true
		}
		return nil, false
	}

	switch o {
	case op.Andn:
		return newShim("andn",
			step(op.Not, t0, a1),
			step(op.And, a0, t0, a2)), true
	case op.Orn:
		return newShim("orn",
			step(op.Not, t0, a2),
			step(op.Or, a0, a1, t0)), true
	case op.Not:
		return newShim("xor ones",
			step(op.Xor, a0, a1, k(ConstOnes))), true

	case op.Fma:
		// rounds twice: may differ from a fused result in the last bit
		return newShim("mul add",
			step(op.Mul, t0, a1, a2),
			step(op.Add, a0, a0, t0)), true
	case op.Fms:
		return newShim("mul sub",
			step(op.Mul, t0, a1, a2),
			step(op.Sub, a0, a0, t0)), true

	case op.Rcp:
		if nat(op.RcpEst, v, v) {
			// e' = e * (2 - x*e)
			return newShim("rcp newton",
				step(op.RcpEst, t0, a1),
				step(op.Mul, t1, a1, t0),
				step(op.Mov, t2, k(ConstTwo)),
				step(op.Sub, t1, t2, t1),
				step(op.Mul, a0, t0, t1)), true
		}
		return rcpDiv(), true
	case op.RcpEst:
		return rcpDiv(), true
	case op.Rsqrt:
		if nat(op.RsqrtEst, v, v) {
			// e' = e * (1.5 - 0.5*x*e*e)
			return newShim("rsqrt newton",
				step(op.RsqrtEst, t0, a1),
				step(op.Mul, t1, t0, t0),
				step(op.Mul, t1, t1, a1),
				step(op.Mul, t1, t1, k(ConstHalf)),
				step(op.Mov, t2, k(ConstOneHalf)),
				step(op.Sub, t2, t2, t1),
				step(op.Mul, a0, t0, t2)), true
		}
		return rsqrtDiv(), true
	case op.RsqrtEst:
		return rsqrtDiv(), true
	case op.Cbrt:
		return cbrt(e), true

	case op.Sar:
		if nat(op.Shr, v, v, operand.KindImm) {
			return signExtend(op.Shr), true
		}
	case op.ShrV, op.SarV:
		if nat(op.Sshl, v, v, v) {
			// shifting left by a negative count shifts right
			shl := op.ShlV
			if o == op.SarV {
				shl = op.Sshl
			}
			return newShim("negated count",
				step(op.Mov, t0, k(ConstZero)),
				step(op.ISub, t0, t0, a2),
				step(shl, a0, a1, t0)), true
		}
		if o == op.SarV && nat(op.ShrV, v, v, v) {
			return signExtend(op.ShrV), true
		}

	case op.CvtF2I:
		return newShim("round then truncate",
			step(op.Rnd, t0, a1),
			step(op.CvzF2I, a0, t0)), true
	case op.CvnF2I, op.CvpF2I, op.CvmF2I:
		mode, _ := op.RoundingOf(o)
		if rn := roundOp(mode); nat(rn, v, v) {
			return newShim("round then truncate",
				step(rn, t0, a1),
				step(op.CvzF2I, a0, t0)), true
		}
		return newShim("scoped convert",
			step(op.CvtF2I, a0, a1)).scoped(mode), true
	case op.CvnI2F:
		return newShim("scoped convert",
			step(op.CvtI2F, a0, a1)).scoped(op.RoundNearest), true
	case op.Rnn, op.Rnz, op.Rnp, op.Rnm:
		if nat(op.Rnd, v, v) {
			mode, _ := op.RoundingOf(o)
			return newShim("scoped round",
				step(op.Rnd, a0, a1)).scoped(mode), true
		}

	case op.Select:
		if predicated {
			return newShim("predicated select",
				step(op.Mov, pr, a1),
				step(op.Select, a0, pr, a2, a3)), true
		}
		// (mask AND a) OR (NOT mask AND b)
		return newShim("bitwise select",
			step(op.And, t0, a1, a2),
			step(op.Andn, t1, a1, a3),
			step(op.Or, a0, t0, t1)), true
	}
	return nil, false
}

// regKinds returns kinds with every source memory operand replaced by a
// register
func regKinds(kinds []operand.Kind) []operand.Kind {
	out := make([]operand.Kind, len(kinds))
	for i, kd := range kinds {
		if i > 0 && kd == operand.KindMem {
			kd = operand.KindVec
		}
		out[i] = kd
	}
	return out
}

func rcpDiv() *Shim {
	return newShim("rcp div",
		step(op.Mov, t0, k(ConstOne)),
		step(op.Div, a0, t0, a1))
}

func rsqrtDiv() *Shim {
	return newShim("rsqrt div",
		step(op.Sqrt, t0, a1),
		step(op.Mov, t1, k(ConstOne)),
		step(op.Div, a0, t1, t0))
}

// signExtend shifts right logically and restores the sign:
// (x >>> n ^ m) - m with m = SIGN >>> n
func signExtend(shr op.Op) *Shim {
	return newShim("sign extend",
		step(op.Mov, t0, k(ConstSign)),
		step(shr, t0, t0, a2),
		step(shr, t1, a1, a2),
		step(op.Xor, t1, t1, t0),
		step(op.ISub, a0, t1, t0))
}

// cbrt estimates from the bits of |x| (bits/3 + bias), refines with
// Newton steps y = (2y + x/y²)/3 and copies the sign of x. Accurate for
// finite nonzero inputs.
func cbrt(e operand.Elem) *Shim {
	steps := []Step{
		step(op.And, t0, a1, k(ConstAbsMask)),
		step(op.CvtI2F, t1, t0),
		step(op.Mul, t1, t1, k(ConstThird)),
		step(op.CvzF2I, t1, t1),
		step(op.IAdd, t1, t1, k(ConstCbrtBias)),
	}
	for i := 0; i < cbrtIterations(e); i++ {
		steps = append(steps,
			step(op.Mul, t2, t1, t1),
			step(op.Div, t2, t0, t2),
			step(op.Add, t2, t2, t1),
			step(op.Add, t2, t2, t1),
			step(op.Mul, t1, t2, k(ConstThird)))
	}
	steps = append(steps,
		step(op.And, t2, a1, k(ConstSign)),
		step(op.Or, a0, t1, t2))
	return newShim("cbrt newton", steps...)
}

// runShim lowers every step with its operands renamed
func (a *Assembler) runShim(s *Shim, e operand.Elem, args []operand.Operand) error {
	if a.depth >= maxDepth {
		return engine.NewError(engine.KindUnsupportedOperation, "shims nested deeper than %d", maxDepth)
	}
	a.depth++
	defer func() { a.depth-- }()

	base, err := a.acquire(s.Scratch)
	if err != nil {
		return err
	}
	defer a.release(s.Scratch)

	var scope *RoundingScope
	if s.Scoped {
		if scope, err = a.EnterRounding(s.Mode); err != nil {
			return err
		}
	}
	for _, st := range s.Steps {
		ops := make([]operand.Operand, len(st.Args))
		for i, r := range st.Args {
			ops[i] = a.resolve(r, base, e, args)
		}
		if err := a.lower(st.Op, e, ops); err != nil {
			return err
		}
	}
	if scope != nil {
		return scope.Close()
	}
	return nil
}

func (a *Assembler) resolve(r Ref, base operand.Vec, e operand.Elem, args []operand.Operand) operand.Operand {
	switch r.Kind {
	case RefArg:
		return args[r.N]
	case RefScratch:
		return base + operand.Vec(r.N)
	case RefPred:
		return operand.Pred(0)
	case RefConst:
		return ConstMem(Const(r.N), e)
	}
	return operand.Imm(r.N)
}
