package asm

import (
	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

// Row is one line of the support matrix
type Row struct {
	Op    op.Op
	Elem  operand.Elem
	Kinds []operand.Kind
	Route string // "native", "fold" or "shim <name>"
	Insts int    // physical instructions emitted
	Bytes int
	Err   error
}

// Forms expands the signatures of o into every concrete combination of
// operand kinds
func Forms(o op.Op) [][]operand.Kind {
	var out [][]operand.Kind
	seen := make(map[string]bool)
	for _, sig := range o.Signatures() {
		combos := [][]operand.Kind{nil}
		for _, set := range sig {
			var next [][]operand.Kind
			for _, c := range combos {
				for kd := operand.KindVec; kd <= operand.KindLabel; kd++ {
					if set.Has(kd) {
						next = append(next, append(append([]operand.Kind(nil), c...), kd))
					}
				}
			}
			combos = next
		}
		for _, c := range combos {
			key := string(kindBytes(c))
			if !seen[key] {
				seen[key] = true
				out = append(out, c)
			}
		}
	}
	return out
}

func kindBytes(kinds []operand.Kind) []byte {
	b := make([]byte, len(kinds))
	for i, kd := range kinds {
		b[i] = byte(kd)
	}
	return b
}

// probeArgs builds representative operands for a combination of kinds
func probeArgs(a *Assembler, o op.Op, kinds []operand.Kind) []operand.Operand {
	args := make([]operand.Operand, len(kinds))
	for i, kd := range kinds {
		switch kd {
		case operand.KindVec:
			args[i] = operand.Vec(i % a.p.Regs)
		case operand.KindPred:
			args[i] = operand.Pred(0)
		case operand.KindGPR:
			args[i] = operand.R0
		case operand.KindMem:
			args[i] = operand.At(operand.R0, 0)
		case operand.KindImm:
			args[i] = operand.Imm(1)
			if o == op.BranchMask {
				args[i] = op.CondAll
			}
		case operand.KindLabel:
			args[i] = a.NewLabel()
		}
	}
	return args
}

func probe(p *target.Profile, o op.Op, e operand.Elem, kinds []operand.Kind) Row {
	a := New(p)
	start, first := a.Len(), len(a.insts)
	err := a.Emit(o, e, probeArgs(a, o, kinds)...)
	return Row{
		Op:    o,
		Elem:  e,
		Kinds: kinds,
		Route: a.Route(),
		Insts: len(a.insts) - first,
		Bytes: a.Len() - start,
		Err:   err,
	}
}

// Check reports whether a logical operation with these operand kinds
// can be emitted on p. Profiles are fixed before any code is generated,
// so the answer holds for every later Emit of the same shape.
func Check(p *target.Profile, o op.Op, e operand.Elem, kinds ...operand.Kind) error {
	return probe(p, o, e, kinds).Err
}

// Matrix checks every public operation, element width and operand-kind
// combination on p. The collector holds the failures.
func Matrix(p *target.Profile) ([]Row, *engine.Collector) {
	c := engine.NewCollector(0)
	var rows []Row
	for _, o := range op.PublicOps() {
		for _, e := range operand.Elems {
			for _, kinds := range Forms(o) {
				r := probe(p, o, e, kinds)
				c.Add(r.Err)
				rows = append(rows, r)
			}
		}
	}
	return rows, c
}
