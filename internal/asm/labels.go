package asm

import (
	"fmt"

	"github.com/xyproto/rtasm/internal/encode"
	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/operand"
)

// NewLabel creates an unbound label
func (a *Assembler) NewLabel() operand.Label {
	a.labels = append(a.labels, label{})
	return operand.Label(len(a.labels) - 1)
}

// Bind places l at the current end of the code and patches every
// branch that referred to it. A label is bound exactly once.
func (a *Assembler) Bind(l operand.Label) error {
	if err := a.finalized(); err != nil {
		return err.At("bind "+l.String(), nil, a.p.Name)
	}
	if int(l) >= len(a.labels) {
		return engine.NewError(engine.KindLabelPatch, "%s was not created by this assembler", l)
	}
	if a.labels[l].bound {
		return engine.NewError(engine.KindLabelPatch, "%s is already bound at offset %d", l, a.labels[l].offset)
	}
	off := a.buf.Len()
	a.labels[l] = label{bound: true, offset: off, inst: len(a.insts)}

	var first error
	kept := a.pending[:0]
	for _, f := range a.pending {
		if f.label != l {
			kept = append(kept, f)
			continue
		}
		if err := a.patch(f, off); err != nil && first == nil {
			first = err
		}
	}
	a.pending = kept
	return first
}

// Bound reports whether l has been bound, and where
func (a *Assembler) Bound(l operand.Label) (int, bool) {
	if int(l) >= len(a.labels) || !a.labels[l].bound {
		return 0, false
	}
	return a.labels[l].offset, true
}

func (a *Assembler) patch(f fixup, target int) error {
	err := a.buf.Patch(f.at, func(code []byte) error {
		return encode.Patch(code, f.at, f.kind, target)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", f.label, err)
	}
	return nil
}
