package asm

import (
	"github.com/xyproto/rtasm/internal/encode"
	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
)

// RoundingScope forces a rounding mode until it is closed. Scopes nest
// strictly: closing restores the mode of the enclosing scope, or the
// mode generated code is entered with.
//
//	scope, err := a.EnterRounding(op.RoundDown)
//	if err != nil {
//		return err
//	}
//	defer scope.Close()
type RoundingScope struct {
	a      *Assembler
	mode   op.Rounding
	prev   op.Rounding
	closed bool
}

// Mode returns the mode the scope installs
func (s *RoundingScope) Mode() op.Rounding {
	return s.mode
}

// Rounding returns the rounding mode active at the current end of the code
func (a *Assembler) Rounding() op.Rounding {
	return a.mode
}

// EnterRounding installs mode. The control register is only written
// when mode differs from the active one.
func (a *Assembler) EnterRounding(mode op.Rounding) (*RoundingScope, error) {
	if !mode.Valid() {
		return nil, engine.NewError(engine.KindImmediateOutOfRange, "unknown rounding mode %d", uint8(mode)).
			At("enter rounding", nil, a.p.Name)
	}
	if err := a.finalized(); err != nil {
		return nil, err.At("enter rounding", nil, a.p.Name)
	}
	s := &RoundingScope{a: a, mode: mode, prev: a.mode}
	if err := a.setRounding(mode); err != nil {
		return nil, err
	}
	a.scopes = append(a.scopes, s)
	return s, nil
}

// Close restores the mode that was active when the scope was entered.
// Closing twice is a no-op; closing a scope that is not the innermost
// open one is an error.
func (s *RoundingScope) Close() error {
	if s.closed {
		return nil
	}
	a := s.a
	if n := len(a.scopes); n == 0 || a.scopes[n-1] != s {
		return engine.NewError(engine.KindUnsupportedOperation,
			"rounding scope %s closed while an inner scope is open", s.mode).At("close rounding", nil, a.p.Name)
	}
	if err := a.setRounding(s.prev); err != nil {
		return err
	}
	a.scopes = a.scopes[:len(a.scopes)-1]
	s.closed = true
	return nil
}

func (a *Assembler) setRounding(mode op.Rounding) error {
	if mode == a.mode {
		return nil
	}
	if err := a.finalized(); err != nil {
		return err.At("rounding "+mode.String(), nil, a.p.Name)
	}
	if a.depth == 0 {
		a.origin = "rounding " + mode.String()
	}
	images, err := a.physMem(operand.At(operand.Ctx, MXCSROffset), 0)
	if err != nil {
		return err
	}
	in := encode.Inst{
		Op:   op.SetRounding,
		Elem: a.anyElem(),
		Args: []operand.Phys{operand.PI(int64(mode)), images},
	}
	if err := a.phys(in); err != nil {
		return err
	}
	a.mode = mode
	return nil
}
