package main

import (
	"fmt"
	"sort"

	"github.com/xyproto/rtasm/internal/asm"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
)

// Memory layout shared by the kernels, relative to r0
const (
	inOffset    = 0
	onesOffset  = 256 // 1.0 in every lane
	outOffset   = 512
	floorOffset = 768
)

// builder emits through an assembler and keeps the first error, so a
// kernel reads as a straight list of operations
type builder struct {
	a   *asm.Assembler
	e   operand.Elem
	err error
}

func (b *builder) emit(o op.Op, args ...operand.Operand) {
	if b.err != nil {
		return
	}
	if err := b.a.Emit(o, b.e, args...); err != nil {
		b.err = fmt.Errorf("%s: %w", o, err)
	}
}

func (b *builder) bind(l operand.Label) {
	if b.err == nil {
		b.err = b.a.Bind(l)
	}
}

// rounding runs body with mode active
func (b *builder) rounding(mode op.Rounding, body func()) {
	if b.err != nil {
		return
	}
	scope, err := b.a.EnterRounding(mode)
	if err != nil {
		b.err = err
		return
	}
	defer func() {
		if err := scope.Close(); err != nil && b.err == nil {
			b.err = err
		}
	}()
	body()
}

func at(disp int32) operand.Mem {
	return operand.At(operand.R0, disp)
}

// Kernel is a small built-in program
type Kernel struct {
	Name  string
	Doc   string
	build func(b *builder)
}

var kernels = map[string]Kernel{
	"shade": {
		Name: "shade",
		Doc:  "y = 1/(1+x*x) where x >= 0, else 0; floor(y) at +768",
		build: func(b *builder) {
			v0, v1, v2, v3 := operand.V0, operand.V1, operand.V2, operand.V3
			store := b.a.NewLabel()
			b.emit(op.Mov, v0, at(inOffset))
			b.emit(op.Xor, v2, v2, v2)
			b.emit(op.Cge, v3, v0, v2)
			b.emit(op.BranchMask, v3, op.CondNone, store)
			b.emit(op.Mul, v1, v0, v0)
			b.emit(op.Add, v1, v1, at(onesOffset))
			b.emit(op.Rcp, v1, v1)
			b.emit(op.Select, v2, v3, v1, v2)
			b.bind(store)
			b.emit(op.Mov, at(outOffset), v2)
			b.rounding(op.RoundDown, func() {
				b.emit(op.CvtF2I, v0, v2)
			})
			b.emit(op.Mov, at(floorOffset), v0)
		},
	},
	"cbrt": {
		Name: "cbrt",
		Doc:  "y = cbrt(x)",
		build: func(b *builder) {
			b.emit(op.Mov, operand.V1, at(inOffset))
			b.emit(op.Cbrt, operand.V0, operand.V1)
			b.emit(op.Mov, at(outOffset), operand.V0)
		},
	},
	"rsqrt": {
		Name: "rsqrt",
		Doc:  "y = 1/sqrt(x), refined from the hardware estimate",
		build: func(b *builder) {
			b.emit(op.Rsqrt, operand.V0, at(inOffset))
			b.emit(op.Mov, at(outOffset), operand.V0)
		},
	},
	"switch": {
		Name: "switch",
		Doc:  "save every register at r1, clobber v0..v3, restore",
		build: func(b *builder) {
			area := operand.At(operand.R1, 0)
			b.emit(op.SaveAll, area)
			for _, v := range []operand.Vec{operand.V0, operand.V1, operand.V2, operand.V3} {
				b.emit(op.Xor, v, v, v)
			}
			b.emit(op.LoadAll, area)
		},
	},
}

func kernelNames() []string {
	names := make([]string, 0, len(kernels))
	for name := range kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build emits the kernel into a
func (k Kernel) Build(a *asm.Assembler, e operand.Elem) error {
	b := &builder{a: a, e: e}
	k.build(b)
	return b.err
}
