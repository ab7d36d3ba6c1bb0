// Completion: 100% - Reference interpreter complete
package sim

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xyproto/rtasm/internal/encode"
	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

// DefaultMaxSteps stops runaway loops
const DefaultMaxSteps = 1 << 20

// Machine interprets physical instructions for one profile. It models
// what each instruction means, not how it is encoded, and is the test
// oracle for the assembler.
//
// Arithmetic rounds to nearest whatever the mode; the mode only affects
// conversions and round-to-integral. Estimates are the exact result
// truncated to the profile's EstimateBits.
type Machine struct {
	p     *target.Profile
	nb    int
	vec   [32][]byte
	pred  [16][]byte // one byte per vector byte, 0xFF where the lane is active
	gpr   [32]uint64
	Mem   []byte
	Mode  op.Rounding
	Steps int

	MaxSteps int
}

// New creates a machine with memSize bytes of zeroed memory
func New(p *target.Profile, memSize int) *Machine {
	m := &Machine{
		p:        p,
		nb:       p.NativeBytes(),
		Mem:      make([]byte, memSize),
		Mode:     op.DefaultRounding,
		MaxSteps: DefaultMaxSteps,
	}
	for i := range m.vec {
		m.vec[i] = make([]byte, m.nb)
	}
	for i := range m.pred {
		m.pred[i] = make([]byte, m.nb)
	}
	return m
}

// Vec returns the bytes of a physical vector register
func (m *Machine) Vec(r operand.PhysVec) []byte {
	return m.vec[r]
}

// SetVec copies b into a physical vector register
func (m *Machine) SetVec(r operand.PhysVec, b []byte) {
	copy(m.vec[r], b)
}

// GPR returns a general purpose register
func (m *Machine) GPR(r operand.PhysGPR) uint64 {
	return m.gpr[r]
}

// SetGPR sets a general purpose register
func (m *Machine) SetGPR(r operand.PhysGPR, v uint64) {
	m.gpr[r] = v
}

// Place copies data into memory at addr
func (m *Machine) Place(addr int, data []byte) {
	copy(m.Mem[addr:], data)
}

// SetLogical fills every physical register of logical register v with
// lanes, repeating them as needed
func (m *Machine) SetLogical(v operand.Vec, e operand.Elem, lanes ...uint64) {
	g := m.p.Group(v)
	per := m.nb / e.Bytes()
	k := 0
	for i := 0; i < g.Len(); i++ {
		for j := 0; j < per; j++ {
			setLane(m.vec[g.At(i)], e, j, lanes[k%len(lanes)])
			k++
		}
	}
}

// Logical returns every lane of logical register v, position 0 first
func (m *Machine) Logical(v operand.Vec, e operand.Elem) []uint64 {
	g := m.p.Group(v)
	per := m.nb / e.Bytes()
	out := make([]uint64, 0, g.Len()*per)
	for i := 0; i < g.Len(); i++ {
		for j := 0; j < per; j++ {
			out = append(out, lane(m.vec[g.At(i)], e, j))
		}
	}
	return out
}

// SetFloats fills logical register v with floating point lanes
func (m *Machine) SetFloats(v operand.Vec, e operand.Elem, fs ...float64) {
	lanes := make([]uint64, len(fs))
	for i, f := range fs {
		lanes[i] = fromFloat(f, e)
	}
	m.SetLogical(v, e, lanes...)
}

// Floats returns the lanes of logical register v as numbers
func (m *Machine) Floats(v operand.Vec, e operand.Elem) []float64 {
	lanes := m.Logical(v, e)
	out := make([]float64, len(lanes))
	for i, l := range lanes {
		out[i] = toFloat(l, e)
	}
	return out
}

// Run executes prog from the first instruction until it falls off the end
func (m *Machine) Run(prog []encode.Inst, labels map[operand.Label]int) error {
	for pc := 0; pc < len(prog); {
		if m.MaxSteps > 0 && m.Steps >= m.MaxSteps {
			return fmt.Errorf("sim: stopped after %d steps at %d: %s", m.Steps, pc, prog[pc])
		}
		m.Steps++
		target, jump, err := m.exec(prog[pc])
		if err != nil {
			return fmt.Errorf("sim: %d: %s: %w", pc, prog[pc], err)
		}
		if !jump {
			pc++
			continue
		}
		next, ok := labels[target]
		if !ok {
			return fmt.Errorf("sim: %d: branch to unbound %s", pc, target)
		}
		pc = next
	}
	return nil
}

func lane(b []byte, e operand.Elem, i int) uint64 {
	if e == operand.Elem64 {
		return binary.LittleEndian.Uint64(b[i*8:])
	}
	return uint64(binary.LittleEndian.Uint32(b[i*4:]))
}

func setLane(b []byte, e operand.Elem, i int, v uint64) {
	if e == operand.Elem64 {
		binary.LittleEndian.PutUint64(b[i*8:], v)
		return
	}
	binary.LittleEndian.PutUint32(b[i*4:], uint32(v))
}

func toFloat(bits uint64, e operand.Elem) float64 {
	if e == operand.Elem64 {
		return math.Float64frombits(bits)
	}
	return float64(math.Float32frombits(uint32(bits)))
}

func fromFloat(f float64, e operand.Elem) uint64 {
	if e == operand.Elem64 {
		return math.Float64bits(f)
	}
	return uint64(math.Float32bits(float32(f)))
}

func ones(e operand.Elem) uint64 {
	if e == operand.Elem64 {
		return math.MaxUint64
	}
	return math.MaxUint32
}

func (m *Machine) addr(pm operand.PhysMem, size int) (int, error) {
	a := int64(m.gpr[pm.Base]) + int64(pm.Disp)
	if pm.HasIndex {
		a += int64(m.gpr[pm.Index]) * int64(max(pm.Scale, 1))
	}
	if a < 0 || a+int64(size) > int64(len(m.Mem)) {
		return 0, fmt.Errorf("address %#x (+%d) outside %d bytes of memory", a, size, len(m.Mem))
	}
	return int(a), nil
}

// read returns the bytes of a vector or memory source
func (m *Machine) read(a operand.Phys) ([]byte, error) {
	switch a.Kind {
	case operand.KindVec:
		return m.vec[a.Vec()], nil
	case operand.KindMem:
		at, err := m.addr(a.Mem, m.nb)
		if err != nil {
			return nil, err
		}
		return m.Mem[at : at+m.nb], nil
	}
	return nil, fmt.Errorf("cannot read a %s operand", a.Kind)
}

func unsupported(in encode.Inst) error {
	return fmt.Errorf("no semantics for %s: %w", in.Op, engine.ErrUnsupportedOperation)
}

// lanewise applies f to every lane of the sources and writes dst
func (m *Machine) lanewise(in encode.Inst, f func(x []uint64) uint64, srcs ...operand.Phys) error {
	bufs := make([][]byte, len(srcs))
	for i, s := range srcs {
		b, err := m.read(s)
		if err != nil {
			return err
		}
		bufs[i] = append([]byte(nil), b...)
	}
	e := in.Elem
	dst := m.vec[in.Args[0].Vec()]
	x := make([]uint64, len(srcs))
	for j := 0; j < m.nb/e.Bytes(); j++ {
		for i, b := range bufs {
			x[i] = lane(b, e, j)
		}
		setLane(dst, e, j, f(x))
	}
	return nil
}

func (m *Machine) exec(in encode.Inst) (operand.Label, bool, error) {
	args := in.Args
	e := in.Elem
	switch in.Op {
	case op.Mov:
		return 0, false, m.mov(in)
	case op.StoreFirst:
		at, err := m.addr(args[0].Mem, e.Bytes())
		if err != nil {
			return 0, false, err
		}
		copy(m.Mem[at:at+e.Bytes()], m.vec[args[1].Vec()])
		return 0, false, nil

	case op.And:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 { return x[0] & x[1] }, args[1], args[2])
	case op.Andn:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 { return ^x[0] & x[1] & ones(e) }, args[1], args[2])
	case op.Or:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 { return x[0] | x[1] }, args[1], args[2])
	case op.Orn:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 { return (x[0] | ^x[1]) & ones(e) }, args[1], args[2])
	case op.Xor:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 { return x[0] ^ x[1] }, args[1], args[2])
	case op.Not:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 { return ^x[0] & ones(e) }, args[1])

	case op.Add, op.Sub, op.Mul, op.Div:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 { return arith(in.Op, e, x[0], x[1]) }, args[1], args[2])
	case op.Sqrt:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 {
			return fromFloat(math.Sqrt(toFloat(x[0], e)), e)
		}, args[1])
	case op.RcpEst:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 {
			return fromFloat(estimate(1/toFloat(x[0], e), m.p.EstimateBits), e)
		}, args[1])
	case op.RsqrtEst:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 {
			return fromFloat(estimate(1/math.Sqrt(toFloat(x[0], e)), m.p.EstimateBits), e)
		}, args[1])
	case op.Fma, op.Fms:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 {
			return fused(in.Op == op.Fms, e, x[0], x[1], x[2])
		}, args[0], args[1], args[2])

	case op.IAdd:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 { return (x[0] + x[1]) & ones(e) }, args[1], args[2])
	case op.ISub:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 { return (x[0] - x[1]) & ones(e) }, args[1], args[2])

	case op.Shl, op.Shr, op.Sar:
		n := uint64(args[2].Imm)
		return 0, false, m.lanewise(in, func(x []uint64) uint64 { return shift(in.Op, e, x[0], n) }, args[1])
	case op.ShlV, op.ShrV, op.SarV:
		neon := m.p.Family == target.FamilyNEON && in.Op == op.ShlV
		return 0, false, m.lanewise(in, func(x []uint64) uint64 {
			if neon {
				return signedShift(false, e, x[0], int8(x[1]))
			}
			return shift(in.Op, e, x[0], x[1])
		}, args[1], args[2])
	case op.Sshl:
		return 0, false, m.lanewise(in, func(x []uint64) uint64 { return signedShift(true, e, x[0], int8(x[1])) }, args[1], args[2])

	case op.Ceq, op.Cne, op.Clt, op.Cle, op.Cgt, op.Cge:
		return 0, false, m.compare(in)

	case op.CvzF2I, op.CvnF2I, op.CvpF2I, op.CvmF2I, op.CvtF2I:
		mode, ok := op.RoundingOf(in.Op)
		if !ok {
			mode = m.Mode
		}
		x86 := m.p.Arch == engine.ArchX86_64
		return 0, false, m.lanewise(in, func(x []uint64) uint64 {
			return toInt(roundTo(toFloat(x[0], e), mode), e, x86)
		}, args[1])
	case op.CvnI2F, op.CvtI2F:
		mode, ok := op.RoundingOf(in.Op)
		if !ok {
			mode = m.Mode
		}
		return 0, false, m.lanewise(in, func(x []uint64) uint64 { return intToFloat(x[0], e, mode) }, args[1])
	case op.Rnz, op.Rnp, op.Rnm, op.Rnn, op.Rnd:
		mode, ok := op.RoundingOf(in.Op)
		if !ok {
			mode = m.Mode
		}
		return 0, false, m.lanewise(in, func(x []uint64) uint64 {
			return fromFloat(roundTo(toFloat(x[0], e), mode), e)
		}, args[1])

	case op.Select:
		p := m.pred[args[1].Pred()]
		a, b := m.vec[args[2].Vec()], m.vec[args[3].Vec()]
		dst := m.vec[args[0].Vec()]
		for j := 0; j < m.nb; j += e.Bytes() {
			src := b
			if p[j] != 0 {
				src = a
			}
			copy(dst[j:j+e.Bytes()], src[j:j+e.Bytes()])
		}
		return 0, false, nil
	case op.BranchMask:
		mask := m.vec[args[0].Vec()]
		all, none := true, true
		for j := 0; j < m.nb/e.Bytes(); j++ {
			v := lane(mask, e, j)
			all = all && v == ones(e)
			none = none && v == 0
		}
		take := none
		if args[2].Imm == int64(op.CondAll) {
			take = all
		}
		return args[3].Label, take, nil
	case op.Jump:
		return args[0].Label, true, nil

	case op.SetRounding:
		m.Mode = op.Rounding(args[0].Imm)
		return 0, false, nil
	case op.PredInit:
		p := m.pred[args[0].Pred()]
		for j := range p {
			p[j] = 0xFF
		}
		return 0, false, nil
	}
	return 0, false, unsupported(in)
}

func (m *Machine) mov(in encode.Inst) error {
	a, b := in.Args[0], in.Args[1]
	e := in.Elem
	switch {
	case a.Kind == operand.KindVec && b.Kind == operand.KindPred:
		p, dst := m.pred[b.Pred()], m.vec[a.Vec()]
		for j := 0; j < m.nb; j += e.Bytes() {
			v := uint64(0)
			if p[j] != 0 {
				v = ones(e)
			}
			setLane(dst, e, j/e.Bytes(), v)
		}
		return nil
	case a.Kind == operand.KindPred && b.Kind == operand.KindVec:
		// EVEX takes the lane sign bit, SVE any nonzero lane
		src, p := m.vec[b.Vec()], m.pred[a.Pred()]
		for j := 0; j < m.nb; j += e.Bytes() {
			v := lane(src, e, j/e.Bytes())
			on := v != 0
			if m.p.Family == target.FamilyEVEX {
				on = v>>(uint(e)-1) != 0
			}
			for k := j; k < j+e.Bytes(); k++ {
				p[k] = 0
				if on {
					p[k] = 0xFF
				}
			}
		}
		return nil
	case a.Kind == operand.KindMem:
		at, err := m.addr(a.Mem, m.nb)
		if err != nil {
			return err
		}
		copy(m.Mem[at:at+m.nb], m.vec[b.Vec()])
		return nil
	}
	src, err := m.read(b)
	if err != nil {
		return err
	}
	copy(m.vec[a.Vec()], src)
	return nil
}

func (m *Machine) compare(in encode.Inst) error {
	e := in.Elem
	x, err := m.read(in.Args[1])
	if err != nil {
		return err
	}
	y, err := m.read(in.Args[2])
	if err != nil {
		return err
	}
	x, y = append([]byte(nil), x...), append([]byte(nil), y...)
	for j := 0; j < m.nb/e.Bytes(); j++ {
		on := holds(in.Op, toFloat(lane(x, e, j), e), toFloat(lane(y, e, j), e))
		switch in.Args[0].Kind {
		case operand.KindPred:
			p := m.pred[in.Args[0].Pred()]
			for k := j * e.Bytes(); k < (j+1)*e.Bytes(); k++ {
				p[k] = 0
				if on {
					p[k] = 0xFF
				}
			}
		default:
			v := uint64(0)
			if on {
				v = ones(e)
			}
			setLane(m.vec[in.Args[0].Vec()], e, j, v)
		}
	}
	return nil
}

// holds evaluates an ordered compare; only "not equal" is true for NaN
func holds(o op.Op, x, y float64) bool {
	switch o {
	case op.Ceq:
		return x == y
	case op.Cne:
		return !(x == y)
	case op.Clt:
		return x < y
	case op.Cle:
		return x <= y
	case op.Cgt:
		return x > y
	case op.Cge:
		return x >= y
	}
	return false
}
