package encode

import (
	"github.com/xyproto/rtasm/internal/engine"
)

// packer inserts values into fixed-width instruction fields. The first
// value that does not fit is remembered and every later call is a no-op,
// so a whole word can be composed before checking err once.
type packer struct {
	err error
}

// reg checks that a register number fits in bits
func (pk *packer) reg(r uint8, bits uint) uint32 {
	if pk.err != nil {
		return 0
	}
	if uint32(r) >= 1<<bits {
		pk.err = errf(engine.KindInvalidOperandKind, "register %d does not fit a %d-bit field", r, bits)
		return 0
	}
	return uint32(r)
}

// u checks that an unsigned immediate fits in bits
func (pk *packer) u(v int64, bits uint) uint32 {
	if pk.err != nil {
		return 0
	}
	if v < 0 || v >= 1<<bits {
		pk.err = errf(engine.KindImmediateOutOfRange, "%d does not fit an unsigned %d-bit field", v, bits)
		return 0
	}
	return uint32(v)
}

// s checks that a signed immediate fits in bits and returns its two's
// complement field value
func (pk *packer) s(v int64, bits uint) uint32 {
	if pk.err != nil {
		return 0
	}
	lo, hi := -int64(1)<<(bits-1), int64(1)<<(bits-1)-1
	if v < lo || v > hi {
		pk.err = errf(engine.KindImmediateOutOfRange, "%d does not fit a signed %d-bit field", v, bits)
		return 0
	}
	return uint32(v) & (1<<bits - 1)
}

// scaled checks that v is a multiple of unit and returns v/unit
func (pk *packer) scaled(v int64, unit int64) int64 {
	if pk.err != nil {
		return 0
	}
	if v%unit != 0 {
		pk.err = errf(engine.KindImmediateOutOfRange, "%d is not a multiple of %d", v, unit)
		return 0
	}
	return v / unit
}

func fitsSigned(v int64, bits uint) bool {
	return v >= -int64(1)<<(bits-1) && v <= int64(1)<<(bits-1)-1
}

func le32(b []byte, at int) uint32 {
	return uint32(b[at]) | uint32(b[at+1])<<8 | uint32(b[at+2])<<16 | uint32(b[at+3])<<24
}

func put32(b []byte, at int, w uint32) {
	b[at] = byte(w)
	b[at+1] = byte(w >> 8)
	b[at+2] = byte(w >> 16)
	b[at+3] = byte(w >> 24)
}

// Patch writes the displacement of a branch fixup. code holds the whole
// program, at is the absolute offset of the fixup and target the
// absolute offset of the label.
func Patch(code []byte, at int, kind FixupKind, target int) error {
	var pk packer
	switch kind {
	case FixRel32:
		if at < 0 || at+4 > len(code) {
			return errf(engine.KindLabelPatch, "fixup at %d outside the code", at)
		}
		d := int64(target) - int64(at+4)
		put32(code, at, pk.s(d, 32))
	case FixArmImm26, FixArmImm19, FixPPCLI, FixPPCBD, FixMipsOff16:
		if at < 0 || at+4 > len(code) || at%4 != 0 {
			return errf(engine.KindLabelPatch, "fixup at %d outside the code", at)
		}
		base := int64(at)
		if kind == FixMipsOff16 {
			base += 4
		}
		d := pk.scaled(int64(target)-base, 4)
		w := le32(code, at)
		switch kind {
		case FixArmImm26:
			w = w&^(1<<26-1) | pk.s(d, 26)
		case FixArmImm19:
			w = w&^((1<<19-1)<<5) | pk.s(d, 19)<<5
		case FixPPCLI:
			w = w&^((1<<24-1)<<2) | pk.s(d, 24)<<2
		case FixPPCBD:
			w = w&^((1<<14-1)<<2) | pk.s(d, 14)<<2
		case FixMipsOff16:
			w = w&^(1<<16-1) | pk.s(d, 16)
		}
		if pk.err == nil {
			put32(code, at, w)
		}
	default:
		return errf(engine.KindLabelPatch, "unknown fixup kind %d", kind)
	}
	if pk.err != nil {
		return errf(engine.KindLabelPatch, "branch at %d cannot reach %d (%s): %v", at, target, kind, pk.err)
	}
	return nil
}
