package target

import (
	"errors"
	"testing"

	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/operand"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		arch    engine.Arch
		width   int
		version int
		family  Family
		native  int
		n       int
		regs    int
	}{
		{engine.ArchX86_64, 128, 0, FamilyVEX, 128, 1, 12},
		{engine.ArchX86_64, 256, 0, FamilyVEX, 256, 1, 12},
		{engine.ArchX86_64, 512, 2, FamilyVEX, 256, 2, 4},
		{engine.ArchX86_64, 256, 1, FamilyVEX, 128, 2, 4},
		{engine.ArchX86_64, 512, 0, FamilyEVEX, 512, 1, 16},
		{engine.ArchX86_64, 2048, 0, FamilyEVEX, 512, 4, 4},
		{engine.ArchARM64, 128, 0, FamilyNEON, 128, 1, 16},
		{engine.ArchARM64, 512, 1, FamilyNEON, 128, 4, 4},
		{engine.ArchARM64, 2048, 0, FamilySVE, 2048, 1, 16},
		{engine.ArchMIPS64, 256, 0, FamilyMSA, 128, 2, 12},
		{engine.ArchPPC64, 128, 0, FamilyVSX, 128, 1, 16},
		{engine.ArchPPC64, 256, 1, FamilyVSX, 128, 2, 11},
	}
	for _, tt := range tests {
		p, err := Resolve(tt.arch, tt.width, tt.version)
		if err != nil {
			t.Errorf("Resolve(%v, %d, %d) failed: %v", tt.arch, tt.width, tt.version, err)
			continue
		}
		if p.Family != tt.family || p.Native != tt.native || p.N != tt.n || p.Regs != tt.regs {
			t.Errorf("%s: family %v native %d N %d regs %d, want %v %d %d %d",
				p.Name, p.Family, p.Native, p.N, p.Regs, tt.family, tt.native, tt.n, tt.regs)
		}
		if p.N*p.Native != p.Logical {
			t.Errorf("%s: N*Native != Logical", p.Name)
		}
	}
}

func TestResolveRejects(t *testing.T) {
	tests := []struct {
		arch    engine.Arch
		width   int
		version int
	}{
		{engine.ArchX86_64, 1024, 2}, // VEX at N=4
		{engine.ArchX86_64, 96, 0},   // not a power of two
		{engine.ArchX86_64, 4096, 0}, // above the maximum
		{engine.ArchX86_64, 128, 4},  // 128 is not a multiple of 512
		{engine.ArchARM64, 1024, 1},  // NEON at N=8
		{engine.ArchARM64, 128, 2},   // SVE has no 128-bit profile
		{engine.ArchPPC64, 512, 0},   // 31 registers at N=4
		{engine.ArchMIPS64, 128, 3},  // no such version
		{engine.ArchUnknown, 128, 0},
	}
	for _, tt := range tests {
		p, err := Resolve(tt.arch, tt.width, tt.version)
		if err == nil {
			t.Errorf("Resolve(%v, %d, %d) = %s, want UnsupportedTarget", tt.arch, tt.width, tt.version, p.Name)
			continue
		}
		if !errors.Is(err, engine.ErrUnsupportedTarget) {
			t.Errorf("Resolve(%v, %d, %d): %v is not UnsupportedTarget", tt.arch, tt.width, tt.version, err)
		}
	}
}

func TestResolveIsShared(t *testing.T) {
	a, err := Resolve(engine.ArchARM64, 256, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("arm64/256/v2")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("expected the same profile instance")
	}
}

func TestParse(t *testing.T) {
	p, err := Parse("amd64/512/v2")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "x86_64/512/v2" {
		t.Errorf("Name = %q", p.Name)
	}
	for _, bad := range []string{"amd64", "amd64/x", "amd64/128/vx", "sparc/128"} {
		if _, err := Parse(bad); !errors.Is(err, engine.ErrUnsupportedTarget) {
			t.Errorf("Parse(%q) = %v, want UnsupportedTarget", bad, err)
		}
	}
}

func TestGroups(t *testing.T) {
	for _, p := range All() {
		seen := make(map[operand.PhysVec]operand.Vec)
		for v := 0; v < p.Total(); v++ {
			g := p.Group(operand.Vec(v))
			if g.Len() != p.N {
				t.Fatalf("%s: group of %d, want %d", p.Name, g.Len(), p.N)
			}
			for _, r := range g.Regs() {
				if prev, ok := seen[r]; ok {
					t.Errorf("%s: physical register %d used by %s and v%d", p.Name, r, prev, v)
				}
				seen[r] = operand.Vec(v)
			}
		}
		if p.Regs < 4 || p.Regs > operand.MaxVecs {
			t.Errorf("%s: %d visible registers", p.Name, p.Regs)
		}
		_, ok := p.PredGroup(0)
		if ok != (p.Masking == MaskPredicate) {
			t.Errorf("%s: predicate group availability mismatch", p.Name)
		}
	}
}

func TestPowerV1Is32BitOnly(t *testing.T) {
	p, err := Parse("ppc64/128/v1")
	if err != nil {
		t.Fatal(err)
	}
	if !p.HasElem(operand.Elem32) || p.HasElem(operand.Elem64) {
		t.Errorf("elems = %v", p.Elems())
	}
}

func TestDetect(t *testing.T) {
	h := DetectHost()
	if h.Version == 0 {
		t.Skipf("no supported vector extension on %s", h.Arch)
	}
	p, err := Detect()
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if p.Arch != h.Arch {
		t.Errorf("detected %s on a %s host", p.Name, h.Arch)
	}
}
