package target

import (
	"runtime"

	"github.com/xyproto/rtasm/internal/engine"
	"golang.org/x/sys/cpu"
)

// Host describes what the running CPU supports
type Host struct {
	Arch     engine.Arch
	Version  int
	Width    int
	Features []string
}

// Spec returns the host as a target string
func (h Host) Spec() string {
	return name(h.Arch, h.Width, h.Version)
}

// DetectHost inspects the running CPU. The SVE vector length cannot be
// read without executing rdvl, so arm64 hosts report NEON.
func DetectHost() Host {
	h := Host{Arch: engine.HostArch()}
	switch runtime.GOARCH {
	case "amd64":
		if cpu.X86.HasAVX {
			h.Features = append(h.Features, "avx")
		}
		if cpu.X86.HasAVX2 {
			h.Features = append(h.Features, "avx2")
		}
		if cpu.X86.HasFMA {
			h.Features = append(h.Features, "fma")
		}
		if cpu.X86.HasAVX512F {
			h.Features = append(h.Features, "avx512f")
		}
		if cpu.X86.HasAVX512DQ {
			h.Features = append(h.Features, "avx512dq")
		}
		switch {
		case cpu.X86.HasAVX512F && cpu.X86.HasAVX512DQ:
			h.Version, h.Width = 4, 512
		case cpu.X86.HasAVX2 && cpu.X86.HasFMA:
			h.Version, h.Width = 2, 256
		case cpu.X86.HasAVX:
			h.Version, h.Width = 1, 128
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			h.Features = append(h.Features, "asimd")
			h.Version, h.Width = 1, 128
		}
		if cpu.ARM64.HasSVE {
			h.Features = append(h.Features, "sve")
		}
	case "mips64", "mips64le":
		if cpu.MIPS64X.HasMSA {
			h.Features = append(h.Features, "msa")
			h.Version, h.Width = 1, 128
		}
	case "ppc64", "ppc64le":
		h.Features = append(h.Features, "vsx")
		h.Version, h.Width = 1, 128
		if cpu.PPC64.IsPOWER8 {
			h.Features = append(h.Features, "power8")
			h.Version = 2
		}
	}
	return h
}

// Detect resolves the profile of the running CPU
func Detect() (*Profile, error) {
	h := DetectHost()
	if h.Version == 0 {
		err := engine.NewError(engine.KindUnsupportedTarget, "no supported vector extension on this %s host", h.Arch)
		err.Target = h.Arch.String()
		return nil, err
	}
	return Resolve(h.Arch, h.Width, h.Version)
}
