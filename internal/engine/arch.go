// Completion: 100% - Architecture identifiers complete
package engine

import (
	"fmt"
	"runtime"
	"strings"
)

// Arch identifies an instruction set architecture
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86_64
	ArchARM64
	ArchMIPS64
	ArchPPC64
)

// Archs lists every architecture that has at least one target profile
var Archs = []Arch{ArchX86_64, ArchARM64, ArchMIPS64, ArchPPC64}

func (a Arch) String() string {
	switch a {
	case ArchX86_64:
		return "x86_64"
	case ArchARM64:
		return "aarch64"
	case ArchMIPS64:
		return "mips64"
	case ArchPPC64:
		return "ppc64"
	case ArchUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

var archAliases = map[string]Arch{
	"x86_64":   ArchX86_64,
	"amd64":    ArchX86_64,
	"x86-64":   ArchX86_64,
	"aarch64":  ArchARM64,
	"arm64":    ArchARM64,
	"mips64":   ArchMIPS64,
	"mips64le": ArchMIPS64,
	"mips":     ArchMIPS64,
	"ppc64":    ArchPPC64,
	"ppc64le":  ArchPPC64,
	"power":    ArchPPC64,
}

// ParseArch parses an architecture string (like GOARCH values)
func ParseArch(s string) (Arch, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if a, ok := archAliases[name]; ok {
		return a, nil
	}
	names := make([]string, 0, len(archAliases))
	for k := range archAliases {
		names = append(names, k)
	}
	err := NewError(KindUnsupportedTarget, "unknown architecture %q (supported: amd64, arm64, mips64, ppc64)", s)
	err.Target = s
	if hint := Suggest(name, names); hint != "" {
		err.Hint = fmt.Sprintf("did you mean %q?", hint)
	}
	return ArchUnknown, err
}

// HostArch returns the architecture the process is running on
func HostArch() Arch {
	switch runtime.GOARCH {
	case "amd64":
		return ArchX86_64
	case "arm64":
		return ArchARM64
	case "mips64", "mips64le":
		return ArchMIPS64
	case "ppc64", "ppc64le":
		return ArchPPC64
	default:
		return ArchUnknown
	}
}
