// Completion: 100% - Entry point complete
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
	"github.com/xyproto/rtasm/internal/asm"
	"github.com/xyproto/rtasm/internal/jit"
)

const versionString = "rtasm 0.3.0"

// VerboseMode is set by -v / --verbose or RTASM_VERBOSE=1
var VerboseMode bool

func main() {
	// NOTE: flags must come before the subcommand: rtasm -target aarch64/512 demo cbrt
	var targetFlag = flag.String("target", env.Str("RTASM_TARGET"), "target profile, arch/width[/vN] (default: the host)")
	var elemFlag = flag.String("elem", env.Str("RTASM_ELEM", "f32"), "lane width of the kernel: f32 or f64")
	var outputFlag = flag.String("o", "", "write the machine code to this file")
	var outputLongFlag = flag.String("output", "", "write the machine code to this file")
	var versionShort = flag.Bool("V", false, "print version information and exit")
	var version = flag.Bool("version", false, "print version information and exit")
	var verbose = flag.Bool("v", false, "verbose mode (trace lowering and mapping)")
	var verboseLong = flag.Bool("verbose", false, "verbose mode (trace lowering and mapping)")
	var quiet = flag.Bool("q", false, "do not print the listing")
	var jitFlag = flag.Bool("jit", false, "map the finished code into executable memory")
	flag.Parse()

	if *version || *versionShort {
		fmt.Println(versionString)
		os.Exit(0)
	}

	VerboseMode = *verbose || *verboseLong || env.Bool("RTASM_VERBOSE")
	asm.VerboseMode = VerboseMode
	jit.VerboseMode = VerboseMode

	elem, err := parseElem(*elemFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	outputPath := *outputLongFlag
	if *outputFlag != "" {
		outputPath = *outputFlag
	}

	ctx := &CommandContext{
		Args:       flag.Args(),
		Target:     *targetFlag,
		Elem:       elem,
		Verbose:    VerboseMode,
		Quiet:      *quiet,
		JIT:        *jitFlag,
		OutputPath: outputPath,
		Out:        os.Stdout,
	}
	if err := RunCLI(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
