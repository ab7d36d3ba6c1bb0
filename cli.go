// Completion: 100% - CLI complete
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/xyproto/rtasm/internal/asm"
	"github.com/xyproto/rtasm/internal/engine"
	"github.com/xyproto/rtasm/internal/jit"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
)

// cli.go - subcommands of rtasm
//
// - rtasm demo [kernel]     assemble a built-in kernel for the target profile
// - rtasm kernels           list the built-in kernels
// - rtasm matrix [op...]    print the support matrix of the target profile
// - rtasm profiles          list every target profile
// - rtasm detect            show what the host CPU supports

// CommandContext holds the execution context for a CLI command
type CommandContext struct {
	Args       []string
	Target     string // empty means the host
	Elem       operand.Elem
	Verbose    bool
	Quiet      bool
	JIT        bool
	OutputPath string
	Out        io.Writer
}

// RunCLI dispatches to the subcommand named by ctx.Args[0]
func RunCLI(ctx *CommandContext) error {
	if len(ctx.Args) == 0 {
		return cmdHelp(ctx)
	}
	args := ctx.Args[1:]
	switch subcmd := ctx.Args[0]; subcmd {
	case "demo", "build":
		name := "shade"
		if len(args) > 0 {
			name = args[0]
		}
		return cmdDemo(ctx, name)
	case "kernels":
		return cmdKernels(ctx)
	case "matrix":
		return cmdMatrix(ctx, args)
	case "profiles":
		return cmdProfiles(ctx)
	case "detect":
		return cmdDetect(ctx)
	case "help", "-h", "--help":
		return cmdHelp(ctx)
	case "version":
		fmt.Fprintln(ctx.Out, versionString)
		return nil
	default:
		err := engine.NewError(engine.KindUnsupportedOperation, "unknown command %q", subcmd)
		if s := engine.Suggest(subcmd, []string{"demo", "kernels", "matrix", "profiles", "detect", "help", "version"}); s != "" {
			err.Hint = fmt.Sprintf("did you mean %q?", s)
		}
		return err
	}
}

func parseElem(s string) (operand.Elem, error) {
	switch strings.ToLower(s) {
	case "f32", "32", "float32":
		return operand.Elem32, nil
	case "f64", "64", "float64":
		return operand.Elem64, nil
	}
	return 0, fmt.Errorf("unknown lane width %q (supported: f32, f64)", s)
}

// profile resolves ctx.Target, falling back to the host
func (ctx *CommandContext) profile() (*target.Profile, error) {
	if ctx.Target == "" {
		p, err := target.Detect()
		if err != nil {
			return nil, fmt.Errorf("%w (pick one with -target, see 'rtasm profiles')", err)
		}
		return p, nil
	}
	return target.Parse(ctx.Target)
}

// assemble builds kernel k for p
func (ctx *CommandContext) assemble(p *target.Profile, k Kernel) (*asm.Assembler, []byte, error) {
	a := asm.New(p)
	if err := k.Build(a, ctx.Elem); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", k.Name, err)
	}
	code, err := a.Finalize()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", k.Name, err)
	}
	return a, code, nil
}

func (ctx *CommandContext) emit(p *target.Profile, k Kernel) error {
	a, code, err := ctx.assemble(p, k)
	if err != nil {
		return err
	}
	listing := a.Listing()
	if !ctx.Quiet {
		fmt.Fprintf(ctx.Out, "; %s.%s for %s (%s, %d x %d-bit, %d registers)\n",
			k.Name, ctx.Elem, p.Name, p.Family, p.N, p.Native, p.Regs)
		fmt.Fprintf(ctx.Out, "; %s\n", k.Doc)
		for _, e := range listing {
			fmt.Fprintln(ctx.Out, e)
		}
	}
	printer := message.NewPrinter(language.English)
	printer.Fprintf(ctx.Out, "; %d bytes, %d instructions\n", len(code), len(listing))

	if ctx.OutputPath != "" {
		if err := os.WriteFile(ctx.OutputPath, code, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", ctx.OutputPath, err)
		}
		if ctx.Verbose {
			fmt.Fprintf(os.Stderr, "wrote %s\n", ctx.OutputPath)
		}
	}
	if ctx.JIT {
		return ctx.load(code)
	}
	return nil
}

func (ctx *CommandContext) load(code []byte) error {
	mapped, err := jit.Load(code)
	if err != nil {
		return err
	}
	defer mapped.Close()
	fmt.Fprintf(ctx.Out, "; mapped %d bytes read+execute at %#x\n", len(mapped.Bytes()), mapped.Addr())
	return nil
}

func cmdDemo(ctx *CommandContext, name string) error {
	k, ok := kernels[name]
	if !ok {
		err := engine.NewError(engine.KindUnsupportedOperation, "unknown kernel %q", name)
		if s := engine.Suggest(name, kernelNames()); s != "" {
			err.Hint = fmt.Sprintf("did you mean %q?", s)
		}
		return err
	}
	p, err := ctx.profile()
	if err != nil {
		return err
	}
	return ctx.emit(p, k)
}

func cmdKernels(ctx *CommandContext) error {
	for _, name := range kernelNames() {
		fmt.Fprintf(ctx.Out, "%-8s %s\n", name, kernels[name].Doc)
	}
	return nil
}

func cmdMatrix(ctx *CommandContext, ops []string) error {
	p, err := ctx.profile()
	if err != nil {
		return err
	}
	want := make(map[op.Op]bool)
	for _, name := range ops {
		o, err := op.Parse(name)
		if err != nil {
			return err
		}
		want[o] = true
	}

	rows, c := asm.Matrix(p)
	title := cases.Title(language.English)
	fmt.Fprintf(ctx.Out, "Support matrix for %s\n", p.Name)
	var last op.Category = 255
	for _, r := range rows {
		if len(want) > 0 && !want[r.Op] {
			continue
		}
		if cat := r.Op.Category(); cat != last {
			fmt.Fprintf(ctx.Out, "\n%s\n", title.String(cat.String()))
			last = cat
		}
		form := fmt.Sprintf("%s.%s %s", r.Op, r.Elem, strings.Join(operand.KindNames(r.Kinds), ","))
		if r.Err != nil {
			kind, _ := engine.KindOf(r.Err)
			fmt.Fprintf(ctx.Out, "  %-34s %s\n", form, kind)
			if ctx.Verbose {
				fmt.Fprintf(ctx.Out, "      %v\n", r.Err)
			}
			continue
		}
		fmt.Fprintf(ctx.Out, "  %-34s %-18s %3d insts %4d bytes\n", form, r.Route, r.Insts, r.Bytes)
	}
	fmt.Fprintf(ctx.Out, "\n%d forms, %d unsupported\n", len(rows), c.ErrorCount())
	return nil
}

func cmdProfiles(ctx *CommandContext) error {
	fmt.Fprintf(ctx.Out, "%-16s %-5s %-7s %-4s %-5s %-10s %-4s %s\n",
		"PROFILE", "FAM", "NATIVE", "N", "REGS", "MASKS", "EST", "FEATURES")
	for _, p := range target.All() {
		fmt.Fprintf(ctx.Out, "%-16s %-5s %-7d %-4d %-5d %-10s %-4d %s\n",
			p.Name, p.Family, p.Native, p.N, p.Regs, p.Masking, p.EstimateBits,
			strings.Join(p.Features.Names(), ","))
	}
	return nil
}

func cmdDetect(ctx *CommandContext) error {
	h := target.DetectHost()
	fmt.Fprintf(ctx.Out, "arch:     %s\n", h.Arch)
	fmt.Fprintf(ctx.Out, "features: %s\n", strings.Join(h.Features, " "))
	if h.Version == 0 {
		fmt.Fprintln(ctx.Out, "profile:  none")
		return nil
	}
	fmt.Fprintf(ctx.Out, "profile:  %s\n", h.Spec())
	return nil
}

func cmdHelp(ctx *CommandContext) error {
	fmt.Fprintf(ctx.Out, `%s - retargetable vector assembler

USAGE:
    rtasm [flags] <command> [arguments]

COMMANDS:
    demo [kernel]         Assemble a built-in kernel (default: shade)
    kernels               List the built-in kernels
    matrix [op...]        Print which operations the target supports, and how
    profiles              List every target profile
    detect                Show what the host CPU supports
    help                  Show this help message
    version               Show version information

FLAGS (must come before the command):
    -target <profile>     arch/width[/vN], e.g. x86_64/256/v2 (default: $RTASM_TARGET or the host)
    -elem <f32|f64>       Lane width of the kernel (default: $RTASM_ELEM or f32)
    -o, --output <file>   Write the machine code to a file
    -q                    Do not print the listing
    -jit                  Map the finished code into executable memory
    -v, --verbose         Verbose mode
    -V, --version         Print version and exit

EXAMPLES:
    rtasm -target aarch64/512 demo
    rtasm -target x86_64/256/v1 -elem f64 -o cbrt.bin demo cbrt
    rtasm -target ppc64/128/v1 matrix rcp cbrt

`, versionString)
	return nil
}
