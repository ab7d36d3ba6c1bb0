package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestParseArch(t *testing.T) {
	tests := []struct {
		in   string
		want Arch
	}{
		{"amd64", ArchX86_64},
		{"x86_64", ArchX86_64},
		{"ARM64", ArchARM64},
		{"aarch64", ArchARM64},
		{"mips64le", ArchMIPS64},
		{"ppc64le", ArchPPC64},
	}
	for _, tt := range tests {
		got, err := ParseArch(tt.in)
		if err != nil {
			t.Fatalf("ParseArch(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseArch(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseArchSuggestion(t *testing.T) {
	_, err := ParseArch("amd46")
	if !errors.Is(err, ErrUnsupportedTarget) {
		t.Fatalf("expected ErrUnsupportedTarget, got %v", err)
	}
	if !strings.Contains(err.Error(), `did you mean "amd64"`) {
		t.Errorf("expected a suggestion in %q", err.Error())
	}
}

func TestErrorUnwrap(t *testing.T) {
	for _, k := range Kinds {
		err := NewError(k, "boom").At("add", []string{"vec", "imm"}, "x86_64/128/v2")
		if !errors.Is(err, k.Sentinel()) {
			t.Errorf("%v does not unwrap to its sentinel", k)
		}
		got, ok := KindOf(err)
		if !ok || got != k {
			t.Errorf("KindOf(%v) = %v, %v", err, got, ok)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := NewError(KindInvalidOperandKind, "second source must be a register").At("add", []string{"vec", "vec", "imm"}, "aarch64/128/v1")
	want := "InvalidOperandKind: add(vec, vec, imm) on aarch64/128/v1: second source must be a register"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector(2)
	c.Add(nil)
	if c.HasErrors() {
		t.Fatal("nil error was recorded")
	}
	c.Add(NewError(KindUnsupportedOperation, "a"))
	c.Add(NewError(KindUnsupportedOperation, "b"))
	if !c.ShouldStop() {
		t.Error("expected ShouldStop after 2 errors")
	}
	if c.Count(KindUnsupportedOperation) != 2 {
		t.Errorf("Count = %d", c.Count(KindUnsupportedOperation))
	}
	report := c.Report(false)
	if !strings.Contains(report, "2 error(s) found (2 UnsupportedOperation)") {
		t.Errorf("unexpected report:\n%s", report)
	}
	c.Clear()
	if c.ErrorCount() != 0 {
		t.Error("Clear did not reset")
	}
}

func TestSimilar(t *testing.T) {
	got := Similar("fmad", []string{"fma", "fms", "add", "xor"}, 2)
	if len(got) == 0 || got[0] != "fma" {
		t.Errorf("Similar = %v", got)
	}
	if Suggest("completely-different", []string{"fma"}) != "" {
		t.Error("expected no suggestion")
	}
}
