//go:build linux || darwin || freebsd || netbsd || openbsd

package jit

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xyproto/rtasm/internal/asm"
	"github.com/xyproto/rtasm/internal/op"
	"github.com/xyproto/rtasm/internal/operand"
	"github.com/xyproto/rtasm/internal/target"
	"golang.org/x/sys/unix"
)

func TestLoad(t *testing.T) {
	p, err := target.Parse("x86_64/256/v2")
	if err != nil {
		t.Fatal(err)
	}
	a := asm.New(p)
	if err := a.Emit(op.Add, operand.Elem32, operand.Vec(0), operand.Vec(1), operand.Vec(2)); err != nil {
		t.Fatal(err)
	}
	code, err := a.Finalize()
	if err != nil {
		t.Fatal(err)
	}

	c, err := Load(code)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c.Bytes(), code) {
		t.Errorf("mapped % x, want % x", c.Bytes(), code)
	}
	if c.Addr() == 0 {
		t.Error("mapped code has no address")
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if c.Addr() != 0 || c.Bytes() != nil {
		t.Error("closed code still reports a mapping")
	}
}

func TestLoadEmpty(t *testing.T) {
	if _, err := Load(nil); err == nil {
		t.Error("Load(nil) succeeded")
	}
}

func TestMapErrorKeepsErrno(t *testing.T) {
	_, err := mapWritable(0)
	if err == nil {
		t.Fatal("mapping zero bytes succeeded")
	}
	if !errors.Is(err, unix.EINVAL) {
		t.Errorf("%v does not wrap EINVAL", err)
	}
}
