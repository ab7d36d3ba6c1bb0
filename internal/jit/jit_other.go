//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package jit

import (
	"fmt"
	"runtime"
)

// Code is finished machine code mapped read+execute
type Code struct {
	mem []byte
}

// Load reports that executable mappings are not available on this platform
func Load(code []byte) (*Code, error) {
	return nil, fmt.Errorf("jit: executable mappings are not supported on %s", runtime.GOOS)
}

// Bytes returns the mapped code
func (c *Code) Bytes() []byte { return c.mem }

// Addr returns the entry address
func (c *Code) Addr() uintptr { return 0 }

// Close is a no-op
func (c *Code) Close() error { return nil }
