// Completion: 100% - Platform-specific module complete
//go:build linux || darwin || freebsd || netbsd || openbsd

package jit

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Code is finished machine code mapped read+execute. The mapping is
// never writable and executable at the same time.
type Code struct {
	mem  []byte
	size int
}

// Load copies code into a fresh anonymous mapping and makes it executable
func Load(code []byte) (*Code, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("jit: no code to load")
	}
	page := os.Getpagesize()
	mem, err := mapWritable((len(code) + page - 1) / page * page)
	if err != nil {
		return nil, err
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(mem)
		return nil, fmt.Errorf("jit: mprotect failed: %w", err)
	}
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "jit: mapped %d bytes at %#x\n", len(code), addr(mem))
	}
	return &Code{mem: mem, size: len(code)}, nil
}

// mapWritable maps n bytes of private anonymous read+write memory
func mapWritable(n int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("jit: mmap of %d bytes failed: %w", n, err)
	}
	return mem, nil
}

// Bytes returns the mapped code
func (c *Code) Bytes() []byte {
	if c.mem == nil {
		return nil
	}
	return c.mem[:c.size]
}

// Addr returns the entry address, or 0 once closed
func (c *Code) Addr() uintptr {
	if c.mem == nil {
		return 0
	}
	return addr(c.mem)
}

// Close unmaps the code. Closing twice is a no-op.
func (c *Code) Close() error {
	if c.mem == nil {
		return nil
	}
	err := unix.Munmap(c.mem)
	c.mem = nil
	if err != nil {
		return fmt.Errorf("jit: munmap failed: %w", err)
	}
	return nil
}
