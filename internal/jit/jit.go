// Package jit maps finished machine code into executable memory. It does
// not call into the code; that needs an ABI trampoline for the target.
package jit

import "unsafe"

// VerboseMode traces mappings to stderr
var VerboseMode = false

func addr(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
}
