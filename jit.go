// Completion: 100% - RWX buffer allocation and entry invocation complete
package main

import (
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

// mapExecutable copies code into a fresh anonymous RWX mapping and
// returns its base address. The mapping is owned by the caller and
// lives until process exit.
func mapExecutable(code []byte) (uintptr, error) {
	if len(code) == 0 {
		return 0, internalError("no code to map")
	}
	buf, err := unix.Mmap(
		-1, 0, len(code),
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
	if err != nil {
		return 0, err
	}
	copy(buf, code)
	return uintptr(unsafe.Pointer(&buf[0])), nil
}

// callEntry invokes a compiled zero-argument function at the given
// absolute address.
func callEntry(addr uintptr) {
	purego.SyscallN(addr)
}
