// Completion: 100% - Runtime print helpers and call thunks complete
package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ebitengine/purego"
)

// runtimeOut is where the print helpers write; tests redirect it.
var runtimeOut io.Writer = os.Stdout

func printInt(arg uintptr) uintptr {
	fmt.Fprintf(runtimeOut, "%d", int32(uint32(arg)))
	return 0
}

func printChar(arg uintptr) uintptr {
	fmt.Fprintf(runtimeOut, "%c", rune(int32(uint32(arg))))
	return 0
}

func printlnInt(arg uintptr) uintptr {
	fmt.Fprintf(runtimeOut, "%d\n", int32(uint32(arg)))
	return 0
}

func printlnChar(arg uintptr) uintptr {
	fmt.Fprintf(runtimeOut, "%c\n", rune(int32(uint32(arg))))
	return 0
}

func printlnVoid() uintptr {
	fmt.Fprintln(runtimeOut)
	return 0
}

var (
	stdcallOnce  sync.Once
	stdcallTable StandardCallTable
	stdcallErr   error
)

// StandardCallAddresses returns the absolute addresses generated code
// calls for print/println. Each address points at a small thunk that
// moves the stack argument into rdi and tail-adjusts alignment before
// entering the Go callback through the C ABI.
func StandardCallAddresses() (StandardCallTable, error) {
	stdcallOnce.Do(func() {
		stdcallTable, stdcallErr = buildStandardCallThunks()
	})
	return stdcallTable, stdcallErr
}

func buildStandardCallThunks() (StandardCallTable, error) {
	kinds := []struct {
		kind     StandardCallKind
		callback uintptr
		hasArg   bool
	}{
		{StdPrintInt, purego.NewCallback(printInt), true},
		{StdPrintChar, purego.NewCallback(printChar), true},
		{StdPrintlnInt, purego.NewCallback(printlnInt), true},
		{StdPrintlnChar, purego.NewCallback(printlnChar), true},
		{StdPrintlnVoid, purego.NewCallback(printlnVoid), false},
	}

	var code []byte
	offsets := make(map[StandardCallKind]int, len(kinds))
	for _, entry := range kinds {
		offsets[entry.kind] = len(code)
		code = append(code, helperThunk(entry.callback, entry.hasArg)...)
	}

	base, err := mapExecutable(code)
	if err != nil {
		return nil, err
	}
	table := make(StandardCallTable, len(kinds))
	for kind, offset := range offsets {
		table[kind] = uint64(base) + uint64(offset)
	}
	return table, nil
}

// helperThunk bridges the generated stack-argument convention to the C
// ABI the Go callback expects. On entry rsp is 8 mod 16 (the caller
// aligned before its call), so one push realigns it.
func helperThunk(callback uintptr, hasArg bool) []byte {
	var code []byte
	if hasArg {
		// mov rdi, [rsp+8]
		code = append(code, 0x48, 0x8b, 0x7c, 0x24, 0x08)
	}
	code = append(code, 0x50) // push rax
	code = append(code, 0x48, 0xb8)
	addr := uint64(callback)
	for i := 0; i < 8; i++ {
		code = append(code, uint8(addr&0xff))
		addr >>= 8
	}
	code = append(code, 0xff, 0xd0) // call rax
	code = append(code, 0x58)       // pop rax
	code = append(code, 0xc3)       // ret
	return code
}
