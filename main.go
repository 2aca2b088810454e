// Completion: 95% - CLI complete, all subcommands working
package main

import (
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
)

// A tiny ahead-of-time compiler and reference interpreter for a
// subset of the JVM class file format, targeting x86-64.

const versionString = "j67 1.0.0"

// VerboseMode enables byte-level emission tracing to stderr.
var VerboseMode = env.Bool("J67_VERBOSE")

func usage() {
	fmt.Fprintf(os.Stderr, "%s\n\nusage:\n", versionString)
	fmt.Fprintf(os.Stderr, "  j67 interpret <class-file>\n")
	fmt.Fprintf(os.Stderr, "  j67 ssa <class-file>\n")
	fmt.Fprintf(os.Stderr, "  j67 compile <class-file> [<out-file>]\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "interpret":
		if len(os.Args) != 3 {
			usage()
			os.Exit(1)
		}
		err = cmdInterpret(os.Args[2])
	case "ssa":
		if len(os.Args) != 3 {
			usage()
			os.Exit(1)
		}
		err = cmdSSA(os.Args[2])
	case "compile":
		if len(os.Args) != 3 && len(os.Args) != 4 {
			usage()
			os.Exit(1)
		}
		outPath := ""
		if len(os.Args) == 4 {
			outPath = os.Args[3]
		}
		err = cmdCompile(os.Args[2], outPath)
	case "--version", "-V":
		fmt.Println(versionString)
		return
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		useColor := !env.Bool("NO_COLOR")
		if ce, ok := err.(*CompilerError); ok {
			fmt.Fprintln(os.Stderr, ce.Format(useColor))
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func cmdInterpret(path string) error {
	cls, err := LoadClassFile(path)
	if err != nil {
		return err
	}
	return NewInterpreter(cls, os.Stdout).Run()
}

func cmdSSA(path string) error {
	cls, err := LoadClassFile(path)
	if err != nil {
		return err
	}
	program, err := BuildSSA(cls)
	if err != nil {
		return err
	}
	fmt.Println(program)
	return nil
}

func cmdCompile(path, outPath string) error {
	cls, err := LoadClassFile(path)
	if err != nil {
		return err
	}
	stdcalls, err := StandardCallAddresses()
	if err != nil {
		return err
	}
	compiled, err := CompileClass(cls, stdcalls)
	if err != nil {
		return err
	}
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "\nemitted %d bytes\n", len(compiled.Code))
	}

	if outPath != "" {
		return os.WriteFile(outPath, compiled.Code, 0o644)
	}

	entry, ok := compiled.Offset("main")
	if !ok {
		return missingSymbolError("could not find main() method")
	}
	base, err := mapExecutable(compiled.Code)
	if err != nil {
		return err
	}
	callEntry(base + uintptr(entry))
	return nil
}
