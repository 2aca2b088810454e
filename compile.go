// Completion: 100% - Compilation pipeline driver complete
package main

// CompiledProgram is the assembled output of one class: the raw code
// bytes and the byte offset of each function.
type CompiledProgram struct {
	Code    []byte
	offsets map[string]int
}

// Offset returns the byte offset of the named function's first
// instruction.
func (p *CompiledProgram) Offset(name string) (int, bool) {
	offset, ok := p.offsets[name]
	return offset, ok
}

// BuildSSA runs the front half of the pipeline: linear IR, SSA
// construction, then simplification. The result is what `j67 ssa`
// prints and what code generation consumes.
func BuildSSA(cls *ClassFile) (*SSAProgram, error) {
	jprog, err := BuildJProgram(cls)
	if err != nil {
		return nil, err
	}
	program, err := BuildSSAProgram(jprog)
	if err != nil {
		return nil, err
	}
	SimplifySSA(program)
	return program, nil
}

// CompileClass compiles a parsed class file to executable x86-64 code.
// The standard call table supplies the absolute addresses of the host
// output helpers.
func CompileClass(cls *ClassFile, stdcalls StandardCallTable) (*CompiledProgram, error) {
	program, err := BuildSSA(cls)
	if err != nil {
		return nil, err
	}
	mprog, err := BuildMProgram(program, stdcalls)
	if err != nil {
		return nil, err
	}

	asm := NewAssembler(mprog)
	if err := asm.Assemble(); err != nil {
		return nil, err
	}

	compiled := &CompiledProgram{
		Code:    asm.Code(),
		offsets: make(map[string]int, len(mprog.Functions)),
	}
	for _, f := range mprog.Functions {
		offset, err := asm.FuncOffset(f)
		if err != nil {
			return nil, err
		}
		compiled.offsets[f.Name] = offset
	}
	return compiled, nil
}
