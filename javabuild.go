// Completion: 100% - Bytecode to linear IR lowering complete
package main

// jprogramBuilder lowers every compiled method of a class into linear
// IR, making the JVM operand stack explicit as stack_N pseudo-variables.
type jprogramBuilder struct {
	program *JProgram
	cls     *ClassFile
	methods []*MethodInfo
	funcs   map[NameAndType]*JFunction
}

// BuildJProgram builds the linear IR for a whole class.
func BuildJProgram(cls *ClassFile) (*JProgram, error) {
	methods, err := cls.Methods.Compiled(cls.CPool)
	if err != nil {
		return nil, err
	}

	b := &jprogramBuilder{
		program: &JProgram{},
		cls:     cls,
		methods: methods,
		funcs:   make(map[NameAndType]*JFunction),
	}
	for _, minfo := range methods {
		name, err := minfo.Name(cls.CPool)
		if err != nil {
			return nil, err
		}
		descriptor, err := minfo.Descriptor(cls.CPool)
		if err != nil {
			return nil, inMethod(err, name)
		}
		f := &JFunction{
			Name:    name,
			NArgs:   descriptor.NArgs(),
			NReturn: descriptor.NReturn(),
		}
		b.program.Functions = append(b.program.Functions, f)
		b.funcs[minfo.NameAndType()] = f
	}

	for _, minfo := range methods {
		f := b.funcs[minfo.NameAndType()]
		fb := &jfunctionBuilder{parent: b, function: f, minfo: minfo, depth: -1}
		if err := fb.build(); err != nil {
			return nil, inMethod(err, f.Name)
		}
	}
	return b.program, nil
}

// unlinkedBranch is a branch whose target offset has not been
// linearized yet.
type unlinkedBranch struct {
	offset int
	depth  int
	slot   **JInstruction
}

type jfunctionBuilder struct {
	parent   *jprogramBuilder
	function *JFunction
	minfo    *MethodInfo

	depth    int
	unlinked []unlinkedBranch
	instAt   map[int]*JInstruction
	sources  []int
}

func (b *jfunctionBuilder) build() error {
	b.instAt = make(map[int]*JInstruction)
	if err := b.buildAtPos(0); err != nil {
		return err
	}

	for len(b.unlinked) > 0 {
		ref := b.unlinked[0]
		b.unlinked = b.unlinked[1:]

		inst, ok := b.instAt[ref.offset]
		if !ok {
			b.depth = ref.depth
			if err := b.buildAtPos(ref.offset); err != nil {
				return err
			}
			inst, ok = b.instAt[ref.offset]
			if !ok {
				return internalError("branch target 0x%02x not linearized", ref.offset)
			}
		}
		*ref.slot = inst
		inst.Target = true
	}
	return nil
}

func (b *jfunctionBuilder) buildAtPos(offset int) error {
	code := b.minfo.Code.Code
	for {
		if offset < 0 || offset >= len(code) {
			return formatError("code offset 0x%02x out of range", offset)
		}
		b.sources = append(b.sources, offset)
		inc, err := b.buildInstruction(offset)
		if err != nil {
			return err
		}
		if inc == 0 {
			return nil
		}
		offset += inc
	}
}

func (b *jfunctionBuilder) append(variant JVariant) *JInstruction {
	inst := b.function.append(variant)
	for _, src := range b.sources {
		if _, ok := b.instAt[src]; !ok {
			b.instAt[src] = inst
		}
	}
	b.sources = b.sources[:0]
	return inst
}

func (b *jfunctionBuilder) pushVar() JVariable {
	b.depth++
	return JVariable{Loc: LocStack, Index: b.depth}
}

func (b *jfunctionBuilder) popVar() JVariable {
	v := JVariable{Loc: LocStack, Index: b.depth}
	b.depth--
	return v
}

func (b *jfunctionBuilder) pushConst(value uint64) {
	b.append(&JMove{Source: JConstant{Value: value}, Dest: b.pushVar()})
}

func (b *jfunctionBuilder) pushLocal(index int) {
	b.append(&JMove{Source: JVariable{Loc: LocLocals, Index: index}, Dest: b.pushVar()})
}

func (b *jfunctionBuilder) popLocal(index int) {
	b.append(&JMove{Source: b.popVar(), Dest: JVariable{Loc: LocLocals, Index: index}})
}

func (b *jfunctionBuilder) binaryOp(op ArithmeticOperator) {
	right := b.popVar()
	left := b.popVar()
	b.append(&JBinaryOp{Op: op, Left: left, Right: right, Dest: b.pushVar()})
}

func (b *jfunctionBuilder) bind(slot **JInstruction, offset int) {
	b.unlinked = append(b.unlinked, unlinkedBranch{offset: offset, depth: b.depth, slot: slot})
}

// buildInstruction lowers the opcode at offset and returns its encoded
// length, or 0 when linear flow ends (branch or return).
func (b *jfunctionBuilder) buildInstruction(offset int) (int, error) {
	code := b.minfo.Code.Code[offset:]
	op := Opcode(code[0])
	switch op {
	case opIconstM1, opIconst0, opIconst1, opIconst2, opIconst3, opIconst4, opIconst5:
		b.pushConst(uint64(int64(int32(op) - int32(opIconst0))))
		return 1, nil

	case opBipush:
		b.pushConst(uint64(int64(int8(code[1]))))
		return 2, nil

	case opSipush:
		b.pushConst(uint64(int64(int16(uint16(code[1])<<8 | uint16(code[2])))))
		return 3, nil

	case opIload:
		b.pushLocal(int(code[1]))
		return 2, nil

	case opIload0, opIload1, opIload2, opIload3:
		b.pushLocal(int(int32(op) - int32(opIload0)))
		return 1, nil

	case opIstore:
		b.popLocal(int(code[1]))
		return 2, nil

	case opIstore0, opIstore1, opIstore2, opIstore3:
		b.popLocal(int(int32(op) - int32(opIstore0)))
		return 1, nil

	case opIinc:
		local := JVariable{Loc: LocLocals, Index: int(code[1])}
		amount := uint64(int64(int8(code[2])))
		b.append(&JBinaryOp{Op: OpAdd, Left: local, Right: JConstant{Value: amount}, Dest: local})
		return 3, nil

	case opIadd:
		b.binaryOp(OpAdd)
		return 1, nil

	case opIsub:
		b.binaryOp(OpSub)
		return 1, nil

	case opImul:
		b.binaryOp(OpMul)
		return 1, nil

	case opIshl:
		b.binaryOp(OpShl)
		return 1, nil

	case opIshr:
		b.binaryOp(OpShr)
		return 1, nil

	case opIfIcmpeq, opIfIcmpne, opIfIcmpgt, opIfIcmpge, opIfIcmplt, opIfIcmple:
		right := b.popVar()
		left := b.popVar()
		branch := &JBranch{Op: cmpFromIcmp(op), Left: left, Right: right}
		b.append(branch)
		b.bind(&branch.TargetAt, offset+branchOffset(code))
		return 3, nil

	case opIfeq, opIfne, opIfgt, opIfge, opIflt, opIfle:
		left := b.popVar()
		branch := &JBranch{Op: cmpFromIf(op), Left: left, Right: JConstant{}}
		b.append(branch)
		b.bind(&branch.TargetAt, offset+branchOffset(code))
		return 3, nil

	case opGoto:
		branch := &JUnconditionalBranch{}
		b.append(branch)
		b.bind(&branch.TargetAt, offset+branchOffset(code))
		return 0, nil

	case opInvokestatic:
		return b.buildInvokestatic(code)

	case opInvokevirtual:
		return b.buildInvokevirtual(code)

	case opReturn:
		b.append(&JReturnVoid{})
		return 0, nil

	case opIreturn:
		b.append(&JReturn{Value: b.popVar()})
		return 0, nil

	case opGetstatic:
		// Ignoring the object; System.out access is elided
		return 3, nil

	case opPop:
		b.popVar()
		return 1, nil

	default:
		return 0, unsupportedError("unsupported opcode: 0x%02x", code[0])
	}
}

func cmpFromIcmp(op Opcode) ComparisonOperator {
	switch op {
	case opIfIcmpeq:
		return CmpEq
	case opIfIcmpne:
		return CmpNe
	case opIfIcmpgt:
		return CmpGt
	case opIfIcmpge:
		return CmpGe
	case opIfIcmplt:
		return CmpLt
	default:
		return CmpLe
	}
}

func cmpFromIf(op Opcode) ComparisonOperator {
	switch op {
	case opIfeq:
		return CmpEq
	case opIfne:
		return CmpNe
	case opIfgt:
		return CmpGt
	case opIfge:
		return CmpGe
	case opIflt:
		return CmpLt
	default:
		return CmpLe
	}
}

func (b *jfunctionBuilder) buildInvokestatic(code []byte) (int, error) {
	index := uint16(code[1])<<8 | uint16(code[2])
	cpool := b.parent.cls.CPool

	ref, err := cpool.MethodRef(index)
	if err != nil {
		return 0, err
	}
	if ref.ClassRefIndex != b.parent.cls.SelfIndex {
		return 0, unsupportedError("cannot call method of other class")
	}
	nameAndType, err := cpool.NameAndType(ref.NameTypeIndex)
	if err != nil {
		return 0, err
	}

	callee, ok := b.parent.funcs[*nameAndType]
	if !ok {
		return 0, missingSymbolError("no such method")
	}
	sig, err := cpool.UTF8(nameAndType.DescIndex)
	if err != nil {
		return 0, err
	}
	mdesc, err := ParseMethodDescriptor(sig)
	if err != nil {
		return 0, err
	}

	call := &JFunctionCall{Callee: callee}
	// Arguments pop in reverse so the list stays in argument order
	call.Args = make([]JValue, mdesc.NArgs())
	for i := mdesc.NArgs() - 1; i >= 0; i-- {
		call.Args[i] = b.popVar()
	}
	if mdesc.NReturn() > 0 {
		dest := b.pushVar()
		call.Dest = &dest
	}
	b.append(call)
	return 3, nil
}

func (b *jfunctionBuilder) buildInvokevirtual(code []byte) (int, error) {
	index := uint16(code[1])<<8 | uint16(code[2])
	cpool := b.parent.cls.CPool

	ref, err := cpool.MethodRef(index)
	if err != nil {
		return 0, err
	}
	nameAndType, err := cpool.NameAndType(ref.NameTypeIndex)
	if err != nil {
		return 0, err
	}
	name, err := cpool.UTF8(nameAndType.NameIndex)
	if err != nil {
		return 0, err
	}
	sig, err := cpool.UTF8(nameAndType.DescIndex)
	if err != nil {
		return 0, err
	}
	mdesc, err := ParseMethodDescriptor(sig)
	if err != nil {
		return 0, err
	}

	if name != "print" && name != "println" {
		return 0, unsupportedError("unsupported virtual method: %s", name)
	}
	if err := checkPrintDescriptor(mdesc, name+"()"); err != nil {
		return 0, err
	}

	var kind StandardCallKind
	var args []JValue
	switch {
	case name == "print" && mdesc.NArgs() == 0:
		return 0, unsupportedError("print() must take an argument")
	case mdesc.NArgs() == 0:
		kind = StdPrintlnVoid
	case mdesc.Args[0] == 'C' && name == "print":
		kind = StdPrintChar
		args = []JValue{b.popVar()}
	case mdesc.Args[0] == 'C':
		kind = StdPrintlnChar
		args = []JValue{b.popVar()}
	case name == "print":
		kind = StdPrintInt
		args = []JValue{b.popVar()}
	default:
		kind = StdPrintlnInt
		args = []JValue{b.popVar()}
	}
	b.append(&JStandardCall{Kind: kind, Args: args})
	return 3, nil
}
