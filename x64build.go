// Completion: 100% - SSA to machine IR lowering complete
package main

// StandardCallTable maps each output helper to the absolute address
// generated code calls through `mov rcx, imm64; call rcx`.
type StandardCallTable map[StandardCallKind]uint64

// BuildMProgram lowers an SSA program to machine IR, running register
// allocation per function.
func BuildMProgram(program *SSAProgram, stdcalls StandardCallTable) (*MProgram, error) {
	mprog := &MProgram{}
	funcMap := make(map[*SSAFunction]*MFunction)
	for _, ssaFunc := range program.Functions {
		mfunc := &MFunction{Name: ssaFunc.Name}
		mprog.Functions = append(mprog.Functions, mfunc)
		funcMap[ssaFunc] = mfunc
	}
	for _, ssaFunc := range program.Functions {
		b := &mfunctionBuilder{
			funcMap:  funcMap,
			function: funcMap[ssaFunc],
			ssaFunc:  ssaFunc,
			stdcalls: stdcalls,
			blockMap: make(map[*BasicBlock]*MInst),
		}
		if err := b.build(); err != nil {
			return nil, inMethod(err, ssaFunc.Name)
		}
	}
	return mprog, nil
}

type unlinkedJump struct {
	block *BasicBlock
	slot  **MInst
}

type mfunctionBuilder struct {
	funcMap  map[*SSAFunction]*MFunction
	function *MFunction
	ssaFunc  *SSAFunction
	stdcalls StandardCallTable

	regs     regMap
	liveVars liveVarMap

	blockMap map[*BasicBlock]*MInst
	unlinked []unlinkedJump

	// block is pending until its first machine instruction lands
	block        *BasicBlock
	prologueDone bool
}

func (b *mfunctionBuilder) build() error {
	allocator := NewRegisterAllocator(b.ssaFunc)
	if err := allocator.Allocate(); err != nil {
		return err
	}
	b.regs = allocator.Regs()
	b.liveVars = allocator.LiveVars()

	for _, block := range b.ssaFunc.Blocks {
		if err := b.buildBlock(block); err != nil {
			return err
		}
	}
	for _, jump := range b.unlinked {
		target, ok := b.blockMap[jump.block]
		if !ok {
			return internalError("no machine code for block @%d", jump.block.ID)
		}
		*jump.slot = target
	}
	return nil
}

// append adds a machine instruction, recording it as the entry point
// of the current SSA block if none has landed yet.
func (b *mfunctionBuilder) append(variant MVariant) *MInst {
	inst := b.function.append(variant)
	if b.block != nil {
		b.blockMap[b.block] = inst
		b.block = nil
	}
	return inst
}

func (b *mfunctionBuilder) reg(inst *SSAInst) (Register, error) {
	reg, ok := b.regs[inst]
	if !ok {
		return 0, internalError("no register for %%%d", inst.ID)
	}
	return reg, nil
}

// regOpt is nil for defs the allocator legitimately left uncolored
// (dead after allocation).
func (b *mfunctionBuilder) regOpt(inst *SSAInst) *Register {
	if reg, ok := b.regs[inst]; ok {
		return &reg
	}
	return nil
}

func (b *mfunctionBuilder) bind(slot **MInst, block *BasicBlock) {
	if target, ok := b.blockMap[block]; ok {
		*slot = target
	} else {
		b.unlinked = append(b.unlinked, unlinkedJump{block: block, slot: slot})
	}
}

func (b *mfunctionBuilder) operand(value Value) (Operand, error) {
	switch value.Kind {
	case ValueConstant:
		return ConstOperand(value.Const), nil
	case ValueDef:
		reg, err := b.reg(value.Def)
		if err != nil {
			return Operand{}, err
		}
		return RegOperand(reg), nil
	default:
		return Operand{}, internalError("unexpected empty SSA value")
	}
}

// sspace is the prologue stack adjustment; the pad keeps rsp 16-byte
// aligned across the call boundary.
func (b *mfunctionBuilder) sspace() uint64 {
	nslots := uint64(b.ssaFunc.StackSlots)
	nargs := uint64(b.ssaFunc.NArgs)
	return 8 * (nslots + (nslots+nargs)%2)
}

func (b *mfunctionBuilder) ensurePrologue() {
	if b.prologueDone {
		return
	}
	b.prologueDone = true
	b.append(&MUnary{Op: OpPush, Operand: RegOperand(RegRBP)})
	b.append(&MBinary{Op: OpMov, Dest: RegOperand(RegRBP), Source: RegOperand(RegRSP)})
	b.append(&MBinary{Op: OpSubReg, Dest: RegOperand(RegRSP), Source: ConstOperand(b.sspace())})
}

func (b *mfunctionBuilder) epilogue() {
	b.append(&MBinary{Op: OpAddReg, Dest: RegOperand(RegRSP), Source: ConstOperand(b.sspace())})
	b.append(&MUnary{Op: OpPop, Operand: RegOperand(RegRBP)})
}

// saveRegisters pushes every register live at the call other than the
// call's own destination, padding to keep 16-byte alignment.
func (b *mfunctionBuilder) saveRegisters(inst *SSAInst) []Register {
	dest := b.regOpt(inst)
	var saved []Register
	for _, live := range sortedInsts(b.liveVars[progPoint(inst)]) {
		liveReg := b.regOpt(live)
		if liveReg == nil {
			continue
		}
		if dest != nil && *dest == *liveReg {
			continue
		}
		saved = append([]Register{*liveReg}, saved...)
		b.append(&MUnary{Op: OpPush, Operand: RegOperand(*liveReg)})
	}
	if len(saved)%2 == 1 {
		b.append(&MBinary{Op: OpSubReg, Dest: RegOperand(RegRSP), Source: ConstOperand(8)})
	}
	return saved
}

func (b *mfunctionBuilder) restoreRegisters(saved []Register) {
	if len(saved)%2 == 1 {
		b.append(&MBinary{Op: OpAddReg, Dest: RegOperand(RegRSP), Source: ConstOperand(8)})
	}
	for _, reg := range saved {
		b.append(&MUnary{Op: OpPop, Operand: RegOperand(reg)})
	}
}

func (b *mfunctionBuilder) buildBlock(block *BasicBlock) error {
	b.block = block
	for _, inst := range block.Insts {
		if err := b.buildInst(inst); err != nil {
			return err
		}
	}
	return b.buildBlockEnd(block)
}

func (b *mfunctionBuilder) buildInst(inst *SSAInst) error {
	b.ensurePrologue()
	dest := b.regOpt(inst)

	switch v := inst.Variant.(type) {
	case *SSAMove:
		if dest == nil {
			return nil
		}
		source, err := b.operand(v.Value)
		if err != nil {
			return err
		}
		b.append(&MBinary{Op: OpMov, Dest: RegOperand(*dest), Source: source})

	case *SSABinaryOp:
		if dest == nil {
			return nil
		}
		if v.Op == OpShl || v.Op == OpShr {
			return b.buildShift(v, *dest)
		}
		right, err := b.operand(v.Right)
		if err != nil {
			return err
		}
		// The right operand must survive the staging move into dest
		if right.Kind == OperandReg && right.Reg == *dest {
			b.append(&MBinary{Op: OpMov, Dest: RegOperand(RegRCX), Source: right})
			right = RegOperand(RegRCX)
		}
		left, err := b.operand(v.Left)
		if err != nil {
			return err
		}
		if left.Kind != OperandReg || left.Reg != *dest {
			b.append(&MBinary{Op: OpMov, Dest: RegOperand(*dest), Source: left})
		}
		var op BinaryOp
		switch v.Op {
		case OpAdd:
			op = OpAddReg
		case OpSub:
			op = OpSubReg
		case OpMul:
			op = OpImul
		}
		b.append(&MBinary{Op: op, Dest: RegOperand(*dest), Source: right})

	case *SSAComparison:
		if dest == nil {
			return nil
		}
		left, err := b.operand(v.Left)
		if err != nil {
			return err
		}
		if left.Kind != OperandReg {
			b.append(&MBinary{Op: OpMov, Dest: RegOperand(*dest), Source: left})
			left = RegOperand(*dest)
		}
		right, err := b.operand(v.Right)
		if err != nil {
			return err
		}
		b.append(&MBinary{Op: OpCmp, Dest: left, Source: right})
		var op UnaryOp
		switch v.Op {
		case CmpEq:
			op = OpSete
		case CmpNe:
			op = OpSetne
		case CmpLt:
			op = OpSetl
		case CmpLe:
			op = OpSetle
		case CmpGt:
			op = OpSetg
		case CmpGe:
			op = OpSetge
		}
		b.append(&MUnary{Op: op, Operand: RegOperand(*dest)})

	case *SSAFunctionCall:
		saved := b.saveRegisters(inst)
		for _, arg := range v.Args {
			operand, err := b.operand(arg)
			if err != nil {
				return err
			}
			b.append(&MUnary{Op: OpPush, Operand: operand})
		}
		b.append(&MCall{Target: b.funcMap[v.Callee]})
		b.append(&MBinary{Op: OpAddReg, Dest: RegOperand(RegRSP), Source: ConstOperand(uint64(len(v.Args)) * 8)})
		if v.Callee.NReturn > 0 && dest != nil {
			b.append(&MBinary{Op: OpMov, Dest: RegOperand(*dest), Source: RegOperand(RegRAX)})
		}
		b.restoreRegisters(saved)

	case *SSAStandardCall:
		address, ok := b.stdcalls[v.Kind]
		if !ok {
			return internalError("no runtime address for %s call", v.Kind)
		}
		saved := b.saveRegisters(inst)
		for _, arg := range v.Args {
			operand, err := b.operand(arg)
			if err != nil {
				return err
			}
			b.append(&MUnary{Op: OpPush, Operand: operand})
		}
		b.append(&MBinary{Op: OpMov, Dest: RegOperand(RegRCX), Source: ConstOperand(address)})
		b.append(&MRegisterCall{Reg: RegRCX})
		b.append(&MBinary{Op: OpAddReg, Dest: RegOperand(RegRSP), Source: ConstOperand(uint64(len(v.Args)) * 8)})
		b.restoreRegisters(saved)

	case *SSAPhi:
		// Materialized by the predecessors' φ-transfers

	case *SSALoad:
		if dest == nil {
			return nil
		}
		b.append(&MBinary{Op: OpMov, Dest: RegOperand(*dest), Source: SlotOperand(8 * (-int64(v.Slot) - 1))})

	case *SSAStore:
		source, err := b.operand(v.Value)
		if err != nil {
			return err
		}
		b.append(&MBinary{Op: OpMov, Dest: SlotOperand(8 * (-int64(v.Slot) - 1)), Source: source})

	case *SSALoadArgument:
		if dest == nil {
			return nil
		}
		// Arguments sit above the saved rbp and the return address
		offset := 8 * (int64(b.ssaFunc.NArgs) - 1 + 2 - int64(v.Index))
		b.append(&MBinary{Op: OpMov, Dest: RegOperand(*dest), Source: SlotOperand(offset)})
	}
	return nil
}

func (b *mfunctionBuilder) buildShift(v *SSABinaryOp, dest Register) error {
	right, err := b.operand(v.Right)
	if err != nil {
		return err
	}
	if right.Kind == OperandReg {
		b.append(&MBinary{Op: OpMov, Dest: RegOperand(RegRCX), Source: right})
		right = RegOperand(RegRCX)
	}
	left, err := b.operand(v.Left)
	if err != nil {
		return err
	}
	if left.Kind != OperandReg || left.Reg != dest {
		b.append(&MBinary{Op: OpMov, Dest: RegOperand(dest), Source: left})
	}
	op := OpShlReg
	if v.Op == OpShr {
		op = OpShrReg
	}
	b.append(&MBinary{Op: op, Dest: RegOperand(dest), Source: right})
	return nil
}

// buildPhiTransfers moves each successor φ's incoming value into the
// φ's register before leaving the block.
func (b *mfunctionBuilder) buildPhiTransfers(block *BasicBlock) error {
	for _, succ := range block.Successors() {
		for _, pair := range succ.PhiInputs(block) {
			reg := b.regOpt(pair.Phi)
			if reg == nil {
				continue
			}
			source, err := b.operand(*pair.Value)
			if err != nil {
				return err
			}
			b.append(&MBinary{Op: OpMov, Dest: RegOperand(*reg), Source: source})
		}
	}
	return nil
}

func (b *mfunctionBuilder) buildBlockEnd(block *BasicBlock) error {
	b.ensurePrologue()
	switch v := block.Term.Variant.(type) {
	case *TermUncond:
		if err := b.buildPhiTransfers(block); err != nil {
			return err
		}
		jump := &MJump{Cond: JumpAlways}
		b.append(jump)
		b.bind(&jump.Target, v.Target)

	case *TermBranch:
		cond, err := b.operand(v.Cond)
		if err != nil {
			return err
		}
		b.append(&MBinary{Op: OpMov, Dest: RegOperand(RegRCX), Source: cond})
		if err := b.buildPhiTransfers(block); err != nil {
			return err
		}
		b.append(&MBinary{Op: OpTest8, Dest: RegOperand(RegRCX), Source: RegOperand(RegRCX)})

		jz := &MJump{Cond: JumpIfZero}
		b.append(jz)
		b.bind(&jz.Target, v.No)

		jmp := &MJump{Cond: JumpAlways}
		b.append(jmp)
		b.bind(&jmp.Target, v.Yes)

	case *TermReturnVoid:
		b.epilogue()
		b.append(&MNullary{Op: OpRet})

	case *TermReturn:
		value, err := b.operand(v.Value)
		if err != nil {
			return err
		}
		b.append(&MBinary{Op: OpMov, Dest: RegOperand(RegRAX), Source: value})
		b.epilogue()
		b.append(&MNullary{Op: OpRet})
	}
	return nil
}
