// Completion: 100% - SSA construction complete
package main

// unlinkedValue is a use of a variable with no in-block definition; it
// is resolved against the block's entry links after φ-insertion.
type unlinkedValue struct {
	variable JVariable
	slot     *Value
}

// defsMap maps each block to the SSA value currently defining each
// pseudo-variable at the block's end.
type defsMap map[*BasicBlock]map[JVariable]Value

func (m defsMap) define(block *BasicBlock, variable JVariable, value Value) {
	defs, ok := m[block]
	if !ok {
		defs = make(map[JVariable]Value)
		m[block] = defs
	}
	defs[variable] = value
}

// defineIfAbsent mirrors map::emplace: it only inserts when the
// variable has no definition yet, and reports whether it did.
func (m defsMap) defineIfAbsent(block *BasicBlock, variable JVariable, value Value) bool {
	defs, ok := m[block]
	if !ok {
		defs = make(map[JVariable]Value)
		m[block] = defs
	}
	if _, ok := defs[variable]; ok {
		return false
	}
	defs[variable] = value
	return true
}

func (m defsMap) lookup(block *BasicBlock, variable JVariable) (Value, bool) {
	defs, ok := m[block]
	if !ok {
		return Value{}, false
	}
	value, ok := defs[variable]
	return value, ok
}

// BuildSSAProgram converts a linear IR program into SSA form.
func BuildSSAProgram(jprog *JProgram) (*SSAProgram, error) {
	program := &SSAProgram{}
	funcMap := make(map[*JFunction]*SSAFunction)
	for _, jfunc := range jprog.Functions {
		funcMap[jfunc] = program.AddFunction(jfunc.Name, jfunc.NArgs, jfunc.NReturn)
	}
	for _, jfunc := range jprog.Functions {
		b := &ssaFunctionBuilder{
			funcMap:  funcMap,
			function: funcMap[jfunc],
			jfunc:    jfunc,
			defs:     make(defsMap),
			unlinked: make(map[*BasicBlock][]unlinkedValue),
			blockMap: make(map[*JInstruction]*BasicBlock),
		}
		if err := b.build(); err != nil {
			return nil, inMethod(err, jfunc.Name)
		}
	}
	return program, nil
}

type ssaFunctionBuilder struct {
	funcMap  map[*JFunction]*SSAFunction
	function *SSAFunction
	jfunc    *JFunction

	defs     defsMap
	unlinked map[*BasicBlock][]unlinkedValue
	blockMap map[*JInstruction]*BasicBlock
}

// blockFor returns the basic block that starts at the given linear
// instruction, creating it on first use.
func (b *ssaFunctionBuilder) blockFor(jinst *JInstruction) *BasicBlock {
	if block, ok := b.blockMap[jinst]; ok {
		return block
	}
	block := b.function.NewBlock()
	b.blockMap[jinst] = block
	return block
}

func (b *ssaFunctionBuilder) build() error {
	if len(b.jfunc.Insts) == 0 {
		return internalError("function %s has no instructions", b.jfunc.Name)
	}

	// The entry block loads the arguments and falls through to the
	// block holding the method's first linear instruction.
	entry := b.function.NewBlock()
	first := b.blockFor(b.jfunc.Insts[0])
	entry.Terminate(&TermUncond{Target: first})
	for i := 0; i < b.function.NArgs; i++ {
		inst := entry.Append(&SSALoadArgument{Index: i})
		b.defs.define(entry, JVariable{Loc: LocLocals, Index: i}, DefValue(inst))
	}

	j := 0
	for j < len(b.jfunc.Insts) {
		block := b.blockFor(b.jfunc.Insts[j])
		next, err := b.buildBlock(block, j)
		if err != nil {
			return err
		}
		j = next
	}

	fixer := newPhiFixer(b.function, b.defs)
	if err := fixer.fix(); err != nil {
		return err
	}

	for _, block := range b.function.Blocks {
		links := fixer.links[block]
		for _, entry := range b.unlinked[block] {
			value, ok := links[entry.variable]
			if !ok {
				return internalError("unresolved use of %s in block @%d", entry.variable, block.ID)
			}
			*entry.slot = value
		}
	}
	return nil
}

// bindOperand resolves a linear IR operand against the current block's
// definitions, or queues it for resolution at block entry.
func (b *ssaFunctionBuilder) bindOperand(block *BasicBlock, slot *Value, source JValue) {
	switch v := source.(type) {
	case JConstant:
		*slot = ConstValue(v.Value)
	case JVariable:
		if def, ok := b.defs.lookup(block, v); ok {
			*slot = def
		} else {
			b.unlinked[block] = append(b.unlinked[block], unlinkedValue{variable: v, slot: slot})
		}
	}
}

// buildBlock translates linear instructions into block until a
// terminator is produced, returning the next linear position.
func (b *ssaFunctionBuilder) buildBlock(block *BasicBlock, j int) (int, error) {
	insts := b.jfunc.Insts
	for index := 0; ; index++ {
		if j >= len(insts) {
			return 0, internalError("linear IR fell off the end in %s", b.jfunc.Name)
		}
		jinst := insts[j]

		// A branch target begins a new block; fall through into it.
		if index > 0 && jinst.Target {
			block.Terminate(&TermUncond{Target: b.blockFor(jinst)})
			return j, nil
		}

		switch v := jinst.Variant.(type) {
		case *JMove:
			inst := block.Append(&SSAMove{})
			move := inst.Variant.(*SSAMove)
			b.bindOperand(block, &move.Value, v.Source)
			b.defs.define(block, v.Dest, DefValue(inst))

		case *JBinaryOp:
			inst := block.Append(&SSABinaryOp{Op: v.Op})
			binop := inst.Variant.(*SSABinaryOp)
			b.bindOperand(block, &binop.Left, v.Left)
			b.bindOperand(block, &binop.Right, v.Right)
			b.defs.define(block, v.Dest, DefValue(inst))

		case *JBranch:
			inst := block.Append(&SSAComparison{Op: v.Op})
			cmp := inst.Variant.(*SSAComparison)
			b.bindOperand(block, &cmp.Left, v.Left)
			b.bindOperand(block, &cmp.Right, v.Right)
			if j+1 >= len(insts) {
				return 0, internalError("conditional branch at end of %s", b.jfunc.Name)
			}
			yes := b.blockFor(v.TargetAt)
			no := b.blockFor(insts[j+1])
			block.Terminate(&TermBranch{Cond: DefValue(inst), Yes: yes, No: no})
			return j + 1, nil

		case *JUnconditionalBranch:
			block.Terminate(&TermUncond{Target: b.blockFor(v.TargetAt)})
			return j + 1, nil

		case *JReturn:
			term := block.Terminate(&TermReturn{})
			ret := term.Variant.(*TermReturn)
			b.bindOperand(block, &ret.Value, v.Value)
			return j + 1, nil

		case *JReturnVoid:
			block.Terminate(&TermReturnVoid{})
			return j + 1, nil

		case *JFunctionCall:
			inst := block.Append(&SSAFunctionCall{Callee: b.funcMap[v.Callee]})
			call := inst.Variant.(*SSAFunctionCall)
			call.Args = make([]Value, len(v.Args))
			for i, arg := range v.Args {
				b.bindOperand(block, &call.Args[i], arg)
			}
			if v.Dest != nil {
				b.defs.define(block, *v.Dest, DefValue(inst))
			}

		case *JStandardCall:
			inst := block.Append(&SSAStandardCall{Kind: v.Kind})
			call := inst.Variant.(*SSAStandardCall)
			call.Args = make([]Value, len(v.Args))
			for i, arg := range v.Args {
				b.bindOperand(block, &call.Args[i], arg)
			}
		}
		j++
	}
}
