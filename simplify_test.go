package main

import "testing"

func TestCopyPropagation(t *testing.T) {
	program := &SSAProgram{}
	f := program.AddFunction("t", 0, 1)
	entry := f.NewBlock()

	move := entry.Append(&SSAMove{Value: ConstValue(5)})
	binop := entry.Append(&SSABinaryOp{Op: OpAdd, Left: DefValue(move), Right: ConstValue(2)})
	entry.Terminate(&TermReturn{Value: DefValue(binop)})

	SimplifySSA(program)

	if len(entry.Insts) != 1 || entry.Insts[0] != binop {
		t.Fatalf("expected only the binary op to survive, got %d instructions", len(entry.Insts))
	}
	v := binop.Variant.(*SSABinaryOp)
	if v.Left != ConstValue(5) {
		t.Errorf("left operand = %v, want propagated constant 5", v.Left)
	}
}

func TestCopyPropagationChain(t *testing.T) {
	program := &SSAProgram{}
	f := program.AddFunction("t", 0, 1)
	entry := f.NewBlock()

	m1 := entry.Append(&SSAMove{Value: ConstValue(7)})
	m2 := entry.Append(&SSAMove{Value: DefValue(m1)})
	m3 := entry.Append(&SSAMove{Value: DefValue(m2)})
	entry.Terminate(&TermReturn{Value: DefValue(m3)})

	SimplifySSA(program)

	if len(entry.Insts) != 0 {
		t.Fatalf("expected every move to be eliminated, %d left", len(entry.Insts))
	}
	ret := entry.Term.Variant.(*TermReturn)
	if ret.Value != ConstValue(7) {
		t.Errorf("return value = %v, want constant 7", ret.Value)
	}
}

// Every function of a multi-function program reaches its fixpoint, not
// just the first one.
func TestSimplifyAllFunctions(t *testing.T) {
	program := buildSSA(t, classStaticCall(t))
	SimplifySSA(program)

	for _, f := range program.Functions {
		for _, block := range f.Blocks {
			for _, inst := range block.Insts {
				if _, ok := inst.Variant.(*SSAMove); ok {
					t.Errorf("%s: copy %%%d survived simplification", f.Name, inst.ID)
				}
			}
		}
	}
}

func TestDeadCodeKeepsSideEffects(t *testing.T) {
	program := &SSAProgram{}
	f := program.AddFunction("t", 0, 0)
	entry := f.NewBlock()

	dead := entry.Append(&SSABinaryOp{Op: OpMul, Left: ConstValue(3), Right: ConstValue(4)})
	call := entry.Append(&SSAStandardCall{Kind: StdPrintlnVoid})
	entry.Terminate(&TermReturnVoid{})

	SimplifySSA(program)

	for _, inst := range entry.Insts {
		if inst == dead {
			t.Error("dead binary op survived DCE")
		}
	}
	found := false
	for _, inst := range entry.Insts {
		if inst == call {
			found = true
		}
	}
	if !found {
		t.Error("side-effectful call was eliminated")
	}
}

func TestDeadCodeKeepsUsedDefs(t *testing.T) {
	program := &SSAProgram{}
	f := program.AddFunction("t", 0, 1)
	entry := f.NewBlock()

	used := entry.Append(&SSABinaryOp{Op: OpAdd, Left: ConstValue(1), Right: ConstValue(2)})
	entry.Terminate(&TermReturn{Value: DefValue(used)})

	SimplifySSA(program)

	if len(entry.Insts) != 1 {
		t.Fatalf("used def eliminated, %d instructions left", len(entry.Insts))
	}
}
