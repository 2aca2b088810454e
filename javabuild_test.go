package main

import (
	"strings"
	"testing"
)

func buildLinear(t *testing.T, class []byte) *JProgram {
	t.Helper()
	cls := parseClass(t, class)
	jprog, err := BuildJProgram(cls)
	if err != nil {
		t.Fatalf("BuildJProgram failed: %v", err)
	}
	return jprog
}

func findJFunction(t *testing.T, jprog *JProgram, name string) *JFunction {
	t.Helper()
	for _, f := range jprog.Functions {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no function %q in linear IR", name)
	return nil
}

func TestLinearIRPrintlnAdd(t *testing.T) {
	jprog := buildLinear(t, classPrintlnAdd(t))
	main := findJFunction(t, jprog, "main")

	// Move 1, Move 2, BinaryOp, StandardCall, ReturnVoid
	if len(main.Insts) != 5 {
		t.Fatalf("instruction count = %d, want 5\n%s", len(main.Insts), main)
	}

	move, ok := main.Insts[0].Variant.(*JMove)
	if !ok {
		t.Fatalf("inst 0 is %T, want *JMove", main.Insts[0].Variant)
	}
	if c, ok := move.Source.(JConstant); !ok || c.Value != 1 {
		t.Errorf("inst 0 source = %v, want constant 1", move.Source)
	}
	if move.Dest != (JVariable{Loc: LocStack, Index: 0}) {
		t.Errorf("inst 0 dest = %v, want stack_0", move.Dest)
	}

	binop, ok := main.Insts[2].Variant.(*JBinaryOp)
	if !ok {
		t.Fatalf("inst 2 is %T, want *JBinaryOp", main.Insts[2].Variant)
	}
	if binop.Op != OpAdd {
		t.Errorf("inst 2 op = %v, want +", binop.Op)
	}
	// The second pop is the left operand
	if binop.Left != JValue(JVariable{Loc: LocStack, Index: 0}) {
		t.Errorf("inst 2 left = %v, want stack_0", binop.Left)
	}
	if binop.Right != JValue(JVariable{Loc: LocStack, Index: 1}) {
		t.Errorf("inst 2 right = %v, want stack_1", binop.Right)
	}
	if binop.Dest != (JVariable{Loc: LocStack, Index: 0}) {
		t.Errorf("inst 2 dest = %v, want stack_0", binop.Dest)
	}

	call, ok := main.Insts[3].Variant.(*JStandardCall)
	if !ok {
		t.Fatalf("inst 3 is %T, want *JStandardCall", main.Insts[3].Variant)
	}
	if call.Kind != StdPrintlnInt {
		t.Errorf("inst 3 kind = %v, want println_int", call.Kind)
	}

	if _, ok := main.Insts[4].Variant.(*JReturnVoid); !ok {
		t.Fatalf("inst 4 is %T, want *JReturnVoid", main.Insts[4].Variant)
	}
}

func TestLinearIRBranchTargets(t *testing.T) {
	jprog := buildLinear(t, classLoopSum(t))
	main := findJFunction(t, jprog, "main")

	var branches, targets int
	for _, inst := range main.Insts {
		switch v := inst.Variant.(type) {
		case *JBranch:
			branches++
			if v.TargetAt == nil {
				t.Error("conditional branch left unbound")
			} else if !v.TargetAt.Target {
				t.Error("branch destination not flagged as target")
			}
		case *JUnconditionalBranch:
			branches++
			if v.TargetAt == nil {
				t.Error("goto left unbound")
			} else if !v.TargetAt.Target {
				t.Error("goto destination not flagged as target")
			}
		}
		if inst.Target {
			targets++
		}
	}
	if branches != 2 {
		t.Errorf("branch count = %d, want 2", branches)
	}
	if targets == 0 {
		t.Error("no instruction flagged as branch target")
	}
}

func TestLinearIRFunctionCall(t *testing.T) {
	jprog := buildLinear(t, classStaticCall(t))
	main := findJFunction(t, jprog, "main")
	add := findJFunction(t, jprog, "add")

	if add.NArgs != 2 || add.NReturn != 1 {
		t.Fatalf("add signature = (%d)->%d, want (2)->1", add.NArgs, add.NReturn)
	}

	var call *JFunctionCall
	for _, inst := range main.Insts {
		if v, ok := inst.Variant.(*JFunctionCall); ok {
			call = v
		}
	}
	if call == nil {
		t.Fatal("no function call emitted in main")
	}
	if call.Callee != add {
		t.Error("call targets the wrong function")
	}
	if len(call.Args) != 2 {
		t.Fatalf("arg count = %d, want 2", len(call.Args))
	}
	// Args popped in reverse, stored in argument order
	if call.Args[0] != JValue(JVariable{Loc: LocStack, Index: 0}) {
		t.Errorf("arg 0 = %v, want stack_0", call.Args[0])
	}
	if call.Args[1] != JValue(JVariable{Loc: LocStack, Index: 1}) {
		t.Errorf("arg 1 = %v, want stack_1", call.Args[1])
	}
	if call.Dest == nil {
		t.Error("call to int-returning function has no destination")
	}
}

func TestLinearIRIinc(t *testing.T) {
	jprog := buildLinear(t, classLoopSum(t))
	main := findJFunction(t, jprog, "main")

	found := false
	for _, inst := range main.Insts {
		v, ok := inst.Variant.(*JBinaryOp)
		if !ok {
			continue
		}
		local := JVariable{Loc: LocLocals, Index: 1}
		if v.Left == JValue(local) && v.Dest == local {
			if c, ok := v.Right.(JConstant); ok && c.Value == 1 {
				found = true
			}
		}
	}
	if !found {
		t.Error("iinc did not lower to local = local + 1")
	}
}

func TestLinearIRUnsupportedOpcode(t *testing.T) {
	cb := newClassBuilder("Test")
	cb.addMethod("main", mainDescriptor, 1, 1, []byte{0xbb, 0x00, 0x00, byte(opReturn)})

	cls := parseClass(t, cb.build())
	_, err := BuildJProgram(cls)
	if err == nil {
		t.Fatal("expected an error for an unsupported opcode")
	}
	if !strings.Contains(err.Error(), "0xbb") {
		t.Errorf("diagnostic %q does not name the opcode in hex", err)
	}
}

func TestLinearIRCrossClassCall(t *testing.T) {
	cb := newClassBuilder("Test")
	other := cb.addMemberRef(tagMethodRef, cb.addClass("Other"), "f", "()V")
	code := newCodeBuilder().
		op16(opInvokestatic, other).
		op(opReturn).
		bytes(t)
	cb.addMethod("main", mainDescriptor, 1, 1, code)

	cls := parseClass(t, cb.build())
	if _, err := BuildJProgram(cls); err == nil {
		t.Fatal("expected an error for a cross-class invokestatic")
	}
}
