package main

import "testing"

// The end-to-end scenarios. Every program must produce the same output
// under the interpreter and under the compiler.
type scenario struct {
	name  string
	class func(t *testing.T) []byte
	want  string
}

func scenarios() []scenario {
	return []scenario{
		{"println_add", classPrintlnAdd, "3\n"},
		{"static_call", classStaticCall, "12\n"},
		{"loop_sum", classLoopSum, "15\n"},
		{"print_chars", classPrintChars, "AB\n"},
		{"shifts", classShifts, "32\n"},
		{"conditional", classConditional, "1\n"},
		{"loop_call", classLoopCall, "1\n"},
		{"spill_pressure", classSpillPressure, "245\n"},
	}
}

// System.out.println(1 + 2)
func classPrintlnAdd(t *testing.T) []byte {
	cb := newClassBuilder("Test")
	out := cb.addFieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")
	println := cb.addVirtualMethodRef("java/io/PrintStream", "println", "(I)V")

	code := newCodeBuilder().
		op16(opGetstatic, out).
		op(opIconst1).
		op(opIconst2).
		op(opIadd).
		op16(opInvokevirtual, println).
		op(opReturn).
		bytes(t)
	cb.addMethod("main", mainDescriptor, 3, 1, code)
	return cb.build()
}

// static int add(int a, int b) { return a + b; }  main: println(add(5, 7))
func classStaticCall(t *testing.T) []byte {
	cb := newClassBuilder("Test")
	out := cb.addFieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")
	println := cb.addVirtualMethodRef("java/io/PrintStream", "println", "(I)V")
	add := cb.addOwnMethodRef("add", "(II)I")

	main := newCodeBuilder().
		op16(opGetstatic, out).
		op(opIconst5).
		op8(opBipush, 7).
		op16(opInvokestatic, add).
		op16(opInvokevirtual, println).
		op(opReturn).
		bytes(t)
	cb.addMethod("main", mainDescriptor, 3, 1, main)

	addCode := newCodeBuilder().
		op(opIload0).
		op(opIload1).
		op(opIadd).
		op(opIreturn).
		bytes(t)
	cb.addMethod("add", "(II)I", 2, 2, addCode)
	return cb.build()
}

// int s = 0; for (int i = 1; i <= 5; i++) s += i; println(s);
func classLoopSum(t *testing.T) []byte {
	cb := newClassBuilder("Test")
	out := cb.addFieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")
	println := cb.addVirtualMethodRef("java/io/PrintStream", "println", "(I)V")

	code := newCodeBuilder().
		op(opIconst0).
		op(opIstore0). // s = 0
		op(opIconst1).
		op(opIstore1). // i = 1
		label("loop").
		op(opIload1).
		op(opIconst5).
		branch(opIfIcmpgt, "done").
		op(opIload0).
		op(opIload1).
		op(opIadd).
		op(opIstore0).      // s += i
		op88(opIinc, 1, 1). // i++
		branch(opGoto, "loop").
		label("done").
		op16(opGetstatic, out).
		op(opIload0).
		op16(opInvokevirtual, println).
		op(opReturn).
		bytes(t)
	cb.addMethod("main", mainDescriptor, 3, 2, code)
	return cb.build()
}

// print('A'); print('B'); println();
func classPrintChars(t *testing.T) []byte {
	cb := newClassBuilder("Test")
	out := cb.addFieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")
	printChar := cb.addVirtualMethodRef("java/io/PrintStream", "print", "(C)V")
	printlnVoid := cb.addVirtualMethodRef("java/io/PrintStream", "println", "()V")

	code := newCodeBuilder().
		op16(opGetstatic, out).
		op8(opBipush, 'A').
		op16(opInvokevirtual, printChar).
		op16(opGetstatic, out).
		op8(opBipush, 'B').
		op16(opInvokevirtual, printChar).
		op16(opGetstatic, out).
		op16(opInvokevirtual, printlnVoid).
		op(opReturn).
		bytes(t)
	cb.addMethod("main", mainDescriptor, 3, 1, code)
	return cb.build()
}

// println((1 << 4) + (32 >> 1))
func classShifts(t *testing.T) []byte {
	cb := newClassBuilder("Test")
	out := cb.addFieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")
	println := cb.addVirtualMethodRef("java/io/PrintStream", "println", "(I)V")

	code := newCodeBuilder().
		op16(opGetstatic, out).
		op(opIconst1).
		op(opIconst4).
		op(opIshl).
		op8(opBipush, 32).
		op(opIconst1).
		op(opIshr).
		op(opIadd).
		op16(opInvokevirtual, println).
		op(opReturn).
		bytes(t)
	cb.addMethod("main", mainDescriptor, 4, 1, code)
	return cb.build()
}

// int x = 3; if (x > 2) println(1); else println(0);
func classConditional(t *testing.T) []byte {
	cb := newClassBuilder("Test")
	out := cb.addFieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")
	println := cb.addVirtualMethodRef("java/io/PrintStream", "println", "(I)V")

	code := newCodeBuilder().
		op(opIconst3).
		op(opIstore0).
		op(opIload0).
		op(opIconst2).
		branch(opIfIcmpgt, "then").
		op16(opGetstatic, out).
		op(opIconst0).
		op16(opInvokevirtual, println).
		branch(opGoto, "end").
		label("then").
		op16(opGetstatic, out).
		op(opIconst1).
		op16(opInvokevirtual, println).
		label("end").
		op(opReturn).
		bytes(t)
	cb.addMethod("main", mainDescriptor, 3, 1, code)
	return cb.build()
}

// static int rem3(int n) { while (n >= 3) n -= 3; return n; }
// main: println(rem3(10))
//
// The loop head is the method's first instruction, so the entry block
// branches straight into a branch target.
func classLoopCall(t *testing.T) []byte {
	cb := newClassBuilder("Test")
	out := cb.addFieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")
	println := cb.addVirtualMethodRef("java/io/PrintStream", "println", "(I)V")
	rem3 := cb.addOwnMethodRef("rem3", "(I)I")

	main := newCodeBuilder().
		op16(opGetstatic, out).
		op8(opBipush, 10).
		op16(opInvokestatic, rem3).
		op16(opInvokevirtual, println).
		op(opReturn).
		bytes(t)
	cb.addMethod("main", mainDescriptor, 3, 1, main)

	rem3Code := newCodeBuilder().
		label("loop").
		op(opIload0).
		op(opIconst3).
		branch(opIfIcmplt, "done").
		op(opIload0).
		op(opIconst3).
		op(opIsub).
		op(opIstore0).
		branch(opGoto, "loop").
		label("done").
		op(opIload0).
		op(opIreturn).
		bytes(t)
	cb.addMethod("rem3", "(I)I", 2, 1, rem3Code)
	return cb.build()
}

// static int f(int x) pushes x+1 .. x+14 and then sums them, keeping
// fourteen values live at once, more than the register pool holds.
// main: println(f(10)) = sum(11..24) = 245
func classSpillPressure(t *testing.T) []byte {
	cb := newClassBuilder("Test")
	out := cb.addFieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")
	println := cb.addVirtualMethodRef("java/io/PrintStream", "println", "(I)V")
	f := cb.addOwnMethodRef("f", "(I)I")

	main := newCodeBuilder().
		op16(opGetstatic, out).
		op8(opBipush, 10).
		op16(opInvokestatic, f).
		op16(opInvokevirtual, println).
		op(opReturn).
		bytes(t)
	cb.addMethod("main", mainDescriptor, 3, 1, main)

	fb := newCodeBuilder()
	for k := 1; k <= 14; k++ {
		fb.op(opIload0).op8(opBipush, uint8(k)).op(opIadd)
	}
	for k := 1; k < 14; k++ {
		fb.op(opIadd)
	}
	fb.op(opIreturn)
	cb.addMethod("f", "(I)I", 15, 1, fb.bytes(t))
	return cb.build()
}
