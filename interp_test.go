package main

import (
	"bytes"
	"testing"
)

func interpret(t *testing.T, class []byte) string {
	t.Helper()
	cls := parseClass(t, class)
	var out bytes.Buffer
	if err := NewInterpreter(cls, &out).Run(); err != nil {
		t.Fatalf("interpreter failed: %v", err)
	}
	return out.String()
}

func TestInterpreterScenarios(t *testing.T) {
	for _, sc := range scenarios() {
		t.Run(sc.name, func(t *testing.T) {
			got := interpret(t, sc.class(t))
			if got != sc.want {
				t.Errorf("output = %q, want %q", got, sc.want)
			}
		})
	}
}

func TestInterpreterMissingMain(t *testing.T) {
	cb := newClassBuilder("Test")
	code := newCodeBuilder().op(opReturn).bytes(t)
	cb.addMethod("helper", "()V", 1, 1, code)

	cls := parseClass(t, cb.build())
	err := NewInterpreter(cls, &bytes.Buffer{}).Run()
	if err == nil {
		t.Fatal("expected an error for a class without main")
	}
}

func TestInterpreterUnsupportedOpcode(t *testing.T) {
	cb := newClassBuilder("Test")
	code := []byte{0xbb, 0x00, 0x00, byte(opReturn)} // new
	cb.addMethod("main", mainDescriptor, 1, 1, code)

	cls := parseClass(t, cb.build())
	err := NewInterpreter(cls, &bytes.Buffer{}).Run()
	if err == nil {
		t.Fatal("expected an error for an unsupported opcode")
	}
	if got := err.Error(); !bytes.Contains([]byte(got), []byte("0xbb")) {
		t.Errorf("diagnostic %q does not name the opcode in hex", got)
	}
}

func TestInterpreterNegativeNumbers(t *testing.T) {
	cb := newClassBuilder("Test")
	out := cb.addFieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")
	println := cb.addVirtualMethodRef("java/io/PrintStream", "println", "(I)V")

	// println(-1 - 5)
	code := newCodeBuilder().
		op16(opGetstatic, out).
		op(opIconstM1).
		op(opIconst5).
		op(opIsub).
		op16(opInvokevirtual, println).
		op(opReturn).
		bytes(t)
	cb.addMethod("main", mainDescriptor, 3, 1, code)

	if got := interpret(t, cb.build()); got != "-6\n" {
		t.Errorf("output = %q, want %q", got, "-6\n")
	}
}

func TestInterpreterArithmeticShiftRight(t *testing.T) {
	cb := newClassBuilder("Test")
	out := cb.addFieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")
	println := cb.addVirtualMethodRef("java/io/PrintStream", "println", "(I)V")

	// println(-8 >> 1)
	code := newCodeBuilder().
		op16(opGetstatic, out).
		op8(opBipush, uint8(0xf8)). // -8
		op(opIconst1).
		op(opIshr).
		op16(opInvokevirtual, println).
		op(opReturn).
		bytes(t)
	cb.addMethod("main", mainDescriptor, 3, 1, code)

	if got := interpret(t, cb.build()); got != "-4\n" {
		t.Errorf("output = %q, want %q", got, "-4\n")
	}
}
