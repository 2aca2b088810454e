package main

import (
	"bytes"
	"runtime"
	"testing"
)

// compileAndRun JITs the class and runs main, capturing the runtime
// helpers' output.
func compileAndRun(t *testing.T, class []byte) string {
	t.Helper()
	if runtime.GOARCH != "amd64" {
		t.Skipf("generated code is x86-64, host is %s", runtime.GOARCH)
	}

	cls := parseClass(t, class)
	stdcalls, err := StandardCallAddresses()
	if err != nil {
		t.Fatalf("runtime setup failed: %v", err)
	}
	compiled, err := CompileClass(cls, stdcalls)
	if err != nil {
		t.Fatalf("compilation failed: %v", err)
	}
	entry, ok := compiled.Offset("main")
	if !ok {
		t.Fatal("no main in compiled output")
	}
	base, err := mapExecutable(compiled.Code)
	if err != nil {
		t.Fatalf("mapping code failed: %v", err)
	}

	var out bytes.Buffer
	saved := runtimeOut
	runtimeOut = &out
	defer func() { runtimeOut = saved }()

	callEntry(base + uintptr(entry))
	return out.String()
}

// Interpreter and compiler must agree on every scenario.
func TestCompiledScenarios(t *testing.T) {
	for _, sc := range scenarios() {
		t.Run(sc.name, func(t *testing.T) {
			class := sc.class(t)
			want := interpret(t, class)
			if want != sc.want {
				t.Fatalf("interpreter output = %q, want %q", want, sc.want)
			}
			if got := compileAndRun(t, class); got != want {
				t.Errorf("compiled output = %q, interpreter produced %q", got, want)
			}
		})
	}
}

func TestCompileWithoutExecution(t *testing.T) {
	// Code generation itself is host independent
	for _, sc := range scenarios() {
		cls := parseClass(t, sc.class(t))
		compiled, err := CompileClass(cls, fakeStdcalls())
		if err != nil {
			t.Fatalf("%s: compilation failed: %v", sc.name, err)
		}
		if len(compiled.Code) == 0 {
			t.Fatalf("%s: no code emitted", sc.name)
		}
		if _, ok := compiled.Offset("main"); !ok {
			t.Fatalf("%s: no offset for main", sc.name)
		}
	}
}

func TestCompileMissingMain(t *testing.T) {
	cb := newClassBuilder("Test")
	code := newCodeBuilder().op(opReturn).bytes(t)
	cb.addMethod("helper", "()V", 1, 1, code)

	cls := parseClass(t, cb.build())
	compiled, err := CompileClass(cls, fakeStdcalls())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := compiled.Offset("main"); ok {
		t.Error("offset reported for a method that does not exist")
	}
}

func TestCompiledSpillStillExecutes(t *testing.T) {
	got := compileAndRun(t, classSpillPressure(t))
	if got != "245\n" {
		t.Errorf("output = %q, want %q", got, "245\n")
	}
}
