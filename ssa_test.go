package main

import (
	"strings"
	"testing"
)

func buildSSA(t *testing.T, class []byte) *SSAProgram {
	t.Helper()
	cls := parseClass(t, class)
	jprog, err := BuildJProgram(cls)
	if err != nil {
		t.Fatalf("BuildJProgram failed: %v", err)
	}
	program, err := BuildSSAProgram(jprog)
	if err != nil {
		t.Fatalf("BuildSSAProgram failed: %v", err)
	}
	return program
}

func findSSAFunction(t *testing.T, program *SSAProgram, name string) *SSAFunction {
	t.Helper()
	for _, f := range program.Functions {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no function %q in SSA", name)
	return nil
}

// checkSSAInvariants verifies pred/succ symmetry, φ completeness and
// dominance of definitions over uses.
func checkSSAInvariants(t *testing.T, f *SSAFunction) {
	t.Helper()

	for _, block := range f.Blocks {
		for _, succ := range block.Successors() {
			found := false
			for _, pred := range succ.Predecessors() {
				if pred == block {
					found = true
				}
			}
			if !found {
				t.Errorf("block @%d missing from predecessors of @%d", block.ID, succ.ID)
			}
		}
		for _, pred := range block.Predecessors() {
			found := false
			for _, succ := range pred.Successors() {
				if succ == block {
					found = true
				}
			}
			if !found {
				t.Errorf("block @%d missing from successors of @%d", block.ID, pred.ID)
			}
		}
	}

	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			phi, ok := inst.Variant.(*SSAPhi)
			if !ok {
				continue
			}
			if len(phi.Pairs) != len(block.Predecessors()) {
				t.Errorf("φ %%%d has %d pairs, block @%d has %d predecessors",
					inst.ID, len(phi.Pairs), block.ID, len(block.Predecessors()))
			}
			for _, pair := range phi.Pairs {
				found := false
				for _, pred := range block.Predecessors() {
					if pred == pair.Block {
						found = true
					}
				}
				if !found {
					t.Errorf("φ %%%d names @%d, which is not a predecessor", inst.ID, pair.Block.ID)
				}
			}
		}
	}

	doms := newDominators(f)
	for _, block := range f.Blocks {
		checkUse := func(user string, value Value, useBlock *BasicBlock) {
			if value.Kind != ValueDef {
				return
			}
			if !doms.dominates(value.Def.Block, useBlock) {
				t.Errorf("%s uses %%%d, but @%d does not dominate @%d",
					user, value.Def.ID, value.Def.Block.ID, useBlock.ID)
			}
		}
		for _, inst := range block.Insts {
			if phi, ok := inst.Variant.(*SSAPhi); ok {
				for _, pair := range phi.Pairs {
					checkUse(inst.String(), pair.Value, pair.Block)
				}
				continue
			}
			for _, slot := range inst.Inputs() {
				checkUse(inst.String(), *slot, block)
			}
		}
		for _, slot := range block.Term.Inputs() {
			checkUse(block.Term.String(), *slot, block)
		}
	}
}

func TestSSAInvariantsOnScenarios(t *testing.T) {
	for _, sc := range scenarios() {
		t.Run(sc.name, func(t *testing.T) {
			program := buildSSA(t, sc.class(t))
			for _, f := range program.Functions {
				checkSSAInvariants(t, f)
			}
			SimplifySSA(program)
			for _, f := range program.Functions {
				checkSSAInvariants(t, f)
			}
		})
	}
}

func TestSSALoopHasPhi(t *testing.T) {
	program := buildSSA(t, classLoopSum(t))
	main := findSSAFunction(t, program, "main")

	phis := 0
	for _, block := range main.Blocks {
		for _, inst := range block.Insts {
			if _, ok := inst.Variant.(*SSAPhi); ok {
				phis++
				if len(block.Predecessors()) < 2 {
					t.Errorf("φ %%%d sits in block @%d with %d predecessors",
						inst.ID, block.ID, len(block.Predecessors()))
				}
			}
		}
	}
	if phis == 0 {
		t.Error("loop produced no φ nodes")
	}
}

func TestSSAEntryBlock(t *testing.T) {
	program := buildSSA(t, classStaticCall(t))
	add := findSSAFunction(t, program, "add")

	entry := add.Blocks[0]
	if len(entry.Predecessors()) != 0 {
		t.Errorf("entry block has %d predecessors", len(entry.Predecessors()))
	}
	if len(entry.Insts) != 2 {
		t.Fatalf("entry instruction count = %d, want 2 argument loads", len(entry.Insts))
	}
	for i, inst := range entry.Insts {
		arg, ok := inst.Variant.(*SSALoadArgument)
		if !ok {
			t.Fatalf("entry inst %d is %T, want *SSALoadArgument", i, inst.Variant)
		}
		if arg.Index != i {
			t.Errorf("argument load %d has index %d", i, arg.Index)
		}
	}
	if _, ok := entry.Term.Variant.(*TermUncond); !ok {
		t.Errorf("entry terminator is %T, want unconditional branch", entry.Term.Variant)
	}
}

func TestSSATerminateMaintainsLinks(t *testing.T) {
	program := &SSAProgram{}
	f := program.AddFunction("t", 0, 0)
	a := f.NewBlock()
	b := f.NewBlock()
	c := f.NewBlock()

	a.Terminate(&TermUncond{Target: b})
	if len(b.Predecessors()) != 1 || b.Predecessors()[0] != a {
		t.Fatal("terminate did not link the successor's predecessors")
	}

	// Re-terminating must unlink the old edge
	a.Terminate(&TermUncond{Target: c})
	if len(b.Predecessors()) != 0 {
		t.Error("stale predecessor left after re-terminating")
	}
	if len(c.Predecessors()) != 1 || c.Predecessors()[0] != a {
		t.Error("new edge not established")
	}
	if len(a.Successors()) != 1 || a.Successors()[0] != c {
		t.Error("successor set not rebuilt")
	}
}

func TestSSADumpFormat(t *testing.T) {
	program := buildSSA(t, classPrintlnAdd(t))
	SimplifySSA(program)
	dump := program.String()

	for _, want := range []string{"function main (0) {", "block @", "pred(", "succ(", "call println("} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump is missing %q:\n%s", want, dump)
		}
	}
}

func TestSimplifyIdempotent(t *testing.T) {
	for _, sc := range scenarios() {
		program := buildSSA(t, sc.class(t))
		SimplifySSA(program)
		before := program.String()
		SimplifySSA(program)
		if after := program.String(); after != before {
			t.Errorf("%s: second simplification changed the SSA", sc.name)
		}
	}
}
