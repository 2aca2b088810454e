// Completion: 100% - Copy propagation and DCE complete
package main

// simplifyRounds caps the copy-prop/DCE fixpoint iteration.
const simplifyRounds = 20

// SimplifySSA runs copy propagation and dead-code elimination on every
// function until nothing changes or the round cap is hit.
func SimplifySSA(program *SSAProgram) {
	for _, f := range program.Functions {
		for round := 0; round < simplifyRounds; round++ {
			changed := propagateCopies(f)
			if eliminateDeadCode(f) {
				changed = true
			}
			if !changed {
				break
			}
		}
	}
}

// propagateCopies rewrites every use of a Move to the Move's source.
func propagateCopies(f *SSAFunction) bool {
	moves := make(map[*SSAInst]Value)
	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			if move, ok := inst.Variant.(*SSAMove); ok {
				moves[inst] = move.Value
			}
		}
	}
	if len(moves) == 0 {
		return false
	}

	changed := false
	rewrite := func(slot *Value) {
		if slot.Kind != ValueDef {
			return
		}
		if source, ok := moves[slot.Def]; ok {
			*slot = source
			changed = true
		}
	}
	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			for _, slot := range inst.Inputs() {
				rewrite(slot)
			}
		}
		for _, slot := range block.Term.Inputs() {
			rewrite(slot)
		}
	}
	return changed
}

// eliminateDeadCode erases instructions without side effects that no
// instruction or terminator references.
func eliminateDeadCode(f *SSAFunction) bool {
	referenced := make(map[*SSAInst]bool)
	mark := func(slot *Value) {
		if slot.Kind == ValueDef {
			referenced[slot.Def] = true
		}
	}
	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			for _, slot := range inst.Inputs() {
				mark(slot)
			}
		}
		for _, slot := range block.Term.Inputs() {
			mark(slot)
		}
	}

	changed := false
	for _, block := range f.Blocks {
		kept := block.Insts[:0]
		for _, inst := range block.Insts {
			if !inst.HasSideEffect() && !referenced[inst] {
				changed = true
				continue
			}
			kept = append(kept, inst)
		}
		block.Insts = kept
	}
	return changed
}
