// Completion: 90% - Register allocator working, spills verified on synthetic pressure
package main

// Register Allocator for j67
//
// Implements graph-coloring register allocation over the SSA form:
// - Build per-point liveness and an interference graph keyed by SSA def
// - Chaitin-style simplification: repeatedly remove nodes with degree
//   below the pool size onto a stack
// - If simplification blocks, spill the remaining node of maximum
//   degree to a stack slot, rewrite its uses through Load/Store, and
//   rebuild liveness from scratch
// - Color by popping the stack, picking the first pool register unused
//   by already-colored neighbors
//
// References:
// - Chaitin (1982): Register Allocation & Spilling via Graph Coloring
// - Briggs, Cooper & Torczon (1994): Improvements to Graph Coloring
//   Register Allocation

// allocatableRegisters is the pool available to SSA values. rcx is a
// scratch for shift counts and memory-indirect calls; rsp and rbp hold
// the frame.
var allocatableRegisters = [13]Register{
	RegRAX,
	RegRBX,
	RegRDX,
	RegRSI,
	RegRDI,
	RegR8,
	RegR9,
	RegR10,
	RegR11,
	RegR12,
	RegR13,
	RegR14,
	RegR15,
}

type regMap map[*SSAInst]Register

// RegisterAllocator assigns a register to every SSA value of one
// function, inserting spill code as needed.
type RegisterAllocator struct {
	function *SSAFunction
	regs     regMap
	liveVars liveVarMap
}

func NewRegisterAllocator(f *SSAFunction) *RegisterAllocator {
	return &RegisterAllocator{function: f}
}

// Allocate runs simplification and spilling until the graph colors.
func (ra *RegisterAllocator) Allocate() error {
	for {
		done, err := ra.step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (ra *RegisterAllocator) Regs() regMap {
	return ra.regs
}

func (ra *RegisterAllocator) LiveVars() liveVarMap {
	return ra.liveVars
}

type removedNode struct {
	inst      *SSAInst
	neighbors instSet
}

func (ra *RegisterAllocator) step() (bool, error) {
	ra.regs = make(regMap)
	builder := buildLifeMap(ra.function)
	graph := buildInterference(builder.lifeMap)

	// Simplification: peel off low-degree nodes onto a stack.
	var removed []removedNode
	for {
		any := false
		for _, inst := range graph.sortedNodes() {
			if len(graph.nodes[inst]) < len(allocatableRegisters) {
				removed = append(removed, removedNode{inst: inst, neighbors: graph.nodes[inst]})
				graph.remove(inst)
				any = true
				break
			}
		}
		if !any {
			break
		}
	}

	if len(graph.nodes) > 0 {
		ra.spill(ra.spillCandidate(graph))
		return false, nil
	}

	// Color by popping the stack.
	for i := len(removed) - 1; i >= 0; i-- {
		node := removed[i]
		assigned := false
		for _, reg := range allocatableRegisters {
			conflict := false
			for _, neighbor := range sortedInsts(node.neighbors) {
				if allocated, ok := ra.regs[neighbor]; ok && allocated == reg {
					conflict = true
					break
				}
			}
			if !conflict {
				ra.regs[node.inst] = reg
				assigned = true
				break
			}
		}
		if !assigned {
			return false, internalError("register allocation failed for %%%d", node.inst.ID)
		}
	}

	ra.liveVars = builder.liveVars
	return true, nil
}

// spillCandidate picks the remaining node of maximum degree, lowest id
// breaking ties.
func (ra *RegisterAllocator) spillCandidate(graph *interferenceGraph) *SSAInst {
	var candidate *SSAInst
	for _, inst := range graph.sortedNodes() {
		if candidate == nil || len(graph.nodes[inst]) > len(graph.nodes[candidate]) {
			candidate = inst
		}
	}
	return candidate
}

// spill demotes the def to a fresh stack slot: a Store right after the
// definition, a Load immediately before every use.
func (ra *RegisterAllocator) spill(inst *SSAInst) {
	slot := ra.function.StackSlots
	ra.function.StackSlots++

	block := inst.Block
	store := block.InsertAfter(inst, &SSAStore{Slot: slot, Value: DefValue(inst)})

	for _, b := range ra.function.Blocks {
		// Walk a snapshot; loads are inserted while iterating.
		insts := make([]*SSAInst, len(b.Insts))
		copy(insts, b.Insts)
		for _, user := range insts {
			if user == store {
				continue
			}
			for _, use := range user.Inputs() {
				if use.Kind != ValueDef || use.Def != inst {
					continue
				}
				load := b.InsertBefore(user, &SSALoad{Slot: slot})
				*use = DefValue(load)
			}
		}

		for _, use := range b.Term.Inputs() {
			if use.Kind != ValueDef || use.Def != inst {
				continue
			}
			load := b.Append(&SSALoad{Slot: slot})
			*use = DefValue(load)
		}
	}
}
