// Completion: 100% - Liveness analysis and interference graph complete
package main

import "sort"

// A program point is an instruction or a terminator; sets of SSA defs
// are recorded as live per point.
type progPoint interface{}

type instSet map[*SSAInst]bool

// lifeMap maps each SSA def to the points where it is live.
type lifeMap map[*SSAInst]map[progPoint]bool

// liveVarMap maps each point to the SSA defs live there.
type liveVarMap map[progPoint]instSet

// sortedInsts returns the set's members ordered by id.
func sortedInsts(set instSet) []*SSAInst {
	result := make([]*SSAInst, 0, len(set))
	for inst := range set {
		result = append(result, inst)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// lifeMapBuilder computes per-point liveness for one function by
// backward fixpoint over the blocks.
type lifeMapBuilder struct {
	function *SSAFunction
	live     map[*BasicBlock]instSet
	lifeMap  lifeMap
	liveVars liveVarMap
}

func buildLifeMap(f *SSAFunction) *lifeMapBuilder {
	b := &lifeMapBuilder{
		function: f,
		live:     make(map[*BasicBlock]instSet),
		lifeMap:  make(lifeMap),
		liveVars: make(liveVarMap),
	}
	if len(f.Blocks) == 0 {
		return b
	}
	for b.calculateOnce() {
	}
	return b
}

func valueInputs(slots []*Value) instSet {
	result := make(instSet)
	for _, slot := range slots {
		if slot.Kind == ValueDef {
			result[slot.Def] = true
		}
	}
	return result
}

// blockLiveStart is the live set at the successor's entry as seen from
// the given predecessor: the block's live set plus the φ inputs coming
// over that edge.
func (b *lifeMapBuilder) blockLiveStart(block, pred *BasicBlock) instSet {
	live := make(instSet, len(b.live[block]))
	for inst := range b.live[block] {
		live[inst] = true
	}
	for _, inst := range block.Insts {
		phi, ok := inst.Variant.(*SSAPhi)
		if !ok {
			break
		}
		for i := range phi.Pairs {
			if phi.Pairs[i].Block != pred {
				continue
			}
			if phi.Pairs[i].Value.Kind == ValueDef {
				live[phi.Pairs[i].Value.Def] = true
			}
		}
	}
	return live
}

func (b *lifeMapBuilder) blockLiveEnd(block *BasicBlock) instSet {
	live := valueInputs(block.Term.Inputs())
	for _, succ := range block.Successors() {
		for inst := range b.blockLiveStart(succ, block) {
			live[inst] = true
		}
	}
	return live
}

func (b *lifeMapBuilder) record(live instSet, point progPoint) {
	for inst := range live {
		points, ok := b.lifeMap[inst]
		if !ok {
			points = make(map[progPoint]bool)
			b.lifeMap[inst] = points
		}
		points[point] = true

		vars, ok := b.liveVars[point]
		if !ok {
			vars = make(instSet)
			b.liveVars[point] = vars
		}
		vars[inst] = true
	}
}

func (b *lifeMapBuilder) calculateOnce() bool {
	changed := false
	for i := len(b.function.Blocks) - 1; i >= 0; i-- {
		if b.calculate(b.function.Blocks[i]) {
			changed = true
		}
	}
	return changed
}

func (b *lifeMapBuilder) calculate(block *BasicBlock) bool {
	live := b.blockLiveEnd(block)
	b.record(live, block.Term)

	for i := len(block.Insts) - 1; i >= 0; i-- {
		inst := block.Insts[i]
		if inst.ProducesValue() {
			delete(live, inst)
		}
		// φ inputs are live on their incoming edges only, accounted
		// for in blockLiveStart
		if _, isPhi := inst.Variant.(*SSAPhi); !isPhi {
			for input := range valueInputs(inst.Inputs()) {
				live[input] = true
			}
		}
		b.record(live, inst)
	}

	prev := b.live[block]
	if len(prev) == len(live) {
		same := true
		for inst := range live {
			if !prev[inst] {
				same = false
				break
			}
		}
		if same {
			return false
		}
	}
	b.live[block] = live
	return true
}

// interferenceGraph is keyed by SSA def; two defs interfere when their
// live-point sets intersect. Every def that is live anywhere is a
// node, possibly with no neighbors.
type interferenceGraph struct {
	nodes map[*SSAInst]instSet
}

func buildInterference(life lifeMap) *interferenceGraph {
	g := &interferenceGraph{nodes: make(map[*SSAInst]instSet)}
	insts := make([]*SSAInst, 0, len(life))
	for inst := range life {
		insts = append(insts, inst)
	}
	sort.Slice(insts, func(i, j int) bool { return insts[i].ID < insts[j].ID })

	for _, inst := range insts {
		if g.nodes[inst] == nil {
			g.nodes[inst] = make(instSet)
		}
	}
	for i, inst1 := range insts {
		points1 := life[inst1]
		for _, inst2 := range insts[i+1:] {
			for point := range life[inst2] {
				if points1[point] {
					g.nodes[inst1][inst2] = true
					g.nodes[inst2][inst1] = true
					break
				}
			}
		}
	}
	return g
}

// remove erases a node and every edge touching it.
func (g *interferenceGraph) remove(inst *SSAInst) {
	delete(g.nodes, inst)
	for _, neighbors := range g.nodes {
		delete(neighbors, inst)
	}
}

// sortedNodes returns the remaining nodes ordered by id.
func (g *interferenceGraph) sortedNodes() []*SSAInst {
	result := make([]*SSAInst, 0, len(g.nodes))
	for inst := range g.nodes {
		result = append(result, inst)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
