// Completion: 100% - Dominance analysis and phi insertion complete
package main

import "sort"

// dominators holds the iterative dominator sets of one function.
// dom(n) = {n} ∪ ∩ dom(p) over predecessors p, with the entry block
// dominated only by itself.
type dominators struct {
	doms map[*BasicBlock]map[*BasicBlock]bool
}

func newDominators(f *SSAFunction) *dominators {
	d := &dominators{doms: make(map[*BasicBlock]map[*BasicBlock]bool)}
	if len(f.Blocks) == 0 {
		return d
	}

	entry := f.Blocks[0]
	d.doms[entry] = map[*BasicBlock]bool{entry: true}

	all := make(map[*BasicBlock]bool, len(f.Blocks))
	for _, block := range f.Blocks {
		all[block] = true
	}
	for _, block := range f.Blocks[1:] {
		set := make(map[*BasicBlock]bool, len(all))
		for b := range all {
			set[b] = true
		}
		d.doms[block] = set
	}

	for changed := true; changed; {
		changed = false
		for _, block := range f.Blocks[1:] {
			if d.step(block) {
				changed = true
			}
		}
	}
	return d
}

func (d *dominators) step(block *BasicBlock) bool {
	preds := block.Predecessors()
	next := make(map[*BasicBlock]bool)
	if len(preds) > 0 {
		for b := range d.doms[preds[0]] {
			next[b] = true
		}
		for _, pred := range preds[1:] {
			predDoms := d.doms[pred]
			for b := range next {
				if !predDoms[b] {
					delete(next, b)
				}
			}
		}
	}
	next[block] = true

	current := d.doms[block]
	if len(next) == len(current) {
		same := true
		for b := range next {
			if !current[b] {
				same = false
				break
			}
		}
		if same {
			return false
		}
	}
	d.doms[block] = next
	return true
}

func (d *dominators) dominates(dom, other *BasicBlock) bool {
	return d.doms[other][dom]
}

func (d *dominators) strictlyDominates(dom, other *BasicBlock) bool {
	return dom != other && d.dominates(dom, other)
}

// frontier reports whether front is in block's dominance frontier:
// block dominates a predecessor of front without strictly dominating
// front itself.
func (d *dominators) frontier(block, front *BasicBlock) bool {
	if d.strictlyDominates(block, front) {
		return false
	}
	for _, pred := range front.Predecessors() {
		if d.dominates(block, pred) {
			return true
		}
	}
	return false
}

// frontiers returns block's dominance frontier ordered by block id.
func (d *dominators) frontiers(f *SSAFunction, block *BasicBlock) []*BasicBlock {
	var result []*BasicBlock
	for _, front := range f.Blocks {
		if d.frontier(block, front) {
			result = append(result, front)
		}
	}
	return result
}

// phiFixer inserts φ-functions at dominance frontiers and records, per
// block, the value each variable has at block entry (the links table).
type phiFixer struct {
	function *SSAFunction
	defs     defsMap
	doms     *dominators
	links    map[*BasicBlock]map[JVariable]Value
}

func newPhiFixer(f *SSAFunction, defs defsMap) *phiFixer {
	return &phiFixer{
		function: f,
		defs:     defs,
		doms:     newDominators(f),
		links:    make(map[*BasicBlock]map[JVariable]Value),
	}
}

func (p *phiFixer) link(block *BasicBlock, variable JVariable, value Value) {
	links, ok := p.links[block]
	if !ok {
		links = make(map[JVariable]Value)
		p.links[block] = links
	}
	if _, ok := links[variable]; !ok {
		links[variable] = value
	}
}

func (p *phiFixer) fix() error {
	for _, variable := range p.variables() {
		if err := p.fixVariable(variable); err != nil {
			return err
		}
	}
	return nil
}

// variables returns every pseudo-variable defined anywhere, in a
// deterministic order.
func (p *phiFixer) variables() []JVariable {
	seen := make(map[JVariable]bool)
	var result []JVariable
	for _, defs := range p.defs {
		for variable := range defs {
			if !seen[variable] {
				seen[variable] = true
				result = append(result, variable)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Loc != result[j].Loc {
			return result[i].Loc < result[j].Loc
		}
		return result[i].Index < result[j].Index
	})
	return result
}

func (p *phiFixer) fixVariable(variable JVariable) error {
	workList := make(map[*BasicBlock]bool)
	for _, block := range p.function.Blocks {
		if _, ok := p.defs.lookup(block, variable); ok {
			workList[block] = true
		}
	}
	done := make(map[*BasicBlock]bool, len(workList))
	for block := range workList {
		done[block] = true
	}

	hasPhi := make(map[*BasicBlock]bool)
	var phis []*SSAInst
	referenced := make(map[*SSAInst]bool)

	// Insert empty φs at the dominance frontiers, transitively.
	for len(workList) > 0 {
		block := minBlock(workList)
		delete(workList, block)

		for _, front := range p.doms.frontiers(p.function, block) {
			if hasPhi[front] {
				continue
			}
			phi := front.Prepend(&SSAPhi{})
			phis = append(phis, phi)
			hasPhi[front] = true

			if p.defs.defineIfAbsent(front, variable, DefValue(phi)) {
				referenced[phi] = true
			}
			if done[front] {
				continue
			}
			workList[front] = true
			done[front] = true
		}
	}

	// Blocks without a φ inherit the variable's entry value from the
	// first predecessor that defines it.
	for _, block := range p.function.Blocks {
		if hasPhi[block] {
			continue
		}
		for _, pred := range block.Predecessors() {
			if pred == block {
				continue
			}
			def, ok := p.defs.lookup(pred, variable)
			if !ok {
				continue
			}
			if def.Kind == ValueDef {
				referenced[def.Def] = true
			}
			p.link(block, variable, def)
			p.defs.defineIfAbsent(block, variable, def)
			break
		}
	}

	// Fill each φ from its predecessors' definitions; a φ with a
	// definition-less predecessor is spurious and erased.
	for _, phi := range phis {
		variant := phi.Variant.(*SSAPhi)
		block := phi.Block
		removed := false

		for _, pred := range block.Predecessors() {
			if def, ok := p.defs.lookup(pred, variable); ok {
				variant.Pairs = append(variant.Pairs, PhiPair{Block: pred, Value: def})
				continue
			}
			if referenced[phi] {
				return internalError("unnecessary phi has uses")
			}
			block.Remove(phi)
			removed = true
			break
		}

		if !removed {
			p.link(block, variable, DefValue(phi))
		}
	}
	return nil
}

func minBlock(set map[*BasicBlock]bool) *BasicBlock {
	var result *BasicBlock
	for block := range set {
		if result == nil || block.ID < result.ID {
			result = block
		}
	}
	return result
}
