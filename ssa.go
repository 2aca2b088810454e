// Completion: 100% - SSA IR complete
package main

import (
	"fmt"
	"sort"
	"strings"
)

// ValueKind tags an SSA operand.
type ValueKind int

const (
	ValueEmpty ValueKind = iota
	ValueConstant
	ValueDef
)

// Value is an SSA operand: empty, a constant, or a reference to the
// defining instruction.
type Value struct {
	Kind  ValueKind
	Const uint64
	Def   *SSAInst
}

func ConstValue(c uint64) Value {
	return Value{Kind: ValueConstant, Const: c}
}

func DefValue(inst *SSAInst) Value {
	return Value{Kind: ValueDef, Def: inst}
}

func (v Value) String() string {
	switch v.Kind {
	case ValueConstant:
		return fmt.Sprintf("%d", v.Const)
	case ValueDef:
		return fmt.Sprintf("%%%d", v.Def.ID)
	default:
		return "<empty>"
	}
}

// SSAVariant enumerates the SSA instruction kinds.
type SSAVariant interface {
	ssaVariant()
}

type SSAMove struct {
	Value Value
}

type SSABinaryOp struct {
	Op    ArithmeticOperator
	Left  Value
	Right Value
}

type SSAComparison struct {
	Op    ComparisonOperator
	Left  Value
	Right Value
}

type SSAFunctionCall struct {
	Callee *SSAFunction
	Args   []Value
}

type SSAStandardCall struct {
	Kind StandardCallKind
	Args []Value
}

// PhiPair is one incoming (predecessor, value) edge of a φ.
type PhiPair struct {
	Block *BasicBlock
	Value Value
}

type SSAPhi struct {
	Pairs []PhiPair
}

// Pair returns the incoming value slot for the given predecessor, or
// nil.
func (p *SSAPhi) Pair(pred *BasicBlock) *Value {
	for i := range p.Pairs {
		if p.Pairs[i].Block == pred {
			return &p.Pairs[i].Value
		}
	}
	return nil
}

type SSALoad struct {
	Slot int
}

type SSAStore struct {
	Slot  int
	Value Value
}

type SSALoadArgument struct {
	Index int
}

func (*SSAMove) ssaVariant()         {}
func (*SSABinaryOp) ssaVariant()     {}
func (*SSAComparison) ssaVariant()   {}
func (*SSAFunctionCall) ssaVariant() {}
func (*SSAStandardCall) ssaVariant() {}
func (*SSAPhi) ssaVariant()          {}
func (*SSALoad) ssaVariant()         {}
func (*SSAStore) ssaVariant()        {}
func (*SSALoadArgument) ssaVariant() {}

// SSAInst is a non-terminator SSA instruction. The id is unique within
// the program and stable for the instruction's lifetime.
type SSAInst struct {
	ID      int
	Block   *BasicBlock
	Variant SSAVariant
}

// Inputs returns pointers to every operand slot so passes can rewrite
// uses in place.
func (inst *SSAInst) Inputs() []*Value {
	var result []*Value
	switch v := inst.Variant.(type) {
	case *SSAMove:
		result = append(result, &v.Value)
	case *SSABinaryOp:
		result = append(result, &v.Left, &v.Right)
	case *SSAComparison:
		result = append(result, &v.Left, &v.Right)
	case *SSAFunctionCall:
		for i := range v.Args {
			result = append(result, &v.Args[i])
		}
	case *SSAStandardCall:
		for i := range v.Args {
			result = append(result, &v.Args[i])
		}
	case *SSAPhi:
		for i := range v.Pairs {
			result = append(result, &v.Pairs[i].Value)
		}
	case *SSALoad:
	case *SSAStore:
		result = append(result, &v.Value)
	case *SSALoadArgument:
	}
	return result
}

// HasSideEffect reports whether the instruction must survive dead-code
// elimination regardless of uses.
func (inst *SSAInst) HasSideEffect() bool {
	switch inst.Variant.(type) {
	case *SSAFunctionCall, *SSAStandardCall, *SSAStore:
		return true
	default:
		return false
	}
}

// ProducesValue reports whether the instruction defines an SSA value.
func (inst *SSAInst) ProducesValue() bool {
	switch v := inst.Variant.(type) {
	case *SSAFunctionCall:
		return v.Callee.NReturn > 0
	case *SSAStandardCall, *SSAStore:
		return false
	default:
		return true
	}
}

// TermVariant enumerates the terminator kinds.
type TermVariant interface {
	termVariant()
	successors() []*BasicBlock
}

type TermUncond struct {
	Target *BasicBlock
}

type TermBranch struct {
	Cond Value
	Yes  *BasicBlock
	No   *BasicBlock
}

type TermReturn struct {
	Value Value
}

type TermReturnVoid struct{}

func (*TermUncond) termVariant()     {}
func (*TermBranch) termVariant()     {}
func (*TermReturn) termVariant()     {}
func (*TermReturnVoid) termVariant() {}

func (t *TermUncond) successors() []*BasicBlock {
	return []*BasicBlock{t.Target}
}

func (t *TermBranch) successors() []*BasicBlock {
	return []*BasicBlock{t.Yes, t.No}
}

func (*TermReturn) successors() []*BasicBlock {
	return nil
}

func (*TermReturnVoid) successors() []*BasicBlock {
	return nil
}

// Terminator ends a basic block.
type Terminator struct {
	Block   *BasicBlock
	Variant TermVariant
}

// Inputs mirrors SSAInst.Inputs for terminator operands.
func (t *Terminator) Inputs() []*Value {
	switch v := t.Variant.(type) {
	case *TermBranch:
		return []*Value{&v.Cond}
	case *TermReturn:
		return []*Value{&v.Value}
	default:
		return nil
	}
}

// BasicBlock owns an ordered instruction list and exactly one
// terminator. Predecessor and successor sets are derived from
// terminators and kept coherent by Terminate.
type BasicBlock struct {
	ID    int
	Func  *SSAFunction
	Insts []*SSAInst
	Term  *Terminator

	preds []*BasicBlock
	succs []*BasicBlock
}

// Predecessors returns the blocks branching here, ordered by id.
func (b *BasicBlock) Predecessors() []*BasicBlock {
	return b.preds
}

// Successors returns the blocks this block branches to, ordered by id.
func (b *BasicBlock) Successors() []*BasicBlock {
	return b.succs
}

func insertBlockSorted(list []*BasicBlock, block *BasicBlock) []*BasicBlock {
	i := sort.Search(len(list), func(i int) bool { return list[i].ID >= block.ID })
	if i < len(list) && list[i] == block {
		return list
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = block
	return list
}

func removeBlock(list []*BasicBlock, block *BasicBlock) []*BasicBlock {
	for i, b := range list {
		if b == block {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Terminate assigns the block's terminator and rebuilds the derived
// predecessor/successor links.
func (b *BasicBlock) Terminate(variant TermVariant) *Terminator {
	for _, succ := range b.succs {
		succ.preds = removeBlock(succ.preds, b)
	}
	b.succs = nil

	b.Term = &Terminator{Block: b, Variant: variant}
	for _, succ := range variant.successors() {
		b.succs = insertBlockSorted(b.succs, succ)
		succ.preds = insertBlockSorted(succ.preds, b)
	}
	return b.Term
}

func (b *BasicBlock) newInst(variant SSAVariant) *SSAInst {
	return &SSAInst{ID: b.Func.Program.nextInstID(), Block: b, Variant: variant}
}

// Append adds an instruction at the end of the block.
func (b *BasicBlock) Append(variant SSAVariant) *SSAInst {
	inst := b.newInst(variant)
	b.Insts = append(b.Insts, inst)
	return inst
}

// Prepend adds an instruction at the start of the block.
func (b *BasicBlock) Prepend(variant SSAVariant) *SSAInst {
	inst := b.newInst(variant)
	b.Insts = append([]*SSAInst{inst}, b.Insts...)
	return inst
}

func (b *BasicBlock) indexOf(inst *SSAInst) int {
	for i, candidate := range b.Insts {
		if candidate == inst {
			return i
		}
	}
	return -1
}

// InsertBefore adds an instruction immediately before pos.
func (b *BasicBlock) InsertBefore(pos *SSAInst, variant SSAVariant) *SSAInst {
	i := b.indexOf(pos)
	inst := b.newInst(variant)
	b.Insts = append(b.Insts, nil)
	copy(b.Insts[i+1:], b.Insts[i:])
	b.Insts[i] = inst
	return inst
}

// InsertAfter adds an instruction immediately after pos.
func (b *BasicBlock) InsertAfter(pos *SSAInst, variant SSAVariant) *SSAInst {
	i := b.indexOf(pos) + 1
	inst := b.newInst(variant)
	b.Insts = append(b.Insts, nil)
	copy(b.Insts[i+1:], b.Insts[i:])
	b.Insts[i] = inst
	return inst
}

// Remove erases an instruction from the block.
func (b *BasicBlock) Remove(inst *SSAInst) {
	if i := b.indexOf(inst); i >= 0 {
		b.Insts = append(b.Insts[:i], b.Insts[i+1:]...)
	}
}

// PhiInputs returns, for each φ at the block's prefix, the φ and its
// incoming value slot for the given predecessor.
func (b *BasicBlock) PhiInputs(pred *BasicBlock) []struct {
	Phi   *SSAInst
	Value *Value
} {
	var result []struct {
		Phi   *SSAInst
		Value *Value
	}
	for _, inst := range b.Insts {
		phi, ok := inst.Variant.(*SSAPhi)
		if !ok {
			break
		}
		if slot := phi.Pair(pred); slot != nil {
			result = append(result, struct {
				Phi   *SSAInst
				Value *Value
			}{inst, slot})
		}
	}
	return result
}

// SSAFunction is one function in SSA form.
type SSAFunction struct {
	Program    *SSAProgram
	Name       string
	NArgs      int
	NReturn    int
	Blocks     []*BasicBlock
	StackSlots int
}

// NewBlock appends a fresh empty block to the function.
func (f *SSAFunction) NewBlock() *BasicBlock {
	block := &BasicBlock{ID: f.Program.nextBlockID(), Func: f}
	f.Blocks = append(f.Blocks, block)
	return block
}

// SSAProgram owns every function and the id counters, which are scoped
// to one compilation.
type SSAProgram struct {
	Functions []*SSAFunction

	instIDs  int
	blockIDs int
}

func (p *SSAProgram) nextInstID() int {
	id := p.instIDs
	p.instIDs++
	return id
}

func (p *SSAProgram) nextBlockID() int {
	id := p.blockIDs
	p.blockIDs++
	return id
}

// AddFunction creates an empty SSA function registered with the
// program.
func (p *SSAProgram) AddFunction(name string, nargs, nreturn int) *SSAFunction {
	f := &SSAFunction{Program: p, Name: name, NArgs: nargs, NReturn: nreturn}
	p.Functions = append(p.Functions, f)
	return f
}

func (p *SSAProgram) String() string {
	var sb strings.Builder
	for i, f := range p.Functions {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(f.String())
	}
	return sb.String()
}

func (f *SSAFunction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %s (%d) {\n", f.Name, f.NArgs)
	for i, block := range f.Blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(indent(block.String(), 4))
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}

func (b *BasicBlock) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "block @%d\n", b.ID)
	sb.WriteString("pred(")
	for i, pred := range b.preds {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", pred.ID)
	}
	sb.WriteString(")\n")
	sb.WriteString("succ(")
	for i, succ := range b.succs {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", succ.ID)
	}
	sb.WriteString(") {\n")
	for _, inst := range b.Insts {
		sb.WriteString(indent(inst.String(), 4))
		sb.WriteString("\n")
	}
	if b.Term != nil {
		sb.WriteString(indent(b.Term.String(), 4))
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}

func (inst *SSAInst) String() string {
	return fmt.Sprintf("%%%d = %s", inst.ID, inst.variantString())
}

func (inst *SSAInst) variantString() string {
	switch v := inst.Variant.(type) {
	case *SSAMove:
		return v.Value.String()
	case *SSABinaryOp:
		return fmt.Sprintf("%s %s %s", v.Left, v.Op, v.Right)
	case *SSAComparison:
		return fmt.Sprintf("%s %s %s", v.Left, v.Op, v.Right)
	case *SSAFunctionCall:
		return fmt.Sprintf("call %s(%s)", v.Callee.Name, joinValues(v.Args))
	case *SSAStandardCall:
		return fmt.Sprintf("call %s(%s)", v.Kind, joinValues(v.Args))
	case *SSAPhi:
		var sb strings.Builder
		sb.WriteString("phi ")
		for i, pair := range v.Pairs {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "[@%d, %s]", pair.Block.ID, pair.Value)
		}
		return sb.String()
	case *SSALoad:
		return fmt.Sprintf("load [%d]", v.Slot)
	case *SSAStore:
		return fmt.Sprintf("store [%d], %s", v.Slot, v.Value)
	case *SSALoadArgument:
		return fmt.Sprintf("load arg_%d", v.Index)
	default:
		return "?"
	}
}

func (t *Terminator) String() string {
	switch v := t.Variant.(type) {
	case *TermUncond:
		return fmt.Sprintf("goto @%d", v.Target.ID)
	case *TermBranch:
		return fmt.Sprintf("goto %s ? @%d : @%d", v.Cond, v.Yes.ID, v.No.ID)
	case *TermReturn:
		return fmt.Sprintf("return %s", v.Value)
	case *TermReturnVoid:
		return "return"
	default:
		return "?"
	}
}

func joinValues(values []Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}
