// Completion: 100% - x86-64 machine IR complete
package main

import "fmt"

// Register is an x86-64 general purpose register identified by its
// hardware encoding number.
type Register int

const (
	RegRAX Register = iota
	RegRCX
	RegRDX
	RegRBX
	RegRSP
	RegRBP
	RegRSI
	RegRDI
	RegR8
	RegR9
	RegR10
	RegR11
	RegR12
	RegR13
	RegR14
	RegR15
)

var registerNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r Register) String() string {
	if r >= 0 && int(r) < len(registerNames) {
		return registerNames[r]
	}
	return fmt.Sprintf("reg%d", int(r))
}

// modRM is the low 3 bits of the register encoding.
func modRM(r Register) uint8 {
	return uint8(r) & 7
}

// isHighReg reports whether the register needs a REX extension bit.
func isHighReg(r Register) bool {
	return r >= RegR8
}

// OperandKind tags a machine operand.
type OperandKind int

const (
	OperandConst OperandKind = iota
	OperandReg
	OperandSlot
)

// Operand is a constant, a register, or an rbp-relative stack slot.
type Operand struct {
	Kind  OperandKind
	Const uint64
	Reg   Register
	Slot  int64 // Signed byte offset from rbp
}

func ConstOperand(c uint64) Operand {
	return Operand{Kind: OperandConst, Const: c}
}

func RegOperand(r Register) Operand {
	return Operand{Kind: OperandReg, Reg: r}
}

func SlotOperand(offset int64) Operand {
	return Operand{Kind: OperandSlot, Slot: offset}
}

type NullaryOp int

const (
	OpRet NullaryOp = iota
)

type UnaryOp int

const (
	OpPush UnaryOp = iota
	OpPop
	OpSete
	OpSetne
	OpSetl
	OpSetle
	OpSetg
	OpSetge
)

type BinaryOp int

const (
	OpMov BinaryOp = iota
	OpAddReg
	OpSubReg
	OpImul
	OpShlReg
	OpShrReg
	OpCmp
	OpTest8
)

type JumpCond int

const (
	JumpAlways JumpCond = iota
	JumpIfZero
)

// MVariant enumerates the machine instruction kinds.
type MVariant interface {
	mvariant()
}

type MNullary struct {
	Op NullaryOp
}

type MUnary struct {
	Op      UnaryOp
	Operand Operand
}

type MBinary struct {
	Op     BinaryOp
	Dest   Operand
	Source Operand
}

type MJump struct {
	Cond   JumpCond
	Target *MInst
}

type MCall struct {
	Target *MFunction
}

type MRegisterCall struct {
	Reg Register
}

func (*MNullary) mvariant()      {}
func (*MUnary) mvariant()        {}
func (*MBinary) mvariant()       {}
func (*MJump) mvariant()         {}
func (*MCall) mvariant()         {}
func (*MRegisterCall) mvariant() {}

// MInst is one machine instruction.
type MInst struct {
	Variant MVariant
}

// MFunction is the machine code of one function, with symbolic
// branch/call targets.
type MFunction struct {
	Name  string
	Insts []*MInst
}

func (f *MFunction) append(variant MVariant) *MInst {
	inst := &MInst{Variant: variant}
	f.Insts = append(f.Insts, inst)
	return inst
}

// MProgram is the machine IR of a whole class.
type MProgram struct {
	Functions []*MFunction
}
