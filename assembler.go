// Completion: 100% - x86-64 encoder and rel32 fixups complete
package main

import (
	"fmt"
	"os"
)

// rel32Fixup records a 32-bit displacement to resolve once every
// function has been emitted. The target is an *MInst for jumps or an
// *MFunction for calls.
type rel32Fixup struct {
	target interface{}
	base   int // Offset of the byte after the instruction
	pos    int // Offset of the displacement bytes
}

// Assembler emits the final byte stream for a machine IR program.
type Assembler struct {
	program    *MProgram
	buf        []byte
	instOffset map[*MInst]int
	unlinked   []rel32Fixup
}

func NewAssembler(program *MProgram) *Assembler {
	return &Assembler{
		program:    program,
		instOffset: make(map[*MInst]int),
	}
}

// Assemble encodes every function and resolves the recorded rel32
// displacements.
func (a *Assembler) Assemble() error {
	for _, f := range a.program.Functions {
		for _, inst := range f.Insts {
			a.instOffset[inst] = len(a.buf)
			if err := a.assembleInst(inst); err != nil {
				return inMethod(err, f.Name)
			}
		}
	}

	for _, fixup := range a.unlinked {
		var abs int
		switch target := fixup.target.(type) {
		case *MInst:
			abs = a.instOffset[target]
		case *MFunction:
			offset, err := a.FuncOffset(target)
			if err != nil {
				return err
			}
			abs = offset
		}
		rel := int64(abs) - int64(fixup.base)
		if rel < -(1<<31) || rel >= 1<<31 {
			return internalError("rel32 displacement out of range: %d", rel)
		}
		writeLE32(a.buf[fixup.pos:], uint32(int32(rel)))
	}
	return nil
}

// Code returns the emitted bytes.
func (a *Assembler) Code() []byte {
	return a.buf
}

// FuncOffset returns the byte offset of the function's first
// instruction.
func (a *Assembler) FuncOffset(f *MFunction) (int, error) {
	if len(f.Insts) == 0 {
		return 0, internalError("function %s cannot be empty", f.Name)
	}
	return a.instOffset[f.Insts[0]], nil
}

func (a *Assembler) append(b uint8) {
	if VerboseMode {
		fmt.Fprintf(os.Stderr, " %02x", b)
	}
	a.buf = append(a.buf, b)
}

func (a *Assembler) imm32(value uint32) {
	for i := 0; i < 4; i++ {
		a.append(uint8(value & 0xff))
		value >>= 8
	}
}

func (a *Assembler) imm64(value uint64) {
	for i := 0; i < 8; i++ {
		a.append(uint8(value & 0xff))
		value >>= 8
	}
}

func writeLE32(buf []byte, value uint32) {
	for i := 0; i < 4; i++ {
		buf[i] = uint8(value & 0xff)
		value >>= 8
	}
}

func (a *Assembler) bindRel32(target interface{}) {
	a.unlinked = append(a.unlinked, rel32Fixup{
		target: target,
		base:   len(a.buf),
		pos:    len(a.buf) - 4,
	})
}

func (a *Assembler) assembleInst(inst *MInst) error {
	switch v := inst.Variant.(type) {
	case *MNullary:
		a.append(0xc3) // ret
		return nil
	case *MUnary:
		return a.assembleUnary(v)
	case *MBinary:
		return a.assembleBinary(v)
	case *MJump:
		switch v.Cond {
		case JumpAlways:
			a.append(0xe9)
		case JumpIfZero:
			a.append(0x0f)
			a.append(0x84)
		}
		a.imm32(0)
		a.bindRel32(v.Target)
		return nil
	case *MCall:
		a.append(0xe8)
		a.imm32(0)
		a.bindRel32(v.Target)
		return nil
	case *MRegisterCall:
		if isHighReg(v.Reg) {
			a.append(0x41)
		}
		a.append(0xff)
		a.append(0xd0 + modRM(v.Reg))
		return nil
	default:
		return internalError("unknown machine instruction")
	}
}

func (a *Assembler) assembleUnary(inst *MUnary) error {
	switch inst.Op {
	case OpPush:
		switch inst.Operand.Kind {
		case OperandReg:
			if isHighReg(inst.Operand.Reg) {
				a.append(0x41)
			}
			a.append(0x50 + modRM(inst.Operand.Reg))
		case OperandConst:
			a.append(0x68)
			a.imm32(uint32(inst.Operand.Const))
		default:
			return internalError("unsupported push operand")
		}
		return nil
	case OpPop:
		if inst.Operand.Kind != OperandReg {
			return internalError("unsupported pop operand")
		}
		if isHighReg(inst.Operand.Reg) {
			a.append(0x41)
		}
		a.append(0x58 + modRM(inst.Operand.Reg))
		return nil
	case OpSete:
		return a.setcc(inst, 0x94)
	case OpSetne:
		return a.setcc(inst, 0x95)
	case OpSetl:
		return a.setcc(inst, 0x9c)
	case OpSetle:
		return a.setcc(inst, 0x9e)
	case OpSetg:
		return a.setcc(inst, 0x9f)
	case OpSetge:
		return a.setcc(inst, 0x9d)
	default:
		return internalError("unknown unary op")
	}
}

func (a *Assembler) setcc(inst *MUnary, opcode uint8) error {
	if inst.Operand.Kind != OperandReg {
		return internalError("unsupported setcc operand")
	}
	reg := inst.Operand.Reg
	prefix := uint8(0x40)
	if isHighReg(reg) {
		prefix |= 1
	}
	a.append(prefix)
	a.append(0x0f)
	a.append(opcode)
	a.append(0xc0 + modRM(reg))
	return nil
}

// binaryPrefix emits the REX.W byte: 0x48, OR 0x01 for a high
// destination, OR 0x04 for a high source register.
func (a *Assembler) binaryPrefix(inst *MBinary) error {
	if inst.Dest.Kind != OperandReg {
		return internalError("unsupported destination operand")
	}
	prefix := uint8(0x48)
	if isHighReg(inst.Dest.Reg) {
		prefix |= 1
	}
	if inst.Source.Kind == OperandReg && isHighReg(inst.Source.Reg) {
		prefix |= 4
	}
	a.append(prefix)
	return nil
}

type basicBinaryConfig struct {
	regOpcode uint8
	immOpcode uint8
	regBase   uint8
	immBase   uint8
}

func (a *Assembler) basicBinary(inst *MBinary, config basicBinaryConfig) error {
	if err := a.binaryPrefix(inst); err != nil {
		return err
	}
	dest := inst.Dest.Reg
	switch inst.Source.Kind {
	case OperandReg:
		a.append(config.regOpcode)
		a.append(config.regBase + modRM(dest) + modRM(inst.Source.Reg)<<3)
	case OperandConst:
		a.append(config.immOpcode)
		a.append(config.immBase + modRM(dest))
		a.imm32(uint32(inst.Source.Const))
	default:
		return internalError("unsupported source operand")
	}
	return nil
}

// load emits mov reg, [rbp+disp8]. Only signed 8-bit displacements
// are encodable.
func (a *Assembler) load(inst *MBinary) error {
	if inst.Dest.Kind != OperandReg {
		return internalError("unsupported load destination")
	}
	offset := inst.Source.Slot
	if offset < -128 || offset > 127 {
		return unsupportedError("stack slot displacement %d exceeds 8 bits", offset)
	}
	dest := inst.Dest.Reg
	prefix := uint8(0x48)
	if isHighReg(dest) {
		prefix |= 4
	}
	a.append(prefix)
	a.append(0x8b)
	a.append(0x45 + modRM(dest)<<3)
	a.append(uint8(int8(offset)))
	return nil
}

// store emits mov [rbp+disp8], reg.
func (a *Assembler) store(inst *MBinary) error {
	if inst.Source.Kind != OperandReg {
		return internalError("unsupported store source")
	}
	offset := inst.Dest.Slot
	if offset < -128 || offset > 127 {
		return unsupportedError("stack slot displacement %d exceeds 8 bits", offset)
	}
	source := inst.Source.Reg
	prefix := uint8(0x48)
	if isHighReg(source) {
		prefix |= 4
	}
	a.append(prefix)
	a.append(0x89)
	a.append(0x45 + modRM(source)<<3)
	a.append(uint8(int8(offset)))
	return nil
}

func (a *Assembler) mov(inst *MBinary) error {
	if inst.Source.Kind == OperandSlot {
		return a.load(inst)
	}
	if inst.Dest.Kind == OperandSlot {
		return a.store(inst)
	}
	if err := a.binaryPrefix(inst); err != nil {
		return err
	}
	dest := inst.Dest.Reg
	switch inst.Source.Kind {
	case OperandReg:
		a.append(0x89)
		a.append(0xc0 + modRM(dest) + modRM(inst.Source.Reg)<<3)
	case OperandConst:
		a.append(0xb8 + modRM(dest))
		a.imm64(inst.Source.Const)
	}
	return nil
}

func (a *Assembler) imul(inst *MBinary) error {
	if err := a.binaryPrefix(inst); err != nil {
		return err
	}
	dest := inst.Dest.Reg
	reg := 0xc0 + modRM(dest)<<3
	switch inst.Source.Kind {
	case OperandReg:
		a.append(0x0f)
		a.append(0xaf)
		a.append(reg + modRM(inst.Source.Reg))
	case OperandConst:
		a.append(0x69)
		a.append(reg + modRM(dest))
		a.imm32(uint32(inst.Source.Const))
	default:
		return internalError("unsupported source operand")
	}
	return nil
}

// shift emits shl/shr by cl or by an 8-bit immediate. The register
// count must already be staged in rcx.
func (a *Assembler) shift(inst *MBinary, regMask uint8) error {
	if err := a.binaryPrefix(inst); err != nil {
		return err
	}
	reg := (0xe0 + modRM(inst.Dest.Reg)) | regMask
	switch inst.Source.Kind {
	case OperandReg:
		if inst.Source.Reg != RegRCX {
			return unsupportedError("shift count must be in rcx, got %s", inst.Source.Reg)
		}
		a.append(0xd3)
		a.append(reg)
	case OperandConst:
		a.append(0xc1)
		a.append(reg)
		a.append(uint8(inst.Source.Const))
	default:
		return internalError("unsupported source operand")
	}
	return nil
}

func (a *Assembler) test8(inst *MBinary) error {
	if inst.Dest.Kind != OperandReg || inst.Source.Kind != OperandReg {
		return internalError("unsupported test operand")
	}
	prefix := uint8(0x40)
	if isHighReg(inst.Dest.Reg) {
		prefix |= 1
	}
	if isHighReg(inst.Source.Reg) {
		prefix |= 4
	}
	a.append(prefix)
	a.append(0x84)
	a.append(0xc0 | modRM(inst.Dest.Reg) | modRM(inst.Source.Reg)<<3)
	return nil
}

func (a *Assembler) assembleBinary(inst *MBinary) error {
	switch inst.Op {
	case OpMov:
		return a.mov(inst)
	case OpAddReg:
		return a.basicBinary(inst, basicBinaryConfig{0x01, 0x81, 0xc0, 0xc0})
	case OpSubReg:
		return a.basicBinary(inst, basicBinaryConfig{0x29, 0x81, 0xe8, 0xe8})
	case OpImul:
		return a.imul(inst)
	case OpShlReg:
		return a.shift(inst, 0x00)
	case OpShrReg:
		return a.shift(inst, 0x08)
	case OpCmp:
		return a.basicBinary(inst, basicBinaryConfig{0x39, 0x81, 0xc0, 0xf8})
	case OpTest8:
		return a.test8(inst)
	default:
		return internalError("unknown binary op")
	}
}
