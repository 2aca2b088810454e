// Completion: 100% - Reference interpreter complete
package main

import (
	"fmt"
	"io"
	"os"
)

// Interpreter executes the supported bytecode subset directly. It is
// the reference the compiled code is validated against.
type Interpreter struct {
	cls *ClassFile
	out io.Writer
}

type frame struct {
	stack  []uint32
	locals []uint32
	parent *frame
}

func newFrame(nlocals int, parent *frame) *frame {
	return &frame{locals: make([]uint32, nlocals), parent: parent}
}

func (f *frame) push(val uint32) {
	f.stack = append(f.stack, val)
}

func (f *frame) pop() uint32 {
	val := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return val
}

func NewInterpreter(cls *ClassFile, out io.Writer) *Interpreter {
	if out == nil {
		out = os.Stdout
	}
	return &Interpreter{cls: cls, out: out}
}

// Run executes the class's main method.
func (in *Interpreter) Run() error {
	method := in.cls.Methods.Main(in.cls.CPool)
	if method == nil {
		return missingSymbolError("could not find main() method")
	}
	f := newFrame(int(method.Code.MaxLocals), nil)
	return in.exec(method.Code.Code, f)
}

func (in *Interpreter) exec(code []byte, f *frame) error {
	for i := 0; i < len(code); {
		inc, err := in.instr(code[i:], f)
		if err != nil {
			return err
		}
		if inc == 0 {
			return nil
		}
		i += inc
	}
	fmt.Fprintln(os.Stderr, "WARNING: Code finished executing without `return` instruction")
	return nil
}

// instr executes one instruction and returns the offset of the next
// one, or 0 when the method returns.
func (in *Interpreter) instr(code []byte, f *frame) (int, error) {
	op := Opcode(code[0])
	switch op {
	case opIconstM1, opIconst0, opIconst1, opIconst2, opIconst3, opIconst4, opIconst5:
		f.push(uint32(int32(op) - int32(opIconst0)))
		return 1, nil

	case opBipush:
		f.push(uint32(int32(int8(code[1]))))
		return 2, nil

	case opSipush:
		f.push(uint32(int32(int16(uint16(code[1])<<8 | uint16(code[2])))))
		return 3, nil

	case opIload:
		f.push(f.locals[code[1]])
		return 2, nil

	case opIload0, opIload1, opIload2, opIload3:
		f.push(f.locals[int32(op)-int32(opIload0)])
		return 1, nil

	case opIstore:
		f.locals[code[1]] = f.pop()
		return 2, nil

	case opIstore0, opIstore1, opIstore2, opIstore3:
		f.locals[int32(op)-int32(opIstore0)] = f.pop()
		return 1, nil

	case opPop:
		f.pop()
		return 1, nil

	case opIinc:
		f.locals[code[1]] += uint32(int32(int8(code[2])))
		return 3, nil

	case opIadd:
		val := f.pop()
		f.push(f.pop() + val)
		return 1, nil

	case opIsub:
		val := f.pop()
		f.push(f.pop() - val)
		return 1, nil

	case opImul:
		val := f.pop()
		f.push(f.pop() * val)
		return 1, nil

	case opIshl:
		amount := f.pop() & 0x1f
		f.push(f.pop() << amount)
		return 1, nil

	case opIshr:
		amount := f.pop() & 0x1f
		val := int32(f.pop())
		f.push(uint32(val >> amount))
		return 1, nil

	case opIfIcmpeq, opIfIcmpne, opIfIcmpgt, opIfIcmpge, opIfIcmplt, opIfIcmple:
		y := int32(f.pop())
		x := int32(f.pop())
		var branch bool
		switch op {
		case opIfIcmpeq:
			branch = x == y
		case opIfIcmpne:
			branch = x != y
		case opIfIcmpgt:
			branch = x > y
		case opIfIcmpge:
			branch = x >= y
		case opIfIcmplt:
			branch = x < y
		case opIfIcmple:
			branch = x <= y
		}
		if branch {
			return branchOffset(code), nil
		}
		return 3, nil

	case opIfeq, opIfne, opIfgt, opIfge, opIflt, opIfle:
		x := int32(f.pop())
		var branch bool
		switch op {
		case opIfeq:
			branch = x == 0
		case opIfne:
			branch = x != 0
		case opIfgt:
			branch = x > 0
		case opIfge:
			branch = x >= 0
		case opIflt:
			branch = x < 0
		case opIfle:
			branch = x <= 0
		}
		if branch {
			return branchOffset(code), nil
		}
		return 3, nil

	case opGoto:
		return branchOffset(code), nil

	case opInvokestatic:
		return in.invokestatic(code, f)

	case opInvokevirtual:
		return in.invokevirtual(code, f)

	case opReturn:
		return 0, nil

	case opIreturn:
		val := f.pop()
		if f.parent != nil {
			f.parent.push(val)
		}
		return 0, nil

	case opGetstatic:
		// Ignoring the object; a dummy ref keeps the stack shape
		f.push(0)
		return 3, nil

	default:
		return 0, unsupportedError("unsupported opcode: 0x%02x", code[0])
	}
}

func branchOffset(code []byte) int {
	return int(int16(uint16(code[1])<<8 | uint16(code[2])))
}

func (in *Interpreter) invokestatic(code []byte, f *frame) (int, error) {
	index := uint16(code[1])<<8 | uint16(code[2])
	cpool := in.cls.CPool

	ref, err := cpool.MethodRef(index)
	if err != nil {
		return 0, err
	}
	if ref.ClassRefIndex != in.cls.SelfIndex {
		return 0, unsupportedError("cannot call method of other class")
	}
	desc, err := cpool.NameAndType(ref.NameTypeIndex)
	if err != nil {
		return 0, err
	}

	method := in.cls.Methods.Find(*desc)
	if method == nil {
		return 0, missingSymbolError("no such method")
	}

	sig, err := cpool.UTF8(desc.DescIndex)
	if err != nil {
		return 0, err
	}
	mdesc, err := ParseMethodDescriptor(sig)
	if err != nil {
		return 0, err
	}

	callee := newFrame(int(method.Code.MaxLocals), f)
	for i := mdesc.NArgs(); i > 0; i-- {
		callee.locals[i-1] = f.pop()
	}
	if err := in.exec(method.Code.Code, callee); err != nil {
		return 0, err
	}
	return 3, nil
}

func (in *Interpreter) invokevirtual(code []byte, f *frame) (int, error) {
	index := uint16(code[1])<<8 | uint16(code[2])
	cpool := in.cls.CPool

	ref, err := cpool.MethodRef(index)
	if err != nil {
		return 0, err
	}
	desc, err := cpool.NameAndType(ref.NameTypeIndex)
	if err != nil {
		return 0, err
	}
	name, err := cpool.UTF8(desc.NameIndex)
	if err != nil {
		return 0, err
	}
	sig, err := cpool.UTF8(desc.DescIndex)
	if err != nil {
		return 0, err
	}
	mdesc, err := ParseMethodDescriptor(sig)
	if err != nil {
		return 0, err
	}

	switch name {
	case "print":
		if err := checkPrintDescriptor(mdesc, "print()"); err != nil {
			return 0, err
		}
		in.printRaw(mdesc, f)
	case "println":
		if err := checkPrintDescriptor(mdesc, "println()"); err != nil {
			return 0, err
		}
		in.printRaw(mdesc, f)
		fmt.Fprintln(in.out)
	default:
		return 0, unsupportedError("unsupported virtual method: %s", name)
	}
	f.pop() // Object ref
	return 3, nil
}

func (in *Interpreter) printRaw(mdesc *MethodDescriptor, f *frame) {
	if mdesc.NArgs() == 0 {
		return
	}
	if mdesc.Args[0] == 'C' {
		fmt.Fprintf(in.out, "%c", rune(int32(f.pop())))
		return
	}
	fmt.Fprintf(in.out, "%d", int32(f.pop()))
}

func checkPrintDescriptor(mdesc *MethodDescriptor, fname string) error {
	if mdesc.NArgs() > 1 {
		return unsupportedError("too many arguments to %s: %d", fname, mdesc.NArgs())
	}
	if mdesc.RType != 'V' {
		return unsupportedError("invalid return type for %s: %c", fname, mdesc.RType)
	}
	return nil
}
