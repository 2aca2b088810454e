// Completion: 100% - Supported opcode subset complete
package main

// Opcode is a JVM bytecode opcode. Only the listed subset is
// supported; anything else fails the method with a hex diagnostic.
type Opcode uint8

const (
	opIconstM1 Opcode = 0x02
	opIconst0  Opcode = 0x03
	opIconst1  Opcode = 0x04
	opIconst2  Opcode = 0x05
	opIconst3  Opcode = 0x06
	opIconst4  Opcode = 0x07
	opIconst5  Opcode = 0x08

	opBipush Opcode = 0x10
	opSipush Opcode = 0x11

	opIload  Opcode = 0x15
	opIload0 Opcode = 0x1a
	opIload1 Opcode = 0x1b
	opIload2 Opcode = 0x1c
	opIload3 Opcode = 0x1d

	opIstore  Opcode = 0x36
	opIstore0 Opcode = 0x3b
	opIstore1 Opcode = 0x3c
	opIstore2 Opcode = 0x3d
	opIstore3 Opcode = 0x3e

	opPop Opcode = 0x57

	opIadd Opcode = 0x60
	opIsub Opcode = 0x64
	opImul Opcode = 0x68
	opIshl Opcode = 0x78
	opIshr Opcode = 0x7a

	opIinc Opcode = 0x84

	opIfeq Opcode = 0x99
	opIfne Opcode = 0x9a
	opIflt Opcode = 0x9b
	opIfge Opcode = 0x9c
	opIfgt Opcode = 0x9d
	opIfle Opcode = 0x9e

	opIfIcmpeq Opcode = 0x9f
	opIfIcmpne Opcode = 0xa0
	opIfIcmplt Opcode = 0xa1
	opIfIcmpge Opcode = 0xa2
	opIfIcmpgt Opcode = 0xa3
	opIfIcmple Opcode = 0xa4

	opGoto Opcode = 0xa7

	opIreturn Opcode = 0xac
	opReturn  Opcode = 0xb1

	opGetstatic     Opcode = 0xb2
	opInvokevirtual Opcode = 0xb6
	opInvokestatic  Opcode = 0xb8
)
