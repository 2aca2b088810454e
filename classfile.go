// Completion: 100% - Class file reader complete
package main

import "os"

const classMagic = 0xCAFEBABE

// ClassFile is the parsed subset of a Java class file: the constant
// pool, the index of the class itself, and the method table.
type ClassFile struct {
	CPool     *ConstantPool
	SelfIndex uint16
	Methods   *MethodTable
}

// ParseClassFile parses a complete class file image. Trailing bytes
// after the class structure are an error.
func ParseClassFile(data []byte) (*ClassFile, error) {
	s := NewStream(data)
	cls, err := readClassFile(s)
	if err != nil {
		return nil, err
	}
	if s.Remaining() != 0 {
		return nil, formatError("extra data after class file")
	}
	return cls, nil
}

// LoadClassFile reads and parses a class file from disk.
func LoadClassFile(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseClassFile(data)
}

func readClassFile(s *Stream) (*ClassFile, error) {
	magic, err := s.ReadU32()
	if err != nil {
		return nil, err
	}
	if magic != classMagic {
		return nil, formatError("bad magic number: 0x%08x", magic)
	}
	if err := s.Skip(4); err != nil { // Minor and major version
		return nil, err
	}

	cls := &ClassFile{}
	if cls.CPool, err = ReadConstantPool(s); err != nil {
		return nil, err
	}
	if err := s.Skip(2); err != nil { // Access flags
		return nil, err
	}
	if cls.SelfIndex, err = s.ReadU16(); err != nil {
		return nil, err
	}
	if err := s.Skip(2); err != nil { // Super class index
		return nil, err
	}

	// Interface table
	ifaceCount, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	if err := s.Skip(int(ifaceCount) * 2); err != nil {
		return nil, err
	}

	// Field table
	fieldCount, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(fieldCount); i++ {
		if err := s.Skip(6); err != nil { // Access flags, name, descriptor
			return nil, err
		}
		if err := skipAttributeTable(s); err != nil {
			return nil, err
		}
	}

	if cls.Methods, err = readMethodTable(s, cls.CPool); err != nil {
		return nil, err
	}
	if err := skipAttributeTable(s); err != nil {
		return nil, err
	}
	return cls, nil
}
