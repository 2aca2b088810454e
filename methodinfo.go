// Completion: 100% - Method table parsing complete
package main

// CodeInfo is the parsed Code attribute of a method.
type CodeInfo struct {
	MaxStack  uint16
	MaxLocals uint16
	Code      []byte
}

func readCodeInfo(s *Stream) (*CodeInfo, error) {
	info := &CodeInfo{}
	var err error
	if info.MaxStack, err = s.ReadU16(); err != nil {
		return nil, err
	}
	if info.MaxLocals, err = s.ReadU16(); err != nil {
		return nil, err
	}
	length, err := s.ReadU32()
	if err != nil {
		return nil, err
	}
	if info.Code, err = s.ReadBytes(int(length)); err != nil {
		return nil, err
	}
	// Exception table, unused by the supported subset
	excCount, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	if err := s.Skip(int(excCount) * 8); err != nil {
		return nil, err
	}
	if err := skipAttributeTable(s); err != nil {
		return nil, err
	}
	return info, nil
}

func skipAttributeTable(s *Stream) error {
	count, err := s.ReadU16()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		if err := s.Skip(2); err != nil { // Attribute name index
			return err
		}
		length, err := s.ReadU32()
		if err != nil {
			return err
		}
		if err := s.Skip(int(length)); err != nil {
			return err
		}
	}
	return nil
}

// MethodInfo is one entry of the class file method table.
type MethodInfo struct {
	NameIndex       uint16
	DescriptorIndex uint16
	Code            *CodeInfo
}

func readMethodInfo(s *Stream, cpool *ConstantPool) (*MethodInfo, error) {
	if err := s.Skip(2); err != nil { // Access flags
		return nil, err
	}
	info := &MethodInfo{}
	var err error
	if info.NameIndex, err = s.ReadU16(); err != nil {
		return nil, err
	}
	if info.DescriptorIndex, err = s.ReadU16(); err != nil {
		return nil, err
	}

	count, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(count); i++ {
		nameIndex, err := s.ReadU16()
		if err != nil {
			return nil, err
		}
		length, err := s.ReadU32()
		if err != nil {
			return nil, err
		}
		name, err := cpool.UTF8(nameIndex)
		if err != nil {
			return nil, err
		}
		if name == "Code" {
			if info.Code != nil {
				return nil, formatError("duplicate Code attribute")
			}
			if info.Code, err = readCodeInfo(s); err != nil {
				return nil, err
			}
			continue
		}
		if err := s.Skip(int(length)); err != nil {
			return nil, err
		}
	}
	if info.Code == nil {
		return nil, formatError("method is missing Code attribute")
	}
	return info, nil
}

func (m *MethodInfo) Name(cpool *ConstantPool) (string, error) {
	return cpool.UTF8(m.NameIndex)
}

func (m *MethodInfo) Descriptor(cpool *ConstantPool) (*MethodDescriptor, error) {
	sig, err := cpool.UTF8(m.DescriptorIndex)
	if err != nil {
		return nil, err
	}
	return ParseMethodDescriptor(sig)
}

// NameAndType builds the constant pool key identifying this method.
func (m *MethodInfo) NameAndType() NameAndType {
	return NameAndType{NameIndex: m.NameIndex, DescIndex: m.DescriptorIndex}
}

// MethodTable holds every method of the class, in declaration order.
type MethodTable struct {
	Entries []*MethodInfo
}

func readMethodTable(s *Stream, cpool *ConstantPool) (*MethodTable, error) {
	count, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	table := &MethodTable{}
	for i := 0; i < int(count); i++ {
		info, err := readMethodInfo(s, cpool)
		if err != nil {
			return nil, err
		}
		table.Entries = append(table.Entries, info)
	}
	return table, nil
}

// Find returns the method matching the given NameAndType, or nil.
func (t *MethodTable) Find(desc NameAndType) *MethodInfo {
	for _, info := range t.Entries {
		if info.NameIndex == desc.NameIndex && info.DescriptorIndex == desc.DescIndex {
			return info
		}
	}
	return nil
}

// Main returns the method named "main", or nil.
func (t *MethodTable) Main(cpool *ConstantPool) *MethodInfo {
	for _, info := range t.Entries {
		name, err := info.Name(cpool)
		if err == nil && name == "main" {
			return info
		}
	}
	return nil
}

// Compiled returns the methods that take part in compilation, skipping
// constructors and class initializers.
func (t *MethodTable) Compiled(cpool *ConstantPool) ([]*MethodInfo, error) {
	var result []*MethodInfo
	for _, info := range t.Entries {
		name, err := info.Name(cpool)
		if err != nil {
			return nil, err
		}
		if name == "<init>" || name == "<clinit>" {
			continue
		}
		result = append(result, info)
	}
	return result, nil
}
