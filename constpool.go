// Completion: 100% - Constant pool parsing complete
package main

// Constant pool entry tags from the class file format.
const (
	tagUTF8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClassRef           = 7
	tagStringRef          = 8
	tagFieldRef           = 9
	tagMethodRef          = 10
	tagInterfaceMethodRef = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// PoolEntry is one parsed constant pool entry.
type PoolEntry interface {
	// nslots is 1 for everything except Long and Double, which occupy
	// two consecutive pool slots.
	nslots() int
}

type UTF8 struct {
	Str string
}

type IntegerEntry struct {
	Value int32
}

type FloatEntry struct {
	Bits uint32
}

type LongEntry struct {
	Value int64
}

type DoubleEntry struct {
	Bits uint64
}

type ClassRef struct {
	Index uint16
}

type StringRef struct {
	Index uint16
}

// MemberRef covers FieldRef, MethodRef and InterfaceMethodRef, which
// share the same layout.
type MemberRef struct {
	Tag           uint8
	ClassRefIndex uint16
	NameTypeIndex uint16
}

// IsMethodRef reports whether the entry refers to a method rather than
// a field.
func (m *MemberRef) IsMethodRef() bool {
	return m.Tag == tagMethodRef || m.Tag == tagInterfaceMethodRef
}

type NameAndType struct {
	NameIndex uint16
	DescIndex uint16
}

type MethodHandle struct {
	TypeDesc uint8
	Index    uint16
}

type MethodType struct {
	Index uint16
}

type DynamicEntry struct {
	Value uint32
}

type InvokeDynamicEntry struct {
	Value uint16
}

type ModuleEntry struct {
	Index uint16
}

type PackageEntry struct {
	Index uint16
}

func (*UTF8) nslots() int               { return 1 }
func (*IntegerEntry) nslots() int       { return 1 }
func (*FloatEntry) nslots() int         { return 1 }
func (*LongEntry) nslots() int          { return 2 }
func (*DoubleEntry) nslots() int        { return 2 }
func (*ClassRef) nslots() int           { return 1 }
func (*StringRef) nslots() int          { return 1 }
func (*MemberRef) nslots() int          { return 1 }
func (*NameAndType) nslots() int        { return 1 }
func (*MethodHandle) nslots() int       { return 1 }
func (*MethodType) nslots() int         { return 1 }
func (*DynamicEntry) nslots() int       { return 1 }
func (*InvokeDynamicEntry) nslots() int { return 1 }
func (*ModuleEntry) nslots() int        { return 1 }
func (*PackageEntry) nslots() int       { return 1 }

// ConstantPool is indexed 1..N where N is the declared count minus one.
// Long and Double entries leave a nil hole in the following slot.
type ConstantPool struct {
	entries []PoolEntry
}

func ReadConstantPool(s *Stream) (*ConstantPool, error) {
	count, err := s.ReadU16()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, formatError("constant pool count cannot be 0")
	}
	count--

	cp := &ConstantPool{}
	for i := 0; i < int(count); {
		entry, err := readPoolEntry(s)
		if err != nil {
			return nil, err
		}
		cp.entries = append(cp.entries, entry)
		if entry.nslots() == 2 {
			cp.entries = append(cp.entries, nil)
		}
		i += entry.nslots()
	}
	return cp, nil
}

func readPoolEntry(s *Stream) (PoolEntry, error) {
	tag, err := s.ReadU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagUTF8:
		length, err := s.ReadU16()
		if err != nil {
			return nil, err
		}
		b, err := s.ReadBytes(int(length))
		if err != nil {
			return nil, err
		}
		return &UTF8{Str: string(b)}, nil
	case tagInteger:
		v, err := s.ReadS32()
		return &IntegerEntry{Value: v}, err
	case tagFloat:
		v, err := s.ReadU32()
		return &FloatEntry{Bits: v}, err
	case tagLong:
		v, err := s.ReadS64()
		return &LongEntry{Value: v}, err
	case tagDouble:
		v, err := s.ReadU64()
		return &DoubleEntry{Bits: v}, err
	case tagClassRef:
		v, err := s.ReadU16()
		return &ClassRef{Index: v}, err
	case tagStringRef:
		v, err := s.ReadU16()
		return &StringRef{Index: v}, err
	case tagFieldRef, tagMethodRef, tagInterfaceMethodRef:
		classRef, err := s.ReadU16()
		if err != nil {
			return nil, err
		}
		nameType, err := s.ReadU16()
		if err != nil {
			return nil, err
		}
		return &MemberRef{Tag: tag, ClassRefIndex: classRef, NameTypeIndex: nameType}, nil
	case tagNameAndType:
		nameIndex, err := s.ReadU16()
		if err != nil {
			return nil, err
		}
		descIndex, err := s.ReadU16()
		if err != nil {
			return nil, err
		}
		return &NameAndType{NameIndex: nameIndex, DescIndex: descIndex}, nil
	case tagMethodHandle:
		typeDesc, err := s.ReadU8()
		if err != nil {
			return nil, err
		}
		index, err := s.ReadU16()
		if err != nil {
			return nil, err
		}
		return &MethodHandle{TypeDesc: typeDesc, Index: index}, nil
	case tagMethodType:
		v, err := s.ReadU16()
		return &MethodType{Index: v}, err
	case tagDynamic:
		v, err := s.ReadU32()
		return &DynamicEntry{Value: v}, err
	case tagInvokeDynamic:
		v, err := s.ReadU16()
		return &InvokeDynamicEntry{Value: v}, err
	case tagModule:
		v, err := s.ReadU16()
		return &ModuleEntry{Index: v}, err
	case tagPackage:
		v, err := s.ReadU16()
		return &PackageEntry{Index: v}, err
	default:
		return nil, formatError("unknown constant pool entry tag: %d", tag)
	}
}

// Entry returns the entry at the given 1-based index.
func (cp *ConstantPool) Entry(i uint16) (PoolEntry, error) {
	if i == 0 || int(i) > len(cp.entries) {
		return nil, formatError("invalid constant pool index: %d", i)
	}
	entry := cp.entries[i-1]
	if entry == nil {
		return nil, formatError("invalid constant pool index: %d", i)
	}
	return entry, nil
}

// UTF8 returns the string at the given index, which must be a UTF8
// entry.
func (cp *ConstantPool) UTF8(i uint16) (string, error) {
	entry, err := cp.Entry(i)
	if err != nil {
		return "", err
	}
	utf8, ok := entry.(*UTF8)
	if !ok {
		return "", formatError("constant pool entry %d is not UTF8", i)
	}
	return utf8.Str, nil
}

// NameAndType returns the entry at the given index, which must be a
// NameAndType entry.
func (cp *ConstantPool) NameAndType(i uint16) (*NameAndType, error) {
	entry, err := cp.Entry(i)
	if err != nil {
		return nil, err
	}
	nt, ok := entry.(*NameAndType)
	if !ok {
		return nil, formatError("constant pool entry %d is not NameAndType", i)
	}
	return nt, nil
}

// MethodRef returns the entry at the given index, which must be one of
// the method reference entries.
func (cp *ConstantPool) MethodRef(i uint16) (*MemberRef, error) {
	entry, err := cp.Entry(i)
	if err != nil {
		return nil, err
	}
	ref, ok := entry.(*MemberRef)
	if !ok || !ref.IsMethodRef() {
		return nil, formatError("expected method entry in constant pool at index %d", i)
	}
	return ref, nil
}
