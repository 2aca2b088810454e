// Completion: 100% - Class file stream reader complete
package main

import "errors"

// Stream reads big-endian scalars from a class file.
type Stream struct {
	data []byte
	pos  int
}

var errUnexpectedEOF = errors.New("unexpected EOF")

func NewStream(data []byte) *Stream {
	return &Stream{data: data}
}

// Remaining reports how many bytes are left unread.
func (s *Stream) Remaining() int {
	return len(s.data) - s.pos
}

func (s *Stream) ReadU8() (uint8, error) {
	if s.pos >= len(s.data) {
		return 0, errUnexpectedEOF
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

func (s *Stream) ReadU16() (uint16, error) {
	var result uint16
	for i := 0; i < 2; i++ {
		b, err := s.ReadU8()
		if err != nil {
			return 0, err
		}
		result = result<<8 | uint16(b)
	}
	return result, nil
}

func (s *Stream) ReadU32() (uint32, error) {
	var result uint32
	for i := 0; i < 4; i++ {
		b, err := s.ReadU8()
		if err != nil {
			return 0, err
		}
		result = result<<8 | uint32(b)
	}
	return result, nil
}

func (s *Stream) ReadU64() (uint64, error) {
	var result uint64
	for i := 0; i < 8; i++ {
		b, err := s.ReadU8()
		if err != nil {
			return 0, err
		}
		result = result<<8 | uint64(b)
	}
	return result, nil
}

func (s *Stream) ReadS32() (int32, error) {
	v, err := s.ReadU32()
	return int32(v), err
}

func (s *Stream) ReadS64() (int64, error) {
	v, err := s.ReadU64()
	return int64(v), err
}

// ReadBytes reads exactly n bytes.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	if s.Remaining() < n {
		return nil, errUnexpectedEOF
	}
	b := s.data[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

// Skip discards n bytes.
func (s *Stream) Skip(n int) error {
	if s.Remaining() < n {
		return errUnexpectedEOF
	}
	s.pos += n
	return nil
}
