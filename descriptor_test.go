package main

import "testing"

func TestParseMethodDescriptor(t *testing.T) {
	tests := []struct {
		sig     string
		nargs   int
		nreturn int
		rtype   byte
	}{
		{"()V", 0, 0, 'V'},
		{"(I)V", 1, 0, 'V'},
		{"(C)V", 1, 0, 'V'},
		{"(II)I", 2, 1, 'I'},
		{"(IC)Z", 2, 1, 'Z'},
		{"(I)B", 1, 1, 'B'},
		{"(I)S", 1, 1, 'S'},
		{"(III)C", 3, 1, 'C'},
		{"([Ljava/lang/String;)V", 0, 0, 'V'},
	}
	for _, tt := range tests {
		desc, err := ParseMethodDescriptor(tt.sig)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.sig, err)
			continue
		}
		if desc.NArgs() != tt.nargs {
			t.Errorf("%q: NArgs = %d, want %d", tt.sig, desc.NArgs(), tt.nargs)
		}
		if desc.NReturn() != tt.nreturn {
			t.Errorf("%q: NReturn = %d, want %d", tt.sig, desc.NReturn(), tt.nreturn)
		}
		if desc.RType != tt.rtype {
			t.Errorf("%q: RType = %c, want %c", tt.sig, desc.RType, tt.rtype)
		}
	}
}

func TestParseMethodDescriptorRejects(t *testing.T) {
	bad := []string{
		"",
		"()",
		"I",
		"(D)V",  // double argument
		"(J)V",  // long argument
		"(I)D",  // double return
		"(I)VX", // trailing junk
		"(Ljava/lang/Object;)V",
		"(I",
	}
	for _, sig := range bad {
		if _, err := ParseMethodDescriptor(sig); err == nil {
			t.Errorf("%q: expected an error", sig)
		}
	}
}
