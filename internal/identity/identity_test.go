package identity

import "testing"

func TestParseSingle(t *testing.T) {
	m, err := ParseSingle("1000,1000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.Kind != Single {
		t.Errorf("Kind = %v, want Single", m.Kind)
	}

	if m.InsideUID != 1000 || m.InsideGID != 1000 {
		t.Errorf("inside uid/gid = %d/%d, want 1000/1000", m.InsideUID, m.InsideGID)
	}
}

func TestParseSingle_invalid(t *testing.T) {
	cases := []string{"", "1000", "abc,def", "1000,1000,1000"}

	for _, in := range cases {
		if _, err := ParseSingle(in); err == nil {
			t.Errorf("ParseSingle(%q): expected error, got nil", in)
		}
	}
}

func TestParseRange(t *testing.T) {
	m, err := ParseRange("100000,65536,100000,65536")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.Kind != Range {
		t.Errorf("Kind = %v, want Range", m.Kind)
	}

	if m.OutsideFirstUID != 100000 || m.UIDLen != 65536 {
		t.Errorf("uid range = %d/%d, want 100000/65536", m.OutsideFirstUID, m.UIDLen)
	}
}

func TestParseRange_rejectsZeroLength(t *testing.T) {
	if _, err := ParseRange("100000,0,100000,65536"); err == nil {
		t.Error("expected error for zero-length uid range")
	}

	if _, err := ParseRange("100000,65536,100000,0"); err == nil {
		t.Error("expected error for zero-length gid range")
	}
}

func TestParseRange_rejectsWraparound(t *testing.T) {
	_, err := ParseRange("4294967290,100,0,1")
	if err == nil {
		t.Error("expected error for wrapping uid range")
	}
}
