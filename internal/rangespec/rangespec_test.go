package rangespec

import "testing"

func TestOffsetsTable(t *testing.T) {
	const size = 10

	cases := []struct {
		header       string
		offset, len_ uint64
	}{
		{"bytes=0-", 0, 10},
		{"bytes=1-", 1, 9},
		{"bytes=0-9", 0, 10},
		{"bytes=1-10", 1, 9},
		{"bytes=1-1", 1, 1},
		{"bytes=2-5", 2, 4},
		{"bytes=-5", 5, 5},
		{"bytes=-1", 9, 1},
		{"bytes=-1000", 0, 10},
	}

	for _, c := range cases {
		spec, err := Parse(c.header)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.header, err)
		}
		offset, length, err := spec.Offsets(size)
		if err != nil {
			t.Fatalf("Offsets(%q): %v", c.header, err)
		}
		if offset != c.offset || length != c.len_ {
			t.Errorf("Offsets(%q) = (%d,%d), want (%d,%d)", c.header, offset, length, c.offset, c.len_)
		}
	}
}

func TestBackendParam(t *testing.T) {
	cases := []struct{ header, want string }{
		{"bytes=0-", "0-"},
		{"bytes=2-5", "2-5"},
		{"bytes=-5", "-5"},
	}
	for _, c := range cases {
		spec, err := Parse(c.header)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.header, err)
		}
		if got := spec.BackendParam(); got != c.want {
			t.Errorf("BackendParam(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}

func TestContentRangeHeader(t *testing.T) {
	got := ContentRangeHeader(2, 4, 10)
	want := "bytes 2-5/10"
	if got != want {
		t.Errorf("ContentRangeHeader = %q, want %q", got, want)
	}
}

func TestInvalidRange(t *testing.T) {
	if _, err := Parse("bytes=0-1,2-3"); err == nil {
		t.Fatal("multi-range request should be rejected")
	}
	if _, err := Parse("items=0-1"); err == nil {
		t.Fatal("non-bytes unit should be rejected")
	}

	spec, err := Parse("bytes=20-")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, _, err := spec.Offsets(10); err == nil {
		t.Fatal("start past end of object should be rejected")
	}

	spec, err = Parse("bytes=20-25")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, _, err := spec.Offsets(10); err == nil {
		t.Fatal("two-sided range starting past end of object should be rejected")
	}
}
