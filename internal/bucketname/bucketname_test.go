package bucketname

import "testing"

func TestParse(t *testing.T) {
	const addr = "0xe1209fb9aa2d08c8541297ec06ee6bbb63b10edc"

	name, err := Parse(addr + ".foo.bar")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := name.Alias(); got != "foo.bar" {
		t.Errorf("Alias() = %q, want %q", got, "foo.bar")
	}
	if got := name.Owner().String(); got != addr {
		t.Errorf("Owner().String() = %q, want %q", got, addr)
	}
}

func TestParseBareAddressRejected(t *testing.T) {
	const addr = "0xe1209fb9aa2d08c8541297ec06ee6bbb63b10edc"
	if _, err := Parse(addr); err == nil {
		t.Fatal("Parse of a bare address with no alias should fail")
	}
}

func TestParseEmptyAliasRejected(t *testing.T) {
	const addr = "0xe1209fb9aa2d08c8541297ec06ee6bbb63b10edc"
	if _, err := Parse(addr + "."); err == nil {
		t.Fatal("Parse with an empty alias should fail")
	}
}

func TestCheckAlias(t *testing.T) {
	cases := []struct {
		alias string
		want  bool
	}{
		{"abc", true},
		{"ab", false},               // too short
		{"a23456789012345678901", false}, // 21 bytes, too long
		{"foo.bar", true},
		{"foo..bar", false},
		{"-foo", false},
		{"foo-", false},
		{"Foo", false},
		{"foo_bar", false},
	}
	for _, c := range cases {
		err := CheckAlias(c.alias)
		if (err == nil) != c.want {
			t.Errorf("CheckAlias(%q) err=%v, want valid=%v", c.alias, err, c.want)
		}
	}
}
