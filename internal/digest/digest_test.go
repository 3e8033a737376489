package digest

import (
	"io"
	"strings"
	"testing"
)

func TestObjectETag(t *testing.T) {
	body := "hello world\n你好世界\n"
	r := NewReader(strings.NewReader(body))
	if _, err := io.Copy(io.Discard, r); err != nil {
		t.Fatalf("drain: %v", err)
	}
	got := ObjectETag(r.Sum())
	want := `"4a944a9af55168f2e2063907c421b061"`
	if got != want {
		t.Errorf("ObjectETag = %s, want %s", got, want)
	}
}

func TestCompositeSinglePart(t *testing.T) {
	// A 50-byte body uploaded as a single part.
	body := "abcdefghijklmnopqrstuvwxyz/0123456789/!@#$%^&*();\n"
	r := NewReader(strings.NewReader(body))
	if _, err := io.Copy(io.Discard, r); err != nil {
		t.Fatalf("drain: %v", err)
	}

	c := NewComposite()
	c.AddPart(r.Sum())
	got := c.ETag()
	want := `"af77e80818f1ff6fa731c8877e8b52ec-1"`
	if got != want {
		t.Errorf("Composite.ETag = %s, want %s", got, want)
	}
}
