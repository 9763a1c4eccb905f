package natives

import "testing"

func TestParseType_RoundTrip(t *testing.T) {
	for _, name := range []string{"void", "bool", "int32", "uint32", "int64", "uint64", "uintptr", "pointer"} {
		typ, err := ParseType(name)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", name, err)
		}
		if typ.String() != name {
			t.Errorf("ParseType(%q).String() = %q", name, typ.String())
		}
	}
	if _, err := ParseType("float64"); err == nil {
		t.Error("float64 is not representable as a stack word and must be rejected")
	}
}

func TestDecl_Key(t *testing.T) {
	d := Decl{Library: "mathlib", Function: "add"}
	if d.Key() != "mathlib!add" {
		t.Errorf("Key() = %q", d.Key())
	}
}
