package natives

import (
	"fmt"
	"runtime"
)

// Type describes one parameter or return slot of a declared native
// function. Values are passed to the native side as stack words, so only
// integer- and pointer-class types are representable here.
type Type uint8

const (
	TypeVoid Type = iota
	TypeBool
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeUintptr
	TypePointer
)

var typeNames = map[Type]string{
	TypeVoid:    "void",
	TypeBool:    "bool",
	TypeInt32:   "int32",
	TypeUint32:  "uint32",
	TypeInt64:   "int64",
	TypeUint64:  "uint64",
	TypeUintptr: "uintptr",
	TypePointer: "pointer",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType parses a type name as used in declaration manifests.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return TypeVoid, fmt.Errorf("unknown native type %q", s)
}

// Signature is the marshaling descriptor of a declared function.
type Signature struct {
	Params []Type
	Ret    Type
}

// Sig builds a Signature from parameter types and a return type.
func Sig(ret Type, params ...Type) Signature {
	return Signature{Params: params, Ret: ret}
}

// Decl describes one native function a redirected call site expects to
// invoke. Decls are supplied externally at initialization and never
// mutated. (Library, Function) keys must be unique for the registry to be
// well-formed.
type Decl struct {
	// Library is the logical library name as written at the call site,
	// e.g. "mathlib", not a filename.
	Library string

	// Function is the exported symbol name.
	Function string

	Sig Signature
}

// Key returns the registry key "library!function".
func (d Decl) Key() string { return d.Library + "!" + d.Function }

// PlatformFilename converts a logical library name into the platform's
// shared-library filename, e.g. "mathlib" into "libmathlib.so".
func PlatformFilename(name string) string {
	return platformFilenameFor(name, runtime.GOOS)
}

func platformFilenameFor(name, goos string) string {
	switch goos {
	case "darwin":
		return "lib" + name + ".dylib"
	case "windows":
		return name + ".dll"
	default:
		return "lib" + name + ".so"
	}
}
