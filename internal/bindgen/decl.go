package bindgen

type baseKind int

const (
	baseVoid baseKind = iota
	baseBasic
	baseNamed
	baseStruct
	baseUnion
	baseEnum
)

// cType is a C type as written in a declaration, after pointer and array
// declarators are folded in.
type cType struct {
	Base  baseKind
	Name  string
	Ptr   int
	Array bool
	Func  *funcSig
	// Unsupported carries why the type has no cgo spelling.
	Unsupported string
}

type param struct {
	Name string
	Type cType
}

type funcSig struct {
	Result   cType
	Params   []param
	Variadic bool
}

type declKind int

const (
	declTypedef declKind = iota
	declTag
	declEnum
	declFunc
)

type enumerator struct {
	Name string
	Line int
}

type decl struct {
	Kind        declKind
	Name        string
	File        string
	Line        int
	Type        cType
	Func        *funcSig
	Inline      bool
	Enumerators []enumerator
}

// macro is an object-like macro whose body is a literal constant.
type macro struct {
	Name string
	File string
	Line int
}
