package bindgen

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"modernc.org/cc/v4"
)

// translation is what the C frontend extracts from a header set: the
// declarations and constant macros of files under the include directory,
// and those files in the order they were first opened.
type translation struct {
	decls  []*decl
	macros []*macro
	files  []string
}

// openFS opens files from the host file system and records the order in
// which they are first opened.
type openFS struct {
	seen  map[string]bool
	order []string
}

func (o *openFS) Open(name string) (fs.File, error) {
	name = filepath.FromSlash(name)
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	if !o.seen[name] {
		o.seen[name] = true
		o.order = append(o.order, name)
	}
	return f, nil
}

// translate preprocesses, parses and type checks the headers as one
// translation unit. The host C compiler ($CC, cc or gcc) supplies the
// predefined target macros and system include paths. hs must hold absolute
// paths.
func translate(hs HeaderSet) (*translation, error) {
	cfg, err := cc.NewConfig("", "")
	if err != nil {
		return nil, &BindingGenerationError{Path: hs.IncludeDir, Err: fmt.Errorf("C frontend: %w", err)}
	}
	cfg.Header = true
	cfg.IncludePaths = append([]string{"", hs.IncludeDir}, cfg.IncludePaths[1:]...)
	cfg.SysIncludePaths = append([]string{hs.IncludeDir}, cfg.SysIncludePaths...)
	ofs := &openFS{seen: make(map[string]bool)}
	cfg.FS = ofs

	sources := []cc.Source{
		{Name: "<predefined>", Value: cfg.Predefined},
		{Name: "<builtin>", Value: cc.Builtin},
	}
	for _, h := range hs.Headers {
		sources = append(sources, cc.Source{Name: h})
	}
	ast, err := cc.Translate(cfg, sources)
	if err != nil {
		return nil, translateError(hs, err)
	}

	tr := &translation{}
	local := func(file string) bool {
		return strings.HasPrefix(file, hs.IncludeDir+string(filepath.Separator))
	}
	for _, f := range ofs.order {
		if local(f) {
			tr.files = append(tr.files, f)
		}
	}
	for l := ast.TranslationUnit; l != nil; l = l.TranslationUnit {
		ed := l.ExternalDeclaration
		switch ed.Case {
		case cc.ExternalDeclarationDecl:
			tr.declaration(ed.Declaration, local)
		case cc.ExternalDeclarationFuncDef:
			fd := ed.FunctionDefinition
			if d := function(fd.Declarator); d != nil && local(d.File) {
				d.Inline = fd.Declarator.IsInline()
				tr.decls = append(tr.decls, d)
			}
		}
	}

	for _, m := range ast.Macros {
		pos := m.Position()
		if m.IsFnLike || !local(pos.Filename) || !constantMacro(m) {
			continue
		}
		tr.macros = append(tr.macros, &macro{Name: m.Name.SrcStr(), File: pos.Filename, Line: pos.Line})
	}
	sort.Slice(tr.macros, func(i, j int) bool {
		a, b := tr.macros[i], tr.macros[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
	return tr, nil
}

func (tr *translation) declaration(n *cc.Declaration, local func(string) bool) {
	if n.Case != cc.DeclarationDecl {
		return
	}
	var typedefName string
	for l := n.InitDeclaratorList; l != nil; l = l.InitDeclaratorList {
		d := l.InitDeclarator.Declarator
		if d.IsTypename() && typedefName == "" {
			typedefName = d.Name()
		}
	}
	if e := enumDefinition(n.DeclarationSpecifiers, typedefName); e != nil && local(e.File) {
		tr.decls = append(tr.decls, e)
	}
	for l := n.InitDeclaratorList; l != nil; l = l.InitDeclaratorList {
		d := l.InitDeclarator.Declarator
		var out *decl
		switch {
		case d.IsTypename():
			out = typedef(d)
		case d.Type().Kind() == cc.Function:
			out = function(d)
		}
		if out != nil && local(out.File) {
			tr.decls = append(tr.decls, out)
		}
	}
}

// enumDefinition returns the enum defined by the specifiers, if any. An
// anonymous enum takes the name of the typedef declaring it.
func enumDefinition(ds *cc.DeclarationSpecifiers, typedefName string) *decl {
	for ; ds != nil; ds = ds.DeclarationSpecifiers {
		if ds.Case != cc.DeclarationSpecifiersTypeSpec || ds.TypeSpecifier.Case != cc.TypeSpecifierEnum {
			continue
		}
		es := ds.TypeSpecifier.EnumSpecifier
		if es.Case != cc.EnumSpecifierDef {
			return nil
		}
		pos := es.Token.Position()
		d := &decl{Kind: declEnum, Name: es.Token2.SrcStr(), File: pos.Filename, Line: pos.Line}
		if d.Name == "" {
			d.Name = typedefName
		}
		for l := es.EnumeratorList; l != nil; l = l.EnumeratorList {
			tok := l.Enumerator.Token
			d.Enumerators = append(d.Enumerators, enumerator{Name: tok.SrcStr(), Line: tok.Position().Line})
		}
		return d
	}
	return nil
}

func typedef(d *cc.Declarator) *decl {
	pos := d.NameTok().Position()
	t := convertType(d.Type(), d)
	if t.Func != nil && t.Ptr == 0 && !t.Array && t.Unsupported == "" {
		t.Unsupported = "function type"
	}
	return &decl{Kind: declTypedef, Name: d.Name(), File: pos.Filename, Line: pos.Line, Type: t}
}

func function(d *cc.Declarator) *decl {
	ft, ok := d.Type().(*cc.FunctionType)
	if !ok {
		return nil
	}
	pos := d.NameTok().Position()
	return &decl{Kind: declFunc, Name: d.Name(), File: pos.Filename, Line: pos.Line, Func: signature(ft)}
}

func signature(ft *cc.FunctionType) *funcSig {
	sig := &funcSig{Result: convertType(ft.Result(), nil), Variadic: ft.IsVariadic()}
	ps := ft.Parameters()
	if len(ps) == 1 && ps[0].Type().Kind() == cc.Void {
		ps = nil
	}
	for _, p := range ps {
		name := ""
		if p.Declarator != nil {
			name = p.Declarator.Name()
		}
		sig.Params = append(sig.Params, param{Name: name, Type: convertType(p.Type(), nil)})
	}
	return sig
}

var basicNames = map[cc.Kind]string{
	cc.Bool:          "bool",
	cc.Char:          "char",
	cc.SChar:         "schar",
	cc.UChar:         "uchar",
	cc.Short:         "short",
	cc.UShort:        "ushort",
	cc.Int:           "int",
	cc.UInt:          "uint",
	cc.Long:          "long",
	cc.ULong:         "ulong",
	cc.LongLong:      "longlong",
	cc.ULongLong:     "ulonglong",
	cc.Float:         "float",
	cc.Double:        "double",
	cc.ComplexFloat:  "complexfloat",
	cc.ComplexDouble: "complexdouble",
}

var unsupportedKinds = map[cc.Kind]string{
	cc.LongDouble:        "long double",
	cc.ComplexLongDouble: "long double _Complex",
	cc.Int128:            "__int128",
	cc.UInt128:           "unsigned __int128",
	cc.Float16:           "_Float16",
	cc.Float128:          "_Float128",
}

// convertType folds pointer and array levels into a cType. A typedef name
// other than self stops the descent, so aliases stay spelled by name.
func convertType(t cc.Type, self *cc.Declarator) cType {
	var ct cType
	for {
		if td := t.Typedef(); td != nil && td != self {
			switch name := td.Name(); name {
			case "va_list", "__builtin_va_list", "__gnuc_va_list":
				ct.Unsupported = "va_list"
			default:
				ct.Base, ct.Name = baseNamed, name
			}
			return ct
		}
		switch x := t.(type) {
		case *cc.PointerType:
			ct.Ptr++
			t = x.Elem()
			continue
		case *cc.ArrayType:
			if ct.Array {
				ct.Ptr++
			}
			ct.Array = true
			t = x.Elem()
			continue
		case *cc.FunctionType:
			ct.Func = signature(x)
		case *cc.StructType:
			tag := x.Tag()
			ct.Base, ct.Name = baseStruct, tag.SrcStr()
		case *cc.UnionType:
			tag := x.Tag()
			ct.Base, ct.Name = baseUnion, tag.SrcStr()
		case *cc.EnumType:
			tag := x.Tag()
			ct.Base, ct.Name = baseEnum, tag.SrcStr()
		default:
			k := t.Kind()
			if k == cc.Void {
				ct.Base = baseVoid
			} else if name, ok := basicNames[k]; ok {
				ct.Base, ct.Name = baseBasic, name
			} else if reason, ok := unsupportedKinds[k]; ok {
				ct.Unsupported = reason
			} else {
				ct.Unsupported = t.String()
			}
		}
		return ct
	}
}

// constantMacro reports whether an object-like macro expands to a literal
// cgo can evaluate: a string, or an integer or float with optional sign
// and parentheses.
func constantMacro(m *cc.Macro) bool {
	body := m.ReplacementList()
	if len(body) == 1 && body[0].Ch == rune(cc.STRINGLITERAL) {
		return true
	}
	numbers := 0
	for _, t := range body {
		switch t.Ch {
		case rune(cc.PPNUMBER), rune(cc.INTCONST), rune(cc.FLOATCONST):
			numbers++
		case '(', ')', '-', '+', '~':
		default:
			return false
		}
	}
	return numbers == 1
}

var errPosition = regexp.MustCompile(`^(.+?):(\d+):(\d+): (.*)$`)

// translateError reports the first diagnostic of err at its position.
func translateError(hs HeaderSet, err error) error {
	first, _, _ := strings.Cut(err.Error(), "\n")
	if m := errPosition.FindStringSubmatch(first); m != nil {
		line, _ := strconv.Atoi(m[2])
		return &BindingGenerationError{Path: m[1], Line: line, Err: errors.New(m[4])}
	}
	return &BindingGenerationError{Path: hs.IncludeDir, Err: err}
}
