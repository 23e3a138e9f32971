package bindgen

import (
	"bytes"
	"fmt"
	gotoken "go/token"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

type emitter struct {
	g     *Generator
	hs    HeaderSet
	files []string

	used     map[string]bool
	seenC    map[string]bool
	typedefs map[string]string
	badTypes map[string]string

	unsafe  bool
	types   int
	consts  int
	funcs   int
	skipped []string
}

func newEmitter(g *Generator, hs HeaderSet, files []string) *emitter {
	return &emitter{
		g:        g,
		hs:       hs,
		files:    files,
		used:     map[string]bool{"C": true},
		seenC:    make(map[string]bool),
		typedefs: make(map[string]string),
		badTypes: make(map[string]string),
	}
}

func (e *emitter) pkg() string {
	if e.g.Package == "" {
		return "mlx"
	}
	return e.g.Package
}

type item struct {
	file  string
	line  int
	write func(b *bytes.Buffer)
}

func (e *emitter) emit(decls []*decl, macros []*macro) ([]byte, error) {
	var items []item
	for _, d := range decls {
		if it, ok := e.decl(d); ok {
			items = append(items, it)
		}
	}
	for _, m := range macros {
		if it, ok := e.macro(m); ok {
			items = append(items, it)
		}
	}
	order := make(map[string]int, len(e.files))
	for i, f := range e.files {
		order[f] = i
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.file != b.file {
			return order[a.file] < order[b.file]
		}
		return a.line < b.line
	})

	var body bytes.Buffer
	section := ""
	for _, it := range items {
		if it.file != section {
			section = it.file
			fmt.Fprintf(&body, "\n// %s\n", e.hs.includeName(section))
		}
		body.WriteByte('\n')
		it.write(&body)
	}
	if len(e.skipped) > 0 {
		body.WriteString("\n// Declarations without a cgo form, not wrapped:\n//\n")
		for _, s := range e.skipped {
			fmt.Fprintf(&body, "//\t%s\n", s)
		}
	}

	var b bytes.Buffer
	names := make([]string, len(e.hs.Headers))
	for i, h := range e.hs.Headers {
		names[i] = e.hs.includeName(h)
	}
	fmt.Fprintf(&b, "// Code generated by mlxsys bindgen from %s. DO NOT EDIT.\n\n", strings.Join(names, ", "))
	if e.g.BuildConstraint != "" {
		fmt.Fprintf(&b, "//go:build %s\n\n", e.g.BuildConstraint)
	}
	fmt.Fprintf(&b, "package %s\n\n", e.pkg())
	b.WriteString("/*\n")
	inc := e.hs.IncludeDir
	if abs, err := filepath.Abs(inc); err == nil {
		inc = abs
	}
	fmt.Fprintf(&b, "#cgo CFLAGS: %s\n", cgoQuote("-I"+inc))
	for _, n := range names {
		fmt.Fprintf(&b, "#include \"%s\"\n", n)
	}
	b.WriteString("*/\nimport \"C\"\n")
	if e.unsafe {
		b.WriteString("\nimport \"unsafe\"\n")
	}
	b.Write(body.Bytes())
	return b.Bytes(), nil
}

func (e *emitter) skip(name, file string, line int, reason string) {
	e.skipped = append(e.skipped, fmt.Sprintf("%s (%s:%d): %s", name, e.hs.includeName(file), line, reason))
}

func (e *emitter) decl(d *decl) (item, bool) {
	switch d.Kind {
	case declTypedef:
		return e.typedef(d)
	case declEnum:
		return e.enum(d)
	case declFunc:
		return e.function(d)
	}
	return item{}, false
}

func (e *emitter) typedef(d *decl) (item, bool) {
	if e.seenC[d.Name] {
		return item{}, false
	}
	e.seenC[d.Name] = true
	t := d.Type
	if t.Unsupported == "" && t.Base == baseNamed && t.Ptr == 0 && !t.Array && t.Func == nil {
		if reason, bad := e.badTypes[t.Name]; bad {
			t.Unsupported = reason
		}
	}
	if t.Unsupported != "" {
		e.badTypes[d.Name] = t.Unsupported
		e.skip(d.Name, d.File, d.Line, t.Unsupported)
		return item{}, false
	}
	name := e.name(d.Name, "Type")
	e.typedefs[d.Name] = name
	e.types++
	return item{file: d.File, line: d.Line, write: func(b *bytes.Buffer) {
		fmt.Fprintf(b, "type %s = C.%s\n", name, d.Name)
	}}, true
}

func (e *emitter) enum(d *decl) (item, bool) {
	type pair struct{ goName, cName string }
	var consts []pair
	for _, en := range d.Enumerators {
		if e.seenC[en.Name] {
			continue
		}
		e.seenC[en.Name] = true
		consts = append(consts, pair{e.name(en.Name, "Const"), en.Name})
	}
	if len(consts) == 0 {
		return item{}, false
	}
	e.consts += len(consts)
	return item{file: d.File, line: d.Line, write: func(b *bytes.Buffer) {
		if d.Name != "" {
			fmt.Fprintf(b, "// %s\n", d.Name)
		}
		b.WriteString("const (\n")
		for _, c := range consts {
			fmt.Fprintf(b, "\t%s = C.%s\n", c.goName, c.cName)
		}
		b.WriteString(")\n")
	}}, true
}

func (e *emitter) macro(m *macro) (item, bool) {
	if strings.HasPrefix(m.Name, "_") || e.seenC[m.Name] {
		return item{}, false
	}
	e.seenC[m.Name] = true
	name := e.name(m.Name, "Const")
	e.consts++
	return item{file: m.File, line: m.Line, write: func(b *bytes.Buffer) {
		fmt.Fprintf(b, "const %s = C.%s\n", name, m.Name)
	}}, true
}

func (e *emitter) function(d *decl) (item, bool) {
	if e.seenC[d.Name] {
		return item{}, false
	}
	e.seenC[d.Name] = true
	sig := d.Func
	if sig.Variadic {
		e.skip(d.Name, d.File, d.Line, "variadic")
		return item{}, false
	}
	result, reason := e.goType(sig.Result)
	if reason != "" {
		e.skip(d.Name, d.File, d.Line, "result type "+reason)
		return item{}, false
	}
	names := paramNames(sig.Params)
	params := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		typ, reason := e.goType(p.Type)
		if reason == "" && typ == "" {
			reason = "void parameter"
		}
		if reason != "" {
			e.skip(d.Name, d.File, d.Line, fmt.Sprintf("parameter %d type %s", i, reason))
			return item{}, false
		}
		params[i] = names[i] + " " + typ
	}
	name := e.name(d.Name, "Func")
	e.funcs++
	if strings.Contains(result+strings.Join(params, ","), "unsafe.") {
		e.unsafe = true
	}
	return item{file: d.File, line: d.Line, write: func(b *bytes.Buffer) {
		fmt.Fprintf(b, "// %s calls %s.\n", name, d.Name)
		fmt.Fprintf(b, "func %s(%s) %s {\n", name, strings.Join(params, ", "), result)
		call := fmt.Sprintf("C.%s(%s)", d.Name, strings.Join(names, ", "))
		if result == "" {
			fmt.Fprintf(b, "\t%s\n}\n", call)
		} else {
			fmt.Fprintf(b, "\treturn %s\n}\n", call)
		}
	}}, true
}

// goType spells t for use in a Go signature. An empty string with no
// reason is the void result.
func (e *emitter) goType(t cType) (string, string) {
	if t.Unsupported != "" {
		return "", t.Unsupported
	}
	stars := t.Ptr
	if t.Array {
		stars++
	}
	var base string
	switch {
	case t.Func != nil:
		if stars == 0 {
			return "", "function type"
		}
		stars--
		base = "*[0]byte"
	case t.Base == baseVoid:
		if stars == 0 {
			return "", ""
		}
		stars--
		base = "unsafe.Pointer"
	case t.Base == baseBasic:
		base = "C." + t.Name
	case t.Base == baseNamed:
		if reason, bad := e.badTypes[t.Name]; bad {
			return "", reason
		}
		if alias, ok := e.typedefs[t.Name]; ok {
			base = alias
		} else {
			base = "C." + t.Name
		}
	case t.Name == "":
		return "", "anonymous aggregate"
	case t.Base == baseStruct:
		base = "C.struct_" + t.Name
	case t.Base == baseUnion:
		base = "C.union_" + t.Name
	case t.Base == baseEnum:
		base = "C.enum_" + t.Name
	}
	return strings.Repeat("*", stars) + base, ""
}

// name derives a unique exported Go name from a C name. On collision the
// kind suffix is appended, then a counter.
func (e *emitter) name(c, kind string) string {
	n := goName(c, e.g.prefixes())
	if e.used[n] {
		n += kind
		for i := 2; e.used[n]; i++ {
			n = fmt.Sprintf("%s%s%d", goName(c, e.g.prefixes()), kind, i)
		}
	}
	e.used[n] = true
	return n
}

func (g *Generator) prefixes() []string {
	if g.Prefixes == nil {
		return DefaultPrefixes
	}
	return g.Prefixes
}

// goName converts a snake_case C name to an exported CamelCase Go name.
// All-caps words are lowered first, so MLX_FLOAT32 becomes Float32.
func goName(c string, prefixes []string) string {
	s := strings.TrimLeft(c, "_")
	for _, p := range prefixes {
		if len(s) > len(p) && strings.EqualFold(s[:len(p)], p) {
			s = s[len(p):]
			break
		}
	}
	var b strings.Builder
	for _, part := range strings.Split(s, "_") {
		if part == "" {
			continue
		}
		if strings.ToUpper(part) == part {
			part = strings.ToLower(part)
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	n := b.String()
	if n == "" || !unicode.IsLetter(rune(n[0])) {
		n = "X" + n
	}
	return n
}

// paramNames makes C parameter names usable in Go: unnamed parameters get
// positional names, and keywords or names shadowing C and unsafe get a
// trailing underscore.
func paramNames(ps []param) []string {
	used := make(map[string]bool, len(ps))
	names := make([]string, len(ps))
	for i, p := range ps {
		n := p.Name
		if n == "" {
			n = fmt.Sprintf("p%d", i)
		}
		if gotoken.IsKeyword(n) || n == "C" || n == "unsafe" {
			n += "_"
		}
		for used[n] {
			n += "_"
		}
		used[n] = true
		names[i] = n
	}
	return names
}

func cgoQuote(flag string) string {
	if strings.ContainsAny(flag, " \t'\"") {
		return "'" + strings.ReplaceAll(flag, "'", `'"'"'`) + "'"
	}
	return flag
}
