package link

import (
	"bytes"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/goplus/mlxsys/internal/config"
	"github.com/goplus/mlxsys/internal/nativebuild"
)

var testLayout = nativebuild.Layout("/out", ".")

func count(ds []Directive, want Directive) int {
	n := 0
	for _, d := range ds {
		if d == want {
			n++
		}
	}
	return n
}

func TestEmitUnconditional(t *testing.T) {
	got := Emit(config.BuildConfiguration{}, testLayout)
	want := []Directive{
		{SearchPath, testLayout.LibDir},
		{StaticLib, "mlx"},
		{StaticLib, "mlxc"},
		{DynamicLib, "c++"},
		{DynamicLib, "objc"},
		{Framework, "Foundation"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Emit() = %v, want %v", got, want)
	}
}

func TestEmitCapabilities(t *testing.T) {
	metal := Directive{Framework, "Metal"}
	accelerate := Directive{Framework, "Accelerate"}
	tests := []struct {
		metal, accelerate bool
	}{
		{false, false},
		{true, false},
		{false, true},
		{true, true},
	}
	for _, tt := range tests {
		cfg := config.BuildConfiguration{EnableMetal: tt.metal, EnableAccelerate: tt.accelerate}
		ds := Emit(cfg, testLayout)

		wantMetal, wantAccelerate := 0, 0
		if tt.metal {
			wantMetal = 1
		}
		if tt.accelerate {
			wantAccelerate = 1
		}
		if n := count(ds, metal); n != wantMetal {
			t.Errorf("metal=%v: %d Metal directives, want %d", tt.metal, n, wantMetal)
		}
		if n := count(ds, accelerate); n != wantAccelerate {
			t.Errorf("accelerate=%v: %d Accelerate directives, want %d", tt.accelerate, n, wantAccelerate)
		}
		if ds[0].Kind != SearchPath {
			t.Errorf("directive 0 = %v, want search path", ds[0])
		}
		for i, d := range ds[1:] {
			if d.Kind == SearchPath {
				t.Errorf("search path at index %d", i+1)
			}
		}
		if want := 6 + wantMetal + wantAccelerate; len(ds) != want {
			t.Errorf("len = %d, want %d", len(ds), want)
		}
	}
}

func TestEmitOrderWithBothFrameworks(t *testing.T) {
	ds := Emit(config.BuildConfiguration{EnableMetal: true, EnableAccelerate: true}, testLayout)
	if ds[6] != (Directive{Framework, "Metal"}) || ds[7] != (Directive{Framework, "Accelerate"}) {
		t.Errorf("tail = %v, want Metal then Accelerate", ds[6:])
	}
}

func TestEmitDebugWithoutOverrides(t *testing.T) {
	cfg := config.Resolve(config.CompileFlags{Profile: config.ProfileDebug}, config.Env{})
	ds := Emit(cfg, testLayout)
	if len(ds) != 6 {
		t.Fatalf("len = %d, want the six unconditional directives", len(ds))
	}
	frameworks := 0
	for _, d := range ds {
		if d.Kind == Framework {
			frameworks++
			if d.Value != "Foundation" {
				t.Errorf("unexpected framework %q", d.Value)
			}
		}
	}
	if frameworks != 1 {
		t.Errorf("frameworks = %d, want 1", frameworks)
	}
}

func TestEmitMetalOverride(t *testing.T) {
	cfg := config.Resolve(config.CompileFlags{}, config.Env{config.EnvEnableMetal: "on"})
	if n := count(Emit(cfg, testLayout), Directive{Framework, "Metal"}); n != 1 {
		t.Errorf("Metal directives = %d, want 1", n)
	}
}

func TestLDFlags(t *testing.T) {
	ds := Emit(config.BuildConfiguration{EnableMetal: true}, testLayout)
	got := LDFlags(ds)
	want := []string{
		"-L" + testLayout.LibDir,
		"-lmlx", "-lmlxc", "-lc++", "-lobjc",
		"-framework", "Foundation",
		"-framework", "Metal",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LDFlags() = %v, want %v", got, want)
	}
}

func TestKindString(t *testing.T) {
	if got := Framework.String(); got != "framework" {
		t.Errorf("Framework.String() = %q", got)
	}
	if got := Kind(42).String(); got != "Kind(42)" {
		t.Errorf("Kind(42).String() = %q", got)
	}
	if got := (Directive{StaticLib, "mlx"}).String(); got != "static=mlx" {
		t.Errorf("Directive.String() = %q", got)
	}
}

func TestCgoFileRender(t *testing.T) {
	ds := Emit(config.BuildConfiguration{EnableAccelerate: true}, nativebuild.Layout("/out dir", "."))
	src := CgoFile{Package: "mlx", BuildConstraint: "darwin"}.Render(ds)
	text := string(src)

	if !strings.HasPrefix(text, "// Code generated by mlxsys. DO NOT EDIT.") {
		t.Errorf("missing generated header:\n%s", text)
	}
	if !strings.Contains(text, "//go:build darwin\n") {
		t.Errorf("missing build constraint:\n%s", text)
	}
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if strings.HasPrefix(l, "// #cgo LDFLAGS: ") {
			lines = append(lines, strings.TrimPrefix(l, "// #cgo LDFLAGS: "))
		}
	}
	want := []string{
		"'-L" + filepath.Join("/out dir", "build", "lib") + "'",
		"-lmlx", "-lmlxc", "-lc++", "-lobjc",
		"-framework Foundation",
		"-framework Accelerate",
	}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("LDFLAGS lines = %q, want %q", lines, want)
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "cgo_flags.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("rendered file does not parse: %v\n%s", err, text)
	}
	if f.Name.Name != "mlx" {
		t.Errorf("package = %q", f.Name.Name)
	}
}

func TestCgoFileWriteFileDeterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cgo_flags.go")
	ds := Emit(config.BuildConfiguration{}, testLayout)
	f := CgoFile{Package: "mlx"}
	if err := f.WriteFile(path, ds); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	first, _ := os.ReadFile(path)
	if err := f.WriteFile(path, ds); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	second, _ := os.ReadFile(path)
	if !bytes.Equal(first, second) {
		t.Error("rendering is not deterministic")
	}
	if strings.Contains(string(first), "go:build") {
		t.Error("build constraint emitted without being requested")
	}
}

func TestPrint(t *testing.T) {
	ds := Emit(config.BuildConfiguration{}, testLayout)

	var flags bytes.Buffer
	if err := Print(&flags, ds, FormatFlags); err != nil {
		t.Fatal(err)
	}
	if want := "-L" + testLayout.LibDir + " -lmlx -lmlxc -lc++ -lobjc -framework Foundation\n"; flags.String() != want {
		t.Errorf("flags = %q, want %q", flags.String(), want)
	}

	var lines bytes.Buffer
	if err := Print(&lines, ds, FormatLines); err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimSpace(lines.String()), "\n")
	if len(got) != 6 || got[0] != "search-path="+testLayout.LibDir || got[5] != "framework=Foundation" {
		t.Errorf("lines = %q", got)
	}

	if err := Print(&lines, ds, "xml"); err == nil {
		t.Error("Print accepted an unknown format")
	}
}
