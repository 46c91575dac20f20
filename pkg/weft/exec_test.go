package weft

import (
	"errors"
	"strings"
	"testing"
)

type execAddress struct {
	City string
}

type execPerson struct {
	Name  string
	Age   int
	Tags  []string
	M     map[string]int
	Empty []int
	Addr  *execAddress
}

func (p execPerson) Greeting() string {
	return "hi " + p.Name
}

func (p execPerson) Upper(s string) string {
	return strings.ToUpper(s)
}

func (p execPerson) Fail() (string, error) {
	return "", errors.New("boom")
}

var testPerson = execPerson{
	Name: "Ann",
	Age:  37,
	Tags: []string{"alpha", "beta"},
	M:    map[string]int{"b": 2, "a": 1, "c": 3},
	Addr: &execAddress{City: "Oslo"},
}

func mustExecute(t *testing.T, text string, data any) string {
	t.Helper()
	tmpl := Must(New("t").Parse(text))
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		t.Fatalf("Execute(%q) failed: %v", text, err)
	}
	return sb.String()
}

func TestExecute(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"PlainText", "hello world", "hello world"},
		{"Field", "hello {{.Name}}!", "hello Ann!"},
		{"FieldChain", "{{.Addr.City}}", "Oslo"},
		{"Method", "{{.Greeting}}", "hi Ann"},
		{"MethodWithArg", "{{.Upper .Name}}", "ANN"},
		{"Dot", "{{with .Name}}{{.}}{{end}}", "Ann"},
		{"DollarRoot", "{{with .Addr}}{{$.Name}} in {{.City}}{{end}}", "Ann in Oslo"},
		{"Variable", "{{$n := .Name}}{{$n}}{{$n}}", "AnnAnn"},
		{"VariableField", "{{$p := .}}{{$p.Name}}", "Ann"},
		{"IfTrue", "{{if .Name}}yes{{end}}", "yes"},
		{"IfFalseZeroInt", "{{if .Empty}}yes{{else}}no{{end}}", "no"},
		{"ElseIf", "{{if .Empty}}a{{else if .Age}}b{{else}}c{{end}}", "b"},
		{"WithNilPointer", "{{with .Empty}}x{{else}}empty{{end}}", "empty"},
		{"RangeSlice", "{{range .Tags}}<{{.}}>{{end}}", "<alpha><beta>"},
		{"RangeIndexed", "{{range $i, $v := .Tags}}{{$i}}={{$v}};{{end}}", "0=alpha;1=beta;"},
		{"RangeElse", "{{range .Empty}}x{{else}}none{{end}}", "none"},
		{"RangeMapSorted", "{{range $k, $v := .M}}{{$k}}{{$v}}{{end}}", "a1b2c3"},
		{"Pipeline", `{{.Name | printf "%q"}}`, `"Ann"`},
		{"PipelineChain", `{{.Name | printf "%s" | printf "%q"}}`, `"Ann"`},
		{"Parens", `{{printf "%s" (printf "%s%s" "a" "b")}}`, "ab"},
		{"Printf", `{{printf "%s=%d" .Name .Age}}`, "Ann=37"},
		{"Len", "{{len .Tags}}", "2"},
		{"Index", "{{index .Tags 1}}", "beta"},
		{"IndexMap", `{{index .M "b"}}`, "2"},
		{"Slice", `{{slice "hello" 1 3}}`, "el"},
		{"Eq", `{{if eq .Name "Ann"}}match{{end}}`, "match"},
		{"Compare", "{{if lt 1 2}}lt{{end}}{{if ge .Age 37}}ge{{end}}", "ltge"},
		{"And", `{{and .Name "yes"}}`, "yes"},
		{"Or", `{{or "" "fallback"}}`, "fallback"},
		{"Not", "{{not .Empty}}", "true"},
		{"HTMLEscape", `{{html "<b>"}}`, "&lt;b&gt;"},
		{"URLQuery", `{{urlquery "a b"}}`, "a+b"},
		{"NumberLiteral", "{{23}} {{-7}} {{1.5}}", "23 -7 1.5"},
		{"TrimMarkers", "{{23 -}} < {{- 45}}", "23<45"},
		{"Comment", "a{{/* hidden */}}b", "ab"},
		{"Declaration", "{{$x := 3}}{{$x}}", "3"},
		{"Break", "{{range .Tags}}{{if eq . \"beta\"}}{{break}}{{end}}{{.}}{{end}}", "alpha"},
		{"Continue", "{{range .Tags}}{{if eq . \"alpha\"}}{{continue}}{{end}}{{.}}{{end}}", "beta"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mustExecute(t, tc.input, testPerson); got != tc.want {
				t.Errorf("Execute(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestExecuteNilData(t *testing.T) {
	if got := mustExecute(t, "{{.}}", nil); got != "<no value>" {
		t.Errorf("nil dot printed %q, want %q", got, "<no value>")
	}
	if got := mustExecute(t, "{{if .}}y{{else}}n{{end}}", nil); got != "n" {
		t.Errorf("if on nil data = %q, want n", got)
	}
	if got := mustExecute(t, "{{range .}}x{{else}}none{{end}}", nil); got != "none" {
		t.Errorf("range on nil data = %q, want none", got)
	}
}

func TestExecuteRangeChannel(t *testing.T) {
	ch := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		ch <- i
	}
	close(ch)
	if got := mustExecute(t, "{{range .}}{{.}}{{end}}", ch); got != "123" {
		t.Errorf("range over channel = %q, want 123", got)
	}
}

func TestExecuteNestedTemplates(t *testing.T) {
	got := mustExecute(t, `{{define "who"}}[{{.}}]{{end}}hello {{template "who" .Name}}`, testPerson)
	if got != "hello [Ann]" {
		t.Errorf("nested template = %q", got)
	}

	// The invoked template gets its own variable scope rooted at its dot.
	got = mustExecute(t, `{{define "in"}}{{$}}{{end}}{{$x := "outer"}}{{template "in" .Name}}{{$x}}`, testPerson)
	if got != "Annouter" {
		t.Errorf("template scoping = %q, want Annouter", got)
	}
}

func TestExecuteBlock(t *testing.T) {
	tmpl := Must(New("t").Parse(`{{block "list" .}}default{{end}}`))
	var sb strings.Builder
	if err := tmpl.Execute(&sb, nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if sb.String() != "default" {
		t.Errorf("block default = %q", sb.String())
	}

	// A later non-empty define overrides the block body.
	if _, err := tmpl.Parse(`{{define "list"}}override{{end}}`); err != nil {
		t.Fatalf("redefine failed: %v", err)
	}
	sb.Reset()
	if err := tmpl.Execute(&sb, nil); err != nil {
		t.Fatalf("Execute after redefine failed: %v", err)
	}
	if sb.String() != "override" {
		t.Errorf("block override = %q", sb.String())
	}
}

func TestExecuteFuncMap(t *testing.T) {
	tmpl := New("t").Funcs(FuncMap{
		"upper": strings.ToUpper,
		"twice": func(s string) string { return s + s },
	})
	tmpl = Must(tmpl.Parse("{{.Name | upper | twice}}"))
	var sb strings.Builder
	if err := tmpl.Execute(&sb, testPerson); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if sb.String() != "ANNANN" {
		t.Errorf("got %q, want ANNANN", sb.String())
	}
}

func TestExecuteErrors(t *testing.T) {
	t.Run("MethodError", func(t *testing.T) {
		tmpl := Must(New("t").Parse("{{.Fail}}"))
		err := tmpl.Execute(&strings.Builder{}, testPerson)
		if err == nil {
			t.Fatal("expected error from failing method")
		}
		var ee ExecError
		if !errors.As(err, &ee) {
			t.Fatalf("error %T is not an ExecError", err)
		}
		if ee.Name != "t" {
			t.Errorf("ExecError.Name = %q, want t", ee.Name)
		}
		if !strings.Contains(err.Error(), "boom") {
			t.Errorf("error %q does not mention the cause", err)
		}
	})

	t.Run("FuncPanicRecovered", func(t *testing.T) {
		tmpl := New("t").Funcs(FuncMap{"explode": func() string { panic("kaboom") }})
		tmpl = Must(tmpl.Parse("{{explode}}"))
		err := tmpl.Execute(&strings.Builder{}, nil)
		if err == nil {
			t.Fatal("expected error from panicking function")
		}
		if !strings.Contains(err.Error(), "kaboom") {
			t.Errorf("error %q does not carry the panic value", err)
		}
	})

	t.Run("FieldOnWrongType", func(t *testing.T) {
		tmpl := Must(New("t").Parse("{{.Nope}}"))
		err := tmpl.Execute(&strings.Builder{}, 42)
		if err == nil {
			t.Fatal("expected error for field on int")
		}
		if !strings.Contains(err.Error(), "can't evaluate field Nope") {
			t.Errorf("unexpected error %q", err)
		}
	})

	t.Run("RecursionDepth", func(t *testing.T) {
		tmpl := Must(New("t").Parse(`{{define "r"}}{{template "r"}}{{end}}{{template "r"}}`))
		err := tmpl.Execute(&strings.Builder{}, nil)
		if err == nil {
			t.Fatal("expected error from unbounded recursion")
		}
		if !strings.Contains(err.Error(), "exceeded maximum template depth") {
			t.Errorf("unexpected error %q", err)
		}
	})

	t.Run("ErrorCarriesLocation", func(t *testing.T) {
		tmpl := Must(New("t").Parse("line one\n{{.Fail}}"))
		err := tmpl.Execute(&strings.Builder{}, testPerson)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "template: t:2:") {
			t.Errorf("error %q should name template and line 2", err)
		}
	})
}

func TestMissingKeyOptions(t *testing.T) {
	data := map[string]string{"present": "here"}

	t.Run("Default", func(t *testing.T) {
		if got := mustExecute(t, "{{.absent}}", data); got != "<no value>" {
			t.Errorf("default missingkey = %q, want <no value>", got)
		}
	})

	t.Run("Zero", func(t *testing.T) {
		tmpl := Must(New("t").Option("missingkey=zero").Parse("[{{.absent}}]"))
		var sb strings.Builder
		if err := tmpl.Execute(&sb, data); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if sb.String() != "[]" {
			t.Errorf("missingkey=zero = %q, want []", sb.String())
		}
	})

	t.Run("Error", func(t *testing.T) {
		tmpl := Must(New("t").Option("missingkey=error").Parse("{{.absent}}"))
		err := tmpl.Execute(&strings.Builder{}, data)
		if err == nil {
			t.Fatal("expected error for missing key")
		}
		if !strings.Contains(err.Error(), `map has no entry for key "absent"`) {
			t.Errorf("unexpected error %q", err)
		}
	})

	t.Run("BadOptionPanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic for unrecognized option")
			}
		}()
		New("t").Option("nonsense=1")
	})
}

func TestIsTrue(t *testing.T) {
	cases := []struct {
		val   any
		truth bool
	}{
		{true, true},
		{false, false},
		{0, false},
		{1, true},
		{"", false},
		{"x", true},
		{[]int{}, false},
		{[]int{1}, true},
		{map[string]int{}, false},
		{(*execAddress)(nil), false},
		{&execAddress{}, true},
		{execAddress{}, true}, // structs are always true
		{nil, false},
	}
	for _, tc := range cases {
		truth, ok := IsTrue(tc.val)
		if !ok {
			t.Errorf("IsTrue(%v) not ok", tc.val)
			continue
		}
		if truth != tc.truth {
			t.Errorf("IsTrue(%v) = %v, want %v", tc.val, truth, tc.truth)
		}
	}
}

func BenchmarkExecute(b *testing.B) {
	tmpl := Must(New("bench").Parse("hello {{.Name}}, {{len .Tags}} tags:{{range .Tags}} {{.}}{{end}}"))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var sb strings.Builder
		if err := tmpl.Execute(&sb, testPerson); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParse(b *testing.B) {
	const text = `{{define "row"}}<tr><td>{{.}}</td></tr>{{end}}{{range .Tags}}{{template "row" .}}{{end}}`
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := New("bench").Parse(text); err != nil {
			b.Fatal(err)
		}
	}
}
