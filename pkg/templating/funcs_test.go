package templating

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"
)

// TestTemplateFunctions validates the behavior of each category of template
// functions.
func TestTemplateFunctions(t *testing.T) {
	tm := setupTestManager(t)

	t.Run("StringFuncs", func(t *testing.T) {
		if title("hello world") != "Hello World" {
			t.Error("title failed")
		}
		if trimPrefix("/", "/path") != "path" {
			t.Error("trimPrefix failed")
		}
		if trimSuffix(".tmpl", "page.tmpl") != "page" {
			t.Error("trimSuffix failed")
		}
		if replace("a", "o", "banana") != "bonono" {
			t.Error("replace failed")
		}
		if got := split(",", "a,b,c"); len(got) != 3 || got[1] != "b" {
			t.Errorf("split failed: %v", got)
		}
		if join("-", []string{"a", "b"}) != "a-b" {
			t.Error("join failed")
		}
		if tm.truncate(3, "abcdef") != "abc" {
			t.Error("truncate failed")
		}
		if tm.truncate(99, "short") != "short" {
			t.Error("truncate should leave short strings alone")
		}
		if tm.indent(2, "a\nb") != "  a\n  b" {
			t.Errorf("indent failed: %q", tm.indent(2, "a\nb"))
		}

		// Safety limits.
		config := DefaultConfig()
		config.MaxTruncateLen = 4
		tm.SetConfig(&config)
		if got := tm.truncate(99, "abcdef"); got != "abcd" {
			t.Errorf("truncate did not respect MaxTruncateLen, got %q", got)
		}
	})

	t.Run("MathFuncs", func(t *testing.T) {
		if add(2, 3) != 5 || sub(5, 3) != 2 || mult(4, 3) != 12 {
			t.Error("basic arithmetic failed")
		}
		if div(10, 3) != 3 || div(1, 0) != 0 {
			t.Error("div failed")
		}
		if mod(10, 3) != 1 || mod(1, 0) != 0 {
			t.Error("mod failed")
		}
		if intMax(2, 3) != 3 || intMin(2, 3) != 2 {
			t.Error("min/max failed")
		}
		if inc(1) != 2 || dec(1) != 0 {
			t.Error("inc/dec failed")
		}
		if isSet(0) || isSet("") || !isSet(1) || !isSet("x") {
			t.Error("isSet failed")
		}
	})

	t.Run("CollectionFuncs", func(t *testing.T) {
		l := list("a", "b", "c")
		if len(l) != 3 {
			t.Error("list failed")
		}
		if first(l) != "a" || last(l) != "c" {
			t.Error("first/last failed")
		}
		if got := rest(l); !reflect.DeepEqual(got, []any{"b", "c"}) {
			t.Errorf("rest failed: %v", got)
		}
		if got := uniq([]string{"a", "b", "a"}); len(got) != 2 {
			t.Errorf("uniq failed: %v", got)
		}
		if got := sortAlpha([]string{"c", "a", "b"}); got[0] != "a" || got[2] != "c" {
			t.Errorf("sortAlpha failed: %v", got)
		}
		ks, err := keys(map[string]int{"b": 1, "a": 2})
		if err != nil || !reflect.DeepEqual(ks, []string{"a", "b"}) {
			t.Errorf("keys failed: %v, %v", ks, err)
		}
		if !has("b", []string{"a", "b"}) || has("z", []string{"a", "b"}) {
			t.Error("has failed")
		}
		d, err := dict("k1", 1, "k2", "two")
		if err != nil || d["k1"] != 1 || d["k2"] != "two" {
			t.Errorf("dict failed: %v, %v", d, err)
		}
		if _, err := dict("odd"); err == nil {
			t.Error("dict accepted an odd argument count")
		}
		if _, err := dict(1, "v"); err == nil {
			t.Error("dict accepted a non-string key")
		}
		if got := tm.seq(1, 5); !reflect.DeepEqual(got, []int{1, 2, 3, 4, 5}) {
			t.Errorf("seq failed: %v", got)
		}
		if got := tm.seq(3, 1); !reflect.DeepEqual(got, []int{3, 2, 1}) {
			t.Errorf("descending seq failed: %v", got)
		}

		// Safety limits.
		config := DefaultConfig()
		config.MaxRepeat = 5
		tm.SetConfig(&config)
		if got := len(tm.repeat(999)); got != 5 {
			t.Errorf("repeat did not respect MaxRepeat, generated %d items", got)
		}
		if got := len(tm.seq(1, 999)); got != 5 {
			t.Errorf("seq did not respect MaxRepeat, generated %d items", got)
		}
	})

	t.Run("EncodeFuncs", func(t *testing.T) {
		s, err := toJSON(map[string]int{"a": 1})
		if err != nil || s != `{"a":1}` {
			t.Errorf("toJSON failed: %q, %v", s, err)
		}
		v, err := fromJSON(`{"a":1}`)
		if err != nil {
			t.Fatalf("fromJSON failed: %v", err)
		}
		if m, ok := v.(map[string]any); !ok || m["a"] != float64(1) {
			t.Errorf("fromJSON produced %v", v)
		}
		if b64enc("hi") != "aGk=" {
			t.Error("b64enc failed")
		}
		dec, err := b64dec("aGk=")
		if err != nil || dec != "hi" {
			t.Error("b64dec failed")
		}
		if _, err := b64dec("!!!"); err == nil {
			t.Error("b64dec accepted invalid input")
		}
		if sha256sum("abc") != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
			t.Error("sha256sum failed")
		}
		ob := obfuscateEmail("a@b.c")
		if strings.Contains(ob, "@") {
			t.Error("obfuscateEmail left the address readable")
		}
		if !strings.Contains(ob, "&#64;") {
			t.Errorf("obfuscateEmail output unexpected: %q", ob)
		}
	})

	t.Run("FormatFuncs", func(t *testing.T) {
		if comma(1234567) != "1,234,567" {
			t.Error("comma failed")
		}
		if bytesize(2048) != "2.0 KiB" {
			t.Errorf("bytesize failed: %q", bytesize(2048))
		}
		if ordinal(3) != "3rd" {
			t.Error("ordinal failed")
		}
		if got := reltime(time.Now().Add(-2 * time.Hour)); !strings.Contains(got, "hours ago") {
			t.Errorf("reltime failed: %q", got)
		}
	})

	t.Run("TimeFuncs", func(t *testing.T) {
		ref := time.Date(2024, 5, 17, 12, 30, 0, 0, time.UTC)
		if got := tm.date("2006-01-02", ref); got != "2024-05-17" {
			t.Errorf("date failed: %q", got)
		}
		if got := tm.date("", ref); got != "2024-05-17 12:30:00" {
			t.Errorf("date default layout failed: %q", got)
		}
		shifted, err := dateModify("1h", ref)
		if err != nil || shifted.Hour() != 13 {
			t.Errorf("dateModify failed: %v, %v", shifted, err)
		}
		if _, err := dateModify("bogus", ref); err == nil {
			t.Error("dateModify accepted invalid duration")
		}
		if unixEpoch(ref) != ref.Unix() {
			t.Error("unixEpoch failed")
		}
	})
}

// TestFunctionsInTemplates exercises the function library end to end through
// rendered templates.
func TestFunctionsInTemplates(t *testing.T) {
	tm := setupTestManager(t)

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"Pipeline", `{{"go" | upper}}`, "GO"},
		{"Nested", `{{join ", " (sortAlpha (list "b" "a"))}}`, "a, b"},
		{"Seq", `{{range seq 1 3}}{{.}}{{end}}`, "123"},
		{"Dict", `{{$d := dict "name" "ann"}}{{index $d "name"}}`, "ann"},
		{"JSON", `{{toJSON (list 1 2)}}`, "[1,2]"},
		{"Comma", `{{comma 1000000}}`, "1,000,000"},
		{"Truncate", `{{truncate 3 "abcdef"}}`, "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tm.ExecuteTemplateString(&buf, tc.input, nil); err != nil {
				t.Fatalf("render failed: %v", err)
			}
			if buf.String() != tc.want {
				t.Errorf("got %q, want %q", buf.String(), tc.want)
			}
		})
	}
}
