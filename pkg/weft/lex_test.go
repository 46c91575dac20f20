package weft

import "testing"

// collect runs the lexer over input and gathers every token through EOF or
// the first error.
func collect(input string) []token {
	l := lex("test", input, "", "")
	var tokens []token
	for {
		tok := l.nextToken()
		tokens = append(tokens, tok)
		if tok.typ == tokenEOF || tok.typ == tokenError {
			break
		}
	}
	return tokens
}

func checkTokens(t *testing.T, got []token, want []token) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i := range got {
		if got[i].typ != want[i].typ {
			t.Errorf("token %d: got type %d (%s), want type %d", i, got[i].typ, got[i], want[i].typ)
		}
		if want[i].val != "" && got[i].val != want[i].val {
			t.Errorf("token %d: got %q, want %q", i, got[i].val, want[i].val)
		}
	}
}

func TestLexBasic(t *testing.T) {
	t.Run("PlainText", func(t *testing.T) {
		checkTokens(t, collect("hello world"), []token{
			{typ: tokenText, val: "hello world"},
			{typ: tokenEOF},
		})
	})

	t.Run("FieldAction", func(t *testing.T) {
		checkTokens(t, collect("hello {{.UserName}}!"), []token{
			{typ: tokenText, val: "hello "},
			{typ: tokenLeftDelim},
			{typ: tokenField, val: ".UserName"},
			{typ: tokenRightDelim},
			{typ: tokenText, val: "!"},
			{typ: tokenEOF},
		})
	})

	t.Run("FieldChain", func(t *testing.T) {
		checkTokens(t, collect("{{.User.Address.City}}"), []token{
			{typ: tokenLeftDelim},
			{typ: tokenField, val: ".User.Address.City"},
			{typ: tokenRightDelim},
			{typ: tokenEOF},
		})
	})

	t.Run("Pipeline", func(t *testing.T) {
		checkTokens(t, collect(`{{"x" | printf "%q"}}`), []token{
			{typ: tokenLeftDelim},
			{typ: tokenString, val: `"x"`},
			{typ: tokenPipe},
			{typ: tokenIdent, val: "printf"},
			{typ: tokenString, val: `"%q"`},
			{typ: tokenRightDelim},
			{typ: tokenEOF},
		})
	})

	t.Run("Declaration", func(t *testing.T) {
		checkTokens(t, collect("{{$x := 23}}"), []token{
			{typ: tokenLeftDelim},
			{typ: tokenVariable, val: "$x"},
			{typ: tokenAssign, val: ":="},
			{typ: tokenNumber, val: "23"},
			{typ: tokenRightDelim},
			{typ: tokenEOF},
		})
	})

	t.Run("Keywords", func(t *testing.T) {
		checkTokens(t, collect("{{range .Items}}{{break}}{{end}}"), []token{
			{typ: tokenLeftDelim},
			{typ: tokenRange, val: "range"},
			{typ: tokenField, val: ".Items"},
			{typ: tokenRightDelim},
			{typ: tokenLeftDelim},
			{typ: tokenBreak, val: "break"},
			{typ: tokenRightDelim},
			{typ: tokenLeftDelim},
			{typ: tokenEnd, val: "end"},
			{typ: tokenRightDelim},
			{typ: tokenEOF},
		})
	})

	t.Run("DotAndVariableRoot", func(t *testing.T) {
		checkTokens(t, collect("{{with .}}{{$}}{{end}}"), []token{
			{typ: tokenLeftDelim},
			{typ: tokenWith, val: "with"},
			{typ: tokenDot, val: "."},
			{typ: tokenRightDelim},
			{typ: tokenLeftDelim},
			{typ: tokenVariable, val: "$"},
			{typ: tokenRightDelim},
			{typ: tokenLeftDelim},
			{typ: tokenEnd, val: "end"},
			{typ: tokenRightDelim},
			{typ: tokenEOF},
		})
	})

	t.Run("Parens", func(t *testing.T) {
		checkTokens(t, collect("{{not (eq 1 2)}}"), []token{
			{typ: tokenLeftDelim},
			{typ: tokenIdent, val: "not"},
			{typ: tokenLeftParen},
			{typ: tokenIdent, val: "eq"},
			{typ: tokenNumber, val: "1"},
			{typ: tokenNumber, val: "2"},
			{typ: tokenRightParen},
			{typ: tokenRightDelim},
			{typ: tokenEOF},
		})
	})
}

func TestLexNumbers(t *testing.T) {
	for _, text := range []string{"0", "42", "-7", "+3", "3.14", "1e9", "0x1F", "0b101", "0o17", "1_000"} {
		got := collect("{{" + text + "}}")
		if len(got) != 4 || got[1].typ != tokenNumber || got[1].val != text {
			t.Errorf("lexing %q: got %v", text, got)
		}
	}
}

func TestLexTrimMarkers(t *testing.T) {
	got := collect("a \n{{- 23 -}}\n b")
	checkTokens(t, got, []token{
		{typ: tokenText, val: "a"},
		{typ: tokenLeftDelim},
		{typ: tokenNumber, val: "23"},
		{typ: tokenRightDelim},
		{typ: tokenText, val: "b"},
		{typ: tokenEOF},
	})
}

func TestLexComment(t *testing.T) {
	checkTokens(t, collect("x{{/* a comment */}}y"), []token{
		{typ: tokenText, val: "x"},
		{typ: tokenText, val: "y"},
		{typ: tokenEOF},
	})

	// A comment with trim markers swallows surrounding whitespace too.
	checkTokens(t, collect("x \n{{- /* gone */ -}}\n y"), []token{
		{typ: tokenText, val: "x"},
		{typ: tokenText, val: "y"},
		{typ: tokenEOF},
	})
}

func TestLexErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"UnclosedAction", "{{.Name"},
		{"UnterminatedString", `{{"abc}}`},
		{"UnclosedComment", "{{/* no end"},
		{"BadNumber", "{{3k}}"},
		{"UnexpectedRightParen", "{{)}}"},
		{"BadFieldDot", "{{.Name.}}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := collect(tc.input)
			last := got[len(got)-1]
			if last.typ != tokenError {
				t.Errorf("expected a lex error for %q, got %v", tc.input, got)
			}
		})
	}
}

func TestLexLineNumbers(t *testing.T) {
	got := collect("line one\nline two\n{{.Field}}")
	var field token
	for _, tok := range got {
		if tok.typ == tokenField {
			field = tok
		}
	}
	if field.line != 3 {
		t.Errorf("field token on line %d, want 3", field.line)
	}
}

func TestLexCustomDelims(t *testing.T) {
	l := lex("test", "a <<.X>> b", "<<", ">>")
	var types []tokenType
	for {
		tok := l.nextToken()
		types = append(types, tok.typ)
		if tok.typ == tokenEOF || tok.typ == tokenError {
			break
		}
	}
	want := []tokenType{tokenText, tokenLeftDelim, tokenField, tokenRightDelim, tokenText, tokenEOF}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("token %d: got type %d, want %d", i, types[i], want[i])
		}
	}
}
