package weft

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tokenError tokenType = iota // lexing failed; value is the error text
	tokenEOF
	tokenText       // literal text outside of actions
	tokenLeftDelim  // {{
	tokenRightDelim // }}
	tokenIdent      // function name or unresolved identifier
	tokenField      // .Foo or .Foo.Bar, without a leading receiver
	tokenDot        // the cursor itself
	tokenVariable   // $x or $x.Foo, includes the leading $
	tokenNumber
	tokenString    // "..." with quotes still present
	tokenRawString // `...` with backquotes still present
	tokenBool      // true or false
	tokenNil
	tokenPipe      // |
	tokenAssign    // :=
	tokenComma     // , between range declaration variables
	tokenLeftParen // (
	tokenRightParen
	// Everything from here on is a keyword inside an action.
	tokenKeyword
	tokenIf
	tokenElse
	tokenEnd
	tokenRange
	tokenWith
	tokenDefine
	tokenTemplate
	tokenBlock
	tokenBreak
	tokenContinue
)

var keywords = map[string]tokenType{
	"if":       tokenIf,
	"else":     tokenElse,
	"end":      tokenEnd,
	"range":    tokenRange,
	"with":     tokenWith,
	"define":   tokenDefine,
	"template": tokenTemplate,
	"block":    tokenBlock,
	"break":    tokenBreak,
	"continue": tokenContinue,
}

// token is a single lexical unit handed from the lexer to the parser.
type token struct {
	typ  tokenType
	pos  int // byte offset of the token in the input
	line int // 1-based line the token starts on
	val  string
}

func (t token) String() string {
	switch {
	case t.typ == tokenEOF:
		return "EOF"
	case t.typ == tokenError:
		return t.val
	case t.typ > tokenKeyword:
		return "<" + t.val + ">"
	case len(t.val) > 16:
		return fmt.Sprintf("%.16q...", t.val)
	}
	return fmt.Sprintf("%q", t.val)
}

const eof rune = -1

const (
	defaultLeftDelim  = "{{"
	defaultRightDelim = "}}"
	leftTrimMarker    = "- " // trailing whitespace of the preceding text is cut
	rightTrimMarker   = "-"  // leading whitespace of the following text is cut
	leftComment       = "/*"
	rightComment      = "*/"
	spaceChars        = " \t\r\n"
)

// lexer holds the state of the scanner. It runs as a goroutine and emits
// tokens over a channel, one state function at a time.
type lexer struct {
	name       string // name of the template, for error reports
	input      string
	leftDelim  string
	rightDelim string
	pos        int // current position in the input
	start      int // start position of the pending token
	width      int // width of the last rune read
	line       int // 1-based line of the pending token start
	parenDepth int
	tokens     chan token
}

type stateFn func(*lexer) stateFn

func lex(name, input, left, right string) *lexer {
	if left == "" {
		left = defaultLeftDelim
	}
	if right == "" {
		right = defaultRightDelim
	}
	l := &lexer{
		name:       name,
		input:      input,
		leftDelim:  left,
		rightDelim: right,
		line:       1,
		tokens:     make(chan token),
	}
	go l.run()
	return l
}

func (l *lexer) run() {
	for state := lexText; state != nil; {
		state = state(l)
	}
	close(l.tokens)
}

// nextToken is called by the parser.
func (l *lexer) nextToken() token {
	return <-l.tokens
}

// drain unblocks the lexing goroutine after a parse error so it can exit.
func (l *lexer) drain() {
	for range l.tokens {
	}
}

func (l *lexer) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.width = w
	l.pos += w
	return r
}

func (l *lexer) backup() {
	l.pos -= l.width
	l.width = 0
}

func (l *lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

func (l *lexer) emit(t tokenType) {
	l.tokens <- token{t, l.start, l.line, l.input[l.start:l.pos]}
	l.line += strings.Count(l.input[l.start:l.pos], "\n")
	l.start = l.pos
}

// ignore drops the pending input, keeping line accounting intact.
func (l *lexer) ignore() {
	l.line += strings.Count(l.input[l.start:l.pos], "\n")
	l.start = l.pos
}

func (l *lexer) accept(valid string) bool {
	if strings.ContainsRune(valid, l.next()) {
		return true
	}
	l.backup()
	return false
}

func (l *lexer) acceptRun(valid string) {
	for strings.ContainsRune(valid, l.next()) {
	}
	l.backup()
}

func (l *lexer) errorf(format string, args ...any) stateFn {
	l.tokens <- token{tokenError, l.start, l.line, fmt.Sprintf(format, args...)}
	return nil
}

// atRightDelim reports whether the input at the current position starts a
// closing delimiter, possibly preceded by a trim marker.
func (l *lexer) atRightDelim() (delim, trim bool) {
	if strings.HasPrefix(l.input[l.pos:], rightTrimMarker+l.rightDelim) {
		return true, true
	}
	if strings.HasPrefix(l.input[l.pos:], l.rightDelim) {
		return true, false
	}
	return false, false
}

func (l *lexer) atTerminator() bool {
	r := l.peek()
	if r == eof || isSpace(r) {
		return true
	}
	switch r {
	case ',', '|', ':', ')', '(':
		return true
	}
	if d, _ := l.atRightDelim(); d {
		return true
	}
	return false
}

func lexText(l *lexer) stateFn {
	x := strings.Index(l.input[l.pos:], l.leftDelim)
	if x < 0 {
		l.pos = len(l.input)
		if l.pos > l.start {
			l.emit(tokenText)
		}
		l.emit(tokenEOF)
		return nil
	}
	l.pos += x
	if strings.HasPrefix(l.input[l.pos+len(l.leftDelim):], leftTrimMarker) {
		trimmed := strings.TrimRight(l.input[l.start:l.pos], spaceChars)
		end := l.start + len(trimmed)
		if end > l.start {
			save := l.pos
			l.pos = end
			l.emit(tokenText)
			l.pos = save
		}
		l.ignore()
	} else if l.pos > l.start {
		l.emit(tokenText)
	}
	return lexLeftDelim
}

func lexLeftDelim(l *lexer) stateFn {
	l.pos += len(l.leftDelim)
	trimLen := 0
	if strings.HasPrefix(l.input[l.pos:], leftTrimMarker) {
		trimLen = len(leftTrimMarker)
	}
	if strings.HasPrefix(l.input[l.pos+trimLen:], leftComment) {
		l.pos += trimLen
		l.ignore()
		return lexComment
	}
	l.emit(tokenLeftDelim)
	l.pos += trimLen
	l.ignore()
	l.parenDepth = 0
	return lexInsideAction
}

func lexComment(l *lexer) stateFn {
	l.pos += len(leftComment)
	i := strings.Index(l.input[l.pos:], rightComment)
	if i < 0 {
		return l.errorf("unclosed comment")
	}
	l.pos += i + len(rightComment)
	l.pos += leadingSpaceLen(l.input[l.pos:])
	delim, trim := l.atRightDelim()
	if !delim {
		return l.errorf("comment ends before closing delimiter")
	}
	if trim {
		l.pos += len(rightTrimMarker)
	}
	l.pos += len(l.rightDelim)
	if trim {
		l.pos += leadingSpaceLen(l.input[l.pos:])
	}
	l.ignore()
	return lexText
}

func lexRightDelim(l *lexer) stateFn {
	_, trim := l.atRightDelim()
	if trim {
		l.pos += len(rightTrimMarker)
		l.ignore()
	}
	l.pos += len(l.rightDelim)
	l.emit(tokenRightDelim)
	if trim {
		l.pos += leadingSpaceLen(l.input[l.pos:])
		l.ignore()
	}
	return lexText
}

func lexInsideAction(l *lexer) stateFn {
	if delim, _ := l.atRightDelim(); delim {
		if l.parenDepth != 0 {
			return l.errorf("unclosed left paren")
		}
		return lexRightDelim
	}
	switch r := l.next(); {
	case r == eof:
		return l.errorf("unclosed action")
	case isSpace(r):
		l.backup()
		return lexSpace
	case r == ':':
		if l.next() != '=' {
			return l.errorf("expected :=")
		}
		l.emit(tokenAssign)
	case r == '|':
		l.emit(tokenPipe)
	case r == '"':
		return lexQuote
	case r == '`':
		return lexRawQuote
	case r == '$':
		return lexVariable
	case r == '.':
		// Look ahead: a dot starts a field unless a digit follows.
		if l.pos < len(l.input) {
			if c := l.input[l.pos]; c < '0' || c > '9' {
				return lexField
			}
		}
		fallthrough // '.' can begin a number
	case r == '+' || r == '-' || ('0' <= r && r <= '9'):
		l.backup()
		return lexNumber
	case isAlphaNumeric(r):
		l.backup()
		return lexIdentifier
	case r == '(':
		l.emit(tokenLeftParen)
		l.parenDepth++
	case r == ')':
		if l.parenDepth == 0 {
			return l.errorf("unexpected right paren")
		}
		l.emit(tokenRightParen)
		l.parenDepth--
	case r == ',':
		l.emit(tokenComma)
	default:
		return l.errorf("unrecognized character in action: %#U", r)
	}
	return lexInsideAction
}

func lexSpace(l *lexer) stateFn {
	for isSpace(l.peek()) {
		l.next()
	}
	l.ignore()
	return lexInsideAction
}

func lexIdentifier(l *lexer) stateFn {
	for isAlphaNumeric(l.peek()) {
		l.next()
	}
	if !l.atTerminator() {
		return l.errorf("bad character %#U", l.peek())
	}
	word := l.input[l.start:l.pos]
	switch {
	case keywords[word] > tokenKeyword:
		l.emit(keywords[word])
	case word == "true", word == "false":
		l.emit(tokenBool)
	case word == "nil":
		l.emit(tokenNil)
	default:
		l.emit(tokenIdent)
	}
	return lexInsideAction
}

// lexField scans a field chain such as .Name or .User.Name. The leading dot
// has already been consumed.
func lexField(l *lexer) stateFn {
	if !isAlphaNumeric(l.peek()) {
		if !l.atTerminator() {
			return l.errorf("bad character %#U", l.peek())
		}
		l.emit(tokenDot)
		return lexInsideAction
	}
	for {
		for isAlphaNumeric(l.peek()) {
			l.next()
		}
		if l.peek() != '.' {
			break
		}
		l.next()
		if !isAlphaNumeric(l.peek()) {
			return l.errorf("expected field name after '.'")
		}
	}
	if !l.atTerminator() {
		return l.errorf("bad character %#U", l.peek())
	}
	l.emit(tokenField)
	return lexInsideAction
}

// lexVariable scans $, $name or $name.Field.Chain. The $ has been consumed.
func lexVariable(l *lexer) stateFn {
	for isAlphaNumeric(l.peek()) {
		l.next()
	}
	for l.peek() == '.' {
		l.next()
		if !isAlphaNumeric(l.peek()) {
			return l.errorf("expected field name after '.'")
		}
		for isAlphaNumeric(l.peek()) {
			l.next()
		}
	}
	if !l.atTerminator() {
		return l.errorf("bad character %#U", l.peek())
	}
	l.emit(tokenVariable)
	return lexInsideAction
}

func lexQuote(l *lexer) stateFn {
	for {
		switch l.next() {
		case '\\':
			if r := l.next(); r != eof && r != '\n' {
				continue
			}
			fallthrough
		case eof, '\n':
			return l.errorf("unterminated quoted string")
		case '"':
			l.emit(tokenString)
			return lexInsideAction
		}
	}
}

func lexRawQuote(l *lexer) stateFn {
	for {
		switch l.next() {
		case eof:
			return l.errorf("unterminated raw quoted string")
		case '`':
			l.emit(tokenRawString)
			return lexInsideAction
		}
	}
}

func lexNumber(l *lexer) stateFn {
	l.accept("+-")
	digits := "0123456789_"
	if l.accept("0") {
		if l.accept("xX") {
			digits = "0123456789abcdefABCDEF_"
		} else if l.accept("oO") {
			digits = "01234567_"
		} else if l.accept("bB") {
			digits = "01_"
		}
	}
	l.acceptRun(digits)
	if l.accept(".") {
		l.acceptRun(digits)
	}
	if len(digits) == 11 && l.accept("eE") {
		l.accept("+-")
		l.acceptRun("0123456789_")
	}
	if !l.atTerminator() {
		l.next()
		return l.errorf("bad number syntax: %q", l.input[l.start:l.pos])
	}
	l.emit(tokenNumber)
	return lexInsideAction
}

func leadingSpaceLen(s string) int {
	return len(s) - len(strings.TrimLeft(s, spaceChars))
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

func isAlphaNumeric(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
