package weft

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// parser consumes the lexer's token stream and produces one tree per
// template defined in the input. The root text becomes the tree for name;
// {{define}} and {{block}} clauses add further entries.
type parser struct {
	name       string
	lex        *lexer
	token      [3]token // token lookahead buffer
	peekCount  int
	vars       []string // in-scope variable names, in declaration order
	funcs      []map[string]any
	treeSet    map[string]*listNode
	rangeDepth int
}

type parseError struct {
	msg string
}

func parse(name, text, left, right string, funcs ...map[string]any) (treeSet map[string]*listNode, err error) {
	p := &parser{
		name:    name,
		vars:    []string{"$"},
		funcs:   funcs,
		treeSet: map[string]*listNode{},
	}
	defer p.recover(&err)
	p.lex = lex(name, text, left, right)
	p.parseRoot()
	p.lex = nil
	return p.treeSet, nil
}

func (p *parser) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	panic(parseError{fmt.Sprintf("template: %s:%d: %s", p.name, p.lastLine(), msg)})
}

func (p *parser) lastLine() int {
	return p.token[0].line
}

func (p *parser) recover(errp *error) {
	if e := recover(); e != nil {
		pe, ok := e.(parseError)
		if !ok {
			panic(e)
		}
		if p.lex != nil {
			p.lex.drain()
		}
		*errp = errors.New(pe.msg)
	}
}

func (p *parser) next() token {
	if p.peekCount > 0 {
		p.peekCount--
	} else {
		p.token[0] = p.lex.nextToken()
	}
	return p.token[p.peekCount]
}

func (p *parser) backup() {
	p.peekCount++
}

// backup2 restores two tokens: t1 and the most recently peeked one.
func (p *parser) backup2(t1 token) {
	p.token[1] = t1
	p.peekCount = 2
}

func (p *parser) peek() token {
	if p.peekCount > 0 {
		return p.token[p.peekCount-1]
	}
	p.peekCount = 1
	p.token[0] = p.lex.nextToken()
	return p.token[0]
}

func (p *parser) expect(expected tokenType, context string) token {
	tok := p.next()
	if tok.typ != expected {
		p.unexpected(tok, context)
	}
	return tok
}

func (p *parser) unexpected(tok token, context string) {
	if tok.typ == tokenError {
		p.errorf("%s", tok.val)
	}
	p.errorf("unexpected %s in %s", tok, context)
}

func (p *parser) expectString(context string) string {
	tok := p.next()
	if tok.typ != tokenString && tok.typ != tokenRawString {
		p.unexpected(tok, context)
	}
	s, err := strconv.Unquote(tok.val)
	if err != nil {
		p.errorf("%s", err)
	}
	return s
}

// add registers a named tree, keeping an existing definition when the new
// one would render nothing but whitespace.
func (p *parser) add(name string, tree *listNode) {
	old, ok := p.treeSet[name]
	if !ok || isEmptyTree(old) {
		p.treeSet[name] = tree
		return
	}
	if !isEmptyTree(tree) {
		p.errorf("multiple definition of template %q", name)
	}
}

func (p *parser) parseRoot() {
	first := p.peek()
	root := newList(first.pos, first.line)
	for p.peek().typ != tokenEOF {
		if p.peek().typ == tokenLeftDelim {
			delim := p.next()
			if p.peek().typ == tokenDefine {
				p.next()
				p.parseDefinition()
				continue
			}
			p.backup2(delim)
		}
		switch n := p.textOrAction(); n.ntype() {
		case nodeEnd, nodeElse:
			p.errorf("unexpected %s", n)
		default:
			root.append(n)
		}
	}
	p.add(p.name, root)
}

// parseDefinition handles {{define "name"}} ... {{end}}, which may appear
// only at the top level.
func (p *parser) parseDefinition() {
	const context = "define clause"
	name := p.expectString(context)
	p.expect(tokenRightDelim, context)
	savedVars := p.vars
	p.vars = []string{"$"}
	list, end := p.itemList()
	p.vars = savedVars
	if end.ntype() != nodeEnd {
		p.errorf("unexpected %s in %s", end, context)
	}
	p.add(name, list)
}

// itemList collects nodes until {{end}} or {{else}}, returning the list and
// the marker that stopped it.
func (p *parser) itemList() (list *listNode, next node) {
	first := p.peek()
	list = newList(first.pos, first.line)
	for p.peek().typ != tokenEOF {
		n := p.textOrAction()
		switch n.ntype() {
		case nodeEnd, nodeElse:
			return list, n
		}
		list.append(n)
	}
	p.errorf("unexpected EOF")
	return
}

func (p *parser) textOrAction() node {
	switch tok := p.next(); tok.typ {
	case tokenText:
		return &textNode{baseNode{nodeText, tok.pos, tok.line}, tok.val}
	case tokenLeftDelim:
		return p.action()
	default:
		p.unexpected(tok, "input")
	}
	return nil
}

// action parses the inside of {{...}}, the left delimiter already consumed.
func (p *parser) action() node {
	switch tok := p.next(); tok.typ {
	case tokenIf:
		return p.ifControl()
	case tokenRange:
		return p.rangeControl()
	case tokenWith:
		return p.withControl()
	case tokenBlock:
		return p.blockControl()
	case tokenTemplate:
		return p.templateControl()
	case tokenElse:
		return p.elseControl()
	case tokenEnd:
		return p.endControl()
	case tokenBreak:
		return p.loopControl(tok, "break")
	case tokenContinue:
		return p.loopControl(tok, "continue")
	}
	p.backup()
	tok := p.peek()
	pipe := p.pipeline("command", tokenRightDelim)
	return &actionNode{baseNode{nodeAction, tok.pos, tok.line}, pipe}
}

func (p *parser) endControl() node {
	tok := p.expect(tokenRightDelim, "end")
	return &endNode{baseNode{nodeEnd, tok.pos, tok.line}}
}

func (p *parser) elseControl() node {
	// An "else if" leaves the if token in place for parseControl to find.
	peek := p.peek()
	if peek.typ == tokenIf {
		return &elseNode{baseNode{nodeElse, peek.pos, peek.line}}
	}
	tok := p.expect(tokenRightDelim, "else")
	return &elseNode{baseNode{nodeElse, tok.pos, tok.line}}
}

func (p *parser) loopControl(tok token, context string) node {
	p.expect(tokenRightDelim, context)
	if p.rangeDepth == 0 {
		p.errorf("{{%s}} outside {{range}}", context)
	}
	if context == "break" {
		return &breakNode{baseNode{nodeBreak, tok.pos, tok.line}}
	}
	return &continueNode{baseNode{nodeContinue, tok.pos, tok.line}}
}

func (p *parser) parseControl(allowElseIf bool, context string) branchNode {
	defer p.popVars(len(p.vars))
	pipe := p.pipeline(context, tokenRightDelim)
	if context == "range" {
		p.rangeDepth++
	}
	list, next := p.itemList()
	if context == "range" {
		p.rangeDepth--
	}
	var elseList *listNode
	switch next.ntype() {
	case nodeEnd:
	case nodeElse:
		if allowElseIf && p.peek().typ == tokenIf {
			// {{else if ...}} is sugar for {{else}}{{if ...}}...{{end}}{{end}}.
			p.next()
			elseList = newList(next.position(), next.linenum())
			elseList.append(p.ifControl())
			break
		}
		elseList, next = p.itemList()
		if next.ntype() != nodeEnd {
			p.errorf("expected end; found %s", next)
		}
	}
	return branchNode{baseNode{nodeList, pipe.pos, pipe.line}, pipe, list, elseList}
}

func (p *parser) ifControl() node {
	b := p.parseControl(true, "if")
	b.typ = nodeIf
	return &ifNode{b}
}

func (p *parser) rangeControl() node {
	b := p.parseControl(false, "range")
	b.typ = nodeRange
	return &rangeNode{b}
}

func (p *parser) withControl() node {
	b := p.parseControl(false, "with")
	b.typ = nodeWith
	return &withNode{b}
}

func (p *parser) templateControl() node {
	const context = "template clause"
	tok := p.token[0]
	name := p.expectString(context)
	var pipe *pipeNode
	if p.peek().typ != tokenRightDelim {
		pipe = p.pipeline(context, tokenRightDelim)
	} else {
		p.next()
	}
	return &templateNode{baseNode{nodeTemplate, tok.pos, tok.line}, name, pipe}
}

// blockControl parses {{block "name" pipeline}} ... {{end}}: a define plus
// an immediate invocation.
func (p *parser) blockControl() node {
	const context = "block clause"
	tok := p.token[0]
	name := p.expectString(context)
	var pipe *pipeNode
	if p.peek().typ != tokenRightDelim {
		pipe = p.pipeline(context, tokenRightDelim)
	} else {
		p.next()
	}
	savedVars := p.vars
	p.vars = []string{"$"}
	savedDepth := p.rangeDepth
	p.rangeDepth = 0
	list, end := p.itemList()
	p.rangeDepth = savedDepth
	p.vars = savedVars
	if end.ntype() != nodeEnd {
		p.errorf("unexpected %s in %s", end, context)
	}
	p.add(name, list)
	return &templateNode{baseNode{nodeTemplate, tok.pos, tok.line}, name, pipe}
}

// pipeline parses [$v :=] cmd | cmd ... terminated by end, which is either
// the right delimiter or a right paren for nested pipelines.
func (p *parser) pipeline(context string, end tokenType) *pipeNode {
	first := p.peek()
	pipe := &pipeNode{baseNode: baseNode{nodePipe, first.pos, first.line}}

	// Declarations: $v := or, for range only, $k, $v :=
	if p.peek().typ == tokenVariable {
		v := p.next()
		switch p.peek().typ {
		case tokenAssign:
			p.next()
			pipe.decl = append(pipe.decl, p.newDeclVariable(v))
		case tokenComma:
			p.next()
			pipe.decl = append(pipe.decl, p.newDeclVariable(v))
			if context != "range" {
				p.errorf("too many declarations in %s", context)
			}
			v2 := p.expect(tokenVariable, context)
			pipe.decl = append(pipe.decl, p.newDeclVariable(v2))
			p.expect(tokenAssign, context)
		default:
			p.backup2(v)
		}
	}

	if p.peek().typ == end {
		p.errorf("missing value for %s", context)
	}
	for {
		pipe.cmds = append(pipe.cmds, p.command())
		switch tok := p.next(); tok.typ {
		case end:
			return pipe
		case tokenPipe:
			// next command follows
		default:
			p.unexpected(tok, context)
		}
	}
}

// newDeclVariable records a declared variable, which must be a bare $name.
func (p *parser) newDeclVariable(tok token) *variableNode {
	if strings.Contains(tok.val, ".") {
		p.errorf("illegal variable in declaration: %s", tok.val)
	}
	p.vars = append(p.vars, tok.val)
	return &variableNode{baseNode{nodeVariable, tok.pos, tok.line}, []string{tok.val}}
}

func (p *parser) popVars(n int) {
	p.vars = p.vars[:n]
}

// command parses a single pipeline stage: one or more operands. It stops
// before a pipe, right delimiter or right paren without consuming it.
func (p *parser) command() *commandNode {
	first := p.peek()
	cmd := &commandNode{baseNode: baseNode{nodeCommand, first.pos, first.line}}
	for {
		switch tok := p.peek(); tok.typ {
		case tokenRightDelim, tokenRightParen, tokenPipe:
			if len(cmd.args) == 0 {
				p.errorf("empty command")
			}
			return cmd
		case tokenError:
			p.next()
			p.errorf("%s", tok.val)
		default:
			cmd.args = append(cmd.args, p.operand())
		}
	}
}

func (p *parser) operand() node {
	tok := p.next()
	switch tok.typ {
	case tokenIdent:
		if !p.hasFunction(tok.val) {
			p.errorf("function %q not defined", tok.val)
		}
		return &identifierNode{baseNode{nodeIdentifier, tok.pos, tok.line}, tok.val}
	case tokenDot:
		return &dotNode{baseNode{nodeDot, tok.pos, tok.line}}
	case tokenNil:
		return &nilNode{baseNode{nodeNil, tok.pos, tok.line}}
	case tokenVariable:
		return p.useVar(tok)
	case tokenField:
		return &fieldNode{baseNode{nodeField, tok.pos, tok.line}, strings.Split(tok.val[1:], ".")}
	case tokenBool:
		return &boolNode{baseNode{nodeBool, tok.pos, tok.line}, tok.val == "true"}
	case tokenNumber:
		n, err := newNumber(tok)
		if err != nil {
			p.errorf("%s", err)
		}
		return n
	case tokenString, tokenRawString:
		s, err := strconv.Unquote(tok.val)
		if err != nil {
			p.errorf("%s", err)
		}
		return &stringNode{baseNode{nodeString, tok.pos, tok.line}, tok.val, s}
	case tokenLeftParen:
		return p.pipeline("parenthesized pipeline", tokenRightParen)
	default:
		p.unexpected(tok, "operand")
	}
	return nil
}

// useVar resolves a variable reference, which must have been declared.
func (p *parser) useVar(tok token) node {
	idents := strings.Split(tok.val, ".")
	for _, name := range p.vars {
		if name == idents[0] {
			return &variableNode{baseNode{nodeVariable, tok.pos, tok.line}, idents}
		}
	}
	p.errorf("undefined variable %q", idents[0])
	return nil
}

func (p *parser) hasFunction(name string) bool {
	for _, funcMap := range p.funcs {
		if funcMap == nil {
			continue
		}
		if funcMap[name] != nil {
			return true
		}
	}
	return false
}
