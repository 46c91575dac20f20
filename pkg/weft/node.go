package weft

import (
	"fmt"
	"strconv"
	"strings"
)

type nodeType int

const (
	nodeText nodeType = iota
	nodeAction
	nodeBool
	nodeCommand
	nodeDot
	nodeElse
	nodeEnd
	nodeField
	nodeIdentifier
	nodeIf
	nodeList
	nodeNil
	nodeNumber
	nodePipe
	nodeRange
	nodeString
	nodeTemplate
	nodeVariable
	nodeWith
	nodeBreak
	nodeContinue
)

// node is an element of the parsed template tree. Trees are immutable after
// parsing, so clones of a template may share them freely.
type node interface {
	ntype() nodeType
	// String reassembles the canonical template text of the node.
	String() string
	position() int
	linenum() int
}

type baseNode struct {
	typ  nodeType
	pos  int
	line int
}

func (b baseNode) ntype() nodeType { return b.typ }
func (b baseNode) position() int   { return b.pos }
func (b baseNode) linenum() int    { return b.line }

// listNode is a sequence of nodes, the body of a template or a branch.
type listNode struct {
	baseNode
	nodes []node
}

func newList(pos, line int) *listNode {
	return &listNode{baseNode: baseNode{nodeList, pos, line}}
}

func (l *listNode) append(n node) {
	l.nodes = append(l.nodes, n)
}

func (l *listNode) String() string {
	var sb strings.Builder
	for _, n := range l.nodes {
		sb.WriteString(n.String())
	}
	return sb.String()
}

type textNode struct {
	baseNode
	text string
}

func (t *textNode) String() string { return t.text }

// actionNode holds a pipeline to be evaluated, such as {{.Name | upper}}.
type actionNode struct {
	baseNode
	pipe *pipeNode
}

func (a *actionNode) String() string {
	return "{{" + a.pipe.String() + "}}"
}

// pipeNode is a possibly declaring pipeline: [$v :=] cmd | cmd | cmd.
type pipeNode struct {
	baseNode
	decl []*variableNode
	cmds []*commandNode
}

func (p *pipeNode) String() string {
	var sb strings.Builder
	if len(p.decl) > 0 {
		for i, v := range p.decl {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(v.String())
		}
		sb.WriteString(" := ")
	}
	for i, c := range p.cmds {
		if i > 0 {
			sb.WriteString(" | ")
		}
		sb.WriteString(c.String())
	}
	return sb.String()
}

// commandNode is one stage of a pipeline: an operand with optional arguments.
type commandNode struct {
	baseNode
	args []node
}

func (c *commandNode) String() string {
	var sb strings.Builder
	for i, arg := range c.args {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if p, ok := arg.(*pipeNode); ok {
			sb.WriteByte('(')
			sb.WriteString(p.String())
			sb.WriteByte(')')
			continue
		}
		sb.WriteString(arg.String())
	}
	return sb.String()
}

type identifierNode struct {
	baseNode
	ident string
}

func (i *identifierNode) String() string { return i.ident }

// variableNode holds $name plus any trailing field segments.
type variableNode struct {
	baseNode
	idents []string
}

func (v *variableNode) String() string { return strings.Join(v.idents, ".") }

type dotNode struct{ baseNode }

func (d *dotNode) String() string { return "." }

type nilNode struct{ baseNode }

func (n *nilNode) String() string { return "nil" }

// fieldNode holds the segments of a field chain rooted at dot, without dots.
type fieldNode struct {
	baseNode
	idents []string
}

func (f *fieldNode) String() string { return "." + strings.Join(f.idents, ".") }

type boolNode struct {
	baseNode
	val bool
}

func (b *boolNode) String() string { return strconv.FormatBool(b.val) }

// numberNode holds a numeric constant in every representation it fits.
type numberNode struct {
	baseNode
	isInt    bool
	isUint   bool
	isFloat  bool
	int64v   int64
	uint64v  uint64
	float64v float64
	text     string
}

func (n *numberNode) String() string { return n.text }

func newNumber(tok token) (*numberNode, error) {
	n := &numberNode{baseNode: baseNode{nodeNumber, tok.pos, tok.line}, text: tok.val}
	if i, err := strconv.ParseInt(tok.val, 0, 64); err == nil {
		n.isInt = true
		n.int64v = i
	}
	if u, err := strconv.ParseUint(tok.val, 0, 64); err == nil {
		n.isUint = true
		n.uint64v = u
	}
	if f, err := strconv.ParseFloat(tok.val, 64); err == nil {
		n.isFloat = true
		n.float64v = f
		if !n.isInt && float64(int64(f)) == f {
			n.isInt = true
			n.int64v = int64(f)
		}
		if !n.isUint && f >= 0 && float64(uint64(f)) == f {
			n.isUint = true
			n.uint64v = uint64(f)
		}
	}
	if !n.isInt && !n.isUint && !n.isFloat {
		return nil, fmt.Errorf("illegal number syntax: %q", tok.val)
	}
	return n, nil
}

type stringNode struct {
	baseNode
	quoted string // original, with quotes
	text   string // unquoted
}

func (s *stringNode) String() string { return s.quoted }

// endNode and elseNode are markers returned while parsing nested bodies.
// They never appear in a finished tree.
type endNode struct{ baseNode }

func (e *endNode) String() string { return "{{end}}" }

type elseNode struct{ baseNode }

func (e *elseNode) String() string { return "{{else}}" }

// branchNode is the shared shape of if, range and with.
type branchNode struct {
	baseNode
	pipe     *pipeNode
	list     *listNode
	elseList *listNode
}

func (b *branchNode) String() string {
	var name string
	switch b.typ {
	case nodeIf:
		name = "if"
	case nodeRange:
		name = "range"
	case nodeWith:
		name = "with"
	default:
		panic("unknown branch type")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "{{%s %s}}%s", name, b.pipe, b.list)
	if b.elseList != nil {
		fmt.Fprintf(&sb, "{{else}}%s", b.elseList)
	}
	sb.WriteString("{{end}}")
	return sb.String()
}

type ifNode struct{ branchNode }
type rangeNode struct{ branchNode }
type withNode struct{ branchNode }

// templateNode invokes an associated template by name, with an optional
// pipeline providing its dot.
type templateNode struct {
	baseNode
	name string
	pipe *pipeNode
}

func (t *templateNode) String() string {
	if t.pipe == nil {
		return fmt.Sprintf("{{template %q}}", t.name)
	}
	return fmt.Sprintf("{{template %q %s}}", t.name, t.pipe)
}

type breakNode struct{ baseNode }

func (b *breakNode) String() string { return "{{break}}" }

type continueNode struct{ baseNode }

func (c *continueNode) String() string { return "{{continue}}" }

// isEmptyTree reports whether the tree renders no output: nothing but
// whitespace text. Such a tree never displaces an existing definition.
func isEmptyTree(n node) bool {
	switch n := n.(type) {
	case nil:
		return true
	case *listNode:
		for _, sub := range n.nodes {
			if !isEmptyTree(sub) {
				return false
			}
		}
		return true
	case *textNode:
		return len(strings.TrimSpace(n.text)) == 0
	}
	return false
}
