package weft

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"sort"
)

// maxExecDepth bounds nested {{template}} invocations so a recursive
// template fails with an error instead of exhausting the stack.
const maxExecDepth = 100000

var zero reflect.Value

var (
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
	fmtStringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

// ExecError is the error returned when execution of a template fails. The
// template may have rendered partial output to the writer by then.
type ExecError struct {
	Name string // name of the template where the error occurred
	Err  error
}

func (e ExecError) Error() string { return e.Err.Error() }
func (e ExecError) Unwrap() error { return e.Err }

// writeError wraps a failure of the output writer so it can be told apart
// from template evaluation errors during recovery.
type writeError struct {
	err error
}

// variable is a named value pushed on the execution stack by a declaration.
type variable struct {
	name  string
	value reflect.Value
}

// state holds the mutable state of one Execute call. Each template
// invocation gets its own copy, so templates never share variable scopes.
type state struct {
	tmpl  *Template
	wr    io.Writer
	node  node // current node, for error reporting
	vars  []variable
	depth int // nesting depth of {{template}} invocations
}

func (s *state) at(n node) {
	s.node = n
}

func (s *state) push(name string, value reflect.Value) {
	s.vars = append(s.vars, variable{name, value})
}

func (s *state) mark() int {
	return len(s.vars)
}

func (s *state) pop(mark int) {
	s.vars = s.vars[:mark]
}

func (s *state) setTopVar(n int, value reflect.Value) {
	s.vars[len(s.vars)-n].value = value
}

func (s *state) varValue(name string) reflect.Value {
	for i := s.mark() - 1; i >= 0; i-- {
		if s.vars[i].name == name {
			return s.vars[i].value
		}
	}
	s.errorf("undefined variable: %s", name)
	return zero
}

func (s *state) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	line := 0
	if s.node != nil {
		line = s.node.linenum()
	}
	panic(ExecError{
		Name: s.tmpl.Name(),
		Err:  fmt.Errorf("template: %s:%d: %s", s.tmpl.Name(), line, msg),
	})
}

func (s *state) writeString(text string) {
	if _, err := io.WriteString(s.wr, text); err != nil {
		panic(writeError{err})
	}
}

// errRecover turns the panics used internally for control flow and error
// reporting back into ordinary errors. Runtime panics, including those from
// user data with broken methods, are deliberately not swallowed here; they
// are caught earlier by safeCall where a function boundary exists.
func errRecover(errp *error) {
	e := recover()
	if e == nil {
		return
	}
	switch err := e.(type) {
	case runtime.Error:
		panic(e)
	case writeError:
		*errp = err.err
	case ExecError:
		*errp = err
	default:
		panic(e)
	}
}

// Execute applies the template to data and writes the output to wr. A
// template may be executed safely in parallel with itself and with other
// templates of its set, but not in parallel with Parse.
func (t *Template) Execute(wr io.Writer, data any) error {
	return t.execute(wr, data)
}

// ExecuteTemplate applies the associated template with the given name to
// data and writes the output to wr.
func (t *Template) ExecuteTemplate(wr io.Writer, name string, data any) error {
	tmpl := t.Lookup(name)
	if tmpl == nil {
		return fmt.Errorf("template: no template %q associated with template %q", name, t.name)
	}
	return tmpl.execute(wr, data)
}

func (t *Template) execute(wr io.Writer, data any) (err error) {
	defer errRecover(&err)
	value := reflect.ValueOf(data)
	s := &state{
		tmpl: t,
		wr:   wr,
		vars: []variable{{"$", value}},
	}
	if t.root == nil {
		s.errorf("%q is an incomplete or empty template", t.Name())
	}
	s.walk(value, t.root)
	return
}

// Sentinels for loop control flow. They unwind through walk via panic and
// are caught by the innermost walkRange.
var (
	walkBreak    = errors.New("break")
	walkContinue = errors.New("continue")
)

func (s *state) walk(dot reflect.Value, n node) {
	s.at(n)
	switch n := n.(type) {
	case *listNode:
		for _, sub := range n.nodes {
			s.walk(dot, sub)
		}
	case *textNode:
		s.writeString(n.text)
	case *actionNode:
		// A declaring action like {{$x := 3}} produces no output.
		val := s.evalPipeline(dot, n.pipe)
		if len(n.pipe.decl) == 0 {
			s.printValue(n, val)
		}
	case *ifNode:
		s.walkIfOrWith(nodeIf, dot, &n.branchNode)
	case *withNode:
		s.walkIfOrWith(nodeWith, dot, &n.branchNode)
	case *rangeNode:
		s.walkRange(dot, n)
	case *templateNode:
		s.walkTemplate(dot, n)
	case *breakNode:
		panic(walkBreak)
	case *continueNode:
		panic(walkContinue)
	default:
		s.errorf("unknown node: %s", n)
	}
}

// walkIfOrWith handles if and with, which share everything except what dot
// becomes inside the body.
func (s *state) walkIfOrWith(typ nodeType, dot reflect.Value, b *branchNode) {
	defer s.pop(s.mark())
	val := s.evalPipeline(dot, b.pipe)
	truth, ok := isTrue(indirectInterface(val))
	if !ok {
		s.errorf("if/with can't use %v", val)
	}
	if truth {
		if typ == nodeWith {
			s.walk(val, b.list)
		} else {
			s.walk(dot, b.list)
		}
	} else if b.elseList != nil {
		s.walk(dot, b.elseList)
	}
}

// IsTrue reports whether the value is "true" in the sense used by if and
// with: the truth of its boolean value, or non-emptiness otherwise. It also
// reports whether the value has a meaningful truth value at all.
func IsTrue(val any) (truth, ok bool) {
	return isTrue(reflect.ValueOf(val))
}

func isTrue(val reflect.Value) (truth, ok bool) {
	if !val.IsValid() {
		// A missing value is simply false.
		return false, true
	}
	switch val.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		truth = val.Len() > 0
	case reflect.Bool:
		truth = val.Bool()
	case reflect.Complex64, reflect.Complex128:
		truth = val.Complex() != 0
	case reflect.Chan, reflect.Func, reflect.Pointer, reflect.Interface:
		truth = !val.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		truth = val.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		truth = val.Uint() != 0
	case reflect.Float32, reflect.Float64:
		truth = val.Float() != 0
	case reflect.Struct:
		truth = true
	default:
		return
	}
	return truth, true
}

func (s *state) walkRange(dot reflect.Value, r *rangeNode) {
	s.at(r)
	defer s.pop(s.mark())
	defer func() {
		if v := recover(); v != nil && v != walkBreak {
			panic(v)
		}
	}()
	val, _ := indirect(s.evalPipeline(dot, r.pipe))
	mark := s.mark()
	oneIteration := func(index, elem reflect.Value) {
		if len(r.pipe.decl) > 0 {
			if len(r.pipe.decl) > 1 {
				s.setTopVar(2, index)
			}
			s.setTopVar(1, elem)
		}
		defer s.pop(mark)
		defer func() {
			if v := recover(); v != nil && v != walkContinue {
				panic(v)
			}
		}()
		s.walk(elem, r.list)
	}
	switch val.Kind() {
	case reflect.Array, reflect.Slice:
		if val.Len() == 0 {
			break
		}
		for i := 0; i < val.Len(); i++ {
			oneIteration(reflect.ValueOf(i), val.Index(i))
		}
		return
	case reflect.Map:
		if val.Len() == 0 {
			break
		}
		for _, key := range sortKeys(val.MapKeys()) {
			oneIteration(key, val.MapIndex(key))
		}
		return
	case reflect.Chan:
		if val.IsNil() {
			break
		}
		if val.Type().ChanDir() == reflect.SendDir {
			s.errorf("range over send-only channel %v", val)
		}
		i := 0
		for ; ; i++ {
			elem, ok := val.Recv()
			if !ok {
				break
			}
			oneIteration(reflect.ValueOf(i), elem)
		}
		if i == 0 {
			break
		}
		return
	case reflect.Invalid:
		break // a missing value ranges over nothing
	default:
		s.errorf("range can't iterate over %v", val)
	}
	if r.elseList != nil {
		s.walk(dot, r.elseList)
	}
}

// sortKeys orders map keys of the basic ordered kinds so range output is
// deterministic. Other key types keep reflect's order.
func sortKeys(v []reflect.Value) []reflect.Value {
	if len(v) <= 1 {
		return v
	}
	switch v[0].Kind() {
	case reflect.Float32, reflect.Float64:
		sort.Slice(v, func(i, j int) bool { return v[i].Float() < v[j].Float() })
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sort.Slice(v, func(i, j int) bool { return v[i].Int() < v[j].Int() })
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		sort.Slice(v, func(i, j int) bool { return v[i].Uint() < v[j].Uint() })
	case reflect.String:
		sort.Slice(v, func(i, j int) bool { return v[i].String() < v[j].String() })
	}
	return v
}

func (s *state) walkTemplate(dot reflect.Value, t *templateNode) {
	s.at(t)
	tmpl := s.tmpl.Lookup(t.name)
	if tmpl == nil {
		s.errorf("template %q not defined", t.name)
	}
	if s.depth == maxExecDepth {
		s.errorf("exceeded maximum template depth (%v)", maxExecDepth)
	}
	dot = s.evalPipeline(dot, t.pipe)
	// The invoked template gets a fresh variable scope rooted at its dot.
	newState := *s
	newState.depth++
	newState.tmpl = tmpl
	newState.vars = []variable{{"$", dot}}
	newState.walk(dot, tmpl.root)
}

// evalPipeline evaluates the commands left to right, each receiving the
// previous result as its final argument, then binds any declared variables.
func (s *state) evalPipeline(dot reflect.Value, pipe *pipeNode) (value reflect.Value) {
	if pipe == nil {
		return
	}
	s.at(pipe)
	for _, cmd := range pipe.cmds {
		value = s.evalCommand(dot, cmd, value)
		// Dig out of an empty interface so callers see the value inside.
		if value.Kind() == reflect.Interface && value.Type().NumMethod() == 0 {
			value = value.Elem()
		}
	}
	for _, v := range pipe.decl {
		s.push(v.idents[0], value)
	}
	return value
}

func (s *state) notAFunction(args []node, final reflect.Value) {
	if len(args) > 1 || final.IsValid() {
		s.errorf("can't give argument to non-function %s", args[0])
	}
}

func (s *state) evalCommand(dot reflect.Value, cmd *commandNode, final reflect.Value) reflect.Value {
	firstWord := cmd.args[0]
	switch n := firstWord.(type) {
	case *fieldNode:
		return s.evalFieldNode(dot, n, cmd.args, final)
	case *identifierNode:
		return s.evalFunction(dot, n, cmd, cmd.args, final)
	case *pipeNode:
		// Parenthesized pipeline. It cannot take arguments of its own.
		s.notAFunction(cmd.args, final)
		return s.evalPipeline(dot, n)
	case *variableNode:
		return s.evalVariableNode(dot, n, cmd.args, final)
	}
	s.at(firstWord)
	s.notAFunction(cmd.args, final)
	switch word := firstWord.(type) {
	case *boolNode:
		return reflect.ValueOf(word.val)
	case *dotNode:
		return dot
	case *nilNode:
		s.errorf("nil is not a command")
	case *numberNode:
		return s.idealConstant(word)
	case *stringNode:
		return reflect.ValueOf(word.text)
	}
	s.errorf("can't evaluate command %q", firstWord)
	panic("not reached")
}

// idealConstant picks a Go value for an untyped numeric constant: int when
// it fits, float64 when the text spells a float.
func (s *state) idealConstant(constant *numberNode) reflect.Value {
	s.at(constant)
	switch {
	case constant.isFloat && !isHexInt(constant.text) && containsAny(constant.text, ".eE"):
		return reflect.ValueOf(constant.float64v)
	case constant.isInt:
		n := int(constant.int64v)
		if int64(n) != constant.int64v {
			s.errorf("%s overflows int", constant.text)
		}
		return reflect.ValueOf(n)
	case constant.isUint:
		s.errorf("%s overflows int", constant.text)
	}
	return zero
}

func isHexInt(s string) bool {
	return len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func containsAny(s, chars string) bool {
	for i := 0; i < len(s); i++ {
		for j := 0; j < len(chars); j++ {
			if s[i] == chars[j] {
				return true
			}
		}
	}
	return false
}

func (s *state) evalFieldNode(dot reflect.Value, field *fieldNode, args []node, final reflect.Value) reflect.Value {
	s.at(field)
	return s.evalFieldChain(dot, dot, field, field.idents, args, final)
}

func (s *state) evalVariableNode(dot reflect.Value, v *variableNode, args []node, final reflect.Value) reflect.Value {
	// $x.Field has $x as the first ident; the rest is an ordinary chain.
	s.at(v)
	value := s.varValue(v.idents[0])
	if len(v.idents) == 1 {
		s.notAFunction(args, final)
		return value
	}
	return s.evalFieldChain(dot, value, v, v.idents[1:], args, final)
}

// evalFieldChain evaluates .X.Y.Z from left to right. Arguments and the
// pipeline's final value apply only to the last field, which may be a method.
func (s *state) evalFieldChain(dot, receiver reflect.Value, n node, idents []string, args []node, final reflect.Value) reflect.Value {
	m := len(idents)
	for i := 0; i < m-1; i++ {
		receiver = s.evalField(dot, idents[i], n, nil, zero, receiver)
	}
	return s.evalField(dot, idents[m-1], n, args, final, receiver)
}

func (s *state) evalFunction(dot reflect.Value, n *identifierNode, cmd node, args []node, final reflect.Value) reflect.Value {
	s.at(n)
	name := n.ident
	function, ok := findFunction(name, s.tmpl)
	if !ok {
		s.errorf("%q is not a defined function", name)
	}
	return s.evalCall(dot, function, cmd, name, args, final)
}

// evalField looks up one name on the receiver: methods first, then struct
// fields, then map entries.
func (s *state) evalField(dot reflect.Value, fieldName string, n node, args []node, final, receiver reflect.Value) reflect.Value {
	if !receiver.IsValid() {
		if s.tmpl.option.missingKey == mapError {
			s.errorf("nil data; no entry for key %q", fieldName)
		}
		return zero
	}
	typ := receiver.Type()
	receiver, isNil := indirect(receiver)
	if receiver.Kind() == reflect.Interface && isNil {
		s.errorf("nil pointer evaluating %s.%s", typ, fieldName)
	}

	// Methods take precedence over struct fields of the same name.
	ptr := receiver
	if ptr.Kind() != reflect.Interface && ptr.Kind() != reflect.Pointer && ptr.CanAddr() {
		ptr = ptr.Addr()
	}
	if method := ptr.MethodByName(fieldName); method.IsValid() {
		return s.evalCall(dot, method, n, fieldName, args, final)
	}
	hasArgs := len(args) > 1 || final.IsValid()
	switch receiver.Kind() {
	case reflect.Struct:
		tField, ok := receiver.Type().FieldByName(fieldName)
		if ok {
			if !tField.IsExported() {
				s.errorf("%s is an unexported field of struct type %s", fieldName, typ)
			}
			field, err := receiver.FieldByIndexErr(tField.Index)
			if err != nil {
				s.errorf("%v", err)
			}
			if hasArgs {
				s.errorf("%s has arguments but cannot be invoked as function", fieldName)
			}
			return field
		}
	case reflect.Map:
		nameVal := reflect.ValueOf(fieldName)
		if nameVal.Type().AssignableTo(receiver.Type().Key()) {
			if hasArgs {
				s.errorf("%s is not a method but has arguments", fieldName)
			}
			result := receiver.MapIndex(nameVal)
			if !result.IsValid() {
				switch s.tmpl.option.missingKey {
				case mapInvalid:
					// An invalid value prints as <no value>.
				case mapZeroValue:
					result = reflect.Zero(receiver.Type().Elem())
				case mapError:
					s.errorf("map has no entry for key %q", fieldName)
				}
			}
			return result
		}
	case reflect.Pointer:
		etyp := receiver.Type().Elem()
		if etyp.Kind() == reflect.Struct {
			if _, ok := etyp.FieldByName(fieldName); !ok {
				break
			}
		}
		if isNil {
			s.errorf("nil pointer evaluating %s.%s", typ, fieldName)
		}
	}
	s.errorf("can't evaluate field %s in type %s", fieldName, typ)
	panic("not reached")
}

// evalCall runs a function or method, type-checking every argument against
// the function's signature and recovering any panic into an error.
func (s *state) evalCall(dot, fun reflect.Value, n node, name string, args []node, final reflect.Value) reflect.Value {
	if len(args) > 0 {
		args = args[1:] // first arg is the function name itself
	}
	typ := fun.Type()
	if !goodFunc(typ) {
		s.errorf("can't call function %q with %d results", name, typ.NumOut())
	}
	numIn := len(args)
	if final.IsValid() {
		numIn++
	}
	numFixed := len(args)
	if typ.IsVariadic() {
		numFixed = typ.NumIn() - 1
		if numIn < numFixed {
			s.errorf("wrong number of args for %s: want at least %d got %d", name, typ.NumIn()-1, numIn)
		}
	} else if numIn != typ.NumIn() {
		s.errorf("wrong number of args for %s: want %d got %d", name, typ.NumIn(), numIn)
	}
	argv := make([]reflect.Value, numIn)
	i := 0
	for ; i < numFixed && i < len(args); i++ {
		argv[i] = s.evalArg(dot, typ.In(i), args[i])
	}
	if typ.IsVariadic() {
		argType := typ.In(typ.NumIn() - 1).Elem()
		for ; i < len(args); i++ {
			argv[i] = s.evalArg(dot, argType, args[i])
		}
	}
	if final.IsValid() {
		t := typ.In(typ.NumIn() - 1)
		if typ.IsVariadic() {
			if numIn-1 < numFixed {
				// The final value lands on a fixed parameter.
				t = typ.In(numIn - 1)
			} else {
				t = t.Elem()
			}
		}
		argv[i] = s.validateType(final, t)
	}
	v, err := safeCall(fun, argv)
	if err != nil {
		s.at(n)
		s.errorf("error calling %s: %v", name, err)
	}
	return v
}

// goodFunc reports whether the signature is callable from a template: one
// result, or two where the second is error.
func goodFunc(typ reflect.Type) bool {
	switch {
	case typ.NumOut() == 1:
		return true
	case typ.NumOut() == 2 && typ.Out(1) == errorType:
		return true
	}
	return false
}

// safeCall invokes fun, converting a panic in the call into an error return.
func safeCall(fun reflect.Value, args []reflect.Value) (val reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	ret := fun.Call(args)
	if len(ret) == 2 && !ret[1].IsNil() {
		return ret[0], ret[1].Interface().(error)
	}
	return ret[0], nil
}

func canBeNil(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return true
	}
	return false
}

// validateType checks value is assignable to typ, applying the implicit
// conversions templates allow: integer kind changes, one level of pointer
// addressing or dereference.
func (s *state) validateType(value reflect.Value, typ reflect.Type) reflect.Value {
	if !value.IsValid() {
		if canBeNil(typ) {
			return reflect.Zero(typ)
		}
		s.errorf("invalid value; expected %s", typ)
	}
	if value.Type().AssignableTo(typ) {
		return value
	}
	if intLike(value.Kind()) && intLike(typ.Kind()) && value.Type().ConvertibleTo(typ) {
		return value.Convert(typ)
	}
	switch {
	case value.Kind() == reflect.Pointer && value.Type().Elem().AssignableTo(typ):
		value = value.Elem()
		if !value.IsValid() {
			s.errorf("dereference of nil pointer of type %s", typ)
		}
	case reflect.PointerTo(value.Type()).AssignableTo(typ) && value.CanAddr():
		value = value.Addr()
	default:
		s.errorf("wrong type for value; expected %s; got %s", typ, value.Type())
	}
	return value
}

func intLike(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func (s *state) evalArg(dot reflect.Value, typ reflect.Type, n node) reflect.Value {
	s.at(n)
	switch arg := n.(type) {
	case *dotNode:
		return s.validateType(dot, typ)
	case *nilNode:
		if canBeNil(typ) {
			return reflect.Zero(typ)
		}
		s.errorf("cannot assign nil to %s", typ)
	case *fieldNode:
		return s.validateType(s.evalFieldNode(dot, arg, []node{n}, zero), typ)
	case *variableNode:
		return s.validateType(s.evalVariableNode(dot, arg, nil, zero), typ)
	case *pipeNode:
		return s.validateType(s.evalPipeline(dot, arg), typ)
	case *identifierNode:
		return s.validateType(s.evalFunction(dot, arg, arg, nil, zero), typ)
	}
	switch typ.Kind() {
	case reflect.Bool:
		return s.evalBool(typ, n)
	case reflect.Float32, reflect.Float64:
		return s.evalFloat(typ, n)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return s.evalInteger(typ, n)
	case reflect.Interface:
		if typ.NumMethod() == 0 {
			return s.evalEmptyInterface(dot, n)
		}
	case reflect.String:
		return s.evalString(typ, n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return s.evalUnsignedInteger(typ, n)
	}
	s.errorf("can't handle %s for arg of type %s", n, typ)
	panic("not reached")
}

func (s *state) evalBool(typ reflect.Type, n node) reflect.Value {
	s.at(n)
	if b, ok := n.(*boolNode); ok {
		value := reflect.New(typ).Elem()
		value.SetBool(b.val)
		return value
	}
	s.errorf("expected bool; found %s", n)
	panic("not reached")
}

func (s *state) evalString(typ reflect.Type, n node) reflect.Value {
	s.at(n)
	if str, ok := n.(*stringNode); ok {
		value := reflect.New(typ).Elem()
		value.SetString(str.text)
		return value
	}
	s.errorf("expected string; found %s", n)
	panic("not reached")
}

func (s *state) evalInteger(typ reflect.Type, n node) reflect.Value {
	s.at(n)
	if num, ok := n.(*numberNode); ok && num.isInt {
		value := reflect.New(typ).Elem()
		value.SetInt(num.int64v)
		return value
	}
	s.errorf("expected integer; found %s", n)
	panic("not reached")
}

func (s *state) evalUnsignedInteger(typ reflect.Type, n node) reflect.Value {
	s.at(n)
	if num, ok := n.(*numberNode); ok && num.isUint {
		value := reflect.New(typ).Elem()
		value.SetUint(num.uint64v)
		return value
	}
	s.errorf("expected unsigned integer; found %s", n)
	panic("not reached")
}

func (s *state) evalFloat(typ reflect.Type, n node) reflect.Value {
	s.at(n)
	if num, ok := n.(*numberNode); ok && num.isFloat {
		value := reflect.New(typ).Elem()
		value.SetFloat(num.float64v)
		return value
	}
	s.errorf("expected float; found %s", n)
	panic("not reached")
}

// evalEmptyInterface evaluates an argument destined for an any parameter,
// where the node's own natural type wins.
func (s *state) evalEmptyInterface(dot reflect.Value, n node) reflect.Value {
	s.at(n)
	switch n := n.(type) {
	case *boolNode:
		return reflect.ValueOf(n.val)
	case *dotNode:
		return dot
	case *fieldNode:
		return s.evalFieldNode(dot, n, nil, zero)
	case *identifierNode:
		return s.evalFunction(dot, n, n, nil, zero)
	case *numberNode:
		return s.idealConstant(n)
	case *stringNode:
		return reflect.ValueOf(n.text)
	case *variableNode:
		return s.evalVariableNode(dot, n, nil, zero)
	case *pipeNode:
		return s.evalPipeline(dot, n)
	}
	s.errorf("can't handle assignment of %s to empty interface argument", n)
	panic("not reached")
}

// indirect unwraps pointers and interfaces down to a concrete value,
// stopping at the first nil.
func indirect(v reflect.Value) (rv reflect.Value, isNil bool) {
	for ; v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface; v = v.Elem() {
		if v.IsNil() {
			return v, true
		}
	}
	return v, false
}

// indirectInterface unwraps one level of empty interface, leaving other
// values alone.
func indirectInterface(v reflect.Value) reflect.Value {
	if v.Kind() != reflect.Interface {
		return v
	}
	if v.IsNil() {
		return reflect.Value{}
	}
	return v.Elem()
}

func (s *state) printValue(n node, v reflect.Value) {
	s.at(n)
	iface, ok := printableValue(v)
	if !ok {
		s.errorf("can't print %s of type %s", n, v.Type())
	}
	if _, err := fmt.Fprint(s.wr, iface); err != nil {
		panic(writeError{err})
	}
}

// printableValue returns the value fmt should print for v, preferring an
// error or Stringer implementation on the value or its address.
func printableValue(v reflect.Value) (any, bool) {
	if v.Kind() == reflect.Pointer {
		v, _ = indirect(v)
	}
	if !v.IsValid() {
		return "<no value>", true
	}
	if !v.Type().Implements(errorType) && !v.Type().Implements(fmtStringerType) {
		if v.CanAddr() && (reflect.PointerTo(v.Type()).Implements(errorType) || reflect.PointerTo(v.Type()).Implements(fmtStringerType)) {
			v = v.Addr()
		} else if v.Kind() == reflect.Chan || v.Kind() == reflect.Func {
			return nil, false
		}
	}
	return v.Interface(), true
}
