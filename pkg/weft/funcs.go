package weft

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"unicode"
)

// FuncMap maps names to functions callable from templates. Each function
// must return one value, or two where the second is of type error. An error
// result aborts execution and is returned from Execute.
type FuncMap map[string]any

func builtins() FuncMap {
	return FuncMap{
		"and":      and,
		"call":     call,
		"html":     htmlEscaper,
		"index":    index,
		"slice":    slice,
		"js":       jsEscaper,
		"len":      length,
		"not":      not,
		"or":       or,
		"print":    fmt.Sprint,
		"printf":   fmt.Sprintf,
		"println":  fmt.Sprintln,
		"urlquery": urlQueryEscaper,

		"eq": eq,
		"ge": ge,
		"gt": gt,
		"le": le,
		"lt": lt,
		"ne": ne,
	}
}

var builtinFuncs = sync.OnceValue(func() map[string]reflect.Value {
	return createValueFuncs(builtins())
})

func createValueFuncs(funcMap FuncMap) map[string]reflect.Value {
	m := make(map[string]reflect.Value)
	addValueFuncs(m, funcMap)
	return m
}

// addValueFuncs installs the functions into the map, vetting names and
// signatures. Bad entries panic: FuncMap mistakes are programmer errors.
func addValueFuncs(out map[string]reflect.Value, in FuncMap) {
	for name, fn := range in {
		if !goodName(name) {
			panic(fmt.Errorf("function name %q is not a valid identifier", name))
		}
		v := reflect.ValueOf(fn)
		if v.Kind() != reflect.Func {
			panic("value for " + name + " not a function")
		}
		if !goodFunc(v.Type()) {
			panic(fmt.Errorf("can't install function %q with %d results", name, v.Type().NumOut()))
		}
		out[name] = v
	}
}

func addFuncs(out, in FuncMap) {
	for name, fn := range in {
		out[name] = fn
	}
}

// goodName reports whether the name may be used as a function name in a
// template: a Go-style identifier.
func goodName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_':
		case i == 0 && !unicode.IsLetter(r):
			return false
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			return false
		}
	}
	return true
}

// findFunction looks up a name in the template set's functions, then the
// builtins.
func findFunction(name string, tmpl *Template) (reflect.Value, bool) {
	if tmpl != nil && tmpl.common != nil {
		tmpl.muFuncs.RLock()
		fn := tmpl.execFuncs[name]
		tmpl.muFuncs.RUnlock()
		if fn.IsValid() {
			return fn, true
		}
	}
	if fn := builtinFuncs()[name]; fn.IsValid() {
		return fn, true
	}
	return zero, false
}

// prepareArg coerces a runtime value to a parameter type, allowing the same
// implicit conversions evalCall does.
func prepareArg(value reflect.Value, argType reflect.Type) (reflect.Value, error) {
	if !value.IsValid() {
		if !canBeNil(argType) {
			return zero, fmt.Errorf("value is nil; should be of type %s", argType)
		}
		value = reflect.Zero(argType)
	}
	if value.Type().AssignableTo(argType) {
		return value, nil
	}
	if intLike(value.Kind()) && intLike(argType.Kind()) && value.Type().ConvertibleTo(argType) {
		return value.Convert(argType), nil
	}
	return zero, fmt.Errorf("value has type %s; should be %s", value.Type(), argType)
}

func toInt(index reflect.Value) (int64, error) {
	switch index.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return index.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(index.Uint()), nil
	case reflect.Float32, reflect.Float64:
		x := int64(index.Float())
		if float64(x) != index.Float() {
			return 0, fmt.Errorf("cannot index with non-integer %v", index.Float())
		}
		return x, nil
	case reflect.Invalid:
		return 0, errors.New("cannot index with nil")
	}
	return 0, fmt.Errorf("cannot index with type %s", index.Type())
}

// index returns the result of indexing item with the following arguments in
// turn. Thus "index x 1 2 3" is x[1][2][3].
func index(item any, indexes ...any) (any, error) {
	v := reflect.ValueOf(item)
	if !v.IsValid() {
		return nil, errors.New("index of untyped nil")
	}
	for _, i := range indexes {
		idx := reflect.ValueOf(i)
		var isNil bool
		if v, isNil = indirect(v); isNil {
			return nil, errors.New("index of nil pointer")
		}
		switch v.Kind() {
		case reflect.Array, reflect.Slice, reflect.String:
			x, err := toInt(idx)
			if err != nil {
				return nil, err
			}
			if x < 0 || x >= int64(v.Len()) {
				return nil, fmt.Errorf("index out of range: %d", x)
			}
			v = v.Index(int(x))
		case reflect.Map:
			key, err := prepareArg(idx, v.Type().Key())
			if err != nil {
				return nil, err
			}
			if x := v.MapIndex(key); x.IsValid() {
				v = x
			} else {
				v = reflect.Zero(v.Type().Elem())
			}
		default:
			return nil, fmt.Errorf("can't index item of type %s", v.Type())
		}
	}
	return v.Interface(), nil
}

// slice returns item[i:j] or item[i:j:k] for slices, arrays and (two-index
// only) strings.
func slice(item any, indexes ...any) (any, error) {
	v := reflect.ValueOf(item)
	if !v.IsValid() {
		return nil, errors.New("slice of untyped nil")
	}
	if len(indexes) > 3 {
		return nil, fmt.Errorf("too many slice indexes: %d", len(indexes))
	}
	var limit int64
	switch v.Kind() {
	case reflect.String:
		if len(indexes) == 3 {
			return nil, errors.New("cannot 3-index slice a string")
		}
		limit = int64(v.Len())
	case reflect.Array, reflect.Slice:
		limit = int64(v.Cap())
	default:
		return nil, fmt.Errorf("can't slice item of type %s", v.Type())
	}
	idx := [3]int64{0, int64(v.Len()), limit}
	for i, index := range indexes {
		x, err := toInt(reflect.ValueOf(index))
		if err != nil {
			return nil, err
		}
		idx[i] = x
	}
	if !(0 <= idx[0] && idx[0] <= idx[1] && idx[1] <= idx[2] && idx[2] <= limit) {
		return nil, fmt.Errorf("invalid slice index: %d > %d", idx[0], idx[1])
	}
	if len(indexes) < 3 {
		return v.Slice(int(idx[0]), int(idx[1])).Interface(), nil
	}
	return v.Slice3(int(idx[0]), int(idx[1]), int(idx[2])).Interface(), nil
}

// length returns the length of the item, with an error rather than a panic
// for unmeasurable types.
func length(item any) (int, error) {
	v := reflect.ValueOf(item)
	if !v.IsValid() {
		return 0, errors.New("len of untyped nil")
	}
	v, isNil := indirect(v)
	if isNil {
		return 0, errors.New("len of nil pointer")
	}
	switch v.Kind() {
	case reflect.Array, reflect.Chan, reflect.Map, reflect.Slice, reflect.String:
		return v.Len(), nil
	}
	return 0, fmt.Errorf("len of type %s", v.Type())
}

// call invokes the first argument, which must be a function, with the
// remaining arguments.
func call(fn any, args ...any) (any, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() {
		return nil, errors.New("call of nil")
	}
	typ := v.Type()
	if typ.Kind() != reflect.Func {
		return nil, fmt.Errorf("non-function of type %s", typ)
	}
	if !goodFunc(typ) {
		return nil, fmt.Errorf("function called with %d results; should be 1 or 2", typ.NumOut())
	}
	numIn := typ.NumIn()
	var dddType reflect.Type
	if typ.IsVariadic() {
		if len(args) < numIn-1 {
			return nil, fmt.Errorf("wrong number of args: got %d want at least %d", len(args), numIn-1)
		}
		dddType = typ.In(numIn - 1).Elem()
	} else if len(args) != numIn {
		return nil, fmt.Errorf("wrong number of args: got %d want %d", len(args), numIn)
	}
	argv := make([]reflect.Value, len(args))
	for i, arg := range args {
		argType := dddType
		if !typ.IsVariadic() || i < numIn-1 {
			argType = typ.In(i)
		}
		var err error
		if argv[i], err = prepareArg(reflect.ValueOf(arg), argType); err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
	}
	ret, err := safeCall(v, argv)
	if err != nil {
		return nil, err
	}
	return ret.Interface(), nil
}

// Boolean logic.

func truth(arg any) bool {
	t, _ := IsTrue(arg)
	return t
}

// and computes the Boolean AND of its arguments, returning the first false
// argument or the last one.
func and(arg0 any, args ...any) any {
	if !truth(arg0) {
		return arg0
	}
	for _, arg := range args {
		arg0 = arg
		if !truth(arg) {
			break
		}
	}
	return arg0
}

// or computes the Boolean OR of its arguments, returning the first true
// argument or the last one.
func or(arg0 any, args ...any) any {
	if truth(arg0) {
		return arg0
	}
	for _, arg := range args {
		arg0 = arg
		if truth(arg) {
			break
		}
	}
	return arg0
}

func not(arg any) bool {
	return !truth(arg)
}

// Comparison.

var (
	errBadComparisonType = errors.New("invalid type for comparison")
	errBadComparison     = errors.New("incompatible types for comparison")
	errNoComparison      = errors.New("missing argument for comparison")
)

type ckind int

const (
	invalidKind ckind = iota
	boolKind
	complexKind
	intKind
	floatKind
	stringKind
	uintKind
)

func basicKind(v reflect.Value) (ckind, error) {
	switch v.Kind() {
	case reflect.Bool:
		return boolKind, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intKind, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return uintKind, nil
	case reflect.Float32, reflect.Float64:
		return floatKind, nil
	case reflect.Complex64, reflect.Complex128:
		return complexKind, nil
	case reflect.String:
		return stringKind, nil
	}
	return invalidKind, errBadComparisonType
}

// eq evaluates arg1 == arg2 for any of the following arguments; signed and
// unsigned integers compare by value.
func eq(arg1 any, arg2 ...any) (bool, error) {
	v1 := indirectInterface(reflect.ValueOf(arg1))
	if len(arg2) == 0 {
		return false, errNoComparison
	}
	k1, _ := basicKind(v1)
	for _, arg := range arg2 {
		v2 := indirectInterface(reflect.ValueOf(arg))
		k2, _ := basicKind(v2)
		truth := false
		if k1 != k2 {
			switch {
			case k1 == intKind && k2 == uintKind:
				truth = v1.Int() >= 0 && uint64(v1.Int()) == v2.Uint()
			case k1 == uintKind && k2 == intKind:
				truth = v2.Int() >= 0 && v1.Uint() == uint64(v2.Int())
			default:
				if v1.IsValid() && v2.IsValid() {
					return false, errBadComparison
				}
			}
		} else {
			switch k1 {
			case boolKind:
				truth = v1.Bool() == v2.Bool()
			case complexKind:
				truth = v1.Complex() == v2.Complex()
			case floatKind:
				truth = v1.Float() == v2.Float()
			case intKind:
				truth = v1.Int() == v2.Int()
			case stringKind:
				truth = v1.String() == v2.String()
			case uintKind:
				truth = v1.Uint() == v2.Uint()
			default:
				switch {
				case !v1.IsValid() && !v2.IsValid():
					truth = true
				case !v1.IsValid() || !v2.IsValid():
					truth = false
				default:
					if t2 := v2.Type(); !t2.Comparable() {
						return false, fmt.Errorf("uncomparable type %s: %v", t2, v2)
					}
					truth = v1.Interface() == v2.Interface()
				}
			}
		}
		if truth {
			return true, nil
		}
	}
	return false, nil
}

func ne(arg1, arg2 any) (bool, error) {
	equal, err := eq(arg1, arg2)
	return !equal, err
}

// lt evaluates arg1 < arg2.
func lt(arg1, arg2 any) (bool, error) {
	v1 := indirectInterface(reflect.ValueOf(arg1))
	k1, err := basicKind(v1)
	if err != nil {
		return false, err
	}
	v2 := indirectInterface(reflect.ValueOf(arg2))
	k2, err := basicKind(v2)
	if err != nil {
		return false, err
	}
	truth := false
	if k1 != k2 {
		switch {
		case k1 == intKind && k2 == uintKind:
			truth = v1.Int() < 0 || uint64(v1.Int()) < v2.Uint()
		case k1 == uintKind && k2 == intKind:
			truth = v2.Int() >= 0 && v1.Uint() < uint64(v2.Int())
		default:
			return false, errBadComparison
		}
	} else {
		switch k1 {
		case boolKind, complexKind:
			return false, errBadComparisonType
		case floatKind:
			truth = v1.Float() < v2.Float()
		case intKind:
			truth = v1.Int() < v2.Int()
		case stringKind:
			truth = v1.String() < v2.String()
		case uintKind:
			truth = v1.Uint() < v2.Uint()
		}
	}
	return truth, nil
}

func le(arg1, arg2 any) (bool, error) {
	less, err := lt(arg1, arg2)
	if less || err != nil {
		return less, err
	}
	return eq(arg1, arg2)
}

func gt(arg1, arg2 any) (bool, error) {
	lessOrEqual, err := le(arg1, arg2)
	if err != nil {
		return false, err
	}
	return !lessOrEqual, nil
}

func ge(arg1, arg2 any) (bool, error) {
	less, err := lt(arg1, arg2)
	if err != nil {
		return false, err
	}
	return !less, nil
}

// Escaping.

var (
	htmlReplacer = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&#34;",
		"'", "&#39;",
	)
	jsReplacer = strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`"`, `\"`,
		"<", "\\u003C",
		">", "\\u003E",
		"&", "\\u0026",
		"=", "\\u003D",
	)
)

// HTMLEscapeString returns the escaped HTML equivalent of the plain text s.
func HTMLEscapeString(s string) string {
	if !strings.ContainsAny(s, `'"&<>`) {
		return s
	}
	return htmlReplacer.Replace(s)
}

// JSEscapeString returns the escaped JavaScript equivalent of the plain
// text s.
func JSEscapeString(s string) string {
	if !strings.ContainsAny(s, `\'"<>&=`) {
		return s
	}
	return jsReplacer.Replace(s)
}

// evalArgs formats the arguments the way print would, except that a lone
// string is passed through untouched.
func evalArgs(args []any) string {
	if len(args) == 1 {
		if s, ok := args[0].(string); ok {
			return s
		}
	}
	return fmt.Sprint(args...)
}

func htmlEscaper(args ...any) string {
	return HTMLEscapeString(evalArgs(args))
}

func jsEscaper(args ...any) string {
	return JSEscapeString(evalArgs(args))
}

func urlQueryEscaper(args ...any) string {
	return url.QueryEscape(evalArgs(args))
}
