package weft

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// common holds the state shared by all templates of one set: the registry
// of associated templates, the function maps and the execution options.
type common struct {
	tmpl   map[string]*Template
	muTmpl sync.RWMutex
	option option

	muFuncs    sync.RWMutex
	parseFuncs FuncMap
	execFuncs  map[string]reflect.Value
}

// Template is a named member of a template set. All templates created from
// one root via New or {{define}} share a namespace, functions and options.
type Template struct {
	name string
	root *listNode
	*common
	leftDelim  string
	rightDelim string
}

// New allocates a new, undefined template with the given name and a fresh
// set.
func New(name string) *Template {
	t := &Template{name: name}
	t.init()
	return t
}

// Name returns the name of the template.
func (t *Template) Name() string {
	return t.name
}

// New allocates a new, undefined template associated with t, sharing its
// set, delimiters and functions.
func (t *Template) New(name string) *Template {
	t.init()
	return &Template{
		name:       name,
		common:     t.common,
		leftDelim:  t.leftDelim,
		rightDelim: t.rightDelim,
	}
}

func (t *Template) init() {
	if t.common == nil {
		c := new(common)
		c.tmpl = make(map[string]*Template)
		c.parseFuncs = make(FuncMap)
		c.execFuncs = make(map[string]reflect.Value)
		t.common = c
	}
}

// Clone duplicates the template set, including all associated templates and
// functions. The parse trees themselves are immutable and shared. A clone
// may then diverge: new definitions and functions added to the copy do not
// affect the original.
func (t *Template) Clone() (*Template, error) {
	nt := t.copy(nil)
	nt.init()
	if t.common == nil {
		return nt, nil
	}
	t.muTmpl.RLock()
	defer t.muTmpl.RUnlock()
	nt.option = t.option
	for k, v := range t.tmpl {
		if k == t.name {
			nt.tmpl[t.name] = nt
			continue
		}
		nt.tmpl[k] = v.copy(nt.common)
	}
	t.muFuncs.RLock()
	defer t.muFuncs.RUnlock()
	maps.Copy(nt.parseFuncs, t.parseFuncs)
	maps.Copy(nt.execFuncs, t.execFuncs)
	return nt, nil
}

// copy returns a shallow copy of t, with common set to the argument.
func (t *Template) copy(c *common) *Template {
	return &Template{
		name:       t.name,
		root:       t.root,
		common:     c,
		leftDelim:  t.leftDelim,
		rightDelim: t.rightDelim,
	}
}

// Funcs adds the elements of the argument map to the template's function
// map. It panics if a value in the map is not a function with appropriate
// return type or if the name cannot be used as an identifier. Funcs must be
// called before the template is parsed.
func (t *Template) Funcs(funcMap FuncMap) *Template {
	t.init()
	t.muFuncs.Lock()
	defer t.muFuncs.Unlock()
	addValueFuncs(t.execFuncs, funcMap)
	addFuncs(t.parseFuncs, funcMap)
	return t
}

// Delims sets the action delimiters to the specified strings, to be used in
// subsequent calls to Parse. An empty delimiter stands for the default.
func (t *Template) Delims(left, right string) *Template {
	t.init()
	t.leftDelim = left
	t.rightDelim = right
	return t
}

// Lookup returns the template with the given name in t's set, or nil if
// there is none.
func (t *Template) Lookup(name string) *Template {
	if t.common == nil {
		return nil
	}
	t.muTmpl.RLock()
	defer t.muTmpl.RUnlock()
	return t.tmpl[name]
}

// Templates returns a slice of the templates associated with t, including t
// itself.
func (t *Template) Templates() []*Template {
	if t.common == nil {
		return nil
	}
	t.muTmpl.RLock()
	defer t.muTmpl.RUnlock()
	m := make([]*Template, 0, len(t.tmpl))
	for _, v := range t.tmpl {
		m = append(m, v)
	}
	return m
}

// DefinedTemplates returns a string listing the defined templates, prefixed
// by "; defined templates are: ". It is meant for building error messages.
func (t *Template) DefinedTemplates() string {
	if t.common == nil {
		return ""
	}
	t.muTmpl.RLock()
	defer t.muTmpl.RUnlock()
	var names []string
	for name, tmpl := range t.tmpl {
		if tmpl.root != nil {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("; defined templates are: ")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", name)
	}
	return b.String()
}

// Parse parses text as a template body for t, adding any {{define}} and
// {{block}} clauses to the set. A definition that would render nothing but
// whitespace never displaces a non-empty one, so templates may be
// redefined in later Parse calls but empty re-parses are harmless.
func (t *Template) Parse(text string) (*Template, error) {
	t.init()
	t.muFuncs.RLock()
	trees, err := parse(t.name, text, t.leftDelim, t.rightDelim, t.parseFuncs, builtins())
	t.muFuncs.RUnlock()
	if err != nil {
		return nil, err
	}
	t.muTmpl.Lock()
	defer t.muTmpl.Unlock()
	for name, tree := range trees {
		t.associate(name, tree)
	}
	return t, nil
}

// associate installs the tree under name in the set. The caller must hold
// muTmpl.
func (t *Template) associate(name string, tree *listNode) *Template {
	nt := t
	if name != t.name {
		nt = t.tmpl[name]
		if nt == nil {
			nt = t.New(name)
		}
	}
	if isEmptyTree(tree) && nt.root != nil {
		return nt
	}
	nt.root = tree
	t.tmpl[name] = nt
	return nt
}

// Must is a helper that panics if err is non-nil. It is intended for use in
// variable initializations such as
//
//	var t = weft.Must(weft.New("name").Parse("text"))
func Must(t *Template, err error) *Template {
	if err != nil {
		panic(err)
	}
	return t
}

// ParseFiles creates a new template from the named files. The returned
// template takes the base name of the first file; each file becomes an
// associated template named after its own base name.
func ParseFiles(filenames ...string) (*Template, error) {
	return parseFiles(nil, filenames...)
}

// ParseFiles parses the named files and associates the resulting templates
// with t.
func (t *Template) ParseFiles(filenames ...string) (*Template, error) {
	t.init()
	return parseFiles(t, filenames...)
}

func parseFiles(t *Template, filenames ...string) (*Template, error) {
	if len(filenames) == 0 {
		return nil, fmt.Errorf("template: no files named in call to ParseFiles")
	}
	for _, filename := range filenames {
		b, err := os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(filename)
		if t == nil {
			t = New(name)
		}
		var tmpl *Template
		if name == t.Name() {
			tmpl = t
		} else {
			tmpl = t.New(name)
		}
		if _, err := tmpl.Parse(string(b)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ParseGlob creates a new template from the files matched by the pattern,
// equivalent to calling ParseFiles with the matches.
func ParseGlob(pattern string) (*Template, error) {
	return parseGlob(nil, pattern)
}

// ParseGlob parses the files matched by the pattern and associates the
// resulting templates with t.
func (t *Template) ParseGlob(pattern string) (*Template, error) {
	t.init()
	return parseGlob(t, pattern)
}

func parseGlob(t *Template, pattern string) (*Template, error) {
	filenames, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(filenames) == 0 {
		return nil, fmt.Errorf("template: pattern matches no files: %#q", pattern)
	}
	return parseFiles(t, filenames...)
}
