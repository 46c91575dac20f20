package weft

import "strings"

// missingKeyAction selects what execution does when a map is indexed with a
// key absent from the map.
type missingKeyAction int

const (
	mapInvalid   missingKeyAction = iota // return an invalid value, printed as <no value>
	mapZeroValue                         // return the zero value for the map element
	mapError                             // fail execution
)

type option struct {
	missingKey missingKeyAction
}

// Option sets options for the template, given as strings of the form
// "key=value". Known options:
//
//	missingkey=default, missingkey=invalid
//		The default behavior: print <no value> and continue.
//	missingkey=zero
//		The operation yields the map's element zero value.
//	missingkey=error
//		Execution stops with an error.
//
// An unrecognized or malformed option panics.
func (t *Template) Option(opt ...string) *Template {
	t.init()
	for _, s := range opt {
		t.setOption(s)
	}
	return t
}

func (t *Template) setOption(opt string) {
	if opt == "" {
		panic("empty option string")
	}
	if key, value, ok := strings.Cut(opt, "="); ok {
		switch key {
		case "missingkey":
			switch value {
			case "invalid", "default":
				t.option.missingKey = mapInvalid
				return
			case "zero":
				t.option.missingKey = mapZeroValue
				return
			case "error":
				t.option.missingKey = mapError
				return
			}
		}
	}
	panic("unrecognized option: " + opt)
}
