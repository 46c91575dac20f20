package templating

import (
	"fmt"
	"reflect"
	"sort"
)

// list returns a slice containing all the arguments passed to it.
func list(args ...any) []any {
	return args
}

// dict builds a map from alternating key/value arguments. Keys must be
// strings.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict requires an even number of arguments, got %d", len(pairs))
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}

// first returns the first element of a slice, or nil if it is empty.
func first(slice any) any {
	v, ok := sliceValue(slice)
	if !ok || v.Len() == 0 {
		return nil
	}
	return v.Index(0).Interface()
}

// last returns the last element of a slice, or nil if it is empty.
func last(slice any) any {
	v, ok := sliceValue(slice)
	if !ok || v.Len() == 0 {
		return nil
	}
	return v.Index(v.Len() - 1).Interface()
}

// rest returns everything after the first element of a slice.
func rest(slice any) []any {
	v, ok := sliceValue(slice)
	if !ok || v.Len() == 0 {
		return nil
	}
	out := make([]any, 0, v.Len()-1)
	for i := 1; i < v.Len(); i++ {
		out = append(out, v.Index(i).Interface())
	}
	return out
}

// uniq returns the slice with duplicate elements removed, keeping the first
// occurrence of each. Elements must be comparable.
func uniq(slice any) []any {
	v, ok := sliceValue(slice)
	if !ok {
		return nil
	}
	seen := make(map[any]struct{}, v.Len())
	out := make([]any, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		item := v.Index(i).Interface()
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// sortAlpha returns the elements formatted as strings, sorted
// lexicographically.
func sortAlpha(slice any) []string {
	v, ok := sliceValue(slice)
	if !ok {
		return nil
	}
	out := make([]string, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = fmt.Sprint(v.Index(i).Interface())
	}
	sort.Strings(out)
	return out
}

// keys returns the string keys of a map, sorted.
func keys(m any) ([]string, error) {
	v := reflect.ValueOf(m)
	if !v.IsValid() || v.Kind() != reflect.Map {
		return nil, fmt.Errorf("keys of non-map value %v", m)
	}
	out := make([]string, 0, v.Len())
	for _, k := range v.MapKeys() {
		out = append(out, fmt.Sprint(k.Interface()))
	}
	sort.Strings(out)
	return out, nil
}

// has reports whether the slice contains the item.
func has(item any, slice any) bool {
	v, ok := sliceValue(slice)
	if !ok {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if v.Index(i).Interface() == item {
			return true
		}
	}
	return false
}

// repeat returns a slice of integers from 0 to count-1, capped by the
// configured MaxRepeat.
func (tm *TemplateManager) repeat(count int) []int {
	if count < 0 {
		count = 0
	}
	if count > tm.config.MaxRepeat {
		count = tm.config.MaxRepeat
	}
	s := make([]int, count)
	for i := range s {
		s[i] = i
	}
	return s
}

// seq returns the integers from start through end inclusive, counting down
// when start exceeds end. The result length is capped by MaxRepeat.
func (tm *TemplateManager) seq(start, end int) []int {
	step := 1
	n := end - start + 1
	if end < start {
		step = -1
		n = start - end + 1
	}
	if n > tm.config.MaxRepeat {
		n = tm.config.MaxRepeat
	}
	s := make([]int, n)
	for i := range s {
		s[i] = start + i*step
	}
	return s
}

func sliceValue(slice any) (reflect.Value, bool) {
	v := reflect.ValueOf(slice)
	if !v.IsValid() {
		return v, false
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return v, false
	}
	return v, true
}
