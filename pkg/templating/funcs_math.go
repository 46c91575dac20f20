package templating

import "reflect"

// add returns a + b.
func add(a, b int) int {
	return a + b
}

// sub returns a - b.
func sub(a, b int) int {
	return a - b
}

// div returns a / b (integer division). Returns 0 if b is 0.
func div(a, b int) int {
	if b == 0 {
		return 0
	}
	return a / b
}

// mult returns a * b.
func mult(a, b int) int {
	return a * b
}

// intMax returns the maximum of a and b.
func intMax(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// intMin returns the minimum of a and b.
func intMin(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// mod returns a % b. Returns 0 if b is 0.
func mod(a, b int) int {
	if b == 0 {
		return 0
	}
	return a % b
}

// inc returns i + 1.
func inc(i int) int {
	return i + 1
}

// dec returns i - 1.
func dec(i int) int {
	return i - 1
}

// isSet returns true if a value is not its zero value.
func isSet(val any) bool {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return false
	}
	return !v.IsZero()
}
