package enums

import (
	"fmt"
	"slices"
	"strings"
)

// valueSet is the closed list of values one string enum accepts.
type valueSet[T ~string] struct {
	kind   string
	values []T
}

func newValueSet[T ~string](kind string, values ...T) valueSet[T] {
	return valueSet[T]{kind: kind, values: values}
}

func (s valueSet[T]) contains(v T) bool {
	return slices.Contains(s.values, v)
}

// parse trims and lowercases raw before matching.
func (s valueSet[T]) parse(raw string) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if s.contains(v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", s.kind, raw)
}

// Values returns the accepted values in declaration order.
func (s valueSet[T]) Values() []T {
	return slices.Clone(s.values)
}
