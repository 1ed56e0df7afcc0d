// Package enums holds the closed string sets persisted in the database and carried on the wire.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

type set[T ~string] []T

func members[T ~string](vs ...T) set[T] {
	return set[T](vs)
}

func (s set[T]) has(v T) bool {
	return slices.Contains(s, v)
}

// parse trims raw and requires an exact match; kind names the enum in the error.
func (s set[T]) parse(kind, raw string) (T, error) {
	if v := T(strings.TrimSpace(raw)); s.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
