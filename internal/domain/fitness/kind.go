// Package fitness implements the benchmark functions submissions are scored
// against and the domain-bounds validator that guards them.
//
// Every function is a minimisation objective: lower scores are better and
// each has a documented global optimum of 0.
package fitness

import (
	"fmt"
	"strings"
)

// Kind identifies one of the supported benchmark functions.
type Kind int

// Supported benchmark kinds. The zero value is invalid on purpose so an
// unset Kind never silently evaluates as one of the real functions.
const (
	KindUnknown Kind = iota
	KindAckley
	KindRastrigin
	KindSchwefel
	KindRosenbrock
	KindSphere
	KindGriewank
	KindLevy
)

var kindNames = map[Kind]string{
	KindAckley:     "ackley",
	KindRastrigin:  "rastrigin",
	KindSchwefel:   "schwefel",
	KindRosenbrock: "rosenbrock",
	KindSphere:     "sphere",
	KindGriewank:   "griewank",
	KindLevy:       "levy",
}

// Kinds lists every supported kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindAckley, KindRastrigin, KindSchwefel, KindRosenbrock, KindSphere, KindGriewank, KindLevy}
}

// ParseKind maps a case-insensitive name to a Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// String returns the lower-case kind name.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// DefaultBounds returns the conventional search domain for k.
func (k Kind) DefaultBounds() (lower, upper float64) {
	switch k {
	case KindAckley:
		return -35, 35
	case KindRastrigin, KindSphere:
		return -5.12, 5.12
	case KindSchwefel:
		return -500, 500
	case KindRosenbrock:
		return -5, 10
	case KindGriewank:
		return -600, 600
	case KindLevy:
		return -10, 10
	default:
		return 0, 0
	}
}

// Optimum returns the documented global minimiser of k in the given dimension.
func Optimum(k Kind, dimension int) []float64 {
	v := 0.0
	switch k {
	case KindSchwefel:
		v = schwefelOptimum
	case KindRosenbrock, KindLevy:
		v = 1
	}
	x := make([]float64, dimension)
	for i := range x {
		x[i] = v
	}
	return x
}
