package fitness

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	schwefelConstant = 418.9829
	schwefelOptimum  = 420.9687
)

// Func is a closed-form objective over a solution vector.
type Func func(x []float64) float64

// Func returns the objective for k, or nil for an invalid kind.
func (k Kind) Func() Func {
	switch k {
	case KindAckley:
		return Ackley
	case KindRastrigin:
		return Rastrigin
	case KindSchwefel:
		return Schwefel
	case KindRosenbrock:
		return Rosenbrock
	case KindSphere:
		return Sphere
	case KindGriewank:
		return Griewank
	case KindLevy:
		return Levy
	default:
		return nil
	}
}

// mapped applies f to every component of x.
func mapped(x []float64, f func(float64) float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = f(v)
	}
	return out
}

// Ackley is -20·exp(-0.02·sqrt(mean(x²))) - exp(mean(cos(2πx))) + 20 + e.
func Ackley(x []float64) float64 {
	d := float64(len(x))
	sumSq := floats.Dot(x, x)
	sumCos := floats.Sum(mapped(x, func(v float64) float64 { return math.Cos(2 * math.Pi * v) }))

	term1 := -20 * math.Exp(-0.02*math.Sqrt(sumSq/d))
	term2 := -math.Exp(sumCos / d)
	return term1 + term2 + 20 + math.E
}

// Rastrigin is 10·D + Σ(x² - 10·cos(2πx)).
func Rastrigin(x []float64) float64 {
	d := float64(len(x))
	return 10*d + floats.Sum(mapped(x, func(v float64) float64 {
		return v*v - 10*math.Cos(2*math.Pi*v)
	}))
}

// Schwefel is 418.9829·D - Σ x·sin(sqrt(|x|)).
func Schwefel(x []float64) float64 {
	d := float64(len(x))
	return schwefelConstant*d - floats.Sum(mapped(x, func(v float64) float64 {
		return v * math.Sin(math.Sqrt(math.Abs(v)))
	}))
}

// Rosenbrock is Σ 100·(x[i+1] - x[i]²)² + (1 - x[i])² over consecutive pairs.
func Rosenbrock(x []float64) float64 {
	sum := 0.0
	for i := 0; i+1 < len(x); i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		sum += 100*a*a + b*b
	}
	return sum
}

// Sphere is Σ x².
func Sphere(x []float64) float64 {
	return floats.Dot(x, x)
}

// Griewank is 1 + Σx²/4000 - Π cos(x_i / sqrt(i)) with i starting at 1.
func Griewank(x []float64) float64 {
	prod := 1.0
	for i, v := range x {
		prod *= math.Cos(v / math.Sqrt(float64(i+1)))
	}
	return 1 + floats.Dot(x, x)/4000 - prod
}

// Levy evaluates the Levy function with w = 1 + (x - 1)/4.
func Levy(x []float64) float64 {
	n := len(x)
	w := mapped(x, func(v float64) float64 { return 1 + (v-1)/4 })

	s := math.Sin(math.Pi * w[0])
	term1 := s * s

	term2 := 0.0
	for i := 0; i < n-1; i++ {
		si := math.Sin(math.Pi*w[i] + 1)
		d := w[i] - 1
		term2 += d * d * (1 + 10*si*si)
	}

	last := w[n-1] - 1
	sl := math.Sin(2 * math.Pi * w[n-1])
	term3 := last * last * (1 + sl*sl)

	return term1 + term2 + term3
}
