package loadtest

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// shrinkStep narrows the sampling box for each later submission of a user,
// so repeated submitters tend to improve.
const shrinkStep = 0.85

// generate builds n submissions round-robin over users. Vectors are
// uniform within a box around the domain centre that shrinks per user.
func generate(cfg *Config, p Problem) []Submission {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	users := make([]string, cfg.NumUsers)
	for i := range users {
		users[i] = "load-" + uuid.NewString()[:8]
	}

	centre := (p.Lower + p.Upper) / 2
	half := (p.Upper - p.Lower) / 2
	attempts := make(map[string]int, len(users))

	out := make([]Submission, cfg.NumSubmissions)
	for i := range out {
		user := users[i%len(users)]
		width := half
		for k := 0; k < attempts[user]; k++ {
			width *= shrinkStep
		}
		attempts[user]++

		x := make([]float64, cfg.Dimension)
		for j := range x {
			x[j] = centre + (2*rng.Float64()-1)*width
		}
		out[i] = Submission{UserID: user, Dimension: cfg.Dimension, Solution: x}
	}
	return out
}
