package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/toprank/internal/domain/fitness"
	"github.com/okian/toprank/internal/domain/model"
)

const (
	envPrefix  = "TOPRANK_"
	envConfig  = "TOPRANK_CONFIG"
	defaultSep = "."
)

var validate = validator.New()

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if TOPRANK_CONFIG is set
//  3. env (prefix TOPRANK_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(defaultSep)

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// Map env keys like TOPRANK_STORE_DSN -> store_dsn (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider(envPrefix, defaultSep, func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}
	// The file path itself is not a setting.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and the problem catalog.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	return nil
}

// Catalog converts the configured problems. It returns nil when none are
// configured, leaving the caller's default catalog in place.
func (c *Config) Catalog() ([]model.Problem, error) {
	if len(c.Problems) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(c.Problems))
	out := make([]model.Problem, 0, len(c.Problems))
	for _, pc := range c.Problems {
		if _, dup := seen[pc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate problem id %q", ErrInvalidConfig, pc.ID)
		}
		seen[pc.ID] = struct{}{}

		kind, err := fitness.ParseKind(pc.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: problem %s: %w", ErrInvalidConfig, pc.ID, err)
		}
		lo, hi := kind.DefaultBounds()
		if pc.Lower != nil {
			lo = *pc.Lower
		}
		if pc.Upper != nil {
			hi = *pc.Upper
		}
		if !(lo < hi) {
			return nil, fmt.Errorf("%w: problem %s: lower bound %g must be below upper bound %g", ErrInvalidConfig, pc.ID, lo, hi)
		}

		status := model.ProblemActive
		if pc.Status != "" {
			status = model.ProblemStatus(pc.Status)
		}
		name := pc.Name
		if name == "" {
			name = kind.String()
		}
		out = append(out, model.Problem{
			ID:         pc.ID,
			Name:       name,
			Kind:       kind,
			Dimensions: append([]int(nil), pc.Dimensions...),
			Lower:      lo,
			Upper:      hi,
			Status:     status,
			Category:   pc.Category,
			Level:      pc.Level,
			Owner:      pc.Owner,
		})
	}
	return out, nil
}

// SeedUsers converts the configured user profiles.
func (c *Config) SeedUsers() []model.User {
	out := make([]model.User, 0, len(c.Users))
	for _, u := range c.Users {
		out = append(out, model.User{
			ID:          u.ID,
			Name:        u.Name,
			Email:       u.Email,
			Institution: u.Institution,
			Country:     u.Country,
		})
	}
	return out
}

// SeedContests converts the configured contests.
func (c *Config) SeedContests() []model.Contest {
	out := make([]model.Contest, 0, len(c.Contests))
	for _, cc := range c.Contests {
		out = append(out, model.Contest{
			ID:           cc.ID,
			Name:         cc.Name,
			ProblemIDs:   append([]string(nil), cc.ProblemIDs...),
			Participants: append([]string(nil), cc.Participants...),
			EventCode:    cc.EventCode,
			Status:       cc.Status,
		})
	}
	return out
}
