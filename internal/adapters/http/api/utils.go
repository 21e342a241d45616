package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies; a D100 vector is well below it.
const maxBodyBytes = 1 << 20

var validate = validator.New()

// decodeJSON reads a JSON body into dst and runs struct validation.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", ErrBadRequest, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, name)
	}
	return n, nil
}

// parseSolution accepts a JSON array of numbers or a string holding the
// vector as "[1,2,3]", "1,2,3" or "1 2 3".
func parseSolution(raw json.RawMessage) ([]float64, error) {
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err == nil {
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: empty vector", ErrInvalidSolution)
		}
		return vec, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("%w: expected an array of numbers or a string", ErrInvalidSolution)
	}
	return ParseSolutionText(text)
}

// ParseSolutionText parses a textual solution vector. Brackets are
// optional. Values are separated by commas when any comma is present and
// by whitespace otherwise; an empty value between commas is an error.
func ParseSolutionText(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty vector", ErrInvalidSolution)
	}

	var fields []string
	if strings.Contains(s, ",") {
		fields = strings.Split(s, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
			if fields[i] == "" {
				return nil, fmt.Errorf("%w: value %d is empty", ErrInvalidSolution, i)
			}
		}
	} else {
		fields = strings.Fields(s)
	}

	out := make([]float64, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: value %d (%q) is not a finite number", ErrInvalidSolution, i, f)
		}
		out = append(out, v)
	}
	return out, nil
}
