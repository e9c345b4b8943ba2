package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
)

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func invalidQuery(key string, err error) *pkgerrors.Error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key).WithDetails(map[string]any{"field": key})
}

func outOfRange[T int | float64](key string, min, max T) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
		WithDetails(map[string]any{"field": key, "min": min, "max": max})
}

// ParseQueryInt returns defaultVal when key is absent and rejects values
// outside [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidQuery(key, err)
	}
	if value < min || value > max {
		return 0, outOfRange(key, min, max)
	}
	return value, nil
}

// ParseQueryFloat reports ok=false when key is absent.
func ParseQueryFloat(r *http.Request, key string, min, max float64) (value float64, ok bool, err error) {
	raw := queryValue(r, key)
	if raw == "" {
		return 0, false, nil
	}
	value, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, invalidQuery(key, err)
	}
	if value < min || value > max {
		return 0, false, outOfRange(key, min, max)
	}
	return value, true, nil
}

// OptionalQuery parses key with parse and returns nil when it is absent.
// Works with uuid.Parse, strconv.ParseBool and the enums parsers.
func OptionalQuery[T any](r *http.Request, key string, parse func(string) (T, error)) (*T, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return nil, nil
	}
	value, err := parse(raw)
	if err != nil {
		return nil, invalidQuery(key, err)
	}
	return &value, nil
}
