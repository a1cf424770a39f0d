package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
)

func paramError(msg, key string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}

// ParseQueryInt returns def when the parameter is absent.
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, paramError("query parameter must be numeric", key, nil)
	case n < min || n > max:
		return 0, paramError("query parameter out of range", key, map[string]any{"min": min, "max": max})
	}
	return n, nil
}

// ParsePathInt64 reads a positive integer URL parameter.
func ParsePathInt64(r *http.Request, key string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, key)), 10, 64)
	if err != nil || n <= 0 {
		return 0, paramError("path parameter must be a positive integer", key, nil)
	}
	return n, nil
}

func ParsePathUUID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, key)))
	if err != nil {
		return uuid.Nil, paramError("path parameter must be a uuid", key, nil)
	}
	return id, nil
}
