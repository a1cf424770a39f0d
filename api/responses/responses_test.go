package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]int{"total_cents": 2400})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := decode(t, w)
	assert.Nil(t, body.Error)
	assert.EqualValues(t, 2400, body.Data.(map[string]any)["total_cents"])

	w = httptest.NewRecorder()
	WriteSuccess(w, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWriteError(t *testing.T) {
	cases := map[string]struct {
		err        error
		status     int
		code       pkgerrors.Code
		message    string
		details    bool
		retryAfter string
	}{
		"validation keeps details": {
			err:     pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"field": "quantity"}),
			status:  http.StatusBadRequest,
			code:    pkgerrors.CodeValidation,
			message: "bad input",
			details: true,
		},
		"plain error is internal": {
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   pkgerrors.CodeInternal,
		},
		"rate limit keeps message": {
			err:     pkgerrors.New(pkgerrors.CodeRateLimit, "too many checkouts"),
			status:  http.StatusTooManyRequests,
			code:    pkgerrors.CodeRateLimit,
			message: "too many checkouts",
		},
		"dependency asks client to retry": {
			err:        pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("redis down"), "check idempotency"),
			status:     http.StatusServiceUnavailable,
			code:       pkgerrors.CodeDependency,
			retryAfter: retryAfterSeconds,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), nil, w, tc.err)

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.retryAfter, w.Header().Get("Retry-After"))
			body := decode(t, w)
			require.NotNil(t, body.Error)
			assert.Equal(t, string(tc.code), body.Error.Code)
			if tc.message != "" {
				assert.Equal(t, tc.message, body.Error.Message)
			}
			assert.Equal(t, tc.details, body.Error.Details != nil)
		})
	}
}
