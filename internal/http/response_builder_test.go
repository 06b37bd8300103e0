package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/view"
)

func TestResponseBuilder(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/x").
		JSON(map[string]int{"n": 1}).
		Write(w)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/x", w.Header().Get("Location"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, w.Body.String())
}

func TestResponseBuilderNoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().Status(http.StatusNoContent).Write(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Empty(t, w.Header().Get("Content-Type"))
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"validation", core.Invalid(core.ErrInvalidAmount, "amount must be positive"), http.StatusUnprocessableEntity, "validation", "amount must be positive"},
		{"not found", core.NotFound("abc"), http.StatusNotFound, "not_found", ""},
		{"conflict", core.Conflict("abc"), http.StatusConflict, "conflict", ""},
		{"storage hides cause", core.Storage("list", errors.New("disk full at /var/lib")), http.StatusServiceUnavailable, "storage", "storage unavailable"},
		{"bad request", errBadRequest, http.StatusBadRequest, "bad_request", "bad request"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal", "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			FromError(tt.err).Write(w)
			assert.Equal(t, tt.status, w.Code)
			body := decode[errorBody](t, w)
			assert.Equal(t, tt.code, body.Error.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Error.Message)
			}
		})
	}
}

func TestMethodNotAllowedError(t *testing.T) {
	w := httptest.NewRecorder()
	MethodNotAllowedError("GET, PUT").Write(w)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, PUT", w.Header().Get("Allow"))
}

func TestTransactionJSON(t *testing.T) {
	tx := core.Transaction{
		ID: "a", AmountMinor: 1999, Kind: core.KindIncome, Category: "gift",
		OccurredAt: core.Millis(time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)), CreatedAt: 5, Source: core.SourceImported,
	}
	w := httptest.NewRecorder()
	NewResponse().JSON(toTransactionJSON(tx)).Write(w)
	assert.JSONEq(t, `{
		"id": "a",
		"amount": "19.99",
		"amount_minor": 1999,
		"kind": "income",
		"category": "gift",
		"occurred_at": "2025-02-03T00:00:00Z",
		"created_at": "1970-01-01T00:00:00.005Z",
		"source": "imported"
	}`, w.Body.String())
}

func TestViewJSONCarriesError(t *testing.T) {
	v := view.View{
		State: view.StateError,
		Err:   core.Storage("snapshot", errors.New("io")),
		Records: []core.Transaction{
			{ID: "a", AmountMinor: 1, Kind: core.KindExpense, Category: "x"},
		},
	}
	got := toViewJSON(v)
	assert.Equal(t, "error", got.State)
	assert.Equal(t, "storage unavailable", got.Error)
	require.Len(t, got.Records, 1)
	assert.Equal(t, []categoryJSON{}, got.ByCategory.Expense)
}
