// Package http serves the ledger as a JSON API.
//
// This file holds the response builder and the wire shapes of every
// response body.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/view"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewResponse creates a builder with a 200 status and no body.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"internal","message":"internal error"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n"))
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, code, message string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		JSON(errorBody{Error: errorDetail{Code: code, Message: message}})
}

// errBadRequest marks input that could not be decoded at all, as opposed
// to decoded input that failed validation.
var errBadRequest = errors.New("bad request")

// FromError maps ledger errors to statuses: validation 422, not found 404,
// conflict 409, storage 503. Storage causes are not exposed to clients.
func FromError(err error) *ResponseBuilder {
	if errors.Is(err, errBadRequest) {
		return ErrorResponse(http.StatusBadRequest, "bad_request", err.Error())
	}
	detail := core.DetailOf(err)
	switch core.CodeOf(err) {
	case core.CodeValidation:
		return ErrorResponse(http.StatusUnprocessableEntity, string(core.CodeValidation), detail)
	case core.CodeNotFound:
		return ErrorResponse(http.StatusNotFound, string(core.CodeNotFound), detail)
	case core.CodeConflict:
		return ErrorResponse(http.StatusConflict, string(core.CodeConflict), detail)
	case core.CodeStorage:
		return ErrorResponse(http.StatusServiceUnavailable, string(core.CodeStorage), "storage unavailable")
	default:
		return ErrorResponse(http.StatusInternalServerError, "internal", "internal error")
	}
}

// MethodNotAllowedError creates a 405 response listing the allowed methods.
func MethodNotAllowedError(allowed string) *ResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed").
		Header("Allow", allowed)
}

type transactionJSON struct {
	ID          string    `json:"id"`
	Amount      string    `json:"amount"`
	AmountMinor int64     `json:"amount_minor"`
	Kind        core.Kind `json:"kind"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source"`
}

func toTransactionJSON(tx core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          tx.ID,
		Amount:      core.FormatMinor(tx.AmountMinor),
		AmountMinor: tx.AmountMinor,
		Kind:        tx.Kind,
		Category:    tx.Category,
		Description: tx.Description,
		OccurredAt:  core.FromMillis(tx.OccurredAt),
		CreatedAt:   core.FromMillis(tx.CreatedAt),
		Source:      string(tx.Source),
	}
}

func toTransactionsJSON(records []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, len(records))
	for i, tx := range records {
		out[i] = toTransactionJSON(tx)
	}
	return out
}

// totalsJSON amounts are minor units.
type totalsJSON struct {
	Income  int64 `json:"income"`
	Expense int64 `json:"expense"`
	Net     int64 `json:"net"`
}

func toTotalsJSON(t core.Totals) totalsJSON {
	return totalsJSON{Income: t.Income, Expense: t.Expense, Net: t.Net}
}

type categoryJSON struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

func toCategoriesJSON(groups []core.CategoryAmount) []categoryJSON {
	out := make([]categoryJSON, len(groups))
	for i, g := range groups {
		out[i] = categoryJSON{Name: g.Name, Amount: g.Amount}
	}
	return out
}

type byCategoryJSON struct {
	Expense []categoryJSON `json:"expense"`
	Income  []categoryJSON `json:"income"`
}

type criteriaJSON struct {
	Kind     string     `json:"kind,omitempty"`
	Category string     `json:"category,omitempty"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
}

func toCriteriaJSON(c core.Criteria) criteriaJSON {
	out := criteriaJSON{Category: c.Category}
	if c.Kind != 0 {
		out.Kind = c.Kind.String()
	}
	if c.From != 0 {
		t := core.FromMillis(c.From)
		out.From = &t
	}
	if c.To != 0 {
		t := core.FromMillis(c.To)
		out.To = &t
	}
	return out
}

type listJSON struct {
	Seq     uint64            `json:"seq"`
	Records []transactionJSON `json:"records"`
}

type summaryJSON struct {
	Seq        uint64            `json:"seq"`
	Criteria   criteriaJSON      `json:"criteria"`
	Records    []transactionJSON `json:"records"`
	Totals     totalsJSON        `json:"totals"`
	ByCategory byCategoryJSON    `json:"by_category"`
}

func buildSummary(snap ledger.Snapshot, c core.Criteria) summaryJSON {
	records := core.Filter(snap.Records, c)
	return summaryJSON{
		Seq:      snap.Seq,
		Criteria: toCriteriaJSON(c),
		Records:  toTransactionsJSON(records),
		Totals:   toTotalsJSON(core.Summarize(records)),
		ByCategory: byCategoryJSON{
			Expense: toCategoriesJSON(core.GroupByCategory(records, core.KindExpense)),
			Income:  toCategoriesJSON(core.GroupByCategory(records, core.KindIncome)),
		},
	}
}

type viewJSON struct {
	State      string            `json:"state"`
	Seq        uint64            `json:"seq"`
	Generation uint64            `json:"generation"`
	Criteria   criteriaJSON      `json:"criteria"`
	Records    []transactionJSON `json:"records"`
	Totals     totalsJSON        `json:"totals"`
	ByCategory byCategoryJSON    `json:"by_category"`
	Error      string            `json:"error,omitempty"`
}

func toViewJSON(v view.View) viewJSON {
	out := viewJSON{
		State:      v.State.String(),
		Seq:        v.Seq,
		Generation: v.Generation,
		Criteria:   toCriteriaJSON(v.Criteria),
		Records:    toTransactionsJSON(v.Records),
		Totals:     toTotalsJSON(v.Totals),
		ByCategory: byCategoryJSON{
			Expense: toCategoriesJSON(v.ExpenseByCategory),
			Income:  toCategoriesJSON(v.IncomeByCategory),
		},
	}
	if v.Err != nil {
		out.Error = "storage unavailable"
		if core.CodeOf(v.Err) == core.CodeValidation {
			out.Error = core.DetailOf(v.Err)
		}
	}
	return out
}
