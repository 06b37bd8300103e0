package http

// This file decodes request bodies and query strings into ledger values.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ledger/internal/core"
)

const maxBodyBytes = 64 << 10

// transactionRequest is the body of POST and PUT on transactions. Amount
// may be a JSON string ("10.50", "10,50") or a bare number literal; the
// literal text is parsed as a decimal so no float rounding happens.
type transactionRequest struct {
	ID          string          `json:"id"`
	Amount      json.RawMessage `json:"amount"`
	Kind        string          `json:"kind"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	OccurredAt  string          `json:"occurred_at"`
	Source      string          `json:"source"`
}

type criteriaRequest struct {
	Kind     string `json:"kind"`
	Category string `json:"category"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// decodeJSON reads a single JSON object with no unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("%w: body too large", errBadRequest)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", errBadRequest)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	return nil
}

// ParseTransaction decodes a transaction body. A missing occurred_at
// defaults to now; a missing id is left empty for the caller to fill.
func ParseTransaction(r *http.Request, now time.Time) (core.Transaction, error) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		return core.Transaction{}, err
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	kind, err := parseKind(req.Kind)
	if err != nil {
		return core.Transaction{}, err
	}

	occurredAt := core.Millis(now)
	if strings.TrimSpace(req.OccurredAt) != "" {
		if occurredAt, err = core.ParseOccurredAt(req.OccurredAt); err != nil {
			return core.Transaction{}, err
		}
	}

	return core.Transaction{
		ID:          strings.TrimSpace(req.ID),
		AmountMinor: amount,
		Kind:        kind,
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.Description),
		OccurredAt:  occurredAt,
		Source:      core.Source(strings.TrimSpace(req.Source)),
	}, nil
}

func parseAmount(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return core.ParseMinor("")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: invalid amount", errBadRequest)
		}
		return core.ParseMinor(s)
	}
	return core.ParseMinor(string(raw))
}

// ParseCriteria reads kind, category, from and to from a query string.
func ParseCriteria(q url.Values) (core.Criteria, error) {
	return criteriaRequest{
		Kind:     q.Get("kind"),
		Category: q.Get("category"),
		From:     q.Get("from"),
		To:       q.Get("to"),
	}.criteria()
}

// ParseCriteriaBody decodes criteria sent as a JSON object.
func ParseCriteriaBody(r *http.Request) (core.Criteria, error) {
	var req criteriaRequest
	if err := decodeJSON(r, &req); err != nil {
		return core.Criteria{}, err
	}
	return req.criteria()
}

// criteria converts the request. A calendar-date upper bound covers the
// whole day, so to=2025-01-31 includes records from that afternoon.
func (req criteriaRequest) criteria() (core.Criteria, error) {
	var c core.Criteria
	var err error

	if k := strings.TrimSpace(req.Kind); k != "" {
		if c.Kind, err = parseKind(k); err != nil {
			return core.Criteria{}, err
		}
	}
	c.Category = strings.TrimSpace(req.Category)

	if s := strings.TrimSpace(req.From); s != "" {
		if c.From, err = core.ParseOccurredAt(s); err != nil {
			return core.Criteria{}, err
		}
	}
	if s := strings.TrimSpace(req.To); s != "" {
		if c.To, err = core.ParseOccurredAt(s); err != nil {
			return core.Criteria{}, err
		}
		if isDateOnly(s) {
			c.To += (24*time.Hour - time.Millisecond).Milliseconds()
		}
	}

	if c.From != 0 && c.To != 0 && c.From > c.To {
		return core.Criteria{}, core.Invalid(errors.New("inverted range"), "from is after to")
	}
	return c, nil
}

func parseKind(s string) (core.Kind, error) {
	kind, err := core.ParseKind(s)
	if err != nil {
		return 0, core.Invalid(err, "kind must be income or expense")
	}
	return kind, nil
}

func isDateOnly(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}
