package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
)

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tx, err := ParseTransaction(r, s.now())
	if err != nil {
		s.fail(w, r, "create", err)
		return
	}
	if tx.ID == "" {
		tx.ID = core.NewID()
	}

	stored, err := s.store.Insert(ctx, tx)
	if err != nil {
		s.fail(w, r, "create", err)
		return
	}
	s.writes.Add(1)
	s.journal.LogTransaction(ctx, "created", stored)

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+stored.ID).
		JSON(toTransactionJSON(stored)).
		Write(w)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	c, err := ParseCriteria(r.URL.Query())
	if err != nil {
		s.fail(w, r, "list", err)
		return
	}
	snap, err := s.store.Snapshot(r.Context(), c.From, c.To)
	if err != nil {
		s.fail(w, r, "list", err)
		return
	}
	NewResponse().
		JSON(listJSON{Seq: snap.Seq, Records: toTransactionsJSON(core.Filter(snap.Records, c))}).
		Write(w)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tx, ok, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, "get", err)
		return
	}
	if !ok {
		s.fail(w, r, "get", core.NotFound(id))
		return
	}
	NewResponse().JSON(toTransactionJSON(tx)).Write(w)
}

// handleUpdate replaces the record named by the path. A body id, when
// present, must match it.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	tx, err := ParseTransaction(r, s.now())
	if err != nil {
		s.fail(w, r, "update", err)
		return
	}
	if tx.ID != "" && tx.ID != id {
		s.fail(w, r, "update", core.Invalid(nil, fmt.Sprintf("body id %q does not match path id %q", tx.ID, id)))
		return
	}
	tx.ID = id

	stored, err := s.store.Update(ctx, tx)
	if err != nil {
		s.fail(w, r, "update", err)
		return
	}
	s.writes.Add(1)
	s.journal.LogTransaction(ctx, "updated", stored)
	NewResponse().JSON(toTransactionJSON(stored)).Write(w)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.store.Delete(ctx, id); err != nil {
		s.fail(w, r, "delete", err)
		return
	}
	s.writes.Add(1)
	log.FromContext(ctx).InfoContext(ctx, "Transaction deleted", log.FieldTransactionID, id)
	NewResponse().Status(http.StatusNoContent).Write(w)
}

// handleSummary serves totals and category groups for the criteria. Results
// are cached per ledger sequence number.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	c, err := ParseCriteria(r.URL.Query())
	if err != nil {
		s.fail(w, r, "summary", err)
		return
	}

	if cached, ok := s.summaries.Get(summaryKey{seq: s.store.Seq(), criteria: c}); ok {
		NewResponse().Header("X-Cache", "hit").JSON(cached).Write(w)
		return
	}

	snap, err := s.store.Snapshot(r.Context(), c.From, c.To)
	if err != nil {
		s.fail(w, r, "summary", err)
		return
	}
	summary := buildSummary(snap, c)
	s.summaries.Set(summaryKey{seq: snap.Seq, criteria: c}, summary)
	NewResponse().Header("X-Cache", "miss").JSON(summary).Write(w)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if s.binder == nil {
		ErrorResponse(http.StatusServiceUnavailable, "unavailable", "view is not configured").Write(w)
		return
	}
	NewResponse().JSON(toViewJSON(s.binder.Current())).Write(w)
}

// handleSetCriteria replaces the view criteria. The response is accepted
// rather than the new view: recomputation happens in the background.
func (s *Server) handleSetCriteria(w http.ResponseWriter, r *http.Request) {
	if s.binder == nil {
		ErrorResponse(http.StatusServiceUnavailable, "unavailable", "view is not configured").Write(w)
		return
	}
	c, err := ParseCriteriaBody(r)
	if err != nil {
		s.fail(w, r, "set_criteria", err)
		return
	}
	s.binder.SetCriteria(c)
	NewResponse().
		Status(http.StatusAccepted).
		JSON(map[string]any{"criteria": toCriteriaJSON(c)}).
		Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status": "ok",
		"uptime": s.now().Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks the storage backend and reports the view state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"storage": "ok"}
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["storage"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}
	if s.binder != nil {
		checks["view"] = s.binder.Current().State.String()
	}

	NewResponse().Status(code).JSON(map[string]any{
		"status": status,
		"seq":    s.store.Seq(),
		"checks": checks,
	}).Write(w)
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traffic := s.tracer.Metrics()
	limits := s.limiter.Metrics()
	hits, misses := s.summaries.Stats()

	var b strings.Builder
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of API requests", traffic.TotalRequests)
	metric("http_server_errors_total", "counter", "API responses with a 5xx status", traffic.ServerErrors)
	metric("http_response_time_avg_seconds", "gauge", "Average API response time", traffic.AverageResponseTime.Seconds())
	metric("ledger_seq", "gauge", "Sequence number of the last committed change", s.store.Seq())
	metric("ledger_writes_total", "counter", "Successful writes through the API", s.writes.Load())
	metric("summary_cache_hits_total", "counter", "Summary cache hits", hits)
	metric("summary_cache_misses_total", "counter", "Summary cache misses", misses)
	metric("summary_cache_entries", "gauge", "Current summary cache entries", s.summaries.Size())
	metric("rate_limit_rejections_total", "counter", "Requests rejected by the rate limiter", limits.Rejected)
	metric("rate_limit_clients", "gauge", "Currently tracked rate limit clients", limits.ClientCount)
	metric("suspicious_requests_total", "counter", "Requests blocked as suspicious", s.detector.Metrics().SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Process uptime in seconds", int64(s.now().Sub(s.started).Seconds()))

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

// fail logs err at a level matching its code and writes the mapped
// response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	ctx := r.Context()
	log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Request failed", err, operation, nil)
	FromError(err).Write(w)
}
