package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholarship-aggregator/internal/publisher"
	"github.com/JakeFAU/scholarship-aggregator/internal/record"
	"github.com/JakeFAU/scholarship-aggregator/internal/storage/local"
	"github.com/JakeFAU/scholarship-aggregator/internal/storage/memory"
)

const (
	defaultRecordLimit = 100
	maxRecordLimit     = 1000
	readTimeout        = 5 * time.Second
)

// startRun handles POST /v1/runs. It returns 202 with the run id, 409 while
// another run is active, or 500 when the run cannot be registered.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	runID, err := s.deps.Runner.NewRunID()
	if err != nil {
		s.logger.Error("generate run id failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	run, err := s.deps.Runs.Start(r.Context(), runID)
	if err != nil {
		if errors.Is(err, memory.ErrRunActive) {
			payload := map[string]string{"error": err.Error()}
			if active, ok := s.deps.Runs.Active(); ok {
				payload["run_id"] = active.ID
			}
			writeJSON(w, http.StatusConflict, payload)
			return
		}
		s.logger.Error("register run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	s.runs.Add(1)
	go s.execute(runID)

	w.Header().Set("Location", "/v1/runs/"+runID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": run.ID,
		"status": run.Status,
	})
}

// execute runs detached from the request; only Close or the run timeout stop it.
func (s *Server) execute(runID string) {
	defer s.runs.Done()
	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.RunTimeout)
	defer cancel()

	summary, runErr := s.deps.Runner.RunWithID(ctx, runID)
	if err := s.deps.Runs.Finish(context.WithoutCancel(ctx), runID, summary, runErr); err != nil {
		s.logger.Error("record run outcome failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// getRun handles GET /v1/runs/{run_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(chi.URLParam(r, "run_id"))
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}
	run, err := s.deps.Runs.Get(r.Context(), runID)
	if err != nil {
		if errors.Is(err, memory.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

// listRecords handles GET /v1/records?source=&category=&degree=&funding=&limit=&offset=.
// It returns {"total": n, "records": [...]} in snapshot order, 404 before the first
// snapshot, or 400 for invalid paging parameters.
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultRecordLimit, maxRecordLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	records, err := s.deps.Snapshot.Load(ctx)
	if err != nil {
		if errors.Is(err, local.ErrNoSnapshot) {
			writeError(w, http.StatusNotFound, "no snapshot yet")
			return
		}
		s.logger.Error("load snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	matched := filterRecords(records, parseFilter(r))
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"records": matched[offset:end],
	})
}

// listEvents handles GET /v1/events.
func (s *Server) listEvents(w http.ResponseWriter, _ *http.Request) {
	events := []publisher.SnapshotEvent{}
	if s.deps.Events != nil {
		events = append(events, s.deps.Events.Events()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

type recordFilter struct {
	source   string
	category string
	degree   string
	funding  string
}

func parseFilter(r *http.Request) recordFilter {
	q := r.URL.Query()
	return recordFilter{
		source:   strings.TrimSpace(q.Get("source")),
		category: strings.TrimSpace(q.Get("category")),
		degree:   strings.TrimSpace(q.Get("degree")),
		funding:  strings.TrimSpace(q.Get("funding")),
	}
}

func (f recordFilter) match(rec record.Record) bool {
	if f.source != "" && !strings.EqualFold(rec.Source, f.source) {
		return false
	}
	if f.category != "" && !strings.EqualFold(rec.Category, f.category) {
		return false
	}
	if f.degree != "" && !containsFold(rec.DegreeLevels, f.degree) {
		return false
	}
	if f.funding != "" && !containsFold(rec.FundingTypes, f.funding) {
		return false
	}
	return true
}

func filterRecords(records []record.Record, f recordFilter) []record.Record {
	out := make([]record.Record, 0, len(records))
	for _, rec := range records {
		if f.match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
