package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/draftline-labs/draftline-go/internal/domain"
	"github.com/draftline-labs/draftline-go/internal/repo"
	"github.com/draftline-labs/draftline-go/internal/saga"
)

// orchestratorAPI is the operational surface over workflow runs. Content
// entities are never exposed here; the run row is the only externally
// queryable record.
type orchestratorAPI struct {
	logger      *slog.Logger
	runs        repo.WorkflowRunRepository
	coordinator *saga.Coordinator

	// baseCtx outlives individual requests so an accepted run is driven to
	// its terminal status even if the submitting client goes away.
	baseCtx context.Context
	sem     chan struct{}
	wg      sync.WaitGroup
}

func newOrchestratorAPI(logger *slog.Logger, runs repo.WorkflowRunRepository, coordinator *saga.Coordinator, baseCtx context.Context, maxConcurrentRuns int) *orchestratorAPI {
	if maxConcurrentRuns < 1 {
		maxConcurrentRuns = 1
	}
	return &orchestratorAPI{
		logger:      logger,
		runs:        runs,
		coordinator: coordinator,
		baseCtx:     baseCtx,
		sem:         make(chan struct{}, maxConcurrentRuns),
	}
}

func (api *orchestratorAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /runs", api.handleStartRun)
	mux.HandleFunc("GET /runs", api.handleListRuns)
	mux.HandleFunc("GET /runs/{run_id}", api.handleGetRun)
}

// wait blocks until every accepted run has reached a terminal status.
func (api *orchestratorAPI) wait() {
	api.wg.Wait()
}

type startRunRequest struct {
	BriefRef string          `json:"brief_ref"`
	Metadata domain.Metadata `json:"metadata,omitempty"`
}

func (api *orchestratorAPI) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.BriefRef) == "" {
		api.writeError(w, r, http.StatusBadRequest, "brief_ref_required")
		return
	}

	run, err := api.coordinator.Submit(r.Context(), saga.Input{
		BriefRef: req.BriefRef,
		Metadata: req.Metadata,
	})
	if err != nil {
		if errors.Is(err, repo.ErrBriefClaimed) {
			api.writeError(w, r, http.StatusConflict, "brief_claimed")
			return
		}
		api.logger.Error("submit run failed", "brief_ref", req.BriefRef, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	api.wg.Add(1)
	go func() {
		defer api.wg.Done()
		api.sem <- struct{}{}
		defer func() { <-api.sem }()
		result := api.coordinator.Drive(api.baseCtx, run)
		api.logger.Info("run finished",
			"run_id", result.RunID.String(),
			"outcome", string(result.Outcome),
			"failed_step", result.FailedStep)
	}()

	api.writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":    run.ID.String(),
		"brief_ref": run.BriefRef,
		"status":    string(run.Status),
	})
}

func (api *orchestratorAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}

	run, err := api.runs.GetRun(r.Context(), domain.RunID(runID))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "run_not_found")
			return
		}
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, runResponse(run))
}

func (api *orchestratorAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.WorkflowRunFilter{
		BriefRef: strings.TrimSpace(r.URL.Query().Get("brief_ref")),
		Limit:    clampInt(parseIntQuery(r, "limit", 100), 1, 500),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.NormalizeRunStatus(raw)
		if status == "" {
			api.writeError(w, r, http.StatusBadRequest, "invalid_status")
			return
		}
		filter.Status = status
	}

	runs, err := api.runs.ListRuns(r.Context(), filter)
	if err != nil {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	out := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponse(run))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func runResponse(run domain.WorkflowRun) map[string]any {
	resp := map[string]any{
		"run_id":     run.ID.String(),
		"brief_ref":  run.BriefRef,
		"status":     string(run.Status),
		"created_at": run.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": run.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if run.CompletedAt != nil {
		resp["completed_at"] = run.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	if run.LastError != "" {
		resp["last_error"] = run.LastError
	}
	if len(run.Metadata) > 0 {
		resp["metadata"] = run.Metadata
	}
	return resp
}

func (api *orchestratorAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *orchestratorAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func clampInt(v int, min int, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
