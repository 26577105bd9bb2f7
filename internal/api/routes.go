package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/swapbatch/swapbatch/internal/history"
	"github.com/swapbatch/swapbatch/internal/preview"
)

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Token, cfg.Logger))

		r.Get("/runs", listRunsHandler(cfg))
		r.Get("/runs/{id}", getRunHandler(cfg))
		r.Get("/runs/{id}/items", listItemsHandler(cfg))

		r.Group(func(r chi.Router) {
			r.Use(LoopbackGuard())
			r.Get("/outputs/{name}", outputHandler(cfg))
			r.Head("/outputs/{name}", outputHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRunsLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", codeBadRequest)
				return
			}
			limit = min(n, maxRunsLimit)
		}

		runs, err := cfg.Repository.ListRuns(r.Context(), limit)
		if err != nil {
			cfg.Logger.Error("list runs failed", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to list runs", codeInternal)
			return
		}

		resp := RunsResponse{Runs: make([]RunResponse, len(runs))}
		for i, run := range runs {
			resp.Runs[i] = RunToResponse(run)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// loadRun resolves the {id} URL parameter. It writes the error response and
// returns nil when the run cannot be served.
func loadRun(cfg ServerConfig, w http.ResponseWriter, r *http.Request) *history.Run {
	id := chi.URLParam(r, "id")
	run, err := cfg.Repository.GetRun(r.Context(), id)
	if err != nil {
		cfg.Logger.Error("get run failed", "run_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "failed to load run", codeInternal)
		return nil
	}
	if run == nil {
		WriteError(w, http.StatusNotFound, "run not found", codeNotFound)
		return nil
	}
	return run
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if run := loadRun(cfg, w, r); run != nil {
			WriteJSON(w, http.StatusOK, RunToResponse(run))
		}
	}
}

func listItemsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run := loadRun(cfg, w, r)
		if run == nil {
			return
		}

		items, err := cfg.Repository.ListItems(r.Context(), run.ID)
		if err != nil {
			cfg.Logger.Error("list items failed", "run_id", run.ID, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to list items", codeInternal)
			return
		}

		resp := ItemsResponse{RunID: run.ID, Items: make([]ItemResponse, 0, len(items))}
		for _, it := range items {
			resp.Items = append(resp.Items, ItemToResponse(it))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func outputHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if cfg.Preview == nil {
			WriteError(w, http.StatusNotFound, "outputs are not served", codeNotFound)
			return
		}

		err := cfg.Preview.ServeFile(w, r, name)
		switch {
		case err == nil:
		case errors.Is(err, preview.ErrBadName):
			WriteError(w, http.StatusBadRequest, "invalid output name", codeBadRequest)
		default:
			cfg.Logger.Error("preview error", "error", err, "name", name)
			WriteError(w, http.StatusInternalServerError, "failed to serve file", codeInternal)
		}
	}
}
