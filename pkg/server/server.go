// Package server exposes the pipeline over HTTP for Cloud Run style task
// dispatch.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fitnessllm/dataplatform/pkg/pipeline"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

// TaskRequest is the body of a POST /tasks call. With Batch set the uid is
// ignored and every registered user is processed.
type TaskRequest struct {
	UID         string   `json:"uid"`
	DataSource  string   `json:"data_source"`
	DataStreams []string `json:"data_streams,omitempty"`
	Batch       bool     `json:"batch,omitempty"`
}

// Server handles task dispatch requests. Runs execute synchronously; the
// response status reflects the run outcome so the task queue can retry.
type Server struct {
	Orch   *pipeline.Orchestrator
	Logger *slog.Logger
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Post("/tasks", s.handleTask)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	source, err := types.ParseDataSource(req.DataSource)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	streams, err := parseStreams(req.DataStreams)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !req.Batch && req.UID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("uid is required unless batch is set"))
		return
	}

	ctx := r.Context()
	if req.Batch {
		err = s.Orch.ProcessAllUsers(ctx, source, streams)
	} else {
		err = s.Orch.FullETL(ctx, req.UID, source, streams)
	}
	if err != nil {
		s.Logger.Error("Task failed", "uid", req.UID, "batch", req.Batch, "error", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": err.Error()})
}

func parseStreams(raw []string) ([]types.StreamType, error) {
	streams := make([]types.StreamType, 0, len(raw))
	for _, name := range raw {
		st, err := types.ParseStreamType(name)
		if err != nil {
			return nil, err
		}
		streams = append(streams, st)
	}
	return streams, nil
}
