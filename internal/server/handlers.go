package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/sheetcast/internal/models"
	"github.com/raphaelgruber/sheetcast/internal/service"
	"github.com/raphaelgruber/sheetcast/internal/store"
)

// TranscribeRequest is the body of POST /transcribe.
type TranscribeRequest struct {
	URL          string `json:"url"`
	IsolatePiano bool   `json:"isolate_piano"`
}

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": ServiceName})
}

func (s *Server) transcribe(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "too many submissions, retry later")
		return
	}

	var req TranscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateSource(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.jobs.Create(r.Context(), req.URL, models.Options{IsolateTarget: req.IsolatePiano})
	if err != nil {
		if errors.Is(err, service.ErrInvalidSource) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("failed to create job", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// validateSource accepts absolute http(s) URLs and go-getter forced sources
// such as "s3::https://...".
func validateSource(source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return errors.New("url is required")
	}
	if _, rest, forced := strings.Cut(source, "::"); forced {
		source = rest
	}
	u, err := url.Parse(source)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid url %q", source)
	}
	return nil
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	v, err := s.jobs.GetStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetResult(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.logger.Error("store read failed", "error", err)
	writeError(w, http.StatusInternalServerError, "failed to read job")
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	a, err := s.jobs.ArtifactPath(vars["id"], vars["format"])
	switch {
	case errors.Is(err, service.ErrUnknownFormat):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s file not found", vars["format"]))
		return
	}

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
	http.ServeFile(w, r, a.Path)
}

func (s *Server) pianoRoll(w http.ResponseWriter, r *http.Request) {
	roll, err := s.jobs.GetVisualization(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "midi file not found")
		return
	}
	writeJSON(w, http.StatusOK, roll)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.Stats(r.Context()))
}

// streamStatus pushes a status view on every change and closes after a
// terminal state.
func (s *Server) streamStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, err := s.jobs.Watch(ctx, jobID, s.poll)
	if err != nil {
		s.storeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	// Reads only detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for v := range updates {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(v); err != nil {
			s.logger.Debug("status stream write failed", "job_id", jobID, "error", err)
			return
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
