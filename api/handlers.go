// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/soothill/battery-data-logger/logstore"
	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/pkg/logger"
)

const (
	defaultTailRows = 10
	maxTailRows     = 10000
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IntervalRequest is the body of start and interval requests.
type IntervalRequest struct {
	IntervalSeconds *int `json:"interval_seconds,omitempty"`
}

// StartResponse reports the task handle. Started is false when the task was
// already running and the existing handle is returned.
type StartResponse struct {
	Started bool                   `json:"started"`
	Handle  *monitoring.TaskHandle `json:"task_handle"`
}

// StopResponse reports whether a running task was stopped.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// TickResponse reports how many samples a manual tick appended.
type TickResponse struct {
	Appended int `json:"appended"`
}

// TailResponse holds the most recent rows, oldest first.
type TailResponse struct {
	Rows []*monitoring.BatterySample `json:"rows"`
}

// StatsResponse holds aggregates over the whole log.
type StatsResponse struct {
	Path string `json:"path"`
	*logstore.Stats
	EstimatedRuntimeMinutes *int `json:"estimated_runtime_minutes,omitempty"`
}

// ExportRequest is the body of an export request.
type ExportRequest struct {
	Destination string `json:"destination"`
}

func (s *Server) handleSamplerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Sampler.Status())
}

func (s *Server) handleSamplerStart(w http.ResponseWriter, r *http.Request) {
	var req IntervalRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	interval := monitoring.DefaultInterval
	if s.opts.DefaultInterval != nil {
		interval = s.opts.DefaultInterval()
	}
	if req.IntervalSeconds != nil {
		d, err := intervalFromSeconds(*req.IntervalSeconds)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		interval = d
	}

	handle, started, err := s.opts.Sampler.Start(s.opts.BaseContext, interval)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if started {
		status = http.StatusCreated
		logger.Info().Str("task_id", handle.ID).Dur("interval", handle.Interval).Msg("Sampler started over HTTP")
	}
	writeJSON(w, status, StartResponse{Started: started, Handle: handle})
}

func (s *Server) handleSamplerStop(w http.ResponseWriter, _ *http.Request) {
	stopped := s.opts.Sampler.Stop()
	if stopped {
		logger.Info().Msg("Sampler stopped over HTTP")
	}
	writeJSON(w, http.StatusOK, StopResponse{Stopped: stopped})
}

func (s *Server) handleSamplerTick(w http.ResponseWriter, r *http.Request) {
	n := s.opts.Sampler.Tick(r.Context())
	writeJSON(w, http.StatusOK, TickResponse{Appended: n})
}

func (s *Server) handleSamplerInterval(w http.ResponseWriter, r *http.Request) {
	var req IntervalRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.IntervalSeconds == nil {
		writeError(w, http.StatusBadRequest, "interval_seconds is required")
		return
	}

	interval, err := intervalFromSeconds(*req.IntervalSeconds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.opts.Sampler.UpdateInterval(interval); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Sampler.Status())
}

func (s *Server) handleLogTail(w http.ResponseWriter, r *http.Request) {
	n := defaultTailRows
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = min(parsed, maxTailRows)
	}

	rows := make([]*monitoring.BatterySample, 0, n)
	for sample, err := range s.opts.Store.Tail(n) {
		if err != nil {
			writeServiceError(w, err)
			return
		}
		rows = append(rows, sample)
	}
	writeJSON(w, http.StatusOK, TailResponse{Rows: rows})
}

func (s *Server) handleLogStats(w http.ResponseWriter, _ *http.Request) {
	v, err, _ := s.stats.Do("stats", func() (any, error) {
		return s.opts.Store.Stats()
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	stats := v.(*logstore.Stats)

	resp := StatsResponse{Path: s.opts.Store.Path(), Stats: stats}
	if stats.EstimatedRuntime != nil {
		minutes := int(stats.EstimatedRuntime.Minutes())
		resp.EstimatedRuntimeMinutes = &minutes
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Destination == "" {
		writeError(w, http.StatusBadRequest, "destination is required")
		return
	}

	if err := s.opts.Store.ExportCopy(req.Destination); err != nil {
		writeServiceError(w, err)
		return
	}
	logger.Info().Str("destination", req.Destination).Msg("Log exported over HTTP")
	writeJSON(w, http.StatusOK, map[string]string{"destination": req.Destination})
}

func (s *Server) handleLogClear(w http.ResponseWriter, _ *http.Request) {
	if err := s.opts.Store.Clear(); err != nil {
		writeServiceError(w, err)
		return
	}
	logger.Info().Str("path", s.opts.Store.Path()).Msg("Log cleared over HTTP")
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody decodes a JSON request body. An empty body is accepted only
// when allowEmpty is set.
func decodeBody(r *http.Request, v interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if stderrors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeServiceError maps domain errors to status codes
// intervalFromSeconds range checks before converting so large values cannot
// overflow the duration.
func intervalFromSeconds(seconds int) (time.Duration, error) {
	maxSeconds := int(monitoring.MaxInterval / time.Second)
	if seconds < 1 || seconds > maxSeconds {
		return 0, fmt.Errorf("interval_seconds must be between 1 and %d", maxSeconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, errors.ErrInvalidConfig), errors.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case stderrors.Is(err, errors.ErrNoPermission):
		logger.Warn().Err(err).Msg("Request failed: permission denied")
		writeError(w, http.StatusForbidden, err.Error())
	default:
		logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
