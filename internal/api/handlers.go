package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"riverforge/internal/encoder/ladder"
	"riverforge/internal/observability/logging"
	"riverforge/internal/plugin"
)

// Pinger is implemented by backends the health endpoint probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ComponentProbe names one health-checked backend.
type ComponentProbe struct {
	Name   string
	Pinger Pinger
}

// Handler serves the plugin HTTP API on behalf of the transcoding host.
type Handler struct {
	Manager *plugin.Manager
	Tokens  *TokenVerifier
	Logger  *slog.Logger
	Probes  []ComponentProbe
}

// NewHandler wires the API surface around a manager.
func NewHandler(manager *plugin.Manager, tokens *TokenVerifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Manager: manager, Tokens: tokens, Logger: logger}
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Health reports plugin liveness plus the state of each probed backend.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	overall := "ok"
	statusCode := http.StatusOK
	components := make([]componentStatus, 0, len(h.Probes))
	for _, probe := range h.Probes {
		status := componentStatus{Component: probe.Name, Status: "ok"}
		if err := probe.Pinger.Ping(r.Context()); err != nil {
			status.Status = "degraded"
			status.Error = err.Error()
			overall = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		components = append(components, status)
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":     overall,
		"components": components,
		"activeJobs": h.Manager.ActiveJobs(),
	})
}

type encoderOptionsRequest struct {
	JobID        string  `json:"jobId"`
	Kind         string  `json:"kind"`
	Profile      string  `json:"profile,omitempty"`
	Resolution   string  `json:"resolution"`
	FrameRate    float64 `json:"frameRate"`
	InputBitrate int64   `json:"inputBitrate,omitempty"`
	StreamIndex  *int    `json:"streamIndex,omitempty"`
}

type encoderOptionsResponse struct {
	Profile       string   `json:"profile"`
	Encoder       string   `json:"encoder"`
	First         bool     `json:"first"`
	Bitrate       int64    `json:"bitrate"`
	MaxRate       int64    `json:"maxRate"`
	BufferSize    int64    `json:"bufferSize"`
	CRF           int      `json:"crf"`
	GoPFrames     int      `json:"gopFrames"`
	Preset        string   `json:"preset,omitempty"`
	PreInputFlags []string `json:"preInputFlags,omitempty"`
	OutputFlags   []string `json:"outputFlags"`
	ScaleFilter   string   `json:"scaleFilter"`
}

// EncoderOptions resolves encoder parameters for one stream of a job.
func (h *Handler) EncoderOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var payload encoderOptionsRequest
	if err := decodeJSON(r, &payload); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	kind, err := plugin.ParseKind(payload.Kind)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err)
		return
	}
	tier, err := ladder.ParseTier(payload.Resolution)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err)
		return
	}
	if payload.FrameRate <= 0 {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("frameRate must be positive"))
		return
	}

	ctx := r.Context()
	if payload.JobID != "" {
		ctx = logging.ContextWithJobID(ctx, payload.JobID)
	}

	result, err := h.Manager.EncoderOptions(ctx, plugin.OptionsRequest{
		JobID:        payload.JobID,
		Kind:         kind,
		Profile:      payload.Profile,
		Tier:         tier,
		FrameRate:    payload.FrameRate,
		InputBitrate: payload.InputBitrate,
		StreamIndex:  payload.StreamIndex,
	})
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err)
		return
	}

	writeJSON(w, http.StatusOK, encoderOptionsResponse{
		Profile:       result.Profile,
		Encoder:       result.Encoder,
		First:         result.First,
		Bitrate:       result.Params.Bitrate,
		MaxRate:       result.Params.MaxRate,
		BufferSize:    result.Params.BufferSize,
		CRF:           result.Params.CRF,
		GoPFrames:     result.Params.GoPFrames,
		Preset:        result.Params.Preset,
		PreInputFlags: result.Options.PreInputFlags,
		OutputFlags:   result.Options.OutputFlags,
		ScaleFilter:   result.Options.ScaleFilter,
	})
}

type profileSummary struct {
	Name     string `json:"name"`
	Encoder  string `json:"encoder"`
	Kind     string `json:"kind"`
	Priority int    `json:"priority"`
}

// Profiles lists the registered encoder profiles, highest priority first
// within each kind.
func (h *Handler) Profiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	summaries := make([]profileSummary, 0, 8)
	for _, kind := range []plugin.Kind{plugin.KindVOD, plugin.KindLive} {
		for _, p := range h.Manager.Registry().Profiles(kind) {
			summaries = append(summaries, profileSummary{
				Name:     p.Name,
				Encoder:  p.Builder.Encoder(),
				Kind:     string(p.Kind),
				Priority: p.Priority,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": summaries})
}

// SettingsSchema declares every settings key the plugin honours so the host
// can render its configuration form.
func (h *Handler) SettingsSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fields": h.Manager.Schema()})
}

// ReloadSettings rebuilds the effective configuration from the settings
// store. The host calls this after saving the plugin configuration form.
func (h *Handler) ReloadSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	if err := h.Manager.Reload(r.Context()); err != nil {
		h.Logger.ErrorContext(r.Context(), "settings reload failed", "error", err)
		WriteError(w, http.StatusBadGateway, fmt.Errorf("reload settings: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// JobByID handles per-job operations; today that is only DELETE, which the
// host issues when a transcoding job finishes so the stream gate is released.
func (h *Handler) JobByID(w http.ResponseWriter, r *http.Request) {
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/jobs/"), "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusNotFound, fmt.Errorf("job not found"))
		return
	}

	switch r.Method {
	case http.MethodDelete:
		h.Manager.ReleaseJob(jobID)
		h.Logger.InfoContext(r.Context(), "job released", "job_id", jobID)
		w.WriteHeader(http.StatusNoContent)
	default:
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}
