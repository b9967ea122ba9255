package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"adswap/internal/content"
	"adswap/internal/middleware"
	"adswap/internal/orchestrator"
)

type Pipeline interface {
	Stats() orchestrator.Stats
}

type OverrideSource interface {
	Overrides(ctx context.Context) (content.Overrides, error)
}

// Placeholders counts replacements applied by a page context hosted in
// this process.
type Placeholders interface {
	Len() int
}

type Handler struct {
	pipeline     Pipeline
	overrides    OverrideSource
	placeholders Placeholders
}

// NewHandler accepts a nil Placeholders when no page context runs here.
func NewHandler(p Pipeline, o OverrideSource, ph Placeholders) *Handler {
	return &Handler{pipeline: p, overrides: o, placeholders: ph}
}

type StatsResponse struct {
	Pipeline        orchestrator.Stats `json:"pipeline"`
	OverriddenPools int                `json:"overridden_pools"`
	Placeholders    *int               `json:"placeholders,omitempty"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	overrides, err := h.overrides.Overrides(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load content overrides", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to load content overrides", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Pipeline:        h.pipeline.Stats(),
		OverriddenPools: len(overrides),
	}
	if h.placeholders != nil {
		n := h.placeholders.Len()
		resp.Placeholders = &n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
