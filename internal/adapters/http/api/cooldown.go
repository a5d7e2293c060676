package api

import (
	"context"
	"net/http"
	"strings"
)

// CooldownDependencies queues cooldown overrides.
type CooldownDependencies interface {
	ResetCooldown(ctx context.Context, id string) bool
}

// CooldownHandler handles cooldown reset requests.
type CooldownHandler struct {
	deps CooldownDependencies
}

type resetResponse struct {
	Status   string `json:"status"`
	Identity string `json:"identity,omitempty"`
}

// NewCooldownHandler creates a new cooldown handler.
func NewCooldownHandler(deps CooldownDependencies) *CooldownHandler {
	return &CooldownHandler{deps: deps}
}

// HandleReset handles POST /cooldown/reset[?id=...]. Without an id every
// identity is reset. The reset is applied before the next frame.
func (h *CooldownHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	const op = "api.cooldown_reset"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if !h.deps.ResetCooldown(r.Context(), id) {
		writeError(w, http.StatusServiceUnavailable, "backpressure", wrapKind(op, ErrBackpressure, nil))
		return
	}
	writeJSON(w, http.StatusAccepted, resetResponse{Status: "queued", Identity: id})
}
