package api

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/okian/presence/internal/adapters/source"
	service "github.com/okian/presence/internal/app"
	"github.com/okian/presence/internal/detect"
	"github.com/okian/presence/internal/domain/gallery"
	"github.com/okian/presence/internal/domain/model"
)

const maxUploadBytes = 10 << 20

// EnrollDependencies enrolls identities while the service runs.
type EnrollDependencies interface {
	Enroll(ctx context.Context, identity model.Identity, img image.Image) error
	EnrollCaptured(ctx context.Context, identity model.Identity) error
}

// EnrollHandler handles run-time enrollment.
type EnrollHandler struct {
	deps EnrollDependencies
}

type enrollResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Name   string `json:"name"`
}

// NewEnrollHandler creates a new enroll handler.
func NewEnrollHandler(deps EnrollDependencies) *EnrollHandler {
	return &EnrollHandler{deps: deps}
}

// HandleEnroll handles POST /enroll?id=...&name=... The request body is the
// photo to enroll; an empty body enrolls the last captured frame.
func (h *EnrollHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	const op = "api.enroll"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	identity := model.Identity{
		ID:          strings.TrimSpace(q.Get("id")),
		DisplayName: strings.TrimSpace(q.Get("name")),
	}
	if !identity.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, gallery.ErrInvalidIdentity))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", wrapKind(op, ErrBadRequest, err))
		return
	}

	if len(body) == 0 {
		err = h.deps.EnrollCaptured(r.Context(), identity)
	} else {
		img, derr := source.Decode(bytes.NewReader(body))
		if derr != nil {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, derr))
			return
		}
		err = h.deps.Enroll(r.Context(), identity, img)
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, enrollResponse{Status: "enrolled", ID: identity.ID, Name: identity.Name()})
	case errors.Is(err, gallery.ErrInvalidIdentity):
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
	case errors.Is(err, gallery.ErrInvalidEmbeddingDimension), errors.Is(err, gallery.ErrInvalidEmbedding):
		writeError(w, http.StatusUnprocessableEntity, "invalid_embedding", err)
	case errors.Is(err, detect.ErrNoFaceDetected):
		writeError(w, http.StatusUnprocessableEntity, "no_face", err)
	case errors.Is(err, service.ErrNoCapturedFrame):
		writeError(w, http.StatusConflict, "not_capturing", err)
	case errors.Is(err, service.ErrNotPersisted):
		writeError(w, http.StatusInternalServerError, "not_persisted", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
