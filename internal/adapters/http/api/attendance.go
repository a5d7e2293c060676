package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/presence/internal/adapters/ledger"
	"github.com/okian/presence/internal/domain/model"
)

// AttendanceDependencies reads the attendance ledger.
type AttendanceDependencies interface {
	Report(ctx context.Context, date *string) ([]model.AttendanceRecord, error)
}

// AttendanceHandler handles attendance report requests.
type AttendanceHandler struct {
	deps AttendanceDependencies
}

type attendanceResponse struct {
	Date    string                   `json:"date,omitempty"`
	Count   int                      `json:"count"`
	Records []model.AttendanceRecord `json:"records"`
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(deps AttendanceDependencies) *AttendanceHandler {
	return &AttendanceHandler{deps: deps}
}

// HandleGetAttendance handles GET /attendance?date=YYYY-MM-DD requests.
// Without a date every record is returned.
func (h *AttendanceHandler) HandleGetAttendance(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_attendance"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	var date *string
	if q := r.URL.Query(); q.Has("date") {
		d := q.Get("date")
		if !model.ValidDate(d) {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, ledger.ErrInvalidDate))
			return
		}
		date = &d
	}

	recs, err := h.deps.Report(r.Context(), date)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidDate) {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if recs == nil {
		recs = []model.AttendanceRecord{}
	}

	resp := attendanceResponse{Count: len(recs), Records: recs}
	if date != nil {
		resp.Date = *date
	}
	writeJSON(w, http.StatusOK, resp)
}
