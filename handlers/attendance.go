package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"timekeeping/apperror"
	"timekeeping/attendance"
	"timekeeping/middleware"
	"timekeeping/response"

	"github.com/go-playground/validator/v10"
)

// maxCaptureBody bounds a capture request including its base64 evidence.
const maxCaptureBody = 8 << 20

type AttendanceHandler struct {
	svc      attendance.Service
	validate *validator.Validate
}

func NewAttendanceHandler(svc attendance.Service, validate *validator.Validate) *AttendanceHandler {
	if validate == nil {
		validate = apperror.NewValidator()
	}
	return &AttendanceHandler{svc: svc, validate: validate}
}

type captureRequest struct {
	Latitude   *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude  *float64 `json:"longitude" validate:"omitempty,longitude"`
	Accuracy   *float64 `json:"accuracy" validate:"omitempty,gte=0"`
	Evidence   string   `json:"evidence"`
	LateReason *string  `json:"late_reason" validate:"omitempty,max=500"`
}

func (h *AttendanceHandler) TimeIn(w http.ResponseWriter, r *http.Request) {
	in, ok := h.capture(w, r)
	if !ok {
		return
	}
	res, err := h.svc.TimeIn(r.Context(), in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, res)
}

func (h *AttendanceHandler) TimeOut(w http.ResponseWriter, r *http.Request) {
	in, ok := h.capture(w, r)
	if !ok {
		return
	}
	res, err := h.svc.TimeOut(r.Context(), in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

func (h *AttendanceHandler) Daily(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	date, ok := h.dateParam(w, r, id)
	if !ok {
		return
	}
	daily, err := h.svc.GetDailyAggregate(r.Context(), id.UserID, date)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, daily)
}

func (h *AttendanceHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	date, ok := h.dateParam(w, r, id)
	if !ok {
		return
	}
	rows, err := h.svc.ListSessions(r.Context(), id.UserID, date)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, rows)
}

func (h *AttendanceHandler) capture(w http.ResponseWriter, r *http.Request) (attendance.CaptureInput, bool) {
	id, ok := identity(w, r)
	if !ok {
		return attendance.CaptureInput{}, false
	}

	var req captureRequest
	if !decode(w, r, maxCaptureBody, &req) {
		return attendance.CaptureInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, apperror.MapValidationError(err))
		return attendance.CaptureInput{}, false
	}
	evidence, err := decodeEvidence(req.Evidence)
	if err != nil {
		response.Error(w, apperror.InvalidField("Evidence"))
		return attendance.CaptureInput{}, false
	}

	return attendance.CaptureInput{
		UserID:     id.UserID,
		OrgID:      id.OrgID,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Accuracy:   req.Accuracy,
		Evidence:   evidence,
		LateReason: req.LateReason,
		IPAddress:  remoteIP(r),
		UserAgent:  r.UserAgent(),
	}, true
}

// dateParam reads ?date=YYYY-MM-DD, defaulting to today in the caller's
// shift timezone.
func (h *AttendanceHandler) dateParam(w http.ResponseWriter, r *http.Request, id middleware.Identity) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return h.svc.Today(r.Context(), id.UserID), true
	}
	date, err := attendance.ParseDate(raw)
	if err != nil {
		response.Error(w, apperror.InvalidField("Date"))
		return time.Time{}, false
	}
	return date, true
}

// decodeEvidence accepts raw base64 or a data URL. The declared media type
// of a data URL is ignored; storage sniffs the bytes.
func decodeEvidence(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(s)
}

func identity(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, apperror.ErrUnauthorized)
		return middleware.Identity{}, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(dst); err != nil {
		response.Error(w, apperror.Wrap(err, apperror.CodeInvalidInput, "Request body is not valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
