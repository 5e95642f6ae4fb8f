package handlers

import (
	"net/http"

	"timekeeping/correction"
	correctionerrors "timekeeping/correction/errors"
	"timekeeping/response"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxCorrectionBody = 64 << 10

type CorrectionHandler struct {
	svc correction.Service
}

func NewCorrectionHandler(svc correction.Service) *CorrectionHandler {
	return &CorrectionHandler{svc: svc}
}

func (h *CorrectionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req correction.SubmitRequest
	if !decode(w, r, maxCorrectionBody, &req) {
		return
	}
	c, err := h.svc.Submit(r.Context(), actor, req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, c)
}

func (h *CorrectionHandler) Review(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	var req correction.ReviewRequest
	if !decode(w, r, maxCorrectionBody, &req) {
		return
	}
	c, err := h.svc.Review(r.Context(), id, actor, req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, c)
}

func (h *CorrectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), id, actor)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, c)
}

func (h *CorrectionHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.ListByOrg(r.Context(), actor, r.URL.Query().Get("status"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, rows)
}

func (h *CorrectionHandler) Mine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.ListMine(r.Context(), actor)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, rows)
}

func (h *CorrectionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := requestID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Withdraw(r.Context(), id, actor); err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"id": id.String()})
}

func actorFrom(w http.ResponseWriter, r *http.Request) (correction.Actor, bool) {
	id, ok := identity(w, r)
	if !ok {
		return correction.Actor{}, false
	}
	return correction.Actor{UserID: id.UserID, OrgID: id.OrgID, Role: id.Role}, true
}

// requestID parses the {id} path segment. A malformed id cannot name an
// existing request, so it is reported as not found.
func requestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, correctionerrors.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}
