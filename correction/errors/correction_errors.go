package correctionerrors

import (
	"net/http"

	"timekeeping/apperror"
)

var (
	ErrAccessDenied = apperror.New(
		apperror.CodeForbidden,
		"Only supervisors, HR or admins can review corrections",
		http.StatusForbidden,
	)
	ErrSubmitDenied = apperror.New(
		apperror.CodeForbidden,
		"Your role cannot request attendance corrections",
		http.StatusForbidden,
	)
	ErrInvalidStatus = apperror.New(
		apperror.CodeInvalidInput,
		"Decision must be approved or rejected",
		http.StatusBadRequest,
	)
	ErrInvalidStatusFilter = apperror.New(
		apperror.CodeInvalidInput,
		"Status must be pending, approved or rejected",
		http.StatusBadRequest,
	)
	ErrNotFound = apperror.New(
		apperror.CodeNotFound,
		"Correction request not found",
		http.StatusNotFound,
	)
	ErrAlreadyReviewed = apperror.New(
		apperror.CodeInvalidState,
		"Correction request has already been reviewed",
		http.StatusConflict,
	)
	ErrNotOwner = apperror.New(
		apperror.CodeForbidden,
		"Only the requester can withdraw this correction",
		http.StatusForbidden,
	)
	ErrInvalidRequestDate = apperror.New(
		apperror.CodeInvalidInput,
		"Request date must be YYYY-MM-DD",
		http.StatusBadRequest,
	)
)
