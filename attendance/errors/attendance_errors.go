package attendanceerrors

import (
	"net/http"

	"timekeeping/apperror"
)

var (
	ErrAlreadyOpen = apperror.New(
		apperror.CodeAlreadyOpen,
		"An attendance session is already open",
		http.StatusConflict,
	)
	ErrNoOpenSession = apperror.New(
		apperror.CodeNoOpenSession,
		"No open attendance session found",
		http.StatusConflict,
	)
	ErrLateReasonRequired = apperror.New(
		apperror.CodeLateReasonRequired,
		"A reason is required when checking in late",
		http.StatusUnprocessableEntity,
	)
	ErrDailyNotFound = apperror.New(
		apperror.CodeNotFound,
		"No attendance recorded for this date",
		http.StatusNotFound,
	)
	ErrInvalidUserID = apperror.New(
		apperror.CodeInvalidInput,
		"Invalid user ID",
		http.StatusBadRequest,
	)
	ErrInvalidOrgID = apperror.New(
		apperror.CodeInvalidInput,
		"Invalid organization ID",
		http.StatusBadRequest,
	)
	ErrInvalidCoordinates = apperror.New(
		apperror.CodeInvalidInput,
		"Latitude and longitude must be supplied together and be in range",
		http.StatusBadRequest,
	)
	ErrBusy = apperror.New(
		apperror.CodeTooManyRequests,
		"Another attendance operation is in progress, try again",
		http.StatusTooManyRequests,
	)
)
