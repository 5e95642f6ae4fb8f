// Package response writes the JSON envelope shared by every endpoint.
package response

import (
	"encoding/json"
	"net/http"

	"timekeeping/apperror"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Envelope struct {
	Ok    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Ok: true, Data: data})
}

// Error maps err through apperror.ToHTTP. Anything that is not an AppError
// is reported as a generic internal error.
func Error(w http.ResponseWriter, err error) {
	he := apperror.ToHTTP(err)
	write(w, he.Status, Envelope{
		Ok:    false,
		Error: &ErrorBody{Code: he.Code, Message: he.Message, Details: he.Details},
	})
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
