package apperror

import (
	"errors"
	"net/http"
)

const (
	PolicyKindLocation = "location"
	PolicyKindEvidence = "evidence"
)

// PolicyViolation is returned when a capture does not satisfy the shift's
// entry or exit requirements. Kind tells the client which requirement failed.
type PolicyViolation struct {
	Kind   string
	Reason string
}

func (p *PolicyViolation) Error() string {
	if p.Reason == "" {
		return "policy violation: " + p.Kind
	}
	return "policy violation (" + p.Kind + "): " + p.Reason
}

func NewPolicyViolation(kind, reason string) *AppError {
	return Wrap(&PolicyViolation{Kind: kind, Reason: reason},
		CodePolicyViolation,
		"Attendance policy requirements are not met",
		http.StatusUnprocessableEntity,
	)
}

// PolicyKind extracts the violation kind from err, or "" when err is not a
// policy violation.
func PolicyKind(err error) string {
	var pv *PolicyViolation
	if errors.As(err, &pv) {
		return pv.Kind
	}
	return ""
}
