package policy

import (
	"timekeeping/apperror"
	"timekeeping/models"
)

func CheckEvidence(hasEvidence bool, req models.Requirements) Result {
	if req.Photo && !hasEvidence {
		return fail(apperror.PolicyKindEvidence, "a photo is required")
	}
	return pass()
}
