package apperror

const (
	// Client errors (4xx)
	CodeInvalidInput       = "INVALID_INPUT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeAlreadyOpen        = "ALREADY_OPEN"
	CodeNoOpenSession      = "NO_OPEN_SESSION"
	CodeInvalidState       = "INVALID_STATE"
	CodePolicyViolation    = "POLICY_VIOLATION"
	CodeLateReasonRequired = "LATE_REASON_REQUIRED"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"

	// Server errors (5xx)
	CodeProcessingError    = "PROCESSING_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)
