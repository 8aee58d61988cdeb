package utils

// Error codes returned to clients in the "code" field of error responses.
const (
	ErrorTokenAuthFail   = "TOKEN_AUTH_FAIL"
	ErrorInvalidArgument = "INVALID_ARGUMENT"
	ErrorNotFound        = "NOT_FOUND"
	ErrorQuotaExceeded   = "QUOTA_EXCEEDED"
	ErrorContentRejected = "CONTENT_REJECTED"
	ErrorForbidden       = "FORBIDDEN"
	ErrorConflict        = "CONFLICT"
	ErrorTooManyRequests = "TOO_MANY_REQUESTS"
	ErrorUpstreamFailure = "UPSTREAM_FAILURE"
	ErrorInternal        = "INTERNAL"
)
