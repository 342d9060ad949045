package handlers

// Error codes carried in the ErrorResponse envelope. Clients branch on these
// rather than parsing messages; keep them stable once shipped. Generic codes
// mirror HTTP status semantics, the domain ones mark business failures the
// status alone cannot convey (a turn that failed mid-conversation versus a
// complaint update that was rejected).
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	ErrCodeConverseFailed   = "converse_failed"
	ErrCodeUpdateFailed     = "update_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
