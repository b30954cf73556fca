package dto

import "net/http"

// Error code constants
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal     = "ERR_INTERNAL"
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeNotFound     = "ERR_NOT_FOUND"
	ErrCodeInvalidState = "ERR_INVALID_STATE"

	// ErrCodeDependencyNotMet is used when a module needs inactive dependencies
	ErrCodeDependencyNotMet = "ERR_MODULE_DEPENDENCY_NOT_MET"
	// ErrCodeDependentModuleExists is used when active modules block a deactivation
	ErrCodeDependentModuleExists = "ERR_MODULE_DEPENDENT_EXISTS"
	// ErrCodeLockTimeout is used when another lifecycle change for the company holds the lock
	ErrCodeLockTimeout = "ERR_MODULE_LOCK_TIMEOUT"
	// ErrCodeHandlerFailed is used when a transition was stored but a sync lifecycle handler failed
	ErrCodeHandlerFailed = "ERR_MODULE_HANDLER_FAILED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:              http.StatusInternalServerError,
	ErrCodeValidation:            http.StatusBadRequest,
	ErrCodeBadRequest:            http.StatusBadRequest,
	ErrCodeUnauthorized:          http.StatusUnauthorized,
	ErrCodeForbidden:             http.StatusForbidden,
	ErrCodeNotFound:              http.StatusNotFound,
	ErrCodeInvalidState:          http.StatusUnprocessableEntity,
	ErrCodeDependencyNotMet:      http.StatusConflict,
	ErrCodeDependentModuleExists: http.StatusConflict,
	ErrCodeLockTimeout:           http.StatusConflict,
	ErrCodeHandlerFailed:         http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ValidationDetail describes one invalid field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Problem is an RFC 7807 problem body. The extension members are only set
// for the errors that carry them.
type Problem struct {
	Type       string             `json:"type"`
	Title      string             `json:"title"`
	Status     int                `json:"status"`
	Detail     string             `json:"detail,omitempty"`
	Code       string             `json:"code,omitempty"`
	RequestID  string             `json:"request_id,omitempty"`
	Missing    []string           `json:"missing,omitempty"`
	Dependents []string           `json:"dependents,omitempty"`
	State      string             `json:"state,omitempty"`
	Errors     []ValidationDetail `json:"errors,omitempty"`
}

// NewProblem builds a problem for code with the status registered for it
func NewProblem(code, detail string) Problem {
	status := GetHTTPStatus(code)
	return Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Code:   code,
	}
}

// WithRequestID sets the request id and returns the problem
func (p Problem) WithRequestID(requestID string) Problem {
	p.RequestID = requestID
	return p
}

// ModuleNotAvailable is the body for both an unknown module and a module the company has not
// activated. The two cases share one body so a response never reveals which modules exist.
func ModuleNotAvailable(moduleID string) Problem {
	return NewProblem(ErrCodeNotFound, "Module '"+moduleID+"' is not available")
}
