package bridge

import "fmt"

// Error codes returned in the error outcome.
const (
	CodeInvalidArguments = "INVALID_ARGUMENTS"
	CodeNotImplemented   = "NOT_IMPLEMENTED"
	CodeAddMarkers       = "ADD_MARKERS_ERROR"
	CodeUpdateMarkers    = "UPDATE_MARKERS_ERROR"
	CodeRemoveMarkers    = "REMOVE_MARKERS_ERROR"
	CodeClearMarkers     = "CLEAR_MARKERS_ERROR"
	CodeUpdateConfig     = "UPDATE_CONFIG_ERROR"
	CodeGetMarkers       = "GET_MARKERS_ERROR"
	CodeNavigation       = "NAVIGATION_ERROR"
	CodeMapTap           = "MAP_TAP_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

// Error is a failed call as seen by the embedding application.
type Error struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details"`
}

func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, *e.Details)
	}
	return e.Code + ": " + e.Message
}

// CallerFault reports whether the call was rejected for its arguments.
func (e *Error) CallerFault() bool {
	return e.Code == CodeInvalidArguments
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) withDetails(details string) *Error {
	e.Details = &details
	return e
}

func invalid(message string) *Error {
	return newError(CodeInvalidArguments, message)
}
