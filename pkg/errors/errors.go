package errors

import "fmt"

// ErrorType classifies the failure modes of the portal download flow
type ErrorType string

const (
	// ErrorTypeAuth covers login failures, including exhausting the
	// login-field retry bound without a confirmed session
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeElementNotFound is a page element that has not rendered yet
	ErrorTypeElementNotFound ErrorType = "element_not_found"
	// ErrorTypeWindowClosed is the browser window/target becoming
	// unavailable during navigation
	ErrorTypeWindowClosed ErrorType = "window_closed"
	// ErrorTypeDownloadPending is an archive file that the browser has not
	// finished writing to the download directory
	ErrorTypeDownloadPending ErrorType = "download_pending"
	// ErrorTypeBadArchive is a corrupt or incomplete zip; terminal for the
	// feeder in the current pass
	ErrorTypeBadArchive ErrorType = "bad_archive"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Error carries a failure class alongside the message so retry predicates
// and the run report can dispatch on it
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Wrap creates a typed error around an underlying cause
func Wrap(errorType ErrorType, message string, err error) *Error {
	return &Error{Type: errorType, Message: message, Err: err}
}

// IsRetryable reports whether an error type should be retried within its
// phase. Bad archives and auth failures are terminal.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeElementNotFound, ErrorTypeWindowClosed, ErrorTypeDownloadPending, ErrorTypeNetwork:
		return true
	case ErrorTypeAuth, ErrorTypeBadArchive:
		return false
	default:
		return false
	}
}
