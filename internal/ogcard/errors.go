package ogcard

import (
	"errors"
	"fmt"
)

// Stable error codes reported to callers. Codes are part of the API
// contract; messages are not.
const (
	CodeInvalidSource         = "INVALID_SOURCE"
	CodeInvalidURL            = "INVALID_URL"
	CodeInvalidURLProtocol    = "INVALID_URL_PROTOCOL"
	CodeInvalidBase64         = "INVALID_BASE64"
	CodeDNSResolutionFailed   = "DNS_RESOLUTION_FAILED"
	CodePrivateNetworkBlocked = "PRIVATE_NETWORK_BLOCKED"
	CodeTooManyRedirects      = "TOO_MANY_REDIRECTS"
	CodeRedirectNoLocation    = "REDIRECT_MISSING_LOCATION"
	CodeRemoteFetchFailed     = "REMOTE_FETCH_FAILED"
	CodeUnsupportedMimeType   = "UNSUPPORTED_MIME_TYPE"
	CodeSourceTooLarge        = "SOURCE_TOO_LARGE"
	CodeEmptyResponse         = "EMPTY_RESPONSE"
	CodeInvalidPlatform       = "INVALID_PLATFORM"
	CodeInvalidTemplate       = "INVALID_TEMPLATE"
	CodeRenderFailed          = "RENDER_FAILED"
	CodeTitleRequired         = "TITLE_REQUIRED"
	CodeTitleTooLong          = "TITLE_TOO_LONG"
	CodeSubtitleTooLong       = "SUBTITLE_TOO_LONG"
	CodeInvalidPageURL        = "INVALID_PAGE_URL"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeInvalidQuery          = "INVALID_QUERY"
	CodeInvalidFileField      = "INVALID_FILE_FIELD"
	CodeMultipleFiles         = "MULTIPLE_FILES_NOT_SUPPORTED"
	CodeJobNotFound           = "JOB_NOT_FOUND"
	CodeMappingNotFound       = "MAPPING_NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeRateLimited           = "RATE_LIMITED"
	CodeInternal              = "INTERNAL_ERROR"
)

// Store-level not-found signals, translated to coded errors by the
// service layer.
var (
	ErrJobNotFound     = errors.New("job not found")
	ErrMappingNotFound = errors.New("mapping not found")
)

// Error is a typed failure carrying a stable code, an HTTP-style status
// class, and optional structured details.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a coded error with the given status class.
func NewError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

// WithDetails attaches structured details and returns the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// AsError extracts a coded error from err, if one is present in its
// chain.
func AsError(err error) (*Error, bool) {
	var coded *Error
	if errors.As(err, &coded) {
		return coded, true
	}
	return nil, false
}
