package model

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrTagAuth marks a rejected or expired credential. Callers must re-authenticate.
	ErrTagAuth = goerr.NewTag("auth")
	// ErrTagForbidden marks a credential lacking access to a resource or organization
	ErrTagForbidden = goerr.NewTag("forbidden")
	// ErrTagRateLimit marks exhaustion of the remote API quota
	ErrTagRateLimit = goerr.NewTag("rate_limit")
	// ErrTagNotFound marks a missing resource, e.g. no release or tag
	ErrTagNotFound = goerr.NewTag("not_found")
	// ErrTagUpstream marks any other transport or HTTP failure
	ErrTagUpstream = goerr.NewTag("upstream")
)

// ErrorKind is the error taxonomy exposed to the presentation layer
type ErrorKind string

const (
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindForbidden ErrorKind = "forbidden"
	ErrorKindRateLimit ErrorKind = "rate_limit"
	ErrorKindNotFound  ErrorKind = "not_found"
	ErrorKindUpstream  ErrorKind = "upstream"
)

// StatusError carries the HTTP status and message returned by the remote API
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote API responded %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCodeOf returns the originating remote HTTP status, or 0 if unknown
func StatusCodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// KindOf classifies err by its goerr tag
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case goerr.HasTag(err, ErrTagAuth):
		return ErrorKindAuth
	case goerr.HasTag(err, ErrTagRateLimit):
		return ErrorKindRateLimit
	case goerr.HasTag(err, ErrTagForbidden):
		return ErrorKindForbidden
	case goerr.HasTag(err, ErrTagNotFound):
		return ErrorKindNotFound
	default:
		return ErrorKindUpstream
	}
}

// IsAuthError reports whether err requires the caller to re-authenticate
func IsAuthError(err error) bool {
	return goerr.HasTag(err, ErrTagAuth)
}

// IsRateLimitMessage detects rate-limit indicators in a remote error message
func IsRateLimitMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limited")
}

// TagForStatus returns the goerr tag option for a remote HTTP status and message
func TagForStatus(code int, msg string) goerr.Option {
	switch {
	case code == http.StatusUnauthorized:
		return goerr.T(ErrTagAuth)
	case code == http.StatusTooManyRequests:
		return goerr.T(ErrTagRateLimit)
	case code == http.StatusForbidden && IsRateLimitMessage(msg):
		return goerr.T(ErrTagRateLimit)
	case code == http.StatusForbidden:
		return goerr.T(ErrTagForbidden)
	case code == http.StatusNotFound:
		return goerr.T(ErrTagNotFound)
	default:
		return goerr.T(ErrTagUpstream)
	}
}

// UserMessage is the human readable text shown for an error kind
func UserMessage(kind ErrorKind) string {
	switch kind {
	case ErrorKindAuth:
		return "Authentication failed. Please check your GitHub token is valid."
	case ErrorKindForbidden:
		return "Access forbidden. Please check your GitHub token has access to this private repository."
	case ErrorKindRateLimit:
		return "GitHub API rate limit exceeded"
	case ErrorKindNotFound:
		return "Repository not found or access denied"
	default:
		return "Failed to fetch repository data"
	}
}
