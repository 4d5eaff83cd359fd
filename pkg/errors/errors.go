// Package errors carries the CLI's error taxonomy: a structured error
// type with machine-readable codes, process exit codes, and helpers for
// attaching details and suggestions without losing errors.Is semantics.
//
//nolint:revive // Shadows stdlib errors on purpose; callers import it as valierr
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Exit codes used by the CLI.
const (
	ExitSuccess    = 0 // no error
	ExitGeneral    = 1 // anything without a better classification
	ExitInput      = 2 // bad input or configuration
	ExitNetwork    = 3 // portal or network failure
	ExitBrowser    = 4 // browser session or token minting failure
	ExitPermission = 5 // permission denied or locked accounts book
)

// ValiError is the error currency of the CLI. Code is stable and machine
// readable, Message is for humans, Details and Suggestion feed the
// structured error output, and ExitCode decides the process result.
type ValiError struct {
	Code       string
	Message    string
	Details    map[string]string
	Suggestion string
	Cause      error
	ExitCode   int
}

func (e *ValiError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	// Details render sorted so the message is deterministic.
	for _, k := range sortedKeys(e.Details) {
		fmt.Fprintf(&b, " (%s: %s)", k, e.Details[k])
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *ValiError) Unwrap() error {
	return e.Cause
}

// Is matches any ValiError carrying the same code, so derived copies
// compare equal to their sentinel.
func (e *ValiError) Is(target error) bool {
	var t *ValiError
	return errors.As(target, &t) && e.Code == t.Code
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sentinel(code, message string, exit int) *ValiError {
	return &ValiError{Code: code, Message: message, ExitCode: exit}
}

// Sentinel errors. Compare with errors.Is; derive variants with Wrap,
// WithDetails, and WithSuggestion rather than mutating these.
var (
	ErrGeneral      = sentinel("GENERAL_ERROR", "an error occurred", ExitGeneral)
	ErrInvalidInput = sentinel("INVALID_INPUT", "invalid input", ExitInput)
	ErrPermission   = sentinel("PERMISSION_DENIED", "permission denied", ExitPermission)

	// Browser and token minting.
	ErrSessionFailed    = sentinel("SESSION_ERROR", "browser session could not be started", ExitBrowser)
	ErrTokenAcquisition = sentinel("TOKEN_ACQUISITION_FAILED", "failed to obtain reCAPTCHA token", ExitBrowser)

	// Portal communication.
	ErrNetworkError   = sentinel("NETWORK_ERROR", "network communication failed", ExitNetwork)
	ErrTimeout        = sentinel("TIMEOUT", "request timed out", ExitNetwork)
	ErrPortalRejected = sentinel("PORTAL_REJECTED", "portal rejected the request", ExitNetwork)
	ErrProtocol       = sentinel("PROTOCOL_ERROR", "portal response could not be parsed", ExitNetwork)
	ErrRateLimited    = sentinel("RATE_LIMITED", "request rate limit exceeded", ExitNetwork)

	// Service registry.
	ErrServiceUnknown = sentinel("SERVICE_UNKNOWN", "unknown service name", ExitInput)

	// Configuration.
	ErrConfigNotFound   = sentinel("CONFIG_NOT_FOUND", "configuration file not found", ExitInput)
	ErrConfigInvalid    = sentinel("CONFIG_INVALID", "configuration file is invalid", ExitInput)
	ErrUnknownConfigKey = sentinel("UNKNOWN_CONFIG_KEY", "unknown config key", ExitInput)

	// Accounts book.
	ErrAccountsNotFound = sentinel("ACCOUNTS_NOT_FOUND", "accounts book not found", ExitInput)
	ErrAccountNotFound  = sentinel("ACCOUNT_NOT_FOUND", "account label not found", ExitInput)
	ErrAccountExists    = sentinel("ACCOUNT_EXISTS", "account label already exists", ExitInput)
	ErrDecryptionFailed = sentinel("DECRYPTION_FAILED", "decryption failed - wrong passphrase or corrupted file", ExitPermission)
	ErrLocked           = sentinel("UNLOCK_REQUIRED", "accounts book is locked", ExitPermission)

	// Cache.
	ErrCacheNotFound  = sentinel("CACHE_NOT_FOUND", "no cached data available", ExitGeneral)
	ErrNotImplemented = sentinel("NOT_IMPLEMENTED", "operation not implemented yet", ExitGeneral)
)

// New creates a ValiError with the given code and message.
func New(code, message string) *ValiError {
	return sentinel(code, message, ExitGeneral)
}

// clone copies the nearest ValiError in err's chain, or lifts a plain
// error into a GENERAL_ERROR carrier.
func clone(err error) *ValiError {
	var ve *ValiError
	if errors.As(err, &ve) {
		c := *ve
		return &c
	}
	return &ValiError{
		Code:     ErrGeneral.Code,
		Message:  err.Error(),
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// Wrap prefixes an error's message with printf-style context. Code,
// details, suggestion, and exit code survive; err stays in the chain.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)

	var ve *ValiError
	if !errors.As(err, &ve) {
		return &ValiError{Code: ErrGeneral.Code, Message: msg, Cause: err, ExitCode: ExitGeneral}
	}

	out := *ve
	out.Message = msg + ": " + ve.Message
	out.Cause = err
	return &out
}

// WithDetails returns a copy of err carrying the given detail map.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}
	ve := clone(err)
	ve.Details = details
	return ve
}

// WithSuggestion returns a copy of err carrying an actionable hint.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	ve := clone(err)
	ve.Suggestion = suggestion
	return ve
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ve *ValiError
	if errors.As(err, &ve) {
		return ve.ExitCode
	}
	return ExitGeneral
}

// Code returns the machine-readable code for an error.
func Code(err error) string {
	var ve *ValiError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ErrGeneral.Code
}

// Is re-exports errors.Is so callers need only one errors import.
// Code-based matching still applies through ValiError.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As re-exports errors.As so callers need only one errors import.
func As(err error, target any) bool {
	return errors.As(err, target)
}
