package ldap

import (
	"errors"
	"fmt"
)

// Directory schema constants.
const (
	// DefaultRoleAttribute is the attribute read for the application role.
	DefaultRoleAttribute = "yugabytePlatformRole"

	// DistinguishedNameAttribute is preferred over the entry DN when present (AD schema).
	DistinguishedNameAttribute = "distinguishedName"

	// RoleLookupFilter matches every entry below the user's DN.
	RoleLookupFilter = "(objectclass=*)"
)

// allAttributes requests every user attribute in a search.
var allAttributes = []string{"*"}

// AuthResult is the outcome of a successful authentication.
type AuthResult struct {
	DN   string // DN the user was bound as
	Role string // Empty when the directory has no role for the user
}

// UserSearchResult is produced by DirectorySearcher. Both fields are empty
// when no entry matched.
type UserSearchResult struct {
	DN   string
	Role string
}

// FailureKind classifies a failed authentication attempt.
type FailureKind string

const (
	FailureConfiguration      FailureKind = "configuration_error"
	FailureUserNotFound       FailureKind = "user_not_found"
	FailureInvalidCredentials FailureKind = "invalid_credentials"
	FailureServiceAccountBind FailureKind = "service_account_bind_failure"
	FailureDirectorySearch    FailureKind = "directory_search_failure"
	FailureConnection         FailureKind = "connection_error"
	FailureUnknown            FailureKind = "unknown"
)

// AuthError is returned by Authenticate for every failed attempt.
type AuthError struct {
	Kind    FailureKind
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Cause != nil && e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause.Error())
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// newAuthError creates a new authentication error.
func newAuthError(kind FailureKind, cause error, format string, args ...any) *AuthError {
	return &AuthError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// KindOf returns the failure kind carried by err, or FailureUnknown.
func KindOf(err error) FailureKind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return FailureUnknown
}

// IsUserNotFound checks if the directory reported that the user does not exist.
func IsUserNotFound(err error) bool {
	return KindOf(err) == FailureUserNotFound
}

// IsInvalidCredentials checks if the directory rejected the supplied password.
func IsInvalidCredentials(err error) bool {
	return KindOf(err) == FailureInvalidCredentials
}

// IsConfigurationError checks if the attempt failed because of the configuration.
func IsConfigurationError(err error) bool {
	return KindOf(err) == FailureConfiguration
}
