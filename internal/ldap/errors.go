package ldap

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrorCategory represents different categories of LDAP errors.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// LDAPError provides enhanced error information for LDAP operations.
type LDAPError struct {
	Operation string        // The operation that failed
	Category  ErrorCategory // Error category
	LDAPCode  uint16        // LDAP result code
	Message   string        // Human-readable message
	ServerMsg string        // Server-provided diagnostic message
	DN        string        // DN involved in the operation (if applicable)
	Cause     error         // Underlying error
}

func (e *LDAPError) Error() string {
	var parts []string

	if e.LDAPCode > 0 {
		parts = append(parts, fmt.Sprintf("LDAP %s failed (code %d)", e.Operation, e.LDAPCode))
	} else {
		parts = append(parts, fmt.Sprintf("LDAP %s failed", e.Operation))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.ServerMsg != "" && e.ServerMsg != e.Message {
		parts = append(parts, fmt.Sprintf("server: %s", e.ServerMsg))
	}

	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("DN: %s", e.DN))
	}

	return strings.Join(parts, " - ")
}

func (e *LDAPError) Unwrap() error {
	return e.Cause
}

// NewLDAPError creates a new LDAP error.
func NewLDAPError(operation string, err error) *LDAPError {
	if err == nil {
		return nil
	}

	ldapErr := &LDAPError{
		Operation: operation,
		Cause:     err,
	}

	// Extract LDAP-specific information
	var ldapResultErr *ldap.Error
	if errors.As(err, &ldapResultErr) {
		ldapErr.LDAPCode = ldapResultErr.ResultCode
		if ldapResultErr.Err != nil {
			ldapErr.ServerMsg = ldapResultErr.Err.Error()
		}
		ldapErr.Category = categorizeError(ldapResultErr.ResultCode)
		ldapErr.Message = getLDAPCodeMessage(ldapResultErr.ResultCode)
	} else {
		// Non-LDAP error, categorize by error message
		ldapErr.Category = categorizeGenericError(err)
		ldapErr.Message = err.Error()
	}

	return ldapErr
}

// WrapError wraps an error with operation context and the DN it concerned.
func WrapError(operation, dn string, err error) error {
	if err == nil {
		return nil
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		// Already wrapped, just fill in missing context
		if ldapErr.Operation == "" {
			ldapErr.Operation = operation
		}
		if ldapErr.DN == "" {
			ldapErr.DN = dn
		}
		return ldapErr
	}

	wrapped := NewLDAPError(operation, err)
	wrapped.DN = dn
	return wrapped
}

// categorizeError categorizes an error based on LDAP result code.
func categorizeError(code uint16) ErrorCategory {
	switch code {
	// Authentication errors
	case ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultStrongAuthRequired,
		ldap.ErrorEmptyPassword:
		return ErrorCategoryAuthentication

	// Permission errors
	case ldap.LDAPResultInsufficientAccessRights,
		ldap.LDAPResultUnwillingToPerform:
		return ErrorCategoryPermission

	// Not found errors
	case ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultNoSuchAttribute,
		ldap.LDAPResultUndefinedAttributeType:
		return ErrorCategoryNotFound

	// Validation errors
	case ldap.LDAPResultInvalidAttributeSyntax,
		ldap.LDAPResultConstraintViolation,
		ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultNamingViolation,
		ldap.LDAPResultFilterError,
		ldap.LDAPResultParamError:
		return ErrorCategoryValidation

	// Server errors
	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultAdminLimitExceeded:
		return ErrorCategoryServer

	// Connection errors
	case ldap.LDAPResultConnectError,
		ldap.LDAPResultProtocolError,
		ldap.ErrorNetwork:
		return ErrorCategoryConnection

	default:
		return ErrorCategoryUnknown
	}
}

// categorizeGenericError categorizes non-LDAP errors.
func categorizeGenericError(err error) ErrorCategory {
	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset") {
		return ErrorCategoryConnection
	}

	return ErrorCategoryUnknown
}

// getLDAPCodeMessage returns a human-readable message for an LDAP result code.
func getLDAPCodeMessage(code uint16) string {
	switch code {
	case ldap.LDAPResultOperationsError:
		return "LDAP operations error"
	case ldap.LDAPResultProtocolError:
		return "LDAP protocol error"
	case ldap.LDAPResultTimeLimitExceeded:
		return "LDAP time limit exceeded"
	case ldap.LDAPResultSizeLimitExceeded:
		return "LDAP size limit exceeded"
	case ldap.LDAPResultAuthMethodNotSupported:
		return "Authentication method not supported"
	case ldap.LDAPResultStrongAuthRequired:
		return "Strong authentication required"
	case ldap.LDAPResultConfidentialityRequired:
		return "Confidentiality required"
	case ldap.LDAPResultNoSuchAttribute:
		return "Requested attribute does not exist"
	case ldap.LDAPResultUndefinedAttributeType:
		return "Attribute type is not defined"
	case ldap.LDAPResultConstraintViolation:
		return "Constraint violation"
	case ldap.LDAPResultInvalidAttributeSyntax:
		return "Invalid attribute syntax"
	case ldap.LDAPResultNoSuchObject:
		return "Requested object does not exist"
	case ldap.LDAPResultInvalidDNSyntax:
		return "Invalid DN syntax"
	case ldap.LDAPResultInappropriateAuthentication:
		return "Inappropriate authentication method"
	case ldap.LDAPResultInvalidCredentials:
		return "Invalid credentials"
	case ldap.LDAPResultInsufficientAccessRights:
		return "Insufficient access rights"
	case ldap.LDAPResultBusy:
		return "Server is busy"
	case ldap.LDAPResultUnavailable:
		return "Server is unavailable"
	case ldap.LDAPResultUnwillingToPerform:
		return "Server is unwilling to perform the operation"
	case ldap.LDAPResultNamingViolation:
		return "Naming violation"
	case ldap.LDAPResultServerDown:
		return "Server is down"
	case ldap.LDAPResultTimeout:
		return "Operation timed out"
	case ldap.LDAPResultFilterError:
		return "Invalid search filter"
	case ldap.LDAPResultParamError:
		return "Parameter error"
	case ldap.LDAPResultConnectError:
		return "Connection error"
	case ldap.ErrorNetwork:
		return "Network error"
	case ldap.ErrorEmptyPassword:
		return "Empty password not allowed"
	default:
		return fmt.Sprintf("Unknown LDAP error (code %d)", code)
	}
}

// GetErrorCategory returns the category of an error.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) && ldapErr.Category != "" {
		return ldapErr.Category
	}

	// Check for raw go-ldap library errors
	var ldapResultErr *ldap.Error
	if errors.As(err, &ldapResultErr) {
		return categorizeError(ldapResultErr.ResultCode)
	}

	return categorizeGenericError(err)
}

// IsAuthenticationError checks if an error indicates an authentication problem.
func IsAuthenticationError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryAuthentication
}

// ADUserNotFoundDataCode is the Active Directory sub-code reported inside an
// invalid-credentials diagnostic when the bind account does not exist.
const ADUserNotFoundDataCode = "2030"

// AD diagnostics look like "80090308: LdapErr: DSID-0C09042A, comment: AcceptSecurityContext error, data 52e, v3839".
var adDataCodePattern = regexp.MustCompile(`\bdata ([0-9a-fA-F]+)\b`)

// adDataCode extracts the Active Directory sub-code from a diagnostic message.
func adDataCode(diagnostic string) string {
	m := adDataCodePattern.FindStringSubmatch(diagnostic)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// ClassifyBindError maps a bind failure onto the authentication failure taxonomy.
func ClassifyBindError(err error) FailureKind {
	if err == nil {
		return ""
	}

	var ldapResultErr *ldap.Error
	if errors.As(err, &ldapResultErr) {
		var diagnostic string
		if ldapResultErr.Err != nil {
			diagnostic = ldapResultErr.Err.Error()
		}
		return classifyResult(ldapResultErr.ResultCode, diagnostic)
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		if ldapErr.LDAPCode > 0 {
			return classifyResult(ldapErr.LDAPCode, ldapErr.ServerMsg)
		}
		// Local setup problems such as an unreadable CA file
		if ldapErr.Category == ErrorCategoryValidation {
			return FailureConfiguration
		}
	}

	return FailureConnection
}

// classifyResult is the pure mapping from a result code and diagnostic to a failure kind.
func classifyResult(code uint16, diagnostic string) FailureKind {
	if code == ldap.LDAPResultNoSuchObject {
		return FailureUserNotFound
	}

	switch categorizeError(code) {
	case ErrorCategoryAuthentication:
		if adDataCode(diagnostic) == ADUserNotFoundDataCode {
			return FailureUserNotFound
		}
		return FailureInvalidCredentials
	case ErrorCategoryValidation:
		return FailureConfiguration
	default:
		return FailureConnection
	}
}
