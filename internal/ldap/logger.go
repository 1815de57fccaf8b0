package ldap

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// LogSubsystem is the tflog subsystem used by this package.
const LogSubsystem = "ldap"

// LogLevelEnv selects the level of the ldap subsystem logger.
const LogLevelEnv = "LDAP_AUTH_LOG_LEVEL"

// Logger interface for LDAP operations.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Trace(msg string, fields map[string]any)
}

// TFLogger wraps tflog for use in LDAP package.
type TFLogger struct {
	ctx       context.Context
	subsystem string
}

// NewTFLogger creates a new logger for LDAP operations. The subsystem is
// initialised on ctx with its level read from LDAP_AUTH_LOG_LEVEL, and
// password fields are masked.
func NewTFLogger(ctx context.Context, subsystem string) *TFLogger {
	ctx = tflog.NewSubsystem(ctx, subsystem, tflog.WithLevelFromEnv(LogLevelEnv))
	ctx = tflog.SubsystemMaskFieldValuesWithFieldKeys(ctx, subsystem, "password", "service_account_password")

	return &TFLogger{
		ctx:       ctx,
		subsystem: subsystem,
	}
}

func (l *TFLogger) Debug(msg string, fields map[string]any) {
	tflog.SubsystemDebug(l.ctx, l.subsystem, msg, SanitizeFields(fields))
}

func (l *TFLogger) Info(msg string, fields map[string]any) {
	tflog.SubsystemInfo(l.ctx, l.subsystem, msg, SanitizeFields(fields))
}

func (l *TFLogger) Warn(msg string, fields map[string]any) {
	tflog.SubsystemWarn(l.ctx, l.subsystem, msg, SanitizeFields(fields))
}

func (l *TFLogger) Error(msg string, fields map[string]any) {
	tflog.SubsystemError(l.ctx, l.subsystem, msg, SanitizeFields(fields))
}

func (l *TFLogger) Trace(msg string, fields map[string]any) {
	tflog.SubsystemTrace(l.ctx, l.subsystem, msg, SanitizeFields(fields))
}

// withFields returns a copy of base extended with extra.
func withFields(base map[string]any, extra map[string]any) map[string]any {
	fields := make(map[string]any, len(base)+len(extra))
	maps.Copy(fields, base)
	maps.Copy(fields, extra)
	return fields
}

// LogOperation is a helper function to log an operation with timing.
func LogOperation(logger Logger, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	fields = withFields(fields, map[string]any{"operation": operation})

	logger.Debug("Starting operation", fields)

	err := fn()

	// Add timing and result to fields
	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		fields["failure_kind"] = string(KindOf(err))
		logger.Error("Operation failed", fields)
	} else {
		logger.Debug("Operation completed successfully", fields)
	}

	return err
}

// LogLDAPError logs LDAP-specific error information.
func LogLDAPError(logger Logger, operation string, err error, fields map[string]any) {
	logger.Error("LDAP operation failed", ldapErrorFields(operation, err, fields))
}

// LogLDAPWarning logs a non-fatal LDAP failure, such as a cleanup step.
func LogLDAPWarning(logger Logger, operation string, err error, fields map[string]any) {
	logger.Warn("LDAP operation failed", ldapErrorFields(operation, err, fields))
}

func ldapErrorFields(operation string, err error, fields map[string]any) map[string]any {
	fields = withFields(fields, map[string]any{
		"operation": operation,
		"error":     err.Error(),
	})

	// Add LDAP-specific error information if available
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		fields["ldap_result_code"] = ldapErr.ResultCode
		if ldapErr.MatchedDN != "" {
			fields["ldap_matched_dn"] = ldapErr.MatchedDN
		}
		if ldapErr.Err != nil {
			fields["ldap_diagnostic_message"] = ldapErr.Err.Error()
		}
	}

	return fields
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	sensitiveKeys := map[string]bool{
		"password":                 true,
		"passwd":                   true,
		"secret":                   true,
		"token":                    true,
		"credential":               true,
		"credentials":              true,
		"service_account_password": true,
	}

	for k, v := range fields {
		// Check if this is a sensitive field
		if sensitiveKeys[k] {
			sanitized[k] = "[REDACTED]"
		} else {
			// Check if the value contains sensitive patterns
			if str, ok := v.(string); ok && containsSensitivePattern(str) {
				sanitized[k] = "[REDACTED]"
			} else {
				sanitized[k] = v
			}
		}
	}

	return sanitized
}

// containsSensitivePattern checks if a string contains patterns that might be sensitive.
func containsSensitivePattern(s string) bool {
	patterns := []string{
		"password=",
		"passwd=",
		"secret=",
		"token=",
	}

	lower := strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}

// fieldLogger adds a fixed set of fields to every message.
type fieldLogger struct {
	logger Logger
	fields map[string]any
}

// WithLogFields returns a Logger that includes fields in every message.
func WithLogFields(logger Logger, fields map[string]any) Logger {
	return &fieldLogger{logger: logger, fields: fields}
}

func (l *fieldLogger) Debug(msg string, fields map[string]any) {
	l.logger.Debug(msg, withFields(l.fields, fields))
}

func (l *fieldLogger) Info(msg string, fields map[string]any) {
	l.logger.Info(msg, withFields(l.fields, fields))
}

func (l *fieldLogger) Warn(msg string, fields map[string]any) {
	l.logger.Warn(msg, withFields(l.fields, fields))
}

func (l *fieldLogger) Error(msg string, fields map[string]any) {
	l.logger.Error(msg, withFields(l.fields, fields))
}

func (l *fieldLogger) Trace(msg string, fields map[string]any) {
	l.logger.Trace(msg, withFields(l.fields, fields))
}
