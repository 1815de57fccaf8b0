package main

import (
	"io"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/isometry/ldap-auth-check/internal/ldap"
)

// hclogLogger adapts an hclog.Logger to ldap.Logger.
type hclogLogger struct {
	logger hclog.Logger
}

func newHCLogger(w io.Writer, verbose bool) *hclogLogger {
	level := hclog.Warn
	if verbose {
		level = hclog.Debug
	}

	return &hclogLogger{
		logger: hclog.New(&hclog.LoggerOptions{
			Name:   "ldap-auth-check",
			Level:  level,
			Output: w,
		}),
	}
}

func (l *hclogLogger) Debug(msg string, fields map[string]any) {
	l.logger.Debug(msg, args(fields)...)
}

func (l *hclogLogger) Info(msg string, fields map[string]any) {
	l.logger.Info(msg, args(fields)...)
}

func (l *hclogLogger) Warn(msg string, fields map[string]any) {
	l.logger.Warn(msg, args(fields)...)
}

func (l *hclogLogger) Error(msg string, fields map[string]any) {
	l.logger.Error(msg, args(fields)...)
}

func (l *hclogLogger) Trace(msg string, fields map[string]any) {
	l.logger.Trace(msg, args(fields)...)
}

// args flattens fields into sorted key/value pairs.
func args(fields map[string]any) []any {
	fields = ldap.SanitizeFields(fields)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, k, fields[k])
	}
	return out
}
