package ldap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFields(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]any
		expected map[string]any
	}{
		{
			name:     "nil fields",
			fields:   nil,
			expected: map[string]any{},
		},
		{
			name: "sensitive keys",
			fields: map[string]any{
				"password":                 "hunter2",
				"service_account_password": "svcpass",
				"bind_dn":                  "CN=alice,DC=example,DC=com",
			},
			expected: map[string]any{
				"password":                 "[REDACTED]",
				"service_account_password": "[REDACTED]",
				"bind_dn":                  "CN=alice,DC=example,DC=com",
			},
		},
		{
			name: "sensitive value pattern",
			fields: map[string]any{
				"url":   "ldap://host/?password=hunter2",
				"count": 3,
			},
			expected: map[string]any{
				"url":   "[REDACTED]",
				"count": 3,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFields(tt.fields))
		})
	}
}

func TestTFLogger(t *testing.T) {
	var output bytes.Buffer
	ctx := tflogtest.RootLogger(context.Background(), &output)

	logger := NewTFLogger(ctx, LogSubsystem)
	logger.Info("Performing simple bind", map[string]any{
		"bind_dn":  "CN=alice,DC=example,DC=com",
		"password": "hunter2",
	})

	entries, err := tflogtest.MultilineJSONDecode(&output)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "Performing simple bind", entries[0]["@message"])
	assert.Equal(t, "CN=alice,DC=example,DC=com", entries[0]["bind_dn"])
	assert.NotContains(t, output.String(), "hunter2")
}

func TestWithLogFields(t *testing.T) {
	base := &recordingLogger{}
	logger := WithLogFields(base, map[string]any{"attempt_id": "a1"})

	logger.Warn("first", map[string]any{"step": 1})
	logger.Debug("second", nil)

	require.Len(t, base.entries, 2)
	assert.Equal(t, map[string]any{"attempt_id": "a1", "step": 1}, base.entries[0].Fields)
	assert.Equal(t, map[string]any{"attempt_id": "a1"}, base.entries[1].Fields)
}

func TestLogOperation(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		logger := &recordingLogger{}

		err := LogOperation(logger, "authenticate", map[string]any{"tls_mode": "none"}, func() error {
			return nil
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"Starting operation", "Operation completed successfully"}, logger.messages("debug"))
		assert.Contains(t, logger.entries[1].Fields, "duration_ms")
	})

	t.Run("failure", func(t *testing.T) {
		logger := &recordingLogger{}
		authErr := newAuthError(FailureInvalidCredentials, nil, "Invalid LDAP credentials.")

		err := LogOperation(logger, "authenticate", nil, func() error {
			return authErr
		})
		require.ErrorIs(t, err, authErr)

		require.Equal(t, []string{"Operation failed"}, logger.messages("error"))
		fields := logger.entries[len(logger.entries)-1].Fields
		assert.Equal(t, "invalid_credentials", fields["failure_kind"])
		assert.Equal(t, "authenticate", fields["operation"])
	})
}

func TestLogLDAPError(t *testing.T) {
	logger := &recordingLogger{}
	err := WrapError("bind", "CN=alice,DC=example,DC=com",
		&ldap.Error{ResultCode: ldap.LDAPResultInvalidCredentials, Err: errors.New("data 52e"), MatchedDN: "DC=example,DC=com"})

	LogLDAPError(logger, "user_bind", err, map[string]any{"bind_dn": "CN=alice,DC=example,DC=com"})

	require.Len(t, logger.entries, 1)
	fields := logger.entries[0].Fields
	assert.Equal(t, "error", logger.entries[0].Level)
	assert.Equal(t, uint16(ldap.LDAPResultInvalidCredentials), fields["ldap_result_code"])
	assert.Equal(t, "DC=example,DC=com", fields["ldap_matched_dn"])
	assert.Equal(t, "data 52e", fields["ldap_diagnostic_message"])
}
