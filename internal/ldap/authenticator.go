package ldap

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Authenticator authenticates users against a directory with a fixed configuration.
// It holds no per-call state and may be used concurrently; every call dials
// its own connection.
type Authenticator struct {
	config Config
	dialer Dialer
	logger Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithDialer replaces the go-ldap dialer.
func WithDialer(dialer Dialer) Option {
	return func(a *Authenticator) {
		a.dialer = dialer
	}
}

// WithLogger sets the logger. By default each call logs through tflog on the
// call's context.
func WithLogger(logger Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// NewAuthenticator validates config and returns an Authenticator for it.
// Validation failures are reported as configuration errors.
func NewAuthenticator(config Config, opts ...Option) (*Authenticator, error) {
	if err := config.Validate(); err != nil {
		return nil, newAuthError(FailureConfiguration, err, "LDAP parameters are not configured correctly. %s", err.Error())
	}

	a := &Authenticator{
		config: config,
		dialer: NewStandardDialer(),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Authenticate validates config and performs a single authentication attempt.
func Authenticate(ctx context.Context, email, password string, config Config, opts ...Option) (*AuthResult, error) {
	a, err := NewAuthenticator(config, opts...)
	if err != nil {
		return nil, err
	}
	return a.Authenticate(ctx, email, password)
}

// Authenticate binds as the user identified by email and resolves the user's role.
//
// Failures are returned as *AuthError. The connection is released before
// Authenticate returns, whatever the outcome.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	logger := a.logger
	if logger == nil {
		logger = NewTFLogger(ctx, LogSubsystem)
	}

	login := strings.ToLower(email)
	logger = WithLogFields(logger, map[string]any{
		"attempt_id": uuid.NewString(),
		"email":      login,
	})

	conn := NewConnection(a.config, a.dialer, logger)
	defer conn.Release()

	var result *AuthResult
	err := LogOperation(logger, "authenticate", map[string]any{
		"search_and_bind": a.config.UseSearchAndBind,
		"tls_mode":        a.config.TLSMode.String(),
	}, func() error {
		var authErr error
		result, authErr = a.authenticate(ctx, conn, logger, email, password)
		return authErr
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Authentication successful", map[string]any{
		"dn":   result.DN,
		"role": result.Role,
	})

	return result, nil
}

func (a *Authenticator) authenticate(ctx context.Context, conn *Connection, logger Logger, email, password string) (*AuthResult, error) {
	dn := a.config.UserDN(email)
	var role string

	if a.config.UseSearchAndBind {
		found, err := NewDirectorySearcher(a.config, logger).SearchAndBind(ctx, email, conn)
		if err != nil {
			return nil, err
		}
		if found.DN != "" {
			dn = found.DN
		}
		role = found.Role
	}

	login := strings.ToLower(email)

	if err := conn.Bind(ctx, dn, password); err != nil {
		LogLDAPError(logger, "user_bind", err, map[string]any{"bind_dn": dn})
		return nil, bindFailure(login, err)
	}

	if role == "" && !a.config.UseSearchAndBind {
		var err error
		role, err = a.lookupRole(ctx, conn, logger, login, dn, password)
		if err != nil {
			return nil, err
		}
	}

	return &AuthResult{DN: dn, Role: role}, nil
}

// lookupRole reads the role attribute below the user's DN after a direct bind.
// The search runs as the service account when one is configured. If the
// service account is rejected the user's own session is restored instead.
// Search failures are not fatal: the role is returned as found so far.
// Every entry is read; entries without the role attribute are skipped rather
// than ending the lookup, so the last entry carrying it wins.
func (a *Authenticator) lookupRole(ctx context.Context, conn *Connection, logger Logger, login, dn, password string) (string, error) {
	if a.config.HasServiceAccount() {
		if err := conn.Unbind(); err != nil {
			LogLDAPWarning(logger, "unbind", err, nil)
		}

		serviceAccountDN := a.config.ServiceAccountDN()
		if err := conn.Bind(ctx, serviceAccountDN, a.config.ServiceAccountPassword); err != nil {
			if !IsAuthenticationError(err) {
				LogLDAPError(logger, "service_account_bind", err, map[string]any{"service_account_dn": serviceAccountDN})
				return "", serviceAccountFailure(err)
			}

			logger.Warn("Service Account bind failed. Defaulting to current user connection with LDAP Server.", map[string]any{
				"service_account_dn": serviceAccountDN,
				"error":              err.Error(),
			})

			if err := conn.Bind(ctx, dn, password); err != nil {
				LogLDAPError(logger, "user_rebind", err, map[string]any{"bind_dn": dn})
				return "", bindFailure(login, err)
			}
		}
	}

	var role string
	fields := map[string]any{
		"base_dn": dn,
		"filter":  RoleLookupFilter,
	}

	cursor, err := conn.Search(ctx, dn, RoleLookupFilter)
	if err != nil {
		LogLDAPWarning(logger, "role_lookup", err, fields)
		return role, nil
	}
	defer func() {
		if err := cursor.Close(); err != nil {
			LogLDAPWarning(logger, "cursor_close", err, fields)
		}
	}()

	roleAttribute := a.config.roleAttribute()
	for cursor.Next() {
		if value := cursor.Entry().GetEqualFoldAttributeValue(roleAttribute); value != "" {
			role = value
		}
	}

	if err := cursor.Err(); err != nil {
		fields["role"] = role
		LogLDAPWarning(logger, "role_lookup", err, fields)
		logger.Warn("LDAP query failed, defaulting to least privileged role", fields)
	}

	return role, nil
}

// bindFailure converts a failed user bind into an AuthError.
func bindFailure(login string, err error) *AuthError {
	switch kind := ClassifyBindError(err); kind {
	case FailureUserNotFound:
		return newAuthError(kind, err, "LDAP user %s does not exist on the LDAP server", login)
	case FailureInvalidCredentials:
		return newAuthError(kind, err, "Invalid LDAP credentials. Failed with %s", err.Error())
	case FailureConfiguration:
		return newAuthError(kind, err, "LDAP parameters are not configured correctly. %s", err.Error())
	default:
		return newAuthError(FailureConnection, err, "LDAP connection failed. %s", err.Error())
	}
}

// serviceAccountFailure converts a non-authentication failure of the role
// lookup service account bind. A missing service account entry points at the
// configuration, not at the user.
func serviceAccountFailure(err error) *AuthError {
	switch ClassifyBindError(err) {
	case FailureUserNotFound, FailureConfiguration:
		return newAuthError(FailureConfiguration, err, "LDAP parameters are not configured correctly. %s", err.Error())
	default:
		return newAuthError(FailureConnection, err, "LDAP connection failed. %s", err.Error())
	}
}
