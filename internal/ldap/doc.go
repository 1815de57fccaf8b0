/*
Package ldap authenticates users against an LDAP directory and resolves the
application role stored on their entry.

# Architecture Overview

The package is organized into several core components:

  - Connection: one directory session per attempt, dialed lazily
  - DirectorySearcher: service account search for the user's DN and role
  - ClassifyBindError: maps bind failures onto FailureKind
  - Authenticator: runs an attempt end to end

# Strategies

Two strategies are supported:

  - Direct bind: the bind DN is DNPrefix + email + "," + BaseDN. After a
    successful bind the role attribute is read below that DN, as the service
    account if one is configured, otherwise as the user.
  - Search and bind: the service account searches below BaseDN for the entry
    whose SearchAttribute equals the email. The DN found (if any) is used for
    the user bind and the role is taken from the same entry.

# Error Handling

Every failed attempt returns an *AuthError whose Kind is one of the
FailureKind constants. Directory errors are wrapped in LDAPError, which keeps
the result code and the server diagnostic. Active Directory reports a missing
account as invalid credentials with "data 2030" in the diagnostic; such
binds are classified as FailureUserNotFound.

# Thread Safety

Authenticator is safe for concurrent use. Connection is owned by a single
attempt and is not.

# Example Usage

	cfg := ldap.DefaultConfig()
	cfg.Host = "ldap.example.com"
	cfg.BaseDN = "OU=People,DC=example,DC=com"

	result, err := ldap.Authenticate(ctx, "alice@example.com", password, cfg)
	switch {
	case ldap.IsInvalidCredentials(err):
		return errUnauthorized
	case err != nil:
		return err
	}
	fmt.Println(result.DN, result.Role)
*/
package ldap
