package ldap

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// DirectorySearcher resolves a user's DN and role by searching the directory
// as the service account.
type DirectorySearcher struct {
	config Config
	logger Logger
}

// NewDirectorySearcher creates a new searcher for the given configuration.
func NewDirectorySearcher(config Config, logger Logger) *DirectorySearcher {
	return &DirectorySearcher{
		config: config,
		logger: logger,
	}
}

// UserFilter returns the search filter matching the user's login.
func (s *DirectorySearcher) UserFilter(email string) string {
	return fmt.Sprintf("(%s=%s)", s.config.SearchAttribute, ldap.EscapeFilter(email))
}

// SearchAndBind binds conn as the service account and searches below the base
// DN for the entry whose search attribute equals email.
//
// The first entry (in server order) with a non-empty DN wins; the search
// attribute is expected to be unique. A failed service account bind is fatal.
// The service account session is always unbound before returning.
func (s *DirectorySearcher) SearchAndBind(ctx context.Context, email string, conn *Connection) (UserSearchResult, error) {
	var result UserSearchResult

	serviceAccountDN := s.config.ServiceAccountDN()
	fields := map[string]any{
		"service_account_dn": serviceAccountDN,
		"base_dn":            s.config.BaseDN,
	}

	if err := conn.Bind(ctx, serviceAccountDN, s.config.ServiceAccountPassword); err != nil {
		LogLDAPError(s.logger, "service_account_bind", err, fields)
		return result, newAuthError(FailureServiceAccountBind, err, "Service Account bind failed. %s", err.Error())
	}

	defer func() {
		if err := conn.Unbind(); err != nil {
			LogLDAPWarning(s.logger, "unbind", err, fields)
		}
	}()

	filter := s.UserFilter(email)
	fields["filter"] = filter

	cursor, err := conn.Search(ctx, s.config.BaseDN, filter)
	if err != nil {
		LogLDAPError(s.logger, "search", err, fields)
		return result, newAuthError(FailureDirectorySearch, err, "LDAP search failed. %s", err.Error())
	}

	defer func() {
		if err := cursor.Close(); err != nil {
			LogLDAPWarning(s.logger, "cursor_close", err, fields)
		}
	}()

	roleAttribute := s.config.roleAttribute()
	entries := 0

	for cursor.Next() {
		entry := cursor.Entry()
		entries++

		if s.config.Verbose {
			s.logger.Debug("LDAP server returned entry", withFields(fields, entryLogFields(entry)))
		}

		result.DN = entry.GetEqualFoldAttributeValue(DistinguishedNameAttribute)
		if result.DN == "" {
			result.DN = entry.DN
		}

		if role := entry.GetEqualFoldAttributeValue(roleAttribute); role != "" {
			result.Role = role
		}

		if result.DN != "" {
			break
		}
	}

	if err := cursor.Err(); err != nil {
		LogLDAPError(s.logger, "search", err, fields)
		return UserSearchResult{}, newAuthError(FailureDirectorySearch, err, "LDAP search failed. %s", err.Error())
	}

	fields["entries_inspected"] = entries
	fields["resolved_dn"] = result.DN
	fields["role_found"] = result.Role != ""

	if result.DN == "" {
		s.logger.Info("No directory entry matched the search", fields)
	} else {
		s.logger.Debug("Successfully fetched DN", fields)
	}

	return result, nil
}
