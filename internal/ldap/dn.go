package ldap

import (
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// BuildDN assembles a bind DN from the configured template.
//
// The name is inserted verbatim: directories that accept a UPN or mail address
// as the RDN value (Active Directory does) must see exactly what the user typed.
func BuildDN(prefix, name, baseDN string) string {
	return prefix + name + "," + baseDN
}

// ValidateDNSyntax validates that a string is a syntactically correct DN.
func ValidateDNSyntax(dn string) error {
	if dn == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	_, err := ldap.ParseDN(dn)
	if err != nil {
		return fmt.Errorf("invalid DN syntax: %w", err)
	}

	return nil
}
