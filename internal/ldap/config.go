package ldap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

// TLSMode selects how the connection to the directory is secured.
type TLSMode string

const (
	TLSModeNone     TLSMode = "none"
	TLSModeLDAPS    TLSMode = "ldaps"    // Implicit TLS
	TLSModeStartTLS TLSMode = "starttls" // Plain connection upgraded with STARTTLS
)

// String returns string representation of the TLS mode.
func (m TLSMode) String() string {
	return string(m)
}

// Enabled reports whether any form of TLS is requested.
func (m TLSMode) Enabled() bool {
	return m == TLSModeLDAPS || m == TLSModeStartTLS
}

// ParseTLSMode parses a TLS mode name. The empty string and legacy boolean
// spellings are accepted for compatibility with older configuration files.
func ParseTLSMode(s string) (TLSMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "plain", "false":
		return TLSModeNone, nil
	case "ldaps", "ssl", "tls":
		return TLSModeLDAPS, nil
	case "starttls", "start_tls":
		return TLSModeStartTLS, nil
	default:
		return "", fmt.Errorf("unknown TLS mode %q, must be one of none, ldaps, starttls", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *TLSMode) UnmarshalText(text []byte) error {
	parsed, err := ParseTLSMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Config holds everything needed for a single authentication attempt.
//
// Config is a plain value: pass it by value and it can be shared by any
// number of concurrent callers. Validate is called before any network I/O.
type Config struct {
	// Connection settings
	Host    string        `toml:"host"`
	Port    int           `toml:"port"` // Zero selects 389 or 636 from the TLS mode
	BaseDN  string        `toml:"base_dn"`
	TLSMode TLSMode       `toml:"tls_mode" default:"none"`
	Timeout time.Duration `toml:"timeout"` // Zero leaves the transport default

	// Path to a PEM CA bundle. When set, the server certificate is verified
	// against it instead of being accepted unconditionally.
	TLSCACertFile string `toml:"tls_ca_cert_file"`

	// DN template: DNPrefix + name + "," + BaseDN
	DNPrefix string `toml:"dn_prefix" default:"CN="`

	// Search-and-bind settings
	UseSearchAndBind       bool   `toml:"use_search_and_bind"`
	ServiceAccountUsername string `toml:"service_account_username"`
	ServiceAccountPassword string `toml:"service_account_password"`
	SearchAttribute        string `toml:"search_attribute"`

	// Attribute carrying the application role on the user entry.
	RoleAttribute string `toml:"role_attribute" default:"yugabytePlatformRole"`

	Verbose bool `toml:"verbose"`
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() Config {
	var cfg Config
	defaults.MustSet(&cfg)
	return cfg
}

// ErrSearchAndBindNotConfigured is returned by Validate when search-and-bind
// is requested without the service account or search attribute.
var ErrSearchAndBindNotConfigured = errors.New("service account and LDAP search attribute must be configured to use search and bind")

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.UseSearchAndBind {
		if c.ServiceAccountUsername == "" || c.ServiceAccountPassword == "" || c.SearchAttribute == "" {
			return ErrSearchAndBindNotConfigured
		}
	}

	if strings.TrimSpace(c.Host) == "" {
		return errors.New("LDAP host cannot be empty")
	}

	if _, err := c.ServerInfo(); err != nil {
		return err
	}

	if _, err := ParseTLSMode(string(c.TLSMode)); err != nil {
		return err
	}

	if c.BaseDN != "" {
		if err := ValidateDNSyntax(c.BaseDN); err != nil {
			return fmt.Errorf("invalid base DN: %w", err)
		}
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative: %s", c.Timeout)
	}

	return nil
}

// HasServiceAccount reports whether both service account credentials are set.
func (c Config) HasServiceAccount() bool {
	return c.ServiceAccountUsername != "" && c.ServiceAccountPassword != ""
}

// ServiceAccountDN returns the bind DN of the service account.
func (c Config) ServiceAccountDN() string {
	return BuildDN(c.DNPrefix, c.ServiceAccountUsername, c.BaseDN)
}

// UserDN returns the default bind DN for the given login name.
func (c Config) UserDN(email string) string {
	return BuildDN(c.DNPrefix, email, c.BaseDN)
}

// roleAttribute returns the configured role attribute, falling back to the default.
func (c Config) roleAttribute() string {
	if c.RoleAttribute == "" {
		return DefaultRoleAttribute
	}
	return c.RoleAttribute
}

// ServerInfo derives the server address from Host, Port and TLSMode.
// Host may also be given as an ldap:// or ldaps:// URL.
func (c Config) ServerInfo() (*ServerInfo, error) {
	if strings.Contains(c.Host, "://") {
		server, err := ParseLDAPURL(c.Host)
		if err != nil {
			return nil, err
		}
		if server.UseTLS && c.TLSMode == TLSModeStartTLS {
			return nil, errors.New("starttls cannot be combined with an ldaps:// URL")
		}

		explicit := urlHasPort(c.Host)
		if c.TLSMode == TLSModeLDAPS && !server.UseTLS {
			server.UseTLS = true
			if !explicit {
				server.Port = DefaultLDAPSPort
			}
		}
		if c.Port != 0 {
			if explicit && c.Port != server.Port {
				return nil, fmt.Errorf("port %d conflicts with port %d in host URL %s", c.Port, server.Port, c.Host)
			}
			server.Port = c.Port
		}
		return server, ValidateServerInfo(server)
	}

	server := &ServerInfo{
		Host:   c.Host,
		Port:   c.Port,
		UseTLS: c.TLSMode == TLSModeLDAPS,
		Source: "config",
	}
	if server.Port == 0 {
		server.Port = DefaultPort(server.UseTLS)
	}

	return server, ValidateServerInfo(server)
}
