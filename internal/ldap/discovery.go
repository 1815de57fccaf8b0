package ldap

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Default LDAP ports.
const (
	DefaultLDAPPort  = 389
	DefaultLDAPSPort = 636
)

// ServerInfo contains information about an LDAP server.
type ServerInfo struct {
	Host   string
	Port   int
	UseTLS bool
	Source string // "config", "url"
}

// DefaultPort returns the well-known port for plain or implicit-TLS LDAP.
func DefaultPort(useTLS bool) int {
	if useTLS {
		return DefaultLDAPSPort
	}
	return DefaultLDAPPort
}

// ValidateServerInfo validates server information.
func ValidateServerInfo(server *ServerInfo) error {
	if server == nil {
		return fmt.Errorf("server info cannot be nil")
	}

	if server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if server.Port <= 0 || server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", server.Port)
	}

	return nil
}

// ServerInfoToURL converts ServerInfo to LDAP URL.
func ServerInfoToURL(server *ServerInfo) string {
	scheme := "ldap"
	if server.UseTLS {
		scheme = "ldaps"
	}

	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(server.Host, strconv.Itoa(server.Port)))
}

// urlHasPort reports whether an ldap:// or ldaps:// URL names a port.
func urlHasPort(url string) bool {
	if i := strings.Index(url, "://"); i >= 0 {
		url = url[i+3:]
	}
	if i := strings.Index(url, "/"); i >= 0 {
		url = url[:i]
	}
	_, _, err := net.SplitHostPort(url)
	return err == nil
}

// ParseLDAPURL parses an LDAP URL into ServerInfo.
func ParseLDAPURL(url string) (*ServerInfo, error) {
	if url == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	var useTLS bool

	if strings.HasPrefix(url, "ldaps://") {
		useTLS = true
		url = strings.TrimPrefix(url, "ldaps://")
	} else if strings.HasPrefix(url, "ldap://") {
		useTLS = false
		url = strings.TrimPrefix(url, "ldap://")
	} else {
		return nil, fmt.Errorf("unsupported scheme, must be ldap:// or ldaps://")
	}

	// Drop any DN or query part
	if i := strings.Index(url, "/"); i >= 0 {
		url = url[:i]
	}

	host := strings.TrimSuffix(strings.TrimPrefix(url, "["), "]")
	port := DefaultPort(useTLS)

	if h, p, err := net.SplitHostPort(url); err == nil {
		host = h
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", p)
		}
	}

	server := &ServerInfo{
		Host:   host,
		Port:   port,
		UseTLS: useTLS,
		Source: "url",
	}

	return server, ValidateServerInfo(server)
}
