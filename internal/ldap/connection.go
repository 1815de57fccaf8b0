package ldap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Conn abstracts the directory protocol client (mostly for testing).
type Conn interface {
	StartTLS(config *tls.Config) error
	SetTimeout(timeout time.Duration)
	Bind(username, password string) error
	Unbind() error
	Search(ctx context.Context, req *ldap.SearchRequest) Cursor
	Close()
}

// Cursor iterates over the entries of a search in server order.
type Cursor interface {
	Next() bool
	Entry() *ldap.Entry
	Err() error
	Close() error
}

// Dialer is a factory of Conn.
type Dialer interface {
	DialURL(ctx context.Context, addr string, opts ...ldap.DialOpt) (Conn, error)
}

// DialerFunc makes it easy to use a func as a Dialer.
type DialerFunc func(ctx context.Context, addr string, opts ...ldap.DialOpt) (Conn, error)

func (f DialerFunc) DialURL(ctx context.Context, addr string, opts ...ldap.DialOpt) (Conn, error) {
	return f(ctx, addr, opts...)
}

// StandardDialer dials with go-ldap.
type StandardDialer struct{}

// NewStandardDialer returns a new *StandardDialer.
func NewStandardDialer() *StandardDialer {
	return &StandardDialer{}
}

// DialURL dials a single address and returns the connection.
func (d *StandardDialer) DialURL(_ context.Context, addr string, opts ...ldap.DialOpt) (Conn, error) {
	conn, err := ldap.DialURL(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &goldapConn{conn: conn}, nil
}

// goldapConn adapts *ldap.Conn to Conn.
type goldapConn struct {
	conn *ldap.Conn
}

func (c *goldapConn) StartTLS(config *tls.Config) error { return c.conn.StartTLS(config) }

func (c *goldapConn) SetTimeout(timeout time.Duration) { c.conn.SetTimeout(timeout) }

func (c *goldapConn) Bind(username, password string) error { return c.conn.Bind(username, password) }

func (c *goldapConn) Unbind() error { return c.conn.Unbind() }

func (c *goldapConn) Close() { c.conn.Close() }

func (c *goldapConn) Search(ctx context.Context, req *ldap.SearchRequest) Cursor {
	ctx, cancel := context.WithCancel(ctx)
	return &responseCursor{
		resp:   c.conn.SearchAsync(ctx, req, 0),
		cancel: cancel,
	}
}

// responseCursor streams a go-ldap async search. Closing it abandons the
// remaining results.
type responseCursor struct {
	resp   ldap.Response
	cancel context.CancelFunc
}

func (r *responseCursor) Next() bool {
	for r.resp.Next() {
		// Skip referrals, only entries are of interest
		if r.resp.Entry() != nil {
			return true
		}
	}
	return false
}

func (r *responseCursor) Entry() *ldap.Entry { return r.resp.Entry() }

func (r *responseCursor) Err() error { return r.resp.Err() }

func (r *responseCursor) Close() error {
	r.cancel()
	return nil
}

// ConnState is the lifecycle state of a Connection.
type ConnState int

const (
	StateCreated ConnState = iota // Not bound, may not be dialed yet
	StateBound                    // Last bind succeeded
	StateClosed                   // Released, terminal
)

// String returns string representation of the connection state.
func (s ConnState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBound:
		return "bound"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one directory session owned by a single authentication call.
//
// NewConnection performs no I/O: the server is dialed by the first Bind or
// Search. Unbind ends the protocol session, so a later Bind dials again.
// Connection is not safe for concurrent use.
type Connection struct {
	config  Config
	dialer  Dialer
	logger  Logger
	conn    Conn
	state   ConnState
	boundDN string
}

// NewConnection creates a connection in the Created state.
func NewConnection(config Config, dialer Dialer, logger Logger) *Connection {
	if dialer == nil {
		dialer = NewStandardDialer()
	}
	return &Connection{
		config: config,
		dialer: dialer,
		logger: logger,
		state:  StateCreated,
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnState {
	return c.state
}

// BoundDN returns the DN of the last successful bind, or "" when unbound.
func (c *Connection) BoundDN() string {
	return c.boundDN
}

// connect dials the server if there is no live protocol session.
func (c *Connection) connect(ctx context.Context) error {
	if c.state == StateClosed {
		return errors.New("connection is closed")
	}
	if c.conn != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	server, err := c.config.ServerInfo()
	if err != nil {
		return &LDAPError{Operation: "connect", Category: ErrorCategoryValidation, Message: err.Error(), Cause: err}
	}
	url := ServerInfoToURL(server)

	tlsMode := c.config.TLSMode
	if server.UseTLS {
		tlsMode = TLSModeLDAPS
	}

	fields := map[string]any{
		"url":      url,
		"tls_mode": tlsMode.String(),
	}
	c.logger.Debug("Connecting to LDAP server", fields)

	var opts []ldap.DialOpt
	if c.config.Timeout > 0 {
		opts = append(opts, ldap.DialWithDialer(&net.Dialer{Timeout: c.config.Timeout}))
	}

	var tlsConfig *tls.Config
	if tlsMode.Enabled() {
		tlsConfig, err = buildTLSConfig(c.config, server.Host)
		if err != nil {
			return &LDAPError{Operation: "tls_config", Category: ErrorCategoryValidation, Message: err.Error(), Cause: err}
		}
		if tlsConfig.InsecureSkipVerify {
			c.logger.Warn("TLS certificate verification is disabled", fields)
		}
	}
	if tlsMode == TLSModeLDAPS {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}

	start := time.Now()
	conn, err := c.dialer.DialURL(ctx, url, opts...)
	if err != nil {
		LogLDAPError(c.logger, "connect", err, fields)
		return WrapError("connect", "", err)
	}

	if tlsMode == TLSModeStartTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			LogLDAPError(c.logger, "start_tls", err, fields)
			return WrapError("start_tls", "", err)
		}
	}

	if c.config.Timeout > 0 {
		conn.SetTimeout(c.config.Timeout)
	}

	fields["duration_ms"] = time.Since(start).Milliseconds()
	c.logger.Debug("Connection established", fields)

	c.conn = conn
	return nil
}

// buildTLSConfig returns the TLS settings for an explicitly requested TLS mode.
// Without a CA file the server certificate is not verified.
func buildTLSConfig(config Config, host string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: host,
	}

	if config.TLSCACertFile == "" {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(config.TLSCACertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
	}

	rootCAs := x509.NewCertPool()
	if !rootCAs.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in CA certificate file %s", config.TLSCACertFile)
	}
	tlsConfig.RootCAs = rootCAs

	return tlsConfig, nil
}

// Bind performs a simple bind, dialing first if needed.
func (c *Connection) Bind(ctx context.Context, dn, password string) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	fields := map[string]any{"bind_dn": dn}
	c.logger.Debug("Performing simple bind", fields)

	if err := c.conn.Bind(dn, password); err != nil {
		c.state = StateCreated
		c.boundDN = ""
		return WrapError("bind", dn, err)
	}

	c.state = StateBound
	c.boundDN = dn
	c.logger.Debug("Simple bind successful", fields)

	return nil
}

// Search starts a search and returns a cursor over its entries. The caller
// must close the cursor.
func (c *Connection) Search(ctx context.Context, baseDN, filter string) (Cursor, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	req := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, // No size limit
		searchTimeLimit(c.config.Timeout),
		false, // TypesOnly
		filter,
		allAttributes,
		nil, // Controls
	)

	c.logger.Debug("Starting search operation", map[string]any{
		"base_dn": baseDN,
		"filter":  filter,
		"scope":   "subtree",
	})

	return c.conn.Search(ctx, req), nil
}

// searchTimeLimit converts timeout to whole seconds for the server, rounding
// up so that a sub-second timeout does not become zero (no limit).
func searchTimeLimit(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	return int((timeout + time.Second - 1) / time.Second)
}

// Unbind ends the current protocol session. Subsequent binds redial.
func (c *Connection) Unbind() error {
	if c.state == StateClosed {
		return nil
	}

	c.state = StateCreated
	c.boundDN = ""

	if c.conn == nil {
		return nil
	}

	err := c.conn.Unbind()
	c.conn.Close()
	c.conn = nil

	return WrapError("unbind", "", err)
}

// Release unbinds and closes the connection. It is safe to call more than
// once; only the first call has an effect. Failures are logged, never returned.
func (c *Connection) Release() {
	if c.state == StateClosed {
		return
	}

	if c.conn != nil {
		if err := c.conn.Unbind(); err != nil {
			LogLDAPWarning(c.logger, "unbind", err, nil)
		}
		c.conn.Close()
		c.conn = nil
	}

	c.state = StateClosed
	c.boundDN = ""
	c.logger.Debug("Connection released", nil)
}
