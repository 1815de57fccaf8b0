package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"
)

// MockConn implements Conn for testing Connection.
type MockConn struct {
	mock.Mock
}

func (m *MockConn) StartTLS(config *tls.Config) error {
	args := m.Called(config)
	return args.Error(0)
}

func (m *MockConn) SetTimeout(timeout time.Duration) {
	m.Called(timeout)
}

func (m *MockConn) Bind(username, password string) error {
	args := m.Called(username, password)
	return args.Error(0)
}

func (m *MockConn) Unbind() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockConn) Search(ctx context.Context, req *ldap.SearchRequest) Cursor {
	args := m.Called(ctx, req)
	cursor, ok := args.Get(0).(Cursor)
	if !ok {
		return nil
	}
	return cursor
}

func (m *MockConn) Close() {
	m.Called()
}

// MockDialer implements Dialer for testing Connection.
type MockDialer struct {
	mock.Mock
}

func (m *MockDialer) DialURL(ctx context.Context, addr string, opts ...ldap.DialOpt) (Conn, error) {
	args := m.Called(ctx, addr, opts)
	conn, ok := args.Get(0).(Conn)
	if !ok {
		return nil, args.Error(1)
	}
	return conn, args.Error(1)
}

// sliceCursor replays a fixed list of entries, then err. A non-nil
// panicValue makes Next panic instead.
type sliceCursor struct {
	entries    []*ldap.Entry
	err        error
	panicValue any
	pos        int
	closed     int
}

func (c *sliceCursor) Next() bool {
	if c.panicValue != nil {
		panic(c.panicValue)
	}
	if c.pos >= len(c.entries) {
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Entry() *ldap.Entry {
	return c.entries[c.pos-1]
}

func (c *sliceCursor) Err() error {
	if c.pos < len(c.entries) {
		return nil
	}
	return c.err
}

func (c *sliceCursor) Close() error {
	c.closed++
	return nil
}

// logEntry is one message captured by recordingLogger.
type logEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// recordingLogger captures log messages for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{Level: level, Message: msg, Fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields map[string]any) { l.record("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields map[string]any) { l.record("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields map[string]any) { l.record("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields map[string]any) { l.record("error", msg, fields) }
func (l *recordingLogger) Trace(msg string, fields map[string]any) { l.record("trace", msg, fields) }

// messages returns the messages logged at level.
func (l *recordingLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for _, e := range l.entries {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// adDiagnostic formats an Active Directory bind diagnostic with the given data code.
func adDiagnostic(code string) error {
	return fmt.Errorf("80090308: LdapErr: DSID-0C09042A, comment: AcceptSecurityContext error, data %s, v3839", code)
}

// fakeDirectory is an in-memory directory server behaving like Active
// Directory on bind: unknown DNs fail with "data 2030", bad passwords with
// "data 52e". Every dialed connection is kept for inspection.
type fakeDirectory struct {
	mu sync.Mutex

	passwords map[string]string        // bind DN -> password
	bindErrs  map[string]error         // bind DN -> forced error
	results   map[string][]*ldap.Entry // searchKey -> entries
	searchErr map[string]error         // searchKey -> error after entries
	panics    map[string]any           // searchKey -> value the cursor panics with
	dialErr   error
	conns     []*fakeConn
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		passwords: map[string]string{},
		bindErrs:  map[string]error{},
		results:   map[string][]*ldap.Entry{},
		searchErr: map[string]error{},
		panics:    map[string]any{},
	}
}

func searchKey(baseDN, filter string) string {
	return baseDN + "|" + filter
}

func (d *fakeDirectory) addAccount(dn, password string) {
	d.passwords[dn] = password
}

func (d *fakeDirectory) addResult(baseDN, filter string, entries ...*ldap.Entry) {
	key := searchKey(baseDN, filter)
	d.results[key] = append(d.results[key], entries...)
}

func (d *fakeDirectory) DialURL(_ context.Context, addr string, _ ...ldap.DialOpt) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dialErr != nil {
		return nil, d.dialErr
	}

	conn := &fakeConn{dir: d, addr: addr}
	d.conns = append(d.conns, conn)
	return conn, nil
}

// binds returns the bind DNs attempted over all connections, in order.
func (d *fakeDirectory) binds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []string
	for _, c := range d.conns {
		out = append(out, c.binds...)
	}
	return out
}

// searches returns the searches issued over all connections, in order.
func (d *fakeDirectory) searches() []*ldap.SearchRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*ldap.SearchRequest
	for _, c := range d.conns {
		out = append(out, c.searches...)
	}
	return out
}

// fakeConn is one protocol session on a fakeDirectory.
type fakeConn struct {
	dir      *fakeDirectory
	addr     string
	boundDN  string
	binds    []string
	searches []*ldap.SearchRequest
	unbinds  int
	closes   int
	cursors  []*sliceCursor
}

var errConnClosed = ldap.NewError(ldap.ErrorNetwork, errors.New("ldap: connection closed"))

func (c *fakeConn) StartTLS(*tls.Config) error { return nil }

func (c *fakeConn) SetTimeout(time.Duration) {}

func (c *fakeConn) Bind(username, password string) error {
	if c.unbinds > 0 || c.closes > 0 {
		return errConnClosed
	}

	c.binds = append(c.binds, username)
	c.boundDN = ""

	if err, ok := c.dir.bindErrs[username]; ok {
		return err
	}

	// go-ldap refuses unauthenticated binds before any I/O
	if password == "" {
		return ldap.NewError(ldap.ErrorEmptyPassword, errors.New("ldap: empty password not allowed by the client"))
	}

	expected, ok := c.dir.passwords[username]
	if !ok {
		return ldap.NewError(ldap.LDAPResultInvalidCredentials, adDiagnostic("2030"))
	}
	if password != expected {
		return ldap.NewError(ldap.LDAPResultInvalidCredentials, adDiagnostic("52e"))
	}

	c.boundDN = username
	return nil
}

func (c *fakeConn) Unbind() error {
	if c.unbinds > 0 || c.closes > 0 {
		return errConnClosed
	}
	c.unbinds++
	c.boundDN = ""
	return nil
}

func (c *fakeConn) Search(_ context.Context, req *ldap.SearchRequest) Cursor {
	c.searches = append(c.searches, req)

	key := searchKey(req.BaseDN, req.Filter)
	cursor := &sliceCursor{
		entries:    c.dir.results[key],
		err:        c.dir.searchErr[key],
		panicValue: c.dir.panics[key],
	}
	if c.unbinds > 0 || c.closes > 0 {
		cursor = &sliceCursor{err: errConnClosed}
	}

	c.cursors = append(c.cursors, cursor)
	return cursor
}

func (c *fakeConn) Close() {
	c.closes++
}
