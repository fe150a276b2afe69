package pgo

import (
	"context"
	"crypto/md5"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/bryanhughes/pgo/internal/ctxwatch"
	"github.com/bryanhughes/pgo/pgtype"
	"github.com/bryanhughes/pgo/wire"
)

type connStatus byte

const (
	connStatusUninitialized connStatus = iota
	connStatusIdle
	connStatusBusy
	connStatusClosed
	connStatusBroken
)

// ErrConnBusy occurs when an operation is attempted while another is
// in flight on the same connection.
var ErrConnBusy = errors.New("conn is busy")

var aLongTimeAgo = time.Unix(1, 0)

// Notification is a LISTEN/NOTIFY payload observed on a connection.
type Notification struct {
	PID     uint32 // backend pid that sent the notification
	Channel string
	Payload string
}

// Conn is a single PostgreSQL backend session. It is not safe for
// concurrent use; a Pool enforces single ownership.
type Conn struct {
	netConn  net.Conn
	frontend *wire.Frontend

	config *PoolConfig

	pid               uint32
	secretKey         uint32
	parameterStatuses map[string]string
	txStatus          byte

	status       connStatus
	causeOfDeath error

	contextWatcher *ctxwatch.ContextWatcher

	typeMap  *pgtype.Map
	poolName string

	logger   Logger
	logLevel LogLevel

	wbuf []byte
}

// Connect establishes and authenticates a connection using config.
// It is normally called by a pool; calling it directly yields an
// unpooled connection.
func Connect(ctx context.Context, config *PoolConfig) (*Conn, error) {
	config = config.Copy()
	if err := config.assignDefaults(); err != nil {
		return nil, err
	}

	c := &Conn{
		config:            config,
		status:            connStatusUninitialized,
		parameterStatuses: make(map[string]string),
		typeMap:           pgtype.NewMap(),
		logger:            config.Logger,
		logLevel:          config.LogLevel,
	}
	if c.logLevel == 0 {
		c.logLevel = LogLevelInfo
	}

	network, address := config.networkAddress()
	netConn, err := config.DialFunc(ctx, network, address)
	if err != nil {
		return nil, &errNotSent{err: err}
	}
	c.netConn = netConn

	c.contextWatcher = ctxwatch.NewContextWatcher(
		func() { c.netConn.SetDeadline(aLongTimeAgo) },
		func() { c.netConn.SetDeadline(time.Time{}) },
	)
	c.contextWatcher.Watch(ctx)
	defer c.contextWatcher.Unwatch()

	defer func() {
		if err != nil {
			c.netConn.Close()
			c.status = connStatusBroken
		}
	}()

	if config.TLSConfig != nil {
		if err = c.startTLS(config.TLSConfig); err != nil {
			return nil, wrapConnectErr(ctx, err)
		}
	}

	c.frontend = wire.NewFrontend(c.netConn, c.netConn)

	startup := &wire.StartupMessage{
		ProtocolVersion: wire.ProtocolVersionNumber,
		Parameters:      c.startupParameters(),
	}
	if _, err = c.netConn.Write(startup.Encode(nil)); err != nil {
		return nil, wrapConnectErr(ctx, err)
	}

	for {
		msg, rxErr := c.receiveMessage(ctx)
		if rxErr != nil {
			err = wrapConnectErr(ctx, rxErr)
			return nil, err
		}

		switch msg := msg.(type) {
		case *wire.ParameterStatus, *wire.NoticeResponse:
			// recorded/forwarded by receiveMessage
		case *wire.BackendKeyData:
			c.pid = msg.ProcessID
			c.secretKey = msg.SecretKey
		case *wire.AuthenticationOk:
		case *wire.AuthenticationCleartextPassword:
			if err = c.txPasswordMessage(config.Password); err != nil {
				return nil, wrapConnectErr(ctx, err)
			}
		case *wire.AuthenticationMD5Password:
			digestedPassword := "md5" + hexMD5(hexMD5(config.Password+config.User)+string(msg.Salt[:]))
			if err = c.txPasswordMessage(digestedPassword); err != nil {
				return nil, wrapConnectErr(ctx, err)
			}
		case *wire.AuthenticationKerberosV5:
			err = &NotImplementedError{Kind: "kerberos"}
			return nil, err
		case *wire.AuthenticationSCMCredential:
			err = &NotImplementedError{Kind: "scm"}
			return nil, err
		case *wire.AuthenticationGSS, *wire.AuthenticationGSSContinue:
			err = &NotImplementedError{Kind: "gss"}
			return nil, err
		case *wire.AuthenticationSSPI:
			err = &NotImplementedError{Kind: "sspi"}
			return nil, err
		case *wire.AuthenticationSASL, *wire.AuthenticationSASLContinue, *wire.AuthenticationSASLFinal:
			err = &NotImplementedError{Kind: "sasl"}
			return nil, err
		case *wire.ErrorResponse:
			err = newPgError(msg.Fields)
			return nil, err
		case *wire.ReadyForQuery:
			if c.parameterStatuses["integer_datetimes"] == "off" {
				err = ProtocolError("server uses floating point datetimes; integer_datetimes is required")
				return nil, err
			}
			c.status = connStatusIdle
			if c.shouldLog(LogLevelInfo) {
				c.log(ctx, LogLevelInfo, "connection established", map[string]interface{}{"pid": c.pid, "host": config.Host, "database": config.Database})
			}
			return c, nil
		default:
			err = ProtocolError(fmt.Sprintf("unexpected message during startup: %T", msg))
			return nil, err
		}
	}
}

// startupParameters builds the ordered key/value pairs of the startup
// message: user, database, application_name, timezone, then any extra
// runtime parameters in a stable order.
func (c *Conn) startupParameters() []wire.StartupParameter {
	config := c.config

	params := []wire.StartupParameter{
		{Key: "user", Value: config.User},
		{Key: "database", Value: config.Database},
	}
	if config.ApplicationName != "" {
		params = append(params, wire.StartupParameter{Key: "application_name", Value: config.ApplicationName})
	}
	if config.Timezone != "" {
		params = append(params, wire.StartupParameter{Key: "TimeZone", Value: config.Timezone})
	}

	extra := make([]string, 0, len(config.RuntimeParams))
	for k := range config.RuntimeParams {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		params = append(params, wire.StartupParameter{Key: k, Value: config.RuntimeParams[k]})
	}

	return params
}

func (c *Conn) startTLS(tlsConfig *tls.Config) error {
	req := &wire.SSLRequest{}
	if _, err := c.netConn.Write(req.Encode(nil)); err != nil {
		return err
	}

	response := make([]byte, 1)
	if _, err := io.ReadFull(c.netConn, response); err != nil {
		return err
	}

	switch response[0] {
	case 'S':
	case 'N':
		return ErrTLSRefused
	default:
		return ProtocolError(fmt.Sprintf("unexpected response to ssl request: %q", response[0]))
	}

	c.netConn = tls.Client(c.netConn, tlsConfig)
	return nil
}

func (c *Conn) txPasswordMessage(password string) error {
	msg := &wire.PasswordMessage{Password: password}
	_, err := c.netConn.Write(msg.Encode(nil))
	return err
}

func hexMD5(s string) string {
	hash := md5.New()
	io.WriteString(hash, s)
	return hex.EncodeToString(hash.Sum(nil))
}

// receiveMessage reads the next backend message and applies the
// context-free side effects: parameter status tracking, notice and
// notification forwarding. Read failures kill the connection.
func (c *Conn) receiveMessage(ctx context.Context) (wire.BackendMessage, error) {
	msg, err := c.frontend.Receive()
	if err != nil {
		// a read interrupted by context cancellation leaves the
		// protocol state indeterminate
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		c.die(err)
		return nil, err
	}

	switch msg := msg.(type) {
	case *wire.ReadyForQuery:
		c.txStatus = msg.TxStatus
	case *wire.ParameterStatus:
		c.parameterStatuses[msg.Name] = msg.Value
	case *wire.NoticeResponse:
		if c.config.OnNotice != nil {
			c.config.OnNotice(c, (*Notice)(newPgError(msg.Fields)))
		}
	case *wire.NotificationResponse:
		if c.config.OnNotification != nil {
			c.config.OnNotification(c, &Notification{PID: msg.PID, Channel: msg.Channel, Payload: msg.Payload})
		}
	}

	return msg, nil
}

// drainUntilReadyForQuery consumes messages until the server reports
// idle again. Used after an ErrorResponse so the connection can serve
// the next query.
func (c *Conn) drainUntilReadyForQuery(ctx context.Context) error {
	for {
		msg, err := c.receiveMessage(ctx)
		if err != nil {
			return err
		}
		if _, ok := msg.(*wire.ReadyForQuery); ok {
			return nil
		}
	}
}

func (c *Conn) lock() error {
	switch c.status {
	case connStatusIdle:
		c.status = connStatusBusy
		return nil
	case connStatusBusy:
		return ErrConnBusy
	default:
		return ErrDeadConn
	}
}

func (c *Conn) unlock() {
	if c.status == connStatusBusy {
		c.status = connStatusIdle
	}
}

func (c *Conn) die(err error) {
	if c.status == connStatusClosed || c.status == connStatusBroken {
		return
	}
	c.status = connStatusBroken
	c.causeOfDeath = err
	c.netConn.Close()
}

// IsAlive reports whether the connection can still serve queries.
func (c *Conn) IsAlive() bool {
	return c.status == connStatusIdle || c.status == connStatusBusy
}

// CauseOfDeath returns the error that broke the connection, if any.
func (c *Conn) CauseOfDeath() error {
	return c.causeOfDeath
}

// PID returns the backend process id.
func (c *Conn) PID() uint32 { return c.pid }

// TxStatus returns the last reported transaction status byte: 'I'
// idle, 'T' in transaction, 'E' failed transaction.
func (c *Conn) TxStatus() byte { return c.txStatus }

// ParameterStatus returns the most recent value the server reported
// for a session parameter (e.g. server_version, TimeZone). Unknown
// parameters return "".
func (c *Conn) ParameterStatus(key string) string {
	return c.parameterStatuses[key]
}

// ServerVersion parses the server_version parameter. Development and
// beta versions that do not parse as semver return nil without error.
func (c *Conn) ServerVersion() *semver.Version {
	raw := c.parameterStatuses["server_version"]
	if raw == "" {
		return nil
	}
	// strip distro suffixes such as "14.2 (Debian 14.2-1.pgdg110+1)"
	if idx := strings.IndexByte(raw, ' '); idx > 0 {
		raw = raw[:idx]
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil
	}
	return v
}

// Exec runs sql via the simple query protocol. sql may contain
// several statements; one Result is returned per statement.
func (c *Conn) Exec(ctx context.Context, sql string) ([]*Result, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.unlock()

	startTime := time.Now()

	c.contextWatcher.Watch(ctx)
	defer c.contextWatcher.Unwatch()

	msg := &wire.Query{String: sql}
	if _, err := c.netConn.Write(msg.Encode(c.wbuf[:0])); err != nil {
		c.die(err)
		return nil, err
	}

	var results []*Result
	var pending *pendingResult
	var queryErr error

	for {
		msg, err := c.receiveMessage(ctx)
		if err != nil {
			// a FATAL error closes the connection without a
			// ReadyForQuery; the server error is the better report
			if queryErr != nil {
				return nil, queryErr
			}
			return nil, err
		}

		switch msg := msg.(type) {
		case *wire.RowDescription:
			pending = newPendingResult(msg.Fields)
		case *wire.DataRow:
			if pending != nil && queryErr == nil {
				if err := pending.appendRow(c.typeMap, msg.Values, false); err != nil {
					queryErr = &SerializationError{err: err}
				}
			}
		case *wire.CommandComplete:
			tag := DecodeCommandTag(string(msg.CommandTag))
			if pending == nil {
				pending = newPendingResult(nil)
			}
			results = append(results, pending.finish(tag))
			pending = nil
		case *wire.EmptyQueryResponse:
			pending = nil
		case *wire.ErrorResponse:
			queryErr = newPgError(msg.Fields)
			pending = nil
		case *wire.ReadyForQuery:
			if queryErr != nil {
				c.logQueryError(ctx, sql, queryErr)
				return nil, queryErr
			}
			if c.shouldLog(LogLevelInfo) {
				c.log(ctx, LogLevelInfo, "Exec", map[string]interface{}{"sql": sql, "time": time.Since(startTime)})
			}
			return results, nil
		}
	}
}

// Close sends Terminate and closes the transport. It is safe to call
// on an already closed connection.
func (c *Conn) Close(ctx context.Context) error {
	if c.status == connStatusClosed || c.status == connStatusBroken {
		return nil
	}
	c.status = connStatusClosed

	c.contextWatcher.Watch(ctx)
	defer c.contextWatcher.Unwatch()

	terminate := &wire.Terminate{}
	c.netConn.Write(terminate.Encode(nil))

	if c.shouldLog(LogLevelInfo) {
		c.log(ctx, LogLevelInfo, "closed connection", map[string]interface{}{"pid": c.pid})
	}
	return c.netConn.Close()
}

// Break forcibly tears the connection down. The protocol state is
// abandoned; the pool will not reuse the connection.
func (c *Conn) Break() {
	c.die(errors.New("broken by caller"))
}

// CancelRequest opens a new connection to the server and requests
// cancellation of whatever this connection is currently executing.
// Delivery is best effort by design of the protocol.
func (c *Conn) CancelRequest(ctx context.Context) error {
	network, address := c.config.networkAddress()
	cancelConn, err := c.config.DialFunc(ctx, network, address)
	if err != nil {
		return err
	}
	defer cancelConn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		cancelConn.SetDeadline(deadline)
	}

	req := &wire.CancelRequest{ProcessID: c.pid, SecretKey: c.secretKey}
	if _, err := cancelConn.Write(req.Encode(nil)); err != nil {
		return err
	}

	// the server closes the connection without replying
	_, err = cancelConn.Read(make([]byte, 1))
	if err != io.EOF {
		return err
	}
	return nil
}

func (c *Conn) shouldLog(lvl LogLevel) bool {
	return c.logger != nil && c.logLevel >= lvl
}

func (c *Conn) log(ctx context.Context, lvl LogLevel, msg string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	if c.pid != 0 {
		data["pid"] = c.pid
	}
	if c.poolName != "" {
		data["pool"] = c.poolName
	}
	c.logger.Log(ctx, lvl, msg, data)
}

func (c *Conn) logQueryError(ctx context.Context, sql string, err error) {
	if c.shouldLog(LogLevelError) {
		c.log(ctx, LogLevelError, "query failed", map[string]interface{}{"sql": sql, "error": err})
	}
}

func wrapConnectErr(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w (%s)", ctx.Err(), err)
	}
	return err
}
