package pgo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanhughes/pgo/pgtype"
)

// CheckoutOpts adjusts a single checkout.
type CheckoutOpts struct {
	// NoQueue makes the checkout fail with ErrPoolFull instead of
	// waiting when every connection is in use.
	NoQueue bool

	// Timeout bounds the wait for a queued checkout. Zero uses the
	// pool's CheckoutTimeout.
	Timeout time.Duration
}

// PoolRef is the receipt for one checkout. Checkin consumes it;
// checking in the same ref twice is a logged no-op.
type PoolRef struct {
	pool      *Pool
	conn      *Conn
	queueTime time.Duration
	done      uint32
}

// QueueTime is how long the checkout waited between entering the pool
// and receiving a connection.
func (ref *PoolRef) QueueTime() time.Duration {
	return ref.queueTime
}

type waiter struct {
	ch         chan *Conn
	enqueuedAt time.Time
}

// Pool is a named, bounded set of connections. Ready connections form
// a LIFO stack (recently used connections stay hot); waiters are
// served strictly first-in first-out.
type Pool struct {
	name   string
	config *PoolConfig

	mu         sync.Mutex
	ready      []*Conn
	checkedOut map[*Conn]struct{}
	waiters    []*waiter
	connecting int
	closed     bool

	typeMap *pgtype.Map

	logger   Logger
	logLevel LogLevel

	// connect is swapped out by tests
	connect func(ctx context.Context) (*Conn, error)
}

// PoolStat is a snapshot of pool usage.
type PoolStat struct {
	Size       int
	Ready      int
	CheckedOut int
	Waiting    int
}

// NewPool creates a pool. Connections are established on demand, up
// to config.Size.
func NewPool(name string, config *PoolConfig) (*Pool, error) {
	config = config.Copy()
	if err := config.assignDefaults(); err != nil {
		return nil, err
	}

	p := &Pool{
		name:       name,
		config:     config,
		checkedOut: make(map[*Conn]struct{}),
		typeMap:    pgtype.NewMap(),
		logger:     config.Logger,
		logLevel:   config.LogLevel,
	}
	if p.logLevel == 0 {
		p.logLevel = LogLevelInfo
	}
	p.connect = p.connectConn
	p.typeMap.SetRefresh(p.refreshTypes)

	return p, nil
}

// Name returns the pool's registered name.
func (p *Pool) Name() string { return p.name }

func (p *Pool) connectConn(ctx context.Context) (*Conn, error) {
	conn, err := Connect(ctx, p.config)
	if err != nil {
		return nil, err
	}
	conn.typeMap = p.typeMap
	conn.poolName = p.name
	return conn, nil
}

func (p *Pool) sizeLocked() int {
	return len(p.ready) + len(p.checkedOut) + p.connecting
}

// Checkout takes exclusive use of a connection. If none is ready and
// the pool is below target size a new connection is established. At
// capacity the checkout queues (FIFO) unless opts.NoQueue is set.
func (p *Pool) Checkout(ctx context.Context, opts *CheckoutOpts) (*PoolRef, *Conn, error) {
	if opts == nil {
		opts = &CheckoutOpts{}
	}
	start := time.Now()

	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, nil, ErrPoolClosed
	}

	if n := len(p.ready); n > 0 {
		conn := p.ready[n-1]
		p.ready = p.ready[:n-1]
		p.checkedOut[conn] = struct{}{}
		p.mu.Unlock()
		return p.newRef(conn, time.Since(start)), conn, nil
	}

	if p.sizeLocked() < p.config.Size {
		p.connecting++
		p.mu.Unlock()

		conn, err := p.connect(ctx)

		p.mu.Lock()
		p.connecting--
		if err != nil {
			retry := !p.closed && len(p.waiters) > 0
			p.mu.Unlock()
			// queued callers were counting on this slot
			if retry {
				go p.spawnReplacement()
			}
			return nil, nil, err
		}
		if p.closed {
			p.mu.Unlock()
			conn.Close(context.Background())
			return nil, nil, ErrPoolClosed
		}
		p.checkedOut[conn] = struct{}{}
		p.mu.Unlock()
		return p.newRef(conn, time.Since(start)), conn, nil
	}

	if opts.NoQueue {
		p.mu.Unlock()
		return nil, nil, ErrPoolFull
	}

	w := &waiter{ch: make(chan *Conn, 1), enqueuedAt: start}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = p.config.CheckoutTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case conn := <-w.ch:
		if conn == nil {
			return nil, nil, ErrPoolClosed
		}
		return p.newRef(conn, time.Since(w.enqueuedAt)), conn, nil
	case <-timer.C:
		if conn, ok := p.abandonWait(w); ok {
			return p.newRef(conn, time.Since(w.enqueuedAt)), conn, nil
		}
		return nil, nil, ErrPoolTimeout
	case <-ctx.Done():
		if conn, ok := p.abandonWait(w); ok {
			return p.newRef(conn, time.Since(w.enqueuedAt)), conn, nil
		}
		return nil, nil, ctx.Err()
	}
}

// abandonWait removes w from the queue. If a handoff already happened
// the connection is returned so it is not leaked.
func (p *Pool) abandonWait(w *waiter) (*Conn, bool) {
	p.mu.Lock()
	for i, queued := range p.waiters {
		if queued == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return nil, false
		}
	}
	p.mu.Unlock()

	// already served; the conn is in the buffered channel (or the
	// pool is closed and the channel was closed)
	conn := <-w.ch
	if conn == nil {
		return nil, false
	}
	return conn, true
}

func (p *Pool) newRef(conn *Conn, queueTime time.Duration) *PoolRef {
	if p.shouldLog(LogLevelDebug) {
		p.log(LogLevelDebug, "checkout", map[string]interface{}{"pid": conn.pid, "queueTime": queueTime})
	}
	return &PoolRef{pool: p, conn: conn, queueTime: queueTime}
}

// Checkin returns a connection to the pool. A broken connection is
// dropped (and replaced if someone is waiting); a healthy one goes to
// the oldest waiter or onto the ready stack.
func (p *Pool) Checkin(ref *PoolRef, conn *Conn) {
	if ref == nil || ref.conn != conn || ref.pool != p {
		p.log(LogLevelWarn, "checkin with mismatched ref ignored", nil)
		return
	}
	if !atomic.CompareAndSwapUint32(&ref.done, 0, 1) {
		p.log(LogLevelWarn, "duplicate checkin ignored", map[string]interface{}{"pid": conn.pid})
		return
	}

	p.mu.Lock()
	delete(p.checkedOut, conn)

	if p.closed {
		p.mu.Unlock()
		conn.Close(context.Background())
		return
	}

	if !conn.IsAlive() {
		needReplacement := len(p.waiters) > 0 && p.sizeLocked() < p.config.Size
		p.mu.Unlock()
		if p.shouldLog(LogLevelInfo) {
			p.log(LogLevelInfo, "dropped dead connection on checkin", map[string]interface{}{"pid": conn.pid, "cause": conn.CauseOfDeath()})
		}
		if needReplacement {
			go p.spawnReplacement()
		}
		return
	}

	p.handBackLocked(conn)
}

// handBackLocked gives conn to the oldest waiter or pushes it onto the
// ready stack. The pool lock is held on entry and released before
// return.
func (p *Pool) handBackLocked(conn *Conn) {
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.checkedOut[conn] = struct{}{}
		w.ch <- conn
		p.mu.Unlock()
		return
	}

	p.ready = append(p.ready, conn)
	p.mu.Unlock()
}

// Break removes a connection from the pool and tears it down. If
// callers are queued and capacity opened up, a replacement is
// established in the background.
func (p *Pool) Break(conn *Conn) {
	conn.Break()

	p.mu.Lock()
	delete(p.checkedOut, conn)
	for i, ready := range p.ready {
		if ready == conn {
			p.ready = append(p.ready[:i], p.ready[i+1:]...)
			break
		}
	}
	needReplacement := !p.closed && len(p.waiters) > 0 && p.sizeLocked() < p.config.Size
	p.mu.Unlock()

	if p.shouldLog(LogLevelInfo) {
		p.log(LogLevelInfo, "connection broken", map[string]interface{}{"pid": conn.pid})
	}

	if needReplacement {
		go p.spawnReplacement()
	}
}

// spawnReplacement dials a connection for the oldest waiter after a
// break or dead checkin opened capacity.
func (p *Pool) spawnReplacement() {
	p.mu.Lock()
	if p.closed || len(p.waiters) == 0 || p.sizeLocked() >= p.config.Size {
		p.mu.Unlock()
		return
	}
	p.connecting++
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.config.CheckoutTimeout)
	defer cancel()

	conn, err := p.connect(ctx)

	p.mu.Lock()
	p.connecting--
	if err != nil {
		p.mu.Unlock()
		if p.shouldLog(LogLevelError) {
			p.log(LogLevelError, "replacement connection failed", map[string]interface{}{"error": err})
		}
		return
	}
	if p.closed {
		p.mu.Unlock()
		conn.Close(context.Background())
		return
	}

	p.handBackLocked(conn)
}

// Close shuts the pool down. Waiters are released with ErrPoolClosed,
// ready connections are terminated, and checked-out connections are
// terminated when they come back.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	waiters := p.waiters
	p.waiters = nil
	ready := p.ready
	p.ready = nil
	p.mu.Unlock()

	for _, w := range waiters {
		close(w.ch)
	}
	for _, conn := range ready {
		conn.Close(context.Background())
	}
}

// Stat returns a snapshot of pool usage.
func (p *Pool) Stat() PoolStat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStat{
		Size:       p.config.Size,
		Ready:      len(p.ready),
		CheckedOut: len(p.checkedOut),
		Waiting:    len(p.waiters),
	}
}

// TypeMap returns the pool's shared type registry.
func (p *Pool) TypeMap() *pgtype.Map {
	return p.typeMap
}

// refreshTypes is the pool's pgtype.RefreshFunc. It opens a dedicated
// connection (never one that is mid-query) and resolves the missing
// OIDs from pg_type: enums decode as text, domains as their base type,
// and base types by codec name. OIDs that stay unresolved keep
// decoding as raw bytes.
func (p *Pool) refreshTypes(ctx context.Context, oids []uint32) error {
	if len(oids) == 0 {
		return nil
	}

	conn, err := Connect(ctx, p.config)
	if err != nil {
		return fmt.Errorf("type refresh connect: %w", err)
	}
	defer conn.Close(context.Background())

	oidStrs := make([]string, len(oids))
	for i, oid := range oids {
		oidStrs[i] = strconv.FormatUint(uint64(oid), 10)
	}
	sql := "select oid, typname, typtype, typbasetype from pg_type where oid in (" + strings.Join(oidStrs, ",") + ")"

	results, err := conn.Exec(ctx, sql)
	if err != nil {
		return fmt.Errorf("type refresh query: %w", err)
	}
	if len(results) != 1 {
		return fmt.Errorf("type refresh query returned %d results", len(results))
	}

	for _, row := range results[0].Rows {
		if len(row) != 4 {
			continue
		}
		oid, err := parseOIDValue(row[0])
		if err != nil {
			continue
		}
		typname, _ := row[1].(string)
		typtype, _ := row[2].(string)
		basetype, _ := parseOIDValue(row[3])

		switch typtype {
		case "e":
			p.typeMap.RegisterDataType(pgtype.DataType{Name: typname, OID: oid, Codec: pgtype.TextCodec{}})
		case "d":
			if base, ok := p.typeMap.DataTypeForOID(basetype); ok {
				p.typeMap.RegisterDataType(pgtype.DataType{Name: typname, OID: oid, Codec: base.Codec})
			}
		default:
			if named, ok := p.typeMap.DataTypeForName(typname); ok {
				p.typeMap.RegisterDataType(pgtype.DataType{Name: typname, OID: oid, Codec: named.Codec})
			}
		}
	}

	return nil
}

func parseOIDValue(v any) (uint32, error) {
	switch v := v.(type) {
	case string:
		n, err := strconv.ParseUint(v, 10, 32)
		return uint32(n), err
	case uint32:
		return v, nil
	case int64:
		return uint32(v), nil
	default:
		return 0, fmt.Errorf("cannot parse oid from %T", v)
	}
}

func (p *Pool) shouldLog(lvl LogLevel) bool {
	return p.logger != nil && p.logLevel >= lvl
}

func (p *Pool) log(lvl LogLevel, msg string, data map[string]interface{}) {
	if !p.shouldLog(lvl) {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["pool"] = p.name
	p.logger.Log(context.Background(), lvl, msg, data)
}
