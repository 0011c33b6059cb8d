package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/dti-core/internal/protocol"
)

const (
	// defaultConnectTimeout bounds each dial.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout bounds each record write.
	defaultWriteTimeout = 5 * time.Second

	// defaultKeepAlive is the TCP keep-alive period. The scheduler can be
	// silent for hours, so dead peers are found by the kernel rather than
	// by a read deadline.
	defaultKeepAlive = 30 * time.Second

	// defaultReconnectInterval is the first reconnection delay.
	defaultReconnectInterval = 2 * time.Second

	// defaultMaxReconnectInterval caps the reconnection backoff.
	defaultMaxReconnectInterval = time.Minute

	// defaultQueueSize is the outbound record queue length.
	defaultQueueSize = 32
)

// Config holds the scheduler link settings.
type Config struct {
	// Address is the scheduler's host:port.
	Address string

	// ConnectTimeout bounds each dial. Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReconnectInterval is the first reconnection delay. Default: 2 seconds.
	ReconnectInterval time.Duration

	// MaxReconnectInterval caps the backoff. Default: 1 minute.
	MaxReconnectInterval time.Duration

	// QueueSize is the outbound queue length. Default: 32.
	QueueSize int
}

// Stats holds link statistics.
type Stats struct {
	RecordsTx       uint64
	RecordsRx       uint64
	RecordsDropped  uint64
	DecodeErrors    uint64
	ReconnectsTotal uint64
	Connected       bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Link is a persistent connection to the scheduler.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Callbacks run on the receive goroutine. They must hand work to the
//     reactor (Loop.Post) rather than touch orchestrator state directly.
type Link struct {
	cfg Config

	connMu    sync.RWMutex
	conn      net.Conn
	connected bool

	callbackMu sync.RWMutex
	onMessage  func(*protocol.Message)
	onConnect  func()

	outbound chan []byte

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	recordsTx       atomic.Uint64
	recordsRx       atomic.Uint64
	recordsDropped  atomic.Uint64
	decodeErrors    atomic.Uint64
	reconnectsTotal atomic.Uint64
}

// Connect dials the scheduler and starts the receive and send loops.
//
// Parameters:
//   - ctx: Context for the initial dial
//   - cfg: Link configuration
//
// Returns:
//   - *Link: Connected link
//   - error: ErrConnectionFailed if the scheduler is unreachable
func Connect(ctx context.Context, cfg Config) (*Link, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.MaxReconnectInterval == 0 {
		cfg.MaxReconnectInterval = defaultMaxReconnectInterval
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultQueueSize
	}

	conn, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	l := &Link{
		cfg:       cfg,
		conn:      conn,
		connected: true,
		outbound:  make(chan []byte, cfg.QueueSize),
		done:      make(chan struct{}),
	}

	l.wg.Add(2)
	go l.receiveLoop()
	go l.sendLoop()

	return l, nil
}

func dial(ctx context.Context, cfg Config) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	dialer := net.Dialer{KeepAlive: defaultKeepAlive}
	conn, err := dialer.DialContext(dialCtx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.Address, err)
	}
	return conn, nil
}

// SetLogger sets the logger for the link.
func (l *Link) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

// SetOnMessage registers the callback for decoded inbound messages.
func (l *Link) SetOnMessage(callback func(*protocol.Message)) {
	l.callbackMu.Lock()
	l.onMessage = callback
	l.callbackMu.Unlock()
}

// SetOnConnect registers a callback fired after every successful reconnect.
// The initial connection made by Connect does not fire it.
func (l *Link) SetOnConnect(callback func()) {
	l.callbackMu.Lock()
	l.onConnect = callback
	l.callbackMu.Unlock()
}

// Send encodes msg and queues it for the scheduler. It never blocks.
//
// Returns:
//   - error: ErrClosed, ErrNotConnected, ErrQueueFull, or an encoding error
func (l *Link) Send(msg *protocol.Message) error {
	if l.isClosed() {
		return ErrClosed
	}
	if !l.IsConnected() {
		return ErrNotConnected
	}

	rec, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Kind(), err)
	}

	select {
	case l.outbound <- rec:
		return nil
	default:
		l.recordsDropped.Add(1)
		return ErrQueueFull
	}
}

// IsConnected reports whether the link is up.
func (l *Link) IsConnected() bool {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	return l.connected
}

// Stats returns link statistics.
func (l *Link) Stats() Stats {
	return Stats{
		RecordsTx:       l.recordsTx.Load(),
		RecordsRx:       l.recordsRx.Load(),
		RecordsDropped:  l.recordsDropped.Load(),
		DecodeErrors:    l.decodeErrors.Load(),
		ReconnectsTotal: l.reconnectsTotal.Load(),
		Connected:       l.IsConnected(),
	}
}

// Close stops both loops and closes the connection. Safe to call multiple times.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)

		l.connMu.Lock()
		l.connected = false
		if l.conn != nil {
			l.conn.Close()
		}
		l.connMu.Unlock()

		l.wg.Wait()
		l.log().Info("scheduler link closed", "address", l.cfg.Address)
	})
	return nil
}

// receiveLoop reads records until Close, reconnecting when the stream breaks.
func (l *Link) receiveLoop() {
	defer l.wg.Done()

	rec := make([]byte, protocol.RecordSize)
	for !l.isClosed() {
		conn := l.currentConn()
		if conn == nil {
			if !l.reconnect() {
				return
			}
			continue
		}

		if _, err := io.ReadFull(conn, rec); err != nil {
			if l.isClosed() {
				return
			}
			l.dropConnection(err)
			if !l.reconnect() {
				return
			}
			continue
		}

		l.recordsRx.Add(1)
		msg, err := protocol.Decode(rec)
		if err != nil {
			// Records are fixed size, so a bad one does not lose framing.
			l.decodeErrors.Add(1)
			l.log().Warn("discarding undecodable record", "error", err)
			continue
		}
		l.deliver(msg)
	}
}

func (l *Link) deliver(msg *protocol.Message) {
	l.callbackMu.RLock()
	callback := l.onMessage
	l.callbackMu.RUnlock()
	if callback == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.log().Error("message callback panic", "kind", msg.Kind().String(), "panic", fmt.Sprint(r))
		}
	}()
	callback(msg)
}

func (l *Link) dropConnection(err error) {
	l.connMu.Lock()
	wasConnected := l.connected
	l.connected = false
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.connMu.Unlock()

	if wasConnected {
		l.log().Warn("scheduler connection lost, will attempt reconnection", "error", err)
	}
}

// reconnect re-dials with exponential backoff.
// Returns false if Close was called first.
func (l *Link) reconnect() bool {
	backoff := l.cfg.ReconnectInterval
	for attempt := 1; ; attempt++ {
		select {
		case <-l.done:
			return false
		case <-time.After(backoff):
		}

		conn, err := dial(context.Background(), l.cfg)
		if err != nil {
			l.log().Debug("reconnect failed", "attempt", attempt, "backoff", backoff.String(), "error", err)
			backoff = min(time.Duration(float64(backoff)*1.5), l.cfg.MaxReconnectInterval)
			continue
		}

		l.connMu.Lock()
		if l.isClosed() {
			l.connMu.Unlock()
			conn.Close()
			return false
		}
		l.conn = conn
		l.connected = true
		l.connMu.Unlock()

		l.reconnectsTotal.Add(1)
		l.log().Info("scheduler reconnected", "attempt", attempt, "total_reconnects", l.reconnectsTotal.Load())
		l.notifyConnect()
		return true
	}
}

func (l *Link) notifyConnect() {
	l.callbackMu.RLock()
	callback := l.onConnect
	l.callbackMu.RUnlock()
	if callback == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.log().Error("connect callback panic", "panic", fmt.Sprint(r))
		}
	}()
	callback()
}

// sendLoop writes queued records to the current connection.
func (l *Link) sendLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.done:
			return
		case rec := <-l.outbound:
			l.write(rec)
		}
	}
}

func (l *Link) write(rec []byte) {
	conn := l.currentConn()
	if conn == nil {
		l.recordsDropped.Add(1)
		return
	}
	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		l.log().Error("set write deadline failed", "error", err)
	}
	if _, err := conn.Write(rec); err != nil {
		// The receive loop sees the closed socket and reconnects.
		l.log().Error("write failed", "error", err)
		l.recordsDropped.Add(1)
		conn.Close()
		return
	}
	l.recordsTx.Add(1)
}

func (l *Link) currentConn() net.Conn {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	return l.conn
}

func (l *Link) isClosed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Link) log() Logger {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	if l.logger == nil {
		return noopLogger{}
	}
	return l.logger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
