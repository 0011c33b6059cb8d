package hardware

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts and intervals for controller links.
const (
	// defaultConnectTimeout is the maximum time to wait for a connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultReadTimeout is the timeout for individual read operations.
	defaultReadTimeout = 10 * time.Second

	// defaultWriteTimeout is the timeout for write operations.
	defaultWriteTimeout = 5 * time.Second

	// defaultPollInterval is how often a status request is sent.
	defaultPollInterval = time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 2 * time.Second

	// maxReconnectInterval caps the reconnection backoff.
	maxReconnectInterval = time.Minute

	// defaultQueueSize is the outbound command queue length.
	defaultQueueSize = 64
)

// ClientConfig holds the connection settings for one controller.
type ClientConfig struct {
	// Subsystem is the controller behind Address.
	Subsystem Subsystem

	// Address is the controller's host:port.
	Address string

	// ConnectTimeout bounds each dial. Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReadTimeout bounds each read. Default: 10 seconds.
	ReadTimeout time.Duration

	// PollInterval is the status request period. Default: 1 second.
	PollInterval time.Duration

	// ReconnectInterval is the initial reconnection delay. Default: 2 seconds.
	ReconnectInterval time.Duration

	// QueueSize is the outbound queue length. Default: 64.
	QueueSize int
}

// Stats holds link statistics.
type Stats struct {
	FramesTx        uint64
	FramesRx        uint64
	CommandsDropped uint64
	ErrorsTotal     uint64
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

// Ensure Client implements Driver.
var _ Driver = (*Client)(nil)

// Client is a Driver speaking the framed TCP protocol to one controller.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - The status callback runs on the receive goroutine and must not block.
//
// Auto-Reconnection:
//   - A lost connection is re-dialled with backoff from ReconnectInterval
//     up to one minute until Close is called.
//   - Commands sent while disconnected fail with ErrNotConnected.
type Client struct {
	cfg ClientConfig

	connMu    sync.RWMutex
	conn      net.Conn
	connected bool

	statusMu   sync.RWMutex
	status     Status
	haveStatus bool

	callbackMu sync.RWMutex
	onStatus   func(Status)

	outbound chan []byte

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	framesTx        atomic.Uint64
	framesRx        atomic.Uint64
	commandsDropped atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
}

// Connect dials the controller and starts the receive, send and poll loops.
//
// Parameters:
//   - ctx: Context for the initial dial
//   - cfg: Connection configuration
//
// Returns:
//   - *Client: Connected client
//   - error: ErrConnectionFailed if the dial fails
func Connect(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultQueueSize
	}

	conn, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:       cfg,
		conn:      conn,
		connected: true,
		outbound:  make(chan []byte, cfg.QueueSize),
		done:      make(chan struct{}),
	}

	c.wg.Add(3)
	go c.receiveLoop()
	go c.sendLoop()
	go c.pollLoop()

	return c, nil
}

func dial(ctx context.Context, cfg ClientConfig) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrConnectionFailed, cfg.Subsystem, cfg.Address, err)
	}
	return conn, nil
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Subsystem implements Driver.
func (c *Client) Subsystem() Subsystem {
	return c.cfg.Subsystem
}

// SetOnStatus implements Driver.
func (c *Client) SetOnStatus(callback func(Status)) {
	c.callbackMu.Lock()
	c.onStatus = callback
	c.callbackMu.Unlock()
}

// ReadStatus implements Driver.
func (c *Client) ReadStatus() (Status, error) {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	if !c.haveStatus {
		return Status{}, ErrNoStatus
	}
	return c.status, nil
}

// SendCommand implements Driver. The command is queued for the send loop.
func (c *Client) SendCommand(code Code, params ...int32) error {
	if c.isClosed() {
		return ErrClosed
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	body, err := EncodeCommand(Command{Code: code, Params: params})
	if err != nil {
		return err
	}

	select {
	case c.outbound <- EncodeFrame(FrameCommand, body):
		return nil
	default:
		c.commandsDropped.Add(1)
		return ErrQueueFull
	}
}

// IsConnected reports whether the link is up.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns link statistics.
func (c *Client) Stats() Stats {
	return Stats{
		FramesTx:        c.framesTx.Load(),
		FramesRx:        c.framesRx.Load(),
		CommandsDropped: c.commandsDropped.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		Connected:       c.IsConnected(),
	}
}

// Close stops all loops and closes the connection. Safe to call multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		c.connMu.Lock()
		c.connected = false
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()

		c.wg.Wait()
		c.logInfo("hardware link closed")
	})
	return nil
}

// receiveLoop reads frames until Close, reconnecting on fatal errors.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	buf := make([]byte, maxFrameSize)
	for !c.isClosed() {
		frameType, body, err := c.readFrame(buf)
		if err != nil {
			if !c.fatalReadError(err) {
				continue
			}
			if c.isClosed() || !c.reconnect() {
				return
			}
			continue
		}

		c.framesRx.Add(1)
		if frameType == FrameStatus {
			c.handleStatus(body)
		}
	}
}

func (c *Client) readFrame(buf []byte) (uint16, []byte, error) {
	conn := c.currentConn()
	if conn == nil {
		return 0, nil, ErrNotConnected
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return 0, nil, fmt.Errorf("set deadline: %w", err)
	}
	if _, err := io.ReadFull(conn, buf[:2]); err != nil {
		return 0, nil, fmt.Errorf("read size: %w", err)
	}

	total := 2 + int(binary.BigEndian.Uint16(buf[:2]))
	if total < frameHeaderSize || total > len(buf) {
		c.errorsTotal.Add(1)
		return 0, nil, ErrProtocolDesync
	}
	if _, err := io.ReadFull(conn, buf[2:total]); err != nil {
		return 0, nil, fmt.Errorf("read frame: %w", err)
	}
	return ParseFrame(buf[:total])
}

// fatalReadError reports whether err requires a reconnect.
func (c *Client) fatalReadError(err error) bool {
	if c.isClosed() {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.logWarn("no frame within read timeout")
		return false
	}

	c.logError("read failed", err)
	c.errorsTotal.Add(1)

	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	if wasConnected {
		c.logInfo("connection lost, will attempt reconnection")
	}
	return true
}

func (c *Client) handleStatus(body []byte) {
	s, err := DecodeStatus(body)
	if err != nil {
		c.logError("decode status failed", err)
		c.errorsTotal.Add(1)
		return
	}
	s.Received = time.Now()

	c.statusMu.Lock()
	changed := !c.haveStatus || !c.status.Equal(s)
	c.status = s
	c.haveStatus = true
	c.statusMu.Unlock()

	if !changed {
		return
	}

	c.callbackMu.RLock()
	callback := c.onStatus
	c.callbackMu.RUnlock()
	if callback == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logError("status callback panic", fmt.Errorf("%v", r))
		}
	}()
	callback(s)
}

// reconnect re-dials with exponential backoff.
// Returns false if Close was called first.
func (c *Client) reconnect() bool {
	backoff := c.cfg.ReconnectInterval
	for attempt := 1; ; attempt++ {
		select {
		case <-c.done:
			return false
		case <-time.After(backoff):
		}

		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())
		conn, err := dial(context.Background(), c.cfg)
		if err != nil {
			c.logError("reconnect failed", err)
			c.errorsTotal.Add(1)
			backoff = min(time.Duration(float64(backoff)*1.5), maxReconnectInterval)
			continue
		}

		c.connMu.Lock()
		if c.isClosed() {
			c.connMu.Unlock()
			conn.Close()
			return false
		}
		c.conn = conn
		c.connected = true
		c.connMu.Unlock()

		c.reconnectsTotal.Add(1)
		c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
		return true
	}
}

// sendLoop writes queued frames to the current connection.
func (c *Client) sendLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.outbound:
			c.write(frame)
		}
	}
}

func (c *Client) write(frame []byte) {
	conn := c.currentConn()
	if conn == nil {
		c.commandsDropped.Add(1)
		return
	}
	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		c.logError("set write deadline failed", err)
	}
	if _, err := conn.Write(frame); err != nil {
		// The receive loop sees the closed socket and reconnects.
		c.logError("write failed", err)
		c.errorsTotal.Add(1)
		conn.Close()
		return
	}
	c.framesTx.Add(1)
}

// pollLoop requests a status record every PollInterval.
func (c *Client) pollLoop() {
	defer c.wg.Done()

	request := EncodeFrame(FrameStatusRequest, nil)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if c.IsConnected() {
			select {
			case c.outbound <- request:
			default:
			}
		}
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
	}
}

func (c *Client) currentConn() net.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, append([]any{"subsystem", c.cfg.Subsystem.String()}, keysAndValues...)...)
	}
}

func (c *Client) logWarn(msg string) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, "subsystem", c.cfg.Subsystem.String())
	}
}

func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "subsystem", c.cfg.Subsystem.String(), "error", err)
	}
}
