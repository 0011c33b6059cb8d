package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/dti-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds

	millisecondsPerSecond = 1000

	// siteTag is added to every point so several domes can share a bucket.
	siteTag = "site"
)

// pointWriter is the part of api.WriteAPI the client uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// server is the part of influxdb2.Client the client uses.
type server interface {
	Ping(ctx context.Context) (bool, error)
	Close()
}

// Client writes DTI telemetry to one InfluxDB v2 bucket. Every point is
// tagged with the observatory's site ID.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Write operations are non-blocking and batched.
type Client struct {
	server   server
	writeAPI pointWriter
	site     string

	connected bool
	mu        sync.RWMutex

	// onError is called when async write errors occur.
	onError func(err error)

	// failed counts rejected batches; reported marks how many HealthCheck
	// has already seen.
	failed   atomic.Uint64
	reported atomic.Uint64
}

// Connect establishes a connection to the InfluxDB server.
//
// Parameters:
//   - cfg: InfluxDB configuration
//   - site: Observatory site ID, written as the "site" tag on every point
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrDisabled, or ErrConnectionFailed if the server cannot be pinged
func Connect(cfg config.InfluxDBConfig, site string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := newClient(client, writeAPI, site)
	go c.forwardErrors(writeAPI.Errors())

	return c, nil
}

func newClient(srv server, w pointWriter, site string) *Client {
	return &Client{
		server:    srv,
		writeAPI:  w,
		site:      site,
		connected: true,
	}
}

// forwardErrors counts async write errors and hands them to the
// SetOnError callback until the client closes.
func (c *Client) forwardErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.writeFailed(err)
	}
}

func (c *Client) writeFailed(err error) {
	c.failed.Add(1)

	c.mu.RLock()
	callback := c.onError
	c.mu.RUnlock()

	if callback != nil {
		callback(err)
	}
}

// Close flushes pending writes and closes the client.
//
// Returns:
//   - error: Always nil
func (c *Client) Close() error {
	if c == nil || c.server == nil {
		return nil
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.server.Close()

	return nil
}

// HealthCheck pings the server and reports batches rejected since the
// previous check. A server that answers pings but refuses writes, for
// example after its token was revoked, is not healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, ErrWritesFailing or a ping error otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.isConnected() || c.server == nil {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.server.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}

	failed := c.failed.Load()
	if seen := c.reported.Swap(failed); failed > seen {
		return fmt.Errorf("%w: %d batches rejected", ErrWritesFailing, failed-seen)
	}
	return nil
}

func (c *Client) isConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets a callback invoked when an async write fails.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}
