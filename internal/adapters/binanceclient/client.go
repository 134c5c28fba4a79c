package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"levelwatch/internal/ports"
)

const (
	defaultIdleTimeout  = 5 * time.Minute
	defaultReapInterval = time.Minute
)

// Client implements the ports.MarketDataClient interface using the
// go-binance library. The terminal link is reference counted: the first
// Acquire verifies connectivity, the last release stamps the link idle, and
// a reaper goroutine drops idle connections after a timeout.
type Client struct {
	spot   *binance.Client
	logger ports.Logger

	idleTimeout  time.Duration
	reapInterval time.Duration

	connMu       sync.Mutex
	connected    bool
	refs         int
	lastActivity time.Time
}

// Config holds configuration specific to the Binance market-data adapter.
type Config struct {
	APIKey       string
	SecretKey    string
	Logger       ports.Logger
	IdleTimeout  time.Duration // how long an unused connection stays up
	ReapInterval time.Duration // how often the reaper checks for idle connections
}

// New creates a new Binance market-data adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for the Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	reap := cfg.ReapInterval
	if reap <= 0 {
		reap = defaultReapInterval
	}

	return &Client{
		spot:         binance.NewClient(cfg.APIKey, cfg.SecretKey),
		logger:       cfg.Logger,
		idleTimeout:  idle,
		reapInterval: reap,
	}, nil
}

// Acquire takes a reference on the terminal connection, verifying
// connectivity on the first acquisition. The returned release function is
// safe to call exactly once; calling it again is a no-op.
func (c *Client) Acquire(ctx context.Context) (ports.ReleaseFunc, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.connected {
		if err := c.pingLocked(ctx); err != nil {
			return nil, err
		}
		c.connected = true
		c.logger.Info(ctx, "Terminal connection established")
	}

	c.refs++
	c.lastActivity = time.Now()
	c.logger.Debug(ctx, "Terminal connection acquired", map[string]interface{}{"refs": c.refs})

	var once sync.Once
	return func() { once.Do(c.release) }, nil
}

func (c *Client) release() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.refs--
	if c.refs < 0 {
		c.refs = 0
	}
	c.lastActivity = time.Now()
}

// StartIdleReaper launches the background goroutine that tears down the
// connection once it has been unreferenced longer than the idle timeout. It
// exits when ctx is canceled.
func (c *Client) StartIdleReaper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.reapIdle(ctx)
			}
		}
	}()
	c.logger.Info(ctx, "Terminal connection reaper started", map[string]interface{}{
		"idleTimeout": c.idleTimeout.String(),
	})
}

func (c *Client) reapIdle(ctx context.Context) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.connected || c.refs > 0 {
		return
	}
	if time.Since(c.lastActivity) <= c.idleTimeout {
		return
	}

	c.closeLocked()
	c.logger.Info(ctx, "Closed idle terminal connection", map[string]interface{}{
		"idleFor": time.Since(c.lastActivity).String(),
	})
}

// closeLocked drops the logical connection. The HTTP transport keeps pooled
// sockets around, so they are closed explicitly here.
func (c *Client) closeLocked() {
	c.connected = false
	if c.spot.HTTPClient != nil {
		c.spot.HTTPClient.CloseIdleConnections()
	}
}

// Ping checks connectivity to the terminal.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.spot.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, "Ping")
	}
	return nil
}

func (c *Client) pingLocked(ctx context.Context) error {
	if err := c.spot.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, "Connect")
	}
	return nil
}

// handleError translates Binance API errors into standardized ports errors.
// Connection-class failures also force re-verification on the next Acquire.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1120, -1121, -1125, -1130:
			// Parameter/request format errors; -1121 is "invalid symbol"
			if apiErr.Code == -1121 {
				mappedErr = ports.ErrSymbolNotFound
			} else {
				mappedErr = ports.ErrInvalidRequest
			}
		case -2014, -2015: // API key format/permissions
			mappedErr = ports.ErrAuthenticationFailed
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "no such host") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
		// Force re-verification on the next acquire.
		c.connMu.Lock()
		c.closeLocked()
		c.connMu.Unlock()
		c.logger.Warn(ctx, "Connection failure detected, forcing reconnection on next use", fields)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}
