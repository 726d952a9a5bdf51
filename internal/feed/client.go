// Package feed connects to the upstream quote gateway and turns its
// websocket stream into decoded model.Tick values.
//
// The client handles the connection lifecycle (dial, subscription
// messages, keepalive pings, graceful close); the gateway connector owns
// the message format. Handlers run panic-isolated so one malformed
// message cannot take the stream down.
package feed

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nanashi07/sminer-sub000/internal/model"
)

const (
	defaultPingPeriod       = 15 * time.Second
	defaultSendTimeout      = 5 * time.Second
	defaultReadLimit        = 1 << 20 // 1MB
	defaultHandshakeTimeout = 10 * time.Second
)

// ErrClientShuttingDown indicates the client is in the process of
// shutting down.
var ErrClientShuttingDown = errors.New("client is shutting down")

// ClientConfig defines settings for the websocket client.
type ClientConfig struct {
	// Endpoint is the websocket URL to connect to. Required.
	Endpoint string

	// Handler is called for each incoming message with the tick output
	// channel. Required.
	Handler func([]byte, chan<- *model.Tick) error

	// TLSInsecureSkip disables TLS certificate verification.
	TLSInsecureSkip bool

	// PingPeriod is the interval between keepalive pings.
	PingPeriod time.Duration

	// SendTimeout bounds websocket write operations.
	SendTimeout time.Duration

	// SubscriptionMessages are sent immediately after connecting.
	SubscriptionMessages [][]byte
}

// Client wraps a websocket.Conn with lifecycle and message handling
// logic. Ticks decoded by the handler are delivered on TickChan.
type Client struct {
	conn       atomic.Value // stores *websocket.Conn
	TickChan   chan *model.Tick
	disconnect chan struct{}
	errChan    chan error
	cfg        *ClientConfig
	ctx        context.Context
	cancel     context.CancelFunc
	once       sync.Once
	wg         sync.WaitGroup
}

// NewClient returns a connected client and immediately starts the read
// and ping loops. Subscription messages are sent before the first read.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint URL is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("message handler is required")
	}
	if cfg.PingPeriod == 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	client := &Client{
		cfg:        &cfg,
		ctx:        ctx,
		cancel:     cancel,
		disconnect: make(chan struct{}),
		errChan:    make(chan error, 1),
		TickChan:   make(chan *model.Tick, 1000),
	}

	if err := client.run(cfg.SubscriptionMessages); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start client: %w", err)
	}
	return client, nil
}

func (c *Client) run(subMsgs [][]byte) error {
	logger := log.With().Str("endpoint", c.cfg.Endpoint).Logger()
	logger.Info().Msg("starting feed client")

	conn, err := c.dial(c.ctx)
	if err != nil {
		return fmt.Errorf("initial dial failed: %w", err)
	}
	c.conn.Store(conn)

	conn.SetReadLimit(defaultReadLimit)
	conn.SetPongHandler(func(string) error {
		deadline := time.Now().Add(c.cfg.PingPeriod * 2)
		if err := conn.SetReadDeadline(deadline); err != nil {
			logger.Warn().Err(err).Msg("failed to set read deadline in pong handler")
		}
		return nil
	})

	for _, msg := range subMsgs {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Error().Err(err).Msg("subscription error")
			return err
		}
	}

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer c.wg.Done()
		c.pingLoop()
	}()
	go func() {
		defer c.wg.Done()
		c.shutdownListener()
	}()
	return nil
}

// readLoop reads gateway messages and delegates decoding to the handler.
func (c *Client) readLoop() {
	conn := c.conn.Load().(*websocket.Conn)
	logger := log.With().Str("endpoint", c.cfg.Endpoint).Str("component", "readLoop").Logger()

	defer func() {
		logger.Info().Msg("read loop exiting")
		close(c.disconnect)
		close(c.TickChan)
		select {
		case c.errChan <- ErrClientShuttingDown:
		default:
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info().Err(err).Msg("websocket closed normally")
				} else if websocket.IsUnexpectedCloseError(err) {
					logger.Warn().Err(err).Msg("unexpected websocket closure")
				} else {
					logger.Error().Err(err).Msg("read error")
				}
				select {
				case c.errChan <- err:
				default:
				}
				return
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error().Any("recover", r).Msg("panic in message handler")
					}
				}()
				if err := c.cfg.Handler(data, c.TickChan); err != nil {
					logger.Error().Err(err).Msg("error handling quote message")
				}
			}()
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()
	logger := log.With().Str("endpoint", c.cfg.Endpoint).Str("component", "pingLoop").Logger()

	for {
		select {
		case <-ticker.C:
			connVal := c.conn.Load()
			if connVal == nil {
				continue
			}
			conn := connVal.(*websocket.Conn)
			if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout)); err != nil {
				logger.Warn().Err(err).Msg("failed to set write deadline")
				continue
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn().Err(err).Msg("ping error")
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) shutdownListener() {
	<-c.ctx.Done()
	c.Close()
}

// Close gracefully shuts the client down. Safe to call multiple times.
func (c *Client) Close() {
	c.once.Do(func() {
		logger := log.With().Str("endpoint", c.cfg.Endpoint).Logger()
		logger.Info().Msg("closing feed client")

		c.cancel()
		if conn := c.conn.Load(); conn != nil {
			if ws, ok := conn.(*websocket.Conn); ok {
				if err := ws.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second),
				); err != nil {
					logger.Warn().Err(err).Msg("failed to send close frame")
				}
				if err := ws.Close(); err != nil {
					logger.Warn().Err(err).Msg("error closing websocket connection")
				}
			}
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn().Msg("timeout waiting for goroutines to complete")
		}
	})
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: c.cfg.TLSInsecureSkip},
		HandshakeTimeout: defaultHandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.Endpoint, make(http.Header))
	if err != nil {
		if resp != nil {
			log.Error().Err(err).Int("statusCode", resp.StatusCode).
				Str("endpoint", c.cfg.Endpoint).Msg("connection failed")
		} else {
			log.Error().Err(err).Str("endpoint", c.cfg.Endpoint).Msg("connection failed")
		}
		return nil, err
	}
	return conn, nil
}

// DisconnectChan is closed when the connection is lost for any reason.
func (c *Client) DisconnectChan() <-chan struct{} {
	return c.disconnect
}

// ErrChan emits the terminal read error that ended the stream.
func (c *Client) ErrChan() <-chan error {
	return c.errChan
}
