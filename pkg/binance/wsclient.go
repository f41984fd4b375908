package binance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSClient holds one connection to the combined market stream endpoint and
// routes raw frames to a handler. It resubscribes after every reconnect.
type WSClient struct {
	url            string
	streams        []string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	handler        func([]byte)
	logger         *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	id   int64
}

// NewWSClient creates a client for the given stream names.
func NewWSClient(url string, streams []string, reconnectDelay time.Duration, logger *zap.Logger) *WSClient {
	if url == "" {
		url = DefaultWSURL
	}
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &WSClient{
		url:            url,
		streams:        append([]string(nil), streams...),
		reconnectDelay: reconnectDelay,
		dialer:         websocket.DefaultDialer,
		logger:         logger.Named("binance.ws"),
	}
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// Connect dials the endpoint and sends the subscription frame.
// It does not start the listener.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("Failed to connect to WebSocket", zap.String("url", c.url), zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.id++
	req := SubscribeRequest{Method: "SUBSCRIBE", Params: c.streams, ID: c.id}
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	if err := conn.WriteJSON(req); err != nil {
		c.logger.Error("Failed to send subscription", zap.Error(err))
		return fmt.Errorf("websocket subscribe failed: %w", err)
	}

	c.logger.Info("WebSocket connected", zap.String("url", c.url), zap.Strings("streams", c.streams))
	return nil
}

// Listen reads frames until ctx is cancelled. Read errors trigger a reconnect
// after the reconnect delay, retried indefinitely.
func (c *WSClient) Listen(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	for {
		conn := c.current()
		if conn == nil {
			if err := c.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("WebSocket read error", zap.Error(err))
			if err := c.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}
}

func (c *WSClient) reconnect(ctx context.Context) error {
	for {
		t := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		err := c.Connect(ctx)
		if err == nil {
			// Close may have run before the new conn was stored.
			if ctx.Err() != nil {
				c.Close()
				return ctx.Err()
			}
			c.logger.Info("Reconnected successfully")
			return nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("Retrying reconnect...", zap.Error(err))
	}
}

func (c *WSClient) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Close closes the current connection, if any.
func (c *WSClient) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
