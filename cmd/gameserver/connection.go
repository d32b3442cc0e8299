package main

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/race/arcade/config"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var (
	errConnClosed = errors.New("connection closed")
	errSendFull   = errors.New("send buffer full")
)

// ClientConnection represents a single connected client.
// Each client has its own goroutines for reading and writing messages.
type ClientConnection struct {
	id       string
	ws       *websocket.Conn
	server   *GameServer
	logger   zerolog.Logger
	sendChan chan []byte   // Buffered channel for outgoing messages
	done     chan struct{} // Signal channel for shutdown

	closeOnce   sync.Once
	cleanupOnce sync.Once
}

func newClientConnection(ws *websocket.Conn, s *GameServer) *ClientConnection {
	return &ClientConnection{
		ws:       ws,
		server:   s,
		logger:   s.logger,
		sendChan: make(chan []byte, config.SendBufferFrames),
		done:     make(chan struct{}),
	}
}

// Send queues data to be sent to the client.
// Non-blocking: the frame is dropped and an error returned if the buffer
// is full, so a slow client never stalls the game loop.
func (c *ClientConnection) Send(data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.sendChan <- data:
		return nil
	default:
		return errSendFull
	}
}

// Close shuts the connection down.
// Safe to call multiple times.
func (c *ClientConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// RemoteAddr returns the client's address for logging.
func (c *ClientConnection) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// writePump handles sending messages to the client.
// Also sends periodic pings to detect dead connections.
func (c *ClientConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.cleanup()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.sendChan:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump forwards every frame to the game loop in arrival order.
func (c *ClientConnection) readPump() {
	defer c.cleanup()

	// Limit message size to prevent memory exhaustion
	c.ws.SetReadLimit(config.MaxMessageBytes)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		if !c.server.game.Message(c.id, message) {
			return
		}
	}
}

// cleanup removes the connection from the hub and the game.
// Called by whichever pump exits first.
func (c *ClientConnection) cleanup() {
	c.cleanupOnce.Do(func() {
		c.server.hub.Unregister(c.id)
		c.server.game.Disconnect(c.id)
		c.Close()
		c.logger.Info().Str("addr", c.RemoteAddr()).Msg("connection closed")
	})
}
