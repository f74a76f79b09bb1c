package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// defaultGatewayURL is the dial target for a fresh session. After READY
// the gateway hands back a resume URL that replaces it.
const defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Reconnect backoff bounds.
const (
	reconnectMinDelay = time.Second
	reconnectMaxDelay = time.Minute
)

// maxGatewayFrame bounds a single inbound gateway frame.
const maxGatewayFrame = 4 << 20

// levelTrace is below Debug, used for per-frame gateway logging.
const levelTrace = slog.Level(-8)

// errReconnect signals that the gateway asked us to drop and resume.
var errReconnect = errors.New("gateway requested reconnect")

// Gateway maintains the Discord gateway WebSocket: identify, heartbeat,
// and dispatch. Inbound MESSAGE_CREATE events are pushed to a channel;
// the connection is re-established (resuming when possible) until the
// context is cancelled.
type Gateway struct {
	token   string
	dialURL string
	logger  *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex // serializes writes and Close

	seq atomic.Int64

	// Session state from READY, protected by sessionMu.
	sessionMu sync.Mutex
	sessionID string
	resumeURL string
	botUser   User

	messages chan *Message
}

// NewGateway creates a gateway client. Call Run to connect.
func NewGateway(token string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		token:    token,
		dialURL:  defaultGatewayURL,
		logger:   logger,
		messages: make(chan *Message, 64),
	}
}

// Messages returns the channel of inbound message events. The channel
// is closed when Run returns.
func (g *Gateway) Messages() <-chan *Message {
	return g.messages
}

// BotUser returns the bot's own identity. Zero value before the first
// READY.
func (g *Gateway) BotUser() User {
	g.sessionMu.Lock()
	defer g.sessionMu.Unlock()
	return g.botUser
}

// Run connects to the gateway and processes events until ctx is
// cancelled, reconnecting with exponential backoff on failure.
func (g *Gateway) Run(ctx context.Context) error {
	defer close(g.messages)

	delay := reconnectMinDelay
	for {
		start := time.Now()
		err := g.runSession(ctx)
		if ctx.Err() != nil {
			g.logger.Info("gateway shutting down")
			return ctx.Err()
		}
		g.logger.Warn("gateway session ended", "error", err)

		// A session that survived a while earns a fresh backoff.
		if time.Since(start) > reconnectMaxDelay {
			delay = reconnectMinDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

// runSession runs one gateway connection: dial, handshake, read until
// the connection drops or ctx is cancelled.
func (g *Gateway) runSession(ctx context.Context) error {
	g.sessionMu.Lock()
	dialURL := g.resumeURL
	sessionID := g.sessionID
	g.sessionMu.Unlock()
	resuming := dialURL != "" && sessionID != ""
	if dialURL == "" {
		dialURL = g.dialURL
	}

	g.logger.Info("connecting to gateway", "url", dialURL, "resuming", resuming)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	conn.SetReadLimit(maxGatewayFrame)

	g.connMu.Lock()
	g.conn = conn
	g.connMu.Unlock()
	defer func() {
		g.connMu.Lock()
		conn.Close()
		g.conn = nil
		g.connMu.Unlock()
	}()

	// HELLO carries the heartbeat interval.
	var hello payload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello opcode, got %d", hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}
	interval := time.Duration(hd.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		return fmt.Errorf("invalid heartbeat interval %d", hd.HeartbeatInterval)
	}

	if resuming {
		err = g.send(opResume, resumeData{
			Token:     g.token,
			SessionID: sessionID,
			Seq:       g.seq.Load(),
		})
	} else {
		err = g.send(opIdentify, identifyData{
			Token:   g.token,
			Intents: intentGuildMessages | intentDirectMessages | intentMessageContent,
			Properties: identifyProperties{
				OS:      runtime.GOOS,
				Browser: "llmbot",
				Device:  "llmbot",
			},
		})
	}
	if err != nil {
		return fmt.Errorf("gateway handshake: %w", err)
	}

	// Heartbeat until this session ends. Cancelling hbCtx stops the
	// goroutine; closing the connection unblocks the read loop.
	hbCtx, hbCancel := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		g.heartbeatLoop(hbCtx, interval)
	}()
	defer func() {
		hbCancel()
		<-hbDone
	}()

	// ctx cancellation must unblock ReadJSON.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	return g.readLoop(ctx)
}

// heartbeatLoop sends a heartbeat every interval until ctx is
// cancelled. A failed write closes the session via the read loop.
func (g *Gateway) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.sendHeartbeat(); err != nil {
				g.logger.Debug("heartbeat write failed", "error", err)
				return
			}
		}
	}
}

func (g *Gateway) sendHeartbeat() error {
	seq := g.seq.Load()
	if seq == 0 {
		return g.send(opHeartbeat, nil)
	}
	return g.send(opHeartbeat, seq)
}

// readLoop processes inbound frames until the connection drops.
func (g *Gateway) readLoop(ctx context.Context) error {
	g.connMu.Lock()
	conn := g.conn
	g.connMu.Unlock()

	for {
		var p payload
		if err := conn.ReadJSON(&p); err != nil {
			return fmt.Errorf("gateway read: %w", err)
		}

		switch p.Op {
		case opDispatch:
			g.seq.Store(p.S)
			g.handleDispatch(ctx, &p)

		case opHeartbeat:
			// The gateway may request an immediate beat.
			if err := g.sendHeartbeat(); err != nil {
				return fmt.Errorf("requested heartbeat: %w", err)
			}

		case opHeartbeatACK:
			g.logger.Log(ctx, levelTrace, "heartbeat acknowledged")

		case opReconnect:
			return errReconnect

		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			if !resumable {
				g.sessionMu.Lock()
				g.sessionID = ""
				g.resumeURL = ""
				g.sessionMu.Unlock()
				g.seq.Store(0)
			}
			return fmt.Errorf("gateway invalidated session (resumable=%t)", resumable)

		default:
			g.logger.Debug("unhandled gateway opcode", "op", p.Op)
		}
	}
}

// handleDispatch routes one opcode 0 event.
func (g *Gateway) handleDispatch(ctx context.Context, p *payload) {
	switch p.T {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(p.D, &ready); err != nil {
			g.logger.Error("decode READY failed", "error", err)
			return
		}
		g.sessionMu.Lock()
		g.sessionID = ready.SessionID
		g.resumeURL = ready.ResumeGatewayURL
		g.botUser = ready.User
		g.sessionMu.Unlock()
		g.logger.Info("gateway ready",
			"session_id", ready.SessionID,
			"bot_user", ready.User.Username,
			"bot_id", ready.User.ID,
		)

	case "RESUMED":
		g.logger.Info("gateway session resumed")

	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(p.D, &msg); err != nil {
			g.logger.Error("decode MESSAGE_CREATE failed", "error", err)
			return
		}
		select {
		case g.messages <- &msg:
		case <-ctx.Done():
		}

	default:
		g.logger.Log(ctx, levelTrace, "ignoring dispatch", "type", p.T)
	}
}

// send writes one frame, serialized against concurrent writers.
func (g *Gateway) send(op int, d any) error {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	if g.conn == nil {
		return errors.New("gateway not connected")
	}

	var raw json.RawMessage
	if d != nil {
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		raw = b
	}
	return g.conn.WriteJSON(payload{Op: op, D: raw})
}

// Close tears down the current connection. Run will attempt to
// reconnect unless its context is cancelled.
func (g *Gateway) Close() error {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	if g.conn != nil {
		return g.conn.Close()
	}
	return nil
}
