package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wapair/session-backend/interfaces"
)

const defaultHandshakeTimeout = 20 * time.Second

// Dialer connects to the protocol gateway over websocket. The gateway hosts
// the actual messaging-protocol client (crypto, wire framing); this adapter
// only relays its event stream and serves its key lookups.
type Dialer struct {
	// URL is the gateway's session socket, e.g. ws://gateway:7300/session.
	URL string

	// Log is the structured logger; required.
	Log *slog.Logger

	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration
}

// Dial opens the gateway socket, sends the loaded auth state, and returns a
// client whose event channel feeds the coordinator.
func (d *Dialer) Dial(ctx context.Context, auth interfaces.AuthState) (interfaces.ProtocolClient, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = defaultHandshakeTimeout
	}
	wsd := websocket.Dialer{HandshakeTimeout: timeout}

	conn, _, err := wsd.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial protocol gateway %s: %w", d.URL, err)
	}

	c := &Client{
		conn:        conn,
		keys:        auth.Keys,
		log:         d.Log.With(slog.String("gateway", d.URL)),
		events:      make(chan interfaces.Event, 32),
		pairWaiters: make(map[uint64]chan pairResponsePayload),
	}

	if err := c.writeFrame(frameHello, helloPayload{Credentials: json.RawMessage(auth.Credentials)}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// Client adapts one gateway websocket connection to the ProtocolClient
// capability surface.
type Client struct {
	conn *websocket.Conn
	keys interfaces.KeyReader
	log  *slog.Logger

	writeMu sync.Mutex

	events chan interfaces.Event

	pairMu      sync.Mutex
	pairSeq     uint64
	pairWaiters map[uint64]chan pairResponsePayload

	closeOnce sync.Once
}

// Events returns the decoded event stream. Closed when the socket drops.
func (c *Client) Events() <-chan interfaces.Event {
	return c.events
}

// RequestPairingCode asks the gateway to issue a phone-number pairing code.
func (c *Client) RequestPairingCode(ctx context.Context, address string) (string, error) {
	c.pairMu.Lock()
	c.pairSeq++
	id := c.pairSeq
	waiter := make(chan pairResponsePayload, 1)
	c.pairWaiters[id] = waiter
	c.pairMu.Unlock()

	defer func() {
		c.pairMu.Lock()
		delete(c.pairWaiters, id)
		c.pairMu.Unlock()
	}()

	if err := c.writeFrame(framePairRequest, pairRequestPayload{ID: id, Address: address}); err != nil {
		return "", err
	}

	select {
	case resp, ok := <-waiter:
		if !ok {
			return "", fmt.Errorf("gateway connection closed")
		}
		if resp.Error != "" {
			return "", fmt.Errorf("gateway rejected pairing request: %s", resp.Error)
		}
		return resp.Code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close tears the socket down. Safe to call more than once; the event
// channel is closed by the read loop.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer func() {
		c.pairMu.Lock()
		for id, waiter := range c.pairWaiters {
			close(waiter)
			delete(c.pairWaiters, id)
		}
		c.pairMu.Unlock()
		close(c.events)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("Gateway socket read ended", "err", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.log.Warn("Dropping malformed gateway frame", "err", err)
			continue
		}

		switch f.Type {
		case frameConnection:
			c.handleConnection(f.Payload)
		case frameCreds:
			c.handleCreds(f.Payload)
		case frameKeys:
			c.handleKeys(f.Payload)
		case framePairResponse:
			c.handlePairResponse(f.Payload)
		case frameKeyRequest:
			// Key lookups may hit the durable store; never stall the read
			// loop on them.
			go c.handleKeyRequest(f.Payload)
		default:
			c.log.Warn("Dropping unknown gateway frame", slog.String("type", f.Type))
		}
	}
}

func (c *Client) handleConnection(payload json.RawMessage) {
	var p connectionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.log.Warn("Dropping malformed connection frame", "err", err)
		return
	}

	evt := interfaces.ConnectionEvent{
		QR:        p.QR,
		LoggedOut: p.LoggedOut,
	}
	switch interfaces.ConnState(p.State) {
	case interfaces.ConnConnecting, interfaces.ConnOpen, interfaces.ConnClosed:
		evt.State = interfaces.ConnState(p.State)
	case "":
		// A bare QR refresh carries no state change.
		evt.State = interfaces.ConnConnecting
	default:
		c.log.Warn("Dropping connection frame with unknown state", slog.String("state", p.State))
		return
	}
	if p.Error != "" {
		evt.Err = fmt.Errorf("%s", p.Error)
	}

	c.events <- evt
}

func (c *Client) handleCreds(payload json.RawMessage) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		c.log.Warn("Dropping malformed credentials frame", "err", err)
		return
	}
	c.events <- interfaces.CredentialsEvent{Credentials: interfaces.Credentials(payload)}
}

func (c *Client) handleKeys(payload json.RawMessage) {
	var p keysPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.log.Warn("Dropping malformed keys frame", "err", err)
		return
	}

	delta := make(interfaces.KeyDelta, len(p.Delta))
	for rawType, entries := range p.Delta {
		keyType := interfaces.KeyType(rawType)
		if !keyType.Valid() {
			c.log.Warn("Dropping delta for unknown key namespace", slog.String("type", rawType))
			continue
		}
		delta[keyType] = entries
	}
	if len(delta) == 0 {
		return
	}

	c.events <- interfaces.KeysEvent{Delta: delta}
}

func (c *Client) handlePairResponse(payload json.RawMessage) {
	var p pairResponsePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.log.Warn("Dropping malformed pair response", "err", err)
		return
	}

	c.pairMu.Lock()
	waiter, ok := c.pairWaiters[p.ID]
	c.pairMu.Unlock()
	if !ok {
		c.log.Warn("Dropping pair response with unknown id", slog.Uint64("id", p.ID))
		return
	}
	waiter <- p
}

func (c *Client) handleKeyRequest(payload json.RawMessage) {
	var p keyRequestPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.log.Warn("Dropping malformed key request", "err", err)
		return
	}

	resp := keyResponsePayload{ID: p.ID}
	keyType := interfaces.KeyType(p.KeyType)
	if !keyType.Valid() {
		resp.Error = fmt.Sprintf("unknown key namespace: %q", p.KeyType)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		keys, err := c.keys.GetKeys(ctx, keyType, p.IDs)
		cancel()
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Keys = keys
		}
	}

	if err := c.writeFrame(frameKeyResponse, resp); err != nil {
		c.log.Warn("Failed to answer key request", "err", err)
	}
}

func (c *Client) writeFrame(frameType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", frameType, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(frame{Type: frameType, Payload: raw}); err != nil {
		return fmt.Errorf("write %s frame: %w", frameType, err)
	}
	return nil
}

var _ interfaces.ProtocolClient = (*Client)(nil)
var _ interfaces.ProtocolDialer = (*Dialer)(nil)
