package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wapair/session-backend/interfaces"
	"github.com/wapair/session-backend/metrics"
	"github.com/wapair/session-backend/store"
)

// Config wires the coordinator's collaborators.
type Config struct {
	// StoreFactory creates the durable record store for each attempt.
	StoreFactory interfaces.RecordStoreFactory

	// StoreLocation is the parsed durable-store URI.
	StoreLocation interfaces.StoreLocation

	// Dialer establishes the protocol client connection.
	Dialer interfaces.ProtocolDialer

	// Log is the structured logger; required.
	Log *slog.Logger

	// Metrics instruments the coordinator; may be nil.
	Metrics *metrics.SessionMetrics
}

// Coordinator owns the single active connection attempt: its state machine,
// the pending pairing artifacts, and the incremental persistence of every
// credential/key mutation the protocol client reports.
//
// The coordinator reconciles three sources of truth - in-memory client state,
// the asynchronous event stream, and the remote durable store. Events are
// consumed by a single goroutine and persistence runs on a sequential write
// queue, so mutations are applied in emission order and a crash mid-handshake
// never loses an acknowledged delta.
type Coordinator struct {
	log          *slog.Logger
	storeFactory interfaces.RecordStoreFactory
	storeLoc     interfaces.StoreLocation
	dialer       interfaces.ProtocolDialer
	m            *metrics.SessionMetrics

	mu                 sync.Mutex
	state              State
	pendingQR          string
	pendingPairingCode string
	lastErr            error
	attempt            *attempt
}

// attempt is the per-connection working set. It owns the store connection and
// the protocol client for its lifetime; neither is shared across attempts.
type attempt struct {
	id      string
	method  Method
	phone   string
	log     *slog.Logger
	store   *store.CredentialStore
	cache   *store.KeyCache
	queue   *persistQueue
	pairing pairingRequest

	creds interfaces.Credentials

	mu       sync.Mutex
	client   interfaces.ProtocolClient
	failure  error
	shutdown bool

	done chan struct{}
}

func (a *attempt) fail(err error) {
	a.mu.Lock()
	if a.failure == nil {
		a.failure = err
	}
	a.mu.Unlock()
}

func (a *attempt) failed() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failure
}

// setClient publishes the dialed client. Reports whether a close was already
// requested, in which case the caller tears the fresh client down.
func (a *attempt) setClient(client interfaces.ProtocolClient) (closeRequested bool) {
	a.mu.Lock()
	a.client = client
	closeRequested = a.shutdown
	a.mu.Unlock()
	return closeRequested
}

// requestClose marks the attempt as shutting down and closes the protocol
// client if one is connected. When setup has not dialed yet it observes the
// flag right after dialing and closes the client itself.
func (a *attempt) requestClose() {
	a.mu.Lock()
	a.shutdown = true
	client := a.client
	a.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

// New creates an idle coordinator.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		log:          cfg.Log,
		storeFactory: cfg.StoreFactory,
		storeLoc:     cfg.StoreLocation,
		dialer:       cfg.Dialer,
		m:            cfg.Metrics,
		state:        StateIdle,
	}
}

// Start begins a connection attempt. Input validation happens before any
// store or protocol work; a malformed phone number for the pairing method is
// rejected without touching the state machine. If another attempt is active
// the call is rejected with ErrConflictingAttempt and the existing attempt is
// left untouched.
//
// Start returns once the attempt is admitted; connection setup continues in
// the background and progress is observable through CurrentStatus.
func (c *Coordinator) Start(ctx context.Context, method Method, phoneNumber string) error {
	if _, err := ParseMethod(string(method)); err != nil {
		return err
	}
	if method == MethodPairing {
		if _, err := FormatPairingAddress(phoneNumber); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		c.log.Warn("Rejected connection attempt, another is active",
			slog.String("method", string(method)))
		return interfaces.ErrConflictingAttempt
	}

	att := &attempt{
		id:     uuid.NewString(),
		method: method,
		phone:  phoneNumber,
		done:   make(chan struct{}),
	}
	att.log = c.log.With(slog.String("attempt", att.id[:8]), slog.String("method", string(method)))

	c.attempt = att
	c.pendingQR = ""
	c.pendingPairingCode = ""
	c.lastErr = nil
	c.toStateLocked(StateConnecting)
	c.mu.Unlock()

	att.log.Info("Starting connection attempt")
	go c.setup(att)

	return nil
}

// CurrentStatus returns a consistent snapshot of the coordinator state and
// pending artifacts.
func (c *Coordinator) CurrentStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:              c.state,
		PendingQR:          c.pendingQR,
		PendingPairingCode: c.pendingPairingCode,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Shutdown closes the active attempt, if any, and waits for its event loop
// and write queue to drain.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	att := c.attempt
	c.mu.Unlock()

	if att == nil {
		return nil
	}
	att.requestClose()

	select {
	case <-att.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// setup runs the blocking half of an attempt: store connect, state load,
// protocol dial, optional pairing-code issuance. Every failure is converted
// to the error state here; nothing is left to crash the host.
func (c *Coordinator) setup(att *attempt) {
	ctx := context.Background()

	records, err := c.storeFactory.StoreFor(c.storeLoc)
	if err != nil {
		c.abortSetup(att, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err))
		return
	}
	att.store = store.NewCredentialStore(records, att.log)

	att.log.Debug("Loading session state", slog.String("store", records.LocationURI()))
	creds, keys, err := att.store.Load(ctx)
	if err != nil {
		att.store.Close()
		c.abortSetup(att, err)
		return
	}
	att.creds = creds

	att.queue = newPersistQueue(att.log, func(kind string, err error) {
		c.m.PersistOp(kind, err)
		if err != nil {
			c.notePersistFailure(att, kind, err)
		}
	})
	att.cache = store.NewKeyCache(att.store, keys, func(delta interfaces.KeyDelta) {
		if err := att.queue.Submit("merge-keys", func(ctx context.Context) error {
			return att.store.MergeKeys(ctx, delta)
		}); err != nil {
			att.log.Error("Dropped key delta, queue closed", "err", err)
		}
	}, att.log)

	client, err := c.dialer.Dial(ctx, interfaces.AuthState{
		Credentials: creds,
		Keys:        att.cache,
	})
	if err != nil {
		att.queue.Close()
		att.store.Close()
		c.abortSetup(att, fmt.Errorf("%w: %v", interfaces.ErrProtocolSetupFailed, err))
		return
	}
	closeRequested := att.setClient(client)

	// From here on the event loop owns teardown.
	go c.eventLoop(att)

	if closeRequested {
		// Shutdown raced the dial; end the attempt immediately.
		client.Close()
		return
	}

	if att.method == MethodPairing {
		c.requestPairingCode(att)
	}
}

func (c *Coordinator) requestPairingCode(att *attempt) {
	address, err := FormatPairingAddress(att.phone)
	if err != nil {
		// Validated in Start; kept as a guard.
		att.fail(err)
		att.client.Close()
		return
	}

	att.log.Info("Requesting pairing code", slog.String("address", address))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	code, err := att.pairing.issue(ctx, att.client, address)
	cancel()
	c.m.PairingRequest(err)
	if err != nil {
		att.log.Error("Pairing code request failed", "err", err)
		att.fail(err)
		att.client.Close()
		return
	}

	c.mu.Lock()
	if c.attempt == att && (c.state == StateConnecting || c.state == StateQRPending) {
		c.pendingPairingCode = code
		c.pendingQR = ""
		c.toStateLocked(StatePairingPending)
	}
	c.mu.Unlock()
	att.log.Info("Pairing code issued")
}

// eventLoop is the single consumer of the protocol client's event stream.
// Handling events on one goroutine makes the ordering guarantee structural:
// persistence operations enter the write queue in emission order.
func (c *Coordinator) eventLoop(att *attempt) {
	defer close(att.done)

	for evt := range att.client.Events() {
		switch e := evt.(type) {
		case interfaces.CredentialsEvent:
			c.handleCredentials(att, e)
		case interfaces.KeysEvent:
			c.handleKeys(att, e)
		case interfaces.ConnectionEvent:
			c.handleConnection(att, e)
		default:
			att.log.Warn("Dropping unknown protocol event", slog.Any("event", evt))
		}
	}

	// Flush pending writes before the store connection goes away, then
	// release the store no matter what the flush did.
	att.queue.Close()
	if err := att.store.Close(); err != nil {
		att.log.Error("Failed to release store connection", "err", err)
	}

	c.mu.Lock()
	if c.attempt == att {
		c.attempt = nil
		if !c.state.Terminal() {
			// The stream ended without a close event: setup or transport
			// failure. Surface it as the error state.
			err := att.failed()
			if err == nil {
				err = fmt.Errorf("%w: event stream ended unexpectedly", interfaces.ErrProtocolSetupFailed)
			}
			c.lastErr = err
			c.pendingQR = ""
			c.pendingPairingCode = ""
			c.toStateLocked(StateError)
		}
	}
	c.mu.Unlock()
	att.log.Info("Connection attempt finished")
}

func (c *Coordinator) handleCredentials(att *attempt, e interfaces.CredentialsEvent) {
	if len(e.Credentials) == 0 {
		att.log.Warn("Dropping empty credentials event")
		return
	}
	att.creds = e.Credentials

	payload := e.Credentials
	if err := att.queue.Submit("save-credentials", func(ctx context.Context) error {
		return att.store.SaveCredentials(ctx, payload)
	}); err != nil {
		att.log.Error("Dropped credentials update, queue closed", "err", err)
	}
}

func (c *Coordinator) handleKeys(att *attempt, e interfaces.KeysEvent) {
	if len(e.Delta) == 0 {
		return
	}
	// Cache first for read-your-writes, then one merge per event batch on
	// the sequential queue.
	att.cache.SetBatch(e.Delta)
}

func (c *Coordinator) handleConnection(att *attempt, e interfaces.ConnectionEvent) {
	closed := false

	c.mu.Lock()
	if c.attempt != att || c.state.Terminal() {
		c.mu.Unlock()
		return
	}

	switch e.State {
	case interfaces.ConnOpen:
		// Authenticated: the pairing artifacts are spent. The store stays
		// open; credential rotation continues while connected.
		c.pendingQR = ""
		c.pendingPairingCode = ""
		c.toStateLocked(StateOpen)
		att.log.Info("Connection open, session material persisted",
			slog.String("store", c.storeLoc.Raw))

	case interfaces.ConnClosed:
		c.pendingQR = ""
		c.pendingPairingCode = ""
		if e.Err != nil {
			c.lastErr = e.Err
		}
		c.toStateLocked(StateClosed)
		closed = true
		if e.LoggedOut {
			att.log.Warn("Session logged out; persisted state cannot be resumed")
		} else {
			att.log.Info("Connection closed", "err", e.Err)
		}

	case interfaces.ConnConnecting:
		// Handshake progress; no transition.
	}

	// A QR may arrive with any update, even during a pairing attempt (as a
	// fallback). Latest artifact wins.
	if e.QR != "" && c.state != StateOpen && !c.state.Terminal() {
		c.pendingQR = e.QR
		c.pendingPairingCode = ""
		c.toStateLocked(StateQRPending)
		att.log.Info("QR payload available")
	}
	c.mu.Unlock()

	// The gateway may report the close without dropping the socket. Closing
	// the client ends the event stream, which drains the write queue and
	// releases the store in the event loop's epilogue.
	if closed {
		att.client.Close()
	}
}

// abortSetup moves a pre-client attempt to the error state. The event loop
// never ran, so teardown is handled here.
func (c *Coordinator) abortSetup(att *attempt, err error) {
	att.log.Error("Connection attempt failed during setup", "err", err)
	close(att.done)

	c.mu.Lock()
	if c.attempt == att {
		c.attempt = nil
		c.lastErr = err
		c.pendingQR = ""
		c.pendingPairingCode = ""
		c.toStateLocked(StateError)
	}
	c.mu.Unlock()
}

// notePersistFailure records a save/merge failure without closing the
// connection: the material is still valid in memory and the next mutation
// re-submits the full bucket.
func (c *Coordinator) notePersistFailure(att *attempt, kind string, err error) {
	c.mu.Lock()
	if c.attempt == att {
		c.lastErr = fmt.Errorf("%s: %w", kind, err)
	}
	c.mu.Unlock()
}

func (c *Coordinator) toStateLocked(next State) {
	if c.state == next {
		return
	}
	c.log.Debug("State transition",
		slog.String("from", string(c.state)),
		slog.String("to", string(next)))
	c.state = next
	c.m.StateTransition(string(next))
}

var _ StatusQuery = (*Coordinator)(nil)
var _ SessionStarter = (*Coordinator)(nil)
