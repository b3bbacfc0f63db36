package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/wapair/session-backend/interfaces"
	"github.com/wapair/session-backend/store"
)

// scriptedClient is a protocol client driven by the test: events are pushed
// onto its channel and pairing requests answered from canned values.
type scriptedClient struct {
	events    chan interfaces.Event
	closeOnce sync.Once

	mu        sync.Mutex
	pairCalls []string
	pairCode  string
	pairErr   error
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		events:   make(chan interfaces.Event, 16),
		pairCode: "ABCD-EFGH",
	}
}

func (c *scriptedClient) Events() <-chan interfaces.Event {
	return c.events
}

func (c *scriptedClient) RequestPairingCode(ctx context.Context, address string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairCalls = append(c.pairCalls, address)
	return c.pairCode, c.pairErr
}

func (c *scriptedClient) Close() error {
	c.closeOnce.Do(func() { close(c.events) })
	return nil
}

func (c *scriptedClient) pairAddresses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.pairCalls...)
}

func newTestCoordinator(t *testing.T, dialer interfaces.ProtocolDialer) (*Coordinator, string) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "coordinator-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	loc, err := interfaces.NewStoreLocation("file://" + tempDir)
	require.NoError(t, err)

	logger := testLogger()
	return New(Config{
		StoreFactory:  store.NewRecordStoreFactory(logger),
		StoreLocation: loc,
		Dialer:        dialer,
		Log:           logger,
	}), tempDir
}

func waitForState(t *testing.T, c *Coordinator, want State) Status {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.CurrentStatus().State == want
	}, 2*time.Second, 10*time.Millisecond, "waiting for state %q, have %q", want, c.CurrentStatus().State)
	return c.CurrentStatus()
}

func dialerFor(client interfaces.ProtocolClient) *MockProtocolDialer {
	dialer := new(MockProtocolDialer)
	dialer.On("Dial", mock.Anything, mock.Anything).Return(client, nil)
	return dialer
}

func TestCoordinator_QRFlow(t *testing.T) {
	client := newScriptedClient()
	coord, _ := newTestCoordinator(t, dialerFor(client))

	assert.Equal(t, StateIdle, coord.CurrentStatus().State)
	require.NoError(t, coord.Start(context.Background(), MethodQR, ""))

	client.events <- interfaces.ConnectionEvent{State: interfaces.ConnConnecting, QR: "qr-payload-1"}
	st := waitForState(t, coord, StateQRPending)
	assert.Equal(t, "qr-payload-1", st.PendingQR)
	assert.Empty(t, st.PendingPairingCode)

	// A refreshed QR replaces the previous one.
	client.events <- interfaces.ConnectionEvent{QR: "qr-payload-2"}
	require.Eventually(t, func() bool {
		return coord.CurrentStatus().PendingQR == "qr-payload-2"
	}, 2*time.Second, 10*time.Millisecond)

	// Scan succeeded: the artifacts are spent.
	client.events <- interfaces.ConnectionEvent{State: interfaces.ConnOpen}
	st = waitForState(t, coord, StateOpen)
	assert.Empty(t, st.PendingQR)
	assert.Empty(t, st.PendingPairingCode)
	assert.Empty(t, st.LastError)
	assert.Empty(t, client.pairAddresses())

	require.NoError(t, coord.Shutdown(context.Background()))
}

func TestCoordinator_PairingFlow(t *testing.T) {
	client := newScriptedClient()
	coord, _ := newTestCoordinator(t, dialerFor(client))

	require.NoError(t, coord.Start(context.Background(), MethodPairing, "50912345678"))

	st := waitForState(t, coord, StatePairingPending)
	assert.Equal(t, "ABCD-EFGH", st.PendingPairingCode)
	assert.Empty(t, st.PendingQR)
	assert.Equal(t, []string{"50912345678@s.whatsapp.net"}, client.pairAddresses())

	client.events <- interfaces.ConnectionEvent{State: interfaces.ConnOpen}
	st = waitForState(t, coord, StateOpen)
	assert.Empty(t, st.PendingPairingCode)

	require.NoError(t, coord.Shutdown(context.Background()))
}

func TestCoordinator_FallbackQRDuringPairing(t *testing.T) {
	client := newScriptedClient()
	coord, _ := newTestCoordinator(t, dialerFor(client))

	require.NoError(t, coord.Start(context.Background(), MethodPairing, "50912345678"))
	waitForState(t, coord, StatePairingPending)

	// The protocol layer may still offer a QR; latest artifact wins.
	client.events <- interfaces.ConnectionEvent{QR: "fallback-qr"}
	st := waitForState(t, coord, StateQRPending)
	assert.Equal(t, "fallback-qr", st.PendingQR)
	assert.Empty(t, st.PendingPairingCode)

	require.NoError(t, coord.Shutdown(context.Background()))
}

func TestCoordinator_InvalidPhoneRejectedEarly(t *testing.T) {
	dialer := new(MockProtocolDialer)
	coord, _ := newTestCoordinator(t, dialer)

	err := coord.Start(context.Background(), MethodPairing, "+509 1234")
	assert.ErrorIs(t, err, interfaces.ErrInvalidPhoneNumber)

	// Nothing was touched: no dial, state still idle.
	assert.Equal(t, StateIdle, coord.CurrentStatus().State)
	dialer.AssertNotCalled(t, "Dial", mock.Anything, mock.Anything)
}

func TestCoordinator_UnknownMethodRejected(t *testing.T) {
	coord, _ := newTestCoordinator(t, new(MockProtocolDialer))
	assert.Error(t, coord.Start(context.Background(), Method("sms"), ""))
	assert.Equal(t, StateIdle, coord.CurrentStatus().State)
}

func TestCoordinator_ConflictingAttempt(t *testing.T) {
	client := newScriptedClient()
	coord, _ := newTestCoordinator(t, dialerFor(client))

	require.NoError(t, coord.Start(context.Background(), MethodQR, ""))
	client.events <- interfaces.ConnectionEvent{State: interfaces.ConnConnecting, QR: "qr-1"}
	before := waitForState(t, coord, StateQRPending)

	err := coord.Start(context.Background(), MethodPairing, "50912345678")
	assert.ErrorIs(t, err, interfaces.ErrConflictingAttempt)

	// The active attempt is untouched.
	assert.Equal(t, before, coord.CurrentStatus())
	assert.Empty(t, client.pairAddresses())

	require.NoError(t, coord.Shutdown(context.Background()))
}

func TestCoordinator_DialFailure(t *testing.T) {
	dialer := new(MockProtocolDialer)
	dialer.On("Dial", mock.Anything, mock.Anything).Return(nil, assert.AnError)
	coord, _ := newTestCoordinator(t, dialer)

	require.NoError(t, coord.Start(context.Background(), MethodQR, ""))

	st := waitForState(t, coord, StateError)
	assert.Contains(t, st.LastError, interfaces.ErrProtocolSetupFailed.Error())
	assert.Empty(t, st.PendingQR)

	// Error is terminal for the attempt; a new one may start.
	client := newScriptedClient()
	coord.dialer = dialerFor(client)
	require.NoError(t, coord.Start(context.Background(), MethodQR, ""))
	assert.Empty(t, coord.CurrentStatus().LastError)
	require.NoError(t, coord.Shutdown(context.Background()))
}

func TestCoordinator_StoreFailure(t *testing.T) {
	client := newScriptedClient()
	coord, _ := newTestCoordinator(t, dialerFor(client))
	coord.storeLoc = interfaces.StoreLocation{Raw: "redis://nope", Scheme: "redis"}

	require.NoError(t, coord.Start(context.Background(), MethodQR, ""))

	st := waitForState(t, coord, StateError)
	assert.Contains(t, st.LastError, interfaces.ErrStoreUnavailable.Error())
}

func TestCoordinator_PersistsCredentialsAndKeys(t *testing.T) {
	client := newScriptedClient()
	coord, tempDir := newTestCoordinator(t, dialerFor(client))

	require.NoError(t, coord.Start(context.Background(), MethodQR, ""))

	creds1 := interfaces.Credentials(`{"registrationId":1}`)
	creds2 := interfaces.Credentials(`{"registrationId":1,"registered":true}`)
	client.events <- interfaces.CredentialsEvent{Credentials: creds1}
	client.events <- interfaces.KeysEvent{Delta: interfaces.KeyDelta{
		interfaces.KeyTypePreKey: {"1": []byte("pk-1")},
	}}
	client.events <- interfaces.CredentialsEvent{Credentials: creds2}
	client.events <- interfaces.ConnectionEvent{State: interfaces.ConnClosed}

	waitForState(t, coord, StateClosed)
	require.NoError(t, coord.Shutdown(context.Background()))

	// The write queue drained before the store was released; reload and check
	// the last writer won.
	records, err := store.NewFileStore(tempDir, testLogger())
	require.NoError(t, err)
	reloaded := store.NewCredentialStore(records, testLogger())
	creds, keys, err := reloaded.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, creds2, creds)
	assert.Equal(t, []byte("pk-1"), keys[interfaces.KeyTypePreKey]["1"])
}

func TestCoordinator_CloseClearsArtifactsAndAllowsRestart(t *testing.T) {
	client := newScriptedClient()
	coord, _ := newTestCoordinator(t, dialerFor(client))

	require.NoError(t, coord.Start(context.Background(), MethodQR, ""))
	client.events <- interfaces.ConnectionEvent{State: interfaces.ConnConnecting, QR: "qr-1"}
	waitForState(t, coord, StateQRPending)

	client.events <- interfaces.ConnectionEvent{State: interfaces.ConnClosed, LoggedOut: true}
	st := waitForState(t, coord, StateClosed)
	assert.Empty(t, st.PendingQR)
	assert.Empty(t, st.PendingPairingCode)

	// Closed is terminal; the coordinator accepts a fresh attempt.
	second := newScriptedClient()
	coord.dialer = dialerFor(second)
	require.NoError(t, coord.Start(context.Background(), MethodQR, ""))
	require.NoError(t, coord.Shutdown(context.Background()))
}

func TestCoordinator_CloseEventReleasesStore(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "coordinator-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	dbPath := filepath.Join(tempDir, "session.db")
	loc, err := interfaces.NewStoreLocation("bolt://" + dbPath)
	require.NoError(t, err)

	client := newScriptedClient()
	logger := testLogger()
	coord := New(Config{
		StoreFactory:  store.NewRecordStoreFactory(logger),
		StoreLocation: loc,
		Dialer:        dialerFor(client),
		Log:           logger,
	})

	require.NoError(t, coord.Start(context.Background(), MethodQR, ""))
	client.events <- interfaces.ConnectionEvent{State: interfaces.ConnConnecting, QR: "qr-1"}
	waitForState(t, coord, StateQRPending)

	// The gateway reports the close without dropping the socket: the event
	// channel stays open unless the coordinator closes the client.
	client.events <- interfaces.ConnectionEvent{State: interfaces.ConnClosed}
	waitForState(t, coord, StateClosed)

	// Teardown must run anyway; the bolt file lock is free once the store
	// handle was released.
	require.Eventually(t, func() bool {
		db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 100 * time.Millisecond})
		if err != nil {
			return false
		}
		db.Close()
		return true
	}, 2*time.Second, 50*time.Millisecond)
}

func TestCoordinator_ShutdownDuringSetup(t *testing.T) {
	client := newScriptedClient()
	dialer := new(MockProtocolDialer)
	dialer.On("Dial", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(50 * time.Millisecond) }).
		Return(client, nil)
	coord, _ := newTestCoordinator(t, dialer)

	require.NoError(t, coord.Start(context.Background(), MethodQR, ""))

	// Shutdown races the dial; the attempt must still terminate before the
	// context expires.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, coord.Shutdown(ctx))

	// The freshly dialed client was closed on the way out.
	select {
	case _, ok := <-client.events:
		assert.False(t, ok)
	default:
		t.Fatal("client left open after shutdown")
	}
}

func TestCoordinator_StreamEndWithoutCloseIsError(t *testing.T) {
	client := newScriptedClient()
	coord, _ := newTestCoordinator(t, dialerFor(client))

	require.NoError(t, coord.Start(context.Background(), MethodQR, ""))
	client.events <- interfaces.ConnectionEvent{State: interfaces.ConnConnecting, QR: "qr-1"}
	waitForState(t, coord, StateQRPending)

	// Transport drop: the channel closes with no terminal event.
	client.Close()
	st := waitForState(t, coord, StateError)
	assert.NotEmpty(t, st.LastError)
	assert.Empty(t, st.PendingQR)
}

func TestCoordinator_PairingRequestFailureEndsAttempt(t *testing.T) {
	client := newScriptedClient()
	client.pairErr = assert.AnError
	coord, _ := newTestCoordinator(t, dialerFor(client))

	require.NoError(t, coord.Start(context.Background(), MethodPairing, "50912345678"))

	st := waitForState(t, coord, StateError)
	assert.Contains(t, st.LastError, interfaces.ErrPairingRequestFailed.Error())
}

func TestCoordinator_ShutdownWithoutAttempt(t *testing.T) {
	coord, _ := newTestCoordinator(t, new(MockProtocolDialer))
	assert.NoError(t, coord.Shutdown(context.Background()))
}
