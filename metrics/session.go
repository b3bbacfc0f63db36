package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionMetrics instruments the connection coordinator. All methods are safe
// on a nil receiver so components can run without metrics in tests.
type SessionMetrics struct {
	stateTransitions *prometheus.CounterVec
	persistOps       *prometheus.CounterVec
	pairingRequests  *prometheus.CounterVec
}

// NewSessionMetrics registers the coordinator metrics with reg.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_state_transitions_total",
			Help: "Connection attempt state transitions, by resulting state.",
		}, []string{"state"}),
		persistOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_persist_ops_total",
			Help: "Credential/key persistence operations, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		pairingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_pairing_requests_total",
			Help: "Pairing-code issuance requests, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.stateTransitions, m.persistOps, m.pairingRequests)
	return m
}

// StateTransition records entry into a coordinator state.
func (m *SessionMetrics) StateTransition(state string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(state).Inc()
}

// PersistOp records the outcome of a saveCredentials or mergeKeys call.
func (m *SessionMetrics) PersistOp(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.persistOps.WithLabelValues(kind, outcome).Inc()
}

// PairingRequest records the outcome of a pairing-code issuance.
func (m *SessionMetrics) PairingRequest(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.pairingRequests.WithLabelValues(outcome).Inc()
}
