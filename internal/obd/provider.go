package obd

// Provider is the interface all engine-data backends implement. ISO9141
// is the real K-line implementation; Demo generates simulated data so
// the dashboard can run without a vehicle.
type Provider interface {
	// Name returns the human-readable name of this backend.
	Name() string
	// Connect establishes the diagnostic session. For the K-line this
	// is the full slow-init handshake.
	Connect() error
	// Close shuts down the connection.
	Close() error
	// State returns the current session state.
	State() SessionState
	// Poll runs one full read cycle and returns the decoded snapshot.
	Poll() (*Snapshot, error)
}
