package conn

// State is the push channel lifecycle phase. Closed is terminal;
// everything else is revisitable.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)
