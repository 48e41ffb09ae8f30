package tclient

// ConnectState enumerates the lifecycle AccessCtrl drives a connection
// through. A failed connect or auth moves to Disconnected and a lost
// heartbeat to Offline; from either, a retry returns to Connecting.
// Disconnect returns any state to Idle.
type ConnectState int

const (
	Idle ConnectState = iota
	Connecting
	Authenticating
	Connected
	Offline
	Disconnected
)

func (s ConnectState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Connected:
		return "connected"
	case Offline:
		return "offline"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
