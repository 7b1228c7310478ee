package kms

// ConnectorEventKind enumerates the upward event stream
// promises per connector.
type ConnectorEventKind int

const (
	EventConnected ConnectorEventKind = iota
	EventDisconnected
	EventRemoved
	EventUnavailable
	EventAvailable
	EventModeChanged
	EventHardwareCursor
)

func (k ConnectorEventKind) String() string {
	switch k {
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventRemoved:
		return "Removed"
	case EventUnavailable:
		return "Unavailable"
	case EventAvailable:
		return "Available"
	case EventModeChanged:
		return "ModeChanged"
	case EventHardwareCursor:
		return "HardwareCursor"
	default:
		return "Unknown"
	}
}

// ConnectorEvent is one item of a connector's event stream.
type ConnectorEvent struct {
	Kind        ConnectorEventKind
	Mode        *Mode // set for ModeChanged / initial Connected
	HasCursor   bool  // set for HardwareCursor
}

// DeviceEventKind enumerates the device-level upward event stream.
type DeviceEventKind int

const (
	EventNewDrmDevice DeviceEventKind = iota
	EventGfxApiChanged
	EventDeviceRemoved
)

type DeviceEvent struct {
	Kind DeviceEventKind
}
