package dongle

// Role is the GAP role the peer plays on its connection, seen from the
// peer's side: a peer we dialed as central reports "peripheral" and vice
// versa.
type Role string

const (
	RoleCentral    Role = "central"
	RolePeripheral Role = "peripheral"
)

// ConnectionState tracks a peer through its connection lifecycle.
type ConnectionState string

const (
	StateDiscovered    ConnectionState = "discovered"
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
	StateDisconnecting ConnectionState = "disconnecting"
	StateDisconnected  ConnectionState = "disconnected"
)

// Device is a peer as reported by the transport gateway. InstanceID is the
// transport-assigned connection handle and is only valid while the
// connection it belongs to exists; Address identifies the peer across
// connections.
type Device struct {
	Address    Addr
	InstanceID string
	Name       string
	Role       Role
	State      ConnectionState

	// Set by the transport when our own peripheral end initiated the
	// pairing that is now being answered by the peer central.
	PeriphInitiatedPairingPending bool
}

// AdapterState is the driver-reported state of the local adapter.
type AdapterState struct {
	Address     string
	Available   bool
	Scanning    bool
	Advertising bool
	Connecting  bool
}

// VersionInfo describes the connectivity firmware on the dongle.
type VersionInfo struct {
	Version         string
	SDBleAPIVersion int
	BaudRate        int
}

// Attribute is the value-bearing part of a GATT characteristic or
// descriptor, as delivered by value-changed events.
type Attribute struct {
	InstanceID  string
	Handle      uint16
	ValueHandle uint16
	Value       []byte
}
