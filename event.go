package dongle

// Severity of a driver log message.
type Severity int

const (
	SeverityTrace Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityFatal
)

// Driver status names surfaced through StatusEvent.
const (
	StatusResetPerformed   = "RESET_PERFORMED"
	StatusConnectionActive = "CONNECTION_ACTIVE"
)

// Event is a hardware/driver event delivered by a Gateway. The concrete
// types below enumerate every event the core handles.
type Event interface {
	event()
}

type ErrorEvent struct {
	Err     error
	ErrCode int
}

type WarningEvent struct {
	Message string
}

type LogMessageEvent struct {
	Severity Severity
	Message  string
}

type StateChangedEvent struct {
	State AdapterState
}

type StatusEvent struct {
	ID      int
	Name    string
	Message string
}

type DeviceDiscoveredEvent struct {
	Device *Device
}

type DeviceConnectedEvent struct {
	Device *Device
}

type DeviceDisconnectedEvent struct {
	Device *Device
	Reason string
}

type ConnectTimedOutEvent struct {
	Address Addr
}

type ScanTimedOutEvent struct{}

type AdvertiseTimedOutEvent struct{}

type SecurityRequestTimedOutEvent struct {
	Device *Device
}

type ConnParamUpdateRequestEvent struct {
	Device *Device
	Params ConnectionParams
}

type ConnParamUpdateEvent struct {
	Device *Device
	Params ConnectionParams
}

type AttMTUChangedEvent struct {
	Device *Device
	MTU    int
}

type CharacteristicValueChangedEvent struct {
	Attribute *Attribute
}

type DescriptorValueChangedEvent struct {
	Attribute *Attribute
}

type SecurityChangedEvent struct {
	Device   *Device
	SecMode  int
	SecLevel int
}

type SecurityRequestEvent struct {
	Device *Device
	Params SecParams
}

type SecParamsRequestEvent struct {
	Device     *Device
	PeerParams SecParams
}

// SecInfoRequestEvent carries the raw request parameters for fidelity with
// the driver event, but the handler does not consult them; the reply is
// derived from the bond store alone.
type SecInfoRequestEvent struct {
	Device *Device
	Params *MasterID
}

type AuthKeyRequestEvent struct {
	Device  *Device
	KeyType AuthKeyType
}

type PasskeyDisplayEvent struct {
	Device       *Device
	MatchRequest bool
	Passkey      string
}

type LescDhkeyRequestEvent struct {
	Device        *Device
	PeerPublicKey []byte
	OobRequired   bool
}

type KeypressEvent struct {
	Device   *Device
	Keypress KeypressType
}

type AuthStatusEvent struct {
	Device *Device
	Params AuthStatusParams
}

func (ErrorEvent) event()                      {}
func (WarningEvent) event()                    {}
func (LogMessageEvent) event()                 {}
func (StateChangedEvent) event()               {}
func (StatusEvent) event()                     {}
func (DeviceDiscoveredEvent) event()           {}
func (DeviceConnectedEvent) event()            {}
func (DeviceDisconnectedEvent) event()         {}
func (ConnectTimedOutEvent) event()            {}
func (ScanTimedOutEvent) event()               {}
func (AdvertiseTimedOutEvent) event()          {}
func (SecurityRequestTimedOutEvent) event()    {}
func (ConnParamUpdateRequestEvent) event()     {}
func (ConnParamUpdateEvent) event()            {}
func (AttMTUChangedEvent) event()              {}
func (CharacteristicValueChangedEvent) event() {}
func (DescriptorValueChangedEvent) event()     {}
func (SecurityChangedEvent) event()            {}
func (SecurityRequestEvent) event()            {}
func (SecParamsRequestEvent) event()           {}
func (SecInfoRequestEvent) event()             {}
func (AuthKeyRequestEvent) event()             {}
func (PasskeyDisplayEvent) event()             {}
func (LescDhkeyRequestEvent) event()           {}
func (KeypressEvent) event()                   {}
func (AuthStatusEvent) event()                 {}

// EventDevice returns the peer a device-scoped event belongs to, or nil
// for adapter-scoped events. Used to filter ignored addresses in one place.
func EventDevice(ev Event) *Device {
	switch e := ev.(type) {
	case DeviceDiscoveredEvent:
		return e.Device
	case DeviceConnectedEvent:
		return e.Device
	case DeviceDisconnectedEvent:
		return e.Device
	case SecurityRequestTimedOutEvent:
		return e.Device
	case ConnParamUpdateRequestEvent:
		return e.Device
	case ConnParamUpdateEvent:
		return e.Device
	case AttMTUChangedEvent:
		return e.Device
	case SecurityChangedEvent:
		return e.Device
	case SecurityRequestEvent:
		return e.Device
	case SecParamsRequestEvent:
		return e.Device
	case SecInfoRequestEvent:
		return e.Device
	case AuthKeyRequestEvent:
		return e.Device
	case PasskeyDisplayEvent:
		return e.Device
	case LescDhkeyRequestEvent:
		return e.Device
	case KeypressEvent:
		return e.Device
	case AuthStatusEvent:
		return e.Device
	}
	return nil
}
