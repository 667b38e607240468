package dongle

// Status is the terminal/progress state attached to command records.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusRejected:
		return "rejected"
	}
	return "unknown"
}

// RecordType is the stable discriminator of a transition record.
type RecordType string

const (
	RecordAdapterOpen           RecordType = "adapterOpen"
	RecordAdapterOpened         RecordType = "adapterOpened"
	RecordAdapterClosed         RecordType = "adapterClosed"
	RecordAdapterAdded          RecordType = "adapterAdded"
	RecordAdapterRemoved        RecordType = "adapterRemoved"
	RecordAdapterDeselected     RecordType = "adapterDeselected"
	RecordAdapterStateChanged   RecordType = "adapterStateChanged"
	RecordAdapterResetPerformed RecordType = "adapterResetPerformed"
	RecordScanTimedOut          RecordType = "scanTimedOut"
	RecordAdvertiseTimedOut     RecordType = "advertiseTimedOut"

	RecordDeviceDiscovered       RecordType = "deviceDiscovered"
	RecordDeviceConnect          RecordType = "deviceConnect"
	RecordDeviceConnected        RecordType = "deviceConnected"
	RecordDeviceConnectTimedOut  RecordType = "deviceConnectTimedOut"
	RecordDeviceDisconnected     RecordType = "deviceDisconnected"
	RecordDeviceCancelConnect    RecordType = "deviceCancelConnect"
	RecordDeviceConnectCanceled  RecordType = "deviceConnectCanceled"
	RecordDeviceSecurityChanged  RecordType = "deviceSecurityChanged"
	RecordDeviceEventsDisabled   RecordType = "deviceEventsDisabled"
	RecordDeviceEventsEnabled    RecordType = "deviceEventsEnabled"
	RecordSecurityRequestTimeout RecordType = "securityRequestTimedOut"

	RecordConnParamUpdateRequest  RecordType = "connParamUpdateRequest"
	RecordConnParamUpdateStatus   RecordType = "connParamUpdateStatus"
	RecordConnParamsUpdated       RecordType = "connParamsUpdated"
	RecordAutoConnUpdateToggled   RecordType = "autoConnUpdateToggled"

	RecordPairingStatus    RecordType = "pairingStatus"
	RecordSecurityRequest  RecordType = "securityRequest"
	RecordPasskeyDisplay   RecordType = "passkeyDisplay"
	RecordAuthKeyRequest   RecordType = "authKeyRequest"
	RecordLescOobRequest   RecordType = "lescOobRequest"
	RecordAuthKeyStatus    RecordType = "authKeyStatus"
	RecordKeypressReceived RecordType = "keypressReceived"
	RecordKeypressSent     RecordType = "keypressSent"
	RecordAuthError        RecordType = "authErrorOccurred"
	RecordAuthSuccess      RecordType = "authSuccessOccurred"
	RecordBondInfoStored   RecordType = "bondInfoStored"

	RecordOwnParamsStored  RecordType = "securityOwnParamsStored"
	RecordPeerParamsStored RecordType = "securityPeerParamsStored"

	RecordAttributeValueChanged RecordType = "attributeValueChanged"
	RecordErrorOccurred         RecordType = "errorOccurred"
)

// Record is one transition record emitted toward the reducer layer. Type
// discriminates; all other fields are payload and only the ones named for
// the record type are set. ID is the UI event id a command belongs to, or
// -1 when the transition was not user-initiated.
type Record struct {
	Type RecordType

	AdapterPort string
	VersionInfo *VersionInfo
	State       *AdapterState

	Device  *Device
	Address string
	Reason  string

	ID     int
	Status Status
	Err    error

	ConnParams *ConnectionParams
	SecParams  *SecParams
	OwnParams  *SecParams
	PeerParams *SecParams

	KeyType         AuthKeyType
	SendKeypress    bool
	ReceiveKeypress bool
	MatchRequest    bool
	Passkey         string
	Keypress        KeypressType
	OobData         *OobData

	Keyset *Keyset

	Attribute *Attribute
}

// DispatchFunc consumes transition records. Implementations must not
// block; the core calls it from its event loop.
type DispatchFunc func(Record)
