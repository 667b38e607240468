package dongle

// Gateway is the transport-facing side of one physical dongle. It wraps
// the vendor driver: every method issues one driver command and returns
// its immediate result; everything asynchronous arrives on Events().
//
// The event channel must be subscribed before Open is issued so that no
// event emitted during the open window is lost. The channel is closed when
// the adapter closes.
type Gateway interface {
	// Port is the serial port path this adapter sits on.
	Port() string

	Open(opts OpenOptions) error
	Close() error

	Connect(addr Addr, opts ConnectOptions) error
	CancelConnect() error
	Disconnect(instanceID string) error

	Authenticate(instanceID string, params *SecParams) error
	ReplySecParams(instanceID string, status uint8, params *SecParams, keyset *Keyset) error
	SecInfoReply(instanceID string, enc *EncInfo, id *IDKey, sign *SignKey) error
	ReplyAuthKey(instanceID string, keyType uint8, key []byte) error
	ReplyLescDhkey(instanceID string, dhkey []byte) error
	GetLescOobData(instanceID string, ownPublicKey []byte) (*OobData, error)
	SetLescOobData(instanceID string, own, peer *OobData) error
	NotifyKeypress(instanceID string, keypress KeypressType) error

	ComputePublicKey() ([]byte, error)
	ComputeSharedSecret(peerPublicKey []byte) ([]byte, error)

	Encrypt(instanceID string, masterID MasterID, encInfo EncInfo) error
	UpdateConnectionParams(instanceID string, params ConnectionParams) (*Device, error)
	RejectConnParams(instanceID string) error

	EnableBLE() error
	GetState() error

	Events() <-chan Event
}

// ProviderEventType discriminates adapter factory events.
type ProviderEventType string

const (
	AdapterAdded   ProviderEventType = "added"
	AdapterRemoved ProviderEventType = "removed"
	ProviderFailed ProviderEventType = "error"
)

// ProviderEvent is emitted by a Provider when the set of attached dongles
// changes.
type ProviderEvent struct {
	Type    ProviderEventType
	Adapter Gateway
	Err     error
}

// Provider enumerates attached dongles and reports attach/detach.
type Provider interface {
	// Adapters triggers an enumeration and returns the currently known
	// adapters. Attach/detach changes stream on Events.
	Adapters() ([]Gateway, error)
	Events() <-chan ProviderEvent
}
