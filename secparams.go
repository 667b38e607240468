package dongle

// IOCapability is the pairing IO capability advertised during the SMP
// parameter exchange.
type IOCapability string

const (
	IOCapDisplayOnly     IOCapability = "displayOnly"
	IOCapDisplayYesNo    IOCapability = "displayYesNo"
	IOCapKeyboardOnly    IOCapability = "keyboardOnly"
	IOCapNone            IOCapability = "none"
	IOCapKeyboardDisplay IOCapability = "keyboardDisplay"
)

// KeyDist is a key distribution request, one per direction.
type KeyDist struct {
	Enc  bool `json:"enc"`
	ID   bool `json:"id"`
	Sign bool `json:"sign"`
	Link bool `json:"link"`
}

// SecParams is the GAP security parameter set exchanged during pairing.
type SecParams struct {
	Bond       bool         `json:"bond"`
	MITM       bool         `json:"mitm"`
	LESC       bool         `json:"lesc"`
	Keypress   bool         `json:"keypress"`
	IOCaps     IOCapability `json:"ioCaps"`
	OOB        bool         `json:"oob"`
	MinKeySize int          `json:"minKeySize"`
	MaxKeySize int          `json:"maxKeySize"`
	KDistOwn   KeyDist      `json:"kdistOwn"`
	KDistPeer  KeyDist      `json:"kdistPeer"`
}

// Requirements returns only the requirement bits of the parameter set,
// the part surfaced to the user when the peer asks to pair.
func (p SecParams) Requirements() SecParams {
	return SecParams{
		Bond:     p.Bond,
		MITM:     p.MITM,
		LESC:     p.LESC,
		Keypress: p.Keypress,
	}
}

// DefaultSecParams is the parameter set used when no explicit configuration
// has been supplied.
func DefaultSecParams() *SecParams {
	return &SecParams{
		IOCaps:     IOCapKeyboardDisplay,
		MinKeySize: 7,
		MaxKeySize: 16,
		KDistOwn:   KeyDist{},
		KDistPeer:  KeyDist{Enc: true, ID: true},
	}
}

// MasterID identifies a long term key during encryption establishment.
type MasterID struct {
	EDiv uint16 `json:"ediv"`
	Rand []byte `json:"rand"`
}

// EncInfo is the long term key and its properties.
type EncInfo struct {
	LTK  []byte `json:"ltk"`
	LESC bool   `json:"lesc"`
	Auth bool   `json:"auth"`
}

// EncKey pairs a long term key with the master identification needed to
// look it up.
type EncKey struct {
	Info     EncInfo  `json:"encInfo"`
	MasterID MasterID `json:"masterId"`
}

// IDKey is the identity resolving key and the identity address it resolves.
type IDKey struct {
	IRK      []byte      `json:"irk"`
	Address  string      `json:"address"`
	AddrType AddressType `json:"addrType"`
}

// SignKey is the connection signature resolving key.
type SignKey struct {
	CSRK []byte `json:"csrk"`
}

// KeyBundle holds one side's distributed keys. Any field may be nil when
// the corresponding key was not distributed.
type KeyBundle struct {
	Enc       *EncKey  `json:"encKey,omitempty"`
	ID        *IDKey   `json:"idKey,omitempty"`
	Sign      *SignKey `json:"signKey,omitempty"`
	PublicKey []byte   `json:"pk,omitempty"`
}

// Keyset is the full key material of one pairing, own and peer side. A
// fresh Keyset is built for every pairing attempt; it is never shared
// between handshakes.
type Keyset struct {
	Own  KeyBundle `json:"keysOwn"`
	Peer KeyBundle `json:"keysPeer"`
}

// Complete reports whether the own-side material needed for bond storage
// is all present.
func (k *Keyset) Complete() bool {
	return k != nil && k.Own.PublicKey != nil && k.Own.Enc != nil && k.Own.ID != nil
}

// AuthStatusCode is the GAP authentication status reported when a pairing
// procedure terminates. Zero is success.
type AuthStatusCode uint8

// SecStatusPairingNotSupported is the security status sent in a parameter
// reply to refuse a pairing as central.
const SecStatusPairingNotSupported uint8 = 0x85

// AuthStatusParams is the payload of the auth status event.
type AuthStatusParams struct {
	Status     AuthStatusCode
	StatusName string
	Bonded     bool
	Keyset     *Keyset
}

// AuthKeyType names the key requested by an auth key request.
type AuthKeyType string

const (
	AuthKeyTypeNone    AuthKeyType = "BLE_GAP_AUTH_KEY_TYPE_NONE"
	AuthKeyTypePasskey AuthKeyType = "BLE_GAP_AUTH_KEY_TYPE_PASSKEY"
	AuthKeyTypeOOB     AuthKeyType = "BLE_GAP_AUTH_KEY_TYPE_OOB"
)

// Value maps the key type onto its wire value. Unknown types degrade to
// zero so that none/default keys remain sendable.
func (t AuthKeyType) Value() uint8 {
	switch t {
	case AuthKeyTypePasskey:
		return 1
	case AuthKeyTypeOOB:
		return 2
	default:
		return 0
	}
}

// KeypressType is a passkey entry keypress notification type.
type KeypressType string

const (
	KeypressStart    KeypressType = "BLE_GAP_KP_NOT_TYPE_PASSKEY_START"
	KeypressDigitIn  KeypressType = "BLE_GAP_KP_NOT_TYPE_PASSKEY_DIGIT_IN"
	KeypressDigitOut KeypressType = "BLE_GAP_KP_NOT_TYPE_PASSKEY_DIGIT_OUT"
	KeypressClear    KeypressType = "BLE_GAP_KP_NOT_TYPE_PASSKEY_CLEAR"
	KeypressEnd      KeypressType = "BLE_GAP_KP_NOT_TYPE_PASSKEY_END"
)

// Known reports whether t is one of the defined keypress types.
func (t KeypressType) Known() bool {
	switch t {
	case KeypressStart, KeypressDigitIn, KeypressDigitOut, KeypressClear, KeypressEnd:
		return true
	}
	return false
}

// OobData is LE Secure Connections out-of-band data for one side.
type OobData struct {
	Addr    *Addr  `json:"addr,omitempty"`
	Random  []byte `json:"r"`
	Confirm []byte `json:"c"`
}
