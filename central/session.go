package central

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/blekit/dongle"
	"github.com/blekit/dongle/bond"
)

// Fixed dial parameters: active scan at 100 ms interval / 50 ms window
// with a 20 s timeout, then the tightest 7.5 ms connection interval with a
// 4 s supervision timeout.
var dialOptions = dongle.ConnectOptions{
	ScanParams: dongle.ScanParams{
		Active:   true,
		Interval: 100,
		Window:   50,
		Timeout:  20,
	},
	ConnParams: dongle.ConnectionParams{
		MinConnInterval: 7.5,
		MaxConnInterval: 7.5,
		SlaveLatency:    0,
		ConnSupTimeout:  4000,
	},
}

// Connect dials a peer. The connecting record is emitted before the
// hardware command is issued; the terminal success record is driven by the
// asynchronous device-connected event.
func (c *Central) Connect(device *dongle.Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gw, err := c.selectedLocked()
	if err != nil {
		c.emitError(err)
		return err
	}

	c.dispatch(dongle.Record{Type: dongle.RecordDeviceConnect, Device: device})

	if err := gw.Connect(device.Address, dialOptions); err != nil {
		err = errors.Wrap(err, "connect")
		c.emitError(err)
		return err
	}
	return nil
}

// Disconnect closes the connection to a peer. The terminal record is the
// asynchronous device-disconnected event.
func (c *Central) Disconnect(device *dongle.Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gw, err := c.selectedLocked()
	if err != nil {
		c.emitError(err)
		return err
	}

	if err := gw.Disconnect(device.InstanceID); err != nil {
		err = errors.Wrap(err, "disconnect")
		c.emitError(err)
		return err
	}
	return nil
}

// CancelConnect aborts an outstanding dial. The connecting device's state
// is cleared only by the explicit connect-canceled record, never
// speculatively.
func (c *Central) CancelConnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gw, err := c.selectedLocked()
	if err != nil {
		c.emitError(err)
		return err
	}

	c.dispatch(dongle.Record{Type: dongle.RecordDeviceCancelConnect})

	if err := gw.CancelConnect(); err != nil {
		err = errors.Wrap(err, "cancel connect")
		c.emitError(err)
		return err
	}

	c.dispatch(dongle.Record{Type: dongle.RecordDeviceConnectCanceled})
	return nil
}

// Detach treats the device as disconnected toward the reducer layer while
// leaving the underlying connection untouched.
func (c *Central) Detach(device *dongle.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dispatch(dongle.Record{Type: dongle.RecordDeviceDisconnected, Device: device})
}

// handleDeviceConnected finalizes a new connection. A peripheral peer with
// stored bond information is re-encrypted with the persisted keys before
// the connected record goes out; encryption failure is logged and does not
// block the connection or the service discovery hand-off.
func (c *Central) handleDeviceConnected(gw dongle.Gateway, device *dongle.Device) {
	if device.Role == dongle.RolePeripheral && c.bonds != nil {
		ks, err := c.bonds.Find(device.Address.Key())
		if err == nil {
			c.encryptFromBond(gw, device, ks)
		} else if !bond.IsNotFound(err) {
			c.log.Warnf("Bond store lookup failed: %v", err)
		}
	}

	c.dispatch(dongle.Record{Type: dongle.RecordDeviceConnected, Device: device})

	if c.discover != nil {
		// Hand-off runs outside the event loop; discovery may issue
		// commands that take the central's lock.
		go c.discover(device)
	}
}

// encryptFromBond re-establishes encryption from persisted key material.
// The LESC flag stored with our own key decides which side's long term key
// applies: LESC pairing derives a shared key held on our side, legacy
// distribution uses the peer's.
func (c *Central) encryptFromBond(gw dongle.Gateway, device *dongle.Device, ks *dongle.Keyset) {
	var key *dongle.EncKey
	if ks.Own.Enc != nil && ks.Own.Enc.Info.LESC {
		key = ks.Own.Enc
	} else {
		key = ks.Peer.Enc
	}

	if key == nil {
		c.log.Warnf("Bond information for %s has no usable long term key", device.Address)
		return
	}

	if err := gw.Encrypt(device.InstanceID, key.MasterID, key.Info); err != nil {
		c.log.Warnf("Encrypt procedure failed: %v", err)
	}
	c.log.Debugf("Encrypt, masterId: %+v", key.MasterID)
}

// handleAttributeValueChanged logs every value change but throttles the
// records; a notifying peer can easily outpace the reducer layer.
func (c *Central) handleAttributeValueChanged(attribute *dongle.Attribute, handle uint16) {
	c.log.Infof("Attribute value changed, handle: 0x%04X, value (0x): %s",
		handle, hex.EncodeToString(attribute.Value))

	if !c.throttle.allow() {
		return
	}
	c.dispatch(dongle.Record{Type: dongle.RecordAttributeValueChanged, Attribute: attribute})
}

// throttle is a leading-edge rate limiter for attribute value records.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{interval: interval}
}

func (t *throttle) allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.interval > 0 && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}
