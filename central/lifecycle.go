package central

import (
	"strings"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"

	"github.com/blekit/dongle"
)

// WatchAdapters registers for attach/detach events on the configured
// provider and triggers an initial enumeration. Removal of the selected
// adapter emits a deselect record before the removed record; the adapter
// is not closed, the hardware is already gone.
func (c *Central) WatchAdapters() error {
	c.mu.Lock()
	provider := c.provider
	c.mu.Unlock()

	if provider == nil {
		return errors.New("no adapter provider configured")
	}

	go func() {
		for ev := range provider.Events() {
			c.handleProviderEvent(ev)
		}
	}()

	adapters, err := provider.Adapters()
	if err != nil {
		c.emitError(errors.Wrap(err, "error when processing adapters"))
		return err
	}

	c.mu.Lock()
	c.adapters = adapters
	c.mu.Unlock()
	return nil
}

func (c *Central) handleProviderEvent(ev dongle.ProviderEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case dongle.AdapterAdded:
		c.adapters = append(c.adapters, ev.Adapter)
		c.dispatch(dongle.Record{Type: dongle.RecordAdapterAdded, AdapterPort: ev.Adapter.Port()})

	case dongle.AdapterRemoved:
		kept := c.adapters[:0]
		for _, a := range c.adapters {
			if a != ev.Adapter {
				kept = append(kept, a)
			}
		}
		c.adapters = kept

		if c.selected != nil && c.selected.Port() == ev.Adapter.Port() {
			c.dispatch(dongle.Record{Type: dongle.RecordAdapterDeselected, AdapterPort: ev.Adapter.Port()})
			c.generation++
			c.selected = nil
		}
		c.dispatch(dongle.Record{Type: dongle.RecordAdapterRemoved, AdapterPort: ev.Adapter.Port()})

	case dongle.ProviderFailed:
		c.log.Errorf("Error when processing adapters: %v", ev.Err)
	}
}

// Open selects and opens the adapter on the given serial port. If another
// adapter is already open it is closed to completion first; two adapters
// are never active at once. Event routing is installed before the open
// command is issued so nothing emitted during the open window is lost.
//
// On open failure the state stays closed and the asynchronous error event
// is left to inform the user; no duplicate error record is emitted.
func (c *Central) Open(port string, version dongle.VersionInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected != nil {
		c.closeSelectedLocked()
	}

	gw := c.adapterForPortLocked(port)
	if gw == nil {
		return errors.Errorf("not able to find %s", port)
	}

	if err := c.probe(gw.Port()); err != nil {
		c.log.Debugf("Serial port error: %v", err)
		return errors.New("could not open the port, power cycle the device and try again")
	}

	c.log.Infof("Connectivity firmware version: %s. SoftDevice API version: %d. Baud rate: %d.",
		version.Version, version.SDBleAPIVersion, version.BaudRate)

	c.dispatch(dongle.Record{Type: dongle.RecordAdapterOpen, AdapterPort: gw.Port()})

	c.generation++
	go c.route(gw, c.generation)

	// Opening right after the probe's open/close cycle fails occasionally;
	// give the port and devkit time to settle first.
	time.Sleep(c.settleDelay)

	opts := dongle.OpenOptions{
		BaudRate:    version.BaudRate,
		Parity:      "none",
		FlowControl: "none",
		LogLevel:    "debug",
		EnableBLE:   false,
	}
	if err := gw.Open(opts); err != nil {
		c.log.Errorf("%v", err)
		return err
	}

	c.selected = gw
	c.versionInfo = &version
	c.dispatch(dongle.Record{
		Type:        dongle.RecordAdapterOpened,
		AdapterPort: gw.Port(),
		VersionInfo: &version,
	})
	return nil
}

// Close closes the selected adapter. With no adapter selected it is a
// no-op: no hardware command, no record.
func (c *Central) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected == nil {
		return nil
	}
	c.closeSelectedLocked()
	return nil
}

// closeSelectedLocked closes the selected adapter best-effort and always
// leaves the selection cleared. Callers hold c.mu.
func (c *Central) closeSelectedLocked() {
	gw := c.selected
	if gw == nil {
		return
	}

	// Stale events from the closing adapter must not reach the handlers.
	c.generation++
	c.selected = nil
	c.versionInfo = nil

	if err := gw.Close(); err != nil {
		c.emitError(errors.Wrap(err, "close adapter"))
		return
	}
	c.dispatch(dongle.Record{Type: dongle.RecordAdapterClosed, AdapterPort: gw.Port()})
}

// adapterForPortLocked resolves a port path against the known adapters.
// On macOS the enumerator reports /dev/tty.* while the adapter itself
// sits on /dev/cu.*; both name the same device.
func (c *Central) adapterForPortLocked(port string) dongle.Gateway {
	alias := strings.Replace(port, "tty", "cu", 1)
	for _, a := range c.adapters {
		if a.Port() == port || a.Port() == alias {
			return a
		}
	}
	return nil
}

// probePort opens and closes the serial port without touching the BLE
// stack, verifying the device is actually reachable before the real open.
func probePort(port string) error {
	p, err := serial.Open(serial.OpenOptions{
		PortName:        port,
		BaudRate:        115200,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return errors.Wrap(err, "probe open")
	}
	return errors.Wrap(p.Close(), "probe close")
}

// handleStatus reacts to driver status callbacks: a completed reset is
// surfaced as a record, CONNECTION_ACTIVE triggers the BLE stack enable
// sequence, anything else is logged as unexpected.
func (c *Central) handleStatus(gw dongle.Gateway, ev dongle.StatusEvent) {
	switch ev.Name {
	case dongle.StatusResetPerformed:
		c.dispatch(dongle.Record{Type: dongle.RecordAdapterResetPerformed, AdapterPort: gw.Port()})

	case dongle.StatusConnectionActive:
		c.enableStack(gw)

	default:
		c.log.Errorf("Received status with code %d %s, message: '%s'", ev.ID, ev.Name, ev.Message)
	}
}

// enableStack enables the BLE stack and then requests the current adapter
// state; subsequent state-changed events arrive asynchronously. Neither
// step is retried on failure.
func (c *Central) enableStack(gw dongle.Gateway) {
	if err := gw.EnableBLE(); err != nil {
		c.emitError(errors.Wrap(err, "enable BLE stack"))
		return
	}
	if err := gw.GetState(); err != nil {
		c.emitError(errors.Wrap(err, "get adapter state"))
		return
	}
	c.log.Debug("SoftDevice BLE stack enabled.")
}
