package central

import (
	"github.com/pkg/errors"

	"github.com/blekit/dongle"
)

// handleConnParamUpdateRequest answers a peripheral-initiated connection
// parameter update request. Under the auto-accept policy the request is
// reissued with the maximum interval collapsed onto the minimum, forcing
// the tightest interval the peer allows; otherwise the decision goes to
// the user.
func (c *Central) handleConnParamUpdateRequest(gw dongle.Gateway, device *dongle.Device, requested dongle.ConnectionParams) {
	if c.autoConnUpdate {
		params := requested
		params.MaxConnInterval = requested.MinConnInterval
		c.updateConnParamsLocked(gw, -1, device, params)
		return
	}

	p := requested
	c.dispatch(dongle.Record{Type: dongle.RecordConnParamUpdateRequest, Device: device, ConnParams: &p})
}

// handleConnParamUpdate records a hardware-completed negotiation. When we
// are the central and auto-accept is off an informational decision record
// is surfaced as well.
func (c *Central) handleConnParamUpdate(device *dongle.Device, params dongle.ConnectionParams) {
	if device.Role == dongle.RoleCentral && !c.autoConnUpdate {
		p := params
		c.dispatch(dongle.Record{Type: dongle.RecordConnParamUpdateRequest, Device: device, ConnParams: &p})
	}

	c.dispatch(dongle.Record{Type: dongle.RecordConnParamUpdateStatus, ID: -1, Device: device, Status: dongle.StatusSuccess})
	c.dispatch(dongle.Record{Type: dongle.RecordConnParamsUpdated, Device: device})
}

// UpdateConnectionParams issues a connection parameter update for a
// connected device.
func (c *Central) UpdateConnectionParams(id int, device *dongle.Device, params dongle.ConnectionParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gw, err := c.selectedLocked()
	if err != nil {
		c.emitError(err)
		return err
	}
	return c.updateConnParamsLocked(gw, id, device, params)
}

func (c *Central) updateConnParamsLocked(gw dongle.Gateway, id int, device *dongle.Device, params dongle.ConnectionParams) error {
	updated, err := gw.UpdateConnectionParams(device.InstanceID, params)
	if err != nil {
		err = errors.Wrap(err, "update connection parameters")
		c.dispatch(dongle.Record{Type: dongle.RecordConnParamUpdateStatus, ID: id, Device: device, Status: dongle.StatusError})
		c.emitError(err)
		return err
	}

	c.dispatch(dongle.Record{Type: dongle.RecordConnParamUpdateStatus, ID: id, Device: updated, Status: dongle.StatusSuccess})
	return nil
}

// RejectConnParams refuses a pending connection parameter update request.
func (c *Central) RejectConnParams(id int, device *dongle.Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gw, err := c.selectedLocked()
	if err != nil {
		c.emitError(err)
		return err
	}

	if err := gw.RejectConnParams(device.InstanceID); err != nil {
		err = errors.Wrap(err, "reject connection parameters")
		c.dispatch(dongle.Record{Type: dongle.RecordConnParamUpdateStatus, ID: id, Device: device, Status: dongle.StatusError})
		c.emitError(err)
		return err
	}

	c.dispatch(dongle.Record{Type: dongle.RecordConnParamUpdateStatus, ID: id, Device: device, Status: dongle.StatusRejected})
	return nil
}
