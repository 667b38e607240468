package central

import (
	"fmt"
	"strings"

	"github.com/blekit/dongle"
)

// route drains one adapter's event stream. It is started before the open
// command is issued and exits when the gateway closes its channel. gen
// pins the events to one open/close cycle; anything arriving after the
// adapter was closed or replaced is dropped.
func (c *Central) route(gw dongle.Gateway, gen uint64) {
	for ev := range gw.Events() {
		c.handleEvent(gw, gen, ev)
	}
}

func (c *Central) handleEvent(gw dongle.Gateway, gen uint64, ev dongle.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}

	if d := dongle.EventDevice(ev); d != nil {
		if _, ok := c.ignored[d.Address.String()]; ok {
			return
		}
	}

	switch e := ev.(type) {
	case dongle.ErrorEvent:
		msg := e.Err.Error()
		if e.ErrCode != 0 {
			msg = fmt.Sprintf("%s (%d)", msg, e.ErrCode)
		}
		c.emitError(fmt.Errorf("%s", msg))

	case dongle.WarningEvent:
		if strings.Contains(e.Message, "not supported") {
			c.log.Warn(e.Message)
		} else {
			c.log.Info(e.Message)
		}

	case dongle.LogMessageEvent:
		c.logDriverMessage(e.Severity, e.Message)

	case dongle.StateChangedEvent:
		state := e.State
		c.dispatch(dongle.Record{Type: dongle.RecordAdapterStateChanged, AdapterPort: gw.Port(), State: &state})

	case dongle.StatusEvent:
		c.handleStatus(gw, e)

	case dongle.DeviceDiscoveredEvent:
		c.dispatch(dongle.Record{Type: dongle.RecordDeviceDiscovered, Device: e.Device})

	case dongle.DeviceConnectedEvent:
		c.handleDeviceConnected(gw, e.Device)

	case dongle.DeviceDisconnectedEvent:
		c.dispatch(dongle.Record{Type: dongle.RecordDeviceDisconnected, Device: e.Device, Reason: e.Reason})

	case dongle.ConnectTimedOutEvent:
		c.dispatch(dongle.Record{Type: dongle.RecordDeviceConnectTimedOut, Address: e.Address.String()})

	case dongle.ScanTimedOutEvent:
		c.dispatch(dongle.Record{Type: dongle.RecordScanTimedOut, AdapterPort: gw.Port()})

	case dongle.AdvertiseTimedOutEvent:
		c.dispatch(dongle.Record{Type: dongle.RecordAdvertiseTimedOut, AdapterPort: gw.Port()})

	case dongle.SecurityRequestTimedOutEvent:
		c.dispatch(dongle.Record{Type: dongle.RecordSecurityRequestTimeout, Device: e.Device})

	case dongle.ConnParamUpdateRequestEvent:
		c.handleConnParamUpdateRequest(gw, e.Device, e.Params)

	case dongle.ConnParamUpdateEvent:
		c.handleConnParamUpdate(e.Device, e.Params)

	case dongle.AttMTUChangedEvent:
		c.log.Infof("ATT MTU changed, new value is %d", e.MTU)

	case dongle.CharacteristicValueChangedEvent:
		c.handleAttributeValueChanged(e.Attribute, e.Attribute.ValueHandle)

	case dongle.DescriptorValueChangedEvent:
		c.handleAttributeValueChanged(e.Attribute, e.Attribute.Handle)

	case dongle.SecurityChangedEvent:
		c.dispatch(dongle.Record{Type: dongle.RecordDeviceSecurityChanged, Device: e.Device})

	case dongle.SecurityRequestEvent:
		c.handleSecurityRequest(gw, e.Device, e.Params)

	case dongle.SecParamsRequestEvent:
		c.handleSecParamsRequest(gw, e.Device, e.PeerParams)

	case dongle.SecInfoRequestEvent:
		// e.Params is deliberately unused; the reply is driven by the
		// bond store alone.
		c.handleSecInfoRequest(gw, e.Device)

	case dongle.AuthKeyRequestEvent:
		c.handleAuthKeyRequest(e.Device, e.KeyType)

	case dongle.PasskeyDisplayEvent:
		c.handlePasskeyDisplay(e.Device, e.MatchRequest, e.Passkey)

	case dongle.LescDhkeyRequestEvent:
		c.handleLescDhkeyRequest(gw, e.Device, e.PeerPublicKey, e.OobRequired)

	case dongle.KeypressEvent:
		c.dispatch(dongle.Record{Type: dongle.RecordKeypressReceived, Device: e.Device, Keypress: e.Keypress})

	case dongle.AuthStatusEvent:
		c.handleAuthStatus(e.Device, e.Params)

	default:
		c.log.Warnf("unhandled gateway event %T", ev)
	}
}

func (c *Central) logDriverMessage(severity dongle.Severity, message string) {
	switch severity {
	case dongle.SeverityTrace, dongle.SeverityDebug:
		c.log.Debug(message)
	case dongle.SeverityInfo:
		c.log.Info(message)
	case dongle.SeverityWarning:
		c.log.Warn(message)
	case dongle.SeverityError, dongle.SeverityFatal:
		c.log.Error(message)
	default:
		c.log.Warnf("Log message of unknown severity %d received: %s", severity, message)
	}
}
