package central

import (
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/blekit/dongle"
	"github.com/blekit/dongle/bond"
)

// handleSecurityRequest processes a security request received by our
// peripheral end. Under the auto-accept policy the adapter defaults become
// the stored own parameters and authentication starts immediately;
// otherwise the decision is surfaced to the user.
func (c *Central) handleSecurityRequest(gw dongle.Gateway, device *dongle.Device, params dongle.SecParams) {
	defaults := c.defaultSecParams
	if defaults == nil {
		c.log.Warn("Security request received but security state is undefined")
		return
	}

	if c.autoAcceptPairing {
		c.storeOwnParams(device, defaults)
		if err := gw.Authenticate(device.InstanceID, defaults); err != nil {
			c.emitError(errors.Wrap(err, "authenticate"))
			c.dispatch(dongle.Record{Type: dongle.RecordAuthError, Device: device})
		}
		return
	}

	p := params
	c.dispatch(dongle.Record{Type: dongle.RecordSecurityRequest, Device: device, SecParams: &p})
}

// handleSecParamsRequest processes the peer's security parameter set. The
// own public key for this session is computed here and seeds a fresh
// keyset; the reply path branches on role.
func (c *Central) handleSecParamsRequest(gw dongle.Gateway, device *dongle.Device, peerParams dongle.SecParams) {
	ctx := c.ensureSecurityContext(device.Address)
	pp := peerParams
	ctx.peerParams = &pp
	c.dispatch(dongle.Record{Type: dongle.RecordPeerParamsStored, Device: device, PeerParams: &pp})

	pk, err := gw.ComputePublicKey()
	if err != nil {
		c.log.Warnf("Error when computing public key: %v", err)
		c.dispatch(dongle.Record{Type: dongle.RecordAuthError, Device: device})
		return
	}
	ctx.keyset = &dongle.Keyset{Own: dongle.KeyBundle{PublicKey: pk}}

	switch device.Role {
	case dongle.RoleCentral:
		if device.PeriphInitiatedPairingPending {
			// Pairing was initiated by our own peripheral end; reply
			// directly without re-prompting the user.
			ownParams := ctx.ownParams
			if ownParams == nil {
				c.log.Info("Could not retrieve stored security params, using default params")
				ownParams = c.defaultSecParams
			}

			if err := gw.ReplySecParams(device.InstanceID, 0, ownParams, ctx.keyset); err != nil {
				c.log.Warnf("Error when calling replySecParams: %v", err)
				c.dispatch(dongle.Record{Type: dongle.RecordAuthError, Device: device})
			}
			c.log.Debugf("ReplySecParams, secParams: %+v", ownParams)
			c.storeOwnParams(device, ownParams)
			return
		}

		if c.autoAcceptPairing {
			c.acceptPairingLocked(-1, device, c.defaultSecParams)
			return
		}

		req := pp.Requirements()
		c.dispatch(dongle.Record{Type: dongle.RecordSecurityRequest, Device: device, SecParams: &req})

	case dongle.RolePeripheral:
		// The peripheral side never supplies local parameter overrides at
		// this phase.
		if err := gw.ReplySecParams(device.InstanceID, 0, nil, ctx.keyset); err != nil {
			c.log.Warnf("Error when calling replySecParams: %v", err)
			c.dispatch(dongle.Record{Type: dongle.RecordAuthError, Device: device})
		}
		c.log.Debug("ReplySecParams, secParams: null")

	default:
		c.log.Errorf("sec params request for device with unknown role %q", device.Role)
	}
}

// handleSecInfoRequest answers a peer's encryption information request
// from the bond store. A missing bond is the expected first-pairing path
// and replies with null info.
func (c *Central) handleSecInfoRequest(gw dongle.Gateway, device *dongle.Device) {
	var encInfo *dongle.EncInfo
	var idInfo *dongle.IDKey

	if c.bonds != nil {
		ks, err := c.bonds.Find(device.Address.Key())
		switch {
		case err == nil:
			if ks.Own.Enc != nil {
				info := ks.Own.Enc.Info
				encInfo = &info
			}
			idInfo = ks.Own.ID
		case bond.IsNotFound(err):
			c.log.Infof("Peer requested encryption, but no keys are found for address %s", device.Address)
		default:
			c.log.Warnf("Bond store lookup failed: %v", err)
		}
	} else {
		c.log.Infof("Peer requested encryption, but no keys are found for address %s", device.Address)
	}

	if err := gw.SecInfoReply(device.InstanceID, encInfo, idInfo, nil); err != nil {
		c.log.Warnf("Error when calling secInfoReply: %v", err)
		c.dispatch(dongle.Record{Type: dongle.RecordAuthError, Device: device})
	}
	c.log.Debugf("SecInfoReply, %+v, %+v", encInfo, idInfo)
}

// mutualKeypress reports whether keypress notifications were requested by
// both sides of the stored parameter exchange. Missing state fails closed.
func (c *Central) mutualKeypress(addr dongle.Addr) bool {
	ctx := c.securityContextFor(addr)
	if ctx == nil || ctx.ownParams == nil || ctx.peerParams == nil {
		return false
	}
	return ctx.ownParams.Keypress && ctx.peerParams.Keypress
}

func (c *Central) handleAuthKeyRequest(device *dongle.Device, keyType dongle.AuthKeyType) {
	c.dispatch(dongle.Record{
		Type:         dongle.RecordAuthKeyRequest,
		Device:       device,
		KeyType:      keyType,
		SendKeypress: c.mutualKeypress(device.Address),
	})
}

func (c *Central) handlePasskeyDisplay(device *dongle.Device, matchRequest bool, passkey string) {
	c.dispatch(dongle.Record{
		Type:            dongle.RecordPasskeyDisplay,
		Device:          device,
		MatchRequest:    matchRequest,
		Passkey:         passkey,
		ReceiveKeypress: c.mutualKeypress(device.Address),
	})
}

// handleLescDhkeyRequest replies with the DH shared secret and computes
// local OOB data. The two steps are independent: an OOB failure does not
// suppress the DH reply and vice versa.
func (c *Central) handleLescDhkeyRequest(gw dongle.Gateway, device *dongle.Device, peerPublicKey []byte, oobRequired bool) {
	dhkey, err := gw.ComputeSharedSecret(peerPublicKey)
	if err != nil {
		c.log.Warnf("Error when computing shared secret: %v", err)
		c.dispatch(dongle.Record{Type: dongle.RecordAuthError, Device: device})
	} else if err := gw.ReplyLescDhkey(device.InstanceID, dhkey); err != nil {
		c.log.Warn("Error when sending LESC DH key")
		c.dispatch(dongle.Record{Type: dongle.RecordAuthError, Device: device})
	}

	pk, err := gw.ComputePublicKey()
	if err != nil {
		c.log.Warnf("Error when computing public key: %v", err)
		c.dispatch(dongle.Record{Type: dongle.RecordAuthError, Device: device})
		return
	}

	ownOob, err := gw.GetLescOobData(device.InstanceID, pk)
	if err != nil {
		c.log.Warnf("Error in getLescOobData: %v", err)
		c.dispatch(dongle.Record{Type: dongle.RecordAuthError, Device: device})
		return
	}

	c.log.Debugf("Own OOB data: %+v", ownOob)

	if oobRequired {
		c.dispatch(dongle.Record{Type: dongle.RecordLescOobRequest, Device: device, OobData: ownOob})
	}
}

// handleAuthStatus terminates the handshake. Key material is persisted
// only for a bonded success with a complete own-side keyset; everything
// else was a transient session.
func (c *Central) handleAuthStatus(device *dongle.Device, params dongle.AuthStatusParams) {
	ctx := c.securityContextFor(device.Address)
	if ctx != nil {
		ctx.terminal = true
	}

	if params.Status != 0 {
		c.log.Warnf("Authentication failed with status %s", params.StatusName)
		c.dispatch(dongle.Record{Type: dongle.RecordAuthError, Device: device})
		return
	}

	c.dispatch(dongle.Record{Type: dongle.RecordAuthSuccess, Device: device})

	if !params.Keyset.Complete() {
		return
	}

	if !params.Bonded {
		c.log.Debug("No bonding performed, do not store keys")
		return
	}

	if c.bonds != nil {
		if err := c.bonds.Save(device.Address.Key(), params.Keyset); err != nil {
			c.emitError(errors.Wrap(err, "store bond information"))
			return
		}
	}
	c.dispatch(dongle.Record{Type: dongle.RecordBondInfoStored, Device: device, Keyset: params.Keyset})
}

// storeOwnParams records our side of the parameter exchange, both in the
// per-address context and as a record for the reducer layer.
func (c *Central) storeOwnParams(device *dongle.Device, params *dongle.SecParams) {
	ctx := c.ensureSecurityContext(device.Address)
	ctx.ownParams = params
	c.dispatch(dongle.Record{Type: dongle.RecordOwnParamsStored, Device: device, OwnParams: params})
}

// Pair initiates pairing with a connected device using the given security
// parameters.
func (c *Central) Pair(id int, device *dongle.Device, params *dongle.SecParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gw, err := c.selectedLocked()
	if err != nil {
		c.emitError(err)
		return err
	}

	if err := gw.Authenticate(device.InstanceID, params); err != nil {
		err = errors.Wrap(err, "authenticate")
		c.dispatch(dongle.Record{Type: dongle.RecordPairingStatus, ID: id, Device: device, Status: dongle.StatusError})
		c.emitError(err)
		return err
	}
	c.log.Debugf("Authenticate, secParams: %+v", params)

	c.storeOwnParams(device, params)
	c.dispatch(dongle.Record{Type: dongle.RecordPairingStatus, ID: id, Device: device, Status: dongle.StatusPending})
	return nil
}

// AcceptPairing answers an outstanding pairing decision with the given
// parameters. The role decides the reply: a peripheral peer is answered
// with an authenticate command, a central peer with a parameter reply.
func (c *Central) AcceptPairing(id int, device *dongle.Device, params *dongle.SecParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acceptPairingLocked(id, device, params)
}

func (c *Central) acceptPairingLocked(id int, device *dongle.Device, params *dongle.SecParams) error {
	gw, err := c.selectedLocked()
	if err != nil {
		c.emitError(err)
		return err
	}

	pk, err := gw.ComputePublicKey()
	if err != nil {
		c.dispatch(dongle.Record{Type: dongle.RecordPairingStatus, ID: id, Device: device, Status: dongle.StatusError})
		return errors.Wrap(err, "compute public key")
	}
	ctx := c.ensureSecurityContext(device.Address)
	ctx.keyset = &dongle.Keyset{Own: dongle.KeyBundle{PublicKey: pk}}

	switch device.Role {
	case dongle.RolePeripheral:
		err = gw.Authenticate(device.InstanceID, params)
		if err == nil {
			c.log.Debugf("Authenticate, secParams: %+v", params)
		}
	case dongle.RoleCentral:
		err = gw.ReplySecParams(device.InstanceID, 0, params, ctx.keyset)
		if err == nil {
			c.log.Debugf("ReplySecParams, secParams: %+v", params)
		}
	default:
		err = errors.Errorf("unknown role %q", device.Role)
	}

	if err != nil {
		c.dispatch(dongle.Record{Type: dongle.RecordPairingStatus, ID: id, Device: device, Status: dongle.StatusError})
		return err
	}

	c.storeOwnParams(device, params)
	c.dispatch(dongle.Record{Type: dongle.RecordPairingStatus, ID: id, Device: device, Status: dongle.StatusPending})
	return nil
}

// RejectPairing refuses an outstanding pairing decision. A peripheral peer
// is answered with a null authenticate, a central peer with a parameter
// reply carrying the pairing-not-supported status.
func (c *Central) RejectPairing(id int, device *dongle.Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gw, err := c.selectedLocked()
	if err != nil {
		c.emitError(err)
		return err
	}

	switch device.Role {
	case dongle.RolePeripheral:
		err = gw.Authenticate(device.InstanceID, nil)
	case dongle.RoleCentral:
		err = gw.ReplySecParams(device.InstanceID, dongle.SecStatusPairingNotSupported, nil, nil)
	default:
		err = errors.Errorf("invalid role %q", device.Role)
	}

	if err != nil {
		c.dispatch(dongle.Record{Type: dongle.RecordPairingStatus, ID: id, Device: device, Status: dongle.StatusError})
		return err
	}

	if ctx := c.securityContextFor(device.Address); ctx != nil {
		ctx.terminal = true
	}
	c.dispatch(dongle.Record{Type: dongle.RecordPairingStatus, ID: id, Device: device, Status: dongle.StatusRejected})
	return nil
}

// ReplyAuthKey supplies the passkey or OOB key the driver asked for. If a
// keypress start notification went out earlier for this pairing event, the
// matching end notification is sent first and the reply only proceeds once
// it succeeded.
func (c *Central) ReplyAuthKey(id int, device *dongle.Device, keyType dongle.AuthKeyType, key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyAuthKeyLocked(id, device, keyType, key)
}

func (c *Central) replyAuthKeyLocked(id int, device *dongle.Device, keyType dongle.AuthKeyType, key []byte) error {
	gw, err := c.selectedLocked()
	if err != nil {
		c.emitError(err)
		return err
	}

	if c.keypressStartSent[id] {
		if err := gw.NotifyKeypress(device.InstanceID, dongle.KeypressEnd); err != nil {
			c.emitError(errors.Wrap(err, "notify keypress end"))
			return err
		}
		c.dispatch(dongle.Record{Type: dongle.RecordKeypressSent, ID: id, Device: device, Keypress: dongle.KeypressEnd})
	}

	if err := gw.ReplyAuthKey(device.InstanceID, keyType.Value(), key); err != nil {
		err = errors.Wrap(err, "reply auth key")
		c.emitError(err)
		c.dispatch(dongle.Record{Type: dongle.RecordAuthKeyStatus, ID: id, Device: device, Status: dongle.StatusError})
		return err
	}

	c.dispatch(dongle.Record{Type: dongle.RecordPairingStatus, ID: id, Device: device, Status: dongle.StatusPending})
	return nil
}

// ReplyNumericalComparisonMatch answers a numeric comparison prompt. A
// match confirms with the passkey key type, a mismatch with none.
func (c *Central) ReplyNumericalComparisonMatch(id int, device *dongle.Device, match bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if match {
		return c.replyAuthKeyLocked(id, device, dongle.AuthKeyTypePasskey, nil)
	}
	return c.replyAuthKeyLocked(id, device, dongle.AuthKeyTypeNone, nil)
}

// ReplyLescOob hands the peer's out-of-band data (hex encoded random and
// confirm) and our own to the driver. Empty peer fields mean OOB data was
// only exchanged in one direction.
func (c *Central) ReplyLescOob(id int, device *dongle.Device, peerRandom, peerConfirm string, ownOob *dongle.OobData) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gw, err := c.selectedLocked()
	if err != nil {
		c.emitError(err)
		return err
	}

	var peerOob *dongle.OobData
	if peerRandom != "" && peerConfirm != "" {
		r, err := hex.DecodeString(peerRandom)
		if err != nil {
			return errors.Wrap(err, "peer oob random")
		}
		conf, err := hex.DecodeString(peerConfirm)
		if err != nil {
			return errors.Wrap(err, "peer oob confirm")
		}
		addr := device.Address
		peerOob = &dongle.OobData{Addr: &addr, Random: r, Confirm: conf}
	}

	c.log.Debugf("setLescOobData, ownOobData: %+v, peerOobData: %+v", ownOob, peerOob)

	if err := gw.SetLescOobData(device.InstanceID, ownOob, peerOob); err != nil {
		err = errors.Wrap(err, "set LESC OOB data")
		c.emitError(err)
		c.dispatch(dongle.Record{Type: dongle.RecordAuthKeyStatus, ID: id, Device: device, Status: dongle.StatusError})
		return err
	}

	c.dispatch(dongle.Record{Type: dongle.RecordPairingStatus, ID: id, Device: device, Status: dongle.StatusPending})
	return nil
}

// SendKeypress forwards one passkey entry keypress notification. The first
// keypress for a pairing event is preceded by a start notification exactly
// once.
func (c *Central) SendKeypress(id int, device *dongle.Device, keypress dongle.KeypressType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gw, err := c.selectedLocked()
	if err != nil {
		c.emitError(err)
		return err
	}

	if !keypress.Known() {
		err := errors.New("unknown keypress received")
		c.emitError(err)
		return err
	}

	if !c.keypressStartSent[id] {
		if err := gw.NotifyKeypress(device.InstanceID, dongle.KeypressStart); err != nil {
			c.emitError(errors.Wrap(err, "notify keypress start"))
			return err
		}
		c.keypressStartSent[id] = true
		c.dispatch(dongle.Record{Type: dongle.RecordKeypressSent, ID: id, Device: device, Keypress: dongle.KeypressStart})
		if keypress == dongle.KeypressStart {
			return nil
		}
	}

	if err := gw.NotifyKeypress(device.InstanceID, keypress); err != nil {
		c.emitError(errors.Wrap(err, "notify keypress"))
		return err
	}
	c.dispatch(dongle.Record{Type: dongle.RecordKeypressSent, ID: id, Device: device, Keypress: keypress})
	return nil
}
