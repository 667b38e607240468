package central

import (
	"testing"

	"github.com/blekit/dongle"
	"github.com/blekit/dongle/bond"
)

// memStore is an in-memory bond store counting writes.
type memStore struct {
	bonds map[string]*dongle.Keyset
	saves int
}

func newMemStore() *memStore {
	return &memStore{bonds: make(map[string]*dongle.Keyset)}
}

func (s *memStore) Find(addr string) (*dongle.Keyset, error) {
	ks, ok := s.bonds[addr]
	if !ok {
		return nil, bond.ErrNotFound
	}
	return ks, nil
}

func (s *memStore) Save(addr string, ks *dongle.Keyset) error {
	s.saves++
	s.bonds[addr] = ks
	return nil
}

func (s *memStore) Delete(addr string) error {
	delete(s.bonds, addr)
	return nil
}

func (s *memStore) Addresses() ([]string, error) {
	out := make([]string, 0, len(s.bonds))
	for a := range s.bonds {
		out = append(out, a)
	}
	return out, nil
}

func completeKeyset() *dongle.Keyset {
	return &dongle.Keyset{
		Own: dongle.KeyBundle{
			PublicKey: make([]byte, 64),
			Enc: &dongle.EncKey{
				Info:     dongle.EncInfo{LTK: make([]byte, 16), LESC: true},
				MasterID: dongle.MasterID{EDiv: 0, Rand: make([]byte, 8)},
			},
			ID: &dongle.IDKey{IRK: make([]byte, 16)},
		},
		Peer: dongle.KeyBundle{},
	}
}

func TestSecParamsRequestKeepsContextsPerAddress(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, _ := newTestCentral(gw)

	d1 := testDevice(dongle.RolePeripheral)
	d2 := testDevice(dongle.RolePeripheral)
	d2.Address = dongle.NewAddr("11:22:33:44:55:66", dongle.AddressTypePublic)

	p1 := dongle.SecParams{Bond: true}
	p2 := dongle.SecParams{Bond: true, MITM: true}
	deliver(c, gw, dongle.SecParamsRequestEvent{Device: d1, PeerParams: p1})
	deliver(c, gw, dongle.SecParamsRequestEvent{Device: d2, PeerParams: p2})

	if len(c.secContexts) != 2 {
		t.Fatalf("got %d security contexts, want 2", len(c.secContexts))
	}
	ctx1 := c.securityContextFor(d1.Address)
	ctx2 := c.securityContextFor(d2.Address)
	if ctx1 == nil || ctx2 == nil {
		t.Fatal("missing security context for one of the peers")
	}
	if ctx1 == ctx2 {
		t.Fatal("distinct peers share a security context")
	}
	if ctx1.peerParams.MITM || !ctx2.peerParams.MITM {
		t.Fatal("peer params stored under the wrong address")
	}
}

func TestSecParamsRequestReusesLiveContext(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, _ := newTestCentral(gw)

	d := testDevice(dongle.RolePeripheral)
	deliver(c, gw, dongle.SecParamsRequestEvent{Device: d, PeerParams: dongle.SecParams{Bond: true}})
	first := c.securityContextFor(d.Address)

	deliver(c, gw, dongle.SecParamsRequestEvent{Device: d, PeerParams: dongle.SecParams{Bond: true, MITM: true}})
	if got := c.securityContextFor(d.Address); got != first {
		t.Fatal("second request for the same address replaced a live context")
	}

	first.terminal = true
	deliver(c, gw, dongle.SecParamsRequestEvent{Device: d, PeerParams: dongle.SecParams{}})
	if got := c.securityContextFor(d.Address); got == first {
		t.Fatal("terminated context was reused for a new pairing")
	}
}

func TestSecParamsRequestPeripheralRepliesWithNilParams(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, _ := newTestCentral(gw)

	d := testDevice(dongle.RolePeripheral)
	deliver(c, gw, dongle.SecParamsRequestEvent{Device: d, PeerParams: dongle.SecParams{Bond: true}})

	if len(gw.secParamReplies) != 1 {
		t.Fatalf("got %d parameter replies, want 1", len(gw.secParamReplies))
	}
	reply := gw.secParamReplies[0]
	if reply.status != 0 {
		t.Fatalf("got status %#x, want 0", reply.status)
	}
	if reply.params != nil {
		t.Fatalf("peripheral reply carries own params %+v, want nil", reply.params)
	}
	if reply.keyset == nil || reply.keyset.Own.PublicKey == nil {
		t.Fatal("peripheral reply has no keyset with own public key")
	}
}

func TestAuthKeyRequestWithoutStoredParams(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, rec := newTestCentral(gw)

	d := testDevice(dongle.RoleCentral)
	deliver(c, gw, dongle.AuthKeyRequestEvent{Device: d, KeyType: dongle.AuthKeyTypePasskey})

	reqs := rec.ofType(dongle.RecordAuthKeyRequest)
	if len(reqs) != 1 {
		t.Fatalf("got %d auth key request records, want 1", len(reqs))
	}
	if reqs[0].SendKeypress {
		t.Fatal("SendKeypress set with no stored parameter exchange")
	}
}

func TestAuthKeyRequestMutualKeypress(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, rec := newTestCentral(gw)

	d := testDevice(dongle.RoleCentral)
	ctx := c.ensureSecurityContext(d.Address)
	ctx.ownParams = &dongle.SecParams{Keypress: true}
	ctx.peerParams = &dongle.SecParams{Keypress: true}

	deliver(c, gw, dongle.AuthKeyRequestEvent{Device: d, KeyType: dongle.AuthKeyTypePasskey})

	reqs := rec.ofType(dongle.RecordAuthKeyRequest)
	if len(reqs) != 1 || !reqs[0].SendKeypress {
		t.Fatal("mutual keypress request not flagged on the auth key record")
	}
}

func TestAcceptPairingCentralRepliesAndStoresParams(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, rec := newTestCentral(gw)

	d := testDevice(dongle.RoleCentral)
	params := &dongle.SecParams{Bond: true, LESC: true}
	if err := c.AcceptPairing(7, d, params); err != nil {
		t.Fatalf("AcceptPairing: %v", err)
	}

	if len(gw.secParamReplies) != 1 {
		t.Fatalf("got %d parameter replies, want 1", len(gw.secParamReplies))
	}
	if gw.secParamReplies[0].status != 0 {
		t.Fatalf("got status %#x, want 0", gw.secParamReplies[0].status)
	}
	if gw.secParamReplies[0].params != params {
		t.Fatal("accepted parameters not forwarded to the gateway")
	}

	statuses := rec.ofType(dongle.RecordPairingStatus)
	if len(statuses) != 1 || statuses[0].Status != dongle.StatusPending || statuses[0].ID != 7 {
		t.Fatalf("got pairing statuses %+v, want one pending with id 7", statuses)
	}
	if own := rec.ofType(dongle.RecordOwnParamsStored); len(own) != 1 {
		t.Fatalf("got %d own-params records, want 1", len(own))
	}
}

func TestBondedAuthSuccessStoresKeysOnce(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	store := newMemStore()
	c, rec := newTestCentral(gw, WithBondStore(store))

	d := testDevice(dongle.RoleCentral)
	if err := c.AcceptPairing(1, d, dongle.DefaultSecParams()); err != nil {
		t.Fatalf("AcceptPairing: %v", err)
	}

	deliver(c, gw, dongle.AuthStatusEvent{
		Device: d,
		Params: dongle.AuthStatusParams{Status: 0, Bonded: true, Keyset: completeKeyset()},
	})

	if store.saves != 1 {
		t.Fatalf("got %d bond writes, want 1", store.saves)
	}
	if _, err := store.Find(d.Address.Key()); err != nil {
		t.Fatalf("bond not stored under the peer address: %v", err)
	}
	if len(rec.ofType(dongle.RecordBondInfoStored)) != 1 {
		t.Fatal("missing bond-info-stored record")
	}
	if len(rec.ofType(dongle.RecordAuthSuccess)) != 1 {
		t.Fatal("missing auth success record")
	}

	ctx := c.securityContextFor(d.Address)
	if ctx == nil || !ctx.terminal {
		t.Fatal("auth status did not terminate the security context")
	}
}

func TestUnbondedAuthSuccessStoresNothing(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	store := newMemStore()
	c, rec := newTestCentral(gw, WithBondStore(store))

	d := testDevice(dongle.RoleCentral)
	deliver(c, gw, dongle.AuthStatusEvent{
		Device: d,
		Params: dongle.AuthStatusParams{Status: 0, Bonded: false, Keyset: completeKeyset()},
	})

	if store.saves != 0 {
		t.Fatalf("got %d bond writes, want 0", store.saves)
	}
	if len(rec.ofType(dongle.RecordBondInfoStored)) != 0 {
		t.Fatal("bond-info-stored record emitted without bonding")
	}
	if len(rec.ofType(dongle.RecordAuthSuccess)) != 1 {
		t.Fatal("missing auth success record")
	}
}

func TestAuthStatusFailureEmitsAuthError(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	store := newMemStore()
	c, rec := newTestCentral(gw, WithBondStore(store))

	d := testDevice(dongle.RoleCentral)
	deliver(c, gw, dongle.AuthStatusEvent{
		Device: d,
		Params: dongle.AuthStatusParams{Status: 1, StatusName: "BLE_GAP_SEC_STATUS_TIMEOUT", Bonded: true, Keyset: completeKeyset()},
	})

	if store.saves != 0 {
		t.Fatalf("got %d bond writes after failed auth, want 0", store.saves)
	}
	if len(rec.ofType(dongle.RecordAuthError)) != 1 {
		t.Fatal("missing auth error record")
	}
}

func TestRejectPairingCentralSendsPairingNotSupported(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, rec := newTestCentral(gw)

	d := testDevice(dongle.RoleCentral)
	if err := c.RejectPairing(3, d); err != nil {
		t.Fatalf("RejectPairing: %v", err)
	}

	if len(gw.secParamReplies) != 1 {
		t.Fatalf("got %d parameter replies, want 1", len(gw.secParamReplies))
	}
	reply := gw.secParamReplies[0]
	if reply.status != dongle.SecStatusPairingNotSupported {
		t.Fatalf("got status %#x, want %#x", reply.status, dongle.SecStatusPairingNotSupported)
	}
	if reply.params != nil || reply.keyset != nil {
		t.Fatal("rejection reply must carry no params and no keyset")
	}

	statuses := rec.ofType(dongle.RecordPairingStatus)
	if len(statuses) != 1 || statuses[0].Status != dongle.StatusRejected {
		t.Fatalf("got pairing statuses %+v, want one rejected", statuses)
	}
}

func TestRejectPairingPeripheralAuthenticatesNil(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, rec := newTestCentral(gw)

	d := testDevice(dongle.RolePeripheral)
	if err := c.RejectPairing(3, d); err != nil {
		t.Fatalf("RejectPairing: %v", err)
	}

	calls := gw.callNames()
	if len(calls) != 1 || calls[0] != "authenticate" {
		t.Fatalf("got calls %v, want a single authenticate", calls)
	}
	statuses := rec.ofType(dongle.RecordPairingStatus)
	if len(statuses) != 1 || statuses[0].Status != dongle.StatusRejected {
		t.Fatalf("got pairing statuses %+v, want one rejected", statuses)
	}
}

func TestSecInfoRequestAnswersFromBondStore(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	store := newMemStore()
	c, _ := newTestCentral(gw, WithBondStore(store))

	d := testDevice(dongle.RolePeripheral)
	ks := completeKeyset()
	if err := store.Save(d.Address.Key(), ks); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	store.saves = 0

	deliver(c, gw, dongle.SecInfoRequestEvent{Device: d})

	if len(gw.secInfoReplies) != 1 {
		t.Fatalf("got %d sec info replies, want 1", len(gw.secInfoReplies))
	}
	reply := gw.secInfoReplies[0]
	if reply.enc == nil || !reply.enc.LESC {
		t.Fatalf("got enc info %+v, want stored LESC key", reply.enc)
	}
	if reply.id != ks.Own.ID {
		t.Fatal("id key from the store not forwarded")
	}
}

func TestSecInfoRequestWithoutBondRepliesNull(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, _ := newTestCentral(gw, WithBondStore(newMemStore()))

	d := testDevice(dongle.RolePeripheral)
	deliver(c, gw, dongle.SecInfoRequestEvent{Device: d})

	if len(gw.secInfoReplies) != 1 {
		t.Fatalf("got %d sec info replies, want 1", len(gw.secInfoReplies))
	}
	reply := gw.secInfoReplies[0]
	if reply.enc != nil || reply.id != nil || reply.sign != nil {
		t.Fatalf("first-pairing reply must be null, got %+v", reply)
	}
}

func TestSendKeypressSendsStartExactlyOnce(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, rec := newTestCentral(gw)

	d := testDevice(dongle.RoleCentral)
	if err := c.SendKeypress(5, d, dongle.KeypressDigitIn); err != nil {
		t.Fatalf("SendKeypress: %v", err)
	}
	if err := c.SendKeypress(5, d, dongle.KeypressDigitIn); err != nil {
		t.Fatalf("SendKeypress: %v", err)
	}

	want := []dongle.KeypressType{dongle.KeypressStart, dongle.KeypressDigitIn, dongle.KeypressDigitIn}
	if len(gw.keypresses) != len(want) {
		t.Fatalf("got keypresses %v, want %v", gw.keypresses, want)
	}
	for i := range want {
		if gw.keypresses[i] != want[i] {
			t.Fatalf("got keypresses %v, want %v", gw.keypresses, want)
		}
	}
	if len(rec.ofType(dongle.RecordKeypressSent)) != 3 {
		t.Fatal("each sent keypress must be recorded")
	}
}

func TestSendKeypressStartOnlySendsOnce(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, _ := newTestCentral(gw)

	d := testDevice(dongle.RoleCentral)
	if err := c.SendKeypress(5, d, dongle.KeypressStart); err != nil {
		t.Fatalf("SendKeypress: %v", err)
	}

	if len(gw.keypresses) != 1 || gw.keypresses[0] != dongle.KeypressStart {
		t.Fatalf("got keypresses %v, want a single start", gw.keypresses)
	}
}

func TestSendKeypressUnknownTypeRejected(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, _ := newTestCentral(gw)

	d := testDevice(dongle.RoleCentral)
	if err := c.SendKeypress(5, d, dongle.KeypressType("bogus")); err == nil {
		t.Fatal("unknown keypress type accepted")
	}
	if len(gw.keypresses) != 0 {
		t.Fatalf("got keypresses %v, want none", gw.keypresses)
	}
}

func TestReplyAuthKeyEndsOpenKeypressSequence(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, _ := newTestCentral(gw)

	d := testDevice(dongle.RoleCentral)
	if err := c.SendKeypress(9, d, dongle.KeypressDigitIn); err != nil {
		t.Fatalf("SendKeypress: %v", err)
	}
	if err := c.ReplyAuthKey(9, d, dongle.AuthKeyTypePasskey, []byte("123456")); err != nil {
		t.Fatalf("ReplyAuthKey: %v", err)
	}

	last := gw.keypresses[len(gw.keypresses)-1]
	if last != dongle.KeypressEnd {
		t.Fatalf("got final keypress %v, want end", last)
	}
	if len(gw.authKeyReplies) != 1 || gw.authKeyReplies[0].keyType != 1 {
		t.Fatalf("got auth key replies %+v, want one passkey reply", gw.authKeyReplies)
	}
}

func TestReplyNumericalComparison(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, _ := newTestCentral(gw)

	d := testDevice(dongle.RoleCentral)
	if err := c.ReplyNumericalComparisonMatch(2, d, true); err != nil {
		t.Fatalf("ReplyNumericalComparisonMatch: %v", err)
	}
	if err := c.ReplyNumericalComparisonMatch(2, d, false); err != nil {
		t.Fatalf("ReplyNumericalComparisonMatch: %v", err)
	}

	if len(gw.authKeyReplies) != 2 {
		t.Fatalf("got %d auth key replies, want 2", len(gw.authKeyReplies))
	}
	if gw.authKeyReplies[0].keyType != 1 || gw.authKeyReplies[1].keyType != 0 {
		t.Fatalf("got key types %d and %d, want 1 then 0", gw.authKeyReplies[0].keyType, gw.authKeyReplies[1].keyType)
	}
}

func TestSecurityRequestAutoAcceptAuthenticates(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, rec := newTestCentral(gw, WithAutoAcceptPairing(true))

	d := testDevice(dongle.RolePeripheral)
	deliver(c, gw, dongle.SecurityRequestEvent{Device: d, Params: dongle.SecParams{Bond: true}})

	calls := gw.callNames()
	if len(calls) != 1 || calls[0] != "authenticate" {
		t.Fatalf("got calls %v, want a single authenticate", calls)
	}
	if len(rec.ofType(dongle.RecordSecurityRequest)) != 0 {
		t.Fatal("auto-accepted request must not prompt the user")
	}
	if len(rec.ofType(dongle.RecordOwnParamsStored)) != 1 {
		t.Fatal("auto-accept must store the default params as own params")
	}
}

func TestSecurityRequestPromptsWithoutAutoAccept(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, rec := newTestCentral(gw)

	d := testDevice(dongle.RolePeripheral)
	deliver(c, gw, dongle.SecurityRequestEvent{Device: d, Params: dongle.SecParams{Bond: true, MITM: true}})

	if len(gw.callNames()) != 0 {
		t.Fatalf("got calls %v, want none before the user decides", gw.callNames())
	}
	reqs := rec.ofType(dongle.RecordSecurityRequest)
	if len(reqs) != 1 || reqs[0].SecParams == nil || !reqs[0].SecParams.MITM {
		t.Fatalf("got security request records %+v, want one carrying the peer params", reqs)
	}
}

func TestLescDhkeyRequestRepliesAndFetchesOob(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	gw.sharedSecret = make([]byte, 32)
	gw.oobData = &dongle.OobData{Random: make([]byte, 16), Confirm: make([]byte, 16)}
	c, rec := newTestCentral(gw)

	d := testDevice(dongle.RoleCentral)
	deliver(c, gw, dongle.LescDhkeyRequestEvent{Device: d, PeerPublicKey: make([]byte, 64), OobRequired: false})

	calls := gw.callNames()
	want := []string{"computeSharedSecret", "replyLescDhkey", "computePublicKey", "getLescOobData"}
	if len(calls) != len(want) {
		t.Fatalf("got calls %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("got calls %v, want %v", calls, want)
		}
	}
	if len(rec.ofType(dongle.RecordLescOobRequest)) != 0 {
		t.Fatal("OOB record emitted although OOB was not required")
	}

	deliver(c, gw, dongle.LescDhkeyRequestEvent{Device: d, PeerPublicKey: make([]byte, 64), OobRequired: true})
	if len(rec.ofType(dongle.RecordLescOobRequest)) != 1 {
		t.Fatal("missing OOB record for an OOB pairing")
	}
}

func TestReplyLescOobDecodesPeerData(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, _ := newTestCentral(gw)

	d := testDevice(dongle.RoleCentral)
	own := &dongle.OobData{Random: make([]byte, 16), Confirm: make([]byte, 16)}
	err := c.ReplyLescOob(4, d, "00112233445566778899aabbccddeeff", "ffeeddccbbaa99887766554433221100", own)
	if err != nil {
		t.Fatalf("ReplyLescOob: %v", err)
	}

	if len(gw.oobSets) != 1 {
		t.Fatalf("got %d oob sets, want 1", len(gw.oobSets))
	}
	set := gw.oobSets[0]
	if set.own != own {
		t.Fatal("own OOB data not forwarded")
	}
	if set.peer == nil || len(set.peer.Random) != 16 || len(set.peer.Confirm) != 16 {
		t.Fatalf("got peer OOB %+v, want decoded 16-byte random and confirm", set.peer)
	}
}

func TestReplyLescOobWithoutPeerData(t *testing.T) {
	gw := newFakeGateway("/dev/ttyACM0")
	c, _ := newTestCentral(gw)

	d := testDevice(dongle.RoleCentral)
	if err := c.ReplyLescOob(4, d, "", "", nil); err != nil {
		t.Fatalf("ReplyLescOob: %v", err)
	}
	if len(gw.oobSets) != 1 || gw.oobSets[0].peer != nil {
		t.Fatal("one-directional OOB exchange must pass nil peer data")
	}
}
