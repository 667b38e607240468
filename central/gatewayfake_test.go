package central

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/blekit/dongle"
)

var errTest = errors.New("scripted failure")

// fakeGateway is a scripted transport gateway. Every command appends its
// name to calls; fail maps a command name to the error it should return.
type fakeGateway struct {
	mu     sync.Mutex
	port   string
	events chan dongle.Event

	calls []string
	fail  map[string]error

	publicKey    []byte
	sharedSecret []byte
	oobData      *dongle.OobData

	secParamReplies []secParamsReply
	authKeyReplies  []authKeyReply
	keypresses      []dongle.KeypressType
	connectedTo     []dongle.Addr
	connectOpts     []dongle.ConnectOptions
	updateRequests  []dongle.ConnectionParams
	encrypts        []encryptCall
	secInfoReplies  []secInfoReply
	oobSets         []oobSet
}

type secParamsReply struct {
	instanceID string
	status     uint8
	params     *dongle.SecParams
	keyset     *dongle.Keyset
}

type authKeyReply struct {
	instanceID string
	keyType    uint8
	key        []byte
}

type encryptCall struct {
	instanceID string
	masterID   dongle.MasterID
	encInfo    dongle.EncInfo
}

type secInfoReply struct {
	instanceID string
	enc        *dongle.EncInfo
	id         *dongle.IDKey
	sign       *dongle.SignKey
}

type oobSet struct {
	instanceID string
	own        *dongle.OobData
	peer       *dongle.OobData
}

func newFakeGateway(port string) *fakeGateway {
	return &fakeGateway{
		port:      port,
		events:    make(chan dongle.Event, 32),
		fail:      make(map[string]error),
		publicKey: make([]byte, 64),
	}
}

func (g *fakeGateway) record(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, name)
	return g.fail[name]
}

func (g *fakeGateway) callNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	copy(out, g.calls)
	return out
}

func (g *fakeGateway) Port() string { return g.port }

func (g *fakeGateway) Open(opts dongle.OpenOptions) error { return g.record("open") }
func (g *fakeGateway) Close() error                       { return g.record("close") }

func (g *fakeGateway) Connect(addr dongle.Addr, opts dongle.ConnectOptions) error {
	err := g.record("connect")
	g.mu.Lock()
	g.connectedTo = append(g.connectedTo, addr)
	g.connectOpts = append(g.connectOpts, opts)
	g.mu.Unlock()
	return err
}

func (g *fakeGateway) CancelConnect() error               { return g.record("cancelConnect") }
func (g *fakeGateway) Disconnect(instanceID string) error { return g.record("disconnect") }

func (g *fakeGateway) Authenticate(instanceID string, params *dongle.SecParams) error {
	return g.record("authenticate")
}

func (g *fakeGateway) ReplySecParams(instanceID string, status uint8, params *dongle.SecParams, keyset *dongle.Keyset) error {
	err := g.record("replySecParams")
	g.mu.Lock()
	g.secParamReplies = append(g.secParamReplies, secParamsReply{instanceID, status, params, keyset})
	g.mu.Unlock()
	return err
}

func (g *fakeGateway) SecInfoReply(instanceID string, enc *dongle.EncInfo, id *dongle.IDKey, sign *dongle.SignKey) error {
	err := g.record("secInfoReply")
	g.mu.Lock()
	g.secInfoReplies = append(g.secInfoReplies, secInfoReply{instanceID, enc, id, sign})
	g.mu.Unlock()
	return err
}

func (g *fakeGateway) ReplyAuthKey(instanceID string, keyType uint8, key []byte) error {
	err := g.record("replyAuthKey")
	g.mu.Lock()
	g.authKeyReplies = append(g.authKeyReplies, authKeyReply{instanceID, keyType, key})
	g.mu.Unlock()
	return err
}

func (g *fakeGateway) ReplyLescDhkey(instanceID string, dhkey []byte) error {
	return g.record("replyLescDhkey")
}

func (g *fakeGateway) GetLescOobData(instanceID string, ownPublicKey []byte) (*dongle.OobData, error) {
	if err := g.record("getLescOobData"); err != nil {
		return nil, err
	}
	return g.oobData, nil
}

func (g *fakeGateway) SetLescOobData(instanceID string, own, peer *dongle.OobData) error {
	err := g.record("setLescOobData")
	g.mu.Lock()
	g.oobSets = append(g.oobSets, oobSet{instanceID, own, peer})
	g.mu.Unlock()
	return err
}

func (g *fakeGateway) NotifyKeypress(instanceID string, keypress dongle.KeypressType) error {
	err := g.record("notifyKeypress")
	g.mu.Lock()
	g.keypresses = append(g.keypresses, keypress)
	g.mu.Unlock()
	return err
}

func (g *fakeGateway) ComputePublicKey() ([]byte, error) {
	if err := g.record("computePublicKey"); err != nil {
		return nil, err
	}
	return g.publicKey, nil
}

func (g *fakeGateway) ComputeSharedSecret(peerPublicKey []byte) ([]byte, error) {
	if err := g.record("computeSharedSecret"); err != nil {
		return nil, err
	}
	return g.sharedSecret, nil
}

func (g *fakeGateway) Encrypt(instanceID string, masterID dongle.MasterID, encInfo dongle.EncInfo) error {
	err := g.record("encrypt")
	g.mu.Lock()
	g.encrypts = append(g.encrypts, encryptCall{instanceID, masterID, encInfo})
	g.mu.Unlock()
	return err
}

func (g *fakeGateway) UpdateConnectionParams(instanceID string, params dongle.ConnectionParams) (*dongle.Device, error) {
	err := g.record("updateConnectionParams")
	g.mu.Lock()
	g.updateRequests = append(g.updateRequests, params)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &dongle.Device{InstanceID: instanceID}, nil
}

func (g *fakeGateway) RejectConnParams(instanceID string) error { return g.record("rejectConnParams") }
func (g *fakeGateway) EnableBLE() error                         { return g.record("enableBLE") }
func (g *fakeGateway) GetState() error                          { return g.record("getState") }

func (g *fakeGateway) Events() <-chan dongle.Event { return g.events }

// recorder collects dispatched records for assertions.
type recorder struct {
	mu      sync.Mutex
	records []dongle.Record
}

func (r *recorder) dispatch(rec dongle.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorder) ofType(t dongle.RecordType) []dongle.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dongle.Record
	for _, rec := range r.records {
		if rec.Type == t {
			out = append(out, rec)
		}
	}
	return out
}

func (r *recorder) types() []dongle.RecordType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dongle.RecordType, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Type)
	}
	return out
}

func testDevice(role dongle.Role) *dongle.Device {
	return &dongle.Device{
		Address:    dongle.NewAddr("AA:BB:CC:DD:EE:FF", dongle.AddressTypePublic),
		InstanceID: uuid.NewString(),
		Role:       role,
		State:      dongle.StateConnected,
	}
}

// newTestCentral wires a central directly onto a fake gateway, bypassing
// the serial probe and settle delay.
func newTestCentral(gw *fakeGateway, opts ...Option) (*Central, *recorder) {
	rec := &recorder{}
	base := []Option{WithSettleDelay(0), WithAttributeThrottle(0)}
	c := New(rec.dispatch, append(base, opts...)...)
	c.probe = func(string) error { return nil }
	if gw != nil {
		c.selected = gw
	}
	return c, rec
}

// deliver pushes one event through the router synchronously.
func deliver(c *Central, gw *fakeGateway, ev dongle.Event) {
	c.handleEvent(gw, c.generation, ev)
}

// waitForRecord blocks until the recorder has seen at least one record of
// the given type; events handled by the router goroutine arrive
// asynchronously.
func waitForRecord(t *testing.T, rec *recorder, rt dongle.RecordType) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rec.ofType(rt)) > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("record %s never arrived", rt)
}
