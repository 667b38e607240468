// Package central drives a serial-attached BLE dongle through a transport
// gateway: adapter lifecycle, device sessions, the GAP/SMP pairing
// handshake and connection parameter negotiation. State transitions are
// published as dongle.Record values through a dispatch function; the
// package owns no UI and no radio stack.
package central

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/blekit/dongle"
	"github.com/blekit/dongle/bond"
)

// ErrNoAdapterSelected is returned by every command that needs hardware
// access when no adapter is open.
var ErrNoAdapterSelected = errors.New("no adapter selected")

const defaultSettleDelay = 500 * time.Millisecond

// securityContext is the in-progress pairing state for one peer address.
// At most one context is live per address; a new pairing replaces a prior
// context only once that context has reached a terminal state.
type securityContext struct {
	ownParams  *dongle.SecParams
	peerParams *dongle.SecParams
	keyset     *dongle.Keyset
	terminal   bool
}

// Central owns the single selected adapter and all per-device handshake
// state. All event handling for one adapter is serialized through a single
// mutex; handlers for different devices interleave only at gateway call
// boundaries, exactly like the driver's own event loop.
type Central struct {
	mu sync.Mutex

	log      dongle.Logger
	dispatch dongle.DispatchFunc
	discover func(*dongle.Device)

	provider dongle.Provider
	adapters []dongle.Gateway

	selected    dongle.Gateway
	versionInfo *dongle.VersionInfo
	generation  uint64

	ignored map[string]struct{}

	autoConnUpdate    bool
	autoAcceptPairing bool
	defaultSecParams  *dongle.SecParams

	secContexts       map[string]*securityContext
	keypressStartSent map[int]bool

	bonds bond.Store

	settleDelay time.Duration
	throttle    *throttle

	probe func(port string) error
}

// Option configures a Central.
type Option func(*Central)

func WithLogger(l dongle.Logger) Option {
	return func(c *Central) { c.log = l }
}

func WithProvider(p dongle.Provider) Option {
	return func(c *Central) { c.provider = p }
}

func WithBondStore(s bond.Store) Option {
	return func(c *Central) { c.bonds = s }
}

func WithDefaultSecParams(p *dongle.SecParams) Option {
	return func(c *Central) { c.defaultSecParams = p }
}

func WithAutoAcceptPairing(on bool) Option {
	return func(c *Central) { c.autoAcceptPairing = on }
}

func WithAutoConnUpdate(on bool) Option {
	return func(c *Central) { c.autoConnUpdate = on }
}

// WithSettleDelay overrides the wait between the port validation probe and
// the real open command.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Central) { c.settleDelay = d }
}

// WithDiscoverFunc installs the service discovery hand-off invoked after a
// device reaches the connected state.
func WithDiscoverFunc(f func(*dongle.Device)) Option {
	return func(c *Central) { c.discover = f }
}

// WithAttributeThrottle sets the minimum interval between attribute
// value-changed records.
func WithAttributeThrottle(d time.Duration) Option {
	return func(c *Central) { c.throttle = newThrottle(d) }
}

// New creates a Central publishing records through dispatch.
func New(dispatch dongle.DispatchFunc, opts ...Option) *Central {
	c := &Central{
		dispatch:          dispatch,
		log:               dongle.GetLogger(),
		ignored:           make(map[string]struct{}),
		secContexts:       make(map[string]*securityContext),
		keypressStartSent: make(map[int]bool),
		defaultSecParams:  dongle.DefaultSecParams(),
		settleDelay:       defaultSettleDelay,
		throttle:          newThrottle(500 * time.Millisecond),
		probe:             probePort,
	}
	if c.dispatch == nil {
		c.dispatch = func(dongle.Record) {}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetAutoAcceptPairing toggles the accept-all policy for incoming pairing
// requests.
func (c *Central) SetAutoAcceptPairing(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoAcceptPairing = on
}

// SetDefaultSecParams replaces the adapter-wide default security parameters.
func (c *Central) SetDefaultSecParams(p *dongle.SecParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultSecParams = p
}

// ToggleAutoConnUpdate flips the auto-accept policy for peripheral
// initiated connection parameter updates and reports the new value.
func (c *Central) ToggleAutoConnUpdate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoConnUpdate = !c.autoConnUpdate
	c.dispatch(dongle.Record{Type: dongle.RecordAutoConnUpdateToggled})
	return c.autoConnUpdate
}

// DisableDeviceEvents suppresses all event dispatch for a peer address.
func (c *Central) DisableDeviceEvents(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := dongle.NewAddr(address, "")
	c.ignored[addr.String()] = struct{}{}
	c.dispatch(dongle.Record{Type: dongle.RecordDeviceEventsDisabled, Address: addr.String()})
}

// EnableDeviceEvents lifts a prior DisableDeviceEvents.
func (c *Central) EnableDeviceEvents(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := dongle.NewAddr(address, "")
	delete(c.ignored, addr.String())
	c.dispatch(dongle.Record{Type: dongle.RecordDeviceEventsEnabled, Address: addr.String()})
}

// Selected returns the currently open adapter, or nil.
func (c *Central) Selected() dongle.Gateway {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// selectedLocked is the no-adapter precondition check shared by all
// hardware commands. Callers hold c.mu.
func (c *Central) selectedLocked() (dongle.Gateway, error) {
	if c.selected == nil {
		return nil, ErrNoAdapterSelected
	}
	return c.selected, nil
}

// emitError surfaces a user-visible error record, the equivalent of the
// original tool's error dialog.
func (c *Central) emitError(err error) {
	c.dispatch(dongle.Record{Type: dongle.RecordErrorOccurred, Err: err})
}

// ensureSecurityContext returns the live context for an address, creating
// a fresh one if none exists or the prior pairing already terminated.
func (c *Central) ensureSecurityContext(addr dongle.Addr) *securityContext {
	key := addr.Key()
	if ctx, ok := c.secContexts[key]; ok && !ctx.terminal {
		return ctx
	}
	ctx := &securityContext{}
	c.secContexts[key] = ctx
	return ctx
}

func (c *Central) securityContextFor(addr dongle.Addr) *securityContext {
	return c.secContexts[addr.Key()]
}
