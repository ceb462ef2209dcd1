package plug

import (
	"sync"
	"time"
)

// StateCache holds the gateway's view of the plug between requests.
//
// It stores the last successfully parsed status and the last power state
// known to this process. It starts empty and is never persisted. All methods
// are safe for concurrent use and return copies.
type StateCache struct {
	mu      sync.RWMutex
	status  *DeviceStatus
	power   PowerState
	powerAt time.Time
}

// NewStateCache returns an empty cache.
func NewStateCache() *StateCache {
	return &StateCache{power: PowerUnknown}
}

// Get returns the last stored status, if any.
func (c *StateCache) Get() (DeviceStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.status == nil {
		return DeviceStatus{}, false
	}
	return c.status.Clone(), true
}

// Put replaces the stored status and adopts its power flag.
func (c *StateCache) Put(status DeviceStatus) {
	stored := status.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = &stored
	c.power = powerStateOf(stored.IsOn)
	c.powerAt = stored.ObservedAt
}

// SetPower records the outcome of a successful power change.
func (c *StateCache) SetPower(on bool, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.power = powerStateOf(on)
	c.powerAt = at
}

// Power returns the last known power state.
func (c *StateCache) Power() PowerState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.power
}

// Fallback returns the best status the cache can offer without asking the
// controller.
//
// With a stored status, a cached copy is returned whose IsOn follows the
// latest power state, so a later power change corrects an older reading.
// With only a power state, the status is built from identity. With nothing,
// an error-default status is returned with IsOn false, stamped at now.
func (c *StateCache) Fallback(identity Identity, now time.Time) DeviceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.status != nil:
		out := c.status.Clone()
		out.Source = SourceCached
		out.Diagnostic = ""
		if c.power != PowerUnknown {
			out.IsOn = c.power == PowerOn
		}
		if c.powerAt.After(out.ObservedAt) {
			out.ObservedAt = c.powerAt
		}
		return out

	case c.power != PowerUnknown:
		out := identityStatus(identity, SourceCached, c.powerAt)
		out.IsOn = c.power == PowerOn
		return out

	default:
		return identityStatus(identity, SourceErrorDefault, now.UTC())
	}
}

func identityStatus(identity Identity, source Source, at time.Time) DeviceStatus {
	return DeviceStatus{
		DeviceID:   identity.DeviceID,
		Model:      identity.Model,
		MAC:        identity.MAC,
		Source:     source,
		ObservedAt: at,
	}
}

func powerStateOf(on bool) PowerState {
	if on {
		return PowerOn
	}
	return PowerOff
}
