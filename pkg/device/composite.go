package device

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/events"
)

// Composite presents an ordered set of batteries as one logical device.
//
// Member 0 is the primary for threshold state and for the overall outcome
// of threshold writes; the primary for force-discharge is the first member
// that supports it, since not every battery does. Writes fan out to all
// relevant members concurrently and always wait for every member: one slow
// or failing battery must not stall or abort the others. Non-primary
// failures surface as a partial-failure notification, never as an overall
// failure.
type Composite struct {
	members []Device
	emitter *events.Emitter

	destroyed atomic.Bool
	once      sync.Once

	// Listener handles for unwiring member subscriptions at destroy.
	subs []func()
}

var _ Device = (*Composite)(nil)

// NewComposite wraps members, which must already be initialized and hold at
// least two devices; a single battery should be used bare.
func NewComposite(members []Device) (*Composite, error) {
	if len(members) < 2 {
		return nil, errors.Errorf("composite needs at least 2 members, got %d", len(members))
	}

	c := &Composite{
		members: members,
		emitter: events.NewEmitter(),
	}

	// Threshold changes are forwarded only from the primary: a successful
	// write synchronizes all members, so forwarding everyone would just
	// duplicate downstream updates.
	primary := members[0]
	id := primary.Events().OnThresholdChanged(func(start, end int) {
		if !c.destroyed.Load() {
			c.emitter.EmitThresholdChanged(start, end)
		}
	})
	c.subs = append(c.subs, func() { primary.Events().Unsubscribe(id) })

	// Force-discharge changes are forwarded from whichever member is
	// currently first in order among those that support it. Evaluated per
	// event, since the set is fixed but expressing it dynamically keeps
	// the rule in one place.
	for _, m := range members {
		if !m.SupportsForceDischarge() {
			continue
		}
		member := m
		id := member.Events().OnForceDischargeChanged(func(enabled bool) {
			if c.destroyed.Load() {
				return
			}
			if c.forceDischargePrimary() == member {
				c.emitter.EmitForceDischargeChanged(enabled)
			}
		})
		c.subs = append(c.subs, func() { member.Events().Unsubscribe(id) })
	}

	return c, nil
}

func (c *Composite) Name() string {
	names := make([]string, len(c.members))
	for i, m := range c.members {
		names[i] = m.Name()
	}
	return strings.Join(names, "+")
}

func (c *Composite) Kind() Kind { return KindComposite }

func (c *Composite) Events() *events.Emitter { return c.emitter }

// Initialize is a no-op returning readiness: members are initialized by the
// discovery coordinator before the composite is built.
func (c *Composite) Initialize(_ context.Context) bool {
	return !c.destroyed.Load() && len(c.members) > 0
}

// forceDischargePrimary returns the first member that supports
// force-discharge, or nil.
func (c *Composite) forceDischargePrimary() Device {
	for _, m := range c.members {
		if m.SupportsForceDischarge() {
			return m
		}
	}
	return nil
}

// Thresholds delegates to the primary; the firmware keeps members in sync.
func (c *Composite) Thresholds() ThresholdPair {
	if c.destroyed.Load() {
		return ThresholdPair{Start: ThresholdUnknown, End: ThresholdUnknown}
	}
	return c.members[0].Thresholds()
}

// SetThresholds fans the write out to every member and reports the
// primary's outcome. Failing non-primary members are named in a
// partial-failure notification.
func (c *Composite) SetThresholds(ctx context.Context, start, end int) bool {
	members := c.members
	if c.destroyed.Load() || len(members) == 0 {
		return false
	}

	results := c.fanOut(members, func(m Device) bool {
		return m.SetThresholds(ctx, start, end)
	})

	var failed []string
	for i, ok := range results {
		if !ok && i != 0 {
			failed = append(failed, members[i].Name())
		}
	}
	if len(failed) > 0 {
		c.reportPartialFailure(members[0].Name(), failed)
	}
	return results[0]
}

func (c *Composite) ForceDischarge() bool {
	p := c.forceDischargePrimary()
	if p == nil {
		return false
	}
	return p.ForceDischarge()
}

// SetForceDischarge fans the write out to the members that support it; the
// first supporting member decides the overall outcome.
func (c *Composite) SetForceDischarge(ctx context.Context, enabled bool) bool {
	members := c.members
	if c.destroyed.Load() || len(members) == 0 {
		return false
	}

	var supporting []Device
	for _, m := range members {
		if m.SupportsForceDischarge() {
			supporting = append(supporting, m)
		}
	}
	if len(supporting) == 0 {
		logrus.Debug("no composite member supports force-discharge")
		return false
	}

	results := c.fanOut(supporting, func(m Device) bool {
		return m.SetForceDischarge(ctx, enabled)
	})

	var failed []string
	for i, ok := range results {
		if !ok && i != 0 {
			failed = append(failed, supporting[i].Name())
		}
	}
	if len(failed) > 0 {
		c.reportPartialFailure(supporting[0].Name(), failed)
	}
	return results[0]
}

// fanOut runs op on every target concurrently and waits for all of them,
// never failing fast.
func (c *Composite) fanOut(targets []Device, op func(Device) bool) []bool {
	results := make([]bool, len(targets))
	var wg sync.WaitGroup
	for i, m := range targets {
		wg.Add(1)
		go func(i int, m Device) {
			defer wg.Done()
			results[i] = op(m)
		}(i, m)
	}
	wg.Wait()
	return results
}

func (c *Composite) reportPartialFailure(primary string, failed []string) {
	joined := strings.Join(failed, ",")
	logrus.WithFields(logrus.Fields{
		"primary": primary,
		"failed":  joined,
	}).Warn("write failed on some composite members")
	if !c.destroyed.Load() {
		c.emitter.EmitPartialFailure(primary, joined)
	}
}

// BatteryLevel is the arithmetic mean across members.
func (c *Composite) BatteryLevel() int {
	if c.destroyed.Load() {
		return 0
	}
	sum := 0
	for _, m := range c.members {
		sum += m.BatteryLevel()
	}
	return sum / len(c.members)
}

// Health averages the members whose health is known; unknown when none is.
func (c *Composite) Health() (int, bool) {
	if c.destroyed.Load() {
		return 0, false
	}
	sum, n := 0, 0
	for _, m := range c.members {
		if h, ok := m.Health(); ok {
			sum += h
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / n, true
}

func (c *Composite) RefreshValues(ctx context.Context) {
	if c.destroyed.Load() {
		return
	}
	c.fanOut(c.members, func(m Device) bool {
		m.RefreshValues(ctx)
		return true
	})
}

// SupportsForceDischarge is true when any member supports it.
func (c *Composite) SupportsForceDischarge() bool {
	return c.forceDischargePrimary() != nil
}

// HasStartThreshold follows the primary, which is authoritative for
// threshold state.
func (c *Composite) HasStartThreshold() bool {
	return !c.destroyed.Load() && c.members[0].HasStartThreshold()
}

// NeedsHelper is conservative: one member without the helper degrades the
// whole aggregate to read-only.
func (c *Composite) NeedsHelper() bool {
	for _, m := range c.members {
		if m.NeedsHelper() {
			return true
		}
	}
	return false
}

// Destroy unwires member subscriptions, destroys every member exactly once
// and drops the member list. Mutating calls after Destroy return false.
func (c *Composite) Destroy() {
	c.once.Do(func() {
		c.destroyed.Store(true)
		for _, unsub := range c.subs {
			unsub()
		}
		c.subs = nil
		for _, m := range c.members {
			m.Destroy()
		}
		c.members = nil
		c.emitter.Close()
	})
}
