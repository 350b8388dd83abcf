package device

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestComposite(t *testing.T, members ...Device) *Composite {
	t.Helper()
	c, err := NewComposite(members)
	require.NoError(t, err)
	t.Cleanup(c.Destroy)
	return c
}

func TestNewCompositeRejectsTooFewMembers(t *testing.T) {
	_, err := NewComposite(nil)
	assert.Error(t, err)

	_, err = NewComposite([]Device{NewMock("BAT0")})
	assert.Error(t, err, "a single battery should be used bare, not wrapped")
}

func TestCompositeThresholdsDelegateToPrimary(t *testing.T) {
	m0, m1 := NewMock("BAT0"), NewMock("BAT1")
	c := newTestComposite(t, m0, m1)

	require.True(t, m0.SetThresholds(context.Background(), 40, 60))
	assert.Equal(t, ThresholdPair{Start: 40, End: 60}, c.Thresholds())
	assert.Equal(t, "BAT0+BAT1", c.Name())
	assert.Equal(t, KindComposite, c.Kind())
}

func TestCompositePrimaryAuthority(t *testing.T) {
	m0, m1 := NewMock("BAT0"), NewMock("BAT1")
	m1.FailWrites = true
	c := newTestComposite(t, m0, m1)

	var partials int32
	c.Events().OnPartialFailure(func(primary, failed string) {
		atomic.AddInt32(&partials, 1)
		assert.Equal(t, "BAT0", primary)
		assert.Equal(t, "BAT1", failed)
	})

	// The primary succeeded, so the composite write succeeded; the failed
	// member is only surfaced via the partial-failure notification.
	assert.True(t, c.SetThresholds(context.Background(), 40, 60))
	assert.EqualValues(t, 1, atomic.LoadInt32(&partials))
}

func TestCompositePrimaryFailure(t *testing.T) {
	m0, m1 := NewMock("BAT0"), NewMock("BAT1")
	m0.FailWrites = true
	c := newTestComposite(t, m0, m1)

	assert.False(t, c.SetThresholds(context.Background(), 40, 60),
		"the primary's result is the overall result")
	// m1 still got the write: failure isolation.
	assert.Equal(t, ThresholdPair{Start: 40, End: 60}, m1.Thresholds())
}

func TestCompositeMultiplePartialFailures(t *testing.T) {
	m0, m1, m2 := NewMock("BAT0"), NewMock("BAT1"), NewMock("BAT2")
	m1.FailWrites = true
	m2.FailWrites = true
	c := newTestComposite(t, m0, m1, m2)

	var failed atomic.Value
	c.Events().OnPartialFailure(func(_, f string) { failed.Store(f) })

	assert.True(t, c.SetThresholds(context.Background(), 40, 60))
	assert.Equal(t, "BAT1,BAT2", failed.Load())
}

func TestCompositeForceDischargeFallbackPrimary(t *testing.T) {
	m0, m1 := NewMock("BAT0"), NewMock("BAT1")
	m0.SupportsFD = false
	c := newTestComposite(t, m0, m1)

	assert.True(t, c.SupportsForceDischarge())

	var forwards int32
	var last atomic.Bool
	c.Events().OnForceDischargeChanged(func(enabled bool) {
		atomic.AddInt32(&forwards, 1)
		last.Store(enabled)
	})

	// BAT1 is the first supporting member, so it is the primary for this
	// capability and its notification is the one forwarded.
	assert.True(t, c.SetForceDischarge(context.Background(), true))
	assert.True(t, c.ForceDischarge())
	assert.EqualValues(t, 1, atomic.LoadInt32(&forwards))
	assert.True(t, last.Load())

	assert.False(t, m0.ForceDischarge(), "non-supporting member untouched")
}

func TestCompositeForceDischargeNoSupport(t *testing.T) {
	m0, m1 := NewMock("BAT0"), NewMock("BAT1")
	m0.SupportsFD = false
	m1.SupportsFD = false
	c := newTestComposite(t, m0, m1)

	assert.False(t, c.SupportsForceDischarge())
	assert.False(t, c.SetForceDischarge(context.Background(), true))
	assert.False(t, c.ForceDischarge())
}

func TestCompositeThresholdForwardingOnlyFromPrimary(t *testing.T) {
	m0, m1 := NewMock("BAT0"), NewMock("BAT1")
	c := newTestComposite(t, m0, m1)

	var forwards int32
	c.Events().OnThresholdChanged(func(int, int) { atomic.AddInt32(&forwards, 1) })

	require.True(t, m1.SetThresholds(context.Background(), 40, 60))
	assert.Zero(t, atomic.LoadInt32(&forwards), "non-primary changes are not forwarded")

	require.True(t, m0.SetThresholds(context.Background(), 40, 60))
	assert.EqualValues(t, 1, atomic.LoadInt32(&forwards))
}

func TestCompositeAverages(t *testing.T) {
	m0, m1 := NewMock("BAT0"), NewMock("BAT1")
	m0.SetBatteryLevel(60)
	m1.SetBatteryLevel(80)
	m0.SetHealth(0, false)
	m1.SetHealth(90, true)
	c := newTestComposite(t, m0, m1)

	assert.Equal(t, 70, c.BatteryLevel())

	health, ok := c.Health()
	require.True(t, ok)
	assert.Equal(t, 90, health, "unknown-health members are excluded from the mean")

	m1.SetHealth(0, false)
	_, ok = c.Health()
	assert.False(t, ok, "all members unknown means aggregate unknown")
}

func TestCompositeNeedsHelperConservative(t *testing.T) {
	m0, m1 := NewMock("BAT0"), NewMock("BAT1")
	c := newTestComposite(t, m0, m1)
	assert.False(t, c.NeedsHelper())

	m1.MissingHelper = true
	assert.True(t, c.NeedsHelper())
}

func TestCompositeDestroy(t *testing.T) {
	m0, m1 := NewMock("BAT0"), NewMock("BAT1")
	c, err := NewComposite([]Device{m0, m1})
	require.NoError(t, err)

	var emits int32
	c.Events().OnThresholdChanged(func(int, int) { atomic.AddInt32(&emits, 1) })

	c.Destroy()
	c.Destroy() // idempotent

	assert.False(t, c.SetThresholds(context.Background(), 40, 60))
	assert.False(t, c.SetForceDischarge(context.Background(), true))
	assert.False(t, m0.SetThresholds(context.Background(), 40, 60),
		"members are destroyed with the composite")
	assert.Zero(t, atomic.LoadInt32(&emits))
}
