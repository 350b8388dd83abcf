package device

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/helper"
)

func writeAttr(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content+"\n"), 0o644))
}

// fakeBatteryDir builds a sysfs-like battery directory with a start
// threshold, force-discharge support and energy-based health counters.
func fakeBatteryDir(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeAttr(t, dir, "type", "Battery")
	writeAttr(t, dir, "present", "1")
	writeAttr(t, dir, "capacity", "50")
	writeAttr(t, dir, "charge_control_end_threshold", "80")
	writeAttr(t, dir, "charge_control_start_threshold", "75")
	writeAttr(t, dir, "charge_behaviour", "[auto] force-discharge inhibit-charge")
	writeAttr(t, dir, "energy_full", "45000000")
	writeAttr(t, dir, "energy_full_design", "50000000")
	return dir
}

// applyingRunner simulates a helper that actually performs the writes.
func applyingRunner(t *testing.T, dir string) *helper.MockRunner {
	t.Helper()
	r := helper.NewMockRunner()
	r.OnRun = func(command string, args ...string) helper.Status {
		switch {
		case command == "FORCE_DISCHARGE_"+filepath.Base(dir):
			mode := args[0]
			if mode == "force-discharge" {
				writeAttr(t, dir, "charge_behaviour", "auto [force-discharge] inhibit-charge")
			} else {
				writeAttr(t, dir, "charge_behaviour", "[auto] force-discharge inhibit-charge")
			}
		case len(args) == 2 && command == filepath.Base(dir)+"_START_END":
			writeAttr(t, dir, "charge_control_start_threshold", args[0])
			writeAttr(t, dir, "charge_control_end_threshold", args[1])
		case len(args) == 2 && command == filepath.Base(dir)+"_END_START":
			writeAttr(t, dir, "charge_control_end_threshold", args[0])
			writeAttr(t, dir, "charge_control_start_threshold", args[1])
		case len(args) == 1:
			writeAttr(t, dir, "charge_control_end_threshold", args[0])
		}
		return helper.StatusSuccess
	}
	return r
}

func newTestBattery(t *testing.T, dir string, runner helper.Runner) *Battery {
	t.Helper()
	b, err := NewBattery(dir, runner, 0)
	require.NoError(t, err)
	require.True(t, b.Initialize(context.Background()))
	t.Cleanup(b.Destroy)
	// Backoff schedules in tests should not take seconds.
	b.backoff = []time.Duration{time.Millisecond, time.Millisecond}
	return b
}

func TestNewBatteryRejectsBadName(t *testing.T) {
	_, err := NewBattery("/sys/class/power_supply/..", helper.NewMockRunner(), 0)
	assert.Error(t, err)
}

func TestInitializeReadsInitialState(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	b := newTestBattery(t, dir, applyingRunner(t, dir))

	assert.Equal(t, "BAT0", b.Name())
	assert.Equal(t, KindBattery, b.Kind())
	assert.Equal(t, ThresholdPair{Start: 75, End: 80}, b.Thresholds())
	assert.Equal(t, 50, b.BatteryLevel())
	assert.True(t, b.HasStartThreshold())
	assert.True(t, b.SupportsForceDischarge())
	assert.False(t, b.NeedsHelper())
	assert.False(t, b.ForceDischarge())

	health, ok := b.Health()
	require.True(t, ok)
	assert.Equal(t, 90, health)
}

func TestInitializeFailsWithoutEndThreshold(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "BAT0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeAttr(t, dir, "capacity", "50")

	b, err := NewBattery(dir, helper.NewMockRunner(), 0)
	require.NoError(t, err)
	defer b.Destroy()
	assert.False(t, b.Initialize(context.Background()))
}

func TestSetThresholdsSuccess(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	runner := applyingRunner(t, dir)
	b := newTestBattery(t, dir, runner)

	var emits int32
	b.Events().OnThresholdChanged(func(start, end int) {
		atomic.AddInt32(&emits, 1)
		assert.Equal(t, 70, start)
		assert.Equal(t, 75, end)
	})

	require.True(t, b.SetThresholds(context.Background(), 70, 75))
	assert.Equal(t, ThresholdPair{Start: 70, End: 75}, b.Thresholds())
	assert.EqualValues(t, 1, atomic.LoadInt32(&emits))
}

func TestSetThresholdsWriteOrder(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	runner := applyingRunner(t, dir)
	b := newTestBattery(t, dir, runner)

	// Current end is 80; requesting start >= current end must write the
	// end threshold first.
	require.True(t, b.SetThresholds(context.Background(), 90, 95))

	// Current end is now 95; a window entirely below it writes start first.
	require.True(t, b.SetThresholds(context.Background(), 50, 70))

	invs := runner.Invocations()
	require.Len(t, invs, 2)
	assert.Equal(t, "BAT0_END_START", invs[0].Command)
	assert.Equal(t, []string{"95", "90"}, invs[0].Args)
	assert.Equal(t, "BAT0_START_END", invs[1].Command)
	assert.Equal(t, []string{"50", "70"}, invs[1].Args)
}

func TestSetThresholdsValidation(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	runner := applyingRunner(t, dir)
	b := newTestBattery(t, dir, runner)

	ctx := context.Background()
	assert.False(t, b.SetThresholds(ctx, -1, 80))
	assert.False(t, b.SetThresholds(ctx, 10, 101))
	// start >= end is invalid on batteries with a start threshold.
	assert.False(t, b.SetThresholds(ctx, 80, 80))

	assert.Empty(t, runner.Invocations(), "validation failures must not reach the helper")
	assert.Equal(t, ThresholdPair{Start: 75, End: 80}, b.Thresholds())
}

func TestSetThresholdsHelperFailure(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	runner := helper.NewMockRunner()
	runner.Status = helper.StatusPrivilegeRequired
	b := newTestBattery(t, dir, runner)

	var emits int32
	b.Events().OnThresholdChanged(func(int, int) { atomic.AddInt32(&emits, 1) })

	assert.False(t, b.SetThresholds(context.Background(), 70, 75))
	assert.Equal(t, ThresholdPair{Start: 75, End: 80}, b.Thresholds(), "cache must not change on failure")
	assert.Zero(t, atomic.LoadInt32(&emits))
}

func TestSetThresholdsMissingHelper(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	b, err := NewBattery(dir, nil, 0)
	require.NoError(t, err)
	require.True(t, b.Initialize(context.Background()))
	defer b.Destroy()

	assert.True(t, b.NeedsHelper())
	assert.False(t, b.SetThresholds(context.Background(), 70, 75))
}

func TestSetThresholdsReconcilesExternalWrite(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	runner := helper.NewMockRunner()
	// Helper reports failure, but something else moved the value on disk
	// while the monitor was detached.
	runner.OnRun = func(string, ...string) helper.Status {
		writeAttr(t, dir, "charge_control_end_threshold", "60")
		return helper.StatusFailure
	}
	b := newTestBattery(t, dir, runner)

	var emits int32
	b.Events().OnThresholdChanged(func(int, int) { atomic.AddInt32(&emits, 1) })

	assert.False(t, b.SetThresholds(context.Background(), 50, 55))
	// The reconciling read picked up the external value and notified.
	assert.Equal(t, ThresholdPair{Start: 75, End: 60}, b.Thresholds())
	assert.EqualValues(t, 1, atomic.LoadInt32(&emits))
}

func TestRefreshValuesIdempotent(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	b := newTestBattery(t, dir, applyingRunner(t, dir))

	var emits int32
	b.Events().OnThresholdChanged(func(int, int) { atomic.AddInt32(&emits, 1) })

	writeAttr(t, dir, "charge_control_end_threshold", "85")
	b.RefreshValues(context.Background())
	first := b.Thresholds()
	assert.EqualValues(t, 1, atomic.LoadInt32(&emits))

	b.RefreshValues(context.Background())
	assert.Equal(t, first, b.Thresholds())
	assert.EqualValues(t, 1, atomic.LoadInt32(&emits), "no change, no notification")
}

func TestSetForceDischargeSuccess(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	b := newTestBattery(t, dir, applyingRunner(t, dir))

	var got atomic.Bool
	var emits int32
	b.Events().OnForceDischargeChanged(func(enabled bool) {
		atomic.AddInt32(&emits, 1)
		got.Store(enabled)
	})

	require.True(t, b.SetForceDischarge(context.Background(), true))
	assert.True(t, b.ForceDischarge())
	assert.True(t, got.Load())
	assert.EqualValues(t, 1, atomic.LoadInt32(&emits))

	require.True(t, b.SetForceDischarge(context.Background(), false))
	assert.False(t, b.ForceDischarge())
	assert.EqualValues(t, 2, atomic.LoadInt32(&emits))
}

func TestSetForceDischargeVerificationRevert(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	// Helper claims success but the behaviour file never changes.
	runner := helper.NewMockRunner()
	b := newTestBattery(t, dir, runner)

	var lastEmit atomic.Bool
	var emits int32
	b.Events().OnForceDischargeChanged(func(enabled bool) {
		atomic.AddInt32(&emits, 1)
		lastEmit.Store(enabled)
	})

	assert.False(t, b.SetForceDischarge(context.Background(), true))
	// The cache reflects the actual on-disk mode, not the requested one.
	assert.False(t, b.ForceDischarge())
	assert.EqualValues(t, 1, atomic.LoadInt32(&emits), "revert emits the reconciled state")
	assert.False(t, lastEmit.Load())
}

func TestSetForceDischargeSingleWriter(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	b := newTestBattery(t, dir, applyingRunner(t, dir))

	b.fdInFlight.Store(true)
	assert.False(t, b.SetForceDischarge(context.Background(), true), "concurrent write must be rejected")
	b.fdInFlight.Store(false)

	assert.True(t, b.SetForceDischarge(context.Background(), true))
}

func TestSetForceDischargeUnsupported(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "BAT0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeAttr(t, dir, "charge_control_end_threshold", "80")
	b := newTestBattery(t, dir, helper.NewMockRunner())

	assert.False(t, b.SupportsForceDischarge())
	assert.False(t, b.SetForceDischarge(context.Background(), true))
}

func TestHealthFallsBackToChargeCounters(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	require.NoError(t, os.Remove(filepath.Join(dir, "energy_full_design")))
	writeAttr(t, dir, "charge_full", "3200000")
	writeAttr(t, dir, "charge_full_design", "4000000")

	b := newTestBattery(t, dir, helper.NewMockRunner())
	health, ok := b.Health()
	require.True(t, ok)
	assert.Equal(t, 80, health)
}

func TestHealthUnknownWithoutCounters(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	require.NoError(t, os.Remove(filepath.Join(dir, "energy_full")))
	require.NoError(t, os.Remove(filepath.Join(dir, "energy_full_design")))

	b := newTestBattery(t, dir, helper.NewMockRunner())
	_, ok := b.Health()
	assert.False(t, ok)
}

func TestHealthClamped(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	writeAttr(t, dir, "energy_full", "55000000")

	b := newTestBattery(t, dir, helper.NewMockRunner())
	health, ok := b.Health()
	require.True(t, ok)
	assert.Equal(t, 100, health)
}

func TestDestroySilencesDevice(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	runner := applyingRunner(t, dir)
	b := newTestBattery(t, dir, runner)

	var emits int32
	b.Events().OnThresholdChanged(func(int, int) { atomic.AddInt32(&emits, 1) })
	b.Events().OnForceDischargeChanged(func(bool) { atomic.AddInt32(&emits, 1) })

	b.Destroy()
	b.Destroy() // idempotent

	assert.False(t, b.SetThresholds(context.Background(), 60, 70))
	assert.False(t, b.SetForceDischarge(context.Background(), true))
	b.RefreshValues(context.Background())

	assert.Zero(t, atomic.LoadInt32(&emits), "no notification after destroy")
}

func TestDestroyUnblocksBackoffSleep(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	// Success without side effects forces the full verification backoff.
	runner := helper.NewMockRunner()
	b := newTestBattery(t, dir, runner)
	b.backoff = []time.Duration{10 * time.Second}

	done := make(chan bool, 1)
	go func() {
		done <- b.SetForceDischarge(context.Background(), true)
	}()

	// Let the write reach the backoff sleep, then destroy.
	time.Sleep(50 * time.Millisecond)
	b.Destroy()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("destroy did not unblock the pending backoff sleep")
	}
}

func TestMonitorPicksUpExternalChange(t *testing.T) {
	dir := fakeBatteryDir(t, "BAT0")
	b, err := NewBattery(dir, helper.NewMockRunner(), 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, b.Initialize(context.Background()))
	defer b.Destroy()

	var emits int32
	b.Events().OnThresholdChanged(func(int, int) { atomic.AddInt32(&emits, 1) })

	writeAttr(t, dir, "charge_control_end_threshold", strconv.Itoa(90))

	require.Eventually(t, func() bool {
		return b.Thresholds().End == 90
	}, 2*time.Second, 5*time.Millisecond, "external change should be observed")
	assert.EqualValues(t, 1, atomic.LoadInt32(&emits))
}
