package device

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/events"
	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/helper"
	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/sysfs"
)

// batteryNameRE is the allow-list for names derived from the control
// directory path. Anything else is rejected at construction.
var batteryNameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// verifyBackoff is the delay schedule for force-discharge verification. The
// first re-read happens immediately; each delay is slept before the next.
var verifyBackoff = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
	1600 * time.Millisecond,
}

// Battery controls one physical battery backed by sysfs control files.
// Reads come straight from sysfs; writes go through the privileged helper
// and are verified against sysfs afterwards.
type Battery struct {
	name   string
	dir    string
	runner helper.Runner

	pollInterval time.Duration
	backoff      []time.Duration

	// Control file paths, resolved during Initialize.
	endPath       string
	startPath     string
	capacityPath  string
	behaviourPath string

	supportsFD    bool
	missingHelper bool

	emitter *events.Emitter

	mu         sync.Mutex
	thresholds ThresholdPair
	level      int
	health     int
	healthOK   bool
	fdEnabled  bool

	fdInFlight atomic.Bool
	destroyed  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	thrMon *monitor
	fdMon  *monitor
}

var _ Device = (*Battery)(nil)

// BatterySupported is the static support predicate: the directory must
// expose at least one recognized end-threshold control file.
func BatterySupported(dir string) bool {
	_, ok := sysfs.FindFirst(dir, sysfs.EndThresholdFiles)
	return ok
}

// NewBattery builds an uninitialized controller for the battery behind dir.
// The name is derived from the directory path and validated; a malformed
// name is a constructor error, not a runtime false.
func NewBattery(dir string, runner helper.Runner, pollInterval time.Duration) (*Battery, error) {
	name := filepath.Base(filepath.Clean(dir))
	if !batteryNameRE.MatchString(name) {
		return nil, errors.Errorf("invalid battery name %q derived from %q", name, dir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Battery{
		name:         name,
		dir:          dir,
		runner:       runner,
		pollInterval: pollInterval,
		backoff:      verifyBackoff,
		thresholds:   ThresholdPair{Start: ThresholdUnknown, End: ThresholdUnknown},
		emitter:      events.NewEmitter(),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

func (b *Battery) Name() string { return b.name }
func (b *Battery) Kind() Kind   { return KindBattery }

func (b *Battery) Events() *events.Emitter { return b.emitter }

func (b *Battery) log() *logrus.Entry {
	return logrus.WithField("battery", b.name)
}

// Initialize probes the control files, loads the initial values and starts
// change monitoring. Returns false when the battery exposes no recognized
// end-threshold control.
func (b *Battery) Initialize(ctx context.Context) bool {
	if b.destroyed.Load() {
		return false
	}

	endPath, ok := sysfs.FindFirst(b.dir, sysfs.EndThresholdFiles)
	if !ok {
		b.log().Error("no recognized end-threshold control file")
		return false
	}
	b.endPath = endPath

	if p, ok := sysfs.FindFirst(b.dir, sysfs.StartThresholdFiles); ok {
		b.startPath = p
	}
	if sysfs.Exists(b.dir, sysfs.CapacityFile) {
		b.capacityPath = filepath.Join(b.dir, sysfs.CapacityFile)
	}
	if sysfs.Exists(b.dir, sysfs.BehaviourFile) {
		p := filepath.Join(b.dir, sysfs.BehaviourFile)
		if beh, err := sysfs.ReadBehaviour(p); err == nil && beh.Supports(sysfs.BehaviourForceDischarge) {
			b.behaviourPath = p
			b.supportsFD = true
		}
	}

	b.missingHelper = b.runner == nil || !b.runner.Available()
	if b.missingHelper {
		b.log().Warn("privileged helper not found; battery control is read-only")
	}

	// Initial refresh populates the cache silently.
	b.refresh(false)

	if err := b.startMonitors(); err != nil {
		b.log().Errorf("failed to start change monitoring: %v", err)
		return false
	}

	b.log().WithFields(logrus.Fields{
		"endPath":        b.endPath,
		"startPath":      b.startPath,
		"forceDischarge": b.supportsFD,
	}).Debug("battery controller initialized")
	return true
}

func (b *Battery) startMonitors() error {
	paths := []string{b.endPath}
	if b.startPath != "" {
		paths = append(paths, b.startPath)
	}
	thrMon, err := newMonitor(paths, b.pollInterval, func(string) {
		if b.destroyed.Load() {
			return
		}
		b.reconcileThresholds()
	})
	if err != nil {
		return err
	}
	b.thrMon = thrMon

	if b.supportsFD {
		fdMon, err := newMonitor([]string{b.behaviourPath}, b.pollInterval, func(string) {
			if b.destroyed.Load() {
				return
			}
			b.reconcileForceDischarge()
		})
		if err != nil {
			thrMon.close()
			return err
		}
		b.fdMon = fdMon
	}
	return nil
}

func (b *Battery) SupportsForceDischarge() bool { return b.supportsFD }
func (b *Battery) HasStartThreshold() bool      { return b.startPath != "" }
func (b *Battery) NeedsHelper() bool            { return b.missingHelper }

func (b *Battery) Thresholds() ThresholdPair {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.thresholds
}

func (b *Battery) ForceDischarge() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fdEnabled
}

func (b *Battery) BatteryLevel() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

func (b *Battery) Health() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.health, b.healthOK
}

// SetThresholds writes a new threshold pair through the helper. The write
// order depends on the currently active end threshold: writing the larger
// boundary first avoids a transient start >= end on disk.
func (b *Battery) SetThresholds(ctx context.Context, start, end int) bool {
	if b.destroyed.Load() {
		return false
	}
	if b.missingHelper {
		b.log().Error("cannot set thresholds: privileged helper is not installed; " +
			"install the helper and restart the daemon")
		return false
	}
	if start < 0 || start > 100 || end < 0 || end > 100 {
		b.log().Errorf("thresholds out of range: start=%d end=%d", start, end)
		return false
	}
	if b.HasStartThreshold() && start >= end {
		b.log().Errorf("start threshold %d must be below end threshold %d", start, end)
		return false
	}

	// Do not react to our own write.
	resume := b.thrMon.suspend()
	emitted := false
	defer func() {
		resume()
		// Close the race window with a concurrent external write: if this
		// call did not emit, re-read and emit on any drift from cache.
		if !emitted && !b.destroyed.Load() {
			b.reconcileThresholds()
		}
	}()

	command, args := b.thresholdCommand(start, end)
	status, err := b.runner.Run(ctx, command, args...)
	if b.destroyed.Load() {
		return false
	}

	switch status {
	case helper.StatusSuccess:
		// fall through below
	case helper.StatusPrivilegeRequired:
		b.log().Errorf("helper needs elevated privileges to set thresholds; "+
			"check the helper's authorization policy: %v", err)
		return false
	case helper.StatusCommandNotFound:
		b.log().Errorf("helper executable went missing: %v", err)
		return false
	default:
		b.log().Errorf("helper failed to set thresholds: %v", err)
		return false
	}

	// Re-read what actually landed; trust the requested values only when
	// the re-read fails.
	newPair := ThresholdPair{Start: start, End: end}
	if v, err := sysfs.ReadInt(b.endPath); err == nil {
		newPair.End = v
	}
	if b.startPath != "" {
		if v, err := sysfs.ReadInt(b.startPath); err == nil {
			newPair.Start = v
		}
	}

	b.mu.Lock()
	b.thresholds = newPair
	b.mu.Unlock()

	emitted = true
	b.emitter.EmitThresholdChanged(newPair.Start, newPair.End)
	b.log().Infof("thresholds set to %d-%d", newPair.Start, newPair.End)
	return true
}

// thresholdCommand picks the helper command variant and argument order.
func (b *Battery) thresholdCommand(start, end int) (string, []string) {
	if !b.HasStartThreshold() {
		return helper.EndCommand(b.name), []string{strconv.Itoa(end)}
	}

	currentEnd := b.Thresholds().End
	if v, err := sysfs.ReadInt(b.endPath); err == nil {
		currentEnd = v
	}

	if start >= currentEnd {
		return helper.EndStartCommand(b.name), []string{strconv.Itoa(end), strconv.Itoa(start)}
	}
	return helper.StartEndCommand(b.name), []string{strconv.Itoa(start), strconv.Itoa(end)}
}

// SetForceDischarge toggles the charge behaviour through the helper and
// verifies the mode actually changed on disk with backoff polling. When
// verification never succeeds, the cache is reconciled to the observed mode
// and the call reports failure.
func (b *Battery) SetForceDischarge(ctx context.Context, enabled bool) bool {
	if b.destroyed.Load() {
		return false
	}
	if !b.supportsFD {
		b.log().Debug("force-discharge not supported")
		return false
	}
	if b.missingHelper {
		b.log().Error("cannot set force-discharge: privileged helper is not installed")
		return false
	}
	if !b.fdInFlight.CompareAndSwap(false, true) {
		b.log().Debug("force-discharge write already in flight")
		return false
	}

	resume := b.fdMon.suspend()
	defer func() {
		b.fdInFlight.Store(false)
		resume()
		// One more look after the monitor is back, in case the mode moved
		// while it was detached.
		if !b.destroyed.Load() {
			b.reconcileForceDischarge()
		}
	}()

	mode := sysfs.BehaviourAuto
	if enabled {
		mode = sysfs.BehaviourForceDischarge
	}

	status, err := b.runner.Run(ctx, helper.ForceDischargeCommand(b.name), mode)
	if b.destroyed.Load() {
		return false
	}
	if status != helper.StatusSuccess {
		if status == helper.StatusPrivilegeRequired {
			b.log().Errorf("helper needs elevated privileges to change charge behaviour: %v", err)
		} else {
			b.log().Errorf("helper failed to change charge behaviour (%s): %v", status, err)
		}
		return false
	}

	if !b.verifyBehaviour(ctx, mode) {
		if b.destroyed.Load() {
			return false
		}
		// The hardware never reached the requested mode. Reconcile to what
		// is actually on disk and tell listeners about that state, not the
		// requested one.
		b.log().Warnf("charge behaviour did not converge to %q; reverting to observed state", mode)
		actual := b.readForceDischarge()
		b.mu.Lock()
		b.fdEnabled = actual
		b.mu.Unlock()
		b.emitter.EmitForceDischargeChanged(actual)
		return false
	}

	b.mu.Lock()
	b.fdEnabled = enabled
	b.mu.Unlock()
	b.emitter.EmitForceDischargeChanged(enabled)
	b.log().Infof("force-discharge %s", mode)
	return true
}

// verifyBehaviour polls the behaviour file until its active mode matches
// want. The first check is immediate; each subsequent check waits out the
// next backoff delay. Returns false on exhaustion or destruction.
func (b *Battery) verifyBehaviour(ctx context.Context, want string) bool {
	if b.behaviourActive() == want {
		return true
	}
	for _, delay := range b.backoff {
		if !b.sleepFor(ctx, delay) {
			return false
		}
		if b.behaviourActive() == want {
			return true
		}
	}
	return false
}

func (b *Battery) behaviourActive() string {
	beh, err := sysfs.ReadBehaviour(b.behaviourPath)
	if err != nil {
		b.log().Debugf("failed to read charge behaviour: %v", err)
		return ""
	}
	return beh.Active
}

// sleepFor waits out d unless the call context or the device lifetime is
// cancelled first. Destroy unblocks every pending sleep immediately.
func (b *Battery) sleepFor(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return !b.destroyed.Load()
	case <-ctx.Done():
		return false
	case <-b.ctx.Done():
		return false
	}
}

// RefreshValues resynchronizes all cached values from sysfs, notifying only
// on actual change.
func (b *Battery) RefreshValues(_ context.Context) {
	if b.destroyed.Load() {
		return
	}
	b.refresh(true)
}

func (b *Battery) refresh(emit bool) {
	b.refreshThresholds(emit)
	b.refreshLevel()
	b.refreshHealth()
	if b.supportsFD {
		b.refreshForceDischarge(emit)
	}
}

// reconcileThresholds re-reads the threshold files and emits when the
// observed pair differs from cache. Used by the change monitor and by the
// post-write reconciliation step.
func (b *Battery) reconcileThresholds() {
	b.refreshThresholds(true)
}

func (b *Battery) reconcileForceDischarge() {
	b.refreshForceDischarge(true)
}

func (b *Battery) refreshThresholds(emit bool) {
	pair := b.Thresholds()
	// Single read failures fall back to the cached value.
	if v, err := sysfs.ReadInt(b.endPath); err == nil {
		pair.End = v
	}
	if b.startPath != "" {
		if v, err := sysfs.ReadInt(b.startPath); err == nil {
			pair.Start = v
		}
	}

	b.mu.Lock()
	changed := pair != b.thresholds
	b.thresholds = pair
	b.mu.Unlock()

	if emit && changed && !b.destroyed.Load() {
		b.emitter.EmitThresholdChanged(pair.Start, pair.End)
	}
}

func (b *Battery) refreshForceDischarge(emit bool) {
	enabled := b.readForceDischarge()

	b.mu.Lock()
	changed := enabled != b.fdEnabled
	b.fdEnabled = enabled
	b.mu.Unlock()

	if emit && changed && !b.destroyed.Load() {
		b.emitter.EmitForceDischargeChanged(enabled)
	}
}

func (b *Battery) readForceDischarge() bool {
	return b.behaviourActive() == sysfs.BehaviourForceDischarge
}

func (b *Battery) refreshLevel() {
	if b.capacityPath == "" {
		return
	}
	v, err := sysfs.ReadInt(b.capacityPath)
	if err != nil {
		b.log().Debugf("failed to read capacity: %v", err)
		return
	}
	b.mu.Lock()
	b.level = v
	b.mu.Unlock()
}

// refreshHealth computes full-charge capacity as a percentage of design
// capacity. The energy_* pair is preferred; drivers that do not expose it
// usually expose the charge_* pair instead.
func (b *Battery) refreshHealth() {
	health, ok := b.readHealthRatio(sysfs.EnergyFullFile, sysfs.EnergyFullDesignFile)
	if !ok {
		health, ok = b.readHealthRatio(sysfs.ChargeFullFile, sysfs.ChargeFullDesignFile)
	}

	b.mu.Lock()
	b.health = health
	b.healthOK = ok
	b.mu.Unlock()
}

func (b *Battery) readHealthRatio(fullName, designName string) (int, bool) {
	full, err := sysfs.ReadInt(filepath.Join(b.dir, fullName))
	if err != nil {
		return 0, false
	}
	design, err := sysfs.ReadInt(filepath.Join(b.dir, designName))
	if err != nil || design <= 0 {
		return 0, false
	}
	pct := full * 100 / design
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// Destroy cancels pending sleeps, stops the monitors and silences the
// emitter. Safe to call more than once; only the first call does work.
func (b *Battery) Destroy() {
	b.once.Do(func() {
		b.destroyed.Store(true)
		b.cancel()
		if b.thrMon != nil {
			b.thrMon.close()
		}
		if b.fdMon != nil {
			b.fdMon.close()
		}
		b.emitter.Close()
		b.log().Debug("battery controller destroyed")
	})
}
