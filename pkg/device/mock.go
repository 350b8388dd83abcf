package device

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/events"
)

// MockMarkerFile under the per-application config directory makes discovery
// return a Mock instead of scanning real hardware. Development affordance
// for machines without controllable batteries.
const MockMarkerFile = "use-mock-device"

// MockMarkerPath returns the marker location, or "" when the user config
// directory cannot be determined.
func MockMarkerPath(appDir string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, appDir, MockMarkerFile)
}

// Mock is an in-memory Device with full capabilities. Tests also use it to
// drive the composite aggregator with scripted failures.
type Mock struct {
	name    string
	emitter *events.Emitter

	mu        sync.Mutex
	pair      ThresholdPair
	level     int
	health    int
	healthOK  bool
	fdEnabled bool

	destroyed atomic.Bool
	once      sync.Once

	// Capability and failure knobs for tests.
	SupportsFD    bool
	StartSupport  bool
	MissingHelper bool
	FailWrites    bool
}

var _ Device = (*Mock)(nil)

func NewMock(name string) *Mock {
	return &Mock{
		name:         name,
		emitter:      events.NewEmitter(),
		pair:         ThresholdPair{Start: 75, End: 80},
		level:        67,
		health:       91,
		healthOK:     true,
		SupportsFD:   true,
		StartSupport: true,
	}
}

func (m *Mock) Name() string { return m.name }
func (m *Mock) Kind() Kind   { return KindMock }

func (m *Mock) Events() *events.Emitter { return m.emitter }

func (m *Mock) Initialize(_ context.Context) bool {
	logrus.WithField("battery", m.name).Info("using mock battery device")
	return !m.destroyed.Load()
}

func (m *Mock) Thresholds() ThresholdPair {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pair
}

func (m *Mock) SetThresholds(_ context.Context, start, end int) bool {
	if m.destroyed.Load() || m.MissingHelper || m.FailWrites {
		return false
	}
	if start < 0 || start > 100 || end < 0 || end > 100 {
		return false
	}
	if m.StartSupport && start >= end {
		return false
	}
	m.mu.Lock()
	m.pair = ThresholdPair{Start: start, End: end}
	m.mu.Unlock()
	m.emitter.EmitThresholdChanged(start, end)
	return true
}

func (m *Mock) ForceDischarge() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fdEnabled
}

func (m *Mock) SetForceDischarge(_ context.Context, enabled bool) bool {
	if m.destroyed.Load() || !m.SupportsFD || m.MissingHelper || m.FailWrites {
		return false
	}
	m.mu.Lock()
	m.fdEnabled = enabled
	m.mu.Unlock()
	m.emitter.EmitForceDischargeChanged(enabled)
	return true
}

func (m *Mock) BatteryLevel() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

func (m *Mock) Health() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health, m.healthOK
}

// SetBatteryLevel adjusts the reported charge; test hook.
func (m *Mock) SetBatteryLevel(level int) {
	m.mu.Lock()
	m.level = level
	m.mu.Unlock()
}

// SetHealth adjusts the reported health; ok=false makes it unknown.
func (m *Mock) SetHealth(health int, ok bool) {
	m.mu.Lock()
	m.health = health
	m.healthOK = ok
	m.mu.Unlock()
}

func (m *Mock) RefreshValues(_ context.Context) {}

func (m *Mock) SupportsForceDischarge() bool { return m.SupportsFD }
func (m *Mock) HasStartThreshold() bool      { return m.StartSupport }
func (m *Mock) NeedsHelper() bool            { return m.MissingHelper }

func (m *Mock) Destroy() {
	m.once.Do(func() {
		m.destroyed.Store(true)
		m.emitter.Close()
	})
}
