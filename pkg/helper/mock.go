package helper

import (
	"context"
	"sync"
)

// Invocation records one Run call on a MockRunner.
type Invocation struct {
	Command string
	Args    []string
}

// MockRunner is an in-memory Runner for tests and the mock device. Each Run
// is recorded; OnRun, when set, can mutate a fake sysfs tree to simulate the
// helper's side effects and override the returned status.
type MockRunner struct {
	mu          sync.Mutex
	invocations []Invocation

	Status Status
	OnRun  func(command string, args ...string) Status
}

// NewMockRunner returns a MockRunner that reports every invocation as
// successful until configured otherwise.
func NewMockRunner() *MockRunner { return &MockRunner{Status: StatusSuccess} }

func (m *MockRunner) Available() bool { return true }

func (m *MockRunner) Run(_ context.Context, command string, args ...string) (Status, error) {
	m.mu.Lock()
	m.invocations = append(m.invocations, Invocation{Command: command, Args: args})
	onRun := m.OnRun
	status := m.Status
	m.mu.Unlock()

	if onRun != nil {
		status = onRun(command, args...)
	}
	return status, nil
}

// Invocations returns a snapshot of all recorded Run calls.
func (m *MockRunner) Invocations() []Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Invocation, len(m.invocations))
	copy(out, m.invocations)
	return out
}
