package events

import "sync"

// ThresholdListener receives threshold-changed notifications.
type ThresholdListener func(start, end int)

// ForceDischargeListener receives force-discharge-changed notifications.
type ForceDischargeListener func(enabled bool)

// PartialFailureListener receives partial-failure notifications from a
// composite device. failed is a comma-joined list of member names.
type PartialFailureListener func(primary, failed string)

// Emitter is the per-device observer registry. Each device owns one; the
// composite aggregator subscribes to its members' emitters at construction
// and unsubscribes at destruction. Listeners run synchronously on the
// emitting goroutine.
//
// After Close, emits are silently dropped and new subscriptions are inert.
// This is what guarantees that a destroyed device never notifies anyone,
// even if a write or monitor callback was in flight when destruction began.
type Emitter struct {
	mu             sync.Mutex
	closed         bool
	nextID         int
	threshold      map[int]ThresholdListener
	forceDischarge map[int]ForceDischargeListener
	partialFailure map[int]PartialFailureListener
}

func NewEmitter() *Emitter {
	return &Emitter{
		threshold:      make(map[int]ThresholdListener),
		forceDischarge: make(map[int]ForceDischargeListener),
		partialFailure: make(map[int]PartialFailureListener),
	}
}

// OnThresholdChanged registers fn and returns a handle for Unsubscribe.
func (e *Emitter) OnThresholdChanged(fn ThresholdListener) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	if !e.closed {
		e.threshold[e.nextID] = fn
	}
	return e.nextID
}

func (e *Emitter) OnForceDischargeChanged(fn ForceDischargeListener) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	if !e.closed {
		e.forceDischarge[e.nextID] = fn
	}
	return e.nextID
}

func (e *Emitter) OnPartialFailure(fn PartialFailureListener) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	if !e.closed {
		e.partialFailure[e.nextID] = fn
	}
	return e.nextID
}

// Unsubscribe removes the listener with the given handle, whatever its type.
func (e *Emitter) Unsubscribe(id int) {
	e.mu.Lock()
	delete(e.threshold, id)
	delete(e.forceDischarge, id)
	delete(e.partialFailure, id)
	e.mu.Unlock()
}

func (e *Emitter) EmitThresholdChanged(start, end int) {
	for _, fn := range e.thresholdListeners() {
		fn(start, end)
	}
}

func (e *Emitter) EmitForceDischargeChanged(enabled bool) {
	for _, fn := range e.forceDischargeListeners() {
		fn(enabled)
	}
}

func (e *Emitter) EmitPartialFailure(primary, failed string) {
	for _, fn := range e.partialFailureListeners() {
		fn(primary, failed)
	}
}

// Close drops all listeners and turns further emits into no-ops.
func (e *Emitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.threshold = make(map[int]ThresholdListener)
	e.forceDischarge = make(map[int]ForceDischargeListener)
	e.partialFailure = make(map[int]PartialFailureListener)
	e.mu.Unlock()
}

// Listener snapshots are taken under the lock but invoked outside it, so a
// listener may re-subscribe or unsubscribe without deadlocking.

func (e *Emitter) thresholdListeners() []ThresholdListener {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	out := make([]ThresholdListener, 0, len(e.threshold))
	for _, fn := range e.threshold {
		out = append(out, fn)
	}
	return out
}

func (e *Emitter) forceDischargeListeners() []ForceDischargeListener {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	out := make([]ForceDischargeListener, 0, len(e.forceDischarge))
	for _, fn := range e.forceDischarge {
		out = append(out, fn)
	}
	return out
}

func (e *Emitter) partialFailureListeners() []PartialFailureListener {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	out := make([]PartialFailureListener, 0, len(e.partialFailure))
	for _, fn := range e.partialFailure {
		out = append(out, fn)
	}
	return out
}
