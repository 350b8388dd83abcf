package events

import "encoding/json"

// Event name constants
const (
	ThresholdChanged      = "threshold.changed"
	ForceDischargeChanged = "force-discharge.changed"
	PartialFailure        = "partial.failure"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// ThresholdChangedEvent is the typed payload for threshold.changed.
type ThresholdChangedEvent struct {
	Start int   `json:"start"`
	End   int   `json:"end"`
	Ts    int64 `json:"ts"`
}

// ForceDischargeChangedEvent is the typed payload for force-discharge.changed.
type ForceDischargeChangedEvent struct {
	Enabled bool  `json:"enabled"`
	Ts      int64 `json:"ts"`
}

// PartialFailureEvent is the typed payload for partial.failure. Failed is a
// comma-joined list of the member devices whose write did not succeed.
type PartialFailureEvent struct {
	Primary string `json:"primary"`
	Failed  string `json:"failed"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
