package client

import (
	"encoding/json"
	"fmt"
	"strconv"

	pkgerrors "github.com/pkg/errors"
)

// ThresholdPair mirrors the daemon's threshold payload.
type ThresholdPair struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Capabilities mirrors the daemon's capability payload.
type Capabilities struct {
	Name                   string `json:"name"`
	Kind                   string `json:"kind"`
	SupportsForceDischarge bool   `json:"supportsForceDischarge"`
	HasStartThreshold      bool   `json:"hasStartThreshold"`
	NeedsHelper            bool   `json:"needsHelper"`
}

func (c *Client) GetThresholds() (ThresholdPair, error) {
	var p ThresholdPair
	ret, err := c.Get("/thresholds")
	if err != nil {
		return p, pkgerrors.Wrapf(err, "failed to get thresholds")
	}
	if err := json.Unmarshal([]byte(ret), &p); err != nil {
		return p, pkgerrors.Wrapf(err, "failed to unmarshal thresholds")
	}
	return p, nil
}

func (c *Client) SetThresholds(start, end int) (string, error) {
	payload, err := json.Marshal(ThresholdPair{Start: start, End: end})
	if err != nil {
		return "", err
	}
	return c.Put("/thresholds", string(payload))
}

func (c *Client) GetForceDischarge() (bool, error) {
	ret, err := c.Get("/force-discharge")
	if err != nil {
		return false, pkgerrors.Wrapf(err, "failed to get force-discharge state")
	}
	return parseBoolResponse(ret)
}

func (c *Client) SetForceDischarge(enabled bool) (string, error) {
	return c.Put("/force-discharge", strconv.FormatBool(enabled))
}

func (c *Client) GetBatteryLevel() (int, error) {
	ret, err := c.Get("/battery-level")
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to get battery level")
	}
	level, err := strconv.Atoi(ret)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to unmarshal battery level")
	}
	return level, nil
}

// GetHealth returns ok=false when the daemon reports health as unknown.
func (c *Client) GetHealth() (int, bool, error) {
	ret, err := c.Get("/health")
	if err != nil {
		return 0, false, pkgerrors.Wrapf(err, "failed to get battery health")
	}
	if ret == "null" || ret == "" {
		return 0, false, nil
	}
	health, err := strconv.Atoi(ret)
	if err != nil {
		return 0, false, pkgerrors.Wrapf(err, "failed to unmarshal battery health")
	}
	return health, true, nil
}

func (c *Client) GetCapabilities() (Capabilities, error) {
	var caps Capabilities
	ret, err := c.Get("/capabilities")
	if err != nil {
		return caps, pkgerrors.Wrapf(err, "failed to get capabilities")
	}
	if err := json.Unmarshal([]byte(ret), &caps); err != nil {
		return caps, pkgerrors.Wrapf(err, "failed to unmarshal capabilities")
	}
	return caps, nil
}

func (c *Client) Refresh() error {
	_, err := c.Post("/refresh", "")
	return err
}

func (c *Client) GetVersion() (string, error) {
	return c.Get("/version")
}

func parseBoolResponse(ret string) (bool, error) {
	b, err := strconv.ParseBool(ret)
	if err != nil {
		return false, fmt.Errorf("failed to parse %q as bool: %w", ret, err)
	}
	return b, nil
}
