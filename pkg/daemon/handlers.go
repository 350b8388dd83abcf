package daemon

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/device"
	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/version"
)

// Capabilities is the read-only capability surface reported to clients.
type Capabilities struct {
	Name                   string      `json:"name"`
	Kind                   device.Kind `json:"kind"`
	SupportsForceDischarge bool        `json:"supportsForceDischarge"`
	HasStartThreshold      bool        `json:"hasStartThreshold"`
	NeedsHelper            bool        `json:"needsHelper"`
}

func getThresholds(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, dev.Thresholds())
}

func setThresholds(c *gin.Context) {
	var p device.ThresholdPair
	if err := c.BindJSON(&p); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if p.Start < 0 || p.Start > 100 || p.End < 0 || p.End > 100 {
		err := fmt.Errorf("thresholds must be between 0 and 100, got start=%d end=%d", p.Start, p.End)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if dev.HasStartThreshold() && p.Start >= p.End {
		err := fmt.Errorf("start threshold must be below end threshold, got start=%d end=%d", p.Start, p.End)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if !dev.SetThresholds(c.Request.Context(), p.Start, p.End) {
		msg := "failed to set thresholds; see daemon logs"
		if dev.NeedsHelper() {
			msg = "the privileged helper is not installed; battery control is read-only"
		}
		c.IndentedJSON(http.StatusInternalServerError, msg)
		return
	}

	applied := dev.Thresholds()
	c.IndentedJSON(http.StatusCreated,
		fmt.Sprintf("set charging thresholds to %d-%d%%", applied.Start, applied.End))
}

func getForceDischarge(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, dev.ForceDischarge())
}

func setForceDischarge(c *gin.Context) {
	var enabled bool
	if err := c.BindJSON(&enabled); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if !dev.SupportsForceDischarge() {
		c.IndentedJSON(http.StatusBadRequest, "this battery does not support force-discharge")
		return
	}

	if !dev.SetForceDischarge(c.Request.Context(), enabled) {
		c.IndentedJSON(http.StatusInternalServerError,
			"failed to change force-discharge; the hardware state was reconciled, see daemon logs")
		return
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("force-discharge %s", state))
}

func getBatteryLevel(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, dev.BatteryLevel())
}

func getHealth(c *gin.Context) {
	if h, ok := dev.Health(); ok {
		c.IndentedJSON(http.StatusOK, h)
		return
	}
	c.IndentedJSON(http.StatusOK, nil)
}

func getCapabilities(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, Capabilities{
		Name:                   dev.Name(),
		Kind:                   dev.Kind(),
		SupportsForceDischarge: dev.SupportsForceDischarge(),
		HasStartThreshold:      dev.HasStartThreshold(),
		NeedsHelper:            dev.NeedsHelper(),
	})
}

func postRefresh(c *gin.Context) {
	dev.RefreshValues(c.Request.Context())
	c.IndentedJSON(http.StatusOK, "ok")
}

// getEvents streams device notifications as server-sent events.
func getEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")

	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
