// Package sysfs reads and parses the kernel control files that expose
// battery charge thresholds, charge behaviour and health counters under
// /sys/class/power_supply. All writes go through the privileged helper
// instead; this package is read-only.
package sysfs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultRoot is where the kernel exposes power-supply devices.
const DefaultRoot = "/sys/class/power_supply"

// Recognized control filenames, in priority order. Different drivers expose
// different names; the first one that exists wins.
var (
	EndThresholdFiles = []string{
		"charge_control_end_threshold",
		"charge_stop_threshold",
	}
	StartThresholdFiles = []string{
		"charge_control_start_threshold",
		"charge_start_threshold",
	}
)

// Fixed attribute filenames.
const (
	CapacityFile         = "capacity"
	BehaviourFile        = "charge_behaviour"
	TypeFile             = "type"
	ScopeFile            = "scope"
	PresentFile          = "present"
	EnergyFullFile       = "energy_full"
	EnergyFullDesignFile = "energy_full_design"
	ChargeFullFile       = "charge_full"
	ChargeFullDesignFile = "charge_full_design"
)

// ReadString returns the whitespace-trimmed content of path.
func ReadString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(b))
	logrus.WithFields(logrus.Fields{
		"path": path,
		"val":  s,
	}).Trace("read sysfs attribute")
	return s, nil
}

// ReadInt reads path as a base-10 integer.
func ReadInt(path string) (int, error) {
	s, err := ReadString(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

// FindFirst returns the full path of the first name under dir that exists.
func FindFirst(dir string, names []string) (string, bool) {
	for _, name := range names {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Exists reports whether the attribute name exists under dir.
func Exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
