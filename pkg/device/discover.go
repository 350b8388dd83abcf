package device

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/helper"
	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/sysfs"
)

// DiscoverOptions configures a discovery pass.
type DiscoverOptions struct {
	// Root of the power-supply class tree; sysfs.DefaultRoot when empty.
	Root string

	// Runner invokes the privileged helper for every built controller.
	Runner helper.Runner

	// PollInterval for the monitor fallback poll; <= 0 disables polling.
	PollInterval time.Duration

	// MockMarker, when non-empty and existing, short-circuits discovery
	// to an in-memory mock device.
	MockMarker string
}

// Discover enumerates power-supply entries, builds and initializes a
// controller per controllable battery, and returns one logical device:
// nil when nothing is controllable, the bare controller for one battery, a
// composite for several. Failures are logged, never propagated; controllers
// built in a failed pass are destroyed before returning.
func Discover(ctx context.Context, opts DiscoverOptions) Device {
	if opts.MockMarker != "" {
		if _, err := os.Stat(opts.MockMarker); err == nil {
			mock := NewMock("MOCKBAT0")
			if !mock.Initialize(ctx) {
				return nil
			}
			return mock
		}
	}

	root := opts.Root
	if root == "" {
		root = sysfs.DefaultRoot
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		logrus.Errorf("failed to enumerate power supplies under %s: %v", root, err)
		return nil
	}

	var candidates []string
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		if isControllableBattery(dir) {
			candidates = append(candidates, e.Name())
		}
	}

	// Numeric-aware ordering makes primary selection deterministic:
	// BAT0 < BAT1 < BAT10.
	sort.Slice(candidates, func(i, j int) bool {
		return naturalLess(candidates[i], candidates[j])
	})

	var ready []Device
	destroyAll := func() {
		for _, d := range ready {
			d.Destroy()
		}
	}

	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			// Abandoned mid-pass: release everything built so far so no
			// monitor or helper process leaks.
			destroyAll()
			logrus.Errorf("discovery aborted: %v", err)
			return nil
		}

		dir := filepath.Join(root, name)
		bat, err := NewBattery(dir, opts.Runner, opts.PollInterval)
		if err != nil {
			logrus.Errorf("skipping %s: %v", name, err)
			continue
		}
		if !bat.Initialize(ctx) {
			logrus.Errorf("failed to initialize %s; skipping", name)
			bat.Destroy()
			continue
		}
		ready = append(ready, bat)
	}

	switch len(ready) {
	case 0:
		logrus.Info("no controllable battery found")
		return nil
	case 1:
		return ready[0]
	}

	comp, err := NewComposite(ready)
	if err != nil {
		destroyAll()
		logrus.Errorf("failed to aggregate batteries: %v", err)
		return nil
	}
	logrus.Infof("aggregating %d batteries as %s", len(ready), comp.Name())
	return comp
}

// isControllableBattery filters to system-scoped, physically present
// batteries that expose a recognized end-threshold control. Peripheral
// batteries (mice, keyboards) carry scope "Device" and are excluded.
func isControllableBattery(dir string) bool {
	typ, err := sysfs.ReadString(filepath.Join(dir, sysfs.TypeFile))
	if err != nil || typ != "Battery" {
		return false
	}
	if scope, err := sysfs.ReadString(filepath.Join(dir, sysfs.ScopeFile)); err == nil && scope == "Device" {
		return false
	}
	if present, err := sysfs.ReadString(filepath.Join(dir, sysfs.PresentFile)); err == nil && present != "1" {
		return false
	}
	return BatterySupported(dir)
}

// naturalLess orders strings with embedded digit runs compared numerically.
func naturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		if isDigit(a[0]) && isDigit(b[0]) {
			an, arest := digitRun(a)
			bn, brest := digitRun(b)
			if an != bn {
				return an < bn
			}
			a, b = arest, brest
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func digitRun(s string) (int, string) {
	n := 0
	i := 0
	for i < len(s) && isDigit(s[i]) {
		n = n*10 + int(s[i]-'0')
		i++
	}
	return n, s[i:]
}
