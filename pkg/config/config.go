package config

import "time"

type Config interface {
	HelperPath() string
	SysfsRoot() string
	PollInterval() time.Duration
	AllowNonRootAccess() bool

	SetHelperPath(string)
	SetSysfsRoot(string)
	SetPollInterval(time.Duration)
	SetAllowNonRootAccess(bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
