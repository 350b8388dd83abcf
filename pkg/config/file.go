package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/helper"
	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/sysfs"
	"github.com/ZviBaratz/hara-hachi-bu-sub001/pkg/utils/ptr"
)

var defaultFileConfig = &RawFileConfig{
	HelperPath: ptr.To(helper.DefaultName),
	SysfsRoot:  ptr.To(sysfs.DefaultRoot),
	// sysfs attributes do not emit inotify events on every kernel, so the
	// monitors keep a slow poll as a safety net.
	PollIntervalSeconds: ptr.To(30),
	AllowNonRootAccess:  ptr.To(false),
}

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

type RawFileConfig struct {
	HelperPath          *string `json:"helperPath,omitempty"`
	SysfsRoot           *string `json:"sysfsRoot,omitempty"`
	PollIntervalSeconds *int    `json:"pollIntervalSeconds,omitempty"`
	AllowNonRootAccess  *bool   `json:"allowNonRootAccess,omitempty"`
}

func (f *File) HelperPath() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.HelperPath != nil {
		return *f.c.HelperPath
	}
	return *defaultFileConfig.HelperPath
}

func (f *File) SysfsRoot() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.SysfsRoot != nil {
		return *f.c.SysfsRoot
	}
	return *defaultFileConfig.SysfsRoot
}

func (f *File) PollInterval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()

	seconds := *defaultFileConfig.PollIntervalSeconds
	if f.c.PollIntervalSeconds != nil {
		seconds = *f.c.PollIntervalSeconds
	}
	return time.Duration(seconds) * time.Second
}

func (f *File) AllowNonRootAccess() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AllowNonRootAccess != nil {
		return *f.c.AllowNonRootAccess
	}
	return *defaultFileConfig.AllowNonRootAccess
}

func (f *File) SetHelperPath(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.HelperPath = ptr.To(p)
}

func (f *File) SetSysfsRoot(root string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SysfsRoot = ptr.To(root)
}

func (f *File) SetPollInterval(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.PollIntervalSeconds = ptr.To(int(d / time.Second))
}

func (f *File) SetAllowNonRootAccess(allow bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AllowNonRootAccess = ptr.To(allow)
}

// Load reads the config file; a missing file yields the defaults.
func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Debugf("config file %s does not exist, using defaults", f.filepath)
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open config file %s", f.filepath)
	}
	defer file.Close()

	b, err := io.ReadAll(file)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read config file %s", f.filepath)
	}

	c := &RawFileConfig{}
	if len(strings.TrimSpace(string(b))) > 0 {
		if err := json.Unmarshal(b, c); err != nil {
			return pkgerrors.Wrapf(err, "failed to parse config file %s", f.filepath)
		}
	}
	f.c = c
	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	b, err := json.MarshalIndent(f.c, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(f.filepath, b, 0o644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write config file %s", f.filepath)
	}
	return nil
}

// LogrusFields renders the effective config for startup logging.
func (f *File) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"helperPath":         f.HelperPath(),
		"sysfsRoot":          f.SysfsRoot(),
		"pollInterval":       f.PollInterval().String(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
	}
}
