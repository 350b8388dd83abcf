package device

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// monitor watches a set of control files for external modification via
// inotify, with a periodic poll as fallback (sysfs attributes do not emit
// inotify events on every kernel). Both paths funnel into the same handler,
// which re-reads and compares against cache, so duplicate triggers are
// harmless.
//
// A monitor can be suspended around a write the owner is about to perform,
// so the owner does not react to its own side effects. Suspend returns a
// resume function safe to call exactly once from any exit path.
type monitor struct {
	watcher  *fsnotify.Watcher
	onChange func(path string)

	mu        sync.Mutex
	suspended int

	done      chan struct{}
	closeOnce sync.Once
}

// newMonitor starts watching paths. pollEvery <= 0 disables the fallback
// poll. The handler runs on the monitor goroutine; path is "" for poll
// ticks, meaning "re-check everything".
func newMonitor(paths []string, pollEvery time.Duration, onChange func(path string)) (*monitor, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := w.Add(p); err != nil {
			// Not fatal: the poll fallback still covers this path.
			logrus.WithField("path", p).Debugf("inotify watch failed: %v", err)
		}
	}

	m := &monitor{
		watcher:  w,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go m.run(pollEvery)
	return m, nil
}

func (m *monitor) run(pollEvery time.Duration) {
	var tick <-chan time.Time
	if pollEvery > 0 {
		t := time.NewTicker(pollEvery)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) == 0 {
				continue
			}
			m.fire(ev.Name)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logrus.Debugf("monitor watch error: %v", err)
		case <-tick:
			m.fire("")
		case <-m.done:
			return
		}
	}
}

func (m *monitor) fire(path string) {
	m.mu.Lock()
	suspended := m.suspended > 0
	m.mu.Unlock()
	if !suspended {
		m.onChange(path)
	}
}

// suspend detaches the change handler until the returned resume function is
// called. Suspensions nest.
func (m *monitor) suspend() (resume func()) {
	m.mu.Lock()
	m.suspended++
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.suspended--
			m.mu.Unlock()
		})
	}
}

func (m *monitor) close() {
	m.closeOnce.Do(func() {
		close(m.done)
		if err := m.watcher.Close(); err != nil {
			logrus.Debugf("failed to close watcher: %v", err)
		}
	})
}
