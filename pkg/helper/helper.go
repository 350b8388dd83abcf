// Package helper invokes the privileged helper executable that performs the
// actual writes to the charge-control files. The helper is an external,
// already-installed and already-authorized program; this package only
// locates it, runs it and classifies its exit status.
package helper

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultName is the helper executable looked up on PATH when the config
// does not name one explicitly.
const DefaultName = "hhbctl"

// Status classifies a helper invocation outcome.
type Status int

const (
	StatusSuccess Status = iota
	StatusPrivilegeRequired
	StatusCommandNotFound
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPrivilegeRequired:
		return "privilege-required"
	case StatusCommandNotFound:
		return "command-not-found"
	default:
		return "failure"
	}
}

// pkexec-style exit codes: 126 when the authentication dialog is dismissed,
// 127 when the caller is not authorized or the program cannot be run.
const (
	exitDismissed     = 126
	exitNotAuthorized = 127
)

// Runner abstracts the helper invocation so controllers can be exercised
// against a recorded fake in tests.
type Runner interface {
	// Run invokes the helper with a command token and its numeric or mode
	// arguments, returning the classified exit status. The error carries
	// detail for logging; callers branch on the Status.
	Run(ctx context.Context, command string, args ...string) (Status, error)

	// Available reports whether the helper executable can be invoked at
	// all. Controllers with an unavailable runner fail writes fast.
	Available() bool
}

// ExecRunner runs the real helper executable.
type ExecRunner struct {
	path string
}

// NewExecRunner resolves nameOrPath via PATH lookup when it is a bare name.
// A failed lookup still returns a runner; it reports Available() == false so
// the device layer can surface a missing-helper state instead of erroring.
func NewExecRunner(nameOrPath string) *ExecRunner {
	if nameOrPath == "" {
		nameOrPath = DefaultName
	}
	path, err := exec.LookPath(nameOrPath)
	if err != nil {
		logrus.WithField("helper", nameOrPath).Debugf("helper lookup failed: %v", err)
		return &ExecRunner{}
	}
	return &ExecRunner{path: path}
}

func (r *ExecRunner) Available() bool { return r != nil && r.path != "" }

func (r *ExecRunner) Run(ctx context.Context, command string, args ...string) (Status, error) {
	if !r.Available() {
		return StatusCommandNotFound, errors.New("helper executable not found")
	}

	argv := append([]string{command}, args...)
	logrus.WithFields(logrus.Fields{
		"helper": r.path,
		"argv":   argv,
	}).Debug("invoking privileged helper")

	cmd := exec.CommandContext(ctx, r.path, argv...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return StatusSuccess, nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return StatusCommandNotFound, errors.Wrap(err, "helper executable not found")
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case exitDismissed, exitNotAuthorized:
			return StatusPrivilegeRequired, errors.Wrapf(err, "helper refused: %s", stderr.String())
		}
		return StatusFailure, errors.Wrapf(err, "helper failed: %s", stderr.String())
	}

	return StatusFailure, errors.Wrap(err, "helper invocation failed")
}
