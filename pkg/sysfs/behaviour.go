package sysfs

import (
	"strings"

	"github.com/pkg/errors"
)

// Charge behaviour mode tokens as spelled by the kernel.
const (
	BehaviourAuto           = "auto"
	BehaviourForceDischarge = "force-discharge"
	BehaviourInhibitCharge  = "inhibit-charge"
)

// Behaviour is the parsed content of a charge_behaviour attribute. The file
// lists every supported mode space-separated, with the active one in
// brackets, e.g. "auto [force-discharge] inhibit-charge".
type Behaviour struct {
	Active string
	Modes  []string
}

// Supports reports whether mode is one of the supported tokens.
func (b Behaviour) Supports(mode string) bool {
	for _, m := range b.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// ParseBehaviour parses the bracket syntax of a charge_behaviour line.
func ParseBehaviour(raw string) (Behaviour, error) {
	var b Behaviour
	for _, tok := range strings.Fields(raw) {
		mode := tok
		if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
			mode = tok[1 : len(tok)-1]
			b.Active = mode
		}
		b.Modes = append(b.Modes, mode)
	}
	if len(b.Modes) == 0 {
		return b, errors.Errorf("empty charge_behaviour content %q", raw)
	}
	if b.Active == "" {
		// Single-mode files omit the brackets.
		if len(b.Modes) == 1 {
			b.Active = b.Modes[0]
		} else {
			return b, errors.Errorf("no active mode in charge_behaviour content %q", raw)
		}
	}
	return b, nil
}

// ReadBehaviour reads and parses a charge_behaviour attribute.
func ReadBehaviour(path string) (Behaviour, error) {
	raw, err := ReadString(path)
	if err != nil {
		return Behaviour{}, err
	}
	return ParseBehaviour(raw)
}
