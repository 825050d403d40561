package session

import (
	"fmt"
	"os/exec"
	"regexp"

	"github.com/Masterminds/semver"
)

var gdbVersionRe = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// targetAsyncConstraint is the oldest GDB line known to support
// "-gdb-set target-async on" reliably under MI2.
var targetAsyncConstraint, _ = semver.NewConstraint(">= 7.7.0")

// ProbeGDBVersion runs "<gdbPath> --version" and parses the first
// dotted-number substring found in its output. GDB's version banner
// format has never been stable enough to parse any more strictly than
// that.
func ProbeGDBVersion(gdbPath string) (*semver.Version, error) {
	out, err := exec.Command(gdbPath, "--version").Output()
	if err != nil {
		return nil, fmt.Errorf("session: run %s --version: %w", gdbPath, err)
	}
	m := gdbVersionRe.FindSubmatch(out)
	if m == nil {
		return nil, fmt.Errorf("session: could not find a version number in %s --version output", gdbPath)
	}
	v, err := semver.NewVersion(string(m[1]))
	if err != nil {
		return nil, fmt.Errorf("session: parse gdb version %q: %w", m[1], err)
	}
	return v, nil
}

// SupportsTargetAsync reports whether v is new enough to set
// target-async, so callers can fall back to synchronous MI exec commands
// on older GDB builds instead of hanging waiting for a "^running" that
// never arrives the way they expect.
func SupportsTargetAsync(v *semver.Version) bool {
	if v == nil {
		return false
	}
	return targetAsyncConstraint.Check(v)
}
