// Package version carries the firmware version reported to the host tool.
package version

import (
	"fmt"

	"github.com/coreos/go-semver/semver"
)

// Version is overridden at link time with -ldflags "-X ...version.Version=".
var Version = "0.3.0"

// Current parses Version.
func Current() *semver.Version {
	return semver.New(Version)
}

// Compatible reports whether a host tool built at other can talk to this
// firmware: same major version, and not newer than the firmware.
func Compatible(other string) (bool, error) {
	v, err := semver.NewVersion(other)
	if err != nil {
		return false, fmt.Errorf("parse version %q: %w", other, err)
	}
	cur := Current()
	return v.Major == cur.Major && !cur.LessThan(*v), nil
}

// FromBCD converts a USB bcdDevice release number (0xJJMN) to a semantic
// version string JJ.M.N.
func FromBCD(release uint16) string {
	hi := release >> 8
	major := (hi>>4)*10 + hi&0x0f
	return fmt.Sprintf("%d.%d.%d", major, (release>>4)&0x0f, release&0x0f)
}
