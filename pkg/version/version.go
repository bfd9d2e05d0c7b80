// Package version parses and checks LWM2M enabler versions and binding
// modes sent during registration.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Current is the enabler version registered by default.
const Current = "1.0"

// ErrUnsupported is returned for a well-formed version this client does not
// speak.
var ErrUnsupported = errors.New("unsupported version")

// Enabler is a parsed "major.minor" LWM2M enabler version.
type Enabler struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Enabler, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minor, ".") {
		return Enabler{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	maj, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return Enabler{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	mnr, err := strconv.ParseUint(minor, 10, 16)
	if err != nil {
		return Enabler{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}
	return Enabler{Major: uint16(maj), Minor: uint16(mnr)}, nil
}

// String returns the version as "major.minor".
func (v Enabler) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v Enabler) Compatible(other Enabler) bool {
	return v.Major == other.Major
}

// Check returns an error unless s is a version compatible with Current.
func Check(s string) error {
	v, err := Parse(s)
	if err != nil {
		return err
	}
	current, _ := Parse(Current)
	if !current.Compatible(v) {
		return fmt.Errorf("%w: %s", ErrUnsupported, s)
	}
	return nil
}

// CheckBinding validates a binding mode string: a transport (U or S, or
// both) optionally followed by Q for queue mode.
func CheckBinding(b string) error {
	transports := strings.TrimSuffix(b, "Q")
	switch transports {
	case "U", "S", "US":
		return nil
	}
	return fmt.Errorf("invalid binding %q", b)
}
