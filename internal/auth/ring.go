package auth

import (
	"fmt"
	"strings"
)

// Ring is a privilege tier. Lower values carry more privilege.
type Ring int

const (
	Ring0 Ring = iota
	Ring1
	Ring2
	Public
)

func (r Ring) String() string {
	switch r {
	case Ring0:
		return "ring0"
	case Ring1:
		return "ring1"
	case Ring2:
		return "ring2"
	case Public:
		return "public"
	default:
		return fmt.Sprintf("ring(%d)", int(r))
	}
}

// Covers reports whether a caller holding r may access something requiring required.
func (r Ring) Covers(required Ring) bool { return r <= required }

// ParseRing maps a config string to a Ring.
func ParseRing(s string) (Ring, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ring0":
		return Ring0, nil
	case "ring1":
		return Ring1, nil
	case "ring2":
		return Ring2, nil
	case "public", "":
		return Public, nil
	default:
		return Public, fmt.Errorf("unknown ring %q", s)
	}
}
