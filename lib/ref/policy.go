package ref

import (
	"fmt"
	"strings"
)

// Policy selects how a referrer holds its element
type Policy uint8

const (
	PolicyStrong Policy = iota
	PolicyWeak
	PolicyWeakIdentity
	PolicySoft
	PolicySoftIdentity
	PolicyTime
)

var policyNames = [...]string{
	PolicyStrong:       "STRONG",
	PolicyWeak:         "WEAK",
	PolicyWeakIdentity: "WEAK_IDENTITY",
	PolicySoft:         "SOFT",
	PolicySoftIdentity: "SOFT_IDENTITY",
	PolicyTime:         "TIME",
}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("Policy(%d)", p)
}

// Valid reports whether p is one of the known policies
func (p Policy) Valid() bool {
	return int(p) < len(policyNames)
}

// Identity reports whether referrers of this policy compare by element identity
func (p Policy) Identity() bool {
	return p == PolicyWeakIdentity || p == PolicySoftIdentity
}

// Collectable reports whether the memory manager may reclaim elements held with this policy
func (p Policy) Collectable() bool {
	switch p {
	case PolicyWeak, PolicyWeakIdentity, PolicySoft, PolicySoftIdentity:
		return true
	default:
		return false
	}
}

// ParsePolicy converts a policy name (case-insensitive, '-' or '_' separated) to a Policy
func ParsePolicy(s string) (Policy, error) {
	name := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_")
	for p, n := range policyNames {
		if n == name {
			return Policy(p), nil
		}
	}
	return PolicyStrong, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}
