// Package semver implements release version arithmetic on top of
// [github.com/Masterminds/semver/v3].
//
// Bumps follow the usual increment rules:
//
//	1.2.3 + patch              → 1.2.4
//	1.2.3 + premajor           → 2.0.0-0
//	1.2.3 + prerelease (beta)  → 1.2.4-beta.0
//	1.2.4-beta.0 + prerelease  → 1.2.4-beta.1
package semver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/cratestack/pkg/errors"
)

// Bump is a version increment keyword.
type Bump string

const (
	Major      Bump = "major"
	Minor      Bump = "minor"
	Patch      Bump = "patch"
	Premajor   Bump = "premajor"
	Preminor   Bump = "preminor"
	Prepatch   Bump = "prepatch"
	Prerelease Bump = "prerelease"
	Skip       Bump = "skip"
	Custom     Bump = "custom"
)

// Bumps lists every keyword in prompt order.
var Bumps = []Bump{Patch, Minor, Major, Prepatch, Preminor, Premajor, Prerelease, Skip, Custom}

// ParseBump parses a bump keyword.
func ParseBump(s string) (Bump, error) {
	b := Bump(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Bumps {
		if b == known {
			return b, nil
		}
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "unknown bump %q (want one of %s)", s, joinBumps())
}

func joinBumps() string {
	s := make([]string, len(Bumps))
	for i, b := range Bumps {
		s[i] = string(b)
	}
	return strings.Join(s, ", ")
}

// ParseVersion parses a strict x.y.z[-pre][+meta] version.
func ParseVersion(s string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(s), "v"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid version %q", s)
	}
	return v, nil
}

// Apply returns v bumped by b. preid is the prerelease identifier for the
// pre* bumps; empty means a bare numeric counter. For Custom, use
// [ApplyCustom].
func Apply(v *semver.Version, b Bump, preid string) (*semver.Version, error) {
	switch b {
	case Major:
		next := v.IncMajor()
		return &next, nil
	case Minor:
		next := v.IncMinor()
		return &next, nil
	case Patch:
		next := v.IncPatch()
		return &next, nil
	case Premajor:
		return withPre(semver.New(v.Major()+1, 0, 0, "", ""), startPre(preid))
	case Preminor:
		return withPre(semver.New(v.Major(), v.Minor()+1, 0, "", ""), startPre(preid))
	case Prepatch:
		return withPre(semver.New(v.Major(), v.Minor(), v.Patch()+1, "", ""), startPre(preid))
	case Prerelease:
		return prerelease(v, preid)
	case Skip:
		return v, nil
	case Custom:
		return nil, errors.New(errors.ErrCodeInvalidInput, "custom bump needs an explicit version")
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "unknown bump %q", b)
}

// ApplyCustom validates a user-supplied version against the current one.
func ApplyCustom(current *semver.Version, custom string) (*semver.Version, error) {
	next, err := ParseVersion(custom)
	if err != nil {
		return nil, err
	}
	if !next.GreaterThan(current) {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"custom version %s must be greater than the current version %s", next, current)
	}
	return next, nil
}

func startPre(preid string) string {
	if preid == "" {
		return "0"
	}
	return preid + ".0"
}

func withPre(v *semver.Version, pre string) (*semver.Version, error) {
	next, err := v.SetPrerelease(pre)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "prerelease %q", pre)
	}
	return &next, nil
}

// prerelease increments the trailing counter of an existing prerelease
// with the same identifier, or starts a new one. Switching identifiers
// must still move the version forward (beta to rc, not beta to alpha).
func prerelease(v *semver.Version, preid string) (*semver.Version, error) {
	pre := v.Prerelease()
	if pre == "" {
		return withPre(semver.New(v.Major(), v.Minor(), v.Patch()+1, "", ""), startPre(preid))
	}

	parts := strings.Split(pre, ".")
	if preid != "" && parts[0] != preid {
		next, err := withPre(semver.New(v.Major(), v.Minor(), v.Patch(), "", ""), startPre(preid))
		if err != nil {
			return nil, err
		}
		if !next.GreaterThan(v) {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"prerelease %s would not be greater than %s; use prepatch or a custom version", next, v)
		}
		return next, nil
	}

	last := len(parts) - 1
	if n, err := strconv.ParseUint(parts[last], 10, 64); err == nil {
		parts[last] = strconv.FormatUint(n+1, 10)
	} else {
		parts = append(parts, "0")
	}
	return withPre(semver.New(v.Major(), v.Minor(), v.Patch(), "", ""), strings.Join(parts, "."))
}

// Requirement rewrites a dependency requirement so that it accepts v.
// With exact the result pins v with `=`. Otherwise the result is Cargo's
// default caret range: the bare version, or `^version` when old spelled
// the caret out. A wildcard requirement already accepts v and is kept.
func Requirement(old string, v *semver.Version, exact bool) string {
	old = strings.TrimSpace(old)
	switch {
	case exact:
		return "=" + v.String()
	case old == "*":
		return old
	case strings.HasPrefix(old, "^"):
		return "^" + v.String()
	default:
		return v.String()
	}
}

// Satisfies reports whether v matches a Cargo requirement. Bare versions
// are caret ranges, as in Cargo.
func Satisfies(req string, v *semver.Version) (bool, error) {
	var parts []string
	for _, p := range strings.Split(req, ",") {
		p = strings.TrimSpace(p)
		if p != "" && p[0] >= '0' && p[0] <= '9' {
			p = "^" + p
		}
		parts = append(parts, p)
	}
	c, err := semver.NewConstraint(strings.Join(parts, ", "))
	if err != nil {
		return false, fmt.Errorf("requirement %q: %w", req, err)
	}
	return c.Check(v), nil
}
