package vcs

import (
	"strings"

	"github.com/matzehuels/cratestack/pkg/errors"
)

// TagEntry is one package version listed in a tag message.
type TagEntry struct {
	Name    string
	Version string
}

// ExpandTagMessage renders a global tag message. Each `%{...}` scope is
// repeated once per entry with %n and %v bound to that entry; afterwards
// %v outside scopes becomes version.
func ExpandTagMessage(template, version string, entries []TagEntry) (string, error) {
	var b strings.Builder
	for i, scope := range strings.Split(template, "%{") {
		if i == 0 {
			b.WriteString(scope)
			continue
		}
		body, rest, ok := strings.Cut(scope, "}")
		if !ok {
			return "", errors.New(errors.ErrCodeInvalidInput, "unterminated %%{ scope in tag message %q", template)
		}
		for _, e := range entries {
			b.WriteString(expandName(body, e.Name, e.Version))
		}
		b.WriteString(rest)
	}
	return strings.ReplaceAll(b.String(), "%v", version), nil
}

// expandName substitutes %n and %v.
func expandName(template, name, version string) string {
	return strings.NewReplacer("%n", name, "%v", version).Replace(template)
}

// commitMessage renders the release commit message: the subject with %v
// expanded, then one name@version line per bumped package.
func commitMessage(subject, version string, entries []TagEntry) string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(subject, "%v", version))
	if len(entries) > 0 {
		b.WriteString("\n\n")
		for i, e := range entries {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(e.Name + "@" + e.Version)
		}
	}
	return b.String()
}
