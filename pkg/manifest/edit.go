package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var (
	// ErrNoVersionField is returned when a setter finds no version string
	// to replace.
	ErrNoVersionField = errors.New("version field not found")
	// ErrNoNameField is returned by [Editor.SetPackageName] for a manifest
	// without [package].name.
	ErrNoNameField = errors.New("name field not found")
)

var (
	headerRe        = regexp.MustCompile(`^\s*\[\s*([^\[\]]+?)\s*\]\s*(#.*)?$`)
	arrayHeaderRe   = regexp.MustCompile(`^\s*\[\[\s*([^\[\]]+?)\s*\]\]\s*(#.*)?$`)
	keyValueRe      = regexp.MustCompile(`^(\s*)((?:[A-Za-z0-9_-]+|"[^"]*"|'[^']*')(?:\s*\.\s*(?:[A-Za-z0-9_-]+|"[^"]*"|'[^']*'))*)(\s*=\s*)(.*)$`)
	stringValueRe   = regexp.MustCompile(`^("[^"\\]*(?:\\.[^"\\]*)*"|'[^']*')`)
	inlineVersionRe = regexp.MustCompile(`((?:^|[{,])\s*version\s*=\s*)("[^"\\]*(?:\\.[^"\\]*)*"|'[^']*')`)
	inlinePackageRe = regexp.MustCompile(`((?:^|[{,])\s*package\s*=\s*)("[^"\\]*(?:\\.[^"\\]*)*"|'[^']*')`)
)

// line is one physical line of the document and the table it sits in.
type line struct {
	text    string // without line terminator
	eol     string
	section []string
	// key and value are set for key/value lines outside multi-line
	// constructs.
	key    []string
	prefix string // everything before the value
	value  string
}

// Editor performs format-preserving edits of a manifest.
type Editor struct {
	lines []line
}

// NewEditor indexes data for editing.
func NewEditor(data []byte) *Editor {
	e := &Editor{}
	var (
		section   []string
		multiline string // open """ or ''' delimiter
		depth     int    // open [ of a multi-line array
	)
	for _, raw := range splitLines(string(data)) {
		l := line{text: raw.text, eol: raw.eol, section: section}
		switch {
		case multiline != "":
			if strings.Count(l.text, multiline)%2 == 1 {
				multiline = ""
			}
		case depth > 0:
			depth += bracketDelta(l.text)
		default:
			if m := arrayHeaderRe.FindStringSubmatch(l.text); m != nil {
				section = splitKey(m[1])
				l.section = section
			} else if m := headerRe.FindStringSubmatch(l.text); m != nil {
				section = splitKey(m[1])
				l.section = section
			} else if m := keyValueRe.FindStringSubmatch(l.text); m != nil {
				l.key = splitKey(m[2])
				l.prefix = m[1] + m[2] + m[3]
				l.value = m[4]
				for _, delim := range []string{`"""`, `'''`} {
					if strings.HasPrefix(l.value, delim) && strings.Count(l.value, delim)%2 == 1 {
						multiline = delim
					}
				}
				if multiline == "" {
					depth = bracketDelta(l.value)
					if depth < 0 {
						depth = 0
					}
				}
			}
		}
		e.lines = append(e.lines, l)
	}
	return e
}

// Bytes returns the edited document.
func (e *Editor) Bytes() []byte {
	var buf bytes.Buffer
	for _, l := range e.lines {
		buf.WriteString(l.text)
		buf.WriteString(l.eol)
	}
	return buf.Bytes()
}

// SetPackageVersion rewrites [package].version.
func (e *Editor) SetPackageVersion(version string) error {
	if e.setString([]string{"package"}, []string{"version"}, version) {
		return nil
	}
	return fmt.Errorf("package.version: %w", ErrNoVersionField)
}

// SetWorkspaceVersion rewrites [workspace.package].version.
func (e *Editor) SetWorkspaceVersion(version string) error {
	if e.setString([]string{"workspace", "package"}, []string{"version"}, version) {
		return nil
	}
	if e.setString([]string{"workspace"}, []string{"package", "version"}, version) {
		return nil
	}
	return fmt.Errorf("workspace.package.version: %w", ErrNoVersionField)
}

// SetDependencyReq rewrites the version requirement of the dependency
// stored under key in the table at section. It reports whether an entry
// was changed; entries without a version requirement are left alone.
//
// All four spellings are handled:
//
//	foo = "1.0"
//	foo = { path = "../foo", version = "1.0" }
//	foo.version = "1.0"
//	[dependencies.foo]
//	version = "1.0"
func (e *Editor) SetDependencyReq(section []string, key, req string) (bool, error) {
	for i := range e.lines {
		l := &e.lines[i]
		if l.key == nil {
			continue
		}
		switch {
		case equalPath(l.section, section) && equalPath(l.key, []string{key}):
			if strings.HasPrefix(l.value, "{") {
				return e.replaceInline(l, req)
			}
			if ok := replaceString(l, req); ok {
				return true, nil
			}
			return false, fmt.Errorf("%s.%s: unexpected value %q", SectionString(section), key, l.value)
		case equalPath(l.section, section) && equalPath(l.key, []string{key, "version"}):
			return replaceString(l, req), nil
		case equalPath(l.section, append(clone(section), key)) && equalPath(l.key, []string{"version"}):
			return replaceString(l, req), nil
		}
	}
	return false, nil
}

// SetPackageName rewrites [package].name.
func (e *Editor) SetPackageName(name string) error {
	if e.setString([]string{"package"}, []string{"name"}, name) {
		return nil
	}
	return fmt.Errorf("package.name: %w", ErrNoNameField)
}

// RenameDependency points the dependency stored under key in the table at
// section to the package name. An existing `package = "..."` is rewritten;
// otherwise one is added and the key is kept, so code still refers to the
// crate by its old name. It reports whether the entry was found.
//
//	foo = "1.0"                  → foo = { version = "1.0", package = "bar" }
//	foo = { path = "../foo" }    → foo = { path = "../foo", package = "bar" }
//	foo.path = "../foo"          → foo.package = "bar" is added below
//	[dependencies.foo]           → package = "bar" is added below
func (e *Editor) RenameDependency(section []string, key, name string) (bool, error) {
	table := append(clone(section), key)
	for i := range e.lines {
		l := &e.lines[i]
		switch {
		case l.key != nil && equalPath(l.section, section) && equalPath(l.key, []string{key}):
			if strings.HasPrefix(l.value, "{") {
				return true, setInlinePackage(l, name)
			}
			loc := stringValueRe.FindStringIndex(l.value)
			if loc == nil {
				return false, fmt.Errorf("%s.%s: unexpected value %q", SectionString(section), key, l.value)
			}
			l.value = "{ version = " + l.value[:loc[1]] + `, package = "` + name + `" }` + l.value[loc[1]:]
			l.text = l.prefix + l.value
			return true, nil

		case l.key != nil && equalPath(l.section, section) && len(l.key) == 2 && l.key[0] == key:
			if j := e.find(section, []string{key, "package"}); j >= 0 {
				return replaceString(&e.lines[j], name), nil
			}
			keyText := strings.TrimSpace(l.prefix)
			keyText = strings.TrimSpace(strings.TrimSuffix(keyText, "="))
			keyText = keyText[:strings.LastIndex(keyText, ".")]
			indent := l.text[:len(l.text)-len(strings.TrimLeft(l.text, " \t"))]
			e.insertAfter(i, indent+strings.TrimSpace(keyText)+".package = ", `"`+name+`"`, section, []string{key, "package"})
			return true, nil

		case l.key == nil && equalPath(l.section, table):
			// First line of the table is its header.
			if j := e.find(table, []string{"package"}); j >= 0 {
				return replaceString(&e.lines[j], name), nil
			}
			e.insertAfter(i, "package = ", `"`+name+`"`, table, []string{"package"})
			return true, nil
		}
	}
	return false, nil
}

func setInlinePackage(l *line, name string) error {
	if loc := inlinePackageRe.FindStringSubmatchIndex(l.value); loc != nil {
		l.value = l.value[:loc[4]] + requote(l.value[loc[4]:loc[5]], name) + l.value[loc[5]:]
		l.text = l.prefix + l.value
		return nil
	}
	end := closingBrace(l.value)
	if end < 0 {
		return fmt.Errorf("unterminated inline table %q", l.value)
	}
	body := l.value[:end]
	trimmed := strings.TrimRight(body, " \t")
	sep := ", "
	if strings.HasSuffix(trimmed, "{") {
		sep = " "
	}
	l.value = trimmed + sep + `package = "` + name + `"` + body[len(trimmed):] + l.value[end:]
	l.text = l.prefix + l.value
	return nil
}

// closingBrace returns the index of the brace closing the inline table
// that value starts with, or -1.
func closingBrace(value string) int {
	var (
		depth int
		quote byte
	)
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// find returns the index of the key/value line at section and key, or -1.
func (e *Editor) find(section, key []string) int {
	for i, l := range e.lines {
		if l.key != nil && equalPath(l.section, section) && equalPath(l.key, key) {
			return i
		}
	}
	return -1
}

// insertAfter adds a key/value line after line i.
func (e *Editor) insertAfter(i int, prefix, value string, section, key []string) {
	l := line{text: prefix + value, eol: e.lines[i].eol, section: section, key: key, prefix: prefix, value: value}
	if l.eol == "" {
		e.lines[i].eol = "\n"
	}
	e.lines = slices.Insert(e.lines, i+1, l)
}

func (e *Editor) replaceInline(l *line, req string) (bool, error) {
	loc := inlineVersionRe.FindStringSubmatchIndex(l.value)
	if loc == nil {
		return false, nil
	}
	quoted := l.value[loc[4]:loc[5]]
	l.value = l.value[:loc[4]] + requote(quoted, req) + l.value[loc[5]:]
	l.text = l.prefix + l.value
	return true, nil
}

func (e *Editor) setString(section, key []string, value string) bool {
	for i := range e.lines {
		l := &e.lines[i]
		if l.key != nil && equalPath(l.section, section) && equalPath(l.key, key) {
			return replaceString(l, value)
		}
	}
	return false
}

// replaceString swaps the leading string literal of a value, keeping its
// quote style and anything after it (typically a comment).
func replaceString(l *line, value string) bool {
	loc := stringValueRe.FindStringIndex(l.value)
	if loc == nil {
		return false
	}
	l.value = requote(l.value[:loc[1]], value) + l.value[loc[1]:]
	l.text = l.prefix + l.value
	return true
}

func requote(old, value string) string {
	if strings.HasPrefix(old, "'") {
		return "'" + value + "'"
	}
	return `"` + value + `"`
}

type rawLine struct{ text, eol string }

func splitLines(s string) []rawLine {
	var out []rawLine
	for s != "" {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			out = append(out, rawLine{text: s})
			break
		}
		text, eol := s[:i], "\n"
		if strings.HasSuffix(text, "\r") {
			text, eol = text[:len(text)-1], "\r\n"
		}
		out = append(out, rawLine{text: text, eol: eol})
		s = s[i+1:]
	}
	return out
}

// splitKey splits a dotted TOML key, unquoting its parts.
func splitKey(s string) []string {
	var (
		parts []string
		cur   strings.Builder
		quote rune
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '.':
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		case r == ' ' || r == '\t':
		default:
			cur.WriteRune(r)
		}
	}
	return append(parts, strings.TrimSpace(cur.String()))
}

// bracketDelta counts unbalanced square brackets outside strings and
// comments.
func bracketDelta(s string) int {
	var (
		n     int
		quote byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#':
			return n
		case c == '[':
			n++
		case c == ']':
			n--
		}
	}
	return n
}

func equalPath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
