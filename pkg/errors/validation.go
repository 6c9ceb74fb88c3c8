package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// crateNameRegex matches names accepted by crates.io: ASCII alphanumerics,
// '-' and '_', starting with a letter.
var crateNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ValidatePackageName validates a crate name for safety and correctness.
// It rejects names that could be used for path traversal or that the
// registry would refuse.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - Maximum length of 64 characters
//   - Letters, digits, '-' and '_' only, starting with a letter
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidManifest, "package name cannot be empty")
	}

	if len(name) > 64 {
		return New(ErrCodeInvalidManifest, "package name too long (max 64 characters): %q", name)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidManifest, "package name contains invalid control characters")
		}
	}

	if !crateNameRegex.MatchString(name) {
		return New(ErrCodeInvalidManifest, "invalid package name: %q", name)
	}

	return nil
}

// ValidateGroupName rejects group names that cannot be addressed on the
// command line (`:` separates group filters, spaces split arguments).
func ValidateGroupName(name string) error {
	if name == "" {
		return New(ErrCodeConfig, "group name cannot be empty")
	}
	for _, c := range name {
		switch c {
		case ':':
			return New(ErrCodeConfig, "invalid character `:` in group name: `%s`", name)
		case ' ':
			return New(ErrCodeConfig, "unexpected space in group name: `%s`", name)
		}
	}
	return nil
}

// ValidateNameTemplate checks that a tag template carries the package-name
// placeholder `%n`.
func ValidateNameTemplate(flag, value string) error {
	if !strings.Contains(value, "%n") {
		return New(ErrCodeInvalidInput, "%s value must contain '%%n'", flag)
	}
	return nil
}

// ValidatePath validates a workspace-relative path for safety.
//
// Validation rules:
//   - Path cannot be empty
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidInput, "path cannot be empty")
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidInput, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidInput, "path cannot contain backslashes")
	}

	return nil
}
