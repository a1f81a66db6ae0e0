package models

import (
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{2,63}$`)

// IsValidUsername reports whether name can be used as a username. The
// username also names the user's storage container, so it is restricted to
// characters that are safe as a single path segment.
func IsValidUsername(name string) bool {
	return usernamePattern.MatchString(name) && !strings.Contains(name, "..")
}

// IsValidNodeName reports whether name can be used for a directory or file.
// Names become archive paths, so separators are not allowed.
func IsValidNodeName(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) > 255 {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}
