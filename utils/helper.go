package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeObjectChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeObjectName turns an arbitrary label into something usable inside a
// storage object path.
func SafeObjectName(name string) string {
	name = unsafeObjectChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "unnamed"
	}
	return name
}

// FileExtension returns the lower-cased extension of filename without the dot.
func FileExtension(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}
