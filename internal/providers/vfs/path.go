package vfs

import (
	"fmt"
	"strings"
)

// MaxNameLength bounds a single path segment
const MaxNameLength = 255

const reservedChars = `<>:"|?*\`

// ValidateName checks a single file or directory name
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: name too long (%d characters, maximum %d)", ErrInvalidName, len(name), MaxNameLength)
	}

	for _, r := range name {
		if r > 127 {
			return fmt.Errorf("%w: non-ASCII character %q", ErrInvalidName, r)
		}
		if r < 32 || r == 127 {
			return fmt.Errorf("%w: control character %q", ErrInvalidName, r)
		}
		if strings.ContainsRune(reservedChars, r) {
			return fmt.Errorf("%w: reserved character %q", ErrInvalidName, r)
		}
		if r == '/' {
			return fmt.Errorf("%w: name cannot contain '/'", ErrInvalidName)
		}
	}

	if strings.HasPrefix(name, " ") || strings.HasSuffix(name, " ") {
		return fmt.Errorf("%w: name cannot start or end with spaces", ErrInvalidName)
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("%w: name cannot start or end with dots", ErrInvalidName)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: name cannot contain '..'", ErrInvalidName)
	}
	return nil
}

// Normalize returns the canonical form of p: a leading slash, no trailing
// slash, no empty segments. Every segment must pass ValidateName.
func Normalize(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		if err := ValidateName(seg); err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidPath, p, err)
		}
		parts = append(parts, seg)
	}
	if len(parts) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(parts, "/"), nil
}

// split returns the parent and base name of a normalized path
func split(p string) (parent, name string) {
	if p == "/" {
		return "", ""
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/", p[1:]
	}
	return p[:i], p[i+1:]
}

// descendantPrefix is the prefix every path below p starts with
func descendantPrefix(p string) string {
	if p == "/" {
		return "/"
	}
	return p + "/"
}
