package validation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/iwvelando/tank-quote/pkg/constants"
)

var (
	// ErrInvalidPath is returned for file paths outside the download allow-list.
	ErrInvalidPath = errors.New("invalid file path")

	safeFilename = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	safePath     = regexp.MustCompile(`^[A-Za-z0-9/_.-]+$`)
	unsafeChars  = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// IsSafeFilename reports whether name is a single plain path segment made of
// letters, digits, '.', '_' and '-'. The dot segments are rejected.
func IsSafeFilename(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return safeFilename.MatchString(name)
}

// NormalizeFilePath prefixes p with '/' when needed and checks it against the
// download allow-list: letters, digits, '/', '_', '-', '.' and no ".." segment.
func NormalizeFilePath(p string) (string, error) {
	if p == "" {
		return "", ErrInvalidPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !safePath.MatchString(p) {
		return "", ErrInvalidPath
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", ErrInvalidPath
		}
	}
	return p, nil
}

// IsAbsoluteURL reports whether p names an http(s) URL rather than a path.
func IsAbsoluteURL(p string) bool {
	lower := strings.ToLower(p)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// BaseName returns the last non-empty '/'-separated segment of p, or fallback.
func BaseName(p, fallback string) string {
	trimmed := strings.TrimRight(p, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

// SanitizeFilename strips every character outside [A-Za-z0-9._-] so the
// result is safe inside a quoted Content-Disposition filename.
func SanitizeFilename(name string) string {
	cleaned := unsafeChars.ReplaceAllString(name, "")
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return constants.DefaultStepName
	}
	return cleaned
}
