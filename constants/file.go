package constants

import (
	"path/filepath"
	"strings"
)

// Source formats recorded on OCR results.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// FileTypes holds the source formats an upload can resolve to.
var FileTypes = []string{PDF, IMAGE}

// AllowedExtensions holds the accepted upload extensions (lowercase, no dot).
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether a (dotted or bare) extension may be uploaded.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// IsAllowedFile reports whether filename carries an allowed extension.
func IsAllowedFile(filename string) bool {
	if strings.TrimSpace(filename) == "" {
		return false
	}
	return IsAllowedExt(filepath.Ext(filename))
}

// MapExtToFormat maps a normalized extension to PDF or IMAGE; "" when unsupported.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "jpg", "jpeg", "png":
		return IMAGE
	default:
		return ""
	}
}
