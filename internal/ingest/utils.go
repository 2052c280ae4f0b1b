package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/property-verifier/constants"
)

// AllowedExt checks if a file extension is in the allowed set (pdf/jpg/jpeg/png).
func AllowedExt(ext string) bool {
	return constants.IsAllowedExt(ext)
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

// DocumentTypeFor resolves the document type of path from the first
// directory below root. Files directly in root get fallback, which may be empty.
func DocumentTypeFor(root, path string, fallback constants.DocumentType) (constants.DocumentType, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", path, root)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		if fallback == "" {
			return "", fmt.Errorf("cannot infer document type for %s: place it under a type folder", path)
		}
		return fallback, nil
	}
	return constants.ParseDocumentType(parts[0])
}
