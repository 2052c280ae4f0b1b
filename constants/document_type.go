package constants

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// DocumentType is the kind of property document being verified.
type DocumentType string

const (
	RentAgreement DocumentType = "Rent Agreement"
	TitleDeed     DocumentType = "Title Deed"
	NOC           DocumentType = "NOC"
)

// DefaultDocumentType is used when an upload does not name one.
const DefaultDocumentType = RentAgreement

// NotDetected is the placeholder for fields the extractors could not find.
const NotDetected = "Not detected"

// AllDocumentTypes returns the supported types in display order.
func AllDocumentTypes() []DocumentType {
	return []DocumentType{RentAgreement, TitleDeed, NOC}
}

// Folder is the upload sub-directory name for the type ("Rent_Agreement").
func (d DocumentType) Folder() string {
	return strings.ReplaceAll(string(d), " ", "_")
}

func (d DocumentType) String() string { return string(d) }

// Valid reports whether d is one of the supported types.
func (d DocumentType) Valid() bool {
	for _, t := range AllDocumentTypes() {
		if d == t {
			return true
		}
	}
	return false
}

var documentTypeSynonyms = map[string]DocumentType{
	"rent":                     RentAgreement,
	"rental":                   RentAgreement,
	"lease":                    RentAgreement,
	"rent agreement":           RentAgreement,
	"rental agreement":         RentAgreement,
	"lease agreement":          RentAgreement,
	"leave and license":        RentAgreement,
	"deed":                     TitleDeed,
	"title":                    TitleDeed,
	"title deed":               TitleDeed,
	"sale deed":                TitleDeed,
	"conveyance deed":          TitleDeed,
	"noc":                      NOC,
	"no objection":             NOC,
	"no objection certificate": NOC,
}

// maxTypoDistance bounds the Levenshtein fallback so unrelated input is rejected.
const maxTypoDistance = 3

// typoBudget is the edit distance tolerated against name: one edit per four
// runes, capped at maxTypoDistance. Three-letter names like "noc" need an
// exact match.
func typoBudget(name string) int {
	return min(maxTypoDistance, utf8.RuneCountInString(name)/4)
}

// ParseDocumentType resolves user input (form values, folder names, CLI flags)
// to a DocumentType. Matching is exact first, then case and separator
// insensitive, then by synonym, then by nearest edit distance.
func ParseDocumentType(s string) (DocumentType, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return "", fmt.Errorf("empty document type")
	}
	if d := DocumentType(raw); d.Valid() {
		return d, nil
	}

	key := strings.ToLower(strings.Join(strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(raw)), " "))
	for _, t := range AllDocumentTypes() {
		if strings.ToLower(string(t)) == key {
			return t, nil
		}
	}
	if d, ok := documentTypeSynonyms[key]; ok {
		return d, nil
	}

	best, bestName, bestDist := DocumentType(""), "", maxTypoDistance+1
	for name, t := range documentTypeSynonyms {
		d := levenshtein.Distance(key, name, nil)
		if d > typoBudget(name) {
			continue
		}
		if d < bestDist || (d == bestDist && name < bestName) {
			best, bestName, bestDist = t, name, d
		}
	}
	if best != "" {
		return best, nil
	}
	return "", fmt.Errorf("unsupported document type %q", s)
}

// SupportedFormats lists the upload formats advertised for a document type.
func SupportedFormats(DocumentType) []string {
	return []string{".pdf", ".jpg", ".png"}
}
