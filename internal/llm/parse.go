package llm

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Section headers the prompt asks the model to use.
const (
	SectionBenefits     = "BENEFITS"
	SectionRisks        = "RISKS"
	SectionCompleteness = "COMPLETENESS"
	SectionSummary      = "SUMMARY"
)

const (
	DefaultCompleteness = 75.0
	minConfidence       = 0.60
	maxConfidence       = 0.95
	// minItemLen drops stubs like "None" or "N/A".
	minItemLen = 10
)

var (
	reSectionHeader = regexp.MustCompile(`(?i)(BENEFITS|RISKS|COMPLETENESS|SUMMARY)\**[ \t]*:`)
	reBullet        = regexp.MustCompile(`^(?:[-*•·]+|\d{1,2}[.)])\s*`)
	rePercent       = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
)

// Parsed is the structured content of a free-form model reply.
type Parsed struct {
	Benefits          []string
	Risks             []string
	CompletenessScore float64
	ConfidenceScore   float64
}

// Empty reports whether the reply carried neither benefits nor risks.
func (p Parsed) Empty() bool { return len(p.Benefits) == 0 && len(p.Risks) == 0 }

// ParseResponse pulls the BENEFITS and RISKS lists and the completeness
// percentage out of a reply. Missing sections yield empty lists.
func ParseResponse(text string) Parsed {
	sections := splitSections(text)

	completeness := DefaultCompleteness
	if v, ok := firstPercent(sections[SectionCompleteness]); ok {
		completeness = v
	} else if v, ok := firstPercent(text); ok {
		completeness = v
	}

	return Parsed{
		Benefits:          sectionItems(sections[SectionBenefits]),
		Risks:             sectionItems(sections[SectionRisks]),
		CompletenessScore: completeness,
		ConfidenceScore:   ConfidenceFromCompleteness(completeness),
	}
}

// ConfidenceFromCompleteness maps a completeness percentage onto [0.60, 0.95].
func ConfidenceFromCompleteness(c float64) float64 {
	return math.Min(maxConfidence, math.Max(minConfidence, c/100))
}

// splitSections returns the text following the first occurrence of each
// header, up to the next header of any kind.
func splitSections(text string) map[string]string {
	out := make(map[string]string, 4)
	idx := reSectionHeader.FindAllStringSubmatchIndex(text, -1)
	for i, m := range idx {
		// Only accept headers that begin a word: "PROPERTY_RISKS:" is not RISKS.
		if m[0] > 0 && isWordByte(text[m[0]-1]) {
			continue
		}
		name := strings.ToUpper(text[m[2]:m[3]])
		if _, seen := out[name]; seen {
			continue
		}
		end := len(text)
		for _, next := range idx[i+1:] {
			if next[0] > 0 && isWordByte(text[next[0]-1]) {
				continue
			}
			end = next[0]
			break
		}
		out[name] = text[m[1]:end]
	}
	return out
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func sectionItems(body string) []string {
	items := []string{}
	for _, line := range strings.Split(body, "\n") {
		item := strings.TrimSpace(line)
		item = reBullet.ReplaceAllString(item, "")
		item = strings.Trim(item, "*#- \t")
		if utf8.RuneCountInString(item) <= minItemLen {
			continue
		}
		items = append(items, item)
	}
	return items
}

func firstPercent(s string) (float64, bool) {
	m := rePercent.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return math.Max(0, math.Min(100, v)), true
}
