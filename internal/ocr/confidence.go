package ocr

import (
	"regexp"
	"strings"
)

var (
	reDate     = regexp.MustCompile(`\b\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}\b|\b\d{1,2}(?:st|nd|rd|th)?\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\b`)
	reMoney    = regexp.MustCompile(`(?:rs\.?|inr|₹|\$)\s*\d[\d,]*`)
	reLegalish = regexp.MustCompile(`\b(?:agreement|deed|landlord|tenant|lessor|lessee|owner|proprietor|certificate|property|premises|witness|registrar|hereby|objection)\b`)
)

func hasDatePattern(s string) bool  { return reDate.MatchString(s) }
func hasMoneyPattern(s string) bool { return reMoney.MatchString(s) }
func legalTermCount(s string) int   { return len(reLegalish.FindAllStringIndex(s, 8)) }

// heuristicConfidence scores decoded text by how much it looks like a
// legible property document.
func heuristicConfidence(txt string) float32 {
	txtL := strings.ToLower(txt)
	score := float32(0.2)
	switch n := legalTermCount(txtL); {
	case n >= 3:
		score += 0.3
	case n > 0:
		score += 0.15
	}
	if hasDatePattern(txtL) {
		score += 0.15
	}
	if hasMoneyPattern(txtL) {
		score += 0.15
	}
	if len(txt) > 200 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// blendConfidence weights engine confidence higher when it is present.
func blendConfidence(engine, heuristic float32) float32 {
	conf := heuristic
	if engine > 0 {
		conf = 0.7*engine + 0.3*heuristic
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}
