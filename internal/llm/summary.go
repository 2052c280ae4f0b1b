package llm

import (
	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/fields"
)

const fallbackCompleteness = 60.0

var (
	fallbackBenefits = []string{"Document uploaded successfully", "Basic information extracted"}
	fallbackRisks    = []string{"Unable to perform detailed analysis", "Manual review recommended"}
)

// BuildSummary assembles the key-details block from extracted data. A cue
// counts as present when either the layout analyzer or the vision model saw it.
func BuildSummary(data ExtractedData) Summary {
	s := Summary{
		SignaturePresent:  data.Layout.SignatureDetected || isTrue(data.Structured.SignaturePresent),
		StampDutyDetected: data.Layout.StampDetected || isTrue(data.Structured.StampPresent),
		DocumentType:      data.DocumentType.String(),
	}
	f := data.Fields
	switch data.DocumentType {
	case constants.RentAgreement:
		s.Landlord = f.Get(fields.Landlord)
		s.Tenant = f.Get(fields.Tenant)
		s.PropertyAddress = f.Get(fields.PropertyAddress)
		s.Term = f.Get(fields.Term)
		s.RentAmount = f.Get(fields.RentAmount)
	case constants.TitleDeed:
		s.Owner = f.Get(fields.Owner)
		s.PropertyDetails = f.Get(fields.PropertyDetails)
	case constants.NOC:
		s.Applicant = f.Get(fields.Applicant)
		s.Purpose = f.Get(fields.Purpose)
	}
	return s
}

// Fallback is the canned analysis used when the model gives nothing usable.
func Fallback(data ExtractedData) Analysis {
	return Analysis{
		Summary:           BuildSummary(data),
		Benefits:          append([]string(nil), fallbackBenefits...),
		Risks:             append([]string(nil), fallbackRisks...),
		CompletenessScore: fallbackCompleteness,
		ConfidenceScore:   minConfidence,
	}
}

func isTrue(b *bool) bool { return b != nil && *b }
