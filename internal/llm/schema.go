package llm

import "github.com/joseph-ayodele/property-verifier/constants"

// BuildAnalysisJSONSchema returns the JSON Schema an Analysis for docType must
// satisfy before it is returned to a client.
func BuildAnalysisJSONSchema(docType constants.DocumentType) map[string]any {
	summaryProps := map[string]any{
		"signaturePresent":  map[string]any{"type": "boolean"},
		"stampDutyDetected": map[string]any{"type": "boolean"},
		"documentType":      map[string]any{"type": "string", "enum": []string{docType.String()}},
	}
	summaryRequired := []string{"signaturePresent", "stampDutyDetected", "documentType"}
	for _, key := range summaryKeys(docType) {
		summaryProps[key] = map[string]any{"type": "string", "minLength": 1}
		summaryRequired = append(summaryRequired, key)
	}

	items := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string", "minLength": minItemLen + 1},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"summary": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties":           summaryProps,
				"required":             summaryRequired,
			},
			"benefits": items,
			"risks":    items,
			"completeness_score": map[string]any{
				"type": "number", "minimum": 0.0, "maximum": 100.0,
			},
			"confidence_score": map[string]any{
				"type": "number", "minimum": minConfidence, "maximum": maxConfidence,
			},
		},
		"required": []string{"summary", "benefits", "risks", "completeness_score", "confidence_score"},
	}
}

// summaryKeys lists the per-type summary keys in display order.
func summaryKeys(docType constants.DocumentType) []string {
	switch docType {
	case constants.RentAgreement:
		return []string{"landlord", "tenant", "propertyAddress", "term", "rentAmount"}
	case constants.TitleDeed:
		return []string{"owner", "propertyDetails"}
	case constants.NOC:
		return []string{"applicant", "purpose"}
	}
	return nil
}
