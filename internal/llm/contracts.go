package llm

import (
	"context"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/fields"
	"github.com/joseph-ayodele/property-verifier/internal/layout"
	"github.com/joseph-ayodele/property-verifier/internal/vlm"
)

// ExtractedData is everything the earlier pipeline stages learned about a
// document. It is rendered into the prompt and stored with each analysis.
type ExtractedData struct {
	DocumentType constants.DocumentType `json:"document_type"`
	RawText      string                 `json:"raw_text"`
	Layout       layout.Features        `json:"layout_data"`
	Structured   vlm.StructuredData     `json:"structured_data"`
	Fields       fields.Fields          `json:"extracted_fields"`
}

// Summary is the key-details block of an analysis. Only the keys relevant to
// the document type are populated.
type Summary struct {
	SignaturePresent  bool   `json:"signaturePresent"`
	StampDutyDetected bool   `json:"stampDutyDetected"`
	DocumentType      string `json:"documentType"`

	Landlord        string `json:"landlord,omitempty"`
	Tenant          string `json:"tenant,omitempty"`
	PropertyAddress string `json:"propertyAddress,omitempty"`
	Term            string `json:"term,omitempty"`
	RentAmount      string `json:"rentAmount,omitempty"`

	Owner           string `json:"owner,omitempty"`
	PropertyDetails string `json:"propertyDetails,omitempty"`

	Applicant string `json:"applicant,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
}

// Analysis is the service's verdict on a document.
type Analysis struct {
	Summary           Summary  `json:"summary"`
	Benefits          []string `json:"benefits"`
	Risks             []string `json:"risks"`
	CompletenessScore float64  `json:"completeness_score"`
	ConfidenceScore   float64  `json:"confidence_score"`
}

type GenerateRequest struct {
	Prompt string
	// Model overrides the reasoner's default model when set.
	Model       string
	Temperature *float32
}

// Reasoner is the single free-form LLM call of the pipeline.
type Reasoner interface {
	Ready() bool
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
