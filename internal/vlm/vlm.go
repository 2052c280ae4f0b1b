// Package vlm runs a vision-language model over a page image and its OCR
// text to produce document-level confidence and visual cues.
package vlm

import (
	"context"
	"strings"

	"github.com/joseph-ayodele/property-verifier/constants"
)

// DefaultChunkWords is the window size used when splitting OCR text.
const DefaultChunkWords = 512

type Request struct {
	ImagePath    string
	Text         string
	DocumentType constants.DocumentType
}

// StructuredData is the model's view of the document. Failures are recorded
// in Error; they never abort the pipeline.
type StructuredData struct {
	ConfidenceScore  float64 `json:"confidence_scores"`
	TokenPredictions int     `json:"token_predictions"`
	ChunksProcessed  int     `json:"chunks_processed"`
	SignaturePresent *bool   `json:"signature_present,omitempty"`
	StampPresent     *bool   `json:"stamp_present,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// Model is implemented by Gemini and Disabled.
type Model interface {
	Ready() bool
	Infer(ctx context.Context, req Request) StructuredData
}

// Disabled stands in when no model is configured.
type Disabled struct{}

func (Disabled) Ready() bool { return false }

func (Disabled) Infer(context.Context, Request) StructuredData {
	return StructuredData{Error: "vision model not configured"}
}

// ChunkWords splits text into windows of at most size words.
func ChunkWords(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkWords
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	chunks := make([]string, 0, (len(words)+size-1)/size)
	for i := 0; i < len(words); i += size {
		end := min(i+size, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}
