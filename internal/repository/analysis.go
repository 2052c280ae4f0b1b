package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/llm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// AnalysisRecord is one processed (or in-flight) document.
type AnalysisRecord struct {
	ID            uuid.UUID
	DocumentType  constants.DocumentType
	Filename      string
	SourcePath    string
	ContentHash   string
	Status        constants.JobStatus
	Fallback      bool
	Analysis      llm.Analysis
	Extracted     llm.ExtractedData
	OCRMethod     string
	OCRConfidence float32
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ListFilter narrows List. Zero values mean "any".
type ListFilter struct {
	DocumentType constants.DocumentType
	Status       constants.JobStatus
	From         *time.Time // created_at >= From
	To           *time.Time // created_at < To
	Limit        int
	Offset       int
}

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	}
	return f.Limit
}

func (f ListFilter) offset() int { return max(f.Offset, 0) }

// AnalysisRepository stores the analysis history.
type AnalysisRepository interface {
	// Save inserts or replaces the record with rec.ID, assigning an ID and
	// timestamps when missing.
	Save(ctx context.Context, rec *AnalysisRecord) error
	// UpdateStatus moves a record through the job states.
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, message string) error
	Get(ctx context.Context, id uuid.UUID) (*AnalysisRecord, error)
	// FindCompleted returns the newest LLM_OK record for a content hash and type,
	// skipping fallback answers.
	FindCompleted(ctx context.Context, contentHash string, docType constants.DocumentType) (*AnalysisRecord, error)
	List(ctx context.Context, filter ListFilter) ([]*AnalysisRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// row is the flattened storage form shared by the SQL dialects.
type row struct {
	id, docType, filename, sourcePath, hash, status string
	fallback                                        bool
	completeness, confidence                        float64
	analysisJSON, extractedJSON                     []byte
	ocrMethod                                       string
	ocrConfidence                                   float32
	errorMessage                                    string
	createdAt, updatedAt                            time.Time
}

func prepare(rec *AnalysisRecord) {
	now := time.Now().UTC()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = constants.JobStatusQueued
	}
}

func toRow(rec *AnalysisRecord) (row, error) {
	analysis, err := json.Marshal(rec.Analysis)
	if err != nil {
		return row{}, fmt.Errorf("encode analysis: %w", err)
	}
	extracted, err := json.Marshal(rec.Extracted)
	if err != nil {
		return row{}, fmt.Errorf("encode extracted data: %w", err)
	}
	return row{
		id:            rec.ID.String(),
		docType:       rec.DocumentType.String(),
		filename:      rec.Filename,
		sourcePath:    rec.SourcePath,
		hash:          rec.ContentHash,
		status:        string(rec.Status),
		fallback:      rec.Fallback,
		completeness:  rec.Analysis.CompletenessScore,
		confidence:    rec.Analysis.ConfidenceScore,
		analysisJSON:  analysis,
		extractedJSON: extracted,
		ocrMethod:     rec.OCRMethod,
		ocrConfidence: rec.OCRConfidence,
		errorMessage:  rec.ErrorMessage,
		createdAt:     rec.CreatedAt.UTC(),
		updatedAt:     rec.UpdatedAt.UTC(),
	}, nil
}

func (r row) record() (*AnalysisRecord, error) {
	id, err := uuid.Parse(r.id)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", r.id, err)
	}
	rec := &AnalysisRecord{
		ID:            id,
		DocumentType:  constants.DocumentType(r.docType),
		Filename:      r.filename,
		SourcePath:    r.sourcePath,
		ContentHash:   r.hash,
		Status:        constants.JobStatus(r.status),
		Fallback:      r.fallback,
		OCRMethod:     r.ocrMethod,
		OCRConfidence: r.ocrConfidence,
		ErrorMessage:  r.errorMessage,
		CreatedAt:     r.createdAt,
		UpdatedAt:     r.updatedAt,
	}
	if len(r.analysisJSON) > 0 {
		if err := json.Unmarshal(r.analysisJSON, &rec.Analysis); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
	}
	if len(r.extractedJSON) > 0 {
		if err := json.Unmarshal(r.extractedJSON, &rec.Extracted); err != nil {
			return nil, fmt.Errorf("decode extracted data: %w", err)
		}
	}
	return rec, nil
}
