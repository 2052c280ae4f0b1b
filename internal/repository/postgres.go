package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/common"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS analyses (
	id                 UUID PRIMARY KEY,
	document_type      TEXT NOT NULL,
	filename           TEXT NOT NULL,
	source_path        TEXT NOT NULL DEFAULT '',
	content_hash       TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	fallback           BOOLEAN NOT NULL DEFAULT FALSE,
	completeness_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	analysis_json      JSONB NOT NULL DEFAULT '{}',
	extracted_json     JSONB NOT NULL DEFAULT '{}',
	ocr_method         TEXT NOT NULL DEFAULT '',
	ocr_confidence     REAL NOT NULL DEFAULT 0,
	error_message      TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_type_created ON analyses (document_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analyses_hash ON analyses (content_hash, document_type);
`

const postgresColumns = `id::text, document_type, filename, source_path, content_hash, status, fallback,
	completeness_score, confidence_score, analysis_json, extracted_json,
	ocr_method, ocr_confidence, error_message, created_at, updated_at`

type postgresRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresRepository migrates the schema and wraps pool.
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (AnalysisRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	logger.Info("analysis history ready", "driver", DriverPostgres)
	return &postgresRepo{pool: pool, log: logger}, nil
}

func (r *postgresRepo) Save(ctx context.Context, rec *AnalysisRecord) error {
	prepare(rec)
	rw, err := toRow(rec)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO analyses (id, document_type, filename, source_path, content_hash, status, fallback,
			completeness_score, confidence_score, analysis_json, extracted_json,
			ocr_method, ocr_confidence, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			document_type = EXCLUDED.document_type,
			filename = EXCLUDED.filename,
			source_path = EXCLUDED.source_path,
			content_hash = EXCLUDED.content_hash,
			status = EXCLUDED.status,
			fallback = EXCLUDED.fallback,
			completeness_score = EXCLUDED.completeness_score,
			confidence_score = EXCLUDED.confidence_score,
			analysis_json = EXCLUDED.analysis_json,
			extracted_json = EXCLUDED.extracted_json,
			ocr_method = EXCLUDED.ocr_method,
			ocr_confidence = EXCLUDED.ocr_confidence,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at`,
		rw.id, rw.docType, rw.filename, rw.sourcePath, rw.hash, rw.status, rw.fallback,
		rw.completeness, rw.confidence, rw.analysisJSON, rw.extractedJSON,
		rw.ocrMethod, rw.ocrConfidence, rw.errorMessage, rw.createdAt, rw.updatedAt,
	)
	if err != nil {
		r.log.Error("analysis save failed", "id", rec.ID, "err", err)
		return fmt.Errorf("%w: save analysis: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *postgresRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, message string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE analyses SET status = $1, error_message = $2, updated_at = now() WHERE id = $3`,
		string(status), message, id.String())
	if err != nil {
		return fmt.Errorf("%w: update status: %v", common.ErrDatabase, err)
	}
	if tag.RowsAffected() == 0 {
		return common.NotFoundErrorf("analysis %s", id)
	}
	return nil
}

func (r *postgresRepo) Get(ctx context.Context, id uuid.UUID) (*AnalysisRecord, error) {
	rec, err := scanPostgres(r.pool.QueryRow(ctx,
		`SELECT `+postgresColumns+` FROM analyses WHERE id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NotFoundErrorf("analysis %s", id)
	}
	return rec, err
}

func (r *postgresRepo) FindCompleted(ctx context.Context, contentHash string, docType constants.DocumentType) (*AnalysisRecord, error) {
	rec, err := scanPostgres(r.pool.QueryRow(ctx,
		`SELECT `+postgresColumns+` FROM analyses
		WHERE content_hash = $1 AND document_type = $2 AND status = $3 AND NOT fallback
		ORDER BY created_at DESC LIMIT 1`,
		contentHash, docType.String(), string(constants.JobStatusLLMOK)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NotFoundErrorf("analysis for %s", contentHash)
	}
	return rec, err
}

func (r *postgresRepo) List(ctx context.Context, filter ListFilter) ([]*AnalysisRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.DocumentType != "" {
		args = append(args, filter.DocumentType.String())
		where = append(where, fmt.Sprintf("document_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, filter.From.UTC())
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.UTC())
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	q := `SELECT ` + postgresColumns + ` FROM analyses`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.limit(), filter.offset())
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list analyses: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*AnalysisRecord
	for rows.Next() {
		rec, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *postgresRepo) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

func (r *postgresRepo) Close() error {
	r.log.Info("closing database connections")
	r.pool.Close()
	return nil
}

func scanPostgres(s scanner) (*AnalysisRecord, error) {
	var rw row
	err := s.Scan(&rw.id, &rw.docType, &rw.filename, &rw.sourcePath, &rw.hash, &rw.status, &rw.fallback,
		&rw.completeness, &rw.confidence, &rw.analysisJSON, &rw.extractedJSON,
		&rw.ocrMethod, &rw.ocrConfidence, &rw.errorMessage, &rw.createdAt, &rw.updatedAt)
	if err != nil {
		return nil, err
	}
	rw.createdAt, rw.updatedAt = rw.createdAt.UTC(), rw.updatedAt.UTC()
	return rw.record()
}
