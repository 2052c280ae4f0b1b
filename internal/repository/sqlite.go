package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/common"
)

// sqliteTime is fixed-width so that text ordering matches time ordering.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS analyses (
	id                 TEXT PRIMARY KEY,
	document_type      TEXT NOT NULL,
	filename           TEXT NOT NULL,
	source_path        TEXT NOT NULL DEFAULT '',
	content_hash       TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	fallback           INTEGER NOT NULL DEFAULT 0,
	completeness_score REAL NOT NULL DEFAULT 0,
	confidence_score   REAL NOT NULL DEFAULT 0,
	analysis_json      TEXT NOT NULL DEFAULT '{}',
	extracted_json     TEXT NOT NULL DEFAULT '{}',
	ocr_method         TEXT NOT NULL DEFAULT '',
	ocr_confidence     REAL NOT NULL DEFAULT 0,
	error_message      TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_type_created ON analyses (document_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analyses_hash ON analyses (content_hash, document_type);
`

const sqliteColumns = `id, document_type, filename, source_path, content_hash, status, fallback,
	completeness_score, confidence_score, analysis_json, extracted_json,
	ocr_method, ocr_confidence, error_message, created_at, updated_at`

type sqliteRepo struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (AnalysisRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	logger.Info("analysis history ready", "driver", DriverSQLite, "path", path)
	return &sqliteRepo{db: db, log: logger}, nil
}

func (r *sqliteRepo) Save(ctx context.Context, rec *AnalysisRecord) error {
	prepare(rec)
	rw, err := toRow(rec)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analyses (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			document_type = excluded.document_type,
			filename = excluded.filename,
			source_path = excluded.source_path,
			content_hash = excluded.content_hash,
			status = excluded.status,
			fallback = excluded.fallback,
			completeness_score = excluded.completeness_score,
			confidence_score = excluded.confidence_score,
			analysis_json = excluded.analysis_json,
			extracted_json = excluded.extracted_json,
			ocr_method = excluded.ocr_method,
			ocr_confidence = excluded.ocr_confidence,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at`,
		rw.id, rw.docType, rw.filename, rw.sourcePath, rw.hash, rw.status, rw.fallback,
		rw.completeness, rw.confidence, string(rw.analysisJSON), string(rw.extractedJSON),
		rw.ocrMethod, rw.ocrConfidence, rw.errorMessage,
		rw.createdAt.Format(sqliteTime), rw.updatedAt.Format(sqliteTime),
	)
	if err != nil {
		r.log.Error("analysis save failed", "id", rec.ID, "err", err)
		return fmt.Errorf("%w: save analysis: %v", common.ErrDatabase, err)
	}
	r.log.Debug("analysis saved", "id", rec.ID, "status", rec.Status)
	return nil
}

func (r *sqliteRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, message string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE analyses SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), message, time.Now().UTC().Format(sqliteTime), id.String())
	if err != nil {
		return fmt.Errorf("%w: update status: %v", common.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NotFoundErrorf("analysis %s", id)
	}
	return nil
}

func (r *sqliteRepo) Get(ctx context.Context, id uuid.UUID) (*AnalysisRecord, error) {
	rec, err := r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM analyses WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundErrorf("analysis %s", id)
	}
	return rec, err
}

func (r *sqliteRepo) FindCompleted(ctx context.Context, contentHash string, docType constants.DocumentType) (*AnalysisRecord, error) {
	rec, err := r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+sqliteColumns+` FROM analyses
		WHERE content_hash = ? AND document_type = ? AND status = ? AND fallback = 0
		ORDER BY created_at DESC LIMIT 1`,
		contentHash, docType.String(), string(constants.JobStatusLLMOK)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundErrorf("analysis for %s", contentHash)
	}
	return rec, err
}

func (r *sqliteRepo) List(ctx context.Context, filter ListFilter) ([]*AnalysisRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.DocumentType != "" {
		where = append(where, "document_type = ?")
		args = append(args, filter.DocumentType.String())
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.From.UTC().Format(sqliteTime))
	}
	if filter.To != nil {
		where = append(where, "created_at < ?")
		args = append(args, filter.To.UTC().Format(sqliteTime))
	}
	q := `SELECT ` + sqliteColumns + ` FROM analyses`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.limit(), filter.offset())

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list analyses: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*AnalysisRecord
	for rows.Next() {
		rec, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *sqliteRepo) Close() error { return r.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func (r *sqliteRepo) scanOne(s scanner) (*AnalysisRecord, error) {
	var (
		rw                row
		analysis, extract string
		created, updated  string
	)
	err := s.Scan(&rw.id, &rw.docType, &rw.filename, &rw.sourcePath, &rw.hash, &rw.status, &rw.fallback,
		&rw.completeness, &rw.confidence, &analysis, &extract,
		&rw.ocrMethod, &rw.ocrConfidence, &rw.errorMessage, &created, &updated)
	if err != nil {
		return nil, err
	}
	rw.analysisJSON, rw.extractedJSON = []byte(analysis), []byte(extract)
	if rw.createdAt, err = time.Parse(sqliteTime, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rw.updatedAt, err = time.Parse(sqliteTime, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return rw.record()
}
