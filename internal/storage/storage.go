// Package storage keeps uploaded documents on local disk, one directory per
// document type.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/common"
)

// allowedMIME maps sniffed content types to the source format they imply.
var allowedMIME = map[string]string{
	"application/pdf": constants.PDF,
	"image/jpeg":      constants.IMAGE,
	"image/png":       constants.IMAGE,
}

// StoredFile describes a saved upload.
type StoredFile struct {
	Path     string
	Filename string // name supplied by the client
	Ext      string // normalized, no dot
	Size     int64
	SHA256   string
	MIME     string
	SavedAt  time.Time
}

// FileInfo is what Info reports about a stored file.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

type Store struct {
	root     string
	maxBytes int64
	logger   *slog.Logger
}

func New(root string, maxBytes int64, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, maxBytes: maxBytes, logger: logger}
}

func (s *Store) Root() string { return s.root }

// IsValidFile reports whether filename has an accepted extension.
func IsValidFile(filename string) bool {
	return constants.IsAllowedFile(filename)
}

// Save streams r into <root>/<Doc_Type>/<uuid><ext>, hashing as it copies.
// Content whose sniffed type does not match the extension is rejected.
func (s *Store) Save(ctx context.Context, r io.Reader, filename string, docType constants.DocumentType) (StoredFile, error) {
	var out StoredFile
	if !IsValidFile(filename) {
		return out, common.NewAppError(http.StatusBadRequest, "Invalid file type", common.ErrInvalidFileType)
	}
	if !docType.Valid() {
		return out, common.InvalidInputErrorf("unknown document type %q", docType)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	dir := filepath.Join(s.root, docType.Folder())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return out, fmt.Errorf("create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return out, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmpPath)
		}
	}()

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return out, fmt.Errorf("write upload: %w", err)
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return out, common.NewAppError(http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", s.maxBytes), common.ErrTooLarge)
	}

	mt, err := mimetype.DetectFile(tmpPath)
	if err != nil {
		return out, fmt.Errorf("detect content type: %w", err)
	}
	ext := constants.NormalizeExt(filepath.Ext(filename))
	if format, ok := allowedMIME[mt.String()]; !ok || format != constants.MapExtToFormat(ext) {
		s.logger.Warn("storage.content_mismatch", "filename", filename, "mime", mt.String())
		return out, common.NewAppError(http.StatusBadRequest, "Invalid file type", common.ErrInvalidFileType)
	}

	final := filepath.Join(dir, uuid.NewString()+"."+ext)
	if err := os.Rename(tmpPath, final); err != nil {
		return out, fmt.Errorf("store upload: %w", err)
	}
	keep = true

	out = StoredFile{
		Path:     final,
		Filename: filepath.Base(filename),
		Ext:      ext,
		Size:     n,
		SHA256:   hex.EncodeToString(h.Sum(nil)),
		MIME:     mt.String(),
		SavedAt:  time.Now().UTC(),
	}
	s.logger.Info("storage.saved", "path", final, "bytes", n, "document_type", docType, "sha256", out.SHA256)
	return out, nil
}

// Info stats a document on disk.
func Info(path string) (FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileInfo{}, common.NotFoundErrorf("file %s", filepath.Base(path))
		}
		return FileInfo{}, err
	}
	return FileInfo{Name: st.Name(), Size: st.Size(), ModTime: st.ModTime()}, nil
}

// HashFile returns the hex sha256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
