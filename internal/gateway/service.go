package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/receiptmanager/receipt-gateway/internal/scanning"
)

// ErrInvalidImage rejects uploads with a missing filename or a disallowed
// extension, before any I/O happens.
var ErrInvalidImage = errors.New("invalid image send")

// allowedExtensions is the set of upload types the gateway admits
var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".heic": true,
	".heif": true,
	".pdf":  true,
}

// IDGenerator generates correlation IDs for uploads
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles upload ingestion: it validates and stores an incoming
// image, delegates to the recognition engine, and reshapes the result
// into the transport schema.
type Service struct {
	db          DB
	scanner     scanning.Scanner
	uploads     Storage
	tmp         Storage
	idGenerator IDGenerator
	timeSource  TimeSource
	debugPrint  bool
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, uploads, tmp Storage, debugPrint bool) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		uploads:     uploads,
		tmp:         tmp,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
		debugPrint:  debugPrint,
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, uploads, tmp Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		uploads:     uploads,
		tmp:         tmp,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename strips directory components and unsafe characters so
// the result is always a bare filename that stays inside the storage
// directory, then truncates overlong phone-generated names.
func sanitizeFilename(filename string) string {
	// Windows-style separators first, then any directory prefix
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	// Remove special characters, keep only alphanumeric, spaces, hyphens, and underscores
	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	// Replace multiple spaces with single space
	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	// Truncate to reasonable length (50 chars for base, plus extension)
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	// If base is empty after sanitization, use a default
	if base == "" {
		base = "receipt"
	}

	return base + strings.ToLower(ext)
}

// Ingest validates an upload, persists it, and runs it through the
// recognition engine. Validation failures return ErrInvalidImage before
// any I/O; engine failures propagate unrecovered.
func (s *Service) Ingest(filename string, data []byte, contentType string, opts scanning.Options) (*ReceiptRecord, error) {
	if filename == "" {
		return nil, ErrInvalidImage
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: extension %q not allowed", ErrInvalidImage, ext)
	}

	cleanFilename := sanitizeFilename(filename)
	slog.Info("Storing upload", "filename", cleanFilename)

	if _, err := s.uploads.Save(cleanFilename, data); err != nil {
		return nil, fmt.Errorf("saving upload: %w", err)
	}

	// Hold a copy in the tmp area under the correlation ID so a later
	// training submission can name this exact image
	id := s.idGenerator.Generate()
	tmpName := id + ext
	if _, err := s.tmp.Save(tmpName, data); err != nil {
		return nil, fmt.Errorf("saving pending copy: %w", err)
	}

	record := &UploadRecord{
		ID:         id,
		StoredName: cleanFilename,
		TmpPath:    s.tmp.Path(tmpName),
		CreatedAt:  s.timeSource.Now(),
	}
	if err := s.db.SaveUpload(record); err != nil {
		s.uploads.Delete(cleanFilename)
		s.tmp.Delete(tmpName)
		return nil, fmt.Errorf("recording upload: %w", err)
	}

	scanned, err := s.scanner.ScanReceipt(data, contentType, opts)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", cleanFilename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		// Clean up everything this upload created since scanning failed
		s.uploads.Delete(cleanFilename)
		s.tmp.Delete(tmpName)
		s.db.DeleteUpload(id)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	items := make([]ReceiptItem, 0, len(scanned.Items))
	for _, item := range scanned.Items {
		items = append(items, ReceiptItem{Article: item.Article, Sum: item.Sum})
	}

	receipt := &ReceiptRecord{
		UploadID:  id,
		StoreName: scanned.StoreName,
		Total:     scanned.Total,
		Date:      scanned.Date,
		Category:  ReceiptCategory,
		Items:     items,
	}

	if s.debugPrint {
		if encoded, err := json.Marshal(receipt); err == nil {
			slog.Info("Scan result", "record", string(encoded))
		}
	}

	return receipt, nil
}
