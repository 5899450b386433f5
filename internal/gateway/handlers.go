package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/receiptmanager/receipt-gateway/internal/scanning"
)

// corsError writes a JSON error response with CORS headers set
func corsError(w http.ResponseWriter, r *http.Request, message string, code int) {
	setCORSHeaders(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// boolQuery reads a boolean query parameter, falling back to def when the
// parameter is absent or malformed
func boolQuery(r *http.Request, name string, def bool) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return value
}

// handleUpload admits a receipt image and returns the recognized record
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Parse multipart form (max 50MB to handle high-resolution phone photos)
	maxFormSize := int64(50 << 20) // 50MB
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		corsError(w, r, "error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		corsError(w, r, "invalid image send", http.StatusUnsupportedMediaType)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		corsError(w, r, "error reading file", http.StatusInternalServerError)
		return
	}

	// Determine content type from the part header, falling back to the
	// file extension
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}

	opts := scanning.Options{
		LegacyParser: boolQuery(r, "legacy_parser", true),
		Grayscale:    boolQuery(r, "grayscale_image", true),
		GaussianBlur: boolQuery(r, "gaussian_blur", false),
		Rotate:       boolQuery(r, "rotate_image", false),
	}

	record, err := s.service.Ingest(header.Filename, data, contentType, opts)
	if err != nil {
		if errors.Is(err, ErrInvalidImage) {
			corsError(w, r, "invalid image send", http.StatusUnsupportedMediaType)
			return
		}
		slog.Error("Error ingesting receipt", "filename", header.Filename, "error", err)
		corsError(w, r, "internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w, r)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(record); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// trainingRequest is the body of a training submission. UploadID is the
// correlation token returned by /api/upload; when absent the most recent
// pending upload is assumed.
type trainingRequest struct {
	Company  string `json:"company"`
	Date     string `json:"date"`
	Total    string `json:"total"`
	UploadID string `json:"upload_id,omitempty"`
}

// handleTraining appends a corrected receipt to the training corpus
func (s *Server) handleTraining(w http.ResponseWriter, r *http.Request) {
	var req trainingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, r, "invalid receipt send", http.StatusUnsupportedMediaType)
		return
	}

	example := TrainingExample{
		Company: req.Company,
		Date:    req.Date,
		Total:   req.Total,
	}

	if _, err := s.training.Record(example, req.UploadID); err != nil {
		if errors.Is(err, ErrInvalidReceipt) || errors.Is(err, ErrUnknownUpload) {
			corsError(w, r, "invalid receipt send", http.StatusUnsupportedMediaType)
			return
		}
		slog.Error("Error recording training example", "error", err)
		corsError(w, r, "internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w, r)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode("success"); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleLogout clears the credential cookie and redirects to the root.
// There is no server-side session to invalidate, so repeated calls
// produce the same effect.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, r)
	http.SetCookie(w, &http.Cookie{
		Name:   TokenName,
		Value:  "",
		Path:   "/",
		Domain: CookieDomain,
		MaxAge: -1,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}
