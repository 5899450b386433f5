package scanning

// Options carries the processing flags supplied alongside an upload.
// They are forwarded to the engine as-is; the gateway does not interpret
// them. LegacyParser has no analog for vision models and is ignored by
// the Gemini and Ollama backends.
type Options struct {
	LegacyParser bool
	Grayscale    bool
	GaussianBlur bool
	Rotate       bool
}

// LineItem is a single purchased article with its price, both kept as
// strings exactly as the engine reported them.
type LineItem struct {
	Article string `json:"article"`
	Sum     string `json:"sum"`
}

// ReceiptData contains extracted information from a receipt. Items keep
// the order the engine assigned them.
type ReceiptData struct {
	StoreName string     `json:"storeName"`
	Date      string     `json:"date"` // ISO 8601 format
	Total     string     `json:"total"`
	Items     []LineItem `json:"items"`
}

// Scanner defines the interface for receipt recognition engines
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and extracts its contents
	ScanReceipt(imageData []byte, contentType string, opts Options) (*ReceiptData, error)
	// Close closes the scanner and releases resources
	Close() error
}
