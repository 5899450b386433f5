package gateway

import "time"

// ReceiptCategory is currently a constant; the recognition engine does
// not classify receipts yet.
const ReceiptCategory = "grocery"

// ReceiptItem is one purchased article in the transport schema
type ReceiptItem struct {
	Article string `json:"article"`
	Sum     string `json:"sum"`
}

// ReceiptRecord is the transport schema returned by /api/upload. UploadID
// is the correlation token a later /api/training submission should echo
// back to name the image it corrects.
type ReceiptRecord struct {
	UploadID  string        `json:"uploadId"`
	StoreName string        `json:"storeName"`
	Total     string        `json:"receiptTotal"`
	Date      string        `json:"receiptDate"`
	Category  string        `json:"receiptCategory"`
	Items     []ReceiptItem `json:"receiptItems"`
}

// TrainingExample is the JSON sidecar stored beside each training image.
// Fields are persisted verbatim as supplied, with no normalization.
type TrainingExample struct {
	Company string `json:"company"`
	Date    string `json:"date"`
	Total   string `json:"total"`
}

// UploadRecord ties a correlation ID to the image an upload stored
type UploadRecord struct {
	ID         string    `json:"id"`
	StoredName string    `json:"stored_name"`
	TmpPath    string    `json:"tmp_path"`
	CreatedAt  time.Time `json:"created_at"`
}
