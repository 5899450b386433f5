package scanning

// Fixture implements the Scanner interface with a fixed canned record.
// It lets the companion app validate the transport contract without
// invoking a real recognition engine; the result is independent of the
// uploaded content.
type Fixture struct{}

// NewFixture creates a new Fixture Scanner instance
func NewFixture() *Fixture {
	return &Fixture{}
}

// ScanReceipt returns the fixed record regardless of input
func (f *Fixture) ScanReceipt(imageData []byte, contentType string, opts Options) (*ReceiptData, error) {
	return &ReceiptData{
		StoreName: "DebugStore",
		Date:      "09.25.2020",
		Total:     "15.10",
		Items: []LineItem{
			{Article: "Brot", Sum: "1.33"},
			{Article: "Kaffee", Sum: "5.33"},
		},
	}, nil
}

// Close is a no-op for the fixture scanner
func (f *Fixture) Close() error {
	return nil
}
