package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// receiptScanPrompt is the shared prompt used by all LLM providers for scanning receipts
const receiptScanPrompt = `You are analyzing a photographed receipt. Carefully read all text in the image and extract the following information:

1. **Store Name**: Look for the merchant name, store name, or business name at the top of the receipt. This is usually the largest text or in a header. Examples: "Aldi", "Rewe", "Edeka", "Walmart".

2. **Date**: Find the transaction date or purchase date on the receipt. Convert it to ISO 8601 format (YYYY-MM-DD). Common source formats: MM/DD/YYYY, DD.MM.YYYY, or written dates.

3. **Total**: Find the final total, grand total, or amount due. This is usually at the bottom of the receipt, often labeled as "TOTAL", "SUMME", "Amount Due", or similar. Keep it as a decimal string (e.g., "42.75").

4. **Line Items**: List every purchased article with its price, in the order they appear on the receipt.

Return ONLY valid JSON in this exact format:
{
  "storeName": "Store Name",
  "date": "YYYY-MM-DD",
  "total": "0.00",
  "items": [
    {"article": "Article Name", "sum": "0.00"}
  ]
}

Important:
- The date must be in YYYY-MM-DD format
- The total and every item sum must be decimal strings, not numbers
- Keep the items in the order they appear on the receipt
- If you cannot find a field, use an empty string (or empty array for items)
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// pdfToImage converts a PDF to a PNG image
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Render the first page (most receipts are single page)
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// decodeImage decodes raw upload bytes into an image, handling PDF and
// HEIC/HEIF inputs that Go's standard image package doesn't support
func decodeImage(data []byte, mimeType string) (image.Image, error) {
	if mimeType == "application/pdf" {
		return pdfToImage(data)
	}

	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files typically start with specific magic bytes
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	// HEIC files carry an ftyp box at offset 4 with a HEIC-related brand
	if string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		if brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1" {
			return true
		}
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return mimeType == "image/heic" || mimeType == "image/heif" ||
		strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// grayscale converts an image to 8-bit grayscale
func grayscale(src image.Image) image.Image {
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return dst
}

// rotate90 rotates an image 90 degrees clockwise
func rotate90(src image.Image) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dy(), bounds.Dx()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(bounds.Max.Y-1-y, x-bounds.Min.X, src.At(x, y))
		}
	}
	return dst
}

// gaussianBlur applies a separable 5-tap gaussian kernel (1 4 6 4 1)
func gaussianBlur(src image.Image) image.Image {
	kernel := [5]uint32{1, 4, 6, 4, 1}
	const kernelSum = 16

	bounds := src.Bounds()
	horizontal := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var r, g, b, a uint32
			for k := -2; k <= 2; k++ {
				sx := min(max(x+k, bounds.Min.X), bounds.Max.X-1)
				pr, pg, pb, pa := src.At(sx, y).RGBA()
				w := kernel[k+2]
				r += pr * w
				g += pg * w
				b += pb * w
				a += pa * w
			}
			horizontal.Set(x, y, color.RGBA64{
				R: uint16(r / kernelSum),
				G: uint16(g / kernelSum),
				B: uint16(b / kernelSum),
				A: uint16(a / kernelSum),
			})
		}
	}

	dst := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var r, g, b, a uint32
			for k := -2; k <= 2; k++ {
				sy := min(max(y+k, bounds.Min.Y), bounds.Max.Y-1)
				pr, pg, pb, pa := horizontal.At(x, sy).RGBA()
				w := kernel[k+2]
				r += pr * w
				g += pg * w
				b += pb * w
				a += pa * w
			}
			dst.Set(x, y, color.RGBA64{
				R: uint16(r / kernelSum),
				G: uint16(g / kernelSum),
				B: uint16(b / kernelSum),
				A: uint16(a / kernelSum),
			})
		}
	}
	return dst
}

// prepareImageData normalizes an upload to PNG and applies the requested
// preprocessing. Returns PNG bytes ready to hand to a vision model.
func prepareImageData(imageData []byte, contentType string, opts Options) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg" // default
	}

	// Plain PNG with no preprocessing requested passes through untouched
	if mimeType == "image/png" && !opts.Grayscale && !opts.GaussianBlur && !opts.Rotate && !isHEICFormat(imageData) {
		return imageData, nil
	}

	img, err := decodeImage(imageData, mimeType)
	if err != nil {
		return nil, err
	}

	if opts.Rotate {
		img = rotate90(img)
	}
	if opts.GaussianBlur {
		img = gaussianBlur(img)
	}
	if opts.Grayscale {
		img = grayscale(img)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
