/**
 * OCR Types - Shared data structures for OCR operations
 *
 * The data model for a single pipeline invocation: request in,
 * normalized image through the middle, structured result out.
 */

package processor

import (
	"bytes"
	"image"
	"image/png"
	"time"
)

// DocumentType is the declared category of the source image; it drives
// which structured-extraction rule set applies.
type DocumentType string

const (
	DocumentTypeProduct DocumentType = "product"
	DocumentTypeReceipt DocumentType = "receipt"
	DocumentTypeInvoice DocumentType = "invoice"
	DocumentTypeBarcode DocumentType = "barcode"
)

// ColorMode of a normalized image.
type ColorMode string

const (
	ColorModeRGB       ColorMode = "rgb"
	ColorModeGrayscale ColorMode = "grayscale"
)

// Backend identifiers reported in a RecognitionOutcome.
const (
	BackendPrimary  = "primary"
	BackendFallback = "fallback"
)

// ProcessRequest represents an OCR processing request. Immutable once
// constructed; owned exclusively by one pipeline invocation. The HTTP
// layer has already validated content-type, upload size limits, and
// rate limits before this is built.
type ProcessRequest struct {
	JobID               string
	ShopID              string
	UserID              string
	OCRType             DocumentType
	ConfidenceThreshold float64
	ExtractBarcodes     bool
	Language            string
	ImageData           []byte
	FileSize            int64
	Filename            string
}

// NormalizedImage is the decoded, resized, and possibly enhanced pixel
// buffer handed to recognition and barcode detection. It lives for one
// pipeline invocation and is never persisted.
type NormalizedImage struct {
	Image  image.Image
	Width  int
	Height int
	Mode   ColorMode
}

// EncodePNG serializes the pixel buffer for backends that consume
// encoded bytes (the TrOCR endpoint and Tesseract).
func (n *NormalizedImage) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, n.Image); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RecognitionOutcome is the raw output of one recognition attempt.
// Confidence is always supplied: backends without a native confidence
// signal report a fixed nominal value.
type RecognitionOutcome struct {
	Text       string
	Model      string
	Confidence float64
	Backend    string // "primary" or "fallback"
	Duration   time.Duration
}

// BoundingBox represents coordinates of a region in normalized-image
// pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Barcode is one successfully decoded symbol.
type Barcode struct {
	Type        string      `json:"type"`
	Value       string      `json:"value"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bounding_box"`
}

// StructuredFields holds the type-tagged extraction output. Unknown or
// unparsed fields stay nil, never fabricated.
type StructuredFields struct {
	Type DocumentType `json:"type"`

	// product
	ProductName *string  `json:"product_name,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Currency    *string  `json:"currency,omitempty"`

	// receipt (currency shared with product)
	TotalAmount *float64 `json:"total_amount,omitempty"`
	ItemCount   *int     `json:"item_count,omitempty"`

	// invoice (total_amount shared with receipt)
	InvoiceNumber *string `json:"invoice_number,omitempty"`
	SupplierName  *string `json:"supplier_name,omitempty"`
}

// Degraded reports whether extraction produced no informative field.
// ItemCount is excluded: a line count exists even when nothing parsed.
func (f StructuredFields) Degraded() bool {
	return f.ProductName == nil &&
		f.Price == nil &&
		f.TotalAmount == nil &&
		f.InvoiceNumber == nil &&
		f.SupplierName == nil
}

// ProcessResult is the final pipeline output. Produced once per
// request, written to the cache and returned, never mutated after
// creation.
type ProcessResult struct {
	ID               string           `json:"id"`
	Text             string           `json:"text"`
	Confidence       float64          `json:"confidence"`
	Structured       StructuredFields `json:"structured"`
	Barcodes         []Barcode        `json:"barcodes"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	ModelUsed        string           `json:"model_used"`
	ErrorCode        string           `json:"error_code,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// Failed reports whether the result carries a processing error.
func (r *ProcessResult) Failed() bool {
	return r.Error != ""
}
