/**
 * Barcode Detector - barcode and QR payload extraction
 *
 * Enrichment stage: scans the normalized image for 1D/2D symbols and
 * returns one Barcode record per successfully decoded symbol. Detection
 * never fails the pipeline; any internal error yields an empty result.
 */

package processor

import (
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/multi"

	"github.com/zakpos/ocr-worker/internal/logging"
)

// gozxing reports no per-symbol confidence; decoded symbols carry the
// detector's fixed nominal value.
const barcodeConfidence = 0.95

// BarcodeDetector scans normalized images for barcode/QR payloads.
type BarcodeDetector struct {
	logger *logging.Logger
}

// NewBarcodeDetector creates a detector.
func NewBarcodeDetector(logger *logging.Logger) *BarcodeDetector {
	if logger == nil {
		logger = logging.NewLogger("barcode")
	}
	return &BarcodeDetector{logger: logger}
}

// Detect returns every decodable symbol in the image. Partially decoded
// or unreadable symbols are silently dropped; errors degrade to an
// empty sequence.
func (d *BarcodeDetector) Detect(img *NormalizedImage) (barcodes []Barcode) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("Barcode detection panicked", "panic", r)
			barcodes = nil
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(img.Image)
	if err != nil {
		d.logger.Warn("Barcode detection failed", "error", err)
		return nil
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}

	reader := multi.NewGenericMultipleBarcodeReader(gozxing.NewMultiFormatReader())
	results, err := reader.DecodeMultiple(bmp, hints)
	if err != nil {
		// NotFound is the normal no-symbol outcome; anything else is
		// still just an empty enrichment.
		return nil
	}

	for _, result := range results {
		if result.GetText() == "" {
			continue
		}
		barcodes = append(barcodes, Barcode{
			Type:        result.GetBarcodeFormat().String(),
			Value:       result.GetText(),
			Confidence:  barcodeConfidence,
			BoundingBox: boundingBoxOf(result.GetResultPoints()),
		})
	}
	return barcodes
}

// boundingBoxOf derives a pixel box from the detector's result points.
// 1D formats report two line endpoints, so a degenerate height is
// possible; the box is clamped to at least one pixel per side.
func boundingBoxOf(points []gozxing.ResultPoint) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}

	minX, minY := points[0].GetX(), points[0].GetY()
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p.GetX() < minX {
			minX = p.GetX()
		}
		if p.GetX() > maxX {
			maxX = p.GetX()
		}
		if p.GetY() < minY {
			minY = p.GetY()
		}
		if p.GetY() > maxY {
			maxY = p.GetY()
		}
	}

	width := int(maxX - minX)
	height := int(maxY - minY)
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return BoundingBox{
		X:      int(minX),
		Y:      int(minY),
		Width:  width,
		Height: height,
	}
}
