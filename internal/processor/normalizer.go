/**
 * Image Normalizer - validation, decoding, and enhancement
 *
 * Pipeline stage one: reject oversized uploads, decode, cap the longest
 * side at the configured maximum with Catmull-Rom resampling, then run
 * a best-effort enhancement pass (grayscale + adaptive thresholding)
 * that raises text/background contrast for recognition. Enhancement
 * failure is a recorded warning, never a hard failure.
 */

package processor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	ocrerrors "github.com/zakpos/ocr-worker/internal/errors"
	"github.com/zakpos/ocr-worker/internal/logging"
	"github.com/zakpos/ocr-worker/internal/metrics"
)

// Normalizer validates and preprocesses raw request images.
type Normalizer struct {
	maxBytes     int64
	maxDimension int
	logger       *logging.Logger
}

// NewNormalizer creates a normalizer with the given upload byte limit
// and maximum pixel dimension (both sides capped).
func NewNormalizer(maxBytes int64, maxDimension int, logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.NewLogger("normalizer")
	}
	return &Normalizer{
		maxBytes:     maxBytes,
		maxDimension: maxDimension,
		logger:       logger,
	}
}

// Normalize decodes and preprocesses the request image. Fails with
// IMAGE_TOO_LARGE when the declared or actual byte size exceeds the
// limit and INVALID_IMAGE when the bytes cannot be decoded.
func (n *Normalizer) Normalize(req *ProcessRequest) (*NormalizedImage, error) {
	if n.maxBytes > 0 {
		if req.FileSize > n.maxBytes {
			return nil, ocrerrors.NewImageTooLargeError(req.JobID, req.FileSize, n.maxBytes)
		}
		if int64(len(req.ImageData)) > n.maxBytes {
			return nil, ocrerrors.NewImageTooLargeError(req.JobID, int64(len(req.ImageData)), n.maxBytes)
		}
	}

	img, format, err := image.Decode(bytes.NewReader(req.ImageData))
	if err != nil {
		return nil, ocrerrors.NewInvalidImageError(req.JobID, err)
	}

	img = autoOrient(img)
	img = n.downscale(img)

	mode := ColorModeRGB
	if isGrayscale(img) {
		mode = ColorModeGrayscale
	}

	enhanced, err := enhance(img)
	if err == nil {
		img = enhanced
		mode = ColorModeGrayscale
	} else {
		// Best-effort stage: keep the resized image and record the
		// warning so the degradation stays observable.
		n.logger.Warn("Image enhancement failed, using unenhanced image",
			"jobId", req.JobID, "error", err)
		metrics.RecordError("enhancement_failed", "")
	}

	bounds := img.Bounds()
	n.logger.Debug("Image normalized",
		"jobId", req.JobID,
		"format", format,
		"width", bounds.Dx(),
		"height", bounds.Dy(),
		"mode", string(mode))

	return &NormalizedImage{
		Image:  img,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Mode:   mode,
	}, nil
}

// autoOrient is the orientation-correction extension point. The current
// behavior is identity; EXIF- or content-based rotation can be added
// here without touching the rest of the pipeline.
func autoOrient(img image.Image) image.Image {
	return img
}

// downscale caps both dimensions at maxDimension, preserving aspect
// ratio. Catmull-Rom trades a little speed for resampling quality,
// which matters for small print on labels.
func (n *Normalizer) downscale(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= n.maxDimension && h <= n.maxDimension {
		return img
	}

	longest := w
	if h > longest {
		longest = h
	}
	scale := float64(n.maxDimension) / float64(longest)

	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)
	return dst
}

func isGrayscale(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}
	return false
}

// enhance converts to grayscale and applies locally-windowed adaptive
// thresholding to sharpen the text/background boundary.
func enhance(img image.Image) (image.Image, error) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("cannot enhance empty image %dx%d", bounds.Dx(), bounds.Dy())
	}

	gray := toGray(img)
	return adaptiveThreshold(gray, 15, 2.0), nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(gray, gray.Bounds(), img, bounds.Min, xdraw.Src)
	return gray
}

// adaptiveThreshold binarizes a grayscale image against the mean of a
// window x window neighborhood (minus a small bias), computed with an
// integral image so the pass stays linear in pixel count.
func adaptiveThreshold(src *image.Gray, window int, bias float64) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// Summed-area table with one row/column of zero padding.
	integral := make([]uint64, (w+1)*(h+1))
	stride := w + 1
	for y := 0; y < h; y++ {
		var rowSum uint64
		for x := 0; x < w; x++ {
			rowSum += uint64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			integral[(y+1)*stride+(x+1)] = integral[y*stride+(x+1)] + rowSum
		}
	}

	half := window / 2
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		y0, y1 := y-half, y+half+1
		if y0 < 0 {
			y0 = 0
		}
		if y1 > h {
			y1 = h
		}
		for x := 0; x < w; x++ {
			x0, x1 := x-half, x+half+1
			if x0 < 0 {
				x0 = 0
			}
			if x1 > w {
				x1 = w
			}

			area := uint64((y1 - y0) * (x1 - x0))
			sum := integral[y1*stride+x1] - integral[y0*stride+x1] -
				integral[y1*stride+x0] + integral[y0*stride+x0]
			mean := float64(sum) / float64(area)

			v := float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			if v > mean-bias {
				dst.Pix[y*dst.Stride+x] = 255
			} else {
				dst.Pix[y*dst.Stride+x] = 0
			}
		}
	}
	return dst
}
