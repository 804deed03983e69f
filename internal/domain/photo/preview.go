package photo

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	apperrors "imalink-core-go/internal/platform/errors"
)

const (
	// HotpreviewBound is the fixed bounding box of the always-generated
	// small preview.
	HotpreviewBound = 150

	// MinColdpreviewSize is the smallest accepted coldpreview bounding
	// box; anything below it would duplicate the hotpreview.
	MinColdpreviewSize = 150

	previewJPEGQuality = 85
)

// previewScaler is the single resampling kernel used for every
// preview. Changing it changes every hothash ever computed, so it is
// pinned.
var previewScaler = draw.CatmullRom

// GenerateHotpreview renders the canonical small preview: the raster
// scaled to fit a HotpreviewBound box, JPEG-encoded.
func GenerateHotpreview(raster *Raster) (*Preview, error) {
	return scaleToPreview(raster, HotpreviewBound, "photo.GenerateHotpreview")
}

// GenerateColdpreview renders the optional larger preview. The size is
// the caller's requested bounding box and must be at least
// MinColdpreviewSize.
func GenerateColdpreview(raster *Raster, size int) (*Preview, error) {
	const op = "photo.GenerateColdpreview"
	if size < MinColdpreviewSize {
		return nil, apperrors.New(apperrors.KindInvalidParameter, op,
			fmt.Sprintf("coldpreview size %d below minimum %d", size, MinColdpreviewSize))
	}
	return scaleToPreview(raster, size, op)
}

func scaleToPreview(raster *Raster, bound int, op string) (*Preview, error) {
	w, h := fitWithin(raster.Width(), raster.Height(), bound)

	scaled := raster.Pixels
	if w != raster.Width() || h != raster.Height() {
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		previewScaler.Scale(dst, dst.Bounds(), raster.Pixels, raster.Pixels.Bounds(), draw.Over, nil)
		scaled = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: previewJPEGQuality}); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, "preview encoding failed", err)
	}
	return &Preview{Data: buf.Bytes(), Width: w, Height: h}, nil
}

// fitWithin scales dimensions down to fit a square bounding box while
// preserving aspect ratio. Images already inside the box keep their
// dimensions; previews never upscale.
func fitWithin(w, h, bound int) (int, int) {
	if w <= bound && h <= bound {
		return w, h
	}
	if w >= h {
		nh := h * bound / w
		if nh < 1 {
			nh = 1
		}
		return bound, nh
	}
	nw := w * bound / h
	if nw < 1 {
		nw = 1
	}
	return nw, bound
}
