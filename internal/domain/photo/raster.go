package photo

import (
	"bytes"
	"image"
	"image/draw"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	apperrors "imalink-core-go/internal/platform/errors"
)

// DecodeRaster decodes a non-RAW source into the canonical raster.
func DecodeRaster(data []byte) (*Raster, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnsupportedFormat, "photo.DecodeRaster",
			"image data could not be decoded", err)
	}
	return NewRaster(img), nil
}

// NewRaster converts any decoded image into the canonical NRGBA form.
// All pixel sources pass through this single conversion so previews are
// reproducible regardless of the decoder that produced the image.
func NewRaster(img image.Image) *Raster {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return &Raster{Pixels: nrgba}
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Raster{Pixels: dst}
}
