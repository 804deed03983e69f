package photo

import (
	"bytes"
	"path/filepath"
	"strings"

	apperrors "imalink-core-go/internal/platform/errors"
)

// rawExtensions maps filename extensions to the RAW subtype they imply.
// TIFF-framed files carrying one of these extensions are routed to the
// RAW path instead of the standard TIFF decoder.
var rawExtensions = map[string]string{
	".cr2": "cr2",
	".nef": "nef",
	".arw": "arw",
	".dng": "dng",
	".pef": "pef",
	".srw": "srw",
	".orf": "orf",
	".rw2": "rw2",
	".raf": "raf",
}

var standardExtensions = map[string]FormatKind{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".bmp":  FormatBMP,
	".webp": FormatWebP,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
}

// Detect classifies the source bytes. Content signatures are the
// primary evidence; the filename extension only raises or lowers
// confidence, except for TIFF-framed RAW containers where it selects
// the subtype.
func Detect(data []byte, filename string) (FormatTag, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	byContent := detectBySignature(data, ext)
	byExt, extKnown := extensionKind(ext)

	if byContent.Kind != FormatUnknown {
		if extKnown && byExt == byContent.Kind {
			byContent.Confidence = ConfidenceHigh
		} else {
			byContent.Confidence = ConfidenceMedium
		}
		return byContent, nil
	}

	if extKnown {
		// Content inconclusive; trust the extension reluctantly.
		tag := FormatTag{Kind: byExt, Confidence: ConfidenceLow}
		if byExt == FormatRaw {
			tag.RawSubtype = rawExtensions[ext]
		}
		return tag, nil
	}

	return FormatTag{Kind: FormatUnknown}, apperrors.New(
		apperrors.KindUnsupportedFormat, "photo.Detect",
		"file content matches no supported image format")
}

func extensionKind(ext string) (FormatKind, bool) {
	if k, ok := standardExtensions[ext]; ok {
		return k, true
	}
	if _, ok := rawExtensions[ext]; ok {
		return FormatRaw, true
	}
	return FormatUnknown, false
}

func detectBySignature(data []byte, ext string) FormatTag {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return FormatTag{Kind: FormatJPEG}

	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return FormatTag{Kind: FormatPNG}

	case len(data) >= 4 && bytes.Equal(data[:4], []byte("GIF8")):
		return FormatTag{Kind: FormatGIF}

	case len(data) >= 2 && bytes.Equal(data[:2], []byte("BM")):
		return FormatTag{Kind: FormatBMP}

	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatTag{Kind: FormatWebP}

	case len(data) >= 16 && bytes.Equal(data[:15], []byte("FUJIFILMCCD-RAW")):
		return FormatTag{Kind: FormatRaw, RawSubtype: "raf"}

	case len(data) >= 12 && bytes.Equal(data[:4], []byte{'I', 'I', 0x2A, 0x00}) && bytes.Equal(data[8:10], []byte("CR")):
		return FormatTag{Kind: FormatRaw, RawSubtype: "cr2"}

	case len(data) >= 8 && (bytes.Equal(data[:4], []byte{'I', 'I', 0x2A, 0x00}) || bytes.Equal(data[:4], []byte{'M', 'M', 0x00, 0x2A})):
		// TIFF framing is shared by plain TIFF and most RAW
		// containers; the extension disambiguates.
		if sub, ok := rawExtensions[ext]; ok {
			return FormatTag{Kind: FormatRaw, RawSubtype: sub}
		}
		return FormatTag{Kind: FormatTIFF}
	}
	return FormatTag{Kind: FormatUnknown}
}
