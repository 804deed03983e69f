package photo

import (
	"bytes"
	"fmt"
	"image"

	"imalink-core-go/internal/platform/config"
	apperrors "imalink-core-go/internal/platform/errors"
)

// Guard enforces resource limits on ingested files before any decoding
// work is scheduled.
type Guard struct {
	maxFileSize int64
	maxPixels   int64
	maxWidth    int
	maxHeight   int
	deepScan    bool
}

func NewGuard(cfg config.LimitsConfig) *Guard {
	return &Guard{
		maxFileSize: cfg.MaxFileSize,
		maxPixels:   cfg.MaxPixels,
		maxWidth:    cfg.MaxWidth,
		maxHeight:   cfg.MaxHeight,
		deepScan:    cfg.EnableDeepScan,
	}
}

// Check validates the source against the configured limits. RAW
// containers skip the dimension probe because their geometry is not
// readable without the RAW capability.
func (g *Guard) Check(src Source, tag FormatTag) error {
	const op = "photo.Guard.Check"

	if len(src.Data) == 0 {
		return apperrors.New(apperrors.KindInvalidParameter, op, "file is empty")
	}
	if g.maxFileSize > 0 && int64(len(src.Data)) > g.maxFileSize {
		return apperrors.New(apperrors.KindInvalidParameter, op,
			fmt.Sprintf("file size %d exceeds limit %d", len(src.Data), g.maxFileSize))
	}

	if g.deepScan {
		if err := g.scanEmbedded(src.Data); err != nil {
			return err
		}
	}

	if tag.IsRaw() {
		return nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(src.Data))
	if err != nil {
		// Leave the definitive verdict to the decoder stage.
		return nil
	}
	if g.maxWidth > 0 && cfg.Width > g.maxWidth || g.maxHeight > 0 && cfg.Height > g.maxHeight {
		return apperrors.New(apperrors.KindInvalidParameter, op,
			fmt.Sprintf("dimensions %dx%d exceed limit %dx%d", cfg.Width, cfg.Height, g.maxWidth, g.maxHeight))
	}
	if g.maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > g.maxPixels {
		return apperrors.New(apperrors.KindInvalidParameter, op,
			fmt.Sprintf("pixel count %d exceeds limit %d", int64(cfg.Width)*int64(cfg.Height), g.maxPixels))
	}
	return nil
}

// scanEmbedded rejects files whose body smuggles another container
// behind a valid image header.
func (g *Guard) scanEmbedded(data []byte) error {
	const op = "photo.Guard.Check"

	// Four-byte markers only; two-byte ones collide with compressed
	// pixel data far too often.
	markers := [][]byte{
		[]byte("%PDF"),            // PDF document
		{0x7F, 'E', 'L', 'F'},     // ELF executable
		{'P', 'K', 0x03, 0x04},    // ZIP archive
	}
	// Skip the image's own header region; only payloads hidden past it
	// are suspicious.
	body := data
	if len(body) > 64 {
		body = body[64:]
	}
	for _, m := range markers {
		if bytes.Contains(body, m) && bytes.Index(body, m) < 4096 {
			return apperrors.New(apperrors.KindInvalidParameter, op,
				"file contains an embedded foreign payload")
		}
	}
	return nil
}
