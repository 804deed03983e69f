package photo

import (
	"context"
	"errors"
	"fmt"

	"imalink-core-go/internal/core/pool"
	"imalink-core-go/internal/domain/rawimage"
	apperrors "imalink-core-go/internal/platform/errors"
	"imalink-core-go/internal/platform/logging"
)

// RawNormalizer turns RAW containers into the canonical raster through
// the registered RAW capability, gating concurrency through a bounded
// slot pool.
type RawNormalizer struct {
	slots  *pool.Slots
	logger *logging.Logger
}

func NewRawNormalizer(slots *pool.Slots, logger *logging.Logger) *RawNormalizer {
	return &RawNormalizer{slots: slots, logger: logger}
}

// Normalize decodes a RAW source. The capability check happens before a
// slot is requested so a missing decoder fails fast instead of queuing.
func (n *RawNormalizer) Normalize(ctx context.Context, src Source, tag FormatTag) (*Raster, error) {
	const op = "photo.RawNormalizer.Normalize"

	decoder, ok := rawimage.Registered()
	if !ok {
		return nil, apperrors.New(apperrors.KindMissingCapability, op,
			fmt.Sprintf("no RAW decoding capability registered (file requires %s support)", tag.RawSubtype))
	}

	release, err := n.slots.Acquire(ctx)
	if err != nil {
		if errors.Is(err, pool.ErrSaturated) {
			return nil, apperrors.Wrap(apperrors.KindBusy, op, "all RAW decode slots are busy", err)
		}
		return nil, apperrors.Wrap(apperrors.KindInternal, op, "RAW slot acquisition failed", err)
	}
	defer release()

	n.logger.DebugTag("RAW", "decoding %s via %s (slots in use: %d/%d)",
		src.Filename, decoder.Name(), n.slots.InUse(), n.slots.Size())

	img, err := decoder.Decode(ctx, src.Data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindRawDecode, op,
			fmt.Sprintf("RAW container (%s) could not be decoded", tag.RawSubtype), err)
	}
	return NewRaster(img), nil
}
