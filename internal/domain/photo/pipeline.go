package photo

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"imalink-core-go/internal/core/pool"
	"imalink-core-go/internal/domain/eventbus"
	"imalink-core-go/internal/platform/config"
	apperrors "imalink-core-go/internal/platform/errors"
	"imalink-core-go/internal/platform/logging"
	"imalink-core-go/internal/platform/observability"
)

// Request is one pipeline invocation: the source bytes, the name they
// arrived under, and the optional coldpreview bounding box (0 means not
// requested).
type Request struct {
	Data            []byte
	Filename        string
	ColdpreviewSize int
}

// Options collects the pipeline's collaborators.
type Options struct {
	Config *config.Config
	Logger *logging.Logger
}

// Pipeline processes one source into a Record. It is a pure function
// of the request; no state is shared between invocations beyond the
// RAW slot pool and the outcome counters.
type Pipeline struct {
	guard     *Guard
	extractor *Extractor
	raw       *RawNormalizer
	metrics   *Metrics
	logger    *logging.Logger
}

func NewPipeline(opts Options) *Pipeline {
	cfg := opts.Config
	slots := pool.NewSlots(cfg.Raw.PoolSize, cfg.Raw.AcquireTimeout)
	return &Pipeline{
		guard:     NewGuard(cfg.Limits),
		extractor: NewExtractor(opts.Logger),
		raw:       NewRawNormalizer(slots, opts.Logger),
		metrics:   &Metrics{},
		logger:    opts.Logger,
	}
}

func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// RawSlots exposes the slot pool for status reporting.
func (p *Pipeline) RawSlots() *pool.Slots { return p.raw.slots }

// Process runs the full pipeline. Either a complete Record is returned
// or a single Kind-tagged error; never both, never a partial record.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Record, error) {
	started := time.Now()
	ctx, end := observability.StartSpan(ctx, "pipeline", "process")

	record, err := p.process(ctx, req)
	end(err)

	if err != nil {
		p.metrics.Failed.Add(1)
		kind := apperrors.KindOf(err)
		p.logger.WarnTag("PIPELINE", "%s failed: %s (%v)", req.Filename, kind, err)
		eventbus.Get().Publish(eventbus.TopicPhotoFailed, eventbus.FailedEvent{
			Filename: req.Filename,
			Kind:     string(kind),
			Message:  err.Error(),
		})
		return nil, err
	}

	p.metrics.Processed.Add(1)
	elapsed := time.Since(started)
	p.logger.InfoTag("PIPELINE", "%s processed in %s (hothash %s…)",
		req.Filename, elapsed.Round(time.Millisecond), record.Hothash[:12])
	eventbus.Get().Publish(eventbus.TopicPhotoProcessed, eventbus.ProcessedEvent{
		Filename:   req.Filename,
		Hothash:    record.Hothash,
		DurationMs: elapsed.Milliseconds(),
		Raw:        record.Format.IsRaw(),
	})
	return record, nil
}

func (p *Pipeline) process(ctx context.Context, req Request) (*Record, error) {
	const op = "photo.Pipeline.Process"

	// Parameter problems abort before any decoding work is spent.
	if req.ColdpreviewSize != 0 && req.ColdpreviewSize < MinColdpreviewSize {
		return nil, apperrors.New(apperrors.KindInvalidParameter, op,
			fmt.Sprintf("coldpreview size %d below minimum %d", req.ColdpreviewSize, MinColdpreviewSize))
	}

	src := Source{Data: req.Data, Filename: req.Filename}

	tag, err := Detect(src.Data, src.Filename)
	if err != nil {
		return nil, err
	}
	if err := p.guard.Check(src, tag); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, "request cancelled", err)
	}

	raster, err := p.decode(ctx, src, tag)
	if err != nil {
		return nil, err
	}

	// Metadata and previews only need the raster (metadata reads the
	// original container) and run concurrently.
	var (
		meta     BasicMetadata
		settings CameraSettings
		hot      *Preview
		cold     *Preview
	)
	var g errgroup.Group
	g.Go(func() error {
		var metaErr error
		meta, settings, metaErr = p.extractor.Extract(src)
		if metaErr != nil {
			// Corrupt metadata never fails the run.
			p.logger.WarnTag("META", "%s: %v", src.Filename, metaErr)
		}
		return nil
	})
	g.Go(func() error {
		var previewErr error
		hot, previewErr = GenerateHotpreview(raster)
		if previewErr != nil {
			return previewErr
		}
		if req.ColdpreviewSize > 0 {
			cold, previewErr = GenerateColdpreview(raster, req.ColdpreviewSize)
		}
		return previewErr
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, "request cancelled", err)
	}

	record := &Record{
		Hothash:     Hothash(hot),
		Hotpreview:  hot,
		Coldpreview: cold,
		Filename:    src.Filename,
		Width:       raster.Width(),
		Height:      raster.Height(),
		Format:      tag,
		Meta:        meta,
		Settings:    settings,
	}
	if err := record.validate(); err != nil {
		return nil, err
	}
	return record, nil
}

func (p *Pipeline) decode(ctx context.Context, src Source, tag FormatTag) (*Raster, error) {
	if tag.IsRaw() {
		raster, err := p.raw.Normalize(ctx, src, tag)
		if err != nil {
			return nil, err
		}
		p.metrics.RawDecodes.Add(1)
		return raster, nil
	}
	return DecodeRaster(src.Data)
}

// validate enforces the structural promise of a successful record:
// hothash, hotpreview, dimensions and filename are always populated.
func (r *Record) validate() error {
	const op = "photo.Record.validate"
	switch {
	case len(r.Hothash) != 64:
		return apperrors.New(apperrors.KindInternal, op, "hothash is not a 64-char digest")
	case r.Hotpreview == nil || len(r.Hotpreview.Data) == 0:
		return apperrors.New(apperrors.KindInternal, op, "hotpreview missing from successful record")
	case r.Width <= 0 || r.Height <= 0:
		return apperrors.New(apperrors.KindInternal, op, "record has no pixel dimensions")
	case r.Filename == "":
		return apperrors.New(apperrors.KindInternal, op, "record has no filename")
	}
	return nil
}
