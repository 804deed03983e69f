package photo

import (
	"image"
	"sync/atomic"
	"time"
)

// FormatKind identifies the container family of an ingested file.
type FormatKind string

const (
	FormatJPEG    FormatKind = "jpeg"
	FormatPNG     FormatKind = "png"
	FormatGIF     FormatKind = "gif"
	FormatBMP     FormatKind = "bmp"
	FormatWebP    FormatKind = "webp"
	FormatTIFF    FormatKind = "tiff"
	FormatRaw     FormatKind = "raw"
	FormatUnknown FormatKind = "unknown"
)

// Confidence reports how strongly detection evidence agreed.
type Confidence string

const (
	// ConfidenceHigh: magic bytes and filename extension agree.
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium: magic bytes identified the format alone.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow: only the extension matched; content was inconclusive.
	ConfidenceLow Confidence = "low"
)

// FormatTag is the verdict of format detection.
type FormatTag struct {
	Kind       FormatKind
	RawSubtype string // cr2, nef, arw, dng, raf, ... when Kind is FormatRaw
	Confidence Confidence
}

func (t FormatTag) IsRaw() bool { return t.Kind == FormatRaw }

// Source is an ingested file: its bytes plus the name it arrived under.
type Source struct {
	Data     []byte
	Filename string
}

// Raster is the canonical in-memory picture every downstream stage
// consumes. Pixels are always NRGBA so preview output never depends on
// the source color model.
type Raster struct {
	Pixels *image.NRGBA
}

func (r *Raster) Width() int  { return r.Pixels.Bounds().Dx() }
func (r *Raster) Height() int { return r.Pixels.Bounds().Dy() }

// GPSCoordinates is a decoded position. Both axes are present or the
// struct is absent; partial fixes are never surfaced.
type GPSCoordinates struct {
	Latitude  float64
	Longitude float64
}

// BasicMetadata carries the descriptive fields read from the source's
// embedded metadata. Nil means the field was absent or unreadable.
type BasicMetadata struct {
	CameraMake  *string
	CameraModel *string
	TakenAt     *time.Time
	GPS         *GPSCoordinates
}

// CameraSettings carries exposure-related fields. Nil means absent.
type CameraSettings struct {
	ISO          *int
	Aperture     *float64
	ShutterSpeed *string
	FocalLength  *float64
	LensMake     *string
	LensModel    *string
}

// Preview is an encoded JPEG rendering plus its pixel dimensions.
type Preview struct {
	Data   []byte
	Width  int
	Height int
}

// Record is the complete result of processing one source file.
type Record struct {
	Hothash     string
	Hotpreview  *Preview
	Coldpreview *Preview // nil unless a coldpreview was requested
	Filename    string
	Width       int
	Height      int
	Format      FormatTag
	Meta        BasicMetadata
	Settings    CameraSettings
}

// Metrics counts pipeline outcomes. Counters are monotonically
// increasing and safe for concurrent use.
type Metrics struct {
	Processed  atomic.Int64
	Failed     atomic.Int64
	RawDecodes atomic.Int64
	CacheHits  atomic.Int64
}

// MetricsSnapshot is a point-in-time copy suitable for serialization.
type MetricsSnapshot struct {
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	RawDecodes int64 `json:"raw_decodes"`
	CacheHits  int64 `json:"cache_hits"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Processed:  m.Processed.Load(),
		Failed:     m.Failed.Load(),
		RawDecodes: m.RawDecodes.Load(),
		CacheHits:  m.CacheHits.Load(),
	}
}
