package photo

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	apperrors "imalink-core-go/internal/platform/errors"
	"imalink-core-go/internal/platform/logging"
)

// exifTimeLayout is the timestamp format cameras write. Some firmware
// pads the value with NULs or spaces, so values are trimmed first.
const exifTimeLayout = "2006:01:02 15:04:05"

// Extractor reads embedded metadata out of a source file. Extraction
// never fails the pipeline: unreadable metadata degrades to all-null
// fields and a non-fatal corruption notice.
type Extractor struct {
	logger *logging.Logger
}

func NewExtractor(logger *logging.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract reads metadata from the source bytes. The returned error, if
// any, is always of the metadata-corrupt kind and the accompanying
// structs are still valid (fields null where unreadable).
func (e *Extractor) Extract(src Source) (BasicMetadata, CameraSettings, error) {
	const op = "photo.Extractor.Extract"

	x, err := exif.Decode(bytes.NewReader(src.Data))
	if err != nil {
		if exif.IsCriticalError(err) {
			if !hasMetadataBlock(src.Data) {
				// No metadata at all; absence is not an error.
				return BasicMetadata{}, CameraSettings{}, nil
			}
			// A metadata block exists but is structurally broken.
			return BasicMetadata{}, CameraSettings{}, apperrors.Wrap(apperrors.KindMetadataCorrupt, op,
				"embedded metadata block is unreadable", err)
		}
		if x == nil {
			return BasicMetadata{}, CameraSettings{}, nil
		}
		// Non-critical decode error: whatever parsed is usable.
		e.logger.DebugTag("META", "%s: partial metadata decode: %v", src.Filename, err)
	}
	if x == nil {
		return BasicMetadata{}, CameraSettings{}, nil
	}

	meta := BasicMetadata{
		CameraMake:  e.stringField(x, exif.Make),
		CameraModel: e.stringField(x, exif.Model),
		TakenAt:     e.takenAt(x),
		GPS:         e.gps(x),
	}
	settings := CameraSettings{
		ISO:          e.iso(x),
		Aperture:     e.aperture(x),
		ShutterSpeed: e.shutterSpeed(x),
		FocalLength:  e.ratioField(x, exif.FocalLength),
		LensMake:     e.stringField(x, exif.LensMake),
		LensModel:    e.stringField(x, exif.LensModel),
	}
	return meta, settings, nil
}

func (e *Extractor) stringField(x *exif.Exif, name exif.FieldName) *string {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	v, err := tag.StringVal()
	if err != nil {
		return nil
	}
	v = cleanExifString(v)
	if v == "" {
		return nil
	}
	return &v
}

// takenAt resolves the capture time: the original exposure timestamp
// first, then the digitization timestamp, then the generic one. File
// modification time is deliberately never consulted.
func (e *Extractor) takenAt(x *exif.Exif) *time.Time {
	for _, name := range []exif.FieldName{
		exif.DateTimeOriginal,
		exif.DateTimeDigitized,
		exif.DateTime,
	} {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		raw, err := tag.StringVal()
		if err != nil {
			continue
		}
		t, err := time.Parse(exifTimeLayout, cleanExifString(raw))
		if err != nil {
			continue
		}
		return &t
	}
	return nil
}

func (e *Extractor) iso(x *exif.Exif) *int {
	tag, err := x.Get(exif.ISOSpeedRatings)
	if err != nil {
		return nil
	}
	v, err := tag.Int(0)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// aperture resolves the f-number: the direct FNumber tag first, then
// the APEX ApertureValue (f = 2^(apex/2)).
func (e *Extractor) aperture(x *exif.Exif) *float64 {
	if v := e.ratioField(x, exif.FNumber); v != nil {
		return v
	}
	if apex := e.ratioField(x, exif.ApertureValue); apex != nil {
		f := math.Pow(2, *apex/2)
		f = math.Round(f*10) / 10
		return &f
	}
	return nil
}

// shutterSpeed resolves the exposure time: the direct ExposureTime
// rational first, then the APEX ShutterSpeedValue (t = 2^-apex).
func (e *Extractor) shutterSpeed(x *exif.Exif) *string {
	if tag, err := x.Get(exif.ExposureTime); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 && num != 0 {
			s := formatExposure(float64(num) / float64(den))
			return &s
		}
	}
	if apex := e.ratioField(x, exif.ShutterSpeedValue); apex != nil {
		s := formatExposure(math.Pow(2, -*apex))
		return &s
	}
	return nil
}

func (e *Extractor) ratioField(x *exif.Exif, name exif.FieldName) *float64 {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	var v float64
	switch tag.Format() {
	case tiff.RatVal:
		num, den, err := tag.Rat2(0)
		if err != nil || den == 0 {
			return nil
		}
		v = float64(num) / float64(den)
	case tiff.IntVal:
		n, err := tag.Int(0)
		if err != nil {
			return nil
		}
		v = float64(n)
	default:
		return nil
	}
	return &v
}

// gps decodes the position, all-or-nothing: both coordinates and both
// hemisphere references must be present and sane or nothing is kept.
func (e *Extractor) gps(x *exif.Exif) *GPSCoordinates {
	lat, ok := e.gpsAxis(x, exif.GPSLatitude, exif.GPSLatitudeRef, "N", "S", 90)
	if !ok {
		return nil
	}
	lon, ok := e.gpsAxis(x, exif.GPSLongitude, exif.GPSLongitudeRef, "E", "W", 180)
	if !ok {
		return nil
	}
	return &GPSCoordinates{Latitude: lat, Longitude: lon}
}

func (e *Extractor) gpsAxis(x *exif.Exif, coord, ref exif.FieldName, positive, negative string, limit float64) (float64, bool) {
	coordTag, err := x.Get(coord)
	if err != nil || coordTag.Count < 3 {
		return 0, false
	}
	refTag, err := x.Get(ref)
	if err != nil {
		return 0, false
	}
	refVal, err := refTag.StringVal()
	if err != nil {
		return 0, false
	}
	refVal = cleanExifString(refVal)
	// Only the two hemisphere letters of this axis are well-formed.
	if !strings.EqualFold(refVal, positive) && !strings.EqualFold(refVal, negative) {
		return 0, false
	}

	var dms [3]float64
	for i := 0; i < 3; i++ {
		num, den, err := coordTag.Rat2(i)
		if err != nil || den == 0 {
			return 0, false
		}
		dms[i] = float64(num) / float64(den)
	}

	v := dms[0] + dms[1]/60 + dms[2]/3600
	if v < 0 || v > limit {
		return 0, false
	}
	if strings.EqualFold(refVal, negative) {
		v = -v
	}
	return v, true
}

// hasMetadataBlock reports whether the container carries a metadata
// directory at all: TIFF framing, or a JPEG Exif APP1 marker.
func hasMetadataBlock(data []byte) bool {
	if len(data) >= 4 &&
		(bytes.HasPrefix(data, []byte{'I', 'I', 0x2A, 0x00}) ||
			bytes.HasPrefix(data, []byte{'M', 'M', 0x00, 0x2A})) {
		return true
	}
	return bytes.Contains(data, []byte("Exif\x00\x00"))
}

func cleanExifString(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

// formatExposure renders an exposure time the way photographers read
// it: fractional below a second, decimal seconds at or above.
func formatExposure(seconds float64) string {
	if seconds <= 0 {
		return "0"
	}
	if seconds < 1 {
		den := math.Round(1 / seconds)
		return "1/" + strconv.FormatFloat(den, 'f', -1, 64)
	}
	return strconv.FormatFloat(math.Round(seconds*10)/10, 'f', -1, 64)
}
