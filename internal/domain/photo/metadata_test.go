package photo

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
	"testing"
	"time"

	apperrors "imalink-core-go/internal/platform/errors"
	"imalink-core-go/internal/platform/logging"
)

// --- minimal TIFF writer for metadata fixtures ---

type metaEntry struct {
	tag       uint16
	fieldType uint16
	count     uint32
	value     []byte
}

func asciiEntry(tag uint16, s string) metaEntry {
	v := append([]byte(s), 0)
	return metaEntry{tag: tag, fieldType: 2, count: uint32(len(v)), value: v}
}

func shortEntry(tag uint16, v uint16) metaEntry {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return metaEntry{tag: tag, fieldType: 3, count: 1, value: b}
}

func longEntry(tag uint16, v uint32) metaEntry {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return metaEntry{tag: tag, fieldType: 4, count: 1, value: b}
}

func ratEntry(tag uint16, rats ...[2]uint32) metaEntry {
	b := make([]byte, 0, len(rats)*8)
	for _, r := range rats {
		b = binary.LittleEndian.AppendUint32(b, r[0])
		b = binary.LittleEndian.AppendUint32(b, r[1])
	}
	return metaEntry{tag: tag, fieldType: 5, count: uint32(len(rats)), value: b}
}

func ifdByteSize(es []metaEntry) int {
	size := 2 + len(es)*12 + 4
	for _, e := range es {
		if len(e.value) > 4 {
			size += len(e.value)
		}
	}
	return size
}

func writeMetaIFD(buf *bytes.Buffer, es []metaEntry, tableOffset uint32) {
	le := binary.LittleEndian
	sort.Slice(es, func(i, j int) bool { return es[i].tag < es[j].tag })

	binary.Write(buf, le, uint16(len(es)))
	dataOff := tableOffset + uint32(2+len(es)*12+4)
	var ext bytes.Buffer
	for _, e := range es {
		binary.Write(buf, le, e.tag)
		binary.Write(buf, le, e.fieldType)
		binary.Write(buf, le, e.count)
		if len(e.value) <= 4 {
			padded := make([]byte, 4)
			copy(padded, e.value)
			buf.Write(padded)
		} else {
			binary.Write(buf, le, dataOff)
			ext.Write(e.value)
			dataOff += uint32(len(e.value))
		}
	}
	binary.Write(buf, le, uint32(0)) // no next IFD
	buf.Write(ext.Bytes())
}

// buildExifTIFF assembles a little-endian TIFF whose IFD0 links the
// given Exif and GPS sub-directories.
func buildExifTIFF(t *testing.T, ifd0, exifIFD, gpsIFD []metaEntry) []byte {
	t.Helper()

	const exifPointerTag, gpsPointerTag = 0x8769, 0x8825

	full0 := append([]metaEntry{}, ifd0...)
	extra := 0
	if exifIFD != nil {
		extra++
	}
	if gpsIFD != nil {
		extra++
	}
	ifd0Size := ifdByteSize(full0) + extra*12

	off := uint32(8 + ifd0Size)
	if exifIFD != nil {
		full0 = append(full0, longEntry(exifPointerTag, off))
		off += uint32(ifdByteSize(exifIFD))
	}
	if gpsIFD != nil {
		full0 = append(full0, longEntry(gpsPointerTag, off))
	}

	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(8))

	writeMetaIFD(&buf, full0, 8)
	if exifIFD != nil {
		writeMetaIFD(&buf, exifIFD, uint32(buf.Len()))
	}
	if gpsIFD != nil {
		writeMetaIFD(&buf, gpsIFD, uint32(buf.Len()))
	}
	return buf.Bytes()
}

const (
	tagMake              = 0x010F
	tagModel             = 0x0110
	tagDateTime          = 0x0132
	tagExposureTime      = 0x829A
	tagFNumber           = 0x829D
	tagISO               = 0x8827
	tagDateTimeOriginal  = 0x9003
	tagDateTimeDigitized = 0x9004
	tagApertureValue     = 0x9202
	tagShutterSpeedValue = 0x9201
	tagFocalLength       = 0x920A
	tagGPSLatitudeRef    = 0x0001
	tagGPSLatitude       = 0x0002
	tagGPSLongitudeRef   = 0x0003
	tagGPSLongitude      = 0x0004
)

func newTestExtractor() *Extractor {
	return NewExtractor(logging.DefaultLogger)
}

func TestExtract_FullMetadata(t *testing.T) {
	data := buildExifTIFF(t,
		[]metaEntry{
			asciiEntry(tagMake, "Canon"),
			asciiEntry(tagModel, "Canon EOS R5"),
		},
		[]metaEntry{
			asciiEntry(tagDateTimeOriginal, "2023:07:14 10:30:00"),
			shortEntry(tagISO, 200),
			ratEntry(tagFNumber, [2]uint32{28, 10}),
			ratEntry(tagExposureTime, [2]uint32{1, 250}),
			ratEntry(tagFocalLength, [2]uint32{50, 1}),
		},
		[]metaEntry{
			asciiEntry(tagGPSLatitudeRef, "N"),
			ratEntry(tagGPSLatitude, [2]uint32{40, 1}, [2]uint32{26, 1}, [2]uint32{468, 10}),
			asciiEntry(tagGPSLongitudeRef, "W"),
			ratEntry(tagGPSLongitude, [2]uint32{79, 1}, [2]uint32{58, 1}, [2]uint32{336, 10}),
		},
	)

	meta, settings, err := newTestExtractor().Extract(Source{Data: data, Filename: "full.tif"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if meta.CameraMake == nil || *meta.CameraMake != "Canon" {
		t.Errorf("make: got %v", meta.CameraMake)
	}
	if meta.CameraModel == nil || *meta.CameraModel != "Canon EOS R5" {
		t.Errorf("model: got %v", meta.CameraModel)
	}
	want := time.Date(2023, 7, 14, 10, 30, 0, 0, time.UTC)
	if meta.TakenAt == nil || !meta.TakenAt.Equal(want) {
		t.Errorf("taken at: got %v, want %v", meta.TakenAt, want)
	}
	if meta.GPS == nil {
		t.Fatal("gps: got nil, want coordinates")
	}
	if math.Abs(meta.GPS.Latitude-40.446333) > 1e-4 {
		t.Errorf("latitude: got %v", meta.GPS.Latitude)
	}
	if math.Abs(meta.GPS.Longitude-(-79.976)) > 1e-4 {
		t.Errorf("longitude: got %v (west must be negative)", meta.GPS.Longitude)
	}

	if settings.ISO == nil || *settings.ISO != 200 {
		t.Errorf("iso: got %v", settings.ISO)
	}
	if settings.Aperture == nil || math.Abs(*settings.Aperture-2.8) > 1e-9 {
		t.Errorf("aperture: got %v", settings.Aperture)
	}
	if settings.ShutterSpeed == nil || *settings.ShutterSpeed != "1/250" {
		t.Errorf("shutter: got %v", settings.ShutterSpeed)
	}
	if settings.FocalLength == nil || *settings.FocalLength != 50 {
		t.Errorf("focal length: got %v", settings.FocalLength)
	}
}

func TestExtract_TimestampFallbackOrder(t *testing.T) {
	cases := []struct {
		name string
		exif []metaEntry
		ifd0 []metaEntry
		want string
	}{
		{
			name: "original wins over digitized and plain",
			exif: []metaEntry{
				asciiEntry(tagDateTimeOriginal, "2021:01:01 01:01:01"),
				asciiEntry(tagDateTimeDigitized, "2022:02:02 02:02:02"),
			},
			ifd0: []metaEntry{asciiEntry(tagDateTime, "2023:03:03 03:03:03")},
			want: "2021-01-01T01:01:01",
		},
		{
			name: "digitized wins over plain",
			exif: []metaEntry{asciiEntry(tagDateTimeDigitized, "2022:02:02 02:02:02")},
			ifd0: []metaEntry{asciiEntry(tagDateTime, "2023:03:03 03:03:03")},
			want: "2022-02-02T02:02:02",
		},
		{
			name: "plain is the last resort",
			exif: []metaEntry{},
			ifd0: []metaEntry{asciiEntry(tagDateTime, "2023:03:03 03:03:03")},
			want: "2023-03-03T03:03:03",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := buildExifTIFF(t, tc.ifd0, tc.exif, nil)
			meta, _, err := newTestExtractor().Extract(Source{Data: data, Filename: "t.tif"})
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if meta.TakenAt == nil {
				t.Fatal("taken at is nil")
			}
			if got := meta.TakenAt.Format("2006-01-02T15:04:05"); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestExtract_APEXFallbacks(t *testing.T) {
	// No direct FNumber/ExposureTime; only their APEX counterparts.
	data := buildExifTIFF(t, nil, []metaEntry{
		ratEntry(tagApertureValue, [2]uint32{2, 1}),     // 2^(2/2) = f/2.0
		ratEntry(tagShutterSpeedValue, [2]uint32{8, 1}), // 2^-8 = 1/256
	}, nil)

	_, settings, err := newTestExtractor().Extract(Source{Data: data, Filename: "apex.tif"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if settings.Aperture == nil || math.Abs(*settings.Aperture-2.0) > 1e-9 {
		t.Errorf("aperture: got %v, want 2.0", settings.Aperture)
	}
	if settings.ShutterSpeed == nil || *settings.ShutterSpeed != "1/256" {
		t.Errorf("shutter: got %v, want 1/256", settings.ShutterSpeed)
	}
}

func TestExtract_GPSAllOrNothing(t *testing.T) {
	cases := []struct {
		name string
		gps  []metaEntry
	}{
		{"missing longitude", []metaEntry{
			asciiEntry(tagGPSLatitudeRef, "N"),
			ratEntry(tagGPSLatitude, [2]uint32{40, 1}, [2]uint32{0, 1}, [2]uint32{0, 1}),
		}},
		{"missing latitude ref", []metaEntry{
			ratEntry(tagGPSLatitude, [2]uint32{40, 1}, [2]uint32{0, 1}, [2]uint32{0, 1}),
			asciiEntry(tagGPSLongitudeRef, "E"),
			ratEntry(tagGPSLongitude, [2]uint32{79, 1}, [2]uint32{0, 1}, [2]uint32{0, 1}),
		}},
		{"zero denominator coordinate", []metaEntry{
			asciiEntry(tagGPSLatitudeRef, "N"),
			ratEntry(tagGPSLatitude, [2]uint32{40, 0}, [2]uint32{0, 1}, [2]uint32{0, 1}),
			asciiEntry(tagGPSLongitudeRef, "E"),
			ratEntry(tagGPSLongitude, [2]uint32{79, 1}, [2]uint32{0, 1}, [2]uint32{0, 1}),
		}},
		{"latitude beyond range", []metaEntry{
			asciiEntry(tagGPSLatitudeRef, "N"),
			ratEntry(tagGPSLatitude, [2]uint32{400, 1}, [2]uint32{0, 1}, [2]uint32{0, 1}),
			asciiEntry(tagGPSLongitudeRef, "E"),
			ratEntry(tagGPSLongitude, [2]uint32{79, 1}, [2]uint32{0, 1}, [2]uint32{0, 1}),
		}},
		{"malformed latitude ref letter", []metaEntry{
			asciiEntry(tagGPSLatitudeRef, "Q"),
			ratEntry(tagGPSLatitude, [2]uint32{40, 1}, [2]uint32{0, 1}, [2]uint32{0, 1}),
			asciiEntry(tagGPSLongitudeRef, "E"),
			ratEntry(tagGPSLongitude, [2]uint32{79, 1}, [2]uint32{0, 1}, [2]uint32{0, 1}),
		}},
		{"longitude ref from the wrong axis", []metaEntry{
			asciiEntry(tagGPSLatitudeRef, "N"),
			ratEntry(tagGPSLatitude, [2]uint32{40, 1}, [2]uint32{0, 1}, [2]uint32{0, 1}),
			asciiEntry(tagGPSLongitudeRef, "N"),
			ratEntry(tagGPSLongitude, [2]uint32{79, 1}, [2]uint32{0, 1}, [2]uint32{0, 1}),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := buildExifTIFF(t, nil, nil, tc.gps)
			meta, _, err := newTestExtractor().Extract(Source{Data: data, Filename: "gps.tif"})
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if meta.GPS != nil {
				t.Fatalf("got %+v, want no coordinates", meta.GPS)
			}
		})
	}
}

func TestExtract_VendorQuirks(t *testing.T) {
	data := buildExifTIFF(t,
		[]metaEntry{
			asciiEntry(tagMake, "NIKON CORPORATION   "),
			asciiEntry(tagModel, "NIKON D850\x00\x00"),
		},
		[]metaEntry{
			longEntry(tagISO, 64), // ISO written as LONG instead of SHORT
			ratEntry(tagFNumber, [2]uint32{0, 0}), // zero denominator
		},
		nil,
	)

	meta, settings, err := newTestExtractor().Extract(Source{Data: data, Filename: "quirks.tif"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if meta.CameraMake == nil || *meta.CameraMake != "NIKON CORPORATION" {
		t.Errorf("make not trimmed: got %v", meta.CameraMake)
	}
	if meta.CameraModel == nil || *meta.CameraModel != "NIKON D850" {
		t.Errorf("model not NUL-trimmed: got %v", meta.CameraModel)
	}
	if settings.ISO == nil || *settings.ISO != 64 {
		t.Errorf("long-typed iso: got %v", settings.ISO)
	}
	if settings.Aperture != nil {
		t.Errorf("zero-denominator aperture should be null, got %v", *settings.Aperture)
	}
}

func TestExtract_CorruptBlockDegrades(t *testing.T) {
	// Claims a metadata block but the directory is garbage.
	data := append([]byte("Exif\x00\x00"), []byte("II\x2A\x00\xFF\xFF\xFF\xFF garbage")...)

	meta, settings, err := newTestExtractor().Extract(Source{Data: data, Filename: "broken.jpg"})
	if !apperrors.IsKind(err, apperrors.KindMetadataCorrupt) {
		t.Fatalf("got %v, want metadata_corrupt", err)
	}
	if meta.CameraMake != nil || meta.TakenAt != nil || meta.GPS != nil || settings.ISO != nil {
		t.Fatal("corrupt metadata must degrade to all-null fields")
	}
}

func TestExtract_NoMetadataIsNotAnError(t *testing.T) {
	meta, settings, err := newTestExtractor().Extract(Source{
		Data:     []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 1, 2, 3, 4},
		Filename: "plain.png",
	})
	if err != nil {
		t.Fatalf("absence of metadata must not error, got %v", err)
	}
	if meta.CameraMake != nil || meta.TakenAt != nil || settings.Aperture != nil {
		t.Fatal("expected all-null fields")
	}
}
