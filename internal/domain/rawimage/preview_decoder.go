package rawimage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

// TIFF/IFD tags consulted while hunting for an embedded rendering.
const (
	tagCompression        = 0x0103
	tagStripOffsets       = 0x0111
	tagStripByteCounts    = 0x0117
	tagSubIFDs            = 0x014A
	tagJPEGOffset         = 0x0201
	tagJPEGLength         = 0x0202
)

const (
	compressionOldJPEG = 6
	compressionJPEG    = 7
)

// maxIFDDepth bounds SubIFD recursion so a malicious offset loop cannot
// stall the decoder.
const maxIFDDepth = 8

// PreviewDecoder renders TIFF-based RAW containers (DNG, CR2, NEF, ARW and
// relatives) by locating and decoding the largest embedded JPEG rendering.
// The camera wrote that rendering once, so decoding it is reproducible
// byte-for-byte across runs.
type PreviewDecoder struct{}

func NewPreviewDecoder() *PreviewDecoder {
	return &PreviewDecoder{}
}

func (d *PreviewDecoder) Name() string {
	return "embedded-preview"
}

// Decode walks the container's IFD chain (SubIFDs included), collects every
// embedded JPEG candidate, and decodes the largest one.
func (d *PreviewDecoder) Decode(ctx context.Context, data []byte) (image.Image, error) {
	w, err := newIFDWalker(data)
	if err != nil {
		return nil, err
	}

	candidates, err := w.collectPreviews()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.New("no embedded rendering found in RAW container")
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.length > best.length {
			best = c
		}
	}

	img, err := jpeg.Decode(bytes.NewReader(data[best.offset : best.offset+best.length]))
	if err != nil {
		return nil, fmt.Errorf("decode embedded rendering: %w", err)
	}
	return img, nil
}

type previewCandidate struct {
	offset uint32
	length uint32
}

type ifdWalker struct {
	data  []byte
	order binary.ByteOrder
}

func newIFDWalker(data []byte) (*ifdWalker, error) {
	if len(data) < 8 {
		return nil, errors.New("container shorter than a TIFF header")
	}

	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, errors.New("container has no TIFF byte-order mark")
	}

	// magic 42 for TIFF proper; Olympus and Panasonic vary the low byte
	// but keep the layout, so only reject clearly foreign values.
	magic := order.Uint16(data[2:4])
	if magic != 42 && magic != 0x4F52 && magic != 0x5253 && magic != 0x0055 {
		return nil, fmt.Errorf("unrecognised TIFF magic 0x%04X", magic)
	}

	return &ifdWalker{data: data, order: order}, nil
}

func (w *ifdWalker) collectPreviews() ([]previewCandidate, error) {
	firstIFD := w.order.Uint32(w.data[4:8])

	var candidates []previewCandidate
	visited := make(map[uint32]bool)

	var walk func(offset uint32, depth int) error
	walk = func(offset uint32, depth int) error {
		for offset != 0 {
			if depth > maxIFDDepth {
				return nil
			}
			if visited[offset] {
				return errors.New("IFD offset loop")
			}
			visited[offset] = true

			entries, next, err := w.readIFD(offset)
			if err != nil {
				return err
			}

			if c, ok := w.previewFromEntries(entries); ok {
				candidates = append(candidates, c)
			}

			for _, sub := range w.entryValues(entries[tagSubIFDs]) {
				if err := walk(sub, depth+1); err != nil {
					return err
				}
			}

			offset = next
		}
		return nil
	}

	if err := walk(firstIFD, 0); err != nil {
		return nil, err
	}
	return candidates, nil
}

type ifdEntry struct {
	fieldType uint16
	count     uint32
	raw       [4]byte
}

func (w *ifdWalker) readIFD(offset uint32) (map[uint16]ifdEntry, uint32, error) {
	if int(offset)+2 > len(w.data) {
		return nil, 0, fmt.Errorf("IFD offset %d beyond container", offset)
	}
	count := int(w.order.Uint16(w.data[offset : offset+2]))

	end := int(offset) + 2 + count*12 + 4
	if end > len(w.data) {
		return nil, 0, fmt.Errorf("IFD at %d truncated", offset)
	}

	entries := make(map[uint16]ifdEntry, count)
	pos := int(offset) + 2
	for i := 0; i < count; i++ {
		tag := w.order.Uint16(w.data[pos : pos+2])
		entry := ifdEntry{
			fieldType: w.order.Uint16(w.data[pos+2 : pos+4]),
			count:     w.order.Uint32(w.data[pos+4 : pos+8]),
		}
		copy(entry.raw[:], w.data[pos+8:pos+12])
		entries[tag] = entry
		pos += 12
	}

	next := w.order.Uint32(w.data[pos : pos+4])
	return entries, next, nil
}

// entryValues resolves an entry's SHORT/LONG values, following the value
// offset when the payload does not fit inline.
func (w *ifdWalker) entryValues(e ifdEntry) []uint32 {
	var size uint32
	switch e.fieldType {
	case 3: // SHORT
		size = 2
	case 4: // LONG
		size = 4
	default:
		return nil
	}

	total := size * e.count
	var payload []byte
	if total <= 4 {
		payload = e.raw[:total]
	} else {
		start := w.order.Uint32(e.raw[:])
		if int(start)+int(total) > len(w.data) {
			return nil
		}
		payload = w.data[start : start+total]
	}

	values := make([]uint32, 0, e.count)
	for i := uint32(0); i < e.count; i++ {
		if e.fieldType == 3 {
			values = append(values, uint32(w.order.Uint16(payload[i*2:])))
		} else {
			values = append(values, w.order.Uint32(payload[i*4:]))
		}
	}
	return values
}

func (w *ifdWalker) scalar(entries map[uint16]ifdEntry, tag uint16) (uint32, bool) {
	e, ok := entries[tag]
	if !ok || e.count != 1 {
		return 0, false
	}
	values := w.entryValues(e)
	if len(values) != 1 {
		return 0, false
	}
	return values[0], true
}

func (w *ifdWalker) previewFromEntries(entries map[uint16]ifdEntry) (previewCandidate, bool) {
	// Thumbnail/preview IFDs point at their JPEG stream directly.
	if off, ok := w.scalar(entries, tagJPEGOffset); ok {
		if length, ok := w.scalar(entries, tagJPEGLength); ok {
			return w.boundedCandidate(off, length)
		}
	}

	// CR2-style: the full-size rendering lives in a single JPEG strip.
	if comp, ok := w.scalar(entries, tagCompression); ok &&
		(comp == compressionOldJPEG || comp == compressionJPEG) {
		if off, ok := w.scalar(entries, tagStripOffsets); ok {
			if length, ok := w.scalar(entries, tagStripByteCounts); ok {
				return w.boundedCandidate(off, length)
			}
		}
	}

	return previewCandidate{}, false
}

func (w *ifdWalker) boundedCandidate(offset, length uint32) (previewCandidate, bool) {
	if length < 2 || int(offset)+int(length) > len(w.data) {
		return previewCandidate{}, false
	}
	// must at least start like a JPEG stream
	if w.data[offset] != 0xFF || w.data[offset+1] != 0xD8 {
		return previewCandidate{}, false
	}
	return previewCandidate{offset: offset, length: length}, true
}
