// Package geotiff parses the structural and georeferencing metadata of
// TIFF / BigTIFF rasters without decoding pixel payload, and validates
// whether a raster carries enough spatial referencing to be placed on a map.
package geotiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/rezw4n/geotiles/internal/core/model"
)

// ParseError reports a byte buffer that is not a structurally valid
// TIFF container. It is distinct from a valid parse with missing
// georeferencing, which is a validation verdict, not an error.
type ParseError struct {
	Reason string
	Offset int64
}

func (e *ParseError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("geotiff: %s (offset %d)", e.Reason, e.Offset)
	}
	return "geotiff: " + e.Reason
}

func parseErr(offset int64, format string, args ...any) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...), Offset: offset}
}

// IsParseError reports whether err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Metadata holds the derived, read-only facts about one raster source.
type Metadata struct {
	Width           int
	Height          int
	SamplesPerPixel int
	BitsPerSample   []int
	SampleFormat    int

	// Raw georeferencing tag set. Nil slices mean the tag was absent.
	GeoKeyDirectory     []uint16
	GeoDoubleParams     []float64
	GeoASCIIParams      string
	PixelScale          []float64 // 3 values: sx, sy, sz
	TiePoints           []float64 // multiples of 6: i, j, k, x, y, z
	ModelTransformation []float64 // 16 values, row-major 4x4

	BigTIFF   bool
	byteOrder binary.ByteOrder
}

const maxIFDEntries = 4096

// Read parses the container header and first image directory of buf.
// It is a pure function of its input and never touches strip or tile data.
func Read(buf []byte) (*Metadata, error) {
	if len(buf) < 8 {
		return nil, parseErr(0, "buffer too short for TIFF header (%d bytes)", len(buf))
	}

	var order binary.ByteOrder
	switch {
	case buf[0] == 'I' && buf[1] == 'I':
		order = binary.LittleEndian
	case buf[0] == 'M' && buf[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, parseErr(0, "unrecognized byte-order mark %q", string(buf[:2]))
	}

	magic := order.Uint16(buf[2:4])
	md := &Metadata{byteOrder: order, SamplesPerPixel: 1}

	var ifdOffset uint64
	switch magic {
	case 42:
		ifdOffset = uint64(order.Uint32(buf[4:8]))
	case 43:
		if len(buf) < 16 {
			return nil, parseErr(0, "buffer too short for BigTIFF header (%d bytes)", len(buf))
		}
		if off := order.Uint16(buf[4:6]); off != 8 {
			return nil, parseErr(4, "BigTIFF offset size %d, want 8", off)
		}
		md.BigTIFF = true
		ifdOffset = order.Uint64(buf[8:16])
	default:
		return nil, parseErr(2, "bad TIFF magic %d", magic)
	}

	if err := md.readIFD(buf, ifdOffset); err != nil {
		return nil, err
	}
	return md, nil
}

type ifdEntry struct {
	tag   uint16
	ftype uint16
	count uint64
	raw   []byte // inline value bytes (4 for classic, 8 for BigTIFF)
}

func (m *Metadata) readIFD(buf []byte, offset uint64) error {
	order := m.byteOrder

	entrySize := uint64(12)
	inline := 4
	countSize := uint64(2)
	if m.BigTIFF {
		entrySize = 20
		inline = 8
		countSize = 8
	}

	// offset+countSize can wrap for crafted offsets near 2^64; the
	// addition must be overflow-checked before it is compared.
	if offset == 0 || offset > uint64(len(buf)) ||
		offset+countSize < offset || offset+countSize > uint64(len(buf)) {
		return parseErr(int64(offset), "image directory offset out of range")
	}

	var n uint64
	if m.BigTIFF {
		n = order.Uint64(buf[offset : offset+8])
	} else {
		n = uint64(order.Uint16(buf[offset : offset+2]))
	}
	if n == 0 {
		return parseErr(int64(offset), "image directory is empty")
	}
	if n > maxIFDEntries {
		return parseErr(int64(offset), "image directory claims %d entries", n)
	}

	base := offset + countSize
	end := base + n*entrySize
	if end > uint64(len(buf)) {
		return parseErr(int64(offset), "truncated image directory (%d entries)", n)
	}

	for i := uint64(0); i < n; i++ {
		eb := buf[base+i*entrySize : base+(i+1)*entrySize]
		e := ifdEntry{
			tag:   order.Uint16(eb[0:2]),
			ftype: order.Uint16(eb[2:4]),
		}
		if m.BigTIFF {
			e.count = order.Uint64(eb[4:12])
			e.raw = eb[12:20]
		} else {
			e.count = uint64(order.Uint32(eb[4:8]))
			e.raw = eb[8:12]
		}
		if err := m.applyEntry(buf, e, inline); err != nil {
			return err
		}
	}
	return nil
}

// entryData resolves the value bytes of an entry, following the offset
// indirection when the value does not fit inline.
func (m *Metadata) entryData(buf []byte, e ifdEntry, inline int) ([]byte, error) {
	size := fieldTypeSize(e.ftype)
	if size == 0 {
		// Unknown field type; skip rather than fail, per TIFF 6.0 readers.
		return nil, nil
	}
	total := uint64(size) * e.count
	if total <= uint64(inline) {
		return e.raw[:total], nil
	}

	var off uint64
	if m.BigTIFF {
		off = m.byteOrder.Uint64(e.raw)
	} else {
		off = uint64(m.byteOrder.Uint32(e.raw))
	}
	if off+total > uint64(len(buf)) || off+total < off {
		return nil, parseErr(int64(off), "tag %d value out of range (%d bytes)", e.tag, total)
	}
	return buf[off : off+total], nil
}

func (m *Metadata) applyEntry(buf []byte, e ifdEntry, inline int) error {
	switch e.tag {
	case tagImageWidth, tagImageLength, tagSamplesPerPixel, tagSampleFormat:
		v, err := m.entryUint(buf, e, inline)
		if err != nil {
			return err
		}
		switch e.tag {
		case tagImageWidth:
			m.Width = int(v)
		case tagImageLength:
			m.Height = int(v)
		case tagSamplesPerPixel:
			m.SamplesPerPixel = int(v)
		case tagSampleFormat:
			m.SampleFormat = int(v)
		}
	case tagBitsPerSample:
		vs, err := m.entryUints(buf, e, inline)
		if err != nil {
			return err
		}
		m.BitsPerSample = make([]int, len(vs))
		for i, v := range vs {
			m.BitsPerSample[i] = int(v)
		}
	case tagGeoKeyDirectory:
		vs, err := m.entryUints(buf, e, inline)
		if err != nil {
			return err
		}
		m.GeoKeyDirectory = make([]uint16, len(vs))
		for i, v := range vs {
			m.GeoKeyDirectory[i] = uint16(v)
		}
	case tagModelPixelScale, tagModelTiepoint, tagModelTransformation, tagGeoDoubleParams:
		vs, err := m.entryDoubles(buf, e, inline)
		if err != nil {
			return err
		}
		switch e.tag {
		case tagModelPixelScale:
			m.PixelScale = vs
		case tagModelTiepoint:
			m.TiePoints = vs
		case tagModelTransformation:
			m.ModelTransformation = vs
		case tagGeoDoubleParams:
			m.GeoDoubleParams = vs
		}
	case tagGeoASCIIParams:
		data, err := m.entryData(buf, e, inline)
		if err != nil {
			return err
		}
		for len(data) > 0 && data[len(data)-1] == 0 {
			data = data[:len(data)-1]
		}
		m.GeoASCIIParams = string(data)
	}
	return nil
}

func (m *Metadata) entryUint(buf []byte, e ifdEntry, inline int) (uint64, error) {
	vs, err := m.entryUints(buf, e, inline)
	if err != nil {
		return 0, err
	}
	if len(vs) == 0 {
		return 0, parseErr(0, "tag %d has no value", e.tag)
	}
	return vs[0], nil
}

func (m *Metadata) entryUints(buf []byte, e ifdEntry, inline int) ([]uint64, error) {
	data, err := m.entryData(buf, e, inline)
	if err != nil || data == nil {
		return nil, err
	}
	size := fieldTypeSize(e.ftype)
	out := make([]uint64, 0, e.count)
	for i := 0; i+size <= len(data); i += size {
		switch e.ftype {
		case typeByte:
			out = append(out, uint64(data[i]))
		case typeShort:
			out = append(out, uint64(m.byteOrder.Uint16(data[i:])))
		case typeLong:
			out = append(out, uint64(m.byteOrder.Uint32(data[i:])))
		case typeLong8:
			out = append(out, m.byteOrder.Uint64(data[i:]))
		default:
			return nil, parseErr(0, "tag %d has unexpected field type %d", e.tag, e.ftype)
		}
	}
	return out, nil
}

func (m *Metadata) entryDoubles(buf []byte, e ifdEntry, inline int) ([]float64, error) {
	data, err := m.entryData(buf, e, inline)
	if err != nil || data == nil {
		return nil, err
	}
	if e.ftype != typeDouble {
		return nil, parseErr(0, "tag %d has field type %d, want DOUBLE", e.tag, e.ftype)
	}
	out := make([]float64, 0, e.count)
	for i := 0; i+8 <= len(data); i += 8 {
		out = append(out, math.Float64frombits(m.byteOrder.Uint64(data[i:])))
	}
	return out, nil
}

// EPSG returns the coordinate system code from the geo-key directory.
// A projected CRS code wins over a geographic one. Returns 0 when no
// code is present.
func (m *Metadata) EPSG() int {
	geographic := 0
	for key, value := range m.geoKeys() {
		switch key {
		case keyProjectedCSType:
			if value > 0 && value < 32767 {
				return value
			}
		case keyGeographicType:
			if value > 0 && value < 32767 {
				geographic = value
			}
		}
	}
	return geographic
}

// geoKeys iterates the (key id, value) pairs of the geo-key directory,
// skipping keys whose value lives in another tag.
func (m *Metadata) geoKeys() map[int]int {
	d := m.GeoKeyDirectory
	out := map[int]int{}
	if len(d) < 4 {
		return out
	}
	n := int(d[3])
	for i := 0; i < n; i++ {
		base := 4 + i*4
		if base+3 >= len(d) {
			break
		}
		keyID := int(d[base])
		location := int(d[base+1])
		if location != 0 {
			continue // value stored in GeoDoubleParams / GeoASCIIParams
		}
		out[keyID] = int(d[base+3])
	}
	return out
}

// Bounds derives the native-CRS bounding box from the affine
// georeferencing tags. The second return is false when neither a
// tiepoint+scale pair nor a model transformation is present.
func (m *Metadata) Bounds() (model.BBox, bool) {
	w, h := float64(m.Width), float64(m.Height)

	if len(m.TiePoints) >= 6 && len(m.PixelScale) >= 2 {
		i, j := m.TiePoints[0], m.TiePoints[1]
		x, y := m.TiePoints[3], m.TiePoints[4]
		sx, sy := m.PixelScale[0], m.PixelScale[1]

		west := x - i*sx
		north := y + j*sy
		return model.BBox{
			West:  west,
			North: north,
			East:  west + w*sx,
			South: north - h*sy,
		}, true
	}

	if len(m.ModelTransformation) >= 16 {
		t := m.ModelTransformation
		px := func(col, row float64) (float64, float64) {
			return t[0]*col + t[1]*row + t[3], t[4]*col + t[5]*row + t[7]
		}
		x0, y0 := px(0, 0)
		x1, y1 := px(w, h)
		return model.BBox{
			West:  math.Min(x0, x1),
			East:  math.Max(x0, x1),
			South: math.Min(y0, y1),
			North: math.Max(y0, y1),
		}, true
	}

	return model.BBox{}, false
}
