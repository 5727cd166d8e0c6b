package geotiff

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"io"
	"math"
	"sort"
)

// GeoTags holds the georeferencing tag values embedded on encode.
type GeoTags struct {
	KeyDirectory []uint16
	DoubleParams []float64
	ASCIIParams  string
	PixelScale   []float64
	TiePoints    []float64
}

// KeyDirectoryForEPSG builds a minimal geo-key directory declaring a
// projected (epsg >= 32767 excluded) or geographic CRS.
func KeyDirectoryForEPSG(epsg int, projected bool) []uint16 {
	key := uint16(keyGeographicType)
	model := uint16(2) // geographic
	if projected {
		key = keyProjectedCSType
		model = 1
	}
	return []uint16{
		1, 1, 0, 2, // version, revision, minor, key count
		keyGTModelType, 0, 1, model,
		key, 0, 1, uint16(epsg),
	}
}

type encEntry struct {
	tag   uint16
	ftype uint16
	count uint32
	data  []byte
}

// Encode writes img as a little-endian, uncompressed, single-strip TIFF
// with the given georeferencing tags. Grayscale images stay single-band;
// everything else is written as 8-bit RGBA.
func Encode(w io.Writer, img image.Image, geo *GeoTags) error {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var (
		pix         []byte
		samples     int
		photometric uint32
		extraAlpha  bool
	)
	switch src := img.(type) {
	case *image.Gray:
		samples, photometric = 1, 1
		pix = make([]byte, width*height)
		for y := 0; y < height; y++ {
			copy(pix[y*width:(y+1)*width], src.Pix[y*src.Stride:y*src.Stride+width])
		}
	default:
		samples, photometric, extraAlpha = 4, 2, true
		nrgba := image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
		pix = nrgba.Pix
	}

	entries := []encEntry{
		{tagImageWidth, typeLong, 1, encLongs(uint32(width))},
		{tagImageLength, typeLong, 1, encLongs(uint32(height))},
		{tagBitsPerSample, typeShort, uint32(samples), encShorts(repeatShort(8, samples)...)},
		{tagCompression, typeShort, 1, encShorts(1)},
		{tagPhotometric, typeShort, 1, encShorts(uint16(photometric))},
		{tagStripOffsets, typeLong, 1, nil}, // patched below
		{tagSamplesPerPixel, typeShort, 1, encShorts(uint16(samples))},
		{tagRowsPerStrip, typeLong, 1, encLongs(uint32(height))},
		{tagStripByteCounts, typeLong, 1, encLongs(uint32(len(pix)))},
	}
	if extraAlpha {
		entries = append(entries, encEntry{338, typeShort, 1, encShorts(2)})
	}
	if geo != nil {
		if len(geo.PixelScale) > 0 {
			entries = append(entries, encEntry{tagModelPixelScale, typeDouble,
				uint32(len(geo.PixelScale)), encDoubles(geo.PixelScale)})
		}
		if len(geo.TiePoints) > 0 {
			entries = append(entries, encEntry{tagModelTiepoint, typeDouble,
				uint32(len(geo.TiePoints)), encDoubles(geo.TiePoints)})
		}
		if len(geo.KeyDirectory) > 0 {
			entries = append(entries, encEntry{tagGeoKeyDirectory, typeShort,
				uint32(len(geo.KeyDirectory)), encShorts(geo.KeyDirectory...)})
		}
		if len(geo.DoubleParams) > 0 {
			entries = append(entries, encEntry{tagGeoDoubleParams, typeDouble,
				uint32(len(geo.DoubleParams)), encDoubles(geo.DoubleParams)})
		}
		if geo.ASCIIParams != "" {
			ascii := append([]byte(geo.ASCIIParams), 0)
			entries = append(entries, encEntry{tagGeoASCIIParams, typeASCII,
				uint32(len(ascii)), ascii})
		}
	}

	// Tags must appear in ascending order.
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	const headerSize = 8
	ifdSize := 2 + 12*len(entries) + 4
	valueStart := headerSize + ifdSize

	overflow := 0
	for _, e := range entries {
		if e.tag != tagStripOffsets && len(e.data) > 4 {
			overflow += len(e.data)
		}
	}
	stripOffset := valueStart + overflow

	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i].data = encLongs(uint32(stripOffset))
		}
	}

	le := binary.LittleEndian
	header := make([]byte, headerSize)
	header[0], header[1] = 'I', 'I'
	le.PutUint16(header[2:4], 42)
	le.PutUint32(header[4:8], headerSize)
	if _, err := w.Write(header); err != nil {
		return err
	}

	ifd := make([]byte, ifdSize)
	le.PutUint16(ifd[0:2], uint16(len(entries)))
	next := valueStart
	for i, e := range entries {
		eb := ifd[2+12*i : 2+12*(i+1)]
		le.PutUint16(eb[0:2], e.tag)
		le.PutUint16(eb[2:4], e.ftype)
		le.PutUint32(eb[4:8], e.count)
		if len(e.data) <= 4 {
			copy(eb[8:12], e.data)
		} else {
			le.PutUint32(eb[8:12], uint32(next))
			next += len(e.data)
		}
	}
	// Next-IFD pointer stays zero: single image.
	if _, err := w.Write(ifd); err != nil {
		return err
	}

	for _, e := range entries {
		if len(e.data) > 4 {
			if _, err := w.Write(e.data); err != nil {
				return err
			}
		}
	}

	if _, err := w.Write(pix); err != nil {
		return fmt.Errorf("write strip data: %w", err)
	}
	return nil
}

func repeatShort(v uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func encShorts(vs ...uint16) []byte {
	out := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func encLongs(vs ...uint32) []byte {
	out := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}

func encDoubles(vs []float64) []byte {
	out := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
	}
	return out
}
