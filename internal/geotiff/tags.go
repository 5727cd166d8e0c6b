package geotiff

// TIFF tag codes used by the reader. Only structural and georeferencing
// tags are parsed; pixel payload tags are carried through untouched.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279

	tagSampleFormat = 339

	// GeoTIFF tags, see OGC GeoTIFF 1.1 (19-008r4).
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGeoDoubleParams     = 34736
	tagGeoASCIIParams      = 34737
)

// GeoKey ids inside the geo-key directory.
const (
	keyGTModelType      = 1024
	keyGeographicType   = 2048
	keyProjectedCSType  = 3072
	keyCitation         = 1026
	keyGeogCitation     = 2049
	keyProjLinearUnits  = 3076
	keyGeogAngularUnits = 2054
)

// TIFF field types.
const (
	typeByte     = 1
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
	typeSByte    = 6
	typeUndefine = 7
	typeSShort   = 8
	typeSLong    = 9
	typeSRatio   = 10
	typeFloat    = 11
	typeDouble   = 12
	typeLong8    = 16
	typeSLong8   = 17
	typeIFD8     = 18
)

// fieldTypeSize returns the byte size of one value of the given field type,
// or 0 for an unknown type.
func fieldTypeSize(t uint16) int {
	switch t {
	case typeByte, typeASCII, typeSByte, typeUndefine:
		return 1
	case typeShort, typeSShort:
		return 2
	case typeLong, typeSLong, typeFloat:
		return 4
	case typeRational, typeSRatio, typeDouble, typeLong8, typeSLong8, typeIFD8:
		return 8
	default:
		return 0
	}
}
