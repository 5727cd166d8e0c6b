package geotiff

// InvalidReason enumerates the causes of a negative georeferencing verdict.
type InvalidReason int

const (
	ReasonNone InvalidReason = iota
	// MissingGeoreferencing: no recognized spatial-referencing tag combination.
	MissingGeoreferencing
	// DegenerateDimensions: non-positive pixel width or height.
	DegenerateDimensions
)

func (r InvalidReason) String() string {
	switch r {
	case MissingGeoreferencing:
		return "missing_georeferencing"
	case DegenerateDimensions:
		return "degenerate_dimensions"
	default:
		return "none"
	}
}

// Verdict is the outcome of the georeferencing validity check.
type Verdict struct {
	Valid  bool
	Reason InvalidReason
	Detail string
}

// Validate decides whether meta carries enough spatial referencing to be
// placed on a map. The dimension check runs first and is never
// short-circuited by georeferencing presence; after that, either a geo-key
// directory or the older tiepoint+pixel-scale convention is accepted.
func Validate(meta *Metadata) Verdict {
	if meta.Width <= 0 || meta.Height <= 0 {
		return Verdict{
			Reason: DegenerateDimensions,
			Detail: "raster has zero-size dimensions",
		}
	}

	if len(meta.GeoKeyDirectory) > 0 {
		return Verdict{Valid: true}
	}

	if len(meta.TiePoints) >= 6 && len(meta.PixelScale) >= 2 {
		return Verdict{Valid: true}
	}

	return Verdict{
		Reason: MissingGeoreferencing,
		Detail: "no geo-key directory and no model tiepoint + pixel-scale pair found",
	}
}
