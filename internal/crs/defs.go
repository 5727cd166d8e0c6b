package crs

import "fmt"

// Common definitions registered at startup. Proj4 strings per epsg.io.
var defaults = []Definition{
	{Code: "EPSG:4326", Proj4: "+proj=longlat +datum=WGS84 +no_defs"},
	{Code: "EPSG:3857", Proj4: "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +wktext +no_defs"},
	{Code: "EPSG:3395", Proj4: "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs"},
	{Code: "EPSG:4269", Proj4: "+proj=longlat +datum=NAD83 +no_defs"},
}

// DefaultDefinitions returns the base definition set every map surface needs.
func DefaultDefinitions() []Definition {
	out := make([]Definition, len(defaults))
	copy(out, defaults)
	return out
}

// DefinitionFor resolves an EPSG code to a definition. UTM zones are
// derived; other codes come from the default table.
func DefinitionFor(epsg int) (Definition, bool) {
	code := fmt.Sprintf("EPSG:%d", epsg)
	for _, d := range defaults {
		if d.Code == code {
			return d, true
		}
	}
	// WGS84 UTM: 326xx north, 327xx south.
	if epsg >= 32601 && epsg <= 32660 {
		return Definition{
			Code:  code,
			Proj4: fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", epsg-32600),
		}, true
	}
	if epsg >= 32701 && epsg <= 32760 {
		return Definition{
			Code:  code,
			Proj4: fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", epsg-32700),
		}, true
	}
	return Definition{}, false
}
