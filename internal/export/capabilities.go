package export

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// CapabilityOptions parameterize a WMTS/WMS GetCapabilities document.
type CapabilityOptions struct {
	LayerName string
	MinZoom   int
	MaxZoom   int
}

func (o CapabilityOptions) validate() error {
	if o.LayerName == "" {
		return fmt.Errorf("layer name must not be empty")
	}
	if strings.ContainsAny(o.LayerName, `<>&"'`) {
		return fmt.Errorf("layer name contains reserved XML characters")
	}
	if o.MinZoom < 0 || o.MaxZoom > 22 || o.MinZoom > o.MaxZoom {
		return fmt.Errorf("bad zoom range %d..%d", o.MinZoom, o.MaxZoom)
	}
	return nil
}

// Scale denominator of zoom 0 for 256px tiles in EPSG:3857, per the
// WMTS GoogleMapsCompatible well-known tile matrix set.
const zoom0ScaleDenominator = 559082264.0287178

type tileMatrix struct {
	Zoom             int
	ScaleDenominator float64
	MatrixSize       int
}

type capabilityData struct {
	LayerName string
	Matrices  []tileMatrix
	MinScale  float64
	MaxScale  float64
}

func buildCapabilityData(o CapabilityOptions) capabilityData {
	d := capabilityData{LayerName: o.LayerName}
	for z := o.MinZoom; z <= o.MaxZoom; z++ {
		d.Matrices = append(d.Matrices, tileMatrix{
			Zoom:             z,
			ScaleDenominator: zoom0ScaleDenominator / float64(int(1)<<z),
			MatrixSize:       1 << z,
		})
	}
	// Min scale denominator corresponds to the deepest zoom.
	d.MinScale = zoom0ScaleDenominator / float64(int(1)<<o.MaxZoom)
	d.MaxScale = zoom0ScaleDenominator / float64(int(1)<<o.MinZoom)
	return d
}

var wmtsTemplate = template.Must(template.New("wmts").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<Capabilities xmlns="http://www.opengis.net/wmts/1.0"
              xmlns:ows="http://www.opengis.net/ows/1.1"
              version="1.0.0">
  <ows:ServiceIdentification>
    <ows:Title>{{.LayerName}}</ows:Title>
    <ows:ServiceType>OGC WMTS</ows:ServiceType>
    <ows:ServiceTypeVersion>1.0.0</ows:ServiceTypeVersion>
  </ows:ServiceIdentification>
  <Contents>
    <Layer>
      <ows:Title>{{.LayerName}}</ows:Title>
      <ows:Identifier>{{.LayerName}}</ows:Identifier>
      <Style isDefault="true">
        <ows:Identifier>default</ows:Identifier>
      </Style>
      <Format>image/png</Format>
      <TileMatrixSetLink>
        <TileMatrixSet>GoogleMapsCompatible</TileMatrixSet>
      </TileMatrixSetLink>
    </Layer>
    <TileMatrixSet>
      <ows:Identifier>GoogleMapsCompatible</ows:Identifier>
      <ows:SupportedCRS>urn:ogc:def:crs:EPSG::3857</ows:SupportedCRS>
{{- range .Matrices}}
      <TileMatrix>
        <ows:Identifier>{{.Zoom}}</ows:Identifier>
        <ScaleDenominator>{{printf "%.7f" .ScaleDenominator}}</ScaleDenominator>
        <TopLeftCorner>-20037508.3427892 20037508.3427892</TopLeftCorner>
        <TileWidth>256</TileWidth>
        <TileHeight>256</TileHeight>
        <MatrixWidth>{{.MatrixSize}}</MatrixWidth>
        <MatrixHeight>{{.MatrixSize}}</MatrixHeight>
      </TileMatrix>
{{- end}}
    </TileMatrixSet>
  </Contents>
</Capabilities>
`))

var wmsTemplate = template.Must(template.New("wms").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<WMS_Capabilities xmlns="http://www.opengis.net/wms" version="1.3.0">
  <Service>
    <Name>WMS</Name>
    <Title>{{.LayerName}}</Title>
  </Service>
  <Capability>
    <Layer>
      <Name>{{.LayerName}}</Name>
      <Title>{{.LayerName}}</Title>
      <CRS>EPSG:3857</CRS>
      <CRS>EPSG:4326</CRS>
      <EX_GeographicBoundingBox>
        <westBoundLongitude>-180</westBoundLongitude>
        <eastBoundLongitude>180</eastBoundLongitude>
        <southBoundLatitude>-85.051129</southBoundLatitude>
        <northBoundLatitude>85.051129</northBoundLatitude>
      </EX_GeographicBoundingBox>
      <MinScaleDenominator>{{printf "%.7f" .MinScale}}</MinScaleDenominator>
      <MaxScaleDenominator>{{printf "%.7f" .MaxScale}}</MaxScaleDenominator>
    </Layer>
  </Capability>
</WMS_Capabilities>
`))

// WMTSCapabilities renders a WMTS GetCapabilities document for one layer.
func WMTSCapabilities(o CapabilityOptions) ([]byte, error) {
	return renderCapabilities(wmtsTemplate, o)
}

// WMSCapabilities renders a WMS 1.3.0 GetCapabilities document for one layer.
func WMSCapabilities(o CapabilityOptions) ([]byte, error) {
	return renderCapabilities(wmsTemplate, o)
}

func renderCapabilities(tpl *template.Template, o CapabilityOptions) ([]byte, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, buildCapabilityData(o)); err != nil {
		return nil, fmt.Errorf("render capabilities: %w", err)
	}
	return buf.Bytes(), nil
}
