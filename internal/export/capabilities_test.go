package export

import (
	"bytes"
	"encoding/xml"
	"io"
	"math"
	"strings"
	"testing"
)

// wellFormed walks the whole document through the XML tokenizer.
func wellFormed(t *testing.T, doc []byte) {
	t.Helper()
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return
		}
		if err != nil {
			t.Fatalf("document is not well-formed XML: %v", err)
		}
	}
}

func TestWMTSCapabilities(t *testing.T) {
	doc, err := WMTSCapabilities(CapabilityOptions{LayerName: "raster", MinZoom: 0, MaxZoom: 4})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	wellFormed(t, doc)

	var caps struct {
		Contents struct {
			Layer struct {
				Identifier string `xml:"Identifier"`
			} `xml:"Layer"`
			TileMatrixSet struct {
				Matrices []struct {
					Identifier       string  `xml:"Identifier"`
					ScaleDenominator float64 `xml:"ScaleDenominator"`
					MatrixWidth      int     `xml:"MatrixWidth"`
				} `xml:"TileMatrix"`
			} `xml:"TileMatrixSet"`
		} `xml:"Contents"`
	}
	if err := xml.Unmarshal(doc, &caps); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if caps.Contents.Layer.Identifier != "raster" {
		t.Fatalf("layer identifier=%q", caps.Contents.Layer.Identifier)
	}
	if got := len(caps.Contents.TileMatrixSet.Matrices); got != 5 {
		t.Fatalf("got %d tile matrices want 5", got)
	}
	m0 := caps.Contents.TileMatrixSet.Matrices[0]
	if math.Abs(m0.ScaleDenominator-559082264.0287178) > 0.01 {
		t.Fatalf("zoom 0 scale denominator=%v", m0.ScaleDenominator)
	}
	m4 := caps.Contents.TileMatrixSet.Matrices[4]
	if m4.MatrixWidth != 16 {
		t.Fatalf("zoom 4 matrix width=%d want 16", m4.MatrixWidth)
	}
	if math.Abs(m4.ScaleDenominator-m0.ScaleDenominator/16) > 0.01 {
		t.Fatalf("zoom 4 scale denominator=%v want zoom0/16", m4.ScaleDenominator)
	}
}

func TestWMSCapabilities(t *testing.T) {
	doc, err := WMSCapabilities(CapabilityOptions{LayerName: "elevation", MinZoom: 2, MaxZoom: 6})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	wellFormed(t, doc)

	var caps struct {
		Capability struct {
			Layer struct {
				Name     string  `xml:"Name"`
				MinScale float64 `xml:"MinScaleDenominator"`
				MaxScale float64 `xml:"MaxScaleDenominator"`
			} `xml:"Layer"`
		} `xml:"Capability"`
	}
	if err := xml.Unmarshal(doc, &caps); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if caps.Capability.Layer.Name != "elevation" {
		t.Fatalf("layer name=%q", caps.Capability.Layer.Name)
	}
	if caps.Capability.Layer.MinScale >= caps.Capability.Layer.MaxScale {
		t.Fatalf("scale denominators inverted: %v >= %v",
			caps.Capability.Layer.MinScale, caps.Capability.Layer.MaxScale)
	}
}

func TestCapabilities_RejectsBadOptions(t *testing.T) {
	cases := []CapabilityOptions{
		{LayerName: "", MinZoom: 0, MaxZoom: 4},
		{LayerName: "x<script>", MinZoom: 0, MaxZoom: 4},
		{LayerName: `a"b`, MinZoom: 0, MaxZoom: 4},
		{LayerName: "ok", MinZoom: 5, MaxZoom: 2},
		{LayerName: "ok", MinZoom: 0, MaxZoom: 23},
		{LayerName: "ok", MinZoom: -1, MaxZoom: 4},
	}
	for _, o := range cases {
		if _, err := WMTSCapabilities(o); err == nil {
			t.Fatalf("options %+v must be rejected", o)
		}
	}
}

func TestCapabilities_LayerNamePlacement(t *testing.T) {
	doc, err := WMTSCapabilities(CapabilityOptions{LayerName: "my-layer_1.0", MinZoom: 0, MaxZoom: 0})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(string(doc), "<ows:Identifier>my-layer_1.0</ows:Identifier>") {
		t.Fatal("layer identifier missing from document")
	}
}
