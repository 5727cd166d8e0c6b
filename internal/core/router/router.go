// Package router validates HTTP input and dispatches to the overlay
// manager, the export service and the raster catalog.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rezw4n/geotiles/internal/catalog"
	"github.com/rezw4n/geotiles/internal/core/config"
	"github.com/rezw4n/geotiles/internal/core/model"
	"github.com/rezw4n/geotiles/internal/core/observability"
	"github.com/rezw4n/geotiles/internal/export"
	"github.com/rezw4n/geotiles/internal/overlay"
)

// Handler wires the HTTP surface to the core components.
type Handler struct {
	Manager *overlay.Manager
	Surface *overlay.VirtualSurface
	Catalog *catalog.Catalog
	Exports *export.Service
	Cfg     config.Config
	Log     *slog.Logger
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler with per-route HTTP metrics.
func Instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type overlayStatus struct {
	State    string      `json:"state"`
	Reason   string      `json:"reason,omitempty"`
	Detail   string      `json:"detail,omitempty"`
	Source   string      `json:"source,omitempty"`
	Bounds   *boundsJSON `json:"bounds,omitempty"`
	Viewport *boundsJSON `json:"viewport,omitempty"`
	Width    int         `json:"width,omitempty"`
	Height   int         `json:"height,omitempty"`
	EPSG     int         `json:"epsg,omitempty"`
}

type boundsJSON struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

func toBoundsJSON(b model.BBox) *boundsJSON {
	return &boundsJSON{West: b.West, South: b.South, East: b.East, North: b.North}
}

// SubmitOverlay ingests a raster upload and resolves it synchronously:
// the response carries exactly one tagged outcome.
func (h *Handler) SubmitOverlay(w http.ResponseWriter, r *http.Request) {
	name, data, err := readUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty upload", http.StatusBadRequest)
		return
	}

	src := model.NewRasterSource(name, data)
	req := h.Manager.Submit(r.Context(), src)

	select {
	case res := <-req.Done():
		h.writeSubmitResult(w, src, res)
	case <-r.Context().Done():
		// Client went away; the pipeline still settles and releases on
		// its own.
		http.Error(w, "request cancelled", 499)
	}
}

func (h *Handler) writeSubmitResult(w http.ResponseWriter, src *model.RasterSource, res overlay.Result) {
	switch {
	case res.Attached():
		writeJSON(w, http.StatusOK, overlayStatus{
			State:  overlay.Attached.String(),
			Source: src.Name,
			Bounds: toBoundsJSON(res.Handle.Bounds),
			Width:  res.Handle.Meta.Width,
			Height: res.Handle.Meta.Height,
			EPSG:   res.Handle.EPSG,
		})
	case res.Reason == overlay.ReasonSuperseded:
		writeJSON(w, http.StatusConflict, overlayStatus{
			State:  overlay.Failed.String(),
			Reason: res.Reason.String(),
		})
	default:
		detail := ""
		if res.Err != nil {
			detail = res.Err.Error()
		}
		writeJSON(w, http.StatusUnprocessableEntity, overlayStatus{
			State:  overlay.Failed.String(),
			Reason: res.Reason.String(),
			Detail: detail,
		})
	}
}

// OverlayStatus reports the surface's visible state.
func (h *Handler) OverlayStatus(w http.ResponseWriter, _ *http.Request) {
	st := overlayStatus{State: h.Manager.State().String()}
	if reason := h.Manager.LastFailure(); reason != overlay.ReasonNone {
		st.Reason = reason.String()
	}
	if cur := h.Manager.Current(); cur != nil {
		st.Source = cur.Source.Name
		st.Bounds = toBoundsJSON(cur.Bounds)
		st.Width = cur.Meta.Width
		st.Height = cur.Meta.Height
		st.EPSG = cur.EPSG
	}
	if vp, ok := h.Surface.Viewport(); ok {
		st.Viewport = toBoundsJSON(vp)
	}
	writeJSON(w, http.StatusOK, st)
}

// ClearOverlay tears the overlay down.
func (h *Handler) ClearOverlay(w http.ResponseWriter, _ *http.Request) {
	h.Manager.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// Export streams a generated artifact for the attached overlay.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	cur := h.Manager.Current()
	if cur == nil {
		http.Error(w, "no overlay attached", http.StatusConflict)
		return
	}

	format := chi.URLParam(r, "format")
	opts, err := h.parseExportOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	blob, err := h.Exports.Export(r.Context(), format, export.Job{
		Source: cur.Source,
		Bounds: cur.Bounds,
		Opts:   opts,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, export.ErrUnknownFormat) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", blob.MediaType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": blob.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	_, _ = w.Write(blob.Data)
}

// Capabilities returns the WMTS or WMS GetCapabilities document.
func (h *Handler) Capabilities(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	opts, err := h.parseCapabilityOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var doc []byte
	switch service {
	case "wmts":
		doc, err = export.WMTSCapabilities(opts)
	case "wms":
		doc, err = export.WMSCapabilities(opts)
	default:
		http.Error(w, fmt.Sprintf("unknown capabilities service %q", service), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(doc)
}

// CatalogQuery lists ingested rasters, optionally filtered by bbox.
func (h *Handler) CatalogQuery(w http.ResponseWriter, r *http.Request) {
	type entryJSON struct {
		ID         string     `json:"id"`
		Name       string     `json:"name"`
		Bounds     boundsJSON `json:"bounds"`
		Width      int        `json:"width"`
		Height     int        `json:"height"`
		EPSG       int        `json:"epsg"`
		AttachedAt time.Time  `json:"attached_at"`
	}

	var entries []catalog.Entry
	raw := strings.TrimSpace(r.URL.Query().Get("bbox"))
	if raw == "" {
		entries = h.Catalog.All()
	} else {
		bbox, err := ParseBBox(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid bbox: %v", err), http.StatusBadRequest)
			return
		}
		entries = h.Catalog.Query(bbox)
	}

	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryJSON{
			ID:         e.ID,
			Name:       e.Name,
			Bounds:     *toBoundsJSON(e.GeoBounds),
			Width:      e.Width,
			Height:     e.Height,
			EPSG:       e.EPSG,
			AttachedAt: e.AttachedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) parseExportOptions(r *http.Request) (model.ExportOptions, error) {
	q := r.URL.Query()
	opts := model.ExportOptions{
		OutputName: strings.TrimSpace(q.Get("name")),
		MinZoom:    h.Cfg.DefaultMinZoom,
		MaxZoom:    h.Cfg.DefaultMaxZoom,
	}
	if opts.OutputName == "" {
		opts.OutputName = h.Cfg.LayerName
	}

	var err error
	if v := q.Get("min_zoom"); v != "" {
		if opts.MinZoom, err = strconv.Atoi(v); err != nil {
			return opts, fmt.Errorf("min_zoom: %w", err)
		}
	}
	if v := q.Get("max_zoom"); v != "" {
		if opts.MaxZoom, err = strconv.Atoi(v); err != nil {
			return opts, fmt.Errorf("max_zoom: %w", err)
		}
	}
	return opts, opts.Validate()
}

func (h *Handler) parseCapabilityOptions(r *http.Request) (export.CapabilityOptions, error) {
	q := r.URL.Query()
	opts := export.CapabilityOptions{
		LayerName: strings.TrimSpace(q.Get("layer")),
		MinZoom:   h.Cfg.DefaultMinZoom,
		MaxZoom:   h.Cfg.DefaultMaxZoom,
	}
	if opts.LayerName == "" {
		opts.LayerName = h.Cfg.LayerName
	}

	var err error
	if v := q.Get("min_zoom"); v != "" {
		if opts.MinZoom, err = strconv.Atoi(v); err != nil {
			return opts, fmt.Errorf("min_zoom: %w", err)
		}
	}
	if v := q.Get("max_zoom"); v != "" {
		if opts.MaxZoom, err = strconv.Atoi(v); err != nil {
			return opts, fmt.Errorf("max_zoom: %w", err)
		}
	}
	return opts, nil
}

// ParseBBox parses "west,south,east,north" in lon/lat degrees.
func ParseBBox(raw string) (model.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return model.BBox{}, errors.New("expected 4 comma-separated values: west,south,east,north")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.BBox{}, fmt.Errorf("value %d: %w", i+1, err)
		}
		vals[i] = f
	}
	b := model.BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	if b.West < -180 || b.East > 180 || b.South < -90 || b.North > 90 {
		return model.BBox{}, errors.New("coordinates outside lon/lat range")
	}
	if b.East <= b.West || b.North <= b.South {
		return model.BBox{}, errors.New("coordinates must satisfy east>west and north>south")
	}
	return b, nil
}

// readUpload accepts either a multipart "file" field or a raw body.
func readUpload(r *http.Request) (string, []byte, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("multipart upload: %w", err)
		}
		defer func(f multipart.File) { _ = f.Close() }(f)
		data, err := io.ReadAll(f)
		if err != nil {
			return "", nil, fmt.Errorf("read upload: %w", err)
		}
		return hdr.Filename, data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "upload.tif"
	}
	return name, data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
