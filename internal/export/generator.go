package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rezw4n/geotiles/internal/core/observability"
)

// ErrUnknownFormat reports a format name with no registered generator.
var ErrUnknownFormat = errors.New("unknown export format")

// Generator is a pure transform from validated raster bytes + options to
// one output blob.
type Generator interface {
	Format() string
	MediaType() string
	FileExt() string
	Generate(ctx context.Context, job Job) ([]byte, error)
}

// Blob is a generated export artifact ready for download.
type Blob struct {
	Data      []byte
	MediaType string
	Filename  string
}

// Service resolves a format name to its generator, consults the blob
// cache, and derives the download filename.
type Service struct {
	generators map[string]Generator
	cache      *Cache
	log        *slog.Logger
}

func NewService(cache *Cache, log *slog.Logger, gens ...Generator) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{generators: map[string]Generator{}, cache: cache, log: log}
	for _, g := range gens {
		s.generators[g.Format()] = g
	}
	return s
}

// Formats lists the registered format names.
func (s *Service) Formats() []string {
	out := make([]string, 0, len(s.generators))
	for f := range s.generators {
		out = append(out, f)
	}
	return out
}

// Export runs the generator for format over job. The generated blob is
// served from and written through the cache; cache trouble is never an
// export failure.
func (s *Service) Export(ctx context.Context, format string, job Job) (Blob, error) {
	g, ok := s.generators[format]
	if !ok {
		return Blob{}, fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
	if err := job.Opts.Validate(); err != nil {
		return Blob{}, err
	}

	filename := job.Opts.OutputName + g.FileExt()
	key := cacheKey(format, job)

	if data, ok := s.cache.Get(ctx, key); ok {
		return Blob{Data: data, MediaType: g.MediaType(), Filename: filename}, nil
	}

	start := time.Now()
	data, err := g.Generate(ctx, job)
	observability.ObserveExport(format, err, time.Since(start).Seconds())
	if err != nil {
		return Blob{}, fmt.Errorf("generate %s: %w", format, err)
	}

	s.cache.Put(ctx, key, data)
	s.log.Debug("export generated",
		"format", format,
		"bytes", len(data),
		"duration", time.Since(start).String())

	return Blob{Data: data, MediaType: g.MediaType(), Filename: filename}, nil
}
