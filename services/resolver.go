package services

import (
	"context"

	"github.com/samber/mo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"video-relay-go/metrics"
	"video-relay-go/models"
	"video-relay-go/telemetry"
	"video-relay-go/utils"
)

// Resolver runs validate -> extract -> catalog for one resolve call
type Resolver struct {
	extractor Extractor
}

func NewResolver(extractor Extractor) *Resolver {
	return &Resolver{extractor: extractor}
}

// Resolve validates rawURL before anything goes out, then performs a single
// metadata lookup. An empty catalog is a successful result.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) mo.Result[*models.ResolveResult] {
	ctx, span := telemetry.Tracer().Start(ctx, "relay.resolve")
	defer span.End()

	result := r.resolve(ctx, rawURL)
	if err := result.Error(); err != nil {
		kind := utils.KindOf(err)
		span.SetStatus(codes.Error, kind.String())
		span.RecordError(err)
		metrics.ResolveTotal.WithLabelValues(kind.String()).Inc()
		return result
	}

	res := result.MustGet()
	span.SetAttributes(
		attribute.String("video.id", res.Metadata.ID),
		attribute.Int("catalog.size", len(res.Catalog)),
	)
	metrics.ResolveTotal.WithLabelValues("ok").Inc()
	return result
}

func (r *Resolver) resolve(ctx context.Context, rawURL string) mo.Result[*models.ResolveResult] {
	sourceURL, err := utils.NormalizeURL(rawURL)
	if err != nil {
		return mo.Err[*models.ResolveResult](err)
	}

	meta, err := r.extractor.Extract(ctx, sourceURL)
	if err != nil {
		return mo.Err[*models.ResolveResult](ClassifyError(err))
	}

	return mo.Ok(&models.ResolveResult{
		Metadata: meta,
		Catalog:  BuildCatalog(meta.Encodings),
	})
}
