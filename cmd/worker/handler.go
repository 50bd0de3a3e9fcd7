package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"urbanlens/internal/keys"
	"urbanlens/internal/lookup"
	"urbanlens/internal/report"
	"urbanlens/models"
)

// Lookups is satisfied by *lookup.Service.
type Lookups interface {
	Lookup(ctx context.Context, req models.LookupRequest) (*report.Report, error)
	Archive(ctx context.Context, r *report.Report) (string, error)
}

// Publisher is satisfied by *kafkaclient.Publisher.
type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
}

type handler struct {
	lookups Lookups
	results Publisher
}

// handle runs one queued request to completion. Failures end up in the
// published result; they never stop the worker.
func (h *handler) handle(ctx context.Context, req models.LookupRequest) models.LookupResult {
	log := zap.L().With(zap.String("address", req.Address))
	res := models.LookupResult{Address: req.Address}

	r, err := h.lookups.Lookup(ctx, req)
	if ctx.Err() != nil {
		log.Info("lookup interrupted")
		return res
	}
	switch {
	case err == nil:
		res.Found = true
	case errors.Is(err, lookup.ErrNotFound):
		log.Info("address not found")
	default:
		log.Warn("lookup failed", zap.Error(err))
		res.Error = err.Error()
	}

	if r != nil {
		key, err := h.lookups.Archive(ctx, r)
		if err != nil {
			log.Error("failed to archive report", zap.Error(err))
			if res.Error == "" {
				res.Error = err.Error()
			}
		}
		res.ReportKey = key
	}

	if h.results != nil {
		if err := h.results.Publish(ctx, keys.Slug(req.Address), res); err != nil {
			log.Error("failed to publish result", zap.Error(err))
		}
	}
	log.Info("request processed", zap.Bool("found", res.Found), zap.String("report_key", res.ReportKey))
	return res
}
