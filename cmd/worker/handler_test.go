package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbanlens/internal/imagery"
	"urbanlens/internal/lookup"
	"urbanlens/internal/report"
	"urbanlens/models"
)

type fakeLookups struct {
	err        error
	archiveErr error
	archived   []string
}

func (f *fakeLookups) Lookup(_ context.Context, req models.LookupRequest) (*report.Report, error) {
	r := report.New(req.Address, imagery.DefaultSettings())
	switch {
	case f.err == nil:
		r.Location = &models.Location{Label: req.Address}
		return r, nil
	case errors.Is(f.err, lookup.ErrBlankAddress):
		return nil, f.err
	default:
		return r, f.err
	}
}

func (f *fakeLookups) Archive(_ context.Context, r *report.Report) (string, error) {
	if f.archiveErr != nil {
		return "", f.archiveErr
	}
	f.archived = append(f.archived, r.Query)
	return "reports/" + r.Query + ".json", nil
}

type published struct {
	key string
	v   any
}

type fakePublisher struct{ msgs []published }

func (p *fakePublisher) Publish(_ context.Context, key string, v any) error {
	p.msgs = append(p.msgs, published{key, v})
	return nil
}

func TestHandle_Found(t *testing.T) {
	pub := &fakePublisher{}
	h := &handler{lookups: &fakeLookups{}, results: pub}

	res := h.handle(context.Background(), models.LookupRequest{Address: "Tour Eiffel"})
	assert.Equal(t, models.LookupResult{Address: "Tour Eiffel", Found: true, ReportKey: "reports/Tour Eiffel.json"}, res)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "tour-eiffel", pub.msgs[0].key)
	assert.Equal(t, res, pub.msgs[0].v)
}

func TestHandle_NotFoundIsArchived(t *testing.T) {
	lk := &fakeLookups{err: lookup.ErrNotFound}
	h := &handler{lookups: lk}

	res := h.handle(context.Background(), models.LookupRequest{Address: "nowhere"})
	assert.False(t, res.Found)
	assert.Empty(t, res.Error)
	assert.Equal(t, []string{"nowhere"}, lk.archived)
}

func TestHandle_Failures(t *testing.T) {
	h := &handler{lookups: &fakeLookups{err: lookup.ErrBlankAddress}}
	res := h.handle(context.Background(), models.LookupRequest{Address: " "})
	assert.False(t, res.Found)
	assert.Equal(t, lookup.ErrBlankAddress.Error(), res.Error)
	assert.Empty(t, res.ReportKey)

	h = &handler{lookups: &fakeLookups{archiveErr: errors.New("storage: put")}}
	res = h.handle(context.Background(), models.LookupRequest{Address: "Tour Eiffel"})
	assert.True(t, res.Found)
	assert.Equal(t, "storage: put", res.Error)
}
