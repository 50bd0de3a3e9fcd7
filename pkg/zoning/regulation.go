package zoning

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"urbanlens/internal/metrics"
	"urbanlens/internal/resilience"
)

const maxRegulationBytes = 64 << 20

// ErrNotPDF is returned when the downloaded regulation is not a PDF document.
var ErrNotPDF = errors.New("zoning: regulation is not a PDF")

var pdfMagic = []byte("%PDF-")

// Downloader fetches regulation documents from the GPU.
type Downloader struct {
	httpClient *http.Client
}

func NewDownloader(httpClient *http.Client) *Downloader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Downloader{httpClient: httpClient}
}

// Download retrieves the document at url and checks it is a PDF.
func (d *Downloader) Download(ctx context.Context, url string) (data []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveUpstream("gpu", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "zoning: build regulation request")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "zoning: download regulation")
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.CheckStatus("zoning", resp.StatusCode); err != nil {
		return nil, err
	}

	data, err = io.ReadAll(io.LimitReader(resp.Body, maxRegulationBytes))
	if err != nil {
		return nil, eris.Wrap(err, "zoning: read regulation")
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, ErrNotPDF
	}
	return data, nil
}
