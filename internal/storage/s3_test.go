package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbanlens/internal/config"
)

// fakeS3 answers the HEAD and GET requests minio-go issues for stat, get
// and bucket-exists calls.
func fakeS3(t *testing.T, objects map[string]string) *S3Service {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "urbanlens" || path == "urbanlens/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		body, ok := objects[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Last-Modified", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	s, err := NewS3Service(config.StorageConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Region:    "us-east-1",
		Bucket:    "urbanlens",
	})
	require.NoError(t, err)
	return s
}

func TestNewS3Service_MissingSettings(t *testing.T) {
	_, err := NewS3Service(config.StorageConfig{Endpoint: "localhost:9000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage: missing")
}

func TestExists(t *testing.T) {
	s := fakeS3(t, map[string]string{"urbanlens/regulations/1/r.pdf": "%PDF-"})

	ok, err := s.Exists(context.Background(), "regulations/1/r.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(context.Background(), "regulations/2/r.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutIfAbsent_SkipsExisting(t *testing.T) {
	s := fakeS3(t, map[string]string{"urbanlens/panoramas/1.jpg": "jpeg"})

	called := false
	stored, err := s.PutIfAbsent(context.Background(), "panoramas/1.jpg", ContentTypeJPEG, func(context.Context) ([]byte, error) {
		called = true
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, called)
}

func TestGetRequest(t *testing.T) {
	s := fakeS3(t, map[string]string{
		"urbanlens/requests/tour-eiffel.json": `{"address":"Tour Eiffel","provider":"google","radius_m":300}`,
		"urbanlens/requests/broken.json":      `{"address":`,
	})

	req, err := s.GetRequest(context.Background(), "urbanlens", "requests/tour-eiffel.json")
	require.NoError(t, err)
	assert.Equal(t, "Tour Eiffel", req.Address)
	assert.Equal(t, "google", string(req.Provider))
	assert.Equal(t, 300, req.RadiusM)

	_, err = s.GetRequest(context.Background(), "urbanlens", "requests/broken.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage: decode request")

	_, err = s.GetRequest(context.Background(), "urbanlens", "requests/missing.json")
	require.Error(t, err)
}

func TestEnsureBucket_Existing(t *testing.T) {
	s := fakeS3(t, nil)
	require.NoError(t, s.EnsureBucket(context.Background()))
	assert.Equal(t, "urbanlens", s.Bucket())
}
