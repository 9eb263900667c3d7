package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
	"github.com/JakeFAU/carcatalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/carcatalog-crawler/internal/storage/gcs"
)

const bucketName = "test-bucket"

// newTestStore creates a BlobStore pointed at a test server.
func newTestStore(t *testing.T, handler http.Handler, prefix string) *gcs.BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := gcs.New(client, gcs.Config{Bucket: bucketName, Prefix: prefix}, sha256.New())
	require.NoError(t, err)
	return store
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := gcs.New(nil, gcs.Config{Bucket: bucketName}, sha256.New())
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = gcs.New(client, gcs.Config{}, sha256.New())
	require.Error(t, err)
	_, err = gcs.New(client, gcs.Config{Bucket: bucketName}, nil)
	require.Error(t, err)
}

func TestSaveUploadsUnderErrors(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		name string
		body string
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, fmt.Sprintf("/upload/storage/v1/b/%s/o", bucketName))
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		mu.Lock()
		name = r.URL.Query().Get("name")
		body = string(data)
		mu.Unlock()
		fmt.Fprintf(w, `{"name": %q, "bucket": %q}`, name, bucketName)
	})

	store := newTestStore(t, handler, "")
	uri, err := store.Save(context.Background(), "https://example.com/explore/suv", []byte("<html>broken</html>"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(uri, "gs://test-bucket/errors/example.com_explore_suv_"), uri)
	assert.Contains(t, body, "<html>broken</html>")
}

func TestWriteRecordUsesMakeLayout(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body string
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		mu.Lock()
		body = string(data)
		mu.Unlock()
		fmt.Fprintf(w, `{"name": %q, "bucket": %q}`, r.URL.Query().Get("name"), bucketName)
	})

	store := newTestStore(t, handler, "catalog/")
	rec := crawler.ModelRecord{Make: "audi", Model: "a4", Years: map[string]crawler.YearRecord{
		"2024": {ExpertReview: "solid"},
	}}
	require.NoError(t, store.Write(context.Background(), rec))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, body, "catalog/make=audi/a4.json")
	assert.Contains(t, body, `"expert_review": "solid"`)
}

func TestWriteRecordError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store := newTestStore(t, handler, "")
	err := store.Write(context.Background(), crawler.ModelRecord{Make: "audi", Model: "a4"})
	assert.Error(t, err)
}

func TestReadRecord(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "a4.json"):
			fmt.Fprint(w, `{"make":"audi","model":"a4","years":{"2024":{"main_images":[],"expert_review":"x","trims":[]}}}`)
		default:
			http.NotFound(w, r)
		}
	})
	store := newTestStore(t, handler, "")

	rec, err := store.Read(context.Background(), crawler.ModelKey{Make: "audi", Model: "a4"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"2024"}, rec.SortedYears())

	missing, err := store.Read(context.Background(), crawler.ModelKey{Make: "audi", Model: "q7"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}
