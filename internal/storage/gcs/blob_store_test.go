package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/ramtracker/internal/storage/gcs"
)

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := gcs.New(nil, gcs.Config{Bucket: "b"})
	require.ErrorContains(t, err, "client is required")

	client := newTestClient(t, http.NotFoundHandler())
	_, err = gcs.New(client, gcs.Config{})
	require.ErrorContains(t, err, "bucket name is required")
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	t.Parallel()

	body := "<html><select name=\"n6\"></select></html>"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/ram-bucket/o")
		assert.Equal(t, "snapshots/run-1.html", r.URL.Query().Get("name"))

		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(data), body)
		assert.Contains(t, string(data), "text/html")

		fmt.Fprintln(w, `{"name": "snapshots/run-1.html", "bucket": "ram-bucket"}`)
	})

	store, err := gcs.New(newTestClient(t, handler), gcs.Config{Bucket: "ram-bucket", Prefix: "/snapshots/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "run-1.html", "text/html; charset=utf-8", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, "gs://ram-bucket/snapshots/run-1.html", uri)
	require.NoError(t, store.Close())
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"code": 403, "message": "denied"}}`, http.StatusForbidden)
	})
	store, err := gcs.New(newTestClient(t, handler), gcs.Config{Bucket: "ram-bucket"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "run-1.html", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestPutObjectEmptyPath(t *testing.T) {
	t.Parallel()

	store, err := gcs.New(newTestClient(t, http.NotFoundHandler()), gcs.Config{Bucket: "ram-bucket"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "path is required")
}

func TestDialChecksBucket(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/b/missing") {
			http.Error(w, `{"error": {"code": 404, "message": "not found"}}`, http.StatusNotFound)
			return
		}
		fmt.Fprintln(w, `{"name": "ram-bucket"}`)
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts := []option.ClientOption{option.WithEndpoint(server.URL), option.WithoutAuthentication()}

	_, err := gcs.Dial(context.Background(), gcs.Config{Bucket: "missing"}, opts...)
	require.Error(t, err)

	store, err := gcs.Dial(context.Background(), gcs.Config{Bucket: "ram-bucket"}, opts...)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}
