package gcs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeGCS answers every JSON API call with a minimal object resource and
// records the upload bodies it saw.
type fakeGCS struct {
	mu     sync.Mutex
	bodies []string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"bucket":"docs-bucket","name":"docs/run.md","size":"7"}`))
}

func (f *fakeGCS) sawPayload(s string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bodies {
		if strings.Contains(b, s) {
			return true
		}
	}
	return false
}

func TestPutObjectUploadsToBucket(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	store, err := Open(ctx, Config{Bucket: "docs-bucket", Prefix: "docs/"},
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	uri, err := store.PutObject(ctx, "run.md", "text/markdown", strings.NewReader("# Title"))
	require.NoError(t, err)
	assert.Equal(t, "gs://docs-bucket/docs/run.md", uri)
	assert.True(t, fake.sawPayload("# Title"))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	store, err := Open(context.Background(), Config{Bucket: "b"}, option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = New(store.client, Config{})
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)
}
