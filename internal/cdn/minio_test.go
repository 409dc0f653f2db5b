package cdn

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeS3 answers the handful of S3 calls MinIOStore makes, path-style.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	modified := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)

	if key == "" {
		switch r.Method {
		case http.MethodPut:
			f.buckets[bucket] = true
			w.WriteHeader(http.StatusOK)
		case http.MethodHead:
			if f.buckets[bucket] {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		if strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
			data = decodeAwsChunked(data)
		}
		f.objects[bucket+"/"+key] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead, http.MethodGet:
		data, ok := f.objects[bucket+"/"+key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Last-Modified", modified)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestMinIOStore(t *testing.T) {
	fake := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s, err := NewMinIOStore(ctx, MinIOOptions{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "resources",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	require.True(t, fake.buckets["resources"])
	require.NoError(t, s.Ping(ctx))

	ok, err := s.Exists(ctx, "img/a.png")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Upload(ctx, "img/a.png", strings.NewReader("PNG"), 3, "image/png"))
	ok, err = s.Exists(ctx, "img/a.png")
	require.NoError(t, err)
	require.True(t, ok)

	rc, err := s.Open(ctx, "img/a.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "PNG", string(data))

	_, err = s.Open(ctx, "img/missing.png")
	require.ErrorIs(t, err, ErrResourceNotFound)
}

func TestNewMinIOStore_MissingConfig(t *testing.T) {
	_, err := NewMinIOStore(context.Background(), MinIOOptions{})
	require.Error(t, err)
}

// decodeAwsChunked strips the "<hex-size>;chunk-signature=...\r\n" framing of
// a streaming-signed upload.
func decodeAwsChunked(raw []byte) []byte {
	var out []byte
	rest := string(raw)
	for {
		header, after, ok := strings.Cut(rest, "\r\n")
		if !ok {
			return out
		}
		sizeHex, _, _ := strings.Cut(header, ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil || size == 0 || int64(len(after)) < size {
			return out
		}
		out = append(out, after[:size]...)
		rest = strings.TrimPrefix(after[size:], "\r\n")
	}
}
