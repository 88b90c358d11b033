package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	storage_go "github.com/supabase-community/storage-go"
	"go.uber.org/zap"

	"github.com/example/kyc-voice/internal/retry"
)

type storedObject struct {
	bucket      string
	path        string
	data        string
	contentType string
}

type stubStore struct {
	mu       sync.Mutex
	objects  []storedObject
	failures []error
}

func (s *stubStore) UploadFile(bucketID, relativePath string, data io.Reader, opts ...storage_go.FileOptions) (storage_go.FileUploadResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return storage_go.FileUploadResponse{}, err
	}

	body, _ := io.ReadAll(data)
	obj := storedObject{bucket: bucketID, path: relativePath, data: string(body)}
	if len(opts) > 0 && opts[0].ContentType != nil {
		obj.contentType = *opts[0].ContentType
	}
	s.objects = append(s.objects, obj)
	return storage_go.FileUploadResponse{}, nil
}

func (s *stubStore) GetPublicUrl(bucketID, filePath string, _ ...storage_go.UrlOptions) storage_go.SignedUrlResponse {
	return storage_go.SignedUrlResponse{SignedURL: "https://cdn.test/" + bucketID + "/" + filePath}
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func newTestGateway(store *stubStore) *Gateway {
	g := newGateway(store, Config{}, zap.NewNop())
	g.policy = retry.Policy{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return g
}

func TestUploadImageNaming(t *testing.T) {
	store := &stubStore{}
	gateway := newTestGateway(store)

	url, err := gateway.UploadImage(context.Background(), "sess-1", "aadhaar_face", []byte("png"))

	require.NoError(t, err)
	require.Len(t, store.objects, 1)
	obj := store.objects[0]
	assert.Equal(t, "kyc_document", obj.bucket)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}_aadhaar_face\.png$`), obj.path)
	assert.Equal(t, "image/png", obj.contentType)
	assert.Equal(t, "png", obj.data)
	assert.Equal(t, "https://cdn.test/kyc_document/"+obj.path, url)
}

func TestUploadDocumentAndRecordingPaths(t *testing.T) {
	store := &stubStore{}
	gateway := newTestGateway(store)

	_, err := gateway.UploadDocument(context.Background(), "sess-1", "scan.JPG", []byte("jpg"))
	require.NoError(t, err)
	_, err = gateway.UploadRecording(context.Background(), "sess-1", "session.webm", []byte("webm"))
	require.NoError(t, err)

	require.Len(t, store.objects, 2)
	assert.Equal(t, "kyc_document", store.objects[0].bucket)
	assert.True(t, strings.HasPrefix(store.objects[0].path, "kyc_document/"))
	assert.True(t, strings.HasSuffix(store.objects[0].path, ".jpg"))
	assert.Equal(t, "kyc_recording", store.objects[1].bucket)
	assert.Regexp(t, `^kyc_recording/[0-9a-f-]{36}\.webm$`, store.objects[1].path)
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	store := &stubStore{failures: []error{timeoutErr{}}}
	gateway := newTestGateway(store)

	_, err := gateway.UploadImage(context.Background(), "sess-1", "pan", []byte("png"))

	require.NoError(t, err)
	require.Len(t, store.objects, 1)
	assert.Equal(t, "png", store.objects[0].data)
}

func TestUploadFailureIsStorageError(t *testing.T) {
	denied := errors.New("new row violates row-level security policy")
	store := &stubStore{failures: []error{denied}}
	gateway := newTestGateway(store)

	_, err := gateway.UploadImage(context.Background(), "sess-1", "pan", []byte("png"))

	var storageErr *Error
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "kyc_document", storageErr.Bucket)
	assert.ErrorIs(t, err, denied)
	assert.Empty(t, store.objects)
}

func newHangingStorage(t *testing.T) string {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv.URL + "/storage/v1/"
}

func TestUploadStopsAtContextDeadline(t *testing.T) {
	gateway := NewGateway(Config{Endpoint: newHangingStorage(t), APIKey: "key"}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := gateway.UploadImage(ctx, "sess-1", "aadhaar", []byte("png"))

	assert.Less(t, time.Since(start), 2*time.Second)
	var storageErr *Error
	require.ErrorAs(t, err, &storageErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUploadAttemptTimeout(t *testing.T) {
	gateway := NewGateway(Config{
		Endpoint: newHangingStorage(t),
		APIKey:   "key",
		Timeout:  100 * time.Millisecond,
	}, zap.NewNop())
	gateway.policy = retry.Policy{Attempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	start := time.Now()
	_, err := gateway.UploadRecording(context.Background(), "sess-1", "session.webm", []byte("webm"))

	assert.Less(t, time.Since(start), 2*time.Second)
	var storageErr *Error
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "kyc_recording", storageErr.Bucket)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "png", Extension("a.b.PNG"))
	assert.Equal(t, "bin", Extension("noext"))
	assert.Equal(t, "webm", Extension("rec.webm"))
}
