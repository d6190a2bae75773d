package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fpang/moodmatch/internal/workflow"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// drain collects every event until the channel closes.
func drain(ch <-chan workflow.UploadEvent) (progress []int, final workflow.UploadEvent) {
	for ev := range ch {
		if ev.Done {
			final = ev
			continue
		}
		progress = append(progress, ev.Percent)
	}
	return progress, final
}

func TestFSStoreUpload(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFSStore(fs, "/media", "http://localhost:8080/media/")
	data := bytes.Repeat([]byte("x"), 3*chunkSize+10)

	progress, final := drain(store.Upload(context.Background(), workflow.UploadRequest{
		Path: "posts/u1/abc.jpg", Data: data, ContentType: "image/jpeg",
	}))
	require.NoError(t, final.Err)
	assert.Equal(t, "http://localhost:8080/media/posts/u1/abc.jpg", final.URL)
	require.Len(t, progress, 4)
	assert.Equal(t, 100, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}

	got, err := afero.ReadFile(fs, "/media/posts/u1/abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFSStoreConfinesPaths(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFSStore(fs, "/media", "")

	_, final := drain(store.Upload(context.Background(), workflow.UploadRequest{Path: "../../etc/passwd", Data: []byte("x")}))
	require.NoError(t, final.Err)
	assert.Equal(t, "file:///media/etc/passwd", final.URL)

	exists, err := afero.Exists(fs, "/etc/passwd")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFSStoreCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewFSStore(fs, "/media", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := store.Upload(ctx, workflow.UploadRequest{Path: "a.jpg", Data: []byte("abc")})
	for range ch {
	}
	exists, _ := afero.Exists(fs, "/media/a.jpg")
	assert.False(t, exists)
}

func TestFSStoreAbandonedReceiver(t *testing.T) {
	store := NewFSStore(afero.NewMemMapFs(), "/media", "")
	ctx, cancel := context.WithCancel(context.Background())

	ch := store.Upload(ctx, workflow.UploadRequest{Path: "a.jpg", Data: bytes.Repeat([]byte("y"), 4*chunkSize)})
	<-ch
	// The receiver walks away; cancellation must let the producer exit.
	cancel()
	for range ch {
	}
}

type fakeS3 struct {
	mu   sync.Mutex
	objs map[string][]byte
	err  error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	// Read twice to mimic a checksum pass followed by the transfer.
	if _, err := io.Copy(io.Discard, in.Body); err != nil {
		return nil, err
	}
	if _, err := in.Body.(io.Seeker).Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objs == nil {
		f.objs = make(map[string][]byte)
	}
	f.objs[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

type fakePresign struct{}

func (fakePresign) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := s3.PresignOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.s3.amazonaws.com/" + *in.Key + "?X-Amz-Expires=" + opts.Expires.String(),
		Method: http.MethodGet,
	}, nil
}

func TestS3StoreUpload(t *testing.T) {
	client := &fakeS3{}
	store := &S3Store{Client: client, Presign: fakePresign{}, Bucket: "media"}
	data := bytes.Repeat([]byte("z"), 1000)

	progress, final := drain(store.Upload(context.Background(), workflow.UploadRequest{
		Path: "posts/u1/x.png", Data: data, ContentType: "image/png",
	}))
	require.NoError(t, final.Err)
	assert.Contains(t, final.URL, "posts/u1/x.png")
	assert.Contains(t, final.URL, "168h0m0s")
	assert.Equal(t, data, client.objs["posts/u1/x.png"])
	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
}

func TestS3StorePublicURL(t *testing.T) {
	store := &S3Store{Client: &fakeS3{}, Bucket: "media", PublicBaseURL: "https://cdn.example.com"}
	_, final := drain(store.Upload(context.Background(), workflow.UploadRequest{Path: "posts/u1/x.png", Data: []byte("p")}))
	require.NoError(t, final.Err)
	assert.Equal(t, "https://cdn.example.com/posts/u1/x.png", final.URL)
}

func TestS3StoreFailure(t *testing.T) {
	store := &S3Store{Client: &fakeS3{err: errors.New("AccessDenied")}, Bucket: "media", PublicBaseURL: "https://cdn"}
	progress, final := drain(store.Upload(context.Background(), workflow.UploadRequest{Path: "k", Data: []byte("p")}))
	require.Error(t, final.Err)
	assert.Contains(t, final.Err.Error(), "AccessDenied")
	assert.Empty(t, final.URL)
	assert.Empty(t, progress)
}
