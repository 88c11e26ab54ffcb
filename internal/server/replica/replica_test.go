package replica

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/smugglebox/internal/logging"
	sc "github.com/dmitrijs2005/smugglebox/internal/server/config"
	"github.com/dmitrijs2005/smugglebox/internal/server/sandbox"
)

type putCall struct {
	bucket, key string
	body        []byte
	length      int64
}

type fakeUploader struct {
	mu    sync.Mutex
	calls []putCall
	err   error
}

func (f *fakeUploader) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, putCall{
		bucket: aws.ToString(in.Bucket),
		key:    aws.ToString(in.Key),
		body:   body,
		length: aws.ToInt64(in.ContentLength),
	})
	return &s3.PutObjectOutput{}, nil
}

func stored(t *testing.T, rel string, data []byte) sandbox.Path {
	t.Helper()

	root := t.TempDir()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, data, 0o644))

	sb, err := sandbox.New(root, "")
	require.NoError(t, err)
	p, err := sb.Resolve(rel)
	require.NoError(t, err)
	return p
}

func TestMirror_PutsObject(t *testing.T) {
	up := &fakeUploader{}
	r := NewWithClient(up, "loot", "uploads/", logging.Discard())

	p := stored(t, "docs/a.txt", []byte("hello"))
	require.NoError(t, r.Mirror(context.Background(), p))

	require.Len(t, up.calls, 1)
	assert.Equal(t, putCall{bucket: "loot", key: "uploads/docs/a.txt", body: []byte("hello"), length: 5}, up.calls[0])
}

func TestMirror_Errors(t *testing.T) {
	boom := errors.New("boom")
	r := NewWithClient(&fakeUploader{err: boom}, "loot", "", logging.Discard())

	p := stored(t, "a.txt", []byte("x"))
	require.ErrorIs(t, r.Mirror(context.Background(), p), boom)

	missing := sandbox.Path{Abs: filepath.Join(t.TempDir(), "gone"), Rel: "gone"}
	require.ErrorIs(t, r.Mirror(context.Background(), missing), os.ErrNotExist)
}

func TestMirrorAsync_SurvivesCanceledRequest(t *testing.T) {
	up := &fakeUploader{}
	r := NewWithClient(up, "loot", "", logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.MirrorAsync(ctx, stored(t, "a.txt", []byte("late")))
	r.Wait()

	require.Len(t, up.calls, 1)
	assert.Equal(t, "a.txt", up.calls[0].key)
}

func TestMirrorAsync_AfterWaitIsDropped(t *testing.T) {
	up := &fakeUploader{}
	r := NewWithClient(up, "loot", "", logging.Discard())

	r.MirrorAsync(context.Background(), stored(t, "first.txt", []byte("1")))
	r.Wait()

	r.MirrorAsync(context.Background(), stored(t, "late.txt", []byte("2")))
	r.Wait()

	require.Len(t, up.calls, 1)
	assert.Equal(t, "first.txt", up.calls[0].key)
}

func TestMirrorAsync_ConcurrentWithWait(t *testing.T) {
	up := &fakeUploader{}
	r := NewWithClient(up, "loot", "", logging.Discard())
	p := stored(t, "a.txt", []byte("x"))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.MirrorAsync(context.Background(), p)
		}()
	}
	r.Wait()
	wg.Wait()
	r.Wait()

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.LessOrEqual(t, len(up.calls), 8)
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, rel, want string
	}{
		{"", "a.txt", "a.txt"},
		{"", "/a.txt", "a.txt"},
		{"box", "a/b.txt", "box/a/b.txt"},
		{"box/", "a/b.txt", "box/a/b.txt"},
	}
	for _, tt := range tests {
		r := NewWithClient(&fakeUploader{}, "b", tt.prefix, logging.Discard())
		assert.Equal(t, tt.want, r.ObjectKey(tt.rel))
	}
}

func TestNew_ConfiguresClient(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	cfg := &sc.Config{
		S3Bucket:       "loot",
		S3Region:       "us-east-1",
		S3BaseEndpoint: "http://127.0.0.1:9000",
		S3RootUser:     "minioadmin",
		S3RootPassword: "minioadmin",
		S3Prefix:       "box",
	}

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		require.NotNil(t, lo.Credentials)

		creds, err := lo.Credentials.Retrieve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "minioadmin", creds.AccessKeyID)
		return aws.Config{}, nil
	}

	up := &fakeUploader{}
	newS3ClientFromConfig = func(_ aws.Config, optFns ...func(*s3.Options)) Uploader {
		var o s3.Options
		for _, fn := range optFns {
			fn(&o)
		}
		assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(o.BaseEndpoint))
		assert.True(t, o.UsePathStyle)
		return up
	}

	r, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "box/a.txt", r.ObjectKey("a.txt"))

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}
	_, err = New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}
