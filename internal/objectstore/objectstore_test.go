package objectstore

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type putCall struct {
	bucket      string
	key         string
	body        string
	size        int64
	contentType string
}

type fakePutter struct {
	mu     sync.Mutex
	calls  []putCall
	failOn string
}

func (f *fakePutter) PutObject(_ context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == f.failOn {
		return minio.UploadInfo{}, errors.New("access denied")
	}
	f.calls = append(f.calls, putCall{bucket: bucket, key: key, body: string(body), size: size, contentType: opts.ContentType})
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func validConfig() Config {
	return Config{
		Endpoint:  "localhost:9000",
		AccessKey: "a",
		SecretKey: "b",
		Region:    "us-east-1",
		Bucket:    "fee-runs",
		Prefix:    "/batches/",
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"endpoint", func(c *Config) { c.Endpoint = " " }},
		{"scheme", func(c *Config) { c.Endpoint = "http://localhost:9000" }},
		{"access key", func(c *Config) { c.AccessKey = "" }},
		{"secret key", func(c *Config) { c.SecretKey = "" }},
		{"region", func(c *Config) { c.Region = "" }},
		{"bucket", func(c *Config) { c.Bucket = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewMinIOClient_RejectsInvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Bucket = ""
	_, err := NewMinIOClient(cfg)
	assert.Error(t, err)

	client, err := NewMinIOClient(validConfig())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestArchive_UploadsInNameOrder(t *testing.T) {
	putter := &fakePutter{}
	archiver := NewArchiver(putter, validConfig(), nil)
	batchID := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")

	err := archiver.Archive(context.Background(), batchID, "3", map[string][]byte{
		"summary.csv":   []byte("Item,Fee\n"),
		"outcome.json":  []byte("{}"),
		"response.html": []byte("<html></html>"),
	})
	require.NoError(t, err)

	require.Len(t, putter.calls, 3)
	prefix := "batches/7d444840-9dc0-11d1-b245-5ffdce74fad2/3/"
	assert.Equal(t, putCall{bucket: "fee-runs", key: prefix + "outcome.json", body: "{}", size: 2, contentType: "application/json"}, putter.calls[0])
	assert.Equal(t, prefix+"response.html", putter.calls[1].key)
	assert.Equal(t, "text/html; charset=utf-8", putter.calls[1].contentType)
	assert.Equal(t, prefix+"summary.csv", putter.calls[2].key)
	assert.Equal(t, "text/csv", putter.calls[2].contentType)
}

func TestArchive_StopsAtFirstFailure(t *testing.T) {
	cfg := validConfig()
	cfg.Prefix = ""
	batchID := uuid.New()
	archiver := NewArchiver(nil, cfg, nil)
	putter := &fakePutter{failOn: archiver.Key(batchID, "0", "b.json")}
	archiver.client = putter

	err := archiver.Archive(context.Background(), batchID, "0", map[string][]byte{
		"a.json": []byte("1"),
		"b.json": []byte("2"),
		"c.json": []byte("3"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.json")
	assert.Len(t, putter.calls, 1)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/plain; charset=utf-8", contentType("scraper_debug.log"))
	assert.Equal(t, "application/octet-stream", contentType("blob"))
}
