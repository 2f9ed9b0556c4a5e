package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alwengel/SmartCampus-Pub-Sub/internal/model"
)

// fakeS3 records PutObject calls in memory.
type fakeS3 struct {
	bucket, key, contentType string
	body                     []byte
	calls                    int
	err                      error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFileSink_CommitPublishes(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sample.json")

	sink, err := OpenSink(context.Background(), target, SinkOptions{})
	require.NoError(t, err)
	assert.Equal(t, target, sink.Destination())

	_, err = io.WriteString(sink, "[]\n")
	require.NoError(t, err)
	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err), "target must not exist before commit")

	require.NoError(t, sink.Commit())
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
	assert.Equal(t, []string{"sample.json"}, dirEntries(t, dir))

	_, err = sink.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrSinkClosed)
	assert.ErrorIs(t, sink.Commit(), ErrSinkClosed)
}

func TestFileSink_AbortLeavesTargetUntouched(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sample.json")
	require.NoError(t, os.WriteFile(target, []byte("previous"), 0o644))

	sink, err := NewFileSink(target)
	require.NoError(t, err)
	_, err = io.WriteString(sink, "[\n  {")
	require.NoError(t, err)
	require.NoError(t, sink.Abort())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
	assert.Equal(t, []string{"sample.json"}, dirEntries(t, dir))
}

func TestStreamSink(t *testing.T) {
	var out bytes.Buffer
	sink, err := OpenSink(context.Background(), "-", SinkOptions{Stdout: &out, TempDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "-", sink.Destination())

	_, err = io.WriteString(sink, "[]\n")
	require.NoError(t, err)
	assert.Zero(t, out.Len(), "nothing is streamed before commit")

	require.NoError(t, sink.Commit())
	assert.Equal(t, "[]\n", out.String())
}

func TestStreamSink_Abort(t *testing.T) {
	var out bytes.Buffer
	dir := t.TempDir()
	sink, err := NewStreamSink(&out, dir)
	require.NoError(t, err)

	_, err = io.WriteString(sink, "partial")
	require.NoError(t, err)
	require.NoError(t, sink.Abort())

	assert.Zero(t, out.Len())
	assert.Empty(t, dirEntries(t, dir))
}

func TestS3Sink(t *testing.T) {
	client := &fakeS3{}
	sink, err := OpenSink(context.Background(), "s3://eval-bucket/runs/sample.json", SinkOptions{S3: client, TempDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "s3://eval-bucket/runs/sample.json", sink.Destination())

	_, err = io.WriteString(sink, `[{"subscription_id":1}]`)
	require.NoError(t, err)
	assert.Zero(t, client.calls)

	require.NoError(t, sink.Commit())
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, "eval-bucket", client.bucket)
	assert.Equal(t, "runs/sample.json", client.key)
	assert.Equal(t, "application/json", client.contentType)
	assert.Equal(t, `[{"subscription_id":1}]`, string(client.body))
}

func TestS3Sink_AbortNeverUploads(t *testing.T) {
	client := &fakeS3{}
	sink, err := OpenSink(context.Background(), "s3://b/k.json", SinkOptions{S3: client, TempDir: t.TempDir()})
	require.NoError(t, err)

	_, err = io.WriteString(sink, "partial")
	require.NoError(t, err)
	require.NoError(t, sink.Abort())
	assert.Zero(t, client.calls)
}

func TestS3Sink_UploadFailure(t *testing.T) {
	boom := errors.New("access denied")
	client := &fakeS3{err: boom}
	sink, err := OpenSink(context.Background(), "s3://b/k.json", SinkOptions{S3: client, TempDir: t.TempDir()})
	require.NoError(t, err)

	assert.ErrorIs(t, sink.Commit(), boom)
}

func TestZstdSink_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "subscriptions.json.zst")
	payload := bytes.Repeat([]byte(`{"subscription_id":1,"subscriptions":"readings from floor 1"},`), 200)

	sink, err := OpenSink(context.Background(), target, SinkOptions{})
	require.NoError(t, err)
	_, err = sink.Write(payload)
	require.NoError(t, err)
	require.NoError(t, sink.Commit())

	compressed, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(payload))

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)
}

func TestZstdSink_S3ContentType(t *testing.T) {
	client := &fakeS3{}
	sink, err := OpenSink(context.Background(), "s3://b/out.json", SinkOptions{S3: client, Compress: CompressZstd, TempDir: t.TempDir()})
	require.NoError(t, err)

	_, err = io.WriteString(sink, "[]\n")
	require.NoError(t, err)
	require.NoError(t, sink.Commit())
	assert.Equal(t, "application/zstd", client.contentType)
}

func TestZstdSink_Abort(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.json")
	sink, err := OpenSink(context.Background(), target, SinkOptions{Compress: CompressZstd})
	require.NoError(t, err)

	_, err = io.WriteString(sink, "partial")
	require.NoError(t, err)
	require.NoError(t, sink.Abort())
	assert.Empty(t, dirEntries(t, dir))

	_, err = io.WriteString(sink, "more")
	assert.ErrorIs(t, err, ErrSinkClosed)
	assert.ErrorIs(t, sink.Commit(), ErrSinkClosed)
	assert.NoError(t, sink.Abort())
	assert.NoFileExists(t, target)
}

func TestOpenSink_Invalid(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		target string
		opts   SinkOptions
	}{
		{"stdout without writer", "-", SinkOptions{}},
		{"s3 without client", "s3://b/k", SinkOptions{}},
		{"s3 without key", "s3://bucket", SinkOptions{S3: &fakeS3{}}},
		{"unknown codec", filepath.Join(t.TempDir(), "x.json"), SinkOptions{Compress: "lz4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenSink(ctx, tt.target, tt.opts)
			assert.ErrorIs(t, err, model.ErrInvalidArgument)
		})
	}
}

func TestParseS3URL(t *testing.T) {
	bucket, key, err := ParseS3URL("s3://eval/a/b/c.json")
	require.NoError(t, err)
	assert.Equal(t, "eval", bucket)
	assert.Equal(t, "a/b/c.json", key)

	_, _, err = ParseS3URL("https://eval/a")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestExportSample_ToFileSink(t *testing.T) {
	p := newPipeline(t, seedCampus(t), model.VersionSQL)
	target := filepath.Join(t.TempDir(), "sample.json")
	sink, err := OpenSink(context.Background(), target, SinkOptions{})
	require.NoError(t, err)

	report, err := p.assembler.ExportSample(context.Background(), 5, sink)
	require.NoError(t, err)
	assert.Equal(t, target, report.Destination)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	golden(t).Assert(t, "sample_sql", data)
}
